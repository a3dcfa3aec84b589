package models

// ImageState is the backend-independent lifecycle state of a machine image
type ImageState string

const (
	ImageStateUnknown   ImageState = "unknown"
	ImageStatePending   ImageState = "pending"
	ImageStateAvailable ImageState = "available"
	ImageStateError     ImageState = "error"
)

// Filter selects resources by backend id or by name. Both lists are OR-ed
// within themselves; an empty Filter matches nothing.
type Filter struct {
	IDs   []string
	Names []string
}

// IsEmpty reports whether the filter has no criteria
func (f Filter) IsEmpty() bool {
	return len(f.IDs) == 0 && len(f.Names) == 0
}
