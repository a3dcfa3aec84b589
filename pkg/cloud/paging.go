package cloud

import (
	"context"
	"iter"
)

// DefaultPageLimit is used when a caller pages without a limit
const DefaultPageLimit = 50

// Page is one slice of a listing
type Page[T Resource] struct {
	Items []T
	// Truncated is true when more items follow NextMarker
	Truncated  bool
	NextMarker string
	Total      int
}

// Iterate adapts a list call into a restartable iterator. Each range over the
// result performs one list call and then walks that snapshot.
func Iterate[T any](ctx context.Context, list func(context.Context) ([]T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		items, err := list(ctx)
		if err != nil {
			var zero T
			yield(zero, err)
			return
		}
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Paginate applies limit/marker paging to a full listing. The marker is the
// id of the last item of the previous page; an unknown marker yields an
// empty page.
func Paginate[T Resource](items []T, limit int, marker string) Page[T] {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	total := len(items)

	if marker != "" {
		start := len(items)
		for i, item := range items {
			if item.ID() == marker {
				start = i + 1
				break
			}
		}
		items = items[start:]
	}

	page := Page[T]{Total: total}
	if len(items) > limit {
		page.Items = items[:limit]
		page.Truncated = true
		page.NextMarker = page.Items[limit-1].ID()
	} else {
		page.Items = items
	}
	return page
}

// ListPage lists a service and returns one page of the result
func ListPage[T Resource](ctx context.Context, svc Lister[T], limit int, marker string) (Page[T], error) {
	items, err := svc.List(ctx)
	if err != nil {
		return Page[T]{}, err
	}
	return Paginate(items, limit, marker), nil
}
