package cloud

import (
	"fmt"
	"net/url"
	"strings"
)

// Ref is the textual identity of a resource:
//
//	<provider>://<region>/<kind>/<id>[?attr=value...]
//
// Attributes carry the extra fields some kinds need to be identified, e.g.
// protocol and ports for a security group rule. ParseRef(ref.String())
// returns an equal Ref.
type Ref struct {
	Provider string
	Region   string
	Kind     Kind
	ID       string
	Attrs    url.Values
}

func (r Ref) String() string {
	s := fmt.Sprintf("%s://%s/%s/%s", r.Provider, r.Region, r.Kind, url.PathEscape(r.ID))
	if len(r.Attrs) > 0 {
		s += "?" + r.Attrs.Encode()
	}
	return s
}

// Equal compares every field, attributes included
func (r Ref) Equal(o Ref) bool {
	return r.String() == o.String()
}

// Attr returns the first value of an attribute
func (r Ref) Attr(key string) string {
	return r.Attrs.Get(key)
}

// ParseRef parses the output of Ref.String
func ParseRef(s string) (Ref, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Ref{}, fmt.Errorf("invalid resource ref %q: %w", s, err)
	}
	if u.Scheme == "" {
		return Ref{}, fmt.Errorf("invalid resource ref %q: missing provider", s)
	}

	parts := strings.Split(strings.TrimPrefix(u.EscapedPath(), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Ref{}, fmt.Errorf("invalid resource ref %q: want <kind>/<id>", s)
	}
	id, err := url.PathUnescape(parts[1])
	if err != nil {
		return Ref{}, fmt.Errorf("invalid resource ref %q: %w", s, err)
	}

	ref := Ref{
		Provider: u.Scheme,
		Region:   u.Host,
		Kind:     Kind(parts[0]),
		ID:       id,
	}
	if u.RawQuery != "" {
		attrs, err := url.ParseQuery(u.RawQuery)
		if err != nil {
			return Ref{}, fmt.Errorf("invalid resource ref %q: %w", s, err)
		}
		ref.Attrs = attrs
	}
	return ref, nil
}

// SameResource implements Resource.Equal for handle types
func SameResource(a, b Resource) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Ref().Equal(b.Ref())
}
