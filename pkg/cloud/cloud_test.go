package cloud_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/01000101/cloudbridge/pkg/cloud"
)

type stubResource struct {
	kind cloud.Kind
	id   string
}

func (s stubResource) ID() string       { return s.id }
func (s stubResource) Name() string     { return s.id }
func (s stubResource) Kind() cloud.Kind { return s.kind }
func (s stubResource) Ref() cloud.Ref {
	return cloud.Ref{Provider: "stub", Region: "local", Kind: s.kind, ID: s.id}
}
func (s stubResource) String() string                  { return s.Ref().String() }
func (s stubResource) Equal(other cloud.Resource) bool { return cloud.SameResource(s, other) }

func stubs(n int) []stubResource {
	out := make([]stubResource, n)
	for i := range out {
		out[i] = stubResource{kind: cloud.KindImage, id: fmt.Sprintf("img-%d", i)}
	}
	return out
}

func TestParseRef_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		ref  cloud.Ref
	}{
		{
			name: "key pair",
			ref:  cloud.Ref{Provider: "aws", Region: "us-east-1", Kind: cloud.KindKeyPair, ID: "cbtestkeypairA"},
		},
		{
			name: "id with slash and space",
			ref:  cloud.Ref{Provider: "aws", Region: "us-east-1", Kind: cloud.KindKeyPair, ID: "team/key one"},
		},
		{
			name: "rule with attributes",
			ref: cloud.Ref{
				Provider: "aws",
				Region:   "eu-west-1",
				Kind:     cloud.KindSecurityGroupRule,
				ID:       "sg-123",
				Attrs: url.Values{
					"protocol": {"tcp"},
					"from":     {"1111"},
					"to":       {"1111"},
					"cidr":     {"0.0.0.0/0"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := cloud.ParseRef(tt.ref.String())
			if err != nil {
				t.Fatalf("ParseRef(%q) failed: %v", tt.ref.String(), err)
			}
			if !parsed.Equal(tt.ref) {
				t.Errorf("ParseRef(%q) = %#v, want %#v", tt.ref.String(), parsed, tt.ref)
			}
			if parsed.ID != tt.ref.ID {
				t.Errorf("ID mismatch: got %q, want %q", parsed.ID, tt.ref.ID)
			}
		})
	}
}

func TestParseRef_Invalid(t *testing.T) {
	for _, s := range []string{"", "keypair/abc", "aws://us-east-1/keypair", "aws://us-east-1/a/b/c", "aws://us-east-1//id"} {
		if _, err := cloud.ParseRef(s); err == nil {
			t.Errorf("ParseRef(%q) expected error, got nil", s)
		}
	}
}

func TestRuleRefContainsIdentifyingFields(t *testing.T) {
	ref := cloud.Ref{
		Provider: "aws", Region: "us-east-1", Kind: cloud.KindSecurityGroupRule, ID: "sg-1",
		Attrs: url.Values{"protocol": {"tcp"}, "from": {"1111"}, "to": {"2222"}},
	}
	s := ref.String()
	for _, want := range []string{"tcp", "1111", "2222", "sg-1"} {
		if !strings.Contains(s, want) {
			t.Errorf("%q does not contain %q", s, want)
		}
	}
}

func TestSameResource(t *testing.T) {
	a := stubResource{kind: cloud.KindImage, id: "x"}
	b := stubResource{kind: cloud.KindImage, id: "x"}
	c := stubResource{kind: cloud.KindInstance, id: "x"}

	if !a.Equal(b) {
		t.Error("handles with the same kind and id should be equal")
	}
	if a.Equal(c) {
		t.Error("handles of different kinds should never be equal")
	}
	if a.Equal(nil) {
		t.Error("a handle should not equal nil")
	}
}

func TestPaginate(t *testing.T) {
	items := stubs(5)

	page := cloud.Paginate(items, 2, "")
	if len(page.Items) != 2 || !page.Truncated || page.NextMarker != "img-1" || page.Total != 5 {
		t.Fatalf("first page = %+v", page)
	}

	page = cloud.Paginate(items, 2, page.NextMarker)
	if len(page.Items) != 2 || page.Items[0].ID() != "img-2" || page.NextMarker != "img-3" {
		t.Fatalf("second page = %+v", page)
	}

	page = cloud.Paginate(items, 2, page.NextMarker)
	if len(page.Items) != 1 || page.Truncated || page.NextMarker != "" {
		t.Fatalf("last page = %+v", page)
	}

	page = cloud.Paginate(items, 0, "")
	if len(page.Items) != 5 || page.Truncated {
		t.Fatalf("default limit page = %+v", page)
	}

	page = cloud.Paginate(items, 2, "unknown")
	if len(page.Items) != 0 {
		t.Fatalf("unknown marker page = %+v", page)
	}
}

type stubLister struct {
	calls int
	items []stubResource
	err   error
}

func (l *stubLister) List(context.Context) ([]stubResource, error) {
	l.calls++
	return l.items, l.err
}

func TestIterate_SnapshotsPerRange(t *testing.T) {
	lister := &stubLister{items: stubs(3)}
	seq := cloud.Iterate(context.Background(), lister.List)

	var first []string
	for item, err := range seq {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		first = append(first, item.ID())
	}

	lister.items = stubs(4)
	var second []string
	for item, err := range seq {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second = append(second, item.ID())
	}

	if len(first) != 3 || len(second) != 4 {
		t.Errorf("got %d then %d items, want 3 then 4", len(first), len(second))
	}
	if lister.calls != 2 {
		t.Errorf("List called %d times, want 2", lister.calls)
	}
}

func TestIterate_EarlyBreakAndError(t *testing.T) {
	lister := &stubLister{items: stubs(10)}
	count := 0
	for range cloud.Iterate(context.Background(), lister.List) {
		count++
		if count == 2 {
			break
		}
	}
	if count != 2 {
		t.Errorf("iterated %d items, want 2", count)
	}

	boom := errors.New("boom")
	lister.err = boom
	for _, err := range cloud.Iterate(context.Background(), lister.List) {
		if !errors.Is(err, boom) {
			t.Errorf("got error %v, want %v", err, boom)
		}
	}
}

func TestListPage(t *testing.T) {
	lister := &stubLister{items: stubs(3)}
	page, err := cloud.ListPage[stubResource](context.Background(), lister, 2, "")
	if err != nil {
		t.Fatalf("ListPage failed: %v", err)
	}
	if len(page.Items) != 2 || !page.Truncated {
		t.Errorf("page = %+v", page)
	}
}

func TestResourceErrors(t *testing.T) {
	err := cloud.NotFound("delete", cloud.KindKeyPair, "kp-A")
	if !cloud.IsNotFound(err) {
		t.Errorf("%v should be a not found error", err)
	}
	if got, want := err.Error(), "delete keypair kp-A: resource not found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	if !errors.Is(cloud.Duplicate("create", cloud.KindSecurityGroup, "web"), cloud.ErrDuplicate) {
		t.Error("Duplicate should wrap ErrDuplicate")
	}
	if !errors.Is(cloud.NotSupported("mac_address", cloud.KindInstance), cloud.ErrNotSupported) {
		t.Error("NotSupported should wrap ErrNotSupported")
	}

	inner := errors.New("connection reset")
	var terr *cloud.TransportError
	wrapped := fmt.Errorf("list: %w", &cloud.TransportError{Op: "DescribeKeyPairs", Err: inner})
	if !errors.As(wrapped, &terr) || !errors.Is(wrapped, inner) {
		t.Error("TransportError should unwrap to the client error")
	}
	if cloud.IsNotFound(wrapped) {
		t.Error("transport errors are not reinterpreted as not found")
	}
}
