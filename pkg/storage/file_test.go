package storage_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/storage"
)

type fakeResource struct {
	kind cloud.Kind
	id   string
	name string
}

func (f fakeResource) ID() string       { return f.id }
func (f fakeResource) Name() string     { return f.name }
func (f fakeResource) Kind() cloud.Kind { return f.kind }
func (f fakeResource) Ref() cloud.Ref {
	return cloud.Ref{Provider: "aws", Region: "us-east-1", Kind: f.kind, ID: f.id}
}
func (f fakeResource) String() string                  { return f.Ref().String() }
func (f fakeResource) Equal(other cloud.Resource) bool { return cloud.SameResource(f, other) }

func newStorage(t *testing.T) *storage.FileStorage {
	t.Helper()
	return storage.NewFileStorage(filepath.Join(t.TempDir(), "nested", "resources.json"))
}

func TestFileStorage_SaveAndGet(t *testing.T) {
	fs := newStorage(t)
	kp := fakeResource{kind: cloud.KindKeyPair, id: "deploy", name: "deploy"}

	if err := fs.Save(kp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	record, err := fs.Get(kp.Ref().String())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.ID != "deploy" || record.Kind != string(cloud.KindKeyPair) {
		t.Errorf("record = %+v", record)
	}
	if record.CreatedAt.IsZero() || record.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}

	info, err := os.Stat(fs.Path())
	if err != nil {
		t.Fatalf("ledger file missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("ledger mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestFileStorage_SaveRefreshesName(t *testing.T) {
	fs := newStorage(t)
	inst := fakeResource{kind: cloud.KindInstance, id: "i-1", name: "web"}
	if err := fs.Save(inst); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	first, _ := fs.Get(inst.Ref().String())
	created := first.CreatedAt

	inst.name = "web-renamed"
	if err := fs.Save(inst); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	record, err := fs.Get(inst.Ref().String())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Name != "web-renamed" {
		t.Errorf("Name = %q, want web-renamed", record.Name)
	}
	if !record.CreatedAt.Equal(created) {
		t.Error("CreatedAt should not change on update")
	}
}

func TestFileStorage_List(t *testing.T) {
	fs := newStorage(t)

	records, err := fs.List("")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected empty list, got %d records", len(records))
	}

	for _, r := range []fakeResource{
		{kind: cloud.KindKeyPair, id: "a"},
		{kind: cloud.KindSecurityGroup, id: "sg-1"},
		{kind: cloud.KindSecurityGroup, id: "sg-2"},
	} {
		if err := fs.Save(r); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	tests := []struct {
		kind cloud.Kind
		want int
	}{
		{kind: "", want: 3},
		{kind: cloud.KindSecurityGroup, want: 2},
		{kind: cloud.KindKeyPair, want: 1},
		{kind: cloud.KindInstance, want: 0},
	}
	for _, tt := range tests {
		records, err := fs.List(tt.kind)
		if err != nil {
			t.Fatalf("List(%q) failed: %v", tt.kind, err)
		}
		if len(records) != tt.want {
			t.Errorf("List(%q) returned %d records, want %d", tt.kind, len(records), tt.want)
		}
	}
}

func TestFileStorage_Delete(t *testing.T) {
	fs := newStorage(t)
	img := fakeResource{kind: cloud.KindImage, id: "ami-1"}
	if err := fs.Save(img); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := fs.Delete(img.Ref().String()); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := fs.Get(img.Ref().String()); !errors.Is(err, cloud.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := fs.Delete(img.Ref().String()); err != nil {
		t.Errorf("deleting an unknown ref should not fail: %v", err)
	}
}

func TestFileStorage_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resources.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	fs := storage.NewFileStorage(path)
	if _, err := fs.List(""); err == nil {
		t.Error("expected error reading a corrupt ledger")
	}
}
