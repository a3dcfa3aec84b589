package cloudtest_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/01000101/cloudbridge/pkg/cloudtest"
)

func TestCleanupAction(t *testing.T) {
	bodyErr := errors.New("body failed")
	cleanupErr := errors.New("cleanup failed")

	tests := []struct {
		name    string
		body    error
		cleanup error
		want    error
	}{
		{name: "both succeed"},
		{name: "body fails", body: bodyErr, want: bodyErr},
		{name: "cleanup fails", cleanup: cleanupErr, want: cleanupErr},
		{name: "body error wins", body: bodyErr, cleanup: cleanupErr, want: bodyErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleaned := false
			err := cloudtest.CleanupAction(
				func() error { return tt.body },
				func() error { cleaned = true; return tt.cleanup },
			)
			if !cleaned {
				t.Error("cleanup did not run")
			}
			if !errors.Is(err, tt.want) || (tt.want == nil && err != nil) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCleanupAction_Panic(t *testing.T) {
	cleaned := false
	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic was swallowed")
			}
		}()
		_ = cloudtest.CleanupAction(
			func() error { panic("boom") },
			func() error { cleaned = true; return nil },
		)
	}()
	if !cleaned {
		t.Error("cleanup did not run after a panic")
	}
}

func TestUniqueName(t *testing.T) {
	a, b := cloudtest.UniqueName("cbtest"), cloudtest.UniqueName("cbtest")
	if a == b {
		t.Errorf("names are not unique: %s", a)
	}
	if !strings.HasPrefix(a, "cbtest") || len(a) != len("cbtest")+10 {
		t.Errorf("unexpected name %q", a)
	}
}
