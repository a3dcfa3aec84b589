// Package cloudtest holds helpers for tests that create real resources
// through a cloud.Provider.
package cloudtest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/01000101/cloudbridge/pkg/cloud"

	uuid "github.com/satori/go.uuid"
)

// CleanupTimeout bounds each cleanup registered through DeleteOnCleanup
var CleanupTimeout = 5 * time.Minute

// CleanupAction runs body and then cleanup on every exit path, including a
// panic or t.FailNow inside body. The body's error wins over the cleanup's.
func CleanupAction(body func() error, cleanup func() error) (err error) {
	defer func() {
		if cerr := cleanup(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return body()
}

// Deletable is any handle that can delete itself
type Deletable interface {
	cloud.Resource
	Delete(ctx context.Context) error
}

// DeleteOnCleanup deletes r when the test and its subtests finish. A resource
// the test already deleted is not an error.
func DeleteOnCleanup(t testing.TB, r Deletable) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), CleanupTimeout)
		defer cancel()
		if err := r.Delete(ctx); err != nil && !errors.Is(err, cloud.ErrNotFound) {
			t.Errorf("cleanup of %s failed: %v", r, err)
		}
	})
}

// UniqueName returns prefix followed by a random suffix, safe to use as a
// resource name on every backend.
func UniqueName(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewV4().String(), "-", "")[:10]
	return prefix + suffix
}
