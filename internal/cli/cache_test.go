package cli

import (
	"context"
	"testing"

	"github.com/soldep/soldep/pkg/cache"
	"github.com/soldep/soldep/pkg/fetch"
)

func TestCountEntries(t *testing.T) {
	ctx := context.Background()
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}

	_ = fc.Set(ctx, fetch.ContentNamespace+"@oz/contracts/A.sol", []byte("contract A {}"), 0)
	_ = fc.Set(ctx, fetch.ContentNamespace+"@oz/contracts/B.sol", []byte("contract B {}"), 0)
	_ = fc.Set(ctx, fetch.FailedNamespace+"weird/pkg/X.sol", []byte(`{"code":"UNSUPPORTED_IMPORT"}`), 0)

	content, failed := countEntries(fc)
	if content != 2 {
		t.Errorf("content entries = %d, want 2", content)
	}
	if failed != 1 {
		t.Errorf("failure records = %d, want 1", failed)
	}
}

func TestCountEntries_Empty(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	if content, failed := countEntries(fc); content != 0 || failed != 0 {
		t.Errorf("counts = %d, %d; want 0, 0", content, failed)
	}
}
