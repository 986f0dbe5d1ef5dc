// Package testutil provides shared test helpers for setting up stores and repositories.
package testutil

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/notepad/internal/repository"
	"github.com/starford/notepad/internal/store"
)

// TestStore creates a temporary SQLite store that is automatically cleaned up.
func TestStore(t *testing.T, opts ...store.Option) *store.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "notepad-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	s, err := store.OpenSQLite(dbFile.Name(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Clock returns a deterministic clock that advances one millisecond per call.
func Clock() func() time.Time {
	var n atomic.Int64
	base := time.UnixMilli(1_700_000_000_000)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Millisecond)
	}
}

// TestRepo creates a repository over a temporary SQLite store with a
// deterministic clock, so list ordering follows operation order.
func TestRepo(t *testing.T, opts ...repository.Option) (*repository.Repository, *store.SQLite) {
	t.Helper()
	s := TestStore(t)
	opts = append([]repository.Option{repository.WithClock(Clock())}, opts...)
	return repository.New(s, opts...), s
}
