package testsupport

import (
	"testing"

	"taxosort/internal/config"
	"taxosort/internal/runstore"
)

// MustOpenRunStore opens the run history for cfg and registers cleanup.
func MustOpenRunStore(t testing.TB, cfg *config.Config) *runstore.Store {
	t.Helper()

	store, err := runstore.Open(cfg.RunsDBPath())
	if err != nil {
		t.Fatalf("runstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
