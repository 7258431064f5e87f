package testsupport

import (
	"context"
	"testing"

	"grantfeed/internal/catalogue"
	"grantfeed/internal/config"
)

// MustOpenStore opens a catalogue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalogue.Store {
	t.Helper()

	store, err := catalogue.Open(cfg)
	if err != nil {
		t.Fatalf("catalogue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRelease inserts a discovered release and returns the stored row.
func NewRelease(t testing.TB, store *catalogue.Store, name, url string) *catalogue.Release {
	t.Helper()

	ctx := context.Background()
	if _, err := store.InsertReleaseIfAbsent(ctx, name, url); err != nil {
		t.Fatalf("InsertReleaseIfAbsent: %v", err)
	}
	release, err := store.ReleaseByName(ctx, name)
	if err != nil || release == nil {
		t.Fatalf("ReleaseByName(%q): %v", name, err)
	}
	return release
}

// AdvanceTo walks a release forward step by step until it reaches status.
func AdvanceTo(t testing.TB, store *catalogue.Store, release *catalogue.Release, status catalogue.ReleaseStatus) *catalogue.Release {
	t.Helper()

	current := release
	reached := false
	for _, step := range catalogue.AllReleaseStatuses() {
		if !reached {
			reached = step == current.Status
			if step == status {
				break
			}
			continue
		}
		next, err := store.AdvanceRelease(context.Background(), current.ID, step)
		if err != nil {
			t.Fatalf("AdvanceRelease(%s): %v", step, err)
		}
		current = next
		if step == status {
			break
		}
	}
	return current
}
