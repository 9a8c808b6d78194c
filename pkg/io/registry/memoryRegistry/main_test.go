package memoryregistry

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxcap/pkg/io/registry"
)

func TestAcquireRespectsLimit(t *testing.T) {
	r := New(1)
	first := registry.Session{ID: uuid.New(), Remote: "10.0.0.1"}

	if err := r.Acquire(first); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := r.Acquire(first); !errors.Is(err, registry.ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
	if err := r.Acquire(registry.Session{ID: uuid.New()}); !errors.Is(err, registry.ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}

	if !r.Release(first.ID) {
		t.Error("Release reported missing session")
	}
	if r.Release(first.ID) {
		t.Error("second Release should report false")
	}
	if err := r.Acquire(registry.Session{ID: uuid.New()}); err != nil {
		t.Errorf("slot should be free again: %v", err)
	}
}

func TestStaleSessions(t *testing.T) {
	r := New(0)
	old := time.Now().Add(-time.Hour)
	a := registry.Session{ID: uuid.New(), OpenedAt: old, LastSeen: old}
	b := registry.Session{ID: uuid.New()}
	_ = r.Acquire(a)
	_ = r.Acquire(b)

	stale := r.Stale(time.Now().Add(-time.Minute))
	if len(stale) != 1 || stale[0].ID != a.ID {
		t.Fatalf("stale = %+v", stale)
	}

	if err := r.Touch(a.ID, time.Now()); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if stale := r.Stale(time.Now().Add(-time.Minute)); len(stale) != 0 {
		t.Errorf("touched session still stale: %+v", stale)
	}
	if err := r.Touch(uuid.New(), time.Now()); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	list := r.List()
	if len(list) != 2 || list[0].ID != a.ID || r.Len() != 2 {
		t.Errorf("list = %+v", list)
	}
}
