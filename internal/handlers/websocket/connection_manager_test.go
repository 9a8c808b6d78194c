package websocket

import (
	"testing"
	"time"

	"github.com/xpanvictor/voxcap/pkg/Logger"
	memoryregistry "github.com/xpanvictor/voxcap/pkg/io/registry/memoryRegistry"
)

func TestSweepReleasesAbandonedReservations(t *testing.T) {
	reg := memoryregistry.New(2)
	cm := NewConnectionManager(Logger.NewNop(), reg, nil, time.Minute)
	defer cm.Close()

	id, err := cm.Reserve("", "127.0.0.1")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if n := cm.SweepExpired(time.Now()); n != 0 {
		t.Fatalf("fresh reservation swept: %d", n)
	}
	if n := cm.SweepExpired(time.Now().Add(2 * time.Minute)); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if _, ok := reg.Get(id); ok {
		t.Error("stale reservation still registered")
	}
}
