package realtime

import (
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry(testLogger())

	c := NewClient("profile-1", "sess-1", 8)
	r.Register(c)

	if got := r.Lookup("profile-1"); got != c {
		t.Fatalf("expected lookup to return registered client, got %v", got)
	}
	if !r.IsOnline("profile-1") {
		t.Fatalf("expected profile-1 online")
	}
	if r.IsOnline("profile-2") {
		t.Fatalf("expected profile-2 offline")
	}
	if n := r.Online(); n != 1 {
		t.Fatalf("expected 1 online, got %d", n)
	}
}

func TestRegistry_ReconnectLastWriterWins(t *testing.T) {
	r := NewRegistry(testLogger())

	first := NewClient("profile-1", "sess-1", 8)
	second := NewClient("profile-1", "sess-1", 8)

	r.Register(first)
	r.Register(second)

	if got := r.Lookup("profile-1"); got != second {
		t.Fatalf("expected newest connection to hold the slot")
	}
	if n := r.Online(); n != 1 {
		t.Fatalf("expected a single presence entry, got %d", n)
	}
}

func TestRegistry_StaleDisconnectIsNoOp(t *testing.T) {
	r := NewRegistry(testLogger())

	first := NewClient("profile-1", "sess-1", 8)
	second := NewClient("profile-1", "sess-1", 8)

	r.Register(first)
	r.Register(second)

	// The superseded connection finally disconnects. It must not evict the
	// newer connection's entry.
	if removed := r.Unregister(first); removed {
		t.Fatalf("expected unregister of superseded connection to be a no-op")
	}
	if got := r.Lookup("profile-1"); got != second {
		t.Fatalf("expected newest connection to survive the stale disconnect")
	}

	if removed := r.Unregister(second); !removed {
		t.Fatalf("expected unregister of current connection to remove the entry")
	}
	if r.IsOnline("profile-1") {
		t.Fatalf("expected profile-1 offline after unregister")
	}
}

func TestRegistry_UnregisterUnknownConnection(t *testing.T) {
	r := NewRegistry(testLogger())

	c := NewClient("profile-1", "sess-1", 8)
	if removed := r.Unregister(c); removed {
		t.Fatalf("expected unregister of unknown connection to report false")
	}
	if removed := r.Unregister(nil); removed {
		t.Fatalf("expected unregister of nil client to report false")
	}
}
