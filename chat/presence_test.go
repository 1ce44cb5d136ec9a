package chat

import "testing"

func TestPresenceBindAndRoute(t *testing.T) {
	p := NewPresence()

	if prev := p.Bind("alice", "s1"); prev != "" {
		t.Errorf("expected no superseded session, got %q", prev)
	}

	route, ok := p.RouteOf("alice")
	if !ok || route != "s1" {
		t.Fatalf("expected route s1, got %q (ok=%v)", route, ok)
	}

	if !p.Online("alice") {
		t.Error("alice should be online")
	}
	if p.Online("bob") {
		t.Error("bob should be offline")
	}
	if p.Count() != 1 {
		t.Errorf("expected 1 online user, got %d", p.Count())
	}
}

func TestPresenceLastBindWins(t *testing.T) {
	p := NewPresence()

	p.Bind("alice", "s1")
	prev := p.Bind("alice", "s2")
	if prev != "s1" {
		t.Fatalf("expected superseded session s1, got %q", prev)
	}

	route, ok := p.RouteOf("alice")
	if !ok || route != "s2" {
		t.Fatalf("expected route s2, got %q (ok=%v)", route, ok)
	}
	if p.Count() != 1 {
		t.Errorf("expected 1 online user after rebind, got %d", p.Count())
	}
}

func TestPresenceStaleUnbind(t *testing.T) {
	p := NewPresence()

	p.Bind("alice", "s1")
	p.Bind("alice", "s2")

	// The disconnect of the superseded session must not clobber the newer
	// binding.
	if _, ok := p.Unbind("s1"); ok {
		t.Error("stale session should not unbind")
	}

	route, ok := p.RouteOf("alice")
	if !ok || route != "s2" {
		t.Fatalf("expected route s2 to survive stale unbind, got %q (ok=%v)", route, ok)
	}

	userID, ok := p.Unbind("s2")
	if !ok || userID != "alice" {
		t.Fatalf("expected current unbind to report alice, got %q (ok=%v)", userID, ok)
	}
	if p.Online("alice") {
		t.Error("alice should be offline after unbind")
	}
}

func TestPresenceUnbindUnknownSession(t *testing.T) {
	p := NewPresence()

	if _, ok := p.Unbind("nope"); ok {
		t.Error("unknown session should not unbind")
	}
}
