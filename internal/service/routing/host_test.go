package routing

import (
	"testing"

	"voice-translation-viewer/internal/service/session"
)

func TestHostResolver_Unresolved(t *testing.T) {
	h := NewHostResolver("me", "")

	if _, ok := h.Host(); ok {
		t.Error("expected no host")
	}
	if h.Role() != session.RoleUndetermined {
		t.Errorf("expected undetermined role, got %q", h.Role())
	}
}

func TestHostResolver_FirstPublisherWins(t *testing.T) {
	h := NewHostResolver("me", "")

	if h.Observe("viewer", false) {
		t.Error("expected participant without publish permission to be ignored")
	}
	if h.Observe("agent", true) {
		t.Error("expected agent never to become host")
	}
	if !h.Observe("alice", true) {
		t.Error("expected alice to resolve the host")
	}
	if h.Observe("bob", true) {
		t.Error("expected later publisher not to replace the host")
	}

	if host, _ := h.Host(); host != "alice" {
		t.Errorf("expected host alice, got %s", host)
	}
	if h.Role() != session.RoleListener {
		t.Errorf("expected listener role, got %q", h.Role())
	}
}

func TestHostResolver_LocalHost(t *testing.T) {
	h := NewHostResolver("me", "agent")

	h.Observe("me", true)

	if h.Role() != session.RoleHost {
		t.Errorf("expected host role, got %q", h.Role())
	}
}

func TestHostResolver_SetLocalIdentity(t *testing.T) {
	h := NewHostResolver("viewer", "agent")
	h.Observe("host-7", true)

	if h.Role() != session.RoleListener {
		t.Errorf("expected listener before the identity is known, got %q", h.Role())
	}
	h.SetLocalIdentity("host-7")
	if h.Role() != session.RoleHost {
		t.Errorf("expected host role after identity update, got %q", h.Role())
	}
}
