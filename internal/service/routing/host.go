package routing

import (
	"sync"

	"voice-translation-viewer/internal/service/session"
)

// HostResolver picks the session host: the first participant observed with
// publish permission. Later observations never replace it. When several
// participants gain the permission concurrently, the one whose event is
// observed first wins.
type HostResolver struct {
	mu            sync.RWMutex
	localIdentity string
	agentIdentity string
	host          string
}

// NewHostResolver creates an unresolved resolver.
func NewHostResolver(localIdentity, agentIdentity string) *HostResolver {
	if agentIdentity == "" {
		agentIdentity = DefaultAgentIdentity
	}
	return &HostResolver{localIdentity: localIdentity, agentIdentity: agentIdentity}
}

// Observe records a participant and whether it may publish. It returns true
// when this observation resolved the host. The agent is never the host.
func (h *HostResolver) Observe(identity string, canPublish bool) bool {
	if identity == "" || !canPublish || identity == h.agentIdentity {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.host != "" {
		return false
	}
	h.host = identity
	return true
}

// Host returns the resolved host identity.
func (h *HostResolver) Host() (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.host, h.host != ""
}

// SetLocalIdentity replaces the identity the role is computed for, as when
// the room assigns one different from the configured default.
func (h *HostResolver) SetLocalIdentity(identity string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.localIdentity = identity
}

// Role returns the local participant's role.
func (h *HostResolver) Role() session.Role {
	h.mu.RLock()
	host, local := h.host, h.localIdentity
	h.mu.RUnlock()
	switch {
	case host == "":
		return session.RoleUndetermined
	case host == local:
		return session.RoleHost
	default:
		return session.RoleListener
	}
}
