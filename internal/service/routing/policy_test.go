package routing

import (
	"slices"
	"testing"

	"voice-translation-viewer/internal/service/session"
)

type fakeSink struct {
	muted bool
	calls int
}

func (s *fakeSink) SetMuted(muted bool) {
	s.muted = muted
	s.calls++
}

type fakeSource struct {
	identity string
	sid      string
	ready    bool
	volume   float64
	applied  int
	sinks    []*fakeSink
}

func newSource(identity, sid string, sinks int) *fakeSource {
	s := &fakeSource{identity: identity, sid: sid, ready: true, volume: -1}
	for i := 0; i < sinks; i++ {
		s.sinks = append(s.sinks, &fakeSink{})
	}
	return s
}

func (s *fakeSource) Identity() string { return s.identity }
func (s *fakeSource) SID() string      { return s.sid }
func (s *fakeSource) Ready() bool      { return s.ready }

func (s *fakeSource) SetVolume(v float64) {
	s.volume = v
	s.applied++
}

func (s *fakeSource) Sinks() []Sink {
	out := make([]Sink, len(s.sinks))
	for i, sk := range s.sinks {
		out[i] = sk
	}
	return out
}

func asSources(fs ...*fakeSource) []Source {
	out := make([]Source, len(fs))
	for i, f := range fs {
		out[i] = f
	}
	return out
}

func TestDecide(t *testing.T) {
	tests := []struct {
		role     session.Role
		identity string
		expected Verdict
	}{
		{session.RoleHost, "agent", Muted},
		{session.RoleHost, "alice", Muted},
		{session.RoleListener, "agent", Audible},
		{session.RoleListener, "alice", Muted},
		{session.RoleUndetermined, "agent", Muted},
		{session.RoleUndetermined, "alice", Muted},
	}

	for _, tt := range tests {
		if got := Decide(tt.role, tt.identity, DefaultAgentIdentity); got != tt.expected {
			t.Errorf("Decide(%q, %q) = %v, want %v", tt.role, tt.identity, got, tt.expected)
		}
	}
}

func TestVerdict_String(t *testing.T) {
	if Muted.String() != "MUTED" || Audible.String() != "AUDIBLE" {
		t.Errorf("unexpected verdict names %s, %s", Muted, Audible)
	}
	if Verdict(7).String() != "UNKNOWN(7)" {
		t.Errorf("expected UNKNOWN(7), got %s", Verdict(7))
	}
}

func TestPolicy_HostMutesEverything(t *testing.T) {
	p := NewPolicy("me")
	agent := newSource("agent", "TR_a", 2)
	alice := newSource("alice", "TR_b", 1)

	table := p.Evaluate(TriggerReevaluate, session.RoleHost, asSources(agent, alice))

	for _, d := range table.Decisions {
		if d.Verdict != Muted {
			t.Errorf("expected %s muted for host, got %v", d.Identity, d.Verdict)
		}
	}
	if agent.volume != 0 || alice.volume != 0 {
		t.Errorf("expected gain 0, got agent=%v alice=%v", agent.volume, alice.volume)
	}
	for _, sk := range agent.sinks {
		if !sk.muted {
			t.Error("expected agent sink muted")
		}
	}
}

func TestPolicy_ListenerHearsOnlyAgent(t *testing.T) {
	p := NewPolicy("me")
	agent := newSource("agent", "TR_a", 1)
	alice := newSource("alice", "TR_b", 1)
	bob := newSource("bob", "TR_c", 1)

	table := p.Evaluate(TriggerTrackSubscribed, session.RoleListener, asSources(agent, alice, bob))

	audible := 0
	for _, d := range table.Decisions {
		if d.Verdict == Audible {
			audible++
			if d.Identity != "agent" {
				t.Errorf("expected only agent audible, got %s", d.Identity)
			}
		}
	}
	if audible != 1 {
		t.Errorf("expected 1 audible source, got %d", audible)
	}
	if agent.volume != 1 || agent.sinks[0].muted {
		t.Errorf("expected agent gain 1 and unmuted sink, got %v muted=%v", agent.volume, agent.sinks[0].muted)
	}
	if bob.volume != 0 || !bob.sinks[0].muted {
		t.Errorf("expected bob gain 0 and muted sink, got %v muted=%v", bob.volume, bob.sinks[0].muted)
	}
}

func TestPolicy_OrderIndependent(t *testing.T) {
	p := NewPolicy("me")
	srcs := asSources(
		newSource("carol", "TR_3", 0),
		newSource("agent", "TR_1", 0),
		newSource("alice", "TR_2", 0),
		newSource("agent", "TR_0", 0),
	)

	forward := p.Evaluate(TriggerReevaluate, session.RoleListener, srcs)
	reversed := slices.Clone(srcs)
	slices.Reverse(reversed)
	backward := p.Evaluate(TriggerReevaluate, session.RoleListener, reversed)

	if !slices.Equal(forward.Decisions, backward.Decisions) {
		t.Errorf("expected identical decisions, got %+v and %+v", forward.Decisions, backward.Decisions)
	}
	if forward.Decisions[0].Identity != "agent" || forward.Decisions[0].SID != "TR_0" {
		t.Errorf("expected sorted table, got %+v", forward.Decisions)
	}
}

func TestPolicy_DeferredUntilReady(t *testing.T) {
	p := NewPolicy("me")
	agent := newSource("agent", "TR_a", 1)
	agent.ready = false

	table := p.Evaluate(TriggerTrackSubscribed, session.RoleListener, asSources(agent))

	if table.Pending() != 1 {
		t.Errorf("expected 1 deferred decision, got %d", table.Pending())
	}
	if agent.applied != 0 || agent.sinks[0].calls != 0 {
		t.Error("expected nothing applied to a source without a track")
	}

	agent.ready = true
	table = p.Evaluate(TriggerReevaluate, session.RoleListener, asSources(agent))

	if table.Pending() != 0 {
		t.Errorf("expected no deferred decisions, got %d", table.Pending())
	}
	if agent.volume != 1 {
		t.Errorf("expected gain 1 after retry, got %v", agent.volume)
	}
}

func TestPolicy_RecomputesOnRoleChange(t *testing.T) {
	p := NewPolicy("me")
	agent := newSource("agent", "TR_a", 1)

	p.Evaluate(TriggerTrackSubscribed, session.RoleUndetermined, asSources(agent))
	if agent.volume != 0 || !agent.sinks[0].muted {
		t.Error("expected agent muted before host resolution")
	}

	p.Evaluate(TriggerHostResolved, session.RoleListener, asSources(agent))
	if agent.volume != 1 || agent.sinks[0].muted {
		t.Error("expected agent audible once listener role is known")
	}

	if d, ok := p.Last().Lookup("agent", "TR_a"); !ok || d.Verdict != Audible {
		t.Errorf("expected last table to hold audible agent, got %+v (ok=%v)", d, ok)
	}
}

func TestPolicy_SkipsLocalAndNilSources(t *testing.T) {
	p := NewPolicy("me")
	self := newSource("me", "TR_self", 1)

	table := p.Evaluate(TriggerReevaluate, session.RoleListener, []Source{self, nil})

	if len(table.Decisions) != 0 {
		t.Errorf("expected empty table, got %+v", table.Decisions)
	}
	if self.applied != 0 {
		t.Error("expected local source untouched")
	}
}

func TestPolicy_SetLocalIdentity(t *testing.T) {
	p := NewPolicy("viewer")
	self := newSource("host-7", "TR_self", 1)

	p.SetLocalIdentity("host-7")
	table := p.Evaluate(TriggerReevaluate, session.RoleHost, asSources(self))

	if len(table.Decisions) != 0 || self.applied != 0 {
		t.Errorf("expected own source skipped after identity update, got %+v", table.Decisions)
	}
}

func TestPolicy_CustomAgentIdentity(t *testing.T) {
	p := NewPolicy("me", WithAgentIdentity("translator"))
	tr := newSource("translator", "TR_t", 0)
	ag := newSource("agent", "TR_a", 0)

	p.Evaluate(TriggerReevaluate, session.RoleListener, asSources(tr, ag))

	if tr.volume != 1 || ag.volume != 0 {
		t.Errorf("expected translator audible and agent muted, got %v and %v", tr.volume, ag.volume)
	}
}

func TestVerdict_TextRoundTrip(t *testing.T) {
	for _, v := range []Verdict{Muted, Audible} {
		b, _ := v.MarshalText()
		var got Verdict
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if got != v {
			t.Errorf("expected %s, got %s", v, got)
		}
	}
	var bad Verdict
	if err := bad.UnmarshalText([]byte("LOUD")); err == nil {
		t.Error("expected error for unknown verdict")
	}
}
