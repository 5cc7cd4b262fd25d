// Package routing decides, for every remote audio source, whether the local
// participant should hear it.
//
// The policy is level-triggered: each trigger recomputes the whole table from
// the current role and source set, so missed or reordered triggers converge
// on the next one.
//
//	role      source identity   verdict
//	host      any               muted
//	listener  agent             audible
//	listener  other             muted
//	(unknown) any               muted
package routing

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voice-translation-viewer/internal/observability/logging"
	"voice-translation-viewer/internal/observability/metrics"
	"voice-translation-viewer/internal/service/session"
)

// DefaultAgentIdentity is the reserved identity of the synthesized voice.
const DefaultAgentIdentity = "agent"

// Verdict is the routing decision for one source.
type Verdict int

const (
	// Muted - gain 0, sinks muted.
	Muted Verdict = iota
	// Audible - gain 1, sinks unmuted.
	Audible
)

// String returns the string representation of the verdict.
func (v Verdict) String() string {
	switch v {
	case Muted:
		return "MUTED"
	case Audible:
		return "AUDIBLE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", v)
	}
}

// MarshalText renders the verdict the same way String does.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText parses the form produced by MarshalText.
func (v *Verdict) UnmarshalText(b []byte) error {
	switch string(b) {
	case "MUTED":
		*v = Muted
	case "AUDIBLE":
		*v = Audible
	default:
		return fmt.Errorf("routing: unknown verdict %q", b)
	}
	return nil
}

// Volume is the output gain for the verdict.
func (v Verdict) Volume() float64 {
	if v == Audible {
		return 1
	}
	return 0
}

// Decide applies the decision table. An undetermined role mutes everything
// until the host is known.
func Decide(role session.Role, identity, agentIdentity string) Verdict {
	if role == session.RoleListener && identity == agentIdentity {
		return Audible
	}
	return Muted
}

// Trigger names the event that caused an evaluation.
type Trigger string

const (
	TriggerHostResolved      Trigger = "host_resolved"
	TriggerTrackPublished    Trigger = "track_published"
	TriggerTrackSubscribed   Trigger = "track_subscribed"
	TriggerTrackUnsubscribed Trigger = "track_unsubscribed"
	TriggerParticipantLeft   Trigger = "participant_left"
	TriggerReevaluate        Trigger = "reevaluate"
)

// Sink is a playback endpoint attached to a source.
type Sink interface {
	SetMuted(muted bool)
}

// Source is one remote audio source as seen by the policy.
type Source interface {
	// Identity is the owning participant's identity.
	Identity() string
	// SID identifies the source within the session.
	SID() string
	// Ready reports whether a playable track is attached.
	Ready() bool
	SetVolume(volume float64)
	Sinks() []Sink
}

// Decision is one row of the routing table.
type Decision struct {
	Identity string  `json:"identity"`
	SID      string  `json:"sid"`
	Verdict  Verdict `json:"verdict"`
	Volume   float64 `json:"volume"`
	// Deferred is set when the source had no track; it is retried on the
	// next trigger.
	Deferred bool `json:"deferred"`
}

// Table is the full set of decisions, ordered by identity then SID.
type Table struct {
	Trigger   Trigger      `json:"trigger"`
	Role      session.Role `json:"role"`
	Decisions []Decision   `json:"decisions"`
}

// Lookup finds the decision for a source.
func (t Table) Lookup(identity, sid string) (Decision, bool) {
	for _, d := range t.Decisions {
		if d.Identity == identity && d.SID == sid {
			return d, true
		}
	}
	return Decision{}, false
}

// Pending returns how many decisions were deferred.
func (t Table) Pending() int {
	n := 0
	for _, d := range t.Decisions {
		if d.Deferred {
			n++
		}
	}
	return n
}

// Policy evaluates and applies routing tables. Evaluations are serialized.
type Policy struct {
	mu            sync.Mutex
	agentIdentity string
	localIdentity string
	last          Table
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

// Option configures a Policy.
type Option func(*Policy)

// WithAgentIdentity overrides the reserved agent identity.
func WithAgentIdentity(identity string) Option {
	return func(p *Policy) {
		if identity != "" {
			p.agentIdentity = identity
		}
	}
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Policy) { p.metrics = m }
}

// NewPolicy creates a policy for the local participant. Sources owned by
// localIdentity are never touched.
func NewPolicy(localIdentity string, opts ...Option) *Policy {
	p := &Policy{
		agentIdentity: DefaultAgentIdentity,
		localIdentity: localIdentity,
		metrics:       metrics.DefaultMetrics,
		logger:        logging.WithComponent("routing"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetLocalIdentity replaces the identity whose sources are skipped.
func (p *Policy) SetLocalIdentity(identity string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.localIdentity = identity
}

// AgentIdentity returns the identity treated as the synthesized voice.
func (p *Policy) AgentIdentity() string {
	return p.agentIdentity
}

// Evaluate recomputes the table for every source and applies each ready
// decision: gain first, then the mute flag on every attached sink. The
// result does not depend on the order of sources.
func (p *Policy) Evaluate(trigger Trigger, role session.Role, sources []Source) Table {
	start := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	ordered := make([]Source, 0, len(sources))
	for _, src := range sources {
		if src == nil || src.Identity() == p.localIdentity {
			continue
		}
		ordered = append(ordered, src)
	}
	slices.SortFunc(ordered, func(a, b Source) int {
		return cmp.Or(cmp.Compare(a.Identity(), b.Identity()), cmp.Compare(a.SID(), b.SID()))
	})

	table := Table{Trigger: trigger, Role: role, Decisions: make([]Decision, 0, len(ordered))}
	for _, src := range ordered {
		verdict := Decide(role, src.Identity(), p.agentIdentity)
		d := Decision{
			Identity: src.Identity(),
			SID:      src.SID(),
			Verdict:  verdict,
			Volume:   verdict.Volume(),
		}
		if !src.Ready() {
			d.Deferred = true
			p.metrics.RecordRoutingDeferred()
			p.logger.Debug().
				Str("participant", d.Identity).
				Str("sid", d.SID).
				Msg("Source has no track yet, decision deferred")
		} else {
			apply(src, verdict)
			p.metrics.RecordRoutingDecision(verdict.String())
		}
		table.Decisions = append(table.Decisions, d)
	}

	p.last = table
	p.metrics.RecordRoutingEvaluation(string(trigger), time.Since(start).Seconds())
	p.logger.Debug().
		Str("trigger", string(trigger)).
		Str("role", string(role)).
		Int("sources", len(table.Decisions)).
		Int("deferred", table.Pending()).
		Msg("Routing table evaluated")
	return table
}

// Last returns the most recently evaluated table.
func (p *Policy) Last() Table {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func apply(src Source, verdict Verdict) {
	src.SetVolume(verdict.Volume())
	muted := verdict == Muted
	for _, sink := range src.Sinks() {
		sink.SetMuted(muted)
	}
}
