package viewer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voice-translation-viewer/internal/models"
	"voice-translation-viewer/internal/service/routing"
	"voice-translation-viewer/internal/service/session"
	"voice-translation-viewer/internal/service/volume"
)

type fakeSink struct {
	mu    sync.Mutex
	muted bool
}

func (s *fakeSink) SetMuted(m bool) {
	s.mu.Lock()
	s.muted = m
	s.mu.Unlock()
}

type fakeSource struct {
	identity string
	sid      string
	sink     *fakeSink

	mu     sync.Mutex
	volume float64
}

func newSource(identity, sid string) *fakeSource {
	return &fakeSource{identity: identity, sid: sid, sink: &fakeSink{}, volume: -1}
}

func (s *fakeSource) Identity() string      { return s.identity }
func (s *fakeSource) SID() string           { return s.sid }
func (s *fakeSource) Ready() bool           { return true }
func (s *fakeSource) Sinks() []routing.Sink { return []routing.Sink{s.sink} }
func (s *fakeSource) SetVolume(v float64)   { s.mu.Lock(); s.volume = v; s.mu.Unlock() }
func (s *fakeSource) Volume() float64       { s.mu.Lock(); defer s.mu.Unlock(); return s.volume }

type fakeAttributes struct {
	mu   sync.Mutex
	sets []map[string]string
}

func (f *fakeAttributes) Publish(attrs map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, attrs)
}

func (f *fakeAttributes) last() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sets) == 0 {
		return nil
	}
	return f.sets[len(f.sets)-1]
}

type fakeTranscriber struct {
	calls chan bool
}

func (f *fakeTranscriber) ToggleTranscription(ctx context.Context, enabled bool) error {
	f.calls <- enabled
	return nil
}

type fakeExporter struct {
	batches chan []models.Segment
}

func (f *fakeExporter) PublishSegments(ctx context.Context, key string, batch []models.Segment) error {
	f.batches <- batch
	return nil
}

func start(t *testing.T, cfg Config, deps Deps) (*Controller, context.Context) {
	t.Helper()
	c := New(cfg, deps)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c, ctx
}

func TestController_EndToEnd(t *testing.T) {
	c, ctx := start(t, Config{LocalIdentity: "me"}, Deps{})

	c.Ingest(ctx, []models.Segment{{ID: "1", Text: "hi", Language: "", ParticipantID: "p1", FirstReceivedTime: 100}})
	if err := c.Sync(ctx); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	v := c.Views()
	if len(v.Transcript.Entries) != 1 || v.Transcript.Entries[0].Language != "en" {
		t.Errorf("expected one 'en' transcript entry, got %+v", v.Transcript.Entries)
	}
	texts := v.Captions.Texts()
	if len(texts) != 1 || texts[0] != "hi" {
		t.Errorf("expected captions [hi], got %v", texts)
	}
	if len(v.Speakers) != 1 || v.Speakers[0].Identity != "p1" || v.Speakers[0].Text != "hi" {
		t.Errorf("expected p1 -> hi, got %+v", v.Speakers)
	}
}

func TestController_RoutingConvergesRegardlessOfOrder(t *testing.T) {
	orders := map[string]func(c *Controller, ctx context.Context, agent, alice *fakeSource){
		"host first": func(c *Controller, ctx context.Context, agent, alice *fakeSource) {
			c.ObserveParticipant(ctx, Participant{Identity: "alice", CanPublish: true})
			c.AddSource(ctx, agent)
			c.AddSource(ctx, alice)
		},
		"tracks first": func(c *Controller, ctx context.Context, agent, alice *fakeSource) {
			c.AddSource(ctx, alice)
			c.AddSource(ctx, agent)
			c.ObserveParticipant(ctx, Participant{Identity: "alice", CanPublish: true})
		},
	}

	for name, apply := range orders {
		t.Run(name, func(t *testing.T) {
			c, ctx := start(t, Config{LocalIdentity: "me"}, Deps{})
			agent := newSource("agent", "TR_agent")
			alice := newSource("alice", "TR_alice")

			apply(c, ctx, agent, alice)
			c.Sync(ctx)

			if c.Session().Role != session.RoleListener {
				t.Errorf("expected listener role, got %q", c.Session().Role)
			}
			if agent.Volume() != 1 || agent.sink.muted {
				t.Errorf("expected agent audible, got volume=%v muted=%v", agent.Volume(), agent.sink.muted)
			}
			if alice.Volume() != 0 || !alice.sink.muted {
				t.Errorf("expected alice muted, got volume=%v muted=%v", alice.Volume(), alice.sink.muted)
			}
		})
	}
}

func TestController_HostHearsNothing(t *testing.T) {
	c, ctx := start(t, Config{LocalIdentity: "me"}, Deps{})
	agent := newSource("agent", "TR_agent")

	c.AddSource(ctx, agent)
	c.ObserveParticipant(ctx, Participant{Identity: "me", CanPublish: true})
	c.Sync(ctx)

	if c.Session().Role != session.RoleHost {
		t.Errorf("expected host role, got %q", c.Session().Role)
	}
	if agent.Volume() != 0 {
		t.Errorf("expected agent muted for host, got %v", agent.Volume())
	}
}

func TestController_ParticipantLeftRemovesSources(t *testing.T) {
	c, ctx := start(t, Config{LocalIdentity: "me"}, Deps{})

	c.AddSource(ctx, newSource("alice", "TR_1"))
	c.AddSource(ctx, newSource("bob", "TR_2"))
	c.Ingest(ctx, []models.Segment{{ID: "1", Text: "bye", ParticipantID: "alice"}})
	c.ParticipantLeft(ctx, "alice")
	c.Sync(ctx)

	table := c.Routing()
	if len(table.Decisions) != 1 || table.Decisions[0].Identity != "bob" {
		t.Errorf("expected only bob in routing table, got %+v", table.Decisions)
	}
	if table.Trigger != routing.TriggerParticipantLeft {
		t.Errorf("expected trigger %s, got %s", routing.TriggerParticipantLeft, table.Trigger)
	}
	if len(c.Views().Speakers) != 0 {
		t.Errorf("expected alice caption forgotten, got %+v", c.Views().Speakers)
	}
}

func TestController_ActionsPublishAttributesAndToggle(t *testing.T) {
	attrs := &fakeAttributes{}
	tr := &fakeTranscriber{calls: make(chan bool, 1)}
	c, ctx := start(t, Config{LocalIdentity: "me"}, Deps{Attributes: attrs, Transcriber: tr})

	st, err := c.Dispatch(ctx, session.SetMode{Mode: session.ModeSingle})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Mode != session.ModeSingle {
		t.Errorf("expected single mode, got %s", st.Mode)
	}
	if attrs.last()[session.AttrMode] != "single" {
		t.Errorf("expected mode attribute 'single', got %v", attrs.last())
	}

	if _, err := c.Dispatch(ctx, session.ToggleCaptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case enabled := <-tr.calls:
		if enabled {
			t.Error("expected transcription toggled off")
		}
	case <-time.After(time.Second):
		t.Fatal("expected toggle_transcription call")
	}
}

func TestController_ExportsAcceptedSegments(t *testing.T) {
	exp := &fakeExporter{batches: make(chan []models.Segment, 1)}
	c, ctx := start(t, Config{LocalIdentity: "me", RoomName: "room"}, Deps{Exporter: exp})

	c.Ingest(ctx, []models.Segment{
		{ID: "1", Text: "kept"},
		{ID: "2", Text: "interim", IsFinal: models.Bool(false)},
	})

	select {
	case batch := <-exp.batches:
		if len(batch) != 1 || batch[0].ID != "1" || batch[0].Language != "en" {
			t.Errorf("expected only the accepted segment with resolved language, got %+v", batch)
		}
	case <-time.After(time.Second):
		t.Fatal("expected exported batch")
	}
}

func TestController_SubscribersSeeUpdates(t *testing.T) {
	c, ctx := start(t, Config{LocalIdentity: "me"}, Deps{})
	got := make(chan Views, 8)
	sub := c.Subscribe(func(v Views) { got <- v })
	defer sub.Unsubscribe()

	c.SetLanguages(ctx, []models.Language{{Code: "en", Name: "English"}})

	select {
	case v := <-got:
		if len(v.Languages) != 1 || v.Languages[0].Code != "en" {
			t.Errorf("expected languages in view, got %+v", v.Languages)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a view update")
	}
}

func TestController_LevelsAppearInSpeakers(t *testing.T) {
	levels := volume.NewGroup(0.5, time.Millisecond)
	c, ctx := start(t, Config{LocalIdentity: "me"}, Deps{Levels: levels})

	c.ObserveParticipant(ctx, Participant{Identity: "alice", Level: func() float64 { return 1 }})
	c.Sync(ctx)
	time.Sleep(20 * time.Millisecond)

	sp := c.Views().Speakers
	if len(sp) != 1 || sp[0].Identity != "alice" || sp[0].Level <= 0 {
		t.Errorf("expected alice with a level, got %+v", sp)
	}
}

func TestController_StoppedRejectsEvents(t *testing.T) {
	c := New(Config{LocalIdentity: "me"}, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	err := c.Ingest(context.Background(), []models.Segment{{ID: "1"}})
	if !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestController_AssignedIdentityHoldsHostToken(t *testing.T) {
	c, ctx := start(t, Config{LocalIdentity: "viewer"}, Deps{})
	agent := newSource("agent", "TR_agent")

	c.SetLocalIdentity(ctx, "me")
	c.ObserveParticipant(ctx, Participant{Identity: "me", CanPublish: true})
	c.ObserveParticipant(ctx, Participant{Identity: "alice", CanPublish: true})
	c.AddSource(ctx, agent)
	c.Sync(ctx)

	if c.Session().Role != session.RoleHost {
		t.Errorf("expected host role, got %q", c.Session().Role)
	}
	if v := c.Views(); v.Host != "me" {
		t.Errorf("expected host me, got %q", v.Host)
	}
	if agent.Volume() != 0 || !agent.sink.muted {
		t.Errorf("expected agent muted for the host, got volume=%v muted=%v", agent.Volume(), agent.sink.muted)
	}
}

func TestController_LateIdentityUpdateFlipsRole(t *testing.T) {
	c, ctx := start(t, Config{LocalIdentity: "viewer"}, Deps{})
	agent := newSource("agent", "TR_agent")

	c.ObserveParticipant(ctx, Participant{Identity: "me", CanPublish: true})
	c.AddSource(ctx, agent)
	c.Sync(ctx)
	if agent.Volume() != 1 {
		t.Fatalf("expected agent audible to a listener, got %v", agent.Volume())
	}

	c.SetLocalIdentity(ctx, "me")
	c.Sync(ctx)

	if c.Session().Role != session.RoleHost {
		t.Errorf("expected host role, got %q", c.Session().Role)
	}
	if agent.Volume() != 0 {
		t.Errorf("expected agent muted after identity update, got %v", agent.Volume())
	}
}

type pendingSource struct {
	*fakeSource
	ready bool
}

func (s *pendingSource) Ready() bool { return s.ready }

func TestController_PublishedSourceDeferredUntilReady(t *testing.T) {
	c, ctx := start(t, Config{LocalIdentity: "me"}, Deps{})
	agent := &pendingSource{fakeSource: newSource("agent", "TR_agent")}

	c.ObserveParticipant(ctx, Participant{Identity: "alice", CanPublish: true})
	c.AddSource(ctx, agent)
	c.Sync(ctx)

	table := c.Routing()
	if table.Trigger != routing.TriggerTrackPublished || table.Pending() != 1 {
		t.Errorf("expected one deferred decision on track_published, got %+v", table)
	}
	if agent.Volume() != -1 {
		t.Errorf("expected no gain applied yet, got %v", agent.Volume())
	}

	agent.ready = true
	c.AddSource(ctx, agent)
	c.Sync(ctx)

	if c.Routing().Pending() != 0 || agent.Volume() != 1 {
		t.Errorf("expected decision applied after subscription, got volume=%v table=%+v", agent.Volume(), c.Routing())
	}
}

func TestController_ReobservingKeepsLevel(t *testing.T) {
	levels := volume.NewGroup(0.5, time.Millisecond)
	c, ctx := start(t, Config{LocalIdentity: "me"}, Deps{Levels: levels})
	loud := func() float64 { return 1 }

	c.ObserveParticipant(ctx, Participant{Identity: "alice", Level: loud})
	c.Sync(ctx)
	time.Sleep(20 * time.Millisecond)
	before := levels.Levels()["alice"]

	c.ObserveParticipant(ctx, Participant{Identity: "alice", CanPublish: true, Level: loud})
	c.Sync(ctx)

	if after := levels.Levels()["alice"]; after < before {
		t.Errorf("expected level kept at %v or above, got %v", before, after)
	}
}

type blockingTranscriber struct {
	started  chan struct{}
	finished chan struct{}
}

func (b *blockingTranscriber) ToggleTranscription(ctx context.Context, enabled bool) error {
	close(b.started)
	<-ctx.Done()
	close(b.finished)
	return ctx.Err()
}

func TestController_RunWaitsForToggle(t *testing.T) {
	tr := &blockingTranscriber{started: make(chan struct{}), finished: make(chan struct{})}
	c := New(Config{LocalIdentity: "me"}, Deps{Transcriber: tr})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	if _, err := c.Dispatch(ctx, session.ToggleCaptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-tr.started
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return once the toggle call is cancelled")
	}
	select {
	case <-tr.finished:
	default:
		t.Error("expected toggle call finished before Run returned")
	}
}
