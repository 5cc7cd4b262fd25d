// Package viewer wires the segment store, the projectors and the routing
// policy into one session. Every input is serialized through a single event
// loop so each ingest and each routing evaluation runs as one atomic step.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voice-translation-viewer/internal/events"
	"voice-translation-viewer/internal/models"
	"voice-translation-viewer/internal/observability/logging"
	"voice-translation-viewer/internal/service/routing"
	"voice-translation-viewer/internal/service/segment"
	"voice-translation-viewer/internal/service/session"
	"voice-translation-viewer/internal/service/speaker"
	"voice-translation-viewer/internal/service/volume"
)

// ErrStopped is returned when the controller loop is no longer running.
var ErrStopped = errors.New("viewer: controller stopped")

// Transcriber controls whether the agent forwards transcriptions.
type Transcriber interface {
	ToggleTranscription(ctx context.Context, enabled bool) error
}

// AttributeSink receives the attribute set after every session change.
type AttributeSink interface {
	Publish(attrs map[string]string)
}

// Exporter forwards accepted segments outside the process.
type Exporter interface {
	PublishSegments(ctx context.Context, key string, batch []models.Segment) error
}

// Config parameterizes a controller.
type Config struct {
	LocalIdentity string
	AgentIdentity string
	// RoomName keys exported segments.
	RoomName   string
	MaxEntries int
	Initial    session.State
}

// Deps are the optional collaborators. Nil fields are skipped.
type Deps struct {
	Segments    *segment.Store
	Transcriber Transcriber
	Attributes  AttributeSink
	Exporter    Exporter
	Levels      *volume.Group
}

type sourceKey struct {
	identity string
	sid      string
}

// Controller owns one viewer session.
type Controller struct {
	cfg         Config
	maxEntries  int
	segments    *segment.Store
	speakers    *speaker.Index
	sessions    *session.Store
	policy      *routing.Policy
	hosts       *routing.HostResolver
	transcriber Transcriber
	attributes  AttributeSink
	exporter    Exporter
	levels      *volume.Group
	updates     *events.Bus[Views]
	logger      zerolog.Logger

	inbox   chan event
	exports chan []models.Segment
	done    chan struct{}
	running sync.Once

	// loop-owned
	sources map[sourceKey]routing.Source
	tasks   context.Context
	wg      sync.WaitGroup

	mu        sync.RWMutex
	languages []models.Language
}

// New creates a controller. Run must be called to process events.
func New(cfg Config, deps Deps) *Controller {
	if cfg.AgentIdentity == "" {
		cfg.AgentIdentity = routing.DefaultAgentIdentity
	}
	if cfg.Initial == (session.State{}) {
		cfg.Initial = session.Default()
	}
	cfg.Initial.Role = session.RoleUndetermined

	store := deps.Segments
	if store == nil {
		store = segment.NewStore()
	}

	return &Controller{
		cfg:         cfg,
		maxEntries:  cfg.MaxEntries,
		segments:    store,
		speakers:    speaker.NewIndex(speakerFilter(store.LanguageFilter(), cfg.Initial)),
		sessions:    session.NewStore(cfg.Initial),
		policy:      routing.NewPolicy(cfg.LocalIdentity, routing.WithAgentIdentity(cfg.AgentIdentity)),
		hosts:       routing.NewHostResolver(cfg.LocalIdentity, cfg.AgentIdentity),
		transcriber: deps.Transcriber,
		attributes:  deps.Attributes,
		exporter:    deps.Exporter,
		levels:      deps.Levels,
		updates:     events.NewBus[Views](),
		logger:      logging.WithRoom(cfg.RoomName, cfg.LocalIdentity).With().Str("component", "viewer").Logger(),
		inbox:       make(chan event, 256),
		exports:     make(chan []models.Segment, 64),
		done:        make(chan struct{}),
		sources:     map[sourceKey]routing.Source{},
	}
}

// speakerFilter keeps speaker bubbles in the language captions are shown in.
// A store-level filter takes precedence.
func speakerFilter(storeFilter string, st session.State) string {
	if storeFilter != "" {
		return storeFilter
	}
	return st.CaptionsLanguage
}

// Session returns the current session state.
func (c *Controller) Session() session.State {
	return c.sessions.State()
}

// Routing returns the last routing table.
func (c *Controller) Routing() routing.Table {
	return c.policy.Last()
}

// Languages returns the languages advertised by the agent.
func (c *Controller) Languages() []models.Language {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.languages == nil {
		return []models.Language{}
	}
	return append([]models.Language(nil), c.languages...)
}

// Subscribe registers fn for every published view. Release the handle on
// teardown.
func (c *Controller) Subscribe(fn func(Views)) *events.Subscription {
	return c.updates.Subscribe(fn)
}

// Ingest queues a segment batch. Batches are processed in call order.
func (c *Controller) Ingest(ctx context.Context, batch []models.Segment) error {
	if len(batch) == 0 {
		return nil
	}
	return c.enqueue(ctx, batchEvent{segments: batch})
}

// SetLocalIdentity records the identity the room assigned to the local
// participant. Role and source filtering follow it from then on.
func (c *Controller) SetLocalIdentity(ctx context.Context, identity string) error {
	return c.enqueue(ctx, localIdentityEvent{identity: identity})
}

// ObserveParticipant records a participant, local or remote. The first one
// seen with publish permission becomes the host.
func (c *Controller) ObserveParticipant(ctx context.Context, p Participant) error {
	return c.enqueue(ctx, participantEvent{participant: p})
}

// ParticipantLeft drops every source and caption of a participant.
func (c *Controller) ParticipantLeft(ctx context.Context, identity string) error {
	return c.enqueue(ctx, participantLeftEvent{identity: identity})
}

// AddSource registers a remote audio source, or replaces one with the same
// identity and SID, and re-evaluates routing. A source that is not ready yet
// gets a deferred decision until it is added again with its track.
func (c *Controller) AddSource(ctx context.Context, src routing.Source) error {
	return c.enqueue(ctx, sourceAddedEvent{source: src})
}

// RemoveSource unregisters a remote audio source and re-evaluates routing.
func (c *Controller) RemoveSource(ctx context.Context, identity, sid string) error {
	return c.enqueue(ctx, sourceRemovedEvent{identity: identity, sid: sid})
}

// Reevaluate requests a full routing recomputation.
func (c *Controller) Reevaluate(ctx context.Context) error {
	return c.enqueue(ctx, reevaluateEvent{})
}

// SetLanguages records the language list fetched from the agent.
func (c *Controller) SetLanguages(ctx context.Context, langs []models.Language) error {
	return c.enqueue(ctx, languagesEvent{languages: langs})
}

// Dispatch applies a session action and returns the resulting state.
func (c *Controller) Dispatch(ctx context.Context, a session.Action) (session.State, error) {
	reply := make(chan session.State, 1)
	if err := c.enqueue(ctx, actionEvent{action: a, reply: reply}); err != nil {
		return session.State{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return session.State{}, ctx.Err()
	case <-c.done:
		return session.State{}, ErrStopped
	}
}

// Sync waits until every event queued before it has been processed.
func (c *Controller) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := c.enqueue(ctx, syncEvent{done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

func (c *Controller) enqueue(ctx context.Context, ev event) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.inbox <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// Run processes events until ctx is cancelled. It may be called once; it
// releases every subscriber and smoothing task on return.
func (c *Controller) Run(ctx context.Context) error {
	started := false
	c.running.Do(func() { started = true })
	if !started {
		return fmt.Errorf("viewer: Run called twice")
	}

	tasks, cancelTasks := context.WithCancel(ctx)
	c.tasks = tasks
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.exportLoop(tasks)
	}()

	defer func() {
		close(c.done)
		cancelTasks()
		c.wg.Wait()
		if c.levels != nil {
			c.levels.Close()
		}
		c.sessions.Close()
		c.updates.Close()
		c.logger.Info().Msg("Viewer controller stopped")
	}()

	c.logger.Info().Msg("Viewer controller started")
	if c.attributes != nil {
		c.attributes.Publish(c.sessions.State().Attributes())
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.inbox:
			c.handle(ctx, ev)
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev event) {
	switch e := ev.(type) {
	case batchEvent:
		c.handleBatch(e.segments)
	case participantEvent:
		c.handleParticipant(ctx, e.participant)
	case localIdentityEvent:
		c.handleLocalIdentity(e.identity)
	case participantLeftEvent:
		c.handleParticipantLeft(e.identity)
	case sourceAddedEvent:
		c.sources[sourceKey{e.source.Identity(), e.source.SID()}] = e.source
		if e.source.Ready() {
			c.evaluate(routing.TriggerTrackSubscribed)
		} else {
			c.evaluate(routing.TriggerTrackPublished)
		}
	case sourceRemovedEvent:
		delete(c.sources, sourceKey{e.identity, e.sid})
		c.evaluate(routing.TriggerTrackUnsubscribed)
	case actionEvent:
		e.reply <- c.handleAction(e.action)
	case reevaluateEvent:
		c.evaluate(routing.TriggerReevaluate)
	case languagesEvent:
		c.mu.Lock()
		c.languages = append([]models.Language(nil), e.languages...)
		c.mu.Unlock()
		c.broadcast()
	case syncEvent:
		close(e.done)
	default:
		panic(fmt.Sprintf("viewer: unhandled event %T", ev))
	}
}

func (c *Controller) handleBatch(batch []models.Segment) {
	res := c.segments.Ingest(batch)
	c.speakers.Update(batch)

	c.logger.Debug().
		Int("received", len(batch)).
		Int("added", res.Added).
		Int("updated", res.Updated).
		Int("trimmed", res.Trimmed).
		Uint64("version", res.Snapshot.Version()).
		Msg("Segment batch ingested")

	if c.exporter != nil && len(res.Stored) > 0 {
		stored := make([]models.Segment, len(res.Stored))
		for i, e := range res.Stored {
			stored[i] = e.Segment
		}
		select {
		case c.exports <- stored:
		default:
			c.logger.Warn().Int("segments", len(stored)).Msg("Export queue full, batch not exported")
		}
	}
	c.broadcast()
}

func (c *Controller) handleLocalIdentity(identity string) {
	if identity == "" || identity == c.cfg.LocalIdentity {
		return
	}
	c.logger.Info().
		Str("configured", c.cfg.LocalIdentity).
		Str("assigned", identity).
		Msg("Local identity updated")
	c.cfg.LocalIdentity = identity
	c.hosts.SetLocalIdentity(identity)
	c.policy.SetLocalIdentity(identity)
	if _, ok := c.hosts.Host(); ok {
		c.sessions.Dispatch(session.SetRole{Role: c.hosts.Role()})
	}
	c.evaluate(routing.TriggerReevaluate)
}

func (c *Controller) handleParticipant(ctx context.Context, p Participant) {
	// Re-observations, such as attribute changes, keep the running smoother.
	if p.Level != nil && c.levels != nil {
		c.levels.Start(ctx, p.Identity, p.Level)
	}
	if !c.hosts.Observe(p.Identity, p.CanPublish) {
		return
	}
	role := c.hosts.Role()
	c.sessions.Dispatch(session.SetRole{Role: role})
	c.logger.Info().
		Str("host", p.Identity).
		Str("role", string(role)).
		Msg("Host resolved")
	c.evaluate(routing.TriggerHostResolved)
}

func (c *Controller) handleParticipantLeft(identity string) {
	for key := range c.sources {
		if key.identity == identity {
			delete(c.sources, key)
		}
	}
	c.speakers.Forget(identity)
	if c.levels != nil {
		c.levels.Stop(identity)
	}
	c.evaluate(routing.TriggerParticipantLeft)
}

func (c *Controller) handleAction(a session.Action) session.State {
	prev := c.sessions.State()
	next := c.sessions.Dispatch(a)

	if next.CaptionsLanguage != prev.CaptionsLanguage && c.segments.LanguageFilter() == "" {
		c.speakers.SetLanguageFilter(next.CaptionsLanguage)
	}
	if next.CaptionsEnabled != prev.CaptionsEnabled && c.transcriber != nil {
		enabled := next.CaptionsEnabled
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			callCtx, cancel := context.WithTimeout(c.tasks, 10*time.Second)
			defer cancel()
			// Best-effort; the client logs failures.
			_ = c.transcriber.ToggleTranscription(callCtx, enabled)
		}()
	}
	if c.attributes != nil {
		if attrs := next.Attributes(); !maps.Equal(attrs, prev.Attributes()) {
			c.attributes.Publish(attrs)
		}
	}

	c.logger.Debug().Str("action", a.Kind()).Msg("Session action applied")
	c.broadcast()
	return next
}

func (c *Controller) evaluate(trigger routing.Trigger) {
	srcs := make([]routing.Source, 0, len(c.sources))
	for _, src := range c.sources {
		srcs = append(srcs, src)
	}
	c.policy.Evaluate(trigger, c.hosts.Role(), srcs)
	c.broadcast()
}

func (c *Controller) broadcast() {
	if c.updates.Len() == 0 {
		return
	}
	c.updates.Publish(c.Views())
}

func (c *Controller) exportLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-c.exports:
			if err := c.exporter.PublishSegments(ctx, c.cfg.RoomName, batch); err != nil {
				c.logger.Warn().Err(err).Int("segments", len(batch)).Msg("Segment export failed")
			}
		}
	}
}
