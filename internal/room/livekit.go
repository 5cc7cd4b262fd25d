package room

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"voice-translation-viewer/internal/models"
	"voice-translation-viewer/internal/observability/logging"
	"voice-translation-viewer/internal/service/playback"
	"voice-translation-viewer/internal/service/routing"
	"voice-translation-viewer/internal/service/segment"
	"voice-translation-viewer/internal/service/viewer"
)

// ErrNotConnected is returned by room operations before Run has joined.
var ErrNotConnected = errors.New("room: not connected")

// Viewer receives everything the room observes.
type Viewer interface {
	Ingest(ctx context.Context, batch []models.Segment) error
	SetLocalIdentity(ctx context.Context, identity string) error
	ObserveParticipant(ctx context.Context, p viewer.Participant) error
	ParticipantLeft(ctx context.Context, identity string) error
	AddSource(ctx context.Context, src routing.Source) error
	RemoveSource(ctx context.Context, identity, sid string) error
}

// SinkFactory creates the playback sink for a newly subscribed source.
type SinkFactory func(identity, sid string) (playback.Sink, error)

// Config describes how to join the room.
type Config struct {
	URL   string
	Token string
	// LegacyLanguage labels plain-text data packets without a topic.
	LegacyLanguage string
	// OnJoined is called once the room is connected and existing
	// participants have been swept.
	OnJoined func()
}

// Session is a joined LiveKit room.
type Session struct {
	cfg    Config
	viewer Viewer
	sinks  SinkFactory
	ids    *segment.Generator
	logger zerolog.Logger

	mu      sync.RWMutex
	room    *lksdk.Room
	sources map[string]*trackSource
	ctx     context.Context
	pumps   sync.WaitGroup
}

// NewSession creates an unconnected session. A nil sinks factory attaches
// counting sinks.
func NewSession(cfg Config, sinks SinkFactory) *Session {
	if sinks == nil {
		sinks = func(string, string) (playback.Sink, error) { return playback.NewCountingSink(), nil }
	}
	return &Session{
		cfg:     cfg,
		sinks:   sinks,
		ids:     segment.NewGenerator("data"),
		logger:  logging.WithComponent("room"),
		sources: map[string]*trackSource{},
	}
}

func (s *Session) callbacks() *lksdk.RoomCallback {
	return &lksdk.RoomCallback{
		OnDisconnected: func() {
			s.logger.Info().Msg("Disconnected from room")
		},
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			s.logger.Info().Str("participant", rp.Identity()).Msg("Participant connected")
			s.observe(rp)
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			s.logger.Info().Str("participant", rp.Identity()).Msg("Participant disconnected")
			s.dropParticipant(rp.Identity())
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackPublished: func(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if pub.Kind() != lksdk.TrackKindAudio {
					return
				}
				s.attach(rp.Identity(), pub.SID(), pub, nil)
			},
			OnTrackUnpublished: func(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if pub.Kind() != lksdk.TrackKindAudio {
					return
				}
				s.detach(rp.Identity(), pub.SID())
			},
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if track.Kind() != webrtc.RTPCodecTypeAudio {
					return
				}
				s.attach(rp.Identity(), pub.SID(), pub, trackRemoteReader{track: track})
			},
			OnTrackUnsubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if track.Kind() != webrtc.RTPCodecTypeAudio {
					return
				}
				s.detach(rp.Identity(), pub.SID())
			},
			OnAttributesChanged: func(changed map[string]string, p lksdk.Participant) {
				if _, ok := changed[AttrUserType]; !ok {
					return
				}
				if info, ok := p.(participantInfo); ok {
					s.observe(info)
				}
			},
			OnTranscriptionReceived: func(segs []*lksdk.TranscriptionSegment, p lksdk.Participant, _ lksdk.TrackPublication) {
				speaker := ""
				if p != nil {
					speaker = p.Identity()
				}
				s.ingest(FromTranscription(segs, speaker))
			},
			OnDataPacket: func(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
				pkt, ok := data.(*lksdk.UserDataPacket)
				if !ok {
					return
				}
				seg, ok := FromDataPacket(pkt.Payload, pkt.Topic, params.SenderIdentity, s.cfg.LegacyLanguage, s.ids, time.Now())
				if ok {
					s.ingest([]models.Segment{seg})
				}
			},
		},
	}
}

// Run joins the room, sweeps participants already present, and feeds v until
// ctx is cancelled. PerformRPC and SetAttributes work only while Run is
// connected.
func (s *Session) Run(ctx context.Context, v Viewer) error {
	s.mu.Lock()
	s.ctx = ctx
	s.viewer = v
	s.mu.Unlock()

	room, err := lksdk.ConnectToRoomWithToken(s.cfg.URL, s.cfg.Token, s.callbacks(), lksdk.WithAutoSubscribe(true))
	if err != nil {
		return fmt.Errorf("connect to room: %w", err)
	}
	defer func() {
		room.Disconnect()
		s.closeSources()
		s.pumps.Wait()
	}()

	s.mu.Lock()
	s.room = room
	s.mu.Unlock()

	roomLogger := logging.WithRoom(room.Name(), room.LocalParticipant.Identity())
	roomLogger.Info().Msg("Connected to room")

	s.announceLocal(room.LocalParticipant)
	for _, rp := range room.GetRemoteParticipants() {
		s.observe(rp)
		for _, pub := range rp.TrackPublications() {
			if pub.Kind() != lksdk.TrackKindAudio {
				continue
			}
			remotePub, ok := pub.(*lksdk.RemoteTrackPublication)
			if !ok {
				continue
			}
			track := remotePub.TrackRemote()
			if !remotePub.IsSubscribed() || track == nil {
				// Deferred until OnTrackSubscribed brings the track.
				s.attach(rp.Identity(), remotePub.SID(), remotePub, nil)
				if err := remotePub.SetSubscribed(true); err != nil {
					s.logger.Warn().Err(err).Str("participant", rp.Identity()).Msg("Subscribe failed")
				}
				continue
			}
			s.attach(rp.Identity(), remotePub.SID(), remotePub, trackRemoteReader{track: track})
		}
	}

	if s.cfg.OnJoined != nil {
		s.cfg.OnJoined()
	}

	<-ctx.Done()
	s.logger.Info().Msg("Leaving room")
	return nil
}

func (s *Session) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Session) ingest(batch []models.Segment) {
	if len(batch) == 0 {
		return
	}
	if err := s.viewer.Ingest(s.context(), batch); err != nil {
		s.logger.Debug().Err(err).Msg("Segment batch not delivered")
	}
}

func (s *Session) observe(p participantInfo) {
	if err := s.viewer.ObserveParticipant(s.context(), describeParticipant(p)); err != nil {
		s.logger.Debug().Err(err).Str("participant", p.Identity()).Msg("Participant not delivered")
	}
}

// announceLocal hands the identity the token was issued for to the viewer and
// observes the local participant ahead of the remote ones, so a viewer joining
// with a host token resolves as the host.
func (s *Session) announceLocal(lp participantInfo) {
	if err := s.viewer.SetLocalIdentity(s.context(), lp.Identity()); err != nil {
		s.logger.Debug().Err(err).Msg("Local identity not delivered")
	}
	s.observe(lp)
}

func sourceID(identity, sid string) string {
	return identity + "/" + sid
}

// attach registers an audio publication and hands it to the viewer. A nil
// reader registers a published but unsubscribed source, whose routing decision
// stays deferred. A later call with the reader fills in the track, starts the
// playback pump and re-submits the source. A track already attached, as when
// the join sweep races the subscription callback, is left alone.
func (s *Session) attach(identity, sid string, pub enabler, reader rtpReader) {
	logger := logging.WithParticipant("room", identity, sid)
	ctx := s.context()

	s.mu.Lock()
	src, ok := s.sources[sourceID(identity, sid)]
	if ok && (reader == nil || src.Ready()) {
		s.mu.Unlock()
		return
	}
	if !ok {
		sink, err := s.sinks(identity, sid)
		if err != nil {
			logger.Warn().Err(err).Msg("Playback sink unavailable, using counting sink")
			sink = playback.NewCountingSink()
		}
		src = newTrackSource(identity, sid, pub, nil, sink)
		s.sources[sourceID(identity, sid)] = src
	}
	if reader != nil {
		src.setReader(reader)
		s.pumps.Add(1)
	}
	s.mu.Unlock()

	if reader != nil {
		go func() {
			defer s.pumps.Done()
			if err := playback.Pump(ctx, src, src.playbackSinks, logger); err != nil {
				logger.Warn().Err(err).Msg("Playback pump stopped")
			}
		}()
		logger.Info().Msg("Audio source attached")
	} else {
		logger.Info().Msg("Audio source published, waiting for subscription")
	}
	if err := s.viewer.AddSource(ctx, src); err != nil {
		logger.Debug().Err(err).Msg("Source not delivered")
	}
}

func (s *Session) detach(identity, sid string) {
	s.mu.Lock()
	src := s.sources[sourceID(identity, sid)]
	delete(s.sources, sourceID(identity, sid))
	s.mu.Unlock()
	if src != nil {
		src.Close()
	}
	if err := s.viewer.RemoveSource(s.context(), identity, sid); err != nil {
		s.logger.Debug().Err(err).Str("participant", identity).Msg("Source removal not delivered")
	}
}

func (s *Session) dropParticipant(identity string) {
	s.mu.Lock()
	var gone []*trackSource
	for key, src := range s.sources {
		if src.identity == identity {
			gone = append(gone, src)
			delete(s.sources, key)
		}
	}
	s.mu.Unlock()
	for _, src := range gone {
		src.Close()
	}
	if err := s.viewer.ParticipantLeft(s.context(), identity); err != nil {
		s.logger.Debug().Err(err).Str("participant", identity).Msg("Participant removal not delivered")
	}
}

func (s *Session) closeSources() {
	s.mu.Lock()
	sources := s.sources
	s.sources = map[string]*trackSource{}
	s.mu.Unlock()
	for _, src := range sources {
		src.Close()
	}
}

func (s *Session) localParticipant() (*lksdk.LocalParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.room == nil {
		return nil, ErrNotConnected
	}
	return s.room.LocalParticipant, nil
}

// PerformRPC calls method on the participant identified by destination.
func (s *Session) PerformRPC(ctx context.Context, destination, method, payload string, timeout time.Duration) (string, error) {
	lp, err := s.localParticipant()
	if err != nil {
		return "", err
	}

	type result struct {
		resp string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := lp.PerformRpc(lksdk.PerformRpcParams{
			DestinationIdentity: destination,
			Method:              method,
			Payload:             payload,
			ResponseTimeout:     &timeout,
		})
		r := result{err: err}
		if resp != nil {
			r.resp = *resp
		}
		done <- r
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// SetAttributes replaces the local participant's attributes.
func (s *Session) SetAttributes(_ context.Context, attrs map[string]string) error {
	lp, err := s.localParticipant()
	if err != nil {
		return err
	}
	lp.SetAttributes(maps.Clone(attrs))
	return nil
}
