package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"voice-translation-viewer/internal/config"
	"voice-translation-viewer/internal/events"
	httpapi "voice-translation-viewer/internal/http"
	"voice-translation-viewer/internal/models"
	"voice-translation-viewer/internal/observability"
	"voice-translation-viewer/internal/observability/logging"
	"voice-translation-viewer/internal/observability/metrics"
	"voice-translation-viewer/internal/room"
	"voice-translation-viewer/internal/service/agent"
	"voice-translation-viewer/internal/service/attributes"
	"voice-translation-viewer/internal/service/playback"
	"voice-translation-viewer/internal/service/segment"
	"voice-translation-viewer/internal/service/session"
	"voice-translation-viewer/internal/service/viewer"
	"voice-translation-viewer/internal/service/volume"
)

const (
	shutdownTimeout = 10 * time.Second
	// HealthService is the gRPC health service name reported by the viewer.
	HealthService = "translation.viewer.Viewer"
)

// Options toggle development surfaces.
type Options struct {
	// AllowIngest exposes POST /v1/segments.
	AllowIngest bool
}

// Run wires every component and blocks until ctx is cancelled or a
// component fails.
func (a *Application) Run(ctx context.Context, opts Options) error {
	cfg := a.Cfg

	token, err := a.Token()
	if err != nil {
		return err
	}

	exporter := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		ExportTopic:  cfg.Kafka.ExportTopic,
		ConsumeTopic: cfg.Kafka.ConsumeTopic,
		GroupID:      cfg.Kafka.GroupID,
		Principal:    cfg.Kafka.Principal,
	})
	defer exporter.Close()

	joined := make(chan struct{})
	sess := room.NewSession(room.Config{
		URL:            cfg.LiveKit.URL,
		Token:          token,
		LegacyLanguage: cfg.Session.OutputLanguage,
		OnJoined: func() {
			a.joined.Store(true)
			close(joined)
		},
	}, a.sinkFactory())

	agentClient := agent.NewClient(sess, cfg.LiveKit.AgentIdentity, agent.RetryPolicy{
		Attempts: cfg.AgentRPC.Attempts,
		Delay:    cfg.AgentRPC.Delay,
		Timeout:  cfg.AgentRPC.Timeout,
	})
	attrs := attributes.NewPublisher(sess, rate.Limit(cfg.LiveKit.AttributeRate), 1)

	ctrl := viewer.New(viewer.Config{
		// Replaced by the identity the token carries once the room is joined.
		LocalIdentity: cfg.LiveKit.Identity,
		AgentIdentity: cfg.LiveKit.AgentIdentity,
		RoomName:      cfg.LiveKit.Room,
		MaxEntries:    cfg.Store.MaxLogEntries,
		Initial:       initialState(cfg.Session),
	}, viewer.Deps{
		Segments: segment.NewStore(
			segment.WithLanguageFilter(cfg.Store.LanguageFilter),
			segment.WithRetention(cfg.Store.Retention),
		),
		Transcriber: agentClient,
		Attributes:  attrs,
		Exporter:    exporter,
		Levels:      volume.NewGroup(cfg.Volume.Smoothing, cfg.Volume.Interval),
	})

	hub := httpapi.NewHub(ctrl.Views)
	sub := ctrl.Subscribe(hub.Publish)
	defer sub.Unsubscribe()

	httpServer := &http.Server{
		Addr: ":" + cfg.Service.HTTPPort,
		Handler: httpapi.NewRouter(ctrl, httpapi.Options{
			Ready:       a.Ready,
			Hub:         hub,
			AllowIngest: opts.AllowIngest,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	obsServer := observability.NewServer(":"+cfg.Service.MetricsPort, a.Ready)

	grpcServer, healthServer := newGRPCServer(logging.WithComponent("grpc"))
	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ctrl.Run(gctx) })
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := sess.Run(gctx, ctrl); err != nil {
			return fmt.Errorf("room session: %w", err)
		}
		return nil
	})

	// Attribute writes and the language fetch need the local participant.
	g.Go(func() error {
		select {
		case <-joined:
		case <-gctx.Done():
			return nil
		}
		healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)
		return attrs.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-joined:
		case <-gctx.Done():
			return nil
		}
		langs, err := agentClient.FetchLanguages(gctx)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Language list unavailable, continuing without it")
		}
		if err := ctrl.SetLanguages(gctx, langs); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})

	if consumer := events.NewConsumer(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		ConsumeTopic: cfg.Kafka.ConsumeTopic,
		GroupID:      cfg.Kafka.GroupID,
	}, cfg.LiveKit.Room); consumer != nil {
		g.Go(func() error {
			return consumer.Run(gctx, func(batch []models.Segment) error {
				return ctrl.Ingest(gctx, batch)
			})
		})
	}

	g.Go(func() error {
		a.Logger.Info().Str("addr", httpServer.Addr).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(obsServer.Serve)
	g.Go(func() error {
		a.Logger.Info().Str("addr", lis.Addr().String()).Msg("Starting gRPC health server")
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.joined.Store(false)
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn().Err(err).Msg("HTTP server shutdown error")
		}
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn().Err(err).Msg("Observability server shutdown error")
		}
		grpcServer.GracefulStop()
		return nil
	})

	return g.Wait()
}

func newGRPCServer(logger zerolog.Logger) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(logger)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(metrics.DefaultMetrics, logger)),
	)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	reflection.Register(server)
	return server, healthServer
}

func (a *Application) sinkFactory() room.SinkFactory {
	dir := a.Cfg.Playback.OutputDir
	if dir == "" {
		return nil
	}
	return func(identity, sid string) (playback.Sink, error) {
		return playback.NewOggSink(dir, identity+"-"+sid)
	}
}

func initialState(c config.SessionConfig) session.State {
	st := session.Default()
	if m := session.Mode(c.Mode); m.Valid() {
		st.Mode = m
	}
	st.CaptionsEnabled = c.CaptionsEnabled
	if c.CaptionsLanguage != "" {
		st.CaptionsLanguage = c.CaptionsLanguage
	}
	if c.InputLanguage != "" {
		st.InputLanguage = c.InputLanguage
	}
	if c.OutputLanguage != "" {
		st.OutputLanguage = c.OutputLanguage
	}
	return st
}
