package app

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voice-translation-viewer/internal/config"
	"voice-translation-viewer/internal/observability/logging"
	"voice-translation-viewer/internal/room"
)

const tokenValidity = 6 * time.Hour

// Application holds process-wide state for the viewer.
type Application struct {
	StartupTime time.Time
	InstanceID  string
	Logger      zerolog.Logger
	Cfg         *config.Config

	joined atomic.Bool
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Config) *Application {
	a := &Application{
		Cfg:        cfg,
		InstanceID: uuid.NewString(),
	}
	a.setupLogger()

	a.Logger.Info().
		Str("method", "New").
		Str("room", cfg.LiveKit.Room).
		Str("identity", cfg.LiveKit.Identity).
		Msg("Translation viewer application created")
	return a
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:      a.Cfg.Observability.LogLevel,
		Format:     a.Cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	a.Logger = logging.Logger().With().
		Str("service", "translation-viewer").
		Str("instanceId", a.InstanceID).
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", a.Cfg.Observability.LogFormat).
		Msg("Logger setup completed")
}

// Ready reports whether the room has been joined.
func (a *Application) Ready() bool {
	return a.joined.Load()
}

// Token returns the configured join token, or mints one from the API key
// and secret.
func (a *Application) Token() (string, error) {
	lk := a.Cfg.LiveKit
	if lk.Token != "" {
		return lk.Token, nil
	}
	if lk.APIKey == "" || lk.APISecret == "" {
		return "", fmt.Errorf("no LiveKit token and no API key/secret to mint one")
	}
	return room.MintToken(room.TokenRequest{
		APIKey:    lk.APIKey,
		APISecret: lk.APISecret,
		Room:      lk.Room,
		Identity:  lk.Identity,
		Name:      lk.Name,
		Attributes: map[string]string{
			room.AttrUserType:              lk.UserType,
			room.AttrTranscriptionLanguage: a.Cfg.Session.CaptionsLanguage,
			room.AttrShouldForward:         "true",
		},
		ValidFor: tokenValidity,
	})
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Str("method", "Start").
		Time("startupTime", a.StartupTime).
		Msg("Translation viewer starting")
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	a.Logger.Info().
		Str("method", "Shutdown").
		Dur("uptime", time.Since(a.StartupTime)).
		Msg("Translation viewer shutting down")
}
