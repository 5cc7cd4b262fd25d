package main

import (
	"github.com/spf13/cobra"

	"voice-translation-viewer/internal/config"
)

var (
	envFile  string
	roomName string
	identity string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "translation-viewer",
	Short: "Join a live translation room and serve its views",
	Long: `translation-viewer joins a LiveKit room as a listener or host, aggregates the
transcription segments published by the translation agent, and serves the
resulting views over HTTP and WebSocket.
Remote audio is muted or played according to the local participant's role.`,
	SilenceUsage: true,
}

// loadConfig reads .env and the environment, then applies flag overrides.
func loadConfig() *config.Config {
	config.LoadDotEnv(envFile)
	cfg := config.Load()
	if roomName != "" {
		cfg.LiveKit.Room = roomName
	}
	if identity != "" {
		cfg.LiveKit.Identity = identity
	}
	if logLevel != "" {
		cfg.Observability.LogLevel = logLevel
	}
	return cfg
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&roomName, "room", "", "room name (overrides LIVEKIT_ROOM)")
	rootCmd.PersistentFlags().StringVar(&identity, "identity", "", "local participant identity (overrides LIVEKIT_IDENTITY)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}
