// Package config loads the viewer configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	Service       ServiceConfig
	LiveKit       LiveKitConfig
	Session       SessionConfig
	Store         StoreConfig
	AgentRPC      AgentRPCConfig
	Kafka         KafkaConfig
	Playback      PlaybackConfig
	Volume        VolumeConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds listener ports and the service identity.
type ServiceConfig struct {
	Principal   string
	HTTPPort    string
	GRPCPort    string
	MetricsPort string
}

// LiveKitConfig describes the room to join. Token wins over key/secret,
// which are only used to mint a development token.
type LiveKitConfig struct {
	URL           string
	Token         string
	APIKey        string
	APISecret     string
	Room          string
	Identity      string
	Name          string
	UserType      string
	AgentIdentity string
	// AttributeRate bounds attribute writes per second.
	AttributeRate float64
}

// SessionConfig is the initial session state.
type SessionConfig struct {
	Mode             string
	CaptionsEnabled  bool
	CaptionsLanguage string
	InputLanguage    string
	OutputLanguage   string
}

// StoreConfig bounds the segment store and its views.
type StoreConfig struct {
	MaxLogEntries  int
	Retention      int
	LanguageFilter string
}

// AgentRPCConfig bounds the language fetch.
type AgentRPCConfig struct {
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
}

// KafkaConfig holds segment export and replay settings.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	ExportTopic  string
	ConsumeTopic string
	GroupID      string
	Principal    string
}

// PlaybackConfig selects where received audio goes. An empty dir discards it.
type PlaybackConfig struct {
	OutputDir string
}

// VolumeConfig parameterizes the speaker level smoother.
type VolumeConfig struct {
	Smoothing float64
	Interval  time.Duration
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// LoadDotEnv reads .env files into the environment without overriding
// variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// Load reads the configuration from the environment. Invalid values fall
// back to their defaults.
func Load() *Config {
	return &Config{
		Service: ServiceConfig{
			Principal:   envOrDefault("SERVICE_PRINCIPAL", "svc-translation-viewer"),
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
		LiveKit: LiveKitConfig{
			URL:           envOrDefault("LIVEKIT_URL", "ws://localhost:7880"),
			Token:         os.Getenv("LIVEKIT_TOKEN"),
			APIKey:        os.Getenv("LIVEKIT_API_KEY"),
			APISecret:     os.Getenv("LIVEKIT_API_SECRET"),
			Room:          envOrDefault("LIVEKIT_ROOM", "my-room"),
			Identity:      envOrDefault("LIVEKIT_IDENTITY", "viewer"),
			Name:          os.Getenv("LIVEKIT_NAME"),
			UserType:      envOrDefault("LIVEKIT_USER_TYPE", "listener"),
			AgentIdentity: envOrDefault("AGENT_IDENTITY", "agent"),
			AttributeRate: envOrDefaultFloat("ATTRIBUTE_RATE", 5),
		},
		Session: SessionConfig{
			Mode:             envOrDefault("SESSION_MODE", "multi"),
			CaptionsEnabled:  envOrDefaultBool("CAPTIONS_ENABLED", true),
			CaptionsLanguage: envOrDefault("CAPTIONS_LANGUAGE", "en"),
			InputLanguage:    envOrDefault("INPUT_LANGUAGE", "en"),
			OutputLanguage:   envOrDefault("OUTPUT_LANGUAGE", "es"),
		},
		Store: StoreConfig{
			MaxLogEntries:  envOrDefaultInt("LOG_MAX_ENTRIES", 100),
			Retention:      envOrDefaultInt("STORE_RETENTION", 1000),
			LanguageFilter: os.Getenv("LANGUAGE_FILTER"),
		},
		AgentRPC: AgentRPCConfig{
			Attempts: envOrDefaultInt("AGENT_RPC_ATTEMPTS", 5),
			Delay:    envOrDefaultDuration("AGENT_RPC_DELAY", time.Second),
			Timeout:  envOrDefaultDuration("AGENT_RPC_TIMEOUT", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", []string{"localhost:9092"}),
			ExportTopic:  envOrDefault("KAFKA_EXPORT_TOPIC", "translation.segments"),
			ConsumeTopic: os.Getenv("KAFKA_CONSUME_TOPIC"),
			GroupID:      os.Getenv("KAFKA_GROUP_ID"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", "svc-translation-viewer"),
		},
		Playback: PlaybackConfig{
			OutputDir: os.Getenv("PLAYBACK_DIR"),
		},
		Volume: VolumeConfig{
			Smoothing: envOrDefaultFloat("VOLUME_SMOOTHING", 0.3),
			Interval:  envOrDefaultDuration("VOLUME_INTERVAL", 100*time.Millisecond),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
