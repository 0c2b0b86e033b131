package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the voice gateway. Everything is
// sourced from the environment; a .env file is honored for local development.
type Config struct {
	Environment string

	Server    ServerConfig
	LiveKit   LiveKitConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Notifier  NotifierConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// TrustProxyHeaders controls whether X-Forwarded-For / X-Real-IP are
	// believed when deriving the rate-limit key. Only enable behind a proxy
	// you control; otherwise callers can spoof their way past the limiter.
	TrustProxyHeaders bool

	AllowedOrigins []string

	EnableTLS   bool
	TLSPort     int
	CertFile    string
	KeyFile     string
	AutoCert    bool
	Domain      string
	AutoCertDir string
	Email       string
}

// LiveKitConfig carries the vendor credentials. The variable names are the
// ones the LiveKit SDK documents. Absence is not a startup failure; the
// affected request fails with a 500 instead, so the rest of the site keeps
// deploying without voice configured.
type LiveKitConfig struct {
	APIKey    string
	APISecret string
	URL       string

	RoomPrefix string
	TokenTTL   time.Duration
}

// Configured reports whether all required vendor credentials are present.
func (c LiveKitConfig) Configured() bool {
	return c.APIKey != "" && c.APISecret != "" && c.URL != ""
}

// MissingVars lists the unset vendor variables, for server-side logging only.
func (c LiveKitConfig) MissingVars() []string {
	var missing []string
	if c.APIKey == "" {
		missing = append(missing, "LIVEKIT_API_KEY")
	}
	if c.APISecret == "" {
		missing = append(missing, "LIVEKIT_API_SECRET")
	}
	if c.URL == "" {
		missing = append(missing, "LIVEKIT_URL")
	}
	return missing
}

type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	// Store selects the counter backend: "memory" or "redis".
	Store string
}

type RedisConfig struct {
	URL string
}

type NotifierConfig struct {
	// Kind selects the agent-notification sink: "log" or "kafka".
	Kind         string
	KafkaBrokers []string
	KafkaTopic   string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig reads configuration from the environment.
func LoadConfig() *Config {
	// Best effort; production injects real env vars.
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:              getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:       getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:      getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", true),
			AllowedOrigins:    getEnvList("CORS_ALLOWED_ORIGINS", []string{"https://*"}),
			EnableTLS:         getEnvBool("ENABLE_TLS", false),
			TLSPort:           getEnvInt("TLS_PORT", 8443),
			CertFile:          getEnv("TLS_CERT_FILE", ""),
			KeyFile:           getEnv("TLS_KEY_FILE", ""),
			AutoCert:          getEnvBool("AUTO_CERT", false),
			Domain:            getEnv("DOMAIN", ""),
			AutoCertDir:       getEnv("AUTO_CERT_DIR", "/var/lib/voice-gateway/autocert"),
			Email:             getEnv("AUTO_CERT_EMAIL", ""),
		},
		LiveKit: LiveKitConfig{
			APIKey:     getEnv("LIVEKIT_API_KEY", ""),
			APISecret:  getEnv("LIVEKIT_API_SECRET", ""),
			URL:        getEnv("LIVEKIT_URL", ""),
			RoomPrefix: getEnv("ROOM_PREFIX", "voice-agent"),
			TokenTTL:   getEnvDuration("TOKEN_TTL", time.Hour),
		},
		RateLimit: RateLimitConfig{
			MaxRequests: getEnvInt("RATE_LIMIT_MAX_REQUESTS", 10),
			Window:      getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			Store:       getEnv("RATE_LIMIT_STORE", "memory"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Notifier: NotifierConfig{
			Kind:         getEnv("AGENT_NOTIFIER", "log"),
			KafkaBrokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "voice-agent-events"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// GetServerAddress returns the listen address for the plain HTTP server.
func (c *Config) GetServerAddress() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
