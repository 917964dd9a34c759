package profile

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// DSN points to where convoflow stores its own data
	DSN string
	// Version is the current version of server
	Version string

	// Secret signs resume-continuation tokens.
	Secret string

	// Cache configuration
	HistoryCacheCap int           // CONVOFLOW_HISTORY_CACHE_CAP (default: 200)
	HistoryCacheTTL time.Duration // CONVOFLOW_HISTORY_CACHE_TTL (default: 10m)
	ListCacheTTL    time.Duration // CONVOFLOW_LIST_CACHE_TTL (default: 10m)

	// Generator configuration
	OpenAIAPIKey     string        // CONVOFLOW_OPENAI_API_KEY
	OpenAIBaseURL    string        // CONVOFLOW_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	OpenAIModel      string        // CONVOFLOW_OPENAI_MODEL (default: gpt-4o-mini)
	GeneratorTimeout time.Duration // CONVOFLOW_GENERATOR_TIMEOUT (default: 60s)

	// StreamWordDelay paces the per-word delta patches. Presentation only.
	StreamWordDelay time.Duration // CONVOFLOW_STREAM_WORD_DELAY (default: 10ms)
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// FromEnv loads configuration from CONVOFLOW_* environment variables.
func (p *Profile) FromEnv() {
	p.Secret = getEnvOrDefault("CONVOFLOW_SECRET", p.Secret)

	p.HistoryCacheCap = getIntEnv("CONVOFLOW_HISTORY_CACHE_CAP", 200)
	p.HistoryCacheTTL = getDurationEnv("CONVOFLOW_HISTORY_CACHE_TTL", 10*time.Minute)
	p.ListCacheTTL = getDurationEnv("CONVOFLOW_LIST_CACHE_TTL", 10*time.Minute)

	p.OpenAIAPIKey = os.Getenv("CONVOFLOW_OPENAI_API_KEY")
	p.OpenAIBaseURL = getEnvOrDefault("CONVOFLOW_OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.OpenAIModel = getEnvOrDefault("CONVOFLOW_OPENAI_MODEL", "gpt-4o-mini")
	p.GeneratorTimeout = getDurationEnv("CONVOFLOW_GENERATOR_TIMEOUT", 60*time.Second)

	p.StreamWordDelay = getDurationEnv("CONVOFLOW_STREAM_WORD_DELAY", 10*time.Millisecond)
}

func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		p.DSN = "convoflow_" + p.Mode + ".db"
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a DSN")
	}
	if p.Secret == "" {
		if p.Mode == "prod" {
			return errors.New("a signing secret is required in prod mode")
		}
		p.Secret = "convoflow-dev-secret"
	}

	return nil
}
