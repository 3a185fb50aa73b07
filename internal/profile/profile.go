package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where chatturn stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// SettingsFile is the YAML or JSON file the settings handle loads from.
	SettingsFile string
	// RedisAddr enables the Redis L2 cache for user settings when set.
	RedisAddr string
	// TurnRateLimit is the per-user chat turn rate in requests per second.
	TurnRateLimit float64
	// TurnRateBurst is the per-user chat turn burst.
	TurnRateBurst int

	// Model provider configuration
	OpenAIAPIKey        string // CHATTURN_OPENAI_API_KEY
	OpenAIBaseURL       string // CHATTURN_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	KernelProvider      string // CHATTURN_KERNEL_PROVIDER (default: openai)
	KernelModel         string // CHATTURN_KERNEL_MODEL (default: gpt-4o-mini)
	KernelAPIKey        string // CHATTURN_KERNEL_API_KEY (falls back to the OpenAI key)
	KernelBaseURL       string // CHATTURN_KERNEL_BASE_URL
	EmbeddingModel      string // CHATTURN_EMBEDDING_MODEL (default: text-embedding-3-small)
	EmbeddingDimensions int    // CHATTURN_EMBEDDING_DIMENSIONS (default: 1536)

	// External collaborators
	ContentSafetyEndpoint string // CHATTURN_CONTENT_SAFETY_ENDPOINT
	ContentSafetyKey      string // CHATTURN_CONTENT_SAFETY_KEY
	WebSearchEndpoint     string // CHATTURN_WEB_SEARCH_ENDPOINT
	WebSearchKey          string // CHATTURN_WEB_SEARCH_KEY
	AgentServiceEndpoint  string // CHATTURN_AGENT_SERVICE_ENDPOINT
	AgentServiceProject   string // CHATTURN_AGENT_SERVICE_PROJECT
	AgentServiceAgentID   string // CHATTURN_AGENT_SERVICE_AGENT_ID
	AgentServiceKey       string // CHATTURN_AGENT_SERVICE_KEY
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsModelConfigured reports whether an OpenAI-compatible endpoint is usable.
func (p *Profile) IsModelConfigured() bool {
	return p.OpenAIAPIKey != "" || p.KernelProvider == "ollama"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from CHATTURN_* environment variables.
// Fields already set (e.g. from flags) are kept.
func (p *Profile) FromEnv() {
	setString := func(field *string, key, defaultValue string) {
		if *field == "" {
			*field = getEnvOrDefault(key, defaultValue)
		}
	}

	setString(&p.RedisAddr, "CHATTURN_CACHE_REDIS_ADDR", "")
	setString(&p.OpenAIAPIKey, "CHATTURN_OPENAI_API_KEY", "")
	setString(&p.OpenAIBaseURL, "CHATTURN_OPENAI_BASE_URL", "https://api.openai.com/v1")
	setString(&p.KernelProvider, "CHATTURN_KERNEL_PROVIDER", "openai")
	setString(&p.KernelModel, "CHATTURN_KERNEL_MODEL", "gpt-4o-mini")
	setString(&p.KernelAPIKey, "CHATTURN_KERNEL_API_KEY", p.OpenAIAPIKey)
	setString(&p.KernelBaseURL, "CHATTURN_KERNEL_BASE_URL", "")
	setString(&p.EmbeddingModel, "CHATTURN_EMBEDDING_MODEL", "text-embedding-3-small")
	if p.EmbeddingDimensions == 0 {
		p.EmbeddingDimensions = 1536
		if v, err := strconv.Atoi(os.Getenv("CHATTURN_EMBEDDING_DIMENSIONS")); err == nil && v > 0 {
			p.EmbeddingDimensions = v
		}
	}

	setString(&p.ContentSafetyEndpoint, "CHATTURN_CONTENT_SAFETY_ENDPOINT", "")
	setString(&p.ContentSafetyKey, "CHATTURN_CONTENT_SAFETY_KEY", "")
	setString(&p.WebSearchEndpoint, "CHATTURN_WEB_SEARCH_ENDPOINT", "")
	setString(&p.WebSearchKey, "CHATTURN_WEB_SEARCH_KEY", "")
	setString(&p.AgentServiceEndpoint, "CHATTURN_AGENT_SERVICE_ENDPOINT", "")
	setString(&p.AgentServiceProject, "CHATTURN_AGENT_SERVICE_PROJECT", "")
	setString(&p.AgentServiceAgentID, "CHATTURN_AGENT_SERVICE_AGENT_ID", "")
	setString(&p.AgentServiceKey, "CHATTURN_AGENT_SERVICE_KEY", "")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.TurnRateLimit <= 0 {
		p.TurnRateLimit = 2
	}
	if p.TurnRateBurst <= 0 {
		p.TurnRateBurst = 10
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q: only postgres and sqlite are supported", p.Driver)
	}

	if p.Driver == "postgres" {
		if p.DSN == "" {
			return errors.New("dsn is required for the postgres driver")
		}
		return nil
	}

	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir
	if p.DSN == "" {
		p.DSN = filepath.Join(dataDir, fmt.Sprintf("chatturn_%s.db", p.Mode))
	}
	return nil
}
