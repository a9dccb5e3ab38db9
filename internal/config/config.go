// Package config provides configuration loading for ragd.
package config

import (
	"fmt"
	"os"
	"time"
)

// Isolation modes supported by the server.
const (
	IsolationNone    = "none"
	IsolationSession = "session"
	IsolationCustom  = "custom"
)

// Config is the root configuration for the ragd daemon.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Isolation   IsolationConfig   `koanf:"isolation"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Upload      UploadConfig      `koanf:"upload"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	LLM         LLMConfig         `koanf:"llm"`
	Chat        ChatConfig        `koanf:"chat"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// IsolationConfig controls how tenant isolation keys are resolved.
type IsolationConfig struct {
	// Mode is one of "none", "session", "custom".
	Mode string `koanf:"mode"`

	// SessionsPath is the directory where session records are persisted.
	SessionsPath string `koanf:"sessions_path"`

	// SessionTTL is how long a session survives without activity.
	SessionTTL time.Duration `koanf:"session_ttl"`

	// SweepInterval is the cadence of the background expiry sweep.
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// SweepProbability is the per-request chance of an opportunistic sweep.
	// Neither mechanism guarantees sub-hour precision, only eventual cleanup.
	SweepProbability float64 `koanf:"sweep_probability"`
}

// VectorStoreConfig holds per-tenant vector store configuration.
type VectorStoreConfig struct {
	// Path is the base directory. Tenant data lives under shared/ and
	// isolated/{key}/ beneath it.
	Path string `koanf:"path"`

	// Compress enables gzip compression of persisted vectors.
	Compress bool `koanf:"compress"`

	// VectorSize is the embedding dimension. Must match the embedding model.
	VectorSize int `koanf:"vector_size"`
}

// UploadConfig holds document upload configuration.
type UploadConfig struct {
	// Dir is the base upload directory, segmented like the vector store path.
	Dir string `koanf:"dir"`

	// MaxFileSize is the upload size limit in bytes.
	MaxFileSize int64 `koanf:"max_file_size"`
}

// EmbeddingsConfig holds the embedding gateway configuration.
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`
}

// LLMConfig holds the chat completion gateway configuration.
type LLMConfig struct {
	BaseURL      string  `koanf:"base_url"`
	APIKey       string  `koanf:"api_key"`
	DefaultModel string  `koanf:"default_model"`
	SiteURL      string  `koanf:"site_url"`
	Temperature  float64 `koanf:"temperature"`
}

// ChatConfig holds retrieval-augmentation configuration.
type ChatConfig struct {
	// TopK is the number of chunks injected as chat context.
	TopK int `koanf:"top_k"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export configuration.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"service_name"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3001
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Isolation.Mode == "" {
		cfg.Isolation.Mode = IsolationNone
	}
	if cfg.Isolation.SessionsPath == "" {
		cfg.Isolation.SessionsPath = "./data/sessions"
	}
	if cfg.Isolation.SessionTTL == 0 {
		cfg.Isolation.SessionTTL = 24 * time.Hour
	}
	if cfg.Isolation.SweepInterval == 0 {
		cfg.Isolation.SweepInterval = time.Hour
	}
	if cfg.Isolation.SweepProbability == 0 {
		cfg.Isolation.SweepProbability = 0.01
	}

	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = "./data/vectors"
	}
	if cfg.VectorStore.VectorSize == 0 {
		cfg.VectorStore.VectorSize = 1536 // text-embedding-3-small dimensions
	}

	if cfg.Upload.Dir == "" {
		cfg.Upload.Dir = "./data/uploads"
	}
	if cfg.Upload.MaxFileSize == 0 {
		cfg.Upload.MaxFileSize = 10 * 1024 * 1024
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "openai/text-embedding-3-small"
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.LLM.DefaultModel == "" {
		cfg.LLM.DefaultModel = "openai/gpt-3.5-turbo"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}

	// Both gateways talk to the same OpenAI-compatible endpoint; a single
	// OPENROUTER_API_KEY covers them unless overridden per section.
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if cfg.Embeddings.APIKey == "" {
		cfg.Embeddings.APIKey = cfg.LLM.APIKey
	}
	if cfg.LLM.SiteURL == "" {
		cfg.LLM.SiteURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	if cfg.Chat.TopK == 0 {
		cfg.Chat.TopK = 3
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ragd"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4318"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in 1-65535, got %d", c.Server.Port)
	}

	switch c.Isolation.Mode {
	case IsolationNone, IsolationSession, IsolationCustom:
	default:
		return fmt.Errorf("isolation mode must be %q, %q or %q, got %q",
			IsolationNone, IsolationSession, IsolationCustom, c.Isolation.Mode)
	}

	if c.Isolation.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive, got %s", c.Isolation.SessionTTL)
	}
	if c.Isolation.SweepProbability < 0 || c.Isolation.SweepProbability > 1 {
		return fmt.Errorf("sweep probability must be in [0,1], got %f", c.Isolation.SweepProbability)
	}

	if c.VectorStore.VectorSize <= 0 {
		return fmt.Errorf("vector size must be positive, got %d", c.VectorStore.VectorSize)
	}
	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.Upload.MaxFileSize)
	}
	if c.Chat.TopK <= 0 {
		return fmt.Errorf("chat top_k must be positive, got %d", c.Chat.TopK)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	return nil
}
