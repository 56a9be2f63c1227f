package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the orchestration service
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Capability CapabilityConfig `mapstructure:"capability"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Reports    ReportsConfig    `mapstructure:"reports"`
	Streams    StreamsConfig    `mapstructure:"streams"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Listen          string        `mapstructure:"listen"`
	PipelineTimeout time.Duration `mapstructure:"pipeline_timeout"`
	Debug           bool          `mapstructure:"debug"`
}

// LLMConfig points at an OpenAI-compatible chat completions endpoint (Groq, OpenAI, vLLM).
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// MaxRunCalls and MaxRunTokens cap completion usage per run; zero is unlimited.
	MaxRunCalls  int   `mapstructure:"max_run_calls"`
	MaxRunTokens int64 `mapstructure:"max_run_tokens"`
}

// CapabilityConfig configures access to the data providers queried by workers.
type CapabilityConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
	Backoff time.Duration `mapstructure:"backoff"`
	// Mock mounts the built-in fixed-payload providers on the API server.
	Mock bool `mapstructure:"mock"`
}

// SessionsConfig selects the session store backend.
type SessionsConfig struct {
	Backend string        `mapstructure:"backend"` // memory | redis
	TTL     time.Duration `mapstructure:"ttl"`
	Prefix  string        `mapstructure:"prefix"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Validate ensures the connection settings are usable.
func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" || strings.TrimSpace(r.Port) == "" {
		return errors.New("redis host/port must be configured")
	}
	if r.DB < 0 {
		return fmt.Errorf("redis db must be >= 0 (got %d)", r.DB)
	}
	return nil
}

type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// ReportsConfig controls report compilation, rendering and the registry.
type ReportsConfig struct {
	Backend        string        `mapstructure:"backend"`  // memory | postgres
	Renderer       string        `mapstructure:"renderer"` // chrome | html
	RenderTimeout  time.Duration `mapstructure:"render_timeout"`
	DownloadPrefix string        `mapstructure:"download_prefix"`
	ChromePath     string        `mapstructure:"chrome_path"`
}

// StreamsConfig controls the Redis Streams mirror of live session events.
type StreamsConfig struct {
	MirrorEnabled bool   `mapstructure:"mirror_enabled"`
	StreamPrefix  string `mapstructure:"stream_prefix"`
	MaxLen        int64  `mapstructure:"max_len"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

// Validate checks telemetry settings.
func (t TelemetryConfig) Validate() error {
	if t.Enabled && strings.TrimSpace(t.OTLPEndpoint) == "" {
		return errors.New("telemetry.otlp_endpoint is required when telemetry is enabled")
	}
	return nil
}

// Normalize fills defaults for unset values.
func (c *Config) Normalize() {
	if c.General.Listen == "" {
		c.General.Listen = ":8000"
	}
	if c.General.Listen[0] != ':' && !strings.Contains(c.General.Listen, ":") {
		c.General.Listen = ":" + c.General.Listen
	}
	if c.General.PipelineTimeout <= 0 {
		c.General.PipelineTimeout = 15 * time.Minute
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	c.LLM.BaseURL = strings.TrimRight(c.LLM.BaseURL, "/")
	if c.LLM.Model == "" {
		c.LLM.Model = "llama-3.1-8b-instant"
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("GROQ_API_KEY")
	}
	if c.Capability.BaseURL == "" {
		c.Capability.BaseURL = "http://localhost:8000"
	}
	c.Capability.BaseURL = strings.TrimRight(c.Capability.BaseURL, "/")
	if c.Capability.Timeout <= 0 {
		c.Capability.Timeout = 15 * time.Second
	}
	if c.Capability.Retries < 0 {
		c.Capability.Retries = 0
	}
	if c.Capability.Backoff <= 0 {
		c.Capability.Backoff = 300 * time.Millisecond
	}
	c.Sessions.Backend = strings.ToLower(strings.TrimSpace(c.Sessions.Backend))
	if c.Sessions.Backend == "" {
		c.Sessions.Backend = "memory"
	}
	if c.Sessions.Prefix == "" {
		c.Sessions.Prefix = "pharmaverse:session:"
	}
	c.Reports.Backend = strings.ToLower(strings.TrimSpace(c.Reports.Backend))
	if c.Reports.Backend == "" {
		c.Reports.Backend = "memory"
	}
	c.Reports.Renderer = strings.ToLower(strings.TrimSpace(c.Reports.Renderer))
	if c.Reports.Renderer == "" {
		c.Reports.Renderer = "chrome"
	}
	if c.Reports.RenderTimeout <= 0 {
		c.Reports.RenderTimeout = 45 * time.Second
	}
	if c.Reports.DownloadPrefix == "" {
		c.Reports.DownloadPrefix = "/downloads/reports/"
	}
	if c.Streams.StreamPrefix == "" {
		c.Streams.StreamPrefix = "pharmaverse:events:"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "pharmaverse"
	}
}

// Validate reports configuration that cannot be served.
func (c *Config) Validate() error {
	switch c.Sessions.Backend {
	case "memory":
	case "redis":
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("sessions: %w", err)
		}
	default:
		return fmt.Errorf("sessions.backend must be memory or redis (got %q)", c.Sessions.Backend)
	}
	switch c.Reports.Backend {
	case "memory":
	case "postgres":
		if _, err := c.Postgres.DSN(); err != nil {
			return fmt.Errorf("reports: %w", err)
		}
	default:
		return fmt.Errorf("reports.backend must be memory or postgres (got %q)", c.Reports.Backend)
	}
	switch c.Reports.Renderer {
	case "chrome", "html":
	default:
		return fmt.Errorf("reports.renderer must be chrome or html (got %q)", c.Reports.Renderer)
	}
	if c.Streams.MirrorEnabled {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("streams: %w", err)
		}
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0,2] (got %v)", c.LLM.Temperature)
	}
	if c.LLM.MaxRunCalls < 0 || c.LLM.MaxRunTokens < 0 {
		return fmt.Errorf("llm.max_run_calls and llm.max_run_tokens cannot be negative")
	}
	return c.Telemetry.Validate()
}

// LoadConfig reads the JSON config file (optional) and PHARMAVERSE_* env overrides.
// Fatal configuration problems panic, like the rest of the service bootstrap.
func LoadConfig(path string) *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.SetDefault("general.listen", ":8000")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("capability.retries", 2)
	v.SetDefault("capability.mock", true)
	v.SetDefault("sessions.backend", "memory")
	v.SetDefault("reports.backend", "memory")
	v.SetDefault("reports.renderer", "chrome")
	v.SetDefault("streams.max_len", 1000)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("PHARMAVERSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return &cfg
}

// AutomaticEnv only resolves keys viper already knows about; bind the ones that have no default.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"general.pipeline_timeout", "general.debug",
		"llm.base_url", "llm.api_key", "llm.model", "llm.timeout", "llm.max_run_calls", "llm.max_run_tokens",
		"capability.base_url", "capability.timeout", "capability.backoff",
		"sessions.ttl", "sessions.prefix",
		"redis.host", "redis.port", "redis.password", "redis.db",
		"postgres.url", "postgres.host", "postgres.port", "postgres.user", "postgres.password", "postgres.dbname", "postgres.sslmode",
		"reports.render_timeout", "reports.download_prefix", "reports.chrome_path",
		"streams.mirror_enabled", "streams.stream_prefix",
		"telemetry.enabled", "telemetry.otlp_endpoint", "telemetry.service_name",
	} {
		_ = v.BindEnv(key)
	}
}
