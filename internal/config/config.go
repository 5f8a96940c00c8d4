package config

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/frel-dev/frel/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "frel.json"

	// DefaultAddr is the default server listen address.
	DefaultAddr = "localhost:8080"

	// DefaultSocketPath is the default websocket endpoint.
	DefaultSocketPath = "/ws"

	// DefaultMetricsPath is the default Prometheus endpoint.
	DefaultMetricsPath = "/metrics"

	// DefaultNamespace is the default metrics namespace.
	DefaultNamespace = "frel"

	DefaultMaxRounds       = 64
	DefaultPendingLimit    = 1024
	DefaultEventsPerSecond = 50
	DefaultBurst           = 20
	DefaultWriteTimeout    = "10s"
	DefaultReadLimit       = 64 * 1024
)

// Config represents the complete frel.json configuration.
type Config struct {
	// Name is the application name, used in logs.
	Name string `json:"name,omitempty"`

	// Runtime bounds the reactive runtime.
	Runtime RuntimeConfig `json:"runtime,omitempty"`

	// Server configures the websocket adapter.
	Server ServerConfig `json:"server,omitempty"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics,omitempty"`

	// Log configures the structured logger.
	Log LogConfig `json:"log,omitempty"`

	configPath string
}

// RuntimeConfig bounds one runtime instance. Zero means unlimited for the
// identity and fragment limits.
type RuntimeConfig struct {
	MaxIdentities uint64 `json:"maxIdentities,omitempty"`
	MaxFragments  int    `json:"maxFragments,omitempty"`
	MaxRounds     int    `json:"maxRounds,omitempty"`
	PendingLimit  int    `json:"pendingLimit,omitempty"`
}

// ServerConfig configures the websocket adapter.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr,omitempty"`

	// Path is the websocket endpoint.
	Path string `json:"path,omitempty"`

	// EventsPerSecond is the sustained inbound event rate per session.
	EventsPerSecond float64 `json:"eventsPerSecond,omitempty"`

	// Burst is the inbound event burst per session.
	Burst int `json:"burst,omitempty"`

	// ReadLimit is the maximum inbound message size in bytes.
	ReadLimit int64 `json:"readLimit,omitempty"`

	// WriteTimeout bounds each outbound write (e.g., "10s").
	WriteTimeout string `json:"writeTimeout,omitempty"`

	// AllowedOrigins lists origins accepted by the websocket upgrader.
	// Empty accepts same-origin requests only.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`

	// Tracing starts an OpenTelemetry span for every handled event.
	Tracing bool `json:"tracing,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Disabled  bool   `json:"disabled,omitempty"`
	Path      string `json:"path,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			MaxRounds:    DefaultMaxRounds,
			PendingLimit: DefaultPendingLimit,
		},
		Server: ServerConfig{
			Addr:            DefaultAddr,
			Path:            DefaultSocketPath,
			EventsPerSecond: DefaultEventsPerSecond,
			Burst:           DefaultBurst,
			ReadLimit:       DefaultReadLimit,
			WriteTimeout:    DefaultWriteTimeout,
		},
		Metrics: MetricsConfig{
			Path:      DefaultMetricsPath,
			Namespace: DefaultNamespace,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads frel.json from dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path and validates it.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.KindConfig, "config.Load", path).
				WithDetail("no %s found in %s", ConfigFileName, filepath.Dir(path))
		}
		return nil, errors.New(errors.KindConfig, "config.Load", path).Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New(errors.KindConfig, "config.Load", path).
			WithDetail("failed to parse: %v", err)
	}

	cfg.configPath = path
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New(errors.KindConfig, "config.Save", path).Wrap(err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New(errors.KindConfig, "config.Save", path).Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Runtime.MaxRounds == 0 {
		c.Runtime.MaxRounds = DefaultMaxRounds
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.Path == "" {
		c.Server.Path = DefaultSocketPath
	}
	if c.Server.EventsPerSecond == 0 {
		c.Server.EventsPerSecond = DefaultEventsPerSecond
	}
	if c.Server.Burst == 0 {
		c.Server.Burst = DefaultBurst
	}
	if c.Server.ReadLimit == 0 {
		c.Server.ReadLimit = DefaultReadLimit
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	const op = "config.Validate"
	switch {
	case c.Runtime.MaxFragments < 0:
		return errors.New(errors.KindConfig, op, "runtime.maxFragments").WithDetail("must not be negative")
	case c.Runtime.MaxRounds < 0:
		return errors.New(errors.KindConfig, op, "runtime.maxRounds").WithDetail("must not be negative")
	case c.Runtime.PendingLimit < 0:
		return errors.New(errors.KindConfig, op, "runtime.pendingLimit").WithDetail("must not be negative")
	case c.Server.EventsPerSecond < 0:
		return errors.New(errors.KindConfig, op, "server.eventsPerSecond").WithDetail("must not be negative")
	case c.Server.Burst < 0:
		return errors.New(errors.KindConfig, op, "server.burst").WithDetail("must not be negative")
	case c.Server.Path != "" && !strings.HasPrefix(c.Server.Path, "/"):
		return errors.New(errors.KindConfig, op, "server.path").WithDetail("must start with /")
	case c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/"):
		return errors.New(errors.KindConfig, op, "metrics.path").WithDetail("must start with /")
	}
	if c.Server.WriteTimeout != "" {
		if _, err := time.ParseDuration(c.Server.WriteTimeout); err != nil {
			return errors.New(errors.KindConfig, op, "server.writeTimeout").Wrap(err)
		}
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	if f := c.Log.Format; f != "" && f != "text" && f != "json" {
		return errors.New(errors.KindConfig, op, "log.format").WithDetail("unknown format %q", f)
	}
	return nil
}

// WriteTimeoutDuration returns the parsed write timeout, or the default when
// unset or invalid.
func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(s.WriteTimeout); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(DefaultWriteTimeout)
	return d
}

func (l LogConfig) level() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, errors.New(errors.KindConfig, "config.Validate", "log.level").
			WithDetail("unknown level %q", l.Level)
	}
}

// Logger builds a slog logger writing to w.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}
