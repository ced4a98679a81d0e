package config

import "time"

// Config is the root of guardrails.yaml.
type Config struct {
	Guardrails GuardrailsConfig `yaml:"guardrails"`
	Retry      RetryConfig      `yaml:"retry"`
	Evidence   EvidenceConfig   `yaml:"evidence"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Server     ServerConfig     `yaml:"server"` // used by serve only
}

// GuardrailsConfig contains configuration for the guardrail pipeline.
type GuardrailsConfig struct {
	// PipelinePath is the JSON or YAML pipeline file to load.
	// Default: "guardrails.yaml"
	PipelinePath string `yaml:"pipeline_path"`

	// Watch enables hot reload of the pipeline file.
	// Default: false
	Watch bool `yaml:"watch"`

	// WatchDebounce is the quiet period before a changed file is reloaded.
	// Default: 100ms
	WatchDebounce time.Duration `yaml:"watch_debounce"`

	// Mode selects what happens when a gate blocks.
	// Options: "block" (return a typed error), "warn" (notify observers and proceed)
	// Default: "block"
	Mode string `yaml:"mode"`

	// DefaultTimeout bounds guardrails that do not set their own timeout.
	// Zero means unbounded.
	// Default: 0
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// RetryConfig contains the retry policy applied when output guardrails block.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	// 0 disables retries.
	// Default: 0
	MaxRetries int `yaml:"max_retries"`

	// Strategy selects the backoff calculator.
	// Options: "fixed", "linear", "exponential"
	// Default: "exponential"
	Strategy string `yaml:"strategy"`

	// BaseDelay is the delay for the first retry.
	// Default: 100ms
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxDelay caps the computed delay. Zero means no cap.
	// Default: 5s
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier is the growth factor for the exponential strategy.
	// Default: 2.0
	Multiplier float64 `yaml:"multiplier"`

	// Jitter spreads delays around the computed value (0.0 to 1.0).
	// Default: 0.0
	Jitter float64 `yaml:"jitter"`
}

// EvidenceConfig controls recording of gate decisions. Defaults are set in
// defaults.go; evidence is off unless enabled.
type EvidenceConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Backend   string          `yaml:"backend"` // memory | sqlite
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig selects the database/sql driver: "sqlite" is modernc.org/sqlite
// (pure Go), "sqlite3" is mattn/go-sqlite3 (cgo).
type SQLiteConfig struct {
	Path         string        `yaml:"path"`
	Driver       string        `yaml:"driver"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	WALMode      bool          `yaml:"wal_mode"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
}

// RecorderConfig sizes the asynchronous write queue. HashRequest stores a
// SHA-256 of the request messages with each record.
type RecorderConfig struct {
	AsyncBuffer  int           `yaml:"async_buffer"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	HashRequest  bool          `yaml:"hash_request"`
}

// RetentionConfig drives the cron pruner. Days 0 keeps records forever,
// MaxRecords 0 is unlimited, and an empty ArchivePath deletes without
// archiving.
type RetentionConfig struct {
	Days          int    `yaml:"days"`
	PruneSchedule string `yaml:"prune_schedule"` // cron, "0 3 * * *"
	MaxRecords    int64  `yaml:"max_records"`
	ArchivePath   string `yaml:"archive_path"`
}

type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`  // debug | info | warn | error
	Format    string `yaml:"format"` // json | text | console
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig names the Prometheus series
// <namespace>_<subsystem>_<name> and the path they are served on.
type MetricsConfig struct {
	Enabled         bool      `yaml:"enabled"`
	Path            string    `yaml:"path"`
	Namespace       string    `yaml:"namespace"`
	Subsystem       string    `yaml:"subsystem"`
	DurationBuckets []float64 `yaml:"duration_buckets"` // seconds
}

// TracingConfig configures OpenTelemetry export. SampleRatio is read only
// when Sampler is "ratio".
type TracingConfig struct {
	Enabled     bool       `yaml:"enabled"`
	Sampler     string     `yaml:"sampler"` // always | never | ratio
	SampleRatio float64    `yaml:"sample_ratio"`
	Exporter    string     `yaml:"exporter"` // otlp
	Endpoint    string     `yaml:"endpoint"` // host:port of the collector
	ServiceName string     `yaml:"service_name"`
	OTLP        OTLPConfig `yaml:"otlp"`
}

type OTLPConfig struct {
	Insecure bool          `yaml:"insecure"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ServerConfig contains the HTTP listener settings for the check API.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: ":9090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 60s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown. In-flight requests still
	// running afterwards are dropped.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestTimeout bounds a single check request, guardrails included.
	// Zero disables the per-request timeout.
	// Default: 30s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits the check request body.
	// Default: 1048576 (1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// TLS enables HTTPS when both files are set.
	TLS TLSConfig `yaml:"tls"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// TLSConfig names the certificate and key served by the check API.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether both TLS files are configured.
func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are served.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins. ["*"] allows all.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed request headers.
	// Default: ["Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders is a list of headers exposed to the client.
	// Default: ["X-Request-ID"]
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the preflight cache lifetime in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`

	// AllowCredentials allows cookies and auth headers on CORS requests.
	// Default: false
	AllowCredentials bool `yaml:"allow_credentials"`
}
