package config

import (
	"sort"
	"time"

	"databuddy/internal/introspection"
	"databuddy/internal/naming"
)

// Config holds the application configuration.
type Config struct {
	DataSources   map[string]DataSourceConfig `mapstructure:"data_sources"`
	Engine        map[string]PoolConfig       `mapstructure:"engine"`
	TimedeltaMins int                         `mapstructure:"timedelta_mins"`
	Server        ServerConfig                `mapstructure:"server"`
	Dashboard     DashboardConfig             `mapstructure:"dashboard"`
	Reports       map[string]ReportConfig     `mapstructure:"reports"`
	Workers       WorkersConfig               `mapstructure:"workers"`
	Naming        naming.Config               `mapstructure:"naming"`
	Observability ObservabilityConfig         `mapstructure:"observability"`
}

// DataSourceNames returns the configured data source names in sorted order.
func (c *Config) DataSourceNames() []string {
	names := make([]string, 0, len(c.DataSources))
	for name := range c.DataSources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PoolFor returns the effective pool settings for a data source. The "*"
// engine section supplies defaults, the engine section named after the source
// overrides them, and the source's own pool block wins over both.
func (c *Config) PoolFor(name string) PoolConfig {
	pool := c.Engine[DefaultEngineKey]
	if named, ok := c.Engine[name]; ok {
		pool = mergePool(pool, named)
	}
	if ds, ok := c.DataSources[name]; ok {
		pool = mergePool(pool, ds.Pool)
	}
	return pool
}

// DefaultEngineKey names the engine section applied to every data source.
const DefaultEngineKey = "*"

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

func mergePool(base, override PoolConfig) PoolConfig {
	if override.MaxOpen != 0 {
		base.MaxOpen = override.MaxOpen
	}
	if override.MaxIdle != 0 {
		base.MaxIdle = override.MaxIdle
	}
	if override.MaxLifetime != 0 {
		base.MaxLifetime = override.MaxLifetime
	}
	return base
}

// DatabaseTLSConfig holds TLS/SSL configuration for database connections.
// Supports both server verification and client certificate authentication (mTLS).
type DatabaseTLSConfig struct {
	// Mode controls TLS behavior:
	//   - "off": No TLS (plaintext connection)
	//   - "skip-verify": TLS without server certificate verification (insecure)
	//   - "verify-ca": TLS with CA verification but no hostname check
	//   - "verify-full": TLS with full verification including hostname
	Mode string `mapstructure:"mode"`

	// CAFile is the path to the CA certificate for server verification.
	CAFile string `mapstructure:"ca_file"`
	// CAFileEnv is an environment variable name containing the CA file path.
	CAFileEnv string `mapstructure:"ca_file_env"`

	CertFile    string `mapstructure:"cert_file"`
	CertFileEnv string `mapstructure:"cert_file_env"`
	KeyFile     string `mapstructure:"key_file"`
	KeyFileEnv  string `mapstructure:"key_file_env"`

	// ServerName overrides the server name used for TLS verification.
	ServerName string `mapstructure:"server_name"`
}

// DataSourceConfig describes one named database connection.
type DataSourceConfig struct {
	// Name is the key under data_sources; filled in by Load.
	Name string `mapstructure:"-"`

	// DBType selects the dialect and driver: mysql, postgres or mssql.
	// Aliases such as tidb, postgresql and sqlserver are accepted.
	DBType         string `mapstructure:"db_type"`
	DBUser         string `mapstructure:"db_user"`
	DBPassword     string `mapstructure:"db_password"`
	DBPasswordFile string `mapstructure:"db_password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	DBServer       string `mapstructure:"db_server"`
	DBName         string `mapstructure:"db_name"`

	// DSN is a driver-native connection string. When set it replaces the
	// discrete connection fields.
	DSN     string `mapstructure:"dsn"`
	DSNFile string `mapstructure:"dsn_file"`

	// Params are appended to the driver DSN as query parameters.
	Params map[string]string `mapstructure:"params"`

	// ReflectMetadata loads every table and view of the schema at startup.
	ReflectMetadata bool `mapstructure:"reflect_metadata"`
	// AutomapModels exposes base tables with a primary key as browse endpoints.
	AutomapModels bool `mapstructure:"automap_models"`
	// Schema overrides the schema used for reflection (Postgres and MSSQL).
	Schema string `mapstructure:"schema"`

	Filter introspection.Filter `mapstructure:"filter"`
	TLS    DatabaseTLSConfig    `mapstructure:"tls"`
	Pool   PoolConfig           `mapstructure:"pool"`

	// ConnectionTimeout is the max time to wait for the database on startup.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// ConnectionRetryInterval is the initial interval between connection retries.
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`
}

// AuthConfig holds authentication parameters.
type AuthConfig struct {
	OIDCEnabled   bool          `mapstructure:"oidc_enabled"`
	OIDCIssuerURL string        `mapstructure:"oidc_issuer_url"`
	OIDCAudience  string        `mapstructure:"oidc_audience"`
	OIDCClockSkew time.Duration `mapstructure:"oidc_clock_skew"`
	OIDCCAFile    string        `mapstructure:"oidc_ca_file"`
}

// AdminConfig controls administrative endpoint exposure and authentication.
type AdminConfig struct {
	SchemaReloadEnabled bool   `mapstructure:"schema_reload_enabled"`
	AuthToken           string `mapstructure:"auth_token"`
	AuthTokenFile       string `mapstructure:"auth_token_file"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port                 int           `mapstructure:"port"`
	APIPrefix            string        `mapstructure:"api_prefix"`
	Auth                 AuthConfig    `mapstructure:"auth"`
	Admin                AdminConfig   `mapstructure:"admin"`
	RateLimitEnabled     bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRPS         float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst       int           `mapstructure:"rate_limit_burst"`
	CORSEnabled          bool          `mapstructure:"cors_enabled"`
	CORSAllowedOrigins   []string      `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   []string      `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   []string      `mapstructure:"cors_allowed_headers"`
	CORSExposeHeaders    []string      `mapstructure:"cors_expose_headers"`
	CORSAllowCredentials bool          `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int           `mapstructure:"cors_max_age"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout   time.Duration `mapstructure:"health_check_timeout"`

	TLSMode     string `mapstructure:"tls_mode"`      // "off" or "file"
	TLSCertFile string `mapstructure:"tls_cert_file"` // Path to certificate file
	TLSKeyFile  string `mapstructure:"tls_key_file"`  // Path to private key file
}

// NavMenuItem is a link shown in the dashboard navigation bar.
type NavMenuItem struct {
	Label string `mapstructure:"label"`
	URL   string `mapstructure:"url"`
}

// DashboardConfig controls the HTML dashboard.
type DashboardConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	URLPrefix      string            `mapstructure:"url_prefix"`
	Title          string            `mapstructure:"title"`
	NavMenuItems   []NavMenuItem     `mapstructure:"nav_menu_items"`
	TablesEnabled  bool              `mapstructure:"tables_enabled"`
	FieldTypes     map[string]string `mapstructure:"field_types"`
	CurrencySymbol string            `mapstructure:"currency_symbol"`
}

// ReportConfig describes a date-bucketed aggregate over one table.
type ReportConfig struct {
	Title      string   `mapstructure:"title"`
	DataSource string   `mapstructure:"data_source"`
	Table      string   `mapstructure:"table"`
	DateColumn string   `mapstructure:"date_column"`
	Interval   string   `mapstructure:"interval"` // "day" or "month"
	Sum        []string `mapstructure:"sum"`
	Count      bool     `mapstructure:"count"`
	Days       int      `mapstructure:"days"`
}

// WorkersConfig sizes the shared goroutine pools.
type WorkersConfig struct {
	Threads int `mapstructure:"threads"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio"`
	Logging          LoggingConfig `mapstructure:"logging"`

	// Global OTLP settings (defaults for all signals)
	OTLP OTLPConfig `mapstructure:"otlp"`

	// Signal-specific overrides (optional)
	Traces  *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs    *OTLPConfig `mapstructure:"logs,omitempty"`
	Metrics *OTLPConfig `mapstructure:"metrics,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // "none", "gzip"
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

// GetTracesConfig returns the effective OTLP config for traces
func (c *ObservabilityConfig) GetTracesConfig() OTLPConfig {
	if c.Traces != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Traces)
	}
	return c.OTLP
}

// GetLogsConfig returns the effective OTLP config for logs
func (c *ObservabilityConfig) GetLogsConfig() OTLPConfig {
	if c.Logs != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Logs)
	}
	return c.OTLP
}

// GetMetricsConfig returns the effective OTLP config for metrics
func (c *ObservabilityConfig) GetMetricsConfig() OTLPConfig {
	if c.Metrics != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Metrics)
	}
	return c.OTLP
}

// mergeOTLPConfigs merges signal-specific config over global defaults
func mergeOTLPConfigs(base OTLPConfig, override OTLPConfig) OTLPConfig {
	result := base

	if override.Endpoint != "" {
		result.Endpoint = override.Endpoint
	}
	if override.Protocol != "" {
		result.Protocol = override.Protocol
	}
	// Insecure cannot distinguish unset from false; a present override wins.
	result.Insecure = override.Insecure

	if override.TLSCertFile != "" {
		result.TLSCertFile = override.TLSCertFile
	}
	if override.TLSClientCertFile != "" {
		result.TLSClientCertFile = override.TLSClientCertFile
	}
	if override.TLSClientKeyFile != "" {
		result.TLSClientKeyFile = override.TLSClientKeyFile
	}

	if override.Headers != nil {
		result.Headers = make(map[string]string, len(base.Headers)+len(override.Headers))
		for k, v := range base.Headers {
			result.Headers[k] = v
		}
		for k, v := range override.Headers {
			result.Headers[k] = v
		}
	}

	if override.Timeout != 0 {
		result.Timeout = override.Timeout
	}
	if override.Compression != "" {
		result.Compression = override.Compression
	}
	if override.RetryMaxAttempts != 0 {
		result.RetryEnabled = override.RetryEnabled
		result.RetryMaxAttempts = override.RetryMaxAttempts
	}

	return result
}
