package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix is prepended to environment variable names, e.g. DATABUDDY_SERVER_PORT.
const EnvPrefix = "DATABUDDY"

var defineFlagsOnce sync.Once

// Load loads configuration from multiple sources with the following precedence:
// 1. Explicit overrides (v.Set) – secret files and the interactive password prompt
// 2. Command line flags
// 3. Environment variables
// 4. Config file
// 5. Default values
func Load() (*Config, error) {
	defineFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}
	cfgPath, _ := pflag.CommandLine.GetString("config")
	return load(viper.New(), cfgPath, pflag.CommandLine)
}

func load(v *viper.Viper, cfgPath string, flags *pflag.FlagSet) (*Config, error) {
	setDefaults(v)

	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("databuddy")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/databuddy/")
		v.AddConfigPath("$HOME/.databuddy")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return finish(v, flags)
}

// finish layers env, flags and secrets over what v already holds and decodes the result.
func finish(v *viper.Viper, flags *pflag.FlagSet) (*Config, error) {
	// Data source keys are only known once the file is read; registering their
	// defaults also makes them visible to AutomaticEnv.
	names := dataSourceNames(v)
	for _, name := range names {
		setDataSourceDefaults(v, name)
	}

	// Canonical keys: dot + snake_case
	// Env vars: DATABUDDY_DATA_SOURCES_MAIN_DB_PASSWORD
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		bindChangedFlagsToViper(v, flags)
	}
	if err := validateSingleStdinFileSource(v, names); err != nil {
		return nil, err
	}

	for _, name := range names {
		if err := loadDataSourceSecrets(v, name); err != nil {
			return nil, err
		}
	}

	if v.GetString("server.admin.auth_token") == "" && v.GetString("server.admin.auth_token_file") != "" {
		tokenPath := v.GetString("server.admin.auth_token_file")
		token, err := readSecretFile(tokenPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read admin auth token file: %w", err)
		}
		if token == "" {
			return nil, fmt.Errorf("admin auth token file %q is empty", tokenPath)
		}
		v.Set("server.admin.auth_token", token)
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	for name, ds := range cfg.DataSources {
		ds.Name = name
		cfg.DataSources[name] = ds
	}

	return &cfg, nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToStringSliceHookFunc(","),
	)
}

func dataSourceNames(v *viper.Viper) []string {
	raw := v.GetStringMap("data_sources")
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func dataSourceKey(name, field string) string {
	return "data_sources." + name + "." + field
}

func loadDataSourceSecrets(v *viper.Viper, name string) error {
	if v.GetString(dataSourceKey(name, "dsn")) == "" && v.GetString(dataSourceKey(name, "dsn_file")) != "" {
		dsn, err := readSecretFile(v.GetString(dataSourceKey(name, "dsn_file")))
		if err != nil {
			return fmt.Errorf("failed to read DSN file for data source %q: %w", name, err)
		}
		v.Set(dataSourceKey(name, "dsn"), dsn)
	}

	if v.GetString(dataSourceKey(name, "db_password")) == "" && v.GetString(dataSourceKey(name, "db_password_file")) != "" {
		pwd, err := readSecretFile(v.GetString(dataSourceKey(name, "db_password_file")))
		if err != nil {
			return fmt.Errorf("failed to read password file for data source %q: %w", name, err)
		}
		v.Set(dataSourceKey(name, "db_password"), pwd)
	}
	if v.GetString(dataSourceKey(name, "db_password")) == "" && v.GetBool(dataSourceKey(name, "password_prompt")) {
		pwd, err := promptPassword(name)
		if err != nil {
			return fmt.Errorf("failed to read password for data source %q: %w", name, err)
		}
		v.Set(dataSourceKey(name, "db_password"), pwd)
	}
	return nil
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(v *viper.Viper, flags *pflag.FlagSet) {
	flags.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := flags.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := flags.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := flags.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := flags.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := flags.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := flags.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// defineFlags defines all command line flags using canonical snake_case keys.
// Data sources are keyed by name and only configurable through the file or env.
func defineFlags() {
	defineFlagsOnce.Do(func() {
		pflag.Int("timedelta_mins", 0, "Local time offset from UTC in minutes (330 = +05:30)")

		// Server flags
		pflag.Int("server.port", 0, "HTTP server port")
		pflag.String("server.api_prefix", "", "Path prefix for query endpoints")
		pflag.Bool("server.auth.oidc_enabled", false, "Enable OIDC/JWKS authentication middleware")
		pflag.String("server.auth.oidc_issuer_url", "", "OIDC issuer URL (for discovery and JWKS)")
		pflag.String("server.auth.oidc_audience", "", "Expected JWT audience (client ID)")
		pflag.Duration("server.auth.oidc_clock_skew", 0, "Allowed JWT clock skew (e.g. 2m)")
		pflag.String("server.auth.oidc_ca_file", "", "CA bundle used to verify the OIDC provider")
		pflag.Bool("server.admin.schema_reload_enabled", false, "Enable /admin/reflect-schema endpoint")
		pflag.String("server.admin.auth_token", "", "Shared secret required in X-Admin-Token header")
		pflag.String("server.admin.auth_token_file", "", "Path to file containing admin auth token (use @- for stdin)")
		pflag.Bool("server.rate_limit_enabled", false, "Enable global rate limiting for all HTTP endpoints")
		pflag.Float64("server.rate_limit_rps", 0, "Global rate limit requests per second")
		pflag.Int("server.rate_limit_burst", 0, "Global rate limit burst size")
		pflag.Bool("server.cors_enabled", false, "Enable CORS (Cross-Origin Resource Sharing)")
		pflag.StringSlice("server.cors_allowed_origins", nil, "Allowed CORS origins (comma-separated or repeated)")
		pflag.StringSlice("server.cors_allowed_methods", nil, "Allowed CORS methods (comma-separated or repeated)")
		pflag.StringSlice("server.cors_allowed_headers", nil, "Allowed CORS headers (comma-separated or repeated)")
		pflag.StringSlice("server.cors_expose_headers", nil, "CORS headers to expose to browser (comma-separated or repeated)")
		pflag.Bool("server.cors_allow_credentials", false, "Allow credentials in CORS requests")
		pflag.Int("server.cors_max_age", 0, "CORS preflight cache duration (seconds)")
		pflag.Duration("server.read_timeout", 0, "HTTP server read timeout")
		pflag.Duration("server.write_timeout", 0, "HTTP server write timeout")
		pflag.Duration("server.idle_timeout", 0, "HTTP server idle timeout")
		pflag.Duration("server.shutdown_timeout", 0, "HTTP server graceful shutdown timeout")
		pflag.Duration("server.health_check_timeout", 0, "Health check timeout")
		pflag.String("server.tls_mode", "", "TLS mode: off, file (default: off)")
		pflag.String("server.tls_cert_file", "", "Path to TLS certificate file")
		pflag.String("server.tls_key_file", "", "Path to TLS private key file")

		// Dashboard flags
		pflag.Bool("dashboard.enabled", false, "Serve the HTML dashboard")
		pflag.String("dashboard.url_prefix", "", "Dashboard mount point")
		pflag.String("dashboard.title", "", "Dashboard title")
		pflag.Bool("dashboard.tables_enabled", false, "List browse endpoints on the dashboard")
		pflag.String("dashboard.currency_symbol", "", "Currency symbol for formatted table cells")

		pflag.Int("workers.threads", 0, "Goroutines used for fan-out work (0 = GOMAXPROCS)")

		// Observability flags
		pflag.String("observability.service_name", "", "Service name for observability")
		pflag.String("observability.service_version", "", "Service version for observability")
		pflag.String("observability.environment", "", "Environment name (dev, staging, prod)")
		pflag.Bool("observability.metrics_enabled", false, "Enable metrics collection")
		pflag.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
		pflag.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
		pflag.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
		pflag.String("observability.logging.format", "", "Log format (json, text)")
		pflag.Bool("observability.logging.exports_enabled", false, "Enable OTLP log export")
		pflag.String("observability.otlp.endpoint", "", "OTLP endpoint for all signals (e.g., localhost:4317)")
		pflag.String("observability.otlp.protocol", "", "OTLP protocol for all signals (grpc, http/protobuf)")
		pflag.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")
		pflag.Duration("observability.otlp.timeout", 0, "OTLP export timeout")
		pflag.String("observability.otlp.compression", "", "OTLP compression (none, gzip)")

		pflag.StringP("config", "c", "", "Config file path")
	})
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	v.SetDefault("timedelta_mins", 0)

	v.SetDefault("engine", map[string]any{
		DefaultEngineKey: map[string]any{
			"max_open":     25,
			"max_idle":     5,
			"max_lifetime": 5 * time.Minute,
		},
	})

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_prefix", "/api")
	v.SetDefault("server.auth.oidc_enabled", false)
	v.SetDefault("server.auth.oidc_issuer_url", "")
	v.SetDefault("server.auth.oidc_audience", "")
	v.SetDefault("server.auth.oidc_clock_skew", 2*time.Minute)
	v.SetDefault("server.auth.oidc_ca_file", "")
	v.SetDefault("server.admin.schema_reload_enabled", false)
	v.SetDefault("server.admin.auth_token", "")
	v.SetDefault("server.admin.auth_token_file", "")
	v.SetDefault("server.rate_limit_enabled", false)
	v.SetDefault("server.rate_limit_rps", 0.0)
	v.SetDefault("server.rate_limit_burst", 0)
	v.SetDefault("server.cors_enabled", false)
	v.SetDefault("server.cors_allowed_origins", []string{})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Content-Type", "Authorization"})
	v.SetDefault("server.cors_expose_headers", []string{})
	v.SetDefault("server.cors_allow_credentials", false)
	v.SetDefault("server.cors_max_age", 86400)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.health_check_timeout", 2*time.Second)
	v.SetDefault("server.tls_mode", "off")
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")

	// Dashboard defaults
	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.url_prefix", "/databuddy")
	v.SetDefault("dashboard.title", "Databuddy")
	v.SetDefault("dashboard.tables_enabled", true)
	v.SetDefault("dashboard.field_types", map[string]string{})
	v.SetDefault("dashboard.currency_symbol", "Rs.")

	v.SetDefault("workers.threads", 0)

	// Observability defaults
	v.SetDefault("observability.service_name", "databuddy")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.exports_enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
	v.SetDefault("observability.otlp.retry_max_attempts", 3)
}

// setDataSourceDefaults registers every scalar key of one named data source.
func setDataSourceDefaults(v *viper.Viper, name string) {
	for field, value := range map[string]any{
		"db_type":                   "",
		"db_user":                   "",
		"db_password":               "",
		"db_password_file":          "",
		"password_prompt":           false,
		"db_server":                 "",
		"db_name":                   "",
		"dsn":                       "",
		"dsn_file":                  "",
		"reflect_metadata":          false,
		"automap_models":            false,
		"schema":                    "",
		"tls.mode":                  "",
		"tls.ca_file":               "",
		"tls.ca_file_env":           "",
		"tls.cert_file":             "",
		"tls.cert_file_env":         "",
		"tls.key_file":              "",
		"tls.key_file_env":          "",
		"tls.server_name":           "",
		"connection_timeout":        60 * time.Second,
		"connection_retry_interval": 2 * time.Second,
	} {
		v.SetDefault(dataSourceKey(name, field), value)
	}
}

// promptPassword prompts the user for a password without echoing to terminal.
func promptPassword(name string) (string, error) {
	fmt.Printf("Enter password for data source %q: ", name)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

// readSecretFile reads a file and trims it; "@-" reads stdin.
func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateSingleStdinFileSource(v *viper.Viper, names []string) error {
	stdinBackedKeys := []string{"server.admin.auth_token_file"}
	for _, name := range names {
		stdinBackedKeys = append(stdinBackedKeys,
			dataSourceKey(name, "dsn_file"),
			dataSourceKey(name, "db_password_file"),
		)
	}

	var configured []string
	for _, key := range stdinBackedKeys {
		if strings.TrimSpace(v.GetString(key)) == "@-" {
			configured = append(configured, key)
		}
	}

	if len(configured) > 1 {
		return fmt.Errorf(
			"multiple stdin-backed file settings use @- (%s); only one @- source is allowed",
			strings.Join(configured, ", "),
		)
	}

	return nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
