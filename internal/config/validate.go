package config

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"databuddy/internal/format"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Real-world UTC offsets run from -12:00 to +14:00.
const (
	minTimedeltaMins = -12 * 60
	maxTimedeltaMins = 14 * 60
)

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	if len(c.DataSources) == 0 {
		result.addError("data_sources", "at least one data source is required",
			"add a data_sources.<name> block with db_type, db_server and db_name")
	}
	for _, name := range c.DataSourceNames() {
		ds := c.DataSources[name]
		ds.validate("data_sources."+name, result)
		validatePool("data_sources."+name+".pool", c.PoolFor(name), result)
	}
	for name, pool := range c.Engine {
		if name != DefaultEngineKey {
			if _, ok := c.DataSources[name]; !ok {
				result.addWarning("engine."+name, "engine settings name an unknown data source",
					"use \"*\" for defaults or a configured data source name")
			}
		}
		validatePool("engine."+name, pool, result)
	}

	if c.TimedeltaMins < minTimedeltaMins || c.TimedeltaMins > maxTimedeltaMins {
		result.addError("timedelta_mins",
			fmt.Sprintf("offset %d minutes is outside %d..%d", c.TimedeltaMins, minTimedeltaMins, maxTimedeltaMins),
			"330 is UTC+05:30, -240 is UTC-04:00")
	}

	c.Server.validate(result)
	c.Dashboard.validate(result)
	for name, report := range c.Reports {
		report.validate("reports."+name, c, result)
	}
	if c.Workers.Threads < 0 {
		result.addError("workers.threads", "threads cannot be negative", "use 0 for the default")
	}
	c.Observability.validate(result)

	return result
}

func (d *DataSourceConfig) validate(prefix string, result *ValidationResult) {
	if _, err := d.Dialect(); err != nil {
		result.addError(prefix+".db_type", err.Error(), "valid values are: mysql, postgres, mssql")
	}

	if strings.TrimSpace(d.DSN) == "" {
		if strings.TrimSpace(d.DBServer) == "" {
			result.addError(prefix+".db_server", "db_server is required when dsn is not set", "")
		} else if host, port, err := net.SplitHostPort(d.DBServer); err == nil && (host == "" || port == "") {
			result.addError(prefix+".db_server", fmt.Sprintf("invalid server address %q", d.DBServer), "use host or host:port")
		}
		if strings.TrimSpace(d.DBName) == "" {
			result.addError(prefix+".db_name", "db_name is required when dsn is not set", "")
		}
	}

	if d.PasswordPrompt && d.DBPasswordFile != "" {
		result.addWarning(prefix+".password_prompt", "password_prompt is ignored when db_password_file is set", "")
	}

	d.TLS.validate(prefix+".tls", result)
	validateGlobList(result, prefix+".filter.allow_tables", d.Filter.AllowTables)
	validateGlobList(result, prefix+".filter.deny_tables", d.Filter.DenyTables)

	if d.AutomapModels && !d.ReflectMetadata {
		result.addWarning(prefix+".automap_models", "automap_models reflects the schema even though reflect_metadata is false", "")
	}

	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.addWarning(prefix+".connection_retry_interval",
			"connection_retry_interval is greater than connection_timeout",
			"only one connection attempt will be made")
	}
	if d.ConnectionRetryInterval < 0 {
		result.addError(prefix+".connection_retry_interval", "connection_retry_interval cannot be negative", "")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.addError(prefix+".connection_retry_interval",
			"connection_retry_interval must be greater than 0 when connection_timeout is set",
			"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries")
	}
	if d.ConnectionTimeout < 0 {
		result.addError(prefix+".connection_timeout", "connection_timeout cannot be negative", "")
	}
}

func validatePool(prefix string, pool PoolConfig, result *ValidationResult) {
	if pool.MaxOpen < 0 {
		result.addError(prefix+".max_open", "max_open cannot be negative", "")
	}
	if pool.MaxIdle < 0 {
		result.addError(prefix+".max_idle", "max_idle cannot be negative", "")
	}
	if pool.MaxIdle > pool.MaxOpen && pool.MaxOpen > 0 {
		result.addWarning(prefix+".max_idle", "max_idle is greater than max_open",
			"idle connections will be limited to max_open")
	}
	if pool.MaxLifetime < 0 {
		result.addError(prefix+".max_lifetime", "max_lifetime cannot be negative", "")
	}
}

func (t *DatabaseTLSConfig) validate(prefix string, result *ValidationResult) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.addError(prefix+".mode", fmt.Sprintf("invalid TLS mode %q", t.Mode),
			"valid values are: off, skip-verify, verify-ca, verify-full")
	}

	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.resolveCAFile() == "" {
		result.addError(prefix+".ca_file", "CA file is required for verify-ca and verify-full modes",
			"set ca_file or ca_file_env to specify the CA certificate")
	}

	certFile := t.resolveCertFile()
	keyFile := t.resolveKeyFile()
	if (certFile != "") != (keyFile != "") {
		result.addError(prefix+".cert_file",
			"both cert_file and key_file must be specified for client certificate authentication",
			"provide both cert_file and key_file, or neither")
	}

	if t.Mode == "skip-verify" {
		result.addWarning(prefix+".mode", "skip-verify mode does not verify server certificates",
			"use verify-ca or verify-full in production")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.addError("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}
	if s.APIPrefix != "" && !strings.HasPrefix(s.APIPrefix, "/") {
		result.addError("server.api_prefix", "api_prefix must start with /", "")
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.addError("server.rate_limit_rps", "rate_limit_rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimitBurst <= 0 {
			result.addError("server.rate_limit_burst", "rate_limit_burst must be greater than 0 when rate limiting is enabled", "")
		}
	}
	if !s.RateLimitEnabled && (s.RateLimitRPS > 0 || s.RateLimitBurst > 0) {
		result.addWarning("server.rate_limit_enabled", "rate limit values are set but rate limiting is disabled",
			"enable server.rate_limit_enabled to apply rate limits")
	}

	if s.CORSEnabled {
		if len(s.CORSAllowedOrigins) == 0 {
			result.addError("server.cors_allowed_origins", "CORS enabled but no allowed origins configured",
				"set cors_allowed_origins or disable CORS")
		}
		hasWildcard := false
		for _, origin := range s.CORSAllowedOrigins {
			if strings.TrimSpace(origin) == "*" {
				hasWildcard = true
				break
			}
		}
		if hasWildcard && s.CORSAllowCredentials {
			result.addError("server.cors_allowed_origins", "wildcard origin (*) cannot be used with credentials",
				"use specific origins with credentials, or wildcard without credentials")
		}
		if hasWildcard {
			result.addWarning("server.cors_allowed_origins", "CORS wildcard origin enabled",
				"use specific origins in production for better security")
		}
	}

	if s.Auth.OIDCEnabled {
		if s.Auth.OIDCIssuerURL == "" {
			result.addError("server.auth.oidc_issuer_url", "issuer URL is required when OIDC is enabled", "")
		}
		if s.Auth.OIDCAudience == "" {
			result.addError("server.auth.oidc_audience", "audience is required when OIDC is enabled", "")
		}
	}

	if s.Admin.SchemaReloadEnabled && !s.Auth.OIDCEnabled && s.Admin.AuthToken == "" {
		result.addError("server.admin.auth_token", "admin endpoint requires OIDC or an auth token",
			"set server.admin.auth_token or server.admin.auth_token_file")
	}

	validTLSModes := map[string]bool{"": true, "off": true, "file": true}
	if !validTLSModes[s.TLSMode] {
		result.addError("server.tls_mode", fmt.Sprintf("invalid TLS mode %q", s.TLSMode), "valid values are: off, file")
	}
	if s.TLSMode == "file" {
		if s.TLSCertFile == "" {
			result.addError("server.tls_cert_file", "TLS cert file required when tls_mode is 'file'", "")
		}
		if s.TLSKeyFile == "" {
			result.addError("server.tls_key_file", "TLS key file required when tls_mode is 'file'", "")
		}
	}
}

func (d *DashboardConfig) validate(result *ValidationResult) {
	if !d.Enabled {
		return
	}
	if !strings.HasPrefix(d.URLPrefix, "/") {
		result.addError("dashboard.url_prefix", fmt.Sprintf("url_prefix %q must start with /", d.URLPrefix), "")
	}
	for i, item := range d.NavMenuItems {
		if strings.TrimSpace(item.Label) == "" || strings.TrimSpace(item.URL) == "" {
			result.addError(fmt.Sprintf("dashboard.nav_menu_items[%d]", i), "label and url are required", "")
		}
	}
	for field, kind := range d.FieldTypes {
		switch format.FieldType(kind) {
		case format.FieldCurrency, format.FieldPercentage:
		default:
			result.addError("dashboard.field_types."+field, fmt.Sprintf("unknown field type %q", kind),
				"valid values are: currency, percentage")
		}
	}
}

func (r *ReportConfig) validate(prefix string, cfg *Config, result *ValidationResult) {
	if _, ok := cfg.DataSources[r.DataSource]; !ok {
		result.addError(prefix+".data_source", fmt.Sprintf("unknown data source %q", r.DataSource), "")
	}
	if strings.TrimSpace(r.Table) == "" {
		result.addError(prefix+".table", "table is required", "")
	}
	if strings.TrimSpace(r.DateColumn) == "" {
		result.addError(prefix+".date_column", "date_column is required", "")
	}
	if r.Interval != "day" && r.Interval != "month" {
		result.addError(prefix+".interval", fmt.Sprintf("invalid interval %q", r.Interval), "valid values are: day, month")
	}
	if r.Days < 0 {
		result.addError(prefix+".days", "days cannot be negative", "")
	}
}

func validateGlobList(result *ValidationResult, field string, patterns []string) {
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			result.addError(field, "glob pattern cannot be empty", "")
			continue
		}
		if _, err := path.Match(strings.ToLower(pattern), "probe"); err != nil {
			result.addError(field, fmt.Sprintf("invalid glob pattern %q: %v", pattern, err), "")
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.addError("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"valid values are: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.addError("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio", "trace_sample_ratio must be between 0 and 1", "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
	if o.Metrics != nil {
		o.Metrics.validate("observability.metrics", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.addError(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			"valid values are: grpc, http/protobuf")
	}
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.addError(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			"use host:port or a full URL")
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.addError(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			"valid values are: none, gzip")
	}
	if o.RetryMaxAttempts < 0 {
		result.addError(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
