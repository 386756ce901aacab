package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"databuddy/internal/sqlutil"
)

// tlsConfigPrefix prefixes the per-source TLS config names registered with the MySQL driver.
const tlsConfigPrefix = "databuddy-"

var defaultPorts = map[sqlutil.Dialect]string{
	sqlutil.MySQL:    "3306",
	sqlutil.Postgres: "5432",
	sqlutil.MSSQL:    "1433",
}

// Dialect resolves the configured db_type.
func (d *DataSourceConfig) Dialect() (sqlutil.Dialect, error) {
	return sqlutil.ParseDialect(d.DBType)
}

// URI returns the canonical {db_type}://{db_user}:{db_password}@{db_server}/{db_name} form.
func (d *DataSourceConfig) URI() string {
	return d.uri().String()
}

// RedactedURI is URI with the password masked, safe for logs.
func (d *DataSourceConfig) RedactedURI() string {
	return d.uri().Redacted()
}

func (d *DataSourceConfig) uri() *url.URL {
	return &url.URL{
		Scheme: d.DBType,
		User:   url.UserPassword(d.DBUser, d.DBPassword),
		Host:   d.DBServer,
		Path:   "/" + d.DBName,
	}
}

// DriverDSN returns the connection string handed to the dialect's database/sql driver.
// An explicit DSN is used as-is, except that MySQL DSNs always get parseTime and loc=UTC.
func (d *DataSourceConfig) DriverDSN() (string, error) {
	dialect, err := d.Dialect()
	if err != nil {
		return "", err
	}

	if dsn := strings.TrimSpace(d.DSN); dsn != "" {
		if dialect != sqlutil.MySQL {
			return dsn, nil
		}
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("data_sources.%s.dsn is invalid: %w", d.Name, err)
		}
		cfg.ParseTime = true
		if cfg.Loc == nil || cfg.Loc == time.Local {
			cfg.Loc = time.UTC
		}
		if cfg.TLSConfig == "" {
			cfg.TLSConfig = d.effectiveTLSParam()
		}
		return cfg.FormatDSN(), nil
	}

	switch dialect {
	case sqlutil.MySQL:
		return d.mysqlDSN(), nil
	case sqlutil.Postgres:
		return d.postgresDSN(), nil
	case sqlutil.MSSQL:
		return d.mssqlDSN(), nil
	default:
		return "", fmt.Errorf("unsupported db_type %q", d.DBType)
	}
}

func (d *DataSourceConfig) hostPort(dialect sqlutil.Dialect) string {
	if _, _, err := net.SplitHostPort(d.DBServer); err == nil {
		return d.DBServer
	}
	return net.JoinHostPort(d.DBServer, defaultPorts[dialect])
}

func (d *DataSourceConfig) mysqlDSN() string {
	cfg := mysql.NewConfig()
	cfg.User = d.DBUser
	cfg.Passwd = d.DBPassword
	cfg.Net = "tcp"
	cfg.Addr = d.hostPort(sqlutil.MySQL)
	cfg.DBName = d.DBName
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.TLSConfig = d.effectiveTLSParam()
	if len(d.Params) > 0 {
		cfg.Params = make(map[string]string, len(d.Params))
		for k, v := range d.Params {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN()
}

func (d *DataSourceConfig) postgresDSN() string {
	query := d.queryParams()
	switch d.TLS.Mode {
	case "off":
		query.Set("sslmode", "disable")
	case "skip-verify":
		query.Set("sslmode", "require")
	case "verify-ca", "verify-full":
		query.Set("sslmode", d.TLS.Mode)
		if ca := d.TLS.resolveCAFile(); ca != "" {
			query.Set("sslrootcert", ca)
		}
		if cert := d.TLS.resolveCertFile(); cert != "" {
			query.Set("sslcert", cert)
			query.Set("sslkey", d.TLS.resolveKeyFile())
		}
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.DBUser, d.DBPassword),
		Host:     d.hostPort(sqlutil.Postgres),
		Path:     "/" + d.DBName,
		RawQuery: query.Encode(),
	}
	return u.String()
}

func (d *DataSourceConfig) mssqlDSN() string {
	query := d.queryParams()
	if d.DBName != "" {
		query.Set("database", d.DBName)
	}
	switch d.TLS.Mode {
	case "off":
		query.Set("encrypt", "disable")
	case "skip-verify":
		query.Set("encrypt", "true")
		query.Set("TrustServerCertificate", "true")
	case "verify-ca", "verify-full":
		query.Set("encrypt", "true")
		if ca := d.TLS.resolveCAFile(); ca != "" {
			query.Set("certificate", ca)
		}
		if d.TLS.ServerName != "" {
			query.Set("hostNameInCertificate", d.TLS.ServerName)
		}
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(d.DBUser, d.DBPassword),
		Host:     d.hostPort(sqlutil.MSSQL),
		RawQuery: query.Encode(),
	}
	return u.String()
}

func (d *DataSourceConfig) queryParams() url.Values {
	query := url.Values{}
	keys := make([]string, 0, len(d.Params))
	for k := range d.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		query.Set(k, d.Params[k])
	}
	return query
}

func (d *DataSourceConfig) tlsConfigName() string {
	return tlsConfigPrefix + d.Name
}

// effectiveTLSParam returns the MySQL tls DSN parameter, or "" when unset.
func (d *DataSourceConfig) effectiveTLSParam() string {
	switch d.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "skip-verify":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return d.tlsConfigName()
	default:
		return d.TLS.Mode
	}
}

// RegisterTLS registers a custom TLS configuration with the MySQL driver.
// Must be called before opening a MySQL connection in verify-ca or verify-full mode.
// Other dialects carry their TLS settings in the DSN, so this is a no-op for them.
func (d *DataSourceConfig) RegisterTLS() error {
	if d.TLS.Mode != "verify-ca" && d.TLS.Mode != "verify-full" {
		return nil
	}
	if dialect, err := d.Dialect(); err != nil || dialect != sqlutil.MySQL {
		return nil
	}

	tlsCfg, err := d.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}
	if err := mysql.RegisterTLSConfig(d.tlsConfigName(), tlsCfg); err != nil {
		return fmt.Errorf("failed to register TLS config: %w", err)
	}
	return nil
}

func (d *DataSourceConfig) buildTLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	caFile := d.TLS.resolveCAFile()
	certFile := d.TLS.resolveCertFile()
	keyFile := d.TLS.resolveKeyFile()

	if caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", caFile, err)
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", caFile)
		}
		tlsCfg.RootCAs = certPool
	}

	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	} else if certFile != "" || keyFile != "" {
		return nil, fmt.Errorf("both cert_file and key_file must be specified for client certificate authentication")
	}

	if d.TLS.Mode == "verify-full" && d.TLS.ServerName != "" {
		tlsCfg.ServerName = d.TLS.ServerName
	}

	return tlsCfg, nil
}

func (t *DatabaseTLSConfig) resolveCAFile() string {
	if t.CAFileEnv != "" {
		if path := os.Getenv(t.CAFileEnv); path != "" {
			return path
		}
	}
	return t.CAFile
}

func (t *DatabaseTLSConfig) resolveCertFile() string {
	if t.CertFileEnv != "" {
		if path := os.Getenv(t.CertFileEnv); path != "" {
			return path
		}
	}
	return t.CertFile
}

func (t *DatabaseTLSConfig) resolveKeyFile() string {
	if t.KeyFileEnv != "" {
		if path := os.Getenv(t.KeyFileEnv); path != "" {
			return path
		}
	}
	return t.KeyFile
}
