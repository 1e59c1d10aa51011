package config

import (
	"fmt"
	"net/url"
	"strings"

	"landscapesim/pkg/batch/util/exception"
)

// EmbeddedConfig holds the YAML document compiled into the binary.
type EmbeddedConfig []byte

// ConnectionPoolConfig tunes database/sql pooling.
type ConnectionPoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `yaml:"conn_max_lifetime_seconds"`
}

// DatabaseConfig selects the store backing projects, scenarios, records and jobs.
type DatabaseConfig struct {
	Type           string               `yaml:"type"` // postgres | pgx | mysql | sqlite | memory
	Host           string               `yaml:"host"`
	Port           int                  `yaml:"port"`
	Database       string               `yaml:"database"`
	User           string               `yaml:"user"`
	Password       string               `yaml:"password"`
	Sslmode        string               `yaml:"sslmode"`
	Path           string               `yaml:"path"` // sqlite file
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

// ConnectionString returns the DSN handed to database/sql for Type.
func (c DatabaseConfig) ConnectionString() string {
	switch strings.ToLower(c.Type) {
	case "postgres", "pgx":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.Database, c.Sslmode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "sqlite":
		return c.Path
	default:
		return ""
	}
}

// MigrationURL returns the URL golang-migrate expects for Type.
func (c DatabaseConfig) MigrationURL() string {
	switch strings.ToLower(c.Type) {
	case "postgres", "pgx":
		return c.ConnectionString()
	case "mysql":
		return "mysql://" + c.ConnectionString()
	case "sqlite":
		return "sqlite://" + c.Path
	default:
		return ""
	}
}

// EngineConfig describes the external simulation console.
type EngineConfig struct {
	Executable    string `yaml:"executable"`
	Console       string `yaml:"console"`  // protocol name passed as --console=
	Platform      string `yaml:"platform"` // auto | native | posix
	Launcher      string `yaml:"launcher"` // prefix used on posix hosts
	TempDir       string `yaml:"temp_dir"`
	KeepTempFiles bool   `yaml:"keep_temp_files"`
}

// LibraryConfig registers one engine library file.
type LibraryConfig struct {
	Name         string `yaml:"name"`
	File         string `yaml:"file"`
	OriginalFile string `yaml:"original_file"`
	Contrib      string `yaml:"contrib"` // importer bundle; empty uses the defaults
}

// BatchConfig tunes the job runner.
type BatchConfig struct {
	PollingIntervalSeconds int    `yaml:"polling_interval_seconds"`
	JobName                string `yaml:"job_name"`
	ChunkSize              int    `yaml:"chunk_size"`
}

// PublishConfig selects the blob store spatial rasters are published to.
type PublishConfig struct {
	Driver    string `yaml:"driver"` // fs | s3 | memory | "" (disabled)
	Root      string `yaml:"root"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	Prefix    string `yaml:"prefix"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig selects level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// SystemConfig holds process-wide settings.
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// Config is the root configuration document.
type Config struct {
	Database       DatabaseConfig  `yaml:"database"`
	Engine         EngineConfig    `yaml:"engine"`
	Libraries      []LibraryConfig `yaml:"libraries"`
	Batch          BatchConfig     `yaml:"batch"`
	Publish        PublishConfig   `yaml:"publish"`
	Metrics        MetricsConfig   `yaml:"metrics"`
	System         SystemConfig    `yaml:"system"`
	EmbeddedConfig EmbeddedConfig  `yaml:"-"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Type: "memory"},
		Engine: EngineConfig{
			Console:  "stsim",
			Platform: "auto",
			Launcher: "mono",
		},
		Batch: BatchConfig{
			PollingIntervalSeconds: 30,
			JobName:                "runModel",
			ChunkSize:              500,
		},
		Metrics: MetricsConfig{ListenAddr: ":9090"},
		System: SystemConfig{
			Timezone: "UTC",
			Logging:  LoggingConfig{Level: "INFO", Format: "text"},
		},
	}
}

// Library returns the library registered under name.
func (c *Config) Library(name string) (LibraryConfig, bool) {
	for _, l := range c.Libraries {
		if l.Name == name {
			return l, true
		}
	}
	return LibraryConfig{}, false
}

// Validate rejects configurations the application cannot start with.
func (c *Config) Validate() error {
	if c.Engine.Executable == "" {
		return exception.New(exception.KindConfiguration, "config", "engine.executable is required", nil)
	}
	switch strings.ToLower(c.Engine.Platform) {
	case "", "auto", "native", "posix":
	default:
		return exception.Newf(exception.KindConfiguration, "config", "engine.platform %q is not one of auto, native, posix", c.Engine.Platform)
	}
	switch strings.ToLower(c.Database.Type) {
	case "memory", "postgres", "pgx", "mysql":
	case "sqlite":
		if c.Database.Path == "" {
			return exception.New(exception.KindConfiguration, "config", "database.path is required for sqlite", nil)
		}
	default:
		return exception.Newf(exception.KindConfiguration, "config", "unsupported database type %q", c.Database.Type)
	}
	seen := make(map[string]bool, len(c.Libraries))
	for i, l := range c.Libraries {
		if l.Name == "" {
			return exception.Newf(exception.KindConfiguration, "config", "libraries[%d].name is required", i)
		}
		if l.File == "" {
			return exception.Newf(exception.KindConfiguration, "config", "library %q has no file", l.Name)
		}
		if seen[l.Name] {
			return exception.Newf(exception.KindConfiguration, "config", "library %q is declared twice", l.Name)
		}
		seen[l.Name] = true
	}
	return nil
}
