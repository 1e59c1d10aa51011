package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"landscapesim/pkg/batch/util/logger"
)

// BytesConfigLoader loads a Config from an in-memory YAML document.
type BytesConfigLoader struct {
	data []byte
}

// NewBytesConfigLoader returns a loader for data.
func NewBytesConfigLoader(data []byte) *BytesConfigLoader {
	return &BytesConfigLoader{data: data}
}

// Load parses the YAML document over the defaults and applies environment
// overrides.
func (l *BytesConfigLoader) Load() (*Config, error) {
	cfg := NewConfig()
	if err := yaml.Unmarshal(l.data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}
	cfg.EmbeddedConfig = l.data
	loadEnvVars(cfg)
	return cfg, nil
}

// LoadDotEnv loads path into the process environment. A missing file is not
// an error.
func LoadDotEnv(path string) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		logger.Warnf("could not load %s, continuing with the process environment: %v", path, err)
		return
	}
	logger.Infof("loaded environment from %s", path)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warnf("%s value %q is not an integer, keeping %d", key, v, *dst)
		return
	}
	*dst = n
}

func envBool(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warnf("%s value %q is not a boolean, keeping %t", key, v, *dst)
		return
	}
	*dst = b
}

func loadEnvVars(cfg *Config) {
	envString("DATABASE_TYPE", &cfg.Database.Type)
	envString("DATABASE_HOST", &cfg.Database.Host)
	envInt("DATABASE_PORT", &cfg.Database.Port)
	envString("DATABASE_DATABASE", &cfg.Database.Database)
	envString("DATABASE_USER", &cfg.Database.User)
	envString("DATABASE_PASSWORD", &cfg.Database.Password)
	envString("DATABASE_SSLMODE", &cfg.Database.Sslmode)
	envString("DATABASE_PATH", &cfg.Database.Path)
	envInt("DATABASE_MAX_OPEN_CONNS", &cfg.Database.ConnectionPool.MaxOpenConns)
	envInt("DATABASE_MAX_IDLE_CONNS", &cfg.Database.ConnectionPool.MaxIdleConns)
	envInt("DATABASE_CONN_MAX_LIFETIME_SECONDS", &cfg.Database.ConnectionPool.ConnMaxLifetimeSeconds)

	envString("ENGINE_EXECUTABLE", &cfg.Engine.Executable)
	envString("ENGINE_PLATFORM", &cfg.Engine.Platform)
	envString("ENGINE_TEMP_DIR", &cfg.Engine.TempDir)
	envBool("ENGINE_KEEP_TEMP_FILES", &cfg.Engine.KeepTempFiles)

	envInt("BATCH_POLLING_INTERVAL_SECONDS", &cfg.Batch.PollingIntervalSeconds)
	envString("BATCH_JOB_NAME", &cfg.Batch.JobName)
	envInt("BATCH_CHUNK_SIZE", &cfg.Batch.ChunkSize)

	envString("PUBLISH_DRIVER", &cfg.Publish.Driver)
	envString("PUBLISH_ROOT", &cfg.Publish.Root)
	envString("PUBLISH_BUCKET", &cfg.Publish.Bucket)
	envString("PUBLISH_REGION", &cfg.Publish.Region)
	envString("PUBLISH_ENDPOINT", &cfg.Publish.Endpoint)
	envBool("PUBLISH_PATH_STYLE", &cfg.Publish.PathStyle)
	envString("PUBLISH_PREFIX", &cfg.Publish.Prefix)

	envBool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	envString("METRICS_LISTEN_ADDR", &cfg.Metrics.ListenAddr)

	envString("SYSTEM_TIMEZONE", &cfg.System.Timezone)
	envString("SYSTEM_LOGGING_LEVEL", &cfg.System.Logging.Level)
	envString("SYSTEM_LOGGING_FORMAT", &cfg.System.Logging.Format)
}
