// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"exectrack/internal/api/dto"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. EXECTRACK_ETCD_TIMEOUT.
const EnvPrefix = "EXECTRACK"

// Config holds all configuration for the tracker server.
// The mapstructure tags are used by Viper to unmarshal the data.
type Config struct {
	NodeID string `mapstructure:"node_id" validate:"required"`

	// Backend serves test cases, sessions and reports: etcd or memory.
	Backend string `mapstructure:"backend" validate:"oneof=etcd memory"`
	// ExecutionStore overrides where execution rows live: etcd, postgres or memory.
	ExecutionStore string `mapstructure:"execution_store" validate:"oneof=etcd postgres memory"`

	Etcd           EtcdConfig           `mapstructure:"etcd"`
	Postgres       PostgresConfig       `mapstructure:"postgres"`
	TestCaseSource TestCaseSourceConfig `mapstructure:"testcase_source"`
	HTTP           ListenConfig         `mapstructure:"http"`
	GRPC           ListenConfig         `mapstructure:"grpc"`
	Reports        ReportsConfig        `mapstructure:"reports"`
	Log            LogConfig            `mapstructure:"log"`

	LockTimeout       time.Duration `mapstructure:"lock_timeout" validate:"gt=0"`
	LeaderElectionTTL time.Duration `mapstructure:"leader_election_ttl" validate:"gte=1s"`
}

type EtcdConfig struct {
	Endpoints []string      `mapstructure:"endpoints" validate:"required_if=Enabled true,dive,required"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// Enabled is derived from the backend choices, not read from config.
	Enabled bool `mapstructure:"-"`
}

type PostgresConfig struct {
	DSN          string `mapstructure:"dsn" validate:"required_if=Enabled true"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
	Enabled      bool   `mapstructure:"-"`
}

// TestCaseSourceConfig picks where test case definitions are read from.
// "store" uses the backend; "http" reads them from an external catalog.
type TestCaseSourceConfig struct {
	Kind       string        `mapstructure:"kind" validate:"oneof=store http"`
	BaseURL    string        `mapstructure:"base_url" validate:"required_if=Kind http,omitempty,url"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	Backoff    time.Duration `mapstructure:"backoff" validate:"gte=0"`
}

type ListenConfig struct {
	ListenAddr string `mapstructure:"listen_addr" validate:"required"`
}

type ReportsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true,omitempty,cron"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	return LoadFrom(viper.New(), ".env")
}

// LoadFrom reads configuration into v. envFile is optional; a missing file is ignored.
func LoadFrom(v *viper.Viper, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	SetDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	// AutomaticEnv does not split lists.
	if len(cfg.Etcd.Endpoints) == 1 && strings.Contains(cfg.Etcd.Endpoints[0], ",") {
		cfg.Etcd.Endpoints = strings.Split(cfg.Etcd.Endpoints[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults registers every key so environment overrides resolve during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("node_id", "exectrack-1")
	v.SetDefault("backend", "etcd")
	v.SetDefault("execution_store", "etcd")
	v.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd.timeout", "5s")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.auto_migrate", true)
	v.SetDefault("testcase_source.kind", "store")
	v.SetDefault("testcase_source.base_url", "")
	v.SetDefault("testcase_source.timeout", "10s")
	v.SetDefault("testcase_source.max_retries", 2)
	v.SetDefault("testcase_source.backoff", "200ms")
	v.SetDefault("http.listen_addr", ":8080")
	v.SetDefault("grpc.listen_addr", ":9090")
	v.SetDefault("reports.enabled", true)
	v.SetDefault("reports.schedule", "@every 1m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("lock_timeout", "5s")
	v.SetDefault("leader_election_ttl", "10s")
}

// Validate checks the decoded values, including the report cron schedule.
func (c *Config) Validate() error {
	c.Etcd.Enabled = c.Backend == "etcd" || c.ExecutionStore == "etcd"
	c.Postgres.Enabled = c.ExecutionStore == "postgres"
	if err := dto.Validate(dto.NewValidator(), c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
