// Package config loads node configuration from a YAML file overlaid with environment
// variables. Environment always wins over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BogBogdan/ot-node/internal/commands/executor"
	"github.com/BogBogdan/ot-node/internal/commands/protocols"
	"github.com/BogBogdan/ot-node/internal/data/db"
	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	"github.com/BogBogdan/ot-node/internal/observability"
	"github.com/BogBogdan/ot-node/internal/paranet"
	"github.com/BogBogdan/ot-node/internal/pkg/envutil"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
	"github.com/BogBogdan/ot-node/internal/triplestore"
	"github.com/BogBogdan/ot-node/internal/ual"
)

const EnvConfigPath = "OTNODE_CONFIG"

type Config struct {
	Node        NodeConfig         `yaml:"node"`
	Server      ServerConfig       `yaml:"server"`
	Database    DatabaseConfig     `yaml:"database"`
	Redis       RedisConfig        `yaml:"redis"`
	TripleStore triplestore.Config `yaml:"tripleStore"`
	Commands    CommandsConfig     `yaml:"commands"`
	AssetSync   AssetSyncConfig    `yaml:"assetSync"`
	Paranet     ParanetConfig      `yaml:"paranet"`
	Protocols   ProtocolsConfig    `yaml:"protocols"`
	Otel        OtelConfig         `yaml:"otel"`
	Metrics     MetricsConfig      `yaml:"metrics"`
}

type NodeConfig struct {
	// DataDir holds the operation result cache and pending publish data.
	DataDir string `yaml:"dataDir"`
}

type ServerConfig struct {
	Port        string   `yaml:"port"`
	AuthSecret  string   `yaml:"authSecret"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

type DatabaseConfig struct {
	Driver       string        `yaml:"driver"`
	DSN          string        `yaml:"dsn"`
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	Name         string        `yaml:"name"`
	MaxOpenConns int           `yaml:"maxOpenConns"`
	MaxIdleConns int           `yaml:"maxIdleConns"`
	SlowQuery    time.Duration `yaml:"slowQuery"`
}

type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

type CommandsConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	PollInterval time.Duration `yaml:"pollInterval"`
	StaleAfter   time.Duration `yaml:"staleAfter"`
	BatchSize    int           `yaml:"batchSize"`
}

type AssetSyncConfig struct {
	SyncParanets      []string      `yaml:"syncParanets"`
	RetriesMax        int           `yaml:"retriesMax"`
	RetryDelay        time.Duration `yaml:"retryDelay"`
	BatchSize         int           `yaml:"batchSize"`
	Concurrency       int           `yaml:"concurrency"`
	DiscoveryPageSize int           `yaml:"discoveryPageSize"`
	Period            time.Duration `yaml:"period"`
}

type ParanetConfig struct {
	AllowCurated bool `yaml:"allowCurated"`
}

type ProtocolsConfig struct {
	NetworkRetries          int           `yaml:"networkRetries"`
	MinimumReplications     int           `yaml:"minimumReplications"`
	WriteUnifiedGraph       bool          `yaml:"writeUnifiedGraph"`
	CommandsRetention       time.Duration `yaml:"commandsRetention"`
	OperationRetention      time.Duration `yaml:"operationRetention"`
	PendingStorageRetention time.Duration `yaml:"pendingStorageRetention"`
	CleanerPeriod           time.Duration `yaml:"cleanerPeriod"`
}

type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"serviceName"`
	Environment string  `yaml:"environment"`
	Endpoint    string  `yaml:"endpoint"`
	Headers     string  `yaml:"headers"`
	SampleRatio float64 `yaml:"sampleRatio"`
	Insecure    bool    `yaml:"insecure"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Default() Config {
	ts := triplestore.DefaultConfig()
	return Config{
		Node:        NodeConfig{DataDir: "data"},
		Server:      ServerConfig{Port: "8900"},
		Database:    DatabaseConfig{Driver: db.DriverPostgres, Host: "localhost", Port: "5432", User: "postgres", Name: "operationaldb"},
		Redis:       RedisConfig{Channel: "otnode:operation-events"},
		TripleStore: ts,
		Commands:    CommandsConfig{Concurrency: 4, PollInterval: time.Second, StaleAfter: 5 * time.Minute, BatchSize: 32},
		AssetSync: AssetSyncConfig{
			RetriesMax:        3,
			RetryDelay:        time.Minute,
			BatchSize:         50,
			Concurrency:       4,
			DiscoveryPageSize: 100,
			Period:            time.Minute,
		},
		Protocols: ProtocolsConfig{
			NetworkRetries:          3,
			MinimumReplications:     1,
			CommandsRetention:       24 * time.Hour,
			OperationRetention:      24 * time.Hour,
			PendingStorageRetention: 7 * 24 * time.Hour,
			CleanerPeriod:           time.Hour,
		},
		Otel: OtelConfig{ServiceName: "ot-node", SampleRatio: 1},
	}
}

// Load reads path (when set), overlays the environment and validates the result.
func Load(path string, log *logger.Logger) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		raw, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if log != nil {
			log.Info("Loaded config file", "path", path)
		}
	}
	cfg.applyEnv(log)
	cfg.fillRepositories(envutil.String("TRIPLE_STORE_URL", "", log))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(log *logger.Logger) {
	c.Node.DataDir = envutil.String("DATA_DIR", c.Node.DataDir, log)

	c.Server.Port = envutil.String("PORT", c.Server.Port, log)
	c.Server.AuthSecret = envutil.String("AUTH_TOKEN_SECRET", c.Server.AuthSecret, log)
	c.Server.CORSOrigins = envutil.List("CORS_ORIGINS", c.Server.CORSOrigins, log)

	c.Database.Driver = envutil.String("DB_DRIVER", c.Database.Driver, log)
	c.Database.DSN = envutil.String("DB_DSN", c.Database.DSN, log)
	c.Database.Host = envutil.String("POSTGRES_HOST", c.Database.Host, log)
	c.Database.Port = envutil.String("POSTGRES_PORT", c.Database.Port, log)
	c.Database.User = envutil.String("POSTGRES_USER", c.Database.User, log)
	c.Database.Password = envutil.String("POSTGRES_PASSWORD", c.Database.Password, log)
	c.Database.Name = envutil.String("POSTGRES_NAME", c.Database.Name, log)

	c.Redis.Addr = envutil.String("REDIS_ADDR", c.Redis.Addr, log)
	c.Redis.Channel = envutil.String("REDIS_CHANNEL", c.Redis.Channel, log)

	c.TripleStore.Flavor = triplestore.Flavor(envutil.String("TRIPLE_STORE_FLAVOR", string(c.TripleStore.Flavor), log))
	c.TripleStore.ConnectMaxRetries = envutil.Int("TRIPLE_STORE_CONNECT_RETRIES", c.TripleStore.ConnectMaxRetries, log)
	c.TripleStore.ConnectRetryFrequency = envutil.Duration("TRIPLE_STORE_CONNECT_FREQUENCY", c.TripleStore.ConnectRetryFrequency, log)

	c.Commands.Concurrency = envutil.Int("COMMAND_CONCURRENCY", c.Commands.Concurrency, log)
	c.Commands.PollInterval = envutil.Duration("COMMAND_POLL_INTERVAL", c.Commands.PollInterval, log)

	c.AssetSync.SyncParanets = envutil.List("SYNC_PARANETS", c.AssetSync.SyncParanets, log)
	c.AssetSync.RetriesMax = envutil.Int("PARANET_SYNC_RETRIES_MAX", c.AssetSync.RetriesMax, log)
	c.AssetSync.Period = envutil.Duration("PARANET_SYNC_PERIOD", c.AssetSync.Period, log)
	c.Paranet.AllowCurated = envutil.Bool("PARANET_ALLOW_CURATED", c.Paranet.AllowCurated, log)

	c.Otel.Enabled = envutil.Bool("OTEL_ENABLED", c.Otel.Enabled, log)
	c.Otel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", c.Otel.Endpoint, log)
	c.Otel.Headers = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", c.Otel.Headers, log)
	c.Metrics.Enabled = envutil.Bool("METRICS_ENABLED", c.Metrics.Enabled, log)
}

// fillRepositories points every standard repository without an explicit entry at url.
func (c *Config) fillRepositories(url string) {
	if url == "" {
		return
	}
	if c.TripleStore.Repositories == nil {
		c.TripleStore.Repositories = map[string]triplestore.RepositoryConfig{}
	}
	for _, name := range knowledge.DefaultRepositories() {
		if _, ok := c.TripleStore.Repositories[name]; ok {
			continue
		}
		c.TripleStore.Repositories[name] = triplestore.RepositoryConfig{URL: url, Name: name}
	}
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Port) == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if err := c.TripleStore.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Commands.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("commands.concurrency must be positive, got %d", c.Commands.Concurrency))
	}
	if c.AssetSync.RetriesMax <= 0 {
		errs = append(errs, fmt.Errorf("assetSync.retriesMax must be positive, got %d", c.AssetSync.RetriesMax))
	}
	if c.Protocols.NetworkRetries < 0 {
		errs = append(errs, fmt.Errorf("protocols.networkRetries must not be negative, got %d", c.Protocols.NetworkRetries))
	}
	for _, p := range c.AssetSync.SyncParanets {
		if !ual.IsUAL(p) {
			errs = append(errs, fmt.Errorf("assetSync.syncParanets: %q is not a UAL", p))
		}
	}
	return errors.Join(errs...)
}

func (c Config) DB() db.Config {
	return db.Config{
		Driver:       c.Database.Driver,
		DSN:          c.Database.DSN,
		Host:         c.Database.Host,
		Port:         c.Database.Port,
		User:         c.Database.User,
		Password:     c.Database.Password,
		Name:         c.Database.Name,
		MaxOpenConns: c.Database.MaxOpenConns,
		MaxIdleConns: c.Database.MaxIdleConns,
		SlowQuery:    c.Database.SlowQuery,
	}
}

func (c Config) Executor() executor.Config {
	return executor.Config{
		Concurrency:  c.Commands.Concurrency,
		PollInterval: c.Commands.PollInterval,
		StaleAfter:   c.Commands.StaleAfter,
		BatchSize:    c.Commands.BatchSize,
	}
}

func (c Config) Sync() paranet.Config {
	return paranet.Config{
		RetriesMax:        c.AssetSync.RetriesMax,
		RetryDelay:        c.AssetSync.RetryDelay,
		BatchSize:         c.AssetSync.BatchSize,
		Concurrency:       c.AssetSync.Concurrency,
		DiscoveryPageSize: c.AssetSync.DiscoveryPageSize,
		AllowCurated:      c.Paranet.AllowCurated,
	}
}

func (c Config) Protocol() protocols.Config {
	return protocols.Config{
		SyncParanets:             c.AssetSync.SyncParanets,
		ParanetSyncPeriod:        c.AssetSync.Period,
		CommandsCleanerPeriod:    c.Protocols.CleanerPeriod,
		CommandsRetention:        c.Protocols.CommandsRetention,
		OperationIDCleanerPeriod: c.Protocols.CleanerPeriod,
		OperationIDRetention:     c.Protocols.OperationRetention,
		PendingStorageRetention:  c.Protocols.PendingStorageRetention,
		NetworkRetries:           c.Protocols.NetworkRetries,
		MinimumReplications:      c.Protocols.MinimumReplications,
		WriteUnifiedGraph:        c.Protocols.WriteUnifiedGraph,
	}
}

func (c Config) Tracing(version string) observability.OtelConfig {
	return observability.OtelConfig{
		Enabled:     c.Otel.Enabled,
		ServiceName: c.Otel.ServiceName,
		Environment: c.Otel.Environment,
		Version:     version,
		SampleRatio: c.Otel.SampleRatio,
		Endpoint:    c.Otel.Endpoint,
		Headers:     observability.ParseHeaders(c.Otel.Headers),
		Insecure:    c.Otel.Insecure,
	}
}
