// Package config loads the hierarchical configuration described in spec §6:
// a global file merged with a per-service override file, then environment
// variable overrides, generalizing the teacher's defaultConfig+
// applyEnvOverrides pair onto spf13/viper. joho/godotenv loads a local .env
// file first, matching the teacher's `src` variant.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Queue configures the topic-partitioned log (C6 producer, C7 consumer).
type Queue struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	Group        string        `mapstructure:"group"`
	ProducerAcks string        `mapstructure:"producer_acks"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// Cache configures the sequence-store key store (C1).
type Cache struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	SeqStep        int64  `mapstructure:"seq_step"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// Registry configures the service-discovery client (C4, C5).
type Registry struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Protocol        string        `mapstructure:"protocol"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	DeregisterAfter time.Duration `mapstructure:"deregister_after"`
}

// Gateway configures a WS gateway process (C9).
type Gateway struct {
	BindHost          string        `mapstructure:"bind_host"`
	BindPort          int           `mapstructure:"bind_port"`
	Name              string        `mapstructure:"name"`
	Tags              []string      `mapstructure:"tags"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

// RPC configures the bind address and client timeouts used by a component
// that speaks gRPC (spec §5 "Cancellation & timeouts").
type RPC struct {
	BindHost       string        `mapstructure:"bind_host"`
	BindPort       int           `mapstructure:"bind_port"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Auth configures bearer-token verification (token issuance is out of
// scope per spec §1).
type Auth struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	Header     string        `mapstructure:"header"`
	Prefix     string        `mapstructure:"prefix"`
	Expiry     time.Duration `mapstructure:"expiry"`
}

// History configures the relational store backing C3 and the sequence
// snapshot persistence of C1.
type History struct {
	DSN             string        `mapstructure:"dsn"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	CleanerInterval time.Duration `mapstructure:"cleaner_interval"`
	CleanerExcept   []string      `mapstructure:"cleaner_except"`
}

// Metrics configures the Prometheus endpoint carried by every long-running
// binary.
type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Logging configures the zap logger (internal/logging).
type Logging struct {
	Level   string `mapstructure:"level"`
	Pretty  bool   `mapstructure:"pretty"`
}

// Config is the root configuration value. Components read only the
// sub-sections they need; it is passed by reference down the construction
// path rather than read from a global (Design Note, spec §9).
type Config struct {
	Queue    Queue    `mapstructure:"queue"`
	Cache    Cache    `mapstructure:"cache"`
	Registry Registry `mapstructure:"registry"`
	Gateway  Gateway  `mapstructure:"gateway"`
	RPC      RPC      `mapstructure:"rpc"`
	Auth     Auth     `mapstructure:"auth"`
	History  History  `mapstructure:"history"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Logging  Logging  `mapstructure:"logging"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("queue.brokers", []string{"localhost:9092"})
	v.SetDefault("queue.topic", "msgcore.messages")
	v.SetDefault("queue.group", "msgcore-dispatcher")
	v.SetDefault("queue.producer_acks", "all")
	v.SetDefault("queue.max_retries", 5)
	v.SetDefault("queue.retry_backoff", 100*time.Millisecond)

	v.SetDefault("cache.host", "localhost")
	v.SetDefault("cache.port", 6379)
	v.SetDefault("cache.seq_step", 5000)
	v.SetDefault("cache.max_connections", 20)

	v.SetDefault("registry.host", "localhost")
	v.SetDefault("registry.port", 8500)
	v.SetDefault("registry.protocol", "http")
	v.SetDefault("registry.poll_interval", 10*time.Second)
	v.SetDefault("registry.deregister_after", 60*time.Second)

	v.SetDefault("gateway.bind_host", "0.0.0.0")
	v.SetDefault("gateway.bind_port", 8080)
	v.SetDefault("gateway.heartbeat_interval", 30*time.Second)
	v.SetDefault("gateway.write_timeout", 10*time.Second)

	v.SetDefault("rpc.bind_host", "0.0.0.0")
	v.SetDefault("rpc.connect_timeout", 5*time.Second)
	v.SetDefault("rpc.request_timeout", 30*time.Second)

	v.SetDefault("auth.header", "Authorization")
	v.SetDefault("auth.prefix", "Bearer ")
	v.SetDefault("auth.expiry", 24*time.Hour)

	v.SetDefault("history.cleaner_interval", time.Hour)
	v.SetDefault("history.cleaner_except", []string{"Notification", "Service"})

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logging.level", "info")
}

// Load builds a Config by reading globalPath, merging serviceOverridePath
// over it (if non-empty and present), and layering environment variable
// overrides with the MSGCORE_ prefix (e.g. MSGCORE_CACHE_HOST). A .env file
// in the working directory is loaded first for local development, matching
// the `src` teacher variant; its absence is not an error.
func Load(globalPath, serviceOverridePath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("msgcore")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if globalPath != "" {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read global %q: %w", globalPath, err)
		}
	}

	if serviceOverridePath != "" {
		ov := viper.New()
		ov.SetConfigFile(serviceOverridePath)
		if err := ov.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(ov.AllSettings()); err != nil {
				return nil, fmt.Errorf("config: merge override %q: %w", serviceOverridePath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
