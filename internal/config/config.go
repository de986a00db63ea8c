package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/element-scan/holders-indexer/internal/registry"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
}

// EthereumConfig holds Ethereum RPC configuration
type EthereumConfig struct {
	RPCURL               string        `mapstructure:"rpc_url"`
	MulticallAddress     string        `mapstructure:"multicall_address"`
	BlockHeadTTL         time.Duration `mapstructure:"block_head_ttl"`
	BlockHeadStaleWindow time.Duration `mapstructure:"block_head_stale_window"`
}

// RPCConfig holds batching, concurrency, and retry settings for the
// contract-read gateway
type RPCConfig struct {
	MaxWorkers         int           `mapstructure:"max_workers"`
	MulticallBatchSize int           `mapstructure:"multicall_batch_size"`
	LogChunkSize       uint64        `mapstructure:"log_chunk_size"`
	MaxRetries         uint64        `mapstructure:"max_retries"`
	InitialBackoff     time.Duration `mapstructure:"initial_backoff"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
	Burst              int           `mapstructure:"burst"`
}

// CacheConfig holds cache backend configuration. An empty redis_addr
// selects the in-process memory store.
type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	MaxEntries    int           `mapstructure:"max_entries"`
	HoldersTTL    time.Duration `mapstructure:"holders_ttl"`
	StateTTL      time.Duration `mapstructure:"state_ttl"`
}

// PopulationConfig holds population pipeline configuration
type PopulationConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	ChunkSize  int           `mapstructure:"chunk_size"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// APIConfig holds configuration for the API server
type APIConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig              `mapstructure:"server"`
	Ethereum   EthereumConfig            `mapstructure:"ethereum"`
	RPC        RPCConfig                 `mapstructure:"rpc"`
	Cache      CacheConfig               `mapstructure:"cache"`
	Population PopulationConfig          `mapstructure:"population"`
	Auth       AuthConfig                `mapstructure:"auth"`
	Contracts  []registry.ContractConfig `mapstructure:"contracts"`
}

// LoadAPIConfig loads configuration for the API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("ethereum.block_head_ttl", "12s")
	v.SetDefault("ethereum.block_head_stale_window", "60s")
	v.SetDefault("rpc.max_workers", 8)
	v.SetDefault("rpc.multicall_batch_size", 100)
	v.SetDefault("rpc.log_chunk_size", 2000)
	v.SetDefault("rpc.max_retries", 3)
	v.SetDefault("rpc.initial_backoff", "500ms")
	v.SetDefault("rpc.requests_per_second", 25)
	v.SetDefault("rpc.burst", 50)
	v.SetDefault("cache.max_entries", 1024)
	v.SetDefault("cache.holders_ttl", "1h")
	v.SetDefault("cache.state_ttl", "24h")
	v.SetDefault("population.timeout", "60s")
	v.SetDefault("population.chunk_size", 500)
	v.SetDefault("population.stale_after", "30m")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config APIConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if config.Ethereum.RPCURL == "" {
		return nil, errors.New("ethereum.rpc_url is required")
	}
	if len(config.Contracts) == 0 {
		return nil, errors.New("at least one contract must be configured")
	}

	return &config, nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search for config.yaml in multiple locations:
		// 1. Current directory
		v.AddConfigPath(".")
		// 2. Service-specific directory (e.g., cmd/api/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("HOLDERS_INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		// Ethereum
		"ethereum.rpc_url",
		"ethereum.multicall_address",
		"ethereum.block_head_ttl",
		"ethereum.block_head_stale_window",
		// RPC gateway
		"rpc.max_workers",
		"rpc.multicall_batch_size",
		"rpc.log_chunk_size",
		"rpc.max_retries",
		"rpc.initial_backoff",
		"rpc.requests_per_second",
		"rpc.burst",
		// Cache
		"cache.redis_addr",
		"cache.redis_password",
		"cache.redis_db",
		"cache.max_entries",
		"cache.holders_ttl",
		"cache.state_ttl",
		// Population
		"population.timeout",
		"population.chunk_size",
		"population.stale_after",
		// Auth
		"auth.api_keys",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	// Default to config directory
	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}
