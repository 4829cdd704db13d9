package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"proof-host/internal/types"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server            ServerConfig             `yaml:"server"`
	Database          DatabaseConfig           `yaml:"database"`
	NATS              NATSConfig               `yaml:"nats"`
	Log               LogConfig                `yaml:"log"`
	Actor             ActorConfig              `yaml:"actor"`
	Pool              PoolConfig               `yaml:"pool"`
	Monitor           MonitorConfig            `yaml:"monitor"`
	Provers           map[string]ProverConfig  `yaml:"provers"`  // proof type -> backend
	Networks          map[string]NetworkConfig `yaml:"networks"` // network name -> chain
	ProofRequest      types.ProofRequestOpt    `yaml:"proof_request"`      // server-side request defaults
	AggregationImages map[string]string        `yaml:"aggregation_images"` // proof type -> image id
	Admin             AdminConfig              `yaml:"admin"`
	CORS              CORSConfig               `yaml:"cors"`
	Paused            bool                     `yaml:"paused"` // start with the admission gate closed
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig Database configuration. Driver "memory" keeps tasks in process.
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig NATS message server configuration. Empty URL disables events.
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// LogConfig logrus configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// ActorConfig request actor configuration
type ActorConfig struct {
	ChannelCapacity  int `yaml:"channel_capacity"`
	EnqueueTimeoutMs int `yaml:"enqueue_timeout_ms"`
}

// EnqueueTimeout returns the enqueue wait as a duration
func (a ActorConfig) EnqueueTimeout() time.Duration {
	return time.Duration(a.EnqueueTimeoutMs) * time.Millisecond
}

// PoolConfig backend pool configuration
type PoolConfig struct {
	MaxConcurrency int64 `yaml:"max_concurrency"` // 0 = unbounded
}

// MonitorConfig live task monitor. Interval 0 disables it.
type MonitorConfig struct {
	IntervalSeconds   int `yaml:"interval_seconds"`
	StaleAfterSeconds int `yaml:"stale_after_seconds"`
}

// ProverConfig one proving backend. Native runs in process and needs no URL.
type ProverConfig struct {
	BaseURL string `yaml:"baseUrl"`
	Timeout int    `yaml:"timeout"` // seconds
	Enabled bool   `yaml:"enabled"`
}

// NetworkConfig chain resolver configuration for one network
type NetworkConfig struct {
	ChainID      uint64   `yaml:"chainId"` // 0 = ask the RPC node
	RPCEndpoints []string `yaml:"rpcEndpoints"`
	Enabled      bool     `yaml:"enabled"`
}

// AdminConfig Admin API access control configuration
type AdminConfig struct {
	AllowedIPs []string `yaml:"allowedIPs"` // List of allowed IP addresses or CIDR ranges
}

// CORSConfig CORS configuration. Empty AllowedOrigins allows every origin.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"` // seconds
}

var AppConfig *Config

// Default returns a configuration that runs a single in-memory host
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{Driver: "memory"},
		NATS: NATSConfig{
			Timeout:       10,
			ReconnectWait: 2,
			MaxReconnects: -1,
			SubjectPrefix: "proofhost",
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Actor: ActorConfig{
			ChannelCapacity:  1024,
			EnqueueTimeoutMs: 5000,
		},
		Monitor: MonitorConfig{
			IntervalSeconds:   30,
			StaleAfterSeconds: 3600,
		},
		Provers:           map[string]ProverConfig{"native": {Enabled: true}},
		Networks:          map[string]NetworkConfig{},
		AggregationImages: map[string]string{},
	}
}

// LoadConfig Load configuration file
func LoadConfig(configPath string) error {
	// ifconfiguration file pathempty，Use default path
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return err
	}
	fmt.Printf("✅ [%s] Loading configuration from config file: %s\n", time.Now().Format("2006-01-02 15:04:05"), configPath)
	fmt.Printf("📋 [Config] %d prover backend(s), %d network(s), actor capacity=%d\n",
		len(cfg.Provers), len(cfg.Networks), cfg.Actor.ChannelCapacity)
	if len(cfg.Admin.AllowedIPs) > 0 {
		fmt.Printf("📋 [Config] Admin IP whitelist loaded: %d IPs/CIDRs configured\n", len(cfg.Admin.AllowedIPs))
	} else {
		fmt.Printf("📋 [Config] Admin IP whitelist: not configured (localhost-only mode)\n")
	}

	AppConfig = cfg
	return nil
}

// Load reads, overrides from env and validates a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default, then applies env overrides and Validate
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	overrideFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values the host cannot run without
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Actor.ChannelCapacity <= 0 {
		return fmt.Errorf("actor.channel_capacity must be positive")
	}
	if c.Actor.EnqueueTimeoutMs < 0 {
		return fmt.Errorf("actor.enqueue_timeout_ms must not be negative")
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres", "":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	for name, prover := range c.Provers {
		proofType, err := types.ParseProofType(name)
		if err != nil {
			return fmt.Errorf("provers.%s: %w", name, err)
		}
		if prover.Enabled && proofType != types.ProofTypeNative && prover.BaseURL == "" {
			return fmt.Errorf("provers.%s.baseUrl is required", name)
		}
	}
	for name := range c.AggregationImages {
		if _, err := types.ParseProofType(name); err != nil {
			return fmt.Errorf("aggregation_images.%s: %w", name, err)
		}
	}
	for name, network := range c.Networks {
		if network.Enabled && len(network.RPCEndpoints) == 0 {
			return fmt.Errorf("networks.%s.rpcEndpoints is empty", name)
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.Log.Format)
	}
	return nil
}

// overrideFromEnv Overrideconfiguration
func overrideFromEnv(config *Config) {
	// DatabaseDSN
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
		if config.Database.Driver == "memory" {
			config.Database.Driver = "postgres"
		}
	}

	// server configuration
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	// NATSConfiguration
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}

	if capacity := os.Getenv("ACTOR_CHANNEL_CAPACITY"); capacity != "" {
		if c, err := strconv.Atoi(capacity); err == nil {
			config.Actor.ChannelCapacity = c
		}
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		config.CORS.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}

	if paused := os.Getenv("PROOF_HOST_PAUSED"); paused != "" {
		config.Paused = paused == "true"
	}

	// RPC endpoints read from environment variables
	for networkName, networkConfig := range config.Networks {
		envRPC := fmt.Sprintf("%s_RPC_ENDPOINTS", strings.ToUpper(networkName))
		if rpcEndpoints := os.Getenv(envRPC); rpcEndpoints != "" {
			networkConfig.RPCEndpoints = strings.Split(rpcEndpoints, ",")
		}
		config.Networks[networkName] = networkConfig
	}

	// prover URLs, e.g. SP1_PROVER_URL
	for _, proofType := range types.AllProofTypes {
		envURL := fmt.Sprintf("%s_PROVER_URL", strings.ToUpper(string(proofType)))
		if url := os.Getenv(envURL); url != "" {
			if config.Provers == nil {
				config.Provers = map[string]ProverConfig{}
			}
			prover := config.Provers[string(proofType)]
			prover.BaseURL = url
			prover.Enabled = true
			config.Provers[string(proofType)] = prover
		}
	}
}

// ImageDefaults returns the aggregation image table keyed by proof type
func (c *Config) ImageDefaults() map[types.ProofType]string {
	out := make(map[types.ProofType]string, len(c.AggregationImages))
	for name, imageID := range c.AggregationImages {
		if proofType, err := types.ParseProofType(name); err == nil {
			out[proofType] = imageID
		}
	}
	return out
}
