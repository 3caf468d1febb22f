package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Vault modes.
const (
	ModeSimulation = "simulation"
	ModeEVM        = "evm"
)

// Environment overrides applied after the file is read.
const (
	EnvDatabasePassword = "VAULT_DATABASE_PASSWORD"
	EnvCustodyKey       = "VAULT_CUSTODY_KEY"
)

// Config represents the vault server configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	Database   DatabaseConfig   `yaml:"database"`
	Ethereum   EthereumConfig   `yaml:"ethereum"`
	Vault      VaultConfig      `yaml:"vault"`
	Auth       AuthConfig       `yaml:"auth"`
	Keys       KeysConfig       `yaml:"keys"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Shutdown   ShutdownConfig   `yaml:"shutdown"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" default:"60s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
}

// GRPCConfig contains the gRPC health endpoint settings
type GRPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host" default:"0.0.0.0"`
	Port    int    `yaml:"port" default:"9091" validate:"min=1,max=65535"`
}

// DatabaseConfig contains database connection settings for the event journal
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"5432"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"password"`
	Database string `yaml:"database" default:"custody_vault"`
	SSLMode  string `yaml:"ssl_mode" default:"disable" validate:"oneof=disable require verify-ca verify-full"`
	PoolSize int    `yaml:"pool_size" default:"10"`
	Timeout  int    `yaml:"timeout" default:"5"`
}

// EthereumConfig contains Ethereum client settings used in evm mode
type EthereumConfig struct {
	RPCURL         string        `yaml:"rpc_url"`
	ChainID        int64         `yaml:"chain_id" default:"1"`
	GasLimit       uint64        `yaml:"gas_limit" default:"300000"`
	NativeGasLimit uint64        `yaml:"native_gas_limit" default:"21000"`
	MaxGasPrice    string        `yaml:"max_gas_price"`
	ReceiptTimeout time.Duration `yaml:"receipt_timeout" default:"2m"`
}

// VaultConfig holds the immutable ledger parameters
type VaultConfig struct {
	Mode           string           `yaml:"mode" default:"simulation" validate:"oneof=simulation evm"`
	Admins         []string         `yaml:"admins" validate:"min=1,dive,eth_addr"`
	BankCapUSD     string           `yaml:"bank_cap_usd" validate:"required,numeric"`
	WithdrawCapUSD string           `yaml:"withdraw_cap_usd" validate:"required,numeric"`
	NativeFeed     string           `yaml:"native_feed" validate:"required,eth_addr"`
	Feeds          []FeedBinding    `yaml:"feeds" validate:"dive"`
	// ReentryWait bounds queueing behind an operation stuck in an external
	// call. In evm mode it is raised to cover the receipt timeout.
	ReentryWait time.Duration    `yaml:"reentry_wait" default:"5s"`
	Simulation  SimulationConfig `yaml:"simulation"`
}

// FeedBinding binds an asset to a price feed at startup
type FeedBinding struct {
	Asset string `yaml:"asset" validate:"required,eth_addr"`
	Feed  string `yaml:"feed" validate:"required,eth_addr"`
}

// SimulationConfig seeds the in-memory collaborators used in simulation mode
type SimulationConfig struct {
	Feeds    []StaticFeedConfig `yaml:"feeds" validate:"dive"`
	Tokens   []TokenConfig      `yaml:"tokens" validate:"dive"`
	Accounts []AccountConfig    `yaml:"accounts" validate:"dive"`
}

// StaticFeedConfig describes an in-memory price feed
type StaticFeedConfig struct {
	Address  string `yaml:"address" validate:"required,eth_addr"`
	Answer   int64  `yaml:"answer"`
	Decimals uint8  `yaml:"decimals" default:"8"`
}

// TokenConfig describes the precision of a simulated token
type TokenConfig struct {
	Address  string `yaml:"address" validate:"required,eth_addr"`
	Decimals uint8  `yaml:"decimals" default:"18"`
}

// AccountConfig funds a simulated external account
type AccountConfig struct {
	Address   string `yaml:"address" validate:"required,eth_addr"`
	Asset     string `yaml:"asset" validate:"required,eth_addr"`
	Balance   string `yaml:"balance" validate:"required,number"`
	Allowance string `yaml:"allowance" validate:"omitempty,number"`
}

// AuthConfig contains JWKS configuration for admin bearer tokens
type AuthConfig struct {
	JWKSURL string `yaml:"jwks_url" validate:"omitempty,url"`
	Issuer  string `yaml:"issuer"`
	// MaxBodyBytes bounds signed request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes" default:"1048576"`
	// SignatureTTL is the furthest in the future a signed request deadline may be.
	SignatureTTL time.Duration `yaml:"signature_ttl" default:"5m" validate:"gt=0"`
}

// KeysConfig locates the custody signing key used in evm mode.
// Exactly one of CustodyKey or EncryptedCustodyKey is expected.
type KeysConfig struct {
	CustodyKey          string `yaml:"custody_key"`
	EncryptedCustodyKey string `yaml:"encrypted_custody_key"`
	MasterKeyEnv        string `yaml:"master_key_env" default:"VAULT_MASTER_KEY"`
	DerivationInfo      string `yaml:"derivation_info" default:"custody-vault/custody-key"`
}

// MonitoringConfig contains metrics settings
type MonitoringConfig struct {
	Enabled     bool   `yaml:"enabled" default:"true"`
	MetricsPath string `yaml:"metrics_path" default:"/metrics"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" default:"info"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	OutputPath string `yaml:"output_path" default:"stdout"`
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout" default:"30s"`
}

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	// defaults go first so explicit zero values in the file win
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// list elements only exist after decoding
	for i := range cfg.Vault.Simulation.Feeds {
		if err := defaults.Set(&cfg.Vault.Simulation.Feeds[i]); err != nil {
			return nil, fmt.Errorf("failed to apply feed defaults: %w", err)
		}
	}
	for i := range cfg.Vault.Simulation.Tokens {
		if err := defaults.Set(&cfg.Vault.Simulation.Tokens[i]); err != nil {
			return nil, fmt.Errorf("failed to apply token defaults: %w", err)
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDatabasePassword); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv(EnvCustodyKey); v != "" {
		cfg.Keys.CustodyKey = v
	}
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}
	if cfg.Vault.Mode == ModeEVM {
		if cfg.Ethereum.RPCURL == "" {
			return fmt.Errorf("ethereum.rpc_url is required in evm mode")
		}
		if cfg.Keys.CustodyKey == "" && cfg.Keys.EncryptedCustodyKey == "" {
			return fmt.Errorf("keys.custody_key or keys.encrypted_custody_key is required in evm mode")
		}
	}
	if cfg.Keys.CustodyKey != "" && cfg.Keys.EncryptedCustodyKey != "" {
		return fmt.Errorf("keys.custody_key and keys.encrypted_custody_key are mutually exclusive")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
