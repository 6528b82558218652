package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
)

type Config struct {
	Development bool
	// API configuration
	APIPort int
	// Postgres configuration
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	// Chain configuration
	RPCURL            string
	ContractAddress   string
	RelayerPrivateKey string
	ChainID           *big.Int

	// Typed-data domain configuration. Name and version are a hard
	// compatibility contract with the client-side signing code.
	DomainName    string
	DomainVersion string

	// Relayer run configuration
	RunInterval    time.Duration
	ConfirmTimeout time.Duration
	DryRun         bool

	// Alert configuration
	TelegramBotToken string
	TelegramChatID   string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:      getEnvAsBool("DEVELOPMENT", false),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "bloomfund"),

		RPCURL:            getEnv("RPC_URL", "http://localhost:8545"),
		ContractAddress:   getEnv("CONTRACT_ADDRESS", ""),
		RelayerPrivateKey: getEnv("RELAYER_PRIVATE_KEY", ""),
		ChainID:           getEnvAsBigInt("CHAIN_ID", big.NewInt(1)),

		DomainName:    getEnv("DOMAIN_NAME", "BloomFund"),
		DomainVersion: getEnv("DOMAIN_VERSION", "1"),

		RunInterval:    time.Duration(getEnvAsInt("RUN_INTERVAL_SECONDS", 300)) * time.Second,
		ConfirmTimeout: time.Duration(getEnvAsInt("CONFIRM_TIMEOUT_SECONDS", 180)) * time.Second,
		DryRun:         getEnvAsBool("DRY_RUN", true),

		APIPort: getEnvAsInt("API_PORT", 6533),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}

	// Validation happens in the caller after CLI flag overrides are
	// applied on top of the environment.
	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.ContractAddress == "" {
		return fmt.Errorf("CONTRACT_ADDRESS is required")
	}

	// Validate contract address format
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("invalid CONTRACT_ADDRESS format: %s", c.ContractAddress)
	}

	if c.RelayerPrivateKey == "" {
		return fmt.Errorf("RELAYER_PRIVATE_KEY is required")
	}

	if _, err := crypto.HexToECDSA(strings.TrimPrefix(c.RelayerPrivateKey, "0x")); err != nil {
		return fmt.Errorf("invalid RELAYER_PRIVATE_KEY: %w", err)
	}

	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		return fmt.Errorf("CHAIN_ID must be a positive integer")
	}

	if c.DomainName == "" {
		return fmt.Errorf("DOMAIN_NAME is required")
	}

	if c.RunInterval <= 0 {
		return fmt.Errorf("RUN_INTERVAL_SECONDS must be positive")
	}

	if c.ConfirmTimeout <= 0 {
		return fmt.Errorf("CONFIRM_TIMEOUT_SECONDS must be positive")
	}

	if c.PostgresDB == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBigInt(name string, defaultValue *big.Int) *big.Int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, ok := new(big.Int).SetString(valueStr, 10); ok {
			return value
		}
	}
	return defaultValue
}
