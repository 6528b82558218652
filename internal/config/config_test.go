package config

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known hardhat test key, never used on a real network.
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func validConfig() *Config {
	return &Config{
		ContractAddress:   "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		RelayerPrivateKey: testPrivateKey,
		RPCURL:            "http://localhost:8545",
		ChainID:           big.NewInt(1),
		DomainName:        "BloomFund",
		DomainVersion:     "1",
		RunInterval:       5 * time.Minute,
		ConfirmTimeout:    3 * time.Minute,
		PostgresHost:      "localhost",
		PostgresDB:        "bloomfund",
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	// 0x-prefixed keys are accepted too.
	cfg := validConfig()
	cfg.RelayerPrivateKey = "0x" + testPrivateKey
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing contract address", mutate: func(c *Config) { c.ContractAddress = "" }},
		{name: "malformed contract address", mutate: func(c *Config) { c.ContractAddress = "0x123" }},
		{name: "missing private key", mutate: func(c *Config) { c.RelayerPrivateKey = "" }},
		{name: "malformed private key", mutate: func(c *Config) { c.RelayerPrivateKey = "zz" }},
		{name: "missing rpc url", mutate: func(c *Config) { c.RPCURL = "" }},
		{name: "zero chain id", mutate: func(c *Config) { c.ChainID = big.NewInt(0) }},
		{name: "missing domain name", mutate: func(c *Config) { c.DomainName = "" }},
		{name: "zero run interval", mutate: func(c *Config) { c.RunInterval = 0 }},
		{name: "zero confirm timeout", mutate: func(c *Config) { c.ConfirmTimeout = 0 }},
		{name: "missing postgres db", mutate: func(c *Config) { c.PostgresDB = "" }},
		{name: "missing postgres host", mutate: func(c *Config) { c.PostgresHost = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "BloomFund", cfg.DomainName)
	assert.Equal(t, "1", cfg.DomainVersion)
	assert.Equal(t, 5*time.Minute, cfg.RunInterval)
	assert.Equal(t, 3*time.Minute, cfg.ConfirmTimeout)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, big.NewInt(1), cfg.ChainID)
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("CHAIN_ID", "137")
	t.Setenv("RUN_INTERVAL_SECONDS", "60")
	t.Setenv("DRY_RUN", "false")
	t.Setenv("DOMAIN_NAME", "BloomFundStaging")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(137), cfg.ChainID)
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.False(t, cfg.DryRun)
	assert.Equal(t, "BloomFundStaging", cfg.DomainName)
}
