// Package config holds watch-tower's configuration shapes and
// defaulting/validation rules, following pkg/config.Config's
// ApplyDefaults/Validate convention.
package config

import (
	"fmt"
	"time"
)

// Config is the full configuration for one watch-tower process
// running a single chain.
type Config struct {
	Network         string        `yaml:"network" json:"network"`
	RPC             string        `yaml:"rpc" json:"rpc"`
	DeploymentBlock uint64        `yaml:"deploymentBlock" json:"deploymentBlock"`
	PageSize        uint64        `yaml:"pageSize" json:"pageSize"`
	WatchdogTimeout time.Duration `yaml:"watchdogTimeout" json:"watchdogTimeout"`
	DryRun          bool          `yaml:"dryRun" json:"dryRun"`
	OneShot         bool          `yaml:"oneShot" json:"oneShot"`
	Silent          bool          `yaml:"silent" json:"silent"`
	RunningInPod    bool          `yaml:"runningInPod" json:"runningInPod"`

	OrderBookURL      string `yaml:"orderBookURL" json:"orderBookURL"`
	FilterPolicyURL   string `yaml:"filterPolicyURL" json:"filterPolicyURL"`
	SlackWebhook      string `yaml:"slackWebhook" json:"slackWebhook"`
	SentryDSN         string `yaml:"sentryDSN" json:"sentryDSN"`
	DatabasePath      string `yaml:"databasePath" json:"databasePath"`
	APIPort           int    `yaml:"apiPort" json:"apiPort"`
	DisableAPI        bool   `yaml:"disableAPI" json:"disableAPI"`
	LogLevel          string `yaml:"logLevel" json:"logLevel"`

	ProcessEveryNumBlocks uint64 `yaml:"processEveryNumBlocks" json:"processEveryNumBlocks"`

	// OwnerAllowList restricts the Event Source to conditional orders
	// whose decoded owner is in this list. Empty means no allow-list —
	// every owner is considered.
	OwnerAllowList []string `yaml:"ownerAllowList" json:"ownerAllowList"`
}

// MultiChainConfig fans Config out across N chains for `run-multi`:
// --rpc and --deployment-block accept equal-length ordered lists.
// Every field other than RPC/Network/DeploymentBlock is shared across
// chains.
type MultiChainConfig struct {
	Networks         []string `yaml:"networks" json:"networks"`
	RPCs             []string `yaml:"rpcs" json:"rpcs"`
	DeploymentBlocks []uint64 `yaml:"deploymentBlocks" json:"deploymentBlocks"`

	Shared Config `yaml:"shared" json:"shared"`
}

// ApplyDefaults fills in the CLI flag defaults for any zero-value
// field.
func (c *Config) ApplyDefaults() {
	if c.PageSize == 0 {
		c.PageSize = 5000
	}
	if c.WatchdogTimeout == 0 {
		c.WatchdogTimeout = 30 * time.Second
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "./database"
	}
	if c.APIPort == 0 {
		c.APIPort = 8080
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.ProcessEveryNumBlocks == 0 {
		c.ProcessEveryNumBlocks = 1
	}
}

// Validate checks the configuration is complete enough to run.
func (c *Config) Validate() error {
	if c.Network == "" {
		return fmt.Errorf("network is required")
	}
	if c.RPC == "" {
		return fmt.Errorf("rpc is required")
	}
	if c.OrderBookURL == "" {
		return fmt.Errorf("orderBookURL is required")
	}
	return nil
}

// Expand turns a MultiChainConfig into one Config per chain, sharing
// every field except Network/RPC/DeploymentBlock across the
// equal-length ordered lists.
func (m *MultiChainConfig) Expand() ([]Config, error) {
	if len(m.Networks) != len(m.RPCs) || len(m.Networks) != len(m.DeploymentBlocks) {
		return nil, fmt.Errorf("networks, rpcs and deploymentBlocks must have equal length (got %d, %d, %d)",
			len(m.Networks), len(m.RPCs), len(m.DeploymentBlocks))
	}

	configs := make([]Config, 0, len(m.Networks))
	for i, network := range m.Networks {
		cfg := m.Shared
		cfg.Network = network
		cfg.RPC = m.RPCs[i]
		cfg.DeploymentBlock = m.DeploymentBlocks[i]
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("chain %s: %w", network, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
