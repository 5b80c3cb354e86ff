package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	c := &Config{}
	c.ApplyDefaults()

	require.Equal(t, uint64(5000), c.PageSize)
	require.Equal(t, "./database", c.DatabasePath)
	require.Equal(t, 8080, c.APIPort)
	require.Equal(t, "INFO", c.LogLevel)
	require.Equal(t, uint64(1), c.ProcessEveryNumBlocks)
}

func TestValidateRequiresCoreFields(t *testing.T) {
	c := &Config{}
	require.Error(t, c.Validate())

	c.Network = "mainnet"
	c.RPC = "https://rpc.example"
	require.Error(t, c.Validate(), "still missing orderBookURL")

	c.OrderBookURL = "https://orderbook.example"
	require.NoError(t, c.Validate())
}

func TestMultiChainExpandRejectsMismatchedLengths(t *testing.T) {
	m := &MultiChainConfig{
		Networks:         []string{"mainnet", "gnosis"},
		RPCs:             []string{"https://a"},
		DeploymentBlocks: []uint64{1, 2},
	}
	_, err := m.Expand()
	require.Error(t, err)
}

func TestMultiChainExpandSharesCommonFields(t *testing.T) {
	m := &MultiChainConfig{
		Networks:         []string{"mainnet", "gnosis"},
		RPCs:             []string{"https://a", "https://b"},
		DeploymentBlocks: []uint64{100, 200},
		Shared:           Config{OrderBookURL: "https://orderbook.example"},
	}
	configs, err := m.Expand()
	require.NoError(t, err)
	require.Len(t, configs, 2)
	require.Equal(t, "mainnet", configs[0].Network)
	require.Equal(t, uint64(100), configs[0].DeploymentBlock)
	require.Equal(t, "gnosis", configs[1].Network)
	require.Equal(t, "https://orderbook.example", configs[1].OrderBookURL)
}
