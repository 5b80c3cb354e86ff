package health

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/watch-tower/internal/chainwatcher"
	"github.com/goran-ethernal/watch-tower/internal/logger"
	"github.com/goran-ethernal/watch-tower/internal/registry"
	"github.com/goran-ethernal/watch-tower/internal/registrystore"
)

func TestReportUnhealthyWhenAnyChainNotInSync(t *testing.T) {
	dir := t.TempDir()
	store, err := registrystore.Open(dir+"/db.bolt", logger.NewNop())
	require.NoError(t, err)

	netStore, err := store.ForNetwork("chain-a")
	require.NoError(t, err)
	reg := registry.New("chain-a", netStore, logger.NewNop())

	watcher := chainwatcher.New(chainwatcher.Config{Network: "chain-a"}, nil, nil, nil, nil, nil, nil)

	chainReg := NewChainRegistry()
	chainReg.Register("1", watcher, reg)

	agg := NewAggregator(chainReg)
	report := agg.Report()

	require.False(t, report.IsHealthy)
	require.Equal(t, "SYNCING", report.Chains["1"].Sync)
	require.False(t, report.Chains["1"].IsHealthy)
}
