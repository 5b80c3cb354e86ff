package chainwatcher

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	require.Equal(t, "SYNCING", StateSyncing.String())
	require.Equal(t, "IN_SYNC", StateInSync.String())
	require.Equal(t, "UNKNOWN", StateUnknown.String())
}

func TestNewDefaultsWatchdogTimeout(t *testing.T) {
	w := New(Config{Network: "test"}, nil, nil, nil, nil, nil, nil)
	require.Equal(t, defaultWatchdogTimeout, w.cfg.WatchdogTimeout)
	require.Equal(t, StateSyncing, w.State())
}

func TestWatchdogTimeoutInPodTransitionsToUnknown(t *testing.T) {
	w := New(Config{Network: "test", WatchdogTimeout: 10 * time.Millisecond, RunningInPod: true}, nil, nil, nil, nil, nil, nil)

	stale := &types.Header{Number: big.NewInt(1), Time: uint64(time.Now().Add(-time.Hour).Unix())}
	w.lastBlockReceived.Store(stale)

	ctx, cancel := context.WithTimeout(context.Background(), defaultWatchdogInterval+time.Second)
	defer cancel()
	w.runWatchdog(ctx)

	require.Equal(t, StateUnknown, w.State())
}
