package registrystore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/watch-tower/internal/logger"
	"github.com/goran-ethernal/watch-tower/internal/registry"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.db")
	s, err := Open(path, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadOnFreshNetworkReturnsDefaults(t *testing.T) {
	store := openTestStore(t)
	net, err := store.ForNetwork("sepolia")
	require.NoError(t, err)

	version, ownerOrders, lastProcessed, lastNotifiedError, err := net.Load()
	require.NoError(t, err)
	require.Zero(t, version)
	require.Empty(t, ownerOrders)
	require.Nil(t, lastProcessed)
	require.Nil(t, lastNotifiedError)
}

func TestSaveBatchThenLoadRoundTrips(t *testing.T) {
	store := openTestStore(t)
	net, err := store.ForNetwork("mainnet")
	require.NoError(t, err)

	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	handler := common.HexToAddress("0x2222222222222222222222222222222222222222")
	params := registry.Params{Handler: handler, StaticInput: []byte("static")}
	co := registry.NewConditionalOrder(common.HexToHash("0xaa"), params, &registry.Proof{MerkleRoot: common.HexToHash("0x03")}, common.HexToAddress("0x3333333333333333333333333333333333333333"))
	co.Orders[registry.OrderUID{0x01}] = registry.StatusSubmitted

	ownerOrders := map[common.Address]map[registry.Key]*registry.ConditionalOrder{
		owner: {params.Key(): co},
	}
	lastProcessed := &registry.Block{Number: 99, Hash: common.HexToHash("0xbeef"), Timestamp: 555}
	notifiedAt := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, net.SaveBatch(registry.SchemaVersion, ownerOrders, lastProcessed, &notifiedAt))

	version, loadedOwnerOrders, loadedLastProcessed, loadedNotifiedError, err := net.Load()
	require.NoError(t, err)
	require.Equal(t, registry.SchemaVersion, version)
	require.Equal(t, *lastProcessed, *loadedLastProcessed)
	require.NotNil(t, loadedNotifiedError)
	require.True(t, notifiedAt.Equal(*loadedNotifiedError))

	loadedOrders, ok := loadedOwnerOrders[owner]
	require.True(t, ok)
	loadedCO, ok := loadedOrders[params.Key()]
	require.True(t, ok)
	require.Equal(t, co.TxHash, loadedCO.TxHash)
	require.Equal(t, co.Params, loadedCO.Params)
	require.Equal(t, co.Proof, loadedCO.Proof)
	require.Equal(t, co.SourceContract, loadedCO.SourceContract)
	require.Equal(t, registry.StatusSubmitted, loadedCO.Orders[registry.OrderUID{0x01}])
}

func TestSaveBatchClearsOptionalFieldsWhenNil(t *testing.T) {
	store := openTestStore(t)
	net, err := store.ForNetwork("mainnet")
	require.NoError(t, err)

	owner := common.HexToAddress("0x4444444444444444444444444444444444444444")
	params := registry.Params{Handler: common.HexToAddress("0x5555555555555555555555555555555555555555")}
	co := registry.NewConditionalOrder(common.HexToHash("0xaa"), params, nil, common.Address{})
	ownerOrders := map[common.Address]map[registry.Key]*registry.ConditionalOrder{owner: {params.Key(): co}}

	notifiedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, net.SaveBatch(registry.SchemaVersion, ownerOrders, &registry.Block{Number: 1}, &notifiedAt))
	require.NoError(t, net.SaveBatch(registry.SchemaVersion, ownerOrders, nil, nil))

	_, _, lastProcessed, lastNotifiedError, err := net.Load()
	require.NoError(t, err)
	require.Nil(t, lastProcessed)
	require.Nil(t, lastNotifiedError)
}

func TestNetworksListsOnlyBucketsCreatedViaForNetwork(t *testing.T) {
	store := openTestStore(t)
	_, err := store.ForNetwork("sepolia")
	require.NoError(t, err)
	_, err = store.ForNetwork("mainnet")
	require.NoError(t, err)

	networks, err := store.Networks()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"sepolia", "mainnet"}, networks)
}

func TestDumpNetworkJSONIncludesOrders(t *testing.T) {
	store := openTestStore(t)
	net, err := store.ForNetwork("mainnet")
	require.NoError(t, err)

	owner := common.HexToAddress("0x6666666666666666666666666666666666666666")
	params := registry.Params{Handler: common.HexToAddress("0x7777777777777777777777777777777777777777")}
	co := registry.NewConditionalOrder(common.HexToHash("0xaa"), params, nil, common.Address{})
	ownerOrders := map[common.Address]map[registry.Key]*registry.ConditionalOrder{owner: {params.Key(): co}}
	require.NoError(t, net.SaveBatch(registry.SchemaVersion, ownerOrders, nil, nil))

	out, err := store.DumpNetworkJSON("mainnet")
	require.NoError(t, err)
	require.Contains(t, string(out), owner.Hex())
}
