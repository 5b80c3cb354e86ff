package eventsource

import (
	"context"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/watch-tower/internal/logger"
)

type fakeProvider struct {
	logs []types.Log
	err  error
}

func (f *fakeProvider) GetBlockHeader(ctx context.Context, number uint64) (*types.Header, error) {
	return nil, nil
}
func (f *fakeProvider) GetLatestBlockHeader(ctx context.Context) (*types.Header, error) {
	return nil, nil
}
func (f *fakeProvider) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return f.logs, f.err
}
func (f *fakeProvider) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return nil, nil
}
func (f *fakeProvider) SubscribeBlocks(ctx context.Context, onBlock func(*types.Header)) error {
	return nil
}
func (f *fakeProvider) Close() {}

func encodeCreated(t *testing.T, owner common.Address, handler common.Address, salt [32]byte, staticInput []byte) []byte {
	t.Helper()
	packed, err := conditionalOrderCreatedArgs.Pack(owner, rawParams{Handler: handler, Salt: salt, StaticInput: staticInput})
	require.NoError(t, err)
	return packed
}

func TestFetchRangeDecodesConditionalOrderCreated(t *testing.T) {
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	handler := common.HexToAddress("0x2222222222222222222222222222222222222222")
	var salt [32]byte
	salt[0] = 0x42

	data := encodeCreated(t, owner, handler, salt, []byte("static"))

	provider := &fakeProvider{logs: []types.Log{
		{
			Topics:      []common.Hash{TopicConditionalOrderCreated},
			Data:        data,
			BlockNumber: 10,
			Index:       2,
			TxHash:      common.HexToHash("0xaa"),
		},
	}}

	src := New(provider, nil, logger.NewNop())
	batch, err := src.FetchBlock(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, batch.Created, 1)
	require.Equal(t, owner, batch.Created[0].Owner)
	require.Equal(t, handler, batch.Created[0].Params.Handler)
	require.Equal(t, []byte("static"), batch.Created[0].Params.StaticInput)
	require.Zero(t, batch.DroppedCount)
}

func TestFetchRangeDropsUndecodableLogs(t *testing.T) {
	provider := &fakeProvider{logs: []types.Log{
		{
			Topics:      []common.Hash{TopicConditionalOrderCreated},
			Data:        []byte("not valid abi data"),
			BlockNumber: 5,
		},
	}}

	src := New(provider, nil, logger.NewNop())
	batch, err := src.FetchBlock(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, batch.Created)
	require.Empty(t, batch.MerkleRoots)
	require.Equal(t, 1, batch.DroppedCount)
}

func TestFetchRangeAppliesOwnerAllowList(t *testing.T) {
	allowed := common.HexToAddress("0x5555555555555555555555555555555555555555")
	other := common.HexToAddress("0x6666666666666666666666666666666666666666")
	handler := common.HexToAddress("0x7777777777777777777777777777777777777777")
	var salt [32]byte

	provider := &fakeProvider{logs: []types.Log{
		{Topics: []common.Hash{TopicConditionalOrderCreated}, Data: encodeCreated(t, allowed, handler, salt, nil), BlockNumber: 20, Index: 0},
		{Topics: []common.Hash{TopicConditionalOrderCreated}, Data: encodeCreated(t, other, handler, salt, nil), BlockNumber: 20, Index: 1},
	}}

	src := New(provider, []common.Address{allowed}, logger.NewNop())
	batch, err := src.FetchBlock(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, batch.Created, 1)
	require.Equal(t, allowed, batch.Created[0].Owner)
	require.Zero(t, batch.DroppedCount)
}

func TestFetchRangeOrdersByBlockAndLogIndex(t *testing.T) {
	owner := common.HexToAddress("0x3333333333333333333333333333333333333333")
	handler := common.HexToAddress("0x4444444444444444444444444444444444444444")
	var salt [32]byte

	data := encodeCreated(t, owner, handler, salt, nil)

	provider := &fakeProvider{logs: []types.Log{
		{Topics: []common.Hash{TopicConditionalOrderCreated}, Data: data, BlockNumber: 12, Index: 5},
		{Topics: []common.Hash{TopicConditionalOrderCreated}, Data: data, BlockNumber: 11, Index: 9},
		{Topics: []common.Hash{TopicConditionalOrderCreated}, Data: data, BlockNumber: 12, Index: 1},
	}}

	src := New(provider, nil, logger.NewNop())
	toBlock := uint64(12)
	batch, err := src.FetchRange(context.Background(), 11, &toBlock)
	require.NoError(t, err)
	require.Len(t, batch.Created, 3)
	require.Equal(t, uint64(11), batch.Created[0].BlockNumber)
	require.Equal(t, uint64(12), batch.Created[1].BlockNumber)
	require.Equal(t, uint(1), batch.Created[1].LogIndex)
	require.Equal(t, uint(5), batch.Created[2].LogIndex)
}
