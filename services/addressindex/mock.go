package addressindex

import (
	"context"

	"github.com/bsv-blockchain/addressindex/model"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/mock"
)

type MockBlockClient struct {
	mock.Mock
}

func (m *MockBlockClient) GetBlock(ctx context.Context, hash *chainhash.Hash) (*model.Block, error) {
	args := m.Called(ctx, hash)

	if args.Error(1) != nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*model.Block), nil
}

func (m *MockBlockClient) GetBestHeight(ctx context.Context) (uint32, error) {
	args := m.Called(ctx)

	if args.Error(1) != nil {
		return 0, args.Error(1)
	}

	return args.Get(0).(uint32), nil
}

type MockTransactionClient struct {
	mock.Mock
}

func (m *MockTransactionClient) GetDetailedTransaction(ctx context.Context, txid *chainhash.Hash) (*model.TxDetail, error) {
	args := m.Called(ctx, txid)

	if args.Error(1) != nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*model.TxDetail), nil
}

func (m *MockTransactionClient) GetTransaction(ctx context.Context, txid *chainhash.Hash) (*model.TxDetail, error) {
	args := m.Called(ctx, txid)

	if args.Error(1) != nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*model.TxDetail), nil
}

func (m *MockTransactionClient) SetTxMetaInfo(ctx context.Context, tx *bt.Tx) (*model.TxDetail, error) {
	args := m.Called(ctx, tx)

	if args.Error(1) != nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*model.TxDetail), nil
}

type MockMempoolClient struct {
	mock.Mock
}

func (m *MockMempoolClient) GetTxidsByAddress(ctx context.Context, address string, direction MempoolDirection) ([]chainhash.Hash, error) {
	args := m.Called(ctx, address, direction)

	if args.Error(1) != nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]chainhash.Hash), nil
}

func (m *MockMempoolClient) GetMempoolTransaction(ctx context.Context, txid *chainhash.Hash) (*bt.Tx, error) {
	args := m.Called(ctx, txid)

	if args.Error(1) != nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*bt.Tx), nil
}

type MockTimestampClient struct {
	mock.Mock
}

func (m *MockTimestampClient) GetTimestampSync(hash *chainhash.Hash) (uint32, bool) {
	args := m.Called(hash)

	return args.Get(0).(uint32), args.Bool(1)
}
