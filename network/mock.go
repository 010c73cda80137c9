package network

import (
	"context"

	"github.com/shopspring/decimal"
)

// MockChainClient is a test double for ChainClient and TxLister.
// All function fields must be set before the corresponding method is called.
type MockChainClient struct {
	GetBlockCountFn            func(ctx context.Context) (int64, error)
	GetNewAddressFn            func(ctx context.Context) (string, error)
	SendToAddressFn            func(ctx context.Context, address string, amount decimal.Decimal) (string, error)
	GetRawTransactionFn        func(ctx context.Context, txid string) ([]byte, error)
	GetRawTransactionVerboseFn func(ctx context.Context, txid string) (*TxResult, error)
	DecodeRawTransactionFn     func(ctx context.Context, rawHex string) (*TxResult, error)
	GenerateToAddressFn        func(ctx context.Context, n int, address string) ([]string, error)
	SendRawTransactionFn       func(ctx context.Context, rawHex string) (string, error)
	GetTxOutFn                 func(ctx context.Context, txid string, vout uint32, includeMempool bool) (*TxOut, error)
	ListSinceBlockFn           func(ctx context.Context, blockHash string) (*SinceBlock, error)
}

var (
	_ ChainClient = (*MockChainClient)(nil)
	_ TxLister    = (*MockChainClient)(nil)
)

func (m *MockChainClient) GetBlockCount(ctx context.Context) (int64, error) {
	return m.GetBlockCountFn(ctx)
}
func (m *MockChainClient) GetNewAddress(ctx context.Context) (string, error) {
	return m.GetNewAddressFn(ctx)
}
func (m *MockChainClient) SendToAddress(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	return m.SendToAddressFn(ctx, address, amount)
}
func (m *MockChainClient) GetRawTransaction(ctx context.Context, txid string) ([]byte, error) {
	return m.GetRawTransactionFn(ctx, txid)
}
func (m *MockChainClient) GetRawTransactionVerbose(ctx context.Context, txid string) (*TxResult, error) {
	return m.GetRawTransactionVerboseFn(ctx, txid)
}
func (m *MockChainClient) DecodeRawTransaction(ctx context.Context, rawHex string) (*TxResult, error) {
	return m.DecodeRawTransactionFn(ctx, rawHex)
}
func (m *MockChainClient) GenerateToAddress(ctx context.Context, n int, address string) ([]string, error) {
	return m.GenerateToAddressFn(ctx, n, address)
}
func (m *MockChainClient) SendRawTransaction(ctx context.Context, rawHex string) (string, error) {
	return m.SendRawTransactionFn(ctx, rawHex)
}
func (m *MockChainClient) GetTxOut(ctx context.Context, txid string, vout uint32, includeMempool bool) (*TxOut, error) {
	return m.GetTxOutFn(ctx, txid, vout, includeMempool)
}
func (m *MockChainClient) ListSinceBlock(ctx context.Context, blockHash string) (*SinceBlock, error) {
	return m.ListSinceBlockFn(ctx, blockHash)
}
