package network

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ChainClient is the node surface the spend pipeline consumes. Every call
// blocks until the node answers; callers bound them with ctx.
type ChainClient interface {
	// GetBlockCount returns the height of the current chain tip.
	GetBlockCount(ctx context.Context) (int64, error)

	// GetNewAddress returns a fresh wallet address.
	GetNewAddress(ctx context.Context) (string, error)

	// SendToAddress funds address with amount BTC from the node wallet and
	// returns the funding txid.
	SendToAddress(ctx context.Context, address string, amount decimal.Decimal) (string, error)

	// GetRawTransaction returns the serialized transaction.
	GetRawTransaction(ctx context.Context, txid string) ([]byte, error)

	// GetRawTransactionVerbose returns the decoded transaction.
	GetRawTransactionVerbose(ctx context.Context, txid string) (*TxResult, error)

	// DecodeRawTransaction decodes a hex transaction without looking it up.
	DecodeRawTransaction(ctx context.Context, rawHex string) (*TxResult, error)

	// GenerateToAddress mines n blocks paying the reward to address and
	// returns their hashes.
	GenerateToAddress(ctx context.Context, n int, address string) ([]string, error)

	// SendRawTransaction broadcasts a hex transaction and returns its txid.
	// Node rejections are returned as *RejectionError.
	SendRawTransaction(ctx context.Context, rawHex string) (string, error)

	// GetTxOut returns an unspent output, or ErrTxNotFound once it is spent.
	GetTxOut(ctx context.Context, txid string, vout uint32, includeMempool bool) (*TxOut, error)
}

// TxLister lists wallet transactions, as listsinceblock does.
type TxLister interface {
	ListSinceBlock(ctx context.Context, blockHash string) (*SinceBlock, error)
}

// TxOut is an unspent output as returned by gettxout.
type TxOut struct {
	BestBlock     string          `json:"bestblock"`
	Confirmations int64           `json:"confirmations"`
	Value         decimal.Decimal `json:"value"`
	ScriptPubKey  ScriptPubKey    `json:"scriptPubKey"`
	Coinbase      bool            `json:"coinbase"`
}

// WalletTx is one entry of listsinceblock.
type WalletTx struct {
	TxID          string          `json:"txid"`
	Address       string          `json:"address,omitempty"`
	Category      string          `json:"category"`
	Amount        decimal.Decimal `json:"amount"`
	Vout          uint32          `json:"vout"`
	Confirmations int64           `json:"confirmations"`
	BlockHash     string          `json:"blockhash,omitempty"`
	Time          int64           `json:"time"`
}

// SinceBlock is the result of listsinceblock.
type SinceBlock struct {
	Transactions []WalletTx `json:"transactions"`
	LastBlock    string     `json:"lastblock"`
}

// Compile-time interface checks.
var (
	_ ChainClient = (*RPCClient)(nil)
	_ TxLister    = (*RPCClient)(nil)
)

// GetBlockCount calls `getblockcount`.
func (c *RPCClient) GetBlockCount(ctx context.Context) (int64, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, "getblockcount", nil, &raw); err != nil {
		return 0, err
	}
	var height int64
	if err := json.Unmarshal(raw, &height); err != nil {
		return 0, fmt.Errorf("%w: invalid block height: %w", ErrInvalidResponse, err)
	}
	return height, nil
}

// GetNewAddress calls `getnewaddress`.
func (c *RPCClient) GetNewAddress(ctx context.Context) (string, error) {
	var addr string
	if err := c.Call(ctx, "getnewaddress", nil, &addr); err != nil {
		return "", err
	}
	if addr == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidResponse)
	}
	return addr, nil
}

// SendToAddress calls `sendtoaddress "address" amount`.
func (c *RPCClient) SendToAddress(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	if _, err := BTCToSatoshi(amount); err != nil {
		return "", err
	}
	params := []interface{}{address, json.Number(amount.String())}
	var txid string
	if err := c.Call(ctx, "sendtoaddress", params, &txid); err != nil {
		return "", err
	}
	return txid, nil
}

// GetRawTransaction calls `getrawtransaction "txid" false`.
func (c *RPCClient) GetRawTransaction(ctx context.Context, txid string) ([]byte, error) {
	var rawHex string
	if err := c.Call(ctx, "getrawtransaction", []interface{}{txid, false}, &rawHex); err != nil {
		return nil, notFound(err, txid)
	}
	data, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tx hex: %w", ErrInvalidResponse, err)
	}
	return data, nil
}

// GetRawTransactionVerbose calls `getrawtransaction "txid" true`.
func (c *RPCClient) GetRawTransactionVerbose(ctx context.Context, txid string) (*TxResult, error) {
	var res TxResult
	if err := c.Call(ctx, "getrawtransaction", []interface{}{txid, true}, &res); err != nil {
		return nil, notFound(err, txid)
	}
	return &res, nil
}

// DecodeRawTransaction calls `decoderawtransaction "hex"`.
func (c *RPCClient) DecodeRawTransaction(ctx context.Context, rawHex string) (*TxResult, error) {
	var res TxResult
	if err := c.Call(ctx, "decoderawtransaction", []interface{}{rawHex}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GenerateToAddress calls `generatetoaddress n "address"`.
func (c *RPCClient) GenerateToAddress(ctx context.Context, n int, address string) ([]string, error) {
	var hashes []string
	if err := c.Call(ctx, "generatetoaddress", []interface{}{n, address}, &hashes); err != nil {
		return nil, err
	}
	return hashes, nil
}

// SendRawTransaction calls `sendrawtransaction "hex"`. Verify errors are
// converted to *RejectionError so callers can inspect the reason.
func (c *RPCClient) SendRawTransaction(ctx context.Context, rawHex string) (string, error) {
	var txid string
	err := c.Call(ctx, "sendrawtransaction", []interface{}{rawHex}, &txid)
	if err == nil {
		return txid, nil
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case RPCVerify, RPCVerifyRejected, RPCVerifyAlreadyInChain, RPCDeserialization:
			return "", &RejectionError{Code: rpcErr.Code, Reason: rpcErr.Message}
		}
	}
	return "", err
}

// GetTxOut calls `gettxout "txid" vout include_mempool`. A JSON null result
// means the output is spent or never existed.
func (c *RPCClient) GetTxOut(ctx context.Context, txid string, vout uint32, includeMempool bool) (*TxOut, error) {
	var res *TxOut
	if err := c.Call(ctx, "gettxout", []interface{}{txid, vout, includeMempool}, &res); err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w: output %s:%d is spent or unknown", ErrTxNotFound, txid, vout)
	}
	return res, nil
}

// ListSinceBlock calls `listsinceblock "blockhash"`; an empty hash lists
// the whole wallet history.
func (c *RPCClient) ListSinceBlock(ctx context.Context, blockHash string) (*SinceBlock, error) {
	var params []interface{}
	if blockHash != "" {
		params = []interface{}{blockHash}
	}
	var res SinceBlock
	if err := c.Call(ctx, "listsinceblock", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func notFound(err error, txid string) error {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == RPCInvalidAddressOrKey {
		return fmt.Errorf("%w: %s: %w", ErrTxNotFound, txid, err)
	}
	return err
}
