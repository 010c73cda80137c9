package simnet

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/shopspring/decimal"
	"lukechampine.com/frand"

	"github.com/bitfsorg/gryngotts-go/network"
	"github.com/bitfsorg/gryngotts-go/tx"
)

// BlockInterval is the timestamp spacing of simulated blocks.
const BlockInterval = 10 * time.Minute

// WalletChange is the change value of every wallet send, in satoshis.
const WalletChange = network.OneBTC

// Bitcoin Core RPC codes the simulated node answers with outside the
// broadcast path.
const (
	rpcInvalidParameter = -8
	rpcInvalidAmount    = -3
)

// Chain is an in-process regtest node. It answers the ChainClient surface
// from a Store, runs broadcasts through btcd's finality rules and script
// engine, and mines on demand. The wallet has an unlimited balance: sends
// spend synthetic outpoints that are never validated.
type Chain struct {
	mu     sync.Mutex
	store  Store
	params *chaincfg.Params

	tip     *Block
	seq     uint64
	spentBy map[wire.OutPoint]chainhash.Hash
	mempool []chainhash.Hash
	wallet  map[string]struct{}
}

// Compile-time interface checks.
var (
	_ network.ChainClient = (*Chain)(nil)
	_ network.TxLister    = (*Chain)(nil)
)

// New opens a simulated chain on store. An empty store is initialised with
// the genesis block of params; a populated one is reloaded.
func New(store Store, params *chaincfg.Params) (*Chain, error) {
	if store == nil || params == nil {
		return nil, fmt.Errorf("%w: store or params", ErrNilParam)
	}
	c := &Chain{
		store:   store,
		params:  params,
		spentBy: make(map[wire.OutPoint]chainhash.Hash),
		wallet:  make(map[string]struct{}),
	}

	tip, err := store.Tip()
	switch {
	case errors.Is(err, ErrNotFound):
		genesis := &Block{
			Height: 0,
			Hash:   *params.GenesisHash,
			Time:   params.GenesisBlock.Header.Timestamp.Unix(),
		}
		if err := store.PutBlock(genesis); err != nil {
			return nil, err
		}
		tip = genesis
	case err != nil:
		return nil, err
	}
	c.tip = tip

	recs, err := store.ListTxs()
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		msg, err := decodeRaw(rec.Raw)
		if err != nil {
			return nil, fmt.Errorf("simnet: reload %s: %w", rec.TxID, err)
		}
		if !rec.Coinbase {
			for _, in := range msg.TxIn {
				c.spentBy[in.PreviousOutPoint] = rec.TxID
			}
		}
		if !rec.Confirmed() {
			c.mempool = append(c.mempool, rec.TxID)
		}
		if rec.Seq > c.seq {
			c.seq = rec.Seq
		}
	}

	addrs, err := store.Addresses()
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		c.wallet[a] = struct{}{}
	}
	return c, nil
}

// Params returns the network parameters of the chain.
func (c *Chain) Params() *chaincfg.Params { return c.params }

// Close closes the underlying store.
func (c *Chain) Close() error { return c.store.Close() }

// GetBlockCount returns the tip height.
func (c *Chain) GetBlockCount(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tip.Height, nil
}

// GetNewAddress creates a wallet P2PKH address.
func (c *Chain) GetNewAddress(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newAddressLocked()
}

func (c *Chain) newAddressLocked() (string, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return "", fmt.Errorf("simnet: wallet key: %w", err)
	}
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(priv.PubKey().SerializeCompressed()), c.params)
	if err != nil {
		return "", fmt.Errorf("simnet: wallet address: %w", err)
	}
	enc := addr.EncodeAddress()
	if err := c.store.PutAddress(enc); err != nil {
		return "", err
	}
	c.wallet[enc] = struct{}{}
	return enc, nil
}

// SendToAddress pays amount to address in a mempool transaction. The
// recipient is output 1 and wallet change is output 0.
func (c *Chain) SendToAddress(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sat, err := network.BTCToSatoshi(amount)
	if err != nil {
		return "", &network.RPCError{Code: rpcInvalidAmount, Message: err.Error()}
	}
	if sat <= 0 || sat > btcutil.MaxSatoshi {
		return "", &network.RPCError{Code: rpcInvalidAmount, Message: "Invalid amount for send"}
	}
	pkScript, err := c.payToAddress(address)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	change, err := c.newAddressLocked()
	if err != nil {
		return "", err
	}
	changeScript, err := c.payToAddress(change)
	if err != nil {
		return "", err
	}

	var funding wire.OutPoint
	frand.Read(funding.Hash[:])
	msg := wire.NewMsgTx(tx.TxVersion)
	msg.AddTxIn(wire.NewTxIn(&funding, nil, nil))
	msg.TxIn[0].Sequence = tx.SequenceLockTime - 1
	msg.AddTxOut(wire.NewTxOut(WalletChange, changeScript))
	msg.AddTxOut(wire.NewTxOut(sat, pkScript))

	rec, err := c.acceptLocked(msg)
	if err != nil {
		return "", err
	}
	rec.Sent = true
	rec.SentVout = 1
	if err := c.store.PutTx(rec); err != nil {
		return "", err
	}
	return rec.TxID.String(), nil
}

// GetRawTransaction returns the serialized transaction.
func (c *Chain) GetRawTransaction(ctx context.Context, txid string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := c.record(txid)
	if err != nil {
		return nil, err
	}
	return rec.Raw, nil
}

// GetRawTransactionVerbose returns the decoded transaction with its
// confirmation details.
func (c *Chain) GetRawTransactionVerbose(ctx context.Context, txid string) (*network.TxResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := c.record(txid)
	if err != nil {
		return nil, err
	}
	msg, err := decodeRaw(rec.Raw)
	if err != nil {
		return nil, err
	}
	res := network.DecodeMsgTx(msg, c.params)

	c.mu.Lock()
	defer c.mu.Unlock()
	if rec.Confirmed() {
		res.BlockHash = rec.BlockHash.String()
		res.Confirmations = c.tip.Height - rec.BlockHeight + 1
	}
	return res, nil
}

// DecodeRawTransaction decodes a hex transaction.
func (c *Chain) DecodeRawTransaction(ctx context.Context, rawHex string) (*network.TxResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, err := network.DeserializeTx(rawHex)
	if err != nil {
		return nil, &network.RPCError{Code: network.RPCDeserialization, Message: "TX decode failed"}
	}
	return network.DecodeMsgTx(msg, c.params), nil
}

// GenerateToAddress mines n blocks paying the subsidy to address. The
// first block confirms the whole mempool.
func (c *Chain) GenerateToAddress(ctx context.Context, n int, address string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, &network.RPCError{Code: rpcInvalidParameter, Message: ErrInvalidBlockCount.Error()}
	}
	pkScript, err := c.payToAddress(address)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	hashes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return hashes, err
		}
		b, err := c.mineLocked(pkScript)
		if err != nil {
			return hashes, err
		}
		hashes = append(hashes, b.Hash.String())
	}
	return hashes, nil
}

func (c *Chain) mineLocked(pkScript []byte) (*Block, error) {
	height := c.tip.Height + 1
	blockTime := time.Unix(c.tip.Time, 0).Add(BlockInterval)

	sigScript, err := txscript.NewScriptBuilder().AddInt64(height).AddInt64(0).Script()
	if err != nil {
		return nil, fmt.Errorf("simnet: coinbase script: %w", err)
	}
	coinbase := wire.NewMsgTx(1)
	coinbase.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), sigScript, nil))
	subsidy := blockchain.CalcBlockSubsidy(int32(height), c.params)

	var fees int64
	pending := make([]*TxRecord, 0, len(c.mempool))
	for _, id := range c.mempool {
		rec, err := c.store.GetTx(id)
		if err != nil {
			return nil, err
		}
		fee, err := c.feeLocked(rec)
		if err != nil {
			return nil, err
		}
		fees += fee
		pending = append(pending, rec)
	}
	coinbase.AddTxOut(wire.NewTxOut(subsidy+fees, pkScript))

	txs := []*btcutil.Tx{btcutil.NewTx(coinbase)}
	for _, rec := range pending {
		msg, err := decodeRaw(rec.Raw)
		if err != nil {
			return nil, err
		}
		txs = append(txs, btcutil.NewTx(msg))
	}
	merkles := blockchain.BuildMerkleTreeStore(txs, false)
	header := wire.NewBlockHeader(4, &c.tip.Hash, merkles[len(merkles)-1], c.params.PowLimitBits, uint32(height))
	header.Timestamp = blockTime

	b := &Block{
		Height: height,
		Hash:   header.BlockHash(),
		Prev:   c.tip.Hash,
		Time:   blockTime.Unix(),
	}
	for _, t := range txs {
		b.TxIDs = append(b.TxIDs, *t.Hash())
	}
	if err := c.store.PutBlock(b); err != nil {
		return nil, err
	}

	cbRaw, err := encodeRaw(coinbase)
	if err != nil {
		return nil, err
	}
	c.seq++
	cbRec := &TxRecord{
		TxID:        coinbase.TxHash(),
		Raw:         cbRaw,
		Seq:         c.seq,
		Time:        b.Time,
		BlockHeight: height,
		BlockHash:   b.Hash,
		Coinbase:    true,
	}
	if err := c.store.PutTx(cbRec); err != nil {
		return nil, err
	}
	for _, rec := range pending {
		rec.BlockHeight = height
		rec.BlockHash = b.Hash
		if err := c.store.PutTx(rec); err != nil {
			return nil, err
		}
	}
	c.mempool = nil
	c.tip = b
	return b, nil
}

// feeLocked returns inputs minus outputs of rec. Wallet sends spend
// synthetic outpoints and pay no fee.
func (c *Chain) feeLocked(rec *TxRecord) (int64, error) {
	if rec.Sent {
		return 0, nil
	}
	msg, err := decodeRaw(rec.Raw)
	if err != nil {
		return 0, err
	}
	var in, out int64
	for _, txIn := range msg.TxIn {
		prev, err := c.prevOutLocked(txIn.PreviousOutPoint)
		if err != nil {
			return 0, err
		}
		in += prev.Value
	}
	for _, txOut := range msg.TxOut {
		out += txOut.Value
	}
	return in - out, nil
}

// SendRawTransaction validates rawHex against the chain tip and adds it to
// the mempool. Checks run in node order: sanity, finality, duplicates,
// input availability, amounts, scripts.
func (c *Chain) SendRawTransaction(ctx context.Context, rawHex string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	msg, err := network.DeserializeTx(rawHex)
	if err != nil {
		return "", &network.RejectionError{Code: network.RPCDeserialization, Reason: "TX decode failed"}
	}
	utx := btcutil.NewTx(msg)
	if err := blockchain.CheckTransactionSanity(utx); err != nil {
		return "", &network.RejectionError{Code: network.RPCVerifyRejected, Reason: err.Error()}
	}
	if blockchain.IsCoinBaseTx(msg) {
		return "", &network.RejectionError{Code: network.RPCVerifyRejected, Reason: "coinbase"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.tip.Height + 1
	if !blockchain.IsFinalizedTransaction(utx, int32(next), time.Unix(c.tip.Time, 0)) {
		return "", &network.RejectionError{Code: network.RPCVerifyRejected, Reason: network.ReasonNonFinal}
	}
	if _, err := c.store.GetTx(msg.TxHash()); err == nil {
		return "", &network.RejectionError{Code: network.RPCVerifyAlreadyInChain, Reason: network.ReasonAlreadyKnown}
	}

	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(msg.TxIn))
	var in int64
	for _, txIn := range msg.TxIn {
		op := txIn.PreviousOutPoint
		if by, ok := c.spentBy[op]; ok {
			if c.inMempoolLocked(by) {
				return "", &network.RejectionError{Code: network.RPCVerifyRejected, Reason: network.ReasonMempoolConflict}
			}
			return "", &network.RejectionError{Code: network.RPCVerify, Reason: network.ReasonMissingOrSpent}
		}
		prev, err := c.prevOutLocked(op)
		if err != nil {
			return "", &network.RejectionError{Code: network.RPCVerify, Reason: network.ReasonMissingOrSpent}
		}
		prevOuts[op] = prev
		in += prev.Value
	}
	var out int64
	for _, txOut := range msg.TxOut {
		out += txOut.Value
	}
	if in < out {
		return "", &network.RejectionError{Code: network.RPCVerify, Reason: network.ReasonInBelowOut}
	}

	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	for i := range msg.TxIn {
		if err := tx.VerifyInput(msg, i, fetcher); err != nil {
			if tx.IsLockTimeFailure(err) {
				return "", &network.RejectionError{Code: network.RPCVerifyRejected, Reason: network.ReasonLockTime}
			}
			return "", &network.RejectionError{
				Code:   network.RPCVerifyRejected,
				Reason: fmt.Sprintf("mandatory-script-verify-flag-failed (%s)", scriptFailure(err)),
			}
		}
	}

	rec, err := c.acceptLocked(msg)
	if err != nil {
		return "", err
	}
	return rec.TxID.String(), nil
}

func (c *Chain) acceptLocked(msg *wire.MsgTx) (*TxRecord, error) {
	raw, err := encodeRaw(msg)
	if err != nil {
		return nil, err
	}
	c.seq++
	rec := &TxRecord{
		TxID:        msg.TxHash(),
		Raw:         raw,
		Seq:         c.seq,
		Time:        c.tip.Time,
		BlockHeight: MempoolHeight,
	}
	if err := c.store.PutTx(rec); err != nil {
		return nil, err
	}
	for _, in := range msg.TxIn {
		c.spentBy[in.PreviousOutPoint] = rec.TxID
	}
	c.mempool = append(c.mempool, rec.TxID)
	return rec, nil
}

// GetTxOut returns an unspent output. Mempool spends hide the output, and
// mempool outputs are visible, only when includeMempool is set.
func (c *Chain) GetTxOut(ctx context.Context, txid string, vout uint32, includeMempool bool) (*network.TxOut, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := c.record(txid)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	notFound := fmt.Errorf("%w: output %s:%d is spent or unknown", network.ErrTxNotFound, txid, vout)
	if !rec.Confirmed() && !includeMempool {
		return nil, notFound
	}
	op := wire.OutPoint{Hash: rec.TxID, Index: vout}
	if by, ok := c.spentBy[op]; ok && (includeMempool || !c.inMempoolLocked(by)) {
		return nil, notFound
	}
	msg, err := decodeRaw(rec.Raw)
	if err != nil {
		return nil, err
	}
	if int(vout) >= len(msg.TxOut) {
		return nil, notFound
	}

	decoded := network.DecodeMsgTx(msg, c.params)
	res := &network.TxOut{
		BestBlock:    c.tip.Hash.String(),
		Value:        decoded.Vout[vout].Value,
		ScriptPubKey: decoded.Vout[vout].ScriptPubKey,
		Coinbase:     rec.Coinbase,
	}
	if rec.Confirmed() {
		res.Confirmations = c.tip.Height - rec.BlockHeight + 1
	}
	return res, nil
}

// ListSinceBlock lists wallet activity after blockHash, or all of it when
// blockHash is empty. Mempool transactions are always listed.
func (c *Chain) ListSinceBlock(ctx context.Context, blockHash string) (*network.SinceBlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	since := int64(-1)
	if blockHash != "" {
		h, err := chainhash.NewHashFromStr(blockHash)
		if err != nil {
			return nil, &network.RPCError{Code: rpcInvalidParameter, Message: "blockhash must be hexadecimal"}
		}
		b, err := c.store.BlockByHash(*h)
		if err != nil {
			return nil, &network.RPCError{Code: network.RPCInvalidAddressOrKey, Message: "Block not found"}
		}
		since = b.Height
	}

	recs, err := c.store.ListTxs()
	if err != nil {
		return nil, err
	}
	res := &network.SinceBlock{LastBlock: c.tip.Hash.String(), Transactions: []network.WalletTx{}}
	for _, rec := range recs {
		if rec.Confirmed() && rec.BlockHeight <= since {
			continue
		}
		msg, err := decodeRaw(rec.Raw)
		if err != nil {
			return nil, err
		}
		res.Transactions = append(res.Transactions, c.walletEntriesLocked(rec, msg)...)
	}
	return res, nil
}

func (c *Chain) walletEntriesLocked(rec *TxRecord, msg *wire.MsgTx) []network.WalletTx {
	var entries []network.WalletTx
	base := network.WalletTx{TxID: rec.TxID.String(), Time: rec.Time}
	if rec.Confirmed() {
		base.BlockHash = rec.BlockHash.String()
		base.Confirmations = c.tip.Height - rec.BlockHeight + 1
	}
	for i, out := range msg.TxOut {
		addr := c.addressOf(out.PkScript)
		e := base
		e.Address = addr
		e.Vout = uint32(i)
		switch {
		case rec.Sent:
			if uint32(i) != rec.SentVout {
				continue
			}
			e.Category = "send"
			e.Amount = network.SatoshiToBTC(-out.Value)
		case !c.isWalletLocked(addr):
			continue
		case rec.Coinbase && e.Confirmations <= int64(c.params.CoinbaseMaturity):
			e.Category = "immature"
			e.Amount = network.SatoshiToBTC(out.Value)
		case rec.Coinbase:
			e.Category = "generate"
			e.Amount = network.SatoshiToBTC(out.Value)
		default:
			e.Category = "receive"
			e.Amount = network.SatoshiToBTC(out.Value)
		}
		entries = append(entries, e)
	}
	return entries
}

func (c *Chain) isWalletLocked(addr string) bool {
	_, ok := c.wallet[addr]
	return addr != "" && ok
}

func (c *Chain) addressOf(pkScript []byte) string {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, c.params)
	if err != nil || len(addrs) != 1 {
		return ""
	}
	return addrs[0].EncodeAddress()
}

func (c *Chain) inMempoolLocked(txid chainhash.Hash) bool {
	for _, id := range c.mempool {
		if id == txid {
			return true
		}
	}
	return false
}

func (c *Chain) prevOutLocked(op wire.OutPoint) (*wire.TxOut, error) {
	rec, err := c.store.GetTx(op.Hash)
	if err != nil {
		return nil, err
	}
	msg, err := decodeRaw(rec.Raw)
	if err != nil {
		return nil, err
	}
	if int(op.Index) >= len(msg.TxOut) {
		return nil, fmt.Errorf("%w: output %s", ErrNotFound, op)
	}
	return msg.TxOut[op.Index], nil
}

func (c *Chain) record(txid string) (*TxRecord, error) {
	h, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, &network.RPCError{Code: rpcInvalidParameter, Message: "txid must be hexadecimal"}
	}
	rec, err := c.store.GetTx(*h)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", network.ErrTxNotFound, txid)
	}
	return rec, err
}

func (c *Chain) payToAddress(address string) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, c.params)
	if err != nil || !addr.IsForNet(c.params) {
		return nil, &network.RPCError{Code: network.RPCInvalidAddressOrKey, Message: "Invalid address: " + address}
	}
	return txscript.PayToAddrScript(addr)
}

func scriptFailure(err error) string {
	var serr txscript.Error
	if errors.As(err, &serr) {
		return serr.Description
	}
	return err.Error()
}

func encodeRaw(msg *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := msg.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("simnet: serialize tx: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRaw(raw []byte) (*wire.MsgTx, error) {
	msg := new(wire.MsgTx)
	if err := msg.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("simnet: deserialize tx %s: %w", hex.EncodeToString(raw[:min(len(raw), 8)]), err)
	}
	return msg, nil
}
