package simnet

import (
	"fmt"
	"sort"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MempoolHeight is the BlockHeight of an unconfirmed transaction.
const MempoolHeight int64 = -1

// Block is a mined block of the simulated chain.
type Block struct {
	Height int64
	Hash   chainhash.Hash
	Prev   chainhash.Hash
	Time   int64
	TxIDs  []chainhash.Hash
}

// TxRecord is a transaction known to the simulated node, confirmed or in
// the mempool.
type TxRecord struct {
	TxID        chainhash.Hash
	Raw         []byte
	Seq         uint64
	Time        int64
	BlockHeight int64
	BlockHash   chainhash.Hash
	Coinbase    bool

	// Sent marks a wallet send; SentVout is the output paying the recipient.
	Sent     bool
	SentVout uint32
}

// Confirmed reports whether the transaction is in a block.
func (r *TxRecord) Confirmed() bool { return r.BlockHeight != MempoolHeight }

// Store persists the simulated chain.
type Store interface {
	// PutBlock appends a block on top of the current tip.
	PutBlock(b *Block) error

	// Tip returns the highest block, or ErrNotFound on an empty store.
	Tip() (*Block, error)

	// BlockByHash returns the block with the given hash.
	BlockByHash(hash chainhash.Hash) (*Block, error)

	// PutTx inserts or replaces a transaction record.
	PutTx(rec *TxRecord) error

	// GetTx returns the record for txid.
	GetTx(txid chainhash.Hash) (*TxRecord, error)

	// ListTxs returns every record ordered by Seq.
	ListTxs() ([]*TxRecord, error)

	// PutAddress adds a wallet address.
	PutAddress(addr string) error

	// Addresses returns the wallet addresses.
	Addresses() ([]string, error)

	// Close releases the store.
	Close() error
}

// MemStore is an in-memory Store.
type MemStore struct {
	mu     sync.RWMutex
	blocks []*Block
	byHash map[chainhash.Hash]*Block
	txs    map[chainhash.Hash]*TxRecord
	wallet map[string]struct{}
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		byHash: make(map[chainhash.Hash]*Block),
		txs:    make(map[chainhash.Hash]*TxRecord),
		wallet: make(map[string]struct{}),
	}
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// PutBlock appends a block on top of the current tip.
func (s *MemStore) PutBlock(b *Block) error {
	if b == nil {
		return fmt.Errorf("%w: block", ErrNilParam)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkExtends(s.tipLocked(), b); err != nil {
		return err
	}
	cp := copyBlock(b)
	s.blocks = append(s.blocks, cp)
	s.byHash[cp.Hash] = cp
	return nil
}

func (s *MemStore) tipLocked() *Block {
	if len(s.blocks) == 0 {
		return nil
	}
	return s.blocks[len(s.blocks)-1]
}

// Tip returns the highest block.
func (s *MemStore) Tip() (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tip := s.tipLocked()
	if tip == nil {
		return nil, fmt.Errorf("%w: empty chain", ErrNotFound)
	}
	return copyBlock(tip), nil
}

// BlockByHash returns the block with the given hash.
func (s *MemStore) BlockByHash(hash chainhash.Hash) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byHash[hash]
	if !ok {
		return nil, fmt.Errorf("%w: block %s", ErrNotFound, hash)
	}
	return copyBlock(b), nil
}

// PutTx inserts or replaces a transaction record.
func (s *MemStore) PutTx(rec *TxRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: tx record", ErrNilParam)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.Raw = append([]byte(nil), rec.Raw...)
	s.txs[rec.TxID] = &cp
	return nil
}

// GetTx returns the record for txid.
func (s *MemStore) GetTx(txid chainhash.Hash) (*TxRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.txs[txid]
	if !ok {
		return nil, fmt.Errorf("%w: tx %s", ErrNotFound, txid)
	}
	cp := *rec
	return &cp, nil
}

// ListTxs returns every record ordered by Seq.
func (s *MemStore) ListTxs() ([]*TxRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*TxRecord, 0, len(s.txs))
	for _, rec := range s.txs {
		cp := *rec
		out = append(out, &cp)
	}
	sortRecords(out)
	return out, nil
}

// PutAddress adds a wallet address.
func (s *MemStore) PutAddress(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallet[addr] = struct{}{}
	return nil
}

// Addresses returns the wallet addresses in lexical order.
func (s *MemStore) Addresses() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.wallet))
	for a := range s.wallet {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

// Close is a no-op.
func (s *MemStore) Close() error { return nil }

func checkExtends(tip, b *Block) error {
	if tip == nil {
		if b.Height != 0 {
			return fmt.Errorf("%w: first block must be height 0, got %d", ErrBrokenChain, b.Height)
		}
		return nil
	}
	if b.Height <= tip.Height {
		return fmt.Errorf("%w: height %d", ErrDuplicateBlock, b.Height)
	}
	if b.Height != tip.Height+1 || b.Prev != tip.Hash {
		return fmt.Errorf("%w: height %d prev %s", ErrBrokenChain, b.Height, b.Prev)
	}
	return nil
}

func copyBlock(b *Block) *Block {
	cp := *b
	cp.TxIDs = append([]chainhash.Hash(nil), b.TxIDs...)
	return &cp
}

func sortRecords(recs []*TxRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })
}
