package simnet

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"go.etcd.io/bbolt"
)

var (
	bucketBlocks      = []byte("blocks")
	bucketBlockHashes = []byte("block_hashes")
	bucketTxs         = []byte("txs")
	bucketWallet      = []byte("wallet")
)

// BoltStore persists the simulated chain in a bbolt database.
type BoltStore struct {
	db *bbolt.DB
}

// Compile-time interface check.
var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("simnet: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("simnet: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketBlocks, bucketBlockHashes, bucketTxs, bucketWallet} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("boltstore: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("simnet: create buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// heightKey encodes a block height as an 8-byte big-endian key so the
// cursor walks blocks in height order.
func heightKey(h int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(h))
	return k
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// PutBlock appends a block on top of the current tip.
func (s *BoltStore) PutBlock(b *Block) error {
	if b == nil {
		return fmt.Errorf("%w: block", ErrNilParam)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		blocks := tx.Bucket(bucketBlocks)
		var tip *Block
		if _, v := blocks.Cursor().Last(); v != nil {
			tip = new(Block)
			if err := decodeGob(v, tip); err != nil {
				return fmt.Errorf("boltstore: decode tip: %w", err)
			}
		}
		if err := checkExtends(tip, b); err != nil {
			return err
		}

		data, err := encodeGob(b)
		if err != nil {
			return fmt.Errorf("encode block: %w", err)
		}
		key := heightKey(b.Height)
		if err := blocks.Put(key, data); err != nil {
			return fmt.Errorf("boltstore: put block: %w", err)
		}
		if err := tx.Bucket(bucketBlockHashes).Put(b.Hash[:], key); err != nil {
			return fmt.Errorf("boltstore: put block hash: %w", err)
		}
		return nil
	})
}

// Tip returns the highest block.
func (s *BoltStore) Tip() (*Block, error) {
	var b Block
	err := s.db.View(func(tx *bbolt.Tx) error {
		k, v := tx.Bucket(bucketBlocks).Cursor().Last()
		if k == nil {
			return fmt.Errorf("%w: empty chain", ErrNotFound)
		}
		if err := decodeGob(v, &b); err != nil {
			return fmt.Errorf("boltstore: decode tip: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// BlockByHash returns the block with the given hash.
func (s *BoltStore) BlockByHash(hash chainhash.Hash) (*Block, error) {
	var b Block
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket(bucketBlockHashes).Get(hash[:])
		if key == nil {
			return fmt.Errorf("%w: block %s", ErrNotFound, hash)
		}
		data := tx.Bucket(bucketBlocks).Get(key)
		if data == nil {
			return fmt.Errorf("%w: block %s", ErrNotFound, hash)
		}
		if err := decodeGob(data, &b); err != nil {
			return fmt.Errorf("boltstore: decode block: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// PutTx inserts or replaces a transaction record.
func (s *BoltStore) PutTx(rec *TxRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: tx record", ErrNilParam)
	}
	data, err := encodeGob(rec)
	if err != nil {
		return fmt.Errorf("encode tx: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketTxs).Put(rec.TxID[:], data); err != nil {
			return fmt.Errorf("boltstore: put tx: %w", err)
		}
		return nil
	})
}

// GetTx returns the record for txid.
func (s *BoltStore) GetTx(txid chainhash.Hash) (*TxRecord, error) {
	var rec TxRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTxs).Get(txid[:])
		if data == nil {
			return fmt.Errorf("%w: tx %s", ErrNotFound, txid)
		}
		if err := decodeGob(data, &rec); err != nil {
			return fmt.Errorf("boltstore: decode tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListTxs returns every record ordered by Seq.
func (s *BoltStore) ListTxs() ([]*TxRecord, error) {
	var out []*TxRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTxs).ForEach(func(_, v []byte) error {
			var rec TxRecord
			if err := decodeGob(v, &rec); err != nil {
				return fmt.Errorf("boltstore: decode tx: %w", err)
			}
			out = append(out, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortRecords(out)
	return out, nil
}

// PutAddress adds a wallet address.
func (s *BoltStore) PutAddress(addr string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketWallet).Put([]byte(addr), []byte{}); err != nil {
			return fmt.Errorf("boltstore: put address: %w", err)
		}
		return nil
	})
}

// Addresses returns the wallet addresses in lexical order.
func (s *BoltStore) Addresses() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketWallet).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}
