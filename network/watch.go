package network

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultWatchInterval is the polling period of a Watcher.
	DefaultWatchInterval = 5 * time.Second

	// DefaultWatchLimit is the number of recent transactions a Watcher keeps.
	DefaultWatchLimit = 30
)

// WatcherConfig configures a Watcher. Zero values select the defaults.
type WatcherConfig struct {
	Interval time.Duration
	Limit    int
	Logger   *slog.Logger

	// OnUpdate receives the recent list after every poll that changed it.
	OnUpdate func([]WalletTx)
}

// Watcher polls a TxLister and keeps the most recent wallet transactions,
// de-duplicated by txid and ordered oldest first. It only reads from the
// node.
type Watcher struct {
	lister   TxLister
	interval time.Duration
	limit    int
	log      *slog.Logger
	onUpdate func([]WalletTx)

	mu        sync.Mutex
	recent    []WalletTx
	lastBlock string
}

// NewWatcher returns a watcher over lister.
func NewWatcher(lister TxLister, cfg WatcherConfig) *Watcher {
	w := &Watcher{
		lister:   lister,
		interval: cfg.Interval,
		limit:    cfg.Limit,
		log:      cfg.Logger,
		onUpdate: cfg.OnUpdate,
	}
	if w.interval <= 0 {
		w.interval = DefaultWatchInterval
	}
	if w.limit <= 0 {
		w.limit = DefaultWatchLimit
	}
	if w.log == nil {
		w.log = slog.New(slog.DiscardHandler)
	}
	return w
}

// Run polls until ctx is canceled. Poll errors are logged and the loop
// continues; Run returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("watcher: started", "interval", w.interval, "limit", w.limit)
	defer w.log.Info("watcher: stopped")

	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn("watcher: poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Poll queries the lister once and merges new transactions. It reports
// whether the recent list changed.
func (w *Watcher) Poll(ctx context.Context) (bool, error) {
	w.mu.Lock()
	since := w.lastBlock
	w.mu.Unlock()

	res, err := w.lister.ListSinceBlock(ctx, since)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if res.LastBlock != "" {
		w.lastBlock = res.LastBlock
	}
	changed := w.mergeLocked(res.Transactions)
	snapshot := w.snapshotLocked()
	w.mu.Unlock()

	if changed {
		w.log.Debug("watcher: updated", "transactions", len(snapshot), "lastblock", res.LastBlock)
		if w.onUpdate != nil {
			w.onUpdate(snapshot)
		}
	}
	return changed, nil
}

// mergeLocked folds txs into the recent list. The first entry listed for a
// txid is kept; later entries for the same txid (the other side of a
// self-payment, further vouts) only refresh its confirmation state.
func (w *Watcher) mergeLocked(txs []WalletTx) bool {
	if len(txs) == 0 {
		return false
	}
	changed := false
	index := make(map[string]int, len(w.recent))
	for i, tx := range w.recent {
		index[tx.TxID] = i
	}
	for _, tx := range txs {
		if i, ok := index[tx.TxID]; ok {
			cur := &w.recent[i]
			if cur.Confirmations != tx.Confirmations || cur.BlockHash != tx.BlockHash {
				cur.Confirmations, cur.BlockHash = tx.Confirmations, tx.BlockHash
				changed = true
			}
			continue
		}
		index[tx.TxID] = len(w.recent)
		w.recent = append(w.recent, tx)
		changed = true
	}

	sort.SliceStable(w.recent, func(i, j int) bool { return w.recent[i].Time < w.recent[j].Time })
	if len(w.recent) > w.limit {
		w.recent = append([]WalletTx(nil), w.recent[len(w.recent)-w.limit:]...)
	}
	return changed
}

func (w *Watcher) snapshotLocked() []WalletTx {
	return append([]WalletTx(nil), w.recent...)
}

// Recent returns the current list, oldest first.
func (w *Watcher) Recent() []WalletTx {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// LastBlock returns the block hash the next poll lists from.
func (w *Watcher) LastBlock() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastBlock
}
