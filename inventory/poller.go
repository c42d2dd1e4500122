/*
poller.go - Ledger polling for stores without change feeds

PURPOSE:
  SQLite and Postgres cannot push ledger changes. Poller re-reads the ledger
  on a fixed interval and satisfies stock.Subscriber, so the Watcher runs
  the same way on every store.

DESIGN:
  - Delivers the current ledger synchronously on Subscribe
  - Then checks once per interval in a background goroutine
  - The ledger only grows (or is reset), so the entry count plus the last
    entry id is enough to tell that something changed
  - Read failures are logged and retried on the next tick
*/
package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/stock-engine/stock"
)

const defaultPollInterval = 30 * time.Second

// Poller adapts a LedgerStore into a stock.Subscriber.
type Poller struct {
	store    stock.LedgerStore
	interval time.Duration
	log      *zap.Logger
}

func NewPoller(store stock.LedgerStore, interval time.Duration, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{store: store, interval: interval, log: log}
}

type ledgerMark struct {
	count  int
	lastID stock.EntryID
}

func markOf(entries []stock.Entry) ledgerMark {
	m := ledgerMark{count: len(entries)}
	if len(entries) > 0 {
		m.lastID = entries[len(entries)-1].ID
	}
	return m
}

// Subscribe implements stock.Subscriber.
func (p *Poller) Subscribe(ctx context.Context, onChange func([]stock.Entry)) (func(), error) {
	entries, err := p.store.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial ledger read: %w", err)
	}
	onChange(entries)
	seen := markOf(entries)

	ticker := time.NewTicker(p.interval)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				entries, err := p.store.FetchAll(ctx)
				if err != nil {
					p.log.Warn("poll ledger", zap.Error(err))
					continue
				}
				if m := markOf(entries); m != seen {
					seen = m
					onChange(entries)
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	p.log.Debug("ledger poller started", zap.Duration("interval", p.interval))

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
		})
	}, nil
}
