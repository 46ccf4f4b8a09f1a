package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Demonss1309/Polysport/internal/domain"
	"github.com/Demonss1309/Polysport/internal/ports"
)

// Config holds the admission parameters for the entry scheduler.
type Config struct {
	// EntryWindow is how close to match start a market must be before
	// entries are admitted. Zero means admit immediately on discovery.
	EntryWindow time.Duration
}

// Scheduler decides when a discovered market is allowed to receive entry
// orders, and guarantees each market is admitted exactly once.
type Scheduler struct {
	queue  ports.QueueStore
	orders ports.OrderStore
	cfg    Config
}

// New creates a Scheduler over the given stores.
func New(queue ports.QueueStore, orders ports.OrderStore, cfg Config) *Scheduler {
	return &Scheduler{queue: queue, orders: orders, cfg: cfg}
}

// Admit inserts a queue entry for the market if none exists; an existing
// entry is returned unchanged. Idempotent.
func (s *Scheduler) Admit(ctx context.Context, m domain.MarketDescriptor, now time.Time) (domain.MarketQueueEntry, error) {
	entry := domain.MarketQueueEntry{
		MarketID:     m.Slug,
		DiscoveredAt: now,
		MatchStart:   m.MatchStart,
	}
	if err := s.queue.InsertQueueEntry(ctx, entry); err != nil {
		return domain.MarketQueueEntry{}, fmt.Errorf("scheduler.Admit: %s: %w", m.Slug, err)
	}

	existing, err := s.queue.GetQueueEntry(ctx, m.Slug)
	if err != nil {
		return domain.MarketQueueEntry{}, fmt.Errorf("scheduler.Admit: %s: %w", m.Slug, err)
	}
	return *existing, nil
}

// ReadyForEntry returns the queued markets whose admission window has opened
// and whose entries have not yet been placed. Ordered earliest match-start
// first. A market discovered after its match started is ready immediately —
// stale discovery must not lose the opportunity.
func (s *Scheduler) ReadyForEntry(ctx context.Context, now time.Time) ([]domain.MarketQueueEntry, error) {
	pending, err := s.queue.ListPendingQueueEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler.ReadyForEntry: %w", err)
	}

	var ready []domain.MarketQueueEntry
	for _, e := range pending {
		if e.ReadyForEntry(now, s.cfg.EntryWindow) {
			ready = append(ready, e)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		return ready[i].MatchStart.Before(ready[j].MatchStart)
	})
	return ready, nil
}

// Tracked returns every queued market, placed or not. The engine uses this
// as the universe of markets to reconcile.
func (s *Scheduler) Tracked(ctx context.Context) ([]domain.MarketQueueEntry, error) {
	entries, err := s.queue.ListQueueEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler.Tracked: %w", err)
	}
	return entries, nil
}

// MarkEntriesPlaced flips the entry's placed flag so the market is not
// re-admitted. Idempotent.
func (s *Scheduler) MarkEntriesPlaced(ctx context.Context, marketID string, now time.Time) error {
	if err := s.queue.MarkEntered(ctx, marketID, now); err != nil {
		return fmt.Errorf("scheduler.MarkEntriesPlaced: %s: %w", marketID, err)
	}
	return nil
}

// Purge removes queue entries whose orders are all terminal (or that never
// produced orders) and whose match started before now-retention. Returns the
// number removed.
func (s *Scheduler) Purge(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	entries, err := s.queue.ListQueueEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("scheduler.Purge: list: %w", err)
	}

	cutoff := now.Add(-retention)
	removed := 0
	for _, e := range entries {
		if e.MatchStart.After(cutoff) {
			continue
		}

		recs, err := s.orders.GetOrdersByMarket(ctx, e.MarketID)
		if err != nil {
			slog.Warn("scheduler: purge check failed", "market", e.MarketID, "err", err)
			continue
		}

		allTerminal := true
		for _, r := range recs {
			if !r.Status.Terminal() {
				allTerminal = false
				break
			}
		}
		if !allTerminal {
			continue
		}

		if err := s.queue.DeleteQueueEntry(ctx, e.MarketID); err != nil {
			slog.Warn("scheduler: purge delete failed", "market", e.MarketID, "err", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		slog.Debug("scheduler: purged stale queue entries", "count", removed)
	}
	return removed, nil
}
