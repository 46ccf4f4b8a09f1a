package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Demonss1309/Polysport/internal/domain"
	"github.com/Demonss1309/Polysport/internal/ports"
	"github.com/Demonss1309/Polysport/internal/scheduler"
)

const (
	defaultPartialFillThreshold  = 1.0
	defaultRecreateWarnThreshold = 3
	defaultRetentionWindow       = 7 * 24 * time.Hour
	defaultLockWindow            = 180 * time.Minute
)

// Config holds configuration for the reconciliation engine.
type Config struct {
	EntryStake            float64       // USDC notional per entry order
	CycleInterval         time.Duration // time between reconciliation cycles
	PartialFillThreshold  float64       // fraction of order size that counts as filled (1.0 = full fill only)
	RetentionWindow       time.Duration // age after which terminal records and queue entries are purged
	RecreateWarnThreshold int           // warn once an order lineage reaches this many recreations
	LockWindow            time.Duration // pre-match window in which the start price gets locked
	ManualOverride        map[string]bool
}

// Engine owns the authoritative record of every order the bot believes it
// has placed, detects divergence from venue truth, recreates missing orders,
// and drives take-profit placement exactly once per fill. The Order Record
// Store is a cache of intent — venue truth is re-read every cycle.
type Engine struct {
	markets  ports.MarketProvider
	venue    ports.VenueGateway
	store    ports.OrderStore
	prices   ports.StartPriceCache
	sched    *scheduler.Scheduler
	notifier ports.Notifier
	cfg      Config
	now      func() time.Time // injectable clock for tests
}

// New creates a reconciliation engine.
func New(
	markets ports.MarketProvider,
	venue ports.VenueGateway,
	store ports.OrderStore,
	prices ports.StartPriceCache,
	sched *scheduler.Scheduler,
	notifier ports.Notifier,
	cfg Config,
) *Engine {
	if cfg.PartialFillThreshold <= 0 || cfg.PartialFillThreshold > 1 {
		cfg.PartialFillThreshold = defaultPartialFillThreshold
	}
	if cfg.RecreateWarnThreshold <= 0 {
		cfg.RecreateWarnThreshold = defaultRecreateWarnThreshold
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = defaultRetentionWindow
	}
	if cfg.LockWindow <= 0 {
		cfg.LockWindow = defaultLockWindow
	}

	return &Engine{
		markets:  markets,
		venue:    venue,
		store:    store,
		prices:   prices,
		sched:    sched,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetClock overrides the engine clock. Tests only.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Run executes the startup reconciliation pass and then loops cycles until
// the context is cancelled. A stop signal is honoured between cycles.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting",
		"interval", e.cfg.CycleInterval,
		"entry_stake", fmt.Sprintf("$%.2f", e.cfg.EntryStake),
	)

	if err := e.ReconcileStartup(ctx); err != nil {
		return fmt.Errorf("engine.Run: startup reconciliation: %w", err)
	}

	e.cycleAndNotify(ctx)

	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopped")
			return nil
		case <-ticker.C:
			e.cycleAndNotify(ctx)
		}
	}
}

func (e *Engine) cycleAndNotify(ctx context.Context) {
	report, err := e.RunCycle(ctx)
	if err != nil {
		slog.Error("engine: cycle failed", "err", err)
		return
	}
	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, *report); err != nil {
			slog.Warn("engine: notifier error", "err", err)
		}
	}
}

// RunCycle executes one reconciliation cycle: discovery → admission →
// placement → per-market reconciliation (disappearance, fill, take-profit) →
// purge. Every market is an independent unit of work; one market's failure
// never aborts the others.
func (e *Engine) RunCycle(ctx context.Context) (*domain.CycleReport, error) {
	now := e.now()
	report := &domain.CycleReport{StartedAt: now}

	// 1. Balance — observability only, never gates placement
	if bal, err := e.venue.GetBalance(ctx); err != nil {
		slog.Warn("engine: balance check failed", "err", err)
	} else {
		report.Balance = bal
		slog.Info("engine: cycle start", "balance", fmt.Sprintf("$%.2f", bal))
	}

	// 2. Discovery + admission + start-price lock
	descriptors := make(map[string]domain.MarketDescriptor)
	mkts, err := e.markets.FetchMarkets(ctx)
	if err != nil {
		// keep reconciling existing state even when discovery is down
		slog.Warn("engine: market scan failed, reconciling existing state only", "err", err)
		report.Warnings = append(report.Warnings, fmt.Sprintf("scan failed: %v", err))
	} else {
		report.MarketsScanned = len(mkts)
		for _, m := range mkts {
			descriptors[m.Slug] = m
			if _, err := e.sched.Admit(ctx, m, now); err != nil {
				slog.Warn("engine: admit failed", "market", m.Slug, "err", err)
				continue
			}
			report.Admitted++
			// the lock keeps the first price observed inside the window;
			// take-profit pricing depends on it. Markets discovered after
			// the match started still lock, otherwise their positions
			// could never be exited.
			if m.TimeToStart(now) <= e.cfg.LockWindow {
				if err := e.prices.LockStartPrice(ctx, m.Slug, m.StrongPrice, now); err != nil {
					slog.Warn("engine: start price lock failed", "market", m.Slug, "err", err)
				}
			}
		}
	}

	// 3. Placement pass for markets whose admission window opened
	ready, err := e.sched.ReadyForEntry(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("engine.RunCycle: ready markets: %w", err)
	}
	for _, entry := range ready {
		m, ok := descriptors[entry.MarketID]
		if !ok {
			// ready but absent from this scan: defer until it reappears
			slog.Debug("engine: ready market not in current scan", "market", entry.MarketID)
			continue
		}
		placed, err := e.placementPass(ctx, m, now)
		report.EntriesPlaced += placed
		if err != nil {
			e.recordMarketError(report, m.Slug, err)
		}
	}

	// 4-6. Disappearance, fill and take-profit passes, per tracked market
	for _, marketID := range e.trackedMarkets(ctx) {
		if err := e.reconcileMarket(ctx, marketID, report, now); err != nil {
			e.recordMarketError(report, marketID, err)
		}
	}

	// 7. Retention
	purged, err := e.sched.Purge(ctx, now, e.cfg.RetentionWindow)
	if err != nil {
		slog.Warn("engine: queue purge failed", "err", err)
	}
	report.Purged = purged
	if _, err := e.store.PruneTerminal(ctx, now.Add(-e.cfg.RetentionWindow)); err != nil {
		slog.Warn("engine: record prune failed", "err", err)
	}

	if tracked, err := e.store.GetLiveOrders(ctx); err == nil {
		report.Tracked = tracked
	}

	report.Duration = e.now().Sub(now)
	return report, nil
}

// trackedMarkets is the union of queued markets and markets with live
// records, sorted for deterministic processing.
func (e *Engine) trackedMarkets(ctx context.Context) []string {
	seen := make(map[string]bool)

	entries, err := e.sched.Tracked(ctx)
	if err != nil {
		slog.Warn("engine: tracked markets unavailable", "err", err)
	}
	for _, entry := range entries {
		seen[entry.MarketID] = true
	}

	live, err := e.store.GetLiveOrders(ctx)
	if err != nil {
		slog.Warn("engine: live orders unavailable", "err", err)
	}
	for _, rec := range live {
		seen[rec.MarketID] = true
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// recordMarketError logs a per-market failure without aborting the cycle.
// Invariant violations indicate state corruption and are logged at error
// level so an operator notices.
func (e *Engine) recordMarketError(report *domain.CycleReport, marketID string, err error) {
	if domain.IsInvariantViolation(err) {
		slog.Error("engine: INVARIANT VIOLATION, market skipped", "market", marketID, "err", err)
		report.Warnings = append(report.Warnings, fmt.Sprintf("INVARIANT %s: %v", marketID, err))
		return
	}
	slog.Warn("engine: market processing failed", "market", marketID, "err", err)
	report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %v", marketID, err))
}
