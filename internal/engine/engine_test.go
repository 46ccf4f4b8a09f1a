package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Demonss1309/Polysport/internal/adapters/storage"
	"github.com/Demonss1309/Polysport/internal/domain"
	"github.com/Demonss1309/Polysport/internal/engine"
	"github.com/Demonss1309/Polysport/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockMarkets serves a fixed scan result.
type mockMarkets struct {
	markets []domain.MarketDescriptor
	err     error
}

func (m *mockMarkets) FetchMarkets(_ context.Context) ([]domain.MarketDescriptor, error) {
	return m.markets, m.err
}

// mockVenue is an in-memory venue: accepted orders rest on the book until the
// test removes them or converts them into fills.
type mockVenue struct {
	nextID   int
	open     map[string][]domain.VenueOrder
	fills    map[string][]domain.VenueFill
	placed   []domain.PlaceOrderRequest
	placeErr error
	openErr  error
	balance  float64
}

func newMockVenue() *mockVenue {
	return &mockVenue{
		open:    make(map[string][]domain.VenueOrder),
		fills:   make(map[string][]domain.VenueFill),
		balance: 250,
	}
}

func (v *mockVenue) PlaceLimitOrder(_ context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	if v.placeErr != nil {
		return domain.PlacedOrder{}, v.placeErr
	}
	v.nextID++
	id := fmt.Sprintf("venue-%d", v.nextID)
	v.placed = append(v.placed, req)
	v.open[req.MarketID] = append(v.open[req.MarketID], domain.VenueOrder{
		VenueOrderID: id,
		TokenID:      req.TokenID,
		Side:         req.Side,
		Price:        req.Price,
		Size:         req.Size,
	})
	return domain.PlacedOrder{VenueOrderID: id, Status: "live"}, nil
}

func (v *mockVenue) GetOpenOrders(_ context.Context, marketID string) ([]domain.VenueOrder, error) {
	if v.openErr != nil {
		return nil, v.openErr
	}
	return v.open[marketID], nil
}

func (v *mockVenue) GetFills(_ context.Context, marketID string) ([]domain.VenueFill, error) {
	return v.fills[marketID], nil
}

func (v *mockVenue) GetBalance(_ context.Context) (float64, error) {
	return v.balance, nil
}

// vanish removes an order from the open book without producing a fill.
func (v *mockVenue) vanish(marketID, venueOrderID string) {
	kept := v.open[marketID][:0]
	for _, o := range v.open[marketID] {
		if o.VenueOrderID != venueOrderID {
			kept = append(kept, o)
		}
	}
	v.open[marketID] = kept
}

// match records fill progress on a resting order without delisting it and
// without producing a trade record.
func (v *mockVenue) match(marketID, venueOrderID string, size float64) {
	for i := range v.open[marketID] {
		if v.open[marketID][i].VenueOrderID == venueOrderID {
			v.open[marketID][i].SizeMatched = size
		}
	}
}

// fill removes the order from the book and reports it traded.
func (v *mockVenue) fill(marketID, venueOrderID string, size, price float64) {
	v.vanish(marketID, venueOrderID)
	v.fills[marketID] = append(v.fills[marketID], domain.VenueFill{
		VenueOrderID: venueOrderID,
		FilledSize:   size,
		AvgPrice:     price,
	})
}

type fixture struct {
	eng    *engine.Engine
	venue  *mockVenue
	store  *storage.SQLiteStore
	now    time.Time
	market domain.MarketDescriptor
}

// newFixture builds an engine around one eligible market whose match starts
// in 30 minutes, with a deterministic clock.
func newFixture(t *testing.T, cfg engine.Config) *fixture {
	t.Helper()

	db, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	market := domain.MarketDescriptor{
		Slug:          "lakers-celtics",
		Question:      "Lakers vs Celtics",
		StrongTokenID: "tok-strong",
		WeakTokenID:   "tok-weak",
		StrongPrice:   0.67,
		WeakPrice:     0.34,
		Volume:        5000,
		MatchStart:    now.Add(30 * time.Minute),
	}

	venue := newMockVenue()
	sched := scheduler.New(db, db, scheduler.Config{EntryWindow: time.Hour})

	if cfg.EntryStake == 0 {
		cfg.EntryStake = 10
	}
	eng := engine.New(&mockMarkets{markets: []domain.MarketDescriptor{market}}, venue, db, db, sched, nil, cfg)
	eng.SetClock(func() time.Time { return now })

	return &fixture{eng: eng, venue: venue, store: db, now: now, market: market}
}

func TestRunCycle_PlacesBothEntries(t *testing.T) {
	f := newFixture(t, engine.Config{})
	ctx := context.Background()

	report, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.MarketsScanned)
	assert.Equal(t, 2, report.EntriesPlaced)
	require.Len(t, f.venue.placed, 2)

	// strong at 67¢ buckets to weak-side entries at 0.45 and 0.33
	assert.InDelta(t, 0.45, f.venue.placed[0].Price, 0.0001)
	assert.InDelta(t, 0.33, f.venue.placed[1].Price, 0.0001)
	for _, req := range f.venue.placed {
		assert.Equal(t, "BUY", req.Side)
		assert.Equal(t, "tok-weak", req.TokenID)
		assert.InDelta(t, 10/req.Price, req.Size, 0.0001)
	}

	e1, err := f.store.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleEntry1)
	require.NoError(t, err)
	require.NotNil(t, e1)
	assert.Equal(t, domain.StatusActive, e1.Status)
	assert.NotEmpty(t, e1.VenueOrderID)

	// the pre-match strong price got locked for take-profit pricing
	price, ok, err := f.store.GetStartPrice(ctx, f.market.Slug)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.67, price, 0.0001)
}

func TestRunCycle_PlacementIdempotent(t *testing.T) {
	f := newFixture(t, engine.Config{})
	ctx := context.Background()

	_, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)
	report, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, report.EntriesPlaced)
	assert.Len(t, f.venue.placed, 2)

	live, err := f.store.GetLiveOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, live, 2)
}

func TestRunCycle_RecreatesDisappearedOrder(t *testing.T) {
	f := newFixture(t, engine.Config{})
	ctx := context.Background()

	_, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)

	old, err := f.store.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleEntry1)
	require.NoError(t, err)
	require.NotNil(t, old)

	f.venue.vanish(f.market.Slug, old.VenueOrderID)

	report, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Recreated)

	oldAfter, err := f.store.GetOrder(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuperseded, oldAfter.Status)
	assert.NotEmpty(t, oldAfter.SupersededBy)

	repl, err := f.store.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleEntry1)
	require.NoError(t, err)
	require.NotNil(t, repl)
	assert.Equal(t, oldAfter.SupersededBy, repl.ID)
	assert.Equal(t, 1, repl.RecreateCount)
	// identical economic terms
	assert.InDelta(t, old.LimitPrice, repl.LimitPrice, 0.0001)
	assert.InDelta(t, old.Size, repl.Size, 0.0001)
	assert.NotEqual(t, old.VenueOrderID, repl.VenueOrderID)

	// live record count stays at two entries
	live, err := f.store.GetLiveOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, live, 2)
}

func TestRunCycle_RecreationKeepsFailingThenRetries(t *testing.T) {
	f := newFixture(t, engine.Config{})
	ctx := context.Background()

	_, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)

	old, err := f.store.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleEntry1)
	require.NoError(t, err)
	f.venue.vanish(f.market.Slug, old.VenueOrderID)

	// venue refuses replacements for one cycle
	f.venue.placeErr = &domain.TransientError{Op: "test", Err: fmt.Errorf("down")}
	report, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Recreated)

	marked, err := f.store.GetOrder(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisappeared, marked.Status)

	// next cycle succeeds
	f.venue.placeErr = nil
	report, err = f.eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Recreated)
}

func TestRunCycle_FillTriggersTakeProfitOnce(t *testing.T) {
	f := newFixture(t, engine.Config{})
	ctx := context.Background()

	_, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)

	e1, err := f.store.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleEntry1)
	require.NoError(t, err)
	f.venue.fill(f.market.Slug, e1.VenueOrderID, e1.Size, e1.LimitPrice)

	report, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fills)
	assert.Equal(t, 2, report.TakeProfits)

	filled, err := f.store.GetOrder(ctx, e1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, filled.Status)
	require.NotNil(t, filled.FilledAt)

	// only entry 1 filled: TP at locked start price and near full value
	tp1, err := f.store.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleTakeProfit1)
	require.NoError(t, err)
	require.NotNil(t, tp1)
	assert.Equal(t, "SELL", tp1.Side)
	assert.InDelta(t, 0.67, tp1.LimitPrice, 0.0001)
	assert.InDelta(t, e1.Size*0.5, tp1.Size, 0.0001)

	tp2, err := f.store.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleTakeProfit2)
	require.NoError(t, err)
	require.NotNil(t, tp2)
	assert.InDelta(t, 0.96, tp2.LimitPrice, 0.0001)

	// the take-profits are placed exactly once
	report, err = f.eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.TakeProfits)
}

func TestRunCycle_BothFilledTakeProfitLadder(t *testing.T) {
	f := newFixture(t, engine.Config{})
	ctx := context.Background()

	_, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)

	e1, err := f.store.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleEntry1)
	require.NoError(t, err)
	e2, err := f.store.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleEntry2)
	require.NoError(t, err)
	f.venue.fill(f.market.Slug, e1.VenueOrderID, e1.Size, e1.LimitPrice)
	f.venue.fill(f.market.Slug, e2.VenueOrderID, e2.Size, e2.LimitPrice)

	report, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Fills)
	assert.Equal(t, 2, report.TakeProfits)

	total := e1.Size + e2.Size
	tp1, err := f.store.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleTakeProfit1)
	require.NoError(t, err)
	require.NotNil(t, tp1)
	assert.InDelta(t, e1.LimitPrice, tp1.LimitPrice, 0.0001)
	assert.InDelta(t, total*0.5, tp1.Size, 0.0001)

	tp2, err := f.store.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleTakeProfit2)
	require.NoError(t, err)
	require.NotNil(t, tp2)
	assert.InDelta(t, 0.67, tp2.LimitPrice, 0.0001)
}

func TestRunCycle_PartialFillBelowThresholdIgnored(t *testing.T) {
	f := newFixture(t, engine.Config{})
	ctx := context.Background()

	_, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)

	e1, err := f.store.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleEntry1)
	require.NoError(t, err)
	// half the size traded; with threshold 1.0 the record stays live
	f.venue.fills[f.market.Slug] = append(f.venue.fills[f.market.Slug], domain.VenueFill{
		VenueOrderID: e1.VenueOrderID,
		FilledSize:   e1.Size * 0.5,
		AvgPrice:     e1.LimitPrice,
	})

	report, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Fills)
	assert.Equal(t, 0, report.TakeProfits)

	still, err := f.store.GetOrder(ctx, e1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, still.Status)
}

func TestRunCycle_PartialFillFinalWhenOrderGone(t *testing.T) {
	f := newFixture(t, engine.Config{})
	ctx := context.Background()

	_, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)

	e1, err := f.store.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleEntry1)
	require.NoError(t, err)
	// half the size traded and the order left the book: the fill can never
	// grow, so it is final even below the threshold — and the order must
	// not be mistaken for a disappearance and re-placed
	f.venue.fill(f.market.Slug, e1.VenueOrderID, e1.Size*0.5, e1.LimitPrice)

	report, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fills)
	assert.Equal(t, 0, report.Recreated)

	filled, err := f.store.GetOrder(ctx, e1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, filled.Status)
	assert.InDelta(t, e1.Size*0.5, filled.FilledSize, 0.0001)
}

func TestRunCycle_BookProgressCountsAsFill(t *testing.T) {
	f := newFixture(t, engine.Config{PartialFillThreshold: 0.5})
	ctx := context.Background()

	_, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)

	e1, err := f.store.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleEntry1)
	require.NoError(t, err)
	// no trade record yet, but the resting order shows matched size above
	// the threshold
	f.venue.match(f.market.Slug, e1.VenueOrderID, e1.Size*0.6)

	report, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fills)

	filled, err := f.store.GetOrder(ctx, e1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, filled.Status)
	assert.InDelta(t, e1.Size*0.6, filled.FilledSize, 0.0001)
}

func TestRunCycle_ManualOverrideSuppressesTakeProfit(t *testing.T) {
	f := newFixture(t, engine.Config{
		ManualOverride: map[string]bool{"lakers-celtics": true},
	})
	ctx := context.Background()

	_, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)

	e1, err := f.store.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleEntry1)
	require.NoError(t, err)
	f.venue.fill(f.market.Slug, e1.VenueOrderID, e1.Size, e1.LimitPrice)

	report, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fills)
	assert.Equal(t, 0, report.TakeProfits)

	tp1, err := f.store.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleTakeProfit1)
	require.NoError(t, err)
	assert.Nil(t, tp1)
}

func TestRunCycle_VenueDownDefersMarket(t *testing.T) {
	f := newFixture(t, engine.Config{})
	ctx := context.Background()

	_, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)

	// venue reads fail: statuses stay untouched, cycle reports the warning
	f.venue.openErr = &domain.TransientError{Op: "test", Err: fmt.Errorf("timeout")}
	report, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, report.Warnings)

	live, err := f.store.GetLiveOrders(ctx)
	require.NoError(t, err)
	require.Len(t, live, 2)
	for _, rec := range live {
		assert.Equal(t, domain.StatusActive, rec.Status)
	}
}

func TestReconcileStartup_AdoptsOrphanOrders(t *testing.T) {
	f := newFixture(t, engine.Config{})
	ctx := context.Background()
	slug := f.market.Slug

	// crash shape: queue entry and venue orders exist, records do not
	require.NoError(t, f.store.InsertQueueEntry(ctx, domain.MarketQueueEntry{
		MarketID:     slug,
		DiscoveredAt: f.now.Add(-10 * time.Minute),
		MatchStart:   f.market.MatchStart,
	}))
	require.NoError(t, f.store.LockStartPrice(ctx, slug, 0.67, f.now.Add(-10*time.Minute)))

	f.venue.open[slug] = []domain.VenueOrder{
		{VenueOrderID: "orphan-2", TokenID: "tok-weak", Side: "BUY", Price: 0.33, Size: 30.3},
		{VenueOrderID: "orphan-1", TokenID: "tok-weak", Side: "BUY", Price: 0.45, Size: 22.2},
	}

	require.NoError(t, f.eng.ReconcileStartup(ctx))

	e1, err := f.store.GetLiveOrderByRole(ctx, slug, domain.RoleEntry1)
	require.NoError(t, err)
	require.NotNil(t, e1)
	assert.Equal(t, "orphan-1", e1.VenueOrderID)
	assert.InDelta(t, 0.45, e1.LimitPrice, 0.0001)

	e2, err := f.store.GetLiveOrderByRole(ctx, slug, domain.RoleEntry2)
	require.NoError(t, err)
	require.NotNil(t, e2)
	assert.Equal(t, "orphan-2", e2.VenueOrderID)

	// the next cycle does not double-place on top of adopted orders
	report, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.EntriesPlaced)
	assert.Empty(t, f.venue.placed)
}

func TestReconcileStartup_KnownOrdersNotReadopted(t *testing.T) {
	f := newFixture(t, engine.Config{})
	ctx := context.Background()

	_, err := f.eng.RunCycle(ctx)
	require.NoError(t, err)

	require.NoError(t, f.eng.ReconcileStartup(ctx))

	live, err := f.store.GetLiveOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, live, 2)
}

func TestRunCycle_LateDiscoveredMarketStillExits(t *testing.T) {
	f := newFixture(t, engine.Config{})
	f.market.MatchStart = f.now.Add(-20 * time.Minute)

	db, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	venue := newMockVenue()
	sched := scheduler.New(db, db, scheduler.Config{EntryWindow: time.Hour})
	eng := engine.New(&mockMarkets{markets: []domain.MarketDescriptor{f.market}}, venue, db, db, sched, nil, engine.Config{EntryStake: 10})
	eng.SetClock(func() time.Time { return f.now })

	ctx := context.Background()
	report, err := eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.EntriesPlaced)

	// discovered in-play, the first observed strong price still locks so
	// the position has an exit
	price, ok, err := db.GetStartPrice(ctx, f.market.Slug)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.67, price, 0.0001)

	e1, err := db.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleEntry1)
	require.NoError(t, err)
	venue.fill(f.market.Slug, e1.VenueOrderID, e1.Size, e1.LimitPrice)

	report, err = eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fills)
	assert.Equal(t, 2, report.TakeProfits)

	tp1, err := db.GetLiveOrderByRole(ctx, f.market.Slug, domain.RoleTakeProfit1)
	require.NoError(t, err)
	require.NotNil(t, tp1)
	assert.InDelta(t, 0.67, tp1.LimitPrice, 0.0001)
}

func TestRunCycle_IneligibleMarketNeverEntered(t *testing.T) {
	f := newFixture(t, engine.Config{})
	f.market.StrongPrice = 0.55 // below the minimum bucket
	f.eng = nil

	db, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	venue := newMockVenue()
	sched := scheduler.New(db, db, scheduler.Config{EntryWindow: time.Hour})
	eng := engine.New(&mockMarkets{markets: []domain.MarketDescriptor{f.market}}, venue, db, db, sched, nil, engine.Config{EntryStake: 10})
	eng.SetClock(func() time.Time { return f.now })

	ctx := context.Background()
	report, err := eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.EntriesPlaced)
	assert.Empty(t, venue.placed)

	// not re-admitted either: no strategy exists for this market
	report, err = eng.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.EntriesPlaced)
}
