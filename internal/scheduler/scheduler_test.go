package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/Demonss1309/Polysport/internal/adapters/storage"
	"github.com/Demonss1309/Polysport/internal/domain"
	"github.com/Demonss1309/Polysport/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler(t *testing.T, window time.Duration) (*scheduler.Scheduler, *storage.SQLiteStore) {
	t.Helper()
	db, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return scheduler.New(db, db, scheduler.Config{EntryWindow: window}), db
}

func makeMarket(slug string, start time.Time) domain.MarketDescriptor {
	return domain.MarketDescriptor{
		Slug:          slug,
		Question:      "Will the favourite win?",
		StrongTokenID: "tok-strong",
		WeakTokenID:   "tok-weak",
		StrongPrice:   0.67,
		WeakPrice:     0.34,
		Volume:        5000,
		MatchStart:    start,
	}
}

func TestScheduler_AdmitIdempotent(t *testing.T) {
	sched, _ := newScheduler(t, time.Hour)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	m := makeMarket("m1", now.Add(4*time.Hour))
	first, err := sched.Admit(ctx, m, now)
	require.NoError(t, err)
	assert.WithinDuration(t, now, first.DiscoveredAt, time.Second)

	// readmitir más tarde conserva la entrada original
	second, err := sched.Admit(ctx, m, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.WithinDuration(t, first.DiscoveredAt, second.DiscoveredAt, time.Second)

	tracked, err := sched.Tracked(ctx)
	require.NoError(t, err)
	assert.Len(t, tracked, 1)
}

func TestScheduler_ReadyForEntryWindow(t *testing.T) {
	sched, _ := newScheduler(t, time.Hour)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	// empieza en 10h: descubierto pero fuera de ventana
	_, err := sched.Admit(ctx, makeMarket("far", now.Add(10*time.Hour)), now)
	require.NoError(t, err)

	ready, err := sched.ReadyForEntry(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, ready)

	// a 40 minutos del inicio entra en la ventana de 60
	ready, err = sched.ReadyForEntry(ctx, now.Add(9*time.Hour+20*time.Minute))
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "far", ready[0].MarketID)
}

func TestScheduler_PastStartStillReady(t *testing.T) {
	sched, _ := newScheduler(t, time.Hour)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	// descubierto tarde: el partido ya empezó
	_, err := sched.Admit(ctx, makeMarket("late", now.Add(-20*time.Minute)), now)
	require.NoError(t, err)

	ready, err := sched.ReadyForEntry(ctx, now)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "late", ready[0].MarketID)
}

func TestScheduler_MarkEntriesPlacedRemovesFromReady(t *testing.T) {
	sched, _ := newScheduler(t, time.Hour)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	_, err := sched.Admit(ctx, makeMarket("m1", now.Add(30*time.Minute)), now)
	require.NoError(t, err)

	ready, err := sched.ReadyForEntry(ctx, now)
	require.NoError(t, err)
	require.Len(t, ready, 1)

	require.NoError(t, sched.MarkEntriesPlaced(ctx, "m1", now))

	ready, err = sched.ReadyForEntry(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, ready)

	// pero sigue en el universo de reconciliación
	tracked, err := sched.Tracked(ctx)
	require.NoError(t, err)
	assert.Len(t, tracked, 1)
}

func TestScheduler_ReadyOrderedByStart(t *testing.T) {
	sched, _ := newScheduler(t, 2*time.Hour)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	_, err := sched.Admit(ctx, makeMarket("b", now.Add(90*time.Minute)), now)
	require.NoError(t, err)
	_, err = sched.Admit(ctx, makeMarket("a", now.Add(15*time.Minute)), now)
	require.NoError(t, err)

	ready, err := sched.ReadyForEntry(ctx, now)
	require.NoError(t, err)
	require.Len(t, ready, 2)
	assert.Equal(t, "a", ready[0].MarketID)
	assert.Equal(t, "b", ready[1].MarketID)
}

func TestScheduler_Purge(t *testing.T) {
	sched, db := newScheduler(t, time.Hour)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	retention := 7 * 24 * time.Hour

	// viejo y sin órdenes: se purga
	_, err := sched.Admit(ctx, makeMarket("stale", now.Add(-10*24*time.Hour)), now.Add(-10*24*time.Hour))
	require.NoError(t, err)

	// viejo pero con una orden viva: se conserva
	_, err = sched.Admit(ctx, makeMarket("stale-live", now.Add(-9*24*time.Hour)), now.Add(-9*24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, db.CreateOrder(ctx, domain.OrderRecord{
		ID: "ord-live", MarketID: "stale-live", Role: domain.RoleEntry1,
		Side: "BUY", TokenID: "tok", LimitPrice: 0.45, Size: 10,
		Status: domain.StatusActive, CreatedAt: now, LastCheckedAt: now,
	}))

	// reciente: se conserva
	_, err = sched.Admit(ctx, makeMarket("fresh", now.Add(2*time.Hour)), now)
	require.NoError(t, err)

	removed, err := sched.Purge(ctx, now, retention)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	tracked, err := sched.Tracked(ctx)
	require.NoError(t, err)
	require.Len(t, tracked, 2)
	for _, e := range tracked {
		assert.NotEqual(t, "stale", e.MarketID)
	}
}
