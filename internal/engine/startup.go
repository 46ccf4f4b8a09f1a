package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Demonss1309/Polysport/internal/domain"
	"github.com/Demonss1309/Polysport/internal/pricing"
	"github.com/google/uuid"
)

// ReconcileStartup adopts venue-side orders that have no local record. The
// gap exists when a crash lands between the venue accepting an order and the
// record write; without adoption the next placement pass would double up.
// Runs once, before the first cycle.
func (e *Engine) ReconcileStartup(ctx context.Context) error {
	now := e.now()

	marketIDs := e.trackedMarkets(ctx)

	adopted := 0
	for _, marketID := range marketIDs {
		n, err := e.adoptOrphans(ctx, marketID, now)
		adopted += n
		if err != nil {
			if domain.IsTransient(err) {
				// the regular cycles will see these orders via the
				// disappearance pass's venue read; skip, don't abort
				slog.Warn("engine: startup reconciliation skipped market",
					"market", marketID, "err", err)
				continue
			}
			return fmt.Errorf("engine.ReconcileStartup: market %s: %w", marketID, err)
		}
	}

	if adopted > 0 {
		slog.Info("engine: startup reconciliation adopted orphan orders", "count", adopted)
	}
	return nil
}

func (e *Engine) adoptOrphans(ctx context.Context, marketID string, now time.Time) (adopted int, err error) {
	venueOrders, err := e.venue.GetOpenOrders(ctx, marketID)
	if err != nil {
		return 0, err
	}
	if len(venueOrders) == 0 {
		return 0, nil
	}

	recs, err := e.store.GetOrdersByMarket(ctx, marketID)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(recs))
	for _, r := range recs {
		if r.VenueOrderID != "" {
			known[r.VenueOrderID] = true
		}
	}

	for _, vo := range venueOrders {
		if known[vo.VenueOrderID] {
			continue
		}

		role, err := e.inferRole(ctx, marketID, recs, vo)
		if err != nil {
			slog.Warn("engine: cannot adopt venue order",
				"market", marketID, "venue_order_id", vo.VenueOrderID,
				"side", vo.Side, "price", fmt.Sprintf("%.2f", vo.Price),
				"err", err)
			continue
		}

		rec := domain.OrderRecord{
			ID:            uuid.New().String(),
			MarketID:      marketID,
			Role:          role,
			VenueOrderID:  vo.VenueOrderID,
			Side:          vo.Side,
			TokenID:       vo.TokenID,
			LimitPrice:    vo.Price,
			Size:          vo.Size,
			Status:        domain.StatusActive,
			CreatedAt:     now,
			LastCheckedAt: now,
		}
		if err := e.store.CreateOrder(ctx, rec); err != nil {
			return adopted, fmt.Errorf("adopt %s: %w", vo.VenueOrderID, err)
		}
		recs = append(recs, rec)

		adopted++
		slog.Info("engine: adopted orphan venue order",
			"market", marketID, "role", role,
			"venue_order_id", vo.VenueOrderID,
			"price", fmt.Sprintf("$%.2f", vo.Price),
		)
	}
	return adopted, nil
}

var errNoVacantRole = errors.New("no vacant role for side")

// inferRole maps an unrecorded venue order to the vacant role whose expected
// price sits closest to the order's. BUY orders compete for entry roles,
// SELL orders for take-profit roles; the expected prices come from the
// locked start price where one exists.
func (e *Engine) inferRole(ctx context.Context, marketID string, recs []domain.OrderRecord, vo domain.VenueOrder) (domain.OrderRole, error) {
	var candidates []domain.OrderRole
	if vo.Side == "BUY" {
		candidates = domain.EntryRoles()
	} else {
		candidates = domain.TakeProfitRoles()
	}

	occupied := make(map[domain.OrderRole]bool)
	for _, r := range recs {
		if r.Status != domain.StatusSuperseded && r.Status != domain.StatusCancelled {
			occupied[r.Role] = true
		}
	}

	var vacant []domain.OrderRole
	for _, role := range candidates {
		if !occupied[role] {
			vacant = append(vacant, role)
		}
	}
	switch len(vacant) {
	case 0:
		return "", errNoVacantRole
	case 1:
		return vacant[0], nil
	}

	expected := e.expectedPrices(ctx, marketID, vo.Side)
	best := vacant[0]
	bestDist := math.Inf(1)
	for _, role := range vacant {
		exp, ok := expected[role]
		if !ok {
			continue
		}
		if d := math.Abs(vo.Price - exp); d < bestDist {
			bestDist = d
			best = role
		}
	}
	return best, nil
}

// expectedPrices computes where each candidate role's order should sit given
// the locked start price. Best effort: an empty map just means the first
// vacant role wins.
func (e *Engine) expectedPrices(ctx context.Context, marketID string, side string) map[domain.OrderRole]float64 {
	out := make(map[domain.OrderRole]float64)

	startPrice, ok, err := e.prices.GetStartPrice(ctx, marketID)
	if err != nil || !ok {
		return out
	}

	if side == "BUY" {
		levels, err := pricing.EntryPrices(startPrice)
		if err != nil {
			return out
		}
		out[domain.RoleEntry1] = levels.Entry1
		out[domain.RoleEntry2] = levels.Entry2
		return out
	}

	// SELL: the single-fill ladder (start price and near full value) is the
	// common crash shape; a both-filled ladder differs only in the first leg
	tps := pricing.TakeProfitLevels(false, 0, startPrice)
	roles := domain.TakeProfitRoles()
	for i, lvl := range tps {
		if i < len(roles) {
			out[roles[i]] = lvl.Price
		}
	}
	return out
}
