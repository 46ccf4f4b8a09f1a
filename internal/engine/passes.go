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

// fillEpsilon absorbs venue rounding when comparing filled size to order size.
const fillEpsilon = 1e-6

// placementPass places ENTRY_1 and ENTRY_2 for a just-admitted market as two
// independent limit buys on the weak-side token. Idempotent per (market,
// role): an existing live record blocks re-placement. A venue rejection
// leaves no record, so the next cycle retries — fire and retry, not fatal.
func (e *Engine) placementPass(ctx context.Context, m domain.MarketDescriptor, now time.Time) (placed int, err error) {
	levels, err := pricing.EntryPrices(m.StrongPrice)
	if err != nil {
		if errors.Is(err, pricing.ErrIneligible) {
			// below the minimum bucket: there is no strategy for this
			// market, ever — stop re-admitting it
			slog.Debug("engine: market below entry bucket", "market", m.Slug,
				"strong_price", fmt.Sprintf("%.2f", m.StrongPrice))
			if err := e.sched.MarkEntriesPlaced(ctx, m.Slug, now); err != nil {
				return 0, err
			}
			return 0, nil
		}
		// ConfigurationError: excluded this cycle, retried when rescanned
		return 0, err
	}

	prices := map[domain.OrderRole]float64{
		domain.RoleEntry1: levels.Entry1,
		domain.RoleEntry2: levels.Entry2,
	}

	covered := 0
	for _, role := range domain.EntryRoles() {
		price := prices[role]

		existing, err := e.store.GetLiveOrderByRole(ctx, m.Slug, role)
		if err != nil {
			return placed, err
		}
		if existing != nil {
			covered++
			continue
		}

		size := e.cfg.EntryStake / price // shares
		req := domain.PlaceOrderRequest{
			TokenID:  m.WeakTokenID,
			MarketID: m.Slug,
			Side:     "BUY",
			Price:    price,
			Size:     size,
		}
		accepted, err := e.venue.PlaceLimitOrder(ctx, req)
		if err != nil {
			// no record on failure: safe to retry next cycle
			slog.Warn("engine: entry placement failed", "market", m.Slug,
				"role", role, "price", fmt.Sprintf("%.2f", price), "err", err)
			continue
		}

		rec := domain.OrderRecord{
			ID:            uuid.New().String(),
			MarketID:      m.Slug,
			Role:          role,
			VenueOrderID:  accepted.VenueOrderID,
			Side:          "BUY",
			TokenID:       m.WeakTokenID,
			LimitPrice:    price,
			Size:          size,
			Status:        domain.StatusActive,
			CreatedAt:     now,
			LastCheckedAt: now,
		}
		if err := e.store.CreateOrder(ctx, rec); err != nil {
			// venue accepted but the record write failed: startup
			// reconciliation adopts the orphan on restart
			slog.Error("engine: entry placed but not recorded", "market", m.Slug,
				"role", role, "venue_order_id", accepted.VenueOrderID, "err", err)
			return placed, err
		}

		placed++
		covered++
		slog.Info("engine: entry placed",
			"market", m.Slug,
			"role", role,
			"price", fmt.Sprintf("$%.2f", price),
			"size", fmt.Sprintf("%.2f", size),
		)
	}

	// only stop re-admitting once both roles are covered
	if covered == len(domain.EntryRoles()) {
		if err := e.sched.MarkEntriesPlaced(ctx, m.Slug, now); err != nil {
			return placed, err
		}
	}
	return placed, nil
}

// reconcileMarket runs the disappearance, fill and take-profit passes for
// one market, in that order. Disappearance consults the fill set too, so a
// fill that was delisted from the open book is never mistaken for a
// disappearance.
func (e *Engine) reconcileMarket(ctx context.Context, marketID string, report *domain.CycleReport, now time.Time) error {
	recs, err := e.store.GetOrdersByMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}

	needsVenue := false
	for _, r := range recs {
		if r.Status.Live() || r.Status == domain.StatusDisappeared {
			needsVenue = true
			break
		}
	}

	if needsVenue {
		openList, err := e.venue.GetOpenOrders(ctx, marketID)
		if err != nil {
			// transient: statuses stay unchanged, retried next cycle
			return fmt.Errorf("open orders: %w", err)
		}
		fillList, err := e.venue.GetFills(ctx, marketID)
		if err != nil {
			return fmt.Errorf("fills: %w", err)
		}

		open := make(map[string]domain.VenueOrder, len(openList))
		for _, vo := range openList {
			open[vo.VenueOrderID] = vo
		}
		fills := make(map[string]domain.VenueFill, len(fillList))
		for _, vf := range fillList {
			fills[vf.VenueOrderID] = vf
		}
		// book progress is fill evidence too: a resting order with
		// size_matched > 0 counts even when its trades haven't been
		// indexed yet
		for _, vo := range openList {
			if vo.SizeMatched <= 0 {
				continue
			}
			if _, ok := fills[vo.VenueOrderID]; ok {
				continue
			}
			fills[vo.VenueOrderID] = domain.VenueFill{
				VenueOrderID: vo.VenueOrderID,
				FilledSize:   vo.SizeMatched,
				AvgPrice:     vo.Price,
			}
		}

		recreated, err := e.disappearancePass(ctx, recs, open, fills, now)
		report.Recreated += recreated
		if err != nil {
			return err
		}

		filled, err := e.fillPass(ctx, recs, open, fills, now)
		report.Fills += filled
		if err != nil {
			return err
		}
	}

	tps, err := e.takeProfitPass(ctx, marketID, now)
	report.TakeProfits += tps
	return err
}

// disappearancePass recreates active orders that vanished from the venue
// without a fill. The old record becomes SUPERSEDED; the replacement carries
// identical economic terms and an incremented recreate count. Recreation is
// unbounded — the venue's disappearance bug is assumed transient — but a
// persistent lineage is warned about for the operator.
func (e *Engine) disappearancePass(
	ctx context.Context,
	recs []domain.OrderRecord,
	open map[string]domain.VenueOrder,
	fills map[string]domain.VenueFill,
	now time.Time,
) (recreated int, err error) {
	for _, rec := range recs {
		if rec.Status != domain.StatusActive && rec.Status != domain.StatusDisappeared {
			continue
		}
		if rec.VenueOrderID == "" {
			continue
		}

		if _, exists := open[rec.VenueOrderID]; exists {
			if err := e.store.Touch(ctx, rec.ID, now); err != nil {
				return recreated, fmt.Errorf("touch %s: %w", rec.ID, err)
			}
			continue
		}
		if _, filled := fills[rec.VenueOrderID]; filled {
			// delisted because it traded: the fill pass owns this one
			continue
		}

		if rec.Status != domain.StatusDisappeared {
			if err := e.store.UpdateStatus(ctx, rec.ID, domain.StatusDisappeared); err != nil {
				return recreated, fmt.Errorf("mark disappeared %s: %w", rec.ID, err)
			}
			slog.Info("engine: order disappeared from venue",
				"market", rec.MarketID, "role", rec.Role,
				"venue_order_id", rec.VenueOrderID,
				"lineage", rec.RecreateCount,
			)
		}

		// immediate recreation with identical economic terms
		req := domain.PlaceOrderRequest{
			TokenID:  rec.TokenID,
			MarketID: rec.MarketID,
			Side:     rec.Side,
			Price:    rec.LimitPrice,
			Size:     rec.Size,
		}
		accepted, err := e.venue.PlaceLimitOrder(ctx, req)
		if err != nil {
			// record stays DISAPPEARED, recreation retried next cycle
			slog.Warn("engine: recreate failed", "market", rec.MarketID,
				"role", rec.Role, "err", err)
			continue
		}

		newRec := domain.OrderRecord{
			ID:            uuid.New().String(),
			MarketID:      rec.MarketID,
			Role:          rec.Role,
			VenueOrderID:  accepted.VenueOrderID,
			Side:          rec.Side,
			TokenID:       rec.TokenID,
			LimitPrice:    rec.LimitPrice,
			Size:          rec.Size,
			Status:        domain.StatusActive,
			CreatedAt:     now,
			LastCheckedAt: now,
			RecreateCount: rec.RecreateCount + 1,
		}
		if err := e.store.CreateOrder(ctx, newRec); err != nil {
			return recreated, fmt.Errorf("record recreation %s/%s: %w", rec.MarketID, rec.Role, err)
		}
		if err := e.store.MarkSuperseded(ctx, rec.ID, newRec.ID); err != nil {
			return recreated, fmt.Errorf("supersede %s: %w", rec.ID, err)
		}

		recreated++
		slog.Info("engine: order recreated",
			"market", rec.MarketID, "role", rec.Role,
			"price", fmt.Sprintf("$%.2f", rec.LimitPrice),
			"lineage", newRec.RecreateCount,
		)
		if newRec.RecreateCount >= e.cfg.RecreateWarnThreshold {
			slog.Warn("engine: order keeps disappearing",
				"market", rec.MarketID, "role", rec.Role,
				"recreations", newRec.RecreateCount,
			)
		}
	}
	return recreated, nil
}

// fillPass transitions records to FILLED when the venue reports enough of
// the order traded. A partial fill below the threshold waits only while the
// order still rests on the book; once the order is gone, the fill can never
// grow, so whatever traded is final.
func (e *Engine) fillPass(
	ctx context.Context,
	recs []domain.OrderRecord,
	open map[string]domain.VenueOrder,
	fills map[string]domain.VenueFill,
	now time.Time,
) (filled int, err error) {
	for _, rec := range recs {
		if !rec.Status.Live() {
			continue
		}
		vf, ok := fills[rec.VenueOrderID]
		if !ok || rec.VenueOrderID == "" {
			continue
		}

		_, resting := open[rec.VenueOrderID]
		if resting && vf.FilledSize+fillEpsilon < rec.Size*e.cfg.PartialFillThreshold {
			slog.Debug("engine: partial fill below threshold",
				"market", rec.MarketID, "role", rec.Role,
				"filled", fmt.Sprintf("%.2f/%.2f", vf.FilledSize, rec.Size))
			if err := e.store.Touch(ctx, rec.ID, now); err != nil {
				return filled, fmt.Errorf("touch %s: %w", rec.ID, err)
			}
			continue
		}

		if err := e.store.MarkFilled(ctx, rec.ID, vf.FilledSize, vf.AvgPrice, now); err != nil {
			return filled, fmt.Errorf("mark filled %s: %w", rec.ID, err)
		}
		filled++
		slog.Info("engine: order filled",
			"market", rec.MarketID, "role", rec.Role,
			"size", fmt.Sprintf("%.2f", vf.FilledSize),
			"avg_price", fmt.Sprintf("$%.3f", vf.AvgPrice),
		)
	}
	return filled, nil
}

// takeProfitPass places the take-profit sells for a market with filled
// entries, exactly once per role: any non-superseded take-profit record for
// a role blocks re-placement forever. Markets under manual override are
// skipped entirely.
func (e *Engine) takeProfitPass(ctx context.Context, marketID string, now time.Time) (placed int, err error) {
	if e.cfg.ManualOverride[marketID] {
		slog.Debug("engine: manual override, skipping take-profit", "market", marketID)
		return 0, nil
	}

	recs, err := e.store.GetOrdersByMarket(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("load records: %w", err)
	}

	var entry1, entry2 *domain.OrderRecord
	for i := range recs {
		r := &recs[i]
		if r.Status != domain.StatusFilled {
			continue
		}
		switch r.Role {
		case domain.RoleEntry1:
			entry1 = r
		case domain.RoleEntry2:
			entry2 = r
		}
	}
	if entry1 == nil && entry2 == nil {
		return 0, nil
	}

	startPrice, ok, err := e.prices.GetStartPrice(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("start price: %w", err)
	}
	if !ok {
		// no locked pre-match price: leave the position to the operator
		slog.Warn("engine: no locked start price, skipping take-profit", "market", marketID)
		return 0, nil
	}

	bothFilled := entry1 != nil && entry2 != nil

	var entry1Price float64
	var tokenID string
	var totalSize float64
	if entry1 != nil {
		entry1Price = entry1.LimitPrice
		tokenID = entry1.TokenID
		totalSize += entry1.FilledSize
	}
	if entry2 != nil {
		tokenID = entry2.TokenID
		totalSize += entry2.FilledSize
	}

	levels := pricing.TakeProfitLevels(bothFilled, entry1Price, startPrice)

	var fracSum float64
	for _, lvl := range levels {
		fracSum += lvl.Fraction
	}
	if math.Abs(fracSum-1.0) > fillEpsilon {
		return 0, &domain.InvariantViolation{
			MarketID: marketID,
			Detail:   fmt.Sprintf("take-profit fractions sum to %.4f", fracSum),
		}
	}

	tpRoles := domain.TakeProfitRoles()
	for i, lvl := range levels {
		role := tpRoles[i]
		if hasTakeProfitRecord(recs, role) {
			continue
		}

		req := domain.PlaceOrderRequest{
			TokenID:  tokenID,
			MarketID: marketID,
			Side:     "SELL",
			Price:    lvl.Price,
			Size:     totalSize * lvl.Fraction,
		}
		accepted, err := e.venue.PlaceLimitOrder(ctx, req)
		if err != nil {
			slog.Warn("engine: take-profit placement failed", "market", marketID,
				"role", role, "price", fmt.Sprintf("%.2f", lvl.Price), "err", err)
			continue
		}

		rec := domain.OrderRecord{
			ID:            uuid.New().String(),
			MarketID:      marketID,
			Role:          role,
			VenueOrderID:  accepted.VenueOrderID,
			Side:          "SELL",
			TokenID:       tokenID,
			LimitPrice:    lvl.Price,
			Size:          req.Size,
			Status:        domain.StatusActive,
			CreatedAt:     now,
			LastCheckedAt: now,
		}
		if err := e.store.CreateOrder(ctx, rec); err != nil {
			return placed, fmt.Errorf("record take-profit %s/%s: %w", marketID, role, err)
		}

		placed++
		slog.Info("engine: take-profit placed",
			"market", marketID, "role", role,
			"price", fmt.Sprintf("$%.2f", lvl.Price),
			"size", fmt.Sprintf("%.2f", req.Size),
		)
	}
	return placed, nil
}

// hasTakeProfitRecord reports whether any non-superseded record exists for
// the take-profit role. A superseded record does not count: its replacement
// does.
func hasTakeProfitRecord(recs []domain.OrderRecord, role domain.OrderRole) bool {
	for _, r := range recs {
		if r.Role == role && r.Status != domain.StatusSuperseded {
			return true
		}
	}
	return false
}
