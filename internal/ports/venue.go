package ports

import (
	"context"

	"github.com/Demonss1309/Polysport/internal/domain"
)

// VenueGateway places orders and reads venue-side truth. The venue is
// eventually consistent and buggy (orders vanish without cancellation
// events), so every snapshot is best-effort.
type VenueGateway interface {
	// PlaceLimitOrder submits a limit order. Fails with
	// domain.RejectionError (economic, non-retriable this cycle) or
	// domain.TransientError (network/timeout, retry next cycle).
	PlaceLimitOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error)

	// GetOpenOrders returns the venue's current open orders for a market.
	// May lag venue-side cancellations.
	GetOpenOrders(ctx context.Context, marketID string) ([]domain.VenueOrder, error)

	// GetFills returns trades the venue reports for a market.
	GetFills(ctx context.Context, marketID string) ([]domain.VenueFill, error)

	// GetBalance returns the available USDC balance. Observability only —
	// placement relies on the venue rejecting under-funded orders.
	GetBalance(ctx context.Context) (float64, error)
}
