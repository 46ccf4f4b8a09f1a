package ports

import (
	"context"

	"github.com/Demonss1309/Polysport/internal/domain"
)

// MarketProvider produce los mercados elegibles de cada ciclo.
type MarketProvider interface {
	FetchMarkets(ctx context.Context) ([]domain.MarketDescriptor, error)
}
