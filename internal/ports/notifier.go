package ports

import (
	"context"

	"github.com/Demonss1309/Polysport/internal/domain"
)

// Notifier informa el resultado de cada ciclo de reconciliación.
type Notifier interface {
	Notify(ctx context.Context, report domain.CycleReport) error
}
