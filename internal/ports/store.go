package ports

import (
	"context"
	"time"

	"github.com/Demonss1309/Polysport/internal/domain"
)

// OrderStore persiste los OrderRecord: la fuente de verdad de "lo que creemos
// que existe". Los writes de estado pertenecen en exclusiva al engine.
type OrderStore interface {
	// CreateOrder inserta un record nuevo. Falla con InvariantViolation si ya
	// existe un record vivo (PENDING/ACTIVE) para el mismo (market, role).
	CreateOrder(ctx context.Context, rec domain.OrderRecord) error

	GetOrder(ctx context.Context, id string) (domain.OrderRecord, error)

	// GetLiveOrders devuelve todos los records PENDING/ACTIVE.
	GetLiveOrders(ctx context.Context) ([]domain.OrderRecord, error)

	// GetOrdersByMarket devuelve todos los records de un mercado, vivos o no.
	GetOrdersByMarket(ctx context.Context, marketID string) ([]domain.OrderRecord, error)

	// GetLiveOrderByRole devuelve el record vivo para (market, role), o nil.
	GetLiveOrderByRole(ctx context.Context, marketID string, role domain.OrderRole) (*domain.OrderRecord, error)

	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error
	MarkFilled(ctx context.Context, id string, filledSize, filledPrice float64, filledAt time.Time) error

	// MarkSuperseded cierra el record viejo apuntando a su sucesor.
	MarkSuperseded(ctx context.Context, oldID, newID string) error

	// Touch actualiza last_checked_at.
	Touch(ctx context.Context, id string, at time.Time) error

	// PruneTerminal borra records terminales más viejos que el cutoff.
	PruneTerminal(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

// QueueStore persiste las MarketQueueEntry. El scheduler es el único dueño
// de su ciclo de vida.
type QueueStore interface {
	// InsertQueueEntry inserta si no existe; si existe, no toca nada.
	InsertQueueEntry(ctx context.Context, e domain.MarketQueueEntry) error

	GetQueueEntry(ctx context.Context, marketID string) (*domain.MarketQueueEntry, error)
	ListQueueEntries(ctx context.Context) ([]domain.MarketQueueEntry, error)

	// ListPendingQueueEntries devuelve las entradas sin entries_placed,
	// ordenadas por match_start ascendente.
	ListPendingQueueEntries(ctx context.Context) ([]domain.MarketQueueEntry, error)

	// MarkEntered marca entries_placed; idempotente.
	MarkEntered(ctx context.Context, marketID string, at time.Time) error

	DeleteQueueEntry(ctx context.Context, marketID string) error
}

// StartPriceCache conserva el primer precio pre-partido observado del lado
// fuerte, para que los take-profits usen el precio de salida y no el precio
// en vivo durante el partido.
type StartPriceCache interface {
	// LockStartPrice guarda el precio solo si no hay uno ya guardado.
	LockStartPrice(ctx context.Context, marketID string, price float64, at time.Time) error

	// GetStartPrice devuelve el precio bloqueado, con ok=false si no existe.
	GetStartPrice(ctx context.Context, marketID string) (price float64, ok bool, err error)
}
