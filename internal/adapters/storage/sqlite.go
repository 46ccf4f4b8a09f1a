package storage

// sqlite.go — persistencia durable del estado del bot.
//
// Tablas:
//   order_records — cada orden que creemos haber colocado (la "cache de
//                   intención"; la verdad del venue se consulta cada ciclo)
//   market_queue  — mercados descubiertos esperando su ventana de entrada
//   start_prices  — precio pre-partido del lado fuerte, bloqueado al primer
//                   avistamiento (los TPs usan el precio de salida, no el vivo)
//
// Un índice único parcial sobre (market_id, role) con status vivo respalda el
// invariante de "a lo sumo un record vivo por rol" incluso ante bugs del
// engine. SQLite es single-writer: MaxOpenConns(1).

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Demonss1309/Polysport/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS order_records (
    id              TEXT PRIMARY KEY,
    market_id       TEXT NOT NULL,
    role            TEXT NOT NULL,
    venue_order_id  TEXT NOT NULL DEFAULT '',
    side            TEXT NOT NULL,
    token_id        TEXT NOT NULL,
    limit_price     REAL NOT NULL,
    size            REAL NOT NULL,
    filled_size     REAL NOT NULL DEFAULT 0,
    filled_price    REAL NOT NULL DEFAULT 0,
    status          TEXT NOT NULL DEFAULT 'PENDING',
    created_at      DATETIME NOT NULL,
    last_checked_at DATETIME NOT NULL,
    filled_at       DATETIME,
    recreate_count  INTEGER NOT NULL DEFAULT 0,
    superseded_by   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_orders_market ON order_records(market_id);
CREATE INDEX IF NOT EXISTS idx_orders_status ON order_records(status);

-- A lo sumo un record vivo por (market, role)
CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_live_role
    ON order_records(market_id, role)
    WHERE status IN ('PENDING','ACTIVE');

CREATE TABLE IF NOT EXISTS market_queue (
    market_id      TEXT PRIMARY KEY,
    discovered_at  DATETIME NOT NULL,
    match_start    DATETIME NOT NULL,
    entries_placed INTEGER NOT NULL DEFAULT 0,
    entered_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_queue_start ON market_queue(match_start ASC);

CREATE TABLE IF NOT EXISTS start_prices (
    market_id  TEXT PRIMARY KEY,
    price      REAL NOT NULL,
    locked_at  DATETIME NOT NULL
);
`

// SQLiteStore implementa ports.OrderStore, ports.QueueStore y
// ports.StartPriceCache sobre una sola base SQLite (pure Go, sin CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada y aplica el
// schema. Usar ":memory:" en tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ─── OrderStore ──────────────────────────────────────────────────────────────

// CreateOrder inserta un record nuevo. El índice único parcial convierte un
// duplicado vivo de (market, role) en InvariantViolation.
func (s *SQLiteStore) CreateOrder(ctx context.Context, r domain.OrderRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_records
		  (id, market_id, role, venue_order_id, side, token_id, limit_price, size,
		   filled_size, filled_price, status, created_at, last_checked_at,
		   filled_at, recreate_count, superseded_by)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.MarketID, string(r.Role), r.VenueOrderID, r.Side, r.TokenID,
		r.LimitPrice, r.Size, r.FilledSize, r.FilledPrice, string(r.Status),
		r.CreatedAt.UTC(), r.LastCheckedAt.UTC(), nullTime(r.FilledAt),
		r.RecreateCount, r.SupersededBy,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return &domain.InvariantViolation{
				MarketID: r.MarketID,
				Detail:   fmt.Sprintf("live record already exists for role %s", r.Role),
			}
		}
		return fmt.Errorf("storage.CreateOrder: %w", err)
	}
	return nil
}

// GetOrder devuelve un record por su ID local.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (domain.OrderRecord, error) {
	recs, err := s.queryOrders(ctx, `WHERE id=?`, id)
	if err != nil {
		return domain.OrderRecord{}, err
	}
	if len(recs) == 0 {
		return domain.OrderRecord{}, fmt.Errorf("storage.GetOrder: %s: %w", id, sql.ErrNoRows)
	}
	return recs[0], nil
}

// GetLiveOrders devuelve todos los records PENDING/ACTIVE.
func (s *SQLiteStore) GetLiveOrders(ctx context.Context) ([]domain.OrderRecord, error) {
	return s.queryOrders(ctx, `WHERE status IN ('PENDING','ACTIVE')`)
}

// GetOrdersByMarket devuelve todos los records de un mercado.
func (s *SQLiteStore) GetOrdersByMarket(ctx context.Context, marketID string) ([]domain.OrderRecord, error) {
	return s.queryOrders(ctx, `WHERE market_id=?`, marketID)
}

// GetLiveOrderByRole devuelve el record vivo para (market, role), o nil.
func (s *SQLiteStore) GetLiveOrderByRole(ctx context.Context, marketID string, role domain.OrderRole) (*domain.OrderRecord, error) {
	recs, err := s.queryOrders(ctx,
		`WHERE market_id=? AND role=? AND status IN ('PENDING','ACTIVE')`,
		marketID, string(role))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	if len(recs) > 1 {
		// el índice único debería impedir esto
		return nil, &domain.InvariantViolation{
			MarketID: marketID,
			Detail:   fmt.Sprintf("%d live records for role %s", len(recs), role),
		}
	}
	rec := recs[0]
	return &rec, nil
}

// UpdateStatus actualiza solo el campo status.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE order_records SET status=? WHERE id=?`, string(status), id)
	return err
}

// MarkFilled registra el fill real obtenido.
func (s *SQLiteStore) MarkFilled(ctx context.Context, id string, filledSize, filledPrice float64, filledAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE order_records SET status='FILLED', filled_size=?, filled_price=?, filled_at=? WHERE id=?`,
		filledSize, filledPrice, filledAt.UTC(), id)
	return err
}

// MarkSuperseded cierra el record viejo apuntando a su sucesor.
func (s *SQLiteStore) MarkSuperseded(ctx context.Context, oldID, newID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE order_records SET status='SUPERSEDED', superseded_by=? WHERE id=?`,
		newID, oldID)
	return err
}

// Touch actualiza last_checked_at.
func (s *SQLiteStore) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE order_records SET last_checked_at=? WHERE id=?`, at.UTC(), id)
	return err
}

// PruneTerminal borra records terminales creados antes del cutoff.
func (s *SQLiteStore) PruneTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM order_records
		 WHERE status IN ('FILLED','CANCELLED','SUPERSEDED') AND created_at < ?`,
		cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("storage.PruneTerminal: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) queryOrders(ctx context.Context, where string, args ...any) ([]domain.OrderRecord, error) {
	q := `SELECT id, market_id, role, venue_order_id, side, token_id, limit_price, size,
	             filled_size, filled_price, status, created_at, last_checked_at,
	             filled_at, recreate_count, superseded_by
	      FROM order_records ` + where + ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.OrderRecord
	for rows.Next() {
		r, err := scanOrderRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func scanOrderRecord(rows *sql.Rows) (domain.OrderRecord, error) {
	var r domain.OrderRecord
	var roleStr, statusStr string
	var filledAt sql.NullString

	err := rows.Scan(
		&r.ID, &r.MarketID, &roleStr, &r.VenueOrderID, &r.Side, &r.TokenID,
		&r.LimitPrice, &r.Size, &r.FilledSize, &r.FilledPrice, &statusStr,
		&r.CreatedAt, &r.LastCheckedAt, &filledAt, &r.RecreateCount, &r.SupersededBy,
	)
	if err != nil {
		return r, err
	}

	r.Role = domain.OrderRole(roleStr)
	r.Status = domain.OrderStatus(statusStr)

	if t, ok := parseNullTime(filledAt); ok {
		r.FilledAt = &t
	}
	return r, nil
}

// ─── QueueStore ──────────────────────────────────────────────────────────────

// InsertQueueEntry inserta si no existe; una entrada existente no se toca.
func (s *SQLiteStore) InsertQueueEntry(ctx context.Context, e domain.MarketQueueEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_queue (market_id, discovered_at, match_start, entries_placed, entered_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(market_id) DO NOTHING`,
		e.MarketID, e.DiscoveredAt.UTC(), e.MatchStart.UTC(),
		boolToInt(e.EntriesPlaced), nullTime(e.EnteredAt),
	)
	if err != nil {
		return fmt.Errorf("storage.InsertQueueEntry: %w", err)
	}
	return nil
}

// GetQueueEntry devuelve la entrada de un mercado, o nil.
func (s *SQLiteStore) GetQueueEntry(ctx context.Context, marketID string) (*domain.MarketQueueEntry, error) {
	entries, err := s.queryQueue(ctx, `WHERE market_id=?`, marketID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	e := entries[0]
	return &e, nil
}

// ListQueueEntries devuelve todas las entradas.
func (s *SQLiteStore) ListQueueEntries(ctx context.Context) ([]domain.MarketQueueEntry, error) {
	return s.queryQueue(ctx, ``)
}

// ListPendingQueueEntries devuelve las entradas sin órdenes colocadas,
// ordenadas por match_start ascendente (las urgentes primero).
func (s *SQLiteStore) ListPendingQueueEntries(ctx context.Context) ([]domain.MarketQueueEntry, error) {
	return s.queryQueue(ctx, `WHERE entries_placed=0`)
}

// MarkEntered marca entries_placed; idempotente.
func (s *SQLiteStore) MarkEntered(ctx context.Context, marketID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE market_queue SET entries_placed=1, entered_at=? WHERE market_id=? AND entries_placed=0`,
		at.UTC(), marketID)
	return err
}

// DeleteQueueEntry elimina la entrada de un mercado.
func (s *SQLiteStore) DeleteQueueEntry(ctx context.Context, marketID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM market_queue WHERE market_id=?`, marketID)
	return err
}

func (s *SQLiteStore) queryQueue(ctx context.Context, where string, args ...any) ([]domain.MarketQueueEntry, error) {
	q := `SELECT market_id, discovered_at, match_start, entries_placed, entered_at
	      FROM market_queue ` + where + ` ORDER BY match_start ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.MarketQueueEntry
	for rows.Next() {
		var e domain.MarketQueueEntry
		var placedInt int
		var enteredAt sql.NullString
		if err := rows.Scan(&e.MarketID, &e.DiscoveredAt, &e.MatchStart, &placedInt, &enteredAt); err != nil {
			return nil, err
		}
		e.EntriesPlaced = placedInt != 0
		if t, ok := parseNullTime(enteredAt); ok {
			e.EnteredAt = &t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ─── StartPriceCache ─────────────────────────────────────────────────────────

// LockStartPrice guarda el precio solo si no hay uno ya bloqueado: se
// conserva el primer precio pre-partido visto.
func (s *SQLiteStore) LockStartPrice(ctx context.Context, marketID string, price float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO start_prices (market_id, price, locked_at) VALUES (?,?,?)
		ON CONFLICT(market_id) DO NOTHING`,
		marketID, price, at.UTC())
	if err != nil {
		return fmt.Errorf("storage.LockStartPrice: %w", err)
	}
	return nil
}

// GetStartPrice devuelve el precio bloqueado, con ok=false si no existe.
func (s *SQLiteStore) GetStartPrice(ctx context.Context, marketID string) (float64, bool, error) {
	var price float64
	err := s.db.QueryRowContext(ctx,
		`SELECT price FROM start_prices WHERE market_id=?`, marketID).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("storage.GetStartPrice: %w", err)
	}
	return price, true, nil
}

// ─── helpers internos ────────────────────────────────────────────────────────

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseNullTime(ns sql.NullString) (time.Time, bool) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, ns.String); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
