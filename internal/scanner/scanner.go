package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Demonss1309/Polysport/internal/domain"
	"github.com/Demonss1309/Polysport/internal/ports"
)

// Scanner descubre mercados elegibles: hace fetch del proveedor raw, aplica
// los filtros de elegibilidad y ordena por hora de inicio. Implementa
// ports.MarketProvider, así que el engine lo consume sin saber que filtra.
type Scanner struct {
	source ports.MarketProvider
	filter *Filter
	now    func() time.Time
}

// New crea un Scanner sobre el proveedor raw dado.
func New(source ports.MarketProvider, cfg FilterConfig) *Scanner {
	return &Scanner{
		source: source,
		filter: NewFilter(cfg),
		now:    time.Now,
	}
}

// SetClock fija el reloj del scanner. Solo para tests.
func (s *Scanner) SetClock(now func() time.Time) {
	s.now = now
}

// FetchMarkets devuelve los mercados elegibles, ordenados por inicio.
func (s *Scanner) FetchMarkets(ctx context.Context) ([]domain.MarketDescriptor, error) {
	raw, err := s.source.FetchMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanner.FetchMarkets: %w", err)
	}

	now := s.now()
	eligible := s.filter.Apply(raw, now)
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].MatchStart.Before(eligible[j].MatchStart)
	})

	slog.Debug("scanner: scan complete",
		"raw", len(raw),
		"eligible", len(eligible),
	)
	return eligible, nil
}
