package scanner

import (
	"time"

	"github.com/Demonss1309/Polysport/internal/domain"
)

// FilterConfig contiene los parámetros configurables de elegibilidad.
type FilterConfig struct {
	// MinVolume descarta mercados con menos volumen que esto (USDC).
	MinVolume float64
	// MaxTotalPrice descarta mercados cuya suma de ambos lados supera esto.
	MaxTotalPrice float64
	// MinStrongPrice descarta mercados sin un favorito claro.
	MinStrongPrice float64
	// StartHorizon descarta mercados que empiezan más allá de este horizonte.
	StartHorizon time.Duration
	// StartGrace descarta mercados que empezaron hace más de esto.
	StartGrace time.Duration
}

// DefaultFilterConfig devuelve la configuración de producción.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinVolume:      1000,
		MaxTotalPrice:  1.05,
		MinStrongPrice: 0.50,
		StartHorizon:   24 * time.Hour,
		StartGrace:     60 * time.Minute,
	}
}

// Filter aplica los criterios de elegibilidad sobre mercados descubiertos.
type Filter struct {
	cfg FilterConfig
}

// NewFilter crea un Filter con la configuración dada.
func NewFilter(cfg FilterConfig) *Filter {
	return &Filter{cfg: cfg}
}

// Apply devuelve los mercados que pasan todos los filtros.
func (f *Filter) Apply(markets []domain.MarketDescriptor, now time.Time) []domain.MarketDescriptor {
	result := make([]domain.MarketDescriptor, 0, len(markets))
	for _, m := range markets {
		if f.passes(m, now) {
			result = append(result, m)
		}
	}
	return result
}

// passes devuelve true si el mercado supera todos los criterios.
func (f *Filter) passes(m domain.MarketDescriptor, now time.Time) bool {
	// Ventana temporal: [inicio - horizonte, inicio + gracia]
	if m.TimeToStart(now) > f.cfg.StartHorizon {
		return false
	}
	if now.Sub(m.MatchStart) > f.cfg.StartGrace {
		return false
	}
	if f.cfg.MinVolume > 0 && m.Volume < f.cfg.MinVolume {
		return false
	}
	if f.cfg.MaxTotalPrice > 0 && m.TotalPrice() > f.cfg.MaxTotalPrice {
		return false
	}
	if f.cfg.MinStrongPrice > 0 && m.StrongPrice < f.cfg.MinStrongPrice {
		return false
	}
	// Mercado ya decidido: un lado a 99¢+ y el otro a 1¢-
	if m.StrongPrice >= 0.99 && m.WeakPrice <= 0.01 {
		return false
	}
	// Ambos lados en precios extremos (práctica o literalmente resuelto)
	if isExtreme(m.StrongPrice) && isExtreme(m.WeakPrice) {
		return false
	}
	return true
}

func isExtreme(p float64) bool {
	return p <= 0 || p >= 1
}
