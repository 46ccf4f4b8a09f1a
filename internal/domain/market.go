package domain

import "time"

// MarketDescriptor describe un mercado binario de deportes en Polymarket,
// tal como lo produce el scanner. Inmutable una vez descubierto.
type MarketDescriptor struct {
	Slug          string    // identificador único del mercado
	Question      string    // enriquecido desde Gamma
	StrongTokenID string    // token del lado favorito
	WeakTokenID   string    // token del lado no favorito
	StrongPrice   float64   // precio del lado fuerte en [0,1] al descubrir
	WeakPrice     float64   // precio del lado débil en [0,1]
	Volume        float64   // volumen del mercado en USDC
	MatchStart    time.Time // hora programada de inicio del partido
}

// TotalPrice devuelve la suma de ambos lados (>1 implica sobreprecio).
func (m MarketDescriptor) TotalPrice() float64 {
	return m.StrongPrice + m.WeakPrice
}

// TimeToStart devuelve cuánto falta para el inicio del partido.
// Negativo si el partido ya empezó.
func (m MarketDescriptor) TimeToStart(now time.Time) time.Duration {
	return m.MatchStart.Sub(now)
}

// Started devuelve true si el partido ya empezó en el instante dado.
func (m MarketDescriptor) Started(now time.Time) bool {
	return !now.Before(m.MatchStart)
}
