package domain

import "time"

// MarketQueueEntry rastrea el estado de scheduling de un mercado descubierto:
// cuándo se descubrió, cuándo empieza el partido y si ya se colocaron entradas.
type MarketQueueEntry struct {
	MarketID      string
	DiscoveredAt  time.Time
	MatchStart    time.Time
	EntriesPlaced bool
	EnteredAt     *time.Time
}

// ReadyForEntry devuelve true si el mercado está dentro de la ventana de
// admisión. Con window == 0 el mercado es elegible inmediatamente. Un partido
// ya empezado al descubrirse también es elegible — un descubrimiento tardío
// no debe perder la oportunidad.
func (e MarketQueueEntry) ReadyForEntry(now time.Time, window time.Duration) bool {
	if e.EntriesPlaced {
		return false
	}
	if window <= 0 {
		return true
	}
	return e.MatchStart.Sub(now) <= window
}
