package pricing

// table.go — tabla de precios de entrada y take-profit.
//
// Función pura: bucket del precio del lado fuerte → dos precios de entrada
// límite sobre el lado débil, y configuración de fills → niveles de
// take-profit. Sin estado, sin side effects.

import (
	"errors"
	"fmt"

	"github.com/Demonss1309/Polysport/internal/domain"
)

// ErrIneligible indica que el lado fuerte está por debajo del bucket mínimo:
// el mercado no recibe entradas.
var ErrIneligible = errors.New("pricing: strong side below minimum bucket")

// NearFullValue es el nivel alto de take-profit cuando solo la primera
// entrada se llenó: casi el valor de resolución.
const NearFullValue = 0.96

// EntryLevels son los dos precios de entrada límite, en [0,1].
type EntryLevels struct {
	Entry1 float64
	Entry2 float64
}

// Level es un nivel de take-profit: fracción del tamaño total y precio.
type Level struct {
	Fraction float64
	Price    float64
}

// bucket cubre [lo, hi) en céntimos; el último bucket cierra en 100 inclusive.
type bucket struct {
	lo, hi         float64 // céntimos del lado fuerte
	entry1, entry2 float64 // precios de entrada en [0,1]
}

var buckets = []bucket{
	{61, 64, 0.42, 0.27},
	{64, 67, 0.44, 0.31},
	{67, 70, 0.45, 0.33},
	{70, 75, 0.52, 0.38},
	{75, 80, 0.58, 0.42},
	{80, 101, 0.68, 0.55},
}

// EntryPrices devuelve los dos precios de entrada para el precio del lado
// fuerte dado (fracción en [0,1]). Devuelve ErrIneligible por debajo de 61¢
// y ConfigurationError fuera del dominio [0,1].
func EntryPrices(strongPrice float64) (EntryLevels, error) {
	if strongPrice < 0 || strongPrice > 1 {
		return EntryLevels{}, &domain.ConfigurationError{
			Field:  "strong_side_price",
			Detail: fmt.Sprintf("%.4f outside [0,1]", strongPrice),
		}
	}

	cents := strongPrice * 100
	if cents < buckets[0].lo {
		return EntryLevels{}, ErrIneligible
	}

	for _, b := range buckets {
		if cents >= b.lo && cents < b.hi {
			return EntryLevels{Entry1: b.entry1, Entry2: b.entry2}, nil
		}
	}
	// cents == 100 exacto cae en el último bucket
	last := buckets[len(buckets)-1]
	return EntryLevels{Entry1: last.entry1, Entry2: last.entry2}, nil
}

// TakeProfitLevels devuelve los niveles de take-profit según qué entradas se
// llenaron:
//   - solo entrada 1: 50% al precio de salida del lado fuerte, 50% cerca del
//     valor de resolución.
//   - ambas: 50% al precio de la entrada 1, 50% al precio de salida del lado
//     fuerte.
//
// Las fracciones siempre suman 1.0.
func TakeProfitLevels(bothFilled bool, entry1Price, strongStartPrice float64) []Level {
	if bothFilled {
		return []Level{
			{Fraction: 0.5, Price: entry1Price},
			{Fraction: 0.5, Price: strongStartPrice},
		}
	}
	return []Level{
		{Fraction: 0.5, Price: strongStartPrice},
		{Fraction: 0.5, Price: NearFullValue},
	}
}
