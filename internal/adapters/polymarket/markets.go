package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Demonss1309/Polysport/internal/domain"
)

const (
	gammaMarketsPath = "/markets"
	gammaPageSize    = 100
	gammaMaxPages    = 10
)

// FetchMarkets obtiene de Gamma los mercados binarios activos y los convierte
// a domain.MarketDescriptor. Los mercados malformados (no binarios, sin
// tokens, sin hora de inicio) se descartan con un log, nunca rompen el scan.
func (c *Client) FetchMarkets(ctx context.Context) ([]domain.MarketDescriptor, error) {
	var out []domain.MarketDescriptor

	for page := 0; page < gammaMaxPages; page++ {
		url := fmt.Sprintf("%s%s?active=true&closed=false&limit=%d&offset=%d",
			c.gammaBase, gammaMarketsPath, gammaPageSize, page*gammaPageSize)

		var resp gammaMarketsResponse
		if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
			return nil, &domain.TransientError{Op: "polymarket.FetchMarkets", Err: err}
		}
		if len(resp) == 0 {
			break
		}

		for _, gm := range resp {
			m, err := gammaToDescriptor(gm)
			if err != nil {
				slog.Debug("skipping malformed gamma market", "slug", gm.Slug, "err", err)
				continue
			}
			out = append(out, m)
		}

		if len(resp) < gammaPageSize {
			break
		}
	}

	slog.Debug("gamma scan complete", "markets", len(out))
	return out, nil
}

// gammaToDescriptor convierte un mercado raw de Gamma a domain entity.
// El lado fuerte es el outcome con el precio más alto.
func gammaToDescriptor(gm gammaMarket) (domain.MarketDescriptor, error) {
	var tokenIDs []string
	if err := json.Unmarshal([]byte(gm.ClobTokenIDs), &tokenIDs); err != nil {
		return domain.MarketDescriptor{}, fmt.Errorf("parse clobTokenIds: %w", err)
	}
	var priceStrs []string
	if err := json.Unmarshal([]byte(gm.OutcomePrices), &priceStrs); err != nil {
		return domain.MarketDescriptor{}, fmt.Errorf("parse outcomePrices: %w", err)
	}
	if len(tokenIDs) != 2 || len(priceStrs) != 2 {
		return domain.MarketDescriptor{}, fmt.Errorf("not binary: %d tokens, %d prices", len(tokenIDs), len(priceStrs))
	}

	prices := make([]float64, 2)
	for i, s := range priceStrs {
		if _, err := fmt.Sscanf(s, "%f", &prices[i]); err != nil {
			return domain.MarketDescriptor{}, fmt.Errorf("parse price %q: %w", s, err)
		}
	}

	strong, weak := 0, 1
	if prices[1] > prices[0] {
		strong, weak = 1, 0
	}

	start, err := parseGammaTime(gm.GameStartTime)
	if err != nil {
		// sin hora de partido, el endDate es la mejor aproximación
		start, err = parseGammaTime(gm.EndDateISO)
		if err != nil {
			return domain.MarketDescriptor{}, fmt.Errorf("no usable start time")
		}
	}

	volume, _ := gm.Volume.Float64()

	return domain.MarketDescriptor{
		Slug:          gm.Slug,
		Question:      gm.Question,
		StrongTokenID: tokenIDs[strong],
		WeakTokenID:   tokenIDs[weak],
		StrongPrice:   prices[strong],
		WeakPrice:     prices[weak],
		Volume:        volume,
		MatchStart:    start,
	}, nil
}

// parseGammaTime tolera los distintos formatos de fecha que devuelve Gamma.
func parseGammaTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05-07",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}
