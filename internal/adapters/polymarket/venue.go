package polymarket

// venue.go — Order execution and venue-state reads via the Polymarket CLOB.
//
// Implements ports.VenueGateway. Every order is EIP-712 signed and placed as
// GTC (good-till-cancelled). Venue errors are classified into the domain
// taxonomy: 4xx responses on placement are rejections (retrying the same
// request cannot help), everything else is transient.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/Demonss1309/Polysport/internal/domain"
)

const ordersMaxPages = 10

// Gateway implements ports.VenueGateway on top of an AuthClient.
type Gateway struct {
	auth *AuthClient

	mu      sync.Mutex
	negRisk map[string]bool // per-token neg-risk flag, immutable venue-side
}

// NewGateway creates the venue gateway.
func NewGateway(auth *AuthClient) *Gateway {
	return &Gateway{auth: auth, negRisk: make(map[string]bool)}
}

// PlaceLimitOrder signs and submits a GTC limit order to the CLOB.
func (g *Gateway) PlaceLimitOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	if err := g.auth.EnsureCreds(ctx); err != nil {
		return domain.PlacedOrder{}, &domain.TransientError{Op: "polymarket.PlaceLimitOrder", Err: err}
	}

	negRisk, err := g.isNegRisk(ctx, req.TokenID)
	if err != nil {
		return domain.PlacedOrder{}, &domain.TransientError{Op: "polymarket.PlaceLimitOrder", Err: err}
	}

	signed, err := g.auth.buildSignedOrder(req.TokenID, req.Side, req.Price, req.Size, negRisk)
	if err != nil {
		// signing only fails on bad order parameters, never transiently
		return domain.PlacedOrder{}, &domain.RejectionError{
			Op:     "polymarket.PlaceLimitOrder",
			Reason: err.Error(),
		}
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          req.Side,
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     g.auth.creds.APIKey,
		OrderType: "GTC",
	}

	var resp clobOrderResponse
	if err := g.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.PlacedOrder{}, classifyPlacement("polymarket.PlaceLimitOrder", err)
	}

	if !resp.Success || resp.ErrorMsg != "" {
		return domain.PlacedOrder{}, &domain.RejectionError{
			Op:     "polymarket.PlaceLimitOrder",
			Reason: resp.ErrorMsg,
		}
	}

	return domain.PlacedOrder{
		VenueOrderID: resp.OrderID,
		Status:       resp.Status,
	}, nil
}

// isNegRisk consulta (y cachea) si el token usa el adapter NegRisk; decide
// contra qué contrato se firma la orden.
func (g *Gateway) isNegRisk(ctx context.Context, tokenID string) (bool, error) {
	g.mu.Lock()
	if v, ok := g.negRisk[tokenID]; ok {
		g.mu.Unlock()
		return v, nil
	}
	g.mu.Unlock()

	u := fmt.Sprintf("%s/neg-risk?token_id=%s", g.auth.clobBase, url.QueryEscape(tokenID))
	var resp clobNegRiskResponse
	if err := g.auth.get(ctx, g.auth.clobLimiter, u, &resp); err != nil {
		return false, fmt.Errorf("neg-risk check: %w", err)
	}

	g.mu.Lock()
	g.negRisk[tokenID] = resp.NegRisk
	g.mu.Unlock()
	return resp.NegRisk, nil
}

// GetOpenOrders returns our resting orders for one market, following the
// pagination cursor until the venue reports no more pages.
func (g *Gateway) GetOpenOrders(ctx context.Context, marketID string) ([]domain.VenueOrder, error) {
	var orders []domain.VenueOrder

	cursor := ""
	for page := 0; page < ordersMaxPages; page++ {
		path := "/orders?market=" + url.QueryEscape(marketID)
		if cursor != "" {
			path += "&next_cursor=" + url.QueryEscape(cursor)
		}

		var resp clobOrdersResponse
		if err := g.auth.doL2(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, &domain.TransientError{Op: "polymarket.GetOpenOrders", Err: err}
		}

		for _, o := range resp.Data {
			orders = append(orders, domain.VenueOrder{
				VenueOrderID: o.ID,
				TokenID:      o.AssetID,
				Side:         o.Side,
				Price:        parseFloat(o.Price),
				Size:         parseFloat(o.OriginalSize),
				SizeMatched:  parseFloat(o.SizeMatched),
			})
		}

		cursor = resp.NextCursor
		if cursor == "" || cursor == "LTE=" || len(resp.Data) == 0 {
			break
		}
	}
	return orders, nil
}

// GetFills returns the per-order fill totals for one market. A trade names
// our order either as the taker or inside maker_orders — resting GTC limit
// orders always fill as makers, so both sides feed the same aggregation.
// Multiple trades against one order collapse into a single VenueFill with a
// size-weighted average price.
func (g *Gateway) GetFills(ctx context.Context, marketID string) ([]domain.VenueFill, error) {
	type agg struct {
		size     float64
		notional float64
	}
	totals := make(map[string]*agg)
	add := func(orderID string, size, price float64) {
		if orderID == "" || size <= 0 {
			return
		}
		a, ok := totals[orderID]
		if !ok {
			a = &agg{}
			totals[orderID] = a
		}
		a.size += size
		a.notional += size * price
	}

	cursor := ""
	for page := 0; page < ordersMaxPages; page++ {
		path := "/trades?market=" + url.QueryEscape(marketID)
		if cursor != "" {
			path += "&next_cursor=" + url.QueryEscape(cursor)
		}

		var resp clobTradesResponse
		if err := g.auth.doL2(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, &domain.TransientError{Op: "polymarket.GetFills", Err: err}
		}

		for _, t := range resp.Data {
			price, _ := t.Price.Float64()
			size, _ := t.Size.Float64()
			add(t.TakerOrderID, size, price)

			for _, mo := range t.MakerOrders {
				moPrice, _ := mo.Price.Float64()
				moSize, _ := mo.MatchedAmount.Float64()
				add(mo.OrderID, moSize, moPrice)
			}
		}

		cursor = resp.NextCursor
		if cursor == "" || cursor == "LTE=" || len(resp.Data) == 0 {
			break
		}
	}

	fills := make([]domain.VenueFill, 0, len(totals))
	for orderID, a := range totals {
		avg := 0.0
		if a.size > 0 {
			avg = a.notional / a.size
		}
		fills = append(fills, domain.VenueFill{
			VenueOrderID: orderID,
			FilledSize:   a.size,
			AvgPrice:     avg,
		})
	}
	return fills, nil
}

// GetBalance returns the available USDC collateral in the CLOB.
func (g *Gateway) GetBalance(ctx context.Context) (float64, error) {
	var resp clobBalanceResponse
	if err := g.auth.doL2(ctx, http.MethodGet, "/balance-allowance?asset_type=COLLATERAL", nil, &resp); err != nil {
		return 0, &domain.TransientError{Op: "polymarket.GetBalance", Err: err}
	}
	return parseMicroUSDC(resp.Balance), nil
}

// classifyPlacement maps a transport error into the domain taxonomy. A 4xx
// from the venue means the order itself was refused; anything else might
// succeed on retry.
func classifyPlacement(op string, err error) error {
	var ae *apiError
	if errors.As(err, &ae) && ae.Status >= 400 && ae.Status < 500 {
		return &domain.RejectionError{
			Op:     op,
			Reason: fmt.Sprintf("status %d: %s", ae.Status, ae.Body),
		}
	}
	return &domain.TransientError{Op: op, Err: err}
}

// parseMicroUSDC converts a micro-USDC string (e.g., "1000000") to USDC.
func parseMicroUSDC(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f / 1_000_000
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
