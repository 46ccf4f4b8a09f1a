package polymarket

import "encoding/json"

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities vive en venue.go y markets.go.

// --- CLOB API ---

// clobOrderRequest es el body del POST /order: la orden firmada EIP-712 más
// el owner (API key) y el tipo de orden.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

// clobOrderBody es la orden firmada tal como la espera el exchange.
type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

// clobOrderResponse es la respuesta del POST /order.
type clobOrderResponse struct {
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
	Success  bool   `json:"success"`
}

// clobOpenOrder es una orden abierta tal como la devuelve GET /orders.
type clobOpenOrder struct {
	ID           string `json:"id"`
	AssetID      string `json:"asset_id"`
	Market       string `json:"market"`
	Side         string `json:"side"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

// clobOrdersResponse es la respuesta paginada de GET /orders.
type clobOrdersResponse struct {
	Data       []clobOpenOrder `json:"data"`
	NextCursor string          `json:"next_cursor"`
}

// clobTrade es un trade de GET /trades. Cuando nuestra orden fue la taker su
// ID viene en taker_order_id; cuando una orden nuestra descansaba en el book
// y alguien cruzó contra ella, aparece dentro de maker_orders.
type clobTrade struct {
	ID           string           `json:"id"`
	TakerOrderID string           `json:"taker_order_id"`
	Market       string           `json:"market"`
	AssetID      string           `json:"asset_id"`
	Side         string           `json:"side"`
	Price        json.Number      `json:"price"`
	Size         json.Number      `json:"size"`
	Status       string           `json:"status"`
	MakerOrders  []clobMakerOrder `json:"maker_orders"`
}

// clobMakerOrder es la parte maker de un trade: qué orden descansando se
// llenó, cuánto y a qué precio.
type clobMakerOrder struct {
	OrderID       string      `json:"order_id"`
	MatchedAmount json.Number `json:"matched_amount"`
	Price         json.Number `json:"price"`
}

// clobTradesResponse es la respuesta paginada de GET /trades.
type clobTradesResponse struct {
	Data       []clobTrade `json:"data"`
	NextCursor string      `json:"next_cursor"`
}

// clobBalanceResponse es la respuesta de GET /balance-allowance.
// Balance viene en micro-USDC como string.
type clobBalanceResponse struct {
	Balance string `json:"balance"`
}

// clobNegRiskResponse es la respuesta de GET /neg-risk.
type clobNegRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

// --- Gamma API ---

// gammaMarketsResponse es la respuesta de GET /markets de Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket contiene la metadata de un mercado.
// Gamma devuelve varios campos como strings JSON anidados (clobTokenIds,
// outcomePrices) y los numéricos como json.Number.
type gammaMarket struct {
	ConditionID   string      `json:"conditionId"`
	Question      string      `json:"question"`
	Slug          string      `json:"slug"`
	ClobTokenIDs  string      `json:"clobTokenIds"`
	Outcomes      string      `json:"outcomes"`
	OutcomePrices string      `json:"outcomePrices"`
	GameStartTime string      `json:"gameStartTime"`
	EndDateISO    string      `json:"endDateIso"`
	Volume        json.Number `json:"volume"`
	Active        bool        `json:"active"`
	Closed        bool        `json:"closed"`
}
