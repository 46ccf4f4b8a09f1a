package domain

import "time"

// OrderRole identifies which slot of the per-market strategy an order fills.
type OrderRole string

const (
	RoleEntry1      OrderRole = "ENTRY_1"
	RoleEntry2      OrderRole = "ENTRY_2"
	RoleTakeProfit1 OrderRole = "TAKE_PROFIT_1"
	RoleTakeProfit2 OrderRole = "TAKE_PROFIT_2"
)

// IsEntry returns true for the two entry roles.
func (r OrderRole) IsEntry() bool {
	return r == RoleEntry1 || r == RoleEntry2
}

// EntryRoles lists both entry roles in placement order.
func EntryRoles() []OrderRole {
	return []OrderRole{RoleEntry1, RoleEntry2}
}

// TakeProfitRoles lists both take-profit roles in placement order.
func TakeProfitRoles() []OrderRole {
	return []OrderRole{RoleTakeProfit1, RoleTakeProfit2}
}

// OrderStatus represents the lifecycle of a tracked order.
type OrderStatus string

const (
	StatusPending     OrderStatus = "PENDING"
	StatusActive      OrderStatus = "ACTIVE"
	StatusFilled      OrderStatus = "FILLED"
	StatusDisappeared OrderStatus = "DISAPPEARED"
	StatusCancelled   OrderStatus = "CANCELLED"
	StatusSuperseded  OrderStatus = "SUPERSEDED"
)

// Live returns true while the order is expected to rest on the venue book.
func (s OrderStatus) Live() bool {
	return s == StatusPending || s == StatusActive
}

// Terminal returns true once the order needs no further reconciliation.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusSuperseded
}

// OrderRecord is the unit of bookkeeping: what we believe exists on the venue.
// LimitPrice and Size are fixed at creation; recreating a disappeared order
// produces a NEW record, it never mutates the old one.
type OrderRecord struct {
	ID            string // local UUID
	MarketID      string
	Role          OrderRole
	VenueOrderID  string // empty until the venue accepts the order
	Side          string // "BUY" or "SELL"
	TokenID       string
	LimitPrice    float64
	Size          float64 // shares
	FilledSize    float64 // shares actually obtained
	FilledPrice   float64
	Status        OrderStatus
	CreatedAt     time.Time
	LastCheckedAt time.Time
	FilledAt      *time.Time
	RecreateCount int    // how many predecessors this record has
	SupersededBy  string // local ID of the replacement record, if any
}

// Age returns how long ago the record was created.
func (r OrderRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// PlaceOrderRequest is sent to the venue gateway.
type PlaceOrderRequest struct {
	TokenID  string
	MarketID string
	Side     string // "BUY" or "SELL"
	Price    float64
	Size     float64 // shares
}

// PlacedOrder is the venue's response to a successful placement.
type PlacedOrder struct {
	VenueOrderID string
	Status       string
}

// VenueOrder is an order as reported by the venue's open-order snapshot.
type VenueOrder struct {
	VenueOrderID string
	TokenID      string
	Side         string
	Price        float64
	Size         float64
	SizeMatched  float64
}

// VenueFill is a trade reported by the venue for one of our orders.
type VenueFill struct {
	VenueOrderID string
	FilledSize   float64
	AvgPrice     float64
}
