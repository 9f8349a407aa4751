package domain

import "time"

const (
	RoleOwner     = "owner"
	RoleInventory = "inventory"
	RoleSales     = "sales"
)

// ValidRole reports whether role is one of the membership roles a business
// can assign.
func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleInventory, RoleSales:
		return true
	}
	return false
}

// Actor is the authenticated caller carried through request contexts. It
// identifies WHO is calling; what they may do inside a business is decided
// by their membership row, never by the token.
type Actor struct {
	UserID   string
	Username string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Username  string
	Password  string
	Active    bool
	CreatedAt time.Time
}

type Business struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Membership struct {
	UserID     string    `json:"user_id"`
	BusinessID string    `json:"business_id"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}

// Product carries both the selling price and the cost basis, in integer
// cents. QuantitySinceRestock counts units sold since the last restock and
// resets to zero whenever stock is added.
type Product struct {
	ID                   string    `json:"id"`
	BusinessID           string    `json:"business_id"`
	BarCode              string    `json:"bar_code"`
	Name                 string    `json:"name"`
	PriceCents           int64     `json:"price_cents"`
	CostBasisCents       int64     `json:"cost_basis_cents"`
	QuantityOnHand       int       `json:"quantity_on_hand"`
	QuantitySinceRestock int       `json:"quantity_since_restock"`
	Active               bool      `json:"active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	BarCode        string `json:"bar_code"`
	Name           string `json:"name"`
	PriceCents     int64  `json:"price_cents"`
	CostBasisCents int64  `json:"cost_basis_cents"`
	InitialStock   int    `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name           *string `json:"name,omitempty"`
	PriceCents     *int64  `json:"price_cents,omitempty"`
	CostBasisCents *int64  `json:"cost_basis_cents,omitempty"`
	Active         *bool   `json:"active,omitempty"`
}

type RestockRequest struct {
	Quantity int `json:"quantity"`
}

// SaleLineItemRequest is a client-side cart line. Only the product reference
// and quantity are accepted; prices always come from the store at commit
// time.
type SaleLineItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SaleCreateRequest struct {
	Items []SaleLineItemRequest `json:"items"`
}

// SaleLineItem snapshots the unit price and unit cost in effect when the
// sale committed. Historical reports read these snapshots, never the current
// product row.
type SaleLineItem struct {
	ID                   string `json:"id"`
	SaleID               string `json:"sale_id"`
	ProductID            string `json:"product_id"`
	Quantity             int    `json:"quantity"`
	UnitPriceAtSaleCents int64  `json:"unit_price_at_sale_cents"`
	UnitCostAtSaleCents  int64  `json:"unit_cost_at_sale_cents"`
}

type Sale struct {
	ID                 string         `json:"id"`
	BusinessID         string         `json:"business_id"`
	UserID             string         `json:"user_id"`
	TotalAmountCents   int64          `json:"total_amount_cents"`
	TotalBaseCostCents int64          `json:"total_base_cost_cents"`
	CreatedAt          time.Time      `json:"created_at"`
	Items              []SaleLineItem `json:"items"`
}

type BusinessCreateRequest struct {
	Name string `json:"name"`
}

type MemberAddRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	ExpiresAt   string `json:"expires_at"`
}

type DailySalesReport struct {
	BusinessID       string `json:"business_id"`
	Date             string `json:"date"`
	SaleCount        int64  `json:"sale_count"`
	TotalAmountCents int64  `json:"total_amount_cents"`
}

// IntervalBucket is one window of an intraday report. Start and End are
// instants in the report timezone; End is exclusive.
type IntervalBucket struct {
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	SaleCount        int64     `json:"sale_count"`
	TotalAmountCents int64     `json:"total_amount_cents"`
}

type IntradayReport struct {
	BusinessID string           `json:"business_id"`
	Date       string           `json:"date"`
	Buckets    []IntervalBucket `json:"buckets"`
}

type ProfitReport struct {
	BusinessID         string `json:"business_id"`
	From               string `json:"from"`
	To                 string `json:"to"`
	SaleCount          int64  `json:"sale_count"`
	TotalAmountCents   int64  `json:"total_amount_cents"`
	TotalBaseCostCents int64  `json:"total_base_cost_cents"`
	ProfitCents        int64  `json:"profit_cents"`
}

type TopProduct struct {
	ProductID        string `json:"product_id"`
	Name             string `json:"name"`
	QuantitySold     int64  `json:"quantity_sold"`
	TotalAmountCents int64  `json:"total_amount_cents"`
}

type TopProductsReport struct {
	BusinessID string       `json:"business_id"`
	From       string       `json:"from"`
	To         string       `json:"to"`
	Products   []TopProduct `json:"products"`
}

type RestockCandidate struct {
	ProductID            string `json:"product_id"`
	BarCode              string `json:"bar_code"`
	Name                 string `json:"name"`
	QuantityOnHand       int    `json:"quantity_on_hand"`
	QuantitySinceRestock int    `json:"quantity_since_restock"`
}

type RestockCandidateResponse struct {
	BusinessID string             `json:"business_id"`
	Threshold  int                `json:"threshold"`
	Candidates []RestockCandidate `json:"candidates"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}
