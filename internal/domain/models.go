package domain

import "time"

type Product struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Line        string `json:"line"`
	Subline     string `json:"subline"`
	Unit        string `json:"unit"`
	Stock       int    `json:"stock"`
	Price1Cents int64  `json:"price1_cents"`
	Price2Cents int64  `json:"price2_cents"`
	Price3Cents int64  `json:"price3_cents"`
	Price4Cents int64  `json:"price4_cents"`
	Price5Cents int64  `json:"price5_cents"`
	Active      bool   `json:"active"`
	TaraApplies bool   `json:"tara_applies"`
}

type Client struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	TaxID            string `json:"tax_id"`
	CreditLimitCents int64  `json:"credit_limit_cents"`
	BalanceCents     int64  `json:"balance_cents"`
	DefaultTier      int    `json:"default_tier"`
	Zone             string `json:"zone"`
}

// TaraSelection is a packaging adjustment chosen on a sale line. The price
// delta is per base unit; the unit factor only affects how the line is
// displayed (e.g. "case of 12"), never stock validation.
type TaraSelection struct {
	Name            string `json:"name"`
	PriceDeltaCents int64  `json:"price_delta_cents"`
	UnitFactor      int    `json:"unit_factor"`
}

type OrderItem struct {
	ID             string         `json:"id"`
	ProductID      string         `json:"product_id"`
	ProductCode    string         `json:"product_code"`
	ProductName    string         `json:"product_name"`
	Qty            int            `json:"qty"`
	Tier           int            `json:"tier"`
	UnitPriceCents int64          `json:"unit_price_cents"`
	TotalCents     int64          `json:"total_cents"`
	CustomPrice    bool           `json:"custom_price"`
	Tara           *TaraSelection `json:"tara,omitempty"`
}

type Order struct {
	ID              string      `json:"id"`
	ClientID        string      `json:"client_id"`
	ClientName      string      `json:"client_name"`
	Date            time.Time   `json:"date"`
	Items           []OrderItem `json:"items"`
	SubtotalCents   int64       `json:"subtotal_cents"`
	DiscountCents   int64       `json:"discount_cents"`
	TotalCents      int64       `json:"total_cents"`
	Status          string      `json:"status"`
	IsCredit        bool        `json:"is_credit"`
	IsInvoice       bool        `json:"is_invoice"`
	IsQuote         bool        `json:"is_quote"`
	IsExternal      bool        `json:"is_external"`
	AmountPaidCents int64       `json:"amount_paid_cents"`
	RemainingCents  int64       `json:"remaining_cents"`
	StockApplied    bool        `json:"stock_applied"`
	CreatedBy       string      `json:"created_by"`
	CreatedAt       time.Time   `json:"created_at"`
	Version         int         `json:"version"`
	Payments        []Payment   `json:"payments,omitempty"`
}

type Payment struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	Method      string    `json:"method"`
	AmountCents int64     `json:"amount_cents"`
	Reference   string    `json:"reference,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type CashRegister struct {
	ID                 string     `json:"id"`
	Operator           string     `json:"operator"`
	OpeningCents       int64      `json:"opening_cents"`
	SalesTotalCents    int64      `json:"sales_total_cents"`
	CashTotalCents     int64      `json:"cash_total_cents"`
	CardTotalCents     int64      `json:"card_total_cents"`
	TransferTotalCents int64      `json:"transfer_total_cents"`
	Status             string     `json:"status"`
	OpenedAt           time.Time  `json:"opened_at"`
	ClosingCents       int64      `json:"closing_cents,omitempty"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
}

type Voucher struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	AvailableCents int64     `json:"available_cents"`
	Status         string    `json:"status"`
	IssuedTo       string    `json:"issued_to,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// WarehouseAllocation assigns part of a sold quantity to a physical location.
type WarehouseAllocation struct {
	WarehouseID string `json:"warehouse_id"`
	Qty         int    `json:"qty"`
}

// Distribution maps product id to its warehouse allocations for one order.
type Distribution map[string][]WarehouseAllocation

type WarehouseStock struct {
	WarehouseID string `json:"warehouse_id"`
	ProductID   string `json:"product_id"`
	Qty         int    `json:"qty"`
}

type InventoryMovement struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Type      string    `json:"type"`
	Qty       int       `json:"qty"`
	PrevStock int       `json:"prev_stock"`
	NewStock  int       `json:"new_stock"`
	Reference string    `json:"reference"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type OrderLock struct {
	OrderID    string    `json:"order_id"`
	Holder     string    `json:"holder"`
	Session    string    `json:"session"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// DraftLine is one requested line for server-side order pricing.
type DraftLine struct {
	ProductID        string         `json:"product_id"`
	Qty              int            `json:"qty"`
	Tier             int            `json:"tier,omitempty"`
	CustomPriceCents int64          `json:"custom_price_cents,omitempty"`
	Tara             *TaraSelection `json:"tara,omitempty"`
}

// DraftRequest asks the backend to assemble and price an order without
// persisting it.
type DraftRequest struct {
	ClientID       string        `json:"client_id"`
	Lines          []DraftLine   `json:"lines"`
	DiscountCents  int64         `json:"discount_cents,omitempty"`
	PriceOverrides map[int]int64 `json:"price_overrides,omitempty"`
}

type SaveOrderRequest struct {
	Order           Order        `json:"order"`
	Distribution    Distribution `json:"distribution,omitempty"`
	StockOverride   bool         `json:"stock_override"`
	CreditOverride  bool         `json:"credit_override"`
	PriceOverride   bool         `json:"price_override"`
	AdminPassphrase string       `json:"admin_passphrase,omitempty"`
}

type SettlementBreakdown struct {
	CashCents     int64 `json:"cash_cents"`
	CardCents     int64 `json:"card_cents"`
	TransferCents int64 `json:"transfer_cents"`
	CreditCents   int64 `json:"credit_cents"`
}

type SettlementRequest struct {
	AmountCents     int64                `json:"amount_cents"`
	Method          string               `json:"method"`
	Reference       string               `json:"reference,omitempty"`
	Breakdown       *SettlementBreakdown `json:"breakdown,omitempty"`
	VoucherID       string               `json:"voucher_id,omitempty"`
	CreditOverride  bool                 `json:"credit_override"`
	AdminPassphrase string               `json:"admin_passphrase,omitempty"`
}

type CancelRequest struct {
	AdminPassphrase string `json:"admin_passphrase"`
}

type LockRequest struct {
	Session string `json:"session"`
}

type RegisterOpenRequest struct {
	OpeningCents int64 `json:"opening_cents"`
}

type RegisterCloseRequest struct {
	ClosingCents int64 `json:"closing_cents"`
}

type VoucherCreateRequest struct {
	Code           string `json:"code"`
	AvailableCents int64  `json:"available_cents"`
	IssuedTo       string `json:"issued_to,omitempty"`
}

type TicketResponse struct {
	OrderID  string `json:"order_id"`
	Body     string `json:"body"`
	FileName string `json:"file_name"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	OrderStatusDraft     = "draft"
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
	OrderStatusSaved     = "saved"
)

// persistedStatus maps the in-memory order status vocabulary onto the smaller
// set stored by the backend. Historically the two drifted apart ("cancelled"
// rows were stored as "overdue"); keeping the mapping in one table avoids
// re-inferring it from scattered conditionals.
var persistedStatus = map[string]string{
	OrderStatusDraft:     "pending",
	OrderStatusPending:   "pending",
	OrderStatusPaid:      "paid",
	OrderStatusCancelled: "overdue",
	OrderStatusSaved:     "saved",
}

func PersistedStatus(status string) string {
	if mapped, ok := persistedStatus[status]; ok {
		return mapped
	}
	return "pending"
}

const (
	PaymentMethodCash     = "cash"
	PaymentMethodCard     = "card"
	PaymentMethodTransfer = "transfer"
	PaymentMethodCredit   = "credit"
	PaymentMethodVouchers = "vouchers"
	PaymentMethodMixed    = "mixed"
)

const (
	RegisterStatusOpen   = "open"
	RegisterStatusClosed = "closed"
)

const (
	VoucherStatusActive = "active"
	VoucherStatusUsed   = "used"
)

const (
	MovementTypeIn  = "in"
	MovementTypeOut = "out"
)

// PaidEpsilonCents is the tolerance under which a remaining balance counts
// as fully paid.
const PaidEpsilonCents = int64(1)
