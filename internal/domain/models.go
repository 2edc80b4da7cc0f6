package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID           string          `json:"id"`
	SKU          string          `json:"sku,omitempty"`
	Name         string          `json:"name"`
	CategoryName string          `json:"category_name,omitempty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	StockQty     int             `json:"stock_qty"`
	ReorderLevel int             `json:"reorder_level"`
}

// ProductRef is how an inbound row or sale line points at a product:
// SKU when present, name as the fallback key.
type ProductRef struct {
	SKU  string `json:"sku,omitempty"`
	Name string `json:"name,omitempty"`
}

type ShiftSession struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	OpenedAt     time.Time       `json:"opened_at"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`
	OpeningCash  decimal.Decimal `json:"opening_cash"`
	ClosingCash  decimal.Decimal `json:"closing_cash"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
	Difference   decimal.Decimal `json:"difference"`
	TotalSales   decimal.Decimal `json:"total_sales"`
	CashSales    decimal.Decimal `json:"cash_sales"`
	UPISales     decimal.Decimal `json:"upi_sales"`
	OpenedBy     string          `json:"opened_by"`
}

// ShiftClose carries the reconciliation figures written by the guarded
// OPEN -> CLOSED transition. Amounts are already rounded to 2 decimals.
type ShiftClose struct {
	ClosingCash  decimal.Decimal
	ExpectedCash decimal.Decimal
	Difference   decimal.Decimal
	TotalSales   decimal.Decimal
	CashSales    decimal.Decimal
	UPISales     decimal.Decimal
	ClosedAt     time.Time
}

type ShiftOpenRequest struct {
	OpeningCash decimal.Decimal `json:"opening_cash"`
}

type ShiftCloseRequest struct {
	ClosingCash decimal.Decimal `json:"closing_cash"`
}

type ShiftCloseSummary struct {
	ShiftID      string          `json:"shift_id"`
	OpeningCash  decimal.Decimal `json:"opening_cash"`
	TotalSales   decimal.Decimal `json:"total_sales"`
	CashSales    decimal.Decimal `json:"cash_sales"`
	UPISales     decimal.Decimal `json:"upi_sales"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
	ClosingCash  decimal.Decimal `json:"closing_cash"`
	Difference   decimal.Decimal `json:"difference"`
}

// LiveShiftStatus is the advisory dashboard view of the currently open
// shift. It tolerates staleness and is never authoritative for writes.
type LiveShiftStatus struct {
	Open  bool           `json:"open"`
	Shift *LiveShiftView `json:"shift,omitempty"`
}

type LiveShiftView struct {
	ShiftID      string          `json:"shift_id"`
	OpenedAt     time.Time       `json:"opened_at"`
	OpenedBy     string          `json:"opened_by"`
	OpeningCash  decimal.Decimal `json:"opening_cash"`
	CashSales    decimal.Decimal `json:"cash_sales"`
	UPISales     decimal.Decimal `json:"upi_sales"`
	TotalSales   decimal.Decimal `json:"total_sales"`
	BillCount    int             `json:"bill_count"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
}

type ShiftStatusView struct {
	Open         bool            `json:"open"`
	Status       string          `json:"status"`
	ShiftID      string          `json:"shift_id,omitempty"`
	OpeningCash  decimal.Decimal `json:"opening_cash"`
	CashSales    decimal.Decimal `json:"cash_sales"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
}

type SaleItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type Sale struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	ShiftID       string          `json:"shift_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMode   string          `json:"payment_mode"`
	CreatedAt     time.Time       `json:"created_at"`
	CreatedBy     string          `json:"created_by"`
	Items         []SaleItem      `json:"items"`
}

type SaleItemRequest struct {
	SKU       string          `json:"sku,omitempty"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type SaleRequest struct {
	PaymentMode string            `json:"payment_mode" validate:"required,oneof=CASH UPI CARD"`
	Items       []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
}

type SaleReceipt struct {
	InvoiceNumber string          `json:"invoice_number"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	BillCount     int             `json:"bill_count,omitempty"`
}

type StockLedgerEntry struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	ProductName   string    `json:"product_name,omitempty"`
	Type          string    `json:"type"`
	QuantityDelta int       `json:"quantity_delta"`
	ReferenceNote string    `json:"reference_note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type PurchaseRow struct {
	SKU      string `json:"sku,omitempty"`
	Name     string `json:"name,omitempty"`
	Quantity int    `json:"quantity"`
}

type BulkPurchaseRequest struct {
	Rows []PurchaseRow `json:"rows" validate:"required,min=1"`
	Note string        `json:"note,omitempty"`
}

type PurchaseRowError struct {
	Row   int    `json:"row"`
	Ref   string `json:"ref"`
	Error string `json:"error"`
}

type BulkPurchaseResult struct {
	Processed int                `json:"processed"`
	Failed    int                `json:"failed"`
	Errors    []PurchaseRowError `json:"errors"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated principal attached to a request context.
type Actor struct {
	Username string
	Role     Role
}

// UserAccount is an internal persistence model for auth credentials.
// Password holds a bcrypt hash at rest.
type UserAccount struct {
	Username  string
	Password  string
	Role      Role
	Active    bool
	CreatedAt time.Time
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required"`
}

type ResetPasswordRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	Actor      string    `json:"actor"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	ShiftStatusOpen   = "OPEN"
	ShiftStatusClosed = "CLOSED"
)

const (
	PaymentCash = "CASH"
	PaymentUPI  = "UPI"
	PaymentCard = "CARD"
)

const (
	LedgerPurchase   = "PURCHASE"
	LedgerSale       = "SALE"
	LedgerAdjustment = "ADJUSTMENT"
)
