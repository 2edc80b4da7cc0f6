package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report payloads are advisory views. Handlers serve them fail-soft:
// a store hiccup degrades to the zero value, never to a 5xx.

type TodayReport struct {
	Date        string          `json:"date"`
	TotalSales  decimal.Decimal `json:"total_sales"`
	CashSales   decimal.Decimal `json:"cash_sales"`
	UPISales    decimal.Decimal `json:"upi_sales"`
	CardSales   decimal.Decimal `json:"card_sales"`
	BillCount   int             `json:"bill_count"`
	AvgBill     decimal.Decimal `json:"avg_bill"`
	TopItems    []TopItem       `json:"top_items"`
}

type TopItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
}

type StaffTodayReport struct {
	Username   string          `json:"username"`
	Date       string          `json:"date"`
	TotalSales decimal.Decimal `json:"total_sales"`
	BillCount  int             `json:"bill_count"`
	AvgBill    decimal.Decimal `json:"avg_bill"`
}

type HourlySlot struct {
	Hour      int             `json:"hour"`
	Label     string          `json:"label"`
	Total     decimal.Decimal `json:"total"`
	BillCount int             `json:"bill_count"`
	Cash      decimal.Decimal `json:"cash"`
	UPI       decimal.Decimal `json:"upi"`
	Card      decimal.Decimal `json:"card"`
}

type HourlyReport struct {
	Date      string          `json:"date"`
	Slots     []HourlySlot    `json:"slots"`
	PeakHour  int             `json:"peak_hour"`
	PeakTotal decimal.Decimal `json:"peak_total"`
	DayTotal  decimal.Decimal `json:"day_total"`
	DayBills  int             `json:"day_bills"`
}

const (
	StockOK       = "OK"
	StockLow      = "LOW"
	StockCritical = "CRITICAL"
	StockOut      = "OUT"
)

type LowStockItem struct {
	ProductID    string `json:"product_id"`
	SKU          string `json:"sku,omitempty"`
	Name         string `json:"name"`
	StockQty     int    `json:"stock_qty"`
	ReorderLevel int    `json:"reorder_level"`
	Status       string `json:"status"`
}

type StockSummary struct {
	TotalProducts int `json:"total_products"`
	LowCount      int `json:"low_count"`
	CriticalCount int `json:"critical_count"`
	OutCount      int `json:"out_count"`
}

type ShiftPerformanceEntry struct {
	ShiftID      string          `json:"shift_id"`
	OpenedBy     string          `json:"opened_by"`
	OpenedAt     time.Time       `json:"opened_at"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`
	DurationMin  int             `json:"duration_min"`
	TotalSales   decimal.Decimal `json:"total_sales"`
	BillCount    int             `json:"bill_count"`
	AvgBill      decimal.Decimal `json:"avg_bill"`
	Difference   decimal.Decimal `json:"difference"`
}

type ShiftPerformanceReport struct {
	Shifts      []ShiftPerformanceEntry `json:"shifts"`
	BestShiftID string                  `json:"best_shift_id,omitempty"`
	TotalSales  decimal.Decimal         `json:"total_sales"`
	TotalBills  int                     `json:"total_bills"`
}

type LastClosedShift struct {
	Found bool          `json:"found"`
	Shift *ShiftSession `json:"shift,omitempty"`
}

type LastBill struct {
	Found bool  `json:"found"`
	Sale  *Sale `json:"sale,omitempty"`
}
