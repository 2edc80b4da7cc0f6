// Package reconcile holds the pure arithmetic behind shift closes and
// the reporting views: mode subtotals, expected-cash math, hourly
// bucketing and stock-level classification. Nothing here touches a
// store or a clock; callers pass in everything.
package reconcile

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"icepos/backend/internal/domain"
)

// Round2 is the single money-rounding policy: every subtotal is rounded
// to 2 decimal places immediately after summation, so downstream math
// never sees accumulated float dust.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// SaleTotals aggregates sales by payment mode. Each subtotal is rounded
// as it is finalized, and the grand total is the rounded sum of the
// rounded parts.
type SaleTotals struct {
	Cash  decimal.Decimal
	UPI   decimal.Decimal
	Card  decimal.Decimal
	Total decimal.Decimal
	Bills int
}

func TotalsByMode(sales []domain.Sale) SaleTotals {
	var cash, upi, card decimal.Decimal
	for _, s := range sales {
		switch s.PaymentMode {
		case domain.PaymentCash:
			cash = cash.Add(s.TotalAmount)
		case domain.PaymentUPI:
			upi = upi.Add(s.TotalAmount)
		case domain.PaymentCard:
			card = card.Add(s.TotalAmount)
		}
	}
	t := SaleTotals{
		Cash:  Round2(cash),
		UPI:   Round2(upi),
		Card:  Round2(card),
		Bills: len(sales),
	}
	t.Total = Round2(t.Cash.Add(t.UPI).Add(t.Card))
	return t
}

// ExpectedCash is the drawer amount a clean shift should count:
// opening float plus cash-mode sales. Only CASH sales move the drawer.
func ExpectedCash(openingCash, cashSales decimal.Decimal) decimal.Decimal {
	return Round2(openingCash.Add(cashSales))
}

// ComputeClose derives the full reconciliation record for closing a
// shift: totals by mode, expected cash and the counted-vs-expected
// difference (negative means the drawer is short).
func ComputeClose(openingCash decimal.Decimal, sales []domain.Sale, countedCash decimal.Decimal, closedAt time.Time) domain.ShiftClose {
	t := TotalsByMode(sales)
	expected := ExpectedCash(openingCash, t.Cash)
	return domain.ShiftClose{
		ClosingCash:  Round2(countedCash),
		ExpectedCash: expected,
		Difference:   Round2(countedCash.Sub(expected)),
		TotalSales:   t.Total,
		CashSales:    t.Cash,
		UPISales:     t.UPI,
		ClosedAt:     closedAt,
	}
}

// AvgBill is the whole-currency average bill value, 0 when there were
// no bills.
func AvgBill(total decimal.Decimal, bills int) decimal.Decimal {
	if bills == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(bills))).Round(0)
}

// ShiftSummary condenses one session plus its sales into a performance
// row. Duration is zero while the shift is still open.
func ShiftSummary(shift domain.ShiftSession, sales []domain.Sale) domain.ShiftPerformanceEntry {
	t := TotalsByMode(sales)
	entry := domain.ShiftPerformanceEntry{
		ShiftID:    shift.ID,
		OpenedBy:   shift.OpenedBy,
		OpenedAt:   shift.OpenedAt,
		ClosedAt:   shift.ClosedAt,
		TotalSales: t.Total,
		BillCount:  t.Bills,
		AvgBill:    AvgBill(t.Total, t.Bills),
		Difference: shift.Difference,
	}
	if shift.ClosedAt != nil {
		entry.DurationMin = int(shift.ClosedAt.Sub(shift.OpenedAt).Minutes())
	}
	return entry
}

// hourlyWindowStart is the first business hour shown in the hourly
// report; earlier sales still count toward the day totals.
const hourlyWindowStart = 6

// HourlyBreakdown buckets the day's sales into 24 local-hour slots and
// returns the slots from the window start through max(nowHour, start),
// plus peak-hour and whole-day figures. Ties on the peak go to the
// earliest hour.
func HourlyBreakdown(sales []domain.Sale, nowHour int, date string) domain.HourlyReport {
	type bucket struct {
		total, cash, upi, card decimal.Decimal
		bills                  int
	}
	var buckets [24]bucket
	var dayTotal decimal.Decimal
	dayBills := 0
	for _, s := range sales {
		h := s.CreatedAt.Local().Hour()
		b := &buckets[h]
		b.total = b.total.Add(s.TotalAmount)
		b.bills++
		switch s.PaymentMode {
		case domain.PaymentCash:
			b.cash = b.cash.Add(s.TotalAmount)
		case domain.PaymentUPI:
			b.upi = b.upi.Add(s.TotalAmount)
		case domain.PaymentCard:
			b.card = b.card.Add(s.TotalAmount)
		}
		dayTotal = dayTotal.Add(s.TotalAmount)
		dayBills++
	}

	end := nowHour
	if end < hourlyWindowStart {
		end = hourlyWindowStart
	}
	if end > 23 {
		end = 23
	}

	report := domain.HourlyReport{
		Date:     date,
		PeakHour: -1,
		DayTotal: Round2(dayTotal),
		DayBills: dayBills,
	}
	for h := hourlyWindowStart; h <= end; h++ {
		b := buckets[h]
		slot := domain.HourlySlot{
			Hour:      h,
			Label:     hourLabel(h),
			Total:     Round2(b.total),
			BillCount: b.bills,
			Cash:      Round2(b.cash),
			UPI:       Round2(b.upi),
			Card:      Round2(b.card),
		}
		report.Slots = append(report.Slots, slot)
		if slot.BillCount > 0 && slot.Total.GreaterThan(report.PeakTotal) {
			report.PeakHour = h
			report.PeakTotal = slot.Total
		}
	}
	return report
}

func hourLabel(h int) string {
	suffix := "AM"
	display := h
	if h >= 12 {
		suffix = "PM"
		if h > 12 {
			display = h - 12
		}
	}
	if display == 0 {
		display = 12
	}
	return fmt.Sprintf("%d %s", display, suffix)
}

// ClassifyStock maps a product's cached quantity against its reorder
// level. A reorder level of zero means the product opted out of alerts
// and always reads OK, even at zero stock.
func ClassifyStock(p domain.Product) string {
	if p.ReorderLevel <= 0 {
		return domain.StockOK
	}
	if p.StockQty <= 0 {
		return domain.StockOut
	}
	critical := int(math.Ceil(float64(p.ReorderLevel) * 0.5))
	if p.StockQty <= critical {
		return domain.StockCritical
	}
	if p.StockQty <= p.ReorderLevel {
		return domain.StockLow
	}
	return domain.StockOK
}

// StockPriority orders statuses most-urgent-first for report sorting.
func StockPriority(status string) int {
	switch status {
	case domain.StockOut:
		return 0
	case domain.StockCritical:
		return 1
	case domain.StockLow:
		return 2
	default:
		return 3
	}
}

// TopItems ranks item names by quantity sold across the given sales.
func TopItems(sales []domain.Sale, limit int) []domain.TopItem {
	type agg struct {
		qty    int
		amount decimal.Decimal
		order  int
	}
	byName := map[string]*agg{}
	order := 0
	for _, s := range sales {
		for _, it := range s.Items {
			a, ok := byName[it.Name]
			if !ok {
				a = &agg{order: order}
				order++
				byName[it.Name] = a
			}
			a.qty += it.Quantity
			a.amount = a.amount.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
	}
	items := make([]domain.TopItem, 0, len(byName))
	for name, a := range byName {
		items = append(items, domain.TopItem{Name: name, Quantity: a.qty, Amount: Round2(a.amount)})
	}
	// insertion-stable selection keeps ties deterministic
	for i := 0; i < len(items); i++ {
		best := i
		for j := i + 1; j < len(items); j++ {
			if items[j].Quantity > items[best].Quantity ||
				(items[j].Quantity == items[best].Quantity && byName[items[j].Name].order < byName[items[best].Name].order) {
				best = j
			}
		}
		items[i], items[best] = items[best], items[i]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
