package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"icepos/backend/internal/domain"
	"icepos/backend/internal/reconcile"
	"icepos/backend/internal/store"
)

// The report surface is advisory. Every method here degrades to an
// empty payload on store trouble instead of surfacing an error; the
// money-moving paths in shift.go and sale.go never do that.

func dayWindow(now time.Time) (time.Time, time.Time, string) {
	local := now.Local()
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	return start, start.Add(24 * time.Hour), start.Format("2006-01-02")
}

func (s *Service) todaySales(ctx context.Context, op string) ([]domain.Sale, string, bool) {
	from, to, date := dayWindow(time.Now())
	sales, err := s.repo.ListSalesBetween(ctx, from, to)
	if err != nil {
		s.log.WithError(err).Warnf("%s read failed", op)
		return nil, date, false
	}
	return sales, date, true
}

func (s *Service) TodayReport(ctx context.Context) domain.TodayReport {
	sales, date, ok := s.todaySales(ctx, "today report")
	report := domain.TodayReport{Date: date, TopItems: []domain.TopItem{}}
	if !ok {
		return report
	}

	totals := reconcile.TotalsByMode(sales)
	report.TotalSales = totals.Total
	report.CashSales = totals.Cash
	report.UPISales = totals.UPI
	report.CardSales = totals.Card
	report.BillCount = totals.Bills
	report.AvgBill = reconcile.AvgBill(totals.Total, totals.Bills)
	report.TopItems = reconcile.TopItems(sales, 5)
	return report
}

// StaffToday reports the acting user's own totals for the day. Staff
// never see anyone else's figures through this path.
func (s *Service) StaffToday(ctx context.Context) domain.StaffTodayReport {
	actor, _ := ActorFromContext(ctx)
	sales, date, ok := s.todaySales(ctx, "staff today report")
	report := domain.StaffTodayReport{Username: actor.Username, Date: date}
	if !ok {
		return report
	}

	var own []domain.Sale
	for _, sale := range sales {
		if sale.CreatedBy == actor.Username {
			own = append(own, sale)
		}
	}
	totals := reconcile.TotalsByMode(own)
	report.TotalSales = totals.Total
	report.BillCount = totals.Bills
	report.AvgBill = reconcile.AvgBill(totals.Total, totals.Bills)
	return report
}

func (s *Service) HourlyReport(ctx context.Context) domain.HourlyReport {
	sales, date, ok := s.todaySales(ctx, "hourly report")
	if !ok {
		return reconcile.HourlyBreakdown(nil, time.Now().Local().Hour(), date)
	}
	return reconcile.HourlyBreakdown(sales, time.Now().Local().Hour(), date)
}

func (s *Service) LowStockReport(ctx context.Context) []domain.LowStockItem {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		s.log.WithError(err).Warn("low stock report read failed")
		return []domain.LowStockItem{}
	}

	items := make([]domain.LowStockItem, 0, len(products))
	for _, p := range products {
		status := reconcile.ClassifyStock(p)
		if status == domain.StockOK {
			continue
		}
		items = append(items, domain.LowStockItem{
			ProductID:    p.ID,
			SKU:          p.SKU,
			Name:         p.Name,
			StockQty:     p.StockQty,
			ReorderLevel: p.ReorderLevel,
			Status:       status,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := reconcile.StockPriority(items[i].Status), reconcile.StockPriority(items[j].Status)
		if pi != pj {
			return pi < pj
		}
		return items[i].StockQty < items[j].StockQty
	})
	if len(items) > 20 {
		items = items[:20]
	}
	return items
}

func (s *Service) StockSummary(ctx context.Context) domain.StockSummary {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		s.log.WithError(err).Warn("stock summary read failed")
		return domain.StockSummary{}
	}

	summary := domain.StockSummary{TotalProducts: len(products)}
	for _, p := range products {
		switch reconcile.ClassifyStock(p) {
		case domain.StockLow:
			summary.LowCount++
		case domain.StockCritical:
			summary.CriticalCount++
		case domain.StockOut:
			summary.OutCount++
		}
	}
	return summary
}

func (s *Service) StockMovements(ctx context.Context, limit int) []domain.StockLedgerEntry {
	entries, err := s.repo.ListStockMovements(ctx, limit)
	if err != nil {
		s.log.WithError(err).Warn("stock movements read failed")
		return []domain.StockLedgerEntry{}
	}
	return entries
}

func (s *Service) ShiftHistory(ctx context.Context, limit int) []domain.ShiftSession {
	shifts, err := s.repo.ListClosedShifts(ctx, limit)
	if err != nil {
		s.log.WithError(err).Warn("shift history read failed")
		return []domain.ShiftSession{}
	}
	return shifts
}

// LastClosedShift returns the most recently closed session with its
// reconciliation figures.
func (s *Service) LastClosedShift(ctx context.Context) domain.LastClosedShift {
	shifts, err := s.repo.ListClosedShifts(ctx, 1)
	if err != nil {
		s.log.WithError(err).Warn("last closed shift read failed")
		return domain.LastClosedShift{Found: false}
	}
	if len(shifts) == 0 {
		return domain.LastClosedShift{Found: false}
	}
	shift := shifts[0]
	return domain.LastClosedShift{Found: true, Shift: &shift}
}

func (s *Service) ShiftPerformance(ctx context.Context) domain.ShiftPerformanceReport {
	report := domain.ShiftPerformanceReport{Shifts: []domain.ShiftPerformanceEntry{}}

	shifts, err := s.repo.ListClosedShifts(ctx, 10)
	if err != nil {
		s.log.WithError(err).Warn("shift performance read failed")
		return report
	}

	best := decimal.Zero
	for _, shift := range shifts {
		sales, err := s.repo.ListSalesForShift(ctx, shift.ID)
		if err != nil {
			s.log.WithError(err).Warn("shift performance sales read failed")
			return domain.ShiftPerformanceReport{Shifts: []domain.ShiftPerformanceEntry{}}
		}
		entry := reconcile.ShiftSummary(shift, sales)
		report.Shifts = append(report.Shifts, entry)
		report.TotalSales = report.TotalSales.Add(entry.TotalSales)
		report.TotalBills += entry.BillCount
		if report.BestShiftID == "" || entry.TotalSales.GreaterThan(best) {
			report.BestShiftID = entry.ShiftID
			best = entry.TotalSales
		}
	}
	report.TotalSales = reconcile.Round2(report.TotalSales)
	return report
}

func (s *Service) LastBill(ctx context.Context) domain.LastBill {
	sale, err := s.repo.GetLastSale(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.WithError(err).Warn("last bill read failed")
		}
		return domain.LastBill{Found: false}
	}
	return domain.LastBill{Found: true, Sale: sale}
}
