package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"icepos/backend/internal/domain"
	"icepos/backend/internal/reconcile"
	"icepos/backend/internal/store"
)

const liveStatusCacheKey = "shift:live"

// OpenShift starts the single system-wide cash session. The store's
// conditional insert carries the "at most one OPEN shift" guarantee;
// this method never pre-reads to check.
func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (*domain.ShiftSession, error) {
	if req.OpeningCash.IsNegative() {
		return nil, fmt.Errorf("opening cash must not be negative: %w", store.ErrValidation)
	}

	actor, _ := ActorFromContext(ctx)
	shift := domain.ShiftSession{
		Status:      domain.ShiftStatusOpen,
		OpenedAt:    time.Now().UTC(),
		OpeningCash: reconcile.Round2(req.OpeningCash),
		OpenedBy:    actor.Username,
	}

	created, err := s.repo.OpenShift(ctx, shift)
	if err != nil {
		return nil, fmt.Errorf("open shift: %w", err)
	}

	s.invalidateLiveStatus(ctx)
	s.logAudit(ctx, "shift_open", "shift", created.ID, fmt.Sprintf("opening_cash=%s", created.OpeningCash))
	return created, nil
}

// CloseShift reconciles the drawer and transitions the open session to
// CLOSED. The transition is a compare-and-swap in the store: losing a
// race surfaces as ErrShiftCloseConflict, never as a silent success.
func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (*domain.ShiftCloseSummary, error) {
	if req.ClosingCash.IsNegative() {
		return nil, fmt.Errorf("counted cash must not be negative: %w", store.ErrValidation)
	}

	shift, err := s.repo.GetOpenShift(ctx)
	if err != nil {
		return nil, fmt.Errorf("close shift: %w", err)
	}

	sales, err := s.repo.ListSalesForShift(ctx, shift.ID)
	if err != nil {
		return nil, fmt.Errorf("close shift: aggregate sales: %w", err)
	}

	figures := reconcile.ComputeClose(shift.OpeningCash, sales, req.ClosingCash, time.Now().UTC())
	closed, err := s.repo.CloseShift(ctx, shift.ID, figures)
	if err != nil {
		return nil, fmt.Errorf("close shift: %w", err)
	}

	s.invalidateLiveStatus(ctx)
	s.logAudit(ctx, "shift_close", "shift", closed.ID,
		fmt.Sprintf("expected=%s counted=%s difference=%s", closed.ExpectedCash, closed.ClosingCash, closed.Difference))

	return &domain.ShiftCloseSummary{
		ShiftID:      closed.ID,
		OpeningCash:  closed.OpeningCash,
		TotalSales:   closed.TotalSales,
		CashSales:    closed.CashSales,
		UPISales:     closed.UPISales,
		ExpectedCash: closed.ExpectedCash,
		ClosingCash:  closed.ClosingCash,
		Difference:   closed.Difference,
	}, nil
}

// LiveStatus is the advisory dashboard view. Everything here fails
// soft: any store or cache trouble degrades to "no shift open" so the
// dashboard keeps rendering.
func (s *Service) LiveStatus(ctx context.Context) domain.LiveShiftStatus {
	if cached, ok, err := s.statusCache.Get(ctx, liveStatusCacheKey); err == nil && ok {
		return *cached
	} else if err != nil {
		s.log.WithError(err).Warn("live status cache read failed")
	}

	status := s.buildLiveStatus(ctx)
	if err := s.statusCache.Set(ctx, liveStatusCacheKey, &status, s.liveTTL); err != nil {
		s.log.WithError(err).Warn("live status cache write failed")
	}
	return status
}

func (s *Service) buildLiveStatus(ctx context.Context) domain.LiveShiftStatus {
	shift, err := s.repo.GetOpenShift(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNoOpenShift) {
			s.log.WithError(err).Warn("live status shift read failed")
		}
		return domain.LiveShiftStatus{Open: false}
	}

	sales, err := s.repo.ListSalesForShift(ctx, shift.ID)
	if err != nil {
		s.log.WithError(err).Warn("live status sales read failed")
		return domain.LiveShiftStatus{Open: false}
	}

	totals := reconcile.TotalsByMode(sales)
	return domain.LiveShiftStatus{
		Open: true,
		Shift: &domain.LiveShiftView{
			ShiftID:      shift.ID,
			OpenedAt:     shift.OpenedAt,
			OpenedBy:     shift.OpenedBy,
			OpeningCash:  shift.OpeningCash,
			CashSales:    totals.Cash,
			UPISales:     totals.UPI,
			TotalSales:   totals.Total,
			BillCount:    totals.Bills,
			ExpectedCash: reconcile.ExpectedCash(shift.OpeningCash, totals.Cash),
		},
	}
}

// ShiftStatus reports the latest session regardless of state, fail-soft.
func (s *Service) ShiftStatus(ctx context.Context) domain.ShiftStatusView {
	shift, err := s.repo.GetLatestShift(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.WithError(err).Warn("shift status read failed")
		}
		return domain.ShiftStatusView{Open: false, Status: "NONE"}
	}

	view := domain.ShiftStatusView{
		Open:        shift.Status == domain.ShiftStatusOpen,
		Status:      shift.Status,
		ShiftID:     shift.ID,
		OpeningCash: shift.OpeningCash,
	}
	if !view.Open {
		view.CashSales = shift.CashSales
		view.ExpectedCash = shift.ExpectedCash
		return view
	}

	sales, err := s.repo.ListSalesForShift(ctx, shift.ID)
	if err != nil {
		s.log.WithError(err).Warn("shift status sales read failed")
		return view
	}
	totals := reconcile.TotalsByMode(sales)
	view.CashSales = totals.Cash
	view.ExpectedCash = reconcile.ExpectedCash(shift.OpeningCash, totals.Cash)
	return view
}

func (s *Service) invalidateLiveStatus(ctx context.Context) {
	if err := s.statusCache.Invalidate(ctx, liveStatusCacheKey); err != nil {
		s.log.WithError(err).Warn("live status cache invalidation failed")
	}
}
