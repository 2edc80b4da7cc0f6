package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"icepos/backend/internal/domain"
	"icepos/backend/internal/reconcile"
	"icepos/backend/internal/store"
	"icepos/backend/internal/xid"
)

func validPaymentMode(mode string) bool {
	switch mode {
	case domain.PaymentCash, domain.PaymentUPI, domain.PaymentCard:
		return true
	}
	return false
}

// RecordSale books a sale against the open shift. The whole write is a
// single store transaction: sale, items, ledger entries and stock
// decrements either all land or none do.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (*domain.SaleReceipt, error) {
	if !validPaymentMode(req.PaymentMode) {
		return nil, fmt.Errorf("payment mode %q: %w", req.PaymentMode, store.ErrValidation)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("sale needs at least one item: %w", store.ErrValidation)
	}
	for _, it := range req.Items {
		if it.Quantity < 1 {
			return nil, fmt.Errorf("quantity must be at least 1: %w", store.ErrValidation)
		}
		if it.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("unit price must not be negative: %w", store.ErrValidation)
		}
	}

	// The open-shift read is authoritative, never the cache.
	shift, err := s.repo.GetOpenShift(ctx)
	if err != nil {
		return nil, fmt.Errorf("record sale: %w", err)
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	total := decimal.Zero
	for _, it := range req.Items {
		product, err := s.Resolve(ctx, domain.ProductRef{SKU: it.SKU, Name: it.Name})
		if err != nil {
			return nil, fmt.Errorf("record sale: %w", err)
		}
		// One rounding, shared by the snapshot and the total, so the
		// receipt always equals the sum of its printed lines.
		price := reconcile.Round2(it.UnitPrice)
		items = append(items, domain.SaleItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  it.Quantity,
			UnitPrice: price,
		})
		total = total.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	actor, _ := ActorFromContext(ctx)
	sale := domain.Sale{
		ID:          xid.New("sal"),
		ShiftID:     shift.ID,
		TotalAmount: reconcile.Round2(total),
		PaymentMode: req.PaymentMode,
		CreatedAt:   time.Now().UTC(),
		CreatedBy:   actor.Username,
		Items:       items,
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return nil, fmt.Errorf("record sale: %w", err)
	}

	s.invalidateLiveStatus(ctx)
	s.logAudit(ctx, "sale_record", "sale", created.ID,
		fmt.Sprintf("invoice=%s mode=%s total=%s", created.InvoiceNumber, created.PaymentMode, created.TotalAmount))

	return &domain.SaleReceipt{
		InvoiceNumber: created.InvoiceNumber,
		TotalAmount:   created.TotalAmount,
	}, nil
}
