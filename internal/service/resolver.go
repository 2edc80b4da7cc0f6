package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"icepos/backend/internal/domain"
	"icepos/backend/internal/store"
)

// Resolve finds the product an inbound row or sale line points at:
// trimmed exact SKU match first, then a case-insensitive name match.
// The name fallback only runs when the SKU lookup yields nothing.
func (s *Service) Resolve(ctx context.Context, ref domain.ProductRef) (*domain.Product, error) {
	sku := strings.TrimSpace(ref.SKU)
	if sku != "" {
		product, err := s.repo.GetProductBySKU(ctx, sku)
		if err == nil {
			return product, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("resolve sku %q: %w", sku, err)
		}
	}

	name := strings.TrimSpace(ref.Name)
	if name != "" {
		product, err := s.repo.FindProductByName(ctx, name)
		if err == nil {
			return product, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("resolve name %q: %w", name, err)
		}
	}

	return nil, fmt.Errorf("product %q: %w", refLabel(ref), store.ErrNotFound)
}

func refLabel(ref domain.ProductRef) string {
	if strings.TrimSpace(ref.SKU) != "" {
		return strings.TrimSpace(ref.SKU)
	}
	return strings.TrimSpace(ref.Name)
}

// ApplyPurchase books a stock intake: one PURCHASE ledger entry plus
// the matching cached-quantity bump, atomically.
func (s *Service) ApplyPurchase(ctx context.Context, productID string, qty int, note string) (*domain.Product, error) {
	if qty < 1 {
		return nil, fmt.Errorf("purchase quantity must be at least 1: %w", store.ErrValidation)
	}

	product, err := s.repo.ApplyStockDelta(ctx, domain.StockLedgerEntry{
		ProductID:     productID,
		Type:          domain.LedgerPurchase,
		QuantityDelta: qty,
		ReferenceNote: note,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("apply purchase: %w", err)
	}

	s.logAudit(ctx, "purchase_apply", "product", product.ID, fmt.Sprintf("qty=%d stock=%d", qty, product.StockQty))
	return product, nil
}

// BulkApplyPurchase drives a whole intake sheet through the resolver.
// Row failures are collected, never fatal: a 500-row sheet with 3 bad
// rows lands 497 purchases and reports the 3.
func (s *Service) BulkApplyPurchase(ctx context.Context, req domain.BulkPurchaseRequest) domain.BulkPurchaseResult {
	result := domain.BulkPurchaseResult{Errors: []domain.PurchaseRowError{}}
	for i, row := range req.Rows {
		if err := s.applyPurchaseRow(ctx, row, req.Note); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, domain.PurchaseRowError{
				Row:   i + 1,
				Ref:   refLabel(domain.ProductRef{SKU: row.SKU, Name: row.Name}),
				Error: err.Error(),
			})
			continue
		}
		result.Processed++
	}

	s.logAudit(ctx, "purchase_bulk", "stock_ledger", "",
		fmt.Sprintf("processed=%d failed=%d", result.Processed, result.Failed))
	return result
}

func (s *Service) applyPurchaseRow(ctx context.Context, row domain.PurchaseRow, note string) error {
	if row.Quantity < 1 {
		return fmt.Errorf("quantity must be at least 1: %w", store.ErrValidation)
	}
	product, err := s.Resolve(ctx, domain.ProductRef{SKU: row.SKU, Name: row.Name})
	if err != nil {
		return err
	}
	_, err = s.ApplyPurchase(ctx, product.ID, row.Quantity, note)
	return err
}
