package store

import (
	"context"
	"errors"
	"time"

	"icepos/backend/internal/domain"
)

var (
	// ErrValidation marks caller input the store refuses to persist.
	ErrValidation = errors.New("validation failed")

	// ErrShiftAlreadyOpen is returned by OpenShift when an OPEN session
	// already exists. At most one shift is ever open.
	ErrShiftAlreadyOpen = errors.New("a shift is already open")

	// ErrNoOpenShift is returned when an operation requires an OPEN
	// session and none exists.
	ErrNoOpenShift = errors.New("no open shift")

	// ErrShiftCloseConflict is returned when a close races another close
	// of the same session and loses. The losing caller must never be told
	// the close succeeded.
	ErrShiftCloseConflict = errors.New("shift already closed by another request")

	// ErrInsufficientStock aborts a sale whose decrement would drive a
	// product's stock negative.
	ErrInsufficientStock = errors.New("insufficient stock")

	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")

	// ErrStoreUnavailable wraps infrastructure failures (connection loss,
	// timeouts). Advisory readers degrade on it; writers propagate it.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Repository is the persistence contract shared by the postgres and
// memory implementations. All mutual exclusion lives behind this
// interface: implementations use single-statement atomic primitives
// (conditional insert, compare-and-swap update, guarded delta) rather
// than expecting callers to lock.
type Repository interface {
	// OpenShift persists a new OPEN session iff no OPEN session exists,
	// atomically. Returns ErrShiftAlreadyOpen otherwise.
	OpenShift(ctx context.Context, shift domain.ShiftSession) (*domain.ShiftSession, error)

	// GetOpenShift returns the single OPEN session, or ErrNoOpenShift.
	GetOpenShift(ctx context.Context) (*domain.ShiftSession, error)

	// GetLatestShift returns the most recently opened session regardless
	// of status, or ErrNotFound when none has ever been opened.
	GetLatestShift(ctx context.Context) (*domain.ShiftSession, error)

	// CloseShift transitions the identified session OPEN -> CLOSED via a
	// conditional update keyed on the OPEN status. If the session is no
	// longer OPEN the store returns ErrShiftCloseConflict.
	CloseShift(ctx context.Context, shiftID string, close domain.ShiftClose) (*domain.ShiftSession, error)

	// ListClosedShifts returns CLOSED sessions, newest first.
	ListClosedShifts(ctx context.Context, limit int) ([]domain.ShiftSession, error)

	// CreateSale persists the sale, its items, one SALE ledger entry per
	// item, and the matching stock decrements in a single transaction.
	// Any decrement that would drive stock below zero aborts the whole
	// transaction with ErrInsufficientStock. The store assigns the
	// invoice number.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)

	ListSalesForShift(ctx context.Context, shiftID string) ([]domain.Sale, error)
	ListSalesBetween(ctx context.Context, from, to time.Time) ([]domain.Sale, error)
	GetLastSale(ctx context.Context) (*domain.Sale, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)

	// FindProductByName matches case-insensitively; when several products
	// share the name, the first by name ordering wins.
	FindProductByName(ctx context.Context, name string) (*domain.Product, error)

	// ApplyStockDelta appends a ledger entry and adjusts the product's
	// cached quantity in one atomic step. Negative deltas are guarded:
	// they fail with ErrInsufficientStock rather than going below zero.
	ApplyStockDelta(ctx context.Context, entry domain.StockLedgerEntry) (*domain.Product, error)

	ListStockMovements(ctx context.Context, limit int) ([]domain.StockLedgerEntry, error)

	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	UpdateUserPassword(ctx context.Context, username string, passwordHash string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
}
