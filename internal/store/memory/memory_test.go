package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"icepos/backend/internal/domain"
	"icepos/backend/internal/store"
)

func TestConcurrentOpenShiftAdmitsExactlyOne(t *testing.T) {
	repo := New()
	ctx := context.Background()

	const openers = 8
	var wg sync.WaitGroup
	errs := make([]error, openers)
	for i := 0; i < openers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.OpenShift(ctx, domain.ShiftSession{
				OpenedAt:    time.Now().UTC(),
				OpeningCash: decimal.NewFromInt(100),
				OpenedBy:    "racer",
			})
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, store.ErrShiftAlreadyOpen)
		}
	}
	require.Equal(t, 1, wins)
}

func TestApplyStockDeltaGuardsNegativeStock(t *testing.T) {
	repo := NewSeeded()
	ctx := context.Background()

	product, err := repo.GetProductBySKU(ctx, "ICE011")
	require.NoError(t, err)

	_, err = repo.ApplyStockDelta(ctx, domain.StockLedgerEntry{
		ProductID:     product.ID,
		Type:          domain.LedgerAdjustment,
		QuantityDelta: -(product.StockQty + 1),
		CreatedAt:     time.Now().UTC(),
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	// draining to exactly zero is allowed
	updated, err := repo.ApplyStockDelta(ctx, domain.StockLedgerEntry{
		ProductID:     product.ID,
		Type:          domain.LedgerAdjustment,
		QuantityDelta: -product.StockQty,
		CreatedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Equal(t, 0, updated.StockQty)

	_, err = repo.ApplyStockDelta(ctx, domain.StockLedgerEntry{
		ProductID:     "prd-missing",
		Type:          domain.LedgerPurchase,
		QuantityDelta: 5,
		CreatedAt:     time.Now().UTC(),
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindProductByNamePicksFirstByNameOrdering(t *testing.T) {
	repo := NewSeeded()
	ctx := context.Background()

	product, err := repo.FindProductByName(ctx, "waffle CONE")
	require.NoError(t, err)
	require.Equal(t, "Waffle Cone", product.Name)

	_, err = repo.FindProductByName(ctx, "")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestFindProductByNameTieBreaksOnID(t *testing.T) {
	repo := New()
	repo.productsByID["prd-late"] = domain.Product{ID: "prd-late", Name: "Pista Kulfi"}
	repo.productsByID["prd-early"] = domain.Product{ID: "prd-early", Name: "Pista Kulfi"}

	// identical names must resolve the same way every time, regardless
	// of map iteration order
	for i := 0; i < 10; i++ {
		product, err := repo.FindProductByName(context.Background(), "pista kulfi")
		require.NoError(t, err)
		require.Equal(t, "prd-early", product.ID)
	}
}

func TestNewSeededAccounts(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "admin123")
	t.Setenv("SEED_STAFF_PASSWORD", "staff123")
	repo := NewSeeded()

	owner, err := repo.GetUserByUsername(context.Background(), "owner")
	require.NoError(t, err)
	require.Equal(t, domain.RoleSuperadmin, owner.Role)
	require.True(t, owner.Active)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(owner.Password), []byte("admin123")))

	staff, err := repo.GetUserByUsername(context.Background(), "staff")
	require.NoError(t, err)
	require.Equal(t, domain.RoleStaff, staff.Role)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(staff.Password), []byte("staff123")))
}

func TestListClosedShiftsNewestFirst(t *testing.T) {
	repo := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		shift, err := repo.OpenShift(ctx, domain.ShiftSession{
			OpenedAt: time.Now().UTC(), OpenedBy: "asha",
		})
		require.NoError(t, err)
		_, err = repo.CloseShift(ctx, shift.ID, domain.ShiftClose{ClosedAt: time.Now().UTC()})
		require.NoError(t, err)
	}

	shifts, err := repo.ListClosedShifts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, shifts, 2)
	require.True(t, shifts[0].OpenedAt.After(shifts[1].OpenedAt) || shifts[0].OpenedAt.Equal(shifts[1].OpenedAt))
}
