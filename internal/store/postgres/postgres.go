package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"icepos/backend/internal/domain"
	"icepos/backend/internal/store"
	"icepos/backend/internal/xid"
)

// Store is the PostgreSQL Repository. Exclusion guarantees ride on
// single statements: the open-shift guard is a conditional insert, the
// close is a compare-and-swap update, and stock decrements carry their
// own quantity guard. No advisory locks, no SELECT FOR UPDATE.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func infra(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, store.ErrStoreUnavailable, err)
}

func (s *Store) OpenShift(ctx context.Context, shift domain.ShiftSession) (*domain.ShiftSession, error) {
	if shift.ID == "" {
		shift.ID = xid.New("shf")
	}
	shift.Status = domain.ShiftStatusOpen

	// Guarded insert: the WHERE NOT EXISTS clause and the partial unique
	// index on status='OPEN' together make "at most one open shift" hold
	// under concurrent openers without any read-then-write window.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO shift_sessions (id, status, opened_at, opening_cash, closing_cash, expected_cash, difference, total_sales, cash_sales, upi_sales, opened_by)
		SELECT $1, 'OPEN', $2, $3, 0, 0, 0, 0, 0, 0, $4
		WHERE NOT EXISTS (SELECT 1 FROM shift_sessions WHERE status = 'OPEN')
	`, shift.ID, shift.OpenedAt, shift.OpeningCash, shift.OpenedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrShiftAlreadyOpen
		}
		return nil, infra("open shift", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, infra("open shift", err)
	}
	if affected == 0 {
		return nil, store.ErrShiftAlreadyOpen
	}

	created := shift
	return &created, nil
}

const shiftColumns = `id, status, opened_at, closed_at, opening_cash, closing_cash, expected_cash, difference, total_sales, cash_sales, upi_sales, opened_by`

func scanShift(row interface{ Scan(...any) error }) (*domain.ShiftSession, error) {
	var shift domain.ShiftSession
	var closedAt sql.NullTime
	err := row.Scan(&shift.ID, &shift.Status, &shift.OpenedAt, &closedAt,
		&shift.OpeningCash, &shift.ClosingCash, &shift.ExpectedCash, &shift.Difference,
		&shift.TotalSales, &shift.CashSales, &shift.UPISales, &shift.OpenedBy)
	if err != nil {
		return nil, err
	}
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		shift.ClosedAt = &t
	}
	shift.OpenedAt = shift.OpenedAt.UTC()
	return &shift, nil
}

func (s *Store) GetOpenShift(ctx context.Context) (*domain.ShiftSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shift_sessions
		WHERE status = 'OPEN'
		ORDER BY opened_at DESC
		LIMIT 1
	`)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoOpenShift
		}
		return nil, infra("get open shift", err)
	}
	return shift, nil
}

func (s *Store) GetLatestShift(ctx context.Context) (*domain.ShiftSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shift_sessions
		ORDER BY opened_at DESC
		LIMIT 1
	`)
	shift, err := scanShift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, infra("get latest shift", err)
	}
	return shift, nil
}

func (s *Store) CloseShift(ctx context.Context, shiftID string, close domain.ShiftClose) (*domain.ShiftSession, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE shift_sessions
		SET status = 'CLOSED',
		    closed_at = $2,
		    closing_cash = $3,
		    expected_cash = $4,
		    difference = $5,
		    total_sales = $6,
		    cash_sales = $7,
		    upi_sales = $8
		WHERE id = $1 AND status = 'OPEN'
		RETURNING `+shiftColumns+`
	`, shiftID, close.ClosedAt, close.ClosingCash, close.ExpectedCash, close.Difference,
		close.TotalSales, close.CashSales, close.UPISales)

	shift, err := scanShift(row)
	if err == nil {
		return shift, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, infra("close shift", err)
	}

	// Zero rows: either the id is unknown or another close won the race.
	var status string
	probe := s.db.QueryRowContext(ctx, `SELECT status FROM shift_sessions WHERE id = $1`, shiftID).Scan(&status)
	if errors.Is(probe, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if probe != nil {
		return nil, infra("close shift", probe)
	}
	return nil, store.ErrShiftCloseConflict
}

func (s *Store) ListClosedShifts(ctx context.Context, limit int) ([]domain.ShiftSession, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shift_sessions
		WHERE status = 'CLOSED'
		ORDER BY opened_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, infra("list closed shifts", err)
	}
	defer rows.Close()

	shifts := make([]domain.ShiftSession, 0, limit)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, infra("list closed shifts", err)
		}
		shifts = append(shifts, *shift)
	}
	if err := rows.Err(); err != nil {
		return nil, infra("list closed shifts", err)
	}
	return shifts, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrValidation
	}
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, infra("create sale", err)
	}
	defer func() { _ = tx.Rollback() }()

	day := sale.CreatedAt.Local().Format("20060102")
	var seq int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO invoice_counters (day, seq)
		VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET seq = invoice_counters.seq + 1
		RETURNING seq
	`, day).Scan(&seq)
	if err != nil {
		return nil, infra("create sale", err)
	}
	sale.InvoiceNumber = fmt.Sprintf("INV-%s-%04d", day, seq)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, invoice_number, shift_id, total_amount, payment_mode, created_at, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, sale.ID, sale.InvoiceNumber, sale.ShiftID, sale.TotalAmount, sale.PaymentMode, sale.CreatedAt, sale.CreatedBy)
	if err != nil {
		return nil, infra("create sale", err)
	}

	for _, it := range sale.Items {
		// Guarded decrement: stock never goes negative, and a failed
		// guard aborts the whole transaction.
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock_qty = stock_qty - $1
			WHERE id = $2 AND stock_qty >= $1
		`, it.Quantity, it.ProductID)
		if err != nil {
			return nil, infra("create sale", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, infra("create sale", err)
		}
		if affected == 0 {
			return nil, fmt.Errorf("%s: %w", it.Name, store.ErrInsufficientStock)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, name, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, xid.New("sli"), sale.ID, it.ProductID, it.Name, it.Quantity, it.UnitPrice)
		if err != nil {
			return nil, infra("create sale", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_ledger (id, product_id, type, quantity_delta, reference_note, created_at)
			VALUES ($1,$2,'SALE',$3,$4,$5)
		`, xid.New("led"), it.ProductID, -it.Quantity, sale.InvoiceNumber, sale.CreatedAt)
		if err != nil {
			return nil, infra("create sale", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, infra("create sale", err)
	}
	created := sale
	return &created, nil
}

const saleColumns = `id, invoice_number, shift_id, total_amount, payment_mode, created_at, created_by`

func (s *Store) querySales(ctx context.Context, op, where string, args ...any) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales `+where+`
		ORDER BY created_at ASC
	`, args...)
	if err != nil {
		return nil, infra(op, err)
	}
	defer rows.Close()

	var sales []domain.Sale
	index := map[string]int{}
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.InvoiceNumber, &sale.ShiftID, &sale.TotalAmount, &sale.PaymentMode, &sale.CreatedAt, &sale.CreatedBy); err != nil {
			return nil, infra(op, err)
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		index[sale.ID] = len(sales)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, infra(op, err)
	}
	if len(sales) == 0 {
		return sales, nil
	}

	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
	}
	itemRows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, name, quantity, unit_price
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, infra(op, err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var saleID string
		var item domain.SaleItem
		if err := itemRows.Scan(&saleID, &item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, infra(op, err)
		}
		if i, ok := index[saleID]; ok {
			sales[i].Items = append(sales[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, infra(op, err)
	}
	return sales, nil
}

func (s *Store) ListSalesForShift(ctx context.Context, shiftID string) ([]domain.Sale, error) {
	return s.querySales(ctx, "list sales for shift", `WHERE shift_id = $1`, shiftID)
}

func (s *Store) ListSalesBetween(ctx context.Context, from, to time.Time) ([]domain.Sale, error) {
	return s.querySales(ctx, "list sales between", `WHERE created_at >= $1 AND created_at < $2`, from, to)
}

func (s *Store) GetLastSale(ctx context.Context) (*domain.Sale, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM sales ORDER BY created_at DESC LIMIT 1
	`).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, infra("get last sale", err)
	}
	sales, err := s.querySales(ctx, "get last sale", `WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, store.ErrNotFound
	}
	return &sales[0], nil
}

const productColumns = `id, sku, name, category_name, unit_price, stock_qty, reorder_level`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	var sku, category sql.NullString
	if err := row.Scan(&p.ID, &sku, &p.Name, &category, &p.UnitPrice, &p.StockQty, &p.ReorderLevel); err != nil {
		return nil, err
	}
	p.SKU = sku.String
	p.CategoryName = category.String
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, infra("list products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, infra("list products", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, infra("list products", err)
	}
	return products, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE sku = $1
	`, strings.TrimSpace(sku))
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, infra("get product by sku", err)
	}
	return p, nil
}

func (s *Store) FindProductByName(ctx context.Context, name string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE lower(name) = lower($1)
		ORDER BY name, id
		LIMIT 1
	`, strings.TrimSpace(name))
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, infra("find product by name", err)
	}
	return p, nil
}

func (s *Store) ApplyStockDelta(ctx context.Context, entry domain.StockLedgerEntry) (*domain.Product, error) {
	if entry.ID == "" {
		entry.ID = xid.New("led")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, infra("apply stock delta", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		UPDATE products
		SET stock_qty = stock_qty + $1
		WHERE id = $2 AND stock_qty + $1 >= 0
		RETURNING `+productColumns+`
	`, entry.QuantityDelta, entry.ProductID)
	p, err := scanProduct(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, infra("apply stock delta", err)
		}
		var exists bool
		probe := tx.QueryRowContext(ctx, `SELECT true FROM products WHERE id = $1`, entry.ProductID).Scan(&exists)
		if errors.Is(probe, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if probe != nil {
			return nil, infra("apply stock delta", probe)
		}
		return nil, store.ErrInsufficientStock
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_ledger (id, product_id, type, quantity_delta, reference_note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.ProductID, entry.Type, entry.QuantityDelta, entry.ReferenceNote, entry.CreatedAt)
	if err != nil {
		return nil, infra("apply stock delta", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, infra("apply stock delta", err)
	}
	return p, nil
}

func (s *Store) ListStockMovements(ctx context.Context, limit int) ([]domain.StockLedgerEntry, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.product_id, p.name, l.type, l.quantity_delta, l.reference_note, l.created_at
		FROM stock_ledger l
		JOIN products p ON p.id = l.product_id
		ORDER BY l.created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, infra("list stock movements", err)
	}
	defer rows.Close()

	entries := make([]domain.StockLedgerEntry, 0, limit)
	for rows.Next() {
		var e domain.StockLedgerEntry
		var note sql.NullString
		if err := rows.Scan(&e.ID, &e.ProductID, &e.ProductName, &e.Type, &e.QuantityDelta, &note, &e.CreatedAt); err != nil {
			return nil, infra("list stock movements", err)
		}
		e.ReferenceNote = note.String
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, infra("list stock movements", err)
	}
	return entries, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(&user.Username, &user.Password, &role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, infra("get user", err)
	}
	user.Role = domain.ParseRole(role)
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, strings.ToLower(strings.TrimSpace(user.Username)), user.Password, user.Role.String(), user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return infra("create user", err)
	}
	return nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username)), passwordHash)
	if err != nil {
		return infra("update user password", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return infra("update user password", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.Actor, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	if err != nil {
		return infra("create audit log", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
