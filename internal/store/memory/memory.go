package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"icepos/backend/internal/domain"
	"icepos/backend/internal/store"
	"icepos/backend/internal/xid"
)

// Store is the in-memory Repository used in dev mode and by the test
// suites. A single mutex serializes every operation, so the atomic
// primitives (conditional shift insert, compare-and-swap close, guarded
// stock delta) observe the same all-or-nothing semantics as the
// single-statement SQL they mirror.
type Store struct {
	mu              sync.RWMutex
	productsByID    map[string]domain.Product
	shiftsByID      map[string]domain.ShiftSession
	shiftOrder      []string
	openShiftID     string
	salesByID       map[string]domain.Sale
	saleOrder       []string
	ledger          []domain.StockLedgerEntry
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
	invoiceSeq      map[string]int
}

func New() *Store {
	return &Store{
		productsByID:    make(map[string]domain.Product),
		shiftsByID:      make(map[string]domain.ShiftSession),
		salesByID:       make(map[string]domain.Sale),
		ledger:          make([]domain.StockLedgerEntry, 0, 128),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
		invoiceSeq:      make(map[string]int),
	}
}

// seedUsers builds the dev/demo accounts. Credentials come from
// SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; hardcoded defaults are
// used with a warning when unset. Postgres deployments never hit this
// path.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		logrus.Warn("memory store using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     domain.Role
	}{
		{"owner", adminPwd, domain.RoleSuperadmin},
		{"manager", adminPwd, domain.RoleManager},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithError(err).WithField("username", u.username).Error("seed account skipped: password hash failed")
			continue
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	price := func(v string) decimal.Decimal { return decimal.RequireFromString(v) }
	products := []domain.Product{
		{SKU: "ICE001", Name: "Vanilla Scoop", CategoryName: "scoops", UnitPrice: price("45.00"), StockQty: 120, ReorderLevel: 20},
		{SKU: "ICE002", Name: "Chocolate Scoop", CategoryName: "scoops", UnitPrice: price("50.00"), StockQty: 120, ReorderLevel: 20},
		{SKU: "ICE003", Name: "Strawberry Scoop", CategoryName: "scoops", UnitPrice: price("50.00"), StockQty: 90, ReorderLevel: 20},
		{SKU: "ICE004", Name: "Mango Kulfi", CategoryName: "kulfi", UnitPrice: price("60.00"), StockQty: 60, ReorderLevel: 15},
		{SKU: "ICE005", Name: "Malai Kulfi", CategoryName: "kulfi", UnitPrice: price("60.00"), StockQty: 60, ReorderLevel: 15},
		{SKU: "ICE006", Name: "Chocolate Sundae", CategoryName: "sundaes", UnitPrice: price("120.00"), StockQty: 40, ReorderLevel: 10},
		{SKU: "ICE007", Name: "Brownie Sundae", CategoryName: "sundaes", UnitPrice: price("140.00"), StockQty: 40, ReorderLevel: 10},
		{SKU: "ICE008", Name: "Falooda", CategoryName: "specials", UnitPrice: price("110.00"), StockQty: 30, ReorderLevel: 10},
		{SKU: "ICE009", Name: "Waffle Cone", CategoryName: "addons", UnitPrice: price("25.00"), StockQty: 200, ReorderLevel: 50},
		{SKU: "ICE010", Name: "Chocolate Dip Cone", CategoryName: "addons", UnitPrice: price("35.00"), StockQty: 150, ReorderLevel: 30},
		{SKU: "ICE011", Name: "Family Pack Vanilla", CategoryName: "packs", UnitPrice: price("250.00"), StockQty: 25, ReorderLevel: 8},
		{SKU: "ICE012", Name: "Mineral Water", CategoryName: "others", UnitPrice: price("20.00"), StockQty: 80, ReorderLevel: 0},
	}
	for _, p := range products {
		p.ID = xid.New("prd")
		s.productsByID[p.ID] = p
	}
	return s
}

func (s *Store) OpenShift(ctx context.Context, shift domain.ShiftSession) (*domain.ShiftSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openShiftID != "" {
		return nil, store.ErrShiftAlreadyOpen
	}
	if shift.ID == "" {
		shift.ID = xid.New("shf")
	}
	shift.Status = domain.ShiftStatusOpen
	s.shiftsByID[shift.ID] = shift
	s.shiftOrder = append(s.shiftOrder, shift.ID)
	s.openShiftID = shift.ID
	out := shift
	return &out, nil
}

func (s *Store) GetOpenShift(ctx context.Context) (*domain.ShiftSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.openShiftID == "" {
		return nil, store.ErrNoOpenShift
	}
	shift := s.shiftsByID[s.openShiftID]
	return &shift, nil
}

func (s *Store) GetLatestShift(ctx context.Context) (*domain.ShiftSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.shiftOrder) == 0 {
		return nil, store.ErrNotFound
	}
	shift := s.shiftsByID[s.shiftOrder[len(s.shiftOrder)-1]]
	return &shift, nil
}

func (s *Store) CloseShift(ctx context.Context, shiftID string, close domain.ShiftClose) (*domain.ShiftSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shiftsByID[shiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	// Same guard the SQL UPDATE ... WHERE status='OPEN' gives: a racing
	// close that lost must hear about the conflict, never a silent ok.
	if shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrShiftCloseConflict
	}

	closedAt := close.ClosedAt
	shift.Status = domain.ShiftStatusClosed
	shift.ClosedAt = &closedAt
	shift.ClosingCash = close.ClosingCash
	shift.ExpectedCash = close.ExpectedCash
	shift.Difference = close.Difference
	shift.TotalSales = close.TotalSales
	shift.CashSales = close.CashSales
	shift.UPISales = close.UPISales
	s.shiftsByID[shiftID] = shift
	if s.openShiftID == shiftID {
		s.openShiftID = ""
	}
	out := shift
	return &out, nil
}

func (s *Store) ListClosedShifts(ctx context.Context, limit int) ([]domain.ShiftSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	closed := make([]domain.ShiftSession, 0, len(s.shiftOrder))
	for i := len(s.shiftOrder) - 1; i >= 0; i-- {
		shift := s.shiftsByID[s.shiftOrder[i]]
		if shift.Status != domain.ShiftStatusClosed {
			continue
		}
		closed = append(closed, shift)
		if limit > 0 && len(closed) >= limit {
			break
		}
	}
	return closed, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.ErrValidation
	}

	// Guard every decrement before touching anything so a late failure
	// cannot leave a partial write behind.
	for _, it := range sale.Items {
		p, ok := s.productsByID[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", it.ProductID, store.ErrNotFound)
		}
		if p.StockQty < it.Quantity {
			return nil, fmt.Errorf("%s: %w", p.Name, store.ErrInsufficientStock)
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	sale.InvoiceNumber = s.nextInvoiceLocked(sale.CreatedAt)

	for _, it := range sale.Items {
		p := s.productsByID[it.ProductID]
		p.StockQty -= it.Quantity
		s.productsByID[it.ProductID] = p
		s.ledger = append(s.ledger, domain.StockLedgerEntry{
			ID:            xid.New("led"),
			ProductID:     it.ProductID,
			ProductName:   p.Name,
			Type:          domain.LedgerSale,
			QuantityDelta: -it.Quantity,
			ReferenceNote: sale.InvoiceNumber,
			CreatedAt:     sale.CreatedAt,
		})
	}

	s.salesByID[sale.ID] = sale
	s.saleOrder = append(s.saleOrder, sale.ID)
	out := sale
	return &out, nil
}

func (s *Store) nextInvoiceLocked(at time.Time) string {
	day := at.Local().Format("20060102")
	s.invoiceSeq[day]++
	return fmt.Sprintf("INV-%s-%04d", day, s.invoiceSeq[day])
}

func (s *Store) ListSalesForShift(ctx context.Context, shiftID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sales []domain.Sale
	for _, id := range s.saleOrder {
		if sale := s.salesByID[id]; sale.ShiftID == shiftID {
			sales = append(sales, sale)
		}
	}
	return sales, nil
}

func (s *Store) ListSalesBetween(ctx context.Context, from, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sales []domain.Sale
	for _, id := range s.saleOrder {
		sale := s.salesByID[id]
		if !sale.CreatedAt.Before(from) && sale.CreatedAt.Before(to) {
			sales = append(sales, sale)
		}
	}
	return sales, nil
}

func (s *Store) GetLastSale(ctx context.Context) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.saleOrder) == 0 {
		return nil, store.ErrNotFound
	}
	sale := s.salesByID[s.saleOrder[len(s.saleOrder)-1]]
	return &sale, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sku = strings.TrimSpace(sku)
	for _, p := range s.productsByID {
		if p.SKU != "" && p.SKU == sku {
			out := p
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) FindProductByName(ctx context.Context, name string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, store.ErrNotFound
	}
	var matches []domain.Product
	for _, p := range s.productsByID {
		if strings.ToLower(p.Name) == needle {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		return nil, store.ErrNotFound
	}
	// deterministic winner for duplicate names: name ordering, id breaks ties
	slices.SortFunc(matches, func(a, b domain.Product) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	out := matches[0]
	return &out, nil
}

func (s *Store) ApplyStockDelta(ctx context.Context, entry domain.StockLedgerEntry) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.productsByID[entry.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if entry.QuantityDelta < 0 && p.StockQty < -entry.QuantityDelta {
		return nil, store.ErrInsufficientStock
	}
	p.StockQty += entry.QuantityDelta
	s.productsByID[entry.ProductID] = p

	if entry.ID == "" {
		entry.ID = xid.New("led")
	}
	entry.ProductName = p.Name
	s.ledger = append(s.ledger, entry)
	out := p
	return &out, nil
}

func (s *Store) ListStockMovements(ctx context.Context, limit int) ([]domain.StockLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.StockLedgerEntry, 0, len(s.ledger))
	for i := len(s.ledger) - 1; i >= 0; i-- {
		entries = append(entries, s.ledger[i])
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := user
	return &out, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(user.Username))
	if _, exists := s.usersByUsername[key]; exists {
		return store.ErrDuplicate
	}
	user.Username = key
	s.usersByUsername[key] = user
	return nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(username))
	user, ok := s.usersByUsername[key]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = passwordHash
	s.usersByUsername[key] = user
	return nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

// AuditLogs returns a copy of the audit trail, oldest first. Test hook.
func (s *Store) AuditLogs() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.auditLogs)
}

// LedgerEntries returns a copy of the stock ledger, oldest first. Test hook.
func (s *Store) LedgerEntries() []domain.StockLedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.ledger)
}
