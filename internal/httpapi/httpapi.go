package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"icepos/backend/internal/domain"
	"icepos/backend/internal/service"
	"icepos/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	validate      *validator.Validate
	reportTimeout time.Duration
	log           logrus.FieldLogger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, reportTimeout time.Duration, log logrus.FieldLogger) *API {
	if reportTimeout <= 0 {
		reportTimeout = 5 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		validate:      validator.New(),
		reportTimeout: reportTimeout,
		log:           log,
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", a.handleHealth)
	mux.HandleFunc("/api/login", a.handleLogin)

	mux.HandleFunc("/api/shift/open", a.requireRole(domain.RoleStaff, a.handleShiftOpen))
	mux.HandleFunc("/api/shift/close", a.requireRole(domain.RoleStaff, a.handleShiftClose))
	mux.HandleFunc("/api/shift/live", a.requireRole(domain.RoleStaff, a.handleShiftLive))
	mux.HandleFunc("/api/shift/status", a.requireRole(domain.RoleStaff, a.handleShiftStatus))

	mux.HandleFunc("/api/sale", a.requireRole(domain.RoleStaff, a.handleSale))
	mux.HandleFunc("/api/products", a.requireRole(domain.RoleStaff, a.handleProducts))
	mux.HandleFunc("/api/purchase/bulk", a.requireRole(domain.RoleManager, a.handleBulkPurchase))

	mux.HandleFunc("/api/reports/today", a.requireRole(domain.RoleManager, a.handleTodayReport))
	mux.HandleFunc("/api/reports/staff-today", a.requireRole(domain.RoleStaff, a.handleStaffToday))
	mux.HandleFunc("/api/reports/hourly", a.requireRole(domain.RoleStaff, a.handleHourlyReport))
	mux.HandleFunc("/api/reports/low-stock", a.requireRole(domain.RoleStaff, a.handleLowStock))
	mux.HandleFunc("/api/reports/stock-summary", a.requireRole(domain.RoleManager, a.handleStockSummary))
	mux.HandleFunc("/api/reports/stock-movements", a.requireRole(domain.RoleManager, a.handleStockMovements))
	mux.HandleFunc("/api/reports/shift-history", a.requireRole(domain.RoleManager, a.handleShiftHistory))
	mux.HandleFunc("/api/reports/last-closed", a.requireRole(domain.RoleManager, a.handleLastClosedShift))
	mux.HandleFunc("/api/reports/shift-performance", a.requireRole(domain.RoleManager, a.handleShiftPerformance))
	mux.HandleFunc("/api/reports/last-bill", a.requireRole(domain.RoleStaff, a.handleLastBill))

	mux.HandleFunc("/api/users", a.requireRole(domain.RoleSuperadmin, a.handleCreateUser))
	mux.HandleFunc("/api/users/reset-password", a.requireRole(domain.RoleSuperadmin, a.handleResetPassword))

	return a.withMiddleware(mux)
}

// requireRole authenticates the bearer token and gates on the ordered
// role ladder. Staff endpoints accept managers and superadmins too.
func (a *API) requireRole(min domain.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeAuthError(w, unauthenticated("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			var authErr *AuthorizationError
			if !errors.As(err, &authErr) {
				authErr = unauthenticated("invalid token")
			}
			writeAuthError(w, authErr)
			return
		}

		if !actor.Role.MeetsMinimum(min) {
			writeAuthError(w, forbidden("requires "+min.String()+" role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := a.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ShiftOpenRequest
	if err := a.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	shift, err := a.service.OpenShift(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"shift": shift})
}

func (a *API) handleShiftClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ShiftCloseRequest
	if err := a.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	summary, err := a.service.CloseShift(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

func (a *API) handleShiftLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	ctx, cancel := a.reportContext(r)
	defer cancel()
	writeJSON(w, http.StatusOK, a.service.LiveStatus(ctx))
}

func (a *API) handleShiftStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	ctx, cancel := a.reportContext(r)
	defer cancel()
	writeJSON(w, http.StatusOK, a.service.ShiftStatus(ctx))
}

func (a *API) handleSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.SaleRequest
	if err := a.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	receipt, err := a.service.RecordSale(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"receipt": receipt})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleBulkPurchase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.BulkPurchaseRequest
	if err := a.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result := a.service.BulkApplyPurchase(r.Context(), req)
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleTodayReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	ctx, cancel := a.reportContext(r)
	defer cancel()
	writeJSON(w, http.StatusOK, a.service.TodayReport(ctx))
}

func (a *API) handleStaffToday(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	ctx, cancel := a.reportContext(r)
	defer cancel()
	writeJSON(w, http.StatusOK, a.service.StaffToday(ctx))
}

func (a *API) handleHourlyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	ctx, cancel := a.reportContext(r)
	defer cancel()
	writeJSON(w, http.StatusOK, a.service.HourlyReport(ctx))
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	ctx, cancel := a.reportContext(r)
	defer cancel()
	writeJSON(w, http.StatusOK, map[string]any{"items": a.service.LowStockReport(ctx)})
}

func (a *API) handleStockSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	ctx, cancel := a.reportContext(r)
	defer cancel()
	writeJSON(w, http.StatusOK, a.service.StockSummary(ctx))
}

func (a *API) handleStockMovements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	ctx, cancel := a.reportContext(r)
	defer cancel()
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
	writeJSON(w, http.StatusOK, map[string]any{"movements": a.service.StockMovements(ctx, limit)})
}

func (a *API) handleShiftHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	ctx, cancel := a.reportContext(r)
	defer cancel()
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 20, 100)
	writeJSON(w, http.StatusOK, map[string]any{"shifts": a.service.ShiftHistory(ctx, limit)})
}

func (a *API) handleLastClosedShift(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	ctx, cancel := a.reportContext(r)
	defer cancel()
	writeJSON(w, http.StatusOK, a.service.LastClosedShift(ctx))
}

func (a *API) handleShiftPerformance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	ctx, cancel := a.reportContext(r)
	defer cancel()
	writeJSON(w, http.StatusOK, a.service.ShiftPerformance(ctx))
}

func (a *API) handleLastBill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	ctx, cancel := a.reportContext(r)
	defer cancel()
	writeJSON(w, http.StatusOK, a.service.LastBill(ctx))
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.UserCreateRequest
	if err := a.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := a.auth.CreateUser(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"username": user.Username,
		"role":     user.Role.String(),
		"active":   user.Active,
	})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ResetPasswordRequest
	if err := a.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.auth.ResetPassword(r.Context(), req); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// reportContext bounds advisory reads so a slow store cannot stall the
// dashboard; the write paths keep the request's own context.
func (a *API) reportContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), a.reportTimeout)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(startedAt).String(),
		}).Info("request")
	})
}

func (a *API) decodeValid(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return a.validate.Struct(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// writeServiceError maps the error taxonomy onto HTTP statuses. Unknown
// errors land on 500 with a generic body.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	var authErr *AuthorizationError
	switch {
	case errors.As(err, &authErr):
		writeAuthError(w, authErr)
	case errors.Is(err, store.ErrValidation),
		errors.Is(err, store.ErrShiftAlreadyOpen),
		errors.Is(err, store.ErrNoOpenShift):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrShiftCloseConflict),
		errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		a.log.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeAuthError(w http.ResponseWriter, err *AuthorizationError) {
	status := http.StatusUnauthorized
	if err.Denied {
		status = http.StatusForbidden
	}
	writeError(w, status, err)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 4xx bodies carry the message; 5xx bodies stay generic so internals
	// never leak to clients.
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
