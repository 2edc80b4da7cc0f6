package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"icepos/backend/internal/domain"
	"icepos/backend/internal/service"
	"icepos/backend/internal/store/memory"
)

type testAPI struct {
	handler http.Handler
	auth    *AuthManager
	repo    *memory.Store
}

func d2(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	repo := memory.NewSeeded()
	seedUser(t, repo, "staff1", "staffpass", domain.RoleStaff, true)
	seedUser(t, repo, "boss", "bosspass", domain.RoleManager, true)
	seedUser(t, repo, "root", "rootpass", domain.RoleSuperadmin, true)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	svc := service.New(repo, nil, time.Second, log)
	auth := NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, repo)
	api := New(svc, auth, "http://127.0.0.1:3000", time.Second, log)
	return &testAPI{handler: api.Handler(), auth: auth, repo: repo}
}

func (a *testAPI) token(t *testing.T, username string, role domain.Role) string {
	t.Helper()
	token, err := a.auth.sign(username, role, time.Now().Add(time.Hour))
	require.NoError(t, err)
	return token
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func TestLoginEndpoint(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"username": "staff1", "password": "staffpass",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.LoginResponse
	decode(t, rec, &resp)
	require.Equal(t, "STAFF", resp.Role)
	require.NotEmpty(t, resp.AccessToken)

	rec = api.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"username": "staff1", "password": "nope",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthGate(t *testing.T) {
	api := newTestAPI(t)

	// no token
	rec := api.do(t, http.MethodGet, "/api/shift/status", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// staff on a manager endpoint
	staff := api.token(t, "staff1", domain.RoleStaff)
	rec = api.do(t, http.MethodGet, "/api/reports/today", staff, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// manager passes the staff minimum too
	boss := api.token(t, "boss", domain.RoleManager)
	rec = api.do(t, http.MethodGet, "/api/reports/today", boss, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(t, http.MethodGet, "/api/shift/status", boss, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// manager is not enough for user administration
	rec = api.do(t, http.MethodPost, "/api/users", boss, map[string]string{
		"username": "newbie", "password": "secret123", "role": "STAFF",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestShiftAndSaleFlow(t *testing.T) {
	api := newTestAPI(t)
	staff := api.token(t, "staff1", domain.RoleStaff)

	// no shift yet: selling is a 400
	rec := api.do(t, http.MethodPost, "/api/sale", staff, map[string]any{
		"payment_mode": "CASH",
		"items":        []map[string]any{{"sku": "ICE001", "quantity": 1, "unit_price": "45.00"}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/shift/open", staff, map[string]any{"opening_cash": "500.00"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// double open
	rec = api.do(t, http.MethodPost, "/api/shift/open", staff, map[string]any{"opening_cash": "100.00"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/sale", staff, map[string]any{
		"payment_mode": "CASH",
		"items":        []map[string]any{{"sku": "ICE001", "quantity": 2, "unit_price": "45.00"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var saleResp struct {
		Receipt domain.SaleReceipt `json:"receipt"`
	}
	decode(t, rec, &saleResp)
	require.NotEmpty(t, saleResp.Receipt.InvoiceNumber)
	require.True(t, saleResp.Receipt.TotalAmount.Equal(d2("90.00")))

	// oversell is a conflict
	rec = api.do(t, http.MethodPost, "/api/sale", staff, map[string]any{
		"payment_mode": "CASH",
		"items":        []map[string]any{{"sku": "ICE001", "quantity": 100000, "unit_price": "45.00"}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/shift/live", staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var live domain.LiveShiftStatus
	decode(t, rec, &live)
	require.True(t, live.Open)
	require.True(t, live.Shift.ExpectedCash.Equal(d2("590.00")))

	rec = api.do(t, http.MethodPost, "/api/shift/close", staff, map[string]any{"closing_cash": "590.00"})
	require.Equal(t, http.StatusOK, rec.Code)
	var closeResp struct {
		Summary domain.ShiftCloseSummary `json:"summary"`
	}
	decode(t, rec, &closeResp)
	require.True(t, closeResp.Summary.Difference.IsZero())

	// closing again: no open shift
	rec = api.do(t, http.MethodPost, "/api/shift/close", staff, map[string]any{"closing_cash": "0"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkPurchaseEndpoint(t *testing.T) {
	api := newTestAPI(t)
	staff := api.token(t, "staff1", domain.RoleStaff)
	boss := api.token(t, "boss", domain.RoleManager)

	body := map[string]any{
		"note": "truck",
		"rows": []map[string]any{
			{"sku": "ICE001", "quantity": 10},
			{"sku": "NOPE", "quantity": 5},
		},
	}

	rec := api.do(t, http.MethodPost, "/api/purchase/bulk", staff, body)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/purchase/bulk", boss, body)
	require.Equal(t, http.StatusOK, rec.Code)
	var result domain.BulkPurchaseResult
	decode(t, rec, &result)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Failed)
}

func TestLastClosedShiftEndpoint(t *testing.T) {
	api := newTestAPI(t)
	staff := api.token(t, "staff1", domain.RoleStaff)
	boss := api.token(t, "boss", domain.RoleManager)

	rec := api.do(t, http.MethodGet, "/api/reports/last-closed", staff, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/reports/last-closed", boss, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var last domain.LastClosedShift
	decode(t, rec, &last)
	require.False(t, last.Found)

	rec = api.do(t, http.MethodPost, "/api/shift/open", boss, map[string]any{"opening_cash": "200.00"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = api.do(t, http.MethodPost, "/api/shift/close", boss, map[string]any{"closing_cash": "200.00"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/reports/last-closed", boss, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &last)
	require.True(t, last.Found)
	require.True(t, last.Shift.ClosingCash.Equal(d2("200.00")))
	require.Equal(t, domain.ShiftStatusClosed, last.Shift.Status)
}

func TestUserAdministrationEndpoints(t *testing.T) {
	api := newTestAPI(t)
	owner := api.token(t, "root", domain.RoleSuperadmin)

	rec := api.do(t, http.MethodPost, "/api/users", owner, map[string]string{
		"username": "newbie", "password": "secret123", "role": "STAFF",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/users", owner, map[string]string{
		"username": "newbie", "password": "secret123", "role": "STAFF",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/users/reset-password", owner, map[string]string{
		"username": "newbie", "password": "fresh9pass",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/login", "", map[string]string{
		"username": "newbie", "password": "fresh9pass",
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMalformedJSONIsBadRequest(t *testing.T) {
	api := newTestAPI(t)
	staff := api.token(t, "staff1", domain.RoleStaff)

	req := httptest.NewRequest(http.MethodPost, "/api/shift/open", bytes.NewReader([]byte("{nope")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+staff)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthIsPublic(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
