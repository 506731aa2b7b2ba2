package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-storefront/internal/analytics"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/config"
	"ms-storefront/internal/database/dbtest"
	"ms-storefront/internal/kafka"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

type testApp struct {
	t      *testing.T
	router http.Handler
	db     *bun.DB
}

func newTestApp(t *testing.T) *testApp {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	cfg := config.Load()
	cfg.Cron.Secret = "cron-secret"
	tokens, err := auth.NewTokens("test-secret-that-is-at-least-32-bytes!", time.Hour)
	require.NoError(t, err)

	db := dbtest.New(t)
	return &testApp{
		t:  t,
		db: db,
		router: newRouter(deps{
			cfg:         cfg,
			db:          db,
			tokens:      tokens,
			revocations: &auth.RedisRevocations{Client: rdb},
			publisher:   kafka.Noop{},
			log:         logger.Discard(),
		}),
	}
}

func (a *testApp) call(method, path, token string, body any, headers ...string) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func (a *testApp) staff(email string, role models.Role) {
	a.t.Helper()
	hash, err := auth.HashPassword("staff-password")
	require.NoError(a.t, err)
	_, err = a.db.NewInsert().Model(&models.User{
		ID: "staff-" + string(role), Email: email, FullName: "Staff", PasswordHash: hash,
		Role: role, CreatedAt: time.Now().UTC(),
	}).Exec(context.Background())
	require.NoError(a.t, err)
}

func (a *testApp) login(email, password string) string {
	a.t.Helper()
	code, env := a.call(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(a.t, http.StatusOK, code)
	var sess auth.Session
	require.NoError(a.t, json.Unmarshal(env.Data, &sess))
	return sess.Token
}

func TestPublicEndpoints(t *testing.T) {
	app := newTestApp(t)

	code, _ := app.call(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)

	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_http_request_duration_seconds")
}

func TestRouteGuards(t *testing.T) {
	app := newTestApp(t)
	app.staff("tech@shop.vn", models.RoleTech)
	techToken := app.login("tech@shop.vn", "staff-password")

	code, _ := app.call(http.MethodGet, "/api/orders/mine", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = app.call(http.MethodGet, "/api/admin/event-logs", techToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = app.call(http.MethodGet, "/api/admin/event-logs", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = app.call(http.MethodPost, "/api/cron/check-warranty-expiry", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = app.call(http.MethodPost, "/api/cron/check-warranty-expiry", "", nil, "X-Cron-Secret", "cron-secret")
	assert.Equal(t, http.StatusOK, code)
}

func TestStorefrontFlow(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := app.db.NewInsert().Model(&models.Product{
		ID: "p1", SKU: "LAP-01", Name: "Laptop", Price: decimal.NewFromInt(500000),
		StockQuantity: 10, IsActive: true, WarrantyMonths: 12, ExchangeDays: 7,
		CreatedAt: now, UpdatedAt: now,
	}).Exec(ctx)
	require.NoError(t, err)
	app.staff("admin@shop.vn", models.RoleAdmin)
	adminToken := app.login("admin@shop.vn", "staff-password")

	// admin creates SALE10
	code, env := app.call(http.MethodPost, "/api/admin/coupons", adminToken, map[string]any{
		"code": "SALE10", "discount_type": "PERCENTAGE", "discount_value": "10", "max_discount": "50000",
		"valid_from": now.Add(-time.Hour), "valid_until": now.Add(24 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, code, env.Code)

	// customer registers and buys
	code, env = app.call(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "khach@example.com", "password": "matkhau123", "full_name": "Tran Thi B",
	})
	require.Equal(t, http.StatusCreated, code, env.Code)
	var sess auth.Session
	require.NoError(t, json.Unmarshal(env.Data, &sess))
	customerToken := sess.Token

	code, env = app.call(http.MethodPost, "/api/orders", customerToken, map[string]any{
		"items":          []map[string]any{{"product_id": "p1", "quantity": 2}},
		"customer_name":  "Tran Thi B",
		"customer_phone": "0987654321",
		"coupon_code":    "sale10",
	})
	require.Equal(t, http.StatusCreated, code, env.Code)
	var details models.OrderDetails
	require.NoError(t, json.Unmarshal(env.Data, &details))
	assert.True(t, details.Order.TotalAmount.Equal(decimal.NewFromInt(950000)))
	require.Len(t, details.WarrantyUnits, 2)
	unit := details.WarrantyUnits[0]

	code, _ = app.call(http.MethodGet, "/api/warranty/check?code="+unit.Code, "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = app.call(http.MethodGet, "/api/warranty/mine", customerToken, nil)
	assert.Equal(t, http.StatusOK, code)
	var mine []models.WarrantyUnit
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	assert.Len(t, mine, 2)

	// customer cannot terminate; admin can
	code, _ = app.call(http.MethodPost, "/api/admin/warranty/"+unit.ID+"/terminate", customerToken, map[string]string{"reason": "x"})
	assert.Equal(t, http.StatusForbidden, code)
	code, env = app.call(http.MethodPost, "/api/admin/warranty/"+unit.ID+"/terminate", adminToken, map[string]string{"reason": "máy bị ngấm nước"})
	require.Equal(t, http.StatusOK, code, env.Code)

	code, env = app.call(http.MethodGet, "/api/notifications", customerToken, nil)
	require.Equal(t, http.StatusOK, code)
	var inbox []models.Notification
	require.NoError(t, json.Unmarshal(env.Data, &inbox))
	titles := make([]string, 0, len(inbox))
	for _, n := range inbox {
		titles = append(titles, n.Title)
	}
	assert.ElementsMatch(t, []string{"Đặt hàng thành công", "Bảo hành bị chấm dứt"}, titles)

	code, env = app.call(http.MethodGet, "/api/admin/event-logs?entity_type=WARRANTY_UNIT", adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	var logs []models.EventLog
	require.NoError(t, json.Unmarshal(env.Data, &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "WARRANTY_TERMINATED", logs[0].Action)

	code, env = app.call(http.MethodGet, "/api/admin/analytics/summary", adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	var summary analytics.SalesSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 1, summary.OrdersCount)
	assert.True(t, summary.Revenue.Equal(decimal.NewFromInt(950000)))

	// logout revokes the token
	code, _ = app.call(http.MethodPost, "/api/auth/logout", customerToken, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = app.call(http.MethodGet, "/api/auth/me", customerToken, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}
