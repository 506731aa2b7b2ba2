package notification_api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/database/dbtest"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/notification"
)

func TestInboxFlow(t *testing.T) {
	bunDB := dbtest.New(t)
	ctx := context.Background()
	require.NoError(t, notification.Notify(ctx, bunDB, "user-1", "Đặt hàng thành công", "DH-1", models.NotificationOrder, ""))
	require.NoError(t, notification.Notify(ctx, bunDB, "user-1", "Đặt hàng thành công", "DH-2", models.NotificationOrder, ""))
	require.NoError(t, notification.Notify(ctx, bunDB, "user-2", "Đặt hàng thành công", "DH-3", models.NotificationOrder, ""))

	h := NewHandler(notification.NewService(bunDB), logger.Discard())
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.Principal{UserID: "user-1", Role: models.RoleCustomer}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	})
	r.Get("/api/notifications", h.List)
	r.Get("/api/notifications/unread-count", h.UnreadCount)
	r.Post("/api/notifications/{id}/read", h.MarkRead)
	r.Post("/api/notifications/read-all", h.MarkAllRead)

	call := func(method, path string) (int, json.RawMessage) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		return rec.Code, env.Data
	}

	code, data := call(http.MethodGet, "/api/notifications")
	assert.Equal(t, http.StatusOK, code)
	var list []models.Notification
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list, 2)

	var other models.Notification
	require.NoError(t, bunDB.NewSelect().Model(&other).Where("user_id = ?", "user-2").Scan(ctx))
	code, _ = call(http.MethodPost, "/api/notifications/"+other.ID+"/read")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call(http.MethodPost, "/api/notifications/"+list[0].ID+"/read")
	assert.Equal(t, http.StatusOK, code)

	_, data = call(http.MethodGet, "/api/notifications/unread-count")
	assert.JSONEq(t, `{"unread":1}`, string(data))

	_, data = call(http.MethodPost, "/api/notifications/read-all")
	assert.JSONEq(t, `{"updated":1}`, string(data))

	_, data = call(http.MethodGet, "/api/notifications?unread=true")
	var unread []models.Notification
	require.NoError(t, json.Unmarshal(data, &unread))
	assert.Empty(t, unread)
}
