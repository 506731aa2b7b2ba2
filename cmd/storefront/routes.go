package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"

	"ms-storefront/internal/analytics"
	"ms-storefront/internal/analytics/analytics_api"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/auth/auth_api"
	"ms-storefront/internal/config"
	"ms-storefront/internal/coupon"
	"ms-storefront/internal/coupon/coupon_api"
	"ms-storefront/internal/eventlog/eventlog_api"
	"ms-storefront/internal/kafka"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/metrics"
	"ms-storefront/internal/models"
	"ms-storefront/internal/notification"
	"ms-storefront/internal/notification/notification_api"
	"ms-storefront/internal/order"
	orderdb "ms-storefront/internal/order/db"
	"ms-storefront/internal/order/order_api"
	"ms-storefront/internal/returns"
	"ms-storefront/internal/returns/returns_api"
	"ms-storefront/internal/utils"
	"ms-storefront/internal/warranty"
	warrantydb "ms-storefront/internal/warranty/db"
	"ms-storefront/internal/warranty/warranty_api"
)

type deps struct {
	cfg         *config.Config
	db          *bun.DB
	tokens      *auth.Tokens
	revocations auth.Revocations
	publisher   kafka.Publisher
	log         *logger.Logger
}

// accessLog writes one API line per request. Probe endpoints log at debug.
func accessLog(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				log.Debug("API", fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, status))
				return
			}
			log.LogAPI(r.Method, r.URL.Path, fmt.Sprint(status), time.Since(start).String())
		})
	}
}

func newRouter(d deps) http.Handler {
	topics := d.cfg.Kafka.Topics

	authMW := &auth.Middleware{
		Tokens:      d.tokens,
		Revocations: d.revocations,
		CookieName:  d.cfg.Auth.CookieName,
		Logger:      d.log,
	}
	authHandler := &auth_api.Handler{
		Service:      auth.NewService(d.db, d.tokens, d.revocations, d.log),
		Middleware:   authMW,
		CookieSecure: d.cfg.Auth.CookieSecure,
		Logger:       d.log,
	}

	couponService := coupon.NewService(d.db, d.log)
	couponHandler := coupon_api.NewHandler(couponService, d.log)

	orderService := order.NewOrderService(&orderdb.DB{Bun: d.db}, couponService, d.publisher, topics, d.log)
	orderHandler := order_api.NewHandler(orderService, d.log)

	warrantyService := warranty.NewService(&warrantydb.DB{Bun: d.db}, d.publisher, topics, d.cfg.Warranty, d.log)
	warrantyHandler := warranty_api.NewHandler(warrantyService, d.cfg.Warranty.CheckURL, d.cfg.Cron.Secret, d.log)

	returnsHandler := returns_api.NewHandler(returns.NewService(d.db, d.publisher, topics, d.log), d.log)
	notificationHandler := notification_api.NewHandler(notification.NewService(d.db), d.log)
	eventLogHandler := eventlog_api.NewHandler(d.db, d.log)
	analyticsHandler := analytics_api.NewHandler(analytics.NewService(d.db), d.log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(d.log))
	r.Use(metrics.Instrument)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.db.PingContext(r.Context()); err != nil {
			d.log.Error("DATABASE", fmt.Sprintf("Health check failed: %v", err))
			utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("UNHEALTHY", "database unreachable"))
			return
		}
		utils.WriteSuccess(w, http.StatusOK, "ok", nil)
	})
	r.Handle("/metrics", promhttp.Handler())

	// the scheduler authenticates with its own secret, not a session
	r.Post("/api/cron/check-warranty-expiry", warrantyHandler.SweepExpired)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMW.Session)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.With(auth.RequireAuth).Post("/logout", authHandler.Logout)
			r.With(auth.RequireAuth).Get("/me", authHandler.Me)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.PlaceOrder)
			r.With(auth.RequireAuth).Get("/mine", orderHandler.ListMine)
			r.Get("/{id}", orderHandler.GetOrder)
			r.Post("/{id}/cancel", orderHandler.CancelOrder)
		})

		r.Post("/coupons/validate", couponHandler.Validate)

		r.Route("/warranty", func(r chi.Router) {
			r.Get("/check", warrantyHandler.Check)
			r.Get("/{code}/qr", warrantyHandler.QR)
			r.With(auth.RequireAuth).Get("/mine", warrantyHandler.ListMine)
			r.With(auth.RequireAuth).Post("/service/create", warrantyHandler.CreateServiceTicket)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Post("/returns", returnsHandler.Create)
			r.Get("/returns/mine", returnsHandler.ListMine)

			r.Get("/notifications", notificationHandler.List)
			r.Get("/notifications/unread-count", notificationHandler.UnreadCount)
			r.Post("/notifications/read-all", notificationHandler.MarkAllRead)
			r.Post("/notifications/{id}/read", notificationHandler.MarkRead)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleAdmin))
				r.Put("/orders/{id}/status", orderHandler.UpdateStatus)
				r.Get("/coupons", couponHandler.List)
				r.Post("/coupons", couponHandler.Create)
				r.Put("/coupons/{id}/active", couponHandler.SetActive)
				r.Get("/returns", returnsHandler.ListAll)
				r.Post("/returns/{id}/approve", returnsHandler.Approve)
				r.Post("/returns/{id}/reject", returnsHandler.Reject)
				r.Get("/event-logs", eventLogHandler.List)
				r.Get("/analytics/summary", analyticsHandler.Summary)
			})
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleAdmin, models.RoleTech))
				r.Post("/warranty/{id}/terminate", warrantyHandler.Terminate)
				r.Post("/warranty/{id}/void-exchange", warrantyHandler.VoidExchange)
				r.Put("/warranty/services/{id}/status", warrantyHandler.UpdateServiceTicketStatus)
			})
		})
	})

	return r
}
