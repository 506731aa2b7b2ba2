package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_placed_total",
		Help: "Total number of orders successfully placed.",
	})

	OrdersCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_orders_cancelled_total",
		Help: "Total number of cancelled orders, by who cancelled.",
	},
		[]string{"by"},
	)

	OrderRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_order_rejections_total",
		Help: "Orders refused for business reasons, by error code.",
	},
		[]string{"code"},
	)

	CouponRedemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_coupon_redemptions_total",
		Help: "Total number of coupons applied to placed orders.",
	})

	WarrantyUnitsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_warranty_units_issued_total",
		Help: "Total number of warranty units issued.",
	})

	WarrantyTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_warranty_transitions_total",
		Help: "Warranty state changes, by action.",
	},
		[]string{"action"},
	)

	SweepUnitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_warranty_sweep_units_total",
		Help: "Units handled by the expiry sweep, by outcome.",
	},
		[]string{"outcome"},
	)

	ReturnRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_return_requests_total",
		Help: "Return requests, by resulting status.",
	},
		[]string{"status"},
	)

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_http_request_duration_seconds",
		Help:    "HTTP request latency, by route pattern and status.",
		Buckets: prometheus.DefBuckets,
	},
		[]string{"method", "route", "status"},
	)
)

// Instrument records request latency against the matched chi route pattern,
// so path parameters do not blow up label cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
