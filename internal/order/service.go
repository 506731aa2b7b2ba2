package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-storefront/internal/apperr"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/config"
	"ms-storefront/internal/coupon"
	"ms-storefront/internal/eventlog"
	"ms-storefront/internal/kafka"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/metrics"
	"ms-storefront/internal/models"
	"ms-storefront/internal/notification"
	"ms-storefront/internal/order/db"
	"ms-storefront/internal/utils"
	"ms-storefront/internal/warranty"
)

const minCancelReasonLen = 10

// allowed admin status transitions
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusNew:       {models.OrderStatusConfirmed, models.OrderStatusCancelledByAdmin},
	models.OrderStatusConfirmed: {models.OrderStatusShipping, models.OrderStatusCancelledByAdmin},
	models.OrderStatusShipping:  {models.OrderStatusDelivered},
}

func CanTransition(from, to models.OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type OrderService struct {
	DB      *db.DB
	Coupons *coupon.Service
	Kafka   kafka.Publisher
	Topics  config.TopicConfig
	Logger  *logger.Logger
	Now     func() time.Time
}

func NewOrderService(d *db.DB, coupons *coupon.Service, publisher kafka.Publisher, topics config.TopicConfig, log *logger.Logger) *OrderService {
	return &OrderService{
		DB:      d,
		Coupons: coupons,
		Kafka:   publisher,
		Topics:  topics,
		Logger:  log,
		Now:     time.Now,
	}
}

// aggregateItems sums quantities of repeated products, keeping the order in
// which products first appear in the cart. Each summed quantity must stay
// within 1..MaxLineQuantity.
func aggregateItems(items []models.OrderRequestItem) ([]models.OrderRequestItem, error) {
	idx := make(map[string]int, len(items))
	out := make([]models.OrderRequestItem, 0, len(items))
	for _, it := range items {
		if it.Quantity < 1 || it.Quantity > models.MaxLineQuantity {
			return nil, quantityOutOfRange(it.ProductID)
		}
		id := strings.TrimSpace(it.ProductID)
		if i, ok := idx[id]; ok {
			if out[i].Quantity > models.MaxLineQuantity-it.Quantity {
				return nil, quantityOutOfRange(id)
			}
			out[i].Quantity += it.Quantity
			continue
		}
		idx[id] = len(out)
		out = append(out, models.OrderRequestItem{ProductID: id, Quantity: it.Quantity})
	}
	return out, nil
}

func quantityOutOfRange(productID string) error {
	return apperr.Validation(fmt.Sprintf("quantity for product %s must be between 1 and %d", productID, models.MaxLineQuantity))
}

func insufficientStock(name string) error {
	return apperr.Business("INSUFFICIENT_STOCK", fmt.Sprintf("insufficient stock for %s", name))
}

// PlaceOrder checks stock, prices the cart, applies the coupon, records the
// order with its items and warranty units, and takes the stock, all in one
// transaction. Nothing is written if any step fails.
func (s *OrderService) PlaceOrder(ctx context.Context, p auth.Principal, req models.OrderRequest) (*models.OrderDetails, error) {
	if len(req.Items) == 0 {
		return nil, apperr.Validation("cart is empty")
	}
	if err := utils.Validate(req); err != nil {
		return nil, err
	}
	lines, err := aggregateItems(req.Items)
	if err != nil {
		return nil, err
	}
	now := s.Now().UTC()

	var (
		order    *models.Order
		items    []models.OrderItem
		units    []models.WarrantyUnit
		redeemed bool
	)

	err = s.DB.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ids := make([]string, len(lines))
		for i, l := range lines {
			ids[i] = l.ProductID
		}
		products, err := s.DB.GetProductsByIDs(ctx, tx, ids)
		if err != nil {
			return err
		}

		order = &models.Order{
			ID:              utils.GenerateID(),
			Code:            utils.GenerateOrderCode(now),
			UserID:          p.UserID,
			CustomerName:    strings.TrimSpace(req.CustomerName),
			CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
			CustomerEmail:   strings.TrimSpace(req.CustomerEmail),
			ShippingAddress: strings.TrimSpace(req.ShippingAddress),
			Note:            strings.TrimSpace(req.Note),
			Status:          models.OrderStatusNew,
			DiscountAmount:  decimal.Zero,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		subtotal := decimal.Zero
		items = make([]models.OrderItem, 0, len(lines))
		for _, l := range lines {
			prod, ok := products[l.ProductID]
			if !ok {
				return apperr.NotFound(fmt.Sprintf("product %s not found", l.ProductID))
			}
			if !prod.IsActive {
				return apperr.Business("PRODUCT_INACTIVE", fmt.Sprintf("%s is no longer for sale", prod.Name))
			}
			if l.Quantity > prod.StockQuantity {
				return insufficientStock(prod.Name)
			}
			price := prod.EffectivePrice(now)
			lineTotal := price.Mul(decimal.NewFromInt(int64(l.Quantity)))
			subtotal = subtotal.Add(lineTotal)
			items = append(items, models.OrderItem{
				ID:             utils.GenerateID(),
				OrderID:        order.ID,
				ProductID:      prod.ID,
				ProductName:    prod.Name,
				UnitPrice:      price,
				Quantity:       l.Quantity,
				LineTotal:      lineTotal,
				WarrantyMonths: prod.WarrantyMonths,
				CreatedAt:      now,
			})
		}
		order.Subtotal = subtotal

		var applied *models.Coupon
		if code := strings.TrimSpace(req.CouponCode); code != "" {
			c, res, err := s.Coupons.Validate(ctx, tx, code, subtotal, p.UserID)
			if err != nil {
				return err
			}
			if !res.Valid {
				return res.Rejection.Err()
			}
			applied = c
			order.CouponID = c.ID
			order.CouponCode = c.Code
			order.DiscountAmount = res.Discount
		}
		order.TotalAmount = subtotal.Sub(order.DiscountAmount)

		if err := s.DB.CreateOrder(ctx, tx, order, items); err != nil {
			return err
		}

		for _, it := range items {
			ok, err := s.DB.DecrementStock(ctx, tx, it.ProductID, it.Quantity, now)
			if err != nil {
				return err
			}
			if !ok {
				return insufficientStock(it.ProductName)
			}
		}

		if applied != nil {
			if err := coupon.Redeem(ctx, tx, applied, p.UserID, order.ID, now); err != nil {
				return err
			}
			redeemed = true
		}

		units = nil
		for i := range items {
			it := &items[i]
			units = append(units, warranty.NewUnits(order, it, products[it.ProductID].ExchangeDays, now)...)
		}
		if err := warranty.InsertUnits(ctx, tx, units); err != nil {
			return err
		}

		if err := eventlog.Append(ctx, tx, eventlog.Entry{
			ActorID:    actorOf(p),
			Action:     eventlog.ActionOrderPlaced,
			EntityType: eventlog.EntityOrder,
			EntityID:   order.ID,
			Metadata: map[string]any{
				"code":           order.Code,
				"total":          order.TotalAmount.String(),
				"items":          len(items),
				"coupon":         order.CouponCode,
				"warranty_units": len(units),
			},
		}); err != nil {
			return err
		}

		return notification.Notify(ctx, tx, order.UserID,
			"Đặt hàng thành công",
			fmt.Sprintf("Đơn hàng %s đã được ghi nhận. Tổng tiền: %s", order.Code, order.TotalAmount.StringFixed(0)),
			models.NotificationOrder, "/orders/"+order.ID)
	})
	if err != nil {
		if ae, ok := apperr.As(err); ok && ae.Kind == apperr.KindBusiness {
			metrics.OrderRejectionsTotal.WithLabelValues(ae.Code).Inc()
		} else if !ok {
			metrics.OperationErrorsTotal.WithLabelValues("place_order").Inc()
		}
		return nil, err
	}

	metrics.OrdersPlacedTotal.Inc()
	metrics.WarrantyUnitsIssuedTotal.Add(float64(len(units)))
	if redeemed {
		metrics.CouponRedemptionsTotal.Inc()
	}
	s.Logger.LogOrder("PLACED", order.ID, fmt.Sprintf("code=%s total=%s items=%d units=%d", order.Code, order.TotalAmount, len(items), len(units)))
	s.publish(ctx, s.Topics.OrderCreated, "order.created", order)

	return &models.OrderDetails{Order: *order, Items: items, WarrantyUnits: units}, nil
}

func actorOf(p auth.Principal) string {
	if p.UserID == "" {
		return "guest"
	}
	return p.UserID
}

// publish is best effort: the order is already committed.
func (s *OrderService) publish(ctx context.Context, topic, eventType string, order *models.Order) {
	err := s.Kafka.Publish(ctx, topic, kafka.Event{
		Type:       eventType,
		EntityID:   order.ID,
		OccurredAt: s.Now().UTC(),
		Data:       order,
	})
	if err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Failed to publish %s for order %s: %v", eventType, order.ID, err))
	}
}

// GetOrder → order with items and warranty units
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.OrderDetails, error) {
	idb := s.DB.Bun
	order, err := s.DB.GetOrderByID(ctx, idb, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, err
	}
	items, err := s.DB.GetItemsByOrder(ctx, idb, id)
	if err != nil {
		return nil, err
	}
	units, err := s.DB.GetWarrantyUnitsByOrder(ctx, idb, id)
	if err != nil {
		return nil, err
	}
	return &models.OrderDetails{Order: *order, Items: items, WarrantyUnits: units}, nil
}

func (s *OrderService) ListOrdersForUser(ctx context.Context, userID string) ([]models.Order, error) {
	return s.DB.GetOrdersByUserID(ctx, s.DB.Bun, userID)
}

// CancelOrder is the customer cancellation. Stock goes back on the shelf
// and the order's warranty units are voided.
func (s *OrderService) CancelOrder(ctx context.Context, p auth.Principal, id, reason string) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if len([]rune(reason)) < minCancelReasonLen {
		return nil, apperr.Validation(fmt.Sprintf("cancel reason must be at least %d characters", minCancelReasonLen))
	}
	now := s.Now().UTC()

	var order *models.Order
	err := s.DB.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		order, err = s.DB.GetOrderByID(ctx, tx, id)
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound("order not found")
		}
		if err != nil {
			return err
		}
		if order.UserID != "" && p.Authenticated() && p.UserID != order.UserID && p.Role != models.RoleAdmin {
			return apperr.Forbidden("order belongs to another customer")
		}
		if order.Status.Cancelled() {
			return apperr.Business("ORDER_ALREADY_CANCELLED", "order is already cancelled")
		}
		if !order.Status.CustomerCancellable() {
			return apperr.Business("ORDER_NOT_CANCELLABLE", fmt.Sprintf("order in status %s can no longer be cancelled", order.Status))
		}
		return s.cancelInTx(ctx, tx, p, order, models.OrderStatusCancelledByCustomer, reason, now)
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCancelledTotal.WithLabelValues("customer").Inc()
	s.Logger.LogOrder("CANCELLED", order.ID, "cancelled by customer")
	s.publish(ctx, s.Topics.OrderCancelled, "order.cancelled", order)
	return order, nil
}

func (s *OrderService) cancelInTx(ctx context.Context, tx bun.Tx, p auth.Principal, order *models.Order, to models.OrderStatus, reason string, now time.Time) error {
	from := order.Status
	ok, err := s.DB.TransitionStatus(ctx, tx, order.ID, from, to, reason, now)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict("ORDER_CHANGED", "order status changed concurrently, reload and retry")
	}

	items, err := s.DB.GetItemsByOrder(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	if err := s.DB.RestoreStock(ctx, tx, items, now); err != nil {
		return err
	}
	voided, err := warranty.VoidForOrder(ctx, tx, order.ID, "order cancelled: "+reason, now)
	if err != nil {
		return err
	}

	order.Status = to
	order.CancelReason = reason
	order.UpdatedAt = now

	if err := eventlog.Append(ctx, tx, eventlog.Entry{
		ActorID:    actorOf(p),
		Action:     eventlog.ActionOrderCancelled,
		EntityType: eventlog.EntityOrder,
		EntityID:   order.ID,
		Reason:     reason,
		Metadata: map[string]any{
			"from":                  string(from),
			"to":                    string(to),
			"warranty_units_voided": voided,
		},
	}); err != nil {
		return err
	}

	return notification.Notify(ctx, tx, order.UserID,
		"Đơn hàng đã bị hủy",
		fmt.Sprintf("Đơn hàng %s đã bị hủy. Lý do: %s", order.Code, reason),
		models.NotificationOrder, "/orders/"+order.ID)
}

var statusTitles = map[models.OrderStatus]string{
	models.OrderStatusConfirmed: "Đơn hàng đã được xác nhận",
	models.OrderStatusShipping:  "Đơn hàng đang được giao",
	models.OrderStatusDelivered: "Đơn hàng đã giao thành công",
}

// UpdateStatus is the back-office status change. Cancelling through here
// restores stock the same way a customer cancel does.
func (s *OrderService) UpdateStatus(ctx context.Context, p auth.Principal, id string, to models.OrderStatus, reason string) (*models.Order, error) {
	if p.Role != models.RoleAdmin {
		return nil, apperr.Forbidden("only admins can change order status")
	}
	reason = strings.TrimSpace(reason)
	if to == models.OrderStatusCancelledByAdmin && reason == "" {
		return nil, apperr.Validation("a reason is required to cancel an order")
	}
	now := s.Now().UTC()

	var order *models.Order
	err := s.DB.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		order, err = s.DB.GetOrderByID(ctx, tx, id)
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound("order not found")
		}
		if err != nil {
			return err
		}
		if !CanTransition(order.Status, to) {
			return apperr.Business("INVALID_TRANSITION", fmt.Sprintf("cannot move order from %s to %s", order.Status, to))
		}
		if to == models.OrderStatusCancelledByAdmin {
			return s.cancelInTx(ctx, tx, p, order, to, reason, now)
		}

		from := order.Status
		ok, err := s.DB.TransitionStatus(ctx, tx, order.ID, from, to, "", now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("ORDER_CHANGED", "order status changed concurrently, reload and retry")
		}
		order.Status = to
		order.UpdatedAt = now

		if err := eventlog.Append(ctx, tx, eventlog.Entry{
			ActorID:    p.UserID,
			Action:     eventlog.ActionOrderStatusChanged,
			EntityType: eventlog.EntityOrder,
			EntityID:   order.ID,
			Reason:     reason,
			Metadata:   map[string]any{"from": string(from), "to": string(to)},
		}); err != nil {
			return err
		}
		return notification.Notify(ctx, tx, order.UserID,
			statusTitles[to],
			fmt.Sprintf("Đơn hàng %s chuyển sang trạng thái %s", order.Code, to),
			models.NotificationOrder, "/orders/"+order.ID)
	})
	if err != nil {
		return nil, err
	}

	if to == models.OrderStatusCancelledByAdmin {
		metrics.OrdersCancelledTotal.WithLabelValues("admin").Inc()
		s.publish(ctx, s.Topics.OrderCancelled, "order.cancelled", order)
	} else {
		s.publish(ctx, s.Topics.OrderStatus, "order.status_changed", order)
	}
	s.Logger.LogOrder("STATUS", order.ID, fmt.Sprintf("-> %s by %s", to, p.UserID))
	return order, nil
}
