// Package returns handles customer replacement requests for delivered
// orders and their admin resolution.
package returns

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"ms-storefront/internal/apperr"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/config"
	"ms-storefront/internal/eventlog"
	"ms-storefront/internal/kafka"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/metrics"
	"ms-storefront/internal/models"
	"ms-storefront/internal/notification"
	orderdb "ms-storefront/internal/order/db"
	"ms-storefront/internal/utils"
	"ms-storefront/internal/warranty"
	warrantydb "ms-storefront/internal/warranty/db"
)

const (
	TitleApproved = "Yêu cầu đổi trả đã được chấp nhận"
	TitleRejected = "Yêu cầu đổi trả bị từ chối"
)

type Service struct {
	DB       *bun.DB
	Orders   *orderdb.DB
	Warranty *warrantydb.DB
	Kafka    kafka.Publisher
	Topics   config.TopicConfig
	Logger   *logger.Logger
	Now      func() time.Time
}

func NewService(db *bun.DB, publisher kafka.Publisher, topics config.TopicConfig, log *logger.Logger) *Service {
	return &Service{
		DB:       db,
		Orders:   &orderdb.DB{Bun: db},
		Warranty: &warrantydb.DB{Bun: db},
		Kafka:    publisher,
		Topics:   topics,
		Logger:   log,
		Now:      time.Now,
	}
}

type CreateRequest struct {
	OrderID      string `json:"order_id" validate:"required"`
	WarrantyCode string `json:"warranty_code" validate:"max=32"`
	Reason       string `json:"reason" validate:"required,min=10,max=2000"`
}

// Create files a return against a delivered order the caller owns. When a
// warranty code is given the unit must belong to that order and still be
// inside its exchange window.
func (s *Service) Create(ctx context.Context, p auth.Principal, req CreateRequest) (*models.ReturnRequest, error) {
	if !p.Authenticated() {
		return nil, apperr.Unauthorized("login required")
	}
	req.Reason = strings.TrimSpace(req.Reason)
	req.WarrantyCode = strings.ToUpper(strings.TrimSpace(req.WarrantyCode))
	if err := utils.Validate(req); err != nil {
		return nil, err
	}
	now := s.Now().UTC()

	var rr *models.ReturnRequest
	err := s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		o, err := s.Orders.GetOrderByID(ctx, tx, req.OrderID)
		if errors.Is(err, orderdb.ErrNotFound) {
			return apperr.NotFound("order not found")
		}
		if err != nil {
			return err
		}
		if o.UserID != p.UserID {
			return apperr.Forbidden("order belongs to another account")
		}
		if o.Status != models.OrderStatusDelivered {
			return apperr.Business("ORDER_NOT_DELIVERED", "only delivered orders can be returned")
		}

		unitID := ""
		if req.WarrantyCode != "" {
			u, err := s.Warranty.GetUnitByCode(ctx, tx, req.WarrantyCode)
			if errors.Is(err, warrantydb.ErrNotFound) {
				return apperr.NotFound("warranty code not found")
			}
			if err != nil {
				return err
			}
			if u.OrderID != o.ID {
				return apperr.Business("WARRANTY_NOT_IN_ORDER", "warranty code does not belong to this order")
			}
			if u.Status != models.WarrantyActive || warranty.PhaseAt(u, now) != models.PhaseExchange {
				return apperr.Business("NOT_IN_EXCHANGE_PERIOD", "exchange period has ended for this product")
			}
			unitID = u.ID
		}

		pending, err := tx.NewSelect().Model((*models.ReturnRequest)(nil)).
			Where("order_id = ?", o.ID).
			Where("COALESCE(warranty_unit_id, '') = ?", unitID).
			Where("status = ?", models.ReturnPending).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("check pending returns: %w", err)
		}
		if pending {
			return apperr.Conflict("RETURN_PENDING", "a return request for this item is already pending")
		}

		rr = &models.ReturnRequest{
			ID:             utils.GenerateID(),
			OrderID:        o.ID,
			WarrantyUnitID: unitID,
			UserID:         p.UserID,
			Reason:         req.Reason,
			Status:         models.ReturnPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if _, err := tx.NewInsert().Model(rr).Exec(ctx); err != nil {
			return fmt.Errorf("insert return request: %w", err)
		}

		return eventlog.Append(ctx, tx, eventlog.Entry{
			ActorID:    p.UserID,
			Action:     eventlog.ActionReturnRequested,
			EntityType: eventlog.EntityReturnRequest,
			EntityID:   rr.ID,
			Reason:     req.Reason,
			Metadata:   map[string]any{"order_id": o.ID, "order_code": o.Code, "warranty_code": req.WarrantyCode},
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.ReturnRequestsTotal.WithLabelValues(string(models.ReturnPending)).Inc()
	s.Logger.Info("RETURN", fmt.Sprintf("Return %s requested for order %s by %s", rr.ID, rr.OrderID, p.UserID))
	return rr, nil
}

func (s *Service) Approve(ctx context.Context, p auth.Principal, id, note string) (*models.ReturnRequest, error) {
	return s.resolve(ctx, p, id, models.ReturnApproved, strings.TrimSpace(note))
}

// Reject requires a note; the customer sees it in their notification.
func (s *Service) Reject(ctx context.Context, p auth.Principal, id, note string) (*models.ReturnRequest, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, apperr.Validation("a note is required when rejecting")
	}
	return s.resolve(ctx, p, id, models.ReturnRejected, note)
}

func (s *Service) resolve(ctx context.Context, p auth.Principal, id string, to models.ReturnStatus, note string) (*models.ReturnRequest, error) {
	if !p.Is(models.RoleAdmin) {
		return nil, apperr.Forbidden("admin only")
	}
	now := s.Now().UTC()

	var rr models.ReturnRequest
	err := s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().Model(&rr).Where("id = ?", id).Limit(1).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("return request not found")
		}
		if err != nil {
			return fmt.Errorf("load return request: %w", err)
		}
		if rr.Status != models.ReturnPending {
			return apperr.Business("RETURN_ALREADY_RESOLVED", fmt.Sprintf("return request is already %s", rr.Status))
		}

		res, err := tx.NewUpdate().Model((*models.ReturnRequest)(nil)).
			Set("status = ?", to).
			Set("admin_note = ?", note).
			Set("updated_at = ?", now).
			Where("id = ?", id).
			Where("status = ?", models.ReturnPending).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update return request: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return apperr.Conflict("RETURN_CHANGED", "return request changed concurrently, reload and retry")
		}
		rr.Status = to
		rr.AdminNote = note
		rr.UpdatedAt = now

		action, title := eventlog.ActionReturnApproved, TitleApproved
		msg := "Yêu cầu đổi trả của bạn đã được chấp nhận."
		if to == models.ReturnRejected {
			action, title = eventlog.ActionReturnRejected, TitleRejected
			msg = "Yêu cầu đổi trả của bạn bị từ chối."
		}
		if note != "" {
			msg += " Ghi chú: " + note
		}

		if err := eventlog.Append(ctx, tx, eventlog.Entry{
			ActorID:    p.UserID,
			Action:     action,
			EntityType: eventlog.EntityReturnRequest,
			EntityID:   rr.ID,
			Reason:     note,
			Metadata:   map[string]any{"order_id": rr.OrderID},
		}); err != nil {
			return err
		}
		return notification.Notify(ctx, tx, rr.UserID, title, msg, models.NotificationReturn, "/orders/"+rr.OrderID)
	})
	if err != nil {
		return nil, err
	}

	metrics.ReturnRequestsTotal.WithLabelValues(string(to)).Inc()
	s.Logger.Info("RETURN", fmt.Sprintf("Return %s %s by %s", rr.ID, to, p.UserID))
	if err := s.Kafka.Publish(ctx, s.Topics.ReturnResolved, kafka.Event{
		Type:       "return." + strings.ToLower(string(to)),
		EntityID:   rr.ID,
		OccurredAt: now,
		Data:       rr,
	}); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Failed to publish return %s: %v", rr.ID, err))
	}
	return &rr, nil
}

type Filter struct {
	UserID string
	Status models.ReturnStatus
	Limit  int
	Offset int
}

func (s *Service) List(ctx context.Context, f Filter) ([]models.ReturnRequest, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	var rows []models.ReturnRequest
	q := s.DB.NewSelect().Model(&rows).
		OrderExpr("created_at DESC").
		Limit(f.Limit).
		Offset(f.Offset)
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list return requests: %w", err)
	}
	return rows, nil
}
