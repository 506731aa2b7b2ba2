package warranty

import (
	"context"
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
	"ms-storefront/internal/utils"
	"ms-storefront/internal/warranty/db"
)

const (
	TitleTerminated     = "Bảo hành bị chấm dứt"
	TitleExchangeVoided = "Hết quyền đổi mới"
	TitleExpired        = "Bảo hành đã hết hạn"
	TitleServiceCreated = "Đã tiếp nhận yêu cầu bảo hành"
	TitleServiceUpdated = "Cập nhật yêu cầu bảo hành"
)

var serviceTransitions = map[models.ServiceStatus][]models.ServiceStatus{
	models.ServicePending:    {models.ServiceReceived, models.ServiceRejected},
	models.ServiceReceived:   {models.ServiceInProgress, models.ServiceRejected},
	models.ServiceInProgress: {models.ServiceCompleted, models.ServiceRejected},
}

type Service struct {
	DB        *db.DB
	Kafka     kafka.Publisher
	Topics    config.TopicConfig
	BatchSize int
	Logger    *logger.Logger
	Now       func() time.Time
}

func NewService(d *db.DB, publisher kafka.Publisher, topics config.TopicConfig, cfg config.WarrantyConfig, log *logger.Logger) *Service {
	batch := cfg.SweepBatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Service{
		DB:        d,
		Kafka:     publisher,
		Topics:    topics,
		BatchSize: batch,
		Logger:    log,
		Now:       time.Now,
	}
}

func (s *Service) loadUnit(ctx context.Context, idb bun.IDB, id string) (*models.WarrantyUnit, error) {
	u, err := s.DB.GetUnitByID(ctx, idb, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("warranty unit not found")
	}
	return u, err
}

func requireStaff(p auth.Principal) error {
	if !p.Authenticated() {
		return apperr.Unauthorized("login required")
	}
	if !p.Staff() {
		return apperr.Forbidden("only admin or technician accounts may change warranties")
	}
	return nil
}

func (s *Service) publish(ctx context.Context, topic, eventType string, u *models.WarrantyUnit) {
	err := s.Kafka.Publish(ctx, topic, kafka.Event{
		Type:       eventType,
		EntityID:   u.ID,
		OccurredAt: s.Now().UTC(),
		Data:       u,
	})
	if err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Failed to publish %s for unit %s: %v", eventType, u.ID, err))
	}
}

// Terminate voids an active warranty. The unit's end date becomes now, its
// owner is notified and the action is logged, all in one transaction.
func (s *Service) Terminate(ctx context.Context, p auth.Principal, id, reason string) (*models.WarrantyUnit, error) {
	if err := requireStaff(p); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("a reason is required")
	}
	now := s.Now().UTC()

	var unit *models.WarrantyUnit
	err := s.DB.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		u, err := s.loadUnit(ctx, tx, id)
		if err != nil {
			return err
		}
		if u.Status != models.WarrantyActive {
			return apperr.Business("WARRANTY_NOT_ACTIVE", fmt.Sprintf("warranty is %s", u.Status))
		}
		prevEnd := u.EndDate

		ok, err := s.DB.Void(ctx, tx, u, reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("WARRANTY_CHANGED", "warranty changed concurrently, reload and retry")
		}
		u.Status = models.WarrantyVoided
		u.VoidReason = reason
		u.EndDate = now
		if u.ExchangeUntil != nil && u.ExchangeUntil.After(now) {
			u.ExchangeUntil = &now
		}
		u.UpdatedAt = now
		unit = u

		if err := eventlog.Append(ctx, tx, eventlog.Entry{
			ActorID:    p.UserID,
			Action:     eventlog.ActionWarrantyTerminated,
			EntityType: eventlog.EntityWarrantyUnit,
			EntityID:   u.ID,
			Reason:     reason,
			Metadata: map[string]any{
				"code":             u.Code,
				"role":             string(p.Role),
				"previous_end":     prevEnd.Format(time.RFC3339),
				"previous_status":  string(models.WarrantyActive),
				"order_id":         u.OrderID,
				"terminated_until": now.Format(time.RFC3339),
			},
		}); err != nil {
			return err
		}

		return notification.Notify(ctx, tx, u.UserID, TitleTerminated,
			fmt.Sprintf("Bảo hành %s đã bị chấm dứt. Lý do: %s", u.Code, reason),
			models.NotificationWarranty, "/warranty/"+u.Code)
	})
	if err != nil {
		return nil, err
	}

	metrics.WarrantyTransitionsTotal.WithLabelValues("terminate").Inc()
	s.Logger.LogWarranty("TERMINATE", unit.ID, fmt.Sprintf("by %s: %s", p.UserID, reason))
	s.publish(ctx, s.Topics.WarrantyVoided, "warranty.terminated", unit)
	return unit, nil
}

// VoidExchange ends the exchange window early. The unit stays ACTIVE and
// drops to REPAIR, or EXPIRED if its end date has also passed.
func (s *Service) VoidExchange(ctx context.Context, p auth.Principal, id, reason string) (*models.WarrantyUnit, error) {
	if err := requireStaff(p); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("a reason is required")
	}
	now := s.Now().UTC()

	var unit *models.WarrantyUnit
	err := s.DB.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		u, err := s.loadUnit(ctx, tx, id)
		if err != nil {
			return err
		}
		if u.Status != models.WarrantyActive {
			return apperr.Business("WARRANTY_NOT_ACTIVE", fmt.Sprintf("warranty is %s", u.Status))
		}
		if PhaseAt(u, now) != models.PhaseExchange {
			return apperr.Business("NOT_IN_EXCHANGE_PERIOD", "warranty is not in its exchange period")
		}
		prevUntil := *u.ExchangeUntil

		ok, err := s.DB.CloseExchange(ctx, tx, u.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("WARRANTY_CHANGED", "warranty changed concurrently, reload and retry")
		}
		u.ExchangeUntil = &now
		u.UpdatedAt = now
		unit = u

		if err := eventlog.Append(ctx, tx, eventlog.Entry{
			ActorID:    p.UserID,
			Action:     eventlog.ActionWarrantyExchangeVoid,
			EntityType: eventlog.EntityWarrantyUnit,
			EntityID:   u.ID,
			Reason:     reason,
			Metadata: map[string]any{
				"code":                    u.Code,
				"role":                    string(p.Role),
				"previous_exchange_until": prevUntil.Format(time.RFC3339),
			},
		}); err != nil {
			return err
		}

		return notification.Notify(ctx, tx, u.UserID, TitleExchangeVoided,
			fmt.Sprintf("Quyền đổi mới của bảo hành %s đã kết thúc. Lý do: %s", u.Code, reason),
			models.NotificationWarranty, "/warranty/"+u.Code)
	})
	if err != nil {
		return nil, err
	}

	metrics.WarrantyTransitionsTotal.WithLabelValues("void_exchange").Inc()
	s.Logger.LogWarranty("VOID_EXCHANGE", unit.ID, fmt.Sprintf("by %s: %s", p.UserID, reason))
	s.publish(ctx, s.Topics.WarrantyVoided, "warranty.exchange_voided", unit)
	return unit, nil
}

type SweepResult struct {
	Selected int `json:"selected"`
	Expired  int `json:"expired"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// SweepExpired expires up to BatchSize overdue units. Each unit gets its
// own transaction so one failure does not hold back the others, and the
// conditional update makes concurrent or repeated sweeps harmless.
func (s *Service) SweepExpired(ctx context.Context) (SweepResult, error) {
	now := s.Now().UTC()
	var res SweepResult

	units, err := s.DB.GetExpiredActiveUnits(ctx, s.DB.Bun, now, s.BatchSize)
	if err != nil {
		return res, err
	}
	res.Selected = len(units)

	for i := range units {
		u := &units[i]
		expired, err := s.expireOne(ctx, u, now)
		switch {
		case err != nil:
			res.Failed++
			metrics.SweepUnitsTotal.WithLabelValues("failed").Inc()
			s.Logger.Error("CRON", fmt.Sprintf("Failed to expire warranty %s: %v", u.Code, err))
		case expired:
			res.Expired++
			metrics.SweepUnitsTotal.WithLabelValues("expired").Inc()
			u.Status = models.WarrantyExpired
			s.publish(ctx, s.Topics.WarrantyExpired, "warranty.expired", u)
		default:
			res.Skipped++
			metrics.SweepUnitsTotal.WithLabelValues("skipped").Inc()
		}
	}

	s.Logger.Info("CRON", fmt.Sprintf("Warranty sweep: selected=%d expired=%d skipped=%d failed=%d",
		res.Selected, res.Expired, res.Skipped, res.Failed))
	return res, nil
}

func (s *Service) expireOne(ctx context.Context, u *models.WarrantyUnit, now time.Time) (bool, error) {
	expired := false
	err := s.DB.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ok, err := s.DB.Expire(ctx, tx, u.ID, now)
		if err != nil || !ok {
			return err
		}
		expired = true

		if err := eventlog.Append(ctx, tx, eventlog.Entry{
			ActorID:    models.ActorSystem,
			Action:     eventlog.ActionWarrantyExpired,
			EntityType: eventlog.EntityWarrantyUnit,
			EntityID:   u.ID,
			Metadata: map[string]any{
				"code":     u.Code,
				"end_date": u.EndDate.Format(time.RFC3339),
			},
		}); err != nil {
			return err
		}

		return notification.Notify(ctx, tx, u.UserID, TitleExpired,
			fmt.Sprintf("Bảo hành %s đã hết hạn vào %s.", u.Code, u.EndDate.Format("02/01/2006")),
			models.NotificationWarranty, "/warranty/"+u.Code)
	})
	if err != nil {
		return false, err
	}
	return expired, nil
}

// Check is the public lookup by warranty code.
func (s *Service) Check(ctx context.Context, code string) (*models.WarrantyCheck, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperr.Validation("code is required")
	}
	u, err := s.DB.GetUnitByCode(ctx, s.DB.Bun, code)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("warranty code not found")
	}
	if err != nil {
		return nil, err
	}
	name, err := s.DB.GetProductName(ctx, s.DB.Bun, u.ProductID)
	if err != nil {
		return nil, err
	}
	tickets, err := s.DB.GetServiceTicketsByUnit(ctx, s.DB.Bun, u.ID)
	if err != nil {
		return nil, err
	}
	now := s.Now().UTC()
	phase := PhaseAt(u, now)
	if u.Status != models.WarrantyActive {
		phase = models.PhaseExpired
	}
	return &models.WarrantyCheck{
		Unit:           *u,
		ProductName:    name,
		Phase:          phase,
		DaysRemaining:  DaysRemaining(u, now),
		ServiceTickets: tickets,
	}, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.WarrantyUnit, error) {
	return s.DB.GetUnitsByUserID(ctx, s.DB.Bun, userID)
}

type ServiceTicketRequest struct {
	Code             string `json:"code" validate:"required,max=32"`
	IssueDescription string `json:"issue_description" validate:"required,min=10,max=2000"`
}

// CreateServiceTicket opens a repair request. Units still in their exchange
// window are sent to the replacement flow instead.
func (s *Service) CreateServiceTicket(ctx context.Context, p auth.Principal, req ServiceTicketRequest) (*models.WarrantyService, error) {
	if !p.Authenticated() {
		return nil, apperr.Unauthorized("login required")
	}
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.IssueDescription = strings.TrimSpace(req.IssueDescription)
	if err := utils.Validate(req); err != nil {
		return nil, err
	}
	now := s.Now().UTC()

	var ticket *models.WarrantyService
	err := s.DB.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		u, err := s.DB.GetUnitByCode(ctx, tx, req.Code)
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound("warranty code not found")
		}
		if err != nil {
			return err
		}
		if u.Status != models.WarrantyActive {
			return apperr.Business("WARRANTY_NOT_ACTIVE", fmt.Sprintf("warranty is %s", u.Status))
		}
		switch PhaseAt(u, now) {
		case models.PhaseExchange:
			return apperr.Business("IN_EXCHANGE_PERIOD", "this product is still within its exchange period, please submit a replacement request instead")
		case models.PhaseExpired:
			return apperr.Business("WARRANTY_EXPIRED", "warranty has expired")
		}

		ticket = &models.WarrantyService{
			ID:               utils.GenerateID(),
			WarrantyUnitID:   u.ID,
			UserID:           p.UserID,
			IssueDescription: req.IssueDescription,
			Status:           models.ServicePending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.DB.CreateServiceTicket(ctx, tx, ticket); err != nil {
			return err
		}
		if err := eventlog.Append(ctx, tx, eventlog.Entry{
			ActorID:    p.UserID,
			Action:     eventlog.ActionServiceTicketCreated,
			EntityType: eventlog.EntityWarrantyService,
			EntityID:   ticket.ID,
			Metadata:   map[string]any{"code": u.Code, "warranty_unit_id": u.ID},
		}); err != nil {
			return err
		}
		return notification.Notify(ctx, tx, p.UserID, TitleServiceCreated,
			fmt.Sprintf("Yêu cầu sửa chữa cho bảo hành %s đã được tiếp nhận.", u.Code),
			models.NotificationWarranty, "/warranty/"+u.Code)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogWarranty("SERVICE_CREATED", ticket.WarrantyUnitID, fmt.Sprintf("ticket %s by %s", ticket.ID, p.UserID))
	return ticket, nil
}

type ServiceStatusRequest struct {
	Status    models.ServiceStatus `json:"status" validate:"required"`
	AdminNote string               `json:"admin_note" validate:"max=2000"`
}

func (s *Service) UpdateServiceTicketStatus(ctx context.Context, p auth.Principal, id string, req ServiceStatusRequest) (*models.WarrantyService, error) {
	if err := requireStaff(p); err != nil {
		return nil, err
	}
	if err := utils.Validate(req); err != nil {
		return nil, err
	}
	if !req.Status.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("unknown service status %q", req.Status))
	}
	now := s.Now().UTC()

	var ticket *models.WarrantyService
	err := s.DB.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		t, err := s.DB.GetServiceTicket(ctx, tx, id)
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound("service ticket not found")
		}
		if err != nil {
			return err
		}
		allowed := false
		for _, next := range serviceTransitions[t.Status] {
			if next == req.Status {
				allowed = true
			}
		}
		if !allowed {
			return apperr.Business("INVALID_TRANSITION", fmt.Sprintf("cannot move service ticket from %s to %s", t.Status, req.Status))
		}

		from := t.Status
		note := strings.TrimSpace(req.AdminNote)
		if err := s.DB.UpdateServiceTicket(ctx, tx, t.ID, req.Status, note, now); err != nil {
			return err
		}
		t.Status = req.Status
		t.AdminNote = note
		t.UpdatedAt = now
		ticket = t

		if err := eventlog.Append(ctx, tx, eventlog.Entry{
			ActorID:    p.UserID,
			Action:     eventlog.ActionServiceTicketUpdated,
			EntityType: eventlog.EntityWarrantyService,
			EntityID:   t.ID,
			Reason:     note,
			Metadata:   map[string]any{"from": string(from), "to": string(req.Status)},
		}); err != nil {
			return err
		}

		msg := fmt.Sprintf("Yêu cầu bảo hành của bạn chuyển sang trạng thái %s.", req.Status)
		if note != "" {
			msg += " Ghi chú: " + note
		}
		return notification.Notify(ctx, tx, t.UserID, TitleServiceUpdated, msg, models.NotificationWarranty, "")
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogWarranty("SERVICE_UPDATED", ticket.WarrantyUnitID, fmt.Sprintf("ticket %s -> %s", ticket.ID, ticket.Status))
	return ticket, nil
}
