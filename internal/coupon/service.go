package coupon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-storefront/internal/apperr"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/database"
	"ms-storefront/internal/eventlog"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/utils"
)

type Service struct {
	DB     *bun.DB
	Logger *logger.Logger
	Now    func() time.Time
}

func NewService(db *bun.DB, log *logger.Logger) *Service {
	return &Service{DB: db, Logger: log, Now: time.Now}
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Load finds a coupon by code, ignoring case. A missing coupon is (nil, nil).
func Load(ctx context.Context, idb bun.IDB, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := idb.NewSelect().Model(&c).Where("UPPER(code) = ?", NormalizeCode(code)).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load coupon: %w", err)
	}
	return &c, nil
}

func usedBy(ctx context.Context, idb bun.IDB, couponID, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	ok, err := idb.NewSelect().Model((*models.CouponUsage)(nil)).
		Where("coupon_id = ?", couponID).
		Where("user_id = ?", userID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check coupon usage: %w", err)
	}
	return ok, nil
}

// Validate loads the coupon and its usage through idb and evaluates it.
// The coupon is returned even when rejected, if it exists.
func (s *Service) Validate(ctx context.Context, idb bun.IDB, code string, subtotal decimal.Decimal, userID string) (*models.Coupon, Result, error) {
	c, err := Load(ctx, idb, code)
	if err != nil {
		return nil, Result{}, err
	}
	used := false
	if c != nil {
		if used, err = usedBy(ctx, idb, c.ID, userID); err != nil {
			return nil, Result{}, err
		}
	}
	return c, Evaluate(c, subtotal, used, s.Now().UTC()), nil
}

// Redeem counts one use of c for orderID. It must run in the order's
// transaction. The used_count bump is conditional on the usage limit and
// the per-user row is guarded by a unique constraint, so concurrent orders
// cannot overspend the coupon.
func Redeem(ctx context.Context, tx bun.IDB, c *models.Coupon, userID, orderID string, now time.Time) error {
	q := tx.NewUpdate().Model((*models.Coupon)(nil)).
		Set("used_count = used_count + 1").
		Where("id = ?", c.ID)
	if c.UsageLimit != nil {
		q = q.Where("used_count < usage_limit")
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return UsageExhausted.Err()
	}

	if userID == "" {
		return nil
	}
	usage := &models.CouponUsage{
		ID:       utils.GenerateID(),
		CouponID: c.ID,
		UserID:   userID,
		OrderID:  orderID,
		UsedAt:   now,
	}
	if _, err := tx.NewInsert().Model(usage).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err) {
			return AlreadyUsedByUser.Err()
		}
		return fmt.Errorf("insert coupon usage: %w", err)
	}
	return nil
}

type ValidateRequest struct {
	Code     string          `json:"code" validate:"required,max=64"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type CreateRequest struct {
	Code          string              `json:"code" validate:"required,min=3,max=64"`
	DiscountType  models.DiscountType `json:"discount_type" validate:"required,oneof=PERCENTAGE FIXED"`
	DiscountValue decimal.Decimal     `json:"discount_value"`
	MinOrderValue *decimal.Decimal    `json:"min_order_value"`
	MaxDiscount   *decimal.Decimal    `json:"max_discount"`
	ValidFrom     time.Time           `json:"valid_from" validate:"required"`
	ValidUntil    time.Time           `json:"valid_until" validate:"required"`
	UsageLimit    *int                `json:"usage_limit" validate:"omitempty,min=1"`
}

func (s *Service) Create(ctx context.Context, p auth.Principal, req CreateRequest) (*models.Coupon, error) {
	if err := utils.Validate(req); err != nil {
		return nil, err
	}
	if !req.DiscountValue.IsPositive() {
		return nil, apperr.Validation("discount_value must be positive")
	}
	if req.DiscountType == models.DiscountPercentage && req.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return nil, apperr.Validation("percentage discount cannot exceed 100")
	}
	if !req.ValidUntil.After(req.ValidFrom) {
		return nil, apperr.Validation("valid_until must be after valid_from")
	}

	c := &models.Coupon{
		ID:            utils.GenerateID(),
		Code:          NormalizeCode(req.Code),
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MinOrderValue: req.MinOrderValue,
		MaxDiscount:   req.MaxDiscount,
		ValidFrom:     req.ValidFrom.UTC(),
		ValidUntil:    req.ValidUntil.UTC(),
		UsageLimit:    req.UsageLimit,
		IsActive:      true,
		CreatedAt:     s.Now().UTC(),
	}

	err := s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := Load(ctx, tx, c.Code)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict("COUPON_EXISTS", "a coupon with this code already exists")
		}
		if _, err := tx.NewInsert().Model(c).Exec(ctx); err != nil {
			return fmt.Errorf("insert coupon: %w", err)
		}
		return eventlog.Append(ctx, tx, eventlog.Entry{
			ActorID:    p.UserID,
			Action:     eventlog.ActionCouponCreated,
			EntityType: eventlog.EntityCoupon,
			EntityID:   c.ID,
			Metadata:   map[string]any{"code": c.Code},
		})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("COUPON", fmt.Sprintf("Coupon %s created by %s", c.Code, p.UserID))
	return c, nil
}

func (s *Service) List(ctx context.Context) ([]models.Coupon, error) {
	var rows []models.Coupon
	if err := s.DB.NewSelect().Model(&rows).OrderExpr("created_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	return rows, nil
}

// SetActive switches a coupon on or off and records the change.
func (s *Service) SetActive(ctx context.Context, p auth.Principal, id string, active bool) error {
	return s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var c models.Coupon
		err := tx.NewSelect().Model(&c).Where("id = ?", id).Limit(1).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("coupon not found")
		}
		if err != nil {
			return fmt.Errorf("load coupon: %w", err)
		}
		if _, err := tx.NewUpdate().Model((*models.Coupon)(nil)).
			Set("is_active = ?", active).
			Where("id = ?", id).
			Exec(ctx); err != nil {
			return fmt.Errorf("update coupon: %w", err)
		}
		return eventlog.Append(ctx, tx, eventlog.Entry{
			ActorID:    p.UserID,
			Action:     eventlog.ActionCouponUpdated,
			EntityType: eventlog.EntityCoupon,
			EntityID:   id,
			Metadata:   map[string]any{"code": c.Code, "is_active": active},
		})
	})
}
