package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-storefront/internal/apperr"
	"ms-storefront/internal/models"
	"ms-storefront/internal/utils"
)

// Notify inserts one unread notification through idb. Guests have no
// inbox, so an empty userID is a no-op.
func Notify(ctx context.Context, idb bun.IDB, userID, title, message, kind, link string) error {
	if userID == "" {
		return nil
	}
	n := &models.Notification{
		ID:        utils.GenerateID(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      kind,
		Link:      link,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := idb.NewInsert().Model(n).Exec(ctx); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

type Service struct {
	DB *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{DB: db}
}

func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var rows []models.Notification
	q := s.DB.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		OrderExpr("created_at DESC").
		Limit(limit)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return rows, nil
}

// MarkRead only touches notifications owned by userID.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	var n models.Notification
	err := s.DB.NewSelect().Model(&n).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("notification not found")
	}
	if err != nil {
		return fmt.Errorf("load notification: %w", err)
	}
	if n.UserID != userID {
		return apperr.NotFound("notification not found")
	}
	if n.IsRead {
		return nil
	}
	_, err = s.DB.NewUpdate().Model((*models.Notification)(nil)).
		Set("is_read = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.DB.NewUpdate().Model((*models.Notification)(nil)).
		Set("is_read = ?", true).
		Where("user_id = ?", userID).
		Where("is_read = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := s.DB.NewSelect().Model((*models.Notification)(nil)).
		Where("user_id = ?", userID).
		Where("is_read = ?", false).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}
