// Package eventlog records who did what to which entity. Rows are only ever
// appended.
package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-storefront/internal/models"
	"ms-storefront/internal/utils"
)

const (
	ActionOrderPlaced          = "ORDER_PLACED"
	ActionOrderCancelled       = "ORDER_CANCELLED"
	ActionOrderStatusChanged   = "ORDER_STATUS_CHANGED"
	ActionWarrantyTerminated   = "WARRANTY_TERMINATED"
	ActionWarrantyExchangeVoid = "WARRANTY_EXCHANGE_VOIDED"
	ActionWarrantyExpired      = "WARRANTY_EXPIRED"
	ActionServiceTicketCreated = "WARRANTY_SERVICE_CREATED"
	ActionServiceTicketUpdated = "WARRANTY_SERVICE_UPDATED"
	ActionReturnRequested      = "RETURN_REQUESTED"
	ActionReturnApproved       = "RETURN_APPROVED"
	ActionReturnRejected       = "RETURN_REJECTED"
	ActionCouponCreated        = "COUPON_CREATED"
	ActionCouponUpdated        = "COUPON_UPDATED"
)

const (
	EntityOrder           = "ORDER"
	EntityWarrantyUnit    = "WARRANTY_UNIT"
	EntityWarrantyService = "WARRANTY_SERVICE"
	EntityReturnRequest   = "RETURN_REQUEST"
	EntityCoupon          = "COUPON"
)

type Entry struct {
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	Reason     string
	Metadata   map[string]any
}

// Append writes one row through idb, so callers pass their transaction to
// keep the log consistent with the change it describes.
func Append(ctx context.Context, idb bun.IDB, e Entry) error {
	if e.ActorID == "" {
		e.ActorID = models.ActorSystem
	}
	row := &models.EventLog{
		ID:         utils.GenerateID(),
		ActorID:    e.ActorID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Reason:     e.Reason,
		Metadata:   e.Metadata,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := idb.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("append event log %s: %w", e.Action, err)
	}
	return nil
}

type Filter struct {
	EntityType string
	EntityID   string
	Action     string
	Limit      int
	Offset     int
}

// List returns matching rows, newest first.
func List(ctx context.Context, idb bun.IDB, f Filter) ([]models.EventLog, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	var rows []models.EventLog
	q := idb.NewSelect().Model(&rows).OrderExpr("created_at DESC").Limit(f.Limit).Offset(f.Offset)
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list event logs: %w", err)
	}
	return rows, nil
}
