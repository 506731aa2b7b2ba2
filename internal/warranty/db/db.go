package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-storefront/internal/models"
)

var ErrNotFound = errors.New("warranty record not found")

type DB struct {
	Bun *bun.DB
}

// ---------------- UNITS ----------------

func (d *DB) GetUnitByID(ctx context.Context, idb bun.IDB, id string) (*models.WarrantyUnit, error) {
	var u models.WarrantyUnit
	err := idb.NewSelect().Model(&u).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load warranty unit: %w", err)
	}
	return &u, nil
}

func (d *DB) GetUnitByCode(ctx context.Context, idb bun.IDB, code string) (*models.WarrantyUnit, error) {
	var u models.WarrantyUnit
	err := idb.NewSelect().Model(&u).Where("code = ?", code).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load warranty unit: %w", err)
	}
	return &u, nil
}

func (d *DB) GetUnitsByUserID(ctx context.Context, idb bun.IDB, userID string) ([]models.WarrantyUnit, error) {
	var units []models.WarrantyUnit
	err := idb.NewSelect().Model(&units).Where("user_id = ?", userID).OrderExpr("start_date DESC, code ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list warranty units: %w", err)
	}
	return units, nil
}

// GetExpiredActiveUnits → up to limit ACTIVE units whose end_date is before now
func (d *DB) GetExpiredActiveUnits(ctx context.Context, idb bun.IDB, now time.Time, limit int) ([]models.WarrantyUnit, error) {
	var units []models.WarrantyUnit
	err := idb.NewSelect().Model(&units).
		Where("status = ?", models.WarrantyActive).
		Where("end_date < ?", now).
		OrderExpr("end_date ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select expired warranty units: %w", err)
	}
	return units, nil
}

func (d *DB) GetProductName(ctx context.Context, idb bun.IDB, productID string) (string, error) {
	var name string
	err := idb.NewSelect().Model((*models.Product)(nil)).Column("name").Where("id = ?", productID).Limit(1).Scan(ctx, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load product name: %w", err)
	}
	return name, nil
}

// Void moves an ACTIVE unit to VOIDED and closes its dates at now.
func (d *DB) Void(ctx context.Context, idb bun.IDB, u *models.WarrantyUnit, reason string, now time.Time) (bool, error) {
	q := idb.NewUpdate().Model((*models.WarrantyUnit)(nil)).
		Set("status = ?", models.WarrantyVoided).
		Set("void_reason = ?", reason).
		Set("end_date = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", u.ID).
		Where("status = ?", models.WarrantyActive)
	if u.ExchangeUntil != nil && u.ExchangeUntil.After(now) {
		q = q.Set("exchange_until = ?", now)
	}
	return affectedOne(q.Exec(ctx))
}

// CloseExchange ends the exchange window of an ACTIVE unit at now.
func (d *DB) CloseExchange(ctx context.Context, idb bun.IDB, id string, now time.Time) (bool, error) {
	return affectedOne(idb.NewUpdate().Model((*models.WarrantyUnit)(nil)).
		Set("exchange_until = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", models.WarrantyActive).
		Exec(ctx))
}

// Expire moves one unit ACTIVE → EXPIRED. False means another sweep (or an
// admin) got there first.
func (d *DB) Expire(ctx context.Context, idb bun.IDB, id string, now time.Time) (bool, error) {
	return affectedOne(idb.NewUpdate().Model((*models.WarrantyUnit)(nil)).
		Set("status = ?", models.WarrantyExpired).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", models.WarrantyActive).
		Exec(ctx))
}

func affectedOne(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, fmt.Errorf("update warranty unit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update warranty unit: %w", err)
	}
	return n == 1, nil
}

// ---------------- SERVICE TICKETS ----------------

func (d *DB) CreateServiceTicket(ctx context.Context, idb bun.IDB, s *models.WarrantyService) error {
	if _, err := idb.NewInsert().Model(s).Exec(ctx); err != nil {
		return fmt.Errorf("insert warranty service: %w", err)
	}
	return nil
}

func (d *DB) GetServiceTicket(ctx context.Context, idb bun.IDB, id string) (*models.WarrantyService, error) {
	var s models.WarrantyService
	err := idb.NewSelect().Model(&s).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load warranty service: %w", err)
	}
	return &s, nil
}

func (d *DB) UpdateServiceTicket(ctx context.Context, idb bun.IDB, id string, status models.ServiceStatus, note string, now time.Time) error {
	_, err := idb.NewUpdate().Model((*models.WarrantyService)(nil)).
		Set("status = ?", status).
		Set("admin_note = ?", note).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update warranty service: %w", err)
	}
	return nil
}

func (d *DB) GetServiceTicketsByUnit(ctx context.Context, idb bun.IDB, unitID string) ([]models.WarrantyService, error) {
	var rows []models.WarrantyService
	err := idb.NewSelect().Model(&rows).Where("warranty_unit_id = ?", unitID).OrderExpr("created_at DESC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list warranty services: %w", err)
	}
	return rows, nil
}
