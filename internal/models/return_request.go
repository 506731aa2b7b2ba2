package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ReturnStatus string

const (
	ReturnPending  ReturnStatus = "PENDING"
	ReturnApproved ReturnStatus = "APPROVED"
	ReturnRejected ReturnStatus = "REJECTED"
)

type ReturnRequest struct {
	bun.BaseModel `bun:"table:return_requests"`

	ID             string       `bun:"id,pk" json:"id"`
	OrderID        string       `bun:"order_id,notnull" json:"order_id"`
	WarrantyUnitID string       `bun:"warranty_unit_id,nullzero" json:"warranty_unit_id,omitempty"`
	UserID         string       `bun:"user_id,notnull" json:"user_id"`
	Reason         string       `bun:"reason,notnull" json:"reason"`
	Status         ReturnStatus `bun:"status,notnull" json:"status"`
	AdminNote      string       `bun:"admin_note,nullzero" json:"admin_note,omitempty"`
	CreatedAt      time.Time    `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time    `bun:"updated_at,notnull" json:"updated_at"`
}
