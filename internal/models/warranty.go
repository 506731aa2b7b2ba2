package models

import (
	"time"

	"github.com/uptrace/bun"
)

type WarrantyStatus string

const (
	WarrantyActive  WarrantyStatus = "ACTIVE"
	WarrantyExpired WarrantyStatus = "EXPIRED"
	WarrantyVoided  WarrantyStatus = "VOIDED"
)

type WarrantyPhase string

const (
	PhaseExchange WarrantyPhase = "EXCHANGE"
	PhaseRepair   WarrantyPhase = "REPAIR"
	PhaseExpired  WarrantyPhase = "EXPIRED"
)

type WarrantyUnit struct {
	bun.BaseModel `bun:"table:warranty_units"`

	ID            string         `bun:"id,pk" json:"id"`
	Code          string         `bun:"code,unique,notnull" json:"code"`
	OrderID       string         `bun:"order_id,notnull" json:"order_id"`
	OrderItemID   string         `bun:"order_item_id,notnull" json:"order_item_id"`
	ProductID     string         `bun:"product_id,notnull" json:"product_id"`
	UserID        string         `bun:"user_id,nullzero" json:"user_id,omitempty"`
	StartDate     time.Time      `bun:"start_date,notnull" json:"start_date"`
	EndDate       time.Time      `bun:"end_date,notnull" json:"end_date"`
	ExchangeUntil *time.Time     `bun:"exchange_until,nullzero" json:"exchange_until,omitempty"`
	Status        WarrantyStatus `bun:"status,notnull" json:"status"`
	VoidReason    string         `bun:"void_reason,nullzero" json:"void_reason,omitempty"`
	CreatedAt     time.Time      `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time      `bun:"updated_at,notnull" json:"updated_at"`
}

type ServiceStatus string

const (
	ServicePending    ServiceStatus = "PENDING"
	ServiceReceived   ServiceStatus = "RECEIVED"
	ServiceInProgress ServiceStatus = "IN_PROGRESS"
	ServiceCompleted  ServiceStatus = "COMPLETED"
	ServiceRejected   ServiceStatus = "REJECTED"
)

func (s ServiceStatus) Valid() bool {
	switch s {
	case ServicePending, ServiceReceived, ServiceInProgress, ServiceCompleted, ServiceRejected:
		return true
	}
	return false
}

// WarrantyService is a repair ticket opened against a warranty unit.
type WarrantyService struct {
	bun.BaseModel `bun:"table:warranty_services"`

	ID               string        `bun:"id,pk" json:"id"`
	WarrantyUnitID   string        `bun:"warranty_unit_id,notnull" json:"warranty_unit_id"`
	UserID           string        `bun:"user_id,notnull" json:"user_id"`
	IssueDescription string        `bun:"issue_description,notnull" json:"issue_description"`
	Status           ServiceStatus `bun:"status,notnull" json:"status"`
	AdminNote        string        `bun:"admin_note,nullzero" json:"admin_note,omitempty"`
	CreatedAt        time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

type WarrantyCheck struct {
	Unit           WarrantyUnit      `json:"unit"`
	ProductName    string            `json:"product_name"`
	Phase          WarrantyPhase     `json:"phase"`
	DaysRemaining  int               `json:"days_remaining"`
	ServiceTickets []WarrantyService `json:"service_tickets"`
}
