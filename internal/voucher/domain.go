package voucher

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian/internal/scope"
	"github.com/meridian-pos/meridian/internal/shared"
)

// Type enumerates voucher types.
type Type string

const (
	TypeIncome   Type = "INCOME"
	TypeExpense  Type = "EXPENSE"
	TypeTransfer Type = "TRANSFER"
)

// Valid reports whether t is a known voucher type.
func (t Type) Valid() bool {
	return t == TypeIncome || t == TypeExpense || t == TypeTransfer
}

// Status enumerates voucher lifecycle states.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransition is the single transition table for the voucher state machine.
// Handlers and repositories never re-derive this from status strings.
func CanTransition(from, to Status) bool {
	return from == StatusPending && (to == StatusApproved || to == StatusRejected)
}

// ApprovalAction enumerates audit trail actions.
type ApprovalAction string

const (
	ActionSubmitted ApprovalAction = "SUBMITTED"
	ActionApproved  ApprovalAction = "APPROVED"
	ActionRejected  ApprovalAction = "REJECTED"
)

// Voucher is a requestable financial transaction with a mutable status.
type Voucher struct {
	ID              uuid.UUID       `json:"id"`
	VoucherNo       string          `json:"voucher_no"`
	Type            Type            `json:"type"`
	Category        string          `json:"category"`
	PaymentMethod   string          `json:"payment_method"`
	Amount          decimal.Decimal `json:"amount"`
	ScopeType       scope.Type      `json:"scope_type,omitempty"`
	ScopeID         int64           `json:"scope_id,omitempty"`
	UserID          int64           `json:"user_id"`
	UserName        string          `json:"user_name"`
	UserRole        shared.Role     `json:"user_role"`
	Status          Status          `json:"status"`
	ApprovedBy      *int64          `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Item is a line item owned by a voucher.
type Item struct {
	ID        int64           `json:"id"`
	VoucherID uuid.UUID       `json:"voucher_id"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Approval is one append-only audit trail row for a voucher.
type Approval struct {
	ID              int64          `json:"id"`
	VoucherID       uuid.UUID      `json:"voucher_id"`
	Action          ApprovalAction `json:"action"`
	PerformedBy     int64          `json:"performed_by"`
	PerformedByName string         `json:"performed_by_name"`
	PerformedByRole shared.Role    `json:"performed_by_role"`
	Comments        string         `json:"comments,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Detail bundles a voucher with its items and full approval history.
type Detail struct {
	Voucher
	Items     []Item     `json:"items"`
	Approvals []Approval `json:"approvals"`
}

// CreateItemInput is a caller-supplied line item.
type CreateItemInput struct {
	Name      string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// CreateInput carries caller-supplied fields for a new voucher.
type CreateInput struct {
	Type          Type
	Category      string
	PaymentMethod string
	Amount        decimal.Decimal
	Notes         string
	Items         []CreateItemInput
}

// ListFilter narrows a voucher listing. From and To are inclusive calendar
// dates; To covers its entire day.
type ListFilter struct {
	Status  Status
	Type    Type
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}
