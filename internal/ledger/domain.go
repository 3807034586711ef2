package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian/internal/scope"
)

// EntryType enumerates ledger entry types.
type EntryType string

const (
	EntrySale               EntryType = "SALE"
	EntryPayment            EntryType = "PAYMENT"
	EntryAdjustment         EntryType = "ADJUSTMENT"
	EntryCompanyTransaction EntryType = "COMPANY_TRANSACTION"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntrySale, EntryPayment, EntryAdjustment, EntryCompanyTransaction:
		return true
	}
	return false
}

// SubjectType enumerates the parties a running balance is kept for.
type SubjectType string

const (
	SubjectCustomer  SubjectType = "CUSTOMER"
	SubjectCompany   SubjectType = "COMPANY"
	SubjectBranch    SubjectType = "BRANCH"
	SubjectWarehouse SubjectType = "WAREHOUSE"
)

// Valid reports whether t is a known subject type.
func (t SubjectType) Valid() bool {
	switch t {
	case SubjectCustomer, SubjectCompany, SubjectBranch, SubjectWarehouse:
		return true
	}
	return false
}

// Entry is an immutable financial movement. Exactly one of Debit/Credit is
// positive; the other is zero.
type Entry struct {
	ID          uuid.UUID       `json:"id"`
	SubjectType SubjectType     `json:"subject_type"`
	SubjectID   int64           `json:"subject_id"`
	Type        EntryType       `json:"entry_type"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description"`
	ScopeType   scope.Type      `json:"scope_type,omitempty"`
	ScopeID     int64           `json:"scope_id,omitempty"`
	PerformedBy int64           `json:"performed_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

// AppendEntryInput carries caller-supplied fields for a new entry.
type AppendEntryInput struct {
	SubjectType SubjectType
	SubjectID   int64
	Type        EntryType
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// QueryFilter narrows an entry listing. Zero values mean "no filter".
// From and To are inclusive calendar dates; To covers its entire day, so
// From == To selects exactly one day.
type QueryFilter struct {
	SubjectType SubjectType
	SubjectID   int64
	Type        EntryType
	From        time.Time
	To          time.Time
}

// BalanceSummary is the derived running-balance view of a subject.
// Balance is positive when the subject owes the business and negative when
// the business owes the subject (the subject holds credit).
type BalanceSummary struct {
	SubjectType  SubjectType     `json:"subject_type"`
	SubjectID    int64           `json:"subject_id"`
	TotalDebits  decimal.Decimal `json:"total_debits"`
	TotalCredits decimal.Decimal `json:"total_credits"`
	Balance      decimal.Decimal `json:"balance"`
}
