package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian/internal/scope"
)

// Financial summaries count only APPROVED vouchers. Pending and rejected
// vouchers never contribute to a money total; they appear solely in the
// status breakdown.

// DailySummary aggregates one calendar day of approved vouchers.
type DailySummary struct {
	Date     string          `json:"date"`
	Income   decimal.Decimal `json:"income"`
	Expense  decimal.Decimal `json:"expense"`
	Transfer decimal.Decimal `json:"transfer"`
	Net      decimal.Decimal `json:"net"`
	Count    int             `json:"count"`
}

// PaymentMethodSummary aggregates approved vouchers per payment method.
type PaymentMethodSummary struct {
	PaymentMethod string          `json:"payment_method"`
	Total         decimal.Decimal `json:"total"`
	Count         int             `json:"count"`
}

// ScopeSummary aggregates approved vouchers per branch/warehouse.
type ScopeSummary struct {
	ScopeType scope.Type      `json:"scope_type"`
	ScopeID   int64           `json:"scope_id"`
	Total     decimal.Decimal `json:"total"`
	Count     int             `json:"count"`
}

// StatusSummary counts vouchers per lifecycle state. ApprovedTotal is the
// only money figure because it is the only state that posts.
type StatusSummary struct {
	Pending       int             `json:"pending"`
	Approved      int             `json:"approved"`
	Rejected      int             `json:"rejected"`
	ApprovedTotal decimal.Decimal `json:"approved_total"`
}

// DateRange bounds a report query. Zero values mean unbounded. From and To
// are inclusive calendar dates; To covers its entire day, so From == To
// selects exactly one day.
type DateRange struct {
	From time.Time
	To   time.Time
}
