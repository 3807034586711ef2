// Package accounts manages named balance buckets such as a branch cash
// drawer or a company bank account. Account balances are set explicitly by
// an administrator and are never derived from ledger folds.
package accounts

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian/internal/scope"
)

// AccountType classifies a financial account.
type AccountType string

const (
	TypeCash AccountType = "CASH"
	TypeBank AccountType = "BANK"
)

// Valid reports whether the account type is known.
func (t AccountType) Valid() bool {
	return t == TypeCash || t == TypeBank
}

// Account is a financial account bound to a branch or warehouse.
type Account struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Type      AccountType     `json:"type"`
	ScopeType scope.Type      `json:"scope_type"`
	ScopeID   int64           `json:"scope_id"`
	Balance   decimal.Decimal `json:"balance"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CreateInput carries the fields needed to open an account.
type CreateInput struct {
	Name           string
	Type           AccountType
	OpeningBalance decimal.Decimal
}

// SetBalanceInput carries an explicit balance overwrite.
type SetBalanceInput struct {
	Balance decimal.Decimal
	Reason  string
}
