package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/meridian-pos/meridian/internal/audit"
	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/scope"
	"github.com/meridian-pos/meridian/internal/shared"
)

// Service implements account use cases.
type Service struct {
	repo   Repository
	audit  *audit.Logger
	logger *slog.Logger
}

// NewService wires the account service.
func NewService(repo Repository, auditLogger *audit.Logger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: auditLogger, logger: logger}
}

// Create opens an account inside the caller's resolved scope. Accounts are
// always scope bound, so an administrator must name a scope explicitly.
func (s *Service) Create(ctx context.Context, sc scope.Scope, in CreateInput) (Account, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Account{}, fmt.Errorf("accounts: name required: %w", httpx.ErrValidation)
	}
	if !in.Type.Valid() {
		return Account{}, fmt.Errorf("accounts: unknown account type %q: %w", in.Type, httpx.ErrValidation)
	}
	if sc.All() {
		return Account{}, fmt.Errorf("accounts: scope required: %w", httpx.ErrValidation)
	}
	if in.OpeningBalance.IsNegative() {
		return Account{}, fmt.Errorf("accounts: opening balance must not be negative: %w", httpx.ErrValidation)
	}

	return s.repo.CreateAccount(ctx, Account{
		Name:      in.Name,
		Type:      in.Type,
		ScopeType: sc.Type,
		ScopeID:   sc.ID,
		Balance:   in.OpeningBalance,
		Active:    true,
	})
}

// List returns active accounts visible within the resolved scope.
func (s *Service) List(ctx context.Context, sc scope.Scope) ([]Account, error) {
	return s.repo.ListAccounts(ctx, sc)
}

// SetBalance overwrites an account balance. Admin only; the old and new
// balances land in the audit log together with the stated reason.
func (s *Service) SetBalance(ctx context.Context, id *shared.Identity, accountID int64, in SetBalanceInput) (Account, error) {
	if err := scope.RequireAdmin(id); err != nil {
		return Account{}, err
	}
	if strings.TrimSpace(in.Reason) == "" {
		return Account{}, fmt.Errorf("accounts: balance set requires a reason: %w", httpx.ErrValidation)
	}

	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return Account{}, err
	}
	if !account.Active {
		return Account{}, fmt.Errorf("accounts: account %d is deactivated: %w", accountID, httpx.ErrInvalidState)
	}
	if err := s.repo.SetBalance(ctx, accountID, in.Balance); err != nil {
		return Account{}, err
	}

	if s.audit != nil {
		if err := s.audit.Record(ctx, audit.Log{
			ActorID:  id.UserID,
			Action:   "account.balance_set",
			Entity:   "financial_account",
			EntityID: strconv.FormatInt(accountID, 10),
			Meta: map[string]any{
				"previous": account.Balance.String(),
				"balance":  in.Balance.String(),
				"reason":   in.Reason,
			},
		}); err != nil {
			s.logger.Error("record balance set audit", slog.Any("error", err))
		}
	}

	// Re-read so the caller sees the stored row, updated_at included.
	return s.repo.GetAccount(ctx, accountID)
}

// Deactivate retires an account. Admin only.
func (s *Service) Deactivate(ctx context.Context, id *shared.Identity, accountID int64) error {
	if err := scope.RequireAdmin(id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, accountID); err != nil {
		return err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, audit.Log{
			ActorID:  id.UserID,
			Action:   "account.deactivate",
			Entity:   "financial_account",
			EntityID: strconv.FormatInt(accountID, 10),
		}); err != nil {
			s.logger.Error("record deactivate audit", slog.Any("error", err))
		}
	}
	return nil
}
