package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/meridian-pos/meridian/internal/audit"
	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/scope"
	"github.com/meridian-pos/meridian/internal/shared"
)

// Service owns ledger entry writes and balance reads.
type Service struct {
	repo   Repository
	audit  *audit.Logger
	logger *slog.Logger
}

// NewService constructs the ledger service.
func NewService(repo Repository, auditLogger *audit.Logger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: auditLogger, logger: logger}
}

// Append validates and persists a new entry under the caller's scope.
func (s *Service) Append(ctx context.Context, id *shared.Identity, sc scope.Scope, input AppendEntryInput) (Entry, error) {
	if err := validateAppend(input); err != nil {
		return Entry{}, err
	}
	entry := Entry{
		ID:          uuid.New(),
		SubjectType: input.SubjectType,
		SubjectID:   input.SubjectID,
		Type:        input.Type,
		Debit:       input.Debit,
		Credit:      input.Credit,
		Description: input.Description,
		ScopeType:   sc.Type,
		ScopeID:     sc.ID,
		PerformedBy: id.UserID,
	}
	return s.repo.AppendEntry(ctx, entry)
}

// Query returns entries oldest first within the caller's scope.
func (s *Service) Query(ctx context.Context, sc scope.Scope, filter QueryFilter) ([]Entry, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	return s.repo.ListEntries(ctx, sc, filter)
}

// Balance folds a subject's entries into its running balance. A subject with
// no entries has a zero balance, not an error.
func (s *Service) Balance(ctx context.Context, sc scope.Scope, subjectType SubjectType, subjectID int64) (BalanceSummary, error) {
	if !subjectType.Valid() {
		return BalanceSummary{}, fmt.Errorf("ledger: unknown subject type %q: %w", subjectType, httpx.ErrInvalidQuery)
	}
	if subjectID <= 0 {
		return BalanceSummary{}, fmt.Errorf("ledger: subject id required: %w", httpx.ErrInvalidQuery)
	}
	entries, err := s.repo.ListEntries(ctx, sc, QueryFilter{SubjectType: subjectType, SubjectID: subjectID})
	if err != nil {
		return BalanceSummary{}, err
	}
	return Summarise(subjectType, subjectID, entries), nil
}

// AdministrativeDelete removes an entry outside the normal append-only flow.
// Admin only, and always leaves an audit trail.
func (s *Service) AdministrativeDelete(ctx context.Context, id *shared.Identity, entryID uuid.UUID, reason string) error {
	if err := scope.RequireAdmin(id); err != nil {
		return err
	}
	if reason == "" {
		return fmt.Errorf("ledger: delete reason required: %w", httpx.ErrValidation)
	}
	entry, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteEntry(ctx, entryID); err != nil {
		return err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, audit.Log{
			ActorID:  id.UserID,
			Action:   "ledger.entry.delete",
			Entity:   "ledger_entry",
			EntityID: entryID.String(),
			Meta: map[string]any{
				"reason":       reason,
				"subject_type": entry.SubjectType,
				"subject_id":   entry.SubjectID,
				"debit":        entry.Debit,
				"credit":       entry.Credit,
			},
		}); err != nil {
			s.logger.Error("record entry delete audit", slog.Any("error", err))
		}
	}
	return nil
}

func validateAppend(input AppendEntryInput) error {
	if !input.SubjectType.Valid() {
		return fmt.Errorf("ledger: unknown subject type %q: %w", input.SubjectType, httpx.ErrValidation)
	}
	if input.SubjectID <= 0 {
		return fmt.Errorf("ledger: subject id required: %w", httpx.ErrValidation)
	}
	if !input.Type.Valid() {
		return fmt.Errorf("ledger: unknown entry type %q: %w", input.Type, httpx.ErrValidation)
	}
	if input.Debit.IsNegative() || input.Credit.IsNegative() {
		return fmt.Errorf("ledger: amounts cannot be negative: %w", httpx.ErrValidation)
	}
	// Exactly one side of the movement may be set.
	switch {
	case input.Debit.IsPositive() && input.Credit.IsPositive():
		return fmt.Errorf("ledger: debit and credit are mutually exclusive: %w", httpx.ErrValidation)
	case input.Debit.IsZero() && input.Credit.IsZero():
		return fmt.Errorf("ledger: one of debit or credit must be positive: %w", httpx.ErrValidation)
	}
	return nil
}

func validateFilter(filter QueryFilter) error {
	if filter.SubjectType != "" && !filter.SubjectType.Valid() {
		return fmt.Errorf("ledger: unknown subject type %q: %w", filter.SubjectType, httpx.ErrInvalidQuery)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return fmt.Errorf("ledger: unknown entry type %q: %w", filter.Type, httpx.ErrInvalidQuery)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return fmt.Errorf("ledger: date range ends before it starts: %w", httpx.ErrInvalidQuery)
	}
	return nil
}
