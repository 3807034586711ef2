package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/scope"
	"github.com/meridian-pos/meridian/internal/voucher"
)

// Service serves cached, scoped financial summaries.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs the reports service.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Daily returns per-day approved totals within the range and scope.
func (s *Service) Daily(ctx context.Context, sc scope.Scope, r DateRange) ([]DailySummary, error) {
	if err := validateRange(r); err != nil {
		return nil, err
	}
	var out []DailySummary
	err := s.cached(ctx, &out, cacheKeyParts("daily", sc, r), func(ctx context.Context) (any, error) {
		return s.repo.DailyTotals(ctx, sc, r)
	})
	return out, err
}

// PaymentMethods returns approved totals grouped by payment method.
func (s *Service) PaymentMethods(ctx context.Context, sc scope.Scope, r DateRange) ([]PaymentMethodSummary, error) {
	if err := validateRange(r); err != nil {
		return nil, err
	}
	var out []PaymentMethodSummary
	err := s.cached(ctx, &out, cacheKeyParts("methods", sc, r), func(ctx context.Context) (any, error) {
		return s.repo.PaymentMethodTotals(ctx, sc, r)
	})
	return out, err
}

// Scopes returns approved totals grouped by branch/warehouse. Admin only at
// the handler level; the grouping itself spans all scopes.
func (s *Service) Scopes(ctx context.Context, r DateRange) ([]ScopeSummary, error) {
	if err := validateRange(r); err != nil {
		return nil, err
	}
	var out []ScopeSummary
	err := s.cached(ctx, &out, cacheKeyParts("scopes", scope.Scope{}, r), func(ctx context.Context) (any, error) {
		return s.repo.ScopeTotals(ctx, r)
	})
	return out, err
}

// Statuses returns lifecycle-state counts plus the approved money total.
func (s *Service) Statuses(ctx context.Context, sc scope.Scope, r DateRange) (StatusSummary, error) {
	if err := validateRange(r); err != nil {
		return StatusSummary{}, err
	}
	var out StatusSummary
	err := s.cached(ctx, &out, cacheKeyParts("statuses", sc, r), func(ctx context.Context) (any, error) {
		return s.repo.StatusCounts(ctx, sc, r)
	})
	return out, err
}

// VoucherFinalised implements voucher.Notifier: any terminal transition
// invalidates every cached aggregate.
func (s *Service) VoucherFinalised(ctx context.Context, id uuid.UUID, status voucher.Status) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump report cache", slog.String("voucher_id", id.String()), slog.Any("error", err))
	}
}

func (s *Service) cached(ctx context.Context, dest any, parts []string, loader func(context.Context) (any, error)) error {
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		// A cache outage degrades to a direct read, never a failed report.
		s.logger.Warn("report cache key", slog.Any("error", err))
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return reassign(value, dest)
	}
	return s.cache.FetchJSON(ctx, key, dest, loader)
}

func cacheKeyParts(kind string, sc scope.Scope, r DateRange) []string {
	parts := []string{"reports", kind, string(sc.Type), strconv.FormatInt(sc.ID, 10)}
	if !r.From.IsZero() {
		parts = append(parts, r.From.Format("2006-01-02"))
	}
	if !r.To.IsZero() {
		parts = append(parts, r.To.Format("2006-01-02"))
	}
	return parts
}

func reassign(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func validateRange(r DateRange) error {
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return fmt.Errorf("reports: date range ends before it starts: %w", httpx.ErrInvalidQuery)
	}
	return nil
}
