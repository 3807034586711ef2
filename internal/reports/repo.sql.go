package reports

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian/internal/platform/db"
	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/scope"
)

// Repository defines report reads.
type Repository interface {
	DailyTotals(ctx context.Context, sc scope.Scope, r DateRange) ([]DailySummary, error)
	PaymentMethodTotals(ctx context.Context, sc scope.Scope, r DateRange) ([]PaymentMethodSummary, error)
	ScopeTotals(ctx context.Context, r DateRange) ([]ScopeSummary, error)
	StatusCounts(ctx context.Context, sc scope.Scope, r DateRange) (StatusSummary, error)
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// whereClause builds the shared predicate. statusGuard keeps money
// aggregates on approved vouchers only.
func whereClause(sc scope.Scope, r DateRange, statusGuard bool) (string, []any) {
	where := " WHERE 1=1"
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		where += " AND " + clause + "$" + strconv.Itoa(len(args))
	}
	if statusGuard {
		where += " AND status = 'APPROVED'"
	}
	if !r.From.IsZero() {
		add("created_at >= ", r.From)
	}
	if !r.To.IsZero() {
		// To is an inclusive calendar date: everything through end of day.
		add("created_at < ", r.To.AddDate(0, 0, 1))
	}
	if !sc.All() {
		add("scope_type = ", string(sc.Type))
		add("scope_id = ", sc.ID)
	}
	return where, args
}

func (repo *pgRepository) DailyTotals(ctx context.Context, sc scope.Scope, r DateRange) ([]DailySummary, error) {
	where, args := whereClause(sc, r, true)
	rows, err := repo.pool.Query(ctx, `SELECT TO_CHAR(created_at, 'YYYY-MM-DD') AS day,
COALESCE(SUM(amount) FILTER (WHERE type = 'INCOME'), 0),
COALESCE(SUM(amount) FILTER (WHERE type = 'EXPENSE'), 0),
COALESCE(SUM(amount) FILTER (WHERE type = 'TRANSFER'), 0),
COUNT(*)
FROM vouchers`+where+` GROUP BY day ORDER BY day`, args...)
	if err != nil {
		return nil, wrapStoreErr("daily totals", err)
	}
	defer rows.Close()

	summaries := []DailySummary{}
	for rows.Next() {
		var s DailySummary
		if err := rows.Scan(&s.Date, &s.Income, &s.Expense, &s.Transfer, &s.Count); err != nil {
			return nil, wrapStoreErr("scan daily totals", err)
		}
		s.Net = s.Income.Sub(s.Expense)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("daily totals", err)
	}
	return summaries, nil
}

func (repo *pgRepository) PaymentMethodTotals(ctx context.Context, sc scope.Scope, r DateRange) ([]PaymentMethodSummary, error) {
	where, args := whereClause(sc, r, true)
	rows, err := repo.pool.Query(ctx, `SELECT payment_method, COALESCE(SUM(amount), 0), COUNT(*)
FROM vouchers`+where+` GROUP BY payment_method ORDER BY payment_method`, args...)
	if err != nil {
		return nil, wrapStoreErr("payment method totals", err)
	}
	defer rows.Close()

	summaries := []PaymentMethodSummary{}
	for rows.Next() {
		var s PaymentMethodSummary
		if err := rows.Scan(&s.PaymentMethod, &s.Total, &s.Count); err != nil {
			return nil, wrapStoreErr("scan payment method totals", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("payment method totals", err)
	}
	return summaries, nil
}

func (repo *pgRepository) ScopeTotals(ctx context.Context, r DateRange) ([]ScopeSummary, error) {
	where, args := whereClause(scope.Scope{}, r, true)
	rows, err := repo.pool.Query(ctx, `SELECT scope_type, scope_id, COALESCE(SUM(amount), 0), COUNT(*)
FROM vouchers`+where+` AND scope_type IS NOT NULL GROUP BY scope_type, scope_id ORDER BY scope_type, scope_id`, args...)
	if err != nil {
		return nil, wrapStoreErr("scope totals", err)
	}
	defer rows.Close()

	summaries := []ScopeSummary{}
	for rows.Next() {
		var s ScopeSummary
		var scopeType string
		if err := rows.Scan(&scopeType, &s.ScopeID, &s.Total, &s.Count); err != nil {
			return nil, wrapStoreErr("scan scope totals", err)
		}
		s.ScopeType = scope.Type(scopeType)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("scope totals", err)
	}
	return summaries, nil
}

func (repo *pgRepository) StatusCounts(ctx context.Context, sc scope.Scope, r DateRange) (StatusSummary, error) {
	where, args := whereClause(sc, r, false)
	row := repo.pool.QueryRow(ctx, `SELECT
COUNT(*) FILTER (WHERE status = 'PENDING'),
COUNT(*) FILTER (WHERE status = 'APPROVED'),
COUNT(*) FILTER (WHERE status = 'REJECTED'),
COALESCE(SUM(amount) FILTER (WHERE status = 'APPROVED'), 0)
FROM vouchers`+where, args...)

	var s StatusSummary
	var approvedTotal decimal.Decimal
	if err := row.Scan(&s.Pending, &s.Approved, &s.Rejected, &approvedTotal); err != nil {
		return StatusSummary{}, wrapStoreErr("status counts", err)
	}
	s.ApprovedTotal = approvedTotal
	return s, nil
}

func wrapStoreErr(op string, err error) error {
	if db.IsUnavailable(err) {
		return fmt.Errorf("reports: %s: %v: %w", op, err, httpx.ErrUnavailable)
	}
	return fmt.Errorf("reports: %s: %w", op, err)
}
