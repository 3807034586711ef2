package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian/internal/platform/db"
	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/scope"
)

// Repository defines account persistence.
type Repository interface {
	CreateAccount(ctx context.Context, account Account) (Account, error)
	ListAccounts(ctx context.Context, sc scope.Scope) ([]Account, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	SetBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	Deactivate(ctx context.Context, id int64) error
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const accountColumns = `id, name, account_type, scope_type, scope_id, balance, active, created_at, updated_at`

func (r *pgRepository) CreateAccount(ctx context.Context, account Account) (Account, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO financial_accounts (name, account_type, scope_type, scope_id, balance, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, TRUE, NOW(), NOW())
RETURNING `+accountColumns,
		account.Name, account.Type, account.ScopeType, account.ScopeID, account.Balance)
	created, err := scanAccount(row)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_financial_accounts_scope_name") {
			return Account{}, fmt.Errorf("accounts: name %q taken in scope: %w", account.Name, httpx.ErrDuplicate)
		}
		return Account{}, wrapStoreErr("create account", err)
	}
	return created, nil
}

func (r *pgRepository) ListAccounts(ctx context.Context, sc scope.Scope) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM financial_accounts WHERE active = TRUE`
	var args []any
	if !sc.All() {
		query += ` AND scope_type = $1 AND scope_id = $2`
		args = append(args, sc.Type, sc.ID)
	}
	query += ` ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreErr("list accounts", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, wrapStoreErr("scan account", err)
		}
		out = append(out, account)
	}
	return out, rows.Err()
}

func (r *pgRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM financial_accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, httpx.ErrNotFound
	}
	if err != nil {
		return Account{}, wrapStoreErr("get account", err)
	}
	return account, nil
}

func (r *pgRepository) SetBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, `UPDATE financial_accounts SET balance = $2, updated_at = NOW() WHERE id = $1 AND active = TRUE`, id, balance)
	if err != nil {
		return wrapStoreErr("set balance", err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *pgRepository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE financial_accounts SET active = FALSE, updated_at = NOW() WHERE id = $1 AND active = TRUE`, id)
	if err != nil {
		return wrapStoreErr("deactivate account", err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Name, &a.Type, &a.ScopeType, &a.ScopeID, &a.Balance, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func wrapStoreErr(op string, err error) error {
	if db.IsUnavailable(err) {
		return fmt.Errorf("accounts: %s: %v: %w", op, err, httpx.ErrUnavailable)
	}
	return fmt.Errorf("accounts: %s: %w", op, err)
}
