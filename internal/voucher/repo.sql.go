package voucher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian/internal/platform/db"
	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/scope"
)

// Repository defines voucher data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetVoucher(ctx context.Context, id uuid.UUID) (Voucher, error)
	GetDetail(ctx context.Context, id uuid.UUID) (Detail, error)
	ListVouchers(ctx context.Context, sc scope.Scope, filter ListFilter) ([]Voucher, int, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	// NextSequence atomically bumps and returns the daily counter for the
	// prefix/date pair.
	NextSequence(ctx context.Context, prefix string, date time.Time) (int64, error)
	CreateVoucher(ctx context.Context, v Voucher) error
	CreateItem(ctx context.Context, item Item) error
	// TransitionStatus performs the compare-and-set from PENDING and reports
	// whether this caller won the transition.
	TransitionStatus(ctx context.Context, id uuid.UUID, to Status, approvedBy int64, approvedAt time.Time, rejectionReason string) (bool, error)
	AppendApproval(ctx context.Context, approval Approval) error
}

var (
	_ Repository   = (*pgRepository)(nil)
	_ TxRepository = (*pgTxRepository)(nil)
)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const voucherColumns = `id, voucher_no, type, category, payment_method, amount, scope_type, scope_id, user_id, user_name, user_role, status, approved_by, approved_at, notes, rejection_reason, created_at, updated_at`

func (r *pgRepository) GetVoucher(ctx context.Context, id uuid.UUID) (Voucher, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id = $1`, id)
	v, err := scanVoucher(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, fmt.Errorf("voucher: %s: %w", id, httpx.ErrNotFound)
		}
		return Voucher{}, wrapStoreErr("get voucher", err)
	}
	return v, nil
}

func (r *pgRepository) GetDetail(ctx context.Context, id uuid.UUID) (Detail, error) {
	v, err := r.GetVoucher(ctx, id)
	if err != nil {
		return Detail{}, err
	}

	itemRows, err := r.pool.Query(ctx, `SELECT id, voucher_id, name, quantity, unit_price, line_total FROM voucher_items WHERE voucher_id = $1 ORDER BY id`, id)
	if err != nil {
		return Detail{}, wrapStoreErr("list items", err)
	}
	defer itemRows.Close()
	items := []Item{}
	for itemRows.Next() {
		var it Item
		if err := itemRows.Scan(&it.ID, &it.VoucherID, &it.Name, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return Detail{}, wrapStoreErr("scan item", err)
		}
		items = append(items, it)
	}
	if err := itemRows.Err(); err != nil {
		return Detail{}, wrapStoreErr("list items", err)
	}

	approvalRows, err := r.pool.Query(ctx, `SELECT id, voucher_id, action, performed_by, performed_by_name, performed_by_role, comments, created_at
FROM voucher_approvals WHERE voucher_id = $1 ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return Detail{}, wrapStoreErr("list approvals", err)
	}
	defer approvalRows.Close()
	approvals := []Approval{}
	for approvalRows.Next() {
		var a Approval
		if err := approvalRows.Scan(&a.ID, &a.VoucherID, &a.Action, &a.PerformedBy, &a.PerformedByName, &a.PerformedByRole, &a.Comments, &a.CreatedAt); err != nil {
			return Detail{}, wrapStoreErr("scan approval", err)
		}
		approvals = append(approvals, a)
	}
	if err := approvalRows.Err(); err != nil {
		return Detail{}, wrapStoreErr("list approvals", err)
	}

	return Detail{Voucher: v, Items: items, Approvals: approvals}, nil
}

func (r *pgRepository) ListVouchers(ctx context.Context, sc scope.Scope, filter ListFilter) ([]Voucher, int, error) {
	where := " WHERE 1=1"
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		where += " AND " + clause + "$" + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		add("status = ", string(filter.Status))
	}
	if filter.Type != "" {
		add("type = ", string(filter.Type))
	}
	if !filter.From.IsZero() {
		add("created_at >= ", filter.From)
	}
	if !filter.To.IsZero() {
		// To is an inclusive calendar date: everything through end of day.
		add("created_at < ", filter.To.AddDate(0, 0, 1))
	}
	if !sc.All() {
		add("scope_type = ", string(sc.Type))
		add("scope_id = ", sc.ID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vouchers`+where, args...).Scan(&total); err != nil {
		return nil, 0, wrapStoreErr("count vouchers", err)
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query := `SELECT ` + voucherColumns + ` FROM vouchers` + where +
		" ORDER BY created_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, wrapStoreErr("list vouchers", err)
	}
	defer rows.Close()
	vouchers := []Voucher{}
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, 0, wrapStoreErr("scan voucher", err)
		}
		vouchers = append(vouchers, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapStoreErr("list vouchers", err)
	}
	return vouchers, total, nil
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) NextSequence(ctx context.Context, prefix string, date time.Time) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO voucher_counters (prefix, day, seq) VALUES ($1, $2, 1)
ON CONFLICT (prefix, day) DO UPDATE SET seq = voucher_counters.seq + 1
RETURNING seq`, prefix, date.Format("2006-01-02")).Scan(&seq)
	if err != nil {
		return 0, wrapStoreErr("next sequence", err)
	}
	return seq, nil
}

func (r *pgTxRepository) CreateVoucher(ctx context.Context, v Voucher) error {
	var scopeType *string
	var scopeID *int64
	if v.ScopeType != "" {
		st := string(v.ScopeType)
		scopeType = &st
		scopeID = &v.ScopeID
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO vouchers (id, voucher_no, type, category, payment_method, amount, scope_type, scope_id, user_id, user_name, user_role, status, approved_by, approved_at, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())`,
		v.ID, v.VoucherNo, v.Type, v.Category, v.PaymentMethod, v.Amount, scopeType, scopeID,
		v.UserID, v.UserName, v.UserRole, v.Status, v.ApprovedBy, v.ApprovedAt, v.Notes)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_vouchers_voucher_no") {
			return fmt.Errorf("voucher: number %s already taken: %w", v.VoucherNo, httpx.ErrDuplicate)
		}
		return wrapStoreErr("create voucher", err)
	}
	return nil
}

func (r *pgTxRepository) CreateItem(ctx context.Context, item Item) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO voucher_items (voucher_id, name, quantity, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5)`, item.VoucherID, item.Name, item.Quantity, item.UnitPrice, item.LineTotal)
	if err != nil {
		return wrapStoreErr("create item", err)
	}
	return nil
}

func (r *pgTxRepository) TransitionStatus(ctx context.Context, id uuid.UUID, to Status, approvedBy int64, approvedAt time.Time, rejectionReason string) (bool, error) {
	// approved_by records whoever decided either way; approved_at only means
	// "when approved", so a rejection leaves it NULL.
	var at *time.Time
	if to == StatusApproved {
		at = &approvedAt
	}
	// The WHERE status='PENDING' guard is the linearisation point: of two
	// concurrent approvers exactly one update reports an affected row.
	tag, err := r.tx.Exec(ctx, `UPDATE vouchers
SET status = $2, approved_by = $3, approved_at = $4, rejection_reason = NULLIF($5, ''), updated_at = NOW()
WHERE id = $1 AND status = 'PENDING'`, id, to, approvedBy, at, rejectionReason)
	if err != nil {
		return false, wrapStoreErr("transition status", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgTxRepository) AppendApproval(ctx context.Context, approval Approval) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO voucher_approvals (voucher_id, action, performed_by, performed_by_name, performed_by_role, comments, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		approval.VoucherID, approval.Action, approval.PerformedBy, approval.PerformedByName, approval.PerformedByRole, approval.Comments)
	if err != nil {
		return wrapStoreErr("append approval", err)
	}
	return nil
}

func scanVoucher(row pgx.Row) (Voucher, error) {
	var v Voucher
	var scopeType *string
	var scopeID *int64
	var notes, rejectionReason *string
	if err := row.Scan(&v.ID, &v.VoucherNo, &v.Type, &v.Category, &v.PaymentMethod, &v.Amount,
		&scopeType, &scopeID, &v.UserID, &v.UserName, &v.UserRole, &v.Status,
		&v.ApprovedBy, &v.ApprovedAt, &notes, &rejectionReason, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return Voucher{}, err
	}
	if scopeType != nil {
		v.ScopeType = scope.Type(*scopeType)
	}
	if scopeID != nil {
		v.ScopeID = *scopeID
	}
	if notes != nil {
		v.Notes = *notes
	}
	if rejectionReason != nil {
		v.RejectionReason = *rejectionReason
	}
	return v, nil
}

func wrapStoreErr(op string, err error) error {
	if db.IsUnavailable(err) {
		return fmt.Errorf("voucher: %s: %v: %w", op, err, httpx.ErrUnavailable)
	}
	return fmt.Errorf("voucher: %s: %w", op, err)
}
