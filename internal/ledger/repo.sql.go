package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian/internal/platform/db"
	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/scope"
)

// Repository defines ledger persistence.
type Repository interface {
	AppendEntry(ctx context.Context, entry Entry) (Entry, error)
	ListEntries(ctx context.Context, sc scope.Scope, filter QueryFilter) ([]Entry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (Entry, error)
	DeleteEntry(ctx context.Context, id uuid.UUID) error
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const entryColumns = `id, subject_type, subject_id, entry_type, debit, credit, description, scope_type, scope_id, performed_by, created_at`

func (r *pgRepository) AppendEntry(ctx context.Context, entry Entry) (Entry, error) {
	var scopeType *string
	var scopeID *int64
	if entry.ScopeType != "" {
		st := string(entry.ScopeType)
		scopeType = &st
		scopeID = &entry.ScopeID
	}
	// The database stamps created_at, so return it with the stored row.
	err := r.pool.QueryRow(ctx, `INSERT INTO ledger_entries (id, subject_type, subject_id, entry_type, debit, credit, description, scope_type, scope_id, performed_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
RETURNING created_at`,
		entry.ID, entry.SubjectType, entry.SubjectID, entry.Type, entry.Debit, entry.Credit,
		entry.Description, scopeType, scopeID, entry.PerformedBy).Scan(&entry.CreatedAt)
	if err != nil {
		return Entry{}, wrapStoreErr("append entry", err)
	}
	return entry, nil
}

func (r *pgRepository) ListEntries(ctx context.Context, sc scope.Scope, filter QueryFilter) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE 1=1`
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		query += " AND " + clause + "$" + strconv.Itoa(len(args))
	}
	if filter.SubjectType != "" {
		add("subject_type = ", string(filter.SubjectType))
	}
	if filter.SubjectID != 0 {
		add("subject_id = ", filter.SubjectID)
	}
	if filter.Type != "" {
		add("entry_type = ", string(filter.Type))
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
	// Total order per subject: ties on created_at break on insertion id so
	// downstream folds are deterministic.
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapStoreErr("list entries", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("list entries", err)
	}
	return entries, nil
}

func (r *pgRepository) GetEntry(ctx context.Context, id uuid.UUID) (Entry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, fmt.Errorf("ledger: entry %s: %w", id, httpx.ErrNotFound)
		}
		return Entry{}, err
	}
	return e, nil
}

func (r *pgRepository) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM ledger_entries WHERE id = $1`, id)
	if err != nil {
		return wrapStoreErr("delete entry", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger: entry %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var scopeType *string
	var scopeID *int64
	if err := row.Scan(&e.ID, &e.SubjectType, &e.SubjectID, &e.Type, &e.Debit, &e.Credit,
		&e.Description, &scopeType, &scopeID, &e.PerformedBy, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	if scopeType != nil {
		e.ScopeType = scope.Type(*scopeType)
	}
	if scopeID != nil {
		e.ScopeID = *scopeID
	}
	return e, nil
}

func wrapStoreErr(op string, err error) error {
	if db.IsUnavailable(err) {
		return fmt.Errorf("ledger: %s: %v: %w", op, err, httpx.ErrUnavailable)
	}
	return fmt.Errorf("ledger: %s: %w", op, err)
}
