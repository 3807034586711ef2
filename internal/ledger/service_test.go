package ledger

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/scope"
	"github.com/meridian-pos/meridian/internal/shared"
)

type memoryLedgerRepo struct {
	entries []Entry
	seq     int
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{}
}

func (r *memoryLedgerRepo) AppendEntry(ctx context.Context, entry Entry) (Entry, error) {
	r.seq++
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC).Add(time.Duration(r.seq) * time.Second)
	}
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *memoryLedgerRepo) ListEntries(ctx context.Context, sc scope.Scope, filter QueryFilter) ([]Entry, error) {
	out := []Entry{}
	for _, e := range r.entries {
		if filter.SubjectType != "" && e.SubjectType != filter.SubjectType {
			continue
		}
		if filter.SubjectID != 0 && e.SubjectID != filter.SubjectID {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if !filter.From.IsZero() && e.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !e.CreatedAt.Before(filter.To.AddDate(0, 0, 1)) {
			continue
		}
		if !sc.All() && (e.ScopeType != sc.Type || e.ScopeID != sc.ID) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryLedgerRepo) GetEntry(ctx context.Context, id uuid.UUID) (Entry, error) {
	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, httpx.ErrNotFound
}

func (r *memoryLedgerRepo) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	for i, e := range r.entries {
		if e.ID == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return nil
		}
	}
	return httpx.ErrNotFound
}

func cashierIdentity(branchID int64) *shared.Identity {
	return &shared.Identity{UserID: 10, UserName: "kasir", Role: shared.RoleCashier, BranchID: branchID}
}

func adminIdentity() *shared.Identity {
	return &shared.Identity{UserID: 1, UserName: "admin", Role: shared.RoleAdmin}
}

func TestAppendDebitCreditExclusivity(t *testing.T) {
	svc := NewService(newMemoryLedgerRepo(), nil, nil)
	sc := scope.Scope{Type: scope.TypeBranch, ID: 1}

	cases := []struct {
		name          string
		debit, credit decimal.Decimal
	}{
		{"both set", dec(100), dec(50)},
		{"neither set", decimal.Zero, decimal.Zero},
		{"negative debit", dec(-10), decimal.Zero},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Append(context.Background(), cashierIdentity(1), sc, AppendEntryInput{
				SubjectType: SubjectCustomer,
				SubjectID:   4,
				Type:        EntrySale,
				Debit:       tc.debit,
				Credit:      tc.credit,
			})
			require.True(t, errors.Is(err, httpx.ErrValidation), "got %v", err)
		})
	}
}

func TestAppendStampsScopeAndActor(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)
	sc := scope.Scope{Type: scope.TypeBranch, ID: 3}

	entry, err := svc.Append(context.Background(), cashierIdentity(3), sc, AppendEntryInput{
		SubjectType: SubjectCustomer,
		SubjectID:   4,
		Type:        EntrySale,
		Debit:       dec(250),
		Description: "walk-in sale",
	})
	require.NoError(t, err)
	require.Equal(t, scope.TypeBranch, entry.ScopeType)
	require.Equal(t, int64(3), entry.ScopeID)
	require.Equal(t, int64(10), entry.PerformedBy)
	require.NotEqual(t, uuid.Nil, entry.ID)
	require.False(t, entry.CreatedAt.IsZero(), "returned entry must carry the stored timestamp")
}

func TestQuerySingleDayRangeCoversWholeDay(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)
	sc := scope.Scope{Type: scope.TypeBranch, ID: 1}

	// The fake stamps entries mid-morning, not at midnight.
	entry, err := svc.Append(context.Background(), cashierIdentity(1), sc, AppendEntryInput{
		SubjectType: SubjectCustomer, SubjectID: 4, Type: EntrySale, Debit: dec(100),
	})
	require.NoError(t, err)
	require.NotEqual(t, 0, entry.CreatedAt.Hour())

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	entries, err := svc.Query(context.Background(), sc, QueryFilter{From: day, To: day})
	require.NoError(t, err)
	require.Len(t, entries, 1, "From == To must select the entire day")

	entries, err = svc.Query(context.Background(), sc, QueryFilter{From: day.AddDate(0, 0, 1), To: day.AddDate(0, 0, 1)})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestQueryInvalidFilter(t *testing.T) {
	svc := NewService(newMemoryLedgerRepo(), nil, nil)
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	_, err := svc.Query(context.Background(), scope.Scope{}, QueryFilter{From: from, To: from.AddDate(0, 0, -5)})
	require.True(t, errors.Is(err, httpx.ErrInvalidQuery))

	_, err = svc.Query(context.Background(), scope.Scope{}, QueryFilter{Type: "REFUND??"})
	require.True(t, errors.Is(err, httpx.ErrInvalidQuery))
}

func TestQueryNoMatchesReturnsEmpty(t *testing.T) {
	svc := NewService(newMemoryLedgerRepo(), nil, nil)
	entries, err := svc.Query(context.Background(), scope.Scope{}, QueryFilter{SubjectType: SubjectCustomer, SubjectID: 999})
	require.NoError(t, err)
	require.Empty(t, entries)
	require.NotNil(t, entries)
}

func TestScopeIsolationBetweenBranches(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)

	branch1 := scope.Scope{Type: scope.TypeBranch, ID: 1}
	branch2 := scope.Scope{Type: scope.TypeBranch, ID: 2}

	_, err := svc.Append(context.Background(), cashierIdentity(1), branch1, AppendEntryInput{
		SubjectType: SubjectCustomer, SubjectID: 4, Type: EntrySale, Debit: dec(100),
	})
	require.NoError(t, err)
	_, err = svc.Append(context.Background(), cashierIdentity(2), branch2, AppendEntryInput{
		SubjectType: SubjectCustomer, SubjectID: 4, Type: EntrySale, Debit: dec(900),
	})
	require.NoError(t, err)

	// The branch-1 cashier's resolved scope must never see branch-2 rows.
	sc, err := scope.Resolve(cashierIdentity(1), &scope.Scope{Type: scope.TypeBranch, ID: 2})
	require.NoError(t, err)
	entries, err := svc.Query(context.Background(), sc, QueryFilter{SubjectType: SubjectCustomer, SubjectID: 4})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(1), entries[0].ScopeID)

	// Admin with no override sees both.
	all, err := svc.Query(context.Background(), scope.Scope{}, QueryFilter{SubjectType: SubjectCustomer, SubjectID: 4})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestBalanceFoldsScopedEntriesInOrder(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)
	sc := scope.Scope{Type: scope.TypeBranch, ID: 1}

	seed := []struct {
		typ           EntryType
		debit, credit int64
	}{
		{EntrySale, 400, 0},
		{EntryPayment, 0, 150},
		{EntrySale, 50, 0},
		{EntryPayment, 0, 500},
	}
	for _, e := range seed {
		_, err := svc.Append(context.Background(), cashierIdentity(1), sc, AppendEntryInput{
			SubjectType: SubjectCustomer, SubjectID: 7, Type: e.typ,
			Debit: dec(e.debit), Credit: dec(e.credit),
		})
		require.NoError(t, err)
	}

	sum, err := svc.Balance(context.Background(), sc, SubjectCustomer, 7)
	require.NoError(t, err)
	require.True(t, sum.TotalDebits.Equal(dec(450)))
	require.True(t, sum.TotalCredits.Equal(dec(650)))
	require.True(t, sum.Balance.Equal(dec(-200)), "subject should hold 200 credit, got %s", sum.Balance)
}

func TestBalanceUnknownSubjectIsZero(t *testing.T) {
	svc := NewService(newMemoryLedgerRepo(), nil, nil)
	sum, err := svc.Balance(context.Background(), scope.Scope{}, SubjectCompany, 12)
	require.NoError(t, err)
	require.True(t, sum.Balance.IsZero())
}

func TestAdministrativeDeleteGuards(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil, nil)
	sc := scope.Scope{Type: scope.TypeBranch, ID: 1}

	entry, err := svc.Append(context.Background(), cashierIdentity(1), sc, AppendEntryInput{
		SubjectType: SubjectCustomer, SubjectID: 4, Type: EntrySale, Debit: dec(100),
	})
	require.NoError(t, err)

	err = svc.AdministrativeDelete(context.Background(), cashierIdentity(1), entry.ID, "mistake")
	require.True(t, errors.Is(err, httpx.ErrForbidden))

	err = svc.AdministrativeDelete(context.Background(), adminIdentity(), entry.ID, "")
	require.True(t, errors.Is(err, httpx.ErrValidation))

	require.NoError(t, svc.AdministrativeDelete(context.Background(), adminIdentity(), entry.ID, "duplicate capture"))
	_, err = repo.GetEntry(context.Background(), entry.ID)
	require.True(t, errors.Is(err, httpx.ErrNotFound))
}
