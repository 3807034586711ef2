package voucher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/scope"
	"github.com/meridian-pos/meridian/internal/shared"
)

type memoryVoucherRepo struct {
	mu        sync.Mutex
	vouchers  map[uuid.UUID]Voucher
	items     map[uuid.UUID][]Item
	approvals map[uuid.UUID][]Approval
	counters  map[string]int64
	nextRowID int64
}

func newMemoryVoucherRepo() *memoryVoucherRepo {
	return &memoryVoucherRepo{
		vouchers:  make(map[uuid.UUID]Voucher),
		items:     make(map[uuid.UUID][]Item),
		approvals: make(map[uuid.UUID][]Approval),
		counters:  make(map[string]int64),
	}
}

type memoryVoucherTx struct {
	repo *memoryVoucherRepo
}

// WithTx serialises transactions the way the database serialises counter
// bumps and CAS updates.
func (r *memoryVoucherRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryVoucherTx{repo: r})
}

func (r *memoryVoucherRepo) GetVoucher(ctx context.Context, id uuid.UUID) (Voucher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vouchers[id]
	if !ok {
		return Voucher{}, fmt.Errorf("voucher: %s: %w", id, httpx.ErrNotFound)
	}
	return v, nil
}

func (r *memoryVoucherRepo) GetDetail(ctx context.Context, id uuid.UUID) (Detail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vouchers[id]
	if !ok {
		return Detail{}, fmt.Errorf("voucher: %s: %w", id, httpx.ErrNotFound)
	}
	return Detail{
		Voucher:   v,
		Items:     append([]Item(nil), r.items[id]...),
		Approvals: append([]Approval(nil), r.approvals[id]...),
	}, nil
}

func (r *memoryVoucherRepo) ListVouchers(ctx context.Context, sc scope.Scope, filter ListFilter) ([]Voucher, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Voucher{}
	for _, v := range r.vouchers {
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		if filter.Type != "" && v.Type != filter.Type {
			continue
		}
		if !filter.From.IsZero() && v.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !v.CreatedAt.Before(filter.To.AddDate(0, 0, 1)) {
			continue
		}
		if !sc.All() && (v.ScopeType != sc.Type || v.ScopeID != sc.ID) {
			continue
		}
		out = append(out, v)
	}
	return out, len(out), nil
}

func (tx *memoryVoucherTx) NextSequence(ctx context.Context, prefix string, date time.Time) (int64, error) {
	key := prefix + date.Format("20060102")
	tx.repo.counters[key]++
	return tx.repo.counters[key], nil
}

func (tx *memoryVoucherTx) CreateVoucher(ctx context.Context, v Voucher) error {
	for _, existing := range tx.repo.vouchers {
		if existing.VoucherNo == v.VoucherNo {
			return fmt.Errorf("voucher: number %s already taken: %w", v.VoucherNo, httpx.ErrDuplicate)
		}
	}
	now := time.Now()
	v.CreatedAt = now
	v.UpdatedAt = now
	tx.repo.vouchers[v.ID] = v
	return nil
}

func (tx *memoryVoucherTx) CreateItem(ctx context.Context, item Item) error {
	tx.repo.nextRowID++
	item.ID = tx.repo.nextRowID
	tx.repo.items[item.VoucherID] = append(tx.repo.items[item.VoucherID], item)
	return nil
}

func (tx *memoryVoucherTx) TransitionStatus(ctx context.Context, id uuid.UUID, to Status, approvedBy int64, approvedAt time.Time, rejectionReason string) (bool, error) {
	v, ok := tx.repo.vouchers[id]
	if !ok || !CanTransition(v.Status, to) {
		return false, nil
	}
	v.Status = to
	v.ApprovedBy = &approvedBy
	v.ApprovedAt = nil
	if to == StatusApproved {
		v.ApprovedAt = &approvedAt
	}
	v.RejectionReason = rejectionReason
	v.UpdatedAt = time.Now()
	tx.repo.vouchers[id] = v
	return true, nil
}

func (tx *memoryVoucherTx) AppendApproval(ctx context.Context, approval Approval) error {
	tx.repo.nextRowID++
	approval.ID = tx.repo.nextRowID
	approval.CreatedAt = time.Now()
	tx.repo.approvals[approval.VoucherID] = append(tx.repo.approvals[approval.VoucherID], approval)
	return nil
}

func cashier(branchID int64) *shared.Identity {
	return &shared.Identity{UserID: 20, UserName: "kasir", Role: shared.RoleCashier, BranchID: branchID}
}

func admin() *shared.Identity {
	return &shared.Identity{UserID: 1, UserName: "boss", Role: shared.RoleAdmin}
}

func branchScope(id int64) scope.Scope {
	return scope.Scope{Type: scope.TypeBranch, ID: id}
}

func expenseInput(amount int64) CreateInput {
	return CreateInput{
		Type:          TypeExpense,
		Category:      "SUPPLIES",
		PaymentMethod: "CASH",
		Amount:        decimal.NewFromInt(amount),
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryVoucherRepo(), nil)

	cases := []struct {
		name  string
		input CreateInput
	}{
		{"zero amount", CreateInput{Type: TypeExpense, Category: "C", PaymentMethod: "CASH", Amount: decimal.Zero}},
		{"negative amount", CreateInput{Type: TypeExpense, Category: "C", PaymentMethod: "CASH", Amount: decimal.NewFromInt(-5)}},
		{"unknown type", CreateInput{Type: "REFUND", Category: "C", PaymentMethod: "CASH", Amount: decimal.NewFromInt(5)}},
		{"missing category", CreateInput{Type: TypeIncome, PaymentMethod: "CASH", Amount: decimal.NewFromInt(5)}},
		{"missing payment method", CreateInput{Type: TypeIncome, Category: "C", Amount: decimal.NewFromInt(5)}},
		{"bad item", CreateInput{Type: TypeIncome, Category: "C", PaymentMethod: "CASH", Amount: decimal.NewFromInt(5),
			Items: []CreateItemInput{{Name: "x", Quantity: decimal.Zero}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), cashier(1), branchScope(1), tc.input)
			require.True(t, errors.Is(err, httpx.ErrValidation), "got %v", err)
		})
	}
}

func TestCreatePendingForCashier(t *testing.T) {
	repo := newMemoryVoucherRepo()
	svc := NewService(repo, nil)

	input := expenseInput(150)
	input.Items = []CreateItemInput{
		{Name: "printer paper", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(50)},
	}
	v, err := svc.Create(context.Background(), cashier(2), branchScope(2), input)
	require.NoError(t, err)
	require.Equal(t, StatusPending, v.Status)
	require.Nil(t, v.ApprovedBy)
	require.Equal(t, scope.TypeBranch, v.ScopeType)
	require.Equal(t, int64(2), v.ScopeID)

	detail, err := svc.Get(context.Background(), branchScope(2), v.ID)
	require.NoError(t, err)
	require.Len(t, detail.Approvals, 1)
	require.Equal(t, ActionSubmitted, detail.Approvals[0].Action)
	require.Equal(t, shared.RoleCashier, detail.Approvals[0].PerformedByRole)
	require.Len(t, detail.Items, 1)
	require.True(t, detail.Items[0].LineTotal.Equal(decimal.NewFromInt(150)))
}

func TestCreateAdminSelfApproves(t *testing.T) {
	repo := newMemoryVoucherRepo()
	svc := NewService(repo, nil)

	v, err := svc.Create(context.Background(), admin(), scope.Scope{}, expenseInput(900))
	require.NoError(t, err)
	require.Equal(t, StatusApproved, v.Status)
	require.NotNil(t, v.ApprovedBy)
	require.Equal(t, int64(1), *v.ApprovedBy)
	require.NotNil(t, v.ApprovedAt)

	// The self-approved fast path still records only the SUBMITTED row.
	detail, err := svc.Get(context.Background(), scope.Scope{}, v.ID)
	require.NoError(t, err)
	require.Len(t, detail.Approvals, 1)
	require.Equal(t, ActionSubmitted, detail.Approvals[0].Action)
}

func TestVoucherNumberFormat(t *testing.T) {
	repo := newMemoryVoucherRepo()
	svc := NewService(repo, nil)
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC) }

	v, err := svc.Create(context.Background(), cashier(1), branchScope(1), expenseInput(10))
	require.NoError(t, err)
	require.Equal(t, "EXP202609010001", v.VoucherNo)

	income := expenseInput(10)
	income.Type = TypeIncome
	v2, err := svc.Create(context.Background(), cashier(1), branchScope(1), income)
	require.NoError(t, err)
	require.Equal(t, "INC202609010001", v2.VoucherNo)

	v3, err := svc.Create(context.Background(), cashier(1), branchScope(1), expenseInput(20))
	require.NoError(t, err)
	require.Equal(t, "EXP202609010002", v3.VoucherNo)
}

func TestApproveRequiresAdmin(t *testing.T) {
	repo := newMemoryVoucherRepo()
	svc := NewService(repo, nil)

	v, err := svc.Create(context.Background(), cashier(1), branchScope(1), expenseInput(50))
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), cashier(1), v.ID, "")
	require.True(t, errors.Is(err, httpx.ErrForbidden))
}

func TestApproveLifecycle(t *testing.T) {
	repo := newMemoryVoucherRepo()
	svc := NewService(repo, nil)

	v, err := svc.Create(context.Background(), cashier(1), branchScope(1), expenseInput(50))
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), admin(), v.ID, "looks fine")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, int64(1), *approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)

	detail, err := svc.Get(context.Background(), scope.Scope{}, v.ID)
	require.NoError(t, err)
	require.Len(t, detail.Approvals, 2)
	require.Equal(t, ActionSubmitted, detail.Approvals[0].Action)
	require.Equal(t, ActionApproved, detail.Approvals[1].Action)
}

func TestRejectRequiresReason(t *testing.T) {
	repo := newMemoryVoucherRepo()
	svc := NewService(repo, nil)

	v, err := svc.Create(context.Background(), cashier(1), branchScope(1), expenseInput(50))
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), admin(), v.ID, "", "note")
	require.True(t, errors.Is(err, httpx.ErrValidation))

	rejected, err := svc.Reject(context.Background(), admin(), v.ID, "amount mismatch", "")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, "amount mismatch", rejected.RejectionReason)
	require.NotNil(t, rejected.ApprovedBy, "the decider is recorded either way")
	require.Nil(t, rejected.ApprovedAt, "only an approval carries the timestamp")

	detail, err := svc.Get(context.Background(), scope.Scope{}, v.ID)
	require.NoError(t, err)
	require.Len(t, detail.Approvals, 2)
	require.Equal(t, ActionRejected, detail.Approvals[1].Action)
}

func TestLifecycleMonotonicity(t *testing.T) {
	repo := newMemoryVoucherRepo()
	svc := NewService(repo, nil)

	v, err := svc.Create(context.Background(), cashier(1), branchScope(1), expenseInput(50))
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), admin(), v.ID, "")
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), admin(), v.ID, "again")
	require.True(t, errors.Is(err, httpx.ErrInvalidState), "got %v", err)
	_, err = svc.Reject(context.Background(), admin(), v.ID, "changed my mind", "")
	require.True(t, errors.Is(err, httpx.ErrInvalidState), "got %v", err)

	// The voucher and its history are unchanged by the failed calls.
	detail, err := svc.Get(context.Background(), scope.Scope{}, v.ID)
	require.NoError(t, err)
	require.Equal(t, approved.Status, detail.Status)
	require.Len(t, detail.Approvals, 2)
}

// serializationAbortRepo fails every transaction the way Postgres reports a
// write race, while reads still see the underlying store.
type serializationAbortRepo struct {
	*memoryVoucherRepo
}

func (r *serializationAbortRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fmt.Errorf("voucher: transition status: %w", &pgconn.PgError{Code: "40001"})
}

func TestSerializationAbortClassifiedByCurrentStatus(t *testing.T) {
	base := newMemoryVoucherRepo()
	svc := NewService(base, nil)

	v, err := svc.Create(context.Background(), cashier(1), branchScope(1), expenseInput(50))
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), admin(), v.ID, "")
	require.NoError(t, err)

	// A transaction aborted by a concurrent commit must read like losing the
	// CAS, not bubble up as an internal error.
	racy := NewService(&serializationAbortRepo{base}, nil)
	_, err = racy.Reject(context.Background(), admin(), v.ID, "too late", "")
	require.True(t, errors.Is(err, httpx.ErrInvalidState), "got %v", err)
}

func TestSerializationAbortOnPendingVoucherIsRetryable(t *testing.T) {
	base := newMemoryVoucherRepo()
	svc := NewService(base, nil)

	v, err := svc.Create(context.Background(), cashier(1), branchScope(1), expenseInput(50))
	require.NoError(t, err)

	racy := NewService(&serializationAbortRepo{base}, nil)
	_, err = racy.Approve(context.Background(), admin(), v.ID, "")
	require.True(t, errors.Is(err, httpx.ErrUnavailable), "got %v", err)
}

func TestListSingleDayRangeCoversWholeDay(t *testing.T) {
	repo := newMemoryVoucherRepo()
	svc := NewService(repo, nil)

	_, err := svc.Create(context.Background(), cashier(1), branchScope(1), expenseInput(50))
	require.NoError(t, err)

	now := time.Now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	vouchers, _, err := svc.List(context.Background(), branchScope(1), ListFilter{From: day, To: day})
	require.NoError(t, err)
	require.Len(t, vouchers, 1, "a voucher created during the day must fall inside From == To")

	yesterday := day.AddDate(0, 0, -1)
	vouchers, _, err = svc.List(context.Background(), branchScope(1), ListFilter{From: yesterday, To: yesterday})
	require.NoError(t, err)
	require.Empty(t, vouchers)
}

func TestConcurrentFinalisationSingleWinner(t *testing.T) {
	repo := newMemoryVoucherRepo()
	svc := NewService(repo, nil)

	v, err := svc.Create(context.Background(), cashier(1), branchScope(1), expenseInput(50))
	require.NoError(t, err)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = svc.Approve(context.Background(), admin(), v.ID, "")
			} else {
				_, err = svc.Reject(context.Background(), admin(), v.ID, "race", "")
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	winners := 0
	for err := range errs {
		if err == nil {
			winners++
		} else {
			require.True(t, errors.Is(err, httpx.ErrInvalidState), "got %v", err)
		}
	}
	require.Equal(t, 1, winners)

	detail, err := svc.Get(context.Background(), scope.Scope{}, v.ID)
	require.NoError(t, err)
	require.True(t, detail.Status.Terminal())
	require.Len(t, detail.Approvals, 2, "exactly one finalising row after the race")
}

func TestConcurrentCreateNumbersUnique(t *testing.T) {
	repo := newMemoryVoucherRepo()
	svc := NewService(repo, nil)

	const n = 32
	numbers := make(chan string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			v, err := svc.Create(context.Background(), cashier(1), branchScope(1), expenseInput(10))
			if err != nil {
				return err
			}
			numbers <- v.VoucherNo
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(numbers)

	seen := make(map[string]bool, n)
	for no := range numbers {
		require.False(t, seen[no], "duplicate voucher number %s", no)
		seen[no] = true
	}
	require.Len(t, seen, n)
}

func TestGetOutOfScopeReadsAsAbsent(t *testing.T) {
	repo := newMemoryVoucherRepo()
	svc := NewService(repo, nil)

	v, err := svc.Create(context.Background(), cashier(1), branchScope(1), expenseInput(50))
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), branchScope(2), v.ID)
	require.True(t, errors.Is(err, httpx.ErrNotFound))
}

func TestListScopeIsolation(t *testing.T) {
	repo := newMemoryVoucherRepo()
	svc := NewService(repo, nil)

	_, err := svc.Create(context.Background(), cashier(1), branchScope(1), expenseInput(50))
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), cashier(2), branchScope(2), expenseInput(70))
	require.NoError(t, err)

	vouchers, _, err := svc.List(context.Background(), branchScope(1), ListFilter{})
	require.NoError(t, err)
	require.Len(t, vouchers, 1)
	require.Equal(t, int64(1), vouchers[0].ScopeID)
}

func TestListFilterValidation(t *testing.T) {
	svc := NewService(newMemoryVoucherRepo(), nil)
	_, _, err := svc.List(context.Background(), scope.Scope{}, ListFilter{Status: "MAYBE"})
	require.True(t, errors.Is(err, httpx.ErrInvalidQuery))
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Status
}

func (n *recordingNotifier) VoucherFinalised(ctx context.Context, id uuid.UUID, status Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, status)
}

func TestNotifierFiresOnFinalisation(t *testing.T) {
	repo := newMemoryVoucherRepo()
	svc := NewService(repo, nil)
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)

	// Cashier create: pending, no event yet.
	v, err := svc.Create(context.Background(), cashier(1), branchScope(1), expenseInput(50))
	require.NoError(t, err)
	require.Empty(t, notifier.events)

	_, err = svc.Approve(context.Background(), admin(), v.ID, "")
	require.NoError(t, err)
	require.Equal(t, []Status{StatusApproved}, notifier.events)

	// Admin create: self-approved, fires immediately.
	_, err = svc.Create(context.Background(), admin(), scope.Scope{}, expenseInput(10))
	require.NoError(t, err)
	require.Len(t, notifier.events, 2)
}
