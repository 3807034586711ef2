package voucher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-pos/meridian/internal/platform/db"
	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/scope"
	"github.com/meridian-pos/meridian/internal/shared"
)

// Notifier receives a signal whenever a voucher reaches a terminal state, so
// cached report aggregates can be invalidated or recomputed.
type Notifier interface {
	VoucherFinalised(ctx context.Context, id uuid.UUID, status Status)
}

// Service owns the voucher lifecycle.
type Service struct {
	repo     Repository
	logger   *slog.Logger
	notifier Notifier
	now      func() time.Time
}

// NewService constructs the voucher service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// SetNotifier injects the finalisation hook.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Create validates and persists a new voucher with its items and the initial
// SUBMITTED audit row, all in one transaction. Administrators self-approve at
// creation: the voucher is born APPROVED but its history still starts with a
// single SUBMITTED row and no separate APPROVED row. Downstream reporting
// depends on that exact audit shape, so it is preserved deliberately.
func (s *Service) Create(ctx context.Context, id *shared.Identity, sc scope.Scope, input CreateInput) (Voucher, error) {
	if err := validateCreate(input); err != nil {
		return Voucher{}, err
	}
	if sc.All() && id.Role != shared.RoleAdmin {
		return Voucher{}, fmt.Errorf("voucher: caller has no scope assignment: %w", httpx.ErrForbidden)
	}

	now := s.now()
	v := Voucher{
		ID:            uuid.New(),
		Type:          input.Type,
		Category:      input.Category,
		PaymentMethod: input.PaymentMethod,
		Amount:        input.Amount,
		ScopeType:     sc.Type,
		ScopeID:       sc.ID,
		UserID:        id.UserID,
		UserName:      id.UserName,
		UserRole:      id.Role,
		Status:        StatusPending,
		Notes:         input.Notes,
	}
	if id.Role == shared.RoleAdmin {
		v.Status = StatusApproved
		approvedBy := id.UserID
		approvedAt := now
		v.ApprovedBy = &approvedBy
		v.ApprovedAt = &approvedAt
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prefix := NumberPrefix(v.Type)
		seq, err := tx.NextSequence(ctx, prefix, now)
		if err != nil {
			return err
		}
		v.VoucherNo = FormatNumber(prefix, now, seq)

		if err := tx.CreateVoucher(ctx, v); err != nil {
			return err
		}
		for _, item := range input.Items {
			if err := tx.CreateItem(ctx, Item{
				VoucherID: v.ID,
				Name:      item.Name,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
				LineTotal: item.Quantity.Mul(item.UnitPrice),
			}); err != nil {
				return err
			}
		}
		return tx.AppendApproval(ctx, Approval{
			VoucherID:       v.ID,
			Action:          ActionSubmitted,
			PerformedBy:     id.UserID,
			PerformedByName: id.UserName,
			PerformedByRole: id.Role,
			Comments:        input.Notes,
		})
	})
	if err != nil {
		return Voucher{}, err
	}

	if v.Status == StatusApproved {
		s.notifyFinalised(ctx, v.ID, v.Status)
	}
	return s.repo.GetVoucher(ctx, v.ID)
}

// Approve transitions a PENDING voucher to APPROVED. Administrator only.
func (s *Service) Approve(ctx context.Context, id *shared.Identity, voucherID uuid.UUID, notes string) (Voucher, error) {
	return s.finalise(ctx, id, voucherID, StatusApproved, notes, "")
}

// Reject transitions a PENDING voucher to REJECTED. Administrator only; the
// rejection reason is mandatory.
func (s *Service) Reject(ctx context.Context, id *shared.Identity, voucherID uuid.UUID, rejectionReason, notes string) (Voucher, error) {
	if rejectionReason == "" {
		return Voucher{}, fmt.Errorf("voucher: rejection reason required: %w", httpx.ErrValidation)
	}
	return s.finalise(ctx, id, voucherID, StatusRejected, notes, rejectionReason)
}

// errTransitionLost marks a CAS update that affected no row: the voucher is
// either absent or already finalised. Classified outside the transaction.
var errTransitionLost = errors.New("voucher: transition lost")

func (s *Service) finalise(ctx context.Context, id *shared.Identity, voucherID uuid.UUID, to Status, notes, rejectionReason string) (Voucher, error) {
	if err := scope.RequireAdmin(id); err != nil {
		return Voucher{}, err
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		won, err := tx.TransitionStatus(ctx, voucherID, to, id.UserID, s.now(), rejectionReason)
		if err != nil {
			return err
		}
		if !won {
			return errTransitionLost
		}
		action := ActionApproved
		comments := notes
		if to == StatusRejected {
			action = ActionRejected
			comments = rejectionReason
			if notes != "" {
				comments = rejectionReason + ": " + notes
			}
		}
		return tx.AppendApproval(ctx, Approval{
			VoucherID:       voucherID,
			Action:          action,
			PerformedBy:     id.UserID,
			PerformedByName: id.UserName,
			PerformedByRole: id.Role,
			Comments:        comments,
		})
	})
	if errors.Is(err, errTransitionLost) || db.IsSerializationFailure(err) {
		current, getErr := s.repo.GetVoucher(ctx, voucherID)
		if getErr != nil {
			return Voucher{}, getErr
		}
		if CanTransition(current.Status, to) {
			// Still PENDING on re-read: the race is unsettled, let the caller retry.
			return Voucher{}, fmt.Errorf("voucher: %s transition raced: %w", current.VoucherNo, httpx.ErrUnavailable)
		}
		return Voucher{}, fmt.Errorf("voucher: %s is %s, not PENDING: %w", current.VoucherNo, current.Status, httpx.ErrInvalidState)
	}
	if err != nil {
		return Voucher{}, err
	}

	s.notifyFinalised(ctx, voucherID, to)
	return s.repo.GetVoucher(ctx, voucherID)
}

// List returns vouchers visible within the caller's scope, newest first.
func (s *Service) List(ctx context.Context, sc scope.Scope, filter ListFilter) ([]Voucher, shared.Pagination, error) {
	if err := validateListFilter(filter); err != nil {
		return nil, shared.Pagination{}, err
	}
	vouchers, total, err := s.repo.ListVouchers(ctx, sc, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return vouchers, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Get returns a voucher with items and approval history, enforcing scope
// visibility. Out-of-scope vouchers read as absent, not forbidden.
func (s *Service) Get(ctx context.Context, sc scope.Scope, voucherID uuid.UUID) (Detail, error) {
	detail, err := s.repo.GetDetail(ctx, voucherID)
	if err != nil {
		return Detail{}, err
	}
	if !sc.All() && (detail.ScopeType != sc.Type || detail.ScopeID != sc.ID) {
		return Detail{}, fmt.Errorf("voucher: %s: %w", voucherID, httpx.ErrNotFound)
	}
	return detail, nil
}

func (s *Service) notifyFinalised(ctx context.Context, id uuid.UUID, status Status) {
	if s.notifier == nil {
		return
	}
	s.notifier.VoucherFinalised(ctx, id, status)
}

func validateCreate(input CreateInput) error {
	if !input.Type.Valid() {
		return fmt.Errorf("voucher: unknown type %q: %w", input.Type, httpx.ErrValidation)
	}
	if input.Category == "" {
		return fmt.Errorf("voucher: category required: %w", httpx.ErrValidation)
	}
	if input.PaymentMethod == "" {
		return fmt.Errorf("voucher: payment method required: %w", httpx.ErrValidation)
	}
	if !input.Amount.IsPositive() {
		return fmt.Errorf("voucher: amount must be positive: %w", httpx.ErrValidation)
	}
	for _, item := range input.Items {
		if item.Name == "" {
			return fmt.Errorf("voucher: item name required: %w", httpx.ErrValidation)
		}
		if !item.Quantity.IsPositive() || item.UnitPrice.IsNegative() {
			return fmt.Errorf("voucher: item %q has invalid quantity or price: %w", item.Name, httpx.ErrValidation)
		}
	}
	return nil
}

func validateListFilter(filter ListFilter) error {
	if filter.Status != "" && filter.Status != StatusPending && !filter.Status.Terminal() {
		return fmt.Errorf("voucher: unknown status %q: %w", filter.Status, httpx.ErrInvalidQuery)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return fmt.Errorf("voucher: unknown type %q: %w", filter.Type, httpx.ErrInvalidQuery)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return fmt.Errorf("voucher: date range ends before it starts: %w", httpx.ErrInvalidQuery)
	}
	return nil
}
