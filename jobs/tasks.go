// Package jobs contains the background task definitions and the Asynq
// worker harness. Two concerns live here: nightly precomputation of the
// previous day's summary into the report cache, and asynchronous cache
// invalidation when a voucher reaches a terminal state.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/meridian-pos/meridian/internal/reports"
	"github.com/meridian-pos/meridian/internal/scope"
	"github.com/meridian-pos/meridian/internal/voucher"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportsSnapshot precomputes the previous day's summaries.
	TaskReportsSnapshot = "reports:snapshot"
	// TaskVoucherFinalised invalidates report caches after a decision.
	TaskVoucherFinalised = "voucher:finalised"
)

// SnapshotPayload names the day to precompute. Zero Day means yesterday.
type SnapshotPayload struct {
	Day string `json:"day,omitempty"`
}

// NewSnapshotTask constructs the snapshot task.
func NewSnapshotTask(payload SnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsSnapshot, data), nil
}

// VoucherFinalisedPayload records which voucher reached a terminal state.
type VoucherFinalisedPayload struct {
	VoucherID uuid.UUID      `json:"voucher_id"`
	Status    voucher.Status `json:"status"`
}

// NewVoucherFinalisedTask constructs the invalidation task.
func NewVoucherFinalisedTask(payload VoucherFinalisedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVoucherFinalised, data), nil
}

// SnapshotHandler warms the report cache for the requested day. Running the
// reads through the service stores the results under the current cache
// version, so the first dashboard hit of the morning is already warm.
func SnapshotHandler(svc *reports.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SnapshotPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		day := time.Now().UTC().AddDate(0, 0, -1)
		if payload.Day != "" {
			parsed, err := time.Parse("2006-01-02", payload.Day)
			if err != nil {
				return asynq.SkipRetry
			}
			day = parsed
		}
		r := reports.DateRange{From: day, To: day}

		if _, err := svc.Daily(ctx, scope.Scope{}, r); err != nil {
			return err
		}
		if _, err := svc.PaymentMethods(ctx, scope.Scope{}, r); err != nil {
			return err
		}
		if _, err := svc.Scopes(ctx, r); err != nil {
			return err
		}
		if _, err := svc.Statuses(ctx, scope.Scope{}, r); err != nil {
			return err
		}
		logger.Info("report snapshot complete", slog.String("day", day.Format("2006-01-02")))
		return nil
	}
}

// VoucherFinalisedHandler bumps the report cache version.
func VoucherFinalisedHandler(svc *reports.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload VoucherFinalisedPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		svc.VoucherFinalised(ctx, payload.VoucherID, payload.Status)
		logger.Info("voucher finalisation processed",
			slog.String("voucher_id", payload.VoucherID.String()),
			slog.String("status", string(payload.Status)))
		return nil
	}
}
