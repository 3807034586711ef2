// Command migrate-subjects backfills subject ids on legacy ledger entries.
// Historic rows recorded the counterparty only as a free-text fragment in
// the description; this one-shot migration resolves each fragment against
// the subjects table and stamps the entry with a proper subject reference.
// Rows that match zero or multiple subjects are left untouched and listed
// for manual review.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian/internal/app"
	"github.com/meridian-pos/meridian/internal/platform/db"
)

type legacyEntry struct {
	id          string
	subjectType string
	description string
}

func main() {
	dryRun := flag.Bool("dry-run", false, "report matches without writing")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `SELECT id, subject_type, description FROM ledger_entries WHERE subject_id = 0 AND description <> ''`)
	if err != nil {
		logger.Error("list legacy entries", slog.Any("error", err))
		os.Exit(1)
	}
	var legacy []legacyEntry
	for rows.Next() {
		var e legacyEntry
		if err := rows.Scan(&e.id, &e.subjectType, &e.description); err != nil {
			rows.Close()
			logger.Error("scan legacy entry", slog.Any("error", err))
			os.Exit(1)
		}
		legacy = append(legacy, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		logger.Error("list legacy entries", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("legacy entries found", slog.Int("count", len(legacy)))

	var resolved, ambiguous, unmatched int
	for _, e := range legacy {
		candidates, err := matchSubjects(ctx, pool, e)
		if err != nil {
			logger.Error("resolve subject", slog.String("entry_id", e.id), slog.Any("error", err))
			os.Exit(1)
		}
		switch len(candidates) {
		case 0:
			unmatched++
			logger.Warn("no subject match", slog.String("entry_id", e.id), slog.String("description", e.description))
			continue
		case 1:
		default:
			ambiguous++
			logger.Warn("ambiguous subject match", slog.String("entry_id", e.id), slog.Int("candidates", len(candidates)))
			continue
		}
		subjectID := candidates[0]

		if *dryRun {
			resolved++
			logger.Info("would backfill", slog.String("entry_id", e.id), slog.Int64("subject_id", subjectID))
			continue
		}
		if _, err := pool.Exec(ctx, `UPDATE ledger_entries SET subject_id = $2 WHERE id = $1`, e.id, subjectID); err != nil {
			logger.Error("backfill entry", slog.String("entry_id", e.id), slog.Any("error", err))
			os.Exit(1)
		}
		resolved++
	}

	logger.Info("backfill complete",
		slog.Int("resolved", resolved),
		slog.Int("ambiguous", ambiguous),
		slog.Int("unmatched", unmatched),
		slog.Bool("dry_run", *dryRun))
}

func matchSubjects(ctx context.Context, pool *pgxpool.Pool, e legacyEntry) ([]int64, error) {
	rows, err := pool.Query(ctx,
		`SELECT id FROM subjects WHERE subject_type = $1 AND POSITION(name IN $2) > 0`,
		e.subjectType, e.description)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
