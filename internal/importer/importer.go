package importer

import (
	"context"
	"io"
	"log/slog"

	"edgealtar/internal/db"
	"edgealtar/internal/types"
)

// DefaultBatchSize is the number of rows sent per round trip.
const DefaultBatchSize = 500

// Upserter writes one batch of profiles. Implemented by db.ImportRepository.
type Upserter interface {
	UpsertBatch(ctx context.Context, records []db.ProfileImport) (int, error)
}

// Options tunes a run.
type Options struct {
	BatchSize int
	DryRun    bool
}

// Report summarises a run. Unchanged counts rows the database kept because
// it already held newer state.
type Report struct {
	Read      int
	Skipped   int
	Premium   int
	Written   int
	Unchanged int
}

// Importer loads a users export into the profiles table.
type Importer struct {
	store  Upserter
	opts   Options
	logger *slog.Logger
}

func New(store Upserter, opts Options, logger *slog.Logger) *Importer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, opts: opts, logger: logger}
}

// Run parses r and upserts its documents batch by batch. A failed batch
// stops the run; batches already written stay written, and re-running is
// safe because the upsert never overwrites newer rows.
func (i *Importer) Run(ctx context.Context, r io.Reader) (Report, error) {
	users, err := ParseExport(r)
	if err != nil {
		return Report{}, err
	}

	var (
		report Report
		batch  = make([]db.ProfileImport, 0, i.opts.BatchSize)
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if i.opts.DryRun {
			report.Written += len(batch)
			batch = batch[:0]
			return nil
		}
		written, err := i.store.UpsertBatch(ctx, batch)
		report.Written += written
		report.Unchanged += len(batch) - written
		if err != nil {
			return err
		}
		i.logger.InfoContext(ctx, "profile batch imported", "rows", len(batch), "written", written)
		batch = batch[:0]
		return nil
	}

	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		report.Read++
		rec, ok, reason := ToProfile(u)
		if !ok {
			report.Skipped++
			i.logger.WarnContext(ctx, "skipping user document", "reason", reason, "id", u.ID)
			continue
		}
		// A uid may only appear once per batch statement; keep the first.
		if _, dup := seen[rec.UserID]; dup {
			report.Skipped++
			i.logger.WarnContext(ctx, "skipping duplicate user document", "user_id", rec.UserID)
			continue
		}
		seen[rec.UserID] = struct{}{}

		if rec.AccessLevel == types.AccessPremium {
			report.Premium++
		}
		batch = append(batch, rec)
		if len(batch) == i.opts.BatchSize {
			if err := flush(); err != nil {
				return report, err
			}
		}
	}
	if err := flush(); err != nil {
		return report, err
	}

	i.logger.InfoContext(ctx, "profile import complete",
		"read", report.Read,
		"skipped", report.Skipped,
		"premium", report.Premium,
		"written", report.Written,
		"unchanged", report.Unchanged,
		"dry_run", i.opts.DryRun,
	)
	return report, nil
}
