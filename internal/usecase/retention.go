package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/semmidev/mongosnap/internal/domain"
	"go.uber.org/multierr"
)

// Retention deletes the job's snapshots created before a cutoff.
type Retention struct {
	store  domain.SnapshotStore
	filter domain.SnapshotFilter
	cutoff time.Time
	logger Logger
}

func NewRetention(store domain.SnapshotStore, filter domain.SnapshotFilter, cutoff time.Time, logger Logger) *Retention {
	return &Retention{
		store:  store,
		filter: filter,
		cutoff: cutoff,
		logger: logger,
	}
}

// Prune deletes every matching snapshot strictly older than the cutoff,
// except keep. Deletions are independent: a snapshot that is already gone is
// skipped and other failures are collected while the rest are still tried.
func (r *Retention) Prune(ctx context.Context, keep string) (int, error) {
	r.logger.Infof("Pruning snapshots described %q created before %s",
		r.filter.Description, r.cutoff.Format(time.RFC3339))

	snapshots, err := r.store.List(ctx, r.filter)
	if err != nil {
		return 0, fmt.Errorf("list snapshots: %w", err)
	}

	deleted := 0
	var errs error
	for _, snap := range snapshots {
		if snap.ID == keep {
			continue
		}
		if snap.CreatedAt.IsZero() {
			r.logger.Warnf("Snapshot %s has no creation time, leaving it alone", snap.ID)
			continue
		}
		if !snap.CreatedAt.Before(r.cutoff) {
			continue
		}

		r.logger.Infof("Deleting snapshot %s created %s", snap.ID, snap.CreatedAt.Format(time.RFC3339))
		if err := r.store.Delete(ctx, snap.ID); err != nil {
			if errors.Is(err, domain.ErrSnapshotNotFound) {
				r.logger.Infof("Snapshot %s is already gone", snap.ID)
				continue
			}
			r.logger.Errorf("Failed to delete snapshot %s: %v", snap.ID, err)
			errs = multierr.Append(errs, err)
			continue
		}
		deleted++
	}

	r.logger.Infof("Deleted %d of %d snapshot(s)", deleted, len(snapshots))
	return deleted, errs
}
