package domain

import (
	"context"
	"time"
)

// RunReport summarises a finished run for notifiers.
type RunReport struct {
	Success    bool
	SnapshotID string
	Archive    string
	Pruned     int
	Duration   time.Duration
	Err        error
}

type Notifier interface {
	Notify(ctx context.Context, report RunReport) error
}
