package domain

import (
	"context"
	"errors"
	"time"
)

type SnapshotState string

const (
	SnapshotPending   SnapshotState = "pending"
	SnapshotCompleted SnapshotState = "completed"
	SnapshotError     SnapshotState = "error"
)

// Snapshot is a block storage snapshot owned by the backend. This process only
// creates, inspects and deletes it by ID.
type Snapshot struct {
	ID          string
	VolumeID    string
	Description string
	State       SnapshotState
	CreatedAt   time.Time
}

// SnapshotFilter selects the snapshots belonging to one backup job.
type SnapshotFilter struct {
	Description string
	JobTag      string
}

type SnapshotStore interface {
	Create(ctx context.Context, volumeID string, filter SnapshotFilter) (string, error)
	Describe(ctx context.Context, snapshotID string) (*Snapshot, error)
	List(ctx context.Context, filter SnapshotFilter) ([]Snapshot, error)
	Delete(ctx context.Context, snapshotID string) error
}

// ErrSnapshotNotFound is returned by SnapshotStore when the ID is unknown to
// the backend, e.g. it was already deleted.
var ErrSnapshotNotFound = errors.New("snapshot not found")
