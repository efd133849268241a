package usecase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/semmidev/mongosnap/internal/domain"
	"github.com/semmidev/mongosnap/internal/infrastructure/poller"
)

// ErrNotDesignatedNode ends a run early on replica set members that are not
// supposed to take backups. It is an expected outcome, not a failure.
var ErrNotDesignatedNode = errors.New("this node is not the designated backup node")

// ErrLocked reports that another run holds the job lock. LockFunc
// implementations wrap it so contention can be told apart from lock errors.
var ErrLocked = errors.New("another backup run is in progress")

type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeIneligible Outcome = "ineligible"
	OutcomeLocked     Outcome = "locked"
	OutcomeFailed     Outcome = "failed"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// HeldLock is released by process exit; Release is only for early cleanup.
type HeldLock interface {
	Release() error
}

// LockFunc acquires the job lock without blocking.
type LockFunc func() (HeldLock, error)

type Poller interface {
	Until(ctx context.Context, check poller.CheckFunc, notify poller.NotifyFunc) error
}

type Pruner interface {
	Prune(ctx context.Context, keep string) (int, error)
}

// BackupDeps are the collaborators of one backup run. Copier and Pruner are
// optional.
type BackupDeps struct {
	Identity  domain.NodeIdentity
	Lock      LockFunc
	Volume    domain.Volume
	Workspace domain.Workspace
	Dumper    domain.Dumper
	Copier    domain.ArchiveCopier
	Snapshots domain.SnapshotStore
	Poller    Poller
	Pruner    Pruner
	Notifiers []domain.Notifier
	Logger    Logger
	Now       func() time.Time
}

type BackupOptions struct {
	DesignatedNode string
	VolumeID       string
	Filter         domain.SnapshotFilter
	// CopyPrefix is prepended to the archive name for offsite copies.
	CopyPrefix string
}

// Result describes how a run ended.
type Result struct {
	Outcome    Outcome
	Archive    string
	SnapshotID string
	Copied     int
	Pruned     int
	Duration   time.Duration
}

// Backup runs the mount, dump, unmount, snapshot, prune sequence. Each step
// must succeed before the next one starts.
type Backup struct {
	deps BackupDeps
	opts BackupOptions
	held HeldLock
}

func NewBackup(deps BackupDeps, opts BackupOptions) *Backup {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Backup{deps: deps, opts: opts}
}

// Held returns the lock taken by Execute, if any.
func (uc *Backup) Held() HeldLock {
	return uc.held
}

// Execute performs one run. Ineligible nodes get a nil error; lock
// contention and step failures are returned.
func (uc *Backup) Execute(ctx context.Context) (Result, error) {
	start := uc.deps.Now()
	res := Result{Outcome: OutcomeFailed}

	err := uc.run(ctx, &res)
	res.Duration = uc.deps.Now().Sub(start)

	switch {
	case err == nil:
		res.Outcome = OutcomeSuccess
		uc.deps.Logger.Infof("Backup completed in %s: archive %s, snapshot %s, pruned %d",
			res.Duration.Round(time.Second), res.Archive, res.SnapshotID, res.Pruned)
		uc.notify(ctx, res, nil)
		return res, nil

	case errors.Is(err, ErrNotDesignatedNode):
		res.Outcome = OutcomeIneligible
		uc.deps.Logger.Infof("Skipping backup: %v", err)
		return res, nil

	case res.Outcome == OutcomeLocked:
		uc.deps.Logger.Warnf("Another run is in progress: %v", err)
		return res, err

	default:
		uc.deps.Logger.Errorf("Backup failed after %s: %v", res.Duration.Round(time.Second), err)
		uc.notify(ctx, res, err)
		return res, err
	}
}

func (uc *Backup) run(ctx context.Context, res *Result) error {
	if err := uc.checkEligibility(ctx); err != nil {
		return err
	}

	held, err := uc.deps.Lock()
	if err != nil {
		if errors.Is(err, ErrLocked) {
			res.Outcome = OutcomeLocked
		}
		return fmt.Errorf("acquire lock: %w", err)
	}
	uc.held = held
	uc.deps.Logger.Infof("Acquired backup lock")

	if err := uc.deps.Volume.Mount(ctx); err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	archive, err := uc.dump(ctx, res)
	if err != nil {
		uc.unmountAfterFailure(ctx)
		return err
	}
	res.Archive = archive

	if err := uc.deps.Volume.Unmount(ctx); err != nil {
		return fmt.Errorf("unmount: %w", err)
	}

	snapshotID, err := uc.snapshot(ctx)
	if snapshotID != "" {
		res.SnapshotID = snapshotID
	}
	if err != nil {
		return err
	}

	if uc.deps.Pruner != nil {
		pruned, err := uc.deps.Pruner.Prune(ctx, snapshotID)
		res.Pruned = pruned
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
	} else {
		uc.deps.Logger.Infof("No retention cutoff configured, skipping prune")
	}

	return nil
}

func (uc *Backup) checkEligibility(ctx context.Context) error {
	me, err := uc.deps.Identity.Self(ctx)
	if err != nil {
		return fmt.Errorf("eligibility check: %w", err)
	}

	designated := strings.TrimSpace(uc.opts.DesignatedNode)
	if me != designated {
		return fmt.Errorf("%w: this node is %s, designated node is %s", ErrNotDesignatedNode, me, designated)
	}

	uc.deps.Logger.Infof("Node %s is the designated backup node", me)
	return nil
}

// dump cleans the workspace and writes a fresh dump into a new archive
// directory, optionally copying it offsite.
func (uc *Backup) dump(ctx context.Context, res *Result) (string, error) {
	uc.deps.Logger.Infof("Removing previous dump")
	if err := uc.deps.Workspace.Clean(); err != nil {
		return "", fmt.Errorf("clean: %w", err)
	}

	archive := ArchiveName(uc.deps.Now())
	dir := uc.deps.Workspace.ArchiveDir(archive)

	uc.deps.Logger.Infof("Dumping into %s", dir)
	if err := uc.deps.Dumper.Dump(ctx, dir); err != nil {
		return "", fmt.Errorf("dump: %w", err)
	}

	if size, err := uc.deps.Workspace.Size(dir); err != nil {
		uc.deps.Logger.Warnf("Could not measure dump %s: %v", dir, err)
	} else {
		uc.deps.Logger.Infof("Dump created, size: %.2f MB", float64(size)/(1024*1024))
	}

	if uc.deps.Copier != nil {
		remote := path.Join(uc.opts.CopyPrefix, archive)
		copied, err := uc.deps.Copier.CopyDir(ctx, dir, remote)
		res.Copied = copied
		if err != nil {
			uc.deps.Logger.Errorf("Offsite copy incomplete, %d file(s) uploaded: %v", copied, err)
		} else {
			uc.deps.Logger.Infof("Copied %d file(s) offsite to %s", copied, remote)
		}
	}

	return archive, nil
}

func (uc *Backup) unmountAfterFailure(ctx context.Context) {
	if err := uc.deps.Volume.Unmount(ctx); err != nil {
		uc.deps.Logger.Errorf("Unmount after failed dump also failed: %v", err)
	}
}

// snapshot starts a snapshot of the unmounted volume and blocks until the
// backend reports it completed.
func (uc *Backup) snapshot(ctx context.Context) (string, error) {
	snapshotID, err := uc.deps.Snapshots.Create(ctx, uc.opts.VolumeID, uc.opts.Filter)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	uc.deps.Logger.Infof("Started snapshot %s of %s", snapshotID, uc.opts.VolumeID)

	check := func(ctx context.Context) (bool, error) {
		snap, err := uc.deps.Snapshots.Describe(ctx, snapshotID)
		if err != nil {
			return false, err
		}
		switch snap.State {
		case domain.SnapshotCompleted:
			return true, nil
		case domain.SnapshotError:
			return false, poller.Fatal(fmt.Errorf("snapshot %s entered error state", snapshotID))
		default:
			uc.deps.Logger.Infof("Snapshot %s is %s", snapshotID, snap.State)
			return false, nil
		}
	}
	notify := func(err error, attempt int) {
		if !poller.IsNotDone(err) {
			uc.deps.Logger.Warnf("Snapshot status check %d failed, retrying: %v", attempt, err)
		}
	}

	if err := uc.deps.Poller.Until(ctx, check, notify); err != nil {
		return snapshotID, fmt.Errorf("await snapshot %s: %w", snapshotID, err)
	}

	uc.deps.Logger.Infof("Snapshot %s completed", snapshotID)
	return snapshotID, nil
}

func (uc *Backup) notify(ctx context.Context, res Result, runErr error) {
	report := domain.RunReport{
		Success:    runErr == nil,
		SnapshotID: res.SnapshotID,
		Archive:    res.Archive,
		Pruned:     res.Pruned,
		Duration:   res.Duration,
		Err:        runErr,
	}

	for _, n := range uc.deps.Notifiers {
		if err := n.Notify(ctx, report); err != nil {
			uc.deps.Logger.Errorf("Notification failed: %v", err)
		}
	}
}
