package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/semmidev/mongosnap/internal/adapter/database"
	"github.com/semmidev/mongosnap/internal/adapter/notifier"
	"github.com/semmidev/mongosnap/internal/adapter/storage"
	"github.com/semmidev/mongosnap/internal/adapter/volume"
	"github.com/semmidev/mongosnap/internal/config"
	"github.com/semmidev/mongosnap/internal/domain"
	"github.com/semmidev/mongosnap/internal/infrastructure/lock"
	"github.com/semmidev/mongosnap/internal/infrastructure/logger"
	"github.com/semmidev/mongosnap/internal/infrastructure/poller"
	"github.com/semmidev/mongosnap/internal/usecase"
)

type App struct {
	config *config.Config
	logger *logger.Logger
	backup *usecase.Backup
}

// New validates cfg and wires one backup run. Validation problems are
// logged one per line and returned as a *config.ValidationError.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		logValidation(log, err)
		log.Close()
		return nil, err
	}

	log.Infof("Starting %s for %s", cfg.App.Name, cfg.Database.Name)

	workspace, err := storage.NewWorkspace(cfg.Volume.MountPath, cfg.Volume.DumpDir)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to initialize workspace: %w", err)
	}
	log.Infof("Dump directory: %s", workspace.Path())

	awsCfg, err := storage.LoadAWS(context.Background(), &cfg.AWS)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to initialize AWS: %w", err)
	}

	filter := domain.SnapshotFilter{
		Description: cfg.Snapshot.Description,
		JobTag:      cfg.Snapshot.JobTag,
	}
	snapshots := storage.NewEBS(awsCfg)

	deps := usecase.BackupDeps{
		Identity:  database.NewReplicaIdentity(&cfg.Database),
		Lock:      lockFunc(cfg, log),
		Volume:    volume.NewManager(cfg.Volume.Device, cfg.Volume.MountPath, cfg.Volume.Filesystem, log.Step("volume")),
		Workspace: workspace,
		Dumper:    database.NewMongoDB(&cfg.Database, log.Step("dump")),
		Snapshots: snapshots,
		Poller:    poller.New(cfg.Snapshot.PollInterval, cfg.Snapshot.Timeout),
		Notifiers: initializeNotifiers(cfg, log),
		Logger:    log,
	}

	if cfg.OffsiteEnabled() {
		deps.Copier = storage.NewS3(awsCfg, cfg.Offsite.Bucket, cfg.Offsite.Prefix)
		log.Infof("✓ Offsite copy enabled (bucket: %s)", cfg.Offsite.Bucket)
	}

	// The cutoff is fixed at startup so a long snapshot wait does not move it.
	if cfg.PruneEnabled() {
		cutoff, err := config.ParseCutoff(cfg.Snapshot.RetentionCutoff, time.Now())
		if err != nil {
			log.Close()
			return nil, fmt.Errorf("invalid retention cutoff: %w", err)
		}
		deps.Pruner = usecase.NewRetention(snapshots, filter, cutoff, log.Step("prune"))
		log.Infof("✓ Retention enabled: snapshots before %s are deleted", cutoff.Format(time.RFC3339))
	}

	backup := usecase.NewBackup(deps, usecase.BackupOptions{
		DesignatedNode: cfg.Database.DesignatedNode,
		VolumeID:       cfg.Volume.VolumeID,
		Filter:         filter,
		CopyPrefix:     cfg.Database.Name,
	})

	return &App{config: cfg, logger: log, backup: backup}, nil
}

func logValidation(log *logger.Logger, err error) {
	var verr *config.ValidationError
	if !errors.As(err, &verr) {
		log.Errorf("Invalid configuration: %v", err)
		return
	}
	for _, m := range verr.Missing {
		log.Errorf("Missing %s (%s_%s): %s", m.Key, config.EnvPrefix, envName(m.Key), m.Purpose)
	}
	for _, msg := range verr.Invalid {
		log.Errorf("Invalid configuration: %s", msg)
	}
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// lockFunc reports contention as usecase.ErrLocked; any other lock error is
// an ordinary failure.
func lockFunc(cfg *config.Config, log *logger.Logger) usecase.LockFunc {
	return func() (usecase.HeldLock, error) {
		ref := cfg.LockPath("")
		if ref == "" {
			self, err := lock.Self()
			if err != nil {
				return nil, err
			}
			ref = self
		}

		l, err := lock.Acquire(ref)
		if errors.Is(err, lock.ErrLocked) {
			return nil, fmt.Errorf("%w: %v", usecase.ErrLocked, err)
		}
		if err != nil {
			return nil, err
		}
		log.Infof("Holding lock on %s", l.Path())
		return l, nil
	}
}

func initializeNotifiers(cfg *config.Config, log *logger.Logger) []domain.Notifier {
	var notifiers []domain.Notifier

	if cfg.Notify.URL != "" {
		notifiers = append(notifiers, notifier.NewHeartbeat(cfg.Notify.URL, cfg.Notify.Timeout))
		log.Infof("✓ Heartbeat enabled")
	}

	if cfg.Notify.Telegram.BotToken != "" {
		label := fmt.Sprintf("%s on %s", cfg.Database.Name, cfg.Database.DesignatedNode)
		tg, err := notifier.NewTelegram(&cfg.Notify.Telegram, label)
		if err != nil {
			log.Errorf("Failed to initialize Telegram: %v", err)
		} else {
			notifiers = append(notifiers, tg)
			log.Infof("✓ Telegram notifications enabled")
		}
	}

	return notifiers
}

// Run executes a single backup. The lock taken during the run stays held
// until Shutdown or process exit.
func (a *App) Run(ctx context.Context) (usecase.Result, error) {
	return a.backup.Execute(ctx)
}

func (a *App) Shutdown() {
	if held := a.backup.Held(); held != nil {
		if err := held.Release(); err != nil {
			a.logger.Warnf("Failed to release lock: %v", err)
		}
	}
	a.logger.Close()
}
