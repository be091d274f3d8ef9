// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

/*
runner.go - Backup Run Orchestration

Runner Responsibilities:
  - Preflight checks before any user is touched
  - Sequential per-user archive, transform and upload
  - Rotation of the storage prefix after the backups
  - Notifications and metrics for every outcome

Failure Isolation:
A user whose backup fails is recorded and skipped; the run continues with the
next user. Temporary files of every user are removed whatever the outcome.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/xbackup/internal/archive"
	"github.com/tomtom215/xbackup/internal/artifact"
	"github.com/tomtom215/xbackup/internal/config"
	"github.com/tomtom215/xbackup/internal/errs"
	"github.com/tomtom215/xbackup/internal/logging"
	"github.com/tomtom215/xbackup/internal/metrics"
	"github.com/tomtom215/xbackup/internal/notify"
	"github.com/tomtom215/xbackup/internal/pipeline"
	"github.com/tomtom215/xbackup/internal/preflight"
	"github.com/tomtom215/xbackup/internal/retention"
	"github.com/tomtom215/xbackup/internal/storage"
	"github.com/tomtom215/xbackup/internal/streamcipher"
	"github.com/tomtom215/xbackup/internal/users"
)

// LockName is the advisory lock file created in the work dir.
const LockName = ".xbackup.lock"

// ErrLocked is returned when another run holds the work dir lock.
var ErrLocked = errors.New("another xbackup run is in progress")

// Deps are the collaborators a Runner uses. Nil fields are built from the config.
type Deps struct {
	Store    storage.Backend
	Notifier notify.Notifier
	Checker  *preflight.Checker
	Now      func() time.Time
}

// Runner executes backup runs and restores.
type Runner struct {
	cfg      *config.Config
	reg      *pipeline.Registry
	pipe     *pipeline.Pipeline
	store    storage.Backend
	notifier notify.Notifier
	checker  *preflight.Checker
	now      func() time.Time
	host     string
	log      zerolog.Logger
}

// NewRunner wires a runner from cfg. cfg must already be validated.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRunner(ctx context.Context, cfg *config.Config, deps Deps, log zerolog.Logger) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backup configuration is required")
	}
	compression, encryption, err := cfg.Methods()
	if err != nil {
		return nil, err
	}

	reg := NewRegistry(cfg, log)
	pipe, err := pipeline.New(pipeline.Config{
		Compression: compression,
		Encryption:  encryption,
		Level:       cfg.Compression.Level,
		Passphrase:  cfg.Encryption.Passphrase,
	}, reg, log)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:      cfg,
		reg:      reg,
		pipe:     pipe,
		store:    deps.Store,
		notifier: deps.Notifier,
		checker:  deps.Checker,
		now:      deps.Now,
		log:      logging.WithComponent(log, "backup"),
	}
	if r.store == nil {
		if r.store, err = storage.New(ctx, cfg.Storage, log); err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
	}
	if r.notifier == nil {
		r.notifier = notify.New(cfg.Notify, log)
	}
	if r.checker == nil {
		r.checker = &preflight.Checker{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	r.host, _ = os.Hostname() //nolint:errcheck // host is informational
	return r, nil
}

// NewRegistry builds the pipeline registry selected by cfg.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRegistry(cfg *config.Config, log zerolog.Logger) *pipeline.Registry {
	return pipeline.NewRegistry(pipeline.Options{
		Native:       cfg.Compression.Native,
		Binaries:     cfg.Tools.Binaries,
		CipherFormat: streamcipher.Format(cfg.Encryption.Format),
		ChunkSize:    cfg.Encryption.ChunkSize,
		GPGHome:      cfg.Encryption.GPGHome,
	}, log)
}

// Store returns the storage backend.
func (r *Runner) Store() storage.Backend {
	return r.store
}

// Run backs up every discovered user, then rotates the storage prefix. The
// returned error is non-nil only when the run aborted; per-user failures are
// reported through RunReport.OK.
func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	compression, encryption := r.pipe.Methods()
	report := &RunReport{
		RunID:       logging.NewRunID(),
		Host:        r.host,
		StartedAt:   r.now(),
		Compression: string(compression),
		Encryption:  string(encryption),
		Storage:     r.store.Name(),
		Prefix:      r.cfg.Storage.Prefix,
	}
	ctx = logging.WithRunID(ctx, report.RunID)
	log := logging.Ctx(ctx, r.log)

	log.Info().
		Str("compression", report.Compression).
		Str("encryption", report.Encryption).
		Str("storage", report.Storage).
		Msg("Backup run started")

	err := r.run(ctx, report)
	if err != nil {
		report.Error = err.Error()
		log.Error().Err(err).Msg("Backup run aborted")
	}
	r.finish(ctx, report)
	return report, err
}

func (r *Runner) run(ctx context.Context, report *RunReport) error {
	log := logging.Ctx(ctx, r.log)

	report.Preflight = r.checker.Run(ctx, r.preflightOptions())
	if err := report.Preflight.Err(); err != nil {
		return err
	}

	unlock, err := acquireLock(filepath.Join(r.cfg.WorkDir, LockName))
	if err != nil {
		return err
	}
	defer unlock()

	found, err := users.Discover(r.cfg.Source.Root, users.Filter{
		Include:       r.cfg.Source.Include,
		Exclude:       r.cfg.Source.Exclude,
		IncludeHidden: r.cfg.Source.IncludeHidden,
	})
	if err != nil {
		return err
	}
	report.MissingUsers = users.Missing(found, r.cfg.Source.Include)
	for _, name := range report.MissingUsers {
		log.Warn().Str("user", name).Msg("Included user has no directory")
	}
	log.Info().Int("users", len(found)).Msg("Users discovered")

	runDir, err := os.MkdirTemp(r.cfg.WorkDir, "run-")
	if err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(runDir); err != nil {
			log.Warn().Err(err).Str("dir", runDir).Msg("Failed to remove run directory")
		}
	}()

	for _, u := range found {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted before %s: %w", u.Name, err)
		}
		res := r.backupUser(ctx, u, runDir, report.StartedAt)
		report.add(res)
		r.notifyUser(ctx, res)
	}

	if r.cfg.Retention.Enabled {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted before rotation: %w", err)
		}
		r.rotate(ctx, report)
	}
	return nil
}

func (r *Runner) preflightOptions() preflight.Options {
	opts := preflight.Options{
		WorkDir:         r.cfg.WorkDir,
		SourceRoot:      r.cfg.Source.Root,
		MinFreeBytes:    r.cfg.Preflight.MinFreeBytes,
		NeedsPassphrase: r.cfg.NeedsPassphrase(),
		HasPassphrase:   r.cfg.Encryption.Passphrase != "",
	}
	if !r.cfg.Preflight.SkipToolCheck {
		compression, encryption := r.pipe.Methods()
		opts.Binaries = r.reg.RequiredBinaries(compression, encryption)
	}
	return opts
}

// backupUser archives, transforms and uploads one user. It never returns an
// error; the outcome is in the result.
func (r *Runner) backupUser(ctx context.Context, u users.User, runDir string, at time.Time) UserResult {
	ctx = logging.WithUser(ctx, u.Name)
	log := logging.Ctx(ctx, r.log)
	start := r.now()
	res := UserResult{User: u.Name, Status: StatusFailed, Stage: StageArchive, StartedAt: start}

	fail := func(err error) UserResult {
		res.Error = err.Error()
		res.ErrorKind = string(errs.KindOf(err))
		res.DurationMS = r.now().Sub(start).Milliseconds()
		metrics.RecordBackup(false)
		log.Error().Err(err).Str("stage", string(res.Stage)).Str("error_kind", res.ErrorKind).Msg("User backup failed")
		return res
	}

	userDir := filepath.Join(runDir, u.Name)
	if err := os.Mkdir(userDir, 0o700); err != nil {
		return fail(fmt.Errorf("create user work directory: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(userDir); err != nil {
			log.Warn().Err(err).Msg("Failed to remove user work directory")
		}
	}()

	// archive
	stageStart := time.Now()
	tarPath := filepath.Join(userDir, artifact.BaseName(u.Name, at, "tar"))
	manifest, err := archive.Create(ctx, u.Path, tarPath)
	if err != nil {
		return fail(err)
	}
	metrics.ObserveStage(string(StageArchive), time.Since(stageStart))
	res.Files = manifest.Files
	res.ArchiveBytes = manifest.Bytes
	res.Skipped = len(manifest.Skipped)
	for _, s := range manifest.Skipped {
		log.Warn().Str("path", s.Path).Str("reason", s.Reason).Msg("Entry skipped")
	}

	// compress and encrypt
	res.Stage = StageTransform
	stageStart = time.Now()
	artifactPath, _, err := r.transform(ctx, tarPath, userDir)
	if err != nil {
		return fail(err)
	}
	metrics.ObserveStage(string(StageTransform), time.Since(stageStart))

	info, err := os.Stat(artifactPath)
	if err != nil {
		return fail(errs.E(errs.OutputMissing, "backup", artifactPath, err))
	}
	res.Size = info.Size()

	// upload
	res.Stage = StageUpload
	stageStart = time.Now()
	key := storage.JoinKey(r.cfg.Storage.Prefix, filepath.Base(artifactPath))
	if err := r.store.Upload(ctx, artifactPath, key); err != nil {
		return fail(fmt.Errorf("upload %s: %w", key, err))
	}
	metrics.ObserveStage(string(StageUpload), time.Since(stageStart))

	res.Stage = StageDone
	res.Status = StatusSucceeded
	res.Key = key
	res.DurationMS = r.now().Sub(start).Milliseconds()
	metrics.RecordBackup(true)
	metrics.RecordArtifact(u.Name, res.Size)

	log.Info().
		Str("key", key).
		Int64("size", res.Size).
		Int("files", res.Files).
		Int64("duration_ms", res.DurationMS).
		Msg("User backup completed")
	return res
}

func (r *Runner) transform(ctx context.Context, tarPath, workDir string) (string, artifact.Name, error) {
	if r.cfg.Tools.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Tools.Timeout)
		defer cancel()
	}
	return r.pipe.Apply(ctx, tarPath, workDir)
}

func (r *Runner) rotate(ctx context.Context, report *RunReport) {
	log := logging.Ctx(ctx, r.log)
	res, err := r.RotationEngine().Rotate(ctx, storage.ListPrefix(r.cfg.Storage.Prefix), false)

	ev := &notify.Event{Type: notify.RotationCompleted, Timestamp: r.now(), RunID: report.RunID, Host: r.host}
	if err != nil {
		report.RotationError = err.Error()
		log.Error().Err(err).Msg("Rotation failed")
		ev.Type = notify.RotationFailed
		ev.Error = err.Error()
	} else {
		report.Rotation = res
		ev.Counts = map[string]int{
			"deleted": len(res.Deleted),
			"failed":  len(res.Failed),
			"skipped": len(res.Skipped),
			"kept":    res.Kept,
		}
		if len(res.Failed) > 0 {
			ev.Error = fmt.Sprintf("%d deletions failed", len(res.Failed))
		}
	}
	r.notify(ctx, ev)
}

// RotationEngine returns an engine over the configured store and policy.
func (r *Runner) RotationEngine() *retention.Engine {
	return retention.NewEngine(r.store, retention.Policy{KeepLatest: r.cfg.Retention.KeepLatest}, r.log)
}

// RotationPrefix is the listing prefix rotation works on.
func (r *Runner) RotationPrefix() string {
	return storage.ListPrefix(r.cfg.Storage.Prefix)
}

func (r *Runner) finish(ctx context.Context, report *RunReport) {
	log := logging.Ctx(ctx, r.log)
	report.FinishedAt = r.now()
	report.DurationMS = report.FinishedAt.Sub(report.StartedAt).Milliseconds()

	metrics.RecordRunFinished(report.FinishedAt, !report.OK())
	if path := r.cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to write metrics textfile")
		}
	}

	r.notify(ctx, &notify.Event{
		Type:       notify.RunCompleted,
		Timestamp:  report.FinishedAt,
		RunID:      report.RunID,
		Host:       r.host,
		DurationMS: report.DurationMS,
		Error:      report.Error,
		Counts: map[string]int{
			"users":     len(report.Users),
			"succeeded": report.Succeeded,
			"failed":    report.Failed,
			"missing":   len(report.MissingUsers),
		},
	})

	log.Info().
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int64("duration_ms", report.DurationMS).
		Bool("ok", report.OK()).
		Msg("Backup run finished")
}

func (r *Runner) notifyUser(ctx context.Context, res UserResult) {
	ev := &notify.Event{
		Type:       notify.BackupSucceeded,
		Timestamp:  r.now(),
		RunID:      logging.RunIDFromContext(ctx),
		Host:       r.host,
		User:       res.User,
		Key:        res.Key,
		Size:       res.Size,
		DurationMS: res.DurationMS,
	}
	if res.Status != StatusSucceeded {
		ev.Type = notify.BackupFailed
		ev.Error = res.Error
		ev.ErrorKind = res.ErrorKind
	}
	r.notify(ctx, ev)
}

// notify delivers ev without a caller's cancellation so the final events of an
// interrupted run still go out.
func (r *Runner) notify(ctx context.Context, ev *notify.Event) {
	nctx := context.WithoutCancel(ctx)
	if err := r.notifier.Notify(nctx, ev); err != nil {
		logging.Ctx(ctx, r.log).Warn().Err(err).Str("event", string(ev.Type)).Msg("Notification failed")
	}
}
