package app

import (
	"context"
	"fmt"

	"github.com/adomasb/backstop/internal/adapter/archiver"
	"github.com/adomasb/backstop/internal/adapter/notifier"
	"github.com/adomasb/backstop/internal/adapter/secret"
	"github.com/adomasb/backstop/internal/adapter/shell"
	"github.com/adomasb/backstop/internal/adapter/storage"
	"github.com/adomasb/backstop/internal/config"
	"github.com/adomasb/backstop/internal/domain"
	"github.com/adomasb/backstop/internal/infrastructure/logger"
	"github.com/adomasb/backstop/internal/infrastructure/runlog"
	"github.com/adomasb/backstop/internal/infrastructure/scheduler"
	"github.com/adomasb/backstop/internal/usecase"
)

type App struct {
	config     *config.Config
	logger     *logger.Logger
	runLog     *runlog.File
	scheduler  *scheduler.Scheduler
	procedures *usecase.Procedures
	email      *notifier.Email
	telegram   *notifier.Telegram
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Initialize logger
	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Infof("Starting %s", cfg.App.Name)
	log.Infof("Found %d enabled source(s)", len(cfg.EnabledSources()))

	runLog := runlog.New(cfg.App.RunLog)

	// Initialize passphrase source
	secrets, err := initializeSecretSource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secret source: %w", err)
	}

	// Initialize object store
	store, err := initializeStore(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	runner := shell.New(log)
	arch := archiver.NewSevenZip(runner, secrets)
	sweeper := usecase.NewSweeper(log, cfg.Backup.RetentionDays)

	procedures := usecase.NewProcedures(store, arch, runner, sweeper, log, runLog)

	app := &App{
		config:     cfg,
		logger:     log,
		runLog:     runLog,
		scheduler:  scheduler.New(),
		procedures: procedures,
	}

	if cfg.Email.Enabled {
		app.email = notifier.NewEmail(&cfg.Email, runLog)
		log.Infof("✓ Email notifications enabled (%d recipient(s))", len(cfg.Email.To))
	}

	if cfg.Telegram.Enabled {
		tg, err := notifier.NewTelegram(&cfg.Telegram)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telegram: %w", err)
		}
		app.telegram = tg
		log.Infof("✓ Telegram notifications enabled")
	}

	return app, nil
}

func initializeSecretSource(ctx context.Context, cfg *config.Config) (domain.SecretSource, error) {
	switch cfg.Secret.Source {
	case "file":
		return secret.NewFile(cfg.Secret.File)
	case "vault":
		v := cfg.Secret.Vault
		opts := []secret.Option{
			secret.WithSecretPath(v.Mount, v.Path, v.Field),
		}
		if v.Address != "" {
			opts = append(opts, secret.WithAddress(v.Address))
		}
		if v.RoleID != "" {
			opts = append(opts, secret.WithAppRole(v.RoleID, v.SecretID))
		} else if v.Token != "" {
			opts = append(opts, secret.WithToken(v.Token))
		}
		return secret.NewVault(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported secret source %q", cfg.Secret.Source)
	}
}

func initializeStore(cfg *config.Config, log *logger.Logger) (domain.ObjectStore, error) {
	switch cfg.Store.Type {
	case "s3":
		store, err := storage.NewS3(&cfg.Store)
		if err != nil {
			return nil, err
		}
		log.Infof("✓ AWS S3 store enabled (bucket: %s)", cfg.Store.Bucket)
		return store, nil
	case "local":
		store, err := storage.NewLocal(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		log.Infof("✓ Local store enabled (%s)", cfg.Store.Path)
		return store, nil
	case "gdrive":
		store, err := storage.NewDrive(&cfg.Store)
		if err != nil {
			return nil, err
		}
		log.Infof("✓ Google Drive store enabled")
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store type %q", cfg.Store.Type)
	}
}

// executeSource runs the procedure matching the source type. The result is
// always well-formed; procedures do not return errors.
func (a *App) executeSource(ctx context.Context, src config.SourceConfig) domain.BackupResult {
	p := a.procedures

	switch src.Type {
	case config.SourceDirectory:
		return p.BackupDirectory(ctx, src.Name, src.Location, src.ArchivePath)
	case config.SourceSubversionRepo:
		return p.BackupSubversionRepo(ctx, src.Name, src.Location, src.ArchivePath)
	case config.SourceSubversionWorkCopy:
		return p.BackupSubversionWorkingCopy(ctx, src.Name, src.Location, src.ArchivePath)
	case config.SourceGitRepo:
		return p.BackupGitRepo(ctx, src.Name, src.Location, src.ArchivePath)
	case config.SourceTrac:
		return p.BackupTrac(ctx, src.Name, src.Location, src.ArchivePath)
	case config.SourceLatestFile:
		return p.BackupLatestFile(ctx, src.Name, src.Location)
	case config.SourceLAMP:
		return p.BackupLAMP(ctx, src.Name, src.Database, src.ArchivePath)
	case config.SourceDownloadLatest:
		return p.DownloadLatest(ctx, src.Location, a.config.Backup.DownloadDir)
	default:
		// Validate rejects unknown types, this is unreachable in practice.
		return domain.BackupResult{
			BriefStatus:    fmt.Sprintf("[Backup] %s FAILED", src.Name),
			DetailedStatus: fmt.Sprintf("unsupported source type %q", src.Type),
		}
	}
}

// notify reports a finished run to the operator. Only failures are pushed;
// successful runs are visible in the run log.
func (a *App) notify(result domain.BackupResult) {
	if result.Succeeded {
		a.logger.Infof("%s", result.BriefStatus)
		return
	}

	a.logger.Errorf("%s", result.BriefStatus)

	if a.email != nil {
		if err := a.email.Send(result.BriefStatus, result.DetailedStatus); err != nil {
			a.logger.Errorf("Failed to send status email: %v", err)
		}
	}

	if a.telegram != nil {
		if err := a.telegram.Notify(result.BriefStatus); err != nil {
			a.logger.Errorf("Failed to send telegram notification: %v", err)
		}
	}
}

// Run schedules every enabled source and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	sources := a.config.EnabledSources()

	for _, src := range sources {
		src := src
		if err := a.scheduler.AddJob(src.Schedule, func(jobCtx context.Context) error {
			a.logger.Infof("=== Triggered scheduled backup for %s ===", src.Name)
			a.notify(a.executeSource(jobCtx, src))
			return nil
		}); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", src.Name, err)
		}
		a.logger.Infof("✓ Scheduled %s (%s): %s", src.Name, src.Type, src.Schedule)
	}

	a.scheduler.Start()
	a.logger.Infof("Scheduler started with %d job(s)", len(sources))

	<-ctx.Done()
	return nil
}

// RunOnce executes every enabled source sequentially and returns. Used for
// manual invocations and smoke tests; scheduling is bypassed entirely.
func (a *App) RunOnce(ctx context.Context) error {
	var failed int
	for _, src := range a.config.EnabledSources() {
		a.logger.Infof("=== Running backup for %s ===", src.Name)
		result := a.executeSource(ctx, src)
		a.notify(result)
		if !result.Succeeded {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d backup(s) failed", failed)
	}
	return nil
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")
	a.scheduler.Stop()
	a.logger.Close()
}
