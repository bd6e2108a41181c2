package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jamesainslie/fopt/pkg/fopt/config"
)

const shutdownTimeout = 5 * time.Second

// Run starts the daemon and blocks until ctx is cancelled, a client asks
// it to shut down, or the server fails. The startup outcome is written to
// the status file so a launching client can report it.
func Run(ctx context.Context, cfg *config.Config, version string) (err error) {
	log := logger()
	paths := PathsFor(cfg)

	defer func() {
		if err != nil && !errors.Is(err, ErrDaemonAlreadyRunning) {
			_ = WriteStatusError(paths.Status, err)
		}
	}()

	if err := RecoverFromStaleDaemon(paths); err != nil {
		return err
	}
	_ = RemoveStatus(paths.Status)

	svc, err := NewService(cfg, WithVersion(version))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			log.Warn("closing service", "error", cerr)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Daemon.Watch {
		if err := svc.EnableWatcher(ctx); err != nil {
			log.Warn("archive watcher disabled", "error", err)
		}
	}

	sched := NewScheduler()
	schedule := cfg.Daemon.CleanupSchedule
	if schedule == "" {
		schedule = config.DefaultCleanupSchedule
	}
	if err := sched.AddJob("cleanup", schedule, maintenance(svc)); err != nil {
		return fmt.Errorf("daemon.cleanup_schedule: %w", err)
	}
	var startup sync.WaitGroup
	startup.Go(maintenance(svc))
	defer startup.Wait()
	sched.Start()
	defer sched.Stop()

	srv, err := NewServer(svc, paths.Socket, cancel)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", paths.Socket, err)
	}

	if err := WritePIDFile(paths.PID); err != nil {
		_ = srv.Close(context.Background())
		return fmt.Errorf("writing pid file: %w", err)
	}
	defer func() {
		_ = RemovePIDFile(paths.PID)
		_ = RemoveStatus(paths.Status)
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	if err := WriteStatusReady(paths.Status, paths.Socket, version); err != nil {
		log.Warn("writing status file", "error", err)
	}
	log.Info("daemon started", "socket", paths.Socket, "pid_file", paths.PID, "version", version)

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	log.Info("daemon stopping")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if cerr := srv.Close(shutdownCtx); cerr != nil {
		log.Warn("server shutdown", "error", cerr)
	}
	return err
}
