package main

import (
	"context"
	"errors"
	"time"

	"github.com/jamesainslie/fopt/pkg/client"
	"github.com/jamesainslie/fopt/pkg/daemon"
	"github.com/jamesainslie/fopt/pkg/fopt/catalog"
	"github.com/jamesainslie/fopt/pkg/fopt/config"
	"github.com/jamesainslie/fopt/pkg/fopt/manifest"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// backend is what the commands run against: the daemon over its socket, or
// an in-process service when no daemon is running.
type backend interface {
	Folders(ctx context.Context) ([]string, error)
	StartScan(ctx context.Context, threshold int64, folders, groups []string) (string, error)
	Job(ctx context.Context, id string) (daemon.JobSnapshot, error)
	CancelScan(ctx context.Context, id string) error
	Events(ctx context.Context) (<-chan types.Event, error)
	Compact(ctx context.Context, path string) (types.CompactResult, error)
	Catalog(ctx context.Context) (map[string]catalog.Record, error)
	PruneCatalog(ctx context.Context) ([]string, error)
	Open(ctx context.Context, name, originalName string) (types.OpenResult, error)
	Restore(ctx context.Context, name string) (types.OpenResult, error)
	History(ctx context.Context, limit int) ([]manifest.Entry, error)
	HistoryEntry(ctx context.Context, id string) (*manifest.Entry, error)
	CleanHistory(ctx context.Context) (int, error)
	Close() error
}

var _ backend = (*client.Client)(nil)

// openBackend connects to the daemon unless --no-daemon is set or none is
// running, in which case the engine runs in this process. The scratch
// index admits one process at a time, so a running daemon is always
// preferred.
func openBackend(ctx context.Context, cfg *config.Config) (backend, error) {
	if !noDaemon {
		paths := client.PathsFromConfig(cfg)
		if !client.IsDaemonRunning(paths.PID) && cfg.Daemon.AutoStart {
			if err := client.StartDaemon(paths); err != nil {
				printVerbose("auto-start failed: %v", err)
			}
		}
		if client.IsDaemonRunning(paths.PID) {
			dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			c, err := client.ConnectWithContext(dctx, paths.Socket)
			if err == nil {
				printVerbose("using daemon at %s", paths.Socket)
				return c, nil
			}
			printVerbose("daemon not reachable, running in-process: %v", err)
		}
	}

	svc, err := daemon.NewService(cfg, daemon.WithVersion(version))
	if err != nil {
		return nil, err
	}
	printVerbose("running in-process")
	return &localBackend{svc: svc}, nil
}

// localBackend adapts an in-process Service to backend.
type localBackend struct {
	svc *daemon.Service
}

func (l *localBackend) Folders(context.Context) ([]string, error) {
	return l.svc.ListScannableFolders(), nil
}

func (l *localBackend) StartScan(ctx context.Context, threshold int64, folders, groups []string) (string, error) {
	return l.svc.StartScanTypes(ctx, threshold, folders, groups)
}

func (l *localBackend) Job(_ context.Context, id string) (daemon.JobSnapshot, error) {
	return l.svc.Job(id)
}

func (l *localBackend) CancelScan(_ context.Context, id string) error {
	return l.svc.CancelScan(id)
}

// Events streams service events into a channel. It returns once the
// subscription is registered.
func (l *localBackend) Events(ctx context.Context) (<-chan types.Event, error) {
	out := make(chan types.Event, 256)
	ready := make(chan struct{})
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		errc <- l.svc.Stream(ctx, func() { close(ready) }, func(ev types.Event) error {
			select {
			case out <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	select {
	case <-ready:
		return out, nil
	case err := <-errc:
		if err == nil {
			err = errors.New("event stream closed")
		}
		return nil, err
	}
}

func (l *localBackend) Compact(ctx context.Context, path string) (types.CompactResult, error) {
	return l.svc.Compact(ctx, path)
}

func (l *localBackend) Catalog(context.Context) (map[string]catalog.Record, error) {
	return l.svc.ListCatalog(), nil
}

func (l *localBackend) PruneCatalog(context.Context) ([]string, error) {
	return l.svc.PruneCatalog()
}

func (l *localBackend) Open(ctx context.Context, name, originalName string) (types.OpenResult, error) {
	return l.svc.OpenArchive(ctx, name, originalName)
}

func (l *localBackend) Restore(ctx context.Context, name string) (types.OpenResult, error) {
	return l.svc.RestoreArchive(ctx, name)
}

func (l *localBackend) History(_ context.Context, limit int) ([]manifest.Entry, error) {
	return l.svc.History(limit)
}

func (l *localBackend) HistoryEntry(_ context.Context, id string) (*manifest.Entry, error) {
	return l.svc.HistoryEntry(id)
}

func (l *localBackend) CleanHistory(context.Context) (int, error) {
	return l.svc.CleanHistory()
}

func (l *localBackend) Close() error {
	return l.svc.Close()
}
