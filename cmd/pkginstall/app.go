package main

import (
	"context"
	"path/filepath"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"optiinfra/pkginstall/internal/config"
	"optiinfra/pkginstall/internal/events"
	"optiinfra/pkginstall/internal/handlers"
	"optiinfra/pkginstall/internal/logger"
	"optiinfra/pkginstall/internal/metrics"
	"optiinfra/pkginstall/internal/model"
	"optiinfra/pkginstall/internal/registry"
	"optiinfra/pkginstall/internal/store"
	"optiinfra/pkginstall/internal/subprocess"
	"optiinfra/pkginstall/internal/txn"
)

// app bundles the wiring every verb needs: configuration, logging, the
// durable log, the handler registry, and the transaction manager built
// over them. Built fresh per invocation and torn down via close.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   *store.Store
	manager *txn.Manager
	metrics *metrics.Metrics
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.LogLevel)

	s, err := store.Open(filepath.Join(cfg.DataDir, "pkginstall.db"))
	if err != nil {
		return nil, err
	}

	reg := newHandlerRegistry(cfg)

	var bus *events.Bus
	if cfg.RedisAddr != "" {
		bus = events.NewRedisBus(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}

	manager := txn.New(s, reg, bus)

	// One Metrics per process, attached to the Manager (and transitively
	// its Store and Rollback Engine) so that whatever the serve verb
	// exposes on /metrics is the same registry every verb's transaction
	// work reports to, not a second, disjoint one.
	m := metrics.NewMetrics()
	manager.SetMetrics(m)

	// Recovering orphaned transactions is a core Transaction Manager
	// responsibility (spec.md §2 row 6, §4.1) that must run whenever a new
	// instance starts, not only when the operator happens to run `serve`.
	// Without it, a crash mid-transaction leaves the host permanently
	// Busy for every subsequent verb until an operator manually
	// diagnoses and re-runs `rollback <id>`.
	if err := manager.Recover(context.Background()); err != nil {
		log.Errorw("startup recovery reported an error", "error", err)
	}

	return &app{cfg: cfg, log: log, store: s, manager: manager, metrics: m}, nil
}

func (a *app) close() {
	a.store.Close()
	a.log.Sync()
}

// newHandlerRegistry builds a registry populated with every step handler
// this build supports, wired against a shared subprocess runner and the
// configured blob directory for file_copy's out-of-line snapshots.
func newHandlerRegistry(cfg *config.Config) *registry.Registry {
	runner := subprocess.Runner{}

	reg := registry.New()
	reg.Register(model.StepAptPackage, &handlers.AptPackageHandler{Runner: runner})
	reg.Register(model.StepFileCopy, &handlers.FileCopyHandler{BlobDir: cfg.BlobDir, InlineCap: cfg.InlineSnapshotCapBytes})
	reg.Register(model.StepSystemdService, &handlers.SystemdServiceHandler{Runner: runner})
	reg.Register(model.StepUserManagement, &handlers.UserManagementHandler{Runner: runner})
	reg.Register(model.StepCustomScript, &handlers.CustomScriptHandler{Runner: runner})
	reg.Register(model.StepAnsiblePlaybook, &handlers.AnsiblePlaybookHandler{Runner: runner})
	return reg
}
