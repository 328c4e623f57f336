package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/renshi/internal/auth"
	"github.com/roach88/renshi/internal/config"
	"github.com/roach88/renshi/internal/export"
	"github.com/roach88/renshi/internal/fault"
	"github.com/roach88/renshi/internal/logging"
	"github.com/roach88/renshi/internal/metrics"
	"github.com/roach88/renshi/internal/person"
	"github.com/roach88/renshi/internal/reconcile"
	"github.com/roach88/renshi/internal/retry"
	"github.com/roach88/renshi/internal/store"
)

// app is the set of components one command invocation works with.
type app struct {
	cfg      config.Config
	out      *OutputFormatter
	logger   *zap.Logger
	registry *prometheus.Registry
	store    *store.Store

	people   *person.Repository
	importer *reconcile.Reconciler
	exporter *export.Projector
	auth     *auth.Service

	dumpMetrics bool
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openApp loads configuration, opens and migrates the database and wires
// every component to the same logger, retry policy and metrics registry.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	out := formatter(opts, cmd)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_ = out.Error(CodeValidation, "配置文件无效", err.Error())
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
	}

	logger := opts.Logger
	if logger == nil {
		level := cfg.Log.Level
		if opts.Verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.Log.Format)
		if err != nil {
			_ = out.Error(CodeValidation, "日志配置无效", err.Error())
			return nil, WrapExitError(ExitCommandError, "failed to create logger", err)
		}
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	st, err := store.Open(cfg.Database.Path,
		store.WithLogger(logger.Named("store")),
		store.WithBusyTimeout(cfg.Database.BusyTimeout),
	)
	if err != nil {
		return nil, out.Fail(fault.Wrap(fault.KindIO, "cli.open", "无法打开数据库："+cfg.Database.Path, err))
	}

	ctx := commandContext(cmd)
	if err := st.Initialize(ctx); err != nil {
		st.Close()
		return nil, out.Fail(store.Classify("cli.open", err))
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, out.Fail(store.Classify("cli.open", err))
	}

	exec := retry.New(retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Delay:       cfg.Retry.Delay,
	}, retry.WithLogger(logger.Named("retry")), retry.WithMetrics(m))

	return &app{
		cfg:      cfg,
		out:      out,
		logger:   logger,
		registry: registry,
		store:    st,
		people: person.NewRepository(st, exec,
			person.WithLogger(logger.Named("person")), person.WithMetrics(m)),
		importer: reconcile.New(st, exec,
			reconcile.WithLogger(logger.Named("import")),
			reconcile.WithMetrics(m),
			reconcile.WithSkipReasonLimit(cfg.Import.SkipReasonLimit)),
		exporter:    export.NewProjector(st, exec, export.WithLogger(logger.Named("export"))),
		auth:        auth.NewService(st, exec, auth.WithLogger(logger.Named("auth"))),
		dumpMetrics: opts.Metrics,
	}, nil
}

// close releases the database and, when asked, prints the counters.
func (a *app) close() {
	if a.dumpMetrics {
		if err := metrics.Dump(a.out.GetErrWriter(), a.registry); err != nil {
			a.logger.Warn("metrics dump failed", zap.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// withApp opens the app, runs fn and closes the app again. Errors returned
// by fn are reported through the formatter.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := fn(commandContext(cmd), a); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		return a.out.Fail(err)
	}
	return nil
}

// commandContext uses the command's context if available (for testing).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fault.Validation("cli.parse_id", fmt.Sprintf("无效的人员编号：%s", arg))
	}
	return id, nil
}
