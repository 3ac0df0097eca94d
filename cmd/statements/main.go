package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/buildledger/statements/cmd/statements/cli"
	"github.com/buildledger/statements/internal/app"
	"github.com/buildledger/statements/internal/ledger/policy"
	"github.com/buildledger/statements/internal/observability"
	"github.com/buildledger/statements/internal/platform/cache"
	"github.com/buildledger/statements/internal/platform/db"
	"github.com/buildledger/statements/internal/statements"
	"github.com/buildledger/statements/internal/statements/export"
	statementshttp "github.com/buildledger/statements/internal/statements/http"
	"github.com/buildledger/statements/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	logger := app.NewLogger(cfg)

	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		return serve(ctx, cfg, logger)
	case "show":
		return show(ctx, cfg, logger, args)
	case "jobs":
		return jobsCommand(ctx, cfg, args)
	case "help", "-h", "--help":
		printUsage()
		return 0
	}
	fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", command)
	printUsage()
	return 1
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  statements [command] [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  serve                     Run the HTTP API (default)")
	fmt.Println("  show                      Print one party statement")
	fmt.Println("  jobs trigger <task>       Enqueue statements:warmup or statements:integrity")
	fmt.Println("  jobs stats                Show queue statistics")
}

func exportOptions(cfg *app.Config) export.Options {
	return export.Options{Locale: cfg.DefaultLocale, Places: cfg.CurrencyPlaces}
}

// deps holds the long-lived clients shared by serve and show.
type deps struct {
	service *statements.Service
	checks  map[string]app.HealthCheck
	closers []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func bootstrap(ctx context.Context, cfg *app.Config, logger *slog.Logger, metrics *observability.Metrics) (*deps, error) {
	pol, err := policy.Load(cfg.LedgerPolicyFile)
	if err != nil {
		return nil, err
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns), db.WithStatementTimeout(cfg.PGStatementTimeout))
	if err != nil {
		return nil, err
	}
	d := &deps{
		checks:  map[string]app.HealthCheck{"postgres": pool.Ping},
		closers: []func(){pool.Close},
	}

	var statementCache *statements.Cache
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, statements will not be cached", slog.Any("error", err))
	} else {
		d.closers = append(d.closers, func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})
		d.checks["redis"] = cache.Ping(redisClient)
		statementCache = statements.NewCache(redisClient, cfg.StatementCacheTTL)
		if err := statementCache.ListenForInvalidation(ctx); err != nil {
			logger.Warn("subscribe cache invalidation", slog.Any("error", err))
		}
	}

	d.service = statements.NewService(statements.ServiceConfig{
		Source:  statements.NewRepository(pool),
		Cache:   statementCache,
		Policy:  pol,
		Metrics: statements.NewMetrics(metrics.Registerer()),
		Logger:  logger,
	})
	return d, nil
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	metrics := observability.NewMetrics()
	d, err := bootstrap(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("init statements service", slog.Any("error", err))
		return 1
	}
	defer d.Close()

	handler, err := statementshttp.NewHandler(logger, d.service, statementshttp.Options{
		Export:           exportOptions(cfg),
		ExportsPerMinute: cfg.ExportsPerMinute,
	})
	if err != nil {
		logger.Error("init statements handler", slog.Any("error", err))
		return 1
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() { _ = inspector.Close() }()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Metrics:           metrics,
		StatementsHandler: handler,
		JobHandler:        jobs.NewHandler(inspector, logger),
		HealthChecks:      d.checks,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}

func show(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	partyType := fs.String("party", "customer", "party type: customer, contractor or engineer")
	partyID := fs.String("id", "", "party id")
	from := fs.String("from", "", "period start YYYY-MM-DD")
	to := fs.String("to", "", "period end YYYY-MM-DD")
	format := fs.String("format", "json", "output format: json or csv")
	_ = fs.Parse(args)

	d, err := bootstrap(ctx, cfg, logger, observability.NewMetrics())
	if err != nil {
		logger.Error("init statements service", slog.Any("error", err))
		return 1
	}
	defer d.Close()

	command, err := cli.NewStatementCLI(d.service, exportOptions(cfg))
	if err != nil {
		logger.Error("init statement cli", slog.Any("error", err))
		return 1
	}
	return command.ShowCommand(ctx, cli.ShowOptions{
		PartyType: *partyType,
		PartyID:   *partyID,
		From:      *from,
		To:        *to,
		Format:    *format,
	})
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		printUsage()
		return 1
	}
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client := jobs.NewClient(redisOpts)
	defer func() { _ = client.Close() }()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()
	command := cli.NewJobsCLI(client, inspector)

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ExitOnError)
		lookback := fs.Duration("lookback", cfg.IntegrityLookback, "only parties active within this window")
		_ = fs.Parse(args[1:])
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "jobs trigger: task name required")
			return 1
		}
		info, err := command.Trigger(ctx, fs.Arg(0), *lookback)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case "stats":
		return command.StatsCommand(ctx, os.Stdout, os.Stderr)
	}
	fmt.Fprintf(os.Stderr, "unknown jobs command: %s\n", args[0])
	return 1
}
