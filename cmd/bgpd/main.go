package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/route-beacon/bgp-control/internal/audit"
	"github.com/route-beacon/bgp-control/internal/bgpserver"
	"github.com/route-beacon/bgp-control/internal/config"
	"github.com/route-beacon/bgp-control/internal/db"
	bgphttp "github.com/route-beacon/bgp-control/internal/http"
	"github.com/route-beacon/bgp-control/internal/maintenance"
	"github.com/route-beacon/bgp-control/internal/metrics"
	"github.com/route-beacon/bgp-control/internal/telemetry"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "migrate":
		runMigrate()
	case "maintenance":
		runMaintenance()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: bgpd <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve         Start the BGP control-plane core")
	fmt.Println("  migrate       Run audit ledger database migrations")
	fmt.Println("  maintenance   Run audit ledger partition maintenance (create new, drop old)")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger) {
	configPath, logLevelOverride := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// migrationsDir returns the path to the migrations directory relative to the binary.
func migrationsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

func runServe() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting bgpd",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.String("http_listen", cfg.Service.HTTPListen),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core := bgpserver.NewServer(cfg, logger.Named("bgpserver"))

	var auditCtl *audit.Controller
	var auditPool interface{ Close() }
	if cfg.Postgres.DSN != "" {
		pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
		if err != nil {
			logger.Fatal("failed to connect to audit database", zap.Error(err))
		}
		auditPool = pool

		pm := maintenance.NewPartitionManager(pool, cfg.Audit.RetentionDays, cfg.Audit.RetentionTimezone, logger.Named("maintenance"))
		if err := pm.CreatePartitions(ctx); err != nil {
			logger.Fatal("failed to create audit partitions on startup", zap.Error(err))
		}

		writer := audit.NewWriter(pool, logger.Named("audit.writer"), cfg.Audit.StoreRawBytes, cfg.Audit.StoreRawBytesCompress)
		flushInterval := time.Duration(cfg.Audit.FlushIntervalMs) * time.Millisecond
		auditCtl = audit.NewController(writer, cfg.Audit.BatchSize, flushInterval, cfg.Audit.StoreRawBytes, logger.Named("audit.pipeline"))
		core.AddInstanceObserver(auditCtl)

		logger.Info("audit ledger enabled", zap.Int("batch_size", cfg.Audit.BatchSize), zap.Duration("flush_interval", flushInterval))
	}

	var telemetryPublisher *telemetry.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := telemetry.NewPublisher(cfg.Kafka, logger.Named("telemetry"))
		if err != nil {
			logger.Fatal("failed to create telemetry publisher", zap.Error(err))
		}
		telemetryPublisher = p
		core.AddInstanceObserver(telemetry.NewController(p))

		logger.Info("telemetry publisher enabled", zap.String("topic", cfg.Kafka.Telemetry.Topic))
	}

	deltas := config.Diff(nil, cfg)
	core.ApplyConfigDelta(deltas)
	logger.Info("initial config applied", zap.Int("deltas", len(deltas)))

	httpServer := bgphttp.NewServer(cfg.Service.HTTPListen, core, core.RTargetManager(), logger.Named("http"))
	if err := httpServer.Start(); err != nil {
		logger.Fatal("failed to start HTTP server", zap.Error(err))
	}

	logger.Info("bgpd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Cancel the root context so in-flight audit pipelines see it, then
	// give their final flush a chance before the process exits.
	cancel()
	if auditCtl != nil {
		auditCtl.Close()
	}
	if telemetryPublisher != nil {
		telemetryPublisher.Close()
	}
	if auditPool != nil {
		auditPool.Close()
	}

	logger.Info("bgpd stopped")
}

func runMigrate() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	logger.Info("running migrations",
		zap.String("dsn", redactDSN(cfg.Postgres.DSN)),
	)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrationsDir(), logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	logger.Info("migrations complete")
}

func runMaintenance() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	logger.Info("running audit partition maintenance",
		zap.Int("retention_days", cfg.Audit.RetentionDays),
		zap.String("timezone", cfg.Audit.RetentionTimezone),
	)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	pm := maintenance.NewPartitionManager(pool, cfg.Audit.RetentionDays, cfg.Audit.RetentionTimezone, logger)
	if err := pm.Run(ctx); err != nil {
		logger.Fatal("maintenance failed", zap.Error(err))
	}

	logger.Info("audit partition maintenance complete")
}

func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		re := regexp.MustCompile(`password\s*=\s*\S+`)
		return re.ReplaceAllString(dsn, "password=***")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
