package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"swift-predict/internal/burst"
	"swift-predict/internal/config"
	"swift-predict/internal/db"
	"swift-predict/internal/dispatch"
	"swift-predict/internal/encoding"
	"swift-predict/internal/globalrib"
	"swift-predict/internal/httpapi"
	"swift-predict/internal/maintenance"
	"swift-predict/internal/metrics"
	"swift-predict/internal/peer"
	"swift-predict/internal/persist"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "maintenance":
		runMaintenance(os.Args[2:])
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: swift-server <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve         Start the burst prediction service")
	fmt.Println("  migrate       Run database migrations")
	fmt.Println("  maintenance   Run partition maintenance (create new, drop old)")
	fmt.Println()
	fmt.Println("Run 'swift-server serve --help' for the full per-run flag list.")
}

func parseCLI(args []string) config.CLIFlags {
	var cli config.CLIFlags
	parser, err := kong.New(&cli, kong.Name("swift-server"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building CLI parser: %v\n", err)
		os.Exit(1)
	}
	if _, err := parser.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}
	return cli
}

func loadConfig(cli config.CLIFlags) (*config.Config, *zap.Logger) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if cli.LogLevel != "" {
		cfg.Service.LogLevel = cli.LogLevel
	}
	if cli.Feed != "" {
		cfg.Feed.Mode = cli.Feed
	}
	if cli.Port != 0 && cfg.Feed.Mode == "tcp" && cfg.Feed.TCPAddr == "" {
		cfg.Feed.TCPAddr = fmt.Sprintf(":%d", cli.Port)
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

func runServe(args []string) {
	cli := parseCLI(args)
	cfg, logger := loadConfig(cli)
	defer logger.Sync()

	metrics.Register()

	start, end, err := cli.ParseStartStop()
	if err != nil {
		logger.Fatal("invalid --start_stop", zap.Error(err))
	}

	logger.Info("starting swift-predict",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.String("http_listen", cfg.Service.HTTPListen),
		zap.String("feed_mode", cfg.Feed.Mode),
		zap.String("bpa_algo", cli.BpaAlgo),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	pm := maintenance.NewPartitionManager(pool, cfg.Retention.Days, cfg.Retention.Timezone, logger)
	if err := pm.CreatePartitions(ctx); err != nil {
		logger.Fatal("failed to create partitions on startup", zap.Error(err))
	}

	if err := os.MkdirAll(cli.LogDir, 0o755); err != nil {
		logger.Fatal("failed to create log_dir", zap.Error(err))
	}
	rulesOut, err := os.OpenFile(filepath.Join(cli.LogDir, "switch_rules"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Fatal("failed to open switch_rules log", zap.Error(err))
	}
	defer rulesOut.Close()
	deletedOut, err := os.OpenFile(filepath.Join(cli.LogDir, "deleted_rules"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Fatal("failed to open deleted_rules log", zap.Error(err))
	}
	defer deletedOut.Close()

	burstLogger, err := burst.NewFileLogger(cli.BurstsDir, logger.Named("burstlog"))
	if err != nil {
		logger.Fatal("failed to open bursts_dir", zap.Error(err))
	}
	defer burstLogger.Close()

	writer := persist.NewWriter(pool, logger.Named("persist.writer"),
		cfg.Persist.StoreRawBytes, cfg.Persist.StoreRawBytesCompress)
	sinkPipeline := persist.NewPipeline(writer, cli.BpaAlgo,
		cfg.Persist.BatchSize, cfg.Persist.FlushIntervalMs, cfg.Persist.ChannelBufferSize,
		logger.Named("persist.pipeline"))
	go sinkPipeline.Run(ctx)

	var dial peer.Dialer
	if !cli.NoRIB {
		os.Remove(cli.RIBSocket)

		rib := globalrib.New()
		rulesProgrammer := globalrib.NewLogProgrammer(logger.Named("rules"), rulesOut, deletedOut)
		tagGen, err := globalrib.NewTagGenerator(rib, cli.NbBitsNexthop, encoding.DefaultMaxDepth, cli.VNHCidr, rulesProgrammer)
		if err != nil {
			logger.Fatal("failed to build tag generator", zap.Error(err))
		}
		ribServer := globalrib.NewServer(rib, tagGen, rulesProgrammer, logger.Named("globalrib"), os.Stdout, globalrib.DefaultFRTTLSeconds)

		go func() {
			if err := ribServer.Serve(ctx, cli.RIBSocket); err != nil {
				logger.Error("global rib server stopped", zap.Error(err))
			}
		}()

		dial = func(peerID string) (peer.GlobalRIBConn, error) {
			conn, err := net.Dial("unix", cli.RIBSocket)
			if err != nil {
				return nil, fmt.Errorf("dialing global rib at %s: %w", cli.RIBSocket, err)
			}
			return conn, nil
		}
	}

	peerCfg := peer.Config{
		WinSize:              cli.WinSize,
		StartThreshold:       start,
		EndThreshold:         end,
		MinBpaBurstSize:      cli.MinBurstSize,
		BpaFreq:              cli.BpaFreq,
		PW:                   cli.PW,
		RW:                   cli.RW,
		Algo:                 cli.Algo(),
		NbBitsASPath:         cli.NbBitsASPath,
		RunEncodingThreshold: cli.RunEncodingThreshold,
		MinPercentile:        cli.MinPercentile,
		GlobalRIBEnabled:     !cli.NoRIB,
		Silent:               cli.Silent,
		ValidationEnabled:    cli.BpaValidation,
	}

	sup := peer.NewSupervisor(peerCfg, dial, sinkPipeline, logger.Named("peer"))
	sup.SetBurstLogger(burstLogger)
	defer sup.Close()

	dispatcher := dispatch.NewDispatcher(sup, logger.Named("dispatch"))

	var feed dispatch.FeedSource
	var feedStatus httpapi.FeedStatus
	switch cfg.Feed.Mode {
	case "kafka":
		tlsCfg, err := cfg.Feed.BuildTLSConfig()
		if err != nil {
			logger.Fatal("failed to build feed TLS config", zap.Error(err))
		}
		saslMech := cfg.Feed.BuildSASLMechanism()
		kf, err := dispatch.NewKafkaFeed(cfg.Feed.Brokers, cfg.Feed.GroupID, cfg.Feed.Topics,
			cfg.Feed.ClientID, cfg.Feed.FetchMaxBytes, tlsCfg, saslMech, logger.Named("feed.kafka"))
		if err != nil {
			logger.Fatal("failed to create kafka feed", zap.Error(err))
		}
		defer kf.Close()
		feed, feedStatus = kf, kf
	default:
		tf := dispatch.NewTCPFeed(cfg.Feed.TCPAddr, logger.Named("feed.tcp"))
		feed, feedStatus = tf, tf
	}

	var feedErr error
	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		feedErr = dispatcher.Run(ctx, feed)
	}()

	httpServer := httpapi.NewServer(cfg.Service.HTTPListen, pool, feedStatus, sup, logger.Named("http"))
	if err := httpServer.Start(); err != nil {
		logger.Fatal("failed to start HTTP server", zap.Error(err))
	}

	logger.Info("feed, global rib, and HTTP server started")

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

	cancel()

	select {
	case <-feedDone:
		if feedErr != nil {
			logger.Warn("feed stopped with error", zap.Error(feedErr))
		}
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout reached before feed stopped")
	}

	sinkPipeline.Wait()

	logger.Info("swift-predict stopped")
}

func runMigrate(args []string) {
	cli := parseCLI(args)
	cfg, logger := loadConfig(cli)
	defer logger.Sync()

	logger.Info("running migrations", zap.String("dsn", redactDSN(cfg.Postgres.DSN)))

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

func runMaintenance(args []string) {
	cli := parseCLI(args)
	cfg, logger := loadConfig(cli)
	defer logger.Sync()

	logger.Info("running partition maintenance",
		zap.Int("retention_days", cfg.Retention.Days),
		zap.String("timezone", cfg.Retention.Timezone),
	)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	pm := maintenance.NewPartitionManager(pool, cfg.Retention.Days, cfg.Retention.Timezone, logger)
	if err := pm.Run(ctx); err != nil {
		logger.Fatal("maintenance failed", zap.Error(err))
	}

	logger.Info("partition maintenance complete")
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
