package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stride-io/stride/internal/analyzer"
	apiPkg "github.com/stride-io/stride/internal/api"
	"github.com/stride-io/stride/internal/arbiter"
	"github.com/stride-io/stride/internal/config"
	"github.com/stride-io/stride/internal/events"
	"github.com/stride-io/stride/internal/inventory"
	"github.com/stride-io/stride/internal/logbuf"
	"github.com/stride-io/stride/internal/orders"
	"github.com/stride-io/stride/internal/outcome"
	"github.com/stride-io/stride/internal/phrasing"
	"github.com/stride-io/stride/internal/pipeline"
	"github.com/stride-io/stride/internal/policy"
	"github.com/stride-io/stride/internal/provider"
	"github.com/stride-io/stride/internal/scheduler"
	"github.com/stride-io/stride/internal/session"
	"github.com/stride-io/stride/internal/ticket"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	// Load config (file or env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("strided starting", "service_id", cfg.Service.ID)

	// 1. Initialize provider(s)
	providers := make(map[string]provider.Provider)
	for name, pcfg := range cfg.Providers {
		switch pcfg.Type {
		case "anthropic":
			var opts []provider.AnthropicOption
			if pcfg.BaseURL != "" {
				opts = append(opts, provider.WithAnthropicBaseURL(pcfg.BaseURL))
			}
			if pcfg.Model != "" {
				opts = append(opts, provider.WithAnthropicModel(pcfg.Model))
			}
			providers[name] = provider.NewAnthropic(pcfg.APIKey, opts...)
		default: // "openai" or empty
			var opts []provider.OpenAIOption
			if pcfg.BaseURL != "" {
				opts = append(opts, provider.WithBaseURL(pcfg.BaseURL))
			}
			if pcfg.Model != "" {
				opts = append(opts, provider.WithModel(pcfg.Model))
			}
			providers[name] = provider.NewOpenAI(pcfg.APIKey, opts...)
		}
		logger.Info("provider initialized", "name", name, "type", pcfg.Type, "model", pcfg.Model)
	}

	defaultProv, ok := providers["default"]
	if !ok {
		logger.Error("no 'default' provider configured")
		os.Exit(1)
	}

	// 2. Policy table + phrasing index
	table := policy.Default()
	if cfg.Service.PolicyFile != "" {
		table, err = policy.LoadFile(cfg.Service.PolicyFile)
		if err != nil {
			logger.Error("failed to load policy table", "path", cfg.Service.PolicyFile, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("policy table loaded", "version", table.Version, "rules", len(table.Rules))

	phraser, err := phrasing.NewIndex(table)
	if err != nil {
		logger.Error("failed to build phrasing index", "error", err)
		os.Exit(1)
	}

	// 3. Stores
	os.MkdirAll(cfg.Service.DataDir, 0o755)

	store, err := ticket.NewSQLiteStore(cfg.Service.DataDir + "/tickets.db")
	if err != nil {
		logger.Error("failed to open ticket store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	orderLookup, err := orders.NewSQLiteLookup(cfg.Service.DataDir+"/orders.db", 10*time.Minute)
	if err != nil {
		logger.Error("failed to open orders replica", "error", err)
		os.Exit(1)
	}
	defer orderLookup.Close()

	stock, err := inventory.NewSQLiteChecker(cfg.Service.DataDir+"/stock.db", time.Minute)
	if err != nil {
		logger.Error("failed to open stock replica", "error", err)
		os.Exit(1)
	}
	defer stock.Close()

	// 4. Optional outcome event publishing
	var publisher events.Publisher
	if cfg.Kafka != nil {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publisher = kp
		logger.Info("kafka publisher enabled", "topic", cfg.Kafka.Topic)
	}

	// 5. Assemble the pipeline
	model := cfg.Providers["default"].Model
	extractor := analyzer.New(defaultProv, model, cfg.Analyzer, logger.With("component", "analyzer"))
	arb := arbiter.New(policy.NewMatcher(table), stock, store, phraser,
		cfg.Decision.AmbiguityThreshold, logger.With("component", "arbiter"))
	emitter := outcome.New(store, publisher, logger.With("component", "outcome"))
	sessions := session.NewManager(extractor, arb, orderLookup, emitter,
		cfg.Decision.MaxTurns, time.Duration(cfg.Service.SessionTTLMin)*time.Minute,
		logger.With("component", "session"))
	svc := pipeline.New(sessions, store)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 6. Session sweeper
	sched := scheduler.New(logger.With("component", "scheduler"))
	if err := sched.AddJob("session-sweep", cfg.Service.SweepSchedule, func() {
		sessions.Sweep()
	}); err != nil {
		logger.Error("failed to register sweep job", "error", err)
		os.Exit(1)
	}
	go safeGo(logger, "scheduler", func() { sched.Start(ctx) })

	// 7. API server
	apiSrv := apiPkg.NewServer(svc, apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, logger.With("component", "api"), logBuf)

	go safeGo(logger, "api-server", func() { apiSrv.Start(ctx) })
	logger.Info("api server started", "port", cfg.API.Port)

	// 8. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	logger.Info("strided stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
