// Package main runs the yield agent: a scheduled control loop that checks the
// wallet balance, scans Solana yield sources, consults the decision oracle,
// executes the chosen action and tracks progress toward the savings goal.
// A read-only HTTP API serves health, metrics, status and the persisted history.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"solana-yield-agent/internal/aggregator"
	"solana-yield-agent/internal/api"
	"solana-yield-agent/internal/audit"
	"solana-yield-agent/internal/balance"
	"solana-yield-agent/internal/config"
	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/executor"
	"solana-yield-agent/internal/goal"
	"solana-yield-agent/internal/observability"
	"solana-yield-agent/internal/oracle"
	"solana-yield-agent/internal/orchestrator"
	"solana-yield-agent/internal/scanner"
	"solana-yield-agent/internal/solana"
	"solana-yield-agent/internal/storage"
	chstore "solana-yield-agent/internal/storage/clickhouse"
	"solana-yield-agent/internal/storage/memory"
	pgstore "solana-yield-agent/internal/storage/postgres"
	sqlitestore "solana-yield-agent/internal/storage/sqlite"
)

// Run modes.
const (
	modeRun     = "run"     // scheduler + HTTP API until a signal arrives
	modeTick    = "tick"    // one full tick, then exit
	modeBalance = "balance" // one balance check and goal update
	modeScan    = "scan"    // one scan, print the ranked opportunities
)

func main() {
	configPath := flag.String("config", envOr("AGENT_CONFIG", "agent.yaml"), "Path to the YAML config file")
	mode := flag.String("mode", modeRun, "Run mode: run, tick, balance, scan")
	rpcEndpoint := flag.String("rpc-endpoint", "", "Solana RPC HTTP endpoint (overrides config)")
	wsEndpoint := flag.String("ws-endpoint", "", "Solana WebSocket endpoint (overrides config)")
	driver := flag.String("storage", "", "Storage driver: postgres, sqlite, memory (overrides config)")
	httpAddr := flag.String("http-addr", "", "HTTP API address (overrides config)")
	interval := flag.Duration("interval", 0, "Tick interval (overrides config)")
	flag.Parse()

	logger := log.New(os.Stdout, "[agent] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	override(&cfg.RPCEndpoint, *rpcEndpoint)
	override(&cfg.WSEndpoint, *wsEndpoint)
	override(&cfg.Storage.Driver, *driver)
	override(&cfg.HTTP.Addr, *httpAddr)
	if *interval > 0 {
		cfg.Agent.Interval = *interval
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, analytics, cleanup, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer cleanup()

	recorder := audit.NewRecorder(stores.Actions,
		audit.WithLogger(log.New(os.Stdout, "[audit] ", log.LstdFlags)),
		audit.WithFailureHook(observability.RecordAuditFailure),
	)
	defer recorder.Close()

	agent, err := buildAgent(ctx, cfg, stores, recorder, logger)
	if err != nil {
		logger.Fatalf("Failed to start agent: %v", err)
	}
	defer agent.close()

	switch *mode {
	case modeTick:
		_, report := agent.orchestrator.Tick(ctx, orchestrator.TickContext{})
		printJSON(summarize(report))
	case modeBalance:
		r := agent.orchestrator.CheckBalance(ctx)
		printJSON(map[string]any{"address": agent.address, "balance_sol": r.SOL.String(), "degraded": r.Degraded})
	case modeScan:
		printJSON(agent.orchestrator.ScanOnce(ctx))
	case modeRun:
		run(ctx, cancel, cfg, agent, stores, analytics, logger)
	default:
		logger.Fatalf("Unknown mode %q", *mode)
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := recorder.Flush(flushCtx); err != nil {
		logger.Printf("WARN: flush audit log: %v", err)
	}
	logger.Println("Shutdown complete")
}

// run drives the scheduler and the HTTP API until a signal arrives.
func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, agent *agent, stores storage.Stores, analytics api.APYAnalytics, logger *log.Logger) {
	scheduler := orchestrator.NewScheduler(agent.orchestrator, cfg.Agent.Interval,
		log.New(os.Stdout, "[scheduler] ", log.LstdFlags))

	server := api.NewServer(api.Config{
		Addr:      cfg.HTTP.Addr,
		Actions:   stores.Actions,
		Yields:    stores.Yields,
		Goals:     stores.Goals,
		Status:    scheduler,
		Analytics: analytics,
		Logger:    log.New(os.Stdout, "[api] ", log.LstdFlags),
	})

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
			cancel()
		case <-done:
			return
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			logger.Printf("HTTP server error: %v", err)
		}
	}()

	if err := scheduler.Start(ctx); err != nil {
		logger.Printf("Scheduler error: %v", err)
	}
	cancel()
	wg.Wait()
	close(done)
}

// agent holds the wired components.
type agent struct {
	address      string
	orchestrator *orchestrator.Orchestrator
	ws           *solana.SignatureWatcher
}

func (a *agent) close() {
	if a.ws != nil {
		a.ws.Close()
	}
}

func buildAgent(ctx context.Context, cfg *config.Config, stores storage.Stores, recorder audit.Logger, logger *log.Logger) (*agent, error) {
	rpc := solana.NewHTTPClient(cfg.RPCEndpoint,
		solana.WithLatencyObserver(func(method string, d time.Duration) {
			observability.RecordRPCLatency(method, d.Seconds())
		}),
	)

	var kp *solana.Keypair
	address := cfg.Wallet.Address
	if cfg.Wallet.PrivateKey != "" {
		k, err := solana.KeypairFromBase58(cfg.Wallet.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("wallet key: %w", err)
		}
		kp = k
		if address != "" && address != kp.PublicKey() {
			logger.Printf("WARN: wallet.address %s does not match the key, using %s", address, kp.PublicKey())
		}
		address = kp.PublicKey()
	}
	if err := solana.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("wallet address: %w", err)
	}

	a := &agent{address: address}
	var ws solana.WSClient
	if cfg.WSEndpoint != "" && kp != nil {
		c, err := solana.DialSignatureWatcher(ctx, cfg.WSEndpoint,
			solana.WithWSLogger(log.New(os.Stdout, "[ws] ", log.LstdFlags)))
		if err != nil {
			logger.Printf("WARN: websocket unavailable, confirming by polling: %v", err)
		} else {
			a.ws = c
			ws = c
		}
	}

	scanLogger := log.New(os.Stdout, "[scanner] ", log.LstdFlags)
	var scanners []scanner.Scanner
	if cfg.ScannerEnabled(config.ScannerMarinade) {
		scanners = append(scanners, scanner.NewMarinade(scanner.WithURL(cfg.Scanners.MarinadeURL), scanner.WithLogger(scanLogger)))
	}
	if cfg.ScannerEnabled(config.ScannerKamino) {
		scanners = append(scanners, scanner.NewKamino(scanner.WithURL(cfg.Scanners.KaminoURL), scanner.WithLogger(scanLogger)))
	}
	if cfg.ScannerEnabled(config.ScannerDefiLlama) {
		scanners = append(scanners, scanner.NewDefiLlama(cfg.Scanners.LlamaMinTVL, cfg.Scanners.LlamaLimit,
			scanner.WithURL(cfg.Scanners.LlamaURL), scanner.WithLogger(scanLogger)))
	}

	agg := aggregator.New(aggregator.Options{
		Scanners:    scanners,
		Audit:       recorder,
		Logger:      log.New(os.Stdout, "[aggregator] ", log.LstdFlags),
		ScanTimeout: cfg.Agent.ScanTimeout,
	})

	var chat oracle.ChatClient
	if cfg.Oracle.APIKey != "" {
		chat = oracle.NewOpenAIClient(oracle.ClientConfig{
			BaseURL:     cfg.Oracle.BaseURL,
			APIKey:      cfg.Oracle.APIKey,
			Model:       cfg.Oracle.Model,
			Temperature: cfg.Oracle.Temperature,
			Timeout:     cfg.Oracle.Timeout,
		})
	} else {
		logger.Println("No oracle API key configured, decisions default to HOLD")
	}
	orc := oracle.New(oracle.Options{
		Client:    chat,
		Model:     cfg.Oracle.Model,
		Audit:     recorder,
		Logger:    log.New(os.Stdout, "[oracle] ", log.LstdFlags),
		TopN:      cfg.Oracle.TopN,
		Timeout:   cfg.Oracle.Timeout,
		TargetSOL: cfg.Goal.TargetSOL,
	})

	exec := executor.New(executor.Options{
		Keypair:         kp,
		RPC:             rpc,
		WS:              ws,
		Swap:            executor.NewJupiterClient(cfg.Executor.QuoteURL, cfg.Executor.SwapURL, 0),
		Audit:           recorder,
		Logger:          log.New(os.Stdout, "[executor] ", log.LstdFlags),
		InputMint:       cfg.Executor.InputMint,
		OutputMint:      cfg.Executor.OutputMint,
		AmountLamports:  cfg.Executor.AmountLamports,
		SlippageBps:     cfg.Executor.SlippageBps,
		ConfirmRetries:  cfg.Executor.ConfirmRetries,
		ConfirmInterval: cfg.Executor.ConfirmInterval,
	})

	tracker := goal.NewTracker(goal.Options{
		Store:  stores.Goals,
		Audit:  recorder,
		Logger: log.New(os.Stdout, "[goal] ", log.LstdFlags),
		Target: cfg.Goal.TargetSOL,
	})
	if changed, err := tracker.SetTarget(ctx, cfg.Goal.TargetSOL); err != nil {
		logger.Printf("WARN: set goal target: %v", err)
	} else if changed {
		logger.Printf("Goal target raised to %.4f SOL", cfg.Goal.TargetSOL)
	}

	actions, err := cfg.Actions()
	if err != nil {
		return nil, err
	}

	a.orchestrator = orchestrator.New(orchestrator.Options{
		Balance:        balance.NewMonitor(rpc, address, recorder, log.New(os.Stdout, "[balance] ", log.LstdFlags)),
		Aggregator:     agg,
		Oracle:         orc,
		Executor:       exec,
		Goal:           tracker,
		Yields:         stores.Yields,
		Audit:          recorder,
		Logger:         log.New(os.Stdout, "[orchestrator] ", log.LstdFlags),
		Filter:         cfg.Agent.Filter,
		MinBalanceSOL:  cfg.Agent.MinBalanceSOL,
		ExecuteActions: actions,
		DefaultAPY:     cfg.Goal.DefaultAPY,
		TickDeadline:   cfg.Agent.TickDeadline,
	})

	mode := "trading"
	if exec.ReadOnly() {
		mode = "read-only"
	}
	logger.Printf("Agent ready: wallet=%s mode=%s scanners=%d oracle_offline=%v", address, mode, len(scanners), orc.Offline())
	return a, nil
}

// openStores opens the configured backend and, when a ClickHouse DSN is set,
// mirrors yield reports into it.
func openStores(ctx context.Context, cfg *config.Config, logger *log.Logger) (storage.Stores, api.APYAnalytics, func(), error) {
	var (
		stores   storage.Stores
		closers  []func()
		analytic api.APYAnalytics
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := pgstore.Open(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return stores, nil, cleanup, err
		}
		closers = append(closers, pool.Close)
		stores = pgstore.NewStores(pool)
		logger.Println("Using PostgreSQL storage")
	case config.DriverSQLite:
		db, err := sqlitestore.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return stores, nil, cleanup, err
		}
		closers = append(closers, func() { db.Close() })
		stores = sqlitestore.NewStores(db)
		logger.Printf("Using SQLite storage at %s", cfg.Storage.SQLitePath)
	case config.DriverMemory:
		stores = memory.NewStores()
		logger.Println("Using in-memory storage (history is lost on exit)")
	default:
		return stores, nil, cleanup, errors.New("no storage driver")
	}

	if cfg.Storage.ClickHouseDSN != "" {
		conn, err := chstore.Open(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			logger.Printf("WARN: clickhouse unavailable, yield analytics disabled: %v", err)
		} else {
			closers = append(closers, func() { conn.Close() })
			chYields := chstore.NewYieldReportStore(conn)
			stores.Yields = storage.NewMirroredYieldReportStore(stores.Yields, chYields, log.New(os.Stdout, "[storage] ", log.LstdFlags))
			analytic = chYields
			logger.Println("Mirroring yield reports to ClickHouse")
		}
	}
	return stores, analytic, cleanup, nil
}

// summarize renders a tick report for terminal output.
func summarize(r orchestrator.TickReport) map[string]any {
	out := map[string]any{
		"tick_id":       r.TickID,
		"balance_sol":   r.Balance,
		"degraded":      r.Degraded,
		"skipped":       r.Skipped,
		"opportunities": r.Opportunities,
		"eligible":      r.Eligible,
		"apy":           r.APY,
		"errors":        r.Errors,
		"duration":      r.FinishedAt.Sub(r.StartedAt).String(),
	}
	if r.Decision != nil {
		out["decision"] = r.Decision
	}
	if e := r.Execution; e != nil {
		exec := map[string]any{"status": e.Status, "stage": e.Stage, "signature": e.Signature}
		if e.Err != nil {
			exec["error"] = e.Err.Error()
		}
		out["execution"] = exec
	}
	if g := r.Goal; g != nil {
		out["goal"] = map[string]any{
			"status":       g.Status,
			"target":       g.TargetBalance,
			"days_to_goal": domain.FiniteOrNil(g.DaysToGoal),
		}
	}
	return out
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("encode output: %v", err)
	}
}
