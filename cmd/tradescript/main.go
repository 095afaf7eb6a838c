// Command tradescript parses trading rules, runs backtests, and serves
// the HTTP API.
//
// Parse mode (check rule text and print the canonical form):
//
//	go run ./cmd/tradescript --parse --rules rules.txt
//
// Backtest mode (run rules against CSV or synthetic data):
//
//	go run ./cmd/tradescript --rules rules.txt --csv data.csv
//	go run ./cmd/tradescript --rules rules.txt --synthetic-bars 500 --seed 42
//
// Serve mode (HTTP API with optional Postgres/Redis wiring):
//
//	go run ./cmd/tradescript --serve --config config.json
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tradescript/tradescript/pkg/api"
	"github.com/tradescript/tradescript/pkg/backtest"
	"github.com/tradescript/tradescript/pkg/bus"
	"github.com/tradescript/tradescript/pkg/config"
	"github.com/tradescript/tradescript/pkg/dsl"
	"github.com/tradescript/tradescript/pkg/eval"
	"github.com/tradescript/tradescript/pkg/feed"
	"github.com/tradescript/tradescript/pkg/metrics"
	"github.com/tradescript/tradescript/pkg/runtracker"
	"github.com/tradescript/tradescript/pkg/store"
	"github.com/tradescript/tradescript/pkg/types"
)

const version = "0.3.0"

func main() {
	// Mode selection flags
	parseOnly := flag.Bool("parse", false, "Parse rule text and print the canonical form, then exit")
	serve := flag.Bool("serve", false, "Start the HTTP API server")

	// Rule source
	rulesFile := flag.String("rules", "", "Path to a file with canonical rule text")
	rulesText := flag.String("rules-text", "", "Inline canonical rule text (alternative to --rules)")

	// Data source: CSV file or synthetic series
	csvFile := flag.String("csv", "", "Path to CSV file with OHLCV data")
	synthBars := flag.Int("synthetic-bars", 0, "Generate a synthetic series with this many bars")
	synthSeed := flag.Int64("seed", 1, "Seed for the synthetic series")

	// Backtest parameters
	capital := flag.Float64("capital", backtest.DefaultInitialCapital, "Initial capital for the equity curve")
	outputFile := flag.String("output", "", "Path for trade log CSV (default: stdout)")
	publish := flag.Bool("publish", false, "Publish a completion event to Redis after the backtest")

	configFile := flag.String("config", "", "Path to JSON config file")

	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *serve {
		if err := runServer(logger, *configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	text, err := loadRules(*rulesFile, *rulesText)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		flag.Usage()
		os.Exit(1)
	}

	strategy, err := dsl.Parse(text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing rules: %v\n", err)
		os.Exit(1)
	}

	if *parseOnly {
		fmt.Println(strategy.Canonical())
		return
	}

	// Load data from CSV or generate it
	var bars []types.Bar
	switch {
	case *csvFile != "" && *synthBars > 0:
		fmt.Fprintln(os.Stderr, "Error: specify either --csv or --synthetic-bars, not both")
		os.Exit(1)

	case *csvFile != "":
		bars, err = feed.LoadCSVFile(*csvFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading CSV: %v\n", err)
			os.Exit(1)
		}
		logger.Info("Loaded bar data from CSV", "bars", len(bars), "file", *csvFile)

	case *synthBars > 0:
		bars = feed.Synthetic(feed.SyntheticSpec{Bars: *synthBars, Seed: *synthSeed})
		logger.Info("Generated synthetic bar data", "bars", len(bars), "seed", *synthSeed)

	default:
		fmt.Fprintln(os.Stderr, "Error: must specify --csv or --synthetic-bars for data source")
		flag.Usage()
		os.Exit(1)
	}

	start := time.Now()
	signals := eval.New(bars, logger).Evaluate(strategy)
	sim := backtest.NewSimulator(*capital, logger)
	result, err := sim.Run(bars, signals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running backtest: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Completed backtest",
		"bars", len(bars),
		"trades", result.Summary.TradeCount,
		"total_return_pct", result.Summary.TotalReturnPct,
		"max_drawdown_pct", result.Summary.MaxDrawdownPct,
		"win_rate", result.Summary.WinRate,
		"elapsed", time.Since(start),
	)

	if err := writeTrades(*outputFile, result.Trades); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing trades: %v\n", err)
		os.Exit(1)
	}

	if *publish {
		if err := publishResult(logger, *configFile, len(bars), result); err != nil {
			logger.Warn("Failed to publish backtest event", "error", err)
		}
	}
}

// publishResult sends a completion event to the Redis bus configured in
// the config file.
func publishResult(logger *slog.Logger, configFile string, bars int, result backtest.Result) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	b := bus.NewBus(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.ChannelPrefix, logger)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return b.Publish(ctx, &bus.Event{
		EventType: bus.EventBacktestCompleted,
		Source:    "tradescript-cli",
		Payload: map[string]any{
			"bars":             bars,
			"trade_count":      result.Summary.TradeCount,
			"total_return_pct": result.Summary.TotalReturnPct,
			"win_rate":         result.Summary.WinRate,
		},
	})
}

// setupLogger builds a text logger at the configured level. Unknown
// levels fall back to info.
func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// loadRules resolves the rule text from either a file or an inline flag.
func loadRules(path, inline string) (string, error) {
	switch {
	case path != "" && inline != "":
		return "", fmt.Errorf("specify either --rules or --rules-text, not both")
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading rules file: %w", err)
		}
		return string(data), nil
	case inline != "":
		return inline, nil
	default:
		return "", fmt.Errorf("must specify --rules or --rules-text")
	}
}

// writeTrades writes the trade log as CSV to the given path, or to
// stdout when path is empty.
func writeTrades(path string, trades []types.Trade) error {
	var w *csv.Writer
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = csv.NewWriter(f)
	} else {
		w = csv.NewWriter(os.Stdout)
	}
	defer w.Flush()

	w.Write([]string{
		"entry_index", "exit_index", "entry_time", "exit_time",
		"entry_price", "exit_price", "return_pct", "exit_reason",
	})
	for _, t := range trades {
		w.Write([]string{
			strconv.Itoa(t.EntryIndex),
			strconv.Itoa(t.ExitIndex),
			t.EntryTime.Format(time.RFC3339),
			t.ExitTime.Format(time.RFC3339),
			fmt.Sprintf("%.6f", t.EntryPrice),
			fmt.Sprintf("%.6f", t.ExitPrice),
			fmt.Sprintf("%.6f", t.ReturnPct),
			t.ExitReason,
		})
	}
	return w.Error()
}

// runServer wires up the API server with optional Postgres and Redis
// dependencies and blocks until interrupted.
func runServer(logger *slog.Logger, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger = setupLogger(cfg.Service.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := runtracker.NewTracker(logger, version)
	recorder := metrics.New()

	server := api.NewServer(tracker, recorder, logger)
	server.InitialCapital = cfg.Service.InitialCapital

	// Postgres and Redis are optional. The API degrades to in-memory
	// tracking when either is disabled or unreachable.
	if cfg.Database.Enabled {
		st, err := store.NewClient(ctx, cfg.Database.ConnString(), logger)
		if err != nil {
			logger.Warn("Postgres unavailable, persistence disabled", "error", err)
		} else {
			defer st.Close()
			server.Store = st
		}
	}

	if cfg.Redis.Enabled {
		b := bus.NewBus(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.ChannelPrefix, logger)
		if err := b.HealthCheck(ctx); err != nil {
			logger.Warn("Redis unavailable, events disabled", "error", err)
			b.Close()
		} else {
			defer b.Close()
			server.Bus = b

			// Consume backtest requests published by other services.
			go func() {
				if err := server.RunListener(ctx); err != nil {
					logger.Error("Backtest listener stopped", "error", err)
				}
			}()
		}
	}

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         cfg.Service.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.Service.ListenAddr, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
