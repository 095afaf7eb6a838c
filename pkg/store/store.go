// Package store provides PostgreSQL persistence for strategies and
// backtest results.
//
// Schema (three tables): strategies holds named canonical DSL texts,
// backtest_results holds one summary row per run, backtest_trades holds
// the individual trades of a run linked by foreign key.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradescript/tradescript/pkg/types"
)

// StrategyRecord is a row from the strategies table.
type StrategyRecord struct {
	ID        int64
	Name      string
	DSLText   string
	CreatedAt time.Time
}

// ResultRecord is a row for the backtest_results table.
type ResultRecord struct {
	ID             int64
	RunID          string
	StrategyID     int64
	Bars           int
	InitialCapital float64
	FinalEquity    float64
	TotalReturnPct float64
	MaxDrawdownPct float64
	TradeCount     int
	WinRate        float64
	CreatedAt      time.Time
}

// Client provides database persistence operations.
type Client struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewClient creates a new database client with a connection pool.
func NewClient(ctx context.Context, connStr string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("Database connection pool established", "max_conns", config.MaxConns)
	return &Client{pool: pool, logger: logger}, nil
}

// Close shuts down the connection pool.
func (c *Client) Close() {
	c.pool.Close()
	c.logger.Info("Database connection pool closed")
}

// SaveStrategy upserts a named strategy's canonical DSL text and
// returns its row ID.
func (c *Client) SaveStrategy(ctx context.Context, name, dslText string) (int64, error) {
	var id int64
	err := c.pool.QueryRow(ctx,
		`INSERT INTO strategies (name, dsl_text)
		 VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET dsl_text = EXCLUDED.dsl_text
		 RETURNING id`,
		name, dslText,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("saving strategy %q: %w", name, err)
	}
	return id, nil
}

// GetStrategy looks up a strategy by name. Returns nil when not found.
func (c *Client) GetStrategy(ctx context.Context, name string) (*StrategyRecord, error) {
	var rec StrategyRecord
	err := c.pool.QueryRow(ctx,
		`SELECT id, name, dsl_text, created_at FROM strategies WHERE name = $1`,
		name,
	).Scan(&rec.ID, &rec.Name, &rec.DSLText, &rec.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up strategy %q: %w", name, err)
	}
	return &rec, nil
}

// ListStrategies returns all saved strategies ordered by name.
func (c *Client) ListStrategies(ctx context.Context) ([]StrategyRecord, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, name, dsl_text, created_at FROM strategies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing strategies: %w", err)
	}
	defer rows.Close()

	var out []StrategyRecord
	for rows.Next() {
		var rec StrategyRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.DSLText, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning strategy row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveResult inserts one backtest summary row and the trades of the
// run in a single transaction. Returns the result row ID.
func (c *Client) SaveResult(ctx context.Context, res ResultRecord, trades []types.Trade) (int64, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO backtest_results
			(run_id, strategy_id, bars, initial_capital, final_equity,
			 total_return_pct, max_drawdown_pct, trade_count, win_rate)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		res.RunID, res.StrategyID, res.Bars, res.InitialCapital, res.FinalEquity,
		res.TotalReturnPct, res.MaxDrawdownPct, res.TradeCount, res.WinRate,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting result: %w", err)
	}

	if len(trades) > 0 {
		rows := make([][]interface{}, len(trades))
		for i, t := range trades {
			rows[i] = []interface{}{
				id,
				t.EntryIndex, t.ExitIndex,
				t.EntryTime, t.ExitTime,
				t.EntryPrice, t.ExitPrice,
				t.ReturnPct, t.ExitReason,
			}
		}

		// COPY for bulk insert performance.
		if _, err := tx.CopyFrom(
			ctx,
			pgx.Identifier{"backtest_trades"},
			[]string{
				"backtest_result_id",
				"entry_index", "exit_index",
				"entry_time", "exit_time",
				"entry_price", "exit_price",
				"return_pct", "exit_reason",
			},
			pgx.CopyFromRows(rows),
		); err != nil {
			return 0, fmt.Errorf("bulk inserting trades: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing result transaction: %w", err)
	}

	c.logger.Info("Saved backtest result",
		"run_id", res.RunID,
		"trades", len(trades),
		"total_return_pct", res.TotalReturnPct,
	)
	return id, nil
}

// ResultFromSummary builds a ResultRecord from a backtest summary.
func ResultFromSummary(runID string, strategyID int64, bars int, sum types.Summary) ResultRecord {
	return ResultRecord{
		RunID:          runID,
		StrategyID:     strategyID,
		Bars:           bars,
		InitialCapital: sum.InitialCapital,
		FinalEquity:    sum.FinalEquity,
		TotalReturnPct: sum.TotalReturnPct,
		MaxDrawdownPct: sum.MaxDrawdownPct,
		TradeCount:     sum.TradeCount,
		WinRate:        sum.WinRate,
	}
}
