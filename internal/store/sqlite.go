package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"quantsim/internal/analyze"
	"quantsim/internal/domain"
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                   TEXT PRIMARY KEY,
	created_at           INTEGER NOT NULL,
	symbol               TEXT    NOT NULL,
	strategy             TEXT    NOT NULL,
	starting_capital     REAL    NOT NULL,
	final_capital        REAL    NOT NULL,
	profit               REAL    NOT NULL,
	profit_pct           REAL    NOT NULL,
	growth               REAL    NOT NULL,
	total_trades         INTEGER NOT NULL,
	bar_count            INTEGER NOT NULL,
	max_drawdown         REAL    NOT NULL,
	max_drawdown_pct     REAL    NOT NULL,
	max_risk_pct         REAL,
	expectancy           REAL,
	rmultiple_std_dev    REAL,
	system_quality       REAL,
	profit_factor        REAL,
	sharpe_ratio         REAL    NOT NULL,
	num_winning          INTEGER NOT NULL,
	num_losing           INTEGER NOT NULL,
	proportion_winning   REAL    NOT NULL,
	proportion_losing    REAL    NOT NULL,
	avg_winning_trade    REAL    NOT NULL,
	avg_losing_trade     REAL    NOT NULL,
	return_on_account    REAL    NOT NULL,
	avg_profit_per_trade REAL    NOT NULL,
	expected_value       REAL    NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	run_id         TEXT    NOT NULL REFERENCES runs(id),
	seq            INTEGER NOT NULL,
	direction      TEXT    NOT NULL,
	entry_time     INTEGER NOT NULL,
	entry_price    REAL    NOT NULL,
	exit_time      INTEGER NOT NULL,
	exit_price     REAL    NOT NULL,
	profit         REAL    NOT NULL,
	profit_pct     REAL    NOT NULL,
	growth         REAL    NOT NULL,
	holding_period INTEGER NOT NULL,
	exit_reason    TEXT    NOT NULL,
	runup          REAL    NOT NULL,
	risk_pct       REAL,
	rmultiple      REAL,
	stop_price     REAL,
	profit_target  REAL,
	PRIMARY KEY (run_id, seq)
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun persists a run and its trades in a single transaction. A missing ID
// or creation time is filled in.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	if run.Analysis == nil {
		return fmt.Errorf("run has no analysis")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	a := run.Analysis
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, created_at, symbol, strategy, starting_capital,
			final_capital, profit, profit_pct, growth, total_trades,
			bar_count, max_drawdown, max_drawdown_pct, max_risk_pct,
			expectancy, rmultiple_std_dev, system_quality, profit_factor,
			sharpe_ratio, num_winning, num_losing, proportion_winning,
			proportion_losing, avg_winning_trade, avg_losing_trade,
			return_on_account, avg_profit_per_trade, expected_value
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UnixMilli(), run.Symbol, run.Strategy, run.StartingCapital,
		a.FinalCapital, a.Profit, a.ProfitPct, a.Growth, a.TotalTrades,
		a.BarCount, a.MaxDrawdown, a.MaxDrawdownPct, nullable(a.MaxRiskPct),
		nullable(a.Expectancy), nullable(a.RMultipleStdDev), nullable(a.SystemQuality), nullable(a.ProfitFactor),
		a.SharpeRatio, a.NumWinningTrades, a.NumLosingTrades, a.ProportionWinning,
		a.ProportionLosing, a.AverageWinningTrade, a.AverageLosingTrade,
		a.ReturnOnAccount, a.AverageProfitPerTrade, a.ExpectedValue,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	for seq, trade := range run.Trades {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO trades (
				run_id, seq, direction, entry_time, entry_price,
				exit_time, exit_price, profit, profit_pct, growth,
				holding_period, exit_reason, runup, risk_pct, rmultiple,
				stop_price, profit_target
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, seq, string(trade.Direction), trade.EntryTime.UnixMilli(), trade.EntryPrice,
			trade.ExitTime.UnixMilli(), trade.ExitPrice, trade.Profit, trade.ProfitPct, trade.Growth,
			trade.HoldingPeriod, trade.ExitReason, trade.Runup, nullable(trade.RiskPct), nullable(trade.RMultiple),
			nullable(trade.StopPrice), nullable(trade.ProfitTarget),
		)
		if err != nil {
			return fmt.Errorf("inserting trade %d of run %s: %w", seq, run.ID, err)
		}
	}

	return tx.Commit()
}

// GetRun retrieves a single run, including its trades, by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, symbol, strategy, starting_capital,
			final_capital, profit, profit_pct, growth, total_trades,
			bar_count, max_drawdown, max_drawdown_pct, max_risk_pct,
			expectancy, rmultiple_std_dev, system_quality, profit_factor,
			sharpe_ratio, num_winning, num_losing, proportion_winning,
			proportion_losing, avg_winning_trade, avg_losing_trade,
			return_on_account, avg_profit_per_trade, expected_value
		FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT direction, entry_time, entry_price, exit_time, exit_price,
			profit, profit_pct, growth, holding_period, exit_reason, runup,
			risk_pct, rmultiple, stop_price, profit_target
		FROM trades WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			trade                                 domain.Trade
			direction                             string
			entryMs, exitMs                       int64
			riskPct, rmultiple, stopPrice, target sql.NullFloat64
		)
		err := rows.Scan(&direction, &entryMs, &trade.EntryPrice, &exitMs, &trade.ExitPrice,
			&trade.Profit, &trade.ProfitPct, &trade.Growth, &trade.HoldingPeriod, &trade.ExitReason, &trade.Runup,
			&riskPct, &rmultiple, &stopPrice, &target)
		if err != nil {
			return nil, err
		}
		trade.Direction = domain.Direction(direction)
		trade.EntryTime = time.UnixMilli(entryMs).UTC()
		trade.ExitTime = time.UnixMilli(exitMs).UTC()
		trade.RiskPct = floatPtr(riskPct)
		trade.RMultiple = floatPtr(rmultiple)
		trade.StopPrice = floatPtr(stopPrice)
		trade.ProfitTarget = floatPtr(target)
		run.Trades = append(run.Trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns summaries of the most recent runs (without trades),
// newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, symbol, strategy, starting_capital,
			final_capital, profit, profit_pct, growth, total_trades,
			bar_count, max_drawdown, max_drawdown_pct, max_risk_pct,
			expectancy, rmultiple_std_dev, system_quality, profit_factor,
			sharpe_ratio, num_winning, num_losing, proportion_winning,
			proportion_losing, avg_winning_trade, avg_losing_trade,
			return_on_account, avg_profit_per_trade, expected_value
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run                                          Run
		a                                            analyze.Analysis
		createdMs                                    int64
		maxRisk, expectancy, stdDev, quality, factor sql.NullFloat64
	)
	err := row.Scan(&run.ID, &createdMs, &run.Symbol, &run.Strategy, &run.StartingCapital,
		&a.FinalCapital, &a.Profit, &a.ProfitPct, &a.Growth, &a.TotalTrades,
		&a.BarCount, &a.MaxDrawdown, &a.MaxDrawdownPct, &maxRisk,
		&expectancy, &stdDev, &quality, &factor,
		&a.SharpeRatio, &a.NumWinningTrades, &a.NumLosingTrades, &a.ProportionWinning,
		&a.ProportionLosing, &a.AverageWinningTrade, &a.AverageLosingTrade,
		&a.ReturnOnAccount, &a.AverageProfitPerTrade, &a.ExpectedValue)
	if err != nil {
		return nil, err
	}
	run.CreatedAt = time.UnixMilli(createdMs).UTC()
	a.StartingCapital = run.StartingCapital
	a.MaxRiskPct = floatPtr(maxRisk)
	a.Expectancy = floatPtr(expectancy)
	a.RMultipleStdDev = floatPtr(stdDev)
	a.SystemQuality = floatPtr(quality)
	a.ProfitFactor = floatPtr(factor)
	run.Analysis = &a
	return &run, nil
}

func nullable(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
