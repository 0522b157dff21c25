// Package report renders backtest results as plain text and exports
// per-trade data to CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"quantsim/internal/analyze"
	"quantsim/internal/domain"
)

// WriteAnalysis renders the metrics record as an aligned key/value block.
func WriteAnalysis(w io.Writer, a *analyze.Analysis) error {
	rows := []struct {
		label string
		value string
	}{
		{"Starting capital", money(a.StartingCapital)},
		{"Final capital", money(a.FinalCapital)},
		{"Profit", money(a.Profit)},
		{"Profit %", percent(a.ProfitPct)},
		{"Growth", fmt.Sprintf("%.4f", a.Growth)},
		{"Total trades", strconv.Itoa(a.TotalTrades)},
		{"Bar count", strconv.Itoa(a.BarCount)},
		{"Max drawdown", money(a.MaxDrawdown)},
		{"Max drawdown %", percent(a.MaxDrawdownPct)},
		{"Max risk %", optional(a.MaxRiskPct, percent)},
		{"Expectancy", optional(a.Expectancy, ratio)},
		{"R-multiple std dev", optional(a.RMultipleStdDev, ratio)},
		{"System quality", optional(a.SystemQuality, ratio)},
		{"Profit factor", optional(a.ProfitFactor, ratio)},
		{"Sharpe ratio", ratio(a.SharpeRatio)},
		{"Winning trades", strconv.Itoa(a.NumWinningTrades)},
		{"Losing trades", strconv.Itoa(a.NumLosingTrades)},
		{"Win rate", percent(a.ProportionWinning * 100)},
		{"Avg winning trade", money(a.AverageWinningTrade)},
		{"Avg losing trade", money(a.AverageLosingTrade)},
		{"Return on account", ratio(a.ReturnOnAccount)},
		{"Avg profit per trade", money(a.AverageProfitPerTrade)},
		{"Expected value", money(a.ExpectedValue)},
	}

	for _, row := range rows {
		if _, err := fmt.Fprintf(w, "%-22s %s\n", row.label, row.value); err != nil {
			return err
		}
	}
	return nil
}

// WriteTrades renders a one-line-per-trade summary table.
func WriteTrades(w io.Writer, trades []domain.Trade) error {
	if _, err := fmt.Fprintf(w, "%-3s %-6s %-20s %-20s %10s %10s %8s %5s %-13s\n",
		"#", "side", "entry", "exit", "entry px", "exit px", "profit%", "bars", "reason"); err != nil {
		return err
	}
	for i, t := range trades {
		_, err := fmt.Fprintf(w, "%-3d %-6s %-20s %-20s %10.2f %10.2f %8.2f %5d %-13s\n",
			i+1, t.Direction,
			t.EntryTime.Format("2006-01-02 15:04"),
			t.ExitTime.Format("2006-01-02 15:04"),
			t.EntryPrice, t.ExitPrice, t.ProfitPct, t.HoldingPeriod, t.ExitReason)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteTradesCSV exports the trade list to a CSV file.
func WriteTradesCSV(trades []domain.Trade, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"direction", "entry_time", "exit_time", "entry_price", "exit_price",
		"profit", "profit_pct", "growth", "holding_period", "exit_reason",
		"runup", "risk_pct", "rmultiple", "stop_price", "profit_target",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		record := []string{
			string(t.Direction),
			t.EntryTime.Format("2006-01-02T15:04:05Z07:00"),
			t.ExitTime.Format("2006-01-02T15:04:05Z07:00"),
			formatFloat(t.EntryPrice), formatFloat(t.ExitPrice),
			formatFloat(t.Profit), formatFloat(t.ProfitPct), formatFloat(t.Growth),
			strconv.Itoa(t.HoldingPeriod), t.ExitReason,
			formatFloat(t.Runup),
			formatOptFloat(t.RiskPct), formatOptFloat(t.RMultiple),
			formatOptFloat(t.StopPrice), formatOptFloat(t.ProfitTarget),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func money(v float64) string   { return fmt.Sprintf("%.2f", v) }
func percent(v float64) string { return fmt.Sprintf("%.2f%%", v) }
func ratio(v float64) string   { return fmt.Sprintf("%.4f", v) }

// optional renders an absent metric as "-".
func optional(p *float64, format func(float64) string) string {
	if p == nil {
		return "-"
	}
	return format(*p)
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func formatOptFloat(p *float64) string {
	if p == nil {
		return ""
	}
	return formatFloat(*p)
}
