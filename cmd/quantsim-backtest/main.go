package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"quantsim/internal/analyze"
	"quantsim/internal/backtest"
	"quantsim/internal/backtest/builtins"
	"quantsim/internal/config"
	"quantsim/internal/domain"
	"quantsim/internal/report"
	"quantsim/internal/store"
	"quantsim/internal/util"
)

func main() {
	csvPath := flag.String("csv", "", "load bars from a CSV file instead of the Parquet store")
	save := flag.Bool("save", false, "persist the run to the SQLite result store")
	tradesOut := flag.String("trades", "", "export the trade list to this CSV file")
	flag.Parse()

	cfgPath := "config/quantsim.yaml"
	if p := os.Getenv("QUANTSIM_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level))

	registry := backtest.NewRegistry()
	builtins.RegisterDefaults(registry, cfg.Backtest.Fees)

	strat, ok := registry.Get(cfg.Backtest.Strategy)
	if !ok {
		log.Fatalf("unknown strategy %q, available: %s",
			cfg.Backtest.Strategy, strings.Join(registry.List(), ", "))
	}

	start, end, err := cfg.Backtest.DateRange()
	if err != nil {
		log.Fatalf("invalid date range: %v", err)
	}

	ctx := context.Background()
	var bars []domain.Bar
	if *csvPath != "" {
		bars, err = store.ReadCSVBars(*csvPath)
	} else {
		bars, err = store.NewParquetStore(cfg.Storage.DataDir).ReadBars(ctx, cfg.Backtest.Symbol, start, end)
	}
	if err != nil {
		log.Fatalf("loading bars: %v", err)
	}
	if len(bars) == 0 {
		log.Fatalf("no bars for %s in [%s, %s]", cfg.Backtest.Symbol,
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	opts := backtest.Options{
		RecordStopPrice:    cfg.Backtest.RecordStopPrice,
		RecordRisk:         cfg.Backtest.RecordRisk,
		RecordRateOfReturn: cfg.Backtest.RecordRateOfReturn,
	}
	trades, err := backtest.Backtest(strat, bars, opts)
	if err != nil {
		log.Fatalf("backtest: %v", err)
	}

	capital := cfg.Backtest.StartingCapital
	if capital <= 0 {
		capital = 10000
	}
	analysis, err := analyze.Analyze(capital, trades, analyze.Options{
		StartingDate: bars[0].Time,
		EndingDate:   bars[len(bars)-1].Time,
	})
	if err != nil {
		log.Fatalf("analyze: %v", err)
	}

	fmt.Printf("%s on %s, %d bars [%s .. %s]\n\n",
		cfg.Backtest.Strategy, cfg.Backtest.Symbol, len(bars),
		bars[0].Time.Format("2006-01-02"), bars[len(bars)-1].Time.Format("2006-01-02"))
	if err := report.WriteAnalysis(os.Stdout, analysis); err != nil {
		log.Fatalf("writing report: %v", err)
	}
	if len(trades) > 0 {
		fmt.Println()
		if err := report.WriteTrades(os.Stdout, trades); err != nil {
			log.Fatalf("writing trade table: %v", err)
		}
	}

	if *tradesOut != "" {
		if err := report.WriteTradesCSV(trades, *tradesOut); err != nil {
			log.Fatalf("exporting trades: %v", err)
		}
		fmt.Printf("\ntrades exported to %s\n", *tradesOut)
	}

	if *save {
		results, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening result store: %v", err)
		}
		defer results.Close()

		run := &store.Run{
			Symbol:          cfg.Backtest.Symbol,
			Strategy:        cfg.Backtest.Strategy,
			StartingCapital: capital,
			Trades:          trades,
			Analysis:        analysis,
		}
		if err := results.SaveRun(ctx, run); err != nil {
			log.Fatalf("saving run: %v", err)
		}
		fmt.Printf("\nrun saved as %s\n", run.ID)
	}
}
