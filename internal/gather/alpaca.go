package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantsim/internal/domain"
	"quantsim/internal/store"
	"quantsim/internal/util"
)

// Compile-time interface check.
var _ Gatherer = (*DailyBarGatherer)(nil)

// DailyBarGatherer fetches daily OHLCV bars for a configured list of symbols
// from the Alpaca market-data API and writes them to the bar store.
type DailyBarGatherer struct {
	client    *marketdata.Client
	store     store.BarStore
	symbols   []string
	batchSize int
	limiter   *util.RateLimiter
	startDate string
	apiKey    string
	apiSecret string
	baseURL   string // live trading API, used for the calendar
	log       *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer configured with the given
// Alpaca credentials, target store, symbol list, and rate-limit parameters.
func NewDailyBarGatherer(apiKey, apiSecret, dataURL, baseURL string, s store.BarStore, symbols []string, batchSize, rateLimitPerMin int, startDate string) *DailyBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	if rateLimitPerMin <= 0 {
		rateLimitPerMin = 200
	}

	return &DailyBarGatherer{
		client:    marketdata.NewClient(opts),
		store:     s,
		symbols:   symbols,
		batchSize: batchSize,
		limiter:   util.NewRateLimiter(rateLimitPerMin),
		startDate: startDate,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		log:       slog.Default().With("gatherer", "daily-bars"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "daily-bars" }

// Run fetches daily bars for every configured symbol from the Alpaca API and
// writes them to the bar store. The end date is clamped to the latest
// finished trading day so partial sessions never land in storage.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	if len(g.symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}
	start, err := time.Parse("2006-01-02", g.startDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.startDate, err)
	}

	end, err := LatestFinishedTradingDay(g.apiKey, g.apiSecret, g.baseURL)
	if err != nil {
		return fmt.Errorf("determining end date: %w", err)
	}

	runStart := time.Now()
	g.log.Info("starting daily-bars",
		"symbols", len(g.symbols),
		"start", g.startDate,
		"end", end.Format("2006-01-02"),
	)

	totalBars := 0
	for i := 0; i < len(g.symbols); i += g.batchSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		batch := g.symbols[i:min(i+g.batchSize, len(g.symbols))]

		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		var bySymbol map[string][]domain.Bar
		err := util.Retry(ctx, 3, time.Second, func() error {
			var ferr error
			bySymbol, ferr = g.fetchMultiBars(batch, start, end)
			return ferr
		})
		if err != nil {
			g.log.Error("batch fetch failed", "symbols", batch, "err", err)
			continue
		}

		for symbol, bars := range bySymbol {
			if err := g.store.WriteBars(ctx, symbol, bars); err != nil {
				return fmt.Errorf("writing bars for %s: %w", symbol, err)
			}
			totalBars += len(bars)
		}

		g.log.Info("batch done",
			"symbols", len(batch),
			"hits", len(bySymbol),
			"elapsed", time.Since(runStart).Round(time.Second),
		)
	}

	g.log.Info("complete", "bars", totalBars, "elapsed", time.Since(runStart).Round(time.Second))
	return nil
}

// fetchMultiBars fetches daily bars for multiple symbols in a single API call.
func (g *DailyBarGatherer) fetchMultiBars(symbols []string, start, end time.Time) (map[string][]domain.Bar, error) {
	multiBars, err := g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      "sip",
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	out := make(map[string][]domain.Bar, len(multiBars))
	for symbol, alpacaBars := range multiBars {
		bars := make([]domain.Bar, 0, len(alpacaBars))
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Time:   ab.Timestamp,
				Open:   ab.Open,
				High:   ab.High,
				Low:    ab.Low,
				Close:  ab.Close,
				Volume: int64(ab.Volume),
			})
		}
		out[strings.ToUpper(symbol)] = bars
	}
	return out, nil
}
