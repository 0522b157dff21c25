package analyze

import (
	"errors"
	"math"
	"testing"
	"time"

	"quantsim/internal/domain"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func fptr(v float64) *float64 { return &v }

func TestAnalyzeInvalidCapital(t *testing.T) {
	if _, err := Analyze(0, nil, Options{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("capital 0: err = %v, want ErrInvalidInput", err)
	}
	if _, err := Analyze(-100, nil, Options{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("capital -100: err = %v, want ErrInvalidInput", err)
	}
}

func TestAnalyzeEmptyTrades(t *testing.T) {
	a, err := Analyze(10000, nil, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if a.FinalCapital != 10000 {
		t.Errorf("FinalCapital = %v, want the starting capital", a.FinalCapital)
	}
	if a.Profit != 0 || a.ProfitPct != 0 {
		t.Errorf("Profit = %v, ProfitPct = %v, want 0", a.Profit, a.ProfitPct)
	}
	if a.Growth != 1 {
		t.Errorf("Growth = %v, want 1", a.Growth)
	}
	if a.TotalTrades != 0 || a.BarCount != 0 {
		t.Errorf("TotalTrades = %d, BarCount = %d, want 0", a.TotalTrades, a.BarCount)
	}
	if a.MaxDrawdown != 0 || a.MaxDrawdownPct != 0 {
		t.Errorf("drawdown = %v / %v, want 0", a.MaxDrawdown, a.MaxDrawdownPct)
	}
	// Division-undefined aggregates are absent, not zero or NaN.
	if a.Expectancy != nil || a.RMultipleStdDev != nil || a.SystemQuality != nil {
		t.Error("R-multiple aggregates should be nil without R-multiples")
	}
	if a.ProfitFactor != nil {
		t.Error("ProfitFactor should be nil without losses")
	}
	if a.MaxRiskPct != nil {
		t.Error("MaxRiskPct should be nil without risk data")
	}
	if a.SharpeRatio != 0 {
		t.Errorf("SharpeRatio = %v, want 0 without dates", a.SharpeRatio)
	}
	if a.AverageWinningTrade != 0 || a.AverageLosingTrade != 0 {
		t.Error("averages over empty cohorts should be 0")
	}
}

// One winner and one loser through a compounding equity curve.
func TestAnalyzeTwoTrades(t *testing.T) {
	trades := []domain.Trade{
		{
			Direction: domain.DirectionLong, Growth: 1.10,
			EntryPrice: 1000, ExitPrice: 1100, Profit: 100, HoldingPeriod: 3,
		},
		{
			Direction: domain.DirectionLong, Growth: 0.95,
			EntryPrice: 1000, ExitPrice: 950, Profit: -50, HoldingPeriod: 2,
		},
	}

	a, err := Analyze(1000, trades, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if got, want := a.FinalCapital, 1045.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("FinalCapital = %v, want %v", got, want)
	}
	if got, want := a.Profit, 45.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("Profit = %v, want %v", got, want)
	}
	if a.NumWinningTrades != 1 || a.NumLosingTrades != 1 {
		t.Errorf("win/lose = %d/%d, want 1/1", a.NumWinningTrades, a.NumLosingTrades)
	}
	if a.ProfitFactor == nil {
		t.Fatal("ProfitFactor is nil, want 2")
	}
	if got := *a.ProfitFactor; math.Abs(got-2.0) > 1e-9 {
		t.Errorf("ProfitFactor = %v, want 2", got)
	}
	if a.BarCount != 5 {
		t.Errorf("BarCount = %d, want 5", a.BarCount)
	}

	// Peak 1100 after the winner, trough 1045 after the loser.
	if got, want := a.MaxDrawdown, 1045.0-1100.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("MaxDrawdown = %v, want %v", got, want)
	}
	if got, want := a.MaxDrawdownPct, (1045.0-1100.0)/1100.0*100; math.Abs(got-want) > 1e-9 {
		t.Errorf("MaxDrawdownPct = %v, want %v", got, want)
	}
	if a.MaxDrawdown > 0 || a.MaxDrawdownPct > 0 {
		t.Error("drawdowns must be non-positive")
	}

	if got, want := a.AverageWinningTrade, 100.0; got != want {
		t.Errorf("AverageWinningTrade = %v, want %v", got, want)
	}
	if got, want := a.AverageLosingTrade, -50.0; got != want {
		t.Errorf("AverageLosingTrade = %v, want %v", got, want)
	}
	if got, want := a.ExpectedValue, 0.5*100+0.5*(-50); math.Abs(got-want) > 1e-9 {
		t.Errorf("ExpectedValue = %v, want %v", got, want)
	}
	if got, want := a.ReturnOnAccount, a.ProfitPct/math.Abs(a.MaxDrawdownPct); math.Abs(got-want) > 1e-9 {
		t.Errorf("ReturnOnAccount = %v, want %v", got, want)
	}
	if got, want := a.AverageProfitPerTrade, 22.5; math.Abs(got-want) > 1e-9 {
		t.Errorf("AverageProfitPerTrade = %v, want %v", got, want)
	}
}

// Compounding identity: the sum of log growths equals log(final/starting).
func TestAnalyzeLogGrowthIdentity(t *testing.T) {
	growths := []float64{1.04, 0.97, 1.12, 0.97, 1.002, 0.85, 1.3}
	trades := make([]domain.Trade, len(growths))
	logSum := 0.0
	for i, g := range growths {
		trades[i] = domain.Trade{Growth: g, HoldingPeriod: 1}
		logSum += math.Log(g)
	}

	a, err := Analyze(2500, trades, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got := math.Log(a.FinalCapital / a.StartingCapital); math.Abs(got-logSum) > 1e-9 {
		t.Errorf("log(final/starting) = %v, want sum of log growths %v", got, logSum)
	}
}

// A zero-profit trade counts as losing but adds nothing to the loss total.
func TestAnalyzeZeroProfitTradeIsLosing(t *testing.T) {
	trades := []domain.Trade{
		{Growth: 1.05, Profit: 50, HoldingPeriod: 1},
		{Growth: 1.0, Profit: 0, HoldingPeriod: 1},
	}

	a, err := Analyze(1000, trades, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.NumWinningTrades != 1 || a.NumLosingTrades != 1 {
		t.Errorf("win/lose = %d/%d, want 1/1", a.NumWinningTrades, a.NumLosingTrades)
	}
	// Total losses stay zero, so the profit factor is undefined.
	if a.ProfitFactor != nil {
		t.Errorf("ProfitFactor = %v, want nil", *a.ProfitFactor)
	}
	if a.AverageLosingTrade != 0 {
		t.Errorf("AverageLosingTrade = %v, want 0", a.AverageLosingTrade)
	}
}

func TestAnalyzeRMultipleAggregates(t *testing.T) {
	trades := []domain.Trade{
		{Growth: 1.1, Profit: 10, HoldingPeriod: 1, RMultiple: fptr(2), RiskPct: fptr(1.5)},
		{Growth: 0.95, Profit: -5, HoldingPeriod: 1, RMultiple: fptr(-1), RiskPct: fptr(2.5)},
		{Growth: 1.05, Profit: 5, HoldingPeriod: 1, RMultiple: fptr(1), RiskPct: fptr(0.5)},
		{Growth: 1.0, Profit: 0, HoldingPeriod: 1}, // no stop, no R-multiple
	}

	a, err := Analyze(1000, trades, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	// Expectancy is the mean of defined R-multiples: (2 - 1 + 1) / 3.
	if a.Expectancy == nil {
		t.Fatal("Expectancy is nil")
	}
	wantExpectancy := 2.0 / 3.0
	if math.Abs(*a.Expectancy-wantExpectancy) > 1e-9 {
		t.Errorf("Expectancy = %v, want %v", *a.Expectancy, wantExpectancy)
	}

	// Population standard deviation of [2, -1, 1].
	mean := wantExpectancy
	variance := ((2-mean)*(2-mean) + (-1-mean)*(-1-mean) + (1-mean)*(1-mean)) / 3
	wantStdDev := math.Sqrt(variance)
	if a.RMultipleStdDev == nil {
		t.Fatal("RMultipleStdDev is nil")
	}
	if math.Abs(*a.RMultipleStdDev-wantStdDev) > 1e-9 {
		t.Errorf("RMultipleStdDev = %v, want %v", *a.RMultipleStdDev, wantStdDev)
	}

	if a.SystemQuality == nil {
		t.Fatal("SystemQuality is nil")
	}
	if got, want := *a.SystemQuality, wantExpectancy/wantStdDev; math.Abs(got-want) > 1e-9 {
		t.Errorf("SystemQuality = %v, want %v", got, want)
	}

	if a.MaxRiskPct == nil || *a.MaxRiskPct != 2.5 {
		t.Errorf("MaxRiskPct = %v, want 2.5", a.MaxRiskPct)
	}
}

func TestAnalyzeSystemQualityUndefinedOnZeroStdDev(t *testing.T) {
	trades := []domain.Trade{
		{Growth: 1.1, Profit: 10, HoldingPeriod: 1, RMultiple: fptr(1.5)},
	}

	a, err := Analyze(1000, trades, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Expectancy == nil || *a.Expectancy != 1.5 {
		t.Errorf("Expectancy = %v, want 1.5", a.Expectancy)
	}
	if a.RMultipleStdDev == nil || *a.RMultipleStdDev != 0 {
		t.Errorf("RMultipleStdDev = %v, want 0", a.RMultipleStdDev)
	}
	if a.SystemQuality != nil {
		t.Errorf("SystemQuality = %v, want nil when the std-dev is 0", *a.SystemQuality)
	}
}

// Sharpe reconstruction over a single trade covering the full date range.
func TestAnalyzeSharpeReconstruction(t *testing.T) {
	const samples = 100
	timeframe := 24 * time.Hour
	start := day0
	end := day0.Add(samples * timeframe)

	series := make([]domain.TimedValue, samples)
	values := make([]float64, samples)
	for i := 0; i < samples; i++ {
		v := float64(i%7)*0.001 - 0.002
		series[i] = domain.TimedValue{Time: start.Add(time.Duration(i) * timeframe), Value: v}
		values[i] = v
	}
	trades := []domain.Trade{
		{
			Growth:             1.01,
			Profit:             10,
			HoldingPeriod:      samples,
			EntryTime:          start,
			ExitTime:           end,
			RateOfReturnSeries: series,
		},
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= samples
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= samples - 1 // sample standard deviation
	want := mean / math.Sqrt(variance) * math.Sqrt(float64(365*24*time.Hour)/float64(timeframe))

	// Explicit timeframe.
	a, err := Analyze(1000, trades, Options{StartingDate: start, EndingDate: end, Timeframe: timeframe})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if math.Abs(a.SharpeRatio-want) > 1e-9 {
		t.Errorf("SharpeRatio = %v, want %v", a.SharpeRatio, want)
	}

	// Timeframe inferred from the trade's own series: (exit-entry)/len = 24h.
	a, err = Analyze(1000, trades, Options{StartingDate: start, EndingDate: end})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if math.Abs(a.SharpeRatio-want) > 1e-9 {
		t.Errorf("SharpeRatio (inferred timeframe) = %v, want %v", a.SharpeRatio, want)
	}

	// Without a starting date the Sharpe ratio defaults to 0.
	a, err = Analyze(1000, trades, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.SharpeRatio != 0 {
		t.Errorf("SharpeRatio = %v, want 0 without dates", a.SharpeRatio)
	}
}

// Later samples overwrite earlier ones when they land in the same bucket.
func TestAnalyzeSharpeBucketLastWriterWins(t *testing.T) {
	timeframe := time.Hour
	start := day0
	end := day0.Add(4 * timeframe)

	trades := []domain.Trade{
		{
			Growth: 1, HoldingPeriod: 1,
			EntryTime: start, ExitTime: start.Add(timeframe),
			RateOfReturnSeries: []domain.TimedValue{{Time: start.Add(timeframe), Value: 0.5}},
		},
		{
			Growth: 1, HoldingPeriod: 1,
			EntryTime: start.Add(timeframe), ExitTime: start.Add(2 * timeframe),
			RateOfReturnSeries: []domain.TimedValue{{Time: start.Add(timeframe), Value: -0.25}},
		},
	}

	a, err := Analyze(1000, trades, Options{StartingDate: start, EndingDate: end, Timeframe: timeframe})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	// Reconstructed vector: [0, -0.25, 0, 0] — the second trade's sample
	// overwrote the first's.
	v := []float64{0, -0.25, 0, 0}
	mean := (v[0] + v[1] + v[2] + v[3]) / 4
	variance := 0.0
	for _, x := range v {
		variance += (x - mean) * (x - mean)
	}
	variance /= 3
	want := mean / math.Sqrt(variance) * math.Sqrt(float64(365*24*time.Hour)/float64(timeframe))
	if math.Abs(a.SharpeRatio-want) > 1e-9 {
		t.Errorf("SharpeRatio = %v, want %v", a.SharpeRatio, want)
	}
}
