package analyze

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"quantsim/internal/domain"
)

// yearDuration is the annualization basis for the Sharpe ratio.
const yearDuration = 365 * 24 * time.Hour

// sharpeRatio reconstructs a uniformly-sampled rate-of-return vector over
// [StartingDate, EndingDate) and returns its annualized mean-over-std-dev.
// Samples are scattered into round()-ed buckets; colliding samples are
// last-writer-wins. Returns 0 whenever a precondition is missing.
func sharpeRatio(trades []domain.Trade, opts Options) float64 {
	if opts.StartingDate.IsZero() || opts.EndingDate.IsZero() {
		return 0
	}
	timeframe := opts.Timeframe
	if timeframe == 0 {
		timeframe = inferTradeTimeframe(trades)
	}
	if timeframe <= 0 {
		return 0
	}

	n := int(opts.EndingDate.Sub(opts.StartingDate) / timeframe)
	if n <= 0 {
		return 0
	}

	returns := make([]float64, n)
	for i := range trades {
		for _, sample := range trades[i].RateOfReturnSeries {
			idx := int(math.Round(float64(sample.Time.Sub(opts.StartingDate)) / float64(timeframe)))
			if idx >= 0 && idx < n {
				returns[idx] = sample.Value
			}
		}
	}

	mean, stdDev := stat.MeanStdDev(returns, nil)
	if stdDev == 0 {
		return 0
	}
	return mean / stdDev * math.Sqrt(float64(yearDuration)/float64(timeframe))
}

// inferTradeTimeframe derives the sample interval from the first trade that
// carries a rate-of-return series.
func inferTradeTimeframe(trades []domain.Trade) time.Duration {
	for i := range trades {
		if n := len(trades[i].RateOfReturnSeries); n > 0 {
			return trades[i].ExitTime.Sub(trades[i].EntryTime) / time.Duration(n)
		}
	}
	return 0
}
