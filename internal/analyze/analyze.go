// Package analyze computes portfolio-level performance metrics over a
// sequence of completed trades. It is independent of the simulator: any
// ordered trade list can be analyzed.
package analyze

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"quantsim/internal/domain"
)

// ErrInvalidInput reports arguments that violate the Analyze contract.
var ErrInvalidInput = errors.New("invalid input")

// Options control the Sharpe ratio reconstruction. The Sharpe ratio is only
// computed when StartingDate and EndingDate are set and a timeframe is
// available; otherwise it is reported as 0.
type Options struct {
	StartingDate time.Time
	EndingDate   time.Time
	// Timeframe is the bar interval of the rate-of-return samples. When
	// zero it is inferred from the first trade carrying a rate-of-return
	// series.
	Timeframe time.Duration
}

// Analysis is the metrics record produced by Analyze. Aggregates whose
// defining division is undefined for the input are nil, never NaN; averages
// over empty cohorts are 0.
type Analysis struct {
	StartingCapital float64
	FinalCapital    float64
	Profit          float64
	ProfitPct       float64
	Growth          float64

	TotalTrades int
	BarCount    int

	// MaxDrawdown and MaxDrawdownPct are peak-to-trough declines of the
	// compounding equity curve, both non-positive.
	MaxDrawdown    float64
	MaxDrawdownPct float64

	MaxRiskPct      *float64
	Expectancy      *float64
	RMultipleStdDev *float64
	SystemQuality   *float64
	ProfitFactor    *float64
	SharpeRatio     float64

	NumWinningTrades  int
	NumLosingTrades   int
	ProportionWinning float64
	ProportionLosing  float64

	AverageWinningTrade   float64
	AverageLosingTrade    float64
	ReturnOnAccount       float64
	AverageProfitPerTrade float64
	ExpectedValue         float64
}

// Analyze reduces the trade sequence into an Analysis, compounding
// startingCapital through each trade's growth in order. startingCapital must
// be positive. An empty trade list yields an Analysis with the capital
// unchanged, zero counts and averages, and nil for the aggregates whose
// division would be undefined.
func Analyze(startingCapital float64, trades []domain.Trade, opts Options) (*Analysis, error) {
	if startingCapital <= 0 {
		return nil, fmt.Errorf("%w: starting capital must be positive, got %v", ErrInvalidInput, startingCapital)
	}

	working := startingCapital
	peak := startingCapital
	maxDrawdown := 0.0
	maxDrawdownPct := 0.0
	totalProfits := 0.0
	totalLosses := 0.0
	numWinning := 0
	numLosing := 0
	barCount := 0
	var maxRiskPct *float64
	var rmultiples []float64

	for i := range trades {
		trade := &trades[i]
		working *= trade.Growth
		barCount += trade.HoldingPeriod

		var workingDrawdown float64
		if working < peak {
			workingDrawdown = working - peak
		} else {
			peak = working
			workingDrawdown = 0
		}
		if workingDrawdown < maxDrawdown {
			maxDrawdown = workingDrawdown
		}
		if pct := maxDrawdown / peak * 100; pct < maxDrawdownPct {
			maxDrawdownPct = pct
		}

		// A zero-profit trade counts as losing and contributes zero to the
		// loss total.
		if trade.Profit > 0 {
			totalProfits += trade.Profit
			numWinning++
		} else {
			totalLosses += trade.Profit
			numLosing++
		}

		if trade.RiskPct != nil && (maxRiskPct == nil || *trade.RiskPct > *maxRiskPct) {
			v := *trade.RiskPct
			maxRiskPct = &v
		}
		if trade.RMultiple != nil {
			rmultiples = append(rmultiples, *trade.RMultiple)
		}
	}

	a := &Analysis{
		StartingCapital:  startingCapital,
		FinalCapital:     working,
		Profit:           working - startingCapital,
		ProfitPct:        (working - startingCapital) / startingCapital * 100,
		Growth:           working / startingCapital,
		TotalTrades:      len(trades),
		BarCount:         barCount,
		MaxDrawdown:      maxDrawdown,
		MaxDrawdownPct:   maxDrawdownPct,
		MaxRiskPct:       maxRiskPct,
		NumWinningTrades: numWinning,
		NumLosingTrades:  numLosing,
	}

	if len(rmultiples) > 0 {
		expectancy := stat.Mean(rmultiples, nil)
		stdDev := stat.PopStdDev(rmultiples, nil)
		a.Expectancy = &expectancy
		a.RMultipleStdDev = &stdDev
		if stdDev != 0 {
			quality := expectancy / stdDev
			a.SystemQuality = &quality
		}
	}
	if totalLosses != 0 {
		factor := totalProfits / math.Abs(totalLosses)
		a.ProfitFactor = &factor
	}
	if len(trades) > 0 {
		a.ProportionWinning = float64(numWinning) / float64(len(trades))
		a.ProportionLosing = float64(numLosing) / float64(len(trades))
		a.AverageProfitPerTrade = a.Profit / float64(len(trades))
	}
	if numWinning > 0 {
		a.AverageWinningTrade = totalProfits / float64(numWinning)
	}
	if numLosing > 0 {
		a.AverageLosingTrade = totalLosses / float64(numLosing)
	}
	if maxDrawdownPct != 0 {
		a.ReturnOnAccount = a.ProfitPct / math.Abs(maxDrawdownPct)
	}
	a.ExpectedValue = a.ProportionWinning*a.AverageWinningTrade + a.ProportionLosing*a.AverageLosingTrade

	a.SharpeRatio = sharpeRatio(trades, opts)

	return a, nil
}
