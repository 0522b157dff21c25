// Package builtins provides built-in strategy definitions that ship with the
// quantsim engine.
package builtins

import (
	"quantsim/internal/backtest"
	"quantsim/internal/domain"
)

// SMACrossParams configure the SMA crossover strategy.
type SMACrossParams struct {
	ShortPeriod int
	LongPeriod  int
	// StopLossPct places the initial stop this percentage below the entry
	// price. Zero disables the stop.
	StopLossPct float64
	// Fees is the round-trip fee fraction applied at close.
	Fees float64
}

// Indicator names published by the SMA crossover PrepIndicators pass.
const (
	indSMAShort = "sma_short"
	indSMALong  = "sma_long"
)

// SMACross builds a long-only moving average crossover strategy: enter when
// the short SMA crosses above the long SMA, exit when it crosses back below.
func SMACross(params SMACrossParams) *backtest.Strategy {
	if params.ShortPeriod <= 0 {
		params.ShortPeriod = 30
	}
	if params.LongPeriod <= 0 {
		params.LongPeriod = 100
	}

	strat := &backtest.Strategy{
		// Crossover detection compares this bar against the previous one.
		LookbackPeriod: 2,
		Params:         params,
		PrepIndicators: prepSMAs,
		EntryRule: func(enter backtest.EnterFunc, ctx backtest.EntryContext) {
			prev, cur, ok := crossPair(ctx.Lookback, ctx.Bar)
			if !ok {
				return
			}
			if prev.short <= prev.long && cur.short > cur.long {
				enter(domain.DirectionLong)
			}
		},
		ExitRule: func(exit backtest.ExitFunc, ctx backtest.ExitContext) {
			prev, cur, ok := crossPair(ctx.Lookback, ctx.Bar)
			if !ok {
				return
			}
			if prev.short >= prev.long && cur.short < cur.long {
				exit(backtest.ExitOptions{})
			}
		},
	}

	if params.StopLossPct > 0 {
		strat.StopLoss = func(ctx backtest.StopContext) float64 {
			return ctx.EntryPrice * params.StopLossPct / 100
		}
	}
	if params.Fees > 0 {
		strat.Fees = func() float64 { return params.Fees }
	}
	return strat
}

func prepSMAs(p any, bars []domain.Bar) []domain.IndicatorBar {
	params := p.(SMACrossParams)
	short := smaSeries(bars, params.ShortPeriod)
	long := smaSeries(bars, params.LongPeriod)

	out := make([]domain.IndicatorBar, len(bars))
	for i, b := range bars {
		ind := make(map[string]float64, 2)
		if v, ok := short[i]; ok {
			ind[indSMAShort] = v
		}
		if v, ok := long[i]; ok {
			ind[indSMALong] = v
		}
		out[i] = domain.IndicatorBar{Bar: b, Indicators: ind}
	}
	return out
}

// smaSeries computes the simple moving average of closes over period. Bars
// before the warmup completes have no value.
func smaSeries(bars []domain.Bar, period int) map[int]float64 {
	out := make(map[int]float64, len(bars))
	sum := 0.0
	for i, b := range bars {
		sum += b.Close
		if i >= period {
			sum -= bars[i-period].Close
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

type smaPoint struct {
	short, long float64
}

// crossPair extracts the (previous, current) SMA pairs needed for crossover
// detection. ok is false during warmup.
func crossPair(lookback []domain.IndicatorBar, bar domain.IndicatorBar) (prev, cur smaPoint, ok bool) {
	if len(lookback) < 2 {
		return prev, cur, false
	}
	p := lookback[len(lookback)-2]

	ps, ok1 := p.Indicator(indSMAShort)
	pl, ok2 := p.Indicator(indSMALong)
	cs, ok3 := bar.Indicator(indSMAShort)
	cl, ok4 := bar.Indicator(indSMALong)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return prev, cur, false
	}
	return smaPoint{ps, pl}, smaPoint{cs, cl}, true
}
