package builtins

import (
	"math"

	"quantsim/internal/backtest"
	"quantsim/internal/domain"
)

// DonchianParams configure the Donchian channel breakout strategy.
type DonchianParams struct {
	ChannelPeriod int
	ATRPeriod     int
	// Stop distances expressed as ATR multiples. StopATR sizes the initial
	// stop, TrailATR the trailing stop; TargetATR sizes the profit target
	// and zero disables it.
	StopATR   float64
	TrailATR  float64
	TargetATR float64
	// AllowShort enables breakdown entries below the lower channel.
	AllowShort bool
	Fees       float64
}

// Indicator names published by the Donchian PrepIndicators pass.
const (
	indChannelHigh = "donchian_high"
	indChannelLow  = "donchian_low"
	indChannelMid  = "donchian_mid"
	indATR         = "atr"
)

// Donchian builds a channel breakout strategy: enter long when the close
// breaks above the highest high of the channel period, short (when enabled)
// on a break below the lowest low. Stops and the optional target are sized
// in ATR multiples; positions also exit when the close crosses back through
// the channel midline.
func Donchian(params DonchianParams) *backtest.Strategy {
	if params.ChannelPeriod <= 0 {
		params.ChannelPeriod = 20
	}
	if params.ATRPeriod <= 0 {
		params.ATRPeriod = 14
	}
	if params.StopATR <= 0 {
		params.StopATR = 2
	}
	if params.TrailATR <= 0 {
		params.TrailATR = 3
	}

	strat := &backtest.Strategy{
		LookbackPeriod: 1,
		Params:         params,
		PrepIndicators: prepDonchian,
		EntryRule: func(enter backtest.EnterFunc, ctx backtest.EntryContext) {
			high, ok1 := ctx.Bar.Indicator(indChannelHigh)
			low, ok2 := ctx.Bar.Indicator(indChannelLow)
			if !ok1 || !ok2 {
				return
			}
			if ctx.Bar.Close > high {
				enter(domain.DirectionLong)
				return
			}
			if params.AllowShort && ctx.Bar.Close < low {
				enter(domain.DirectionShort)
			}
		},
		ExitRule: func(exit backtest.ExitFunc, ctx backtest.ExitContext) {
			mid, ok := ctx.Bar.Indicator(indChannelMid)
			if !ok {
				return
			}
			if ctx.Position.Direction == domain.DirectionLong && ctx.Bar.Close < mid {
				exit(backtest.ExitOptions{})
			}
			if ctx.Position.Direction == domain.DirectionShort && ctx.Bar.Close > mid {
				exit(backtest.ExitOptions{})
			}
		},
		StopLoss: func(ctx backtest.StopContext) float64 {
			return atrDistance(ctx.Bar, params.StopATR, ctx.EntryPrice)
		},
		TrailingStopLoss: func(ctx backtest.StopContext) float64 {
			return atrDistance(ctx.Bar, params.TrailATR, ctx.Bar.Close)
		},
	}

	if params.TargetATR > 0 {
		strat.ProfitTarget = func(ctx backtest.StopContext) float64 {
			return atrDistance(ctx.Bar, params.TargetATR, ctx.EntryPrice)
		}
	}
	if params.Fees > 0 {
		strat.Fees = func() float64 { return params.Fees }
	}
	return strat
}

// atrDistance sizes a stop or target distance as an ATR multiple, falling
// back to 1% of the reference price while the ATR is warming up.
func atrDistance(bar domain.IndicatorBar, multiple, reference float64) float64 {
	if atr, ok := bar.Indicator(indATR); ok {
		return atr * multiple
	}
	return reference * 0.01
}

func prepDonchian(p any, bars []domain.Bar) []domain.IndicatorBar {
	params := p.(DonchianParams)

	out := make([]domain.IndicatorBar, len(bars))
	trSum := 0.0
	trs := make([]float64, len(bars))
	for i, b := range bars {
		ind := make(map[string]float64, 4)

		// Channel levels exclude the current bar so a breakout compares
		// against prior history.
		if i >= params.ChannelPeriod {
			high := math.Inf(-1)
			low := math.Inf(1)
			for j := i - params.ChannelPeriod; j < i; j++ {
				high = math.Max(high, bars[j].High)
				low = math.Min(low, bars[j].Low)
			}
			ind[indChannelHigh] = high
			ind[indChannelLow] = low
			ind[indChannelMid] = (high + low) / 2
		}

		// True range and its simple moving average.
		tr := b.High - b.Low
		if i > 0 {
			prevClose := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
		}
		trs[i] = tr
		trSum += tr
		if i >= params.ATRPeriod {
			trSum -= trs[i-params.ATRPeriod]
		}
		if i >= params.ATRPeriod-1 {
			ind[indATR] = trSum / float64(params.ATRPeriod)
		}

		out[i] = domain.IndicatorBar{Bar: b, Indicators: ind}
	}
	return out
}
