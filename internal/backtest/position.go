package backtest

import (
	"math"
	"time"

	"quantsim/internal/domain"
)

// openPosition fills the entry recorded on the previous bar at this bar's
// open, sizes the initial stop, profit target, and trailing stop, and runs
// the intrabar exit check against this same bar so a gap can stop the
// position out immediately.
func (s *simulation) openPosition(bar domain.IndicatorBar) {
	entryPrice := bar.Open
	pos := &domain.Position{
		Direction:  s.entryDir,
		EntryTime:  bar.Time,
		EntryPrice: entryPrice,
		Growth:     1,
	}
	s.pos = pos

	ctx := s.stopContext(pos, bar)

	if s.strat.StopLoss != nil {
		distance := s.strat.StopLoss(ctx)
		stop := entryPrice - distance
		if pos.Direction == domain.DirectionShort {
			stop = entryPrice + distance
		}
		pos.InitialStopPrice = ptr(stop)
		pos.CurStopPrice = ptr(stop)

		unitRisk := math.Abs(entryPrice - stop)
		pos.InitialUnitRisk = ptr(unitRisk)
		pos.InitialRiskPct = ptr(unitRisk / entryPrice * 100)
		pos.CurRiskPct = ptr(*pos.InitialRiskPct)
		pos.CurRMultiple = ptr(0)
	}

	if s.opts.RecordRisk && pos.CurRiskPct != nil {
		pos.RiskSeries = []domain.TimedValue{{Time: bar.Time, Value: *pos.CurRiskPct}}
	}
	if s.opts.RecordRateOfReturn {
		pos.RateOfReturnSeries = []domain.TimedValue{{Time: bar.Time, Value: 0}}
	}

	if s.strat.ProfitTarget != nil {
		distance := s.strat.ProfitTarget(ctx)
		target := entryPrice + distance
		if pos.Direction == domain.DirectionShort {
			target = entryPrice - distance
		}
		pos.ProfitTarget = ptr(target)
	}

	s.status = statusPosition
	s.checkExit(bar)
	if s.violation != nil {
		return
	}

	if s.strat.TrailingStopLoss != nil {
		distance := s.strat.TrailingStopLoss(ctx)
		trail := bar.Close - distance
		if pos.Direction == domain.DirectionShort {
			trail = bar.Close + distance
		}
		if pos.InitialStopPrice == nil {
			pos.CurStopPrice = ptr(trail)
		} else {
			pos.InitialStopPrice = ptr(tighten(pos.Direction, *pos.InitialStopPrice, trail))
			pos.CurStopPrice = ptr(*pos.InitialStopPrice)
		}
		if s.opts.RecordStopPrice {
			pos.StopPriceSeries = []domain.TimedValue{{Time: bar.Time, Value: *pos.CurStopPrice}}
		}
	}

	s.updateRunup(bar)
}

// updatePosition marks the open position to market at this bar's open,
// appends the enabled sample series, runs the intrabar exit check, ratchets
// the trailing stop, and updates the runup.
func (s *simulation) updatePosition(bar domain.IndicatorBar) {
	pos := s.pos
	price := bar.Open
	lastGrowth := pos.Growth

	if pos.Direction == domain.DirectionLong {
		pos.Profit = price - pos.EntryPrice
		pos.Growth = price / pos.EntryPrice
	} else {
		pos.Profit = pos.EntryPrice - price
		pos.Growth = (2*pos.EntryPrice - price) / pos.EntryPrice
	}
	pos.ProfitPct = pos.Profit / pos.EntryPrice * 100

	if pos.CurStopPrice != nil {
		unitRisk := price - *pos.CurStopPrice
		if pos.Direction == domain.DirectionShort {
			unitRisk = *pos.CurStopPrice - price
		}
		pos.CurRiskPct = ptr(unitRisk / price * 100)
		pos.CurRMultiple = ptr(pos.Profit / unitRisk)
	}

	pos.HoldingPeriod++
	pos.CurRateOfReturn = pos.Growth/lastGrowth - 1

	if s.opts.RecordRisk && pos.RiskSeries != nil && pos.CurRiskPct != nil {
		pos.RiskSeries = append(pos.RiskSeries, domain.TimedValue{Time: bar.Time, Value: *pos.CurRiskPct})
	}
	if s.opts.RecordRateOfReturn && pos.RateOfReturnSeries != nil {
		pos.RateOfReturnSeries = append(pos.RateOfReturnSeries, domain.TimedValue{Time: bar.Time, Value: pos.CurRateOfReturn})
	}

	s.checkExit(bar)
	if s.violation != nil {
		return
	}

	if s.strat.TrailingStopLoss != nil {
		distance := s.strat.TrailingStopLoss(s.stopContext(pos, bar))
		trail := bar.Close - distance
		if pos.Direction == domain.DirectionShort {
			trail = bar.Close + distance
		}
		if pos.CurStopPrice == nil {
			pos.CurStopPrice = ptr(trail)
		} else {
			pos.CurStopPrice = ptr(tighten(pos.Direction, *pos.CurStopPrice, trail))
		}
		if s.opts.RecordStopPrice && pos.StopPriceSeries != nil {
			pos.StopPriceSeries = append(pos.StopPriceSeries, domain.TimedValue{Time: bar.Time, Value: *pos.CurStopPrice})
		}
	}

	s.updateRunup(bar)
}

// checkExit evaluates the intrabar exit conditions in priority order: stop
// loss, profit target, then the strategy's exit rule. The first match wins
// and defers the close to the next bar.
func (s *simulation) checkExit(bar domain.IndicatorBar) {
	pos := s.pos

	if pos.CurStopPrice != nil {
		stop := *pos.CurStopPrice
		if pos.Direction == domain.DirectionLong && bar.Low <= stop {
			// A gap down through the stop fills at the worse of the two.
			s.requestExit(ptr(math.Min(stop, bar.Open)), domain.ExitReasonStopLoss)
			return
		}
		if pos.Direction == domain.DirectionShort && bar.High >= stop {
			s.requestExit(ptr(math.Max(stop, bar.Open)), domain.ExitReasonStopLoss)
			return
		}
	}

	if pos.ProfitTarget != nil {
		target := *pos.ProfitTarget
		if pos.Direction == domain.DirectionLong && bar.High >= target {
			s.requestExit(ptr(target), domain.ExitReasonProfitTarget)
			return
		}
		if pos.Direction == domain.DirectionShort && bar.Low <= target {
			s.requestExit(ptr(target), domain.ExitReasonProfitTarget)
			return
		}
	}

	if s.strat.ExitRule != nil {
		s.strat.ExitRule(s.exitFunc(), ExitContext{
			EntryPrice: pos.EntryPrice,
			Position:   pos,
			Bar:        bar,
			Lookback:   s.ring.View(),
			Params:     s.strat.Params,
		})
	}
}

// finalizePosition computes the closing metrics at the given exit price,
// applies fees to the growth exactly once, and snapshots the immutable Trade.
func (s *simulation) finalizePosition(exitTime time.Time, exitPrice float64, reason string) domain.Trade {
	pos := s.pos

	if pos.Direction == domain.DirectionLong {
		pos.Profit = exitPrice - pos.EntryPrice
	} else {
		pos.Profit = pos.EntryPrice - exitPrice
	}
	pos.ProfitPct = pos.Profit / pos.EntryPrice * 100

	var rmultiple *float64
	if pos.InitialUnitRisk != nil {
		rmultiple = ptr(pos.Profit / *pos.InitialUnitRisk)
	}

	lastGrowth := pos.Growth
	growth := exitPrice / pos.EntryPrice
	if pos.Direction == domain.DirectionShort {
		growth = (2*pos.EntryPrice - exitPrice) / pos.EntryPrice
	}
	growth *= 1 - s.fees
	pos.Growth = growth
	pos.HoldingPeriod++
	pos.CurRateOfReturn = growth/lastGrowth - 1

	if s.opts.RecordRateOfReturn && pos.RateOfReturnSeries != nil {
		pos.RateOfReturnSeries = append(pos.RateOfReturnSeries, domain.TimedValue{Time: exitTime, Value: pos.CurRateOfReturn})
	}

	return domain.Trade{
		Direction:          pos.Direction,
		EntryTime:          pos.EntryTime,
		EntryPrice:         pos.EntryPrice,
		ExitTime:           exitTime,
		ExitPrice:          exitPrice,
		Profit:             pos.Profit,
		ProfitPct:          pos.ProfitPct,
		Growth:             pos.Growth,
		HoldingPeriod:      pos.HoldingPeriod,
		ExitReason:         reason,
		Runup:              pos.Runup,
		RiskPct:            pos.InitialRiskPct,
		RMultiple:          rmultiple,
		StopPrice:          pos.InitialStopPrice,
		ProfitTarget:       pos.ProfitTarget,
		RiskSeries:         pos.RiskSeries,
		StopPriceSeries:    pos.StopPriceSeries,
		RateOfReturnSeries: pos.RateOfReturnSeries,
	}
}

// updateRunup tracks the maximum favorable excursion from entry.
func (s *simulation) updateRunup(bar domain.IndicatorBar) {
	pos := s.pos
	if pos.Direction == domain.DirectionLong {
		pos.Runup = math.Max(pos.Runup, bar.High-pos.EntryPrice)
	} else {
		pos.Runup = math.Max(pos.Runup, pos.EntryPrice-bar.Low)
	}
}

func (s *simulation) stopContext(pos *domain.Position, bar domain.IndicatorBar) StopContext {
	return StopContext{
		EntryPrice: pos.EntryPrice,
		Direction:  pos.Direction,
		Position:   pos,
		Bar:        bar,
		Lookback:   s.ring.View(),
		Params:     s.strat.Params,
	}
}

// tighten moves a stop only in the protective direction: up for longs, down
// for shorts.
func tighten(dir domain.Direction, current, candidate float64) float64 {
	if dir == domain.DirectionLong {
		return math.Max(current, candidate)
	}
	return math.Min(current, candidate)
}

func ptr(v float64) *float64 { return &v }
