package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"quantsim/internal/domain"
)

// Sentinel errors for the two failure classes of a backtest run.
var (
	// ErrInvalidInput reports arguments that violate the Backtest contract.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvariant reports a strategy programming error, such as requesting
	// an entry while a position is already open. It terminates the backtest.
	ErrInvariant = errors.New("invariant violation")
)

// Options gate the optional per-bar sample series recorded on each position.
type Options struct {
	RecordStopPrice    bool
	RecordRisk         bool
	RecordRateOfReturn bool
}

// positionStatus is the engine state observed at the start of each bar. A
// transition set while processing one bar is acted on at the next bar, so a
// signal observed on bar N fills at bar N+1's open.
type positionStatus int

const (
	statusNone positionStatus = iota
	statusEnter
	statusPosition
	statusExit
)

// simulation holds the mutable state of one Backtest call.
type simulation struct {
	strat *Strategy
	opts  Options
	fees  float64

	ring   *ring
	status positionStatus
	pos    *domain.Position

	// Entry intent recorded by the EnterFunc handle, committed next bar.
	pendingEnter bool
	entryDir     domain.Direction

	// Deferred exit recorded by an intrabar trigger or the ExitFunc handle.
	exitPrice  *float64
	exitReason string

	violation error
	trades    []domain.Trade
}

// Backtest replays strategy over bars and returns the completed trades in the
// order their exits occurred. bars must be non-empty, ordered by time, and at
// least as long as the strategy's lookback period.
func Backtest(strat *Strategy, bars []domain.Bar, opts Options) ([]domain.Trade, error) {
	if strat == nil {
		return nil, fmt.Errorf("%w: nil strategy", ErrInvalidInput)
	}
	if strat.EntryRule == nil {
		return nil, fmt.Errorf("%w: strategy has no entry rule", ErrInvalidInput)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: empty bar series", ErrInvalidInput)
	}
	lookbackPeriod := strat.LookbackPeriod
	if lookbackPeriod < 1 {
		lookbackPeriod = 1
	}
	if len(bars) < lookbackPeriod {
		return nil, fmt.Errorf("%w: %d bars, need at least the lookback period of %d",
			ErrInvalidInput, len(bars), lookbackPeriod)
	}

	series := indicatorSeries(strat, bars)
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: indicator series is empty", ErrInvalidInput)
	}

	s := &simulation{
		strat: strat,
		opts:  opts,
		ring:  newRing(lookbackPeriod),
	}
	if strat.Fees != nil {
		s.fees = strat.Fees()
	}

	for i := range series {
		if err := s.step(series[i]); err != nil {
			return nil, err
		}
	}

	// A position still open after the last bar is finalized at its close,
	// one inferred timeframe past its time.
	if s.pos != nil {
		last := series[len(series)-1]
		exitTime := last.Time.Add(inferTimeframe(series))
		s.trades = append(s.trades, s.finalizePosition(exitTime, last.Close, domain.ExitReasonFinalize))
		s.pos = nil
	}

	return s.trades, nil
}

// step pushes one bar into the lookback buffer and, once the buffer is full,
// dispatches on the state observed at the start of the bar.
func (s *simulation) step(bar domain.IndicatorBar) error {
	s.ring.Push(bar)
	if !s.ring.Full() {
		return nil
	}

	switch s.status {
	case statusNone:
		s.dispatchEntryRule(bar)
	case statusEnter:
		s.openPosition(bar)
	case statusPosition:
		s.updatePosition(bar)
	case statusExit:
		s.commitExit(bar)
	}
	return s.violation
}

// dispatchEntryRule invokes the strategy's entry rule with an EnterFunc
// handle. The handle records an intent; the open itself happens next bar.
func (s *simulation) dispatchEntryRule(bar domain.IndicatorBar) {
	s.strat.EntryRule(s.enterFunc(), EntryContext{
		Bar:      bar,
		Lookback: s.ring.View(),
		Params:   s.strat.Params,
	})
	if s.violation != nil {
		return
	}
	if s.pendingEnter {
		s.pendingEnter = false
		s.status = statusEnter
	}
}

func (s *simulation) enterFunc() EnterFunc {
	return func(direction domain.Direction) {
		if s.status != statusNone || s.pendingEnter {
			s.violation = fmt.Errorf("%w: entry requested while a position is already open or pending", ErrInvariant)
			return
		}
		if direction == "" {
			direction = domain.DirectionLong
		}
		s.pendingEnter = true
		s.entryDir = direction
	}
}

func (s *simulation) exitFunc() ExitFunc {
	return func(opts ExitOptions) {
		if s.status != statusPosition {
			s.violation = fmt.Errorf("%w: exit requested while not in a position", ErrInvariant)
			return
		}
		reason := opts.Reason
		if reason == "" {
			reason = domain.ExitReasonExitRule
		}
		s.requestExit(opts.Price, reason)
	}
}

// requestExit defers the close of the open position to the next bar. A nil
// price means the close fills at that bar's open.
func (s *simulation) requestExit(price *float64, reason string) {
	s.status = statusExit
	s.exitPrice = price
	s.exitReason = reason
}

// commitExit closes the position whose exit was recorded on the previous bar.
func (s *simulation) commitExit(bar domain.IndicatorBar) {
	if s.pos == nil {
		s.violation = fmt.Errorf("%w: closing with no open position", ErrInvariant)
		return
	}
	price := bar.Open
	if s.exitPrice != nil {
		price = *s.exitPrice
	}
	s.trades = append(s.trades, s.finalizePosition(bar.Time, price, s.exitReason))
	s.pos = nil
	s.exitPrice = nil
	s.exitReason = ""
	s.status = statusNone
}

// indicatorSeries applies the strategy's PrepIndicators hook, or lifts the
// input bars unchanged when the strategy has none.
func indicatorSeries(strat *Strategy, bars []domain.Bar) []domain.IndicatorBar {
	if strat.PrepIndicators != nil {
		return strat.PrepIndicators(strat.Params, bars)
	}
	out := make([]domain.IndicatorBar, len(bars))
	for i, b := range bars {
		out[i] = domain.IndicatorBar{Bar: b}
	}
	return out
}

// inferTimeframe estimates the bar interval as the span from the first to the
// last bar divided by the number of bars, rounded to the nearest nanosecond.
func inferTimeframe(series []domain.IndicatorBar) time.Duration {
	if len(series) == 0 {
		return 0
	}
	span := series[len(series)-1].Time.Sub(series[0].Time)
	return time.Duration(math.Round(float64(span) / float64(len(series))))
}
