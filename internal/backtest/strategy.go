// Package backtest implements the bar-driven simulation engine. It replays a
// strategy over an ordered series of OHLC bars, maintains the single open
// position through a four-state machine, and produces the list of completed
// trades consumed by the analyzer.
package backtest

import (
	"sort"

	"quantsim/internal/domain"
)

// EnterFunc is the handle passed to EntryRule. Calling it requests a position
// in the given direction; the engine opens it at the next bar's open. An
// empty direction defaults to long.
type EnterFunc func(direction domain.Direction)

// ExitOptions qualify an exit requested through an ExitFunc.
type ExitOptions struct {
	// Price overrides the fill price. When nil the position closes at the
	// next bar's open.
	Price *float64
	// Reason overrides the recorded exit reason, default "exit-rule".
	Reason string
}

// ExitFunc is the handle passed to ExitRule. Calling it requests that the
// open position be closed; the engine commits the close at the next bar.
type ExitFunc func(opts ExitOptions)

// EntryContext is the read-only view passed to EntryRule.
type EntryContext struct {
	Bar domain.IndicatorBar
	// Lookback holds the most recent LookbackPeriod bars, oldest first,
	// including Bar itself.
	Lookback []domain.IndicatorBar
	Params   any
}

// ExitContext is the read-only view passed to ExitRule while a position is
// open.
type ExitContext struct {
	EntryPrice float64
	Position   *domain.Position
	Bar        domain.IndicatorBar
	Lookback   []domain.IndicatorBar
	Params     any
}

// StopContext is the view passed to StopLoss, TrailingStopLoss, and
// ProfitTarget when the engine sizes stops and targets.
type StopContext struct {
	EntryPrice float64
	Direction  domain.Direction
	Position   *domain.Position
	Bar        domain.IndicatorBar
	Lookback   []domain.IndicatorBar
	Params     any
}

// Strategy describes a trading strategy as a record of callbacks. EntryRule
// is required; every other member is optional.
type Strategy struct {
	// LookbackPeriod is the number of bars the strategy must see before any
	// rule fires. Defaults to 1.
	LookbackPeriod int

	// Params is an opaque value handed to every callback.
	Params any

	// PrepIndicators transforms the input series into the indicator series
	// seen by all other callbacks. When nil the input bars are used
	// unchanged.
	PrepIndicators func(params any, bars []domain.Bar) []domain.IndicatorBar

	// EntryRule is invoked on every bar while no position is open.
	EntryRule func(enter EnterFunc, ctx EntryContext)

	// ExitRule is invoked on each bar while a position is open, after the
	// stop-loss and profit-target checks, and only when neither of them
	// triggered on that bar.
	ExitRule func(exit ExitFunc, ctx ExitContext)

	// StopLoss returns the non-negative initial stop distance from the
	// entry price.
	StopLoss func(ctx StopContext) float64

	// TrailingStopLoss returns the non-negative trailing stop distance from
	// the current bar's close. The resulting stop only ever tightens.
	TrailingStopLoss func(ctx StopContext) float64

	// ProfitTarget returns the non-negative target distance from the entry
	// price.
	ProfitTarget func(ctx StopContext) float64

	// Fees returns the round-trip fee fraction (maker plus taker), applied
	// once to a trade's growth at close.
	Fees func() float64
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]*Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]*Strategy),
	}
}

// Register adds a strategy to the registry under the given name.
func (r *Registry) Register(name string, s *Strategy) {
	r.strategies[name] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (*Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
