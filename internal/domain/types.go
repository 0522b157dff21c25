// Package domain defines the shared data types exchanged between the
// simulator, the analyzer, and the storage layer.
package domain

import "time"

// Direction indicates which side of the market a position is on.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Exit reasons recorded on completed trades.
const (
	ExitReasonStopLoss     = "stop-loss"
	ExitReasonProfitTarget = "profit-target"
	ExitReasonExitRule     = "exit-rule"
	ExitReasonFinalize     = "finalize"
)

// Bar is a single OHLCV candle over a fixed interval.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// IndicatorBar is a Bar augmented with named indicator values produced by a
// strategy's PrepIndicators pass. All strategy callbacks see IndicatorBars;
// when a strategy has no PrepIndicators the Indicators map is nil.
type IndicatorBar struct {
	Bar
	Indicators map[string]float64
}

// Indicator returns the named indicator value. The second return value
// reports whether the indicator is present on this bar.
func (b IndicatorBar) Indicator(name string) (float64, bool) {
	v, ok := b.Indicators[name]
	return v, ok
}

// TimedValue is a single {time, value} sample in a per-position series.
type TimedValue struct {
	Time  time.Time
	Value float64
}

// Position is the transient state of the single open position. At most one
// Position exists at a time; it is owned exclusively by the simulator and
// exposed to strategy callbacks by reference.
type Position struct {
	Direction  Direction
	EntryTime  time.Time
	EntryPrice float64

	// Growth is the multiplicative P&L factor since entry (1 at entry).
	Growth float64
	// Profit is the per-unit price profit since entry; ProfitPct is the
	// same expressed as a percentage of the entry price.
	Profit    float64
	ProfitPct float64
	// HoldingPeriod counts position updates: one per bar survived plus the
	// closing update.
	HoldingPeriod int
	// CurRateOfReturn is the per-bar multiplicative step, Growth/lastGrowth - 1.
	CurRateOfReturn float64
	// Runup is the maximum favorable excursion from entry.
	Runup float64

	// Stop and risk bookkeeping. Nil when the strategy defines no stop.
	InitialStopPrice *float64
	CurStopPrice     *float64
	InitialUnitRisk  *float64
	InitialRiskPct   *float64
	CurRiskPct       *float64
	CurRMultiple     *float64
	ProfitTarget     *float64

	// Per-bar sample series, present iff the corresponding record option
	// was set when the position was opened.
	RiskSeries         []TimedValue
	StopPriceSeries    []TimedValue
	RateOfReturnSeries []TimedValue
}

// Trade is the immutable record of a closed position, snapshotted by the
// simulator at close and consumed by the analyzer.
type Trade struct {
	Direction  Direction
	EntryTime  time.Time
	EntryPrice float64
	ExitTime   time.Time
	ExitPrice  float64

	Profit    float64
	ProfitPct float64
	// Growth is fee-adjusted: rawGrowth * (1 - fees).
	Growth        float64
	HoldingPeriod int
	ExitReason    string
	Runup         float64

	// Nil when the strategy defined no stop or target.
	RiskPct      *float64
	RMultiple    *float64
	StopPrice    *float64
	ProfitTarget *float64

	RiskSeries         []TimedValue
	StopPriceSeries    []TimedValue
	RateOfReturnSeries []TimedValue
}
