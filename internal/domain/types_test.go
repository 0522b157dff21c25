package domain

import (
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if !bar.Time.IsZero() {
		t.Error("expected zero Time for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}
	if bar.Volume != 0 {
		t.Error("expected zero Volume for zero-value Bar")
	}

	// Verify Position can be instantiated with zero values and that
	// optional fields are absent.
	pos := Position{}
	if pos.Direction != "" {
		t.Error("expected empty Direction for zero-value Position")
	}
	if pos.InitialStopPrice != nil || pos.CurStopPrice != nil || pos.ProfitTarget != nil {
		t.Error("expected nil stop/target fields for zero-value Position")
	}
	if pos.RiskSeries != nil || pos.StopPriceSeries != nil || pos.RateOfReturnSeries != nil {
		t.Error("expected nil sample series for zero-value Position")
	}

	// Verify Trade can be instantiated with zero values.
	trade := Trade{}
	if trade.ExitReason != "" {
		t.Error("expected empty ExitReason for zero-value Trade")
	}
	if trade.RiskPct != nil || trade.RMultiple != nil || trade.StopPrice != nil {
		t.Error("expected nil optional metrics for zero-value Trade")
	}

	// Verify enum constants are defined correctly.
	if DirectionLong != "long" || DirectionShort != "short" {
		t.Error("Direction constants have unexpected values")
	}
	if ExitReasonStopLoss != "stop-loss" || ExitReasonProfitTarget != "profit-target" {
		t.Error("exit reason constants have unexpected values")
	}
	if ExitReasonExitRule != "exit-rule" || ExitReasonFinalize != "finalize" {
		t.Error("exit reason constants have unexpected values")
	}

	// Verify structs can be constructed with real values.
	now := time.Now()
	tv := TimedValue{Time: now, Value: 1.5}
	if tv.Value != 1.5 {
		t.Errorf("tv.Value = %v, want 1.5", tv.Value)
	}
}

func TestIndicatorBarLookup(t *testing.T) {
	b := IndicatorBar{
		Bar:        Bar{Open: 100, Close: 101},
		Indicators: map[string]float64{"sma20": 99.5},
	}

	v, ok := b.Indicator("sma20")
	if !ok {
		t.Fatal("Indicator returned ok=false for present indicator")
	}
	if v != 99.5 {
		t.Errorf("Indicator(sma20) = %v, want 99.5", v)
	}

	if _, ok := b.Indicator("rsi"); ok {
		t.Error("Indicator returned ok=true for absent indicator")
	}

	// A bare bar has no indicators at all.
	bare := IndicatorBar{Bar: Bar{Open: 100}}
	if _, ok := bare.Indicator("sma20"); ok {
		t.Error("Indicator on nil map should report absent")
	}
}
