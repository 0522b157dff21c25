package builtins

import "quantsim/internal/backtest"

// RegisterDefaults registers every built-in strategy with its default
// parameters and the given fee fraction.
func RegisterDefaults(r *backtest.Registry, fees float64) {
	r.Register("sma-cross", SMACross(SMACrossParams{Fees: fees}))
	r.Register("donchian", Donchian(DonchianParams{AllowShort: true, Fees: fees}))
}
