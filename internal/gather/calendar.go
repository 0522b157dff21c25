package gather

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// LatestFinishedTradingDay returns the most recent trading day whose session
// has fully settled, so a fetch never stores a partial session. A day counts
// as finished once the clock passes 20:05 ET (extended hours included). Uses
// the Alpaca trading calendar API.
func LatestFinishedTradingDay(apiKey, apiSecret, baseURL string) (time.Time, error) {
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})

	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, fmt.Errorf("loading ET timezone: %w", err)
	}
	now := time.Now().In(et)

	days, err := client.GetCalendar(alpaca.GetCalendarRequest{
		Start: now.AddDate(0, 0, -7),
		End:   now,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("GetCalendar: %w", err)
	}

	settleCutoff := time.Date(now.Year(), now.Month(), now.Day(), 20, 5, 0, 0, et)
	for i := len(days) - 1; i >= 0; i-- {
		day, err := time.Parse("2006-01-02", days[i].Date)
		if err != nil {
			continue
		}
		switch {
		case days[i].Date == now.Format("2006-01-02"):
			if now.After(settleCutoff) {
				return day, nil
			}
		case day.Before(now):
			return day, nil
		}
	}

	return time.Time{}, fmt.Errorf("no finished trading day in the last week")
}
