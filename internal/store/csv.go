package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"quantsim/internal/domain"
)

// ReadCSVBars loads bars from a CSV file with columns
//
//	time,open,high,low,close[,volume]
//
// A header row is skipped when present. Files exported by charting tools are
// often UTF-16 or carry a byte-order mark; both are handled transparently.
// Bars must be in ascending time order.
func ReadCSVBars(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseCSVBars(f)
}

func parseCSVBars(r io.Reader) ([]domain.Bar, error) {
	// BOMOverride switches to UTF-16 when the file starts with a UTF-16
	// BOM and strips a leading UTF-8 BOM otherwise.
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1

	var bars []domain.Bar
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV: %w", err)
		}
		line++

		if len(record) < 5 {
			return nil, fmt.Errorf("line %d: %d columns, want at least 5", line, len(record))
		}

		ts, err := parseBarTime(strings.TrimSpace(record[0]))
		if err != nil {
			if line == 1 {
				// Header row.
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		bar := domain.Bar{Time: ts}
		for i, dst := range []*float64{&bar.Open, &bar.High, &bar.Low, &bar.Close} {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, i+2, err)
			}
			*dst = v
		}
		if len(record) > 5 {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[5]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d volume: %w", line, err)
			}
			bar.Volume = int64(v)
		}

		if n := len(bars); n > 0 && !bar.Time.After(bars[n-1].Time) {
			return nil, fmt.Errorf("line %d: bar time %v not after previous %v", line, bar.Time, bars[n-1].Time)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// parseBarTime accepts RFC3339, common date/datetime layouts, and Unix
// epoch seconds or milliseconds.
func parseBarTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Heuristic: values this large are milliseconds.
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
