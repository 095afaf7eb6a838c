// Package feed supplies OHLCV bar series to the evaluator and
// simulator: CSV files exported from data services, and deterministic
// synthetic walks for demos and tests.
package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tradescript/tradescript/pkg/types"
)

// requiredColumns must all be present in a bar CSV header.
var requiredColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// LoadCSVFile reads OHLCV bars from a CSV file.
func LoadCSVFile(path string) ([]types.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV reads OHLCV bars from CSV data with a header row containing
// timestamp, open, high, low, close, volume columns (extra columns are
// ignored). Bars are indexed in row order.
func ReadCSV(r io.Reader) ([]types.Bar, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV must have header + at least 1 data row")
	}

	colIdx := make(map[string]int)
	for i, h := range records[0] {
		colIdx[strings.TrimSpace(strings.ToLower(h))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	bars := make([]types.Bar, 0, len(records)-1)
	for rowNum, row := range records[1:] {
		if len(row) != len(records[0]) {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", rowNum+2, len(records[0]), len(row))
		}

		ts, err := parseTimestamp(row[colIdx["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("row %d timestamp: %w", rowNum+2, err)
		}

		fields := make(map[string]float64, 5)
		for _, col := range requiredColumns[1:] {
			v, err := strconv.ParseFloat(row[colIdx[col]], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d %s: %w", rowNum+2, col, err)
			}
			fields[col] = v
		}

		bars = append(bars, types.Bar{
			Index:     len(bars),
			Timestamp: ts,
			Open:      fields["open"],
			High:      fields["high"],
			Low:       fields["low"],
			Close:     fields["close"],
			Volume:    fields["volume"],
		})
	}

	return bars, nil
}

// parseTimestamp tries multiple timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, f := range formats {
		t, err := time.Parse(f, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %s", s)
}
