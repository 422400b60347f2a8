// Package ticksource adapts flat CSV files into ordered TickRecord
// streams. It implements the opaque TickSource the rest of the system
// consumes as an interface, not an implementation.
package ticksource

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/epic1st/rtx/backend/logging"
)

// TickRecord is a single time-step observation for one symbol.
type TickRecord struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume uint64  `json:"volume"`
}

func parseLine(fields []string, lineNum int) (TickRecord, error) {
	if len(fields) != 6 {
		return TickRecord{}, fmt.Errorf("invalid CSV format at line %d: expected 6 fields, got %d", lineNum, len(fields))
	}

	open, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return TickRecord{}, fmt.Errorf("invalid open price at line %d: %w", lineNum, err)
	}
	high, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return TickRecord{}, fmt.Errorf("invalid high price at line %d: %w", lineNum, err)
	}
	low, err := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
	if err != nil {
		return TickRecord{}, fmt.Errorf("invalid low price at line %d: %w", lineNum, err)
	}
	closePrice, err := strconv.ParseFloat(strings.TrimSpace(fields[4]), 64)
	if err != nil {
		return TickRecord{}, fmt.Errorf("invalid close price at line %d: %w", lineNum, err)
	}
	volume, err := strconv.ParseUint(strings.TrimSpace(fields[5]), 10, 64)
	if err != nil {
		return TickRecord{}, fmt.Errorf("invalid volume at line %d: %w", lineNum, err)
	}

	return TickRecord{
		Date:   strings.TrimSpace(fields[0]),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, nil
}

// LoadFile parses one CSV file of `date,open,high,low,close,volume` rows,
// no header. Malformed lines are logged and skipped; the file fails to
// load only if every line is invalid.
func LoadFile(path string) ([]TickRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records []TickRecord
	errCount := 0
	lineNum := 0

	for {
		fields, err := reader.Read()
		if err != nil {
			break // io.EOF or a fatal CSV framing error both stop the scan
		}
		lineNum++

		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			continue
		}

		record, err := parseLine(fields, lineNum)
		if err != nil {
			logging.Warn("skipping malformed tick row", logging.String("file", path), logging.String("error", err.Error()))
			errCount++
			continue
		}
		records = append(records, record)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("failed to load any valid data from %s: %d errors encountered", path, errCount)
	}
	if errCount > 0 {
		logging.Warn("loaded tick file with errors", logging.String("file", path), logging.Int("records", len(records)), logging.Int("errors", errCount))
	}
	return records, nil
}

// LoadDir scans dir for *.csv files and loads each as a symbol named
// after its upper-cased file stem. Per-file failures are logged and
// that symbol is skipped; the scan itself fails only if dir cannot be
// read at all.
func LoadDir(dir string) (map[string][]TickRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading data directory %s: %w", dir, err)
	}

	out := make(map[string][]TickRecord)
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}

		symbol := strings.ToUpper(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))
		records, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			logging.Error("failed to load symbol from data directory", err, logging.Symbol(symbol))
			continue
		}
		out[symbol] = records
	}

	return out, nil
}

// DefaultFixture is a small in-memory NIFTY series used when no data
// directory and no single fallback file are present, so a fresh
// checkout has something to broadcast without any operator setup.
func DefaultFixture() map[string][]TickRecord {
	return map[string][]TickRecord{
		"NIFTY": {
			{Date: "2024-01-01", Open: 21000, High: 21150, Low: 20950, Close: 21100, Volume: 125000},
			{Date: "2024-01-02", Open: 21100, High: 21300, Low: 21050, Close: 21250, Volume: 138000},
			{Date: "2024-01-03", Open: 21250, High: 21400, Low: 21200, Close: 21380, Volume: 142500},
		},
	}
}
