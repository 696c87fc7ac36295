package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// Frame is an in-memory table. Cells hold nil (missing), string, float64,
// bool or time.Time. Frames are never modified in place once built; every
// transform returns a new Frame.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// dateLayouts are tried in order when parsing the date column
var dateLayouts = []string{
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339,
}

// FrameOptions controls how a dataset file is read
type FrameOptions struct {
	Separator  rune   // Field separator (default ',')
	Encoding   string // "iso-8859-1" (default), "windows-1252" or "utf-8"
	DateColumn string // Column parsed as datetime and used as sort key (optional)
}

// LoadFrame reads a delimiter-separated file into a Frame
func LoadFrame(path string, opts FrameOptions) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ReadFrame(f, opts)
}

// ReadFrame parses a Frame from r. Numeric columns are detected, the date
// column is parsed and rows are stably sorted by it.
func ReadFrame(r io.Reader, opts FrameOptions) (*Frame, error) {
	decoded, err := decodeReader(r, opts.Encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(decoded)
	if opts.Separator != 0 {
		reader.Comma = opts.Separator
	}
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parse dataset: missing header row")
	}

	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}

	dateIdx := -1
	if opts.DateColumn != "" {
		dateIdx = indexOf(header, opts.DateColumn)
		if dateIdx < 0 {
			return nil, fmt.Errorf("parse dataset: %w: %s", ErrColumnNotFound, opts.DateColumn)
		}
	}

	numeric := make([]bool, len(header))
	for col := range header {
		numeric[col] = col != dateIdx && isNumericColumn(records[1:], col)
	}

	frame := &Frame{Columns: header, Rows: make([][]any, 0, len(records)-1)}
	for i, rec := range records[1:] {
		row := make([]any, len(header))
		for col := range header {
			var raw string
			if col < len(rec) {
				raw = strings.TrimSpace(rec[col])
			}
			switch {
			case raw == "":
				row[col] = nil
			case col == dateIdx:
				ts, err := parseDate(raw)
				if err != nil {
					return nil, fmt.Errorf("parse dataset: line %d: %w", i+2, err)
				}
				row[col] = ts
			case numeric[col]:
				v, _ := strconv.ParseFloat(raw, 64)
				row[col] = v
			default:
				row[col] = raw
			}
		}
		frame.Rows = append(frame.Rows, row)
	}

	if dateIdx >= 0 {
		sort.SliceStable(frame.Rows, func(a, b int) bool {
			c, _ := compareValues(frame.Rows[a][dateIdx], frame.Rows[b][dateIdx])
			return c < 0
		})
	}

	return frame, nil
}

func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.ReplaceAll(encoding, "_", "-")) {
	case "", "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(r), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(r), nil
	case "utf-8", "utf8":
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported dataset encoding: %s", encoding)
	}
}

func isNumericColumn(records [][]string, col int) bool {
	seen := false
	for _, rec := range records {
		if col >= len(rec) {
			continue
		}
		raw := strings.TrimSpace(rec[col])
		if raw == "" {
			continue
		}
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

// Clone returns a deep copy of the frame structure. Cell values are
// immutable so they are shared.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	out := &Frame{
		Columns: append([]string(nil), f.Columns...),
		Rows:    make([][]any, len(f.Rows)),
	}
	for i, row := range f.Rows {
		out.Rows[i] = append([]any(nil), row...)
	}
	return out
}

// ColumnIndex returns the position of a column or -1
func (f *Frame) ColumnIndex(name string) int {
	return indexOf(f.Columns, name)
}

// Column returns the values of one column
func (f *Frame) Column(name string) ([]any, error) {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	values := make([]any, len(f.Rows))
	for i, row := range f.Rows {
		values[i] = row[idx]
	}
	return values, nil
}

// Len returns the number of rows
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Cell renders a single value for display
func Cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(x)
	}
}

// StringRows renders up to limit rows as strings (limit <= 0 means all)
func (f *Frame) StringRows(limit int) [][]string {
	n := len(f.Rows)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([][]string, n)
	for i := 0; i < n; i++ {
		cells := make([]string, len(f.Columns))
		for j := range f.Columns {
			cells[j] = Cell(f.Rows[i][j])
		}
		out[i] = cells
	}
	return out
}

// compareValues orders two cell values. The boolean result is false when
// the values are of incomparable kinds. nil sorts after everything.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return 1, true
		default:
			return -1, true
		}
	}

	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			return cmpOrdered(x, y), true
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	return 0, false
}

func cmpOrdered[T float64 | int](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func indexOf(list []string, name string) int {
	for i, v := range list {
		if v == name {
			return i
		}
	}
	return -1
}
