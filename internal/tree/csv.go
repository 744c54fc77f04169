package tree

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// csvContent holds a table column-wise: numeric columns as []float64, the
// rest as []string. Empty numeric cells become NaN.
type csvContent struct {
	header  []string
	columns map[string]any
}

func decodeCSV(_ string, data []byte, _ *Env) (Content, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comment = '#'
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &csvContent{columns: map[string]any{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	cells := make([][]string, len(header))
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		for i, v := range rec {
			cells[i] = append(cells[i], strings.TrimSpace(v))
		}
	}

	c := &csvContent{columns: make(map[string]any, len(header))}
	for i, name := range header {
		if name == "" {
			continue
		}
		if _, dup := c.columns[name]; dup {
			continue
		}
		c.header = append(c.header, name)
		c.columns[name] = packColumn(cells[i])
	}
	return c, nil
}

func packColumn(cells []string) any {
	floats := make([]float64, len(cells))
	numeric := false
	for i, s := range cells {
		if s == "" || strings.EqualFold(s, "nan") {
			floats[i] = math.NaN()
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			out := make([]string, len(cells))
			copy(out, cells)
			return out
		}
		floats[i] = f
		numeric = true
	}
	if !numeric && len(cells) > 0 {
		out := make([]string, len(cells))
		copy(out, cells)
		return out
	}
	return floats
}

func (c *csvContent) Lookup(native string) (Value, bool) {
	col, ok := c.columns[native]
	if !ok {
		return Value{}, false
	}
	return Value{Data: cloneData(col)}, true
}

func (c *csvContent) Keys() []string {
	out := make([]string, len(c.header))
	copy(out, c.header)
	return out
}

// cloneData copies slices so transforms never write into loaded content.
func cloneData(v any) any {
	switch x := v.(type) {
	case []float64:
		out := make([]float64, len(x))
		copy(out, x)
		return out
	case []string:
		out := make([]string, len(x))
		copy(out, x)
		return out
	case []int64:
		out := make([]int64, len(x))
		copy(out, x)
		return out
	default:
		return v
	}
}

// headerUnit extracts a trailing parenthesized unit, "dist (pc)" -> "pc".
func headerUnit(native string) (string, bool) {
	s := strings.TrimSpace(native)
	if !strings.HasSuffix(s, ")") {
		return "", false
	}
	open := strings.LastIndexByte(s, '(')
	if open <= 0 {
		return "", false
	}
	u := strings.TrimSpace(s[open+1 : len(s)-1])
	return u, u != ""
}
