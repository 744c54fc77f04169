// Package tree mirrors a simulation output directory as a tree of nodes and
// answers canonical key queries against it.
//
// Directories are composite nodes that ask their children in order; files are
// leaves that translate canonical keys through the key map, apply filename
// gates and value transforms, and attach physical units. A miss is never an
// error: it is a Result with Found == false so the search can move on to the
// next sibling.
package tree

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/yieldtree/internal/units"
)

// ErrLoad marks a source file that could not be loaded.
var ErrLoad = errors.New("load failed")

// LoadError reports a malformed or unreadable source file.
// It aborts the whole tree build.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{ErrLoad, e.Err}
}

// Node is the contract shared by directories and files.
type Node interface {
	Path() string
	Name() string
	// Get resolves a canonical (or native) key.
	Get(key string) (Result, error)
	// HasKey reports whether the node can answer key at all.
	HasKey(key string) bool
	// Coverage is the set of key map ordinals this node can answer.
	Coverage() *roaring.Bitmap
}

// Value is a retrieved quantity with its optional unit.
//
// Data holds one of: float64, int64, bool, string, []byte, []float64,
// []int64, []string, []any, map[string]any or *Table.
type Value struct {
	Data any
	Unit *units.Unit
}

// Floats returns numeric data as a float slice.
func (v Value) Floats() ([]float64, bool) {
	switch x := v.Data.(type) {
	case float64:
		return []float64{x}, true
	case int64:
		return []float64{float64(x)}, true
	case []float64:
		return x, true
	case []int64:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return out, true
	default:
		return nil, false
	}
}

func (v Value) String() string {
	var s string
	switch x := v.Data.(type) {
	case nil:
		s = ""
	case float64:
		s = formatFloat(x)
	case []float64:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = formatFloat(f)
		}
		s = "[" + strings.Join(parts, ", ") + "]"
	case []string:
		s = "[" + strings.Join(x, ", ") + "]"
	case []byte:
		s = string(x)
	case *Table:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}
	if v.Unit != nil && v.Unit.Symbol != "" {
		s += " " + v.Unit.Symbol
	}
	return s
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Result is the outcome of a query: a found value or "not applicable here".
type Result struct {
	Value Value
	Found bool
}

// NotApplicable is the miss result.
var NotApplicable = Result{}

// Found wraps v as a hit.
func Found(v Value) Result {
	return Result{Value: v, Found: true}
}

// Table is a small derived table, e.g. per-star aggregates.
type Table struct {
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

// Column returns one column by name.
func (t *Table) Column(name string) ([]float64, bool) {
	for j, c := range t.Columns {
		if c != name {
			continue
		}
		out := make([]float64, len(t.Rows))
		for i, r := range t.Rows {
			out[i] = r[j]
		}
		return out, true
	}
	return nil, false
}

// MarshalJSON writes missing cells as null.
func (t *Table) MarshalJSON() ([]byte, error) {
	rows := make([][]*float64, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = make([]*float64, len(r))
		for j := range r {
			if !math.IsNaN(r[j]) && !math.IsInf(r[j], 0) {
				rows[i][j] = &r[j]
			}
		}
	}
	return json.Marshal(struct {
		Columns []string     `json:"columns"`
		Rows    [][]*float64 `json:"rows"`
	}{t.Columns, rows})
}

func (t *Table) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(t.Columns, "\t"))
	for _, r := range t.Rows {
		b.WriteByte('\n')
		for j, f := range r {
			if j > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(formatFloat(f))
		}
	}
	return b.String()
}
