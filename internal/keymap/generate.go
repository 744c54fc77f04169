package keymap

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"github.com/agentic-research/yieldtree/api"
)

// Warning is a non-fatal problem found while generating a key map.
type Warning struct {
	Row     int // 1-based CSV line, header is row 1
	Key     string
	Message string
}

func (w Warning) String() string {
	if w.Key == "" {
		return fmt.Sprintf("row %d: %s", w.Row, w.Message)
	}
	return fmt.Sprintf("row %d (%s): %s", w.Row, w.Key, w.Message)
}

// per-tool column suffixes of the spreadsheet export
const (
	colClass          = "_class"
	colName           = "_name"
	colFile           = "_file"
	colUnit           = "_unit"
	colTransformType  = "_transform_type"
	colTransformValue = "_transform_value"
)

// Generate builds a key map from a spreadsheet CSV export.
//
// The header names a "canonical" column, an optional "comment" column and, for
// every tool prefix p, the columns p_class, p_name and optionally p_file,
// p_unit, p_transform_type, p_transform_value. Tool prefixes are discovered
// from the *_class columns in header order.
//
// Rows without a canonical name derive one from the first native name. Rows
// that cannot produce a key or a mapping are skipped with a warning. A
// duplicate canonical key produces a warning and the later row replaces the
// earlier one.
func Generate(r io.Reader, logger *slog.Logger) (*api.KeyMap, []Warning, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read keymap header: %w", err)
	}
	cols := make(map[string]int, len(header))
	var tools []string
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		cols[h] = i
		if p, ok := strings.CutSuffix(h, colClass); ok && p != "" {
			tools = append(tools, p)
		}
	}
	canonCol := "canonical"
	if _, ok := cols[canonCol]; !ok {
		canonCol = "canonical_name"
	}
	if _, ok := cols[canonCol]; !ok {
		return nil, nil, errors.New("keymap header has no canonical column")
	}
	if len(tools) == 0 {
		return nil, nil, errors.New("keymap header has no <tool>_class columns")
	}

	out := &api.KeyMap{Version: "generated", Entries: make(map[string]api.Entry)}
	firstRow := make(map[string]int)
	var warnings []Warning
	warn := func(w Warning) {
		warnings = append(warnings, w)
		logger.Warn("keymap generation", "row", w.Row, "key", w.Key, "msg", w.Message)
	}

	row := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, warnings, fmt.Errorf("read keymap row %d: %w", row, err)
		}
		if blank(rec) {
			continue
		}
		raw := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		cell := func(name string) string { return strings.TrimSpace(raw(name)) }

		entry := api.Entry{Comment: cell("comment"), Sources: make(map[string]api.Mapping)}
		var firstNative string
		for _, p := range tools {
			name := cell(p + colName)
			if name == "" {
				continue
			}
			class := cell(p + colClass)
			src, ok := ParseSource(class)
			if !ok {
				warn(Warning{Row: row, Key: cell(canonCol), Message: fmt.Sprintf("tool %s: unknown class %q", p, class)})
				continue
			}
			m := api.Mapping{File: cell(p + colFile), Name: name, Unit: cell(p + colUnit)}
			if tt := cell(p + colTransformType); tt != "" {
				// transform values keep their whitespace, prefixes rely on it
				m.Transform = &api.Transform{Type: tt, Value: raw(p + colTransformValue)}
			}
			entry.Sources[src.String()] = m
			if firstNative == "" {
				firstNative = name
			}
		}

		key := cell(canonCol)
		if key == "" {
			key = DeriveKey(firstNative)
		}
		if key == "" {
			warn(Warning{Row: row, Message: "no canonical name and no native name to derive one; skipped"})
			continue
		}
		if len(entry.Sources) == 0 {
			warn(Warning{Row: row, Key: key, Message: "no usable source mapping; skipped"})
			continue
		}
		if prev, dup := firstRow[key]; dup {
			warn(Warning{Row: row, Key: key, Message: fmt.Sprintf("duplicate canonical key, overrides row %d", prev)})
		} else {
			firstRow[key] = row
		}
		out.Entries[key] = entry
	}
	return out, warnings, nil
}

// DeriveKey turns a native column name into a canonical key:
// "dist (pc)" -> "dist", "Star Name" -> "star_name".
func DeriveKey(native string) string {
	if i := strings.IndexAny(native, "(["); i >= 0 {
		native = native[:i]
	}
	var b strings.Builder
	underscore := false
	for _, r := range strings.TrimSpace(native) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimRight(b.String(), "_")
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
