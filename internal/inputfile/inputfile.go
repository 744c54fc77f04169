// Package inputfile parses AYO input parameter files.
//
// The format is line oriented:
//
//	key = value (unit) {type} ; comment
//
// Values are numbers, quoted strings, bracketed arrays, bare identifiers or a
// single binary arithmetic expression over numbers and earlier keys. Array
// elements are single operands: an expression inside brackets, a nested array
// or a trailing comma makes the whole line unparsable. Parsing is
// a single forward pass: a key is visible to the lines after it, and an
// identifier that is not yet defined stays a literal token. A line that fails
// to parse is reported and skipped; the rest of the file still loads.
package inputfile

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/agentic-research/yieldtree/internal/units"
)

// Param is one parsed assignment.
type Param struct {
	Key     string
	Value   any // float64, int64, bool, string, []float64, []int64, []string or []any
	Unit    *units.Unit
	Type    string
	Comment string
	Line    int
}

// Diagnostic describes a skipped line.
type Diagnostic struct {
	Line    int
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s", d.Line, d.Message)
}

// Options configures Parse.
type Options struct {
	// Units resolves unit clauses. Nil means a fresh units.NewContext().
	Units *units.Context
	// Logger receives one warning per skipped line. Nil means slog.Default().
	Logger *slog.Logger
	// Name labels log records, usually the file path.
	Name string
}

// File is the result of parsing one input file.
type File struct {
	Params      []Param
	Diagnostics []Diagnostic
	index       map[string]int
}

// Get returns the latest assignment of key.
func (f *File) Get(key string) (Param, bool) {
	i, ok := f.index[key]
	if !ok {
		return Param{}, false
	}
	return f.Params[i], true
}

// Keys returns every assigned key once, in order of first assignment.
func (f *File) Keys() []string {
	seen := make(map[string]bool, len(f.index))
	out := make([]string, 0, len(f.index))
	for _, p := range f.Params {
		if !seen[p.Key] {
			seen[p.Key] = true
			out = append(out, p.Key)
		}
	}
	return out
}

// Parse reads an input file. It only fails on read errors.
func Parse(r io.Reader, opts Options) (*File, error) {
	if opts.Units == nil {
		opts.Units = units.NewContext()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	f := &File{index: make(map[string]int)}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		p, ok, err := parseLine(sc.Text(), lineNo, f, opts.Units)
		if err != nil {
			d := Diagnostic{Line: lineNo, Message: err.Error()}
			f.Diagnostics = append(f.Diagnostics, d)
			opts.Logger.Warn("skipping unparsable input line", "file", opts.Name, "line", lineNo, "err", err)
			continue
		}
		if !ok {
			continue
		}
		f.index[p.Key] = len(f.Params)
		f.Params = append(f.Params, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input file %s: %w", opts.Name, err)
	}
	return f, nil
}

// ParseFile opens and parses path.
func ParseFile(path string, opts Options) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = fh.Close() }() // read-only
	if opts.Name == "" {
		opts.Name = path
	}
	return Parse(fh, opts)
}
