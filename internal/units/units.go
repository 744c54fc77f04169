// Package units resolves physical unit strings into comparable units.
//
// A Context carries the alias table and the unit registry. It is built once
// with NewContext and never mutated afterwards; With returns an extended copy
// so callers can add custom units without touching shared state.
package units

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrUnknownUnit  = errors.New("unknown unit")
	ErrIncompatible = errors.New("incompatible units")
)

// Base identifies one base dimension.
type Base int

const (
	Length Base = iota
	Time
	Mass
	Angle
	Temperature
	LambdaOverD
	Magnitude
	Count
	numBases
)

// Dimension holds the exponent of every base dimension.
type Dimension [numBases]int8

// Unit is a symbol with a scale factor relative to the base unit of its dimension.
type Unit struct {
	Symbol string
	Scale  float64
	Dim    Dimension
}

// Dimensionless is the unit of pure numbers.
var Dimensionless = Unit{Scale: 1}

func (u Unit) String() string { return u.Symbol }

// IsDimensionless reports whether all base exponents are zero.
func (u Unit) IsDimensionless() bool {
	return u.Dim == Dimension{}
}

// Pow raises u to an integer power.
func (u Unit) Pow(n int) Unit {
	if n == 1 {
		return u
	}
	out := Unit{Scale: math.Pow(u.Scale, float64(n)), Symbol: powSymbol(u.Symbol, n)}
	for i := range u.Dim {
		out.Dim[i] = u.Dim[i] * int8(n)
	}
	return out
}

// Mul multiplies two units.
func (u Unit) Mul(o Unit) Unit {
	out := Unit{Scale: u.Scale * o.Scale}
	for i := range u.Dim {
		out.Dim[i] = u.Dim[i] + o.Dim[i]
	}
	switch {
	case u.Symbol == "":
		out.Symbol = o.Symbol
	case o.Symbol == "":
		out.Symbol = u.Symbol
	default:
		out.Symbol = u.Symbol + " " + o.Symbol
	}
	return out
}

func powSymbol(sym string, n int) string {
	if sym == "" || n == 1 {
		return sym
	}
	if n == 0 {
		return ""
	}
	return sym + "^" + strconv.Itoa(n)
}

// Context resolves unit strings. It is safe for concurrent use.
type Context struct {
	aliases map[string]string
	units   map[string]Unit
}

// NewContext returns a context populated with the built-in registry and aliases.
func NewContext() *Context {
	c := &Context{
		aliases: make(map[string]string, len(defaultAliases)),
		units:   make(map[string]Unit, len(defaultUnits)),
	}
	for k, v := range defaultAliases {
		c.aliases[k] = v
	}
	for _, u := range defaultUnits {
		c.units[u.Symbol] = u
	}
	return c
}

// With returns a copy of c that also knows u under its symbol and the given aliases.
func (c *Context) With(u Unit, aliases ...string) *Context {
	next := &Context{
		aliases: make(map[string]string, len(c.aliases)+len(aliases)),
		units:   make(map[string]Unit, len(c.units)+1),
	}
	for k, v := range c.aliases {
		next.aliases[k] = v
	}
	for k, v := range c.units {
		next.units[k] = v
	}
	next.units[u.Symbol] = u
	for _, a := range aliases {
		next.aliases[a] = u.Symbol
	}
	return next
}

// Aliases returns the alias table sorted by alias.
func (c *Context) Aliases() [][2]string {
	out := make([][2]string, 0, len(c.aliases))
	for k, v := range c.aliases {
		out = append(out, [2]string{k, v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// Lookup resolves a single unit symbol through aliases, the registry and SI prefixes.
func (c *Context) Lookup(sym string) (Unit, bool) {
	if canon, ok := c.aliases[sym]; ok {
		sym = canon
	}
	if u, ok := c.units[sym]; ok {
		return u, true
	}
	for _, p := range siPrefixes {
		rest, ok := strings.CutPrefix(sym, p.prefix)
		if !ok || rest == "" {
			continue
		}
		base, ok := c.units[rest]
		if !ok || !prefixable[rest] {
			continue
		}
		return Unit{Symbol: sym, Scale: base.Scale * p.factor, Dim: base.Dim}, true
	}
	return Unit{}, false
}

// Parse resolves a unit expression such as "yr", "lambda/D^-1" or "photons/s/nm".
// Factors are separated by whitespace or '*' and may carry an integer exponent.
func (c *Context) Parse(s string) (Unit, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Dimensionless, nil
	}
	if u, ok := c.Lookup(s); ok {
		return u, nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '*'
	})
	out := Dimensionless
	for _, f := range fields {
		u, err := c.parseFactor(f)
		if err != nil {
			return Unit{}, fmt.Errorf("parse unit %q: %w", s, err)
		}
		out = out.Mul(u)
	}
	return out, nil
}

func (c *Context) parseFactor(f string) (Unit, error) {
	name, exp, err := splitExponent(f)
	if err != nil {
		return Unit{}, err
	}
	if u, ok := c.Lookup(name); ok {
		return u.Pow(exp), nil
	}
	if !strings.Contains(f, "/") {
		return Unit{}, fmt.Errorf("%w: %s", ErrUnknownUnit, f)
	}
	out := Dimensionless
	for i, part := range strings.Split(f, "/") {
		if part == "" {
			return Unit{}, fmt.Errorf("%w: %s", ErrUnknownUnit, f)
		}
		u, err := c.parseFactor(part)
		if err != nil {
			return Unit{}, err
		}
		if i > 0 {
			u = u.Pow(-1)
		}
		out = out.Mul(u)
	}
	return out, nil
}

// splitExponent separates "sym^n" into sym and n. A missing exponent is 1.
func splitExponent(f string) (string, int, error) {
	i := strings.LastIndex(f, "^")
	if i < 0 {
		return f, 1, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(f[i+1:]))
	if err != nil {
		return "", 0, fmt.Errorf("bad exponent in %q", f)
	}
	return f[:i], n, nil
}

// Convert rescales v from one unit to another of the same dimension.
func Convert(v float64, from, to Unit) (float64, error) {
	if from.Dim != to.Dim {
		return 0, fmt.Errorf("%w: %s -> %s", ErrIncompatible, from, to)
	}
	return v * from.Scale / to.Scale, nil
}

// ConvertAll rescales every element of vs in place and returns it.
func ConvertAll(vs []float64, from, to Unit) ([]float64, error) {
	if from.Dim != to.Dim {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIncompatible, from, to)
	}
	f := from.Scale / to.Scale
	for i := range vs {
		vs[i] *= f
	}
	return vs, nil
}
