package inputfile

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/agentic-research/yieldtree/internal/units"
)

// operand is a value before it is stored.
type operand struct {
	value   any
	unit    *units.Unit
	literal bool // identifier that was not defined yet
}

type lineParser struct {
	src  string
	pos  int
	vars *File
	uctx *units.Context
}

// parseLine parses one line. ok is false for blank and comment lines.
func parseLine(text string, line int, vars *File, uctx *units.Context) (Param, bool, error) {
	p := &lineParser{src: text, vars: vars, uctx: uctx}
	p.skipSpace()
	if p.eof() || p.peek() == ';' || p.peek() == '#' || strings.HasPrefix(p.rest(), "//") {
		return Param{}, false, nil
	}

	key := p.ident()
	if key == "" {
		return Param{}, false, fmt.Errorf("expected key at column %d", p.pos+1)
	}
	p.skipSpace()
	if !p.consume('=') {
		return Param{}, false, fmt.Errorf("expected '=' after %q", key)
	}
	p.skipSpace()
	if p.eof() || p.peek() == ';' {
		return Param{}, false, fmt.Errorf("missing value for %q", key)
	}

	val, err := p.expression()
	if err != nil {
		return Param{}, false, fmt.Errorf("%s: %w", key, err)
	}

	param := Param{Key: key, Line: line}
	var unitClause *units.Unit
	seenUnit := false
clauses:
	for {
		p.skipSpace()
		switch p.peek() {
		case '(':
			if seenUnit {
				return Param{}, false, fmt.Errorf("%s: duplicate unit clause", key)
			}
			seenUnit = true
			raw, err := p.delimited('(', ')')
			if err != nil {
				return Param{}, false, fmt.Errorf("%s: %w", key, err)
			}
			if strings.TrimSpace(raw) == "" {
				continue
			}
			u, err := p.uctx.Parse(raw)
			if err != nil {
				return Param{}, false, fmt.Errorf("%s: %w", key, err)
			}
			unitClause = &u
		case '{':
			if param.Type != "" {
				return Param{}, false, fmt.Errorf("%s: duplicate type clause", key)
			}
			raw, err := p.delimited('{', '}')
			if err != nil {
				return Param{}, false, fmt.Errorf("%s: %w", key, err)
			}
			param.Type = strings.TrimSpace(raw)
		default:
			break clauses
		}
	}

	p.skipSpace()
	if !p.eof() {
		if p.peek() != ';' {
			return Param{}, false, fmt.Errorf("%s: unexpected %q at column %d", key, p.rest(), p.pos+1)
		}
		param.Comment = strings.TrimSpace(p.src[p.pos+1:])
	}

	value, unit, err := applyUnitClause(val, unitClause)
	if err != nil {
		return Param{}, false, fmt.Errorf("%s: %w", key, err)
	}
	if param.Type != "" {
		value, err = coerce(value, param.Type)
		if err != nil {
			return Param{}, false, fmt.Errorf("%s: %w", key, err)
		}
	}
	param.Value = value
	param.Unit = unit
	return param, true, nil
}

func (p *lineParser) eof() bool    { return p.pos >= len(p.src) }
func (p *lineParser) rest() string { return p.src[p.pos:] }

func (p *lineParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *lineParser) consume(c byte) bool {
	if p.peek() == c {
		p.pos++
		return true
	}
	return false
}

func (p *lineParser) skipSpace() {
	for !p.eof() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\r') {
		p.pos++
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '.'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isOp(c byte) bool { return c == '+' || c == '-' || c == '*' || c == '/' }

func (p *lineParser) ident() string {
	if p.eof() || !isIdentStart(p.peek()) {
		return ""
	}
	start := p.pos
	for !p.eof() && isIdentPart(p.peek()) {
		p.pos++
	}
	return p.src[start:p.pos]
}

// delimited returns the raw text between open and its matching close.
func (p *lineParser) delimited(open, closing byte) (string, error) {
	start := p.pos
	p.pos++ // open
	depth := 1
	for !p.eof() {
		switch p.src[p.pos] {
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				s := p.src[start+1 : p.pos]
				p.pos++
				return s, nil
			}
		}
		p.pos++
	}
	return "", fmt.Errorf("unterminated %q", string(open))
}

// expression parses an operand optionally followed by one binary operator and a second operand.
func (p *lineParser) expression() (operand, error) {
	start := p.pos
	left, err := p.operand()
	if err != nil {
		return operand{}, err
	}
	p.skipSpace()
	op := p.peek()
	if !isOp(op) {
		return left, nil
	}
	p.pos++
	p.skipSpace()
	right, err := p.operand()
	if err != nil {
		return operand{}, err
	}
	text := strings.TrimSpace(p.src[start:p.pos])
	p.skipSpace()
	if isOp(p.peek()) {
		return operand{}, errors.New("only one binary operator per expression")
	}
	if left.literal || right.literal {
		return operand{value: text}, nil
	}
	return binary(op, left, right)
}

func (p *lineParser) operand() (operand, error) {
	c := p.peek()
	switch {
	case c == '"' || c == '\'':
		s, err := p.quoted()
		return operand{value: s}, err
	case c == '[':
		return p.array()
	case c == '-' || c == '+':
		if p.pos+1 < len(p.src) && isIdentStart(p.src[p.pos+1]) {
			p.pos++
			inner := p.identOperand()
			if c == '+' || inner.literal {
				if inner.literal {
					inner.value = string(c) + inner.value.(string)
				}
				return inner, nil
			}
			return negate(inner)
		}
		return p.number()
	case c == '.' || isDigit(c):
		return p.number()
	case isIdentStart(c):
		return p.identOperand(), nil
	case c == 0:
		return operand{}, errors.New("unexpected end of line")
	default:
		return operand{}, fmt.Errorf("unexpected %q at column %d", string(c), p.pos+1)
	}
}

func (p *lineParser) identOperand() operand {
	name := p.ident()
	switch name {
	case "true", "True", "TRUE":
		return operand{value: true}
	case "false", "False", "FALSE":
		return operand{value: false}
	}
	if prev, ok := p.vars.Get(name); ok {
		return operand{value: prev.Value, unit: prev.Unit}
	}
	return operand{value: name, literal: true}
}

func (p *lineParser) number() (operand, error) {
	start := p.pos
	if p.peek() == '-' || p.peek() == '+' {
		p.pos++
	}
	digits := 0
	for !p.eof() && isDigit(p.peek()) {
		p.pos++
		digits++
	}
	if p.peek() == '.' {
		p.pos++
		for !p.eof() && isDigit(p.peek()) {
			p.pos++
			digits++
		}
	}
	if digits == 0 {
		return operand{}, fmt.Errorf("malformed number at column %d", start+1)
	}
	if c := p.peek(); c == 'e' || c == 'E' {
		save := p.pos
		p.pos++
		if p.peek() == '-' || p.peek() == '+' {
			p.pos++
		}
		exp := 0
		for !p.eof() && isDigit(p.peek()) {
			p.pos++
			exp++
		}
		if exp == 0 {
			p.pos = save
		}
	}
	if !p.eof() && isIdentStart(p.peek()) {
		return operand{}, fmt.Errorf("malformed number %q", p.src[start:p.pos+1])
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return operand{}, fmt.Errorf("malformed number %q", p.src[start:p.pos])
	}
	return operand{value: v}, nil
}

func (p *lineParser) quoted() (string, error) {
	q := p.peek()
	p.pos++
	var b strings.Builder
	for !p.eof() {
		c := p.src[p.pos]
		switch {
		case c == '\\' && p.pos+1 < len(p.src):
			b.WriteByte(p.src[p.pos+1])
			p.pos += 2
		case c == q:
			p.pos++
			return b.String(), nil
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", errors.New("unterminated string")
}

func (p *lineParser) array() (operand, error) {
	p.pos++ // '['
	var elems []any
	for {
		p.skipSpace()
		if p.consume(']') {
			break
		}
		if len(elems) > 0 {
			if !p.consume(',') {
				return operand{}, fmt.Errorf("expected ',' or ']' at column %d", p.pos+1)
			}
			p.skipSpace()
		}
		if p.peek() == '[' {
			return operand{}, errors.New("nested arrays are not supported")
		}
		el, err := p.operand()
		if err != nil {
			return operand{}, err
		}
		switch el.value.(type) {
		case []float64, []int64, []string, []any:
			return operand{}, errors.New("array element refers to an array")
		}
		elems = append(elems, el.value)
	}
	return operand{value: packArray(elems)}, nil
}

// packArray narrows a homogeneous element list to a typed slice.
func packArray(elems []any) any {
	floats := make([]float64, 0, len(elems))
	strs := make([]string, 0, len(elems))
	for _, e := range elems {
		switch v := e.(type) {
		case float64:
			floats = append(floats, v)
		case int64:
			floats = append(floats, float64(v))
		case string:
			strs = append(strs, v)
		}
	}
	switch {
	case len(floats) == len(elems):
		return floats
	case len(strs) == len(elems):
		return strs
	default:
		return elems
	}
}

// numeric returns a copy of v as floats and whether v was an array.
func numeric(v any) ([]float64, bool, bool) {
	switch x := v.(type) {
	case float64:
		return []float64{x}, false, true
	case int64:
		return []float64{float64(x)}, false, true
	case []float64:
		out := make([]float64, len(x))
		copy(out, x)
		return out, true, true
	case []int64:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return out, true, true
	default:
		return nil, false, false
	}
}

func negate(o operand) (operand, error) {
	vs, arr, ok := numeric(o.value)
	if !ok {
		return operand{}, fmt.Errorf("cannot negate %T", o.value)
	}
	for i := range vs {
		vs[i] = -vs[i]
	}
	o.value = pack(vs, arr)
	return o, nil
}

func pack(vs []float64, arr bool) any {
	if arr {
		return vs
	}
	return vs[0]
}

func binary(op byte, l, r operand) (operand, error) {
	lv, larr, lok := numeric(l.value)
	rv, rarr, rok := numeric(r.value)
	if !lok || !rok {
		return operand{}, fmt.Errorf("non-numeric operand for %q", string(op))
	}

	var unit *units.Unit
	switch op {
	case '+', '-':
		switch {
		case l.unit != nil && r.unit != nil:
			if _, err := units.ConvertAll(rv, *r.unit, *l.unit); err != nil {
				return operand{}, err
			}
			unit = l.unit
		case l.unit != nil:
			unit = l.unit
		default:
			unit = r.unit
		}
	case '*', '/':
		if l.unit != nil || r.unit != nil {
			lu, ru := units.Dimensionless, units.Dimensionless
			if l.unit != nil {
				lu = *l.unit
			}
			if r.unit != nil {
				ru = *r.unit
			}
			if op == '/' {
				ru = ru.Pow(-1)
			}
			u := lu.Mul(ru)
			unit = &u
		}
	}

	n := len(lv)
	switch {
	case larr && rarr && len(lv) != len(rv):
		return operand{}, fmt.Errorf("array length mismatch %d vs %d", len(lv), len(rv))
	case rarr:
		n = len(rv)
	}
	out := make([]float64, n)
	for i := range out {
		a, b := lv[0], rv[0]
		if larr {
			a = lv[i]
		}
		if rarr {
			b = rv[i]
		}
		switch op {
		case '+':
			out[i] = a + b
		case '-':
			out[i] = a - b
		case '*':
			out[i] = a * b
		case '/':
			if b == 0 {
				return operand{}, errors.New("division by zero")
			}
			out[i] = a / b
		}
	}
	return operand{value: pack(out, larr || rarr), unit: unit}, nil
}

// applyUnitClause attaches the declared unit. A value that already carries a
// compatible unit is converted into the declared one.
func applyUnitClause(o operand, clause *units.Unit) (any, *units.Unit, error) {
	if clause == nil {
		return o.value, o.unit, nil
	}
	if o.unit == nil || o.unit.IsDimensionless() {
		return o.value, clause, nil
	}
	vs, arr, ok := numeric(o.value)
	if !ok {
		return o.value, clause, nil
	}
	if _, err := units.ConvertAll(vs, *o.unit, *clause); err != nil {
		return nil, nil, err
	}
	return pack(vs, arr), clause, nil
}

// coerce applies a {type} annotation.
func coerce(v any, typ string) (any, error) {
	switch strings.ToLower(typ) {
	case "float", "double", "real", "number":
		switch x := v.(type) {
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to float", x)
			}
			return f, nil
		default:
			vs, arr, ok := numeric(v)
			if !ok {
				return nil, fmt.Errorf("cannot convert %T to float", v)
			}
			return pack(vs, arr), nil
		}
	case "int", "integer", "long":
		if s, ok := v.(string); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to int", s)
			}
			return n, nil
		}
		vs, arr, ok := numeric(v)
		if !ok {
			return nil, fmt.Errorf("cannot convert %T to int", v)
		}
		ints := make([]int64, len(vs))
		for i, f := range vs {
			if f != math.Trunc(f) {
				return nil, fmt.Errorf("%v is not an integer", f)
			}
			ints[i] = int64(f)
		}
		if arr {
			return ints, nil
		}
		return ints[0], nil
	case "str", "string":
		switch x := v.(type) {
		case string:
			return x, nil
		case bool:
			return strconv.FormatBool(x), nil
		case int64:
			return strconv.FormatInt(x, 10), nil
		case float64:
			return strconv.FormatFloat(x, 'g', -1, 64), nil
		case []string:
			return x, nil
		}
		if vs, _, ok := numeric(v); ok {
			out := make([]string, len(vs))
			for i, f := range vs {
				out[i] = strconv.FormatFloat(f, 'g', -1, 64)
			}
			return out, nil
		}
		return nil, fmt.Errorf("cannot convert %T to string", v)
	case "bool", "boolean":
		switch x := v.(type) {
		case bool:
			return x, nil
		case float64:
			return x != 0, nil
		case int64:
			return x != 0, nil
		case string:
			switch strings.ToLower(x) {
			case "yes", "y", "on":
				return true, nil
			case "no", "n", "off":
				return false, nil
			}
			b, err := strconv.ParseBool(x)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to bool", x)
			}
			return b, nil
		}
		return nil, fmt.Errorf("cannot convert %T to bool", v)
	case "array", "list":
		switch x := v.(type) {
		case float64:
			return []float64{x}, nil
		case int64:
			return []int64{x}, nil
		case string:
			return []string{x}, nil
		case bool:
			return []any{x}, nil
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown type %q", typ)
	}
}
