package tree

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/agentic-research/yieldtree/api"
)

// TransformFunc is a named value transform referenced by "func" transforms.
type TransformFunc func(Value) (Value, error)

// DefaultFuncs returns the built-in named transforms.
func DefaultFuncs() map[string]TransformFunc {
	return map[string]TransformFunc{
		"drm_star_summary": DRMStarSummary,
	}
}

// applyTransform runs one key map transform over a raw value.
func applyTransform(t *api.Transform, v Value, env *Env) (Value, error) {
	switch t.Type {
	case "index":
		return transformIndex(v, t.Value)
	case "sum":
		return transformSum(v, t.Value)
	case "prefix":
		return transformPrefix(v, t.Value)
	case "type":
		return transformType(v, t.Value)
	case "scale":
		f, err := strconv.ParseFloat(strings.TrimSpace(t.Value), 64)
		if err != nil {
			return Value{}, fmt.Errorf("scale factor %q: %w", t.Value, err)
		}
		return transformScale(v, f)
	case "func":
		fn, ok := env.Funcs[t.Value]
		if !ok {
			return Value{}, fmt.Errorf("unknown transform function %q", t.Value)
		}
		return fn(v)
	default:
		return Value{}, fmt.Errorf("unknown transform type %q", t.Type)
	}
}

func parseIndices(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad index %q", part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no index in %q", s)
	}
	return out, nil
}

// resolveIndex accepts negative indices counted from the end.
func resolveIndex(i, n int) (int, error) {
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("index %d out of range (%d elements)", i, n)
	}
	return i, nil
}

func transformIndex(v Value, arg string) (Value, error) {
	idx, err := parseIndices(arg)
	if err != nil {
		return Value{}, err
	}
	if len(idx) != 1 {
		return Value{}, fmt.Errorf("index takes one position, got %q", arg)
	}
	pick := func(n int) (int, error) { return resolveIndex(idx[0], n) }

	switch x := v.Data.(type) {
	case []float64:
		i, err := pick(len(x))
		if err != nil {
			return Value{}, err
		}
		return Value{Data: x[i], Unit: v.Unit}, nil
	case []int64:
		i, err := pick(len(x))
		if err != nil {
			return Value{}, err
		}
		return Value{Data: x[i], Unit: v.Unit}, nil
	case []string:
		i, err := pick(len(x))
		if err != nil {
			return Value{}, err
		}
		return Value{Data: x[i], Unit: v.Unit}, nil
	case []any:
		i, err := pick(len(x))
		if err != nil {
			return Value{}, err
		}
		return Value{Data: x[i], Unit: v.Unit}, nil
	case float64, int64, string:
		// a scalar is a one-element array
		if _, err := pick(1); err != nil {
			return Value{}, err
		}
		return v, nil
	default:
		return Value{}, fmt.Errorf("index on %T", v.Data)
	}
}

func transformSum(v Value, arg string) (Value, error) {
	idx, err := parseIndices(arg)
	if err != nil {
		return Value{}, err
	}
	sum := func(xs []float64) (float64, error) {
		var s float64
		for _, i := range idx {
			j, err := resolveIndex(i, len(xs))
			if err != nil {
				return 0, err
			}
			s += xs[j]
		}
		return s, nil
	}

	if xs, ok := v.Floats(); ok {
		s, err := sum(xs)
		if err != nil {
			return Value{}, err
		}
		return Value{Data: s, Unit: v.Unit}, nil
	}
	rows, ok := v.Data.([]any)
	if !ok {
		return Value{}, fmt.Errorf("sum on %T", v.Data)
	}
	out := make([]float64, len(rows))
	for r, row := range rows {
		xs, ok := Value{Data: row}.Floats()
		if !ok {
			return Value{}, fmt.Errorf("sum: row %d is %T", r, row)
		}
		s, err := sum(xs)
		if err != nil {
			return Value{}, fmt.Errorf("sum: row %d: %w", r, err)
		}
		out[r] = s
	}
	return Value{Data: out, Unit: v.Unit}, nil
}

func transformPrefix(v Value, prefix string) (Value, error) {
	switch x := v.Data.(type) {
	case string:
		return Value{Data: prefix + x}, nil
	case []string:
		out := make([]string, len(x))
		for i, s := range x {
			out[i] = prefix + s
		}
		return Value{Data: out}, nil
	case float64:
		return Value{Data: prefix + strconv.FormatFloat(x, 'f', -1, 64)}, nil
	case int64:
		return Value{Data: prefix + strconv.FormatInt(x, 10)}, nil
	case []float64, []int64:
		xs, _ := v.Floats()
		out := make([]string, len(xs))
		for i, f := range xs {
			out[i] = prefix + strconv.FormatFloat(f, 'f', -1, 64)
		}
		return Value{Data: out}, nil
	default:
		return Value{}, fmt.Errorf("prefix on %T", v.Data)
	}
}

func transformType(v Value, kind string) (Value, error) {
	switch strings.TrimSpace(kind) {
	case "float":
		return toFloat(v)
	case "int":
		return toInt(v)
	case "str":
		return toStr(v), nil
	default:
		return Value{}, fmt.Errorf("unknown target type %q", kind)
	}
}

func toFloat(v Value) (Value, error) {
	switch x := v.Data.(type) {
	case float64, []float64:
		return v, nil
	case int64:
		return Value{Data: float64(x), Unit: v.Unit}, nil
	case []int64:
		xs, _ := v.Floats()
		return Value{Data: xs, Unit: v.Unit}, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return Value{}, fmt.Errorf("float: %w", err)
		}
		return Value{Data: f, Unit: v.Unit}, nil
	case []string:
		out := make([]float64, len(x))
		for i, s := range x {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return Value{}, fmt.Errorf("float: element %d: %w", i, err)
			}
			out[i] = f
		}
		return Value{Data: out, Unit: v.Unit}, nil
	default:
		return Value{}, fmt.Errorf("float on %T", v.Data)
	}
}

// roundInt rounds to the nearest integer; NaN and infinities are rejected.
func roundInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("int: %v has no integer value", f)
	}
	return int64(math.Round(f)), nil
}

// toInt rounds to integers. Missing cells (NaN) have no integer form, so a
// column holding any stays []float64 with the present cells rounded.
func toInt(v Value) (Value, error) {
	switch x := v.Data.(type) {
	case int64, []int64:
		return v, nil
	case float64:
		if math.IsNaN(x) {
			return v, nil
		}
		n, err := roundInt(x)
		if err != nil {
			return Value{}, err
		}
		return Value{Data: n, Unit: v.Unit}, nil
	case []float64:
		if hasNaN(x) {
			out := make([]float64, len(x))
			for i, f := range x {
				if math.IsInf(f, 0) {
					return Value{}, fmt.Errorf("element %d: int: %v has no integer value", i, f)
				}
				out[i] = math.Round(f)
			}
			return Value{Data: out, Unit: v.Unit}, nil
		}
		out := make([]int64, len(x))
		for i, f := range x {
			n, err := roundInt(f)
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = n
		}
		return Value{Data: out, Unit: v.Unit}, nil
	case string, []string:
		f, err := toFloat(v)
		if err != nil {
			return Value{}, err
		}
		return toInt(f)
	default:
		return Value{}, fmt.Errorf("int on %T", v.Data)
	}
}

func hasNaN(xs []float64) bool {
	for _, f := range xs {
		if math.IsNaN(f) {
			return true
		}
	}
	return false
}

func toStr(v Value) Value {
	switch x := v.Data.(type) {
	case string, []string:
		return Value{Data: x}
	case float64:
		return Value{Data: formatFloat(x)}
	case int64:
		return Value{Data: strconv.FormatInt(x, 10)}
	case []float64:
		out := make([]string, len(x))
		for i, f := range x {
			out[i] = formatFloat(f)
		}
		return Value{Data: out}
	case []int64:
		out := make([]string, len(x))
		for i, n := range x {
			out[i] = strconv.FormatInt(n, 10)
		}
		return Value{Data: out}
	default:
		return Value{Data: fmt.Sprint(x)}
	}
}

func transformScale(v Value, f float64) (Value, error) {
	switch x := v.Data.(type) {
	case float64:
		return Value{Data: x * f, Unit: v.Unit}, nil
	case int64:
		return Value{Data: float64(x) * f, Unit: v.Unit}, nil
	case []float64, []int64:
		xs, _ := v.Floats()
		out := make([]float64, len(xs))
		for i, e := range xs {
			out[i] = e * f
		}
		return Value{Data: out, Unit: v.Unit}, nil
	default:
		return Value{}, fmt.Errorf("scale on %T", v.Data)
	}
}
