package tree

import (
	"fmt"
	"regexp"

	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/yieldtree/internal/keymap"
	"github.com/agentic-research/yieldtree/internal/units"
)

// filenameGate binds a canonical key to the files it may be read from.
type filenameGate struct {
	literal string
	re      *regexp.Regexp
}

func (g filenameGate) match(name string) bool {
	if name == g.literal {
		return true
	}
	return g.re != nil && g.re.MatchString(name)
}

// File is a leaf node over one loaded source file.
type File struct {
	path    string
	name    string
	source  keymap.Source
	content Content
	env     *Env

	expected map[string]struct{}
	gates    map[string]filenameGate
	coverage *roaring.Bitmap
}

// NewFile wraps loaded content. Expected keys, filename gates and the
// coverage bitmap are derived here, once.
func NewFile(path, name string, src keymap.Source, content Content, env *Env) *File {
	env = env.withDefaults()
	f := &File{
		path:     path,
		name:     name,
		source:   src,
		content:  content,
		env:      env,
		expected: make(map[string]struct{}),
		gates:    make(map[string]filenameGate),
		coverage: roaring.New(),
	}

	for _, native := range env.Keys.Natives(src) {
		if _, ok := content.Lookup(native); ok {
			f.expected[native] = struct{}{}
		}
	}
	for _, native := range content.Keys() {
		f.expected[native] = struct{}{}
	}

	for _, k := range env.Keys.Keys() {
		if _, ok := f.expected[env.Keys.Translate(k, src)]; !ok {
			continue
		}
		if ord, ok := env.Keys.Ordinal(k); ok {
			f.coverage.Add(ord)
		}
	}

	for _, k := range env.Keys.KeysFor(src) {
		m, _ := env.Keys.Lookup(k, src)
		if m.File == "" {
			continue
		}
		g := filenameGate{literal: m.File}
		if re, err := regexp.Compile("^(?:" + m.File + ")$"); err == nil {
			g.re = re
		}
		f.gates[k] = g
	}
	return f
}

func (f *File) Path() string { return f.path }
func (f *File) Name() string { return f.name }

// Source returns the data-source kind of the file.
func (f *File) Source() keymap.Source { return f.source }

// Coverage returns the ordinals of the key map keys this file can answer.
func (f *File) Coverage() *roaring.Bitmap { return f.coverage }

// TranslateKey maps a canonical key to this file's native name. Keys the key
// map does not know for this source pass through unchanged.
func (f *File) TranslateKey(key string) string {
	return f.env.Keys.Translate(key, f.source)
}

// HasKey reports whether the translated key is among the expected keys.
func (f *File) HasKey(key string) bool {
	_, ok := f.expected[f.TranslateKey(key)]
	return ok
}

// ExpectedKeys returns the native keys this file can answer.
func (f *File) ExpectedKeys() []string {
	out := make([]string, 0, len(f.expected))
	for k := range f.expected {
		out = append(out, k)
	}
	return out
}

// Get resolves key: translate, check expected keys, apply the filename gate,
// read the raw value, transform it and attach its unit.
func (f *File) Get(key string) (Result, error) {
	native := f.TranslateKey(key)
	if _, ok := f.expected[native]; !ok {
		return NotApplicable, nil
	}
	if g, gated := f.gates[key]; gated && !g.match(f.name) {
		return NotApplicable, nil
	}
	v, ok := f.content.Lookup(native)
	if !ok {
		return NotApplicable, nil
	}

	m, mapped := f.env.Keys.Lookup(key, f.source)
	if mapped && m.Transform != nil {
		var err error
		v, err = applyTransform(m.Transform, v, f.env)
		if err != nil {
			return NotApplicable, fmt.Errorf("%s: key %s: %s transform: %w", f.path, key, m.Transform.Type, err)
		}
	}
	return Found(f.attachUnit(key, native, v)), nil
}

// attachUnit resolves the unit string for key, by forward lookup of the
// canonical key, else reverse lookup of the native name, else whatever unit
// the content carries, else a "(unit)" suffix of the native name. A unit
// already attached by the content is converted to the key map unit when the
// two are compatible.
func (f *File) attachUnit(key, native string, v Value) Value {
	if _, numeric := v.Floats(); !numeric {
		return v
	}
	symbol := f.mappedUnit(key, native)
	if symbol == "" {
		if v.Unit != nil {
			return v
		}
		s, ok := headerUnit(native)
		if !ok {
			return v
		}
		symbol = s
	}

	u, err := f.env.Units.Parse(symbol)
	if err != nil {
		f.env.Logger.Warn("unit not understood", "file", f.path, "key", key, "unit", symbol, "err", err)
		return v
	}
	if v.Unit == nil || v.Unit.Symbol == u.Symbol {
		v.Unit = &u
		return v
	}
	converted, err := convertValue(v, u)
	if err != nil {
		f.env.Logger.Warn("keeping source unit", "file", f.path, "key", key, "have", v.Unit.Symbol, "want", u.Symbol, "err", err)
		return v
	}
	return converted
}

func (f *File) mappedUnit(key, native string) string {
	if m, ok := f.env.Keys.Lookup(key, f.source); ok {
		return m.Unit
	}
	if canonical, ok := f.env.Keys.Reverse(f.source, native); ok {
		if m, ok := f.env.Keys.Lookup(canonical, f.source); ok {
			return m.Unit
		}
	}
	return ""
}

func convertValue(v Value, to units.Unit) (Value, error) {
	switch x := v.Data.(type) {
	case float64:
		c, err := units.Convert(x, *v.Unit, to)
		if err != nil {
			return v, err
		}
		return Value{Data: c, Unit: &to}, nil
	case []float64:
		out := make([]float64, len(x))
		copy(out, x)
		if _, err := units.ConvertAll(out, *v.Unit, to); err != nil {
			return v, err
		}
		return Value{Data: out, Unit: &to}, nil
	default:
		xs, _ := v.Floats()
		if _, err := units.ConvertAll(xs, *v.Unit, to); err != nil {
			return v, err
		}
		return Value{Data: xs, Unit: &to}, nil
	}
}
