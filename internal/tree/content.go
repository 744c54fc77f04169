package tree

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/agentic-research/yieldtree/internal/keymap"
)

// Content is the format-specific raw getter of a file node.
type Content interface {
	// Lookup returns the raw value stored under a native key.
	Lookup(native string) (Value, bool)
	// Keys lists the native keys the content can enumerate.
	Keys() []string
}

// decoders maps each source kind to the loader of its content.
var decoders = map[keymap.Source]func(name string, data []byte, env *Env) (Content, error){
	keymap.EXOSIMSCSV:    decodeCSV,
	keymap.AYOCSV:        decodeCSV,
	keymap.EXOSIMSJSON:   decodeJSON,
	keymap.EXOSIMSPickle: decodePickle,
	keymap.AYOInput:      decodeInput,
	keymap.Snapshot:      decodeSnapshot,
	keymap.Raw:           decodeRaw,
}

func decode(src keymap.Source, name string, data []byte, env *Env) (Content, error) {
	dec, ok := decoders[src]
	if !ok {
		return nil, fmt.Errorf("no decoder for %s", src)
	}
	return dec(name, data, env)
}

// docContent serves nested documents (JSON, pickle): top-level keys by name,
// anything deeper by JSONPath.
type docContent struct {
	root any
}

func (c *docContent) Lookup(native string) (Value, bool) {
	if strings.HasPrefix(native, "$") {
		x, err := jp.ParseString(native)
		if err != nil {
			return Value{}, false
		}
		got := x.Get(c.root)
		switch len(got) {
		case 0:
			return Value{}, false
		case 1:
			return Value{Data: normalize(got[0])}, true
		default:
			return Value{Data: normalize(got)}, true
		}
	}
	m, ok := c.root.(map[string]any)
	if !ok {
		return Value{}, false
	}
	v, ok := m[native]
	if !ok {
		return Value{}, false
	}
	return Value{Data: normalize(v)}, true
}

func (c *docContent) Keys() []string {
	m, ok := c.root.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalize folds decoded documents into the Value data shapes: integers
// become int64, homogeneous numeric lists []float64, string lists []string.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, float64, int64, []byte, []float64, []string, *Table:
		return x
	case float32:
		return float64(x)
	case int:
		return int64(x)
	case int8, int16, int32, uint, uint8, uint16, uint32, uint64:
		return reflect.ValueOf(x).Convert(reflect.TypeOf(int64(0))).Int()
	case []int64:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case []any:
		return packList(x)
	default:
		return x
	}
}

func packList(xs []any) any {
	items := make([]any, len(xs))
	for i, e := range xs {
		items[i] = normalize(e)
	}
	if len(items) == 0 {
		return items
	}
	floats := make([]float64, 0, len(items))
	for _, e := range items {
		switch n := e.(type) {
		case float64:
			floats = append(floats, n)
		case int64:
			floats = append(floats, float64(n))
		}
	}
	if len(floats) == len(items) {
		return floats
	}
	strs := make([]string, 0, len(items))
	for _, e := range items {
		if s, ok := e.(string); ok {
			strs = append(strs, s)
		}
	}
	if len(strs) == len(items) {
		return strs
	}
	return items
}

// rawContent answers its own file name with the file bytes.
type rawContent struct {
	name string
	data []byte
}

func decodeRaw(name string, data []byte, _ *Env) (Content, error) {
	return &rawContent{name: name, data: data}, nil
}

func (c *rawContent) Lookup(native string) (Value, bool) {
	if native != c.name {
		return Value{}, false
	}
	return Value{Data: c.data}, true
}

func (c *rawContent) Keys() []string { return []string{c.name} }
