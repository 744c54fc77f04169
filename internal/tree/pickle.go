package tree

import (
	"bytes"
	"fmt"
	"math/big"
	"reflect"

	"github.com/nlpodyssey/gopickle/pickle"
)

func decodePickle(_ string, data []byte, _ *Env) (Content, error) {
	u := pickle.NewUnpickler(bytes.NewReader(data))
	v, err := u.Load()
	if err != nil {
		return nil, fmt.Errorf("pickle: %w", err)
	}
	return &docContent{root: fromPython(v)}, nil
}

type pyMapping interface {
	Keys() []interface{}
	Get(key interface{}) (interface{}, bool)
}

type pyList interface {
	Len() int
	Get(i int) interface{}
}

// fromPython converts unpickled Python objects into plain maps, slices and
// scalars that jp and normalize understand.
func fromPython(v any) any {
	switch x := v.(type) {
	case nil, bool, string, float64, int64:
		return x
	case int:
		return int64(x)
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	case pyMapping:
		out := make(map[string]any)
		for _, k := range x.Keys() {
			e, _ := x.Get(k)
			out[fmt.Sprint(fromPython(k))] = fromPython(e)
		}
		return out
	case pyList:
		out := make([]any, x.Len())
		for i := range out {
			out[i] = fromPython(x.Get(i))
		}
		return out
	}
	return fromReflect(reflect.ValueOf(v))
}

func fromReflect(rv reflect.Value) any {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if entries, ok := entryPairs(rv); ok {
			return entries
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = fromPython(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(fromPython(iter.Key().Interface()))] = fromPython(iter.Value().Interface())
		}
		return out
	case reflect.Struct:
		// None and other field-less markers
		if rv.NumField() == 0 {
			return nil
		}
		return rv.Interface()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return rv.Interface()
}

// entryPairs reads dict representations stored as a slice of {Key, Value} entries.
func entryPairs(rv reflect.Value) (map[string]any, bool) {
	if rv.Len() == 0 {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		e := rv.Index(i)
		for e.Kind() == reflect.Pointer || e.Kind() == reflect.Interface {
			if e.IsNil() {
				return nil, false
			}
			e = e.Elem()
		}
		if e.Kind() != reflect.Struct {
			return nil, false
		}
		k, v := e.FieldByName("Key"), e.FieldByName("Value")
		if !k.IsValid() || !v.IsValid() || !k.CanInterface() || !v.CanInterface() {
			return nil, false
		}
		out[fmt.Sprint(fromPython(k.Interface()))] = fromPython(v.Interface())
	}
	return out, true
}
