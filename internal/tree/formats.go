package tree

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/agentic-research/yieldtree/internal/inputfile"
	"github.com/agentic-research/yieldtree/internal/snapshot"
)

func decodeJSON(_ string, data []byte, _ *Env) (Content, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return &docContent{root: root}, nil
}

// inputContent serves every successfully parsed parameter of an input file,
// with the unit written in the file.
type inputContent struct {
	file *inputfile.File
}

func decodeInput(name string, data []byte, env *Env) (Content, error) {
	f, err := inputfile.Parse(bytes.NewReader(data), inputfile.Options{
		Units:  env.Units,
		Logger: env.Logger,
		Name:   name,
	})
	if err != nil {
		return nil, err
	}
	return &inputContent{file: f}, nil
}

func (c *inputContent) Lookup(native string) (Value, bool) {
	p, ok := c.file.Get(native)
	if !ok {
		return Value{}, false
	}
	return Value{Data: cloneData(normalize(p.Value)), Unit: p.Unit}, true
}

func (c *inputContent) Keys() []string { return c.file.Keys() }

// snapshotContent serves quantities persisted by a previous build.
type snapshotContent struct {
	keys   []string
	values map[string]Value
}

func decodeSnapshot(_ string, data []byte, env *Env) (Content, error) {
	qs, err := snapshot.Decode(data, env.SnapshotTable)
	if err != nil {
		return nil, err
	}
	c := &snapshotContent{values: make(map[string]Value, len(qs))}
	for _, q := range qs {
		v := Value{Data: normalize(q.Value)}
		if q.Unit != "" {
			u, err := env.Units.Parse(q.Unit)
			if err != nil {
				env.Logger.Warn("snapshot unit not understood", "key", q.Key, "unit", q.Unit, "err", err)
			} else {
				v.Unit = &u
			}
		}
		if _, dup := c.values[q.Key]; !dup {
			c.keys = append(c.keys, q.Key)
		}
		c.values[q.Key] = v
	}
	return c, nil
}

func (c *snapshotContent) Lookup(native string) (Value, bool) {
	v, ok := c.values[native]
	if !ok {
		return Value{}, false
	}
	v.Data = cloneData(v.Data)
	return v, true
}

func (c *snapshotContent) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}
