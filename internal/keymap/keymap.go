// Package keymap holds the cross-tool key translation table.
//
// A Table is built once and is read-only afterwards, so one instance can be
// shared by any number of trees and goroutines.
package keymap

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/agentic-research/yieldtree/api"
)

//go:embed keymap.json
var defaultKeyMapJSON []byte

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the table built from the embedded key map.
// It panics if the embedded document is invalid, which is a build defect.
func Default() *Table {
	defaultOnce.Do(func() {
		var m api.KeyMap
		if err := json.Unmarshal(defaultKeyMapJSON, &m); err != nil {
			panic(fmt.Sprintf("embedded keymap.json: %v", err))
		}
		t, err := New(&m)
		if err != nil {
			panic(fmt.Sprintf("embedded keymap.json: %v", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// Table is an indexed, immutable key map.
type Table struct {
	version  string
	entries  map[string]api.Entry
	keys     []string
	ordinals map[string]uint32
	bySource map[Source]map[string]api.Mapping
	reverse  map[Source]map[string]string
	natives  map[Source][]string
}

// New indexes m. Unknown source kinds are rejected.
func New(m *api.KeyMap) (*Table, error) {
	t := &Table{
		version:  m.Version,
		entries:  make(map[string]api.Entry, len(m.Entries)),
		ordinals: make(map[string]uint32, len(m.Entries)),
		bySource: make(map[Source]map[string]api.Mapping),
		reverse:  make(map[Source]map[string]string),
		natives:  make(map[Source][]string),
	}
	for k := range m.Entries {
		t.keys = append(t.keys, k)
	}
	sort.Strings(t.keys)

	for i, k := range t.keys {
		e := m.Entries[k]
		t.entries[k] = e
		t.ordinals[k] = uint32(i)
		for _, name := range e.SourceNames() {
			src, ok := ParseSource(name)
			if !ok {
				return nil, fmt.Errorf("key %q: unknown source kind %q", k, name)
			}
			mp := e.Sources[name]
			if mp.Name == "" {
				return nil, fmt.Errorf("key %q: source %s has no native name", k, name)
			}
			if t.bySource[src] == nil {
				t.bySource[src] = make(map[string]api.Mapping)
				t.reverse[src] = make(map[string]string)
			}
			t.bySource[src][k] = mp
			// first canonical key (sorted) wins the reverse slot
			if _, taken := t.reverse[src][mp.Name]; !taken {
				t.reverse[src][mp.Name] = k
				t.natives[src] = append(t.natives[src], mp.Name)
			}
		}
	}
	return t, nil
}

// Load decodes a key map document and indexes it.
func Load(r io.Reader) (*Table, error) {
	var m api.KeyMap
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode keymap: %w", err)
	}
	return New(&m)
}

// LoadFile reads a key map document from disk.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }() // read-only

	t, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Version returns the document version.
func (t *Table) Version() string { return t.version }

// Len returns the number of canonical keys.
func (t *Table) Len() int { return len(t.keys) }

// Keys returns all canonical keys in sorted order.
func (t *Table) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// KeysFor returns the canonical keys mapped for src, sorted.
func (t *Table) KeysFor(src Source) []string {
	var out []string
	for _, k := range t.keys {
		if _, ok := t.bySource[src][k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Entry returns the raw entry for a canonical key.
func (t *Table) Entry(canonical string) (api.Entry, bool) {
	e, ok := t.entries[canonical]
	return e, ok
}

// Lookup returns the mapping of canonical for src.
func (t *Table) Lookup(canonical string, src Source) (api.Mapping, bool) {
	m, ok := t.bySource[src][canonical]
	return m, ok
}

// Translate returns the native name of canonical for src, or canonical itself when unmapped.
func (t *Table) Translate(canonical string, src Source) string {
	if m, ok := t.bySource[src][canonical]; ok {
		return m.Name
	}
	return canonical
}

// Reverse finds the canonical key whose native name for src is native.
func (t *Table) Reverse(src Source, native string) (string, bool) {
	k, ok := t.reverse[src][native]
	return k, ok
}

// Natives returns the distinct native names mapped for src.
func (t *Table) Natives(src Source) []string {
	return t.natives[src]
}

// Ordinal returns the stable index of a canonical key, used for coverage bitmaps.
func (t *Table) Ordinal(canonical string) (uint32, bool) {
	i, ok := t.ordinals[canonical]
	return i, ok
}

// KeyMap returns the document form of the table.
func (t *Table) KeyMap() *api.KeyMap {
	m := &api.KeyMap{Version: t.version, Entries: make(map[string]api.Entry, len(t.entries))}
	for k, e := range t.entries {
		m.Entries[k] = e
	}
	return m
}
