package api

import (
	"encoding/json"
	"fmt"
	"sort"
)

// KeyMap is the cross-tool key translation table.
// It maps a canonical key to the native column of every data source that carries it.
type KeyMap struct {
	// Version of the key map document.
	Version string `json:"version"`
	// Entries keyed by canonical key.
	Entries map[string]Entry `json:"keys"`
}

// Entry describes one canonical quantity.
// On the wire the source mappings sit next to the comment:
//
//	"star_dist": {"AYOCSVFile": {"name": "dist (pc)", "unit": "pc"}, "comment": "..."}
type Entry struct {
	// Comment is free text carried over from the spreadsheet export.
	Comment string
	// Sources maps a data-source kind (e.g. "EXOSIMSCSVFile") to its native mapping.
	Sources map[string]Mapping
}

// Mapping binds a canonical key to one data source.
type Mapping struct {
	// File is a filename (literal or regex) the column must come from. Empty means any file.
	File string `json:"file,omitempty"`
	// Name is the native column or parameter name.
	Name string `json:"name"`
	// Unit is a unit string understood by the units package. Empty means none.
	Unit string `json:"unit,omitempty"`
	// Transform adjusts the raw value after retrieval (optional).
	Transform *Transform `json:"transform,omitempty"`
}

// Transform is a value transform descriptor, e.g. {"type": "index", "value": "2"}.
type Transform struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

const commentField = "comment"

// MarshalJSON writes the flat entry shape.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Sources)+1)
	for k, m := range e.Sources {
		out[k] = m
	}
	if e.Comment != "" {
		out[commentField] = e.Comment
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat entry shape.
func (e *Entry) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Sources = make(map[string]Mapping, len(raw))
	for k, v := range raw {
		if k == commentField {
			if err := json.Unmarshal(v, &e.Comment); err != nil {
				return fmt.Errorf("comment: %w", err)
			}
			continue
		}
		var m Mapping
		if err := json.Unmarshal(v, &m); err != nil {
			return fmt.Errorf("source %s: %w", k, err)
		}
		e.Sources[k] = m
	}
	return nil
}

// SourceNames returns the data-source kinds of the entry in sorted order.
func (e Entry) SourceNames() []string {
	names := make([]string, 0, len(e.Sources))
	for k := range e.Sources {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
