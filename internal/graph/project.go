package graph

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/agentic-research/yieldtree/internal/keymap"
	"github.com/agentic-research/yieldtree/internal/tree"
)

// ManifestName is the projection file describing what is served.
const ManifestName = "_manifest.json"

// Manifest describes what a projection serves.
type Manifest struct {
	Root          string    `json:"root"`
	Tool          string    `json:"tool"`
	KeymapVersion string    `json:"keymap_version"`
	Keys          int       `json:"keys"`
	Failed        int       `json:"failed"`
	BuiltAt       time.Time `json:"built_at"`
}

// ProjectOptions controls the projection.
type ProjectOptions struct {
	// Keys to resolve; all key map keys when empty.
	Keys []string
	// MaxChildren caps tree.txt listings per level, 0 for no cap.
	MaxChildren int
	// Tool is recorded in the manifest.
	Tool string
	// Logger receives one warning per key that failed to resolve.
	Logger *slog.Logger
}

// Project resolves keys against root and lays the answers out as:
//
//	keys/<canonical>        rendered value, one per answered key
//	                        (unit and source as node properties)
//	errors/<canonical>      why a key failed to resolve, only when some did
//	tree.txt                the directory listing
//	keymap.json             the key map in use
//	_manifest.json          Manifest
func Project(root *tree.Directory, km *keymap.Table, opts ProjectOptions) (*Store, error) {
	keys := opts.Keys
	if len(keys) == 0 {
		keys = km.Keys()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	answers, failed := tree.ResolveAll(root, keys)
	sort.Slice(answers, func(i, j int) bool { return answers[i].Key < answers[j].Key })

	now := time.Now()
	s := NewStore(now)
	s.Mkdir("keys")
	for _, a := range answers {
		props := map[string][]byte{"source": []byte(a.Source + "\n")}
		if a.Value.Unit != nil {
			props["unit"] = []byte(a.Value.Unit.Symbol + "\n")
		}
		s.Put("keys/"+sanitize(a.Key), []byte(a.Value.String()+"\n"), props)
	}
	for _, f := range failed {
		logger.Warn("key failed to resolve", "key", f.Key, "err", f.Err)
		s.Put("errors/"+sanitize(f.Key), []byte(f.Err.Error()+"\n"), nil)
	}

	s.Put("tree.txt", []byte(root.DisplayTree(opts.MaxChildren)), nil)

	doc, err := json.MarshalIndent(km.KeyMap(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode key map: %w", err)
	}
	s.Put("keymap.json", append(doc, '\n'), nil)

	m, err := json.MarshalIndent(Manifest{
		Root:          root.Path(),
		Tool:          opts.Tool,
		KeymapVersion: km.Version(),
		Keys:          len(answers),
		Failed:        len(failed),
		BuiltAt:       now.UTC(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	s.Put(ManifestName, append(m, '\n'), nil)
	return s, nil
}

// sanitize keeps a key usable as a single path element.
func sanitize(key string) string {
	r := strings.NewReplacer("/", "_", "\x00", "_")
	out := r.Replace(key)
	if out == "." || out == ".." || out == "" {
		return "_" + out
	}
	return out
}
