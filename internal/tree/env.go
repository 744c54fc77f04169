package tree

import (
	"log/slog"

	"github.com/agentic-research/yieldtree/internal/keymap"
	"github.com/agentic-research/yieldtree/internal/units"
)

// Env is the read-only context shared by every node of a tree.
// One Env may back any number of trees.
type Env struct {
	Keys   *keymap.Table
	Units  *units.Context
	Funcs  map[string]TransformFunc
	Logger *slog.Logger
	// KeepOSOrder keeps directory entries in the order the filesystem returns
	// them instead of sorting by name.
	KeepOSOrder bool
	// SnapshotTable names the table read from .db snapshot files.
	SnapshotTable string
}

// NewEnv returns an Env over the embedded key map and the default unit context.
func NewEnv() *Env {
	return &Env{
		Keys:   keymap.Default(),
		Units:  units.NewContext(),
		Funcs:  DefaultFuncs(),
		Logger: slog.Default(),
	}
}

// withDefaults fills unset fields on a copy.
func (e *Env) withDefaults() *Env {
	out := Env{}
	if e != nil {
		out = *e
	}
	if out.Keys == nil {
		out.Keys = keymap.Default()
	}
	if out.Units == nil {
		out.Units = units.NewContext()
	}
	if out.Funcs == nil {
		out.Funcs = DefaultFuncs()
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out
}
