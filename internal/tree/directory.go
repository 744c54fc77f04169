package tree

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring"
)

// DirKind is the role a factory assigns to a scanned directory.
type DirKind int

const (
	GenericDir DirKind = iota
	RunDir             // one EXOSIMS simulation run
	OutputDir          // an AYO output directory
	SkipDir            // not scanned at all
)

var dirKindNames = [...]string{"dir", "run", "output", "skip"}

func (k DirKind) String() string {
	if int(k) < len(dirKindNames) {
		return dirKindNames[k]
	}
	return fmt.Sprintf("DirKind(%d)", int(k))
}

// Directory is a composite node: an ordered list of children asked in turn.
type Directory struct {
	path     string
	name     string
	kind     DirKind
	env      *Env
	children []Node
	coverage *roaring.Bitmap
}

// NewDirectory returns an empty directory node.
func NewDirectory(path, name string, kind DirKind, env *Env) *Directory {
	return &Directory{
		path:     path,
		name:     name,
		kind:     kind,
		env:      env.withDefaults(),
		coverage: roaring.New(),
	}
}

func (d *Directory) Path() string  { return d.path }
func (d *Directory) Name() string  { return d.name }
func (d *Directory) Kind() DirKind { return d.kind }

// Children returns the children in search order.
func (d *Directory) Children() []Node {
	out := make([]Node, len(d.children))
	copy(out, d.children)
	return out
}

// Coverage is the union of the children's coverage.
func (d *Directory) Coverage() *roaring.Bitmap { return d.coverage }

// Add appends a child. A nil child is skipped.
func (d *Directory) Add(n Node) {
	if n == nil {
		return
	}
	d.children = append(d.children, n)
	d.coverage.Or(n.Coverage())
}

// Get asks the children in order and returns the first hit. Children whose
// coverage cannot hold a key map key are not asked.
func (d *Directory) Get(key string) (Result, error) {
	ord, mapped := d.env.Keys.Ordinal(key)
	if mapped && !d.coverage.Contains(ord) {
		return NotApplicable, nil
	}
	for _, c := range d.children {
		if mapped && !c.Coverage().Contains(ord) {
			continue
		}
		r, err := c.Get(key)
		if err != nil {
			return NotApplicable, err
		}
		if r.Found {
			return r, nil
		}
	}
	return NotApplicable, nil
}

// HasKey reports whether any descendant can answer key.
func (d *Directory) HasKey(key string) bool {
	if ord, ok := d.env.Keys.Ordinal(key); ok {
		return d.coverage.Contains(ord)
	}
	for _, c := range d.children {
		if c.HasKey(key) {
			return true
		}
	}
	return false
}

// Walk visits the directory and every descendant depth first in search order.
func (d *Directory) Walk(fn func(n Node, depth int) error) error {
	return walk(d, 0, fn)
}

func walk(n Node, depth int, fn func(Node, int) error) error {
	if err := fn(n, depth); err != nil {
		return err
	}
	dir, ok := n.(*Directory)
	if !ok {
		return nil
	}
	for _, c := range dir.children {
		if err := walk(c, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// DisplayTree renders the nested listing, at most maxChildren entries per
// level (no limit when maxChildren <= 0), in the same order Get searches.
func (d *Directory) DisplayTree(maxChildren int) string {
	var b strings.Builder
	display(&b, d, 0, maxChildren)
	return b.String()
}

func display(b *strings.Builder, n Node, depth, limit int) {
	indent := strings.Repeat("  ", depth)
	switch x := n.(type) {
	case *Directory:
		fmt.Fprintf(b, "%s%s/", indent, x.name)
		if x.kind != GenericDir {
			fmt.Fprintf(b, " [%s]", x.kind)
		}
		b.WriteByte('\n')
		for i, c := range x.children {
			if limit > 0 && i == limit {
				fmt.Fprintf(b, "%s  ... and %d more\n", indent, len(x.children)-limit)
				break
			}
			display(b, c, depth+1, limit)
		}
	case *File:
		fmt.Fprintf(b, "%s%s [%s]\n", indent, x.name, x.source)
	default:
		fmt.Fprintf(b, "%s%s\n", indent, n.Name())
	}
}
