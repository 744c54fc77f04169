package graph

import (
	"errors"
	"path"
	"sort"
	"strings"
)

// PropSep joins a file name and one of its property names into the name of
// a sidecar file, e.g. keys/star_dist.unit.
const PropSep = "."

// WithProperties exposes every property of a file node as a read-only sibling
// file. Listings put the sidecars right after their owner, in property name
// order. Real nodes win over sidecars of the same name.
func WithProperties(g Graph) Graph {
	return &propView{g: g}
}

type propView struct {
	g Graph
}

// PropNames returns the property names of n in order.
func PropNames(n *Node) []string {
	names := make([]string, 0, len(n.Properties))
	for k := range n.Properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (v *propView) GetNode(id string) (*Node, error) {
	n, err := v.g.GetNode(id)
	if !errors.Is(err, ErrNotFound) {
		return n, err
	}
	owner, prop, ok := splitSidecar(CleanID(id))
	if !ok {
		return nil, err
	}
	o, oerr := v.g.GetNode(owner)
	if oerr != nil || o.IsDir() {
		return nil, err
	}
	data, ok := o.Properties[prop]
	if !ok {
		return nil, err
	}
	return &Node{ID: CleanID(id), ModTime: o.ModTime, Data: data}, nil
}

func (v *propView) ListChildren(id string) ([]string, error) {
	children, err := v.g.ListChildren(id)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(children))
	for _, c := range children {
		out = append(out, c)
		n, err := v.g.GetNode(c)
		if err != nil || n.IsDir() {
			continue
		}
		for _, p := range PropNames(n) {
			out = append(out, c+PropSep+p)
		}
	}
	return out, nil
}

func (v *propView) ReadContent(id string, buf []byte, offset int64) (int, error) {
	n, err := v.GetNode(id)
	if err != nil {
		return 0, err
	}
	return readAt(n.Data, buf, offset), nil
}

// splitSidecar splits "keys/star_dist.unit" into "keys/star_dist" and "unit".
func splitSidecar(id string) (owner, prop string, ok bool) {
	base := path.Base(id)
	i := strings.LastIndex(base, PropSep)
	if i <= 0 || i == len(base)-1 {
		return "", "", false
	}
	return strings.TrimSuffix(id, base[i:]), base[i+1:], true
}
