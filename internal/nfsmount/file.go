package nfsmount

import (
	"io"

	"github.com/agentic-research/yieldtree/internal/graph"
)

// nodeFile is an open projection file. Reads go through the graph, so a
// swapped projection is visible to the next read.
type nodeFile struct {
	*io.SectionReader
	name string
}

func newNodeFile(g graph.Graph, n *graph.Node) *nodeFile {
	return &nodeFile{
		SectionReader: io.NewSectionReader(graph.ReaderAt(g, n.ID), 0, n.Size()),
		name:          n.Name(),
	}
}

func (f *nodeFile) Name() string              { return f.name }
func (f *nodeFile) Write([]byte) (int, error) { return 0, errReadOnly }
func (f *nodeFile) Truncate(int64) error      { return errReadOnly }
func (f *nodeFile) Lock() error               { return nil }
func (f *nodeFile) Unlock() error             { return nil }
func (f *nodeFile) Close() error              { return nil }
