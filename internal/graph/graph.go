// Package graph holds the read-only projection of a yield tree that the mount
// backends serve. A projection is a small file tree keyed by slash separated
// IDs: "" is the root, "keys/star_dist" a file under the keys directory.
package graph

import (
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"
)

var ErrNotFound = errors.New("node not found")

// Node is one file or directory of a projection.
type Node struct {
	ID         string
	Mode       fs.FileMode // fs.ModeDir for directories
	ModTime    time.Time
	Data       []byte
	Properties map[string][]byte // e.g. unit and answering source of a key
	Children   []string          // child IDs, directories only
}

func (n *Node) IsDir() bool { return n.Mode.IsDir() }

func (n *Node) Size() int64 { return int64(len(n.Data)) }

// Name is the last element of the ID.
func (n *Node) Name() string {
	if n.ID == "" {
		return "/"
	}
	return path.Base(n.ID)
}

// Graph is what the mount backends read.
type Graph interface {
	GetNode(id string) (*Node, error)
	ListChildren(id string) ([]string, error)
	ReadContent(id string, buf []byte, offset int64) (int, error)
}

// CleanID maps a mount path ("/keys/snr", "keys/snr/", "/") to a node ID.
func CleanID(id string) string {
	return strings.Trim(path.Clean("/"+id), "/")
}

// Store is an in-memory Graph. Directories are created on demand and list
// their children in insertion order.
type Store struct {
	mu      sync.RWMutex
	modTime time.Time
	nodes   map[string]*Node
}

// NewStore returns a store holding only the root directory. Every node added
// later is stamped with modTime.
func NewStore(modTime time.Time) *Store {
	return &Store{
		modTime: modTime,
		nodes:   map[string]*Node{"": {Mode: fs.ModeDir, ModTime: modTime}},
	}
}

// Put adds or replaces the file at id, creating missing parent directories.
func (s *Store) Put(id string, data []byte, props map[string][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(&Node{ID: CleanID(id), ModTime: s.modTime, Data: data, Properties: props})
}

// Mkdir adds an empty directory at id, creating missing parents.
func (s *Store) Mkdir(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id = CleanID(id)
	if _, ok := s.nodes[id]; !ok {
		s.add(&Node{ID: id, Mode: fs.ModeDir, ModTime: s.modTime})
	}
}

// add must be called with mu held.
func (s *Store) add(n *Node) {
	if old, ok := s.nodes[n.ID]; ok {
		n.Children = old.Children
		s.nodes[n.ID] = n
		return
	}
	s.nodes[n.ID] = n
	parent := path.Dir(n.ID)
	if parent == "." {
		parent = ""
	}
	p, ok := s.nodes[parent]
	if !ok {
		p = &Node{ID: parent, Mode: fs.ModeDir, ModTime: s.modTime}
		s.add(p)
	}
	p.Children = append(p.Children, n.ID)
}

// GetNode implements Graph.
func (s *Store) GetNode(id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[CleanID(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return n, nil
}

// ListChildren implements Graph.
func (s *Store) ListChildren(id string) ([]string, error) {
	n, err := s.GetNode(id)
	if err != nil {
		return nil, err
	}
	return n.Children, nil
}

// ReadContent implements Graph.
func (s *Store) ReadContent(id string, buf []byte, offset int64) (int, error) {
	n, err := s.GetNode(id)
	if err != nil {
		return 0, err
	}
	return readAt(n.Data, buf, offset), nil
}

func readAt(data, buf []byte, offset int64) int {
	if offset < 0 || offset >= int64(len(data)) {
		return 0
	}
	return copy(buf, data[offset:])
}

// ReaderAt reads the content of one node through g. A short read returns
// io.EOF.
func ReaderAt(g Graph, id string) io.ReaderAt {
	return contentReader{g: g, id: id}
}

type contentReader struct {
	g  Graph
	id string
}

func (r contentReader) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.g.ReadContent(r.id, p, off)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
