// Package nfsmount serves a yield tree projection over NFS. GraphFS presents
// a graph.Graph as a read-only billy.Filesystem for willscott/go-nfs; node
// properties appear as <file>.<property> sidecar files.
package nfsmount

import (
	"errors"
	"os"
	"path"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"

	"github.com/agentic-research/yieldtree/internal/graph"
)

var (
	errReadOnly = errors.New("read-only filesystem")
	errIsDir    = errors.New("is a directory")
	errNotDir   = errors.New("not a directory")
)

// GraphFS is a read-only billy.Filesystem over a projection.
type GraphFS struct {
	g graph.Graph
}

// NewGraphFS serves g, sidecar files included.
func NewGraphFS(g graph.Graph) *GraphFS {
	return &GraphFS{g: graph.WithProperties(g)}
}

func (fs *GraphFS) node(op, name string) (*graph.Node, error) {
	n, err := fs.g.GetNode(graph.CleanID(name))
	if err != nil {
		return nil, &os.PathError{Op: op, Path: name, Err: os.ErrNotExist}
	}
	return n, nil
}

func (fs *GraphFS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

func (fs *GraphFS) OpenFile(filename string, flag int, _ os.FileMode) (billy.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, errReadOnly
	}
	n, err := fs.node("open", filename)
	if err != nil {
		return nil, err
	}
	if n.IsDir() {
		return nil, &os.PathError{Op: "open", Path: filename, Err: errIsDir}
	}
	return newNodeFile(fs.g, n), nil
}

func (fs *GraphFS) Stat(filename string) (os.FileInfo, error) {
	n, err := fs.node("stat", filename)
	if err != nil {
		return nil, err
	}
	return nodeInfo{n}, nil
}

func (fs *GraphFS) Lstat(filename string) (os.FileInfo, error) { return fs.Stat(filename) }

func (fs *GraphFS) ReadDir(dirname string) ([]os.FileInfo, error) {
	n, err := fs.node("readdir", dirname)
	if err != nil {
		return nil, err
	}
	if !n.IsDir() {
		return nil, &os.PathError{Op: "readdir", Path: dirname, Err: errNotDir}
	}
	ids, err := fs.g.ListChildren(n.ID)
	if err != nil {
		return nil, &os.PathError{Op: "readdir", Path: dirname, Err: err}
	}
	infos := make([]os.FileInfo, 0, len(ids))
	for _, id := range ids {
		if c, err := fs.g.GetNode(id); err == nil {
			infos = append(infos, nodeInfo{c})
		}
	}
	return infos, nil
}

func (fs *GraphFS) Join(elem ...string) string { return path.Join(elem...) }

func (fs *GraphFS) Chroot(p string) (billy.Filesystem, error) { return chroot.New(fs, p), nil }

func (fs *GraphFS) Root() string { return "/" }

func (fs *GraphFS) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.SeekCapability
}

func (fs *GraphFS) Create(string) (billy.File, error)           { return nil, errReadOnly }
func (fs *GraphFS) Rename(string, string) error                 { return errReadOnly }
func (fs *GraphFS) Remove(string) error                         { return errReadOnly }
func (fs *GraphFS) MkdirAll(string, os.FileMode) error          { return errReadOnly }
func (fs *GraphFS) TempFile(string, string) (billy.File, error) { return nil, billy.ErrNotSupported }
func (fs *GraphFS) Symlink(string, string) error                { return billy.ErrNotSupported }
func (fs *GraphFS) Readlink(string) (string, error)             { return "", billy.ErrNotSupported }

// nodeInfo is the os.FileInfo of a projection node.
type nodeInfo struct{ n *graph.Node }

func (fi nodeInfo) Name() string       { return fi.n.Name() }
func (fi nodeInfo) Size() int64        { return fi.n.Size() }
func (fi nodeInfo) ModTime() time.Time { return fi.n.ModTime }
func (fi nodeInfo) IsDir() bool        { return fi.n.IsDir() }
func (fi nodeInfo) Sys() any           { return nil }

func (fi nodeInfo) Mode() os.FileMode {
	if fi.n.IsDir() {
		return os.ModeDir | 0o555
	}
	return 0o444
}

var (
	_ billy.Filesystem = (*GraphFS)(nil)
	_ billy.Capable    = (*GraphFS)(nil)
	_ billy.File       = (*nodeFile)(nil)
)
