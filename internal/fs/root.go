// Package fs serves a yield tree projection through FUSE (cgofuse). Files and
// directories mirror the graph; node properties are readable both as
// <file>.<property> sidecar files and as user.yieldtree.<property> xattrs.
package fs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/agentic-research/yieldtree/internal/graph"
)

// XattrPrefix namespaces node properties among extended attributes.
const XattrPrefix = "user.yieldtree."

// YieldFS implements the read-only subset of fuse.FileSystemInterface.
type YieldFS struct {
	fuse.FileSystemBase
	g        graph.Graph
	uid, gid uint32
}

// New serves g.
func New(g graph.Graph) *YieldFS {
	return &YieldFS{
		g:   graph.WithProperties(g),
		uid: uint32(os.Getuid()),
		gid: uint32(os.Getgid()),
	}
}

func (y *YieldFS) lookup(path string) (*graph.Node, int) {
	n, err := y.g.GetNode(graph.CleanID(path))
	if err != nil {
		return nil, -fuse.ENOENT
	}
	return n, 0
}

func (y *YieldFS) fill(n *graph.Node, stat *fuse.Stat_t) {
	ts := fuse.NewTimespec(n.ModTime)
	if n.ModTime.IsZero() {
		ts = fuse.NewTimespec(time.Now())
	}
	*stat = fuse.Stat_t{
		Uid: y.uid, Gid: y.gid,
		Atim: ts, Mtim: ts, Ctim: ts, Birthtim: ts,
	}
	if n.IsDir() {
		stat.Mode = fuse.S_IFDIR | 0o555
		stat.Nlink = 2
		return
	}
	stat.Mode = fuse.S_IFREG | 0o444
	stat.Nlink = 1
	stat.Size = n.Size()
}

func (y *YieldFS) Getattr(path string, stat *fuse.Stat_t, _ uint64) int {
	n, errc := y.lookup(path)
	if errc != 0 {
		return errc
	}
	y.fill(n, stat)
	return 0
}

func (y *YieldFS) Open(path string, flags int) (int, uint64) {
	if flags&fuse.O_ACCMODE != fuse.O_RDONLY {
		return -fuse.EROFS, ^uint64(0)
	}
	n, errc := y.lookup(path)
	if errc != 0 {
		return errc, ^uint64(0)
	}
	if n.IsDir() {
		return -fuse.EISDIR, ^uint64(0)
	}
	return 0, 0
}

func (y *YieldFS) Opendir(path string) (int, uint64) {
	n, errc := y.lookup(path)
	if errc != 0 {
		return errc, ^uint64(0)
	}
	if !n.IsDir() {
		return -fuse.ENOTDIR, ^uint64(0)
	}
	return 0, 0
}

func (y *YieldFS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, _ int64, _ uint64) int {
	n, errc := y.lookup(path)
	if errc != 0 {
		return errc
	}
	if !n.IsDir() {
		return -fuse.ENOTDIR
	}
	ids, err := y.g.ListChildren(n.ID)
	if err != nil {
		return -fuse.ENOENT
	}
	fill(".", nil, 0)
	fill("..", nil, 0)
	for _, id := range ids {
		c, err := y.g.GetNode(id)
		if err != nil {
			continue
		}
		var st fuse.Stat_t
		y.fill(c, &st)
		if !fill(c.Name(), &st, 0) {
			break
		}
	}
	return 0
}

func (y *YieldFS) Read(path string, buff []byte, ofst int64, _ uint64) int {
	n, err := y.g.ReadContent(graph.CleanID(path), buff, ofst)
	if err != nil {
		return -fuse.ENOENT
	}
	return n
}

func (y *YieldFS) Getxattr(path, name string) (int, []byte) {
	n, errc := y.lookup(path)
	if errc != 0 {
		return errc, nil
	}
	prop, ok := strings.CutPrefix(name, XattrPrefix)
	if !ok {
		return -fuse.ENOATTR, nil
	}
	v, ok := n.Properties[prop]
	if !ok {
		return -fuse.ENOATTR, nil
	}
	return 0, bytes.TrimSuffix(v, []byte("\n"))
}

func (y *YieldFS) Listxattr(path string, fill func(name string) bool) int {
	n, errc := y.lookup(path)
	if errc != 0 {
		return errc
	}
	for _, p := range graph.PropNames(n) {
		if !fill(XattrPrefix + p) {
			break
		}
	}
	return 0
}

func (y *YieldFS) Setxattr(string, string, []byte, int) int { return -fuse.EROFS }
func (y *YieldFS) Removexattr(string, string) int           { return -fuse.EROFS }

// Host is a mounted YieldFS.
type Host struct {
	h    *fuse.FileSystemHost
	done chan struct{}
	err  error
}

// Mount mounts y read-only at mountpoint. The mount runs until Unmount or an
// external umount; Done is closed when it ends.
func Mount(y *YieldFS, mountpoint string) *Host {
	h := &Host{h: fuse.NewFileSystemHost(y), done: make(chan struct{})}
	opts := []string{
		"-o", "ro",
		"-o", fmt.Sprintf("uid=%d", y.uid),
		"-o", fmt.Sprintf("gid=%d", y.gid),
		"-o", "fsname=yieldtree",
	}
	go func() {
		defer close(h.done)
		if !h.h.Mount(mountpoint, opts) {
			h.err = fmt.Errorf("fuse mount %s failed", mountpoint)
		}
	}()
	return h
}

// Done is closed once the filesystem is no longer mounted.
func (h *Host) Done() <-chan struct{} { return h.done }

// Err reports why the mount ended; valid after Done is closed.
func (h *Host) Err() error { return h.err }

// Unmount unmounts and waits for the mount to end.
func (h *Host) Unmount() error {
	if !h.h.Unmount() {
		return errors.New("fuse unmount failed")
	}
	<-h.done
	return h.err
}
