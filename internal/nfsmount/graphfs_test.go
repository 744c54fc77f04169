package nfsmount

import (
	"fmt"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/yieldtree/internal/graph"
	"github.com/agentic-research/yieldtree/internal/keymap"
	"github.com/agentic-research/yieldtree/internal/tree"
)

func newTestGraph() *graph.Store {
	store := graph.NewStore(time.Unix(1700000000, 0))
	store.Put("keys/star_dist", []byte("[1.3, 10, 22.5, 8.25] pc\n"), map[string][]byte{
		"unit":   []byte("pc\n"),
		"source": []byte("/data/run1/output/targets.csv\n"),
	})
	store.Put("keys/star_name", []byte("[HIP 1, HIP 2]\n"), nil)
	store.Put(graph.ManifestName, []byte(`{"root": "/data/run1"}`+"\n"), nil)
	return store
}

func names(infos []os.FileInfo) []string {
	out := make([]string, len(infos))
	for i, fi := range infos {
		out[i] = fi.Name()
	}
	return out
}

func TestStat(t *testing.T) {
	gfs := NewGraphFS(newTestGraph())

	root, err := gfs.Stat("/")
	require.NoError(t, err)
	assert.True(t, root.IsDir())
	assert.Equal(t, "/", root.Name())
	assert.Equal(t, os.ModeDir|0o555, root.Mode())

	dir, err := gfs.Stat("/keys")
	require.NoError(t, err)
	assert.True(t, dir.IsDir())

	f, err := gfs.Lstat("keys/star_dist")
	require.NoError(t, err)
	assert.False(t, f.IsDir())
	assert.Equal(t, "star_dist", f.Name())
	assert.Equal(t, int64(25), f.Size())
	assert.Equal(t, os.FileMode(0o444), f.Mode())
	assert.Equal(t, time.Unix(1700000000, 0), f.ModTime())

	unit, err := gfs.Stat("/keys/star_dist.unit")
	require.NoError(t, err)
	assert.Equal(t, int64(3), unit.Size())

	_, err = gfs.Stat("/nonexistent")
	assert.True(t, os.IsNotExist(err))
	_, err = gfs.Stat("/keys/star_name.unit")
	assert.True(t, os.IsNotExist(err))
}

func TestReadDir(t *testing.T) {
	gfs := NewGraphFS(newTestGraph())

	entries, err := gfs.ReadDir("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"keys", graph.ManifestName}, names(entries))

	entries, err = gfs.ReadDir("/keys")
	require.NoError(t, err)
	assert.Equal(t, []string{"star_dist", "star_dist.source", "star_dist.unit", "star_name"}, names(entries))

	_, err = gfs.ReadDir("/keys/star_dist")
	assert.ErrorIs(t, err, errNotDir)
	_, err = gfs.ReadDir("/missing")
	assert.True(t, os.IsNotExist(err))
}

func TestOpenAndRead(t *testing.T) {
	gfs := NewGraphFS(newTestGraph())

	data, err := util.ReadFile(gfs, "/keys/star_name")
	require.NoError(t, err)
	assert.Equal(t, "[HIP 1, HIP 2]\n", string(data))

	data, err = util.ReadFile(gfs, "/keys/star_dist.source")
	require.NoError(t, err)
	assert.Equal(t, "/data/run1/output/targets.csv\n", string(data))

	data, err = util.ReadFile(gfs, "/"+graph.ManifestName)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"root": "/data/run1"`)

	_, err = gfs.Open("/nonexistent")
	assert.True(t, os.IsNotExist(err))
}

func TestReadAtAndSeek(t *testing.T) {
	gfs := NewGraphFS(newTestGraph())

	f, err := gfs.Open("/keys/star_dist")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, "star_dist", f.Name())

	buf := make([]byte, 10)
	n, err := f.ReadAt(buf, 1)
	require.NoError(t, err)
	assert.Equal(t, "1.3, 10, 2", string(buf[:n]))

	n, err = f.ReadAt(buf, 20)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "] pc\n", string(buf[:n]))

	pos, err := f.Seek(5, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos)
	n, err = f.Read(buf[:5])
	require.NoError(t, err)
	assert.Equal(t, " 10, ", string(buf[:n]))

	pos, err = f.Seek(-3, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(22), pos)
}

func TestReadsFollowSwaps(t *testing.T) {
	live := graph.NewHotSwapGraph(newTestGraph())
	gfs := NewGraphFS(live)

	next := graph.NewStore(time.Now())
	next.Put("keys/star_name", []byte("[HIP 7]\n"), nil)
	live.Swap(next)

	data, err := util.ReadFile(gfs, "/keys/star_name")
	require.NoError(t, err)
	assert.Equal(t, "[HIP 7]\n", string(data))
	_, err = gfs.Stat("/keys/star_dist")
	assert.True(t, os.IsNotExist(err))
}

func TestReadOnly(t *testing.T) {
	gfs := NewGraphFS(newTestGraph())

	_, err := gfs.Create("newfile.txt")
	assert.Equal(t, errReadOnly, err)
	assert.Equal(t, errReadOnly, gfs.MkdirAll("/newdir", 0o755))
	assert.Equal(t, errReadOnly, gfs.Remove("/keys/star_dist"))
	assert.Equal(t, errReadOnly, gfs.Rename("/keys", "/renamed"))

	_, err = gfs.OpenFile("/keys/star_dist", os.O_RDWR, 0)
	assert.Equal(t, errReadOnly, err)

	f, err := gfs.Open("/keys/star_dist")
	require.NoError(t, err)
	_, err = f.Write([]byte("x"))
	assert.Equal(t, errReadOnly, err)

	_, err = gfs.Open("/keys")
	assert.ErrorIs(t, err, errIsDir)
}

func TestCapabilitiesAndPaths(t *testing.T) {
	gfs := NewGraphFS(newTestGraph())
	caps := gfs.Capabilities()
	assert.NotZero(t, caps&2) // ReadCapability
	assert.NotZero(t, caps&8) // SeekCapability
	assert.Zero(t, caps&1)    // WriteCapability

	assert.Equal(t, "/", gfs.Root())
	assert.Equal(t, "a/b/c", gfs.Join("a", "b", "c"))

	sub, err := gfs.Chroot("/keys")
	require.NoError(t, err)
	data, err := util.ReadFile(sub, "star_dist.unit")
	require.NoError(t, err)
	assert.Equal(t, "pc\n", string(data))
}

func TestMountArgs(t *testing.T) {
	args, err := mountArgs("linux", 2049, "/mnt/run")
	require.NoError(t, err)
	assert.Equal(t, []string{"sudo", "mount", "-t", "nfs", "-o",
		"port=2049,mountport=2049,vers=3,tcp,local_lock=all,nolock,ro", "localhost:/", "/mnt/run"}, args)

	args, err = mountArgs("darwin", 111, "/Volumes/run")
	require.NoError(t, err)
	assert.Contains(t, args[5], "rdonly")

	_, err = mountArgs("plan9", 1, "/n/run")
	assert.Error(t, err)

	assert.Len(t, unmountArgs("darwin", "/Volumes/run"), 2)
	assert.Equal(t, [][]string{{"sudo", "umount", "/mnt/run"}}, unmountArgs("linux", "/mnt/run"))
}

func TestNFSServerStarts(t *testing.T) {
	srv, err := NewServer(NewGraphFS(newTestGraph()), "")
	require.NoError(t, err)
	assert.Positive(t, srv.Port())

	conn, err := net.Dial("tcp", fmt.Sprintf("localhost:%d", srv.Port()))
	require.NoError(t, err)
	_ = conn.Close()
	require.NoError(t, srv.Close())
}

func TestProjectedTree(t *testing.T) {
	src := memfs.New()
	require.NoError(t, src.MkdirAll("/run/output", 0o755))
	require.NoError(t, util.WriteFile(src, "/run/output/targets.csv", []byte("HIP,dist (pc)\n7,3.5\n"), 0o644))

	root, err := tree.Build(src, "/run", tree.AYO, nil)
	require.NoError(t, err)
	store, err := graph.Project(root, keymap.Default(), graph.ProjectOptions{Tool: "ayo"})
	require.NoError(t, err)

	gfs := NewGraphFS(store)
	data, err := util.ReadFile(gfs, "/keys/star_dist")
	require.NoError(t, err)
	assert.Equal(t, "[3.5] pc\n", string(data))

	data, err = util.ReadFile(gfs, "/keys/star_dist.unit")
	require.NoError(t, err)
	assert.Equal(t, "pc\n", string(data))

	data, err = util.ReadFile(gfs, "/keys/star_name.source")
	require.NoError(t, err)
	assert.Equal(t, "/run/output/targets.csv\n", string(data))
}
