package tree

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/agentic-research/yieldtree/internal/keymap"
)

// Factory decides the concrete node for every scanned entry.
type Factory struct {
	Name         string
	ClassifyDir  func(name string) DirKind
	ClassifyFile func(name string) (keymap.Source, bool) // false skips the file
}

// Build scans root on fsys and returns the directory tree. A file that fails
// to load aborts the build with a *LoadError.
func Build(fsys billy.Filesystem, root string, f Factory, env *Env) (*Directory, error) {
	env = env.withDefaults()
	info, err := fsys.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	kind := f.ClassifyDir(path.Base(root))
	if kind == SkipDir {
		kind = GenericDir
	}
	return buildDir(fsys, root, kind, f, env)
}

func buildDir(fsys billy.Filesystem, dir string, kind DirKind, f Factory, env *Env) (*Directory, error) {
	d := NewDirectory(dir, path.Base(dir), kind, env)

	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	if !env.KeepOSOrder {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	}

	for _, e := range entries {
		p := fsys.Join(dir, e.Name())
		if e.IsDir() {
			k := f.ClassifyDir(e.Name())
			if k == SkipDir {
				continue
			}
			sub, err := buildDir(fsys, p, k, f, env)
			if err != nil {
				return nil, err
			}
			d.Add(sub)
			continue
		}
		if !e.Mode().IsRegular() {
			continue
		}
		n, err := loadFile(fsys, p, e.Name(), f, env)
		if err != nil {
			return nil, err
		}
		d.Add(n)
	}
	return d, nil
}

// loadFile returns nil for files the factory skips.
func loadFile(fsys billy.Filesystem, p, name string, f Factory, env *Env) (Node, error) {
	src, ok := f.ClassifyFile(name)
	if !ok {
		env.Logger.Debug("skipping file", "path", p)
		return nil, nil
	}
	fh, err := fsys.Open(p)
	if err != nil {
		return nil, &LoadError{Path: p, Err: err}
	}
	defer func() { _ = fh.Close() }() // read-only
	data, err := io.ReadAll(fh)
	if err != nil {
		return nil, &LoadError{Path: p, Err: err}
	}
	content, err := decode(src, p, data, env)
	if err != nil {
		return nil, &LoadError{Path: p, Err: err}
	}
	return NewFile(p, name, src, content, env), nil
}

// Open builds a tree over a directory of the local filesystem. A single data
// file, such as a snapshot, opens as its parent directory holding only that file.
func Open(dir string, f Factory, env *Env) (*Directory, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	fsys := osfs.New("/")
	if !info.IsDir() {
		return buildSingle(fsys, filepath.ToSlash(abs), f, env)
	}
	return Build(fsys, filepath.ToSlash(abs), f, env)
}

func buildSingle(fsys billy.Filesystem, p string, f Factory, env *Env) (*Directory, error) {
	env = env.withDefaults()
	n, err := loadFile(fsys, p, path.Base(p), f, env)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%s: skipped by the %s layout", p, f.Name)
	}
	dir := path.Dir(p)
	d := NewDirectory(dir, path.Base(dir), GenericDir, env)
	d.Add(n)
	return d, nil
}

// OpenEXOSIMS builds an EXOSIMS tree over dir.
func OpenEXOSIMS(dir string, env *Env) (*Directory, error) {
	return Open(dir, EXOSIMS, env)
}

// OpenAYO builds an AYO tree over dir.
func OpenAYO(dir string, env *Env) (*Directory, error) {
	return Open(dir, AYO, env)
}

// FactoryFor returns the factory of a tool by name.
func FactoryFor(tool string) (Factory, bool) {
	switch tool {
	case "exosims", "EXOSIMS":
		return EXOSIMS, true
	case "ayo", "AYO":
		return AYO, true
	}
	return Factory{}, false
}
