package tree

import (
	"path/filepath"
	"strings"

	"github.com/agentic-research/yieldtree/internal/keymap"
)

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__pycache__"
}

// EXOSIMS lays out runs as directories of pickled DRM/SPC files next to
// JSON input scripts and CSV reductions.
var EXOSIMS = Factory{
	Name: "exosims",
	ClassifyDir: func(name string) DirKind {
		switch {
		case hidden(name):
			return SkipDir
		case strings.HasPrefix(strings.ToLower(name), "run"):
			return RunDir
		default:
			return GenericDir
		}
	},
	ClassifyFile: func(name string) (keymap.Source, bool) {
		if hidden(name) {
			return 0, false
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".csv":
			return keymap.EXOSIMSCSV, true
		case ".json":
			return keymap.EXOSIMSJSON, true
		case ".pkl", ".pickle", ".p":
			return keymap.EXOSIMSPickle, true
		case ".db":
			return keymap.Snapshot, true
		default:
			return keymap.Raw, true
		}
	},
}

// AYO writes CSV target tables into output directories and reads free-form
// .ayo parameter files.
var AYO = Factory{
	Name: "ayo",
	ClassifyDir: func(name string) DirKind {
		switch {
		case hidden(name):
			return SkipDir
		case strings.HasPrefix(strings.ToLower(name), "output"):
			return OutputDir
		default:
			return GenericDir
		}
	},
	ClassifyFile: func(name string) (keymap.Source, bool) {
		if hidden(name) {
			return 0, false
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".csv":
			return keymap.AYOCSV, true
		case ".ayo", ".inp":
			return keymap.AYOInput, true
		case ".db":
			return keymap.Snapshot, true
		default:
			return keymap.Raw, true
		}
	},
}
