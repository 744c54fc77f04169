package tree

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/yieldtree/api"
	"github.com/agentic-research/yieldtree/internal/keymap"
	"github.com/agentic-research/yieldtree/internal/snapshot"
	"github.com/agentic-research/yieldtree/internal/units"
)

func fixture(t *testing.T, files map[string]string) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	for p, body := range files {
		require.NoError(t, fs.MkdirAll(path.Dir(p), 0o755))
		require.NoError(t, util.WriteFile(fs, p, []byte(body), 0o644))
	}
	return fs
}

func testEnv(t *testing.T) (*Env, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	env := NewEnv()
	env.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	return env, &logs
}

func get(t *testing.T, n Node, key string) Value {
	t.Helper()
	r, err := n.Get(key)
	require.NoError(t, err)
	require.True(t, r.Found, "key %s not found", key)
	return r.Value
}

const targetsCSV = "HIP,dist (pc),completeness,Vmag\n1,1.3,0.2,4.5\n2,10,0.5,\n"

func TestStarDist_EndToEnd(t *testing.T) {
	env, _ := testEnv(t)
	fs := fixture(t, map[string]string{"/fixture/output/targets.csv": targetsCSV})

	root, err := Build(fs, "/fixture", AYO, env)
	require.NoError(t, err)

	v := get(t, root, "star_dist")
	assert.Equal(t, []float64{1.3, 10}, v.Data)
	require.NotNil(t, v.Unit)
	assert.Equal(t, "pc", v.Unit.Symbol)

	names := get(t, root, "star_name")
	assert.Equal(t, []string{"HIP 1", "HIP 2"}, names.Data)
	assert.Nil(t, names.Unit)

	comp := get(t, root, "completeness")
	assert.Equal(t, []float64{0.2, 0.5}, comp.Data)

	// gated to hz_*.csv
	r, err := root.Get("hz_completeness")
	require.NoError(t, err)
	assert.False(t, r.Found)
}

// exosimsRun and ayoRun describe the same two-star survey as each tool
// writes it.
var (
	exosimsRun = map[string]string{
		"/exo/script.json": `{
  "pupilDiam": 4,
  "missionLife": 2,
  "nEZ": 3,
  "observingModes": [{"SNR": 5, "lam": 500}],
  "starlightSuppressionSystems": [{"IWA": 0.045, "OWA": 1.2, "core_contrast": 1e-10}]
}`,
		"/exo/reduced/targets.csv": "Name,dist,Vmag,L,RA,DEC,int_time,comp,visits\n" +
			"HIP 1,1.3,4.5,1.1,10,20,0.5,0.2,2\n" +
			"HIP 2,10,5.5,0.9,30,-10,1.5,0.5,1\n",
	}
	ayoRun = map[string]string{
		"/ayo/habex.ayo": "D = 4 (m)\ntotal_survey_time = 2 (yr)\nSNR = 5\n" +
			"IWA = 2.5 (l/D)\nOWA = 60 (l/D)\nlambda = [0.5, 1.0] (um)\n" +
			"raw_contrast = 1e-10\nnexozodis = 3\n",
		"/ayo/output/targets.csv": "HIP,dist (pc),Vmag,L (Lsun),RA (deg),Dec (deg),exp time (d),completeness,n_visits\n" +
			"1,1.3,4.5,1.1,10,20,0.5,0.2,2\n" +
			"2,10,5.5,0.9,30,-10,1.5,0.5,1\n",
	}
)

func TestCrossToolKeys(t *testing.T) {
	km := keymap.Default()
	exo := make(map[string]bool)
	for _, k := range append(km.KeysFor(keymap.EXOSIMSCSV), km.KeysFor(keymap.EXOSIMSJSON)...) {
		exo[k] = true
	}
	var shared []string
	for _, k := range append(km.KeysFor(keymap.AYOCSV), km.KeysFor(keymap.AYOInput)...) {
		if exo[k] {
			shared = append(shared, k)
		}
	}
	require.NotEmpty(t, shared)

	env, _ := testEnv(t)
	exoRoot, err := Build(fixture(t, exosimsRun), "/exo", EXOSIMS, env)
	require.NoError(t, err)
	ayoRoot, err := Build(fixture(t, ayoRun), "/ayo", AYO, env)
	require.NoError(t, err)

	// working angles are arcsec in EXOSIMS and lambda/D in AYO
	ownUnits := map[string]bool{"iwa": true, "owa": true}

	for _, key := range shared {
		t.Run(key, func(t *testing.T) {
			a := get(t, exoRoot, key)
			b := get(t, ayoRoot, key)
			if a.Unit == nil || b.Unit == nil {
				assert.Nil(t, a.Unit, "exosims unit")
				assert.Nil(t, b.Unit, "ayo unit")
				return
			}
			if ownUnits[key] {
				return
			}
			_, err := units.Convert(1, *a.Unit, *b.Unit)
			assert.NoError(t, err, "%s vs %s", a.Unit.Symbol, b.Unit.Symbol)
		})
	}
}

func TestFilenameGate(t *testing.T) {
	km, err := keymap.New(&api.KeyMap{Version: "test", Entries: map[string]api.Entry{
		"target": {Sources: map[string]api.Mapping{
			"AYOCSVFile": {Name: "name", File: "b_second.csv"},
		}},
		"label": {Sources: map[string]api.Mapping{
			"AYOCSVFile": {Name: "name", File: `^a_.*\.csv$`},
		}},
	}})
	require.NoError(t, err)
	env, _ := testEnv(t)
	env.Keys = km

	fs := fixture(t, map[string]string{
		"/d/a_first.csv":  "name\nalpha\n",
		"/d/b_second.csv": "name\nbeta\n",
	})
	root, err := Build(fs, "/d", AYO, env)
	require.NoError(t, err)

	children := root.Children()
	require.Len(t, children, 2)
	first, second := children[0], children[1]

	r, err := first.Get("target")
	require.NoError(t, err)
	assert.False(t, r.Found, "gate excludes the first file")
	assert.True(t, first.HasKey("target"), "gating does not change expected keys")

	assert.Equal(t, []string{"beta"}, get(t, second, "target").Data)
	assert.Equal(t, []string{"beta"}, get(t, root, "target").Data)

	// regex gate
	assert.Equal(t, []string{"alpha"}, get(t, root, "label").Data)
}

// reversedFS returns directory entries in reverse name order.
type reversedFS struct {
	billy.Filesystem
}

func (r reversedFS) ReadDir(p string) ([]os.FileInfo, error) {
	entries, err := r.Filesystem.ReadDir(p)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() > entries[j].Name() })
	return entries, nil
}

func TestScanOrder(t *testing.T) {
	fs := reversedFS{fixture(t, map[string]string{
		"/d/a.csv": "dist (pc)\n1\n",
		"/d/b.csv": "dist (pc)\n2\n",
		"/d/c.csv": "dist (pc)\n3\n",
	})}

	t.Run("sorted by default", func(t *testing.T) {
		env, _ := testEnv(t)
		first, err := Build(fs, "/d", AYO, env)
		require.NoError(t, err)
		again, err := Build(fs, "/d", AYO, env)
		require.NoError(t, err)

		assert.Equal(t, childNames(first), childNames(again))
		assert.Equal(t, []string{"a.csv", "b.csv", "c.csv"}, childNames(first))
		assert.Equal(t, []float64{1}, get(t, first, "star_dist").Data, "first child wins")
	})

	t.Run("os order kept on request", func(t *testing.T) {
		env, _ := testEnv(t)
		env.KeepOSOrder = true
		root, err := Build(fs, "/d", AYO, env)
		require.NoError(t, err)
		assert.Equal(t, []string{"c.csv", "b.csv", "a.csv"}, childNames(root))
		assert.Equal(t, []float64{3}, get(t, root, "star_dist").Data)
	})
}

func childNames(d *Directory) []string {
	var out []string
	for _, c := range d.Children() {
		out = append(out, c.Name())
	}
	return out
}

func TestHasKey_MatchesLiveData(t *testing.T) {
	env, _ := testEnv(t)
	fs := fixture(t, map[string]string{
		"/f/output/targets.csv": targetsCSV,
		"/f/habex.ayo":          "D = 4 (m)\nIWA = [2.5, 3] (l/D)\n",
	})
	root, err := Build(fs, "/f", AYO, env)
	require.NoError(t, err)

	live := map[string]bool{
		"star_name": true, "star_dist": true, "completeness": true,
		"hz_completeness": true, "star_vmag": true,
		"pupil_diam": true, "iwa": true,
	}
	for _, src := range []keymap.Source{keymap.AYOCSV, keymap.AYOInput} {
		for _, k := range env.Keys.KeysFor(src) {
			assert.Equal(t, live[k], root.HasKey(k), k)
		}
	}
	assert.False(t, root.HasKey("pupil_diam_typo"))
	assert.True(t, root.HasKey("D"), "native names pass through")
}

func TestInputFileUnits(t *testing.T) {
	env, _ := testEnv(t)
	fs := fixture(t, map[string]string{
		"/f/habex.ayo": `
D = 400 (cm)
total_survey_time = 730.5 (days)
IWA = [2.5, 3.0] (l/D)
lambda = [0.5, 0.6] (um)
throughput = [0.1, 0.2, 0.3]
broken = = 1
`,
	})
	root, err := Build(fs, "/f", AYO, env)
	require.NoError(t, err)

	d := get(t, root, "pupil_diam")
	assert.InDelta(t, 4.0, d.Data.(float64), 1e-12)
	assert.Equal(t, "m", d.Unit.Symbol)

	life := get(t, root, "mission_life")
	assert.InDelta(t, 2.0, life.Data.(float64), 1e-12)
	assert.Equal(t, "yr", life.Unit.Symbol)

	iwa := get(t, root, "iwa")
	assert.Equal(t, []float64{2.5, 3.0}, iwa.Data)
	assert.Equal(t, "lambda/D", iwa.Unit.Symbol)

	lam := get(t, root, "wavelength")
	assert.Equal(t, 0.5, lam.Data)
	assert.Equal(t, "um", lam.Unit.Symbol)

	thr := get(t, root, "total_throughput")
	assert.InDelta(t, 0.5, thr.Data.(float64), 1e-12)

	assert.False(t, root.HasKey("broken"))
	r, err := root.Get("snr")
	require.NoError(t, err)
	assert.False(t, r.Found)
}

func TestEXOSIMSTree(t *testing.T) {
	env, _ := testEnv(t)
	fs := fixture(t, map[string]string{
		"/sim/script.json": `{
			"pupilDiam": 2.4,
			"missionLife": 5,
			"observingModes": [{"SNR": 7, "lam": 550}],
			"starlightSuppressionSystems": [{"IWA": 0.045}]
		}`,
		"/sim/reduced/targets.csv": "Name,dist,visits\nHIP 1,1.3,1\nHIP 2,8.1,2.0\n",
		"/sim/.cache/junk.json":    "not json",
	})
	root, err := Build(fs, "/sim", EXOSIMS, env)
	require.NoError(t, err)

	pd := get(t, root, "pupil_diam")
	assert.Equal(t, 2.4, pd.Data)
	assert.Equal(t, "m", pd.Unit.Symbol)
	assert.Equal(t, 7.0, get(t, root, "snr").Data)
	assert.Equal(t, 550.0, get(t, root, "wavelength").Data)
	assert.Equal(t, "arcsec", get(t, root, "iwa").Unit.Symbol)
	assert.False(t, root.HasKey("owa"))

	dist := get(t, root, "star_dist")
	assert.Equal(t, []float64{1.3, 8.1}, dist.Data)
	assert.Equal(t, "pc", dist.Unit.Symbol)
	assert.Equal(t, []int64{1, 2}, get(t, root, "n_visits").Data)
	assert.Equal(t, []string{"HIP 1", "HIP 2"}, get(t, root, "star_name").Data)
}

func TestReverseUnitLookup(t *testing.T) {
	env, _ := testEnv(t)
	fs := fixture(t, map[string]string{"/o/targets.csv": targetsCSV})
	root, err := Build(fs, "/o", AYO, env)
	require.NoError(t, err)

	// native column name, canonical key not supplied
	v := get(t, root, "dist (pc)")
	require.NotNil(t, v.Unit)
	assert.Equal(t, "pc", v.Unit.Symbol)
}

func TestHeaderUnitFallback(t *testing.T) {
	env, _ := testEnv(t)
	fs := fixture(t, map[string]string{"/o/extra.csv": "sep (mas)\n12\n"})
	root, err := Build(fs, "/o", AYO, env)
	require.NoError(t, err)

	v := get(t, root, "sep (mas)")
	require.NotNil(t, v.Unit)
	assert.Equal(t, "mas", v.Unit.Symbol)
}

func TestMalformedFileAbortsBuild(t *testing.T) {
	tests := map[string]map[string]string{
		"ragged csv": {"/d/ok.csv": "a\n1\n", "/d/bad.csv": "a,b\n1\n"},
		"bad json":   {"/d/script.json": "{"},
	}
	for name, files := range tests {
		t.Run(name, func(t *testing.T) {
			env, _ := testEnv(t)
			_, err := Build(fixture(t, files), "/d", EXOSIMS, env)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrLoad))
			var le *LoadError
			require.True(t, errors.As(err, &le))
			assert.Contains(t, le.Path, "/d/")
		})
	}
}

func TestRawAndHiddenFiles(t *testing.T) {
	env, _ := testEnv(t)
	fs := fixture(t, map[string]string{
		"/d/notes.txt":    "hello",
		"/d/.DS_Store":    "x",
		"/d/.git/HEAD":    "ref",
		"/d/output/a.csv": "HIP\n1\n",
	})
	root, err := Build(fs, "/d", AYO, env)
	require.NoError(t, err)

	assert.Equal(t, []string{"notes.txt", "output"}, childNames(root))
	assert.Equal(t, []byte("hello"), get(t, root, "notes.txt").Data)
}

func TestSnapshotFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	require.NoError(t, snapshot.Write(dbPath, "", []snapshot.Quantity{
		{Key: "star_dist", Source: "x", Unit: "pc", Value: []float64{4, 5}},
	}))
	data, err := os.ReadFile(dbPath)
	require.NoError(t, err)

	env, _ := testEnv(t)
	fs := fixture(t, map[string]string{"/d/cache.db": string(data)})
	root, err := Build(fs, "/d", AYO, env)
	require.NoError(t, err)

	v := get(t, root, "star_dist")
	assert.Equal(t, []float64{4, 5}, v.Data)
	assert.Equal(t, "pc", v.Unit.Symbol)
}

func TestDisplayTree(t *testing.T) {
	env, _ := testEnv(t)
	fs := fixture(t, map[string]string{
		"/fixture/a.csv":        "x\n1\n",
		"/fixture/b.csv":        "x\n1\n",
		"/fixture/c.ayo":        "x = 1\n",
		"/fixture/output/t.csv": "x\n1\n",
		"/fixture/output/u.csv": "x\n1\n",
		"/fixture/output/v.csv": "x\n1\n",
	})
	root, err := Build(fs, "/fixture", AYO, env)
	require.NoError(t, err)

	want := "fixture/\n" +
		"  a.csv [AYOCSVFile]\n" +
		"  b.csv [AYOCSVFile]\n" +
		"  ... and 2 more\n"
	assert.Equal(t, want, root.DisplayTree(2))

	full := root.DisplayTree(0)
	assert.Contains(t, full, "  c.ayo [AYOInputFile]\n")
	assert.Contains(t, full, "  output/ [output]\n    t.csv [AYOCSVFile]\n    u.csv [AYOCSVFile]\n    v.csv [AYOCSVFile]\n")
}

// countingNode records how often it is asked.
type countingNode struct {
	calls int
}

func (c *countingNode) Path() string               { return "/stub" }
func (c *countingNode) Name() string               { return "stub" }
func (c *countingNode) HasKey(string) bool         { return false }
func (c *countingNode) Coverage() *roaring.Bitmap  { return roaring.New() }
func (c *countingNode) Get(string) (Result, error) { c.calls++; return NotApplicable, nil }

func TestDirectory_AddAndPruning(t *testing.T) {
	env, _ := testEnv(t)
	d := NewDirectory("/d", "d", GenericDir, env)
	stub := &countingNode{}
	d.Add(nil)
	d.Add(stub)
	assert.Len(t, d.Children(), 1)

	r, err := d.Get("star_dist")
	require.NoError(t, err)
	assert.False(t, r.Found)
	assert.Zero(t, stub.calls, "coverage excludes mapped keys")

	_, err = d.Get("not_in_keymap")
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls, "unmapped keys are asked")
}

func TestTransformErrorSurfaces(t *testing.T) {
	km, err := keymap.New(&api.KeyMap{Version: "test", Entries: map[string]api.Entry{
		"third": {Sources: map[string]api.Mapping{
			"AYOCSVFile": {Name: "x", Transform: &api.Transform{Type: "index", Value: "5"}},
		}},
	}})
	require.NoError(t, err)
	env, _ := testEnv(t)
	env.Keys = km

	root, err := Build(fixture(t, map[string]string{"/d/a.csv": "x\n1\n2\n"}), "/d", AYO, env)
	require.NoError(t, err)
	_, err = root.Get("third")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestResolveAll(t *testing.T) {
	env, _ := testEnv(t)
	fs := fixture(t, map[string]string{
		"/f/output/targets.csv": targetsCSV,
		"/f/habex.ayo":          "D = 4 (m)\n",
	})
	root, err := Build(fs, "/f", AYO, env)
	require.NoError(t, err)

	got, failed := ResolveAll(root, []string{"pupil_diam", "snr", "star_dist"})
	require.Empty(t, failed)
	require.Len(t, got, 2)
	assert.Equal(t, "/f/habex.ayo", got[0].Source)
	assert.Equal(t, "/f/output/targets.csv", got[1].Source)
	assert.Equal(t, "star_dist", got[1].Key)
}

func TestResolveAll_BlankIntCell(t *testing.T) {
	env, _ := testEnv(t)
	fs := fixture(t, map[string]string{
		"/f/output/targets.csv": "HIP,dist (pc),n_visits\n1,1.3,2\n2,10,\n",
	})
	root, err := Build(fs, "/f", AYO, env)
	require.NoError(t, err)

	got, failed := ResolveAll(root, []string{"star_dist", "n_visits"})
	require.Empty(t, failed)
	require.Len(t, got, 2)
	assert.Equal(t, []float64{1.3, 10}, got[0].Value.Data)

	visits, ok := got[1].Value.Data.([]float64)
	require.True(t, ok, "got %T", got[1].Value.Data)
	assert.Equal(t, 2.0, visits[0])
	assert.True(t, math.IsNaN(visits[1]))
}

func TestResolveAll_FailureIsPerKey(t *testing.T) {
	km, err := keymap.New(&api.KeyMap{Version: "test", Entries: map[string]api.Entry{
		"first": {Sources: map[string]api.Mapping{
			"AYOCSVFile": {Name: "x", Transform: &api.Transform{Type: "index", Value: "0"}},
		}},
		"third": {Sources: map[string]api.Mapping{
			"AYOCSVFile": {Name: "x", Transform: &api.Transform{Type: "index", Value: "5"}},
		}},
		"y": {Sources: map[string]api.Mapping{"AYOCSVFile": {Name: "y"}}},
	}})
	require.NoError(t, err)
	env, _ := testEnv(t)
	env.Keys = km

	root, err := Build(fixture(t, map[string]string{"/d/a.csv": "x,y\n1,3\n2,4\n"}), "/d", AYO, env)
	require.NoError(t, err)

	got, failed := ResolveAll(root, []string{"third", "first", "y"})
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Key)
	assert.Equal(t, 1.0, got[0].Value.Data)
	assert.Equal(t, []float64{3, 4}, got[1].Value.Data)

	require.Len(t, failed, 1)
	assert.Equal(t, "third", failed[0].Key)
	assert.Contains(t, failed[0].Error(), "third: ")
	assert.Contains(t, failed[0].Error(), "out of range")
}

func TestBuild_RootMustBeDirectory(t *testing.T) {
	env, _ := testEnv(t)
	fs := fixture(t, map[string]string{"/d/a.csv": "x\n1\n"})
	_, err := Build(fs, "/d/a.csv", AYO, env)
	assert.Error(t, err)
	_, err = Build(fs, "/missing", AYO, env)
	assert.Error(t, err)
}

func TestOpenEXOSIMS_LocalDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "script.json"), []byte(`{"pupilDiam": 6}`), 0o644))

	root, err := OpenEXOSIMS(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 6.0, get(t, root, "pupil_diam").Data)
}

func TestOpen_SingleFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "script.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"pupilDiam": 6}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{"pupilDiam": 8}`), 0o644))

	root, err := OpenEXOSIMS(p, nil)
	require.NoError(t, err)
	require.Len(t, root.Children(), 1)
	assert.Equal(t, 6.0, get(t, root, "pupil_diam").Data)

	hidden := filepath.Join(dir, ".hidden.json")
	require.NoError(t, os.WriteFile(hidden, []byte(`{}`), 0o644))
	_, err = OpenEXOSIMS(hidden, nil)
	assert.ErrorContains(t, err, "skipped by the exosims layout")
}
