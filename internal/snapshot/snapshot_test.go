package snapshot

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")

	qs := []Quantity{
		{Key: "star_dist", Source: "/out/targets.csv", Unit: "pc", Value: []float64{1.3, 2.5}},
		{Key: "star_name", Source: "/out/targets.csv", Value: []string{"HIP 1", "HIP 2"}},
		{Key: "pupil_diam", Source: "/in/habex.ayo", Unit: "m", Value: 4.0},
	}
	require.NoError(t, Write(path, "", qs))

	got, err := Read(path, "")
	require.NoError(t, err)
	require.Len(t, got, 3)

	// key order
	assert.Equal(t, "pupil_diam", got[0].Key)
	assert.Equal(t, 4.0, got[0].Value)
	assert.Equal(t, "m", got[0].Unit)

	assert.Equal(t, "star_dist", got[1].Key)
	assert.Equal(t, []any{1.3, 2.5}, got[1].Value)
	assert.Equal(t, "/out/targets.csv", got[1].Source)

	assert.Equal(t, "", got[2].Unit)
}

func TestWriteRead_MissingCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	qs := []Quantity{
		{Key: "star_vmag", Source: "/out/targets.csv", Value: []float64{4.5, math.NaN()}},
		{Key: "grid", Source: "/out/run.pkl", Value: [][]float64{{1, math.Inf(1)}, {2, 3}}},
		{Key: "mean", Source: "/out/run.pkl", Value: math.NaN()},
	}
	require.NoError(t, Write(path, "", qs))

	got, err := Read(path, "")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "grid", got[0].Key)
	grid := got[0].Value.([]any)
	require.Len(t, grid, 2)
	assert.Equal(t, 1.0, grid[0].([]float64)[0])
	assert.True(t, math.IsNaN(grid[0].([]float64)[1]))
	assert.Equal(t, []any{2.0, 3.0}, grid[1])

	assert.Equal(t, "mean", got[1].Key)
	assert.Nil(t, got[1].Value)

	vmag, ok := got[2].Value.([]float64)
	require.True(t, ok, "got %T", got[2].Value)
	require.Len(t, vmag, 2)
	assert.Equal(t, 4.5, vmag[0])
	assert.True(t, math.IsNaN(vmag[1]))
}

func TestWrite_ReplacesPreviousSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	require.NoError(t, Write(path, "", []Quantity{{Key: "a", Source: "x", Value: 1.0}}))
	require.NoError(t, Write(path, "", []Quantity{{Key: "b", Source: "y", Value: 2.0}}))

	got, err := Read(path, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Key)
}

func TestCustomTableAndMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	w, err := NewWriter(path, "yields")
	require.NoError(t, err)
	require.NoError(t, w.Add(Quantity{Key: "snr", Source: "s.json", Value: 7.0}))
	require.NoError(t, w.SetMeta("keymap_version", "2024.2"))
	require.NoError(t, w.Close())

	got, err := Read(path, "yields")
	require.NoError(t, err)
	require.Len(t, got, 1)

	meta, err := Meta(path)
	require.NoError(t, err)
	assert.Equal(t, "2024.2", meta["keymap_version"])

	_, err = Read(path, DefaultTable)
	assert.Error(t, err, "default table was never created")
}

func TestInvalidTableName(t *testing.T) {
	_, err := NewWriter(filepath.Join(t.TempDir(), "x.db"), "drop table;")
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	require.NoError(t, Write(path, "", []Quantity{{Key: "seed", Source: "run1.pkl", Value: 42}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	got, err := Decode(data, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 42.0, got[0].Value)
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode([]byte("not a database"), "")
	assert.Error(t, err)
}
