package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile_CreatesParents(t *testing.T) {
	dir := t.TempDir()
	path := WriteFile(t, dir, "a/b/c.txt", "hello")

	assert.Equal(t, filepath.Join(dir, "a", "b", "c.txt"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestWriteExperiment(t *testing.T) {
	dir := t.TempDir()
	files := WriteExperiment(t, dir,
		map[string]any{"reps": 1, "output_dir": "/elsewhere"},
		map[string]any{"dim": 8},
	)

	info, err := os.Stat(files.OutputDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	data, err := os.ReadFile(files.Config)
	require.NoError(t, err)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal(data, &cfg))
	assert.Equal(t, files.Graph, cfg["input_path"])
	assert.Equal(t, "/elsewhere", cfg["output_dir"], "explicit fields win")
	assert.Equal(t, float64(1), cfg["reps"])
}
