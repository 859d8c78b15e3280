package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// BarbellGML is two 4-cliques joined by one edge. Nodes carry a scalar
// community, so it suits node classification.
const BarbellGML = `graph [
  directed 0
  node [ id 0 label "a0" community 0 ]
  node [ id 1 label "a1" community 0 ]
  node [ id 2 label "a2" community 0 ]
  node [ id 3 label "a3" community 0 ]
  node [ id 4 label "b0" community 1 ]
  node [ id 5 label "b1" community 1 ]
  node [ id 6 label "b2" community 1 ]
  node [ id 7 label "b3" community 1 ]
  edge [ source 0 target 1 ]
  edge [ source 0 target 2 ]
  edge [ source 0 target 3 ]
  edge [ source 1 target 2 ]
  edge [ source 1 target 3 ]
  edge [ source 2 target 3 ]
  edge [ source 4 target 5 ]
  edge [ source 4 target 6 ]
  edge [ source 4 target 7 ]
  edge [ source 5 target 6 ]
  edge [ source 5 target 7 ]
  edge [ source 6 target 7 ]
  edge [ source 3 target 4 ]
]
`

// WriteFile writes content to dir/rel, creating parent directories, and
// returns the full path.
func WriteFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteJSON encodes v as indented JSON into dir/rel and returns the path.
func WriteJSON(t *testing.T, dir, rel string, v any) string {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("encode %s: %v", rel, err)
	}
	return WriteFile(t, dir, rel, string(data)+"\n")
}

// ExperimentFiles are the paths written by WriteExperiment.
type ExperimentFiles struct {
	Graph     string
	OutputDir string
	Config    string
	Params    string
}

// WriteExperiment lays out a barbell graph, an output directory, a config
// and a params file under dir. config is completed with input_path and
// output_dir unless it sets them.
func WriteExperiment(t *testing.T, dir string, config, params map[string]any) ExperimentFiles {
	t.Helper()
	files := ExperimentFiles{
		Graph:     WriteFile(t, dir, "graphs/barbell.gml", BarbellGML),
		OutputDir: filepath.Join(dir, "out"),
	}
	if err := os.MkdirAll(files.OutputDir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", files.OutputDir, err)
	}

	cfg := make(map[string]any, len(config)+2)
	cfg["input_path"] = files.Graph
	cfg["output_dir"] = files.OutputDir
	for k, v := range config {
		cfg[k] = v
	}
	files.Config = WriteJSON(t, dir, "sample_config_1.json", cfg)
	files.Params = WriteJSON(t, dir, "default_params_a.json", params)
	return files
}
