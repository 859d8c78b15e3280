package experiment

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kce/internal/embedder"
	"github.com/roach88/kce/internal/testutil"
)

func validConfig() map[string]any {
	return map[string]any{
		"reps":            2,
		"base_embedder":   "deepwalk",
		"target_embedder": "k_core",
		"sub_embedder":    "deepwalk",
	}
}

// hasField reports whether some error concerns field. CUE may prefix the
// path with the definition name.
func hasField(errs ConfigErrors, field string) bool {
	for _, e := range errs {
		if e.Field == field || strings.HasSuffix(e.Field, "."+field) {
			return true
		}
	}
	return false
}

func loadConfigErrors(t *testing.T, cfg map[string]any) ConfigErrors {
	t.Helper()
	files := testutil.WriteExperiment(t, t.TempDir(), cfg, map[string]any{})
	_, err := LoadConfig(files.Config)
	require.Error(t, err)
	var errs ConfigErrors
	require.True(t, errors.As(err, &errs), "got %T: %v", err, err)
	return errs
}

func TestLoadConfig_Valid(t *testing.T) {
	files := testutil.WriteExperiment(t, t.TempDir(), validConfig(), map[string]any{})

	cfg, err := LoadConfig(files.Config)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Reps)
	assert.Equal(t, "deepwalk", cfg.BaseEmbedder)
	assert.Equal(t, "k_core", cfg.TargetEmbedder)
	assert.Equal(t, DefaultTag, cfg.Tag)
	assert.False(t, cfg.LinkPred)
	assert.Equal(t, "barbell", cfg.GraphName())
	assert.Equal(t, files.Graph, cfg.Raw["input_path"])
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	files := testutil.WriteExperiment(t, dir, validConfig(), map[string]any{})
	path := testutil.WriteFile(t, dir, "sample_config_2.yaml", strings.Join([]string{
		"input_path: " + files.Graph,
		"output_dir: " + files.OutputDir,
		"reps: 3",
		"base_embedder: corewalk_linear",
		"target_embedder: node2vec",
		"link_pred: true",
		"tag: yaml",
		"seed: 42",
		"",
	}, "\n"))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Reps)
	assert.True(t, cfg.LinkPred)
	assert.Equal(t, "yaml", cfg.Tag)
	assert.Equal(t, uint64(42), cfg.Seed)
}

func TestLoadConfig_SchemaViolations(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(map[string]any)
		field string
	}{
		{"zero reps", func(c map[string]any) { c["reps"] = 0 }, "reps"},
		{"fractional reps", func(c map[string]any) { c["reps"] = 1.5 }, "reps"},
		{"missing reps", func(c map[string]any) { delete(c, "reps") }, "reps"},
		{"unknown embedder", func(c map[string]any) { c["base_embedder"] = "line" }, "base_embedder"},
		{"framework as sub", func(c map[string]any) { c["sub_embedder"] = "k_core" }, "sub_embedder"},
		{"negative seed", func(c map[string]any) { c["seed"] = -1 }, "seed"},
		{"string link_pred", func(c map[string]any) { c["link_pred"] = "yes" }, "link_pred"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.edit(cfg)
			errs := loadConfigErrors(t, cfg)
			assert.True(t, hasField(errs, tt.field), "no error for %s in %v", tt.field, errs)
		})
	}
}

func TestLoadConfig_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg["reps"] = 0
	cfg["target_embedder"] = "line"

	errs := loadConfigErrors(t, cfg)
	assert.True(t, hasField(errs, "reps"))
	assert.True(t, hasField(errs, "target_embedder"))
}

func TestLoadConfig_FrameworkNeedsSubEmbedder(t *testing.T) {
	cfg := validConfig()
	delete(cfg, "sub_embedder")

	errs := loadConfigErrors(t, cfg)
	require.Len(t, errs, 1)
	assert.Equal(t, "sub_embedder", errs[0].Field)
}

func TestLoadConfig_Filesystem(t *testing.T) {
	cfg := validConfig()
	cfg["input_path"] = "/nonexistent/graph.gml"
	cfg["output_dir"] = "/nonexistent/out"

	errs := loadConfigErrors(t, cfg)
	assert.True(t, hasField(errs, "input_path"))
	assert.True(t, hasField(errs, "output_dir"))
}

func TestReadDocument_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadDocument(testutil.WriteFile(t, dir, "bad.json", "{not json"))
	assert.True(t, IsConfigError(err))

	_, err = ReadDocument(testutil.WriteFile(t, dir, "list.json", "[1, 2]"))
	assert.True(t, IsConfigError(err))

	_, err = ReadDocument(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
	assert.False(t, IsConfigError(err))
}

func TestLoadParams(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteJSON(t, dir, "default_params_a.json", map[string]any{
		"out_dim":  16,
		"n_walks":  4,
		"p":        0.5,
		"comment":  "free-form keys are kept",
		"train":    map[string]any{"core_index": 2},
		"max_iter": 10,
	})

	params, err := LoadParams(path)
	require.NoError(t, err)

	opts, err := params.FitOptions()
	require.NoError(t, err)
	assert.Equal(t, embedder.FitOptions{CoreIndex: 2}, opts)

	hyper := params.Hyper()
	assert.NotContains(t, hyper, "train")
	assert.Equal(t, "free-form keys are kept", hyper["comment"])
	assert.Contains(t, params, "train", "Hyper does not modify the receiver")
}

func TestLoadParams_Invalid(t *testing.T) {
	path := testutil.WriteJSON(t, t.TempDir(), "default_params_a.json", map[string]any{
		"out_dim": 0,
		"q":       -1,
	})

	_, err := LoadParams(path)
	var errs ConfigErrors
	require.True(t, errors.As(err, &errs))
	assert.True(t, hasField(errs, "out_dim"))
	assert.True(t, hasField(errs, "q"))
}

func TestParams_FitOptions(t *testing.T) {
	opts, err := Params{}.FitOptions()
	require.NoError(t, err)
	assert.Zero(t, opts.CoreIndex)

	_, err = Params{"train": "fast"}.FitOptions()
	assert.ErrorIs(t, err, embedder.ErrInvalidParams)
}

func TestSchemaFor(t *testing.T) {
	assert.Equal(t, SchemaConfig, SchemaFor("scripts/cora/sample_config_1.json"))
	assert.Equal(t, SchemaConfig, SchemaFor("Config.yaml"))
	assert.Equal(t, SchemaParams, SchemaFor("scripts/cora/default_params_a.json"))
}

func TestConfigError_Format(t *testing.T) {
	e := &ConfigError{Path: "c.json", Field: "reps", Message: "must be positive"}
	assert.Equal(t, "c.json: reps: must be positive", e.Error())

	e = &ConfigError{Path: "c.json", Message: "parse: eof"}
	assert.Equal(t, "c.json: parse: eof", e.Error())

	errs := ConfigErrors{{Path: "a", Message: "x"}, {Path: "b", Message: "y"}}
	assert.Equal(t, "a: x; b: y", errs.Error())
	assert.True(t, IsConfigError(errs))
}
