package experiment

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/kce/internal/embedder"
	"github.com/roach88/kce/internal/registry"
)

//go:embed schema.cue
var schemaCUE string

// Schema names a definition in the embedded schema.
type Schema string

const (
	SchemaConfig Schema = "#Config"
	SchemaParams Schema = "#Params"
)

// DefaultTag is used when a config has no tag.
const DefaultTag = "0"

// Config selects the graph, the embedders and the output location of one
// experiment.
type Config struct {
	InputPath      string `json:"input_path"`
	OutputDir      string `json:"output_dir"`
	Reps           int    `json:"reps"`
	BaseEmbedder   string `json:"base_embedder"`
	TargetEmbedder string `json:"target_embedder"`
	SubEmbedder    string `json:"sub_embedder,omitempty"`
	LinkPred       bool   `json:"link_pred"`
	Tag            string `json:"tag,omitempty"`
	Seed           uint64 `json:"seed,omitempty"`
	Workers        int    `json:"workers,omitempty"`

	// Raw is the document as read, used for configs.json and fingerprints.
	Raw map[string]any `json:"-"`
}

// GraphName is the input file name up to its first dot.
func (c *Config) GraphName() string {
	name, _, _ := strings.Cut(filepath.Base(c.InputPath), ".")
	return name
}

// Params is a free-form hyperparameter object.
type Params map[string]any

// FitOptions extracts the "train" object. Only core_index is recognised.
func (p Params) FitOptions() (embedder.FitOptions, error) {
	var opts embedder.FitOptions
	train, ok := p["train"]
	if !ok || train == nil {
		return opts, nil
	}
	m, ok := train.(map[string]any)
	if !ok {
		return opts, fmt.Errorf("%w: train must be an object, got %T", embedder.ErrInvalidParams, train)
	}
	if err := embedder.DecodeParams(m, &opts); err != nil {
		return opts, err
	}
	return opts, nil
}

// Hyper returns the parameters without the "train" object.
func (p Params) Hyper() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		if k != "train" {
			out[k] = v
		}
	}
	return out
}

// ConfigError describes one invalid field of a config or params file.
type ConfigError struct {
	Path    string
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Field, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
}

// ConfigErrors collects every problem found in a file.
type ConfigErrors []*ConfigError

func (errs ConfigErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap lets errors.As reach the individual errors.
func (errs ConfigErrors) Unwrap() []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}

// ReadDocument reads a JSON object, or a YAML mapping when the file ends in
// .yaml or .yml.
func ReadDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, &ConfigError{Path: path, Message: fmt.Sprintf("parse: %v", err)}
	}
	if doc == nil {
		return nil, &ConfigError{Path: path, Message: "document is empty or not an object"}
	}
	return doc, nil
}

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaVal  cue.Value
	schemaErr  error

	// cue.Context is not safe for concurrent use.
	schemaMu sync.Mutex
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		schemaVal = schemaCtx.CompileString(schemaCUE, cue.Filename("schema.cue"))
		schemaErr = schemaVal.Err()
	})
	return schemaCtx, schemaVal, schemaErr
}

// Validate checks doc against a schema definition and returns every
// violation. path only labels the errors.
func Validate(path string, doc map[string]any, schema Schema) ConfigErrors {
	schemaMu.Lock()
	defer schemaMu.Unlock()
	ctx, root, err := loadSchema()
	if err != nil {
		return ConfigErrors{{Path: path, Message: fmt.Sprintf("schema: %v", err)}}
	}
	// A JSON round trip turns integral float64s back into CUE ints.
	data, err := json.Marshal(doc)
	if err != nil {
		return ConfigErrors{{Path: path, Message: err.Error()}}
	}
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return ConfigErrors{{Path: path, Message: err.Error()}}
	}

	unified := root.LookupPath(cue.ParsePath(string(schema))).Unify(v)
	err = unified.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}
	var out ConfigErrors
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		out = append(out, &ConfigError{
			Path:    path,
			Field:   strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}
	return out
}

// LoadConfig reads and validates an experiment config.
func LoadConfig(path string) (*Config, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}
	if errs := Validate(path, doc, SchemaConfig); len(errs) > 0 {
		return nil, errs
	}

	cfg := &Config{Raw: doc}
	if err := embedder.DecodeParams(doc, cfg); err != nil {
		return nil, &ConfigError{Path: path, Message: err.Error()}
	}
	if cfg.Tag == "" {
		cfg.Tag = DefaultTag
	}
	if errs := cfg.check(path); len(errs) > 0 {
		return nil, errs
	}
	return cfg, nil
}

// check covers what the schema cannot: cross-field rules and the
// filesystem.
func (c *Config) check(path string) ConfigErrors {
	var errs ConfigErrors
	base, _ := registry.Parse(c.BaseEmbedder)
	target, _ := registry.Parse(c.TargetEmbedder)
	if (base.IsFramework() || target.IsFramework()) && c.SubEmbedder == "" {
		errs = append(errs, &ConfigError{Path: path, Field: "sub_embedder",
			Message: "required when base_embedder or target_embedder is a framework"})
	}
	if info, err := os.Stat(c.InputPath); err != nil || info.IsDir() {
		errs = append(errs, &ConfigError{Path: path, Field: "input_path",
			Message: fmt.Sprintf("not a readable file: %s", c.InputPath)})
	}
	if info, err := os.Stat(c.OutputDir); err != nil || !info.IsDir() {
		errs = append(errs, &ConfigError{Path: path, Field: "output_dir",
			Message: fmt.Sprintf("not an existing directory: %s", c.OutputDir)})
	}
	return errs
}

// LoadParams reads and validates an embedder parameter file.
func LoadParams(path string) (Params, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}
	if errs := Validate(path, doc, SchemaParams); len(errs) > 0 {
		return nil, errs
	}
	return Params(doc), nil
}

// SchemaFor guesses the schema of a file from its name: names containing
// "config" are configs, everything else is params.
func SchemaFor(path string) Schema {
	if strings.Contains(strings.ToLower(filepath.Base(path)), "config") {
		return SchemaConfig
	}
	return SchemaParams
}

// IsConfigError reports whether err came from invalid input files.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
