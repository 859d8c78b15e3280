package experiment

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/roach88/kce/internal/embedder"
)

// Output file and directory names inside an experiment directory.
const (
	EmbeddingsDir     = "embeddings"
	ConfigsFile       = "configs.json"
	BaseMetricsFile   = "base_metrics.csv"
	TargetMetricsFile = "target_metrics.csv"
)

// Row is one line of a metrics file: embedder attributes and task scores
// for one repetition.
type Row map[string]any

// RepColumn is the first column of every metrics file.
const RepColumn = "rep"

// DirName builds "<graph>_<base>_<target>_<timestamp>_<tag>".
func DirName(cfg *Config, timestamp string) string {
	return fmt.Sprintf("%s_%s_%s_%s_%s",
		cfg.GraphName(), cfg.BaseEmbedder, cfg.TargetEmbedder, timestamp, cfg.Tag)
}

// maxDirSuffix bounds the numbered variants tried by createLayout.
const maxDirSuffix = 1000

// createLayout makes the experiment directory and its embeddings/ child and
// returns the directory's path. When base is taken, as happens when several
// runs of one config start within the same second, "_1", "_2", ... are
// appended until a free name is found.
func createLayout(base string) (string, error) {
	path := base
	for n := 1; ; n++ {
		err := os.Mkdir(path, 0o755)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) || n >= maxDirSuffix {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		path = fmt.Sprintf("%s_%d", base, n)
	}
	if err := os.Mkdir(filepath.Join(path, EmbeddingsDir), 0o755); err != nil {
		return "", fmt.Errorf("create embeddings directory: %w", err)
	}
	return path, nil
}

// configsDocument is the content of configs.json.
type configsDocument struct {
	RunID             string         `json:"run_id"`
	ConfigHash        string         `json:"config_hash"`
	Config            map[string]any `json:"config"`
	Params            map[string]any `json:"params"`
	SubEmbedderParams map[string]any `json:"sub_embedder_params"`
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeEmbedding dumps emb to embeddings/embeddings_<role>_<rep>.json.
func writeEmbedding(dir, role string, rep int, emb *embedder.Embedding) error {
	name := fmt.Sprintf("embeddings_%s_%d.json", role, rep)
	return writeJSON(filepath.Join(dir, EmbeddingsDir, name), emb)
}

// ReadEmbedding loads a dump written by a run.
func ReadEmbedding(path string) (*embedder.Embedding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var emb embedder.Embedding
	if err := json.Unmarshal(data, &emb); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if err := emb.Validate(); err != nil {
		return nil, err
	}
	return &emb, nil
}

// Columns returns "rep" followed by the sorted union of all other row keys.
func Columns(rows []Row) []string {
	seen := map[string]bool{RepColumn: true}
	var keys []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return append([]string{RepColumn}, keys...)
}

// WriteMetrics writes rows as CSV with a header. Missing cells are empty.
func WriteMetrics(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	w := csv.NewWriter(f)
	cols := Columns(rows)
	if err := w.Write(cols); err != nil {
		f.Close()
		return fmt.Errorf("write metrics: %w", err)
	}
	record := make([]string, len(cols))
	for _, r := range rows {
		for i, c := range cols {
			record[i] = formatCell(r[c])
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write metrics: %w", err)
	}
	return f.Close()
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// numeric returns v as a float64 when it is a number.
func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}
