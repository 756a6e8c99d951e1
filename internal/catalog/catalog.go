// Package catalog holds the static model reference data loaded once at startup.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pocketlm/internal/common/fsutil"
	"pocketlm/internal/config"
	"pocketlm/pkg/types"
)

//go:embed default.yaml
var defaultCatalog []byte

// DefaultExtensions are the artifact extensions recognised by ScanDir.
var DefaultExtensions = []string{".gguf", ".task", ".bin"}

// Catalog is an immutable, name-indexed set of models.
type Catalog struct {
	models []types.Model
	byName map[string]int
}

type file struct {
	Models []types.Model `json:"models" yaml:"models" toml:"models"`
}

// New validates models and builds a catalog. Names must be unique and every
// model needs exactly one of URL or Path.
func New(models []types.Model) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]int, len(models))}
	for _, m := range models {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			return nil, errors.New("catalog: model without name")
		}
		if _, dup := c.byName[m.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate model name %q", m.Name)
		}
		if (m.URL == "") == (m.Path == "") {
			return nil, fmt.Errorf("catalog: model %q needs exactly one of url or path", m.Name)
		}
		if m.Extension == "" {
			m.Extension = filepath.Ext(m.URL + m.Path)
		}
		if m.Extension != "" && !strings.HasPrefix(m.Extension, ".") {
			m.Extension = "." + m.Extension
		}
		c.byName[m.Name] = len(c.models)
		c.models = append(c.models, m)
	}
	return c, nil
}

// Load reads a catalog file (.yaml, .json or .toml) with a top-level "models" list.
func Load(path string) (*Catalog, error) {
	var f file
	if err := config.Decode(path, &f); err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return New(f.Models)
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	var f file
	if err := config.Unmarshal(".yaml", defaultCatalog, &f); err != nil {
		return nil, fmt.Errorf("default catalog: %w", err)
	}
	return New(f.Models)
}

// With returns a new catalog containing c's models plus extra. Extra entries
// whose name already exists are skipped.
func (c *Catalog) With(extra []types.Model) (*Catalog, error) {
	all := c.List()
	for _, m := range extra {
		if _, ok := c.byName[m.Name]; ok {
			continue
		}
		all = append(all, m)
	}
	return New(all)
}

// Get looks up a model by name.
func (c *Catalog) Get(name string) (types.Model, bool) {
	i, ok := c.byName[name]
	if !ok {
		return types.Model{}, false
	}
	return c.models[i], true
}

// List returns a copy of the models in catalog order.
func (c *Catalog) List() []types.Model {
	out := make([]types.Model, len(c.models))
	copy(out, c.models)
	return out
}

// ScanDir discovers preinstalled model files in dir. The model name is the
// file name without extension; Path is the absolute file path.
func ScanDir(dir string, exts ...string) ([]types.Model, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !matchExt(ext, exts) {
			continue
		}
		var size int64
		if fi, err := e.Info(); err == nil {
			size = fi.Size()
		}
		models = append(models, types.Model{
			Name:      strings.TrimSuffix(name, filepath.Ext(name)),
			Backend:   "llama",
			Path:      filepath.Join(abs, name),
			SizeBytes: size,
			Extension: ext,
			Tags:      []string{"preinstalled"},
		})
	}
	return models, nil
}

func matchExt(ext string, exts []string) bool {
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
