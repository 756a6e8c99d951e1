package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"pocketlm/internal/common/fsutil"
)

// Defaults applied by WithDefaults when corresponding fields are unset.
const (
	DefaultAddr             = "127.0.0.1:8080"
	DefaultDataDir          = "~/.pocketlm"
	DefaultProgressInterval = 500 * time.Millisecond
	DefaultMaxTokens        = 512
	DefaultTopK             = 40
	DefaultTemperature      = 0.8
	DefaultLogLevel         = "info"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	Addr        string `json:"addr" yaml:"addr" toml:"addr"`
	DataDir     string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	DBPath      string `json:"db_path" yaml:"db_path" toml:"db_path"`
	ModelsDir   string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	CatalogPath string `json:"catalog_path" yaml:"catalog_path" toml:"catalog_path"`
	// Optional directory scanned for preinstalled model files.
	PreinstalledDir string `json:"preinstalled_dir" yaml:"preinstalled_dir" toml:"preinstalled_dir"`
	// Minimum wall time between two progress samples of a download.
	ProgressIntervalMs int `json:"progress_interval_ms" yaml:"progress_interval_ms" toml:"progress_interval_ms"`

	Inference Inference `json:"inference" yaml:"inference" toml:"inference"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"` // console|json

	CORSEnabled bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Inference carries the options passed to the inference engine when a model is loaded.
type Inference struct {
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	TopK        int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	Temperature float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	RandomSeed  int     `json:"random_seed" yaml:"random_seed" toml:"random_seed"`
	// llama.cpp specific
	ContextSize int `json:"context_size" yaml:"context_size" toml:"context_size"`
	Threads     int `json:"threads" yaml:"threads" toml:"threads"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	if err := Decode(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode reads path and unmarshals it into out using the decoder for its extension.
func Decode(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return Unmarshal(filepath.Ext(path), b, out)
}

// Unmarshal decodes b into out according to ext (".yaml", ".yml", ".json", ".toml").
func Unmarshal(ext string, b []byte, out any) error {
	switch ext = strings.ToLower(ext); ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, out)
	case ".json":
		return json.Unmarshal(b, out)
	case ".toml":
		return toml.Unmarshal(b, out)
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
}

// WithDefaults fills unset fields and expands '~' in paths.
func (c Config) WithDefaults() (Config, error) {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	dataDir, err := fsutil.ExpandHome(c.DataDir)
	if err != nil {
		return c, err
	}
	c.DataDir = dataDir
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "pocketlm.db")
	}
	if c.ModelsDir == "" {
		c.ModelsDir = filepath.Join(c.DataDir, "models")
	}
	for _, p := range []*string{&c.DBPath, &c.ModelsDir, &c.CatalogPath, &c.PreinstalledDir} {
		if *p, err = fsutil.ExpandHome(*p); err != nil {
			return c, err
		}
	}
	if c.ProgressIntervalMs <= 0 {
		c.ProgressIntervalMs = int(DefaultProgressInterval / time.Millisecond)
	}
	if c.Inference.MaxTokens <= 0 {
		c.Inference.MaxTokens = DefaultMaxTokens
	}
	if c.Inference.TopK <= 0 {
		c.Inference.TopK = DefaultTopK
	}
	if c.Inference.Temperature <= 0 {
		c.Inference.Temperature = DefaultTemperature
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	return c, nil
}

// ProgressInterval returns the configured sampling interval as a duration.
func (c Config) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMs) * time.Millisecond
}
