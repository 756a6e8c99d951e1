package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pocketlm/internal/config"
)

// rootOptions carries the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	dataDir    string
	catalog    string
}

func buildRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "pocketlm",
		Short:         "On-device LLM runtime: model downloads, lifecycle and chat sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags -> Config
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", os.Getenv("POCKETLM_CONFIG"), "Config file (.yaml, .json or .toml)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error (default info)")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format: console|json (default console)")
	pf.StringVar(&opts.dataDir, "data-dir", "", "Directory holding the database and models (default ~/.pocketlm)")
	pf.StringVar(&opts.catalog, "catalog", "", "Model catalog file; the built-in catalog is used when empty")

	root.AddCommand(
		buildServeCmd(opts),
		buildModelsCmd(opts),
		buildDownloadCmd(opts),
		buildDeleteCmd(opts),
		buildSessionsCmd(opts),
	)
	return root
}

// resolveConfig layers defaults, the optional config file and flags.
func (o *rootOptions) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = o.dataDir
	}
	if flags.Changed("catalog") {
		cfg.CatalogPath = o.catalog
	}
	return cfg.WithDefaults()
}

// newLogger builds the process logger from the resolved config.
func newLogger(cfg config.Config, out io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	switch cfg.LogFormat {
	case "json":
	case "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}
