// Package cli implements the greenpool command line.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/greenpool/internal/logging"
	"github.com/vnykmshr/greenpool/pkg/config"
)

// version is set at build time with -ldflags "-X ...cli.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	debug      bool
	logLevel   string
	logFormat  string

	stderr io.Writer
}

// NewRootCmd creates the root cobra command for the greenpool CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "greenpool",
		Short: "Cooperative task pool with timeouts, resizing and job revokes",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.debug {
				opts.logLevel = "debug"
			}
			opts.stderr = cmd.ErrOrStderr()
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to YAML config file")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format (text, json); overrides config")

	root.AddCommand(
		newRunCmd(opts),
		newRevokeCmd(opts),
		newVersionCmd(),
	)

	return root
}

// logger builds the logger from cfg, letting command-line flags win.
func (o *rootOptions) logger(cfg config.Config) *slog.Logger {
	level, format := cfg.Log.Level, cfg.Log.Format
	if o.logLevel != "" {
		level = o.logLevel
	}
	if o.logFormat != "" {
		format = o.logFormat
	}
	w := o.stderr
	if w == nil {
		w = io.Discard
	}
	return logging.NewLoggerWithWriter(logging.ParseLevel(level), format, w)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
