package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tap-jotform/internal/pipeline"
	"github.com/ajitpratap0/tap-jotform/pkg/config"
	"github.com/ajitpratap0/tap-jotform/pkg/connector/core"
	"github.com/ajitpratap0/tap-jotform/pkg/connector/registry"
	"github.com/ajitpratap0/tap-jotform/pkg/connector/sources/jotform"
	"github.com/ajitpratap0/tap-jotform/pkg/errors"
	"github.com/ajitpratap0/tap-jotform/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "tap-jotform",
		Short: "Singer tap for the Jotform API",
		Long: `tap-jotform extracts forms, questions, submissions, reports, user history
and folders from the Jotform REST API and writes them as Singer messages.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Path to the JSON or YAML configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides log_level in the config")

	root.AddCommand(
		newVersionCmd(),
		newStreamsCmd(opts),
		newDiscoverCmd(opts),
		newSyncCmd(opts),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tap-jotform v%s\n", config.Version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newStreamsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "streams",
		Short: "List available streams",
		RunE: func(cmd *cobra.Command, _ []string) error {
			streams, err := opts.streams()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available Streams:")
			for _, s := range streams {
				line := fmt.Sprintf("  - %s (keys: %s", s.Name, strings.Join(s.PrimaryKeys, ", "))
				if s.IsIncremental() {
					line += ", replication key: " + s.ReplicationKey
				}
				if s.IsChild() {
					line += ", parent: " + s.Parent
				}
				if s.Deprecated {
					line += ", deprecated"
				}
				fmt.Fprintln(out, line+")")
			}
			return nil
		},
	}
}

func newDiscoverCmd(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Print the catalog of available streams",
		Long: `Print the catalog of available streams with every stream selected.
Edit "selected" in the stream metadata and pass the file to sync --catalog
to choose which streams are extracted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			streams, err := opts.streams()
			if err != nil {
				return err
			}
			catalog := pipeline.BuildCatalog(streams)
			switch format {
			case "json":
				return catalog.WriteJSON(cmd.OutOrStdout())
			case "yaml", "yml":
				return catalog.WriteYAML(cmd.OutOrStdout())
			default:
				return errors.Newf(errors.ErrorTypeConfig, "unknown catalog format %q, want json or yaml", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Catalog format (json, yaml)")
	return cmd
}

// loadConfig reads the config file, or the environment alone when no file
// is given.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "configuration error")
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

// streams lists the streams the configured source offers. Without a config
// file every stream is listed.
func (o *rootOptions) streams() ([]*core.Stream, error) {
	if o.configFile == "" {
		return jotform.Streams(true), nil
	}
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return jotform.Streams(cfg.IncludeDeprecatedStreams), nil
}

// initLogger installs the global logger on stderr.
func initLogger(level string) (*zap.Logger, error) {
	if err := logger.Init(logger.Config{Level: level, Encoding: "json", OutputPaths: []string{"stderr"}}); err != nil {
		return nil, err
	}
	if level != "" {
		if err := logger.SetLevel(level); err != nil {
			return nil, err
		}
	}
	return logger.Get(), nil
}

func sourceNames() string {
	return strings.Join(registry.ListSources(), ", ")
}
