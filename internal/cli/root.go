// internal/cli/root.go

// Package cli is the bookrec command line. Desk commands run against the
// store in process, or against a running server when an API URL is given.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"bookrec/internal/config"
	"bookrec/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	API        string
	Format     string // "json" | "text"
	Verbose    bool

	cfg *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the bookrec CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bookrec",
		Short: "Library lending, fines and recommendations",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.load()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.API, "api", "", "base URL of a running server; overrides client.base_url")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewAddBookCommand(opts))
	cmd.AddCommand(NewBooksCommand(opts))
	cmd.AddCommand(NewIssueCommand(opts))
	cmd.AddCommand(NewReturnCommand(opts))
	cmd.AddCommand(NewLoansCommand(opts))
	cmd.AddCommand(NewFinesCommand(opts))
	cmd.AddCommand(NewRecommendCommand(opts))

	return cmd
}

func (o *RootOptions) load() error {
	if o.ConfigPath != "" {
		if err := os.Setenv(config.ConfigPathEnvVar, o.ConfigPath); err != nil {
			return err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.API != "" {
		cfg.Client.BaseURL = o.API
	}

	level := cfg.Logging.Level
	if o.Verbose {
		level = "debug"
	}
	logging.Init(logging.Config{Level: level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})

	o.cfg = cfg
	return nil
}

// emit prints v as JSON, or runs text for the human format.
func (o *RootOptions) emit(w io.Writer, v interface{}, text func(w io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
