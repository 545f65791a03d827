package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/llamachat/kernel"
	"github.com/tailored-agentic-units/llamachat/observability"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := &options{}
	root := newRootCmd(opts)
	root.AddCommand(newConfigCmd(opts))

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "llamachat: %v\n", err)
		return kernel.ExitCode(err)
	}
	return kernel.ExitOK
}

func newRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "llamachat",
		Short: "Interactive chat with a local language model",
		Long: `llamachat holds a conversation with a language model served by an
inference engine. Type a message to get a reply, or a slash command
(/help lists them) to manage the context window.

Press Ctrl-C to stop a reply mid-generation, Ctrl-D to quit.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnv(opts)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config(cmd.Flags())
			if err != nil {
				return err
			}
			return chat(cmd.Context(), cfg)
		},
	}
	opts.bind(cmd.PersistentFlags())
	return cmd
}

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config(cmd.Flags())
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

// loadEnv reads .env files before configuration is resolved. A missing
// default .env is not an error; a missing file named with --env is.
func loadEnv(opts *options) error {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func chat(ctx context.Context, cfg *kernel.Config) error {
	if cfg.Verbose || cfg.Observer == "slog" {
		logger := observability.NewLogger(os.Stderr, cfg.Verbose)
		observability.RegisterObserver("slog", observability.NewSlogObserver(logger))
		cfg.Observer = "slog"
	}

	k, err := kernel.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer k.Close()

	return k.Run(ctx)
}
