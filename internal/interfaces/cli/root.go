// Package cli is the bizatlas command tree: the API server, the change-feed
// worker, schema migrations, an offline filter runner and one-shot agent
// invocations.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/BizAtlas/internal/config"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	Timeout      time.Duration
}

// CLIContext carries the global options and the CLI logger through the
// command tree.  Configuration is loaded on demand because the offline
// commands run without a database.
type CLIContext struct {
	Options      *RootOptions
	Logger       logging.Logger
	OutputFormat string

	loadConfig func(path string) (*config.Config, error)
}

// Config loads the configuration named by --config, or from BIZATLAS_*
// variables when no file is given.
func (c *CLIContext) Config() (*config.Config, error) {
	load := c.loadConfig
	if load == nil {
		load = config.LoadOrEnv
	}
	cfg, err := load(c.Options.ConfigPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "failed to load configuration")
	}
	return cfg, nil
}

// ConfigOrDefaults is Config for commands that can run on defaults alone.
func (c *CLIContext) ConfigOrDefaults() (*config.Config, error) {
	if c.Options.ConfigPath == "" {
		cfg := &config.Config{}
		config.ApplyDefaults(cfg)
		return cfg, nil
	}
	return c.Config()
}

// NewRootCommand creates the root command with its global flags and every
// subcommand.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bizatlas",
		Short: "BizAtlas map filtering and AI agent service",
		Long: "BizAtlas serves filtered, clustered company markers to interactive map\n" +
			"clients and proxies AI agents that analyse company records.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: BIZATLAS_* environment)")
	pf.StringVar(&opts.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json, table)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose output")
	pf.DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "timeout for one-shot commands")

	cmd.AddCommand(
		NewServeCmd(),
		NewWorkerCmd(),
		NewMigrateCmd(),
		NewFilterCmd(),
		NewAgentCmd(),
		NewVersionCmd(),
	)
	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	switch strings.ToLower(opts.OutputFormat) {
	case "text", "json", "table", "geojson":
	default:
		return errors.Newf(errors.ErrCodeBadRequest, "unknown output format %q", opts.OutputFormat)
	}

	logger, err := initLogger(opts)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, &CLIContext{
		Options:      opts,
		Logger:       logger,
		OutputFormat: strings.ToLower(opts.OutputFormat),
	}))
	return nil
}

// initLogger creates a console logger on stderr so stdout stays parseable.
func initLogger(opts *RootOptions) (logging.Logger, error) {
	level := strings.ToLower(opts.LogLevel)
	if opts.Verbose {
		level = "debug"
	}
	return logging.NewLogger(logging.Config{
		Level:            level,
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// serviceLogger builds the long-running process logger from the log section.
func serviceLogger(cfg *config.Config) (logging.Logger, error) {
	return logging.NewLogger(logging.Config{
		Level:        cfg.Log.Level,
		Format:       cfg.Log.Format,
		OutputPaths:  outputPaths(cfg.Log.Output),
		EnableCaller: cfg.Log.EnableCaller,
	})
}

func outputPaths(output string) []string {
	if output == "" {
		return nil
	}
	return []string{output}
}

// GetCLIContext extracts the CLIContext stored by the root command.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "CLIContext not found in command context")
	}
	return cliCtx, nil
}

// Execute is the main entry point for the CLI application.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// NewVersionCmd prints build information.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return PrintResult(cmd, versionInfo{Version: Version, Commit: GitCommit, BuildDate: BuildDate})
		},
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

func (v versionInfo) String() string {
	return fmt.Sprintf("bizatlas %s (commit: %s, built: %s)", v.Version, v.Commit, v.BuildDate)
}

//Personal.AI order the ending
