package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/scripthost/application/config"
	"github.com/reglet-dev/scripthost/domain/entities"
	"github.com/reglet-dev/scripthost/host"
	hostlog "github.com/reglet-dev/scripthost/log"
)

// app carries the state shared by every command of one invocation.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    entities.RuntimeConfig
	logger *slog.Logger
	styles Styles
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the scripthost command tree.
func NewRootCommand() *cobra.Command {
	a := &app{styles: NewStyles(DefaultTheme)}

	root := &cobra.Command{
		Use:   "scripthost",
		Short: "Host and hot-reload game scripts",
		Long: `scripthost - load, cache and run script modules.

Configuration is read from a YAML or TOML file given with --config.
Values may reference the environment, e.g. "{{ .Env.GAME_ROOT }}/scripts".

Examples:
  # Compile every configured module into the cache
  scripthost -c host.yaml compile

  # Call a function once
  scripthost -c host.yaml run combat "int Attack(uint,uint)" 5 7

  # Serve and reload on change
  scripthost -c host.yaml watch`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (.yaml, .yml or .toml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newCompileCommand(a),
		newRunCommand(a),
		newWatchCommand(a),
		newConfigCommand(a),
	)
	return root
}

// init loads the configuration and builds the logger. Config subcommands
// that inspect a file of their own tolerate an invalid --config.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil && cmd.Annotations["config"] != "optional" {
		return err
	}
	if err != nil {
		cfg = entities.DefaultRuntimeConfig()
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	a.cfg = cfg

	handler, err := hostlog.NewHandler(cmd.ErrOrStderr(),
		hostlog.WithLevel(hostlog.ParseLevel(cfg.Log.Level, slog.LevelInfo)),
		hostlog.WithFormat(cfg.Log.Format),
	)
	if err != nil {
		return err
	}
	a.logger = slog.New(handler)
	return nil
}

func (a *app) newRuntime(ctx context.Context, opts ...entities.RuntimeOption) (*host.Runtime, error) {
	rt, err := host.New(ctx,
		host.WithLogger(a.logger),
		host.WithConfig(a.cfg),
		host.WithRuntimeOptions(opts...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start script host: %w", err)
	}
	return rt, nil
}
