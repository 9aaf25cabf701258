package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/scripthost/infrastructure/watcher"
)

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Serve configured modules and reload them on change",
		Long: `Load every configured module, run the watchdog and GC loops, and
reload modules whenever a script or native library under the scripts
directory changes. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := a.newRuntime(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.WithoutCancel(ctx)) }()

			if err := rt.ReloadScripts(ctx); err != nil {
				a.logger.ErrorContext(ctx, "initial load incomplete, waiting for changes", "error", err)
			}

			started := make(chan error, 1)
			go func() { started <- rt.Start(ctx) }()

			w := watcher.New(a.cfg.ScriptsDir, rt.ReloadScripts,
				watcher.WithLogger(a.logger),
				watcher.WithExtensions(a.cfg.ScriptExt, ".wasm"),
			)
			if err := w.Run(ctx); err != nil {
				return err
			}
			stop()
			return <-started
		},
	}
}
