package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/blockforge/internal/app"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild whenever an entry, block or the config changes",
	Long: `Watch runs a build, then polls every file the last build depended on
and rebuilds when one of them changes.

Examples:
  blockforge watch
  blockforge watch --config blockforge.toml`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	bf, err := app.New(cfg, app.WithLogger(newLogger(cmd.ErrOrStderr())))
	if err != nil {
		return err
	}
	defer bf.Close()

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "\nStopping watch mode...")
			cancel()
		case <-ctx.Done():
		}
	}()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", styles.Title.Render("Watching "+cfg.Name))
	if err := bf.Watch(ctx, cmd.OutOrStdout()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
