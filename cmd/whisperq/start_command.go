package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"whisperq/internal/config"
	"whisperq/internal/controller"
	"whisperq/internal/logging"
	"whisperq/internal/queue"
	"whisperq/internal/tasks"
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start [id]",
		Short: "Process the queue, or start a specific item first",
		Long: "Uploads ready items one at a time and follows each task to completion.\n" +
			"With an id the chosen item starts first; the rest of the queue follows.\n" +
			"Send SIGHUP to force a progress reconnect after automatic attempts give up.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var itemID int64
			if len(args) == 1 {
				id, err := parseItemID(args[0])
				if err != nil {
					return err
				}
				itemID = id
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				return runStart(cmd, cfg, store, itemID)
			})
		},
	}
}

func runStart(cmd *cobra.Command, cfg *config.Config, store *queue.Store, itemID int64) error {
	lock := flock.New(cfg.LockFilePath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another whisperq run is already active (lock: %s)", cfg.LockFilePath())
	}
	defer func() {
		_ = lock.Unlock()
	}()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	color := shouldColorize(out)
	taskClient := tasks.NewClient(cfg, tasks.WithLogger(logger))
	ctrl := controller.New(cfg, store, taskClient,
		controller.WithLogger(logger),
		controller.WithNotify(func(item *queue.Item) {
			fmt.Fprintln(out, progressLine(item, color))
		}),
	)

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			logger.Info("manual reconnect requested")
			ctrl.ReconnectActive()
		}
	}()

	if itemID > 0 {
		err = ctrl.RunItem(runCtx, itemID)
	} else {
		err = ctrl.Run(runCtx)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Queue drained")
	return nil
}
