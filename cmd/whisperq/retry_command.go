package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"whisperq/internal/config"
	"whisperq/internal/controller"
	"whisperq/internal/queue"
	"whisperq/internal/tasks"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Queue a failed item for another attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				ctrl := controller.New(cfg, store, tasks.NewClient(cfg))
				item, err := ctrl.Retry(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d %s is pending again; run `whisperq start` to process it\n",
					item.ID, item.FileName)
				return nil
			})
		},
	}
}
