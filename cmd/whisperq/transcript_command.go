package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"whisperq/internal/config"
	"whisperq/internal/queue"
	"whisperq/internal/tasks"
	"whisperq/internal/transcript"
)

func newTranscriptCommand(ctx *commandContext) *cobra.Command {
	var formatFlag string
	var outputFlag string

	cmd := &cobra.Command{
		Use:   "transcript <id>",
		Short: "Fetch the transcript of a completed item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			format, err := transcript.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				item, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if item.Status != queue.StatusComplete {
					return fmt.Errorf("item %d is %s; transcripts exist only for completed items", id, item.Status)
				}
				if item.TaskID == "" {
					return fmt.Errorf("item %d has no task identifier", id)
				}

				task, err := tasks.NewClient(cfg).Get(cmd.Context(), item.TaskID)
				if err != nil {
					return err
				}
				rendered, err := transcript.Render(format, task.Result)
				if err != nil {
					return err
				}

				if outputFlag == "" {
					fmt.Fprint(cmd.OutOrStdout(), rendered)
					return nil
				}
				if err := os.WriteFile(outputFlag, []byte(rendered), 0o644); err != nil {
					return fmt.Errorf("write transcript: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s transcript to %s\n", format, outputFlag)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&formatFlag, "format", "f", "srt", "Output format: srt, vtt, txt, json")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}
