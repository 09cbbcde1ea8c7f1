package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"whisperq/internal/config"
	"whisperq/internal/language"
	"whisperq/internal/queue"
	"whisperq/internal/whisper"
)

// fallbackContentTypes covers media extensions the platform mime
// database frequently misses.
var fallbackContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var languageFlag string
	var modelFlag string

	cmd := &cobra.Command{
		Use:   "add <file> [file...]",
		Short: "Add media files to the transcription queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				for _, arg := range args {
					item, err := addFile(cmd, cfg, store, arg, languageFlag, modelFlag)
					if err != nil {
						return err
					}
					describeNewItem(cmd, item)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&languageFlag, "language", "l", "", "Audio language code (e.g. lv, ru, en)")
	cmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Whisper model to use")
	return cmd
}

func addFile(cmd *cobra.Command, cfg *config.Config, store *queue.Store, path, languageFlag, modelFlag string) (*queue.Item, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	fileName := filepath.Base(absPath)
	detected := language.DetectFromFilename(fileName)

	selected := strings.TrimSpace(languageFlag)
	if selected == "" {
		selected = detected
	}
	if selected == "" {
		selected = cfg.Defaults.Language
	}
	if selected != "" && !language.IsSupported(selected) {
		return nil, fmt.Errorf("unsupported language %q (see `whisperq languages`)", selected)
	}

	model := strings.TrimSpace(modelFlag)
	if model == "" {
		model = cfg.Defaults.Model
	}
	if !whisper.IsValid(model) {
		return nil, fmt.Errorf("unknown model %q (see `whisperq models`)", model)
	}

	return store.Add(cmd.Context(), queue.NewItem{
		SourcePath:       absPath,
		FileName:         fileName,
		SizeBytes:        info.Size(),
		ContentType:      contentTypeFor(fileName),
		DetectedLanguage: detected,
		SelectedLanguage: selected,
		SelectedModel:    model,
	})
}

func describeNewItem(cmd *cobra.Command, item *queue.Item) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Added #%d %s (%s)\n", item.ID, item.FileName, humanize.IBytes(uint64(item.SizeBytes)))
	if item.SelectedLanguage == "" {
		fmt.Fprintf(out, "  no language detected; set one with `whisperq set %d --language <code>`\n", item.ID)
		return
	}
	if item.DetectedLanguage == item.SelectedLanguage {
		fmt.Fprintf(out, "  language %s (detected from filename), model %s\n",
			language.Name(item.SelectedLanguage), item.SelectedModel)
		return
	}
	fmt.Fprintf(out, "  language %s, model %s\n", language.Name(item.SelectedLanguage), item.SelectedModel)
}

func contentTypeFor(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if contentType, ok := fallbackContentTypes[ext]; ok {
		return contentType
	}
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				statuses := make([]queue.Status, 0, len(statusFilters))
				for _, raw := range statusFilters {
					status, ok := queue.ParseStatus(raw)
					if !ok {
						return fmt.Errorf("unknown status %q", raw)
					}
					statuses = append(statuses, status)
				}

				items, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						item.DisplayTitle,
						humanize.IBytes(uint64(item.SizeBytes)),
						item.SelectedLanguage,
						item.SelectedModel,
						string(item.Status),
						describeProgress(item),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Title", "Size", "Lang", "Model", "Status", "Progress"},
					rows, 1, 3))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statusFilters, "status", nil, "Filter by status (repeatable)")
	return cmd
}

// describeProgress renders the progress column: transfer metrics while
// uploading, stage and percentage while processing, the error message
// for failed items.
func describeProgress(item *queue.Item) string {
	switch item.Status {
	case queue.StatusPending:
		if item.SelectedLanguage == "" {
			return "needs language"
		}
		return "ready"
	case queue.StatusUploading:
		parts := []string{fmt.Sprintf("%d%%", item.ProgressPercent)}
		if item.UploadSpeed != "" {
			parts = append(parts, item.UploadSpeed)
		}
		if item.UploadETA != "" {
			parts = append(parts, item.UploadETA)
		}
		return strings.Join(parts, "  ")
	case queue.StatusProcessing:
		return fmt.Sprintf("%s %d%%", stageLabel(item.ProgressStage), item.ProgressPercent)
	case queue.StatusError:
		return item.ErrorMessage
	default:
		return "done"
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(stats))
				total := 0
				for _, status := range queue.AllStatuses() {
					count := stats[status]
					total += count
					if count > 0 {
						rows = append(rows, []string{string(status), strconv.Itoa(count)})
					}
				}
				if total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				rows = append(rows, []string{"total", strconv.Itoa(total)})
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, 2))
				return nil
			})
		},
	}
}

func newSetCommand(ctx *commandContext) *cobra.Command {
	var languageFlag string
	var modelFlag string

	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Change language or model for a pending item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			if languageFlag == "" && modelFlag == "" {
				return fmt.Errorf("nothing to change: pass --language and/or --model")
			}
			if languageFlag != "" && !language.IsSupported(languageFlag) {
				return fmt.Errorf("unsupported language %q (see `whisperq languages`)", languageFlag)
			}
			if modelFlag != "" && !whisper.IsValid(modelFlag) {
				return fmt.Errorf("unknown model %q (see `whisperq models`)", modelFlag)
			}

			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				settings := queue.Settings{}
				if languageFlag != "" {
					settings.Language = &languageFlag
				}
				if modelFlag != "" {
					settings.Model = &modelFlag
				}
				item, err := store.UpdateSettings(cmd.Context(), id, settings)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated #%d: language %s, model %s\n",
					item.ID, valueOrDash(item.SelectedLanguage), item.SelectedModel)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&languageFlag, "language", "l", "", "Audio language code")
	cmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Whisper model")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a pending item from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				removed, err := store.Remove(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("item %d not removed: only pending items can be removed", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed #%d\n", id)
				return nil
			})
		},
	}
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	var finished bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear pending items (or finished items with --finished)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				var cleared int64
				var err error
				if finished {
					cleared, err = store.ClearTerminal(cmd.Context())
				} else {
					cleared, err = store.ClearPending(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d item(s)\n", cleared)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&finished, "finished", false, "Clear completed and failed items instead of pending ones")
	return cmd
}

func parseItemID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", raw)
	}
	return id, nil
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
