package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"whisperq/internal/queue"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

// stageLabels maps wire stage names to display text.
var stageLabels = map[string]string{
	"uploading":    "Uploading",
	"queued":       "Queued",
	"transcribing": "Transcribing",
	"aligning":     "Aligning",
	"diarizing":    "Identifying speakers",
	"complete":     "Complete",
}

func stageLabel(stage string) string {
	if label, ok := stageLabels[stage]; ok {
		return label
	}
	if stage == "" {
		return "Working"
	}
	return strings.ToUpper(stage[:1]) + stage[1:]
}

func statusColor(status queue.Status) string {
	switch status {
	case queue.StatusComplete:
		return ansiGreen
	case queue.StatusError:
		return ansiRed
	case queue.StatusUploading, queue.StatusProcessing:
		return ansiCyan
	default:
		return ansiYellow
	}
}

func colorize(text, color string, enabled bool) string {
	if !enabled || color == "" {
		return text
	}
	return color + text + ansiReset
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// progressLine renders one live progress update for the start command.
func progressLine(item *queue.Item, color bool) string {
	label := colorize(fmt.Sprintf("%-10s", item.Status), statusColor(item.Status), color)
	switch item.Status {
	case queue.StatusUploading:
		line := fmt.Sprintf("#%d %s %s %3d%%", item.ID, label, item.FileName, item.ProgressPercent)
		if item.UploadSpeed != "" {
			line += "  " + item.UploadSpeed
		}
		if item.UploadETA != "" {
			line += "  " + item.UploadETA
		}
		return line
	case queue.StatusProcessing:
		return fmt.Sprintf("#%d %s %s %3d%%  %s", item.ID, label, item.FileName, item.ProgressPercent, stageLabel(item.ProgressStage))
	case queue.StatusError:
		return fmt.Sprintf("#%d %s %s  %s", item.ID, label, item.FileName, item.ErrorMessage)
	default:
		return fmt.Sprintf("#%d %s %s", item.ID, label, item.FileName)
	}
}
