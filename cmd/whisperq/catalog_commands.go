package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"whisperq/internal/language"
	"whisperq/internal/whisper"
)

func newLanguagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "languages",
		Short:       "List supported audio languages",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0)
			for _, lang := range language.All() {
				rows = append(rows, []string{lang.Code, lang.Name, lang.NativeName})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Code", "Language", "Native"}, rows))
			return nil
		},
	}
}

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "models",
		Short:       "List available whisper models",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0)
			for _, model := range whisper.Models() {
				name := model.ID
				if model.ID == whisper.DefaultModel {
					name += " (default)"
				}
				rows = append(rows, []string{name, model.Label, model.Description})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Model", "Size", "Notes"}, rows))
			return nil
		},
	}
}
