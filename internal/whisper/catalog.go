// Package whisper lists the transcription models the service accepts.
package whisper

import "strings"

// Model describes a whisper model choice for display and validation.
type Model struct {
	ID          string
	Label       string
	Description string
}

// DefaultModel favors accuracy over speed.
const DefaultModel = "large-v3"

var models = []Model{
	{"tiny", "Tiny", "39M params, ~1GB VRAM, fastest"},
	{"base", "Base", "74M params, ~1GB VRAM"},
	{"small", "Small", "244M params, ~2GB VRAM"},
	{"medium", "Medium", "769M params, ~5GB VRAM"},
	{"large-v3", "Large v3", "1.5B params, ~10GB VRAM, most accurate"},
	{"turbo", "Turbo", "809M params, ~6GB VRAM, fast + accurate"},
}

// Models returns the catalog in display order.
func Models() []Model {
	cp := make([]Model, len(models))
	copy(cp, models)
	return cp
}

// Lookup resolves a model identifier.
func Lookup(id string) (Model, bool) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	for _, model := range models {
		if model.ID == normalized {
			return model, true
		}
	}
	return Model{}, false
}

// IsValid reports whether the service accepts the model identifier.
func IsValid(id string) bool {
	_, ok := Lookup(id)
	return ok
}
