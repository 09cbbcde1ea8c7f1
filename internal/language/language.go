package language

import (
	"regexp"
	"strings"
)

// Language describes a selectable transcription language.
type Language struct {
	Code       string // ISO 639-1
	Name       string
	NativeName string
}

// Core languages are pinned at the top of selection lists.
var core = []Language{
	{"lv", "Latvian", "Latviešu"},
	{"ru", "Russian", "Русский"},
	{"en", "English", "English"},
}

var other = []Language{
	{"de", "German", "Deutsch"},
	{"fr", "French", "Français"},
	{"es", "Spanish", "Español"},
	{"it", "Italian", "Italiano"},
	{"pt", "Portuguese", "Português"},
	{"nl", "Dutch", "Nederlands"},
	{"pl", "Polish", "Polski"},
	{"ja", "Japanese", "日本語"},
	{"ko", "Korean", "한국어"},
	{"zh", "Chinese", "中文"},
	{"ar", "Arabic", "العربية"},
	{"hi", "Hindi", "हिन्दी"},
	{"tr", "Turkish", "Türkçe"},
}

var byCode = func() map[string]Language {
	index := make(map[string]Language, len(core)+len(other))
	for _, lang := range append(append([]Language{}, core...), other...) {
		index[lang.Code] = lang
	}
	return index
}()

// All returns the supported languages, core set first.
func All() []Language {
	out := make([]Language, 0, len(core)+len(other))
	out = append(out, core...)
	out = append(out, other...)
	return out
}

// Lookup resolves a language code to its definition.
func Lookup(code string) (Language, bool) {
	lang, ok := byCode[strings.ToLower(strings.TrimSpace(code))]
	return lang, ok
}

// IsSupported reports whether a language code can be transcribed.
func IsSupported(code string) bool {
	_, ok := Lookup(code)
	return ok
}

// Name returns the display name for a code, or the code itself when unknown.
func Name(code string) string {
	if lang, ok := Lookup(code); ok {
		return lang.Name
	}
	return code
}

// Audio track naming convention used by the recording workflow:
// A03 carries Latvian, A04 Russian, A05 English.
var trackPattern = regexp.MustCompile(`(?i)A0[345]`)

var trackLanguages = map[string]string{
	"A03": "lv",
	"A04": "ru",
	"A05": "en",
}

// DetectFromFilename infers the language from a track marker anywhere in
// the filename. Returns "" when no marker is present.
func DetectFromFilename(filename string) string {
	match := trackPattern.FindString(filename)
	if match == "" {
		return ""
	}
	return trackLanguages[strings.ToUpper(match)]
}
