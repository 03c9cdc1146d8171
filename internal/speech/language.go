package speech

import "strings"

// Whisper wants ISO-639-1 codes; an empty code lets it auto-detect.
var whisperLanguages = map[string]string{
	"en": "en",
	"es": "es",
	"fr": "fr",
	"de": "de",
	"it": "it",
	"pt": "pt",
	"ca": "ca",
}

// Whisper's verbose output names the detected language in English.
var whisperLanguageNames = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"catalan":    "ca",
}

// Deepgram wants region-qualified tags.
var deepgramLanguages = map[string]string{
	"en": "en-US",
	"es": "es-419",
	"fr": "fr-FR",
	"de": "de-DE",
	"it": "it-IT",
	"pt": "pt-BR",
	"ca": "ca-ES",
}

const (
	whisperDefaultLanguage  = ""
	deepgramDefaultLanguage = "en-US"
)

func baseCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	return code
}

// WhisperLanguage maps an internal code to Whisper's language parameter.
func WhisperLanguage(code string) string {
	if v, ok := whisperLanguages[baseCode(code)]; ok {
		return v
	}
	return whisperDefaultLanguage
}

// DeepgramLanguage maps an internal code to Deepgram's language parameter.
func DeepgramLanguage(code string) string {
	if v, ok := deepgramLanguages[baseCode(code)]; ok {
		return v
	}
	return deepgramDefaultLanguage
}

// internalLanguage maps a provider-reported language back to an internal code.
func internalLanguage(reported string) string {
	r := strings.ToLower(strings.TrimSpace(reported))
	if v, ok := whisperLanguageNames[r]; ok {
		return v
	}
	return baseCode(r)
}
