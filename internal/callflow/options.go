package callflow

import (
	"callbridge/internal/config"
)

// Callback paths the carrier posts to. Relative URLs resolve against the
// webhook that returned the document.
const (
	PathIncoming  = "/voice/incoming"
	PathPin       = "/voice/pin"
	PathMenu      = "/voice/menu"
	PathSpeech    = "/voice/speech"
	PathRecording = "/voice/recording"
	PathStream    = "/voice/stream"
)

// Options is the call-flow slice of the configuration.
type Options struct {
	PinLength        int
	Languages        []config.LanguageOption
	VoiceNote        config.VoiceNoteOption
	DefaultLanguage  string
	MenuTimeout      int
	SpeechTimeout    int
	MaxRecordSeconds int
	// StreamURL enables live transcription when non-empty.
	StreamURL string
	// TaskDestinationHint is stored on queued task entries.
	TaskDestinationHint string
}

func (o Options) withDefaults() Options {
	out := o
	if out.PinLength <= 0 {
		out.PinLength = 6
	}
	if len(out.Languages) == 0 {
		out.Languages = config.DefaultLanguages()
	}
	if out.DefaultLanguage == "" {
		out.DefaultLanguage = out.Languages[0].Code
	}
	if out.MenuTimeout <= 0 {
		out.MenuTimeout = 8
	}
	if out.SpeechTimeout <= 0 {
		out.SpeechTimeout = 6
	}
	if out.MaxRecordSeconds <= 0 {
		out.MaxRecordSeconds = 120
	}
	return out
}

// OptionsFromConfig builds Options. streaming reports whether a live
// transcription provider is wired.
func OptionsFromConfig(c config.Config, streaming bool) Options {
	o := Options{
		PinLength:           c.Security.PinLength,
		Languages:           c.Menu.Languages,
		VoiceNote:           c.Menu.VoiceNote,
		DefaultLanguage:     c.Menu.DefaultLanguage,
		MenuTimeout:         c.Menu.TimeoutSeconds,
		MaxRecordSeconds:    c.VoiceNotes.MaxDurationSeconds,
		TaskDestinationHint: c.Escalation.DestinationHint(),
	}
	if streaming {
		o.StreamURL = c.StreamURL()
	}
	return o
}

func (o Options) language(code string) (config.LanguageOption, bool) {
	for _, l := range o.Languages {
		if l.Code == code {
			return l, true
		}
	}
	return config.LanguageOption{}, false
}

func (o Options) languageByKey(key string) (config.LanguageOption, bool) {
	if key == "" {
		return config.LanguageOption{}, false
	}
	for _, l := range o.Languages {
		if l.Key == key {
			return l, true
		}
	}
	return config.LanguageOption{}, false
}
