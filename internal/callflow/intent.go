package callflow

import (
	"strings"
	"unicode"
)

// Intent is the class of a caller utterance in conversation.
type Intent string

const (
	IntentChat      Intent = "CHAT"
	IntentTask      Intent = "TASK"
	IntentVoiceNote Intent = "VOICE_NOTE"
	IntentGoodbye   Intent = "GOODBYE"
)

type phrases struct {
	voiceNote []string
	task      []string
	goodbye   []string
}

var intentPhrases = map[string]phrases{
	"en": {
		voiceNote: []string{"voice note", "leave a note", "record a note", "record a message", "leave a message"},
		task:      []string{"remind me", "add a task", "create a task", "new task", "add to my list", "make a note to", "follow up on", "send me"},
		goodbye:   []string{"goodbye", "good bye", "bye", "hang up", "that's all", "that is all", "see you"},
	},
	"es": {
		voiceNote: []string{"nota de voz", "grabar una nota", "dejar una nota", "dejar un mensaje", "grabar un mensaje"},
		task:      []string{"recuérdame", "recuerdame", "añade una tarea", "crea una tarea", "nueva tarea", "apunta", "envíame", "enviame"},
		goodbye:   []string{"adiós", "adios", "hasta luego", "hasta pronto", "cuelga", "eso es todo", "chao"},
	},
}

// Classify assigns an intent to text using the phrase list of lang, falling
// back to English. Voice note wins over task, which wins over goodbye; anything
// else is chat.
func Classify(lang, text string) Intent {
	norm := normalize(text)
	if norm == "" {
		return IntentChat
	}
	p, ok := intentPhrases[lang]
	if !ok {
		p = intentPhrases["en"]
	}
	switch {
	case containsAny(norm, p.voiceNote):
		return IntentVoiceNote
	case containsAny(norm, p.task):
		return IntentTask
	case containsAny(norm, p.goodbye):
		return IntentGoodbye
	}
	return IntentChat
}

// normalize lowercases text, turns punctuation into spaces and pads the
// result so phrases match on word boundaries.
func normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '\'':
			b.WriteRune(r)
		case r == '’':
			b.WriteRune('\'')
		default:
			b.WriteRune(' ')
		}
	}
	f := strings.Fields(b.String())
	if len(f) == 0 {
		return ""
	}
	return " " + strings.Join(f, " ") + " "
}

func containsAny(norm string, list []string) bool {
	for _, p := range list {
		if strings.Contains(norm, " "+p+" ") {
			return true
		}
	}
	return false
}
