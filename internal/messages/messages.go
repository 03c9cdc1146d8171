// Package messages holds the spoken prompts for every supported language.
package messages

import "fmt"

type Key string

const (
	NotAuthorized    Key = "not_authorized"
	RateLimited      Key = "rate_limited"
	PinPrompt        Key = "pin_prompt"
	PinIncorrect     Key = "pin_incorrect"
	PinExhausted     Key = "pin_exhausted"
	MenuIntro        Key = "menu_intro"
	Welcome          Key = "welcome"
	ListenPrompt     Key = "listen_prompt"
	DidNotHear       Key = "did_not_hear"
	NoInput          Key = "no_input"
	Farewell         Key = "farewell"
	SessionError     Key = "session_error"
	GenericError     Key = "generic_error"
	VoiceNotePrompt  Key = "voice_note_prompt"
	VoiceNoteSaved   Key = "voice_note_saved"
	VoiceNotePending Key = "voice_note_pending"
	VoiceNoteFailed  Key = "voice_note_failed"
	TaskQueued       Key = "task_queued"
	TaskFailed       Key = "task_failed"
	DelayApology     Key = "delay_apology"
	FollowUp         Key = "follow_up"
	ReplyFailed      Key = "reply_failed"
)

// Fallback is used for any language without its own catalog.
const Fallback = "en"

var catalog = map[string]map[Key]string{
	"en": {
		NotAuthorized:    "Sorry, this number is not authorized to use this service. Goodbye.",
		RateLimited:      "Too many calls from this number. Please try again later. Goodbye.",
		PinPrompt:        "Please enter your %d digit PIN.",
		PinIncorrect:     "Incorrect PIN. You have %d attempts left. Please enter your %d digit PIN.",
		PinExhausted:     "Incorrect PIN. Too many attempts. Goodbye.",
		MenuIntro:        "Hello %s.",
		Welcome:          "Welcome. How can I help you?",
		ListenPrompt:     "Anything else?",
		DidNotHear:       "Sorry, I did not catch that.",
		NoInput:          "I did not hear anything. Goodbye.",
		Farewell:         "Goodbye, talk to you soon.",
		SessionError:     "Sorry, your session has expired. Please call again. Goodbye.",
		GenericError:     "Sorry, something went wrong. Goodbye.",
		VoiceNotePrompt:  "Record your voice note after the tone. Press the pound key when you are done.",
		VoiceNoteSaved:   "Your voice note has been saved and transcribed. Goodbye.",
		VoiceNotePending: "Your voice note has been saved. It will be transcribed later. Goodbye.",
		VoiceNoteFailed:  "Sorry, I could not save your voice note. Please try again later. Goodbye.",
		TaskQueued:       "Got it. I will work on that and get back to you.",
		TaskFailed:       "Sorry, I could not register that task right now.",
		DelayApology:     "Sorry for the wait.",
		FollowUp:         "This is taking longer than expected. I will send you the answer in a message shortly.",
		ReplyFailed:      "Sorry, I could not get an answer right now. Please try again.",
	},
	"es": {
		NotAuthorized:    "Lo siento, este número no está autorizado para usar este servicio. Adiós.",
		RateLimited:      "Demasiadas llamadas desde este número. Inténtelo más tarde. Adiós.",
		PinPrompt:        "Por favor, introduzca su PIN de %d dígitos.",
		PinIncorrect:     "PIN incorrecto. Le quedan %d intentos. Introduzca su PIN de %d dígitos.",
		PinExhausted:     "PIN incorrecto. Demasiados intentos. Adiós.",
		MenuIntro:        "Hola %s.",
		Welcome:          "Bienvenido. ¿En qué puedo ayudarle?",
		ListenPrompt:     "¿Algo más?",
		DidNotHear:       "Perdón, no le he entendido.",
		NoInput:          "No he escuchado nada. Adiós.",
		Farewell:         "Adiós, hasta pronto.",
		SessionError:     "Lo siento, su sesión ha caducado. Vuelva a llamar. Adiós.",
		GenericError:     "Lo siento, algo ha fallado. Adiós.",
		VoiceNotePrompt:  "Grabe su nota de voz después del tono. Pulse la tecla almohadilla al terminar.",
		VoiceNoteSaved:   "Su nota de voz se ha guardado y transcrito. Adiós.",
		VoiceNotePending: "Su nota de voz se ha guardado. Se transcribirá más tarde. Adiós.",
		VoiceNoteFailed:  "Lo siento, no he podido guardar su nota de voz. Inténtelo más tarde. Adiós.",
		TaskQueued:       "Entendido. Me pongo con ello y le respondo.",
		TaskFailed:       "Lo siento, no he podido registrar esa tarea ahora.",
		DelayApology:     "Perdón por la espera.",
		FollowUp:         "Esto está tardando más de lo previsto. Le enviaré la respuesta en un mensaje en breve.",
		ReplyFailed:      "Lo siento, no he podido obtener una respuesta ahora. Inténtelo de nuevo.",
	},
}

// Text returns the prompt for key in lang, formatted with args.
func Text(lang string, key Key, args ...any) string {
	tmpl, ok := catalog[lang][key]
	if !ok {
		tmpl = catalog[Fallback][key]
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

// Supported reports whether lang has its own catalog.
func Supported(lang string) bool {
	_, ok := catalog[lang]
	return ok
}
