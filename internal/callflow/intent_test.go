package callflow

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		lang, text string
		want       Intent
	}{
		{"en", "Goodbye", IntentGoodbye},
		{"en", "ok bye!", IntentGoodbye},
		{"en", "That’s all, thanks", IntentGoodbye},
		{"en", "What is the weather tomorrow?", IntentChat},
		{"en", "Remind me to call mom", IntentTask},
		{"en", "I want to leave a voice note", IntentVoiceNote},
		{"en", "maybe", IntentChat},
		{"en", "byebye", IntentChat},
		{"es", "Adiós", IntentGoodbye},
		{"es", "vale, hasta luego", IntentGoodbye},
		{"es", "¿Va a llover mañana?", IntentChat},
		{"es", "Recuérdame comprar pan", IntentTask},
		{"es", "quiero grabar una nota", IntentVoiceNote},
		{"fr", "goodbye", IntentGoodbye},
		{"en", "", IntentChat},
	}
	for _, c := range cases {
		if got := Classify(c.lang, c.text); got != c.want {
			t.Errorf("Classify(%q, %q) = %s, want %s", c.lang, c.text, got, c.want)
		}
	}
}

func TestClassifyUsesActiveLanguage(t *testing.T) {
	if got := Classify("es", "goodbye"); got != IntentChat {
		t.Fatalf("english phrase in a spanish call should be chat, got %s", got)
	}
}
