package orchestration

import (
	"fmt"
	"strings"
)

// Phrases are the fixed things the agent says on its own.
type Phrases struct {
	Greeting string
	Closing  string
	Apology  string
	Filler   string
	// Notification formats one notification from its app, sender and text.
	Notification string
	// ShutdownPhrases end the session when the user says any of them.
	ShutdownPhrases []string
}

var phrasesByLanguage = map[string]Phrases{
	"en": {
		Greeting:        "Hi, I'm listening.",
		Closing:         "Goodbye, talk to you soon.",
		Apology:         "Sorry, I couldn't get an answer right now. Please try again.",
		Filler:          "Okay.",
		Notification:    "New %s message from %s: %s",
		ShutdownPhrases: []string{"goodbye", "shut down", "stop listening"},
	},
	"es": {
		Greeting:        "Hola, te escucho.",
		Closing:         "Adiós, hasta pronto.",
		Apology:         "Lo siento, no pude obtener una respuesta. Inténtalo de nuevo.",
		Filler:          "De acuerdo.",
		Notification:    "Nuevo mensaje de %s de %s: %s",
		ShutdownPhrases: []string{"adiós", "apágate", "deja de escuchar"},
	},
	"de": {
		Greeting:        "Hallo, ich höre zu.",
		Closing:         "Tschüss, bis bald.",
		Apology:         "Entschuldigung, ich konnte gerade keine Antwort bekommen. Bitte versuche es noch einmal.",
		Filler:          "Okay.",
		Notification:    "Neue %s Nachricht von %s: %s",
		ShutdownPhrases: []string{"auf wiedersehen", "schalte dich aus", "hör auf zuzuhören"},
	},
}

// PhrasesFor returns the phrases for a BCP 47 language tag, falling back to
// English.
func PhrasesFor(language string) Phrases {
	base, _, _ := strings.Cut(strings.ToLower(language), "-")
	if phrases, ok := phrasesByLanguage[base]; ok {
		return phrases
	}
	return phrasesByLanguage["en"]
}

func (p Phrases) notification(n Notification) string {
	app := n.App
	if app == "" {
		app = "app"
	}
	sender := n.Sender
	if sender == "" {
		sender = app
	}
	return fmt.Sprintf(p.Notification, app, sender, n.Text)
}

func (p Phrases) isShutdown(transcript string) bool {
	transcript = strings.ToLower(transcript)
	for _, phrase := range p.ShutdownPhrases {
		if phrase = strings.ToLower(strings.TrimSpace(phrase)); phrase != "" && strings.Contains(transcript, phrase) {
			return true
		}
	}
	return false
}
