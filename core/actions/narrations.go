package actions

import (
	"fmt"
	"strings"
)

// Narrations is everything the router says, in one language. Unsupported,
// Failed and Missing are formats that take the task phrase of the action.
type Narrations struct {
	Unsupported string
	Failed      string
	Missing     string
	Panicked    string
	Tasks       map[string]string

	ScreenEmpty   string
	ScreenText    string
	MessageSent   string
	Clicked       string
	Typed         string
	Scrolled      string
	Going         string
	Opened        string
	SearchResults string
	OpeningPage   string
	Battery       string
	Charging      string
	NotCharging   string
	OpeningApp    string
	// Words translates scroll directions and navigation targets.
	Words map[string]string
}

var narrationsByLanguage = map[string]Narrations{
	"en": {
		Unsupported: "Sorry, I can't %s on this device.",
		Failed:      "Sorry, I couldn't %s.",
		Missing:     "Sorry, I need a bit more detail to %s.",
		Panicked:    "Sorry, something went wrong while I was doing that.",
		Tasks: map[string]string{
			ActionReadScreen:  "read the screen",
			ActionSendMessage: "send that message",
			ActionClick:       "click that",
			ActionTypeText:    "type that",
			ActionScroll:      "scroll",
			ActionNavigate:    "go there",
			ActionWebSearch:   "search the web",
			ActionOpenURL:     "open that page",
			ActionDeviceInfo:  "check the device",
			ActionLaunchApp:   "open that app",
		},
		ScreenEmpty:   "I don't see any text on the screen.",
		ScreenText:    "Here's what's on your screen: %s",
		MessageSent:   "Message sent to %s.",
		Clicked:       "Clicked %s.",
		Typed:         "Done, I typed that in.",
		Scrolled:      "Scrolled %s.",
		Going:         "Going %s.",
		Opened:        "Opened %s.",
		SearchResults: "Here are the results for %s.",
		OpeningPage:   "Opening the page.",
		Battery:       "Your battery is at %d percent and %s.",
		Charging:      "charging",
		NotCharging:   "not charging",
		OpeningApp:    "Opening %s.",
	},
	"es": {
		Unsupported: "Lo siento, no puedo %s en este dispositivo.",
		Failed:      "Lo siento, no pude %s.",
		Missing:     "Lo siento, necesito más detalles para %s.",
		Panicked:    "Lo siento, algo salió mal mientras lo hacía.",
		Tasks: map[string]string{
			ActionReadScreen:  "leer la pantalla",
			ActionSendMessage: "enviar ese mensaje",
			ActionClick:       "hacer clic ahí",
			ActionTypeText:    "escribir eso",
			ActionScroll:      "desplazarme",
			ActionNavigate:    "ir ahí",
			ActionWebSearch:   "buscar en la web",
			ActionOpenURL:     "abrir esa página",
			ActionDeviceInfo:  "revisar el dispositivo",
			ActionLaunchApp:   "abrir esa aplicación",
		},
		ScreenEmpty:   "No veo texto en la pantalla.",
		ScreenText:    "Esto es lo que hay en tu pantalla: %s",
		MessageSent:   "Mensaje enviado a %s.",
		Clicked:       "Hice clic en %s.",
		Typed:         "Listo, ya lo escribí.",
		Scrolled:      "Me desplacé hacia %s.",
		Going:         "Voy %s.",
		Opened:        "Abrí %s.",
		SearchResults: "Estos son los resultados de %s.",
		OpeningPage:   "Abriendo la página.",
		Battery:       "Tu batería está al %d por ciento y %s.",
		Charging:      "cargando",
		NotCharging:   "sin cargar",
		OpeningApp:    "Abriendo %s.",
		Words: map[string]string{
			"up":    "arriba",
			"down":  "abajo",
			"left":  "la izquierda",
			"right": "la derecha",
			"back":  "atrás",
			"home":  "al inicio",
		},
	},
	"de": {
		Unsupported: "Tut mir leid, auf diesem Gerät kann ich nicht %s.",
		Failed:      "Tut mir leid, ich konnte nicht %s.",
		Missing:     "Tut mir leid, mir fehlen Angaben, um %s zu können.",
		Panicked:    "Tut mir leid, dabei ist etwas schiefgelaufen.",
		Tasks: map[string]string{
			ActionReadScreen:  "den Bildschirm lesen",
			ActionSendMessage: "die Nachricht senden",
			ActionClick:       "dort klicken",
			ActionTypeText:    "das eintippen",
			ActionScroll:      "scrollen",
			ActionNavigate:    "dorthin wechseln",
			ActionWebSearch:   "im Web suchen",
			ActionOpenURL:     "die Seite öffnen",
			ActionDeviceInfo:  "das Gerät prüfen",
			ActionLaunchApp:   "die App öffnen",
		},
		ScreenEmpty:   "Ich sehe keinen Text auf dem Bildschirm.",
		ScreenText:    "Das steht auf deinem Bildschirm: %s",
		MessageSent:   "Nachricht an %s gesendet.",
		Clicked:       "%s angeklickt.",
		Typed:         "Erledigt, ich habe es eingetippt.",
		Scrolled:      "Nach %s gescrollt.",
		Going:         "Ich gehe %s.",
		Opened:        "%s geöffnet.",
		SearchResults: "Hier sind die Ergebnisse für %s.",
		OpeningPage:   "Ich öffne die Seite.",
		Battery:       "Dein Akku ist bei %d Prozent und %s.",
		Charging:      "lädt",
		NotCharging:   "lädt nicht",
		OpeningApp:    "Ich öffne %s.",
		Words: map[string]string{
			"up":    "oben",
			"down":  "unten",
			"left":  "links",
			"right": "rechts",
			"back":  "zurück",
			"home":  "zum Startbildschirm",
		},
	},
}

// NarrationsFor returns the narrations for a BCP-47 language tag, falling
// back to English.
func NarrationsFor(language string) Narrations {
	base, _, _ := strings.Cut(strings.ToLower(language), "-")
	if narrations, ok := narrationsByLanguage[base]; ok {
		return narrations
	}
	return narrationsByLanguage["en"]
}

func (n Narrations) task(action string) string {
	if task, ok := n.Tasks[action]; ok {
		return task
	}
	return action
}

func (n Narrations) word(word string) string {
	if translated, ok := n.Words[word]; ok {
		return translated
	}
	return word
}

func (n Narrations) unsupported(action string) Result {
	return Result{
		Narration: fmt.Sprintf(n.Unsupported, n.task(action)),
		Err:       fmt.Errorf("%w: %s", ErrMissingCollaborator, action),
	}
}

func (n Narrations) failed(action string, err error) Result {
	return Result{
		Narration: fmt.Sprintf(n.Failed, n.task(action)),
		Err:       err,
	}
}

func (n Narrations) missing(action string, parameter string) Result {
	return Result{
		Narration: fmt.Sprintf(n.Missing, n.task(action)),
		Err:       fmt.Errorf("%w: %s", ErrMissingParameter, parameter),
	}
}
