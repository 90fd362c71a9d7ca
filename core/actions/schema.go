package actions

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
)

// directiveSchema documents the directive format for the reasoning backend.
// Only the fields relevant to the chosen action need to be present.
type directiveSchema struct {
	Action      string `json:"action" jsonschema:"required,enum=read_screen,enum=send_message,enum=click,enum=type_text,enum=scroll,enum=navigate,enum=web_search,enum=open_url,enum=device_info,enum=launch_app,description=The action to perform"`
	Type        string `json:"type,omitempty" jsonschema:"enum=battery,enum=summary,description=device_info only: what to report"`
	To          string `json:"to,omitempty" jsonschema:"description=send_message only: the recipient"`
	Text        string `json:"text,omitempty" jsonschema:"description=send_message and type_text: the text to send or type"`
	Label       string `json:"label,omitempty" jsonschema:"description=click only: the visible label of the element"`
	Direction   string `json:"direction,omitempty" jsonschema:"enum=up,enum=down,enum=left,enum=right,description=scroll only"`
	Destination string `json:"destination,omitempty" jsonschema:"description=navigate only: a screen name or back or home"`
	Query       string `json:"query,omitempty" jsonschema:"description=web_search only: the search query"`
	URL         string `json:"url,omitempty" jsonschema:"description=open_url only: an absolute URL"`
	Name        string `json:"name,omitempty" jsonschema:"description=launch_app only: the application name"`
}

var (
	schemaOnce   sync.Once
	schemaPrompt string
)

// SchemaPrompt describes the directive format so that a reasoning backend can
// embed directives in its replies.
func SchemaPrompt() string {
	schemaOnce.Do(func() {
		reflector := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
		schema := reflector.Reflect(&directiveSchema{})
		schema.Version = ""
		schema.Title = "ActionDirective"

		encoded, err := json.Marshal(schema)
		if err != nil {
			logger.Error("failed to encode directive schema", "error", err)
			encoded = []byte(`{"type":"object","properties":{"action":{"type":"string"}},"required":["action"]}`)
		}

		schemaPrompt = fmt.Sprintf("When the user asks you to do something on their device, include exactly one JSON object "+
			"matching this schema in your reply, next to a short spoken sentence: %s. "+
			`For example: {"action":"device_info","type":"battery"}. `+
			"Never read the JSON aloud and do not include it when no action is needed.", encoded)
	})
	return schemaPrompt
}
