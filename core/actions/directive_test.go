package actions

import (
	"strings"
	"testing"
)

func TestTryParseFindsDirectiveInProse(t *testing.T) {
	reply := `Let me check that for you. {"action": "device_info", "type": "battery"} One moment.`

	directive, span, ok := TryParse(reply)
	if !ok {
		t.Fatalf("expected a directive to be found")
	}
	if directive.Type != ActionDeviceInfo || directive.Parameters["type"] != "battery" {
		t.Fatalf("unexpected directive %+v", directive)
	}
	if got := reply[span.Start:span.End]; got != `{"action": "device_info", "type": "battery"}` {
		t.Fatalf("unexpected span text %q", got)
	}
	if got := Strip(reply, span); got != "Let me check that for you. One moment." {
		t.Fatalf("unexpected stripped text %q", got)
	}
}

func TestTryParseSkipsNonDirectiveObjects(t *testing.T) {
	reply := `Sets look like {a, b}. Config {"name": "x"} is not it {"action":"launch_app","name":"Spotify"}`

	directive, span, ok := TryParse(reply)
	if !ok {
		t.Fatalf("expected a directive to be found")
	}
	if directive.Type != ActionLaunchApp || directive.Parameters["name"] != "Spotify" {
		t.Fatalf("unexpected directive %+v", directive)
	}
	if stripped := Strip(reply, span); strings.Contains(stripped, "action") {
		t.Fatalf("expected directive to be removed, got %q", stripped)
	}
}

func TestTryParseHandlesBracesInStrings(t *testing.T) {
	reply := `{"action":"type_text","text":"use {braces} and \"quotes\" }"} done`

	directive, _, ok := TryParse(reply)
	if !ok {
		t.Fatalf("expected a directive to be found")
	}
	if got := directive.Parameters["text"]; got != `use {braces} and "quotes" }` {
		t.Fatalf("unexpected text parameter %q", got)
	}
}

func TestTryParseStringifiesParameters(t *testing.T) {
	reply := `{"action":"scroll","parameters":{"direction":"up","amount":3,"smooth":true},"extra":{"k":"v"}}`

	directive, _, ok := TryParse(reply)
	if !ok {
		t.Fatalf("expected a directive to be found")
	}
	want := map[string]string{"direction": "up", "amount": "3", "smooth": "true", "extra": `{"k":"v"}`}
	for key, value := range want {
		if got := directive.Parameters[key]; got != value {
			t.Fatalf("expected parameter %s=%q, got %q", key, value, got)
		}
	}
}

func TestTryParseRejectsMalformedAndDeepObjects(t *testing.T) {
	cases := map[string]string{
		"no object":         "Your battery is fine.",
		"unbalanced":        `{"action":"click","label":"OK"`,
		"non-string":        `{"action": 5}`,
		"empty action":      `{"action": ""}`,
		"too deeply nested": `{"action":"click","a":{"b":{"c":{"d":{"e":{"f":{"g":{"h":{"i":1}}}}}}}}}`,
	}
	for name, reply := range cases {
		if directive, _, ok := TryParse(reply); ok {
			t.Fatalf("%s: expected no directive, got %+v", name, directive)
		}
	}
}

func TestStripRemovesCodeFence(t *testing.T) {
	reply := "Opening it now.\n```json\n{\"action\":\"open_url\",\"url\":\"https://example.com\"}\n```\n"

	_, span, ok := TryParse(reply)
	if !ok {
		t.Fatalf("expected a directive to be found")
	}
	if got := Strip(reply, span); got != "Opening it now." {
		t.Fatalf("unexpected stripped text %q", got)
	}
	if got := Strip(`{"action":"read_screen"}`, Span{Start: 0, End: 24}); got != "" {
		t.Fatalf("expected nothing left, got %q", got)
	}
}

func TestSchemaPromptDescribesDirective(t *testing.T) {
	prompt := SchemaPrompt()
	for _, want := range []string{`"action"`, "device_info", "launch_app", `"required"`} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("expected schema prompt to mention %s, got %s", want, prompt)
		}
	}
}
