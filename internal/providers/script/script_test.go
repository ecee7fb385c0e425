package script

import (
	"strings"
	"testing"
)

func TestParseModelPayloadTrimsCodeFence(t *testing.T) {
	raw := "```json\n{\"hook\":\"Stop scrolling.\",\"body\":\"Fresh bread daily.\",\"call_to_action\":\"Order now.\"}\n```"
	parsed, err := parseModelPayload[modelScriptPayload](raw)
	if err != nil {
		t.Fatalf("parse fenced payload: %v", err)
	}
	if parsed.Hook != "Stop scrolling." {
		t.Fatalf("hook = %q", parsed.Hook)
	}
	if parsed.CallToAction != "Order now." {
		t.Fatalf("call_to_action = %q", parsed.CallToAction)
	}
}

func TestParseModelPayloadExtractsEmbeddedJSON(t *testing.T) {
	raw := "Here is the result you asked for:\n{\"summary\":\"A warm bakery.\",\"style\":\"cozy\"}\nLet me know if you need changes."
	parsed, err := parseModelPayload[modelAnalysisPayload](raw)
	if err != nil {
		t.Fatalf("parse embedded payload: %v", err)
	}
	if parsed.Summary != "A warm bakery." {
		t.Fatalf("summary = %q", parsed.Summary)
	}
	if parsed.Style != "cozy" {
		t.Fatalf("style = %q", parsed.Style)
	}
}

func TestParseModelPayloadRejectsEmpty(t *testing.T) {
	if _, err := parseModelPayload[modelScriptPayload]("   "); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestScriptTextJoinsParts(t *testing.T) {
	s := &Script{Hook: "Stop scrolling.", Body: "", CallToAction: "Order now."}
	if got := s.Text(); got != "Stop scrolling. Order now." {
		t.Fatalf("text = %q", got)
	}
}

func TestDefaultAnalysisFillsEveryField(t *testing.T) {
	a := DefaultAnalysis(AnalysisRequest{ProductName: "sourdough loaf"})
	if a.Summary == "" || a.Style == "" || a.Audience == "" {
		t.Fatalf("default analysis left fields empty: %#v", a)
	}
	if len(a.CameraAngles) == 0 {
		t.Fatalf("default analysis needs camera angles")
	}
	if !strings.Contains(a.Summary, "Sourdough Loaf") {
		t.Fatalf("summary should title-case the product name, got %q", a.Summary)
	}
	if a.Provider != "default" {
		t.Fatalf("provider = %q, want default", a.Provider)
	}
}

func TestBuildScriptPromptCarriesAnalysis(t *testing.T) {
	req := ScriptRequest{
		ProductName:     "sourdough loaf",
		DurationSeconds: 20,
		Locale:          "id",
		Analysis: &Analysis{
			SellingPoints: []string{"naturally leavened", "baked daily"},
			Style:         "warm morning light",
		},
	}
	prompt := buildScriptPrompt(req)
	if !strings.Contains(prompt, "20 second") {
		t.Fatalf("prompt should carry the duration, got %q", prompt)
	}
	if !strings.Contains(prompt, "naturally leavened; baked daily") {
		t.Fatalf("prompt should carry selling points, got %q", prompt)
	}
	if !strings.Contains(prompt, "locale 'id'") {
		t.Fatalf("prompt should carry the locale, got %q", prompt)
	}
}

func TestNormalizeListDeduplicates(t *testing.T) {
	got := normalizeList([]string{" Fresh ", "fresh", "", "Daily"})
	if len(got) != 2 || got[0] != "Fresh" || got[1] != "Daily" {
		t.Fatalf("normalized = %#v", got)
	}
	fallback := normalizeList(nil, "close-up pan")
	if len(fallback) != 1 || fallback[0] != "close-up pan" {
		t.Fatalf("fallback = %#v", fallback)
	}
}
