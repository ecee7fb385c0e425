// Package script holds the product analysis and voiceover copywriting
// providers. Both capabilities speak structured-JSON prompt contracts and
// tolerate code-fenced answers from the models.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"promoreel/internal/domain"
)

// ErrMissingAPIKey indicates a provider was invoked without credentials.
var ErrMissingAPIKey = errors.New("script: api key is not configured")

// AnalysisRequest describes the product under analysis.
type AnalysisRequest struct {
	JobID              string
	ProductName        string
	ProductDescription string
	Locale             string
}

// Analysis is the distilled marketing profile the script and video prompts
// build on.
type Analysis struct {
	Summary       string   `json:"summary"`
	SellingPoints []string `json:"selling_points"`
	CameraAngles  []string `json:"camera_angles"`
	Style         string   `json:"style"`
	Audience      string   `json:"audience"`
	Provider      string   `json:"-"`
}

// ScriptRequest describes the voiceover script to write. Analysis is
// optional; when present its selling points steer the copy.
type ScriptRequest struct {
	JobID              string
	ProductName        string
	ProductDescription string
	Analysis           *Analysis
	DurationSeconds    int
	Locale             string
}

// Script is a three-part voiceover: hook, body, call to action.
type Script struct {
	Hook         string `json:"hook"`
	Body         string `json:"body"`
	CallToAction string `json:"call_to_action"`
	Provider     string `json:"-"`
}

// Text joins the script parts into the narration fed downstream.
func (s *Script) Text() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{s.Hook, s.Body, s.CallToAction} {
		if v := strings.TrimSpace(p); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// Service is the capability contract the gateway sequences.
type Service interface {
	Name() string
	Available() bool
	Analyze(ctx context.Context, req AnalysisRequest) (*Analysis, error)
	WriteScript(ctx context.Context, req ScriptRequest) (*Script, error)
}

// DefaultAnalysis is the stand-in applied when every analysis provider
// fails: generic camera coverage and a neutral style keep the pipeline
// moving without model output.
func DefaultAnalysis(req AnalysisRequest) *Analysis {
	c := cases.Title(language.Und)
	name := strings.TrimSpace(req.ProductName)
	if name == "" {
		name = "the product"
	}
	return &Analysis{
		Summary:       fmt.Sprintf("%s presented with clean studio framing", c.String(name)),
		SellingPoints: []string{"quality you can see", "made for everyday use"},
		CameraAngles:  []string{"close-up pan", "45-degree hero shot", "top-down detail"},
		Style:         "clean studio light",
		Audience:      "small business customers",
		Provider:      "default",
	}
}

type modelAnalysisPayload struct {
	Summary       string   `json:"summary"`
	SellingPoints []string `json:"selling_points"`
	CameraAngles  []string `json:"camera_angles"`
	Style         string   `json:"style"`
	Audience      string   `json:"audience"`
}

type modelScriptPayload struct {
	Hook         string `json:"hook"`
	Body         string `json:"body"`
	CallToAction string `json:"call_to_action"`
}

func buildAnalysisPrompt(req AnalysisRequest) string {
	locale := req.Locale
	if locale == "" {
		locale = "en"
	}
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "You are a product marketing analyst for small businesses. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"summary":string,"selling_points":string[],"camera_angles":string[],"style":string,"audience":string}`)
	fmt.Fprintf(sb, ". Use locale '%s' for language choices. Product: name=%q, description=%q. Keep the summary under two sentences.", locale, req.ProductName, req.ProductDescription)
	return sb.String()
}

func buildScriptPrompt(req ScriptRequest) string {
	locale := req.Locale
	if locale == "" {
		locale = "en"
	}
	duration := req.DurationSeconds
	if duration <= 0 {
		duration = 15
	}
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "You are a short-form video copywriter for small businesses. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"hook":string,"body":string,"call_to_action":string}`)
	fmt.Fprintf(sb, ". Use locale '%s' for language choices. Write a voiceover script for a %d second promotional video. Product: name=%q, description=%q.", locale, duration, req.ProductName, req.ProductDescription)
	if req.Analysis != nil {
		if len(req.Analysis.SellingPoints) > 0 {
			fmt.Fprintf(sb, " Lean on these selling points: %s.", strings.Join(req.Analysis.SellingPoints, "; "))
		}
		if req.Analysis.Style != "" {
			fmt.Fprintf(sb, " Visual style: %s.", req.Analysis.Style)
		}
	}
	return sb.String()
}

func normalizeList(items []string, fallback ...string) []string {
	seen := make(map[string]struct{})
	var result []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		lower := strings.ToLower(item)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		result = append(result, item)
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func parseModelPayload[T any](raw string) (T, error) {
	var zero T
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return zero, errors.New("empty payload")
	}
	var decoded T
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

// statusError classifies an HTTP failure: client errors are declared
// provider failures, server errors stay transient.
func statusError(provider string, code int, detail string) error {
	if code >= 400 && code < 500 {
		return fmt.Errorf("%w: %s status %d: %s", domain.ErrProviderFailure, provider, code, detail)
	}
	return fmt.Errorf("%s status %d: %s", provider, code, detail)
}
