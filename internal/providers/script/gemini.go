package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
	"promoreel/internal/infra/credentials"
)

const geminiDefaultTimeout = 15 * time.Second

// GeminiOptions configures the Gemini script provider.
type GeminiOptions struct {
	Credentials credentials.Source
	Model       string
	BaseURL     string
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// Gemini speaks the generateContent endpoint with a JSON response mime so
// the model answers in machine-parseable form.
type Gemini struct {
	creds      credentials.Source
	model      string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewGemini(opts GeminiOptions) *Gemini {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: geminiDefaultTimeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Gemini{
		creds:      opts.Credentials,
		model:      model,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     opts.Logger.With().Str("provider", "gemini").Logger(),
	}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Available() bool {
	return g.creds != nil && g.creds.Available(credentials.ProviderGemini)
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	CandidateCount   int     `json:"candidateCount,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Analyze profiles the product for downstream prompts.
func (g *Gemini) Analyze(ctx context.Context, req AnalysisRequest) (*Analysis, error) {
	text, err := g.generate(ctx, buildAnalysisPrompt(req), 0.5)
	if err != nil {
		return nil, err
	}
	parsed, err := parseModelPayload[modelAnalysisPayload](text)
	if err != nil {
		return nil, fmt.Errorf("gemini: parse analysis: %w", err)
	}
	return &Analysis{
		Summary:       coalesce(parsed.Summary, req.ProductDescription),
		SellingPoints: normalizeList(parsed.SellingPoints),
		CameraAngles:  normalizeList(parsed.CameraAngles, "close-up pan", "45-degree hero shot"),
		Style:         coalesce(parsed.Style, "clean studio light"),
		Audience:      coalesce(parsed.Audience, "small business customers"),
		Provider:      g.Name(),
	}, nil
}

// WriteScript produces the voiceover copy.
func (g *Gemini) WriteScript(ctx context.Context, req ScriptRequest) (*Script, error) {
	text, err := g.generate(ctx, buildScriptPrompt(req), 0.7)
	if err != nil {
		return nil, err
	}
	parsed, err := parseModelPayload[modelScriptPayload](text)
	if err != nil {
		return nil, fmt.Errorf("gemini: parse script: %w", err)
	}
	s := &Script{
		Hook:         strings.TrimSpace(parsed.Hook),
		Body:         strings.TrimSpace(parsed.Body),
		CallToAction: strings.TrimSpace(parsed.CallToAction),
		Provider:     g.Name(),
	}
	if s.Text() == "" {
		return nil, fmt.Errorf("%w: gemini returned an empty script", domain.ErrProviderFailure)
	}
	return s, nil
}

func (g *Gemini) generate(ctx context.Context, promptText string, temperature float64) (string, error) {
	token, err := g.token(ctx)
	if err != nil {
		return "", err
	}
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: promptText}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      temperature,
			CandidateCount:   1,
			ResponseMimeType: "application/json",
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("gemini: encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", token)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var decoded geminiResponse
		if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Error != nil {
			return "", statusError("gemini", resp.StatusCode, decoded.Error.Message)
		}
		return "", statusError("gemini", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded geminiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	text := extractGeminiText(decoded)
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned no candidates", domain.ErrProviderFailure)
	}
	return text, nil
}

func extractGeminiText(resp geminiResponse) string {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text
			}
		}
	}
	return ""
}

func (g *Gemini) token(ctx context.Context) (string, error) {
	if g.creds == nil {
		return "", ErrMissingAPIKey
	}
	token, err := g.creds.Token(ctx, credentials.ProviderGemini)
	if err != nil {
		return "", fmt.Errorf("gemini: resolve token: %w", err)
	}
	if token == "" {
		return "", ErrMissingAPIKey
	}
	return token, nil
}

var _ Service = (*Gemini)(nil)
