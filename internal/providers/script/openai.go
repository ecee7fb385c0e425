package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
	"promoreel/internal/infra/credentials"
)

const openAIDefaultTimeout = 15 * time.Second

const defaultOpenAIModel = "gpt-4o-mini"

var openAIModelCanonical = map[string]string{
	"gpt-3.5-turbo": "gpt-3.5-turbo",
	"gpt-4o-mini":   "gpt-4o-mini",
	"gpt-4o":        "gpt-4o",
}

var openAIModelAliases = map[string]string{
	"gpt-3.5":                "gpt-3.5-turbo",
	"gpt3.5":                 "gpt-3.5-turbo",
	"gpt-35-turbo":           "gpt-3.5-turbo",
	"gpt4o-mini":             "gpt-4o-mini",
	"gpt4omini":              "gpt-4o-mini",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"gpt4o":                  "gpt-4o",
}

// OpenAIOptions configures the OpenAI script provider.
type OpenAIOptions struct {
	Credentials  credentials.Source
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	Logger       zerolog.Logger
}

// OpenAI speaks chat completions with a json_object response format.
type OpenAI struct {
	creds        credentials.Source
	model        string
	baseURL      string
	organization string
	httpClient   *http.Client
	logger       zerolog.Logger
}

func NewOpenAI(opts OpenAIOptions) *OpenAI {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: openAIDefaultTimeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model, reason := normalizeOpenAIModel(opts.Model)
	logger := opts.Logger.With().Str("provider", "openai").Logger()
	if reason != "" {
		logger.Warn().Str("requested", opts.Model).Str("resolved", model).Str("reason", reason).Msg("openai model normalized")
	}
	return &OpenAI{
		creds:        opts.Credentials,
		model:        model,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		httpClient:   httpClient,
		logger:       logger,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Available() bool {
	return o.creds != nil && o.creds.Available(credentials.ProviderOpenAI)
}

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Analyze profiles the product for downstream prompts.
func (o *OpenAI) Analyze(ctx context.Context, req AnalysisRequest) (*Analysis, error) {
	text, err := o.complete(ctx, buildAnalysisPrompt(req), 0.5)
	if err != nil {
		return nil, err
	}
	parsed, err := parseModelPayload[modelAnalysisPayload](text)
	if err != nil {
		return nil, fmt.Errorf("openai: parse analysis: %w", err)
	}
	return &Analysis{
		Summary:       coalesce(parsed.Summary, req.ProductDescription),
		SellingPoints: normalizeList(parsed.SellingPoints),
		CameraAngles:  normalizeList(parsed.CameraAngles, "close-up pan", "45-degree hero shot"),
		Style:         coalesce(parsed.Style, "clean studio light"),
		Audience:      coalesce(parsed.Audience, "small business customers"),
		Provider:      o.Name(),
	}, nil
}

// WriteScript produces the voiceover copy.
func (o *OpenAI) WriteScript(ctx context.Context, req ScriptRequest) (*Script, error) {
	text, err := o.complete(ctx, buildScriptPrompt(req), 0.7)
	if err != nil {
		return nil, err
	}
	parsed, err := parseModelPayload[modelScriptPayload](text)
	if err != nil {
		return nil, fmt.Errorf("openai: parse script: %w", err)
	}
	s := &Script{
		Hook:         strings.TrimSpace(parsed.Hook),
		Body:         strings.TrimSpace(parsed.Body),
		CallToAction: strings.TrimSpace(parsed.CallToAction),
		Provider:     o.Name(),
	}
	if s.Text() == "" {
		return nil, fmt.Errorf("%w: openai returned an empty script", domain.ErrProviderFailure)
	}
	return s, nil
}

func (o *OpenAI) complete(ctx context.Context, promptText string, temperature float64) (string, error) {
	token, err := o.token(ctx)
	if err != nil {
		return "", err
	}
	payload := openAIChatRequest{
		Model:       o.model,
		Temperature: temperature,
		ResponseFormat: &openAIFormat{
			Type: "json_object",
		},
		Messages: []openAIMessage{
			{Role: "system", Content: "You are a helpful marketing assistant that only responds with valid JSON."},
			{Role: "user", Content: promptText},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("openai: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", &buf)
	if err != nil {
		return "", fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if o.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", o.organization)
	}

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var decoded openAIChatResponse
		if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Error != nil {
			return "", statusError("openai", resp.StatusCode, decoded.Error.Message)
		}
		return "", statusError("openai", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded openAIChatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", domain.ErrProviderFailure)
	}
	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: openai returned an empty message", domain.ErrProviderFailure)
	}
	return text, nil
}

func (o *OpenAI) token(ctx context.Context) (string, error) {
	if o.creds == nil {
		return "", ErrMissingAPIKey
	}
	token, err := o.creds.Token(ctx, credentials.ProviderOpenAI)
	if err != nil {
		return "", fmt.Errorf("openai: resolve token: %w", err)
	}
	if token == "" {
		return "", ErrMissingAPIKey
	}
	return token, nil
}

func normalizeOpenAIModel(name string) (string, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return defaultOpenAIModel, ""
	}
	normalized := strings.ToLower(trimmed)
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if canonical, ok := openAIModelCanonical[normalized]; ok {
		return canonical, ""
	}
	if alias, ok := openAIModelAliases[normalized]; ok {
		return alias, "alias"
	}
	return defaultOpenAIModel, "defaulted"
}

var _ Service = (*OpenAI)(nil)
