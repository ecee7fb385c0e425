package speech

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

const openAICostPerChar = 0.000015

// OpenAIOptions configures the OpenAI TTS synthesizer.
type OpenAIOptions struct {
	Credentials credentials.Source
	BaseURL     string
	Model       string
	Voice       string
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// OpenAI synthesizes narration via the audio/speech endpoint.
type OpenAI struct {
	creds      credentials.Source
	baseURL    string
	model      string
	voice      string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewOpenAI(opts OpenAIOptions) *OpenAI {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "tts-1"
	}
	voice := strings.TrimSpace(opts.Voice)
	if voice == "" {
		voice = "alloy"
	}
	return &OpenAI{
		creds:      opts.Credentials,
		baseURL:    baseURL,
		model:      model,
		voice:      voice,
		httpClient: httpClient,
		logger:     opts.Logger.With().Str("provider", "openai_tts").Logger(),
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Available() bool {
	return o.creds != nil && o.creds.Available(credentials.ProviderOpenAI)
}

type openAISpeechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

type openAIErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Synthesize renders the narration in one call.
func (o *OpenAI) Synthesize(ctx context.Context, req Request) (*domain.Artifact, error) {
	token, err := o.token(ctx)
	if err != nil {
		return nil, err
	}
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = o.voice
	}
	payload := openAISpeechRequest{
		Model:          o.model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: "mp3",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail openAIErrorEnvelope
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Error.Message != "" {
			return nil, statusError("openai", resp.StatusCode, detail.Error.Message)
		}
		return nil, statusError("openai", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: openai returned an empty audio stream", domain.ErrProviderFailure)
	}

	o.logger.Debug().Str("job_id", req.JobID).Str("voice", voice).Int("bytes", len(raw)).Msg("narration synthesized")
	return &domain.Artifact{
		Data:         raw,
		MIME:         "audio/mpeg",
		Provider:     o.Name(),
		CostEstimate: float64(len(req.Text)) * openAICostPerChar,
	}, nil
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

var _ Synthesizer = (*OpenAI)(nil)
