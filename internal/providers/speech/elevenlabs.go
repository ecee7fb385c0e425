package speech

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

const elevenLabsCostPerChar = 0.00024

// ElevenLabsOptions configures the ElevenLabs synthesizer.
type ElevenLabsOptions struct {
	Credentials credentials.Source
	BaseURL     string
	VoiceID     string
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// ElevenLabs synthesizes narration through the text-to-speech endpoint. The
// response body is the audio stream itself, not a JSON envelope.
type ElevenLabs struct {
	creds      credentials.Source
	baseURL    string
	voiceID    string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewElevenLabs(opts ElevenLabsOptions) *ElevenLabs {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io"
	}
	voiceID := strings.TrimSpace(opts.VoiceID)
	if voiceID == "" {
		voiceID = "21m00Tcm4TlvDq8ikWAM"
	}
	return &ElevenLabs{
		creds:      opts.Credentials,
		baseURL:    baseURL,
		voiceID:    voiceID,
		httpClient: httpClient,
		logger:     opts.Logger.With().Str("provider", "elevenlabs").Logger(),
	}
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

func (e *ElevenLabs) Available() bool {
	return e.creds != nil && e.creds.Available(credentials.ProviderElevenLabs)
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenLabsError struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

// Synthesize renders the narration in one call.
func (e *ElevenLabs) Synthesize(ctx context.Context, req Request) (*domain.Artifact, error) {
	token, err := e.token(ctx)
	if err != nil {
		return nil, err
	}
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = e.voiceID
	}
	payload := elevenLabsRequest{
		Text:    req.Text,
		ModelID: "eleven_multilingual_v2",
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encode request: %w", err)
	}

	endpoint := e.baseURL + "/v1/text-to-speech/" + url.PathEscape(voice)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("xi-api-key", token)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail elevenLabsError
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Detail.Message != "" {
			return nil, statusError("elevenlabs", resp.StatusCode, fmt.Sprintf("%s (%s)", detail.Detail.Message, detail.Detail.Status))
		}
		return nil, statusError("elevenlabs", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: elevenlabs returned an empty audio stream", domain.ErrProviderFailure)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "audio/mpeg"
	}
	e.logger.Debug().Str("job_id", req.JobID).Str("voice", voice).Int("bytes", len(raw)).Msg("narration synthesized")
	return &domain.Artifact{
		Data:         raw,
		MIME:         mime,
		Provider:     e.Name(),
		CostEstimate: float64(len(req.Text)) * elevenLabsCostPerChar,
	}, nil
}

func (e *ElevenLabs) token(ctx context.Context) (string, error) {
	if e.creds == nil {
		return "", ErrMissingAPIKey
	}
	token, err := e.creds.Token(ctx, credentials.ProviderElevenLabs)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: resolve token: %w", err)
	}
	if token == "" {
		return "", ErrMissingAPIKey
	}
	return token, nil
}

var _ Synthesizer = (*ElevenLabs)(nil)
