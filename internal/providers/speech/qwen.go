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

const qwenTTSCostPerChar = 0.00001

// QwenOptions configures the DashScope qwen-tts synthesizer.
type QwenOptions struct {
	Credentials credentials.Source
	BaseURL     string
	Model       string
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// Qwen synthesizes narration through the DashScope multimodal generation
// endpoint. Unlike the other synthesizers the response carries a short-lived
// result URL, which is downloaded before returning.
type Qwen struct {
	creds      credentials.Source
	baseURL    string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewQwen(opts QwenOptions) *Qwen {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/api/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "qwen-tts"
	}
	return &Qwen{
		creds:      opts.Credentials,
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     opts.Logger.With().Str("provider", "qwen_tts").Logger(),
	}
}

func (q *Qwen) Name() string { return "qwen" }

func (q *Qwen) Available() bool {
	return q.creds != nil && q.creds.Available(credentials.ProviderQwenTTS)
}

type qwenTTSRequest struct {
	Model string       `json:"model"`
	Input qwenTTSInput `json:"input"`
}

type qwenTTSInput struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type qwenTTSResponse struct {
	Output struct {
		Audio struct {
			URL string `json:"url"`
		} `json:"audio"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Synthesize renders the narration and downloads the result URL.
func (q *Qwen) Synthesize(ctx context.Context, req Request) (*domain.Artifact, error) {
	token, err := q.token(ctx)
	if err != nil {
		return nil, err
	}
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = "Cherry"
	}
	payload := qwenTTSRequest{
		Model: q.model,
		Input: qwenTTSInput{Text: req.Text, Voice: voice},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("qwen: encode request: %w", err)
	}

	endpoint := q.baseURL + "/services/aigc/multimodal-generation/generation"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("qwen: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := q.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("qwen: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("qwen: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail qwenTTSResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			return nil, statusError("qwen", resp.StatusCode, fmt.Sprintf("%s (%s)", detail.Message, detail.Code))
		}
		return nil, statusError("qwen", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded qwenTTSResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("qwen: decode response: %w", err)
	}
	if decoded.Code != "" {
		return nil, fmt.Errorf("%w: qwen %s (%s)", domain.ErrProviderFailure, decoded.Message, decoded.Code)
	}
	if decoded.Output.Audio.URL == "" {
		return nil, fmt.Errorf("%w: qwen returned no audio url", domain.ErrProviderFailure)
	}

	data, mime, err := q.download(ctx, decoded.Output.Audio.URL)
	if err != nil {
		return nil, err
	}
	q.logger.Debug().Str("job_id", req.JobID).Str("voice", voice).Int("bytes", len(data)).Msg("narration synthesized")
	return &domain.Artifact{
		Data:         data,
		MIME:         mime,
		Provider:     q.Name(),
		CostEstimate: float64(len(req.Text)) * qwenTTSCostPerChar,
	}, nil
}

func (q *Qwen) download(ctx context.Context, audioURL string) ([]byte, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: build download request: %w", err)
	}
	resp, err := q.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: download audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", statusError("qwen", resp.StatusCode, "audio download failed")
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: read audio: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "audio/wav"
	}
	return data, mime, nil
}

func (q *Qwen) token(ctx context.Context) (string, error) {
	if q.creds == nil {
		return "", ErrMissingAPIKey
	}
	token, err := q.creds.Token(ctx, credentials.ProviderQwenTTS)
	if err != nil {
		return "", fmt.Errorf("qwen: resolve token: %w", err)
	}
	if token == "" {
		return "", ErrMissingAPIKey
	}
	return token, nil
}

var _ Synthesizer = (*Qwen)(nil)
