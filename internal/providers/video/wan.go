package video

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

	"promoreel/internal/asyncop"
	"promoreel/internal/domain"
	"promoreel/internal/infra/credentials"
)

const wanCostPerSecond = 0.08

// WanOptions configures the DashScope Wan generator.
type WanOptions struct {
	Credentials credentials.Source
	BaseURL     string
	Model       string
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// Wan drives the DashScope asynchronous video-synthesis API: the submission
// returns a task id that is then polled on the tasks endpoint.
type Wan struct {
	creds      credentials.Source
	baseURL    string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewWan(opts WanOptions) *Wan {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 45 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/api/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "wan2.1-t2v-turbo"
	}
	return &Wan{
		creds:      opts.Credentials,
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     opts.Logger.With().Str("provider", "wan").Logger(),
	}
}

func (w *Wan) Name() string { return "wan" }

func (w *Wan) Available() bool {
	return w.creds != nil && w.creds.Available(credentials.ProviderWan)
}

type wanSubmitRequest struct {
	Model      string        `json:"model"`
	Input      wanInput      `json:"input"`
	Parameters wanParameters `json:"parameters"`
}

type wanInput struct {
	Prompt string `json:"prompt"`
	ImgURL string `json:"img_url,omitempty"`
}

type wanParameters struct {
	Size         string `json:"size,omitempty"`
	Duration     int    `json:"duration,omitempty"`
	PromptExtend *bool  `json:"prompt_extend,omitempty"`
}

type wanTaskResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		VideoURL   string `json:"video_url"`
		Code       string `json:"code"`
		Message    string `json:"message"`
	} `json:"output"`
	Usage struct {
		Duration int `json:"video_duration"`
	} `json:"usage"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Submit enqueues a synthesis task and returns its id.
func (w *Wan) Submit(ctx context.Context, req domain.GenerationRequest) (string, error) {
	token, err := w.token(ctx)
	if err != nil {
		return "", err
	}
	prompt := buildVideoPrompt(req)
	extend := true
	payload := wanSubmitRequest{
		Model: w.model,
		Input: wanInput{Prompt: prompt, ImgURL: firstReferenceURL(req)},
		Parameters: wanParameters{
			Size:         wanSize(req.AspectRatio),
			Duration:     targetDuration(req),
			PromptExtend: &extend,
		},
	}

	endpoint := w.baseURL + "/services/aigc/video-generation/video-synthesis"
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("wan: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("wan: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("X-DashScope-Async", "enable")

	decoded, err := w.do(httpReq)
	if err != nil {
		return "", err
	}
	if decoded.Output.TaskID == "" {
		return "", fmt.Errorf("%w: wan returned no task id", domain.ErrProviderFailure)
	}
	w.logger.Debug().
		Str("task_id", decoded.Output.TaskID).
		Str("request_id", decoded.RequestID).
		Str("job_id", req.JobID).
		Msg("wan task submitted")
	return decoded.Output.TaskID, nil
}

// Poll reads the task state once.
func (w *Wan) Poll(ctx context.Context, handle string) (asyncop.PollStatus, error) {
	token, err := w.token(ctx)
	if err != nil {
		return asyncop.PollStatus{}, err
	}
	endpoint := w.baseURL + "/tasks/" + url.PathEscape(handle)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return asyncop.PollStatus{}, fmt.Errorf("wan: build poll request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	decoded, err := w.do(httpReq)
	if err != nil {
		return asyncop.PollStatus{}, err
	}
	switch decoded.Output.TaskStatus {
	case "SUCCEEDED":
		if decoded.Output.VideoURL == "" {
			return asyncop.Failed("wan succeeded without a video url"), nil
		}
		return asyncop.Done(decoded.Output.VideoURL), nil
	case "FAILED", "CANCELED":
		return asyncop.Failed(fmt.Sprintf("wan %s (%s)", decoded.Output.Message, decoded.Output.Code)), nil
	case "RUNNING":
		return asyncop.Pending(50), nil
	default:
		return asyncop.Pending(0), nil
	}
}

// Fetch downloads the finished video from its signed URL.
func (w *Wan) Fetch(ctx context.Context, req domain.GenerationRequest, artifactRef string) (*domain.Artifact, error) {
	parsed, err := url.Parse(strings.TrimSpace(artifactRef))
	if err != nil || parsed.Scheme == "" {
		return nil, fmt.Errorf("wan: invalid video url: %s", artifactRef)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("wan: build download request: %w", err)
	}
	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("wan: download video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, statusError("wan", resp.StatusCode, "download failed")
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("wan: read video: %w", err)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "video/mp4"
	}
	duration := targetDuration(req)
	width, height := normalizeAspect(req.AspectRatio)
	return &domain.Artifact{
		Data:            data,
		MIME:            mime,
		DurationSeconds: duration,
		Width:           width,
		Height:          height,
		Provider:        w.Name(),
		CostEstimate:    float64(duration) * wanCostPerSecond,
	}, nil
}

func (w *Wan) token(ctx context.Context) (string, error) {
	if w.creds == nil {
		return "", ErrMissingAPIKey
	}
	token, err := w.creds.Token(ctx, credentials.ProviderWan)
	if err != nil {
		return "", fmt.Errorf("wan: resolve token: %w", err)
	}
	if token == "" {
		return "", ErrMissingAPIKey
	}
	return token, nil
}

func (w *Wan) do(httpReq *http.Request) (*wanTaskResponse, error) {
	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("wan: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("wan: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail wanTaskResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			return nil, statusError("wan", resp.StatusCode, fmt.Sprintf("%s (%s)", detail.Message, detail.Code))
		}
		return nil, statusError("wan", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded wanTaskResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("wan: decode response: %w", err)
	}
	if decoded.Code != "" {
		return nil, fmt.Errorf("%w: wan %s (%s)", domain.ErrProviderFailure, decoded.Message, decoded.Code)
	}
	return &decoded, nil
}

// wanSize maps aspect tags onto the fixed resolutions DashScope accepts.
func wanSize(aspect string) string {
	switch strings.TrimSpace(strings.ToLower(aspect)) {
	case "9:16":
		return "720*1280"
	case "1:1", "square":
		return "960*960"
	default:
		return "1280*720"
	}
}

var _ AsyncGenerator = (*Wan)(nil)
