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

const runpodCostPerSecond = 0.04

// RunPodOptions configures the RunPod serverless generator.
type RunPodOptions struct {
	Credentials credentials.Source
	BaseURL     string
	EndpointID  string
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// RunPod drives a serverless video endpoint: run returns a job id polled on
// the status route until the worker reports COMPLETED.
type RunPod struct {
	creds      credentials.Source
	baseURL    string
	endpointID string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewRunPod(opts RunPodOptions) *RunPod {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 45 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.runpod.ai/v2"
	}
	return &RunPod{
		creds:      opts.Credentials,
		baseURL:    baseURL,
		endpointID: strings.TrimSpace(opts.EndpointID),
		httpClient: httpClient,
		logger:     opts.Logger.With().Str("provider", "runpod").Logger(),
	}
}

func (r *RunPod) Name() string { return "runpod" }

func (r *RunPod) Available() bool {
	return r.creds != nil && r.endpointID != "" && r.creds.Available(credentials.ProviderRunPod)
}

type runpodSubmitRequest struct {
	Input runpodInput `json:"input"`
}

type runpodInput struct {
	Prompt      string `json:"prompt"`
	ImageURL    string `json:"image_url,omitempty"`
	Duration    int    `json:"duration,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

type runpodJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Output *struct {
		VideoURL string `json:"video_url"`
	} `json:"output,omitempty"`
}

// Submit enqueues a job on the configured endpoint.
func (r *RunPod) Submit(ctx context.Context, req domain.GenerationRequest) (string, error) {
	payload := runpodSubmitRequest{Input: runpodInput{
		Prompt:      buildVideoPrompt(req),
		ImageURL:    firstReferenceURL(req),
		Duration:    targetDuration(req),
		AspectRatio: req.AspectRatio,
	}}
	endpoint := fmt.Sprintf("%s/%s/run", r.baseURL, url.PathEscape(r.endpointID))
	decoded, err := r.invoke(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return "", err
	}
	if decoded.ID == "" {
		return "", fmt.Errorf("%w: runpod returned no job id", domain.ErrProviderFailure)
	}
	r.logger.Debug().Str("runpod_job", decoded.ID).Str("job_id", req.JobID).Msg("runpod job submitted")
	return decoded.ID, nil
}

// Poll reads the job state once.
func (r *RunPod) Poll(ctx context.Context, handle string) (asyncop.PollStatus, error) {
	endpoint := fmt.Sprintf("%s/%s/status/%s", r.baseURL, url.PathEscape(r.endpointID), url.PathEscape(handle))
	decoded, err := r.invoke(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return asyncop.PollStatus{}, err
	}
	switch decoded.Status {
	case "COMPLETED":
		if decoded.Output == nil || decoded.Output.VideoURL == "" {
			return asyncop.Failed("runpod completed without output"), nil
		}
		return asyncop.Done(decoded.Output.VideoURL), nil
	case "FAILED", "CANCELLED", "TIMED_OUT":
		reason := decoded.Error
		if reason == "" {
			reason = strings.ToLower(decoded.Status)
		}
		return asyncop.Failed("runpod " + reason), nil
	case "IN_PROGRESS":
		return asyncop.Pending(50), nil
	default:
		return asyncop.Pending(0), nil
	}
}

// Fetch downloads the worker's output video.
func (r *RunPod) Fetch(ctx context.Context, req domain.GenerationRequest, artifactRef string) (*domain.Artifact, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, artifactRef, nil)
	if err != nil {
		return nil, fmt.Errorf("runpod: build download request: %w", err)
	}
	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("runpod: download video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, statusError("runpod", resp.StatusCode, "download failed")
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("runpod: read video: %w", err)
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
		Provider:        r.Name(),
		CostEstimate:    float64(duration) * runpodCostPerSecond,
	}, nil
}

func (r *RunPod) invoke(ctx context.Context, method, endpoint string, payload any) (*runpodJobResponse, error) {
	token, err := r.token(ctx)
	if err != nil {
		return nil, err
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("runpod: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("runpod: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("runpod: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("runpod: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, statusError("runpod", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded runpodJobResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("runpod: decode response: %w", err)
	}
	return &decoded, nil
}

func (r *RunPod) token(ctx context.Context) (string, error) {
	if r.creds == nil {
		return "", ErrMissingAPIKey
	}
	token, err := r.creds.Token(ctx, credentials.ProviderRunPod)
	if err != nil {
		return "", fmt.Errorf("runpod: resolve token: %w", err)
	}
	if token == "" {
		return "", ErrMissingAPIKey
	}
	return token, nil
}

var _ AsyncGenerator = (*RunPod)(nil)
