package video

import (
	"bytes"
	"context"
	"encoding/base64"
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

const veoCostPerSecond = 0.35

// VeoOptions configures the Google Veo generator.
type VeoOptions struct {
	Credentials credentials.Source
	BaseURL     string
	Model       string
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// Veo drives the generativelanguage long-running video API: one
// predictLongRunning submission, then operation polls until done.
type Veo struct {
	creds      credentials.Source
	baseURL    string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewVeo(opts VeoOptions) *Veo {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "veo-2.0-generate-001"
	}
	return &Veo{
		creds:      opts.Credentials,
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     opts.Logger.With().Str("provider", "veo").Logger(),
	}
}

func (v *Veo) Name() string { return "veo" }

func (v *Veo) Available() bool {
	return v.creds != nil && v.creds.Available(credentials.ProviderVeo)
}

type veoImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	MimeType           string `json:"mimeType,omitempty"`
}

type veoInstance struct {
	Prompt string    `json:"prompt"`
	Image  *veoImage `json:"image,omitempty"`
}

type veoParameters struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

type veoSubmitRequest struct {
	Instances  []veoInstance  `json:"instances"`
	Parameters *veoParameters `json:"parameters,omitempty"`
}

type veoStatus struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type veoOperation struct {
	Name     string     `json:"name"`
	Done     bool       `json:"done"`
	Error    *veoStatus `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

// Submit starts a long-running generation and returns the operation name.
func (v *Veo) Submit(ctx context.Context, req domain.GenerationRequest) (string, error) {
	token, err := v.token(ctx)
	if err != nil {
		return "", err
	}
	payload := veoSubmitRequest{
		Instances: []veoInstance{{Prompt: buildVideoPrompt(req)}},
		Parameters: &veoParameters{
			AspectRatio:     req.AspectRatio,
			DurationSeconds: targetDuration(req),
		},
	}
	if ref := firstInlineReference(req); ref != nil {
		payload.Instances[0].Image = &veoImage{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(ref.Data),
			MimeType:           ref.MIME,
		}
	}

	endpoint := fmt.Sprintf("%s/models/%s:predictLongRunning", v.baseURL, url.PathEscape(v.model))
	var op veoOperation
	if err := v.invoke(ctx, http.MethodPost, endpoint, token, payload, &op); err != nil {
		return "", err
	}
	if op.Name == "" {
		return "", fmt.Errorf("%w: veo returned no operation name", domain.ErrProviderFailure)
	}
	v.logger.Debug().Str("operation", op.Name).Str("job_id", req.JobID).Msg("veo operation submitted")
	return op.Name, nil
}

// Poll reads the operation state once.
func (v *Veo) Poll(ctx context.Context, handle string) (asyncop.PollStatus, error) {
	token, err := v.token(ctx)
	if err != nil {
		return asyncop.PollStatus{}, err
	}
	endpoint := v.baseURL + "/" + strings.TrimLeft(handle, "/")
	var op veoOperation
	if err := v.invoke(ctx, http.MethodGet, endpoint, token, nil, &op); err != nil {
		return asyncop.PollStatus{}, err
	}
	if !op.Done {
		return asyncop.Pending(0), nil
	}
	if op.Error != nil {
		return asyncop.Failed(fmt.Sprintf("veo code %d: %s", op.Error.Code, op.Error.Message)), nil
	}
	if op.Response != nil {
		for _, sample := range op.Response.GenerateVideoResponse.GeneratedSamples {
			if uri := strings.TrimSpace(sample.Video.URI); uri != "" {
				return asyncop.Done(uri), nil
			}
		}
	}
	return asyncop.Failed("veo finished without a video sample"), nil
}

// Fetch downloads the finished video and attaches metadata.
func (v *Veo) Fetch(ctx context.Context, req domain.GenerationRequest, artifactRef string) (*domain.Artifact, error) {
	token, err := v.token(ctx)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, artifactRef, nil)
	if err != nil {
		return nil, fmt.Errorf("veo: build download request: %w", err)
	}
	q := httpReq.URL.Query()
	q.Set("key", token)
	httpReq.URL.RawQuery = q.Encode()

	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("veo: download video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, statusError("veo", resp.StatusCode, "download failed")
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("veo: read video: %w", err)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
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
		Provider:        v.Name(),
		CostEstimate:    float64(duration) * veoCostPerSecond,
	}, nil
}

func (v *Veo) token(ctx context.Context) (string, error) {
	if v.creds == nil {
		return "", ErrMissingAPIKey
	}
	token, err := v.creds.Token(ctx, credentials.ProviderVeo)
	if err != nil {
		return "", fmt.Errorf("veo: resolve token: %w", err)
	}
	if token == "" {
		return "", ErrMissingAPIKey
	}
	return token, nil
}

func (v *Veo) invoke(ctx context.Context, method, endpoint, token string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("veo: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("veo: build request: %w", err)
	}
	q := httpReq.URL.Query()
	q.Set("key", token)
	httpReq.URL.RawQuery = q.Encode()
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("veo: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("veo: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail struct {
			Error veoStatus `json:"error"`
		}
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Error.Message != "" {
			return statusError("veo", resp.StatusCode, detail.Error.Message)
		}
		return statusError("veo", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("veo: decode response: %w", err)
	}
	return nil
}

func buildVideoPrompt(req domain.GenerationRequest) string {
	var b strings.Builder
	if script := strings.TrimSpace(req.Script); script != "" {
		b.WriteString(script)
	}
	if style := strings.TrimSpace(req.Style); style != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Visual style: ")
		b.WriteString(style)
	}
	if b.Len() == 0 {
		b.WriteString("Create a short promotional product video")
	}
	return b.String()
}

// statusError classifies an HTTP failure: client errors are declared
// provider failures the chain cascades past, server errors stay transient
// and eligible for retry.
func statusError(provider string, code int, detail string) error {
	if code >= 400 && code < 500 {
		return fmt.Errorf("%w: %s status %d: %s", domain.ErrProviderFailure, provider, code, detail)
	}
	return fmt.Errorf("%s status %d: %s", provider, code, detail)
}

var _ AsyncGenerator = (*Veo)(nil)
