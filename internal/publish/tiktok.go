package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/asyncop"
	"promoreel/internal/domain"
	"promoreel/internal/infra/credentials"
)

type TikTokOptions struct {
	Credentials     credentials.Source
	BaseURL         string
	HTTPClient      *http.Client
	Poller          *asyncop.Poller
	PollInterval    time.Duration
	PollMaxAttempts int
	Logger          zerolog.Logger
}

// TikTok publishes through the Content Posting API: one PULL_FROM_URL init
// referencing the stored artifact, then status polls until the post lands.
// The init call is never retried; a blind re-submission could double-post.
type TikTok struct {
	creds        credentials.Source
	baseURL      string
	client       *http.Client
	poller       *asyncop.Poller
	pollInterval time.Duration
	pollMax      int
	logger       zerolog.Logger
}

func NewTikTok(opts TikTokOptions) *TikTok {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://open.tiktokapis.com/v2"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	poller := opts.Poller
	if poller == nil {
		poller = asyncop.NewPoller(opts.Logger)
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	pollMax := opts.PollMaxAttempts
	if pollMax <= 0 {
		pollMax = 60
	}
	return &TikTok{
		creds:        opts.Credentials,
		baseURL:      baseURL,
		client:       client,
		poller:       poller,
		pollInterval: interval,
		pollMax:      pollMax,
		logger:       opts.Logger.With().Str("platform", "tiktok").Logger(),
	}
}

func (t *TikTok) Platform() domain.Platform {
	return domain.PlatformTikTok
}

func (t *TikTok) Available() bool {
	return t.creds != nil && t.creds.Available(credentials.ProviderTikTok)
}

type tiktokError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

func (e tiktokError) ok() bool {
	return e.Code == "" || e.Code == "ok"
}

type tiktokInitRequest struct {
	PostInfo   tiktokPostInfo   `json:"post_info"`
	SourceInfo tiktokSourceInfo `json:"source_info"`
}

type tiktokPostInfo struct {
	Title        string `json:"title"`
	PrivacyLevel string `json:"privacy_level"`
}

type tiktokSourceInfo struct {
	Source   string `json:"source"`
	VideoURL string `json:"video_url"`
}

type tiktokInitResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
	} `json:"data"`
	Error tiktokError `json:"error"`
}

type tiktokStatusResponse struct {
	Data struct {
		Status     string  `json:"status"`
		FailReason string  `json:"fail_reason"`
		PostIDs    []int64 `json:"publicaly_available_post_id"`
	} `json:"data"`
	Error tiktokError `json:"error"`
}

func (t *TikTok) Publish(ctx context.Context, req Request) (*Result, error) {
	submit := func(ctx context.Context) (string, error) {
		return t.initPublish(ctx, req)
	}
	poll := func(ctx context.Context, publishID string) (asyncop.PollStatus, error) {
		return t.fetchStatus(ctx, publishID)
	}
	postID, err := asyncop.AwaitCompletion(ctx, t.poller, "tiktok publish", submit, poll, t.pollInterval, t.pollMax)
	if err != nil {
		return nil, err
	}
	return &Result{PostID: postID}, nil
}

func (t *TikTok) initPublish(ctx context.Context, req Request) (string, error) {
	payload := tiktokInitRequest{
		PostInfo: tiktokPostInfo{
			Title:        req.Caption,
			PrivacyLevel: "PUBLIC_TO_EVERYONE",
		},
		SourceInfo: tiktokSourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: req.ArtifactURL,
		},
	}
	var out tiktokInitResponse
	if err := t.invoke(ctx, "/post/publish/video/init/", payload, &out); err != nil {
		return "", err
	}
	if !out.Error.ok() {
		return "", fmt.Errorf("%w: tiktok init rejected: %s (%s)", domain.ErrProviderFailure, out.Error.Message, out.Error.Code)
	}
	if out.Data.PublishID == "" {
		return "", fmt.Errorf("%w: tiktok init returned no publish id", domain.ErrProviderFailure)
	}
	t.logger.Info().Str("publish_id", out.Data.PublishID).Str("job_id", req.JobID).Msg("pull-from-url publish accepted")
	return out.Data.PublishID, nil
}

func (t *TikTok) fetchStatus(ctx context.Context, publishID string) (asyncop.PollStatus, error) {
	var out tiktokStatusResponse
	if err := t.invoke(ctx, "/post/publish/status/fetch/", map[string]string{"publish_id": publishID}, &out); err != nil {
		return asyncop.PollStatus{}, err
	}
	if !out.Error.ok() {
		return asyncop.Failed(fmt.Sprintf("tiktok %s (%s)", out.Error.Message, out.Error.Code)), nil
	}
	switch out.Data.Status {
	case "PUBLISH_COMPLETE":
		postID := publishID
		if len(out.Data.PostIDs) > 0 {
			postID = strconv.FormatInt(out.Data.PostIDs[0], 10)
		}
		return asyncop.Done(postID), nil
	case "FAILED":
		reason := out.Data.FailReason
		if reason == "" {
			reason = "publish failed"
		}
		return asyncop.Failed("tiktok " + reason), nil
	default:
		return asyncop.Pending(0), nil
	}
}

func (t *TikTok) invoke(ctx context.Context, path string, payload any, out any) error {
	token, err := t.token(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("tiktok: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("tiktok: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("tiktok: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("tiktok: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return statusError("tiktok", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("tiktok: decode response: %w", err)
	}
	return nil
}

func (t *TikTok) token(ctx context.Context) (string, error) {
	if t.creds == nil {
		return "", ErrMissingAccessToken
	}
	token, err := t.creds.Token(ctx, credentials.ProviderTikTok)
	if err != nil {
		return "", fmt.Errorf("tiktok: resolve token: %w", err)
	}
	if token == "" {
		return "", ErrMissingAccessToken
	}
	return token, nil
}

var _ Publisher = (*TikTok)(nil)
