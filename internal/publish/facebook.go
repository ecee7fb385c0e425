package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/asyncop"
	"promoreel/internal/domain"
	"promoreel/internal/infra/credentials"
)

type FacebookOptions struct {
	Credentials     credentials.Source
	BaseURL         string
	PageID          string
	HTTPClient      *http.Client
	Poller          *asyncop.Poller
	PollInterval    time.Duration
	PollMaxAttempts int
	Logger          zerolog.Logger
}

// Facebook publishes through the resumable upload protocol: start allocates
// a session with offsets, transfer streams ranges of the stored artifact
// until the offsets converge, finish commits with the caption. Any phase
// failure is terminal for the task; start is never re-invoked for a failed
// session, and no phase is blindly retried.
type Facebook struct {
	creds        credentials.Source
	baseURL      string
	pageID       string
	client       *http.Client
	poller       *asyncop.Poller
	pollInterval time.Duration
	pollMax      int
	logger       zerolog.Logger
}

func NewFacebook(opts FacebookOptions) *Facebook {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v19.0"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
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
	return &Facebook{
		creds:        opts.Credentials,
		baseURL:      baseURL,
		pageID:       strings.TrimSpace(opts.PageID),
		client:       client,
		poller:       poller,
		pollInterval: interval,
		pollMax:      pollMax,
		logger:       opts.Logger.With().Str("platform", "facebook").Logger(),
	}
}

func (f *Facebook) Platform() domain.Platform {
	return domain.PlatformFacebook
}

func (f *Facebook) Available() bool {
	return f.creds != nil && f.creds.Available(credentials.ProviderFacebook) && f.pageID != ""
}

type fbSession struct {
	ID      string
	VideoID string
	Start   int64
	End     int64
}

func (f *Facebook) Publish(ctx context.Context, req Request) (*Result, error) {
	submit := func(ctx context.Context) (string, error) {
		return f.upload(ctx, req)
	}
	poll := func(ctx context.Context, videoID string) (asyncop.PollStatus, error) {
		return f.processingStatus(ctx, videoID)
	}
	videoID, err := asyncop.AwaitCompletion(ctx, f.poller, "facebook publish", submit, poll, f.pollInterval, f.pollMax)
	if err != nil {
		return nil, err
	}
	return &Result{
		PostID:  videoID,
		PostURL: "https://www.facebook.com/watch/?v=" + videoID,
	}, nil
}

// upload runs the three phases sequentially and returns the video id once
// finish is accepted.
func (f *Facebook) upload(ctx context.Context, req Request) (string, error) {
	size, err := f.artifactSize(ctx, req.ArtifactURL)
	if err != nil {
		return "", fmt.Errorf("facebook: probe artifact size: %w", err)
	}

	session, err := f.start(ctx, size)
	if err != nil {
		return "", err
	}
	f.logger.Info().
		Str("session_id", session.ID).
		Str("video_id", session.VideoID).
		Int64("bytes", size).
		Msg("upload session opened")

	for session.Start != session.End {
		chunk, err := f.fetchChunk(ctx, req.ArtifactURL, session.Start, session.End)
		if err != nil {
			return "", fmt.Errorf("facebook transfer: fetch range %d-%d: %w", session.Start, session.End, err)
		}
		nextStart, nextEnd, err := f.transfer(ctx, session.ID, session.Start, chunk)
		if err != nil {
			return "", err
		}
		if nextStart == session.Start && nextEnd == session.End {
			return "", fmt.Errorf("%w: facebook transfer made no progress at offset %d", domain.ErrProviderFailure, session.Start)
		}
		session.Start, session.End = nextStart, nextEnd
	}

	if err := f.finish(ctx, session.ID, req.Caption); err != nil {
		return "", err
	}
	return session.VideoID, nil
}

func (f *Facebook) start(ctx context.Context, size int64) (fbSession, error) {
	token, err := f.token(ctx)
	if err != nil {
		return fbSession{}, err
	}
	form := url.Values{
		"upload_phase": {"start"},
		"file_size":    {strconv.FormatInt(size, 10)},
		"access_token": {token},
	}
	var out struct {
		SessionID   string `json:"upload_session_id"`
		VideoID     string `json:"video_id"`
		StartOffset string `json:"start_offset"`
		EndOffset   string `json:"end_offset"`
	}
	if err := graphPostForm(ctx, f.client, "facebook", f.baseURL+"/"+f.pageID+"/videos", form, &out); err != nil {
		return fbSession{}, fmt.Errorf("facebook start: %w", err)
	}
	if out.SessionID == "" || out.VideoID == "" {
		return fbSession{}, fmt.Errorf("%w: facebook start returned no session", domain.ErrProviderFailure)
	}
	start, err := strconv.ParseInt(out.StartOffset, 10, 64)
	if err != nil {
		return fbSession{}, fmt.Errorf("facebook start: bad start_offset %q", out.StartOffset)
	}
	end, err := strconv.ParseInt(out.EndOffset, 10, 64)
	if err != nil {
		return fbSession{}, fmt.Errorf("facebook start: bad end_offset %q", out.EndOffset)
	}
	return fbSession{ID: out.SessionID, VideoID: out.VideoID, Start: start, End: end}, nil
}

func (f *Facebook) transfer(ctx context.Context, sessionID string, offset int64, chunk []byte) (int64, int64, error) {
	token, err := f.token(ctx)
	if err != nil {
		return 0, 0, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	fields := map[string]string{
		"upload_phase":      "transfer",
		"upload_session_id": sessionID,
		"start_offset":      strconv.FormatInt(offset, 10),
		"access_token":      token,
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return 0, 0, fmt.Errorf("facebook transfer: encode form: %w", err)
		}
	}
	part, err := writer.CreateFormFile("video_file_chunk", "chunk.mp4")
	if err != nil {
		return 0, 0, fmt.Errorf("facebook transfer: encode form: %w", err)
	}
	if _, err := part.Write(chunk); err != nil {
		return 0, 0, fmt.Errorf("facebook transfer: encode form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return 0, 0, fmt.Errorf("facebook transfer: encode form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/"+f.pageID+"/videos", &body)
	if err != nil {
		return 0, 0, fmt.Errorf("facebook transfer: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	var out struct {
		StartOffset string `json:"start_offset"`
		EndOffset   string `json:"end_offset"`
	}
	if err := graphDo(f.client, "facebook", httpReq, &out); err != nil {
		return 0, 0, fmt.Errorf("facebook transfer: %w", err)
	}
	nextStart, err := strconv.ParseInt(out.StartOffset, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("facebook transfer: bad start_offset %q", out.StartOffset)
	}
	nextEnd, err := strconv.ParseInt(out.EndOffset, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("facebook transfer: bad end_offset %q", out.EndOffset)
	}
	return nextStart, nextEnd, nil
}

func (f *Facebook) finish(ctx context.Context, sessionID, caption string) error {
	token, err := f.token(ctx)
	if err != nil {
		return err
	}
	form := url.Values{
		"upload_phase":      {"finish"},
		"upload_session_id": {sessionID},
		"description":       {caption},
		"access_token":      {token},
	}
	var out struct {
		Success bool `json:"success"`
	}
	if err := graphPostForm(ctx, f.client, "facebook", f.baseURL+"/"+f.pageID+"/videos", form, &out); err != nil {
		return fmt.Errorf("facebook finish: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("%w: facebook finish was not acknowledged", domain.ErrProviderFailure)
	}
	return nil
}

func (f *Facebook) processingStatus(ctx context.Context, videoID string) (asyncop.PollStatus, error) {
	token, err := f.token(ctx)
	if err != nil {
		return asyncop.PollStatus{}, err
	}
	params := url.Values{
		"fields":       {"status"},
		"access_token": {token},
	}
	var out struct {
		Status struct {
			VideoStatus string `json:"video_status"`
		} `json:"status"`
	}
	if err := graphGet(ctx, f.client, "facebook", f.baseURL+"/"+videoID, params, &out); err != nil {
		return asyncop.PollStatus{}, err
	}
	switch out.Status.VideoStatus {
	case "ready":
		return asyncop.Done(videoID), nil
	case "error":
		return asyncop.Failed("facebook processing error"), nil
	default:
		return asyncop.Pending(0), nil
	}
}

// artifactSize probes the stored artifact without downloading it.
func (f *Facebook) artifactSize(ctx context.Context, artifactURL string) (int64, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodHead, artifactURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("artifact url returned status %d", resp.StatusCode)
	}
	if resp.ContentLength <= 0 {
		return 0, fmt.Errorf("artifact url reported no content length")
	}
	return resp.ContentLength, nil
}

// fetchChunk streams one offset range from the stored artifact URL. Local
// bytes are never re-read; the storage layer is the single source.
func (f *Facebook) fetchChunk(ctx context.Context, artifactURL string, start, end int64) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, artifactURL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end-1))

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return io.ReadAll(resp.Body)
	case http.StatusOK:
		// Server ignored the range header; slice the full body instead.
		full, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if start >= int64(len(full)) {
			return nil, fmt.Errorf("range %d-%d outside artifact of %d bytes", start, end, len(full))
		}
		if end > int64(len(full)) {
			end = int64(len(full))
		}
		return full[start:end], nil
	default:
		return nil, fmt.Errorf("artifact url returned status %d", resp.StatusCode)
	}
}

func (f *Facebook) token(ctx context.Context) (string, error) {
	if f.creds == nil {
		return "", ErrMissingAccessToken
	}
	token, err := f.creds.Token(ctx, credentials.ProviderFacebook)
	if err != nil {
		return "", fmt.Errorf("facebook: resolve token: %w", err)
	}
	if token == "" {
		return "", ErrMissingAccessToken
	}
	return token, nil
}

var _ Publisher = (*Facebook)(nil)
