package publish

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/asyncop"
	"promoreel/internal/domain"
	"promoreel/internal/infra/credentials"
	"promoreel/internal/retry"
)

type InstagramOptions struct {
	Credentials      credentials.Source
	BaseURL          string
	UserID           string
	HTTPClient       *http.Client
	Retry            *retry.Executor
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	Poller           *asyncop.Poller
	PollInterval     time.Duration
	PollMaxAttempts  int
	Logger           zerolog.Logger
}

// Instagram publishes a reel in three Graph API moves: create a media
// container, poll its status_code until processing finishes, then commit
// with media_publish. Container creation is safe to retry; the commit is a
// single shot because a second commit would publish twice.
type Instagram struct {
	creds        credentials.Source
	baseURL      string
	userID       string
	client       *http.Client
	retry        *retry.Executor
	retryMax     int
	retryDelay   time.Duration
	poller       *asyncop.Poller
	pollInterval time.Duration
	pollMax      int
	logger       zerolog.Logger
}

func NewInstagram(opts InstagramOptions) *Instagram {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v19.0"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	executor := opts.Retry
	if executor == nil {
		executor = retry.NewExecutor(opts.Logger)
	}
	retryMax := opts.RetryMaxAttempts
	if retryMax <= 0 {
		retryMax = 3
	}
	retryDelay := opts.RetryBaseDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
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
	return &Instagram{
		creds:        opts.Credentials,
		baseURL:      baseURL,
		userID:       strings.TrimSpace(opts.UserID),
		client:       client,
		retry:        executor,
		retryMax:     retryMax,
		retryDelay:   retryDelay,
		poller:       poller,
		pollInterval: interval,
		pollMax:      pollMax,
		logger:       opts.Logger.With().Str("platform", "instagram").Logger(),
	}
}

func (i *Instagram) Platform() domain.Platform {
	return domain.PlatformInstagram
}

func (i *Instagram) Available() bool {
	return i.creds != nil && i.creds.Available(credentials.ProviderInstagram) && i.userID != ""
}

func (i *Instagram) Publish(ctx context.Context, req Request) (*Result, error) {
	submit := func(ctx context.Context) (string, error) {
		var containerID string
		err := i.retry.Do(ctx, "instagram create container", i.retryMax, i.retryDelay, func(ctx context.Context) error {
			id, err := i.createContainer(ctx, req)
			if err != nil {
				return err
			}
			containerID = id
			return nil
		})
		return containerID, err
	}
	poll := func(ctx context.Context, containerID string) (asyncop.PollStatus, error) {
		return i.containerStatus(ctx, containerID)
	}
	containerID, err := asyncop.AwaitCompletion(ctx, i.poller, "instagram container", submit, poll, i.pollInterval, i.pollMax)
	if err != nil {
		return nil, err
	}

	mediaID, err := i.commit(ctx, containerID)
	if err != nil {
		return nil, err
	}

	permalink, err := i.permalink(ctx, mediaID)
	if err != nil {
		i.logger.Warn().Err(err).Str("media_id", mediaID).Msg("permalink lookup failed")
		permalink = ""
	}
	return &Result{PostID: mediaID, PostURL: permalink}, nil
}

// createContainer registers the reel for ingestion. Instagram pulls the
// video from the artifact URL on its own schedule.
func (i *Instagram) createContainer(ctx context.Context, req Request) (string, error) {
	token, err := i.token(ctx)
	if err != nil {
		return "", err
	}
	form := url.Values{
		"media_type":   {"REELS"},
		"video_url":    {req.ArtifactURL},
		"caption":      {req.Caption},
		"access_token": {token},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := graphPostForm(ctx, i.client, "instagram", i.baseURL+"/"+i.userID+"/media", form, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: instagram returned no container id", domain.ErrProviderFailure)
	}
	return out.ID, nil
}

func (i *Instagram) containerStatus(ctx context.Context, containerID string) (asyncop.PollStatus, error) {
	token, err := i.token(ctx)
	if err != nil {
		return asyncop.PollStatus{}, err
	}
	params := url.Values{
		"fields":       {"status_code"},
		"access_token": {token},
	}
	var out struct {
		StatusCode string `json:"status_code"`
	}
	if err := graphGet(ctx, i.client, "instagram", i.baseURL+"/"+containerID, params, &out); err != nil {
		return asyncop.PollStatus{}, err
	}
	switch out.StatusCode {
	case "FINISHED":
		return asyncop.Done(containerID), nil
	case "ERROR", "EXPIRED":
		return asyncop.Failed("instagram container " + strings.ToLower(out.StatusCode)), nil
	default:
		return asyncop.Pending(0), nil
	}
}

// commit publishes the finished container. Called exactly once per task.
func (i *Instagram) commit(ctx context.Context, containerID string) (string, error) {
	token, err := i.token(ctx)
	if err != nil {
		return "", err
	}
	form := url.Values{
		"creation_id":  {containerID},
		"access_token": {token},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := graphPostForm(ctx, i.client, "instagram", i.baseURL+"/"+i.userID+"/media_publish", form, &out); err != nil {
		return "", fmt.Errorf("instagram media_publish: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: instagram publish returned no media id", domain.ErrProviderFailure)
	}
	i.logger.Info().Str("media_id", out.ID).Msg("reel published")
	return out.ID, nil
}

func (i *Instagram) permalink(ctx context.Context, mediaID string) (string, error) {
	token, err := i.token(ctx)
	if err != nil {
		return "", err
	}
	params := url.Values{
		"fields":       {"permalink"},
		"access_token": {token},
	}
	var out struct {
		Permalink string `json:"permalink"`
	}
	err = i.retry.Do(ctx, "instagram permalink", i.retryMax, i.retryDelay, func(ctx context.Context) error {
		return graphGet(ctx, i.client, "instagram", i.baseURL+"/"+mediaID, params, &out)
	})
	if err != nil {
		return "", err
	}
	return out.Permalink, nil
}

func (i *Instagram) token(ctx context.Context) (string, error) {
	if i.creds == nil {
		return "", ErrMissingAccessToken
	}
	token, err := i.creds.Token(ctx, credentials.ProviderInstagram)
	if err != nil {
		return "", fmt.Errorf("instagram: resolve token: %w", err)
	}
	if token == "" {
		return "", ErrMissingAccessToken
	}
	return token, nil
}

var _ Publisher = (*Instagram)(nil)
