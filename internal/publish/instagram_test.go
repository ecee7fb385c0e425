package publish

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
	"promoreel/internal/infra/credentials"
)

func newTestInstagram(transport *scriptedTransport) *Instagram {
	return NewInstagram(InstagramOptions{
		Credentials:      credentials.Static{credentials.ProviderInstagram: "ig-token"},
		BaseURL:          "https://graph.test",
		UserID:           "ig-user",
		HTTPClient:       &http.Client{Transport: transport},
		RetryMaxAttempts: 3,
		RetryBaseDelay:   time.Millisecond,
		PollInterval:     time.Millisecond,
		PollMaxAttempts:  5,
		Logger:           zerolog.Nop(),
	})
}

func formBody(t *testing.T, call wireCall) url.Values {
	t.Helper()
	values, err := url.ParseQuery(string(call.body))
	if err != nil {
		t.Fatalf("parse form body: %v", err)
	}
	return values
}

func TestInstagramPublishCreatesContainerThenCommitsOnce(t *testing.T) {
	transport := newScriptedTransport()
	transport.respondJSON("POST /ig-user/media", http.StatusOK, map[string]any{"id": "cont-1"})
	transport.respondJSON("GET /cont-1", http.StatusOK, map[string]any{"status_code": "IN_PROGRESS"})
	transport.respondJSON("GET /cont-1", http.StatusOK, map[string]any{"status_code": "FINISHED"})
	transport.respondJSON("POST /ig-user/media_publish", http.StatusOK, map[string]any{"id": "media-9"})
	transport.respondJSON("GET /media-9", http.StatusOK, map[string]any{"permalink": "https://www.instagram.com/reel/abc123/"})

	ig := newTestInstagram(transport)
	result, err := ig.Publish(context.Background(), Request{
		TaskID:      "task-1",
		JobID:       "job-1",
		Caption:     "Fresh bread, baked every morning",
		ArtifactURL: "https://cdn.test/videos/job-1.mp4",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.PostID != "media-9" {
		t.Fatalf("post id = %q", result.PostID)
	}
	if result.PostURL != "https://www.instagram.com/reel/abc123/" {
		t.Fatalf("post url = %q", result.PostURL)
	}

	containers := transport.calls("POST /ig-user/media")
	if len(containers) != 1 {
		t.Fatalf("container created %d times, want 1", len(containers))
	}
	form := formBody(t, containers[0])
	if form.Get("media_type") != "REELS" {
		t.Fatalf("media_type = %q", form.Get("media_type"))
	}
	if form.Get("video_url") != "https://cdn.test/videos/job-1.mp4" {
		t.Fatalf("video_url = %q", form.Get("video_url"))
	}
	if form.Get("caption") != "Fresh bread, baked every morning" {
		t.Fatalf("caption = %q", form.Get("caption"))
	}
	if form.Get("access_token") != "ig-token" {
		t.Fatalf("access_token = %q", form.Get("access_token"))
	}

	if got := len(transport.calls("GET /cont-1")); got != 2 {
		t.Fatalf("container polled %d times, want 2", got)
	}
	commits := transport.calls("POST /ig-user/media_publish")
	if len(commits) != 1 {
		t.Fatalf("media_publish called %d times, want exactly 1", len(commits))
	}
	if got := formBody(t, commits[0]).Get("creation_id"); got != "cont-1" {
		t.Fatalf("creation_id = %q", got)
	}
}

func TestInstagramContainerErrorIsDeclared(t *testing.T) {
	transport := newScriptedTransport()
	transport.respondJSON("POST /ig-user/media", http.StatusOK, map[string]any{"id": "cont-2"})
	transport.respondJSON("GET /cont-2", http.StatusOK, map[string]any{"status_code": "ERROR"})

	ig := newTestInstagram(transport)
	_, err := ig.Publish(context.Background(), Request{JobID: "job-2", ArtifactURL: "https://cdn.test/v.mp4"})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("want declared provider failure, got: %v", err)
	}
	if got := len(transport.calls("POST /ig-user/media_publish")); got != 0 {
		t.Fatalf("media_publish called %d times after container error, want 0", got)
	}
}

func TestInstagramContainerCreateRetriesTransientErrors(t *testing.T) {
	transport := newScriptedTransport()
	transport.respondJSON("POST /ig-user/media", http.StatusBadGateway, map[string]any{
		"error": map[string]any{"message": "upstream overloaded"},
	})
	transport.respondJSON("POST /ig-user/media", http.StatusOK, map[string]any{"id": "cont-3"})
	transport.respondJSON("GET /cont-3", http.StatusOK, map[string]any{"status_code": "FINISHED"})
	transport.respondJSON("POST /ig-user/media_publish", http.StatusOK, map[string]any{"id": "media-3"})
	transport.respondJSON("GET /media-3", http.StatusOK, map[string]any{"permalink": "https://www.instagram.com/reel/x/"})

	ig := newTestInstagram(transport)
	result, err := ig.Publish(context.Background(), Request{JobID: "job-3", ArtifactURL: "https://cdn.test/v.mp4"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.PostID != "media-3" {
		t.Fatalf("post id = %q", result.PostID)
	}
	if got := len(transport.calls("POST /ig-user/media")); got != 2 {
		t.Fatalf("container create tried %d times, want 2", got)
	}
}

func TestInstagramCommitFailureIsNotRetried(t *testing.T) {
	transport := newScriptedTransport()
	transport.respondJSON("POST /ig-user/media", http.StatusOK, map[string]any{"id": "cont-4"})
	transport.respondJSON("GET /cont-4", http.StatusOK, map[string]any{"status_code": "FINISHED"})
	transport.respondJSON("POST /ig-user/media_publish", http.StatusBadRequest, map[string]any{
		"error": map[string]any{"message": "media not ready", "code": 9007},
	})

	ig := newTestInstagram(transport)
	_, err := ig.Publish(context.Background(), Request{JobID: "job-4", ArtifactURL: "https://cdn.test/v.mp4"})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("want declared provider failure, got: %v", err)
	}
	if !strings.Contains(err.Error(), "media not ready") {
		t.Fatalf("error should carry the graph message, got: %v", err)
	}
	if got := len(transport.calls("POST /ig-user/media_publish")); got != 1 {
		t.Fatalf("media_publish called %d times, want exactly 1", got)
	}
}

func TestInstagramPermalinkFailureIsTolerated(t *testing.T) {
	transport := newScriptedTransport()
	transport.respondJSON("POST /ig-user/media", http.StatusOK, map[string]any{"id": "cont-5"})
	transport.respondJSON("GET /cont-5", http.StatusOK, map[string]any{"status_code": "FINISHED"})
	transport.respondJSON("POST /ig-user/media_publish", http.StatusOK, map[string]any{"id": "media-5"})
	transport.respondJSON("GET /media-5", http.StatusInternalServerError, map[string]any{
		"error": map[string]any{"message": "internal"},
	})

	ig := newTestInstagram(transport)
	result, err := ig.Publish(context.Background(), Request{JobID: "job-5", ArtifactURL: "https://cdn.test/v.mp4"})
	if err != nil {
		t.Fatalf("permalink trouble must not fail the publish: %v", err)
	}
	if result.PostID != "media-5" {
		t.Fatalf("post id = %q", result.PostID)
	}
	if result.PostURL != "" {
		t.Fatalf("post url = %q, want empty when permalink lookup fails", result.PostURL)
	}
}

func TestInstagramUnavailableWithoutUserID(t *testing.T) {
	ig := NewInstagram(InstagramOptions{
		Credentials: credentials.Static{credentials.ProviderInstagram: "ig-token"},
		Logger:      zerolog.Nop(),
	})
	if ig.Available() {
		t.Fatalf("instagram should be unavailable without a business user id")
	}
}
