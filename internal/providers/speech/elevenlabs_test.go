package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
	"promoreel/internal/infra/credentials"
)

type audioTransport struct {
	status     int
	body       []byte
	header     http.Header
	lastBody   []byte
	lastHeader http.Header
	lastPath   string
}

func (a *audioTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	a.lastHeader = req.Header.Clone()
	a.lastPath = req.URL.Path
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		a.lastBody = body
	}
	header := a.header
	if header == nil {
		header = http.Header{"Content-Type": []string{"audio/mpeg"}}
	}
	return &http.Response{
		StatusCode: a.status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(a.body)),
	}, nil
}

func TestElevenLabsSynthesizeBuildsRequest(t *testing.T) {
	transport := &audioTransport{status: http.StatusOK, body: []byte("ID3fake-mp3-bytes")}
	e := NewElevenLabs(ElevenLabsOptions{
		Credentials: credentials.Static{credentials.ProviderElevenLabs: "xi-secret"},
		HTTPClient:  &http.Client{Transport: transport},
		Logger:      zerolog.Nop(),
	})

	clip, err := e.Synthesize(context.Background(), Request{JobID: "job-1", Text: "Fresh bread, baked every morning."})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if transport.lastPath != "/v1/text-to-speech/21m00Tcm4TlvDq8ikWAM" {
		t.Fatalf("path = %q, want default voice route", transport.lastPath)
	}
	if got := transport.lastHeader.Get("xi-api-key"); got != "xi-secret" {
		t.Fatalf("xi-api-key = %q", got)
	}
	if got := transport.lastHeader.Get("Accept"); got != "audio/mpeg" {
		t.Fatalf("accept = %q, want audio/mpeg", got)
	}

	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["text"] != "Fresh bread, baked every morning." {
		t.Fatalf("text = %v", payload["text"])
	}
	if payload["model_id"] != "eleven_multilingual_v2" {
		t.Fatalf("model_id = %v", payload["model_id"])
	}
	if _, ok := payload["voice_settings"].(map[string]any); !ok {
		t.Fatalf("voice_settings missing from payload")
	}

	if !bytes.Equal(clip.Data, []byte("ID3fake-mp3-bytes")) {
		t.Fatalf("clip bytes mismatch")
	}
	if clip.MIME != "audio/mpeg" {
		t.Fatalf("mime = %q, want audio/mpeg", clip.MIME)
	}
	if clip.Provider != "elevenlabs" {
		t.Fatalf("provider = %q", clip.Provider)
	}
	if clip.CostEstimate <= 0 {
		t.Fatalf("cost estimate should be positive, got %f", clip.CostEstimate)
	}
}

func TestElevenLabsCustomVoiceOverridesDefault(t *testing.T) {
	transport := &audioTransport{status: http.StatusOK, body: []byte("audio")}
	e := NewElevenLabs(ElevenLabsOptions{
		Credentials: credentials.Static{credentials.ProviderElevenLabs: "xi-secret"},
		HTTPClient:  &http.Client{Transport: transport},
		Logger:      zerolog.Nop(),
	})
	if _, err := e.Synthesize(context.Background(), Request{JobID: "job-2", Text: "hi", Voice: "pNInz6obpgDQGcFmaJgB"}); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if transport.lastPath != "/v1/text-to-speech/pNInz6obpgDQGcFmaJgB" {
		t.Fatalf("path = %q, want requested voice route", transport.lastPath)
	}
}

func TestElevenLabsClassifiesErrors(t *testing.T) {
	detail, _ := json.Marshal(map[string]any{
		"detail": map[string]any{"status": "invalid_api_key", "message": "Invalid API key."},
	})
	transport := &audioTransport{
		status: http.StatusUnauthorized,
		body:   detail,
		header: http.Header{"Content-Type": []string{"application/json"}},
	}
	e := NewElevenLabs(ElevenLabsOptions{
		Credentials: credentials.Static{credentials.ProviderElevenLabs: "bad"},
		HTTPClient:  &http.Client{Transport: transport},
		Logger:      zerolog.Nop(),
	})

	_, err := e.Synthesize(context.Background(), Request{JobID: "job-3", Text: "hi"})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("4xx should be a declared provider failure, got: %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid API key.") {
		t.Fatalf("error should carry the upstream message, got: %v", err)
	}

	transport.status = http.StatusServiceUnavailable
	transport.body = []byte("overloaded")
	transport.header = http.Header{"Content-Type": []string{"text/plain"}}
	_, err = e.Synthesize(context.Background(), Request{JobID: "job-3", Text: "hi"})
	if err == nil {
		t.Fatalf("expected error for 503")
	}
	if errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("5xx must stay transient, got declared failure: %v", err)
	}
}

func TestElevenLabsMissingKey(t *testing.T) {
	e := NewElevenLabs(ElevenLabsOptions{Credentials: credentials.Static{}, Logger: zerolog.Nop()})
	if e.Available() {
		t.Fatalf("elevenlabs should be unavailable without a key")
	}
	_, err := e.Synthesize(context.Background(), Request{JobID: "job-4", Text: "hi"})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("synthesize without key: %v, want ErrMissingAPIKey", err)
	}
}
