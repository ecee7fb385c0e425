package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// graphError is the Graph API error envelope shared by the Instagram and
// Facebook surfaces.
type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Subcode int    `json:"error_subcode"`
}

func graphPostForm(ctx context.Context, client *http.Client, platform, rawURL string, form url.Values, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", platform, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return graphDo(client, platform, httpReq, out)
}

func graphGet(ctx context.Context, client *http.Client, platform, rawURL string, params url.Values, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", platform, err)
	}
	return graphDo(client, platform, httpReq, out)
}

func graphDo(client *http.Client, platform string, httpReq *http.Request, out any) error {
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: http request: %w", platform, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", platform, err)
	}
	if resp.StatusCode >= 300 {
		return statusError(platform, resp.StatusCode, graphMessage(raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", platform, err)
		}
	}
	return nil
}

// graphMessage extracts the envelope message when one is present; raw body
// otherwise.
func graphMessage(raw []byte) string {
	var envelope struct {
		Error *graphError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
