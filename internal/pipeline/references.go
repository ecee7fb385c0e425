package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
	"promoreel/internal/storage"
)

// maxReferenceBytes caps a single downloaded reference asset.
const maxReferenceBytes = 10 << 20

// Resolver turns the reference keys and URLs on a creation request into
// in-memory assets for the generation providers. Individual failures are
// tolerated and logged; at least one asset must resolve.
type Resolver struct {
	store  storage.Store
	client *http.Client
	logger zerolog.Logger
}

type ResolverOptions struct {
	Store      storage.Store
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

func NewResolver(opts ResolverOptions) *Resolver {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Resolver{
		store:  opts.Store,
		client: client,
		logger: opts.Logger.With().Str("component", "references").Logger(),
	}
}

// Resolve loads every requested reference, skipping the ones that fail.
// A request without references, or one where nothing resolves, is rejected
// as invalid.
func (r *Resolver) Resolve(ctx context.Context, req domain.CreationRequest) ([]domain.ReferenceAsset, error) {
	requested := len(req.ReferenceKeys) + len(req.ReferenceURLs)
	if requested == 0 {
		return nil, fmt.Errorf("%w: at least one reference image is required", domain.ErrInvalidRequest)
	}

	assets := make([]domain.ReferenceAsset, 0, requested)
	for _, key := range req.ReferenceKeys {
		asset, err := r.fromStorage(ctx, key)
		if err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("stored reference skipped")
			continue
		}
		assets = append(assets, asset)
	}
	for _, rawURL := range req.ReferenceURLs {
		asset, err := r.fromURL(ctx, rawURL)
		if err != nil {
			r.logger.Warn().Err(err).Str("url", rawURL).Msg("remote reference skipped")
			continue
		}
		assets = append(assets, asset)
	}

	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: no reference assets could be resolved", domain.ErrInvalidRequest)
	}
	return assets, nil
}

func (r *Resolver) fromStorage(ctx context.Context, key string) (domain.ReferenceAsset, error) {
	if r.store == nil {
		return domain.ReferenceAsset{}, fmt.Errorf("no object store configured")
	}
	data, err := r.store.Read(ctx, key)
	if err != nil {
		return domain.ReferenceAsset{}, err
	}
	return domain.ReferenceAsset{
		Name: path.Base(key),
		MIME: http.DetectContentType(data),
		Data: data,
	}, nil
}

func (r *Resolver) fromURL(ctx context.Context, rawURL string) (domain.ReferenceAsset, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return domain.ReferenceAsset{}, fmt.Errorf("unsupported reference url")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.ReferenceAsset{}, err
	}
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return domain.ReferenceAsset{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ReferenceAsset{}, fmt.Errorf("reference fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReferenceBytes+1))
	if err != nil {
		return domain.ReferenceAsset{}, err
	}
	if len(data) == 0 {
		return domain.ReferenceAsset{}, fmt.Errorf("reference body was empty")
	}
	if len(data) > maxReferenceBytes {
		return domain.ReferenceAsset{}, fmt.Errorf("reference exceeds %d bytes", maxReferenceBytes)
	}

	mime := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.TrimSpace(mime)
	if mime == "" {
		mime = http.DetectContentType(data)
	}

	name := path.Base(parsed.Path)
	if name == "" || name == "/" || name == "." {
		name = "reference"
	}
	return domain.ReferenceAsset{
		Name:      name,
		MIME:      mime,
		Data:      data,
		SourceURL: rawURL,
	}, nil
}
