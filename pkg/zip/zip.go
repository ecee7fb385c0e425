// Package zip builds the downloadable bundle for a finished job.
package zip

import (
	"archive/zip"
	"bytes"
	"time"
)

// Asset is one file inside a bundle. MIME travels with the asset so callers
// can reuse the slice for responses that serve files individually.
type Asset struct {
	Filename string
	MIME     string
	Data     []byte
}

// ArchiveAssets packs assets into a deflate-compressed zip. Assets without a
// filename are dropped. An empty result means the archive could not be
// written and must not be served.
func ArchiveAssets(assets []Asset) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	now := time.Now()
	for _, asset := range assets {
		if asset.Filename == "" {
			continue
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     asset.Filename,
			Method:   zip.Deflate,
			Modified: now,
		})
		if err != nil {
			return nil
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil
		}
	}
	if err := zw.Close(); err != nil {
		return nil
	}
	return buf.Bytes()
}
