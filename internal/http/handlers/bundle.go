package handlers

import (
	"errors"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"promoreel/internal/domain"
	"promoreel/pkg/zip"
)

// VideoBundle streams a zip of everything a completed job produced: the
// artifact, the thumbnail when one exists, and the script text.
func (a *App) VideoBundle(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	record, err := a.videos.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "video not found")
			return
		}
		a.logger.Error().Err(err).Str("job_id", jobID).Msg("video record read failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load video")
		return
	}
	if record.Status != domain.JobStatusCompleted || record.ArtifactURL == "" {
		a.error(w, http.StatusConflict, "conflict", "video is not ready yet")
		return
	}

	// Artifact keys follow the pipeline's layout: videos/<id><ext> and
	// thumbnails/<id>.jpg under the storage root.
	artifactKey := "videos/" + jobID + path.Ext(record.ArtifactURL)
	video, err := a.objects.Read(r.Context(), artifactKey)
	if err != nil {
		a.logger.Error().Err(err).Str("job_id", jobID).Str("key", artifactKey).Msg("artifact read failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to read artifact")
		return
	}
	assets := []zip.Asset{
		{Filename: "video" + path.Ext(record.ArtifactURL), MIME: mimeForExt(path.Ext(record.ArtifactURL)), Data: video},
	}
	if record.ThumbnailURL != "" {
		if thumb, err := a.objects.Read(r.Context(), "thumbnails/"+jobID+".jpg"); err == nil {
			assets = append(assets, zip.Asset{Filename: "thumbnail.jpg", MIME: "image/jpeg", Data: thumb})
		} else {
			a.logger.Warn().Err(err).Str("job_id", jobID).Msg("thumbnail missing from bundle")
		}
	}
	if record.Script != "" {
		assets = append(assets, zip.Asset{Filename: "script.txt", MIME: "text/plain", Data: []byte(record.Script)})
	}

	archive := zip.ArchiveAssets(assets)
	if len(archive) == 0 {
		a.error(w, http.StatusInternalServerError, "internal", "failed to build bundle")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+jobID+`.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func mimeForExt(ext string) string {
	switch ext {
	case ".webm":
		return "video/webm"
	default:
		return "video/mp4"
	}
}
