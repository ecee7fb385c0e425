package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"promoreel/internal/domain"
	"promoreel/internal/middleware"
)

type createVideoRequest struct {
	Title              string                 `json:"title"`
	Mode               string                 `json:"mode"`
	ProductName        string                 `json:"product_name"`
	ProductDescription string                 `json:"product_description"`
	Script             string                 `json:"script"`
	Style              string                 `json:"style"`
	AspectRatio        string                 `json:"aspect_ratio"`
	DurationSeconds    int                    `json:"duration_seconds"`
	Locale             string                 `json:"locale"`
	Voice              string                 `json:"voice"`
	VideoProvider      string                 `json:"video_provider"`
	VoiceProvider      string                 `json:"voice_provider"`
	ScriptProvider     string                 `json:"script_provider"`
	ReferenceURLs      []string               `json:"reference_urls"`
	ReferenceKeys      []string               `json:"reference_keys"`
	Decorations        domain.DecorationFlags `json:"decorations"`
}

type jobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func (a *App) CreateVideo(w http.ResponseWriter, r *http.Request) {
	var req createVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.ProductName) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "product_name is required")
		return
	}
	mode := domain.Mode(req.Mode)
	if mode == "" {
		mode = domain.ModeAuto
	}
	if mode != domain.ModeAuto && mode != domain.ModeManual {
		a.error(w, http.StatusBadRequest, "bad_request", "mode must be auto or manual")
		return
	}
	if mode == domain.ModeManual && strings.TrimSpace(req.Script) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "a script is required in manual mode")
		return
	}
	if len(req.ReferenceURLs)+len(req.ReferenceKeys) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "at least one reference image is required")
		return
	}
	locale := req.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}

	creation := domain.CreationRequest{
		Mode:               mode,
		ProductName:        strings.TrimSpace(req.ProductName),
		ProductDescription: req.ProductDescription,
		Script:             req.Script,
		Style:              req.Style,
		AspectRatio:        req.AspectRatio,
		DurationSeconds:    req.DurationSeconds,
		Locale:             locale,
		Voice:              req.Voice,
		VideoProvider:      req.VideoProvider,
		VoiceProvider:      req.VoiceProvider,
		ScriptProvider:     req.ScriptProvider,
		ReferenceURLs:      req.ReferenceURLs,
		ReferenceKeys:      req.ReferenceKeys,
		Decorations:        req.Decorations,
	}

	owner := a.currentUserID(r)
	jobID := uuid.NewString()
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = creation.ProductName
	}
	requestJSON, _ := json.Marshal(creation)
	now := time.Now().UTC()
	record := &domain.VideoRecord{
		ID:          jobID,
		UserID:      owner,
		Title:       title,
		Status:      domain.JobStatusPending,
		RequestJSON: requestJSON,
		Script:      req.Script,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.videos.Create(r.Context(), record); err != nil {
		a.logger.Error().Err(err).Str("job_id", jobID).Msg("video record insert failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create video record")
		return
	}

	job, err := a.tracker.Create(jobID, owner, creation)
	if err != nil {
		a.logger.Error().Err(err).Str("job_id", jobID).Msg("job registration failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to register job")
		return
	}
	a.engine.Dispatch(job)

	a.json(w, http.StatusAccepted, jobResponse{JobID: jobID, Status: string(job.Status)})
}

func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.tracker.Get(jobID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	resp := map[string]any{
		"job_id":       job.ID,
		"status":       job.Status,
		"progress":     job.Progress,
		"current_step": job.CurrentStep,
		"message":      job.Message,
		"updated_at":   job.UpdatedAt,
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) VideoDetail(w http.ResponseWriter, r *http.Request) {
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
	resp := map[string]any{
		"id":               record.ID,
		"title":            record.Title,
		"status":           record.Status,
		"script":           record.Script,
		"provider":         record.Provider,
		"artifact_url":     record.ArtifactURL,
		"thumbnail_url":    record.ThumbnailURL,
		"duration_seconds": record.DurationSeconds,
		"created_at":       record.CreatedAt,
		"updated_at":       record.UpdatedAt,
	}
	if record.ErrorMessage != "" {
		resp["error"] = record.ErrorMessage
	}
	a.json(w, http.StatusOK, resp)
}
