package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"promoreel/internal/domain"
)

type publishRequest struct {
	Platforms []string `json:"platforms"`
	Caption   string   `json:"caption"`
}

type taskView struct {
	TaskID    string    `json:"task_id"`
	JobID     string    `json:"job_id"`
	Platform  string    `json:"platform"`
	Status    string    `json:"status"`
	PostID    string    `json:"post_id,omitempty"`
	PostURL   string    `json:"post_url,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func viewOfTask(task domain.PublishTask) taskView {
	return taskView{
		TaskID:    task.ID,
		JobID:     task.JobID,
		Platform:  string(task.Platform),
		Status:    string(task.Status),
		PostID:    task.PostID,
		PostURL:   task.PostURL,
		Error:     task.Error,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}
}

func (a *App) PublishVideo(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
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
		a.error(w, http.StatusConflict, "conflict", "video is not ready to publish")
		return
	}

	caption := strings.TrimSpace(req.Caption)
	if caption == "" {
		caption = record.Title
	}
	platforms := make([]domain.Platform, 0, len(req.Platforms))
	for _, p := range req.Platforms {
		platforms = append(platforms, domain.Platform(strings.ToLower(strings.TrimSpace(p))))
	}

	tasks, err := a.publisher.Submit(jobID, caption, record.ArtifactURL, platforms)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		a.logger.Error().Err(err).Str("job_id", jobID).Msg("publish submit failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to submit publish tasks")
		return
	}

	views := make([]taskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, viewOfTask(task))
	}
	a.json(w, http.StatusAccepted, map[string]any{"tasks": views})
}

func (a *App) PublishTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	if taskID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "task_id required")
		return
	}
	task, err := a.publisher.Task(taskID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "publish task not found")
		return
	}
	a.json(w, http.StatusOK, viewOfTask(task))
}

func (a *App) VideoPosts(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	records, err := a.posts.ListByVideoID(r.Context(), jobID)
	if err != nil {
		a.logger.Error().Err(err).Str("job_id", jobID).Msg("post listing failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list posts")
		return
	}
	items := make([]map[string]any, 0, len(records))
	for _, record := range records {
		items = append(items, map[string]any{
			"id":         record.ID,
			"platform":   record.Platform,
			"post_id":    record.PostID,
			"post_url":   record.PostURL,
			"caption":    record.Caption,
			"created_at": record.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
