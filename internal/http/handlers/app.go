// Package handlers exposes the creation and publish engine over HTTP. The
// handlers never await pipelines; creation and publish both return 202 with
// ids the caller polls.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
	"promoreel/internal/jobs"
	"promoreel/internal/middleware"
	"promoreel/internal/pipeline"
	"promoreel/internal/publish"
	"promoreel/internal/storage"
)

// Dispatcher starts a creation pipeline for an accepted job.
type Dispatcher interface {
	Dispatch(job domain.Job)
}

// PublishCoordinator fans publish requests out to platform tasks.
type PublishCoordinator interface {
	Submit(jobID, caption, artifactURL string, platforms []domain.Platform) ([]domain.PublishTask, error)
	Task(id string) (domain.PublishTask, error)
}

var (
	_ Dispatcher         = (*pipeline.Engine)(nil)
	_ PublishCoordinator = (*publish.Orchestrator)(nil)
)

type AppOptions struct {
	Engine    Dispatcher
	Publisher PublishCoordinator
	Tracker   *jobs.Tracker
	Videos    domain.VideoRepository
	Posts     domain.PostRepository
	Objects   storage.Store
	Logger    zerolog.Logger
}

type App struct {
	engine    Dispatcher
	publisher PublishCoordinator
	tracker   *jobs.Tracker
	videos    domain.VideoRepository
	posts     domain.PostRepository
	objects   storage.Store
	logger    zerolog.Logger
}

func NewApp(opts AppOptions) *App {
	return &App{
		engine:    opts.Engine,
		publisher: opts.Publisher,
		tracker:   opts.Tracker,
		videos:    opts.Videos,
		posts:     opts.Posts,
		objects:   opts.Objects,
		logger:    opts.Logger.With().Str("component", "http").Logger(),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

// currentUserID returns the authenticated subject, or "anonymous" when the
// deployment runs without an auth secret.
func (a *App) currentUserID(r *http.Request) string {
	if id := middleware.UserIDFromContext(r.Context()); id != "" {
		return id
	}
	return "anonymous"
}
