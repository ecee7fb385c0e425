// Package httpapi assembles the chi router for the service.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"promoreel/internal/http/handlers"
	"promoreel/internal/middleware"
)

type RouterOptions struct {
	App            *handlers.App
	Logger         zerolog.Logger
	DefaultLocale  string
	CountryLookup  middleware.CountryLookup
	AllowedOrigins []string
	// JWTSecret enables bearer auth on /v1 when set. Left empty the API is
	// open and jobs are owned by "anonymous".
	JWTSecret  string
	RateLimit  int
	RateWindow time.Duration
	// StaticDir, when set, serves stored artifacts under /static so the
	// publish adapters have a pullable URL in single-node deployments.
	StaticDir string
}

func NewRouter(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(opts.Logger))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(opts.AllowedOrigins))
	}
	r.Use(middleware.I18N(opts.DefaultLocale, opts.CountryLookup))

	app := opts.App

	r.Get("/healthz", app.Health)

	if opts.StaticDir != "" {
		fileServer := http.FileServer(http.Dir(opts.StaticDir))
		r.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	}

	r.Route("/v1", func(r chi.Router) {
		if opts.JWTSecret != "" {
			r.Use(middleware.AuthJWT(opts.JWTSecret))
		}
		r.Route("/videos", func(r chi.Router) {
			create := r
			if opts.RateLimit > 0 {
				window := opts.RateWindow
				if window <= 0 {
					window = time.Minute
				}
				create = r.With(middleware.RateLimit(opts.RateLimit, window))
			}
			create.Post("/", app.CreateVideo)
			r.Get("/{job_id}", app.VideoDetail)
			r.Get("/{job_id}/status", app.VideoStatus)
			r.Get("/{job_id}/bundle", app.VideoBundle)
			r.Get("/{job_id}/posts", app.VideoPosts)
			r.Post("/{job_id}/publish", app.PublishVideo)
		})
		r.Get("/publish/{task_id}", app.PublishTaskStatus)
	})

	return r
}
