package publish

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"promoreel/internal/asyncop"
	"promoreel/internal/domain"
)

const persistTimeout = 10 * time.Second

type OrchestratorOptions struct {
	Tasks      *TaskStore
	Posts      domain.PostRepository
	Publishers []Publisher
	Timeout    time.Duration
	Logger     zerolog.Logger
}

// Orchestrator fans a publish request out to one task per platform. Tasks
// run concurrently; the phases inside each task stay sequential in their
// platform adapter.
type Orchestrator struct {
	tasks      *TaskStore
	posts      domain.PostRepository
	publishers map[domain.Platform]Publisher
	timeout    time.Duration
	logger     zerolog.Logger
}

func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	tasks := opts.Tasks
	if tasks == nil {
		tasks = NewTaskStore()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	publishers := make(map[domain.Platform]Publisher, len(opts.Publishers))
	for _, pub := range opts.Publishers {
		if pub == nil {
			continue
		}
		publishers[pub.Platform()] = pub
	}
	return &Orchestrator{
		tasks:      tasks,
		posts:      opts.Posts,
		publishers: publishers,
		timeout:    timeout,
		logger:     opts.Logger.With().Str("component", "publish").Logger(),
	}
}

// Submit creates one task per requested platform and dispatches each to its
// adapter. Platforms without a configured publisher still get a task so the
// caller can see the failure; it is created already failed.
func (o *Orchestrator) Submit(jobID, caption, artifactURL string, platforms []domain.Platform) ([]domain.PublishTask, error) {
	if strings.TrimSpace(artifactURL) == "" {
		return nil, fmt.Errorf("%w: a stored artifact url is required", domain.ErrInvalidRequest)
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: at least one platform is required", domain.ErrInvalidRequest)
	}
	for _, platform := range platforms {
		if !domain.KnownPlatform(platform) {
			return nil, fmt.Errorf("%w: unknown platform %q", domain.ErrInvalidRequest, platform)
		}
	}

	now := time.Now().UTC()
	created := make([]domain.PublishTask, 0, len(platforms))
	for _, platform := range platforms {
		task := domain.PublishTask{
			ID:        uuid.NewString(),
			JobID:     jobID,
			Platform:  platform,
			Caption:   caption,
			Status:    domain.JobStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		pub, ok := o.publishers[platform]
		if !ok || !pub.Available() {
			task.Status = domain.JobStatusFailed
			task.Error = "publisher not configured"
		}
		if err := o.tasks.Create(task); err != nil {
			return nil, err
		}
		created = append(created, task)
		if task.Status == domain.JobStatusFailed {
			o.logger.Warn().
				Str("job_id", jobID).
				Str("platform", string(platform)).
				Msg("publisher not configured")
			continue
		}
		go o.run(task, pub, Request{
			TaskID:      task.ID,
			JobID:       jobID,
			Caption:     caption,
			ArtifactURL: artifactURL,
		})
	}
	return created, nil
}

// Task returns a snapshot of one publish task.
func (o *Orchestrator) Task(id string) (domain.PublishTask, error) {
	return o.tasks.Get(id)
}

// TasksForJob returns snapshots of every task created for a job.
func (o *Orchestrator) TasksForJob(jobID string) []domain.PublishTask {
	return o.tasks.ListByJob(jobID)
}

func (o *Orchestrator) run(task domain.PublishTask, pub Publisher, req Request) {
	logger := o.logger.With().
		Str("task_id", task.ID).
		Str("job_id", task.JobID).
		Str("platform", string(task.Platform)).
		Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("publish task panicked")
			o.tasks.Fail(task.ID, "internal error")
		}
	}()

	o.tasks.MarkRunning(task.ID)

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	result, err := pub.Publish(ctx, req)
	if err != nil {
		logger.Warn().Err(err).Msg("publish task failed")
		o.tasks.Fail(task.ID, failureMessage(err))
		return
	}

	o.tasks.Complete(task.ID, result.PostID, result.PostURL)
	o.recordPost(task, result, logger)
	logger.Info().Str("post_id", result.PostID).Msg("publish task completed")
}

func (o *Orchestrator) recordPost(task domain.PublishTask, result *Result, logger zerolog.Logger) {
	if o.posts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	record := &domain.PostRecord{
		ID:        uuid.NewString(),
		VideoID:   task.JobID,
		Platform:  task.Platform,
		PostID:    result.PostID,
		PostURL:   result.PostURL,
		Caption:   task.Caption,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.posts.Create(ctx, record); err != nil {
		logger.Warn().Err(err).Msg("post record not persisted")
	}
}

// failureMessage maps adapter errors to the short user-safe text stored on
// the task. Full detail stays in the logs.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, asyncop.ErrTimeout):
		return "publishing timed out"
	case errors.Is(err, ErrMissingAccessToken):
		return "publisher not configured"
	case errors.Is(err, domain.ErrProviderFailure):
		return "the platform rejected the publish"
	default:
		return "publishing failed"
	}
}
