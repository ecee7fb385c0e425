package jobs

import (
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
)

// Tracker owns creation-job lifecycles. Each job has exactly one writer (the
// pipeline task that owns it); reads may happen concurrently from any task
// and always return a snapshot copy.
type Tracker struct {
	store  Store
	logger zerolog.Logger
}

func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger.With().Str("component", "jobs").Logger(),
	}
}

// Create registers a new pending job. The id is caller-supplied and must be
// unused; a duplicate id returns domain.ErrConflict.
func (t *Tracker) Create(id, owner string, req domain.CreationRequest) (domain.Job, error) {
	now := time.Now().UTC()
	job := domain.Job{
		ID:          id,
		Owner:       owner,
		Request:     req,
		Status:      domain.JobStatusPending,
		CurrentStep: string(StepInitializing),
		Progress:    0,
		Message:     stepTable[StepInitializing].Message,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !t.store.SetIfAbsent(id, job) {
		return domain.Job{}, domain.ErrConflict
	}
	return job, nil
}

// Advance moves the job to the named step using the fixed step table. Unknown
// steps, terminal jobs, and steps whose checkpoint would lower the current
// progress are logged and ignored rather than surfaced; progress never
// regresses even under out-of-order delivery.
func (t *Tracker) Advance(id string, step Step) {
	info, ok := Lookup(step)
	if !ok {
		t.logger.Warn().Str("job_id", id).Str("step", string(step)).Msg("unknown step ignored")
		return
	}
	job, found := t.store.Get(id)
	if !found {
		t.logger.Warn().Str("job_id", id).Str("step", string(step)).Msg("advance on missing job")
		return
	}
	if job.Status.Terminal() {
		t.logger.Debug().Str("job_id", id).Str("step", string(step)).Msg("advance on terminal job ignored")
		return
	}
	if info.Progress < job.Progress {
		t.logger.Warn().
			Str("job_id", id).
			Str("step", string(step)).
			Int("step_progress", info.Progress).
			Int("job_progress", job.Progress).
			Msg("step would regress progress, ignored")
		return
	}
	job.CurrentStep = string(step)
	job.Progress = info.Progress
	job.Message = info.Message
	job.UpdatedAt = time.Now().UTC()
	t.store.Set(id, job)
}

// MarkStatus sets the job status. Terminal jobs are immutable: once completed
// or failed, further calls are no-ops. The error message is kept only for
// failed jobs.
func (t *Tracker) MarkStatus(id string, status domain.JobStatus, errMsg string) {
	job, found := t.store.Get(id)
	if !found {
		t.logger.Warn().Str("job_id", id).Str("status", string(status)).Msg("mark on missing job")
		return
	}
	if job.Status.Terminal() {
		t.logger.Debug().Str("job_id", id).Str("status", string(status)).Msg("mark on terminal job ignored")
		return
	}
	job.Status = status
	if status == domain.JobStatusFailed {
		job.Error = errMsg
	} else {
		job.Error = ""
	}
	job.UpdatedAt = time.Now().UTC()
	t.store.Set(id, job)
}

// Get returns a snapshot of the job or domain.ErrNotFound.
func (t *Tracker) Get(id string) (domain.Job, error) {
	job, found := t.store.Get(id)
	if !found {
		return domain.Job{}, domain.ErrNotFound
	}
	return job, nil
}

// Delete removes the job. Callers drop jobs after observing a terminal
// state; the tracker never removes them on its own.
func (t *Tracker) Delete(id string) {
	t.store.Delete(id)
}
