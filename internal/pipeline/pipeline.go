// Package pipeline sequences a creation job from accepted request to stored
// artifact: analyze, script, fetch references, synthesize video, decorate,
// upload, persist. One goroutine owns each job; every state change flows
// through the job tracker, and the terminal outcome is written to the
// durable video record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
	"promoreel/internal/jobs"
	"promoreel/internal/media"
	"promoreel/internal/providers/script"
	"promoreel/internal/providers/speech"
	"promoreel/internal/providers/video"
	"promoreel/internal/storage"
)

// persistTimeout bounds terminal record writes. They run on a detached
// context so a job deadline cannot lose the outcome.
const persistTimeout = 10 * time.Second

// VideoGateway produces the base video artifact.
type VideoGateway interface {
	Generate(ctx context.Context, req domain.GenerationRequest, preferred string) (*domain.Artifact, error)
}

// SpeechGateway produces the narration track.
type SpeechGateway interface {
	Synthesize(ctx context.Context, req speech.Request, preferred string) (*domain.Artifact, error)
}

// ScriptGateway derives the marketing analysis and the voiceover script.
type ScriptGateway interface {
	Analyze(ctx context.Context, req script.AnalysisRequest, preferred string) (*script.Analysis, error)
	WriteScript(ctx context.Context, req script.ScriptRequest, preferred string) (*script.Script, error)
}

// Composer decorates the artifact. Implementations must leave the input
// untouched on failure so the pipeline can carry it forward.
type Composer interface {
	MergeAudio(ctx context.Context, video, narration *domain.Artifact) (*domain.Artifact, error)
	BurnSubtitles(ctx context.Context, video *domain.Artifact, srt string) (*domain.Artifact, error)
	Watermark(ctx context.Context, video *domain.Artifact) (*domain.Artifact, error)
	MixMusic(ctx context.Context, video *domain.Artifact) (*domain.Artifact, error)
	Thumbnail(ctx context.Context, video *domain.Artifact) ([]byte, error)
}

// ReferenceResolver gathers reference assets for the generators.
type ReferenceResolver interface {
	Resolve(ctx context.Context, req domain.CreationRequest) ([]domain.ReferenceAsset, error)
}

var (
	_ VideoGateway      = (*video.Gateway)(nil)
	_ SpeechGateway     = (*speech.Gateway)(nil)
	_ ScriptGateway     = (*script.Gateway)(nil)
	_ Composer          = (*media.Composer)(nil)
	_ ReferenceResolver = (*Resolver)(nil)
)

type EngineOptions struct {
	Tracker       *jobs.Tracker
	Videos        domain.VideoRepository
	Objects       storage.Store
	References    ReferenceResolver
	VideoGateway  VideoGateway
	SpeechGateway SpeechGateway
	ScriptGateway ScriptGateway
	Composer      Composer
	JobTimeout    time.Duration
	Logger        zerolog.Logger
}

// Engine owns the creation recipe. It is safe for concurrent dispatch; each
// job gets its own goroutine and no state is shared between jobs beyond the
// injected collaborators.
type Engine struct {
	tracker    *jobs.Tracker
	videos     domain.VideoRepository
	objects    storage.Store
	references ReferenceResolver
	video      VideoGateway
	speech     SpeechGateway
	scripts    ScriptGateway
	composer   Composer
	jobTimeout time.Duration
	logger     zerolog.Logger
}

func NewEngine(opts EngineOptions) *Engine {
	timeout := opts.JobTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Engine{
		tracker:    opts.Tracker,
		videos:     opts.Videos,
		objects:    opts.Objects,
		references: opts.References,
		video:      opts.VideoGateway,
		speech:     opts.SpeechGateway,
		scripts:    opts.ScriptGateway,
		composer:   opts.Composer,
		jobTimeout: timeout,
		logger:     opts.Logger.With().Str("component", "pipeline").Logger(),
	}
}

// Dispatch runs the job's pipeline in its own goroutine. Handlers return
// immediately; a panic inside the pipeline fails the job instead of taking
// the process down.
func (e *Engine) Dispatch(job domain.Job) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().
					Str("job_id", job.ID).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("pipeline panic")
				e.fail(job.ID, "internal error")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), e.jobTimeout)
		defer cancel()
		e.Run(ctx, job)
	}()
}

// Run executes the creation recipe synchronously. Exported so tests and
// callers that manage their own concurrency can drive it directly.
func (e *Engine) Run(ctx context.Context, job domain.Job) {
	log := e.logger.With().Str("job_id", job.ID).Logger()

	e.tracker.MarkStatus(job.ID, domain.JobStatusRunning, "")
	if err := e.videos.UpdateStatus(ctx, job.ID, domain.JobStatusRunning, nil); err != nil {
		log.Warn().Err(err).Msg("could not persist running status")
	}

	scriptText, style, err := e.prepare(ctx, job)
	if err != nil {
		log.Error().Err(err).Msg("script preparation failed")
		e.fail(job.ID, err.Error())
		return
	}

	e.tracker.Advance(job.ID, jobs.StepDownloadingReferences)
	refs, err := e.references.Resolve(ctx, job.Request)
	if err != nil {
		log.Error().Err(err).Msg("reference resolution failed")
		e.fail(job.ID, "no reference assets could be resolved")
		return
	}

	e.tracker.Advance(job.ID, jobs.StepGeneratingVideo)
	artifact, err := e.video.Generate(ctx, domain.GenerationRequest{
		JobID:           job.ID,
		Script:          scriptText,
		References:      refs,
		DurationSeconds: job.Request.DurationSeconds,
		AspectRatio:     job.Request.AspectRatio,
		Style:           style,
		Locale:          job.Request.Locale,
		Voice:           job.Request.Voice,
	}, job.Request.VideoProvider)
	if err != nil {
		log.Error().Err(err).Msg("video generation failed")
		msg := "video generation failed"
		if errors.Is(err, domain.ErrProviderUnavailable) {
			msg = "no video provider available"
		}
		e.fail(job.ID, msg)
		return
	}

	artifact = e.decorate(ctx, job, artifact, scriptText)

	artifactURL, thumbURL, err := e.upload(ctx, job, artifact)
	if err != nil {
		log.Error().Err(err).Msg("artifact upload failed")
		e.fail(job.ID, err.Error())
		return
	}

	persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	e.tracker.Advance(job.ID, jobs.StepOptimizing)
	if err := e.videos.SetArtifact(persistCtx, job.ID, artifactURL, thumbURL, artifact.DurationSeconds, artifact.Provider); err != nil {
		log.Error().Err(err).Msg("could not finalize video record")
		e.fail(job.ID, "failed to finalize video record")
		return
	}

	e.tracker.Advance(job.ID, jobs.StepCompleted)
	e.tracker.MarkStatus(job.ID, domain.JobStatusCompleted, "")
	if err := e.videos.UpdateStatus(persistCtx, job.ID, domain.JobStatusCompleted, nil); err != nil {
		log.Warn().Err(err).Msg("could not persist completed status")
	}
	log.Info().
		Str("provider", artifact.Provider).
		Int("bytes", len(artifact.Data)).
		Str("artifact_url", artifactURL).
		Msg("creation pipeline completed")
}

// prepare yields the narration script and style tag. Manual mode uses the
// caller's values verbatim. Auto mode treats analysis as best effort and
// script generation as mandatory unless the caller supplied a fallback.
func (e *Engine) prepare(ctx context.Context, job domain.Job) (string, string, error) {
	req := job.Request
	if req.Mode == domain.ModeManual {
		text := strings.TrimSpace(req.Script)
		if text == "" {
			return "", "", errors.New("a script is required in manual mode")
		}
		return text, req.Style, nil
	}

	e.tracker.Advance(job.ID, jobs.StepAnalyzing)
	analysisReq := script.AnalysisRequest{
		JobID:              job.ID,
		ProductName:        req.ProductName,
		ProductDescription: req.ProductDescription,
		Locale:             req.Locale,
	}
	analysis, err := e.scripts.Analyze(ctx, analysisReq, req.ScriptProvider)
	if err != nil {
		e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("analysis failed, continuing with defaults")
		analysis = script.DefaultAnalysis(analysisReq)
	}

	e.tracker.Advance(job.ID, jobs.StepGeneratingScript)
	written, err := e.scripts.WriteScript(ctx, script.ScriptRequest{
		JobID:              job.ID,
		ProductName:        req.ProductName,
		ProductDescription: req.ProductDescription,
		Analysis:           analysis,
		DurationSeconds:    req.DurationSeconds,
		Locale:             req.Locale,
	}, req.ScriptProvider)

	text := ""
	if err == nil {
		text = strings.TrimSpace(written.Text())
	}
	if err != nil || text == "" {
		if fallback := strings.TrimSpace(req.Script); fallback != "" {
			e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("script generation failed, using caller script")
			return fallback, e.styleFor(req, analysis), nil
		}
		return "", "", errors.New("script generation failed")
	}

	if err := e.videos.SetScript(ctx, job.ID, text); err != nil {
		e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("could not persist script")
	}
	return text, e.styleFor(req, analysis), nil
}

func (e *Engine) styleFor(req domain.CreationRequest, analysis *script.Analysis) string {
	if req.Style != "" {
		return req.Style
	}
	if analysis != nil {
		return analysis.Style
	}
	return ""
}

// decorate applies the flag-gated post-synthesis steps. Each one is
// independently optional: a failure logs a skip and the pre-decoration
// artifact carries forward unchanged.
func (e *Engine) decorate(ctx context.Context, job domain.Job, artifact *domain.Artifact, scriptText string) *domain.Artifact {
	req := job.Request

	if req.Decorations.Voice {
		e.tracker.Advance(job.ID, jobs.StepGeneratingVoice)
		narration, err := e.speech.Synthesize(ctx, speech.Request{
			JobID:  job.ID,
			Text:   scriptText,
			Voice:  req.Voice,
			Locale: req.Locale,
		}, req.VoiceProvider)
		if err != nil {
			e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("voice-over skipped")
		} else {
			e.tracker.Advance(job.ID, jobs.StepMergingAudio)
			if merged, err := e.composer.MergeAudio(ctx, artifact, narration); err != nil {
				e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("voice merge skipped")
			} else {
				artifact = merged
			}
		}
	}

	if req.Decorations.Subtitles {
		e.tracker.Advance(job.ID, jobs.StepSubtitling)
		srt := media.BuildSRT(scriptText, subtitleDuration(artifact, req))
		if burned, err := e.composer.BurnSubtitles(ctx, artifact, srt); err != nil {
			e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("subtitles skipped")
		} else {
			artifact = burned
		}
	}

	if req.Decorations.Watermark {
		e.tracker.Advance(job.ID, jobs.StepWatermarking)
		if marked, err := e.composer.Watermark(ctx, artifact); err != nil {
			e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("watermark skipped")
		} else {
			artifact = marked
		}
	}

	if req.Decorations.Music {
		e.tracker.Advance(job.ID, jobs.StepScoringMusic)
		if scored, err := e.composer.MixMusic(ctx, artifact); err != nil {
			e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("music mix skipped")
		} else {
			artifact = scored
		}
	}

	return artifact
}

// upload extracts the thumbnail (best effort) and stores the artifact.
// The capacity check runs first so an over-quota job fails before bytes move.
func (e *Engine) upload(ctx context.Context, job domain.Job, artifact *domain.Artifact) (string, string, error) {
	e.tracker.Advance(job.ID, jobs.StepUploading)

	var thumb []byte
	if t, err := e.composer.Thumbnail(ctx, artifact); err != nil {
		e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("thumbnail skipped")
	} else {
		thumb = t
	}

	if err := e.objects.EnsureCapacity(ctx, int64(len(artifact.Data)+len(thumb))); err != nil {
		return "", "", storageMessage(err)
	}
	obj, err := e.objects.Save(ctx, artifact.Data, job.ID+videoExt(artifact.MIME), artifact.MIME, "videos")
	if err != nil {
		return "", "", storageMessage(err)
	}

	thumbURL := ""
	if len(thumb) > 0 {
		if tobj, err := e.objects.Save(ctx, thumb, job.ID+".jpg", "image/jpeg", "thumbnails"); err != nil {
			e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("thumbnail upload skipped")
		} else {
			thumbURL = tobj.PublicURL
		}
	}
	return obj.PublicURL, thumbURL, nil
}

// fail marks the job failed with a user-safe message and persists it to the
// video record on a detached context.
func (e *Engine) fail(jobID, message string) {
	e.tracker.MarkStatus(jobID, domain.JobStatusFailed, message)
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := e.videos.UpdateStatus(ctx, jobID, domain.JobStatusFailed, &message); err != nil {
		e.logger.Error().Err(err).Str("job_id", jobID).Msg("could not persist failure")
	}
}

func storageMessage(err error) error {
	if errors.Is(err, domain.ErrCapacityExceeded) {
		return errors.New("storage capacity exceeded")
	}
	return errors.New("artifact storage failed")
}

func subtitleDuration(artifact *domain.Artifact, req domain.CreationRequest) int {
	if artifact.DurationSeconds > 0 {
		return artifact.DurationSeconds
	}
	return req.DurationSeconds
}

func videoExt(mime string) string {
	if strings.EqualFold(strings.TrimSpace(mime), "video/webm") {
		return ".webm"
	}
	return ".mp4"
}
