package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
	"promoreel/internal/jobs"
	"promoreel/internal/providers/script"
	"promoreel/internal/providers/speech"
	"promoreel/internal/storage"
)

// recordingStore implements jobs.Store and keeps the step and progress
// history so tests can assert which checkpoints a pipeline visited.
type recordingStore struct {
	mu       sync.Mutex
	jobs     map[string]domain.Job
	steps    []string
	progress []int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{jobs: make(map[string]domain.Job)}
}

func (s *recordingStore) Get(id string) (domain.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	return job, ok
}

func (s *recordingStore) Set(id string, job domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = job
	s.steps = append(s.steps, job.CurrentStep)
	s.progress = append(s.progress, job.Progress)
}

func (s *recordingStore) SetIfAbsent(id string, job domain.Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; ok {
		return false
	}
	s.jobs[id] = job
	return true
}

func (s *recordingStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

func (s *recordingStore) sawStep(step jobs.Step) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range s.steps {
		if name == string(step) {
			return true
		}
	}
	return false
}

func (s *recordingStore) progressHistory() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.progress...)
}

type stubVideoRepo struct {
	mu           sync.Mutex
	statuses     []domain.JobStatus
	script       string
	artifactURL  string
	thumbnailURL string
	provider     string
	duration     int
	errMsg       string
	artifactErr  error
}

func (r *stubVideoRepo) Create(ctx context.Context, rec *domain.VideoRecord) error { return nil }

func (r *stubVideoRepo) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	if errMsg != nil {
		r.errMsg = *errMsg
	}
	return nil
}

func (r *stubVideoRepo) SetScript(ctx context.Context, id, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.script = text
	return nil
}

func (r *stubVideoRepo) SetArtifact(ctx context.Context, id, artifactURL, thumbnailURL string, durationSeconds int, provider string) error {
	if r.artifactErr != nil {
		return r.artifactErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifactURL = artifactURL
	r.thumbnailURL = thumbnailURL
	r.duration = durationSeconds
	r.provider = provider
	return nil
}

func (r *stubVideoRepo) GetByID(ctx context.Context, id string) (*domain.VideoRecord, error) {
	return nil, domain.ErrNotFound
}

type savedObject struct {
	key  string
	mime string
	data []byte
}

type stubObjectStore struct {
	mu          sync.Mutex
	saves       []savedObject
	capacityErr error
	saveErr     error
	reads       map[string][]byte
}

func (s *stubObjectStore) Save(ctx context.Context, data []byte, filename, mimeType, destination string) (storage.StoredObject, error) {
	if s.saveErr != nil {
		return storage.StoredObject{}, s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := destination + "/" + filename
	s.saves = append(s.saves, savedObject{key: key, mime: mimeType, data: append([]byte(nil), data...)})
	return storage.StoredObject{ID: key, Key: key, PublicURL: "https://cdn.test/" + key, Bytes: int64(len(data))}, nil
}

func (s *stubObjectStore) Read(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.reads[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (s *stubObjectStore) EnsureCapacity(ctx context.Context, size int64) error {
	return s.capacityErr
}

func (s *stubObjectStore) savedTo(destination string) []savedObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []savedObject
	for _, obj := range s.saves {
		if strings.HasPrefix(obj.key, destination+"/") {
			out = append(out, obj)
		}
	}
	return out
}

type stubVideoGateway struct {
	mu        sync.Mutex
	artifact  *domain.Artifact
	err       error
	panicMsg  string
	calls     int
	gotReq    domain.GenerationRequest
	preferred string
}

func (g *stubVideoGateway) Generate(ctx context.Context, req domain.GenerationRequest, preferred string) (*domain.Artifact, error) {
	g.mu.Lock()
	g.calls++
	g.gotReq = req
	g.preferred = preferred
	g.mu.Unlock()
	if g.panicMsg != "" {
		panic(g.panicMsg)
	}
	if g.err != nil {
		return nil, g.err
	}
	art := *g.artifact
	return &art, nil
}

type stubSpeechGateway struct {
	mu       sync.Mutex
	artifact *domain.Artifact
	err      error
	calls    int
	gotReq   speech.Request
}

func (g *stubSpeechGateway) Synthesize(ctx context.Context, req speech.Request, preferred string) (*domain.Artifact, error) {
	g.mu.Lock()
	g.calls++
	g.gotReq = req
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	art := *g.artifact
	return &art, nil
}

type stubScriptGateway struct {
	mu           sync.Mutex
	analysis     *script.Analysis
	analysisErr  error
	script       *script.Script
	scriptErr    error
	analyzeCalls int
	writeCalls   int
	gotWrite     script.ScriptRequest
}

func (g *stubScriptGateway) Analyze(ctx context.Context, req script.AnalysisRequest, preferred string) (*script.Analysis, error) {
	g.mu.Lock()
	g.analyzeCalls++
	g.mu.Unlock()
	if g.analysisErr != nil {
		return nil, g.analysisErr
	}
	return g.analysis, nil
}

func (g *stubScriptGateway) WriteScript(ctx context.Context, req script.ScriptRequest, preferred string) (*script.Script, error) {
	g.mu.Lock()
	g.writeCalls++
	g.gotWrite = req
	g.mu.Unlock()
	if g.scriptErr != nil {
		return nil, g.scriptErr
	}
	return g.script, nil
}

type stubComposer struct {
	mu            sync.Mutex
	mergeErr      error
	subtitleErr   error
	watermarkErr  error
	musicErr      error
	thumbErr      error
	mergeCalls    int
	subtitleCalls int
	thumbCalls    int
	gotSRT        string
}

func tagged(video *domain.Artifact, tag string) *domain.Artifact {
	out := *video
	out.Data = append(append([]byte(nil), video.Data...), []byte(tag)...)
	return &out
}

func (c *stubComposer) MergeAudio(ctx context.Context, video, narration *domain.Artifact) (*domain.Artifact, error) {
	c.mu.Lock()
	c.mergeCalls++
	c.mu.Unlock()
	if c.mergeErr != nil {
		return nil, c.mergeErr
	}
	return tagged(video, "+voice"), nil
}

func (c *stubComposer) BurnSubtitles(ctx context.Context, video *domain.Artifact, srt string) (*domain.Artifact, error) {
	c.mu.Lock()
	c.subtitleCalls++
	c.gotSRT = srt
	c.mu.Unlock()
	if c.subtitleErr != nil {
		return nil, c.subtitleErr
	}
	return tagged(video, "+subs"), nil
}

func (c *stubComposer) Watermark(ctx context.Context, video *domain.Artifact) (*domain.Artifact, error) {
	if c.watermarkErr != nil {
		return nil, c.watermarkErr
	}
	return tagged(video, "+wm"), nil
}

func (c *stubComposer) MixMusic(ctx context.Context, video *domain.Artifact) (*domain.Artifact, error) {
	if c.musicErr != nil {
		return nil, c.musicErr
	}
	return tagged(video, "+music"), nil
}

func (c *stubComposer) Thumbnail(ctx context.Context, video *domain.Artifact) ([]byte, error) {
	c.mu.Lock()
	c.thumbCalls++
	c.mu.Unlock()
	if c.thumbErr != nil {
		return nil, c.thumbErr
	}
	return []byte("thumb"), nil
}

type stubResolver struct {
	assets []domain.ReferenceAsset
	err    error
	calls  int
}

func (r *stubResolver) Resolve(ctx context.Context, req domain.CreationRequest) ([]domain.ReferenceAsset, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.assets, nil
}

type fixture struct {
	engine   *Engine
	tracker  *jobs.Tracker
	store    *recordingStore
	repo     *stubVideoRepo
	objects  *stubObjectStore
	videoGW  *stubVideoGateway
	speechGW *stubSpeechGateway
	scriptGW *stubScriptGateway
	composer *stubComposer
	resolver *stubResolver
}

func newFixture() *fixture {
	store := newRecordingStore()
	f := &fixture{
		tracker: jobs.NewTracker(store, zerolog.Nop()),
		store:   store,
		repo:    &stubVideoRepo{},
		objects: &stubObjectStore{},
		videoGW: &stubVideoGateway{artifact: &domain.Artifact{
			Data:            []byte("video-bytes"),
			MIME:            "video/mp4",
			DurationSeconds: 15,
			Provider:        "veo",
		}},
		speechGW: &stubSpeechGateway{artifact: &domain.Artifact{
			Data:     []byte("narration"),
			MIME:     "audio/mpeg",
			Provider: "elevenlabs",
		}},
		scriptGW: &stubScriptGateway{
			analysis: &script.Analysis{Summary: "a steel travel mug", Style: "clean studio light", Provider: "gemini"},
			script:   &script.Script{Hook: "Meet the mug.", Body: "It keeps drinks hot.", CallToAction: "Buy now.", Provider: "gemini"},
		},
		composer: &stubComposer{},
		resolver: &stubResolver{assets: []domain.ReferenceAsset{{Name: "product.png", MIME: "image/png", Data: []byte("png")}}},
	}
	f.engine = NewEngine(EngineOptions{
		Tracker:       f.tracker,
		Videos:        f.repo,
		Objects:       f.objects,
		References:    f.resolver,
		VideoGateway:  f.videoGW,
		SpeechGateway: f.speechGW,
		ScriptGateway: f.scriptGW,
		Composer:      f.composer,
		Logger:        zerolog.Nop(),
	})
	return f
}

func autoRequest() domain.CreationRequest {
	return domain.CreationRequest{
		Mode:          domain.ModeAuto,
		ProductName:   "Thermo Mug",
		ReferenceURLs: []string{"https://shop.example/mug.png"},
	}
}

func (f *fixture) run(t *testing.T, req domain.CreationRequest) domain.Job {
	t.Helper()
	job, err := f.tracker.Create("job-1", "user-1", req)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	f.engine.Run(context.Background(), job)
	final, err := f.tracker.Get("job-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	return final
}

func TestPipelineAutoModeCompletes(t *testing.T) {
	f := newFixture()

	job := f.run(t, autoRequest())

	if job.Status != domain.JobStatusCompleted || job.Progress != 100 {
		t.Fatalf("expected completed at 100, got %s at %d (%s)", job.Status, job.Progress, job.Error)
	}
	videos := f.objects.savedTo("videos")
	if len(videos) != 1 {
		t.Fatalf("expected the artifact stored exactly once, got %d saves", len(videos))
	}
	if string(videos[0].data) != "video-bytes" {
		t.Fatalf("unexpected stored artifact %q", videos[0].data)
	}
	for _, step := range []jobs.Step{jobs.StepGeneratingVoice, jobs.StepMergingAudio, jobs.StepSubtitling, jobs.StepWatermarking, jobs.StepScoringMusic} {
		if f.store.sawStep(step) {
			t.Fatalf("decoration step %s must not run without its flag", step)
		}
	}
	if f.repo.script != "Meet the mug. It keeps drinks hot. Buy now." {
		t.Fatalf("expected the generated script persisted, got %q", f.repo.script)
	}
	if f.repo.artifactURL != "https://cdn.test/videos/job-1.mp4" {
		t.Fatalf("unexpected artifact url %q", f.repo.artifactURL)
	}
	if f.repo.thumbnailURL == "" {
		t.Fatal("expected a thumbnail url on the record")
	}
	history := f.store.progressHistory()
	for i := 1; i < len(history); i++ {
		if history[i] < history[i-1] {
			t.Fatalf("progress regressed during the run: %v", history)
		}
	}
}

func TestPipelineFailsWhenNoVideoProviderAvailable(t *testing.T) {
	f := newFixture()
	f.videoGW.err = fmt.Errorf("%w: no video provider available", domain.ErrProviderUnavailable)

	job := f.run(t, autoRequest())

	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.Error != "no video provider available" {
		t.Fatalf("unexpected error message %q", job.Error)
	}
	if job.CurrentStep != string(jobs.StepGeneratingVideo) {
		t.Fatalf("current step must stay at the last reached step, got %q", job.CurrentStep)
	}
	if job.Progress != 40 {
		t.Fatalf("failed jobs keep their progress, got %d", job.Progress)
	}
	if f.repo.errMsg != "no video provider available" {
		t.Fatalf("failure not persisted to the record, got %q", f.repo.errMsg)
	}
	if len(f.objects.savedTo("videos")) != 0 {
		t.Fatal("nothing should be stored for a failed job")
	}
}

func TestPipelineVoiceFailureKeepsArtifact(t *testing.T) {
	f := newFixture()
	f.speechGW.err = fmt.Errorf("speech provider chain exhausted: %w", domain.ErrProviderFailure)
	req := autoRequest()
	req.Decorations = domain.DecorationFlags{Voice: true}

	job := f.run(t, req)

	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("voice failure must not fail the job, got %s (%s)", job.Status, job.Error)
	}
	videos := f.objects.savedTo("videos")
	if len(videos) != 1 {
		t.Fatalf("expected one stored artifact, got %d", len(videos))
	}
	if string(videos[0].data) != "video-bytes" {
		t.Fatalf("expected the pre-voice artifact stored unchanged, got %q", videos[0].data)
	}
	if f.composer.mergeCalls != 0 {
		t.Fatalf("merge must not run without narration, got %d calls", f.composer.mergeCalls)
	}
}

func TestPipelineManualModeSkipsScriptProviders(t *testing.T) {
	f := newFixture()
	req := autoRequest()
	req.Mode = domain.ModeManual
	req.Script = "Hand written copy."
	req.Style = "noir"

	job := f.run(t, req)

	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", job.Status, job.Error)
	}
	if f.scriptGW.analyzeCalls != 0 || f.scriptGW.writeCalls != 0 {
		t.Fatalf("manual mode must not call script providers, got %d analyze and %d write calls", f.scriptGW.analyzeCalls, f.scriptGW.writeCalls)
	}
	if f.store.sawStep(jobs.StepAnalyzing) || f.store.sawStep(jobs.StepGeneratingScript) {
		t.Fatal("manual mode must skip the analysis and script steps")
	}
	if f.videoGW.gotReq.Script != "Hand written copy." {
		t.Fatalf("expected the caller script passed through, got %q", f.videoGW.gotReq.Script)
	}
	if f.videoGW.gotReq.Style != "noir" {
		t.Fatalf("expected the caller style passed through, got %q", f.videoGW.gotReq.Style)
	}
}

func TestPipelineAnalysisFailureUsesDefaults(t *testing.T) {
	f := newFixture()
	f.scriptGW.analysisErr = errors.New("gemini returned status 500")

	job := f.run(t, autoRequest())

	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("analysis is best effort, job should complete, got %s (%s)", job.Status, job.Error)
	}
	if f.scriptGW.gotWrite.Analysis == nil || f.scriptGW.gotWrite.Analysis.Provider != "default" {
		t.Fatalf("expected default analysis handed to the script writer, got %+v", f.scriptGW.gotWrite.Analysis)
	}
}

func TestPipelineScriptFailureFallsBackToCallerScript(t *testing.T) {
	f := newFixture()
	f.scriptGW.scriptErr = errors.New("script provider chain exhausted")
	req := autoRequest()
	req.Script = "Backup copy."

	job := f.run(t, req)

	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("expected completed with caller fallback, got %s (%s)", job.Status, job.Error)
	}
	if f.videoGW.gotReq.Script != "Backup copy." {
		t.Fatalf("expected the caller script used, got %q", f.videoGW.gotReq.Script)
	}
}

func TestPipelineScriptFailureWithoutFallbackIsFatal(t *testing.T) {
	f := newFixture()
	f.scriptGW.scriptErr = errors.New("script provider chain exhausted")

	job := f.run(t, autoRequest())

	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.Error != "script generation failed" {
		t.Fatalf("unexpected error message %q", job.Error)
	}
	if f.videoGW.calls != 0 {
		t.Fatal("video generation must not start without a script")
	}
}

func TestPipelineReferenceFailureIsFatal(t *testing.T) {
	f := newFixture()
	f.resolver.err = fmt.Errorf("%w: no reference assets could be resolved", domain.ErrInvalidRequest)

	job := f.run(t, autoRequest())

	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.Error != "no reference assets could be resolved" {
		t.Fatalf("unexpected error message %q", job.Error)
	}
	if job.CurrentStep != string(jobs.StepDownloadingReferences) {
		t.Fatalf("current step should be the reference step, got %q", job.CurrentStep)
	}
}

func TestPipelineAppliesAllDecorationsInOrder(t *testing.T) {
	f := newFixture()
	req := autoRequest()
	req.Decorations = domain.DecorationFlags{Voice: true, Subtitles: true, Watermark: true, Music: true}

	job := f.run(t, req)

	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", job.Status, job.Error)
	}
	videos := f.objects.savedTo("videos")
	if len(videos) != 1 {
		t.Fatalf("expected one stored artifact, got %d", len(videos))
	}
	if string(videos[0].data) != "video-bytes+voice+subs+wm+music" {
		t.Fatalf("decorations out of order: %q", videos[0].data)
	}
	if !strings.Contains(f.composer.gotSRT, "-->") {
		t.Fatalf("expected srt cues handed to the composer, got %q", f.composer.gotSRT)
	}
	if f.speechGW.gotReq.Text != "Meet the mug. It keeps drinks hot. Buy now." {
		t.Fatalf("narration should be the full script, got %q", f.speechGW.gotReq.Text)
	}
}

func TestPipelineDecorationFailureCarriesArtifactForward(t *testing.T) {
	f := newFixture()
	f.composer.subtitleErr = errors.New("ffmpeg: exit status 1")
	req := autoRequest()
	req.Decorations = domain.DecorationFlags{Subtitles: true, Watermark: true}

	job := f.run(t, req)

	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("decoration failure must not fail the job, got %s (%s)", job.Status, job.Error)
	}
	videos := f.objects.savedTo("videos")
	if len(videos) != 1 {
		t.Fatalf("expected one stored artifact, got %d", len(videos))
	}
	if string(videos[0].data) != "video-bytes+wm" {
		t.Fatalf("watermark should apply to the pre-subtitle artifact, got %q", videos[0].data)
	}
	if !f.store.sawStep(jobs.StepSubtitling) || !f.store.sawStep(jobs.StepWatermarking) {
		t.Fatal("both decoration steps should be recorded even when one fails")
	}
}

func TestPipelineCapacityExceededIsDistinct(t *testing.T) {
	f := newFixture()
	f.objects.capacityErr = fmt.Errorf("storage: %w: need 10 bytes", domain.ErrCapacityExceeded)

	job := f.run(t, autoRequest())

	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.Error != "storage capacity exceeded" {
		t.Fatalf("capacity problems need their own message, got %q", job.Error)
	}
}

func TestPipelineThumbnailFailureTolerated(t *testing.T) {
	f := newFixture()
	f.composer.thumbErr = errors.New("no frame decoded")

	job := f.run(t, autoRequest())

	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("thumbnail failure must not fail the job, got %s (%s)", job.Status, job.Error)
	}
	if f.repo.thumbnailURL != "" {
		t.Fatalf("expected no thumbnail url, got %q", f.repo.thumbnailURL)
	}
	if len(f.objects.savedTo("thumbnails")) != 0 {
		t.Fatal("no thumbnail bytes should be stored")
	}
}

func TestDispatchConvertsPanicToFailedJob(t *testing.T) {
	f := newFixture()
	f.videoGW.panicMsg = "nil map write"

	job, err := f.tracker.Create("job-1", "user-1", autoRequest())
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	f.engine.Dispatch(job)

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, getErr := f.tracker.Get("job-1")
		if getErr == nil && got.Status == domain.JobStatusFailed {
			if got.Error != "internal error" {
				t.Fatalf("panic detail must not leak to the user, got %q", got.Error)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never failed after the panic, last state %+v", got)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
