package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"promoreel/internal/asyncop"
	"promoreel/internal/domain"
)

type fakePublisher struct {
	mu        sync.Mutex
	platform  domain.Platform
	available bool
	result    *Result
	err       error
	panicMsg  string
	gate      chan struct{}
	started   chan domain.Platform
	calls     int
	gotReq    Request
}

func (f *fakePublisher) Platform() domain.Platform { return f.platform }

func (f *fakePublisher) Available() bool { return f.available }

func (f *fakePublisher) Publish(ctx context.Context, req Request) (*Result, error) {
	f.mu.Lock()
	f.calls++
	f.gotReq = req
	f.mu.Unlock()
	if f.started != nil {
		f.started <- f.platform
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakePublisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakePublisher) request() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gotReq
}

type memPostRepo struct {
	mu        sync.Mutex
	createErr error
	records   []domain.PostRecord
}

func (m *memPostRepo) Create(ctx context.Context, post *domain.PostRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.records = append(m.records, *post)
	return nil
}

func (m *memPostRepo) ListByVideoID(ctx context.Context, videoID string) ([]domain.PostRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PostRecord
	for _, record := range m.records {
		if record.VideoID == videoID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *memPostRepo) all() []domain.PostRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PostRecord, len(m.records))
	copy(out, m.records)
	return out
}

func waitTerminal(t *testing.T, o *Orchestrator, id string) domain.PublishTask {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := o.Task(id)
		if err != nil {
			t.Fatalf("task %s: %v", id, err)
		}
		if task.Status.Terminal() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal state", id)
	return domain.PublishTask{}
}

func TestOrchestratorPublishesToEveryRequestedPlatform(t *testing.T) {
	tiktok := &fakePublisher{
		platform:  domain.PlatformTikTok,
		available: true,
		result:    &Result{PostID: "tt-1", PostURL: ""},
	}
	instagram := &fakePublisher{
		platform:  domain.PlatformInstagram,
		available: true,
		result:    &Result{PostID: "ig-1", PostURL: "https://www.instagram.com/reel/x/"},
	}
	posts := &memPostRepo{}
	o := NewOrchestrator(OrchestratorOptions{
		Posts:      posts,
		Publishers: []Publisher{tiktok, instagram},
		Logger:     zerolog.Nop(),
	})

	created, err := o.Submit("job-1", "Fresh bread", "https://cdn.test/videos/job-1.mp4",
		[]domain.Platform{domain.PlatformTikTok, domain.PlatformInstagram})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("submit created %d tasks, want 2", len(created))
	}
	for _, task := range created {
		if task.JobID != "job-1" || task.Caption != "Fresh bread" {
			t.Fatalf("task fields: %+v", task)
		}
	}

	byPlatform := map[domain.Platform]domain.PublishTask{}
	for _, task := range created {
		byPlatform[task.Platform] = waitTerminal(t, o, task.ID)
	}
	if got := byPlatform[domain.PlatformTikTok]; got.Status != domain.JobStatusCompleted || got.PostID != "tt-1" {
		t.Fatalf("tiktok task: %+v", got)
	}
	if got := byPlatform[domain.PlatformInstagram]; got.PostURL != "https://www.instagram.com/reel/x/" {
		t.Fatalf("instagram task: %+v", got)
	}

	if tiktok.callCount() != 1 || instagram.callCount() != 1 {
		t.Fatalf("publisher calls = %d, %d, want 1 each", tiktok.callCount(), instagram.callCount())
	}
	req := tiktok.request()
	if req.ArtifactURL != "https://cdn.test/videos/job-1.mp4" {
		t.Fatalf("artifact url = %q", req.ArtifactURL)
	}
	if req.TaskID != byPlatform[domain.PlatformTikTok].ID {
		t.Fatalf("task id = %q, want %q", req.TaskID, byPlatform[domain.PlatformTikTok].ID)
	}

	records := posts.all()
	if len(records) != 2 {
		t.Fatalf("post records = %d, want 2", len(records))
	}
	for _, record := range records {
		if record.VideoID != "job-1" || record.Caption != "Fresh bread" {
			t.Fatalf("post record: %+v", record)
		}
	}

	if got := len(o.TasksForJob("job-1")); got != 2 {
		t.Fatalf("tasks for job = %d, want 2", got)
	}
}

func TestOrchestratorRunsPlatformsConcurrently(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan domain.Platform, 2)
	tiktok := &fakePublisher{platform: domain.PlatformTikTok, available: true, result: &Result{PostID: "tt"}, gate: gate, started: started}
	facebook := &fakePublisher{platform: domain.PlatformFacebook, available: true, result: &Result{PostID: "fb"}, gate: gate, started: started}
	o := NewOrchestrator(OrchestratorOptions{
		Publishers: []Publisher{tiktok, facebook},
		Logger:     zerolog.Nop(),
	})

	created, err := o.Submit("job-2", "caption", "https://cdn.test/v.mp4",
		[]domain.Platform{domain.PlatformTikTok, domain.PlatformFacebook})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Both adapters must be inside Publish before either is released.
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatalf("publisher %d never started while the other held the gate", i+1)
		}
	}
	close(gate)

	for _, task := range created {
		if got := waitTerminal(t, o, task.ID); got.Status != domain.JobStatusCompleted {
			t.Fatalf("task %s: %+v", task.ID, got)
		}
	}
}

func TestOrchestratorValidatesSubmit(t *testing.T) {
	o := NewOrchestrator(OrchestratorOptions{Logger: zerolog.Nop()})

	if _, err := o.Submit("job-3", "caption", "", []domain.Platform{domain.PlatformTikTok}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("missing artifact url: %v", err)
	}
	if _, err := o.Submit("job-3", "caption", "https://cdn.test/v.mp4", nil); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("missing platforms: %v", err)
	}
	if _, err := o.Submit("job-3", "caption", "https://cdn.test/v.mp4", []domain.Platform{"myspace"}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("unknown platform: %v", err)
	}
	if got := len(o.TasksForJob("job-3")); got != 0 {
		t.Fatalf("rejected submits left %d tasks behind", got)
	}
}

func TestOrchestratorFailsTaskWhenPublisherNotConfigured(t *testing.T) {
	o := NewOrchestrator(OrchestratorOptions{
		Publishers: []Publisher{&fakePublisher{platform: domain.PlatformTikTok, available: false}},
		Logger:     zerolog.Nop(),
	})

	created, err := o.Submit("job-4", "caption", "https://cdn.test/v.mp4", []domain.Platform{domain.PlatformTikTok, domain.PlatformInstagram})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d tasks, want 2", len(created))
	}
	for _, task := range created {
		if task.Status != domain.JobStatusFailed {
			t.Fatalf("task %s status = %s, want failed", task.ID, task.Status)
		}
		if task.Error != "publisher not configured" {
			t.Fatalf("task error = %q", task.Error)
		}
		stored, err := o.Task(task.ID)
		if err != nil {
			t.Fatalf("get %s: %v", task.ID, err)
		}
		if stored.Status != domain.JobStatusFailed {
			t.Fatalf("stored status = %s", stored.Status)
		}
	}
}

func TestOrchestratorMapsAdapterErrorsToUserMessages(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "declared failure",
			err:  fmt.Errorf("tiktok publish: %w: tiktok video_pull_failed", domain.ErrProviderFailure),
			want: "the platform rejected the publish",
		},
		{
			name: "poll budget exhausted",
			err:  fmt.Errorf("instagram container: %w after 60 polls", asyncop.ErrTimeout),
			want: "publishing timed out",
		},
		{
			name: "missing token",
			err:  fmt.Errorf("tiktok publish: submit: %w", ErrMissingAccessToken),
			want: "publisher not configured",
		},
		{
			name: "transport trouble",
			err:  errors.New("tiktok: http request: connection reset"),
			want: "publishing failed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			posts := &memPostRepo{}
			o := NewOrchestrator(OrchestratorOptions{
				Posts:      posts,
				Publishers: []Publisher{&fakePublisher{platform: domain.PlatformTikTok, available: true, err: tc.err}},
				Logger:     zerolog.Nop(),
			})
			created, err := o.Submit("job-5", "caption", "https://cdn.test/v.mp4", []domain.Platform{domain.PlatformTikTok})
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			task := waitTerminal(t, o, created[0].ID)
			if task.Status != domain.JobStatusFailed {
				t.Fatalf("status = %s, want failed", task.Status)
			}
			if task.Error != tc.want {
				t.Fatalf("error = %q, want %q", task.Error, tc.want)
			}
			if len(posts.all()) != 0 {
				t.Fatalf("failed publish must not record a post")
			}
		})
	}
}

func TestOrchestratorConvertsPanicToFailedTask(t *testing.T) {
	o := NewOrchestrator(OrchestratorOptions{
		Publishers: []Publisher{&fakePublisher{platform: domain.PlatformFacebook, available: true, panicMsg: "offset bookkeeping bug"}},
		Logger:     zerolog.Nop(),
	})
	created, err := o.Submit("job-6", "caption", "https://cdn.test/v.mp4", []domain.Platform{domain.PlatformFacebook})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	task := waitTerminal(t, o, created[0].ID)
	if task.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", task.Status)
	}
	if task.Error != "internal error" {
		t.Fatalf("error = %q", task.Error)
	}
}

func TestOrchestratorToleratesPostRecordFailure(t *testing.T) {
	posts := &memPostRepo{createErr: errors.New("connection refused")}
	o := NewOrchestrator(OrchestratorOptions{
		Posts:      posts,
		Publishers: []Publisher{&fakePublisher{platform: domain.PlatformTikTok, available: true, result: &Result{PostID: "tt-2"}}},
		Logger:     zerolog.Nop(),
	})
	created, err := o.Submit("job-7", "caption", "https://cdn.test/v.mp4", []domain.Platform{domain.PlatformTikTok})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	task := waitTerminal(t, o, created[0].ID)
	if task.Status != domain.JobStatusCompleted || task.PostID != "tt-2" {
		t.Fatalf("task: %+v", task)
	}
}
