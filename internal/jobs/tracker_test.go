package jobs

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"promoreel/internal/domain"
)

func newTestTracker() *Tracker {
	return NewTracker(NewMemoryStore(), zerolog.Nop())
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	tr := newTestTracker()
	if _, err := tr.Create("job-1", "user-1", domain.CreationRequest{Mode: domain.ModeAuto}); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if _, err := tr.Create("job-1", "user-1", domain.CreationRequest{Mode: domain.ModeAuto}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate id, got %v", err)
	}
}

func TestProgressNeverRegresses(t *testing.T) {
	tr := newTestTracker()
	if _, err := tr.Create("job-1", "user-1", domain.CreationRequest{}); err != nil {
		t.Fatalf("create: %v", err)
	}

	sequence := []Step{
		StepAnalyzing,
		StepGeneratingVideo,
		StepGeneratingScript, // out of order, lower checkpoint
		StepAnalyzing,        // out of order again
		StepGeneratingVoice,
		StepUploading,
	}
	last := -1
	for _, step := range sequence {
		tr.Advance("job-1", step)
		job, err := tr.Get("job-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if job.Progress < last {
			t.Fatalf("progress regressed from %d to %d after step %s", last, job.Progress, step)
		}
		last = job.Progress
	}

	job, _ := tr.Get("job-1")
	if job.Progress != 90 || job.CurrentStep != string(StepUploading) {
		t.Fatalf("expected uploading at 90, got %s at %d", job.CurrentStep, job.Progress)
	}
}

func TestAdvanceIgnoresUnknownStep(t *testing.T) {
	tr := newTestTracker()
	if _, err := tr.Create("job-1", "user-1", domain.CreationRequest{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	tr.Advance("job-1", StepGeneratingScript)
	tr.Advance("job-1", Step("rendering_credits"))

	job, _ := tr.Get("job-1")
	if job.CurrentStep != string(StepGeneratingScript) || job.Progress != 20 {
		t.Fatalf("unknown step mutated job: step=%s progress=%d", job.CurrentStep, job.Progress)
	}
}

func TestTerminalStatusIsImmutable(t *testing.T) {
	tr := newTestTracker()
	if _, err := tr.Create("job-1", "user-1", domain.CreationRequest{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	tr.Advance("job-1", StepGeneratingVideo)
	tr.MarkStatus("job-1", domain.JobStatusFailed, "no video provider available")

	// Late writes after the terminal state must all be ignored.
	tr.MarkStatus("job-1", domain.JobStatusCompleted, "")
	tr.MarkStatus("job-1", domain.JobStatusRunning, "")
	tr.Advance("job-1", StepUploading)

	job, err := tr.Get("job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("terminal status changed to %s", job.Status)
	}
	if job.Error != "no video provider available" {
		t.Fatalf("terminal error changed to %q", job.Error)
	}
	if job.CurrentStep != string(StepGeneratingVideo) {
		t.Fatalf("failed job moved off its last step: %s", job.CurrentStep)
	}
}

func TestFailureKeepsLastReachedStep(t *testing.T) {
	tr := newTestTracker()
	if _, err := tr.Create("job-1", "user-1", domain.CreationRequest{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	tr.MarkStatus("job-1", domain.JobStatusRunning, "")
	tr.Advance("job-1", StepGeneratingScript)
	tr.MarkStatus("job-1", domain.JobStatusFailed, "script provider exhausted")

	job, _ := tr.Get("job-1")
	if job.CurrentStep != string(StepGeneratingScript) || job.Progress != 20 {
		t.Fatalf("failure moved the job: step=%s progress=%d", job.CurrentStep, job.Progress)
	}
}

func TestGetUnknownJob(t *testing.T) {
	tr := newTestTracker()
	if _, err := tr.Get("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRemovesJob(t *testing.T) {
	tr := newTestTracker()
	if _, err := tr.Create("job-1", "user-1", domain.CreationRequest{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	tr.Delete("job-1")
	if _, err := tr.Get("job-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
