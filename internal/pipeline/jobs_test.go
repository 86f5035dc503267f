package pipeline

import (
	"testing"
	"time"
)

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{
		ID:        "test-1",
		Status:    StatusQueued,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	transitions := []JobStatus{
		StatusExtracting,
		StatusStructuring,
		StatusFiltering,
		StatusAtomizing,
		StatusSummarizing,
		StatusLinking,
		StatusEmitting,
		StatusCompleted,
	}

	for _, status := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(status)

		if job.Status != status {
			t.Errorf("expected status %q, got %q", status, job.Status)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", status)
		}
	}
}

func TestJobStatus_Done(t *testing.T) {
	done := []JobStatus{StatusCompleted, StatusFailed, StatusPartial, StatusCancelled}
	for _, s := range done {
		if !s.Done() {
			t.Errorf("expected %q to be final", s)
		}
	}
	running := []JobStatus{StatusQueued, StatusExtracting, StatusAtomizing, StatusLinking}
	for _, s := range running {
		if s.Done() {
			t.Errorf("expected %q to be non-final", s)
		}
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("structuring: no sections")
	job.AddError("snapshot failed")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "structuring: no sections" {
		t.Errorf("unexpected first error %q", snap.Progress.Errors[0])
	}
}

func TestJob_SetProgressKeepsErrors(t *testing.T) {
	job := &Job{ID: "prog-test", UpdatedAt: time.Now()}
	job.AddError("one warning-worthy failure")
	job.SetProgress(Progress{TotalNodes: 12, FilledNodes: 9, FailedNodes: 1, Warnings: 2})

	snap := job.Snapshot()
	if snap.Progress.TotalNodes != 12 || snap.Progress.FilledNodes != 9 {
		t.Errorf("progress counts not applied: %+v", snap.Progress)
	}
	if len(snap.Progress.Errors) != 1 {
		t.Errorf("expected accumulated errors to survive, got %d", len(snap.Progress.Errors))
	}
}

func TestJob_FileData(t *testing.T) {
	job := &Job{ID: "data-test"}
	data := []byte("file content here")
	job.SetFileData(data)
	if string(job.FileData()) != string(data) {
		t.Errorf("file data roundtrip failed")
	}
	job.SetFileData(nil)
	if job.FileData() != nil {
		t.Error("expected file data to be released")
	}
}

func TestJob_CancelWhileQueued(t *testing.T) {
	job := &Job{ID: "q-test", Status: StatusQueued, UpdatedAt: time.Now()}
	job.Cancel()
	if job.Snapshot().Status != StatusCancelled {
		t.Errorf("expected queued job to become cancelled, got %q", job.Snapshot().Status)
	}
}

func TestJob_CancelWhileRunning(t *testing.T) {
	job := &Job{ID: "r-test", Status: StatusAtomizing, UpdatedAt: time.Now()}
	fired := false
	job.setCancel(func() { fired = true })
	job.Cancel()
	if !fired {
		t.Error("expected cancel func to fire")
	}
	if job.Snapshot().Status != StatusAtomizing {
		t.Error("running job status is owned by the worker, not Cancel")
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return a non-nil errors slice.
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	if got := store.Get("store-1"); got == nil || got.ID != "store-1" {
		t.Fatalf("expected to get job back, got %v", got)
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", Status: StatusCompleted, UpdatedAt: time.Now()}
	store.Put(expired)

	// Still running jobs never expire, however old.
	running := &Job{ID: "busy", Status: StatusAtomizing, UpdatedAt: time.Now()}
	store.Put(running)

	time.Sleep(100 * time.Millisecond)

	fresh := &Job{ID: "new", Status: StatusCompleted, UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired finished job to be cleaned up")
	}
	if store.Get("busy") == nil {
		t.Error("expected running job to survive cleanup")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}
