package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/custodia/internal/common"
	"github.com/ternarybob/custodia/internal/models"
)

func testJobStorage(t *testing.T) *JobStorage {
	t.Helper()

	options := badgerhold.DefaultOptions
	options.Dir = t.TempDir()
	options.ValueDir = options.Dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	db := &BadgerDB{store: store}
	return NewJobStorage(db, arbor.NewLogger()).(*JobStorage)
}

func newQueuedJob(id string, submitted time.Time) *models.Job {
	script := "save_results({'sample_size': 10})"
	return &models.Job{
		ID:            id,
		ScriptKind:    models.ScriptKindPython,
		ScriptContent: script,
		ScriptHash:    models.ComputeScriptHash(script),
		CatalogID:     "cat_demo",
		Status:        models.JobStatusQueued,
		SubmittedAt:   submitted,
	}
}

func TestJobLifecycleHappyPath(t *testing.T) {
	storage := testJobStorage(t)
	ctx := context.Background()

	job := newQueuedJob("job-1", time.Now().UTC())
	if err := storage.InsertJob(ctx, job); err != nil {
		t.Fatalf("Failed to insert job: %v", err)
	}

	running, err := storage.SetRunning(ctx, "job-1", "node-a")
	if err != nil {
		t.Fatalf("Failed to set running: %v", err)
	}
	if running.Status != models.JobStatusRunning || running.StartedAt == nil {
		t.Fatalf("Unexpected running state: %+v", running)
	}

	records := 150
	result := map[string]interface{}{"sample_size": 150.0, "age_mean": 45.2}
	if err := storage.SetResult(ctx, "job-1", result, 2.5, nil, &records); err != nil {
		t.Fatalf("Failed to set result: %v", err)
	}

	got, err := storage.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.JobStatusCompleted {
		t.Fatalf("Expected completed, got %s", got.Status)
	}
	if got.RecordsProcessed == nil || *got.RecordsProcessed != 150 {
		t.Fatalf("Expected records_processed=150, got %v", got.RecordsProcessed)
	}
	if got.CompletedAt == nil {
		t.Fatal("Expected CompletedAt to be stamped")
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	storage := testJobStorage(t)
	ctx := context.Background()

	job := newQueuedJob("job-2", time.Now().UTC())
	if err := storage.InsertJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	if _, err := storage.SetRunning(ctx, "job-2", ""); err != nil {
		t.Fatal(err)
	}
	if err := storage.SetCancelled(ctx, "job-2"); err != nil {
		t.Fatal(err)
	}

	// A late worker failure must not clobber the cancellation
	err := storage.SetFailed(ctx, "job-2", "boom", 1.0)
	if !errors.Is(err, common.ErrJobTerminal) {
		t.Fatalf("Expected ErrJobTerminal, got %v", err)
	}

	got, _ := storage.GetJob(ctx, "job-2")
	if got.Status != models.JobStatusCancelled {
		t.Fatalf("Expected cancelled, got %s", got.Status)
	}
}

func TestSetRunningRequiresQueued(t *testing.T) {
	storage := testJobStorage(t)
	ctx := context.Background()

	job := newQueuedJob("job-3", time.Now().UTC())
	if err := storage.InsertJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := storage.SetCancelled(ctx, "job-3"); err != nil {
		t.Fatal(err)
	}

	_, err := storage.SetRunning(ctx, "job-3", "")
	if !errors.Is(err, common.ErrJobTerminal) {
		t.Fatalf("Expected ErrJobTerminal, got %v", err)
	}
}

func TestSetBlockedStoresOnlyReason(t *testing.T) {
	storage := testJobStorage(t)
	ctx := context.Background()

	job := newQueuedJob("job-4", time.Now().UTC())
	if err := storage.InsertJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	if _, err := storage.SetRunning(ctx, "job-4", ""); err != nil {
		t.Fatal(err)
	}
	if err := storage.SetBlocked(ctx, "job-4", "cohort size (3) below minimum (10)"); err != nil {
		t.Fatal(err)
	}

	got, _ := storage.GetJob(ctx, "job-4")
	if got.Status != models.JobStatusBlocked {
		t.Fatalf("Expected blocked, got %s", got.Status)
	}
	if len(got.ResultData) != 1 || got.ResultData["message"] == nil {
		t.Fatalf("Expected only a reason message, got %v", got.ResultData)
	}
}

func TestSetProgressDroppedAfterTerminal(t *testing.T) {
	storage := testJobStorage(t)
	ctx := context.Background()

	job := newQueuedJob("job-5", time.Now().UTC())
	if err := storage.InsertJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	if _, err := storage.SetRunning(ctx, "job-5", ""); err != nil {
		t.Fatal(err)
	}
	if err := storage.SetCancelled(ctx, "job-5"); err != nil {
		t.Fatal(err)
	}

	if err := storage.SetProgress(ctx, "job-5", 0.5); err != nil {
		t.Fatalf("Progress on terminal job should be a silent no-op, got %v", err)
	}
	got, _ := storage.GetJob(ctx, "job-5")
	if got.Progress != 0 {
		t.Fatalf("Expected progress unchanged, got %f", got.Progress)
	}
}

func TestListQueuedInOrder(t *testing.T) {
	storage := testJobStorage(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"job-c", "job-a", "job-b"} {
		job := newQueuedJob(id, base.Add(time.Duration(i)*time.Second))
		if err := storage.InsertJob(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	queued, err := storage.ListQueuedInOrder(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(queued) != 3 {
		t.Fatalf("Expected 3 queued jobs, got %d", len(queued))
	}
	// Submission order, not lexical order
	if queued[0].ID != "job-c" || queued[1].ID != "job-a" || queued[2].ID != "job-b" {
		t.Fatalf("Wrong order: %s, %s, %s", queued[0].ID, queued[1].ID, queued[2].ID)
	}
}

func TestMarkRunningAsRecovered(t *testing.T) {
	storage := testJobStorage(t)
	ctx := context.Background()

	for _, id := range []string{"job-r1", "job-r2"} {
		if err := storage.InsertJob(ctx, newQueuedJob(id, time.Now().UTC())); err != nil {
			t.Fatal(err)
		}
		if _, err := storage.SetRunning(ctx, id, ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := storage.InsertJob(ctx, newQueuedJob("job-r3", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}

	count, err := storage.MarkRunningAsRecovered(ctx, "node restarted")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("Expected 2 recovered jobs, got %d", count)
	}

	for _, id := range []string{"job-r1", "job-r2"} {
		got, _ := storage.GetJob(ctx, id)
		if got.Status != models.JobStatusFailed || got.ErrorMessage != "node restarted" {
			t.Fatalf("Job %s not recovered: %+v", id, got)
		}
	}
	queued, _ := storage.ListQueuedInOrder(ctx)
	if len(queued) != 1 || queued[0].ID != "job-r3" {
		t.Fatalf("Queued job should be untouched, got %v", queued)
	}
}

func TestGetJobNotFound(t *testing.T) {
	storage := testJobStorage(t)

	_, err := storage.GetJob(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}
