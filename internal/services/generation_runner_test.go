package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/studyos-backend/internal/sse"
	"github.com/yungbote/studyos-backend/internal/types"
)

type fakeRunRepo struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*types.GenerationRun
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: map[uuid.UUID]*types.GenerationRun{}}
}

func (f *fakeRunRepo) Create(_ context.Context, _ *gorm.DB, runs []*types.GenerationRun) ([]*types.GenerationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, run := range runs {
		if run.ID == uuid.Nil {
			run.ID = uuid.New()
		}
		run.CreatedAt = time.Now()
		f.runs[run.ID] = run
	}
	return runs, nil
}

func (f *fakeRunRepo) GetLatestBySubjectID(_ context.Context, _ *gorm.DB, subjectID uuid.UUID) (*types.GenerationRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *types.GenerationRun
	for _, run := range f.runs {
		if run.SubjectID != subjectID {
			continue
		}
		if latest == nil || run.CreatedAt.After(latest.CreatedAt) {
			latest = run
		}
	}
	return latest, nil
}

func (f *fakeRunRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return fmt.Errorf("run %s not found", id)
	}
	if status, ok := updates["status"].(string); ok {
		run.Status = status
	}
	if stage, ok := updates["stage"].(string); ok {
		run.Stage = stage
	}
	if progress, ok := updates["progress"].(int); ok {
		run.Progress = progress
	}
	if msg, ok := updates["error"].(string); ok {
		run.Error = msg
	}
	return nil
}

func (f *fakeRunRepo) status(id uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[id].Status
}

type stubGraphs struct {
	validateErr error
	generate    func(ctx context.Context, sink ProgressSink) (*types.GenerationResult, error)
}

func (s *stubGraphs) Validate(GenerateGraphInput) error { return s.validateErr }

func (s *stubGraphs) Generate(ctx context.Context, _ GenerateGraphInput, sink ProgressSink) (*types.GenerationResult, error) {
	return s.generate(ctx, sink)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []sse.Event
}

func (r *recordingPublisher) Publish(_ context.Context, msg sse.Message) error {
	r.mu.Lock()
	r.events = append(r.events, msg.Event)
	r.mu.Unlock()
	return nil
}

func (r *recordingPublisher) has(event sse.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev == event {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func subjectStatus(f *fakeSubjectRepo) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subject.Status
}

func TestStartClosesRunWhenSubjectUpdateFails(t *testing.T) {
	repo := subjectWithGraph(t)
	repo.updateErr = errors.New("db down")
	runs := newFakeRunRepo()
	graphs := &stubGraphs{generate: func(context.Context, ProgressSink) (*types.GenerationResult, error) {
		return nil, errors.New("should not run")
	}}
	svc := NewGenerationRunnerService(testLogger(t), repo, runs, graphs, &recordingPublisher{})

	if _, err := svc.Start(context.Background(), repo.subject.ID, GenerateGraphInput{Text: longText()}); err == nil {
		t.Fatalf("expected error when subject cannot be marked generating")
	}

	run, err := runs.GetLatestBySubjectID(context.Background(), nil, repo.subject.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run == nil {
		t.Fatalf("run row missing")
	}
	if run.Status != types.GenerationRunStatusFailed {
		t.Fatalf("aborted start must close its run, got status %q", run.Status)
	}
	if run.Error == "" {
		t.Fatalf("closed run should carry an error message")
	}
	// The slot is free again, so there is nothing left to cancel.
	if svc.Cancel(repo.subject.ID) {
		t.Fatalf("no active run expected after aborted start")
	}
}

func TestRunCancellationIsNotFailure(t *testing.T) {
	repo := subjectWithGraph(t)
	runs := newFakeRunRepo()
	started := make(chan struct{})
	graphs := &stubGraphs{generate: func(ctx context.Context, _ ProgressSink) (*types.GenerationResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ErrCancelled
	}}
	pub := &recordingPublisher{}
	svc := NewGenerationRunnerService(testLogger(t), repo, runs, graphs, pub)

	run, err := svc.Start(context.Background(), repo.subject.ID, GenerateGraphInput{Text: longText()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-started
	if !svc.Cancel(repo.subject.ID) {
		t.Fatalf("expected an active run to cancel")
	}

	waitFor(t, func() bool { return pub.has(sse.EventGenerationCancelled) })
	if got := runs.status(run.ID); got != types.GenerationRunStatusCancelled {
		t.Fatalf("expected cancelled run, got %q", got)
	}
	if got := subjectStatus(repo); got != types.SubjectStatusReady {
		t.Fatalf("subject should drop back to ready, got %q", got)
	}
	if pub.has(sse.EventGenerationFailed) {
		t.Fatalf("cancellation must not publish a failure event")
	}
}

func TestStartRejectsConcurrentRun(t *testing.T) {
	repo := subjectWithGraph(t)
	runs := newFakeRunRepo()
	started := make(chan struct{})
	graphs := &stubGraphs{generate: func(ctx context.Context, _ ProgressSink) (*types.GenerationResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ErrCancelled
	}}
	svc := NewGenerationRunnerService(testLogger(t), repo, runs, graphs, &recordingPublisher{})

	run, err := svc.Start(context.Background(), repo.subject.ID, GenerateGraphInput{Text: longText()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-started
	if _, err := svc.Start(context.Background(), repo.subject.ID, GenerateGraphInput{Text: longText()}); !errors.Is(err, ErrGenerationInProgress) {
		t.Fatalf("expected ErrGenerationInProgress, got %v", err)
	}
	svc.Cancel(repo.subject.ID)
	waitFor(t, func() bool { return runs.status(run.ID) == types.GenerationRunStatusCancelled })
}
