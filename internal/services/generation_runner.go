package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/studyos-backend/internal/logger"
	"github.com/yungbote/studyos-backend/internal/repos"
	"github.com/yungbote/studyos-backend/internal/sse"
	"github.com/yungbote/studyos-backend/internal/types"
)

var ErrGenerationInProgress = errors.New("a generation is already running for this subject")

// Publisher abstracts where progress messages go: the in-memory hub directly,
// or a redis bus that fans out to every instance's hub.
type Publisher interface {
	Publish(ctx context.Context, msg sse.Message) error
}

// GenerationRunnerService starts, tracks and cancels graph generations. One
// run per subject at a time; the pipeline itself runs in a background
// goroutine detached from the request context.
type GenerationRunnerService interface {
	Start(ctx context.Context, subjectID uuid.UUID, input GenerateGraphInput) (*types.GenerationRun, error)
	Cancel(subjectID uuid.UUID) bool
	LatestRun(ctx context.Context, subjectID uuid.UUID) (*types.GenerationRun, error)
}

type generationRunnerService struct {
	log         *logger.Logger
	subjectRepo repos.SubjectRepo
	runRepo     repos.GenerationRunRepo
	graphs      GraphGenerationService
	publisher   Publisher

	mu     sync.Mutex
	active map[uuid.UUID]context.CancelFunc
}

func NewGenerationRunnerService(
	baseLog *logger.Logger,
	subjectRepo repos.SubjectRepo,
	runRepo repos.GenerationRunRepo,
	graphs GraphGenerationService,
	publisher Publisher,
) GenerationRunnerService {
	return &generationRunnerService{
		log:         baseLog.With("service", "GenerationRunnerService"),
		subjectRepo: subjectRepo,
		runRepo:     runRepo,
		graphs:      graphs,
		publisher:   publisher,
		active:      make(map[uuid.UUID]context.CancelFunc),
	}
}

func (s *generationRunnerService) Start(ctx context.Context, subjectID uuid.UUID, input GenerateGraphInput) (*types.GenerationRun, error) {
	if err := s.graphs.Validate(input); err != nil {
		return nil, err
	}

	subjects, err := s.subjectRepo.GetByIDs(ctx, nil, []uuid.UUID{subjectID})
	if err != nil {
		return nil, fmt.Errorf("load subject: %w", err)
	}
	if len(subjects) == 0 {
		return nil, ErrSubjectNotFound
	}
	subject := subjects[0]

	s.mu.Lock()
	if _, busy := s.active[subjectID]; busy {
		s.mu.Unlock()
		return nil, ErrGenerationInProgress
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.active[subjectID] = cancel
	s.mu.Unlock()

	run := &types.GenerationRun{
		SubjectID: subjectID,
		Status:    types.GenerationRunStatusRunning,
		Stage:     "queued",
	}
	created, err := s.runRepo.Create(ctx, nil, []*types.GenerationRun{run})
	if err != nil {
		s.release(subjectID)
		return nil, fmt.Errorf("create run: %w", err)
	}
	run = created[0]
	if err := s.subjectRepo.UpdateFields(ctx, nil, subjectID, map[string]interface{}{
		"status": types.SubjectStatusGenerating,
	}); err != nil {
		// The run row already exists; close it out so it is never left
		// dangling in a running state nothing will ever finish.
		_ = s.runRepo.UpdateFields(ctx, nil, run.ID, map[string]interface{}{
			"status": types.GenerationRunStatusFailed,
			"error":  "could not mark subject generating",
		})
		s.release(subjectID)
		return nil, fmt.Errorf("mark subject generating: %w", err)
	}

	go s.processRun(runCtx, subject, run, input)
	return run, nil
}

func (s *generationRunnerService) Cancel(subjectID uuid.UUID) bool {
	s.mu.Lock()
	cancel, ok := s.active[subjectID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (s *generationRunnerService) LatestRun(ctx context.Context, subjectID uuid.UUID) (*types.GenerationRun, error) {
	return s.runRepo.GetLatestBySubjectID(ctx, nil, subjectID)
}

func (s *generationRunnerService) release(subjectID uuid.UUID) {
	s.mu.Lock()
	if cancel, ok := s.active[subjectID]; ok {
		cancel()
		delete(s.active, subjectID)
	}
	s.mu.Unlock()
}

func (s *generationRunnerService) processRun(ctx context.Context, subject *types.Subject, run *types.GenerationRun, input GenerateGraphInput) {
	defer s.release(subject.ID)

	channel := subject.ID.String()
	priorStatus := subject.Status

	fail := func(err error) {
		now := time.Now()
		_ = s.runRepo.UpdateFields(context.Background(), nil, run.ID, map[string]interface{}{
			"status":     types.GenerationRunStatusFailed,
			"error":      err.Error(),
			"updated_at": now,
		})
		_ = s.subjectRepo.UpdateFields(context.Background(), nil, subject.ID, map[string]interface{}{
			"status": types.SubjectStatusFailed,
		})
		s.broadcast(channel, sse.EventGenerationFailed, map[string]any{
			"run_id": run.ID,
			"error":  err.Error(),
		})
		s.log.Error("Generation failed", "subject_id", subject.ID, "run_id", run.ID, "error", err)
	}

	progress := func(ev types.ProgressEvent) {
		pct := 0
		if ev.Total > 0 {
			pct = ev.Current * 100 / ev.Total
		}
		_ = s.runRepo.UpdateFields(context.Background(), nil, run.ID, map[string]interface{}{
			"stage":    ev.Step,
			"progress": pct,
		})
		s.broadcast(channel, sse.EventGenerationProgress, map[string]any{
			"run_id":  run.ID,
			"step":    ev.Step,
			"current": ev.Current,
			"total":   ev.Total,
			"detail":  ev.Detail,
		})
	}

	result, err := s.graphs.Generate(ctx, input, ProgressFunc(progress))
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			// Cancellation is not a failure. The subject drops back to
			// whatever it was before the run started.
			restored := priorStatus
			if restored == types.SubjectStatusGenerating {
				restored = types.SubjectStatusReady
			}
			_ = s.runRepo.UpdateFields(context.Background(), nil, run.ID, map[string]interface{}{
				"status": types.GenerationRunStatusCancelled,
			})
			_ = s.subjectRepo.UpdateFields(context.Background(), nil, subject.ID, map[string]interface{}{
				"status": restored,
			})
			s.broadcast(channel, sse.EventGenerationCancelled, map[string]any{"run_id": run.ID})
			s.log.Info("Generation cancelled", "subject_id", subject.ID, "run_id", run.ID)
			return
		}
		fail(err)
		return
	}

	if err := s.subjectRepo.ReplaceGraph(context.Background(), nil, subject.ID, result); err != nil {
		fail(fmt.Errorf("persist graph: %w", err))
		return
	}
	_ = s.runRepo.UpdateFields(context.Background(), nil, run.ID, map[string]interface{}{
		"status":   types.GenerationRunStatusDone,
		"progress": 100,
	})
	s.broadcast(channel, sse.EventGenerationCompleted, map[string]any{
		"run_id":   run.ID,
		"concepts": len(result.Concepts),
		"edges":    len(result.Edges),
	})
	s.log.Info("Generation completed", "subject_id", subject.ID, "run_id", run.ID, "concepts", len(result.Concepts))
}

func (s *generationRunnerService) broadcast(channel string, event sse.Event, data any) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, sse.Message{Channel: channel, Event: event, Data: data}); err != nil {
		s.log.Warn("Progress publish failed", "channel", channel, "error", err)
	}
}
