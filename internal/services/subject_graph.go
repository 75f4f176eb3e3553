package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/studyos-backend/internal/logger"
	"github.com/yungbote/studyos-backend/internal/repos"
	"github.com/yungbote/studyos-backend/internal/types"
	"github.com/yungbote/studyos-backend/internal/utils"
)

var (
	ErrSubjectNotFound = errors.New("subject not found")
	ErrNoGraph         = errors.New("subject has no graph")
	ErrConceptNotFound = errors.New("concept not found in graph")
)

// SubjectGraphService owns read-modify-write mutations of a subject's stored
// graph: mastery updates after practice and attaching generated exercises.
type SubjectGraphService interface {
	UpdateMastery(ctx context.Context, subjectID uuid.UUID, conceptID string, score float64) (*types.ConceptNode, error)
	GenerateExercises(ctx context.Context, subjectID uuid.UUID, conceptID string) ([]types.Exercise, error)
}

type subjectGraphService struct {
	log         *logger.Logger
	subjectRepo repos.SubjectRepo
	exercises   ExerciseGenerationService
	alpha       float64

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewSubjectGraphService(baseLog *logger.Logger, subjectRepo repos.SubjectRepo, exercises ExerciseGenerationService) SubjectGraphService {
	log := baseLog.With("service", "SubjectGraphService")
	return &subjectGraphService{
		log:         log,
		subjectRepo: subjectRepo,
		exercises:   exercises,
		alpha:       utils.GetEnvAsFloat("MASTERY_ALPHA", 0.3, log),
		locks:       make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *subjectGraphService) subjectLock(subjectID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[subjectID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[subjectID] = l
	}
	return l
}

// UpdateMastery applies exponential smoothing toward the practice score:
// m' = m + alpha*(score - m), clamped to [0,1]. It also stamps the concept's
// last review time.
func (s *subjectGraphService) UpdateMastery(ctx context.Context, subjectID uuid.UUID, conceptID string, score float64) (*types.ConceptNode, error) {
	if score < 0 || score > 1 {
		return nil, fmt.Errorf("%w: score must be between 0 and 1", ErrInvalidInput)
	}

	var updated *types.ConceptNode
	err := s.mutateGraph(ctx, subjectID, conceptID, func(concept *types.ConceptNode) error {
		concept.Mastery = clampFloat(concept.Mastery+s.alpha*(score-concept.Mastery), 0, 1)
		now := time.Now().UTC()
		concept.LastReviewedAt = &now
		updated = concept
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Mastery updated", "subject_id", subjectID, "concept", conceptID, "mastery", fmt.Sprintf("%.2f", updated.Mastery))
	return updated, nil
}

// GenerateExercises produces a fresh exercise set for the concept and
// replaces whatever was stored before.
func (s *subjectGraphService) GenerateExercises(ctx context.Context, subjectID uuid.UUID, conceptID string) ([]types.Exercise, error) {
	var generated []types.Exercise
	err := s.mutateGraph(ctx, subjectID, conceptID, func(concept *types.ConceptNode) error {
		exercises, err := s.exercises.GenerateForConcept(ctx, concept)
		if err != nil {
			return err
		}
		concept.Exercises = exercises
		generated = exercises
		return nil
	})
	if err != nil {
		return nil, err
	}
	return generated, nil
}

// mutateGraph loads the subject's graph, lets fn edit one concept in place
// and persists the whole graph back. Graphs are small enough that a full
// rewrite beats surgical JSONB updates. The per-subject lock keeps two
// concurrent mutations from overwriting each other's rewrite.
func (s *subjectGraphService) mutateGraph(ctx context.Context, subjectID uuid.UUID, conceptID string, fn func(*types.ConceptNode) error) error {
	lock := s.subjectLock(subjectID)
	lock.Lock()
	defer lock.Unlock()

	subjects, err := s.subjectRepo.GetByIDs(ctx, nil, []uuid.UUID{subjectID})
	if err != nil {
		return fmt.Errorf("load subject: %w", err)
	}
	if len(subjects) == 0 {
		return ErrSubjectNotFound
	}
	subject := subjects[0]
	if len(subject.Graph) == 0 {
		return ErrNoGraph
	}

	var graph types.GenerationResult
	if err := json.Unmarshal(subject.Graph, &graph); err != nil {
		return fmt.Errorf("decode stored graph: %w", err)
	}

	found := false
	for i := range graph.Concepts {
		if graph.Concepts[i].ID == conceptID {
			if err := fn(&graph.Concepts[i]); err != nil {
				return err
			}
			found = true
			break
		}
	}
	if !found {
		return ErrConceptNotFound
	}

	if err := s.subjectRepo.ReplaceGraph(ctx, nil, subjectID, &graph); err != nil {
		return fmt.Errorf("persist graph: %w", err)
	}
	return nil
}
