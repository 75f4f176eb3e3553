package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/studyos-backend/internal/logger"
	"github.com/yungbote/studyos-backend/internal/types"
)

type SubjectRepo interface {
	Create(ctx context.Context, tx *gorm.DB, subjects []*types.Subject) ([]*types.Subject, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Subject, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.Subject, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error

	// ReplaceGraph persists a generation result wholesale, discarding any
	// prior graph for the subject.
	ReplaceGraph(ctx context.Context, tx *gorm.DB, id uuid.UUID, result *types.GenerationResult) error

	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type subjectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubjectRepo(db *gorm.DB, baseLog *logger.Logger) SubjectRepo {
	return &subjectRepo{db: db, log: baseLog.With("repo", "SubjectRepo")}
}

func (r *subjectRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *subjectRepo) Create(ctx context.Context, tx *gorm.DB, subjects []*types.Subject) ([]*types.Subject, error) {
	if len(subjects) == 0 {
		return []*types.Subject{}, nil
	}
	if err := r.handle(tx).WithContext(ctx).Create(&subjects).Error; err != nil {
		return nil, err
	}
	return subjects, nil
}

func (r *subjectRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Subject, error) {
	var results []*types.Subject
	if len(ids) == 0 {
		return results, nil
	}
	if err := r.handle(tx).WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *subjectRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.Subject, error) {
	var results []*types.Subject
	if err := r.handle(tx).WithContext(ctx).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *subjectRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("subject id required")
	}
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.handle(tx).WithContext(ctx).
		Model(&types.Subject{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *subjectRepo) ReplaceGraph(ctx context.Context, tx *gorm.DB, id uuid.UUID, result *types.GenerationResult) error {
	if id == uuid.Nil {
		return fmt.Errorf("subject id required")
	}
	if result == nil {
		return fmt.Errorf("generation result required")
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	return r.UpdateFields(ctx, tx, id, map[string]interface{}{
		"graph":  datatypes.JSON(raw),
		"status": types.SubjectStatusReady,
	})
}

func (r *subjectRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("subject id required")
	}
	return r.handle(tx).WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Subject{}).Error
}
