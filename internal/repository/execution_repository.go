package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/joshsymonds/inboxledger/internal/models"
)

// ExecutionRepository records ingest runs.
type ExecutionRepository interface {
	Create(ctx context.Context, exec *models.Execution) error
	Update(ctx context.Context, exec *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)
}

type executionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) ExecutionRepository {
	return &executionRepository{db: db}
}

func (r *executionRepository) Create(ctx context.Context, exec *models.Execution) error {
	if exec == nil || exec.ID == "" {
		return fmt.Errorf("create execution: %w", ErrInvalidInput)
	}
	result := r.db.WithContext(ctx).Create(exec)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return fmt.Errorf("execution %s already exists: %w", exec.ID, ErrDuplicateEntry)
		}
		return fmt.Errorf("create execution: %w", result.Error)
	}
	return nil
}

func (r *executionRepository) Update(ctx context.Context, exec *models.Execution) error {
	result := r.db.WithContext(ctx).Model(&models.Execution{ID: exec.ID}).Select("*").Updates(exec)
	if result.Error != nil {
		return fmt.Errorf("update execution: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *executionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	var exec models.Execution
	result := r.db.WithContext(ctx).First(&exec, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get execution: %w", result.Error)
	}
	return &exec, nil
}
