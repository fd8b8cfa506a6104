package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docanalyzer/internal/model"
)

type EvaluationRepository struct {
	db *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

func (r *EvaluationRepository) Create(batch *model.EvaluationBatch) error {
	if err := r.db.Create(batch).Error; err != nil {
		return fmt.Errorf("create evaluation batch failed: %w", err)
	}
	return nil
}

func (r *EvaluationRepository) GetByID(id uint) (*model.EvaluationBatch, error) {
	var batch model.EvaluationBatch
	if err := r.db.First(&batch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get evaluation batch failed: %w", err)
	}
	return &batch, nil
}

func (r *EvaluationRepository) List() ([]model.EvaluationBatch, error) {
	var batches []model.EvaluationBatch
	if err := r.db.Order("created_at DESC").Find(&batches).Error; err != nil {
		return nil, fmt.Errorf("list evaluation batches failed: %w", err)
	}
	return batches, nil
}
