package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docanalyzer/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) List() ([]model.Document, error) {
	var docs []model.Document
	if err := r.db.Order("upload_time DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return docs, nil
}

// MarkProcessed records a successful ingestion and clears any error
// left by an earlier failed attempt.
func (r *DocumentRepository) MarkProcessed(id uint, chunksCount int) error {
	updates := map[string]interface{}{
		"processed":        true,
		"processing_error": "",
		"chunks_count":     chunksCount,
	}
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("mark document processed failed: %w", err)
	}
	return nil
}

// MarkFailed records a failed ingestion attempt. The document stays
// unprocessed and can be retried.
func (r *DocumentRepository) MarkFailed(id uint, reason string) error {
	updates := map[string]interface{}{
		"processed":        false,
		"processing_error": reason,
		"chunks_count":     0,
	}
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("mark document failed failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Delete(id uint) error {
	if err := r.db.Delete(&model.Document{}, id).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
