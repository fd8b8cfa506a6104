package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"docanalyzer/internal/model"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ReplaceForDocument swaps the document's chunk rows in one
// transaction, so a re-processed document never shows a mix of old and
// new chunks.
func (r *ChunkRepository) ReplaceForDocument(documentID uint, chunks []model.Chunk) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
			return fmt.Errorf("delete old chunks failed: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		if err := tx.Create(&chunks).Error; err != nil {
			return fmt.Errorf("create chunks failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace chunks for document %d failed: %w", documentID, err)
	}
	return nil
}

func (r *ChunkRepository) ListByDocumentID(documentID uint) ([]model.Chunk, error) {
	var chunks []model.Chunk
	if err := r.db.Where("document_id = ?", documentID).Order("chunk_index ASC").Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks failed: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepository) DeleteByDocumentID(documentID uint) error {
	if err := r.db.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks failed: %w", err)
	}
	return nil
}

// ListSearchRows returns every chunk joined with its document's
// original filename, the corpus the keyword scorer runs over.
func (r *ChunkRepository) ListSearchRows(ctx context.Context) ([]model.ChunkSearchRow, error) {
	var rows []model.ChunkSearchRow
	err := r.db.WithContext(ctx).
		Table("chunks").
		Select("chunks.vector_id, chunks.document_id, chunks.chunk_index, documents.original_filename AS source, chunks.content").
		Joins("JOIN documents ON documents.id = chunks.document_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list chunk search rows failed: %w", err)
	}
	return rows, nil
}
