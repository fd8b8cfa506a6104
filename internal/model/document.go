package model

import "time"

// Document is an uploaded file tracked through the ingestion pipeline.
// Processed flips to true only after its chunks are committed to the
// vector store and the chunk rows are written.
type Document struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Filename         string    `gorm:"size:512;not null;uniqueIndex" json:"-"`
	OriginalFilename string    `gorm:"size:512;not null" json:"filename"`
	FileSize         int64     `gorm:"not null" json:"file_size"`
	ContentType      string    `gorm:"size:128" json:"content_type"`
	UploadTime       time.Time `gorm:"autoCreateTime" json:"upload_time"`
	Processed        bool      `gorm:"not null;default:false" json:"processed"`
	ProcessingError  string    `gorm:"type:text" json:"processing_error,omitempty"`
	ChunksCount      int       `gorm:"not null;default:0" json:"chunks_count"`
}

// Chunk is one overlapping window of a document's text. The embedding
// itself lives in the vector store under VectorID; the row here carries
// the content for keyword search and the ordinal for deterministic
// tie-breaking.
type Chunk struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DocumentID uint      `gorm:"not null;index" json:"document_id"`
	ChunkIndex int       `gorm:"not null" json:"chunk_index"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	VectorID   string    `gorm:"size:64;not null;index" json:"vector_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChunkSearchRow is the keyword-search projection of a chunk joined
// with its document's original filename.
type ChunkSearchRow struct {
	VectorID   string `json:"vector_id"`
	DocumentID uint   `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Source     string `json:"source"`
	Content    string `json:"content"`
}
