package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"docanalyzer/internal/ai"
	"docanalyzer/internal/chunker"
	"docanalyzer/internal/extract"
	"docanalyzer/internal/model"
	"docanalyzer/internal/platform/rabbitmq"
	"docanalyzer/internal/repository"
	"docanalyzer/internal/vectorstore"
)

// DashScope and similar APIs often limit embedding batch size.
const embeddingBatchSize = 10

// LLMClient is the OpenAI-compatible surface the services need. The ai
// package's client satisfies it; tests substitute fakes.
type LLMClient interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
	Embed(ctx context.Context, cfg ai.EmbeddingConfig, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, cfg ai.EmbeddingConfig, texts []string) ([][]float32, error)
}

// VectorIndex is the write side of the vector store.
type VectorIndex interface {
	Upsert(ctx context.Context, entries []vectorstore.Entry) error
	DeleteDocument(ctx context.Context, documentID uint) error
}

// JobPublisher hands processing work to the ingest worker. A nil
// publisher makes Upload process synchronously.
type JobPublisher interface {
	Publish(ctx context.Context, job rabbitmq.ProcessJob) error
}

type IngestOptions struct {
	UploadDir        string
	MaxFileSize      int64
	ExtensionAllowed func(ext string) bool
}

type IngestService struct {
	docRepo   *repository.DocumentRepository
	chunkRepo *repository.ChunkRepository
	index     VectorIndex
	extractor *extract.Extractor
	splitter  *chunker.Chunker
	llm       LLMClient
	embConfig ai.EmbeddingConfig
	publisher JobPublisher
	opts      IngestOptions
}

func NewIngestService(
	docRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	index VectorIndex,
	extractor *extract.Extractor,
	splitter *chunker.Chunker,
	llm LLMClient,
	embConfig ai.EmbeddingConfig,
	publisher JobPublisher,
	opts IngestOptions,
) *IngestService {
	return &IngestService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		index:     index,
		extractor: extractor,
		splitter:  splitter,
		llm:       llm,
		embConfig: embConfig,
		publisher: publisher,
		opts:      opts,
	}
}

// Upload validates, stores the file, records the document and schedules
// processing. Validation rejects before anything touches disk.
func (s *IngestService) Upload(ctx context.Context, originalName string, size int64, r io.Reader) (*model.Document, error) {
	originalName = filepath.Base(strings.TrimSpace(originalName))
	if originalName == "" || originalName == "." {
		return nil, ErrInvalidInput
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	if s.opts.ExtensionAllowed == nil || !s.opts.ExtensionAllowed(ext) {
		return nil, fmt.Errorf("%w: %s", ErrFileTypeNotAllowed, ext)
	}
	if size <= 0 || size > s.opts.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, size, s.opts.MaxFileSize)
	}

	if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir failed: %w", err)
	}

	storedName := uuid.NewString() + "_" + originalName
	storedPath := filepath.Join(s.opts.UploadDir, storedName)
	f, err := os.Create(storedPath)
	if err != nil {
		return nil, fmt.Errorf("create upload file failed: %w", err)
	}
	written, err := io.Copy(f, io.LimitReader(r, s.opts.MaxFileSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > s.opts.MaxFileSize {
		err = ErrFileTooLarge
	}
	if err != nil {
		_ = os.Remove(storedPath)
		if errors.Is(err, ErrFileTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("write upload file failed: %w", err)
	}

	doc := &model.Document{
		Filename:         storedName,
		OriginalFilename: originalName,
		FileSize:         written,
		ContentType:      mime.TypeByExtension(ext),
	}
	if err := s.docRepo.Create(doc); err != nil {
		_ = os.Remove(storedPath)
		return nil, err
	}

	if s.publisher != nil {
		err := s.publisher.Publish(ctx, rabbitmq.ProcessJob{DocumentID: doc.ID})
		if err == nil {
			return doc, nil
		}
		log.Warn().Err(err).Uint("document_id", doc.ID).Msg("publish process job failed, processing inline")
	}
	if err := s.Process(ctx, doc.ID); err != nil {
		log.Error().Err(err).Uint("document_id", doc.ID).Msg("inline document processing failed")
	}
	refreshed, err := s.docRepo.GetByID(doc.ID)
	if err != nil || refreshed == nil {
		return doc, nil
	}
	return refreshed, nil
}

// Process runs extraction, chunking, embedding and indexing for one
// document. Failures are recorded on the document row and returned;
// the document stays unprocessed so it can be retried by hand.
func (s *IngestService) Process(ctx context.Context, documentID uint) error {
	doc, err := s.docRepo.GetByID(documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	if err := s.process(ctx, doc); err != nil {
		if markErr := s.docRepo.MarkFailed(doc.ID, err.Error()); markErr != nil {
			log.Error().Err(markErr).Uint("document_id", doc.ID).Msg("record processing failure failed")
		}
		return err
	}
	return nil
}

func (s *IngestService) process(ctx context.Context, doc *model.Document) error {
	path := filepath.Join(s.opts.UploadDir, doc.Filename)
	text, err := s.extractor.Extract(path)
	if err != nil {
		return fmt.Errorf("extract %s failed: %w", doc.OriginalFilename, err)
	}

	pieces, err := s.splitter.Split(text)
	if err != nil {
		return fmt.Errorf("chunk %s failed: %w", doc.OriginalFilename, err)
	}
	if len(pieces) == 0 {
		return fmt.Errorf("no extractable text in %s", doc.OriginalFilename)
	}

	var embeddings [][]float32
	for i := 0; i < len(pieces); i += embeddingBatchSize {
		end := i + embeddingBatchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch, err := s.llm.EmbedBatch(ctx, s.embConfig, pieces[i:end])
		if err != nil {
			return fmt.Errorf("embed chunks failed: %w", err)
		}
		embeddings = append(embeddings, batch...)
	}
	if len(embeddings) != len(pieces) {
		return fmt.Errorf("embedding count mismatch: want %d got %d", len(pieces), len(embeddings))
	}

	// Vector IDs are derived from document and ordinal, so re-processing
	// overwrites in place instead of accumulating duplicates.
	entries := make([]vectorstore.Entry, len(pieces))
	chunks := make([]model.Chunk, len(pieces))
	for i, content := range pieces {
		vectorID := fmt.Sprintf("doc%d-chunk%d", doc.ID, i)
		entries[i] = vectorstore.Entry{
			VectorID:   vectorID,
			DocumentID: doc.ID,
			ChunkIndex: i,
			Source:     doc.OriginalFilename,
			Content:    content,
			Embedding:  embeddings[i],
		}
		chunks[i] = model.Chunk{
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    content,
			VectorID:   vectorID,
		}
	}

	// Drop stale vectors from an earlier run before upserting, then
	// commit the relational side last so Processed never flips true
	// ahead of a queryable index.
	if err := s.index.DeleteDocument(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.index.Upsert(ctx, entries); err != nil {
		return err
	}
	if err := s.chunkRepo.ReplaceForDocument(doc.ID, chunks); err != nil {
		return err
	}
	if err := s.docRepo.MarkProcessed(doc.ID, len(chunks)); err != nil {
		return err
	}

	log.Info().Uint("document_id", doc.ID).Int("chunks", len(chunks)).Str("file", doc.OriginalFilename).
		Msg("document processed")
	return nil
}

func (s *IngestService) List() ([]model.Document, error) {
	return s.docRepo.List()
}

// Delete removes the document everywhere: vector store, chunk rows,
// stored file, document row.
func (s *IngestService) Delete(ctx context.Context, documentID uint) error {
	doc, err := s.docRepo.GetByID(documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	if err := s.index.DeleteDocument(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.chunkRepo.DeleteByDocumentID(doc.ID); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.opts.UploadDir, doc.Filename)); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Uint("document_id", doc.ID).Msg("remove stored file failed")
	}
	return s.docRepo.Delete(doc.ID)
}
