package app

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrSessionNotFound    = errors.New("session not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
	ErrEmptyBatch         = errors.New("evaluation batch has no questions")
	ErrBatchNotFound      = errors.New("evaluation batch not found")
	// ErrGeneration marks an upstream LLM failure after retries; callers
	// may retry the whole request.
	ErrGeneration = errors.New("answer generation failed")
)
