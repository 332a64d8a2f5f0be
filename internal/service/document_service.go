package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/windfall/storyspeak/internal/errors"
	"github.com/windfall/storyspeak/internal/repository"
)

// DocumentService stores exported lesson PDFs.
type DocumentService struct {
	store repository.DocumentStore
	log   zerolog.Logger
	now   func() time.Time
}

// NewDocumentService creates a new document service.
func NewDocumentService(store repository.DocumentStore, log zerolog.Logger) *DocumentService {
	return &DocumentService{store: store, log: log, now: time.Now}
}

// Upload saves a PDF. When title is set the file is named after it and the
// current date, otherwise the uploaded file name is kept.
func (s *DocumentService) Upload(ctx context.Context, filename, title string, data []byte) (*repository.Document, error) {
	if len(data) == 0 {
		return nil, apperrors.Validation("file is empty")
	}

	name := filename
	if title != "" {
		name = repository.DocumentName(title, s.now())
	}
	name, err := repository.CleanDocumentName(name)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	doc, err := s.store.Save(ctx, name, data)
	if err != nil {
		return nil, apperrors.Storage("failed to save document", err)
	}

	s.log.Info().Str("filename", doc.Name).Int64("size", doc.Size).Msg("Document saved")
	return doc, nil
}

// List returns stored documents, newest first.
func (s *DocumentService) List(ctx context.Context) ([]repository.Document, error) {
	docs, err := s.store.List(ctx)
	if err != nil {
		return nil, apperrors.Storage("failed to list documents", err)
	}
	return docs, nil
}

// Get returns the bytes of a stored document.
func (s *DocumentService) Get(ctx context.Context, name string) ([]byte, error) {
	clean, err := repository.CleanDocumentName(name)
	if err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	data, err := s.store.Get(ctx, clean)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("document")
	}
	if err != nil {
		return nil, apperrors.Storage("failed to read document", err)
	}
	return data, nil
}
