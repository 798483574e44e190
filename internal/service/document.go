package service

import (
	"context"
	"errors"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

var errNoIngestion = errors.New("document ingestion is not configured")

func (s *Service) UploadDocument(ctx context.Context, filename, contentType string, data []byte) (*domain.Document, error) {
	if s.documents == nil {
		return nil, errNoIngestion
	}
	return s.documents.ProcessDocument(ctx, filename, contentType, data)
}

func (s *Service) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	if s.documents == nil {
		return nil, errNoIngestion
	}
	return s.documents.ListDocuments(ctx)
}

func (s *Service) GetDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	if s.documents == nil {
		return nil, errNoIngestion
	}
	return s.documents.GetDocument(ctx, documentID)
}

func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	if s.documents == nil {
		return errNoIngestion
	}
	return s.documents.DeleteDocument(ctx, documentID)
}

// MaxUploadBytes is the largest accepted document upload.
func (s *Service) MaxUploadBytes() int64 {
	return s.config.MaxUploadBytes
}
