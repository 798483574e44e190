// Package store persists sessions, messages, run traces and document records.
package store

import (
	"context"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

// Store defines the persistence operations used by the service layer.
type Store interface {
	Close() error

	// Sessions
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// Messages
	CreateMessage(ctx context.Context, message *domain.Message) error
	GetMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)

	// Runs and trace events
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	UpdateRunDestination(ctx context.Context, runID string, destination domain.Destination) error
	UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, errData []byte) error
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, runID string, afterTs int64, limit int) ([]domain.Event, error)

	// Documents
	CreateDocument(ctx context.Context, doc *domain.Document) error
	UpdateDocument(ctx context.Context, doc *domain.Document) error
	GetDocument(ctx context.Context, documentID string) (*domain.Document, error)
	ListDocuments(ctx context.Context) ([]domain.Document, error)
	DeleteDocument(ctx context.Context, documentID string) (bool, error)
}

var _ Store = (*SQLiteStore)(nil)
