package store

import (
	"context"
	"database/sql"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

// CreateDocument inserts a document record.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *domain.Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (document_id, filename, file_type, file_size_bytes, chunk_count, status, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.FileType, doc.SizeBytes, doc.ChunkCount, doc.Status,
		nullString(doc.ErrorMessage), doc.CreatedAt, doc.UpdatedAt)
	return err
}

// UpdateDocument writes back the mutable ingestion fields of a document.
func (s *SQLiteStore) UpdateDocument(ctx context.Context, doc *domain.Document) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET chunk_count = ?, status = ?, error_message = ?, updated_at = ? WHERE document_id = ?`,
		doc.ChunkCount, doc.Status, nullString(doc.ErrorMessage), doc.UpdatedAt, doc.ID)
	return err
}

// GetDocument retrieves a document by ID. It returns nil, nil when absent.
func (s *SQLiteStore) GetDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT document_id, filename, file_type, file_size_bytes, chunk_count, status, error_message, created_at, updated_at
		 FROM documents WHERE document_id = ?`, documentID)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns all documents, newest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, filename, file_type, file_size_bytes, chunk_count, status, error_message, created_at, updated_at
		 FROM documents ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []domain.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document record and reports whether it existed.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, documentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE document_id = ?`, documentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var errMsg sql.NullString
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.SizeBytes, &doc.ChunkCount,
		&doc.Status, &errMsg, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if errMsg.Valid {
		doc.ErrorMessage = errMsg.String
	}
	return &doc, nil
}
