package domain

import "time"

// Document is the metadata record of an uploaded file.
type Document struct {
	ID           string         `json:"id"`
	Filename     string         `json:"filename"`
	FileType     string         `json:"file_type"`
	SizeBytes    int64          `json:"file_size_bytes"`
	ChunkCount   int            `json:"chunk_count"`
	Status       DocumentStatus `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Chunk is a bounded slice of a document's text, the unit of embedding.
type Chunk struct {
	Text        string `json:"text"`
	Index       int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	DocumentID  string `json:"document_id"`
	Filename    string `json:"filename"`
}

// SearchResult is a chunk returned by similarity search.
type SearchResult struct {
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
}

// UploadResponse is returned after a document upload.
type UploadResponse struct {
	DocumentID string         `json:"document_id"`
	Filename   string         `json:"filename"`
	Status     DocumentStatus `json:"status"`
	Message    string         `json:"message"`
}

// DocumentListResponse is returned by the document listing endpoint.
type DocumentListResponse struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
}
