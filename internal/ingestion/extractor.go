// Package ingestion turns uploaded files into embedded, searchable chunks.
package ingestion

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// errNoText is returned when a document has no extractable text.
var errNoText = errors.New("No text content found in document")

// SupportedTypes maps accepted MIME types to the stored file type.
var SupportedTypes = map[string]string{
	"application/pdf": "pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   "docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         "xlsx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": "pptx",
	"text/plain":    "txt",
	"text/markdown": "md",
}

var extensionTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".txt":  "text/plain",
	".md":   "text/markdown",
}

// ResolveContentType normalizes a declared content type, falling back to the
// file extension when the client sent none or a generic one.
func ResolveContentType(contentType, filename string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	if _, ok := SupportedTypes[mediaType]; ok {
		return mediaType
	}
	if mediaType == "" || mediaType == "application/octet-stream" {
		if ct, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
			return ct
		}
	}
	return mediaType
}

// Extract returns the plain text of data.
func Extract(data []byte, contentType string) (string, error) {
	fileType, ok := SupportedTypes[contentType]
	if !ok {
		return "", fmt.Errorf("unsupported file type: %s", contentType)
	}

	var (
		text string
		err  error
	)
	switch fileType {
	case "pdf":
		text, err = extractPDF(data)
	case "docx":
		text, err = extractDOCX(data)
	case "xlsx":
		text, err = extractXLSX(data)
	case "pptx":
		text, err = extractPPTX(data)
	default:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("failed to extract text from %s: not valid UTF-8", fileType)
		}
		text = string(data)
	}
	if err != nil {
		return "", fmt.Errorf("failed to extract text from %s: %w", fileType, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", errNoText
	}
	return text, nil
}

func extractPDF(data []byte) (text string, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(content) != "" {
			pages = append(pages, fmt.Sprintf("--- Page %d ---\n%s", i, content))
		}
	}
	return strings.Join(pages, "\n\n"), nil
}
