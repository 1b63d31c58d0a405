// Package processor extracts plain text from uploaded document content and
// remote URLs ahead of chunking and embedding.
package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// ExtractionError marks content that cannot be processed. The indexer treats
// it as terminal for the entity (status failed) instead of retrying.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Processor extracts text from raw file content.
type Processor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// ForFilename picks the processor for an uploaded file by its extension.
// nullRatio tunes the text processor's binary detection; zero keeps the
// default.
func ForFilename(filename string, nullRatio float64) (Processor, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return &PDFProcessor{}, nil
	case ".docx":
		return &DOCXProcessor{}, nil
	case ".txt", ".md":
		return &TXTProcessor{NullRatio: nullRatio}, nil
	default:
		return nil, &ExtractionError{Reason: fmt.Sprintf("unsupported file type %q", filepath.Ext(filename))}
	}
}
