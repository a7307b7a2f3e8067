package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/datasplice/datasplice/internal/models"
)

// Extract pulls paged text from a source document, dispatching on the
// file extension. PDFs yield one Page per physical page; DOCX, TXT and
// Markdown sources yield a single page numbered 1.
func Extract(ctx context.Context, path string) ([]models.Page, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(ctx, path)
	case ".docx":
		return extractDOCX(ctx, path)
	case ".txt", ".md":
		return extractPlain(path)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
}

// Supported reports whether path has an extension Extract can handle.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx", ".txt", ".md":
		return true
	}
	return false
}

func extractPlain(path string) ([]models.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, nil
	}

	return []models.Page{{Number: 1, Text: text}}, nil
}
