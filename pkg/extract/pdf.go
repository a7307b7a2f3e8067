package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/datasplice/datasplice/internal/models"
)

// extractPDF reads page-level text. Pages that fail to decode are kept
// as empty so page numbering stays aligned with the source document.
func extractPDF(ctx context.Context, path string) ([]models.Page, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %s: %w", path, err)
	}
	defer f.Close()

	total := reader.NumPage()
	pages := make([]models.Page, 0, total)

	for num := 1; num <= total; num++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(num)
		if page.V.IsNull() {
			pages = append(pages, models.Page{Number: num})
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Keep the page for proper indexing, just without text.
			pages = append(pages, models.Page{Number: num})
			continue
		}

		pages = append(pages, models.Page{Number: num, Text: strings.TrimSpace(text)})
	}

	return pages, nil
}
