package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/datasplice/datasplice/internal/models"
)

// extractDOCX pulls paragraph text out of word/document.xml. A DOCX
// file has no fixed pagination, so the whole document becomes page 1.
func extractDOCX(ctx context.Context, path string) ([]models.Page, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DOCX %s: %w", path, err)
	}
	defer r.Close()

	var doc *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("DOCX %s has no word/document.xml", path)
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to read DOCX body: %w", err)
	}
	defer rc.Close()

	text, err := decodeDocumentXML(ctx, rc)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	return []models.Page{{Number: 1, Text: text}}, nil
}

// decodeDocumentXML walks WordprocessingML, collecting w:t runs and
// inserting newlines at paragraph ends.
func decodeDocumentXML(ctx context.Context, r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("malformed document XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	return strings.TrimSpace(b.String()), nil
}
