package parser

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// parsePDF extracts plain text and the page count. A scanned PDF with no
// extractable text yields an empty result, not an error; there is no OCR
// fallback for image-only pages.
func parsePDF(data []byte) (string, map[string]any, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}

	metadata := map[string]any{
		"format":     "pdf",
		"page_count": reader.NumPage(),
	}

	plainReader, err := reader.GetPlainText()
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrExtractionFailure, err)
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrExtractionFailure, err)
	}
	return string(out), metadata, nil
}
