package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fumiama/go-docx"
)

// parseDOCX extracts raw paragraph text; all formatting is discarded.
func parseDOCX(data []byte) (string, map[string]any, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrCorruptInput, err)
	}

	var b strings.Builder
	paragraphs := 0
	for _, item := range doc.Document.Body.Items {
		switch item.(type) {
		case *docx.Paragraph, *docx.Table:
			text := strings.TrimSpace(fmt.Sprint(item))
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(text)
			paragraphs++
		}
	}

	metadata := map[string]any{
		"format":          "docx",
		"paragraph_count": paragraphs,
	}
	return b.String(), metadata, nil
}
