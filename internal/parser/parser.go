package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorruptInput      = errors.New("corrupt document input")
	ErrExtractionFailure = errors.New("text extraction failed")
)

const (
	// TruncationMarker is appended whenever extracted text exceeds the cap.
	// The exact marker text is part of the client-facing contract.
	TruncationMarker = "\n\n[truncated: document exceeds extraction limit]"

	DefaultMaxTextChars = 50000

	// OCRPlaceholder is returned for images when OCR is disabled. No network
	// call is made in that case.
	OCRPlaceholder = "[image uploaded: text extraction disabled]"
)

const (
	MimePDF      = "application/pdf"
	MimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimePNG      = "image/png"
	MimeJPEG     = "image/jpeg"
	MimeWebP     = "image/webp"
	MimeText     = "text/plain"
	MimeMarkdown = "text/markdown"
)

type Options struct {
	OCREnabled   bool
	MaxTextChars int
}

type Result struct {
	Text     string
	Metadata map[string]any
}

// VisionDescriber transcribes an image through a vision-capable completion
// model. Implemented by the ai client; nil disables the vision path.
type VisionDescriber interface {
	DescribeImage(ctx context.Context, dataURL string) (string, string, error)
}

type Parser struct {
	vision VisionDescriber
}

func New(vision VisionDescriber) *Parser {
	return &Parser{vision: vision}
}

// Supported reports whether the declared MIME type can be parsed. Upload
// validation uses this before any storage write.
func Supported(mimeType string) bool {
	switch normalizeMime(mimeType) {
	case MimePDF, MimeDOCX, MimePNG, MimeJPEG, MimeWebP, MimeText, MimeMarkdown:
		return true
	}
	return false
}

// Parse converts raw bytes plus a declared MIME type into plain text and
// extraction metadata. Extracted text longer than the cap is truncated with
// TruncationMarker appended; that is policy, not an error.
func (p *Parser) Parse(ctx context.Context, data []byte, mimeType string, opts Options) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrCorruptInput)
	}

	var (
		text     string
		metadata map[string]any
		err      error
	)
	switch normalizeMime(mimeType) {
	case MimePDF:
		text, metadata, err = parsePDF(data)
	case MimeDOCX:
		text, metadata, err = parseDOCX(data)
	case MimePNG, MimeJPEG, MimeWebP:
		text, metadata, err = p.parseImage(ctx, data, opts)
	case MimeText, MimeMarkdown:
		text, metadata = parsePlainText(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
	if err != nil {
		return nil, err
	}

	text = truncate(strings.TrimSpace(text), opts.MaxTextChars)
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["word_count"] = len(strings.Fields(text))
	metadata["char_count"] = utf8.RuneCountInString(text)

	return &Result{Text: text, Metadata: metadata}, nil
}

func truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxTextChars
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + TruncationMarker
}

// normalizeMime strips parameters like "; charset=utf-8" and lowercases.
func normalizeMime(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}

func parsePlainText(data []byte) (string, map[string]any) {
	return string(data), map[string]any{"format": "text"}
}
