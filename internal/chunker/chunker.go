package chunker

import (
	"strings"
	"unicode"
)

// Separator priority for recursive splitting: paragraph break first,
// then line break, sentence boundaries, comma, plain space, and finally
// character boundaries when nothing else fits.
var defaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", ", ", " ", ""}

const (
	minChunkLength     = 50
	minMeaningfulChars = 20

	smallInputLimit  = 2000
	mediumInputLimit = 10000

	smallChunkSize  = 500
	mediumChunkSize = 1000
	largeChunkSize  = 1500
	overlapFraction = 5 // overlap = chunkSize / overlapFraction (20%)
)

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// Chunk is a quality-filtered segment of the input text. Start/End are byte
// offsets of the segment's first occurrence in the input.
type Chunk struct {
	Index   int
	Content string
	Start   int
	End     int
}

// DefaultChunkSize scales the chunk size with the input length so short
// documents still produce several retrievable segments.
func DefaultChunkSize(textLen int) int {
	switch {
	case textLen < smallInputLimit:
		return smallChunkSize
	case textLen < mediumInputLimit:
		return mediumChunkSize
	default:
		return largeChunkSize
	}
}

// Split chunks text into overlapping segments and drops low-quality ones.
// Returned indices are contiguous from 0 after filtering.
func Split(text string, opts Options) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize(len(text))
	}
	overlap := opts.ChunkOverlap
	if overlap <= 0 {
		overlap = size / overlapFraction
	}
	if overlap >= size {
		overlap = size / 2
	}
	separators := opts.Separators
	if len(separators) == 0 {
		separators = defaultSeparators
	}

	pieces := splitRecursive(text, separators, size, overlap)

	chunks := make([]Chunk, 0, len(pieces))
	searchFrom := 0
	for _, piece := range pieces {
		if !passesQualityFilter(piece) {
			continue
		}
		start := strings.Index(text[searchFrom:], piece)
		if start >= 0 {
			start += searchFrom
			// Overlapping chunks begin before the previous one ends, so only
			// advance the search window past the chunk's start.
			searchFrom = start + 1
		} else {
			start = searchFrom
		}
		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Content: piece,
			Start:   start,
			End:     start + len(piece),
		})
	}
	return chunks
}

// splitRecursive splits on the highest-priority separator present in the
// text; pieces that still exceed the size limit are re-split with the
// remaining separators. Small pieces are merged back into chunks of at most
// size characters, carrying overlap characters of trailing context forward.
func splitRecursive(text string, separators []string, size, overlap int) []string {
	separator := separators[len(separators)-1]
	var remaining []string
	for i, s := range separators {
		if s == "" {
			separator = s
			remaining = nil
			break
		}
		if strings.Contains(text, s) {
			separator = s
			remaining = separators[i+1:]
			break
		}
	}

	splits := splitOn(text, separator)

	var result []string
	var pending []string
	for _, split := range splits {
		if len(split) <= size {
			pending = append(pending, split)
			continue
		}
		if len(pending) > 0 {
			result = append(result, mergeSplits(pending, separator, size, overlap)...)
			pending = nil
		}
		if len(remaining) == 0 {
			result = append(result, split)
		} else {
			result = append(result, splitRecursive(split, remaining, size, overlap)...)
		}
	}
	if len(pending) > 0 {
		result = append(result, mergeSplits(pending, separator, size, overlap)...)
	}
	return result
}

func splitOn(text, separator string) []string {
	if separator == "" {
		parts := make([]string, 0, len(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	raw := strings.Split(text, separator)
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// mergeSplits packs consecutive splits into chunks no larger than size,
// keeping roughly overlap characters of shared trailing context between
// adjacent chunks.
func mergeSplits(splits []string, separator string, size, overlap int) []string {
	var chunks []string
	var window []string
	total := 0

	joinedLen := func(extra int) int {
		n := total + extra
		if len(window) > 0 {
			n += len(separator) * len(window)
		}
		return n
	}

	for _, split := range splits {
		if joinedLen(len(split)) > size && len(window) > 0 {
			chunks = append(chunks, strings.Join(window, separator))
			for total > overlap || (joinedLen(len(split)) > size && total > 0) {
				total -= len(window[0])
				window = window[1:]
			}
		}
		window = append(window, split)
		total += len(split)
	}
	if len(window) > 0 {
		chunks = append(chunks, strings.Join(window, separator))
	}
	return chunks
}

// passesQualityFilter rejects blank, short, and low-content segments so they
// are never persisted or counted.
func passesQualityFilter(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false
	}
	if len(trimmed) < minChunkLength {
		return false
	}
	meaningful := 0
	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			meaningful++
			if meaningful >= minMeaningfulChars {
				return true
			}
		}
	}
	return false
}
