package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmptyInput(t *testing.T) {
	assert.Nil(t, Split("", Options{}))
	assert.Nil(t, Split("   \n\t  ", Options{}))
}

func TestSplitIndicesContiguous(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("The quick brown fox jumps over the lazy dog near the river bank today.\n\n")
	}

	chunks := Split(b.String(), Options{})
	require.NotEmpty(t, chunks)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.NotEmpty(t, strings.TrimSpace(ch.Content))
	}
}

func TestSplitChunkOffsets(t *testing.T) {
	text := strings.Repeat("Each paragraph here carries enough meaningful words to survive filtering easily.\n\n", 20)

	chunks := Split(text, Options{})
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		require.LessOrEqual(t, ch.End, len(text))
		assert.Equal(t, ch.Content, text[ch.Start:ch.End])
	}
}

func TestSplitQualityFilterDropsLowContent(t *testing.T) {
	// Short fragments and punctuation-only noise between real paragraphs.
	text := "ok\n\n" +
		"!!! ??? ... ---- **** %%%% $$$$ #### @@@@ ^^^^ &&&& (((( ))))\n\n" +
		strings.Repeat("A genuinely informative paragraph about database indexing strategies and costs. ", 6)

	chunks := Split(text, Options{ChunkSize: 400, ChunkOverlap: 50})
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		trimmed := strings.TrimSpace(ch.Content)
		assert.GreaterOrEqual(t, len(trimmed), minChunkLength)
		assert.NotContains(t, trimmed, "!!!")
		assert.Contains(t, trimmed, "indexing")
	}
}

func TestSplitOverlapBetweenAdjacentChunks(t *testing.T) {
	// No separators at all forces per-character merging, where the shared
	// context between adjacent chunks is exactly the configured overlap.
	alphabet := "abcdefghijklmnopqrstuvwxyz"
	text := strings.Repeat(alphabet, 200) // 5200 chars -> size 1000, overlap 200

	chunks := Split(text, Options{})
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Content
		curr := chunks[i].Content
		require.GreaterOrEqual(t, len(prev), 200)
		assert.True(t, strings.HasPrefix(curr, prev[len(prev)-200:]),
			"chunk %d should start with the previous chunk's trailing 200 chars", i)
	}
}

func TestSplitRespectsChunkSizeOnSeparableText(t *testing.T) {
	sentence := "Compilers turn readable source into machine instructions step by step. "
	text := strings.Repeat(sentence, 100)

	chunks := Split(text, Options{ChunkSize: 300, ChunkOverlap: 60})
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Content), 300+len(sentence),
			"a chunk may exceed the target only by one indivisible split")
	}
}

func TestDefaultChunkSizeScalesWithInput(t *testing.T) {
	assert.Equal(t, smallChunkSize, DefaultChunkSize(100))
	assert.Equal(t, smallChunkSize, DefaultChunkSize(1999))
	assert.Equal(t, mediumChunkSize, DefaultChunkSize(2000))
	assert.Equal(t, mediumChunkSize, DefaultChunkSize(9999))
	assert.Equal(t, largeChunkSize, DefaultChunkSize(10000))
	assert.Equal(t, largeChunkSize, DefaultChunkSize(1_000_000))
}

func TestPassesQualityFilter(t *testing.T) {
	assert.False(t, passesQualityFilter(""))
	assert.False(t, passesQualityFilter("     "))
	assert.False(t, passesQualityFilter("too short"))
	assert.False(t, passesQualityFilter(strings.Repeat("-*!@#$%^&*()_+ ", 10)))
	assert.True(t, passesQualityFilter("This sentence has plenty of meaningful characters for retrieval."))
}
