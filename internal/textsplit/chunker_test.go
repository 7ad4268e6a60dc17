package textsplit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// byteEncoding treats every byte as one token. It satisfies the partition
// property exactly, which is all the chunker relies on.
type byteEncoding struct{}

func (byteEncoding) Encode(text string) []int {
	out := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		out[i] = int(text[i])
	}
	return out
}

func (byteEncoding) Decode(tokens []int) string {
	b := make([]byte, len(tokens))
	for i, t := range tokens {
		b[i] = byte(t)
	}
	return string(b)
}

func (byteEncoding) CountTokens(text string) int { return len(text) }

func sampleText() string {
	var b strings.Builder
	for i := 0; i < 12; i++ {
		b.WriteString("The quick brown fox jumps over the lazy dog.\n")
		b.WriteString("Pack my box with five dozen liquor jugs today.\n\n")
	}
	return b.String()
}

func TestChunkPositionFidelity(t *testing.T) {
	text := sampleText()
	ch := NewChunker(byteEncoding{}, 120, 30)
	pieces := ch.Chunk(text)
	require.NotEmpty(t, pieces)

	for i, p := range pieces {
		assert.Equal(t, text[p.CharStart:p.CharEnd], p.Content, "piece %d", i)
		assert.GreaterOrEqual(t, p.CharStart, 0)
		assert.Less(t, p.CharStart, p.CharEnd)
		assert.LessOrEqual(t, p.CharEnd, len(text))
		assert.Equal(t, i, p.ChunkIndex)
		assert.Positive(t, p.TokenCount)
	}
}

func TestChunkOverlapWindows(t *testing.T) {
	text := sampleText()
	ch := NewChunker(byteEncoding{}, 120, 30)
	pieces := ch.Chunk(text)
	require.Greater(t, len(pieces), 1)

	for i := 1; i < len(pieces); i++ {
		assert.Less(t, pieces[i].CharStart, pieces[i-1].CharEnd,
			"piece %d should overlap its predecessor", i)
	}
	// Overlap never starts mid-word.
	for _, p := range pieces {
		if p.CharStart > 0 {
			assert.True(t, isSpace(text[p.CharStart-1]),
				"chunk start %d not at a word boundary", p.CharStart)
		}
	}
}

func TestChunkNoOverlapIsDisjoint(t *testing.T) {
	text := sampleText()
	pieces := NewChunker(byteEncoding{}, 100, 0).Chunk(text)
	require.Greater(t, len(pieces), 1)
	for i := 1; i < len(pieces); i++ {
		assert.GreaterOrEqual(t, pieces[i].CharStart, pieces[i-1].CharEnd)
	}
}

func TestChunkEmptyInput(t *testing.T) {
	ch := NewChunker(byteEncoding{}, 100, 10)
	assert.Nil(t, ch.Chunk(""))
	assert.Nil(t, ch.Chunk("   \n\t\n  "))
}

func TestChunkShortInputSingleChunk(t *testing.T) {
	text := "Para one.\n\nPara two."
	pieces := NewChunker(byteEncoding{}, 1000, 200).Chunk(text)
	require.Len(t, pieces, 1)
	assert.Equal(t, text, pieces[0].Content)
	assert.Equal(t, 0, pieces[0].CharStart)
	assert.Equal(t, len(text), pieces[0].CharEnd)
}

func TestChunkTrailingWhitespaceStripped(t *testing.T) {
	text := "line one\nline two   \n\n\n"
	pieces := NewChunker(byteEncoding{}, 1000, 0).Chunk(text)
	require.Len(t, pieces, 1)
	assert.Equal(t, "line one\nline two", pieces[0].Content)
	assert.Equal(t, text[pieces[0].CharStart:pieces[0].CharEnd], pieces[0].Content)
}

func TestChunkWithCL100K(t *testing.T) {
	enc, err := NewCL100KEncoding()
	if err != nil {
		t.Skipf("cl100k_base encoding unavailable: %v", err)
	}
	text := sampleText()
	pieces := NewChunker(enc, 40, 8).Chunk(text)
	require.NotEmpty(t, pieces)
	for i, p := range pieces {
		assert.Equal(t, text[p.CharStart:p.CharEnd], p.Content, "piece %d", i)
		assert.Equal(t, i, p.ChunkIndex)
		assert.LessOrEqual(t, p.TokenCount, 40+8)
	}
}
