package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veritium/corpusqa/core"
)

func TestSplitEmptyInput(t *testing.T) {
	c := New()

	for _, input := range []string{"", "   ", "\n\n\t  \n"} {
		_, err := c.Split(input)
		assert.ErrorIs(t, err, core.ErrEmptyContent)
	}
}

func TestSplitSingleChunk(t *testing.T) {
	c := New()

	chunks, err := c.Split("Paragraph A.\n\nParagraph B.\n\nParagraph C.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Paragraph A.\n\nParagraph B.\n\nParagraph C.", chunks[0])
}

func TestSplitNormalizesLineEndings(t *testing.T) {
	c := New()

	chunks, err := c.Split("First.\r\n\r\nSecond.\n\n\n\n\nThird.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "First.\n\nSecond.\n\nThird.", chunks[0])
}

func TestSplitRespectsChunkSize(t *testing.T) {
	c := New(WithChunkSize(100), WithOverlap(20))

	var paragraphs []string
	for i := 0; i < 10; i++ {
		paragraphs = append(paragraphs, fmt.Sprintf("Paragraph number %d with some padding text.", i))
	}
	chunks, err := c.Split(strings.Join(paragraphs, "\n\n"))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// Each chunk is bounded by the chunk size plus overlap slack (the seed
	// words plus one paragraph may push past the target).
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 100+100)
	}
}

func TestSplitCoversAllParagraphs(t *testing.T) {
	c := New(WithChunkSize(80), WithOverlap(0))

	paragraphs := []string{
		"The first paragraph talks about alpha.",
		"The second paragraph talks about beta.",
		"The third paragraph talks about gamma.",
		"The fourth paragraph talks about delta.",
	}
	chunks, err := c.Split(strings.Join(paragraphs, "\n\n"))
	require.NoError(t, err)

	// With zero overlap the concatenated chunks reconstruct the original
	// paragraph sequence exactly once.
	joined := strings.Join(chunks, "\n\n")
	for _, p := range paragraphs {
		assert.Equal(t, 1, strings.Count(joined, p))
	}
}

func TestSplitSeedsOverlapFromPreviousChunk(t *testing.T) {
	c := New(WithChunkSize(60), WithOverlap(25))

	chunks, err := c.Split("one two three four five six seven eight nine ten eleven twelve\n\nthirteen fourteen fifteen")
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	// 25/5 = 5 trailing words of chunk 0 seed chunk 1.
	assert.True(t, strings.HasPrefix(chunks[1], "eight nine ten eleven twelve"))
	assert.True(t, strings.HasSuffix(chunks[1], "thirteen fourteen fifteen"))
}
