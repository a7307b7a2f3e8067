package processor_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasplice/datasplice/internal/models"
	"github.com/datasplice/datasplice/pkg/processor"
)

func TestProcess_ChunkIDScheme(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})

	chunks, err := p.Process("annual report.pdf", []models.Page{
		{Number: 1, Text: "The first page holds a single short paragraph of text."},
		{Number: 3, Text: "Page two was blank so extraction skipped straight to three."},
	})
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "annual_report_p1_c0", chunks[0].ID)
	assert.Equal(t, "annual_report_p3_c0", chunks[1].ID)
	assert.Equal(t, "annual report.pdf", chunks[0].File)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 3, chunks[1].Page)
	assert.Equal(t, 0, chunks[1].Index)
}

func TestProcess_IndexRestartsPerPage(t *testing.T) {
	// Small budget forces several chunks per page.
	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:      20,
		ChunkOverlap:   4,
		MinChunkLength: 10,
	})

	long := pageOfSentences(12)
	chunks, err := p.Process("doc.txt", []models.Page{
		{Number: 1, Text: long},
		{Number: 2, Text: long},
	})
	require.NoError(t, err)

	var page1, page2 []models.Chunk
	for _, c := range chunks {
		switch c.Page {
		case 1:
			page1 = append(page1, c)
		case 2:
			page2 = append(page2, c)
		}
	}
	require.Greater(t, len(page1), 1)
	require.Greater(t, len(page2), 1)

	for i, c := range page1 {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, models.ChunkID("doc.txt", 1, i), c.ID)
	}
	assert.Equal(t, 0, page2[0].Index, "chunk index restarts on each page")
}

func TestProcess_EmptyAndBlankPages(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})

	chunks, err := p.Process("doc.txt", []models.Page{
		{Number: 1, Text: ""},
		{Number: 2, Text: "   \n\t  "},
	})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestProcess_ChunksRespectTokenBudget(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:      50,
		ChunkOverlap:   8,
		MinChunkLength: 10,
	})

	chunks, err := p.Process("doc.txt", []models.Page{{Number: 1, Text: pageOfSentences(40)}})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		// Budget plus one sentence of slack; accumulation only stops
		// after a sentence crosses the line.
		assert.LessOrEqual(t, processor.EstimateTokens(c.Text), 50+20,
			"chunk %s exceeds the token budget", c.ID)
	}
}

func TestProcess_OverlapCarriesTail(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:      25,
		ChunkOverlap:   10,
		MinChunkLength: 10,
	})

	chunks, err := p.Process("doc.txt", []models.Page{{Number: 1, Text: pageOfSentences(20)}})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	overlapping := 0
	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1].Text)
		tail := prevWords[len(prevWords)-1]
		if strings.Contains(chunks[i].Text, tail) {
			overlapping++
		}
	}
	assert.Greater(t, overlapping, 0, "adjacent chunks should share overlapping text")
}

func TestProcess_DropsChunksBelowMinLength(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:      600,
		ChunkOverlap:   90,
		MinChunkLength: 40,
	})

	chunks, err := p.Process("doc.txt", []models.Page{{Number: 1, Text: "Too short."}})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestProcess_SplitsOversizedSentence(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:      15,
		ChunkOverlap:   2,
		MinChunkLength: 10,
	})

	// One "sentence" with no terminator, far over the 15-token budget.
	words := make([]string, 60)
	for i := range words {
		words[i] = fmt.Sprintf("token%02d", i)
	}
	chunks, err := p.Process("doc.txt", []models.Page{{Number: 1, Text: strings.Join(words, " ")}})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 15*4+8)
	}
}

func TestProcess_CollapsesWhitespacePreservesCase(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{MinChunkLength: 10})

	chunks, err := p.Process("doc.txt", []models.Page{
		{Number: 1, Text: "The  Quick\n\tBrown   Fox jumps over the lazy dog tonight."},
	})
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, "The Quick Brown Fox jumps over the lazy dog tonight.", chunks[0].Text)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, processor.EstimateTokens(""))
	assert.Equal(t, 1, processor.EstimateTokens("ab"))
	assert.Equal(t, 25, processor.EstimateTokens(strings.Repeat("a", 100)))
}

func TestChunkID_Sanitization(t *testing.T) {
	assert.Equal(t, "report_p1_c0", models.ChunkID("report.pdf", 1, 0))
	assert.Equal(t, "my_notes_p2_c3", models.ChunkID("my notes.txt", 2, 3))
	assert.Equal(t, "docs_guide_p1_c0", models.ChunkID("docs/guide.md", 1, 0))
	assert.Equal(t, "README_p1_c0", models.ChunkID("README", 1, 0))
}

func pageOfSentences(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Sentence number %d carries a modest amount of filler prose. ", i)
	}
	return b.String()
}
