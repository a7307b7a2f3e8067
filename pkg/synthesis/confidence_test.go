package synthesis_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasplice/datasplice/internal/models"
	"github.com/datasplice/datasplice/pkg/synthesis"
)

func subtopicWith(ids ...string) models.Subtopic {
	st := models.Subtopic{Title: "t", Bullets: []string{"b"}}
	for _, id := range ids {
		st.Citations = append(st.Citations, models.Citation{ChunkID: id, File: "f.pdf", Page: 1})
	}
	return st
}

func responseWith(subtopics ...models.Subtopic) *models.QueryResponse {
	resp := &models.QueryResponse{
		Query:     "q",
		Summary:   "s",
		Subtopics: subtopics,
	}
	resp.CitationsFlat = synthesis.FlattenCitations(subtopics)
	return resp
}

func retrievedWithTop(similarity float32) []models.RetrievedChunk {
	return []models.RetrievedChunk{
		{Chunk: models.Chunk{ID: "x_p1_c0"}, Similarity: similarity},
		{Chunk: models.Chunk{ID: "x_p1_c1"}, Similarity: similarity / 2},
	}
}

func TestScore_Bounds(t *testing.T) {
	scorer := synthesis.NewScorer(synthesis.ScorerConfig{})

	cases := []struct {
		name      string
		resp      *models.QueryResponse
		retrieved []models.RetrievedChunk
	}{
		{"no subtopics no citations", responseWith(), nil},
		{"subtopic without citations", responseWith(subtopicWith()), retrievedWithTop(0.5)},
		{"rich response", responseWith(
			subtopicWith("a", "b"),
			subtopicWith("c", "d"),
		), retrievedWithTop(0.99)},
		{"excessive citations", responseWith(
			subtopicWith("a", "b", "c", "d", "e", "f", "g", "h"),
		), retrievedWithTop(1.0)},
		{"negative similarity", responseWith(subtopicWith("a")), retrievedWithTop(-0.4)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score := scorer.Score(tc.resp, tc.retrieved)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		})
	}
}

func TestScore_NoEvidence(t *testing.T) {
	scorer := synthesis.NewScorer(synthesis.ScorerConfig{})

	// No citations, no subtopics: zero.
	assert.Equal(t, 0.0, scorer.Score(responseWith(), retrievedWithTop(0.9)))

	// No citations but synthesized subtopics: the 0.1 floor.
	assert.Equal(t, 0.1, scorer.Score(responseWith(subtopicWith()), retrievedWithTop(0.9)))
}

func TestScore_EvenCoverageBeatsSkewed(t *testing.T) {
	scorer := synthesis.NewScorer(synthesis.ScorerConfig{})
	retrieved := retrievedWithTop(0.9)

	even := responseWith(
		subtopicWith("a", "b"),
		subtopicWith("c", "d"),
	)
	skewed := responseWith(
		subtopicWith("a", "b", "c", "d"),
		subtopicWith(),
	)

	require.Len(t, even.CitationsFlat, 4)
	require.Len(t, skewed.CitationsFlat, 4)

	assert.Greater(t, scorer.Score(even, retrieved), scorer.Score(skewed, retrieved))
}

func TestScore_HigherRelevanceScoresHigher(t *testing.T) {
	scorer := synthesis.NewScorer(synthesis.ScorerConfig{})
	resp := responseWith(subtopicWith("a", "b", "c", "d"))

	strong := scorer.Score(resp, retrievedWithTop(0.95))
	weak := scorer.Score(resp, retrievedWithTop(0.3))

	assert.Greater(t, strong, weak)
}

func TestScore_LimitationsPenalty(t *testing.T) {
	scorer := synthesis.NewScorer(synthesis.ScorerConfig{})
	retrieved := retrievedWithTop(0.9)

	plain := responseWith(subtopicWith("a", "b", "c", "d"))
	limited := responseWith(subtopicWith("a", "b", "c", "d"))
	limited.Limitations = "evidence is thin on recent years"

	assert.Greater(t, scorer.Score(plain, retrieved), scorer.Score(limited, retrieved))
}

func TestScore_Deterministic(t *testing.T) {
	scorer := synthesis.NewScorer(synthesis.ScorerConfig{})
	resp := responseWith(subtopicWith("a"), subtopicWith("b"))
	retrieved := retrievedWithTop(0.7)

	first := scorer.Score(resp, retrieved)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, scorer.Score(resp, retrieved))
	}
}

func TestScore_ConfigurableWeights(t *testing.T) {
	// All weight on relevance: the score tracks the top-1 similarity.
	scorer := synthesis.NewScorer(synthesis.ScorerConfig{
		RelevanceWeight: 1.0,
	})
	resp := responseWith(subtopicWith("a"))

	assert.InDelta(t, 0.8, scorer.Score(resp, retrievedWithTop(0.8)), 1e-6)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Low", synthesis.Label(0))
	assert.Equal(t, "Low", synthesis.Label(0.39))
	assert.Equal(t, "Medium", synthesis.Label(0.4))
	assert.Equal(t, "Medium", synthesis.Label(0.69))
	assert.Equal(t, "High", synthesis.Label(0.7))
	assert.Equal(t, "High", synthesis.Label(1))
}
