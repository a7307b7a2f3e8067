package synthesis

import (
	"math"

	"github.com/datasplice/datasplice/internal/models"
)

// ScorerConfig holds the tunable weights of the confidence heuristic.
// Weights are normalized by their sum, so they need not add up to 1.
type ScorerConfig struct {
	VolumeWeight         float64
	DensityWeight        float64
	RelevanceWeight      float64
	CoverageWeight       float64
	ExpectedMinCitations int
}

// Scorer computes a bounded reliability estimate for a synthesized
// response. Pure function of the response and the retrieval results:
// no external calls, no randomness.
type Scorer struct {
	config ScorerConfig
}

func NewScorer(config ScorerConfig) *Scorer {
	if config.VolumeWeight == 0 && config.DensityWeight == 0 &&
		config.RelevanceWeight == 0 && config.CoverageWeight == 0 {
		config.VolumeWeight = 0.35
		config.DensityWeight = 0.2
		config.RelevanceWeight = 0.2
		config.CoverageWeight = 0.25
	}
	if config.ExpectedMinCitations == 0 {
		config.ExpectedMinCitations = 4
	}
	return &Scorer{config: config}
}

// Score combines citation volume, evidence evenness across subtopics,
// top-1 retrieval relevance, and citation coverage into one value
// clamped to [0, 1].
func (s *Scorer) Score(resp *models.QueryResponse, retrieved []models.RetrievedChunk) float64 {
	nCitations := len(resp.CitationsFlat)
	nSubtopics := len(resp.Subtopics)

	// No evidence at all: a small floor if the synthesis still produced
	// subtopics, zero otherwise.
	if nCitations == 0 {
		if nSubtopics > 0 {
			return 0.1
		}
		return 0
	}

	volume := math.Min(float64(nCitations)/float64(s.config.ExpectedMinCitations), 1.0)
	density := densityScore(resp.Subtopics)
	relevance := topRelevance(retrieved)
	coverage := coverageScore(resp.Subtopics)

	wsum := s.config.VolumeWeight + s.config.DensityWeight +
		s.config.RelevanceWeight + s.config.CoverageWeight

	confidence := (volume*s.config.VolumeWeight +
		density*s.config.DensityWeight +
		relevance*s.config.RelevanceWeight +
		coverage*s.config.CoverageWeight) / wsum

	if resp.Limitations != "" {
		confidence *= 0.9
	}

	return clamp01(confidence)
}

// Label converts a numeric confidence into a categorical label.
func Label(score float64) string {
	switch {
	case score < 0.4:
		return "Low"
	case score < 0.7:
		return "Medium"
	default:
		return "High"
	}
}

// densityScore rewards an even spread of citations across subtopics.
// A response where one subtopic holds every citation scores lower than
// one with uniform coverage. Computed as the ratio of the minimum
// plausible evenness: 1 - normalized deviation from the mean.
func densityScore(subtopics []models.Subtopic) float64 {
	if len(subtopics) == 0 {
		return 0
	}

	counts := make([]float64, len(subtopics))
	var total float64
	for i, st := range subtopics {
		counts[i] = float64(len(st.Citations))
		total += counts[i]
	}
	if total == 0 {
		return 0
	}

	mean := total / float64(len(counts))
	var dev float64
	for _, c := range counts {
		dev += math.Abs(c - mean)
	}
	// Maximum total deviation occurs when one subtopic holds everything.
	maxDev := 2 * (total - mean)
	if maxDev == 0 {
		return 1
	}
	return clamp01(1 - dev/maxDev)
}

// topRelevance is the similarity of the single best retrieved chunk,
// clamped to [0, 1].
func topRelevance(retrieved []models.RetrievedChunk) float64 {
	var best float64
	for _, rc := range retrieved {
		if float64(rc.Similarity) > best {
			best = float64(rc.Similarity)
		}
	}
	return clamp01(best)
}

// coverageScore is the fraction of subtopics backed by at least one
// valid citation.
func coverageScore(subtopics []models.Subtopic) float64 {
	if len(subtopics) == 0 {
		return 0
	}
	var backed int
	for _, st := range subtopics {
		if len(st.Citations) > 0 {
			backed++
		}
	}
	return float64(backed) / float64(len(subtopics))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
