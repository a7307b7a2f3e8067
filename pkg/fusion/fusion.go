package fusion

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/datasplice/datasplice/internal/models"
	"github.com/datasplice/datasplice/internal/types"
)

type FusionConfig struct {
	Clusters       int
	DedupThreshold float32
	CapPerCluster  int
	Seed           int64
	MaxIterations  int
}

// Engine clusters a retrieved chunk set into thematic groups,
// deduplicates near-identical chunks within each group, and caps
// per-cluster representation. Pure in-process computation, reproducible
// for a fixed seed.
type Engine struct {
	config FusionConfig
	logger *zap.Logger
}

func NewWithConfig(config FusionConfig, logger *zap.Logger) *Engine {
	if config.Clusters == 0 {
		config.Clusters = 3
	}
	if config.DedupThreshold == 0 {
		config.DedupThreshold = 0.95
	}
	if config.CapPerCluster == 0 {
		config.CapPerCluster = 3
	}
	if config.Seed == 0 {
		config.Seed = 42
	}
	if config.MaxIterations == 0 {
		config.MaxIterations = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		config: config,
		logger: logger,
	}
}

// Fuse runs the cluster → dedup → cap pipeline over the retrieved set.
// Clusters are returned in descending mean-relevance order; clusters
// emptied by dedup and capping are dropped.
func (e *Engine) Fuse(retrieved []models.RetrievedChunk) ([]models.Cluster, error) {
	if len(retrieved) == 0 {
		return nil, errors.New("fusion requires a non-empty retrieved set")
	}

	if err := checkEmbeddings(retrieved); err != nil {
		return nil, err
	}

	k := e.config.Clusters
	if len(retrieved) < k {
		k = len(retrieved)
	}

	e.logger.Debug("clustering retrieved chunks",
		zap.Int("chunks", len(retrieved)),
		zap.Int("clusters", k))

	assignments, centroids := e.cluster(retrieved, k)

	grouped := make([][]models.RetrievedChunk, k)
	for i, label := range assignments {
		grouped[label] = append(grouped[label], retrieved[i])
	}

	clusters := make([]models.Cluster, 0, k)
	for label, members := range grouped {
		if len(members) == 0 {
			continue
		}

		// Highest-relevance members survive dedup and capping first.
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].Similarity > members[j].Similarity
		})

		kept := e.deduplicate(members)
		if len(kept) > e.config.CapPerCluster {
			kept = kept[:e.config.CapPerCluster]
		}
		if len(kept) == 0 {
			continue
		}

		clusters = append(clusters, models.Cluster{
			Members:  kept,
			Centroid: centroids[label],
		})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		mi, mj := clusters[i].MeanSimilarity(), clusters[j].MeanSimilarity()
		if mi != mj {
			return mi > mj
		}
		return len(clusters[i].Members) > len(clusters[j].Members)
	})

	e.logger.Debug("fusion complete", zap.Int("clusters", len(clusters)))

	return clusters, nil
}

// cluster runs Lloyd's k-means over the chunk embeddings. The first
// centroid is drawn with the seeded source; the rest use farthest-point
// initialization, so the outcome is reproducible for a fixed seed.
// Equidistant points go to the lowest-indexed centroid.
func (e *Engine) cluster(retrieved []models.RetrievedChunk, k int) ([]int, [][]float32) {
	n := len(retrieved)
	points := make([][]float64, n)
	for i, rc := range retrieved {
		points[i] = toFloat64(rc.Embedding)
	}

	rng := rand.New(rand.NewSource(e.config.Seed))

	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clonePoint(points[rng.Intn(n)]))
	for len(centroids) < k {
		farthest, best := 0, -1.0
		for i, p := range points {
			d := nearestDistance(p, centroids)
			if d > best {
				best = d
				farthest = i
			}
		}
		centroids = append(centroids, clonePoint(points[farthest]))
	}

	assignments := make([]int, n)
	for iter := 0; iter < e.config.MaxIterations; iter++ {
		changed := false
		for i, p := range points {
			label := nearestCentroid(p, centroids)
			if assignments[i] != label {
				assignments[i] = label
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		// Recompute centroids; an orphaned centroid keeps its position.
		dim := len(points[0])
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, p := range points {
			c := assignments[i]
			counts[c]++
			for d, v := range p {
				sums[c][d] += v
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}

	out := make([][]float32, k)
	for c, centroid := range centroids {
		out[c] = toFloat32(centroid)
	}
	return assignments, out
}

// deduplicate walks members in relevance order and drops any candidate
// whose cosine similarity to an already-kept member exceeds the
// threshold. Similarity exactly at the threshold keeps the candidate.
func (e *Engine) deduplicate(members []models.RetrievedChunk) []models.RetrievedChunk {
	kept := make([]models.RetrievedChunk, 0, len(members))
	threshold := float64(e.config.DedupThreshold)

	for _, candidate := range members {
		duplicate := false
		for _, existing := range kept {
			if cosineSimilarity(candidate.Embedding, existing.Embedding) > threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			e.logger.Debug("dropping near-duplicate chunk", zap.String("chunk_id", candidate.ID))
			continue
		}
		kept = append(kept, candidate)
	}

	return kept
}

func checkEmbeddings(retrieved []models.RetrievedChunk) error {
	dim := len(retrieved[0].Embedding)
	if dim == 0 {
		return fmt.Errorf("chunk %s has no embedding: %w", retrieved[0].ID, types.ErrDimensionMismatch)
	}
	for _, rc := range retrieved {
		if len(rc.Embedding) != dim {
			return fmt.Errorf("chunk %s has dimension %d, expected %d: %w",
				rc.ID, len(rc.Embedding), dim, types.ErrDimensionMismatch)
		}
		for _, v := range rc.Embedding {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return fmt.Errorf("chunk %s has a non-finite embedding value: %w",
					rc.ID, types.ErrDimensionMismatch)
			}
		}
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		na += av * av
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func nearestCentroid(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		d := squaredDistance(p, centroid)
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func nearestDistance(p []float64, centroids [][]float64) float64 {
	best := math.Inf(1)
	for _, centroid := range centroids {
		if d := squaredDistance(p, centroid); d < best {
			best = d
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func clonePoint(p []float64) []float64 {
	out := make([]float64, len(p))
	copy(out, p)
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
