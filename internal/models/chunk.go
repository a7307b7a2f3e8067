package models

import (
	"fmt"
	"strings"
)

// Chunk is a bounded unit of source text with its embedding and source
// metadata. Chunks are created once during ingestion and are immutable
// afterwards.
type Chunk struct {
	ID        string    `json:"chunk_id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
	File      string    `json:"file"`
	Page      int       `json:"page"`
	Index     int       `json:"chunk_index"`
}

// ChunkID derives the stable identifier for a chunk: {file}_p{page}_c{index}
// with the extension stripped and path separators sanitized.
func ChunkID(file string, page, index int) string {
	base := file
	if dot := strings.LastIndex(base, "."); dot > 0 {
		base = base[:dot]
	}
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.ReplaceAll(base, "/", "_")
	return fmt.Sprintf("%s_p%d_c%d", base, page, index)
}

// RetrievedChunk is a Chunk plus its query-time similarity score.
// It exists only within a single query's execution.
type RetrievedChunk struct {
	Chunk
	Similarity float32 `json:"similarity"`
}

// Cluster groups retrieved chunks assigned the same subtopic by the
// fusion engine.
type Cluster struct {
	Members  []RetrievedChunk
	Centroid []float32
}

// MeanSimilarity returns the average relevance score of the cluster's
// members, 0 for an empty cluster.
func (c Cluster) MeanSimilarity() float32 {
	if len(c.Members) == 0 {
		return 0
	}
	var sum float32
	for _, m := range c.Members {
		sum += m.Similarity
	}
	return sum / float32(len(c.Members))
}
