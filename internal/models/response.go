package models

// Citation points back to exactly one chunk that was part of the
// retrieved set for a query. A citation whose ChunkID is not in that
// set is a hallucination and must never survive validation.
type Citation struct {
	ChunkID string `json:"chunk_id"`
	File    string `json:"file"`
	Page    int    `json:"page"`
	Excerpt string `json:"excerpt,omitempty"`
}

// Subtopic is one thematic section of a synthesized answer.
// Unverified marks subtopics whose citations were all stripped during
// hallucination filtering.
type Subtopic struct {
	Title      string     `json:"title"`
	Bullets    []string   `json:"bullets"`
	Citations  []Citation `json:"citations"`
	Unverified bool       `json:"unverified,omitempty"`
}

// Usage carries token accounting reported by the completion provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// QueryResponse is the full result of one query pipeline run.
// Immutable once constructed; never persisted.
type QueryResponse struct {
	Query           string     `json:"query"`
	Summary         string     `json:"summary"`
	Confidence      float64    `json:"confidence"`
	ConfidenceLabel string     `json:"confidence_label"`
	Subtopics       []Subtopic `json:"subtopics"`
	CitationsFlat   []Citation `json:"citations_flat"`
	Limitations     string     `json:"limitations,omitempty"`
	Model           string     `json:"model,omitempty"`
	Usage           Usage      `json:"usage"`
}

// CorpusStats describes the current contents of the chunk store.
type CorpusStats struct {
	ChunkCount int      `json:"chunk_count"`
	FileCount  int      `json:"file_count"`
	Files      []string `json:"files"`
}

// IngestResult reports the outcome of one ingestion request.
type IngestResult struct {
	OK          bool     `json:"ok"`
	AddedChunks int      `json:"added_chunks"`
	Errors      []string `json:"errors"`
}

// Page is one page of extracted source text, the unit handed to the
// chunker.
type Page struct {
	Number int
	Text   string
}
