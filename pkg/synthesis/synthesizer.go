package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/datasplice/datasplice/internal/models"
	"github.com/datasplice/datasplice/internal/types"
)

const systemPrompt = `You are an expert research assistant that provides accurate, citation-backed summaries.

Your task is to answer questions based ONLY on the provided evidence. You must:
1. Generate a concise 6-8 line summary answering the query
2. Organize findings into 2-4 thematic subtopics
3. Include 2-4 bullet points per subtopic
4. Cite ALL sources using the exact chunk_id, file, page, and a relevant excerpt (20-50 words)
5. Only cite chunk ids that appear verbatim in the evidence below
6. Note any limitations if the evidence is incomplete or doesn't fully answer the query

Return ONLY valid JSON matching this structure:
{
  "summary": "6-8 line prose summary",
  "subtopics": [
    {
      "title": "Subtopic title",
      "bullets": ["Point 1", "Point 2"],
      "citations": [
        {"chunk_id": "doc_p1_c0", "file": "doc.pdf", "page": 1, "excerpt": "relevant quote"}
      ]
    }
  ],
  "limitations": "Optional note on gaps or limitations"
}`

// maxChunkPromptChars bounds how much of a single chunk goes into the
// prompt; very long chunks are truncated, not dropped.
const maxChunkPromptChars = 800

// SynthesizerConfig represents the configuration for a Synthesizer.
type SynthesizerConfig struct {
	// DropUnverified drops subtopics left without a single valid
	// citation after hallucination stripping. When false (default)
	// such subtopics are retained and flagged Unverified.
	DropUnverified bool
}

// Synthesizer builds a prompt from clustered chunks, invokes the
// completion provider in JSON mode, and validates the structured
// response against the ids of the chunks actually supplied.
type Synthesizer struct {
	config    SynthesizerConfig
	completer types.Completer
	logger    *zap.Logger
}

func NewWithConfig(config SynthesizerConfig, completer types.Completer, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		config:    config,
		completer: completer,
		logger:    logger,
	}
}

// rawResponse mirrors the JSON schema requested from the provider.
// Parsed then validated; never trusted as-is.
type rawResponse struct {
	Summary     string        `json:"summary"`
	Subtopics   []rawSubtopic `json:"subtopics"`
	Limitations string        `json:"limitations"`
}

type rawSubtopic struct {
	Title     string        `json:"title"`
	Bullets   []string      `json:"bullets"`
	Citations []rawCitation `json:"citations"`
}

type rawCitation struct {
	ChunkID string `json:"chunk_id"`
	File    string `json:"file"`
	Page    int    `json:"page"`
	Excerpt string `json:"excerpt"`
}

// Synthesize produces the structured, citation-validated portion of a
// query response from the fused evidence clusters.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, clusters []models.Cluster) (*models.QueryResponse, error) {
	supplied := chunkIndex(clusters)
	userPrompt := buildUserPrompt(query, clusters)

	s.logger.Debug("synthesizing response",
		zap.Int("clusters", len(clusters)),
		zap.Int("evidence_chunks", len(supplied)),
		zap.Int("prompt_chars", len(userPrompt)))

	content, usage, err := s.completer.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	raw, parseErr := parseCompletion(content)
	if parseErr != nil {
		// One corrective retry: restate the schema with the parse error.
		s.logger.Warn("completion failed schema parse, retrying once", zap.Error(parseErr))

		corrective := userPrompt + fmt.Sprintf(
			"\n\nYour previous response was not valid JSON (%v). Respond again with ONLY the JSON object described above.",
			parseErr)

		content, usage, err = s.completer.Complete(ctx, systemPrompt, corrective)
		if err != nil {
			return nil, err
		}
		raw, parseErr = parseCompletion(content)
		if parseErr != nil {
			return nil, &types.SynthesisError{Reason: "completion failed schema parse twice", Err: parseErr}
		}
	}

	resp := s.validate(query, raw, supplied)
	if resp.Summary == "" {
		return nil, &types.SynthesisError{Reason: "completion produced an empty summary"}
	}

	resp.Model = s.completer.Model()
	resp.Usage = usage

	return resp, nil
}

// validate enforces citation soundness: every citation must reference a
// chunk id that was supplied in the prompt. Unknown ids are stripped;
// file and page are rewritten from the ground-truth chunk so the
// provider cannot misattribute a valid id.
func (s *Synthesizer) validate(query string, raw *rawResponse, supplied map[string]models.RetrievedChunk) *models.QueryResponse {
	resp := &models.QueryResponse{
		Query:       query,
		Summary:     strings.TrimSpace(raw.Summary),
		Limitations: strings.TrimSpace(raw.Limitations),
	}

	for _, st := range raw.Subtopics {
		title := strings.TrimSpace(st.Title)
		if title == "" && len(st.Bullets) == 0 {
			continue
		}

		sub := models.Subtopic{
			Title:   title,
			Bullets: st.Bullets,
		}

		for _, c := range st.Citations {
			chunk, ok := supplied[c.ChunkID]
			if !ok {
				s.logger.Warn("stripping hallucinated citation",
					zap.String("chunk_id", c.ChunkID),
					zap.String("subtopic", title))
				continue
			}
			sub.Citations = append(sub.Citations, models.Citation{
				ChunkID: chunk.ID,
				File:    chunk.File,
				Page:    chunk.Page,
				Excerpt: strings.TrimSpace(c.Excerpt),
			})
		}

		if len(sub.Citations) == 0 {
			if s.config.DropUnverified {
				s.logger.Warn("dropping subtopic with no valid citations", zap.String("subtopic", title))
				continue
			}
			s.logger.Warn("subtopic has no valid citations", zap.String("subtopic", title))
			sub.Unverified = true
		}

		resp.Subtopics = append(resp.Subtopics, sub)
	}

	resp.CitationsFlat = FlattenCitations(resp.Subtopics)
	return resp
}

// FlattenCitations unions per-subtopic citations in first-appearance
// order, deduplicated by chunk id.
func FlattenCitations(subtopics []models.Subtopic) []models.Citation {
	var flat []models.Citation
	seen := make(map[string]bool)

	for _, st := range subtopics {
		for _, c := range st.Citations {
			if seen[c.ChunkID] {
				continue
			}
			seen[c.ChunkID] = true
			flat = append(flat, c)
		}
	}

	return flat
}

func buildUserPrompt(query string, clusters []models.Cluster) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Query: %s\n\n", query)
	b.WriteString("Evidence from the corpus:\n\n")

	for i, cluster := range clusters {
		fmt.Fprintf(&b, "--- Evidence Group %d ---\n", i+1)
		for j, member := range cluster.Members {
			text := member.Text
			if len(text) > maxChunkPromptChars {
				text = text[:maxChunkPromptChars] + "..."
			}
			fmt.Fprintf(&b, "\n[%d] Chunk ID: %s\n", j+1, member.ID)
			fmt.Fprintf(&b, "    Source: %s, Page %d\n", member.File, member.Page)
			fmt.Fprintf(&b, "    Text: %s\n", text)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nBased on this evidence, generate a comprehensive JSON response.")
	return b.String()
}

func parseCompletion(content string) (*rawResponse, error) {
	// Some providers wrap JSON mode output in a code fence anyway.
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var raw rawResponse
	dec := json.NewDecoder(strings.NewReader(content))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding completion: %w", err)
	}
	return &raw, nil
}

func chunkIndex(clusters []models.Cluster) map[string]models.RetrievedChunk {
	supplied := make(map[string]models.RetrievedChunk)
	for _, cluster := range clusters {
		for _, member := range cluster.Members {
			supplied[member.ID] = member
		}
	}
	return supplied
}
