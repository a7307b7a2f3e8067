package processor

import (
	"strings"

	"github.com/datasplice/datasplice/internal/models"
)

type ProcessorConfig struct {
	ChunkSize      int // target tokens per chunk
	ChunkOverlap   int // overlap tokens carried into the next chunk
	MinChunkLength int // minimum characters for a chunk to be kept
}

// Processor splits extracted pages into overlapping chunks sized by an
// estimated token count. Chunk ids are stable across re-ingestion:
// {file}_p{page}_c{index}.
type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = 600
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 90
	}
	if config.MinChunkLength == 0 {
		config.MinChunkLength = 40
	}

	return Processor{
		config: config,
	}
}

// Process chunks every page of one source document. Empty pages yield
// no chunks. The chunk index restarts at zero on each page so that ids
// match the {file}_p{page}_c{index} scheme.
func (p *Processor) Process(file string, pages []models.Page) ([]models.Chunk, error) {
	var chunks []models.Chunk

	for _, page := range pages {
		text := cleanText(page.Text)
		if text == "" {
			continue
		}

		for i, part := range p.splitIntoChunks(text) {
			chunks = append(chunks, models.Chunk{
				ID:    models.ChunkID(file, page.Number, i),
				Text:  part,
				File:  file,
				Page:  page.Number,
				Index: i,
			})
		}
	}

	return chunks, nil
}

// EstimateTokens approximates the token count of text. For English
// prose roughly 4 characters make one token, which is close enough for
// sizing chunks against a model context.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

func (p *Processor) splitIntoChunks(text string) []string {
	var chunks []string

	sentences := splitIntoSentences(text)

	currentChunk := strings.Builder{}

	for _, sentence := range sentences {
		// A single sentence longer than the chunk budget gets split hard.
		if EstimateTokens(sentence) > p.config.ChunkSize {
			if currentChunk.Len() >= p.config.MinChunkLength {
				chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
			}
			currentChunk.Reset()
			chunks = append(chunks, p.splitLongSentence(sentence)...)
			continue
		}

		if EstimateTokens(currentChunk.String())+EstimateTokens(sentence) > p.config.ChunkSize {
			if currentChunk.Len() >= p.config.MinChunkLength {
				chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
			}

			// Start the next chunk with the tail of this one as overlap.
			overlapChars := p.config.ChunkOverlap * 4
			if overlapChars > 0 && currentChunk.Len() > overlapChars {
				tail := currentChunk.String()
				tail = tail[len(tail)-overlapChars:]
				// Align overlap to a word boundary.
				if cut := strings.IndexByte(tail, ' '); cut >= 0 {
					tail = tail[cut+1:]
				}
				currentChunk.Reset()
				currentChunk.WriteString(tail)
			} else {
				currentChunk.Reset()
			}
		}

		currentChunk.WriteString(sentence)
		currentChunk.WriteString(" ")
	}

	if currentChunk.Len() >= p.config.MinChunkLength {
		chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
	}

	return chunks
}

func (p *Processor) splitLongSentence(sentence string) []string {
	var parts []string
	budget := p.config.ChunkSize * 4

	for len(sentence) > budget {
		cut := budget
		// Prefer breaking at a word boundary near the budget.
		if idx := strings.LastIndexByte(sentence[:budget], ' '); idx > budget/2 {
			cut = idx
		}
		parts = append(parts, strings.TrimSpace(sentence[:cut]))
		sentence = strings.TrimSpace(sentence[cut:])
	}
	if len(sentence) >= p.config.MinChunkLength {
		parts = append(parts, sentence)
	}

	return parts
}

func splitIntoSentences(text string) []string {
	sentenceEnders := []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}
	var sentences []string

	current := strings.Builder{}

	for i := 0; i < len(text); i++ {
		current.WriteByte(text[i])

		for _, ender := range sentenceEnders {
			if strings.HasSuffix(current.String(), ender) {
				sentences = append(sentences, strings.TrimSpace(current.String()))
				current.Reset()
				break
			}
		}
	}

	if current.Len() > 0 {
		sentences = append(sentences, strings.TrimSpace(current.String()))
	}

	return sentences
}

func cleanText(text string) string {
	// Collapse runs of whitespace but keep the original casing; chunk
	// text is shown to the model and quoted back in excerpts.
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}
