package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/datasplice/datasplice/internal/models"
	"github.com/datasplice/datasplice/internal/types"
)

type ChunkStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	BatchSize  int
}

// ChunkStore persists (text, vector, metadata) triples in Postgres with
// the pgvector extension and answers nearest-neighbor queries by cosine
// distance. Upsert-by-id is atomic, so concurrent ingestion of the same
// chunk is last-write-wins.
type ChunkStore struct {
	config ChunkStoreConfig
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewWithConfig(config ChunkStoreConfig, logger *zap.Logger) (*ChunkStore, error) {
	if config.TableName == "" {
		config.TableName = "chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 3072
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	cs := &ChunkStore{
		config: config,
		pool:   pool,
		logger: logger,
	}

	if err := cs.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return cs, nil
}

func (cs *ChunkStore) initialize() error {
	ctx := context.Background()

	// Enable pgvector extension
	_, err := cs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			file TEXT NOT NULL,
			page INTEGER NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d)
		)`, cs.config.TableName, cs.config.VectorDim)

	_, err = cs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		cs.config.TableName, cs.config.TableName)

	_, err = cs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Upsert writes chunks with their precomputed embeddings in one
// transaction. Re-ingesting an existing chunk id replaces its content
// and embedding. Returns the number of chunks written.
func (cs *ChunkStore) Upsert(ctx context.Context, chunks []models.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	for _, chunk := range chunks {
		if len(chunk.Embedding) != cs.config.VectorDim {
			return 0, fmt.Errorf("chunk %s has dimension %d, expected %d: %w",
				chunk.ID, len(chunk.Embedding), cs.config.VectorDim, types.ErrDimensionMismatch)
		}
	}

	tx, err := cs.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, file, page, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`,
		cs.config.TableName)

	for _, chunk := range chunks {
		_, err = tx.Exec(ctx, stmt,
			chunk.ID,
			sanitizeUTF8(chunk.File),
			chunk.Page,
			chunk.Index,
			sanitizeUTF8(chunk.Text),
			pgvector.NewVector(chunk.Embedding),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	cs.logger.Info("upserted chunks", zap.Int("count", len(chunks)))

	return len(chunks), nil
}

// Query returns the topK nearest chunks by cosine distance, each with
// its stored embedding and a similarity score mapped to [0, 1].
func (cs *ChunkStore) Query(ctx context.Context, queryEmbedding []float32, topK int) ([]models.RetrievedChunk, error) {
	if topK <= 0 {
		topK = 12
	}
	if len(queryEmbedding) != cs.config.VectorDim {
		return nil, fmt.Errorf("query embedding has dimension %d, expected %d: %w",
			len(queryEmbedding), cs.config.VectorDim, types.ErrDimensionMismatch)
	}

	query := fmt.Sprintf(`
		SELECT id, file, page, chunk_index, content, embedding, embedding <=> $1 AS distance
		FROM %s
		ORDER BY distance
		LIMIT $2`,
		cs.config.TableName)

	rows, err := cs.pool.Query(ctx, query, pgvector.NewVector(queryEmbedding), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var retrieved []models.RetrievedChunk
	for rows.Next() {
		var rc models.RetrievedChunk
		var embedding pgvector.Vector
		var distance float64

		err := rows.Scan(
			&rc.ID,
			&rc.File,
			&rc.Page,
			&rc.Index,
			&rc.Text,
			&embedding,
			&distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rc.Embedding = embedding.Slice()
		rc.Similarity = similarityFromDistance(distance)
		retrieved = append(retrieved, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query results: %w", err)
	}

	return retrieved, nil
}

// Clear removes every chunk from the store and returns the count of
// deleted rows.
func (cs *ChunkStore) Clear(ctx context.Context) (int, error) {
	tag, err := cs.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", cs.config.TableName))
	if err != nil {
		return 0, fmt.Errorf("failed to clear corpus: %w", err)
	}

	deleted := int(tag.RowsAffected())
	cs.logger.Warn("corpus cleared", zap.Int("deleted_chunks", deleted))

	return deleted, nil
}

// Stats reports chunk count and the distinct source files in the corpus.
func (cs *ChunkStore) Stats(ctx context.Context) (models.CorpusStats, error) {
	var stats models.CorpusStats

	err := cs.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", cs.config.TableName)).Scan(&stats.ChunkCount)
	if err != nil {
		return stats, fmt.Errorf("failed to count chunks: %w", err)
	}

	rows, err := cs.pool.Query(ctx,
		fmt.Sprintf("SELECT DISTINCT file FROM %s ORDER BY file", cs.config.TableName))
	if err != nil {
		return stats, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var file string
		if err := rows.Scan(&file); err != nil {
			return stats, fmt.Errorf("failed to scan file name: %w", err)
		}
		stats.Files = append(stats.Files, file)
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("failed to read file list: %w", err)
	}

	stats.FileCount = len(stats.Files)
	return stats, nil
}

func (cs *ChunkStore) Close() {
	if cs.pool != nil {
		cs.pool.Close()
	}
}

// similarityFromDistance maps cosine distance (0 = identical,
// 2 = opposite) to a similarity score in [0, 1].
func similarityFromDistance(distance float64) float32 {
	s := 1.0 - distance/2.0
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	return float32(s)
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
