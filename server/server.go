package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/datasplice/datasplice/internal/models"
	"github.com/datasplice/datasplice/internal/types"
	"github.com/datasplice/datasplice/pkg/pipeline"
)

// Config represents the configuration for the HTTP API server.
type Config struct {
	Addr      string
	UploadDir string
}

// Server exposes the ingestion and query pipelines over REST.
type Server struct {
	config   Config
	pipeline *pipeline.Pipeline
	ingestor *pipeline.Ingestor
	store    types.ChunkStore
	logger   *zap.Logger
	engine   *gin.Engine
}

type queryRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k"`
}

type healthResponse struct {
	Status        string `json:"status"`
	VectorDBReady bool   `json:"vector_db_ready"`
}

type clearResponse struct {
	OK            bool   `json:"ok"`
	Message       string `json:"message"`
	DeletedChunks int    `json:"deleted_chunks"`
}

func New(config Config, p *pipeline.Pipeline, ing *pipeline.Ingestor, store types.ChunkStore, logger *zap.Logger) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.UploadDir == "" {
		config.UploadDir = "./data/uploads"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:   config,
		pipeline: p,
		ingestor: ing,
		store:    store,
		logger:   logger,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", s.handleHealth)
	engine.GET("/stats", s.handleStats)
	engine.POST("/ingest", s.handleIngest)
	engine.POST("/query", s.handleQuery)
	engine.DELETE("/corpus", s.handleClear)

	s.engine = engine
	return s
}

// Run blocks serving HTTP until the listener fails.
func (s *Server) Run() error {
	s.logger.Info("http server listening", zap.String("addr", s.config.Addr))
	return s.engine.Run(s.config.Addr)
}

// Handler exposes the underlying http.Handler for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	_, err := s.store.Stats(c.Request.Context())
	c.JSON(http.StatusOK, healthResponse{
		Status:        "ok",
		VectorDBReady: err == nil,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get corpus stats"})
		return
	}
	if stats.Files == nil {
		stats.Files = []string{}
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleIngest(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected multipart form upload"})
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	if err := os.MkdirAll(s.config.UploadDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare upload directory"})
		return
	}

	paths := make([]string, 0, len(files))
	for _, fh := range files {
		dst := filepath.Join(s.config.UploadDir, filepath.Base(fh.Filename))
		if err := c.SaveUploadedFile(fh, dst); err != nil {
			s.logger.Error("failed to save upload", zap.String("file", fh.Filename), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save " + fh.Filename})
			return
		}
		paths = append(paths, dst)
	}

	result := s.ingestor.IngestFiles(c.Request.Context(), paths)
	if result.Errors == nil {
		result.Errors = []string{}
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	resp, err := s.pipeline.RunQuery(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		s.logger.Error("query failed", zap.String("query", req.Query), zap.Error(err))

		var synthErr *types.SynthesisError
		switch {
		case types.Retriable(err):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "provider unavailable, try again later"})
		case errors.As(err, &synthErr):
			c.JSON(http.StatusBadGateway, gin.H{"error": synthErr.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		}
		return
	}

	if resp.Subtopics == nil {
		resp.Subtopics = []models.Subtopic{}
	}
	if resp.CitationsFlat == nil {
		resp.CitationsFlat = []models.Citation{}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleClear(c *gin.Context) {
	deleted, err := s.store.Clear(c.Request.Context())
	if err != nil {
		s.logger.Error("clear failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear corpus"})
		return
	}

	c.JSON(http.StatusOK, clearResponse{
		OK:            true,
		Message:       "corpus cleared",
		DeletedChunks: deleted,
	})
}
