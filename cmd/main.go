package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/datasplice/datasplice/internal/models"
	cfgPkg "github.com/datasplice/datasplice/pkg/config"
	"github.com/datasplice/datasplice/pkg/extract"
	"github.com/datasplice/datasplice/pkg/fusion"
	"github.com/datasplice/datasplice/pkg/llm"
	"github.com/datasplice/datasplice/pkg/pipeline"
	"github.com/datasplice/datasplice/pkg/processor"
	"github.com/datasplice/datasplice/pkg/store"
	"github.com/datasplice/datasplice/pkg/synthesis"
	"github.com/datasplice/datasplice/server"
)

type flags struct {
	configPath string
	serve      bool
	ingest     bool
	crawlURL   string
	clear      bool
	stats      bool
	topK       int
	verbose    bool
}

func main() {
	f := parseFlags()

	if err := run(f); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() flags {
	var f flags

	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.BoolVar(&f.serve, "serve", false, "Start the HTTP API server")
	flag.BoolVar(&f.ingest, "ingest", false, "Ingest the files given as arguments")
	flag.StringVar(&f.crawlURL, "crawl", "", "Crawl and ingest a documentation site")
	flag.BoolVar(&f.clear, "clear", false, "Delete every chunk from the corpus")
	flag.BoolVar(&f.stats, "stats", false, "Print corpus statistics")
	flag.IntVar(&f.topK, "top-k", 0, "Number of chunks to retrieve per query")
	flag.BoolVar(&f.verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	return f
}

func run(f flags) error {
	config, err := cfgPkg.LoadConfig(f.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if errs := config.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		return fmt.Errorf("invalid configuration")
	}

	logger, err := newLogger(f.verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		APIKey:      config.LLM.APIKey,
		BaseURL:     config.LLM.BaseURL,
		Model:       config.LLM.EmbedModel,
		VectorDim:   config.Database.VectorDim,
		BatchSize:   config.Database.BatchSize,
		MaxAttempts: config.Providers.MaxAttempts,
		Timeout:     config.Providers.Timeout,
		RateLimit:   config.Providers.RateLimit,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	completer, err := llm.NewCompleterWithConfig(llm.CompleterConfig{
		APIKey:      config.LLM.APIKey,
		BaseURL:     config.LLM.BaseURL,
		Model:       config.LLM.Model,
		MaxTokens:   config.LLM.MaxTokens,
		Temperature: config.LLM.Temperature,
		MaxAttempts: config.Providers.MaxAttempts,
		Timeout:     config.Providers.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize completer: %w", err)
	}

	chunkStore, err := store.NewWithConfig(store.ChunkStoreConfig{
		ConnString: config.Database.URL,
		TableName:  config.Database.TableName,
		VectorDim:  config.Database.VectorDim,
		BatchSize:  config.Database.BatchSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize chunk store: %w", err)
	}
	defer chunkStore.Close()

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:      config.Processor.ChunkSize,
		ChunkOverlap:   config.Processor.ChunkOverlap,
		MinChunkLength: config.Processor.MinChunkLength,
	})

	engine := fusion.NewWithConfig(fusion.FusionConfig{
		Clusters:       config.Retrieval.Clusters,
		DedupThreshold: config.Retrieval.DedupThreshold,
		CapPerCluster:  config.Retrieval.CapPerCluster,
		Seed:           config.Retrieval.Seed,
	}, logger)

	synth := synthesis.NewWithConfig(synthesis.SynthesizerConfig{}, completer, logger)

	scorer := synthesis.NewScorer(synthesis.ScorerConfig{
		VolumeWeight:         config.Confidence.VolumeWeight,
		DensityWeight:        config.Confidence.DensityWeight,
		RelevanceWeight:      config.Confidence.RelevanceWeight,
		CoverageWeight:       config.Confidence.CoverageWeight,
		ExpectedMinCitations: config.Confidence.ExpectedMinCitations,
	})

	queryPipeline := pipeline.NewWithConfig(pipeline.QueryConfig{
		TopK: config.Retrieval.TopK,
	}, embedder, chunkStore, engine, synth, scorer, logger)

	ctx := context.Background()

	switch {
	case f.clear:
		deleted, err := chunkStore.Clear(ctx)
		if err != nil {
			return err
		}
		color.Yellow("Deleted %d chunks from the corpus", deleted)
		return nil

	case f.stats:
		stats, err := chunkStore.Stats(ctx)
		if err != nil {
			return err
		}
		color.Cyan("Corpus: %d chunks across %d files", stats.ChunkCount, stats.FileCount)
		for _, file := range stats.Files {
			fmt.Println("  -", file)
		}
		return nil

	case f.ingest:
		return runIngest(ctx, proc, embedder, chunkStore, logger, flag.Args())

	case f.crawlURL != "":
		return runCrawl(ctx, config, proc, embedder, chunkStore, logger, f.crawlURL)

	case f.serve:
		ingestor := pipeline.NewIngestor(pipeline.IngestConfig{}, proc, embedder, chunkStore, logger)
		srv := server.New(server.Config{
			Addr:      config.Server.Addr,
			UploadDir: config.Server.UploadDir,
		}, queryPipeline, ingestor, chunkStore, logger)
		return srv.Run()

	default:
		return runChat(ctx, queryPipeline, f.topK)
	}
}

func runIngest(ctx context.Context, proc processor.Processor, embedder *llm.Embedder, chunkStore *store.ChunkStore, logger *zap.Logger, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no files given; usage: datasplice -ingest file.pdf ...")
	}

	bar := getProgressBar(len(paths), "Ingesting documents")
	ingestor := pipeline.NewIngestor(pipeline.IngestConfig{
		OnFile: func(string) { bar.Add(1) },
	}, proc, embedder, chunkStore, logger)

	result := ingestor.IngestFiles(ctx, paths)
	fmt.Println()

	for _, e := range result.Errors {
		color.Red("error: %s", e)
	}
	color.Green("Added %d chunks", result.AddedChunks)

	if !result.OK {
		return fmt.Errorf("ingestion added no chunks")
	}
	return nil
}

func runCrawl(ctx context.Context, config *cfgPkg.Config, proc processor.Processor, embedder *llm.Embedder, chunkStore *store.ChunkStore, logger *zap.Logger, baseURL string) error {
	spinner := getSpinner("Crawling " + baseURL)

	source, err := extract.NewWebSource(extract.WebSourceConfig{
		BaseURL:   baseURL,
		RateLimit: config.Providers.RateLimit,
		OnProgress: func(string) {
			spinner.Add(1)
		},
	}, logger)
	if err != nil {
		return err
	}

	ingestor := pipeline.NewIngestor(pipeline.IngestConfig{}, proc, embedder, chunkStore, logger)
	result, err := ingestor.IngestWeb(ctx, source)
	fmt.Println()
	if err != nil {
		return err
	}

	for _, e := range result.Errors {
		color.Red("error: %s", e)
	}
	color.Green("Added %d chunks", result.AddedChunks)
	return nil
}

func runChat(ctx context.Context, queryPipeline *pipeline.Pipeline, topK int) error {
	color.Cyan("\nAsk the corpus anything (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.ToLower(query) == "exit" {
			break
		}

		resp, err := queryPipeline.RunQuery(ctx, query, topK)
		if err != nil {
			color.Red("query failed: %v", err)
			continue
		}

		printResponse(resp)
	}

	return scanner.Err()
}

func printResponse(resp *models.QueryResponse) {
	assistant := color.New(color.FgCyan)
	faint := color.New(color.Faint)

	fmt.Println()
	assistant.Println(resp.Summary)

	for _, st := range resp.Subtopics {
		fmt.Println()
		title := st.Title
		if st.Unverified {
			title += " (unverified)"
		}
		color.Yellow("## %s", title)
		for _, bullet := range st.Bullets {
			fmt.Println("  •", bullet)
		}
		for _, c := range st.Citations {
			faint.Printf("    [%s] %s p.%d\n", c.ChunkID, c.File, c.Page)
		}
	}

	fmt.Println()
	faint.Printf("confidence: %.2f (%s), %d citations, %d tokens\n",
		resp.Confidence, resp.ConfidenceLabel, len(resp.CitationsFlat), resp.Usage.TotalTokens)
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
