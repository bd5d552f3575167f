package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chidori-ai/chidori/internal/app"
	"github.com/chidori-ai/chidori/internal/config"
	"github.com/chidori-ai/chidori/internal/log"
)

// timeRounding keeps reported durations readable.
const timeRounding = 10 * time.Millisecond

var (
	indexDocumentDir  string
	indexCollection   string
	indexChunkSize    int
	indexChunkOverlap int
	indexRebuild      bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the knowledge-base index from a document directory",
	Long: `index reads .txt, .md, and .pdf files from the document directory,
splits them into chunks, embeds the chunks, and writes them to the vector
store and the keyword index.

Re-running index updates changed documents in place. Use --rebuild to drop
the collection and start from scratch.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runIndex(cmd.Context())
	},
}

func init() {
	indexCmd.Flags().StringVar(&indexDocumentDir, "document-dir", "", "document directory (overrides config)")
	indexCmd.Flags().StringVar(&indexCollection, "collection", "", "collection name (overrides config)")
	indexCmd.Flags().StringVar(&indexCollection, "collection-name", "", "alias for --collection")
	indexCmd.Flags().IntVar(&indexChunkSize, "chunk-size", 0, "chunk size in bytes (overrides config)")
	indexCmd.Flags().IntVar(&indexChunkOverlap, "chunk-overlap", -1, "overlap between chunks in bytes (overrides config)")
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "delete the existing collection before indexing")
	_ = indexCmd.Flags().MarkHidden("collection-name")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if indexDocumentDir != "" {
		cfg.DocumentDir = indexDocumentDir
	}
	if indexCollection != "" {
		cfg.Collection = indexCollection
	}
	if indexChunkSize > 0 {
		cfg.ChunkSize = indexChunkSize
	}
	if indexChunkOverlap >= 0 {
		cfg.ChunkOverlap = indexChunkOverlap
	}
	// Flag overrides bypass Load's validation, so re-check the result.
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	if a.Degraded() {
		return fmt.Errorf("indexing needs an embedder: set %s", degradedKeyHint(cfg))
	}

	pipeline, err := a.NewIngestPipeline()
	if err != nil {
		return fmt.Errorf("creating ingest pipeline: %w", err)
	}

	if indexRebuild {
		logger.Info("rebuilding index", "collection", cfg.Collection)
		if err := a.Knowledge.DeleteCollection(ctx, cfg.Collection); err != nil {
			return fmt.Errorf("deleting collection: %w", err)
		}
		if err := a.Keyword.DeleteCollection(cfg.Collection); err != nil {
			return fmt.Errorf("clearing keyword index: %w", err)
		}
	}

	result, err := pipeline.Run(ctx, cfg.DocumentDir)
	if err != nil {
		return fmt.Errorf("indexing documents: %w", err)
	}

	fmt.Printf("Indexed %d documents (%d chunks) in %s\n",
		result.Documents, result.Chunks, result.Duration.Round(timeRounding))
	if total, countErr := a.Knowledge.CountDocuments(ctx, cfg.Collection); countErr != nil {
		logger.Warn("counting documents", "error", countErr)
	} else {
		fmt.Printf("Collection %q now holds %d documents\n", cfg.Collection, total)
	}
	if result.Skipped > 0 {
		fmt.Printf("Skipped %d unsupported or empty files\n", result.Skipped)
	}
	for _, path := range result.Failed {
		fmt.Printf("Failed: %s\n", path)
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d files failed to index", len(result.Failed))
	}
	return nil
}

func degradedKeyHint(cfg *config.Config) string {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return "GEMINI_API_KEY"
	}
}
