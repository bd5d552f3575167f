package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/panjf2000/ants/v2"

	"github.com/chidori-ai/chidori/internal/knowledge"
	"github.com/chidori-ai/chidori/internal/log"
	"github.com/chidori-ai/chidori/internal/retriever"
)

// Options configures a Pipeline.
type Options struct {
	Collection string
	BatchSize  int // Chunks embedded per request. Default 64.
	Workers    int // Concurrent embedding requests. Default GOMAXPROCS.
}

// Result summarizes one indexing run.
type Result struct {
	Documents int           // Files successfully indexed
	Chunks    int           // Chunks written across all documents
	Skipped   int           // Unsupported or empty files
	Failed    []string      // Paths that errored (run continues past them)
	Duration  time.Duration
}

// Pipeline indexes documents into the knowledge store and keyword index.
// Embedding requests run concurrently on a bounded worker pool.
type Pipeline struct {
	store    *knowledge.Store
	keyword  *retriever.KeywordIndex // nil disables keyword indexing
	embedder ai.Embedder
	splitter TextSplitter
	logger   log.Logger

	collection string
	batchSize  int
	workers    int
}

// NewPipeline creates an indexing pipeline.
// keyword may be nil when only vector retrieval is configured.
func NewPipeline(store *knowledge.Store, keyword *retriever.KeywordIndex, embedder ai.Embedder, splitter TextSplitter, opts Options, logger log.Logger) *Pipeline {
	if logger == nil {
		logger = log.NewNop()
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 64
	}
	if opts.Workers < 1 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Pipeline{
		store:      store,
		keyword:    keyword,
		embedder:   embedder,
		splitter:   splitter,
		logger:     logger,
		collection: opts.Collection,
		batchSize:  opts.BatchSize,
		workers:    opts.Workers,
	}
}

// DocID derives a stable document identifier from a file path.
// The same file always maps to the same ID, making re-indexing idempotent.
func DocID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha256.Sum256([]byte(abs))
	return "file_" + hex.EncodeToString(sum[:])[:32]
}

// Run walks dir and indexes every supported file.
// Per-file failures are collected in Result.Failed and do not stop the run;
// an unreadable directory does.
func (p *Pipeline) Run(ctx context.Context, dir string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if !Supported(filepath.Ext(path)) {
			result.Skipped++
			return nil
		}

		chunks, err := p.IndexFile(ctx, path)
		if err != nil {
			p.logger.Warn("indexing file failed", "path", path, "error", err)
			result.Failed = append(result.Failed, path)
			return nil
		}
		if chunks == 0 {
			result.Skipped++
			return nil
		}

		result.Documents++
		result.Chunks += chunks
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %q: %w", dir, err)
	}

	result.Duration = time.Since(start)
	p.logger.Info("indexing run complete",
		"documents", result.Documents,
		"chunks", result.Chunks,
		"skipped", result.Skipped,
		"failed", len(result.Failed),
		"duration", result.Duration,
	)
	return result, nil
}

// IndexFile loads, splits, embeds, and stores a single file.
// Returns the number of chunks written; 0 with a nil error means the file
// had no indexable content.
func (p *Pipeline) IndexFile(ctx context.Context, path string) (int, error) {
	text, err := LoadFile(path)
	if err != nil {
		return 0, err
	}

	docID := DocID(path)
	pieces := p.splitter.Split(text)
	if len(pieces) == 0 {
		// A previously indexed file may have been emptied since the last
		// run; drop its stale document and chunks.
		if err := p.store.DeleteDocument(ctx, docID); err != nil {
			return 0, err
		}
		return 0, nil
	}

	source := filepath.Base(path)
	metadata := map[string]string{
		"source": source,
		"ext":    filepath.Ext(path),
	}

	vectors, err := p.embedPieces(ctx, pieces)
	if err != nil {
		return 0, fmt.Errorf("embedding %q: %w", path, err)
	}

	chunks := make([]knowledge.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = knowledge.Chunk{
			ID:         fmt.Sprintf("%s:%d", docID, i),
			DocumentID: docID,
			Collection: p.collection,
			Index:      i,
			Start:      piece.Start,
			End:        piece.End,
			Content:    piece.Content,
			Metadata:   metadata,
			Embedding:  vectors[i],
		}
	}

	doc := knowledge.Document{
		ID:         docID,
		Collection: p.collection,
		Source:     path,
		Metadata:   metadata,
	}
	if err := p.store.AddDocument(ctx, doc); err != nil {
		return 0, err
	}
	if err := p.store.AddChunks(ctx, chunks); err != nil {
		return 0, err
	}

	if p.keyword != nil {
		if err := p.keyword.Index(chunks); err != nil {
			return 0, fmt.Errorf("keyword indexing %q: %w", path, err)
		}
	}

	p.logger.Debug("indexed file", "path", path, "chunks", len(chunks))
	return len(chunks), nil
}

// embedPieces embeds pieces in batches on a worker pool.
// The returned slice is parallel to pieces.
func (p *Pipeline) embedPieces(ctx context.Context, pieces []Piece) ([][]float32, error) {
	vectors := make([][]float32, len(pieces))

	pool, err := ants.NewPool(p.workers)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for start := 0; start < len(pieces); start += p.batchSize {
		end := min(start+p.batchSize, len(pieces))

		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = pieces[i].Content
		}

		offset := start
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			vecs, err := knowledge.EmbedTexts(ctx, p.embedder, texts)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			copy(vectors[offset:], vecs)
		})
		if submitErr != nil {
			wg.Done()
			return nil, fmt.Errorf("submitting embedding batch: %w", submitErr)
		}
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}
