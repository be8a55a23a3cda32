// Package ingest builds the vector index from the book catalog: it
// embeds each book's tagged description and uploads the vectors in
// concurrent batches.
package ingest

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/catalog"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/embedding"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/types"
)

// Upserter is the vector sink for ingestion.
type Upserter interface {
	UpsertBatch(ctx context.Context, vectors []*types.Vector) error
}

// Store is the subset of the in-memory retriever used for local ingestion.
type Store interface {
	Upsert(ctx context.Context, namespace string, vectors []*types.Vector) (int, error)
}

// StoreUpserter adapts a namespace-scoped store to the Upserter interface.
func StoreUpserter(store Store, namespace string) Upserter {
	return storeUpserter{store: store, namespace: namespace}
}

type storeUpserter struct {
	store     Store
	namespace string
}

func (s storeUpserter) UpsertBatch(ctx context.Context, vectors []*types.Vector) error {
	_, err := s.store.Upsert(ctx, s.namespace, vectors)
	return err
}

// Config holds ingestion pipeline configuration.
type Config struct {
	// BatchSize is the number of books per embedding call and vectors
	// per upsert. Pinecone optimal: 100
	BatchSize int

	// Workers is the number of concurrent upload workers.
	Workers int

	// ChannelBuffer is the buffer size for internal channels.
	ChannelBuffer int
}

// DefaultConfig returns sensible defaults for ingestion.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		Workers:       runtime.NumCPU() * 2,
		ChannelBuffer: 1000,
	}
}

// Pipeline orchestrates embedding and uploading the catalog.
type Pipeline struct {
	cfg      Config
	embedder embedding.Provider
	sink     Upserter
	stats    *Stats
}

// Stats tracks ingestion metrics.
type Stats struct {
	TotalBooks       int64
	SkippedBooks     int64
	EmbeddedBooks    int64
	UploadedVectors  int64
	FailedVectors    int64
	BatchesProcessed int64
	StartTime        time.Time
	EndTime          time.Time
}

// Duration returns the total processing duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// VectorsPerSecond returns the throughput.
func (s *Stats) VectorsPerSecond() float64 {
	d := s.Duration().Seconds()
	if d == 0 {
		return 0
	}
	return float64(s.UploadedVectors) / d
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(embedder embedding.Provider, sink Upserter, cfg Config) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU() * 2
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 1000
	}

	return &Pipeline{
		cfg:      cfg,
		embedder: embedder,
		sink:     sink,
		stats:    &Stats{},
	}
}

// ProgressCallback is called periodically with current stats.
type ProgressCallback func(stats Stats)

// IngestCatalog embeds and uploads every book in the catalog.
func (p *Pipeline) IngestCatalog(ctx context.Context, cat *catalog.Catalog, progress ProgressCallback) (*Stats, error) {
	return p.IngestBooks(ctx, cat.Books(), progress)
}

// IngestBooks embeds and uploads the given books. Books without any
// description are skipped. An embedding failure aborts the run; upload
// failures are counted and the run continues.
func (p *Pipeline) IngestBooks(ctx context.Context, books []types.Book, progress ProgressCallback) (*Stats, error) {
	p.stats = &Stats{StartTime: time.Now()}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Channels for pipeline stages
	bookCh := make(chan types.Book, p.cfg.ChannelBuffer)
	batchCh := make(chan []*types.Vector, p.cfg.Workers*2)
	errCh := make(chan error, 1)

	var wg sync.WaitGroup

	// Stage 1: Feeder - emit embeddable books
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(bookCh)

		for _, b := range books {
			atomic.AddInt64(&p.stats.TotalBooks, 1)
			if EmbedText(b) == "" {
				atomic.AddInt64(&p.stats.SkippedBooks, 1)
				continue
			}

			select {
			case bookCh <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Stage 2: Embedder - batch books and embed their descriptions.
	// The provider already rate-limits and retries, so an error here is
	// final and aborts the run.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(batchCh)

		if err := p.embedBooks(ctx, bookCh, batchCh); err != nil {
			select {
			case errCh <- err:
			default:
			}
			cancel()
		}
	}()

	// Stage 3: Workers - upload batches concurrently
	var workerWg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			p.uploadWorker(ctx, batchCh)
		}()
	}

	// Progress reporter
	if progress != nil {
		go func() {
			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					progress(p.GetStats())
				}
			}
		}()
	}

	// Wait for workers to finish
	workerWg.Wait()
	wg.Wait()

	p.stats.EndTime = time.Now()

	// Check for errors
	select {
	case err := <-errCh:
		return p.GetStatsPtr(), err
	default:
	}

	return p.GetStatsPtr(), nil
}

// EmbedText returns the text indexed for a book: the tagged description
// when present, otherwise the identifier-prefixed description.
func EmbedText(b types.Book) string {
	if b.TaggedDescription != "" {
		return b.TaggedDescription
	}
	if b.Description == "" {
		return ""
	}
	return strconv.FormatInt(b.ISBN13, 10) + " " + b.Description
}

// embedBooks batches books, embeds their texts and emits vector batches.
func (p *Pipeline) embedBooks(ctx context.Context, in <-chan types.Book, out chan<- []*types.Vector) error {
	batch := make([]types.Book, 0, p.cfg.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		texts := make([]string, len(batch))
		for i, b := range batch {
			texts[i] = EmbedText(b)
		}

		embeddings, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch of %d: %w", len(batch), err)
		}
		if len(embeddings) != len(batch) {
			return fmt.Errorf("embed batch of %d: got %d embeddings", len(batch), len(embeddings))
		}

		vectors := make([]*types.Vector, len(batch))
		for i, b := range batch {
			vectors[i] = bookVector(b, embeddings[i])
		}
		atomic.AddInt64(&p.stats.EmbeddedBooks, int64(len(batch)))

		select {
		case out <- vectors:
		case <-ctx.Done():
			return ctx.Err()
		}

		batch = batch[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case b, ok := <-in:
			if !ok {
				// Channel closed, flush remaining
				return flush()
			}

			batch = append(batch, b)
			if len(batch) >= p.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
}

// bookVector builds the record stored in the vector index.
func bookVector(b types.Book, values []float32) *types.Vector {
	return types.NewVectorWithMetadata(
		strconv.FormatInt(b.ISBN13, 10),
		values,
		map[string]interface{}{
			"tagged_description": EmbedText(b),
			"title":              b.Title,
			"category":           b.Category,
		},
	)
}

// uploadWorker processes batches from the channel.
func (p *Pipeline) uploadWorker(ctx context.Context, batches <-chan []*types.Vector) {
	for batch := range batches {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := p.sink.UpsertBatch(ctx, batch)
		if err != nil {
			atomic.AddInt64(&p.stats.FailedVectors, int64(len(batch)))
		} else {
			atomic.AddInt64(&p.stats.UploadedVectors, int64(len(batch)))
		}
		atomic.AddInt64(&p.stats.BatchesProcessed, 1)
	}
}

// GetStats returns current statistics.
func (p *Pipeline) GetStats() Stats {
	return Stats{
		TotalBooks:       atomic.LoadInt64(&p.stats.TotalBooks),
		SkippedBooks:     atomic.LoadInt64(&p.stats.SkippedBooks),
		EmbeddedBooks:    atomic.LoadInt64(&p.stats.EmbeddedBooks),
		UploadedVectors:  atomic.LoadInt64(&p.stats.UploadedVectors),
		FailedVectors:    atomic.LoadInt64(&p.stats.FailedVectors),
		BatchesProcessed: atomic.LoadInt64(&p.stats.BatchesProcessed),
		StartTime:        p.stats.StartTime,
		EndTime:          p.stats.EndTime,
	}
}

// GetStatsPtr returns a pointer to current statistics.
func (p *Pipeline) GetStatsPtr() *Stats {
	s := p.GetStats()
	return &s
}
