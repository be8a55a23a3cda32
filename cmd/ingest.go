package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/catalog"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/embedding"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/embedding/openai"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/ingest"
	pc "github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/pinecone"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/ratelimit"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Embed the book catalog and upload it to Pinecone",
	Long: `Reads the book catalog CSV, embeds each tagged description with
OpenAI, and uploads the vectors to a Pinecone index using parallel
workers. Run this once before serving searches.

Example:
  bookrec ingest --catalog books_with_emotions.csv --index books

Environment Variables:
  PINECONE_API_KEY    Your Pinecone API key (required)
  OPENAI_API_KEY      Your OpenAI API key (required)`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	// Catalog input
	ingestCmd.Flags().StringP("catalog", "f", "books_with_emotions.csv", "path to the book catalog CSV")

	// Pinecone settings
	ingestCmd.Flags().StringP("index", "i", "", "Pinecone index name (required)")
	ingestCmd.Flags().StringP("namespace", "n", "", "Pinecone namespace (optional)")
	ingestCmd.Flags().String("api-key", "", "Pinecone API key (or use PINECONE_API_KEY env)")

	// Embedding settings
	ingestCmd.Flags().String("openai-key", "", "OpenAI API key (or use OPENAI_API_KEY env)")
	ingestCmd.Flags().String("embedding-model", "text-embedding-3-small", "OpenAI embedding model")
	ingestCmd.Flags().Int("rpm", 3000, "embedding requests per minute")
	ingestCmd.Flags().Int("rpd", 1000000, "embedding requests per day")

	// Performance settings
	ingestCmd.Flags().IntP("workers", "w", 0, "number of upload workers (0 = NumCPU*2)")
	ingestCmd.Flags().IntP("batch-size", "b", 100, "books per batch (Pinecone optimal: 100)")

	// Bind to viper
	_ = viper.BindPFlag("api_key", ingestCmd.Flags().Lookup("api-key"))
	_ = viper.BindPFlag("index", ingestCmd.Flags().Lookup("index"))
	_ = viper.BindPFlag("namespace", ingestCmd.Flags().Lookup("namespace"))
}

func runIngest(cmd *cobra.Command, args []string) error {
	// Get flags
	catalogPath, _ := cmd.Flags().GetString("catalog")
	indexName, _ := cmd.Flags().GetString("index")
	namespace, _ := cmd.Flags().GetString("namespace")
	apiKey, _ := cmd.Flags().GetString("api-key")
	openaiKey, _ := cmd.Flags().GetString("openai-key")
	embeddingModel, _ := cmd.Flags().GetString("embedding-model")
	rpm, _ := cmd.Flags().GetInt("rpm")
	rpd, _ := cmd.Flags().GetInt("rpd")
	workers, _ := cmd.Flags().GetInt("workers")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	verbose := viper.GetBool("verbose")

	// Resolve API keys from env if not provided
	if apiKey == "" {
		apiKey = viper.GetString("api_key")
	}
	if apiKey == "" {
		apiKey = os.Getenv("PINECONE_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("pinecone API key is required: set PINECONE_API_KEY or use --api-key")
	}

	if openaiKey == "" {
		openaiKey = os.Getenv("OPENAI_API_KEY")
	}
	if openaiKey == "" {
		return fmt.Errorf("OpenAI API key is required: set OPENAI_API_KEY or use --openai-key")
	}

	// Resolve index from env if not provided
	if indexName == "" {
		indexName = viper.GetString("index")
	}
	if indexName == "" {
		return fmt.Errorf("pinecone index name is required: use --index flag")
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
		cancel()
	}()

	// Load the catalog
	fmt.Fprintf(os.Stderr, "Loading catalog from %s...\n", catalogPath)
	loadStart := time.Now()
	cat, err := catalog.Load(catalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	loadDuration := time.Since(loadStart)

	if cat.Len() == 0 {
		fmt.Println("No books found in catalog.")
		return nil
	}

	fmt.Fprintf(os.Stderr, "Loaded %d books (%d rows skipped) in %v\n", cat.Len(), cat.Skipped(), loadDuration)

	// Embedding provider with rate limiting
	base, err := openai.NewClient(openai.Config{
		APIKey: openaiKey,
		Model:  embeddingModel,
	})
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: rpm,
		RequestsPerDay:    rpd,
	})
	embedder := embedding.NewLimitedProvider(base, limiter, embedding.LimitedConfig{
		BatchSize: batchSize,
	})

	// Connect to Pinecone
	fmt.Fprintf(os.Stderr, "Connecting to Pinecone index %q...\n", indexName)

	client, err := pc.NewClient(ctx, pc.Config{
		APIKey:    apiKey,
		IndexName: indexName,
		Namespace: namespace,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Pinecone: %w", err)
	}
	defer func() { _ = client.Close() }()

	// Create ingestion pipeline
	pipeline := ingest.NewPipeline(embedder, client, ingest.Config{
		BatchSize: batchSize,
		Workers:   workers,
	})

	// Create progress bar
	bar := progressbar.NewOptions64(
		int64(cat.Len()),
		progressbar.OptionSetDescription("Ingesting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("books"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)

	// Progress callback
	var lastDone int64
	progressFn := func(stats ingest.Stats) {
		current := stats.UploadedVectors + stats.FailedVectors + stats.SkippedBooks
		delta := current - lastDone
		if delta > 0 {
			_ = bar.Add64(delta)
			lastDone = current
		}
	}

	// Run ingestion
	fmt.Fprintln(os.Stderr, "Starting ingestion...")
	stats, err := pipeline.IngestCatalog(ctx, cat, progressFn)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	// Print summary; in verbose mode also confirm what the index holds now
	indexCount := int64(-1)
	if verbose {
		if count, err := client.VectorCount(ctx); err == nil {
			indexCount = count
		}
	}
	printIngestSummary(stats, client.GetStats(), indexCount, verbose)

	if stats.FailedVectors > 0 {
		return fmt.Errorf("%d vectors failed to upload", stats.FailedVectors)
	}

	return nil
}

func printIngestSummary(stats *ingest.Stats, upstream pc.Stats, indexCount int64, verbose bool) {
	fmt.Println()
	fmt.Println("=== Ingest Complete ===")
	fmt.Println()
	fmt.Printf("Books embedded:      %d\n", stats.EmbeddedBooks)
	fmt.Printf("Books skipped:       %d\n", stats.SkippedBooks)
	fmt.Printf("Vectors uploaded:    %d\n", stats.UploadedVectors)
	fmt.Printf("Vectors failed:      %d\n", stats.FailedVectors)
	fmt.Printf("Batches processed:   %d\n", stats.BatchesProcessed)
	fmt.Printf("Duration:            %v\n", stats.Duration().Round(time.Millisecond))
	fmt.Printf("Throughput:          %.0f vectors/sec\n", stats.VectorsPerSecond())
	if verbose {
		fmt.Printf("Upsert retries:      %d\n", upstream.RetryCount)
		if indexCount >= 0 {
			fmt.Printf("Index now holds:     %d vectors\n", indexCount)
		}
	}
	fmt.Println()
}
