package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/cache"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/catalog"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/config"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/embedding"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/embedding/openai"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/ratelimit"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/recommend"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search the catalog from the command line",
	Long: `Runs one semantic search against the vector database and prints
the ranked recommendations. Useful for testing filters and tuning
ranking parameters without starting the server.

Example:
  bookrec search "a story about forgiveness" --index books --tone Happy

Requires PINECONE_API_KEY and OPENAI_API_KEY environment variables.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	// Backend settings
	searchCmd.Flags().String("backend", "pinecone", "Vector DB backend (pinecone, qdrant, memory)")
	searchCmd.Flags().StringP("index", "i", "", "Index/collection name")
	searchCmd.Flags().String("api-key", "", "Vector DB API key")
	searchCmd.Flags().String("db-host", "", "Vector DB host (for Qdrant)")
	searchCmd.Flags().StringP("namespace", "n", "", "Namespace")

	// Embedding settings
	searchCmd.Flags().String("openai-key", "", "OpenAI API key")
	searchCmd.Flags().String("embedding-model", "text-embedding-3-small", "Embedding model")

	// Catalog and filter settings
	searchCmd.Flags().String("catalog", "books_with_emotions.csv", "Path to the book catalog CSV")
	searchCmd.Flags().StringP("category", "c", "All", "Category filter")
	searchCmd.Flags().StringP("tone", "t", "All", "Tone ranking (All, Happy, Surprising, Angry, Suspenseful, Sad)")
	searchCmd.Flags().Int("top-k", 50, "Number of vector matches fetched before filtering")
	searchCmd.Flags().Int("final-k", 16, "Number of recommendations returned")

	// Output settings
	searchCmd.Flags().Bool("json", false, "Print results as JSON")
	searchCmd.Flags().Bool("show-description", true, "Show book descriptions")
	searchCmd.Flags().Bool("show-stats", true, "Show processing statistics")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	// Get flags
	backend, _ := cmd.Flags().GetString("backend")
	index, _ := cmd.Flags().GetString("index")
	apiKey, _ := cmd.Flags().GetString("api-key")
	dbHost, _ := cmd.Flags().GetString("db-host")
	namespace, _ := cmd.Flags().GetString("namespace")
	openaiKey, _ := cmd.Flags().GetString("openai-key")
	embeddingModel, _ := cmd.Flags().GetString("embedding-model")
	catalogPath, _ := cmd.Flags().GetString("catalog")
	category, _ := cmd.Flags().GetString("category")
	tone, _ := cmd.Flags().GetString("tone")
	topK, _ := cmd.Flags().GetInt("top-k")
	finalK, _ := cmd.Flags().GetInt("final-k")
	jsonOut, _ := cmd.Flags().GetBool("json")
	showDescription, _ := cmd.Flags().GetBool("show-description")
	showStats, _ := cmd.Flags().GetBool("show-stats")

	// Resolve API key from environment
	if openaiKey == "" {
		openaiKey = os.Getenv("OPENAI_API_KEY")
	}
	if openaiKey == "" {
		return fmt.Errorf("OpenAI API key required (--openai-key or OPENAI_API_KEY)")
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nCancelled")
		cancel()
	}()

	// Load the catalog
	cat, err := catalog.Load(catalogPath)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	// Embedding provider with rate limiting and caching
	limiter := ratelimit.New(ratelimit.DefaultConfig())
	store := cache.NewMemoryCache(cache.DefaultConfig())
	defer store.Close()

	base, err := openai.NewClient(openai.Config{
		APIKey: openaiKey,
		Model:  embeddingModel,
	})
	if err != nil {
		return fmt.Errorf("creating OpenAI client: %w", err)
	}
	limited := embedding.NewLimitedProvider(base, limiter, embedding.LimitedConfig{})
	embedder := embedding.NewCachedProvider(limited, store, 0)

	// Vector store
	cfg := config.DefaultConfig()
	cfg.Retriever.Backend = backend
	cfg.Retriever.Index = index
	cfg.Retriever.Host = dbHost
	cfg.Retriever.Namespace = namespace
	ret, err := buildServeRetriever(ctx, cfg, apiKey, cat, embedder)
	if err != nil {
		return err
	}

	rec, err := recommend.NewRecommender(recommend.Deps{
		Catalog:   cat,
		Retriever: ret,
		Embedder:  embedder,
		Cache:     store,
	}, recommend.Config{
		InitialK:  topK,
		FinalK:    finalK,
		Namespace: namespace,
	})
	if err != nil {
		return fmt.Errorf("creating recommender: %w", err)
	}
	defer func() { _ = rec.Close() }()

	fmt.Fprintf(os.Stderr, "Searching for: %s\n\n", query)

	result, err := rec.Search(ctx, types.SearchRequest{
		Query:    query,
		Category: category,
		Tone:     tone,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(toSearchResponse(result))
	}

	// Display results
	if len(result.Recommendations) == 0 {
		fmt.Println("No recommendations found.")
		return nil
	}

	fmt.Printf("=== Recommendations (%d books) ===\n\n", len(result.Recommendations))

	for i, r := range result.Recommendations {
		fmt.Printf("[%d] %s\n", i+1, r.Book.Title)
		fmt.Printf("    by %s", r.AuthorsText)
		if r.Book.PublishedYear > 0 {
			fmt.Printf(" (%d)", r.Book.PublishedYear)
		}
		fmt.Println()

		fmt.Printf("    Score: %.4f  |  Category: %s", r.Score, r.Book.Category)
		if tone != recommend.ToneAll {
			fmt.Printf("  |  %s: %.3f", tone, recommend.ToneScore(&r.Book, tone))
		}
		fmt.Println()

		if showDescription && r.ShortDescription != "" {
			fmt.Printf("    %s\n", r.ShortDescription)
		}

		fmt.Println()
	}

	// Display stats
	if showStats {
		fmt.Println("=== Statistics ===")
		fmt.Printf("Retrieved:    %d matches\n", result.Stats.Retrieved)
		if result.Stats.Skipped > 0 {
			fmt.Printf("Skipped:      %d\n", result.Stats.Skipped)
		}
		fmt.Printf("Returned:     %d books\n", result.Stats.Returned)
		if result.Cached {
			fmt.Println("Cache:        hit")
		} else {
			fmt.Printf("Embedding:    %dms\n", result.Stats.EmbeddingLatency.Milliseconds())
			fmt.Printf("Retrieval:    %dms\n", result.Stats.RetrievalLatency.Milliseconds())
		}
		fmt.Printf("Total:        %dms\n", result.Stats.TotalLatency.Milliseconds())
	}

	return nil
}
