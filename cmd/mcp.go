package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
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

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start bookrec as an MCP server",
	Long: `Starts bookrec as a Model Context Protocol (MCP) server.

This allows AI assistants like Claude, Amp, and Cursor to recommend
books from the catalog directly.

Transports:
  stdio (default) - For local desktop apps (Claude Desktop, Cursor)
  http            - For remote/cloud deployments (hosted MCP server)

Tools exposed:
  recommend_books     - Semantic search with category/tone filters
  similar_books       - Books similar to a given ISBN-13
  list_filter_options - Available categories and tones

Resources exposed:
  bookrec://catalog/summary - Catalog size and category counts

Example:
  # Local stdio server (Claude Desktop, Cursor, Amp)
  bookrec mcp --backend pinecone --index books

  # Remote HTTP server (hosted deployment)
  bookrec mcp --transport http --port 8081 --backend pinecone --index books

Configure in Claude Desktop (claude_desktop_config.json):
  {
    "mcpServers": {
      "bookrec": {
        "command": "bookrec",
        "args": ["mcp", "--backend", "pinecone", "--index", "books"]
      }
    }
  }

For remote MCP server:
  {
    "mcpServers": {
      "bookrec": {
        "url": "https://your-server.fly.dev/mcp"
      }
    }
  }`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	// Transport settings
	mcpCmd.Flags().String("transport", "stdio", "Transport type: stdio or http")
	mcpCmd.Flags().Int("port", 8081, "HTTP server port (for http transport)")
	mcpCmd.Flags().String("host", "0.0.0.0", "HTTP server host (for http transport)")

	// Backend settings (optional - without them only list_filter_options works)
	mcpCmd.Flags().String("backend", "", "Vector DB backend (pinecone, qdrant, memory)")
	mcpCmd.Flags().StringP("index", "i", "", "Index/collection name")
	mcpCmd.Flags().String("api-key", "", "Vector DB API key (or use PINECONE_API_KEY)")
	mcpCmd.Flags().String("db-host", "", "Vector DB host (for Qdrant)")
	mcpCmd.Flags().StringP("namespace", "n", "", "Default namespace")

	// Embedding settings
	mcpCmd.Flags().String("openai-key", "", "OpenAI API key for embeddings (or use OPENAI_API_KEY)")
	mcpCmd.Flags().String("embedding-model", "text-embedding-3-small", "OpenAI embedding model")

	// Catalog and search settings
	mcpCmd.Flags().String("catalog", "books_with_emotions.csv", "Path to the book catalog CSV")
	mcpCmd.Flags().Int("top-k", 50, "Number of vector matches fetched before filtering")
	mcpCmd.Flags().Int("final-k", 16, "Default number of recommendations")
}

// MCPServer exposes the recommender over the Model Context Protocol.
type MCPServer struct {
	rec *recommend.Recommender
	cat *catalog.Catalog
	cfg recommend.Config
}

func runMCP(cmd *cobra.Command, args []string) error {
	// Get flags
	transport, _ := cmd.Flags().GetString("transport")
	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")
	backend, _ := cmd.Flags().GetString("backend")
	index, _ := cmd.Flags().GetString("index")
	apiKey, _ := cmd.Flags().GetString("api-key")
	dbHost, _ := cmd.Flags().GetString("db-host")
	namespace, _ := cmd.Flags().GetString("namespace")
	openaiKey, _ := cmd.Flags().GetString("openai-key")
	embeddingModel, _ := cmd.Flags().GetString("embedding-model")
	catalogPath, _ := cmd.Flags().GetString("catalog")
	topK, _ := cmd.Flags().GetInt("top-k")
	finalK, _ := cmd.Flags().GetInt("final-k")

	// Resolve API key from environment
	if openaiKey == "" {
		openaiKey = os.Getenv("OPENAI_API_KEY")
	}

	ctx := context.Background()

	// The catalog backs every tool, so it always loads. Progress goes to
	// stderr: stdout belongs to the stdio transport.
	fmt.Fprintf(os.Stderr, "Loading catalog from %s...\n", catalogPath)
	cat, err := catalog.Load(catalogPath)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Loaded %d books\n", cat.Len())

	mcpSrv := &MCPServer{
		cat: cat,
		cfg: recommend.Config{
			InitialK:  topK,
			FinalK:    finalK,
			Namespace: namespace,
		},
	}

	// Build the recommender when a backend is configured. Without one
	// only list_filter_options and the catalog resource are available.
	if backend != "" {
		if openaiKey == "" {
			return fmt.Errorf("OpenAI API key required (--openai-key or OPENAI_API_KEY)")
		}

		base, err := openai.NewClient(openai.Config{
			APIKey: openaiKey,
			Model:  embeddingModel,
		})
		if err != nil {
			return fmt.Errorf("creating OpenAI client: %w", err)
		}
		limiter := ratelimit.New(ratelimit.DefaultConfig())
		store := cache.NewMemoryCache(cache.DefaultConfig())
		defer store.Close()
		limited := embedding.NewLimitedProvider(base, limiter, embedding.LimitedConfig{})
		embedder := embedding.NewCachedProvider(limited, store, 0)

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
		}, mcpSrv.cfg)
		if err != nil {
			return fmt.Errorf("creating recommender: %w", err)
		}
		defer func() { _ = rec.Close() }()
		mcpSrv.rec = rec
	}

	// Create MCP server with capabilities
	s := server.NewMCPServer(
		"bookrec",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(false),
	)

	// Register tools, resources, and prompts
	mcpSrv.registerTools(s)
	mcpSrv.registerResources(s)
	mcpSrv.registerPrompts(s)

	// Start server based on transport
	switch transport {
	case "stdio":
		if err := server.ServeStdio(s); err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}

	case "http":
		addr := fmt.Sprintf("%s:%d", host, port)
		fmt.Printf("bookrec MCP server starting on http://%s\n", addr)
		fmt.Printf("  Endpoint: http://%s/mcp\n", addr)
		fmt.Printf("  Health:   http://%s/health\n", addr)
		fmt.Println()

		// Create HTTP handler with stateful session management
		mux := http.NewServeMux()

		// Health check endpoint
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok","server":"bookrec-mcp"}`))
		})

		// MCP endpoint with stateful sessions
		mcpHandler := server.NewStreamableHTTPServer(s, server.WithStateful(true))
		mux.Handle("/mcp", mcpHandler)

		// Start HTTP server
		httpServer := &http.Server{
			Addr:    addr,
			Handler: mux,
		}

		if err := httpServer.ListenAndServe(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}

	default:
		return fmt.Errorf("unsupported transport: %s (use 'stdio' or 'http')", transport)
	}

	return nil
}

func (m *MCPServer) registerTools(s *server.MCPServer) {
	// Tool 1: list_filter_options - works without a vector DB
	filtersTool := mcp.NewTool("list_filter_options",
		mcp.WithDescription(`List the category filters and tone rankings the catalog supports.

Call this before recommend_books when the user asks for a genre or
mood, so you pass an exact filter value instead of guessing one.`),
	)

	s.AddTool(filtersTool, m.handleListFilterOptions)

	// The remaining tools need the vector backend.
	if m.rec == nil {
		return
	}

	// Tool 2: recommend_books
	// Description is action-oriented to encourage AI to use it
	recommendTool := mcp.NewTool("recommend_books",
		mcp.WithDescription(`Recommend books from a curated catalog using semantic search.

WHEN TO USE: Call this tool whenever a reader describes the kind of
book they want in natural language - a theme, a plot, a feeling.

The query is embedded and matched against ~5,000 book descriptions.
Optional filters narrow by category; an optional tone re-ranks the
matches by emotional flavor (Happy, Surprising, Angry, Suspenseful,
Sad).

INPUT: a natural-language description of the desired book
OUTPUT: ranked books with titles, authors, descriptions and covers`),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural-language description of the book the reader wants"),
		),
		mcp.WithString("category",
			mcp.Description("Category filter from list_filter_options (default: All)"),
		),
		mcp.WithString("tone",
			mcp.Description("Tone ranking: Happy, Surprising, Angry, Suspenseful or Sad (default: All)"),
		),
		mcp.WithNumber("final_k",
			mcp.Description("Number of recommendations to return (default: 16)"),
		),
	)

	s.AddTool(recommendTool, m.handleRecommendBooks)

	// Tool 3: similar_books
	similarTool := mcp.NewTool("similar_books",
		mcp.WithDescription(`Find books similar to one the reader already likes.

Looks up the book's stored vector and returns its nearest neighbors
from the catalog. Use the isbn13 values returned by recommend_books.`),
		mcp.WithNumber("isbn13",
			mcp.Required(),
			mcp.Description("ISBN-13 of the reference book"),
		),
		mcp.WithNumber("final_k",
			mcp.Description("Number of similar books to return (default: 16)"),
		),
	)

	s.AddTool(similarTool, m.handleSimilarBooks)
}

func (m *MCPServer) registerResources(s *server.MCPServer) {
	// Catalog summary resource - hosts can include this in context
	summaryResource := mcp.NewResource(
		"bookrec://catalog/summary",
		"Book Catalog Summary",
		mcp.WithResourceDescription("Catalog size, category counts and available tone rankings"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(summaryResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		counts := make(map[string]int)
		for _, b := range m.cat.Books() {
			counts[b.Category]++
		}
		summary := map[string]interface{}{
			"books":      m.cat.Len(),
			"categories": counts,
			"tones":      recommend.Tones(),
		}
		summaryJSON, _ := json.MarshalIndent(summary, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "bookrec://catalog/summary",
				MIMEType: "application/json",
				Text:     string(summaryJSON),
			},
		}, nil
	})

	// Configuration resource - shows current settings
	configResource := mcp.NewResource(
		"bookrec://config",
		"Recommender Configuration",
		mcp.WithResourceDescription("Current search configuration and defaults"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(configResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		cfg := map[string]interface{}{
			"defaults": map[string]interface{}{
				"top_k":   m.cfg.InitialK,
				"final_k": m.cfg.FinalK,
			},
			"backend_configured": m.rec != nil,
		}
		cfgJSON, _ := json.MarshalIndent(cfg, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "bookrec://config",
				MIMEType: "application/json",
				Text:     string(cfgJSON),
			},
		}, nil
	})
}

func (m *MCPServer) registerPrompts(s *server.MCPServer) {
	// Prompt for helping a reader pick their next book
	nextReadPrompt := mcp.NewPrompt(
		"find-next-read",
		mcp.WithPromptDescription("Help a reader pick their next book based on what they enjoyed"),
		mcp.WithArgument("last_book", mcp.ArgumentDescription("A book the reader recently enjoyed")),
		mcp.WithArgument("mood", mcp.ArgumentDescription("The mood the reader is in, e.g. uplifting or suspenseful")),
	)

	s.AddPrompt(nextReadPrompt, func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		lastBook := request.Params.Arguments["last_book"]
		mood := request.Params.Arguments["mood"]

		return &mcp.GetPromptResult{
			Description: "Find the reader's next book",
			Messages: []mcp.PromptMessage{
				{
					Role: mcp.RoleUser,
					Content: mcp.TextContent{
						Type: "text",
						Text: fmt.Sprintf(`I just finished and loved: %s
My current mood: %s

Please:
1. Call list_filter_options to see the available categories and tones
2. Call recommend_books with a query describing what I enjoyed about
   that book, using a tone that matches my mood
3. Present the top 3-5 suggestions with a one-line reason for each`, lastBook, mood),
					},
				},
			},
		}, nil
	})
}

func (m *MCPServer) handleListFilterOptions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result := map[string]interface{}{
		"categories": m.cat.Categories(),
		"tones":      recommend.Tones(),
	}

	resultJSON, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (m *MCPServer) handleRecommendBooks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	req := types.SearchRequest{
		Query:    query,
		Category: request.GetString("category", ""),
		Tone:     request.GetString("tone", ""),
	}
	if k := request.GetFloat("final_k", 0); k > 0 {
		req.FinalK = int(k)
	}

	result, err := m.rec.Search(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	out := map[string]interface{}{
		"books": formatBooksForResponse(result.Recommendations),
		"stats": map[string]interface{}{
			"retrieved":        result.Stats.Retrieved,
			"skipped":          result.Stats.Skipped,
			"returned":         result.Stats.Returned,
			"cached":           result.Cached,
			"total_latency_ms": result.Stats.TotalLatency.Milliseconds(),
		},
	}

	resultJSON, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (m *MCPServer) handleSimilarBooks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	isbn := request.GetFloat("isbn13", 0)
	if isbn <= 0 {
		return mcp.NewToolResultError("isbn13 parameter is required"), nil
	}

	finalK := int(request.GetFloat("final_k", 0))

	result, err := m.rec.SimilarByISBN(ctx, int64(isbn), finalK)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}

	out := map[string]interface{}{
		"books": formatBooksForResponse(result.Recommendations),
	}

	resultJSON, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func formatBooksForResponse(recs []types.Recommendation) []map[string]interface{} {
	result := make([]map[string]interface{}, len(recs))
	for i, r := range recs {
		book := map[string]interface{}{
			"isbn13":      r.Book.ISBN13,
			"title":       r.Book.Title,
			"authors":     r.AuthorsText,
			"category":    r.Book.Category,
			"description": r.ShortDescription,
			"cover_url":   r.CoverURL,
			"score":       r.Score,
			"joy":         r.Book.Joy,
			"surprise":    r.Book.Surprise,
			"anger":       r.Book.Anger,
			"fear":        r.Book.Fear,
			"sadness":     r.Book.Sadness,
		}
		result[i] = book
	}
	return result
}
