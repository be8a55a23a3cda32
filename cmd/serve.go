package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/cache"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/catalog"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/config"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/embedding"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/embedding/openai"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/history"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/ingest"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/metrics"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/ratelimit"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/recommend"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/retriever"
	memretriever "github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/retriever/memory"
	pcretriever "github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/retriever/pinecone"
	qdretriever "github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/retriever/qdrant"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/sse"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/telemetry"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recommendation HTTP server",
	Long: `Starts an HTTP server that answers semantic book searches over
the embedded catalog.

Example:
  bookrec serve --port 8080 --backend pinecone --index books

The server exposes:
  POST /v1/search         - Semantic search with category/tone filters
  GET  /v1/search/stream  - Same search, streamed as SSE progress events
  GET  /v1/similar        - Books similar to a given ISBN-13
  GET  /v1/categories     - Available category filters
  GET  /v1/tones          - Available tone rankings
  GET  /v1/history        - Recent searches for a user
  GET  /v1/favorites      - Saved books (POST to add, DELETE to remove)
  GET  /v1/status         - Rate limiter and cache statistics
  POST /v1/cache/clear    - Drop all cached results
  GET  /health            - Health check
  GET  /metrics           - Prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server settings
	serveCmd.Flags().IntP("port", "p", 8080, "HTTP server port")
	serveCmd.Flags().String("host", "0.0.0.0", "HTTP server host")

	// Backend settings
	serveCmd.Flags().String("backend", "pinecone", "Vector DB backend (pinecone, qdrant, memory)")
	serveCmd.Flags().StringP("index", "i", "", "Index/collection name")
	serveCmd.Flags().String("api-key", "", "Vector DB API key (or use PINECONE_API_KEY)")
	serveCmd.Flags().String("db-host", "", "Vector DB host (for Qdrant)")
	serveCmd.Flags().StringP("namespace", "n", "", "Default namespace")

	// Embedding settings
	serveCmd.Flags().String("openai-key", "", "OpenAI API key for embeddings (or use OPENAI_API_KEY)")
	serveCmd.Flags().String("embedding-model", "text-embedding-3-small", "OpenAI embedding model")

	// Catalog and search settings
	serveCmd.Flags().String("catalog", "books_with_emotions.csv", "Path to the book catalog CSV")
	serveCmd.Flags().Int("top-k", 50, "Number of vector matches fetched before filtering")
	serveCmd.Flags().Int("final-k", 16, "Number of recommendations returned")
	serveCmd.Flags().Duration("cache-ttl", time.Hour, "How long search results stay cached")

	// History settings
	serveCmd.Flags().String("history-db", "bookrec.db", "Path to the SQLite history database")
	serveCmd.Flags().Bool("no-history", false, "Disable search history and favorites")

	// Auth settings
	serveCmd.Flags().String("api-keys", "", "Comma-separated API keys (or use BOOKREC_API_KEYS); empty disables auth")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	// Catalog
	fmt.Printf("Loading catalog from %s...\n", cfg.Catalog.Path)
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	fmt.Printf("Loaded %d books (%d rows skipped)\n", cat.Len(), cat.Skipped())

	// Shared infrastructure
	m := metrics.New()
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		RequestsPerDay:    cfg.RateLimit.RequestsPerDay,
	})
	store := cache.NewMemoryCache(cache.Config{DefaultTTL: cfg.Search.CacheTTL})

	// Embedding provider: OpenAI wrapped in rate limiting and caching
	openaiKey, _ := cmd.Flags().GetString("openai-key")
	if openaiKey == "" {
		openaiKey = os.Getenv("OPENAI_API_KEY")
	}
	if openaiKey == "" {
		return fmt.Errorf("OpenAI API key required (--openai-key or OPENAI_API_KEY)")
	}
	base, err := openai.NewClient(openai.Config{
		APIKey: openaiKey,
		Model:  cfg.Embedding.Model,
	})
	if err != nil {
		return fmt.Errorf("creating OpenAI client: %w", err)
	}
	limited := embedding.NewLimitedProvider(base, limiter, embedding.LimitedConfig{
		MaxAttempts: cfg.Embedding.MaxAttempts,
		RetryDelay:  cfg.Embedding.RetryDelay,
		MaxWait:     cfg.Embedding.MaxWait,
		BatchSize:   cfg.Embedding.BatchSize,
		OnOutcome:   func(o embedding.Outcome) { m.RecordEmbeddingOutcome(o.String()) },
		OnWait:      func(time.Duration) { m.RecordRateLimitWait() },
	})
	embedder := embedding.NewCachedProvider(limited, store, 24*cfg.Search.CacheTTL)

	// Vector store
	dbKey, _ := cmd.Flags().GetString("api-key")
	ret, err := buildServeRetriever(ctx, cfg, dbKey, cat, embedder)
	if err != nil {
		return err
	}

	// Search history (optional)
	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("opening history database: %w", err)
		}
	}

	// Tracing
	tel, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:    cfg.Telemetry.Tracing.Enabled,
		Exporter:   cfg.Telemetry.Tracing.Exporter,
		Endpoint:   cfg.Telemetry.Tracing.Endpoint,
		SampleRate: cfg.Telemetry.Tracing.SampleRate,
		Insecure:   cfg.Telemetry.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	deps := recommend.Deps{
		Catalog:   cat,
		Retriever: ret,
		Embedder:  embedder,
		Cache:     store,
		Telemetry: tel,
	}
	if hist != nil {
		deps.History = hist
	}
	rec, err := recommend.NewRecommender(deps, recommend.Config{
		InitialK:  cfg.Search.TopK,
		FinalK:    cfg.Search.FinalK,
		CacheTTL:  cfg.Search.CacheTTL,
		Namespace: cfg.Retriever.Namespace,
	})
	if err != nil {
		return fmt.Errorf("creating recommender: %w", err)
	}

	// API keys: flag/config first, then environment
	validKeys := make(map[string]bool)
	authKeys := cfg.Auth.APIKeys
	if len(authKeys) == 0 {
		authKeys = splitKeys(os.Getenv("BOOKREC_API_KEYS"))
	}
	for _, k := range authKeys {
		validKeys[k] = true
	}

	srv := &apiServer{
		cfg:       cfg,
		rec:       rec,
		cat:       cat,
		limiter:   limiter,
		cache:     store,
		history:   hist,
		metrics:   m,
		validKeys: validKeys,
		startedAt: time.Now(),
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	fmt.Printf("\nbookrec server listening on http://%s\n", addr)
	fmt.Printf("  Backend:  %s", cfg.Retriever.Backend)
	if cfg.Retriever.Index != "" {
		fmt.Printf(" (%s)", cfg.Retriever.Index)
	}
	fmt.Println()
	fmt.Printf("  Model:    %s\n", cfg.Embedding.Model)
	fmt.Printf("  Catalog:  %d books\n", cat.Len())
	if hist != nil {
		fmt.Printf("  History:  %s\n", cfg.History.Path)
	} else {
		fmt.Println("  History:  disabled")
	}
	if len(validKeys) > 0 {
		fmt.Printf("  Auth:     %d API key(s)\n", len(validKeys))
	} else {
		fmt.Println("  Auth:     disabled (no API keys configured)")
	}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
	}
	if err := rec.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing retriever: %v\n", err)
	}
	if hist != nil {
		hist.Close()
	}
	store.Close()
	if err := tel.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error shutting down tracing: %v\n", err)
	}
	fmt.Println("Server stopped")

	return nil
}

// applyServeFlags overlays explicitly set flags on top of the loaded
// configuration, so the config file provides defaults and flags win.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("backend") {
		cfg.Retriever.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("index") {
		cfg.Retriever.Index, _ = flags.GetString("index")
	}
	if flags.Changed("db-host") {
		cfg.Retriever.Host, _ = flags.GetString("db-host")
	}
	if flags.Changed("namespace") {
		cfg.Retriever.Namespace, _ = flags.GetString("namespace")
	}
	if flags.Changed("embedding-model") {
		cfg.Embedding.Model, _ = flags.GetString("embedding-model")
	}
	if flags.Changed("catalog") {
		cfg.Catalog.Path, _ = flags.GetString("catalog")
	}
	if flags.Changed("top-k") {
		cfg.Search.TopK, _ = flags.GetInt("top-k")
	}
	if flags.Changed("final-k") {
		cfg.Search.FinalK, _ = flags.GetInt("final-k")
	}
	if flags.Changed("cache-ttl") {
		cfg.Search.CacheTTL, _ = flags.GetDuration("cache-ttl")
	}
	if flags.Changed("history-db") {
		cfg.History.Path, _ = flags.GetString("history-db")
	}
	if flags.Changed("no-history") {
		disabled, _ := flags.GetBool("no-history")
		cfg.History.Enabled = !disabled
	}
	if flags.Changed("api-keys") {
		raw, _ := flags.GetString("api-keys")
		cfg.Auth.APIKeys = splitKeys(raw)
	}
}

// buildServeRetriever connects to the configured vector backend. The
// memory backend has no external store to connect to, so it embeds the
// whole catalog at startup instead.
func buildServeRetriever(ctx context.Context, cfg *config.Config, dbKey string, cat *catalog.Catalog, embedder embedding.Provider) (retriever.Retriever, error) {
	switch cfg.Retriever.Backend {
	case "pinecone":
		if dbKey == "" {
			dbKey = os.Getenv("PINECONE_API_KEY")
		}
		if dbKey == "" {
			return nil, fmt.Errorf("Pinecone API key required (--api-key or PINECONE_API_KEY)")
		}
		if cfg.Retriever.Index == "" {
			return nil, fmt.Errorf("index name required (--index)")
		}
		return pcretriever.NewClient(ctx, pcretriever.Config{
			Config: retriever.Config{
				APIKey:           dbKey,
				DefaultNamespace: cfg.Retriever.Namespace,
			},
			IndexName: cfg.Retriever.Index,
		})

	case "qdrant":
		host := cfg.Retriever.Host
		if host == "" {
			host = os.Getenv("QDRANT_URL")
		}
		if host == "" {
			host = "localhost"
		}
		if dbKey == "" {
			dbKey = os.Getenv("QDRANT_API_KEY")
		}
		if cfg.Retriever.Index == "" {
			return nil, fmt.Errorf("collection name required (--index)")
		}
		return qdretriever.NewClient(ctx, qdretriever.Config{
			Config: retriever.Config{
				APIKey:           dbKey,
				Host:             host,
				DefaultNamespace: cfg.Retriever.Namespace,
			},
			Collection: cfg.Retriever.Index,
		})

	case "memory":
		st := memretriever.New()
		fmt.Fprintln(os.Stderr, "Building in-memory vector index (embeds the whole catalog, this may take a while)...")
		pipe := ingest.NewPipeline(embedder, ingest.StoreUpserter(st, cfg.Retriever.Namespace), ingest.Config{
			BatchSize: cfg.Embedding.BatchSize,
		})
		stats, err := pipe.IngestCatalog(ctx, cat, nil)
		if err != nil {
			return nil, fmt.Errorf("building in-memory index: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Indexed %d books in %s\n", stats.EmbeddedBooks, stats.Duration().Round(time.Millisecond))
		return st, nil

	default:
		return nil, fmt.Errorf("unknown backend: %s (use pinecone, qdrant, or memory)", cfg.Retriever.Backend)
	}
}

func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// apiServer holds the request-handling state for the HTTP API.
type apiServer struct {
	cfg       *config.Config
	rec       *recommend.Recommender
	cat       *catalog.Catalog
	limiter   *ratelimit.Limiter
	cache     cache.Cache
	history   *history.Store
	metrics   *metrics.Metrics
	validKeys map[string]bool
	startedAt time.Time
}

func (s *apiServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	s.handle(mux, "/v1/search", s.handleSearch)
	s.handle(mux, "/v1/search/stream", s.handleSearchStream)
	s.handle(mux, "/v1/similar", s.handleSimilar)
	s.handle(mux, "/v1/categories", s.handleCategories)
	s.handle(mux, "/v1/tones", s.handleTones)
	s.handle(mux, "/v1/history", s.handleHistory)
	s.handle(mux, "/v1/favorites", s.handleFavorites)
	s.handle(mux, "/v1/status", s.handleStatus)
	s.handle(mux, "/v1/cache/clear", s.handleCacheClear)
	mux.HandleFunc("/health", corsMiddleware(s.handleHealth))
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/", corsMiddleware(s.handleRoot))
	return mux
}

// handle wires the standard middleware chain: CORS, then metrics, then
// auth, then the handler itself.
func (s *apiServer) handle(mux *http.ServeMux, path string, h http.HandlerFunc) {
	mux.HandleFunc(path, corsMiddleware(s.metrics.Middleware(path, s.requireAuth(h))))
}

func (s *apiServer) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// No configured keys means the server runs open.
		if len(s.validKeys) == 0 {
			next(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}
		key := strings.TrimPrefix(auth, "Bearer ")
		if !s.validKeys[key] {
			writeJSONError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next(w, r)
	}
}

func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// Request/response DTOs.

type searchRequest struct {
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`
	Tone     string `json:"tone,omitempty"`
	TopK     int    `json:"top_k,omitempty"`
	FinalK   int    `json:"final_k,omitempty"`
	User     string `json:"user,omitempty"`
}

type bookResponse struct {
	ISBN13      int64   `json:"isbn13"`
	Title       string  `json:"title"`
	Authors     string  `json:"authors"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	CoverURL    string  `json:"cover_url"`
	Score       float32 `json:"score"`
	Joy         float64 `json:"joy"`
	Surprise    float64 `json:"surprise"`
	Anger       float64 `json:"anger"`
	Fear        float64 `json:"fear"`
	Sadness     float64 `json:"sadness"`
}

type searchStatsResponse struct {
	Retrieved          int   `json:"retrieved"`
	Skipped            int   `json:"skipped"`
	Returned           int   `json:"returned"`
	EmbeddingLatencyMs int64 `json:"embedding_latency_ms"`
	RetrievalLatencyMs int64 `json:"retrieval_latency_ms"`
	TotalLatencyMs     int64 `json:"total_latency_ms"`
}

type searchResponse struct {
	Recommendations []bookResponse      `json:"recommendations"`
	Count           int                 `json:"count"`
	Cached          bool                `json:"cached"`
	Stats           searchStatsResponse `json:"stats"`
}

type historyEntry struct {
	Query       string    `json:"query"`
	Category    string    `json:"category"`
	Tone        string    `json:"tone"`
	ResultCount int       `json:"result_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type favoriteRequest struct {
	User   string `json:"user,omitempty"`
	ISBN13 int64  `json:"isbn13"`
}

type favoriteEntry struct {
	ISBN13   int64     `json:"isbn13"`
	Title    string    `json:"title,omitempty"`
	Authors  string    `json:"authors,omitempty"`
	CoverURL string    `json:"cover_url,omitempty"`
	AddedAt  time.Time `json:"added_at"`
}

type statusResponse struct {
	Status        string          `json:"status"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Backend       string          `json:"backend"`
	Books         int             `json:"books"`
	RateLimit     rateLimitStatus `json:"rate_limit"`
	Cache         cacheStatus     `json:"cache"`
}

type rateLimitStatus struct {
	RequestsThisMinute int       `json:"requests_this_minute"`
	MinuteLimit        int       `json:"minute_limit"`
	RequestsToday      int       `json:"requests_today"`
	DailyLimit         int       `json:"daily_limit"`
	DailyResetAt       time.Time `json:"daily_reset_at"`
}

type cacheStatus struct {
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	Entries        int64   `json:"entries"`
	HitRatePercent float64 `json:"hit_rate_percent"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toSearchResponse(result *types.SearchResult) searchResponse {
	recs := make([]bookResponse, 0, len(result.Recommendations))
	for _, r := range result.Recommendations {
		recs = append(recs, toBookResponse(r))
	}
	return searchResponse{
		Recommendations: recs,
		Count:           len(recs),
		Cached:          result.Cached,
		Stats:           toStatsResponse(result.Stats),
	}
}

func toBookResponse(r types.Recommendation) bookResponse {
	return bookResponse{
		ISBN13:      r.Book.ISBN13,
		Title:       r.Book.Title,
		Authors:     r.AuthorsText,
		Description: r.ShortDescription,
		Category:    r.Book.Category,
		CoverURL:    r.CoverURL,
		Score:       r.Score,
		Joy:         r.Book.Joy,
		Surprise:    r.Book.Surprise,
		Anger:       r.Book.Anger,
		Fear:        r.Book.Fear,
		Sadness:     r.Book.Sadness,
	}
}

func toStatsResponse(st types.SearchStats) searchStatsResponse {
	return searchStatsResponse{
		Retrieved:          st.Retrieved,
		Skipped:            st.Skipped,
		Returned:           st.Returned,
		EmbeddingLatencyMs: st.EmbeddingLatency.Milliseconds(),
		RetrievalLatencyMs: st.RetrievalLatency.Milliseconds(),
		TotalLatencyMs:     st.TotalLatency.Milliseconds(),
	}
}

// Handlers.

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	result, err := s.rec.Search(r.Context(), types.SearchRequest{
		Query:    req.Query,
		Category: req.Category,
		Tone:     req.Tone,
		InitialK: req.TopK,
		FinalK:   req.FinalK,
		UserID:   req.User,
	})
	if err != nil {
		s.metrics.RecordSearch(metrics.SearchError)
		s.writeSearchError(w, err)
		return
	}

	s.recordSearchMetrics(result)
	writeJSON(w, http.StatusOK, toSearchResponse(result))
}

// stageProgress maps pipeline stages to an approximate completion
// fraction for SSE progress events.
var stageProgress = map[sse.Stage]float64{
	sse.StageCache:     0.1,
	sse.StageEmbedding: 0.3,
	sse.StageRetrieval: 0.6,
	sse.StageRanking:   0.9,
}

func (s *apiServer) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	req := types.SearchRequest{
		Query:    q.Get("query"),
		Category: q.Get("category"),
		Tone:     q.Get("tone"),
		UserID:   q.Get("user"),
	}
	if v := q.Get("final_k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "final_k must be an integer")
			return
		}
		req.FinalK = k
	}

	sw := sse.NewWriter(w)
	if sw == nil {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	lastStage := sse.StageCache
	result, err := s.rec.SearchWithProgress(r.Context(), req, func(stage string) {
		st := sse.Stage(stage)
		lastStage = st
		sw.SendProgress(st, stageProgress[st])
	})
	if err != nil {
		s.metrics.RecordSearch(metrics.SearchError)
		sw.SendError(lastStage, err.Error())
		return
	}

	s.recordSearchMetrics(result)
	resp := toSearchResponse(result)
	sw.SendComplete(resp.Recommendations, resp.Stats)
}

func (s *apiServer) handleSimilar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raw := r.URL.Query().Get("isbn13")
	if raw == "" {
		writeJSONError(w, http.StatusBadRequest, "isbn13 query parameter required")
		return
	}
	isbn, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "isbn13 must be an integer")
		return
	}

	k := 0
	if v := r.URL.Query().Get("k"); v != "" {
		k, err = strconv.Atoi(v)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "k must be an integer")
			return
		}
	}

	result, err := s.rec.SimilarByISBN(r.Context(), isbn, k)
	if err != nil {
		s.writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSearchResponse(result))
}

func (s *apiServer) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"categories": s.rec.Categories()})
}

func (s *apiServer) handleTones(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tones": recommend.Tones()})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.history == nil {
		writeJSONError(w, http.StatusNotFound, "history is disabled")
		return
	}

	user := r.URL.Query().Get("user")
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.history.RecentSearches(r.Context(), user, limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("reading history: %v", err))
		return
	}

	entries := make([]historyEntry, 0, len(records))
	for _, sr := range records {
		entries = append(entries, historyEntry{
			Query:       sr.Query,
			Category:    sr.Category,
			Tone:        sr.Tone,
			ResultCount: sr.ResultCount,
			CreatedAt:   sr.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"searches": entries})
}

func (s *apiServer) handleFavorites(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSONError(w, http.StatusNotFound, "favorites are disabled")
		return
	}

	switch r.Method {
	case http.MethodGet:
		user := r.URL.Query().Get("user")
		favs, err := s.history.ListFavorites(r.Context(), user)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("reading favorites: %v", err))
			return
		}
		entries := make([]favoriteEntry, 0, len(favs))
		for _, f := range favs {
			e := favoriteEntry{ISBN13: f.ISBN13, AddedAt: f.CreatedAt}
			if b, ok := s.cat.Get(f.ISBN13); ok {
				e.Title = b.Title
				e.Authors = catalog.FormatAuthors(b.Authors)
				e.CoverURL = catalog.CoverURL(b.Thumbnail)
			}
			entries = append(entries, e)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"favorites": entries})

	case http.MethodPost:
		var req favoriteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if req.ISBN13 <= 0 {
			writeJSONError(w, http.StatusBadRequest, "isbn13 is required")
			return
		}
		if _, ok := s.cat.Get(req.ISBN13); !ok {
			writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no book with isbn13 %d", req.ISBN13))
			return
		}
		if err := s.history.AddFavorite(r.Context(), req.User, req.ISBN13); err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("saving favorite: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "added"})

	case http.MethodDelete:
		user := r.URL.Query().Get("user")
		raw := r.URL.Query().Get("isbn13")
		if raw == "" {
			writeJSONError(w, http.StatusBadRequest, "isbn13 query parameter required")
			return
		}
		isbn, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "isbn13 must be an integer")
			return
		}
		removed, err := s.history.RemoveFavorite(r.Context(), user, isbn)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("removing favorite: %v", err))
			return
		}
		if !removed {
			writeJSONError(w, http.StatusNotFound, fmt.Sprintf("isbn13 %d is not a favorite", isbn))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})

	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	st := s.limiter.Status()
	cs := s.cache.Stats()
	writeJSON(w, http.StatusOK, statusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Backend:       s.cfg.Retriever.Backend,
		Books:         s.cat.Len(),
		RateLimit: rateLimitStatus{
			RequestsThisMinute: st.RequestsThisMinute,
			MinuteLimit:        st.MinuteLimit,
			RequestsToday:      st.RequestsToday,
			DailyLimit:         st.DailyLimit,
			DailyResetAt:       st.DailyResetAt,
		},
		Cache: cacheStatus{
			Hits:           cs.Hits,
			Misses:         cs.Misses,
			Entries:        cs.Size,
			HitRatePercent: cs.HitRate(),
		},
	})
}

func (s *apiServer) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.cache.Clear(r.Context()); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("clearing cache: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "bookrec",
		"books":   s.cat.Len(),
	})
}

func (s *apiServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":     "bookrec",
		"description": "Semantic book recommendations with emotional tone ranking",
		"endpoints": map[string]string{
			"POST /v1/search":        "Semantic search with category/tone filters",
			"GET /v1/search/stream":  "Search streamed as SSE progress events",
			"GET /v1/similar":        "Books similar to a given ISBN-13",
			"GET /v1/categories":     "Available category filters",
			"GET /v1/tones":          "Available tone rankings",
			"GET /v1/history":        "Recent searches for a user",
			"GET /v1/favorites":      "Saved books (POST to add, DELETE to remove)",
			"GET /v1/status":         "Rate limiter and cache statistics",
			"POST /v1/cache/clear":   "Drop all cached results",
			"GET /health":            "Health check",
			"GET /metrics":           "Prometheus metrics",
		},
	})
}

func (s *apiServer) recordSearchMetrics(result *types.SearchResult) {
	if result.Cached {
		s.metrics.RecordSearch(metrics.SearchHit)
	} else {
		s.metrics.RecordSearch(metrics.SearchMiss)
	}
	s.metrics.RecordSearchStats(result.Stats.Skipped, result.Stats.EmbeddingLatency, result.Stats.RetrievalLatency, result.Stats.TotalLatency)
}

// writeSearchError maps pipeline errors to HTTP status codes: invalid
// input is the client's fault, rate limiting says when to come back,
// and embedding provider failures are an upstream problem.
func (s *apiServer) writeSearchError(w http.ResponseWriter, err error) {
	var vErr *types.ValidationError
	var rlErr *types.RateLimitError
	var eErr *types.EmbeddingError

	switch {
	case errors.As(err, &vErr):
		writeJSONError(w, http.StatusBadRequest, vErr.Error())
	case errors.As(err, &rlErr):
		if rlErr.RetryAfter > 0 {
			seconds := int(rlErr.RetryAfter/time.Second) + 1
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
		}
		writeJSONError(w, http.StatusTooManyRequests, rlErr.Error())
	case errors.As(err, &eErr):
		writeJSONError(w, http.StatusBadGateway, eErr.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
