// Package recommend implements the semantic recommendation pipeline:
// embed the query through the rate-limited provider, retrieve candidate
// books from the vector store, join them against the catalog, filter by
// category, rank by tone and cache the composite result.
package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/cache"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/catalog"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/embedding"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/retriever"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/telemetry"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/types"
)

// CategoryAll disables the category filter.
const CategoryAll = "All"

// Stage names reported through the progress callback.
const (
	StageCache     = "cache"
	StageEmbedding = "embedding"
	StageRetrieval = "retrieval"
	StageRanking   = "ranking"
)

// historyTimeout bounds the fire-and-forget history write.
const historyTimeout = 5 * time.Second

// HistoryRecorder receives completed searches. Writes are best-effort:
// the pipeline drops errors and never blocks a response on them.
type HistoryRecorder interface {
	RecordSearch(ctx context.Context, userID, query, category, tone string, resultCount int) error
}

// Config holds pipeline settings.
type Config struct {
	// InitialK is the number of vector matches fetched before filtering
	InitialK int

	// FinalK is the number of recommendations returned
	FinalK int

	// CacheTTL is how long search results stay cached
	CacheTTL time.Duration

	// Namespace is the vector store namespace holding the catalog
	Namespace string
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		InitialK: 50,
		FinalK:   16,
		CacheTTL: time.Hour,
	}
}

// Deps are the collaborators a Recommender is built from. Catalog,
// Retriever, Embedder and Cache are required; History and Telemetry
// are optional.
type Deps struct {
	Catalog   *catalog.Catalog
	Retriever retriever.Retriever
	Embedder  embedding.Provider
	Cache     cache.Cache
	History   HistoryRecorder
	Telemetry *telemetry.Provider
}

// Recommender orchestrates the recommendation pipeline. It holds no
// mutable state of its own: the cache and the rate limiter synchronize
// themselves, so searches run concurrently without a pipeline lock and
// nothing is locked across embedding or retrieval calls.
type Recommender struct {
	cfg       Config
	catalog   *catalog.Catalog
	retriever retriever.Retriever
	embedder  embedding.Provider
	cache     cache.Cache
	history   HistoryRecorder
	tel       *telemetry.Provider
}

// NewRecommender creates a Recommender from explicit collaborators. It
// fails when a required collaborator is missing or the tone table is
// inconsistent.
func NewRecommender(deps Deps, cfg Config) (*Recommender, error) {
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if deps.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}

	if err := ValidateTones(); err != nil {
		return nil, err
	}

	// Apply defaults
	if cfg.InitialK <= 0 {
		cfg.InitialK = DefaultConfig().InitialK
	}
	if cfg.FinalK <= 0 {
		cfg.FinalK = DefaultConfig().FinalK
	}
	if cfg.FinalK > cfg.InitialK {
		cfg.FinalK = cfg.InitialK
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}

	tel := deps.Telemetry
	if tel == nil {
		tel = telemetry.Noop()
	}

	return &Recommender{
		cfg:       cfg,
		catalog:   deps.Catalog,
		retriever: deps.Retriever,
		embedder:  deps.Embedder,
		cache:     deps.Cache,
		history:   deps.History,
		tel:       tel,
	}, nil
}

// Categories returns the catalog's category labels, "All" first.
func (r *Recommender) Categories() []string {
	return r.catalog.Categories()
}

// Search runs the full pipeline for one request.
func (r *Recommender) Search(ctx context.Context, req types.SearchRequest) (*types.SearchResult, error) {
	return r.SearchWithProgress(ctx, req, nil)
}

// SearchWithProgress runs Search, reporting stage transitions through
// onStage. onStage may be nil.
func (r *Recommender) SearchWithProgress(ctx context.Context, req types.SearchRequest, onStage func(stage string)) (*types.SearchResult, error) {
	// Step 1: Validate and apply defaults
	if err := r.normalize(&req); err != nil {
		return nil, err
	}

	totalStart := time.Now()
	ctx, span := r.tel.StartSearch(ctx, req.Category, req.Tone)
	defer span.End()

	// Step 2: Fingerprint the request and check the result cache
	report(onStage, StageCache)
	key := cache.SearchKey(req.Query, req.Category, req.Tone, req.InitialK, req.FinalK)
	lookupCtx, lookupSpan := r.tel.StartCacheLookup(ctx, key)
	cached := r.cachedResult(lookupCtx, key)
	lookupSpan.End()
	telemetry.RecordCacheHit(span, cached != nil)
	if cached != nil {
		telemetry.RecordSearchResult(span, cached.Stats.Retrieved, cached.Stats.Skipped, cached.Stats.Returned, time.Since(totalStart))
		return cached, nil
	}

	stats := types.SearchStats{}

	// Step 3: Embed the query through the rate-limited provider
	report(onStage, StageEmbedding)
	embedStart := time.Now()
	embedCtx, embedSpan := r.tel.StartEmbedding(ctx, 1)
	vector, err := r.embedder.Embed(embedCtx, req.Query)
	embedSpan.End()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	stats.EmbeddingLatency = time.Since(embedStart)

	// Step 4: Vector similarity search for the initial candidate set
	report(onStage, StageRetrieval)
	retrievalStart := time.Now()
	queryCtx, querySpan := r.tel.StartRetrieval(ctx, req.InitialK, r.cfg.Namespace)
	retrieved, err := r.retriever.Query(queryCtx, &types.RetrievalRequest{
		QueryEmbedding:  vector,
		TopK:            req.InitialK,
		Namespace:       r.cfg.Namespace,
		IncludeMetadata: true,
	})
	querySpan.End()
	if err != nil {
		wrapped := &types.SearchError{Stage: "retrieval", Err: err}
		telemetry.RecordError(span, wrapped)
		return nil, wrapped
	}
	stats.RetrievalLatency = time.Since(retrievalStart)
	stats.Retrieved = len(retrieved.Matches)

	// Steps 5-8: Parse, join, filter, rank
	report(onStage, StageRanking)
	_, rankSpan := r.tel.StartRanking(ctx, len(retrieved.Matches), req.Tone)
	recommendations := r.rank(retrieved.Matches, req, &stats)
	rankSpan.End()

	stats.Returned = len(recommendations)
	stats.TotalLatency = time.Since(totalStart)

	result := &types.SearchResult{
		Recommendations: recommendations,
		Stats:           stats,
	}

	// Step 9: Cache the result and record history without blocking
	r.storeResult(ctx, key, result)
	r.recordHistory(req, len(recommendations))

	telemetry.RecordSearchResult(span, stats.Retrieved, stats.Skipped, stats.Returned, stats.TotalLatency)
	return result, nil
}

// SimilarByISBN recommends neighbors of an already indexed book. The
// source book is dropped from the results; tone ranking does not apply.
func (r *Recommender) SimilarByISBN(ctx context.Context, isbn13 int64, finalK int) (*types.SearchResult, error) {
	if _, ok := r.catalog.Get(isbn13); !ok {
		return nil, &types.ValidationError{Field: "isbn13", Reason: fmt.Sprintf("unknown book %d", isbn13)}
	}
	if finalK <= 0 {
		finalK = r.cfg.FinalK
	}

	totalStart := time.Now()
	ctx, span := r.tel.StartSimilar(ctx, isbn13)
	defer span.End()

	key := cache.SimilarKey(isbn13, finalK)
	cached := r.cachedResult(ctx, key)
	telemetry.RecordCacheHit(span, cached != nil)
	if cached != nil {
		return cached, nil
	}

	stats := types.SearchStats{}

	// The source vector is its own best match, so fetch one extra
	retrievalStart := time.Now()
	queryCtx, querySpan := r.tel.StartRetrieval(ctx, finalK+1, r.cfg.Namespace)
	retrieved, err := r.retriever.QueryByID(queryCtx, strconv.FormatInt(isbn13, 10), finalK+1, r.cfg.Namespace)
	querySpan.End()
	if err != nil {
		wrapped := &types.SearchError{Stage: "retrieval", Err: err}
		telemetry.RecordError(span, wrapped)
		return nil, wrapped
	}
	stats.RetrievalLatency = time.Since(retrievalStart)
	stats.Retrieved = len(retrieved.Matches)

	matches := make([]types.Match, 0, len(retrieved.Matches))
	for _, m := range retrieved.Matches {
		if isbn, ok := parseISBN13(m); ok && isbn == isbn13 {
			continue
		}
		matches = append(matches, m)
	}

	req := types.SearchRequest{
		Category: CategoryAll,
		Tone:     ToneAll,
		InitialK: finalK + 1,
		FinalK:   finalK,
	}

	_, rankSpan := r.tel.StartRanking(ctx, len(matches), ToneAll)
	recommendations := r.rank(matches, req, &stats)
	rankSpan.End()

	stats.Returned = len(recommendations)
	stats.TotalLatency = time.Since(totalStart)

	result := &types.SearchResult{
		Recommendations: recommendations,
		Stats:           stats,
	}
	r.storeResult(ctx, key, result)

	telemetry.RecordSearchResult(span, stats.Retrieved, stats.Skipped, stats.Returned, stats.TotalLatency)
	return result, nil
}

// Close releases the retriever connection.
func (r *Recommender) Close() error {
	if r.retriever != nil {
		return r.retriever.Close()
	}
	return nil
}

// normalize validates a request in place and fills in defaults.
func (r *Recommender) normalize(req *types.SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return &types.ValidationError{Field: "query", Reason: "must not be empty"}
	}

	if req.Category == "" {
		req.Category = CategoryAll
	}
	if req.Tone == "" {
		req.Tone = ToneAll
	}
	if !ValidTone(req.Tone) {
		return &types.ValidationError{Field: "tone", Reason: fmt.Sprintf("unknown tone %q", req.Tone)}
	}

	if req.InitialK <= 0 {
		req.InitialK = r.cfg.InitialK
	}
	if req.FinalK <= 0 {
		req.FinalK = r.cfg.FinalK
	}
	if req.FinalK > req.InitialK {
		req.FinalK = req.InitialK
	}

	return nil
}

// rank turns raw matches into ranked recommendations: parse identifiers
// (step 5), join the catalog preserving relevance order (step 6), filter
// by category (step 7), sort by tone (step 8) and truncate to FinalK.
// Filtering runs before sorting and truncation runs last, so a tone sort
// never surfaces items the category filter would have removed and the
// size cap reflects all narrowing.
func (r *Recommender) rank(matches []types.Match, req types.SearchRequest, stats *types.SearchStats) []types.Recommendation {
	ids := make([]int64, 0, len(matches))
	scores := make(map[int64]float32, len(matches))
	for _, match := range matches {
		isbn, ok := parseISBN13(match)
		if !ok {
			stats.Skipped++
			continue
		}
		if _, dup := scores[isbn]; dup {
			continue
		}
		ids = append(ids, isbn)
		scores[isbn] = match.Score
	}

	books, missing := r.catalog.Join(ids)
	stats.Skipped += missing
	if len(books) > req.InitialK {
		books = books[:req.InitialK]
	}

	if req.Category != CategoryAll {
		filtered := books[:0]
		for _, b := range books {
			if b.Category == req.Category {
				filtered = append(filtered, b)
			}
		}
		books = filtered
	}

	if req.Tone != ToneAll {
		rankByTone(books, req.Tone)
	}

	if len(books) > req.FinalK {
		books = books[:req.FinalK]
	}

	recs := make([]types.Recommendation, 0, len(books))
	for _, b := range books {
		recs = append(recs, types.Recommendation{
			Book:             b,
			Score:            scores[b.ISBN13],
			AuthorsText:      catalog.FormatAuthors(b.Authors),
			ShortDescription: catalog.TruncateDescription(b.Description, catalog.MaxDescriptionWords),
			CoverURL:         catalog.CoverURL(b.Thumbnail),
		})
	}
	return recs
}

// parseISBN13 extracts the catalog key from a match. The stored
// document is the ISBN-prefixed description, so the leading whitespace-
// delimited token (optionally quoted) is the ISBN-13; matches with no
// text fall back to the vector ID.
func parseISBN13(match types.Match) (int64, bool) {
	text := match.Text
	if text == "" {
		text = match.ID
	}

	fields := strings.Fields(strings.Trim(text, `"`))
	if len(fields) == 0 {
		return 0, false
	}

	isbn, err := strconv.ParseInt(strings.Trim(fields[0], `"`), 10, 64)
	if err != nil || isbn <= 0 {
		return 0, false
	}
	return isbn, true
}

// cachedResult returns the cached result for key, or nil on a miss or a
// corrupt entry. Cache failures count as misses.
func (r *Recommender) cachedResult(ctx context.Context, key string) *types.SearchResult {
	data, err := r.cache.Get(ctx, key)
	if err != nil {
		return nil
	}

	var result types.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}

	result.Cached = true
	return &result
}

// storeResult caches a fully built result. Failures are dropped; the
// next identical request recomputes.
func (r *Recommender) storeResult(ctx context.Context, key string, result *types.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = r.cache.Set(ctx, key, data, r.cfg.CacheTTL)
}

// recordHistory writes the search to the history store without blocking
// the response.
func (r *Recommender) recordHistory(req types.SearchRequest, resultCount int) {
	if r.history == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()

		ctx, span := r.tel.StartHistory(ctx, req.UserID)
		defer span.End()

		_ = r.history.RecordSearch(ctx, req.UserID, req.Query, req.Category, req.Tone, resultCount)
	}()
}

func report(onStage func(string), stage string) {
	if onStage != nil {
		onStage(stage)
	}
}
