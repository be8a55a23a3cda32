package cmd

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/catalog"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/ingest"
	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/types"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report statistics about the book catalog",
	Long: `Loads the book catalog CSV and prints summary statistics: category
sizes, affect score ranges, and books that would be skipped during
ingestion.

Example:
  bookrec stats --catalog books_with_emotions.csv --top 15`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringP("catalog", "f", "books_with_emotions.csv", "path to the book catalog CSV")
	statsCmd.Flags().Int("top", 10, "number of categories to list")
}

func runStats(cmd *cobra.Command, args []string) error {
	catalogPath, _ := cmd.Flags().GetString("catalog")
	topN, _ := cmd.Flags().GetInt("top")
	verbose := viper.GetBool("verbose")

	if verbose {
		fmt.Fprintf(os.Stderr, "Loading catalog from %s...\n", catalogPath)
	}

	loadStart := time.Now()
	cat, err := catalog.Load(catalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Loaded %d books in %v\n", cat.Len(), time.Since(loadStart))
	}

	if cat.Len() == 0 {
		fmt.Println("No books found in catalog.")
		return nil
	}

	printCatalogReport(cat, topN)
	return nil
}

// affectSummary aggregates one emotion column across the catalog.
type affectSummary struct {
	name string
	min  float64
	max  float64
	sum  float64
}

func printCatalogReport(cat *catalog.Catalog, topN int) {
	books := cat.Books()

	categoryCounts := make(map[string]int)
	affects := []affectSummary{
		{name: "Joy", min: math.Inf(1), max: math.Inf(-1)},
		{name: "Surprise", min: math.Inf(1), max: math.Inf(-1)},
		{name: "Anger", min: math.Inf(1), max: math.Inf(-1)},
		{name: "Fear", min: math.Inf(1), max: math.Inf(-1)},
		{name: "Sadness", min: math.Inf(1), max: math.Inf(-1)},
	}
	scoreOf := []func(*types.Book) float64{
		func(b *types.Book) float64 { return b.Joy },
		func(b *types.Book) float64 { return b.Surprise },
		func(b *types.Book) float64 { return b.Anger },
		func(b *types.Book) float64 { return b.Fear },
		func(b *types.Book) float64 { return b.Sadness },
	}

	notEmbeddable := 0
	minYear, maxYear := 0, 0
	for i := range books {
		b := &books[i]
		categoryCounts[b.Category]++

		if ingest.EmbedText(*b) == "" {
			notEmbeddable++
		}

		if b.PublishedYear > 0 {
			if minYear == 0 || b.PublishedYear < minYear {
				minYear = b.PublishedYear
			}
			if b.PublishedYear > maxYear {
				maxYear = b.PublishedYear
			}
		}

		for j := range affects {
			v := scoreOf[j](b)
			if v < affects[j].min {
				affects[j].min = v
			}
			if v > affects[j].max {
				affects[j].max = v
			}
			affects[j].sum += v
		}
	}

	type categoryCount struct {
		name  string
		count int
	}
	categories := make([]categoryCount, 0, len(categoryCounts))
	for name, count := range categoryCounts {
		categories = append(categories, categoryCount{name, count})
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].count != categories[j].count {
			return categories[i].count > categories[j].count
		}
		return categories[i].name < categories[j].name
	})

	fmt.Println()
	fmt.Println("=== Catalog Statistics ===")
	fmt.Println()
	fmt.Printf("Total books:          %d\n", cat.Len())
	fmt.Printf("Rows skipped on load: %d\n", cat.Skipped())
	fmt.Printf("Not embeddable:       %d (no description)\n", notEmbeddable)
	if minYear > 0 {
		fmt.Printf("Published:            %d - %d\n", minYear, maxYear)
	}
	fmt.Println()

	fmt.Printf("Categories (%d total):\n", len(categories))
	shown := categories
	if topN > 0 && len(shown) > topN {
		shown = shown[:topN]
	}
	for _, c := range shown {
		pct := float64(c.count) / float64(cat.Len()) * 100
		fmt.Printf("  %-24s %6d  (%.1f%%)\n", c.name, c.count, pct)
	}
	if len(categories) > len(shown) {
		fmt.Printf("  ... and %d more\n", len(categories)-len(shown))
	}
	fmt.Println()

	fmt.Println("Affect scores (min / mean / max):")
	for _, a := range affects {
		mean := a.sum / float64(cat.Len())
		fmt.Printf("  %-10s %.3f / %.3f / %.3f\n", a.name, a.min, mean, a.max)
	}
	fmt.Println()
}
