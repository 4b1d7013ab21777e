package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/suehn/scopy/internal/config"
	"github.com/suehn/scopy/internal/search"
	"github.com/suehn/scopy/internal/store"
)

var (
	searchMode    string
	searchQuery   string
	searchApp     string
	searchType    string
	searchLimit   int
	searchOffset  int
	searchExplain bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search clipboard history",
	Long: `Search clipboard history across one of four modes: exact, fuzzy,
fuzzy_plus, regex. Prints the result page as JSON on stdout.`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVar(&searchMode, "mode", string(config.ModeExact), "search mode: exact, fuzzy, fuzzy_plus, regex")
	searchCmd.Flags().StringVar(&searchQuery, "query", "", "query text (required)")
	searchCmd.Flags().StringVar(&searchApp, "app", "", "filter by source app bundle id")
	searchCmd.Flags().StringVar(&searchType, "type", "", "filter by item type: text, rtf, html, image, file, other")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 50, "max results")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "result offset")
	searchCmd.Flags().BoolVar(&searchExplain, "explain", false, "print the chosen code path instead of running the query")
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchQuery == "" && !searchExplain {
		return fmt.Errorf("%w: --query is required", errBadArgs)
	}

	mode := config.SearchMode(searchMode)
	switch mode {
	case config.ModeExact, config.ModeFuzzy, config.ModeFuzzyPlus, config.ModeRegex:
	default:
		return fmt.Errorf("%w: unknown --mode %q", errBadArgs, searchMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	f, closeFacade, err := openFacade(ctx)
	if err != nil {
		return err
	}
	defer closeFacade()

	req := search.Request{
		Query:      searchQuery,
		Mode:       mode,
		AppFilter:  searchApp,
		TypeFilter: store.ItemType(searchType),
		Limit:      searchLimit,
		Offset:     searchOffset,
	}

	if searchExplain {
		explanation, err := f.Explain(req)
		if err != nil {
			return err
		}
		return printJSON(explanation)
	}

	page, err := f.Search(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(page)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
