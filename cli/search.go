package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/serisow/sagefemme/models"
	"github.com/serisow/sagefemme/services/rag_service"
)

var (
	searchLimit     int
	searchJSON      bool
	searchDocuments []string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the library",
	Long:  `Returns the passages closest in meaning to the query, best match first.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", rag_service.DefaultSearchLimit, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().StringSliceVar(&searchDocuments, "document", nil, "restrict the search to these document ids")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context(), appConfig, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	results, err := app.Retriever.Search(cmd.Context(), args[0], searchLimit, searchDocuments)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return writeJSON(cmd.OutOrStdout(), results)
	}
	printResults(cmd.OutOrStdout(), results)
	return nil
}

func printResults(w io.Writer, results []models.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	for i, r := range results {
		fmt.Fprintf(w, "[%d] %s (%.2f)\n", i+1, r.DocumentName, r.Similarity)
		fmt.Fprintf(w, "    %s\n", snippet(r.ChunkContent, 200))
	}
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	return nil
}
