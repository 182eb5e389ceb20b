package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the vector index now",
	Long: `Runs the same maintenance as the scheduled job: creates or rebuilds the
approximate nearest-neighbour index once the library is large enough.`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context(), appConfig, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Indexer == nil {
		return errors.New("reindex requires the postgres store backend")
	}
	if err := app.Indexer.ReindexIfNeeded(cmd.Context()); err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Index maintenance complete.")
	return nil
}
