package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/serisow/sagefemme/services/rag_service"
)

var (
	askStrict    bool
	askLimit     int
	askDocuments []string
	askJSON      bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the clinical assistant",
	Long: `Answers a question using the most relevant passages of the library. With
--strict the answer only uses the library and says so when it has nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askStrict, "strict", false, "answer from the library only")
	askCmd.Flags().IntVarP(&askLimit, "limit", "n", rag_service.DefaultSearchLimit, "number of passages to retrieve")
	askCmd.Flags().StringSliceVar(&askDocuments, "document", nil, "restrict retrieval to these document ids")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer and sources as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context(), appConfig, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	resp, err := app.Advisor.Ask(cmd.Context(), rag_service.AskRequest{
		Question:    args[0],
		Strict:      askStrict,
		DocumentIDs: askDocuments,
		Limit:       askLimit,
	})
	if err != nil {
		return fmt.Errorf("assistant failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if askJSON {
		return writeJSON(out, resp)
	}
	fmt.Fprintln(out, resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		for _, s := range resp.Sources {
			fmt.Fprintf(out, "  - %s (%.2f)\n", s.DocumentName, s.Similarity)
		}
	}
	return nil
}
