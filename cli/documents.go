package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var documentsJSON bool

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage stored documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents, newest first",
	Args:  cobra.NoArgs,
	RunE:  runDocumentsList,
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a document and its passages",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsDelete,
}

func init() {
	documentsListCmd.Flags().BoolVar(&documentsJSON, "json", false, "output documents as JSON")
	documentsCmd.AddCommand(documentsListCmd, documentsDeleteCmd)
	rootCmd.AddCommand(documentsCmd)
}

func runDocumentsList(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context(), appConfig, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	docs, err := app.Store.ListDocuments(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if documentsJSON {
		return writeJSON(cmd.OutOrStdout(), docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No documents.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tADDED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Name, d.FileType, d.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runDocumentsDelete(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd.Context(), appConfig, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Store.DeleteDocument(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}
