package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	ingestName       string
	ingestUploadedBy string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Add documents to the library",
	Long: `Extracts, chunks and embeds each file, then stores it. A failing file does
not stop the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestName, "name", "", "display name (single file only, defaults to the file name)")
	ingestCmd.Flags().StringVar(&ingestUploadedBy, "uploaded-by", "", "name recorded as the uploader")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestName != "" && len(args) > 1 {
		return errors.New("--name can only be used with a single file")
	}

	app, err := newApp(cmd.Context(), appConfig, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	failed := 0
	for _, path := range args {
		doc, err := ingestFile(cmd.Context(), app.Processor, path, ingestName, ingestUploadedBy)
		if err != nil {
			failed++
			logger.Error("Ingestion failed", slog.String("path", path), slog.String("error", err.Error()))
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s as %q (%s, %d chunks)\n", path, doc.Name, doc.ID, doc.ChunkCount)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}
