package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/serisow/sagefemme/watcher"
)

var watchUploadedBy string

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest documents dropped into a folder",
	Long: `Watches a folder and ingests every supported file created or changed in it.
Uploads are always de-duplicated, so re-saving a file does not add a copy.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchUploadedBy, "uploaded-by", "", "name recorded as the uploader")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	cfg := appConfig
	cfg.DeduplicateUploads = true
	app, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	w := watcher.New(func(ctx context.Context, path string) error {
		doc, err := ingestFile(ctx, app.Processor, path, "", watchUploadedBy)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s (%s)\n", path, doc.ID)
		return nil
	}, cfg.WatchSettleDelay, logger)

	return w.Run(cmd.Context(), dir)
}
