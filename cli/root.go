package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/serisow/sagefemme/config"
	"github.com/serisow/sagefemme/logging"
)

var (
	appConfig config.Config
	logger    *slog.Logger
	logFile   *logging.DailyFileHandler
)

var rootCmd = &cobra.Command{
	Use:   "sagefemme",
	Short: "Document library and clinical assistant for a midwife practice",
	Long: `Stores the practice's reference documents (protocols, guidelines, leaflets),
indexes them for semantic search and answers clinical questions grounded in them.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
			logFile = nil
		}
	},
}

func setup(cmd *cobra.Command, args []string) error {
	appConfig = config.Load()
	// Only the server owns stdout; other commands print their results there.
	var console io.Writer = os.Stderr
	if cmd == serveCmd {
		console = os.Stdout
	}
	l, fh, err := initLogger(appConfig, console)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger, logFile = l, fh
	return nil
}

// Execute runs the command line until it completes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
