package cli

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/serisow/sagefemme/handlers"
	"github.com/serisow/sagefemme/scheduler"
	"github.com/serisow/sagefemme/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the document and assistant API. In production the certificates for
DOMAINS are obtained through Let's Encrypt.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := appConfig

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	// Vector index maintenance
	if app.Indexer != nil {
		s := scheduler.New(time.Minute, logger, reindexJob(cfg, app.Indexer))
		go s.Start(ctx)
	}

	r := server.SetupRoutes(server.Handlers{
		Documents: handlers.NewDocumentHandler(app.Processor, app.Store, cfg.MaxUploadBytes, logger),
		Search:    handlers.NewDocumentSearchHandler(app.Retriever, logger),
		Assistant: handlers.NewAssistantHandler(app.Advisor, logger),
		Health:    handlers.NewHealthHandler(app.Store, app.Embedder, app.Extractor, app.Advisor, logger),
	})
	n := server.NewNegroni(r, cfg.CORSAllowedOrigins, logger)

	serverCfg := server.Config{
		Domains:      cfg.Domains,
		CertCacheDir: cfg.CertCacheDir,
		HTTPPort:     cfg.HTTPPort,
		IdleTimeout:  time.Minute,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.Environment == "production" {
			errCh <- server.ServeProduction(n, serverCfg, logger)
		} else {
			errCh <- server.ServeDevelopment(n, serverCfg, logger)
		}
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped", slog.String("error", err.Error()))
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}
	return nil
}
