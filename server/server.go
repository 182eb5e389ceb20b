package server

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/serisow/sagefemme/handlers"
	"github.com/urfave/negroni"
	"golang.org/x/crypto/acme/autocert"
)

type Config struct {
	Domains      []string
	CertCacheDir string
	HTTPPort     string
	IdleTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Handlers groups everything SetupRoutes mounts.
type Handlers struct {
	Documents *handlers.DocumentHandler
	Search    *handlers.DocumentSearchHandler
	Assistant *handlers.AssistantHandler
	Health    *handlers.HealthHandler
}

func SetupRoutes(h Handlers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/documents/upload", h.Documents.Upload).Methods("POST")
	r.HandleFunc("/documents", h.Documents.List).Methods("GET")
	r.Handle("/documents/search", h.Search).Methods("POST")
	r.HandleFunc("/documents/{id}", h.Documents.Get).Methods("GET")
	r.HandleFunc("/documents/{id}", h.Documents.Delete).Methods("DELETE")

	r.HandleFunc("/assistant/ask", h.Assistant.Ask).Methods("POST")
	r.HandleFunc("/assistant/insight", h.Assistant.Insight).Methods("POST")

	r.Handle("/health", h.Health).Methods("GET")

	return r
}

// ServeProduction serves HTTPS with certificates from Let's Encrypt for
// cfg.Domains. Port 80 answers ACME challenges and redirects to HTTPS.
func ServeProduction(n *negroni.Negroni, cfg Config, logger *slog.Logger) error {
	autocertManager := autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.Domains...),
		Cache:      autocert.DirCache(cfg.CertCacheDir),
	}

	go func() {
		srv := &http.Server{
			Addr:         ":80",
			Handler:      autocertManager.HTTPHandler(nil),
			IdleTimeout:  time.Minute,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		if err := srv.ListenAndServe(); err != nil {
			logger.Error("ACME challenge server stopped", slog.String("error", err.Error()))
		}
	}()

	tlsConfig := &tls.Config{
		GetCertificate:   autocertManager.GetCertificate,
		CurvePreferences: []tls.CurveID{tls.X25519, tls.CurveP256},
		MinVersion:       tls.VersionTLS12,
	}

	srv := &http.Server{
		Addr:         ":443",
		Handler:      n,
		TLSConfig:    tlsConfig,
		IdleTimeout:  cfg.IdleTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Serving HTTPS", slog.Any("domains", cfg.Domains))
	return srv.ListenAndServeTLS("", "") // Key and cert provided automatically by autocert.
}

// ServeDevelopment serves plain HTTP on cfg.HTTPPort.
func ServeDevelopment(n *negroni.Negroni, cfg Config, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      n,
		IdleTimeout:  cfg.IdleTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Serving HTTP", slog.String("addr", srv.Addr))
	return srv.ListenAndServe()
}
