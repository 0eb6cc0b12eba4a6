// Package api assembles the HTTP surface of the ingestion service.
package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-ingest/internal/api/handlers"
	"github.com/dvloznov/statement-ingest/internal/api/middleware"
)

// RouterConfig lists what NewRouter mounts. Jobs and Files are optional.
type RouterConfig struct {
	Log    zerolog.Logger
	Auth   middleware.AuthConfig
	Ingest *handlers.IngestHandler
	Jobs   *handlers.JobsHandler
	// Files serves retained artifacts under FilesPrefix, behind Auth.
	Files       http.Handler
	FilesPrefix string
}

// NewRouter builds the mux and wraps it in the middleware chain. /health is
// the only route outside Auth.
func NewRouter(cfg RouterConfig) http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("/api/statements", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			cfg.Ingest.UploadStatement(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	api.HandleFunc("/api/receipts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			cfg.Ingest.UploadReceipt(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	if cfg.Jobs != nil {
		api.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				cfg.Jobs.ListJobs(w, r)
			} else {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		})

		api.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			cfg.Jobs.GetJob(w, r, jobID)
		})
	}

	if cfg.Files != nil && cfg.FilesPrefix != "" {
		api.Handle(cfg.FilesPrefix, http.StripPrefix(cfg.FilesPrefix, cfg.Files))
	}

	root := http.NewServeMux()
	root.HandleFunc("/health", handlers.Health)
	root.Handle("/", middleware.Auth(cfg.Auth)(api))

	return middleware.Chain(root,
		middleware.Recovery(cfg.Log),
		middleware.RequestID,
		middleware.Logger(cfg.Log),
		middleware.CORS,
	)
}
