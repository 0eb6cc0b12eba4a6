package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-ingest/internal/api/middleware"
	"github.com/dvloznov/statement-ingest/internal/artifact"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/ingest"
	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

// StatementIngester is satisfied by *ingest.StatementIngester.
type StatementIngester interface {
	Ingest(ctx context.Context, req ingest.StatementRequest) (*ingest.Report, error)
}

// ReceiptIngester is satisfied by *ingest.ReceiptIngester.
type ReceiptIngester interface {
	Ingest(ctx context.Context, req ingest.ReceiptRequest) (*ingest.Report, error)
}

// IngestHandler accepts statement and receipt uploads.
type IngestHandler struct {
	artifacts     artifact.Store
	statements    StatementIngester
	receipts      ReceiptIngester
	publisher     jobs.Publisher
	maxUploadSize int64
}

// NewIngestHandler creates a new ingestion handler. publisher may be nil, in
// which case async=true requests are rejected.
func NewIngestHandler(artifacts artifact.Store, statements StatementIngester, receipts ReceiptIngester, publisher jobs.Publisher, maxUploadSize int64) *IngestHandler {
	return &IngestHandler{
		artifacts:     artifacts,
		statements:    statements,
		receipts:      receipts,
		publisher:     publisher,
		maxUploadSize: maxUploadSize,
	}
}

// response is the JSON body of every ingestion call.
type response struct {
	*ingest.Report
	Error string `json:"error,omitempty"`
}

// UploadStatement handles POST /api/statements
func (h *IngestHandler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	ownerID := middleware.OwnerFromContext(ctx)
	if ownerID == "" {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthenticated")
		return
	}

	file, header, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	mode, err := ingest.ParseMode(r.FormValue("mode"), "")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	async, ok := h.wantsAsync(w, r)
	if !ok {
		return
	}

	filename := filepath.Base(header.Filename)
	path, err := h.artifacts.Save(ctx, filename, file)
	if err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("Failed to store upload")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	req := ingest.StatementRequest{
		OwnerID:  ownerID,
		Path:     path,
		Filename: filename,
		Mode:     mode,
	}
	if async {
		h.enqueue(w, r, &jobs.Job{OwnerID: ownerID, Kind: jobs.KindStatement, Statement: &req})
		return
	}
	report, err := h.statements.Ingest(ctx, req)
	writeReport(w, report, err)
}

// UploadReceipt handles POST /api/receipts
func (h *IngestHandler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	ownerID := middleware.OwnerFromContext(ctx)
	if ownerID == "" {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthenticated")
		return
	}

	file, header, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	mode, err := ingest.ParseMode(r.FormValue("mode"), "")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	overrides, err := parseOverrides(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	async, ok := h.wantsAsync(w, r)
	if !ok {
		return
	}

	filename := filepath.Base(header.Filename)
	path, err := h.artifacts.Save(ctx, filename, file)
	if err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("Failed to store upload")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	req := ingest.ReceiptRequest{
		OwnerID:   ownerID,
		Path:      path,
		Filename:  filename,
		Mode:      mode,
		Overrides: overrides,
	}
	if async {
		h.enqueue(w, r, &jobs.Job{OwnerID: ownerID, Kind: jobs.KindReceipt, Receipt: &req})
		return
	}
	report, err := h.receipts.Ingest(ctx, req)
	writeReport(w, report, err)
}

// wantsAsync reads the async form field. It writes a 400 and returns false
// when the value is malformed or no queue is configured.
func (h *IngestHandler) wantsAsync(w http.ResponseWriter, r *http.Request) (bool, bool) {
	raw := strings.TrimSpace(r.FormValue("async"))
	if raw == "" {
		return false, true
	}
	async, err := strconv.ParseBool(raw)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid async %q", raw))
		return false, false
	}
	if async && h.publisher == nil {
		middleware.WriteError(w, http.StatusBadRequest, "Async ingestion is not enabled")
		return false, false
	}
	return async, true
}

// enqueue publishes job and answers 202 with its id. A job that cannot be
// queued releases its artifact.
func (h *IngestHandler) enqueue(w http.ResponseWriter, r *http.Request, job *jobs.Job) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if err := h.publisher.Publish(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue ingestion job")
		path := ""
		if job.Statement != nil {
			path = job.Statement.Path
		} else if job.Receipt != nil {
			path = job.Receipt.Path
		}
		if derr := h.artifacts.Delete(ctx, path); derr != nil {
			log.Warn().Err(derr).Str("path", path).Msg("deleting artifact")
		}
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue ingestion job")
		return
	}

	log.Info().Str("job_id", job.JobID).Str("kind", string(job.Kind)).Msg("Ingestion job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(jobs.StatusPending),
	})
}

// readUpload enforces the size limit and returns the multipart "file" part.
func (h *IngestHandler) readUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d bytes", h.maxUploadSize))
			return nil, nil, false
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return nil, nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "file is required")
		return nil, nil, false
	}
	return file, header, true
}

func parseOverrides(r *http.Request) (ingest.Overrides, error) {
	var o ingest.Overrides
	if s := strings.TrimSpace(r.FormValue("amount")); s != "" {
		amount, err := decimal.NewFromString(s)
		if err != nil {
			return o, fmt.Errorf("invalid amount %q", s)
		}
		o.Amount = &amount
	}
	if s := strings.TrimSpace(r.FormValue("date")); s != "" {
		date, err := civil.ParseDate(s)
		if err != nil {
			return o, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
		}
		o.Date = &date
	}
	o.Description = r.FormValue("description")
	o.Category = r.FormValue("category")
	return o, nil
}

func writeReport(w http.ResponseWriter, report *ingest.Report, err error) {
	if report == nil {
		report = &ingest.Report{Candidates: []*domain.Candidate{}}
	}
	if err != nil {
		middleware.WriteJSON(w, StatusFor(err), response{Report: report, Error: err.Error()})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, response{Report: report})
}

// StatusFor maps an ingestion error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case domain.IsExtractionError(err), domain.IsIncompleteReceiptError(err):
		return http.StatusUnprocessableEntity
	case domain.IsAIParseError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
