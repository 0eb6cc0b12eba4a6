package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/statement-ingest/internal/ingest"
)

// ErrNotFound is returned by Store lookups for unknown job ids.
var ErrNotFound = errors.New("job not found")

// Kind is the flavor of upload a job ingests.
type Kind string

const (
	KindStatement Kind = "statement"
	KindReceipt   Kind = "receipt"
)

// Status represents the current status of a job.
type Status string

const (
	// StatusPending indicates the job is waiting to be processed.
	StatusPending Status = "pending"
	// StatusRunning indicates the job is currently being processed.
	StatusRunning Status = "running"
	// StatusCompleted indicates the ingestion returned without error.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the ingestion returned an error.
	StatusFailed Status = "failed"
)

// Job is one deferred ingestion. Exactly one of Statement and Receipt is set,
// matching Kind.
type Job struct {
	JobID   string `json:"job_id"`
	OwnerID string `json:"owner_id"`
	Kind    Kind   `json:"kind"`
	Status  Status `json:"status"`

	Statement *ingest.StatementRequest `json:"-"`
	Receipt   *ingest.ReceiptRequest   `json:"-"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Report is the ingestion outcome once the job has run.
	Report *ingest.Report `json:"report,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Publisher enqueues jobs for asynchronous processing.
type Publisher interface {
	Publish(ctx context.Context, job *Job) error
	Close() error
}

// Consumer runs queued jobs.
type Consumer interface {
	// Start launches the workers; it does not block.
	Start(ctx context.Context, handler Handler) error
	// Stop waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// Handler runs a job and returns its report.
type Handler func(ctx context.Context, job *Job) (*ingest.Report, error)

// Store keeps job state for status polling.
type Store interface {
	Save(ctx context.Context, job *Job) error
	Get(ctx context.Context, jobID string) (*Job, error)
	List(ctx context.Context, filter Filter) ([]*Job, error)
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	OwnerID string
	Status  Status
	Limit   int
	Offset  int
}

// StatementIngester is satisfied by *ingest.StatementIngester.
type StatementIngester interface {
	Ingest(ctx context.Context, req ingest.StatementRequest) (*ingest.Report, error)
}

// ReceiptIngester is satisfied by *ingest.ReceiptIngester.
type ReceiptIngester interface {
	Ingest(ctx context.Context, req ingest.ReceiptRequest) (*ingest.Report, error)
}

// IngestHandler dispatches a job to the ingester for its kind.
func IngestHandler(statements StatementIngester, receipts ReceiptIngester) Handler {
	return func(ctx context.Context, job *Job) (*ingest.Report, error) {
		switch {
		case job.Kind == KindStatement && job.Statement != nil:
			return statements.Ingest(ctx, *job.Statement)
		case job.Kind == KindReceipt && job.Receipt != nil:
			return receipts.Ingest(ctx, *job.Receipt)
		}
		return nil, errors.New("jobs: job has no request for its kind")
	}
}
