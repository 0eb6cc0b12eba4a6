package ingest

import (
	"fmt"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/receipt"
)

// Mode selects which parser turns extracted content into candidates.
type Mode string

const (
	// ModeHeuristic uses the rule based parsers only.
	ModeHeuristic Mode = "heuristic"
	// ModeAI sends the content to the generative model only.
	ModeAI Mode = "ai"
	// ModeAuto tries the heuristics first and asks the model when they come
	// up short.
	ModeAuto Mode = "auto"
)

// ParseMode accepts the empty string as def.
func ParseMode(s string, def Mode) (Mode, error) {
	switch Mode(s) {
	case "":
		return def, nil
	case ModeHeuristic, ModeAI, ModeAuto:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q (want heuristic, ai or auto)", s)
}

// Report is what an ingestion tells its caller.
type Report struct {
	IngestionID    string              `json:"ingestion_id"`
	Status         Phase               `json:"status"`
	Success        bool                `json:"success"`
	Partial        bool                `json:"partial"`
	Message        string              `json:"message,omitempty"`
	Mode           Mode                `json:"mode"`
	Processed      int                 `json:"processed"`
	Inserted       int                 `json:"inserted"`
	Skipped        int                 `json:"skipped"`
	Errors         []domain.RowError   `json:"errors,omitempty"`
	Candidates     []*domain.Candidate `json:"candidates"`
	RawTextPreview string              `json:"raw_text_preview,omitempty"`
	Receipt        *receipt.Fields     `json:"receipt,omitempty"`
	SourceURL      string              `json:"source_url,omitempty"`
}

func newReport(state *State) *Report {
	r := &Report{
		IngestionID: state.IngestionID,
		Status:      state.Phase,
		Success:     state.Phase == PhaseDone,
		Message:     state.Message,
		Mode:        state.Mode,
		Candidates:  []*domain.Candidate{},
		Receipt:     state.Receipt,
	}
	if state.Result != nil {
		r.Processed = len(state.Result.Candidates)
		r.Candidates = state.Result.Candidates
		r.RawTextPreview = state.Result.RawTextPreview
	}
	if state.Insert != nil {
		r.Inserted = state.Insert.Inserted
		r.Skipped = state.Insert.Skipped
		r.Errors = state.Insert.Errors
	}
	r.Partial = r.Success && r.Skipped > 0
	if r.Success && r.Message == "" {
		r.Message = fmt.Sprintf("inserted %d of %d transactions", r.Inserted, r.Processed)
	}
	return r
}
