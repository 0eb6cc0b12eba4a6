// Package ingest turns an uploaded statement or receipt into persisted
// transactions. Each upload runs as its own sequential pipeline.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/receipt"
)

// Phase is the position of one upload in the ingestion state machine.
type Phase string

const (
	PhaseReceived   Phase = "received"
	PhaseExtracting Phase = "extracting"
	PhaseParsing    Phase = "parsing"
	PhasePersisting Phase = "persisting"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// State is shared by the steps of one pipeline run.
type State struct {
	IngestionID string
	OwnerID     string
	Path        string
	Filename    string
	Mode        Mode

	Phase   Phase
	Data    []byte
	Text    string
	Result  *domain.ParseResult
	Receipt *receipt.Fields
	Insert  *domain.InsertResult
	Message string
}

// Step is a single unit of work in the pipeline.
type Step interface {
	Phase() Phase
	Execute(ctx context.Context, state *State) error
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs the steps sequentially. A step returning
// domain.ErrNoTransactions ends the run early as Done.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)
	state.Phase = PhaseReceived

	for _, step := range p.steps {
		if next := step.Phase(); next != state.Phase {
			log.Debug().Str("from", string(state.Phase)).Str("to", string(next)).Msg("ingestion phase")
			state.Phase = next
		}

		err := step.Execute(ctx, state)
		if errors.Is(err, domain.ErrNoTransactions) {
			state.Message = err.Error()
			break
		}
		if err != nil {
			failedIn := state.Phase
			state.Phase = PhaseFailed
			state.Message = err.Error()
			return fmt.Errorf("%s: %w", failedIn, err)
		}
	}

	state.Phase = PhaseDone
	return nil
}
