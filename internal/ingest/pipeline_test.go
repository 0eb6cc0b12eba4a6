package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

type recordingStep struct {
	phase Phase
	err   error
	seen  *[]Phase
}

func (s *recordingStep) Phase() Phase { return s.phase }

func (s *recordingStep) Execute(_ context.Context, state *State) error {
	*s.seen = append(*s.seen, state.Phase)
	return s.err
}

func TestPipeline_Transitions(t *testing.T) {
	var seen []Phase
	p := NewPipeline(
		&recordingStep{phase: PhaseExtracting, seen: &seen},
		&recordingStep{phase: PhaseParsing, seen: &seen},
		&recordingStep{phase: PhasePersisting, seen: &seen},
	)
	state := &State{}

	require.NoError(t, p.Execute(context.Background(), state))
	assert.Equal(t, []Phase{PhaseExtracting, PhaseParsing, PhasePersisting}, seen)
	assert.Equal(t, PhaseDone, state.Phase)
}

func TestPipeline_Failure(t *testing.T) {
	var seen []Phase
	boom := errors.New("boom")
	p := NewPipeline(
		&recordingStep{phase: PhaseExtracting, seen: &seen},
		&recordingStep{phase: PhaseParsing, err: boom, seen: &seen},
		&recordingStep{phase: PhasePersisting, seen: &seen},
	)
	state := &State{}

	err := p.Execute(context.Background(), state)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "parsing: boom", err.Error())
	assert.Equal(t, PhaseFailed, state.Phase)
	assert.Equal(t, "boom", state.Message)
	assert.Len(t, seen, 2)
}

func TestPipeline_NoTransactionsEndsEarly(t *testing.T) {
	var seen []Phase
	p := NewPipeline(
		&recordingStep{phase: PhaseParsing, err: domain.ErrNoTransactions, seen: &seen},
		&recordingStep{phase: PhasePersisting, seen: &seen},
	)
	state := &State{}

	require.NoError(t, p.Execute(context.Background(), state))
	assert.Equal(t, PhaseDone, state.Phase)
	assert.Len(t, seen, 1)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeAuto, false},
		{"heuristic", ModeHeuristic, false},
		{"ai", ModeAI, false},
		{"auto", ModeAuto, false},
		{"AI", "", true},
		{"llm", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in, ModeAuto)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewReport_Partial(t *testing.T) {
	state := &State{
		Phase:  PhaseDone,
		Result: &domain.ParseResult{Candidates: []*domain.Candidate{{}, {}}},
		Insert: &domain.InsertResult{Inserted: 1, Skipped: 1},
	}
	r := newReport(state)
	assert.True(t, r.Success)
	assert.True(t, r.Partial)
	assert.Equal(t, "inserted 1 of 2 transactions", r.Message)

	state.Insert = &domain.InsertResult{Inserted: 2}
	assert.False(t, newReport(state).Partial)
}
