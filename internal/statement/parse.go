package statement

import (
	"context"
	"strings"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

// Parse runs the machine over text. A statement without the start marker, or
// with no usable rows, yields an empty result rather than an error.
func Parse(ctx context.Context, text, ownerID string) *domain.ParseResult {
	log := logger.FromContext(ctx)

	m := NewMachine(ownerID)
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		m.Feed(line)
	}
	reachedTable := m.State() == Accumulating
	txs := m.Finish()

	if !reachedTable {
		log.Warn().
			Int("lines", m.LinesSeen()).
			Msgf("statement: %q marker not found, layout not recognized", StartMarker)
	} else {
		log.Debug().
			Int("lines", m.LinesSeen()).
			Int("transactions", len(txs)).
			Int("skipped_anchors", m.SkippedAnchors()).
			Msg("statement: parsed")
	}

	if txs == nil {
		txs = []*domain.Candidate{}
	}
	return &domain.ParseResult{
		Candidates:     txs,
		LinesSeen:      m.LinesSeen(),
		RawTextPreview: domain.Preview(text),
	}
}
