package aiparse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/statement-ingest/internal/categorize"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

// StatementParser turns a model's JSON array reply into candidates.
type StatementParser struct {
	gen Generator
}

// NewStatementParser returns a parser that sends requests through gen.
func NewStatementParser(gen Generator) *StatementParser {
	return &StatementParser{gen: gen}
}

// ParseText sends extracted statement text to the model.
func (p *StatementParser) ParseText(ctx context.Context, text, ownerID string) (*domain.ParseResult, error) {
	raw, err := p.gen.Generate(ctx, Request{Prompt: statementTextPrompt(text)})
	if err != nil {
		return nil, &domain.AIParseError{Msg: "statement request failed", Err: err}
	}
	res, err := TransformStatement(ctx, raw, ownerID)
	if err != nil {
		return nil, err
	}
	res.LinesSeen = strings.Count(text, "\n") + 1
	res.RawTextPreview = domain.Preview(text)
	return res, nil
}

// ParseDocument sends the PDF itself to the model.
func (p *StatementParser) ParseDocument(ctx context.Context, pdfBytes []byte, ownerID string) (*domain.ParseResult, error) {
	raw, err := p.gen.Generate(ctx, Request{
		Prompt: StatementPrompt,
		Inline: &InlineData{Data: pdfBytes, MIMEType: "application/pdf"},
	})
	if err != nil {
		return nil, &domain.AIParseError{Msg: "statement request failed", Err: err}
	}
	return TransformStatement(ctx, raw, ownerID)
}

// TransformStatement validates a raw statement reply. A reply that is not a
// JSON array of objects with correctly typed fields is an *AIParseError;
// rows with an unreadable date or a zero amount are dropped.
func TransformStatement(ctx context.Context, raw, ownerID string) (*domain.ParseResult, error) {
	log := logger.FromContext(ctx)

	parsed, err := decodeModelJSON(raw)
	if err != nil {
		return nil, err
	}

	items, ok := parsed.([]interface{})
	if !ok {
		return nil, &domain.AIParseError{Msg: fmt.Sprintf("top-level value is %T, want array", parsed), Raw: raw}
	}

	result := &domain.ParseResult{Candidates: make([]*domain.Candidate, 0, len(items))}
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, &domain.AIParseError{Msg: fmt.Sprintf("element %d is %T, want object", i, item), Raw: raw}
		}

		c, reason, err := transformStatementRow(obj, ownerID)
		if err != nil {
			return nil, &domain.AIParseError{Msg: fmt.Sprintf("transaction %d", i), Raw: raw, Err: err}
		}
		if c == nil {
			log.Warn().Int("index", i).Str("reason", reason).Msg("aiparse: dropping statement row")
			continue
		}
		result.Candidates = append(result.Candidates, c)
	}

	log.Debug().
		Int("rows", len(items)).
		Int("candidates", len(result.Candidates)).
		Msg("aiparse: statement reply transformed")
	return result, nil
}

// transformStatementRow returns either a candidate, a reason the row was
// dropped, or a schema error.
func transformStatementRow(obj map[string]interface{}, ownerID string) (*domain.Candidate, string, error) {
	dateStr, err := getStringField(obj, "date", true)
	if err != nil {
		return nil, "", err
	}
	desc, err := getStringField(obj, "description", true)
	if err != nil {
		return nil, "", err
	}
	amount, err := getDecimalField(obj, "amount", true)
	if err != nil {
		return nil, "", err
	}
	typeStr, err := getOptionalStringField(obj, "type")
	if err != nil {
		return nil, "", err
	}

	date, ok := parseModelDate(dateStr)
	if !ok {
		return nil, fmt.Sprintf("invalid date %q", dateStr), nil
	}
	if amount.IsZero() {
		return nil, "zero amount", nil
	}
	if desc == "" {
		return nil, "empty description", nil
	}

	var txType domain.TxType
	switch {
	case typeStr == nil:
		txType = domain.TxIncome
		if amount.IsNegative() {
			txType = domain.TxExpense
		}
	case domain.TxType(strings.ToLower(*typeStr)).Valid():
		txType = domain.TxType(strings.ToLower(*typeStr))
	default:
		return nil, "", fmt.Errorf("field %q has value %q, want income or expense", "type", *typeStr)
	}

	desc = domain.CollapseSpaces(desc)
	return &domain.Candidate{
		Date:        date,
		Amount:      amount.Abs(),
		Type:        txType,
		Description: desc,
		Category:    categorize.Categorize(desc, txType == domain.TxExpense),
		OwnerID:     ownerID,
	}, "", nil
}

// parseModelDate accepts ISO dates, and day/month/year as printed on
// statements when the model copies them verbatim.
func parseModelDate(s string) (civil.Date, bool) {
	if d, err := civil.ParseDate(s); err == nil {
		return d, true
	}
	if t, err := time.Parse("02/01/2006", s); err == nil {
		return civil.DateOf(t), true
	}
	return civil.Date{}, false
}
