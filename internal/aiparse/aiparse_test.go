package aiparse

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-ingest/internal/categorize"
	"github.com/dvloznov/statement-ingest/internal/domain"
)

// MockGenerator is a Generator whose behavior is set per test.
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, req Request) (string, error)
	Requests     []Request
}

func (m *MockGenerator) Generate(ctx context.Context, req Request) (string, error) {
	m.Requests = append(m.Requests, req)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return "[]", nil
}

func reply(s string) *MockGenerator {
	return &MockGenerator{GenerateFunc: func(context.Context, Request) (string, error) { return s, nil }}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain array", `[{"a":1}]`, `[{"a":1}]`},
		{"json fence", "```json\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"single line fence", "```json [1,2]```", `[1,2]`},
		{"chatter around array", "Here you go:\n[1, 2]\nHope this helps", `[1, 2]`},
		{"object containing array", `Sure! {"items":[1]} done`, `{"items":[1]}`},
		{"array of objects", ` [{"x":{}}] `, `[{"x":{}}]`},
		{"no json", "sorry", "sorry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanModelJSON(tt.raw))
		})
	}
}

func TestTransformStatement(t *testing.T) {
	raw := "```json\n" + `[
  {"date": "2024-02-01", "description": "UPI/PAYMENT  TO SHOP", "amount": 150.00, "type": "expense"},
  {"date": "2024-02-03", "description": "Monthly Salary Payment", "amount": 50000, "type": "INCOME"},
  {"date": "2024-02-04", "description": "STARBUCKS COFFEE", "amount": -4.75},
  {"date": "not a date", "description": "dropped", "amount": 10, "type": "expense"},
  {"date": "2024-02-05", "description": "zero", "amount": 0, "type": "expense"},
  {"date": "05/02/2024", "description": "Refund reversal", "amount": 12.5, "type": "income"}
]` + "\n```"

	res, err := TransformStatement(context.Background(), raw, "user-1")
	require.NoError(t, err)
	require.Len(t, res.Candidates, 4)

	c := res.Candidates[0]
	assert.Equal(t, civil.Date{Year: 2024, Month: 2, Day: 1}, c.Date)
	assert.Equal(t, "UPI/PAYMENT TO SHOP", c.Description)
	assert.True(t, c.Amount.Equal(decimal.RequireFromString("150")))
	assert.Equal(t, domain.TxExpense, c.Type)
	assert.Equal(t, categorize.Shopping, c.Category)
	assert.Equal(t, "user-1", c.OwnerID)

	assert.Equal(t, domain.TxIncome, res.Candidates[1].Type)
	assert.Equal(t, categorize.Salary, res.Candidates[1].Category)

	neg := res.Candidates[2]
	assert.Equal(t, domain.TxExpense, neg.Type, "negative amount without type is money out")
	assert.True(t, neg.Amount.Equal(decimal.RequireFromString("4.75")))
	assert.Equal(t, categorize.FoodAndDining, neg.Category)

	assert.Equal(t, civil.Date{Year: 2024, Month: 2, Day: 5}, res.Candidates[3].Date)
	assert.Equal(t, categorize.Investment, res.Candidates[3].Category)

	for _, c := range res.Candidates {
		assert.NoError(t, c.Validate())
	}
}

func TestTransformStatement_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `[{"date": "2024-02-01",`},
		{"not json", "I could not read this statement."},
		{"object instead of array", `{"date": "2024-02-01"}`},
		{"element not object", `["2024-02-01"]`},
		{"amount as string", `[{"date": "2024-02-01", "description": "x", "amount": "150.00"}]`},
		{"missing amount", `[{"date": "2024-02-01", "description": "x"}]`},
		{"missing description", `[{"date": "2024-02-01", "amount": 1}]`},
		{"date as number", `[{"date": 20240201, "description": "x", "amount": 1}]`},
		{"unknown type", `[{"date": "2024-02-01", "description": "x", "amount": 1, "type": "transfer"}]`},
		{"trailing data", `[] []`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TransformStatement(context.Background(), tt.raw, "u")
			require.Error(t, err)
			assert.True(t, domain.IsAIParseError(err), "got %T: %v", err, err)
		})
	}
}

func TestTransformStatement_EmptyArray(t *testing.T) {
	res, err := TransformStatement(context.Background(), "[]", "u")
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
}

func TestStatementParser_ParseText(t *testing.T) {
	gen := reply(`[{"date":"2024-02-01","description":"Uber trip","amount":250,"type":"expense"}]`)
	p := NewStatementParser(gen)

	res, err := p.ParseText(context.Background(), "line one\nline two", "owner")
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, categorize.Transportation, res.Candidates[0].Category)
	assert.Equal(t, 2, res.LinesSeen)
	assert.Equal(t, "line one\nline two", res.RawTextPreview)

	require.Len(t, gen.Requests, 1)
	assert.True(t, strings.HasPrefix(gen.Requests[0].Prompt, StatementPrompt))
	assert.Contains(t, gen.Requests[0].Prompt, "line one\nline two")
	assert.Nil(t, gen.Requests[0].Inline)
}

func TestStatementParser_ParseDocument(t *testing.T) {
	gen := reply("[]")
	p := NewStatementParser(gen)

	_, err := p.ParseDocument(context.Background(), []byte("%PDF-1.4"), "owner")
	require.NoError(t, err)

	require.Len(t, gen.Requests, 1)
	require.NotNil(t, gen.Requests[0].Inline)
	assert.Equal(t, "application/pdf", gen.Requests[0].Inline.MIMEType)
	assert.Equal(t, []byte("%PDF-1.4"), gen.Requests[0].Inline.Data)
}

func TestStatementParser_GeneratorError(t *testing.T) {
	gen := &MockGenerator{GenerateFunc: func(context.Context, Request) (string, error) {
		return "", errors.New("quota exceeded")
	}}

	_, err := NewStatementParser(gen).ParseText(context.Background(), "x", "u")
	assert.True(t, domain.IsAIParseError(err))
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestReceiptParser_ParseImage(t *testing.T) {
	gen := reply("```json\n{\"totalAmount\": 262.50, \"transactionDate\": \"2024-03-15\", \"description\": \"Starbucks\"}\n```")
	p := NewReceiptParser(gen)

	f, err := p.ParseImage(context.Background(), []byte("img"), "receipt.PNG")
	require.NoError(t, err)

	require.NotNil(t, f.Amount)
	assert.True(t, f.Amount.Equal(decimal.RequireFromString("262.50")))
	require.NotNil(t, f.Date)
	assert.Equal(t, civil.Date{Year: 2024, Month: 3, Day: 15}, *f.Date)
	assert.Equal(t, "Starbucks", f.Description)
	assert.Equal(t, categorize.FoodAndDining, f.Category)
	assert.Equal(t, domain.ConfidenceHigh, f.Confidence)

	require.NotNil(t, gen.Requests[0].Inline)
	assert.Equal(t, "image/png", gen.Requests[0].Inline.MIMEType)
	assert.Equal(t, ReceiptPrompt, gen.Requests[0].Prompt)
}

func TestReceiptParser_ParseText(t *testing.T) {
	gen := reply(`{"totalAmount": null, "transactionDate": "someday", "description": null}`)

	f, err := NewReceiptParser(gen).ParseText(context.Background(), "blurry text")
	require.NoError(t, err)
	assert.Nil(t, f.Amount)
	assert.Nil(t, f.Date)
	assert.Equal(t, "Receipt", f.Description)
	assert.Equal(t, []string{"amount", "date"}, f.Missing())
	assert.Contains(t, gen.Requests[0].Prompt, "blurry text")
}

func TestTransformReceipt_Errors(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`[{"totalAmount": 1}]`,
		`{"totalAmount": "12.00"}`,
		`{"transactionDate": 20240315}`,
		`{"description": 5}`,
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := TransformReceipt(context.Background(), raw)
			assert.True(t, domain.IsAIParseError(err), "got %v", err)
		})
	}
}

func TestTransformReceipt_NonPositiveTotal(t *testing.T) {
	f, err := TransformReceipt(context.Background(), `{"totalAmount": 0, "transactionDate": "2024-01-01", "description": "Shop"}`)
	require.NoError(t, err)
	assert.Nil(t, f.Amount)
	assert.NotNil(t, f.Date)
}

func TestNewGeminiGenerator_Configuration(t *testing.T) {
	ctx := context.Background()

	_, err := NewGeminiGenerator(ctx, Config{})
	assert.True(t, domain.IsConfigurationError(err))

	_, err = NewGeminiGenerator(ctx, Config{APIKey: "   "})
	assert.True(t, domain.IsConfigurationError(err))

	_, err = NewGeminiGenerator(ctx, Config{UseVertex: true, APIKey: "ignored"})
	assert.True(t, domain.IsConfigurationError(err))
}

func TestNewGeminiGenerator_DefaultModel(t *testing.T) {
	g, err := NewGeminiGenerator(context.Background(), Config{APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModelName, g.Model())
}
