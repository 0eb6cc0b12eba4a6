package ingest

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-ingest/internal/artifact"
	"github.com/dvloznov/statement-ingest/internal/categorize"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/receipt"
	"github.com/dvloznov/statement-ingest/internal/store/memory"
)

// MockExtractor returns the artifact bytes as text unless ExtractFunc is set.
type MockExtractor struct {
	ExtractFunc func(ctx context.Context, data []byte, filename string) (string, error)
	Calls       int
}

func (m *MockExtractor) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	m.Calls++
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, data, filename)
	}
	return string(data), nil
}

// MockStore is an in-memory store whose InsertMany can be replaced.
type MockStore struct {
	*memory.Store
	InsertManyFunc func(ctx context.Context, c []*domain.Candidate) (*domain.InsertResult, error)
	InsertCalls    int
}

func newMockStore() *MockStore {
	return &MockStore{Store: memory.New()}
}

func (m *MockStore) InsertMany(ctx context.Context, c []*domain.Candidate) (*domain.InsertResult, error) {
	m.InsertCalls++
	if m.InsertManyFunc != nil {
		return m.InsertManyFunc(ctx, c)
	}
	return m.Store.InsertMany(ctx, c)
}

type MockStatementAI struct {
	ParseTextFunc     func(ctx context.Context, text, ownerID string) (*domain.ParseResult, error)
	ParseDocumentFunc func(ctx context.Context, pdfBytes []byte, ownerID string) (*domain.ParseResult, error)
	TextCalls         int
	DocumentCalls     int
}

func (m *MockStatementAI) ParseText(ctx context.Context, text, ownerID string) (*domain.ParseResult, error) {
	m.TextCalls++
	return m.ParseTextFunc(ctx, text, ownerID)
}

func (m *MockStatementAI) ParseDocument(ctx context.Context, pdfBytes []byte, ownerID string) (*domain.ParseResult, error) {
	m.DocumentCalls++
	return m.ParseDocumentFunc(ctx, pdfBytes, ownerID)
}

type MockReceiptAI struct {
	ParseImageFunc func(ctx context.Context, data []byte, filename string) (receipt.Fields, error)
	Calls          int
}

func (m *MockReceiptAI) ParseImage(ctx context.Context, data []byte, filename string) (receipt.Fields, error) {
	m.Calls++
	return m.ParseImageFunc(ctx, data, filename)
}

const fiveTxStatement = `ACME BANK
BALANCE B/F 1000.00 CR
01/03/2024 01/03/2024 UPI/PAYMENT TO SHOP 150.00 850.00 CR
02/03/2024 02/03/2024 UBER TRIP 250.00 600.00 CR
03/03/2024 03/03/2024 NETFLIX SUBSCRIPTION 199.00 401.00 CR
04/03/2024 04/03/2024 NEFT SALARY MARCH 0.00 5000.00 5401.00 CR
05/03/2024 05/03/2024 BIGBASKET ORDER 300.00 5101.00 CR
`

const uberOnlyStatement = `BALANCE B/F 1000.00 CR
02/03/2024 02/03/2024 UBER TRIP 250.00 600.00 CR
`

func newArtifacts(t *testing.T) *artifact.LocalStore {
	t.Helper()
	s, err := artifact.NewLocalStore(t.TempDir(), "/uploads/")
	require.NoError(t, err)
	return s
}

func save(t *testing.T, s *artifact.LocalStore, filename, content string) string {
	t.Helper()
	name, err := s.Save(context.Background(), filename, strings.NewReader(content))
	require.NoError(t, err)
	return name
}

func exists(s *artifact.LocalStore, name string) bool {
	_, err := os.Stat(s.FullPath(name))
	return err == nil
}

func TestStatementIngester_CountsDuplicates(t *testing.T) {
	ctx := context.Background()
	arts := newArtifacts(t)
	st := newMockStore()
	ing := NewStatementIngester(arts, &MockExtractor{}, st, nil, ModeHeuristic)

	first := save(t, arts, "feb.pdf", uberOnlyStatement)
	rep, err := ing.Ingest(ctx, StatementRequest{OwnerID: "user-1", Path: first, Filename: "feb.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Inserted)

	path := save(t, arts, "mar.pdf", fiveTxStatement)
	rep, err = ing.Ingest(ctx, StatementRequest{OwnerID: "user-1", Path: path, Filename: "mar.pdf"})
	require.NoError(t, err)

	assert.Equal(t, PhaseDone, rep.Status)
	assert.True(t, rep.Success)
	assert.True(t, rep.Partial)
	assert.Equal(t, 5, rep.Processed)
	assert.Equal(t, 4, rep.Inserted)
	assert.Equal(t, 1, rep.Skipped)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, 1, rep.Errors[0].Index)
	assert.Equal(t, ModeHeuristic, rep.Mode)
	assert.NotEmpty(t, rep.IngestionID)
	assert.Contains(t, rep.RawTextPreview, "ACME BANK")

	assert.False(t, exists(arts, first))
	assert.False(t, exists(arts, path))
	assert.Len(t, st.Records("user-1"), 5)

	found, err := st.FindCategory(ctx, categorize.Salary, domain.TxIncome, "user-1")
	require.NoError(t, err)
	assert.NotNil(t, found, "categories are created lazily")
	found, err = st.FindCategory(ctx, categorize.Entertainment, domain.TxExpense, "user-1")
	require.NoError(t, err)
	assert.NotNil(t, found)
}

const repeatedPurchaseStatement = `BALANCE B/F 1000.00 CR
01/02/2024 01/02/2024 STARBUCKS COFFEE 150.00 850.00 CR
01/02/2024 01/02/2024 STARBUCKS COFFEE 150.00 700.00 CR
`

func TestStatementIngester_KeepsRepeatedRows(t *testing.T) {
	ctx := context.Background()
	arts := newArtifacts(t)
	st := newMockStore()
	ing := NewStatementIngester(arts, &MockExtractor{}, st, nil, ModeHeuristic)

	path := save(t, arts, "feb.pdf", repeatedPurchaseStatement)
	rep, err := ing.Ingest(ctx, StatementRequest{OwnerID: "user-1", Path: path, Filename: "feb.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Processed)
	assert.Equal(t, 2, rep.Inserted)
	assert.Equal(t, 0, rep.Skipped)
	assert.Len(t, st.Records("user-1"), 2)

	again := save(t, arts, "feb-copy.pdf", repeatedPurchaseStatement)
	rep, err = ing.Ingest(ctx, StatementRequest{OwnerID: "user-1", Path: again, Filename: "feb-copy.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Inserted)
	assert.Equal(t, 2, rep.Skipped)
	assert.Len(t, st.Records("user-1"), 2)
}

func TestStatementIngester_CategoriesOnlyForAcceptedRows(t *testing.T) {
	ctx := context.Background()
	arts := newArtifacts(t)
	st := newMockStore()

	row := func(desc, category, amount string) *domain.Candidate {
		return &domain.Candidate{
			Date:        civil.Date{Year: 2024, Month: 3, Day: 9},
			Amount:      decimal.RequireFromString(amount),
			Type:        domain.TxExpense,
			Description: desc,
			Category:    category,
			OwnerID:     "u",
		}
	}
	stored := row("Old flight", categorize.Travel, "90.00")
	res, err := st.Store.InsertMany(ctx, []*domain.Candidate{stored})
	require.NoError(t, err)
	require.Equal(t, 1, res.Inserted)

	ai := &MockStatementAI{ParseTextFunc: func(_ context.Context, _, _ string) (*domain.ParseResult, error) {
		return &domain.ParseResult{Candidates: []*domain.Candidate{
			row("Pharmacy", categorize.Healthcare, "12.00"),
			row("Old flight", categorize.Travel, "90.00"),
			row("Free gift", categorize.Shopping, "0"),
		}}, nil
	}}
	ing := NewStatementIngester(arts, &MockExtractor{}, st, ai, ModeAI)

	path := save(t, arts, "mixed.pdf", "anything")
	rep, err := ing.Ingest(ctx, StatementRequest{OwnerID: "u", Path: path, Filename: "mixed.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Inserted)
	assert.Equal(t, 2, rep.Skipped)

	found, err := st.FindCategory(ctx, categorize.Healthcare, domain.TxExpense, "u")
	require.NoError(t, err)
	assert.NotNil(t, found)
	for _, name := range []string{categorize.Travel, categorize.Shopping} {
		found, err := st.FindCategory(ctx, name, domain.TxExpense, "u")
		require.NoError(t, err)
		assert.Nil(t, found, name)
	}
}

func TestStatementIngester_ExtractionFailureDeletesArtifact(t *testing.T) {
	arts := newArtifacts(t)
	st := newMockStore()
	ext := &MockExtractor{ExtractFunc: func(context.Context, []byte, string) (string, error) {
		return "", domain.NewExtractionError("scan.pdf", "no text layer", nil)
	}}
	ing := NewStatementIngester(arts, ext, st, nil, "")

	path := save(t, arts, "scan.pdf", "%PDF-1.4")
	rep, err := ing.Ingest(context.Background(), StatementRequest{OwnerID: "u", Path: path, Filename: "scan.pdf"})

	require.Error(t, err)
	assert.True(t, domain.IsExtractionError(err))
	assert.Equal(t, PhaseFailed, rep.Status)
	assert.False(t, rep.Success)
	assert.Contains(t, rep.Message, "no text layer")
	assert.False(t, exists(arts, path))
	assert.Equal(t, 0, st.InsertCalls)
}

func TestStatementIngester_MissingArtifact(t *testing.T) {
	arts := newArtifacts(t)
	ing := NewStatementIngester(arts, &MockExtractor{}, newMockStore(), nil, "")

	_, err := ing.Ingest(context.Background(), StatementRequest{OwnerID: "u", Path: "gone.pdf", Filename: "gone.pdf"})
	assert.True(t, domain.IsExtractionError(err))
}

func TestStatementIngester_NoTransactionsIsSoft(t *testing.T) {
	arts := newArtifacts(t)
	st := newMockStore()
	ing := NewStatementIngester(arts, &MockExtractor{}, st, nil, ModeHeuristic)

	path := save(t, arts, "letter.pdf", "Dear customer,\nthis is not a statement.")
	rep, err := ing.Ingest(context.Background(), StatementRequest{OwnerID: "u", Path: path, Filename: "letter.pdf"})

	require.NoError(t, err)
	assert.True(t, rep.Success)
	assert.False(t, rep.Partial)
	assert.Equal(t, PhaseDone, rep.Status)
	assert.Equal(t, domain.ErrNoTransactions.Error(), rep.Message)
	assert.Zero(t, rep.Processed)
	assert.Zero(t, rep.Inserted)
	assert.Zero(t, rep.Skipped)
	assert.NotNil(t, rep.Candidates)
	assert.Equal(t, 0, st.InsertCalls)
	assert.False(t, exists(arts, path))
}

func aiRow(desc string) *domain.ParseResult {
	return &domain.ParseResult{Candidates: []*domain.Candidate{{
		Date:        civil.Date{Year: 2024, Month: 3, Day: 9},
		Amount:      decimal.RequireFromString("42.00"),
		Type:        domain.TxExpense,
		Description: desc,
		Category:    categorize.Categorize(desc, true),
		OwnerID:     "u",
	}}}
}

func TestStatementIngester_AutoFallsBackToAI(t *testing.T) {
	arts := newArtifacts(t)
	ai := &MockStatementAI{ParseTextFunc: func(_ context.Context, text, owner string) (*domain.ParseResult, error) {
		assert.Contains(t, text, "unfamiliar layout")
		return aiRow("Coffee shop"), nil
	}}
	ing := NewStatementIngester(arts, &MockExtractor{}, newMockStore(), ai, ModeAuto)

	path := save(t, arts, "odd.pdf", "an unfamiliar layout\n09 Mar coffee 42.00")
	rep, err := ing.Ingest(context.Background(), StatementRequest{OwnerID: "u", Path: path, Filename: "odd.pdf"})

	require.NoError(t, err)
	assert.Equal(t, 1, ai.TextCalls)
	assert.Equal(t, 1, rep.Inserted)
	assert.Equal(t, ModeAuto, rep.Mode)
	assert.False(t, exists(arts, path))
}

func TestStatementIngester_AutoSkipsAIWhenHeuristicsSucceed(t *testing.T) {
	arts := newArtifacts(t)
	ai := &MockStatementAI{}
	ing := NewStatementIngester(arts, &MockExtractor{}, newMockStore(), ai, ModeAuto)

	path := save(t, arts, "mar.pdf", fiveTxStatement)
	rep, err := ing.Ingest(context.Background(), StatementRequest{OwnerID: "u", Path: path, Filename: "mar.pdf"})

	require.NoError(t, err)
	assert.Equal(t, 5, rep.Inserted)
	assert.Zero(t, ai.TextCalls)
}

func TestStatementIngester_AutoWithoutAIDegrades(t *testing.T) {
	arts := newArtifacts(t)
	ing := NewStatementIngester(arts, &MockExtractor{}, newMockStore(), nil, ModeAuto)

	path := save(t, arts, "x.pdf", "nothing here")
	rep, err := ing.Ingest(context.Background(), StatementRequest{OwnerID: "u", Path: path, Filename: "x.pdf"})
	require.NoError(t, err)
	assert.Equal(t, ModeHeuristic, rep.Mode)
}

func TestStatementIngester_AIModeSendsDocumentWithoutText(t *testing.T) {
	arts := newArtifacts(t)
	ext := &MockExtractor{ExtractFunc: func(context.Context, []byte, string) (string, error) {
		return "", domain.NewExtractionError("scan.pdf", "no text found", nil)
	}}
	ai := &MockStatementAI{ParseDocumentFunc: func(_ context.Context, data []byte, _ string) (*domain.ParseResult, error) {
		assert.Equal(t, "%PDF-1.4 scanned", string(data))
		return aiRow("Uber ride"), nil
	}}
	ing := NewStatementIngester(arts, ext, newMockStore(), ai, ModeHeuristic)

	path := save(t, arts, "scan.pdf", "%PDF-1.4 scanned")
	rep, err := ing.Ingest(context.Background(), StatementRequest{OwnerID: "u", Path: path, Filename: "scan.pdf", Mode: ModeAI})

	require.NoError(t, err)
	assert.Equal(t, 1, ai.DocumentCalls)
	assert.Equal(t, 0, ai.TextCalls)
	assert.Equal(t, 1, rep.Inserted)
}

func TestStatementIngester_AIFailure(t *testing.T) {
	arts := newArtifacts(t)
	ai := &MockStatementAI{ParseTextFunc: func(context.Context, string, string) (*domain.ParseResult, error) {
		return nil, &domain.AIParseError{Msg: "invalid JSON"}
	}}
	ing := NewStatementIngester(arts, &MockExtractor{}, newMockStore(), ai, ModeAI)

	path := save(t, arts, "s.pdf", "text")
	rep, err := ing.Ingest(context.Background(), StatementRequest{OwnerID: "u", Path: path, Filename: "s.pdf"})

	assert.True(t, domain.IsAIParseError(err))
	assert.Equal(t, PhaseFailed, rep.Status)
	assert.False(t, exists(arts, path))
}

func TestStatementIngester_AIModeWithoutParser(t *testing.T) {
	arts := newArtifacts(t)
	ing := NewStatementIngester(arts, &MockExtractor{}, newMockStore(), nil, ModeHeuristic)

	path := save(t, arts, "s.pdf", "text")
	_, err := ing.Ingest(context.Background(), StatementRequest{OwnerID: "u", Path: path, Filename: "s.pdf", Mode: ModeAI})

	assert.True(t, domain.IsConfigurationError(err))
	assert.False(t, exists(arts, path))
}

func TestStatementIngester_StoreFailure(t *testing.T) {
	arts := newArtifacts(t)
	st := newMockStore()
	st.InsertManyFunc = func(context.Context, []*domain.Candidate) (*domain.InsertResult, error) {
		return nil, errors.New("connection refused")
	}
	ing := NewStatementIngester(arts, &MockExtractor{}, st, nil, ModeHeuristic)

	path := save(t, arts, "mar.pdf", fiveTxStatement)
	rep, err := ing.Ingest(context.Background(), StatementRequest{OwnerID: "u", Path: path, Filename: "mar.pdf"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, PhaseFailed, rep.Status)
	assert.Equal(t, 5, rep.Processed)
	assert.False(t, exists(arts, path))
}

// Leading bytes that content sniffing recognizes as the declared image type.
const (
	jpegHeader = "\xff\xd8\xff\xe0\x00\x10JFIF\x00"
	webpHeader = "RIFF\x24\x00\x00\x00WEBPVP8 "
)

const starbucksReceipt = `STARBUCKS COFFEE
MG Road, Bengaluru
15/03/2024 10:42
Latte 250.00
Total: 262.50`

func TestReceiptIngester_RetainsArtifactOnInsert(t *testing.T) {
	arts := newArtifacts(t)
	st := newMockStore()
	ing := NewReceiptIngester(arts, &MockExtractor{}, st, nil, ModeHeuristic)

	path := save(t, arts, "r.jpg", starbucksReceipt)
	rep, err := ing.Ingest(context.Background(), ReceiptRequest{OwnerID: "u", Path: path, Filename: "r.jpg"})

	require.NoError(t, err)
	assert.Equal(t, 1, rep.Inserted)
	assert.True(t, exists(arts, path), "receipt image is referenced by the transaction")
	assert.Equal(t, "/uploads/"+path, rep.SourceURL)

	recs := st.Records("u")
	require.Len(t, recs, 1)
	assert.Equal(t, "/uploads/"+path, recs[0].SourceURL)
	assert.Equal(t, "Starbucks", recs[0].Description)
	assert.Equal(t, domain.TxExpense, recs[0].Type)
	assert.Equal(t, categorize.FoodAndDining, recs[0].Category)
	require.NotNil(t, rep.Receipt)
	assert.Equal(t, domain.ConfidenceHigh, rep.Receipt.Confidence)
}

func TestReceiptIngester_DuplicateDeletesArtifact(t *testing.T) {
	arts := newArtifacts(t)
	st := newMockStore()
	ing := NewReceiptIngester(arts, &MockExtractor{}, st, nil, ModeHeuristic)

	first := save(t, arts, "r.jpg", starbucksReceipt)
	_, err := ing.Ingest(context.Background(), ReceiptRequest{OwnerID: "u", Path: first, Filename: "r.jpg"})
	require.NoError(t, err)

	again := save(t, arts, "r.jpg", starbucksReceipt)
	rep, err := ing.Ingest(context.Background(), ReceiptRequest{OwnerID: "u", Path: again, Filename: "r.jpg"})

	require.NoError(t, err)
	assert.Equal(t, 0, rep.Inserted)
	assert.Equal(t, 1, rep.Skipped)
	assert.Empty(t, rep.SourceURL)
	assert.True(t, exists(arts, first))
	assert.False(t, exists(arts, again))
}

func TestReceiptIngester_IncompleteReceipt(t *testing.T) {
	arts := newArtifacts(t)
	st := newMockStore()
	ing := NewReceiptIngester(arts, &MockExtractor{}, st, nil, ModeHeuristic)

	path := save(t, arts, "r.png", "Corner Kiosk\nthanks for visiting")
	rep, err := ing.Ingest(context.Background(), ReceiptRequest{OwnerID: "u", Path: path, Filename: "r.png"})

	require.Error(t, err)
	var incomplete *domain.IncompleteReceiptError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, []string{"amount", "date"}, incomplete.Missing)
	assert.Equal(t, PhaseFailed, rep.Status)
	assert.False(t, exists(arts, path))
	assert.Equal(t, 0, st.InsertCalls)
}

func TestReceiptIngester_OverridesWin(t *testing.T) {
	arts := newArtifacts(t)
	st := newMockStore()
	ing := NewReceiptIngester(arts, &MockExtractor{}, st, nil, ModeHeuristic)

	amount := decimal.RequireFromString("99.00")
	date := civil.Date{Year: 2024, Month: 5, Day: 2}
	path := save(t, arts, "r.jpg", "Corner Kiosk\nthanks")
	rep, err := ing.Ingest(context.Background(), ReceiptRequest{
		OwnerID:  "u",
		Path:     path,
		Filename: "r.jpg",
		Overrides: Overrides{
			Amount:      &amount,
			Date:        &date,
			Description: "  Pharmacy   run ",
		},
	})

	require.NoError(t, err)
	require.Len(t, rep.Candidates, 1)
	c := rep.Candidates[0]
	assert.True(t, c.Amount.Equal(amount))
	assert.Equal(t, date, c.Date)
	assert.Equal(t, "Pharmacy run", c.Description)
	assert.Equal(t, categorize.Healthcare, c.Category)
}

func TestReceiptIngester_CategoryOverride(t *testing.T) {
	arts := newArtifacts(t)
	ing := NewReceiptIngester(arts, &MockExtractor{}, newMockStore(), nil, ModeHeuristic)

	path := save(t, arts, "r.jpg", starbucksReceipt)
	rep, err := ing.Ingest(context.Background(), ReceiptRequest{
		OwnerID: "u", Path: path, Filename: "r.jpg",
		Overrides: Overrides{Category: "Work Expenses"},
	})

	require.NoError(t, err)
	assert.Equal(t, "Work Expenses", rep.Candidates[0].Category)
}

func TestReceiptIngester_NonPositiveOverride(t *testing.T) {
	arts := newArtifacts(t)
	ing := NewReceiptIngester(arts, &MockExtractor{}, newMockStore(), nil, ModeHeuristic)

	zero := decimal.Zero
	path := save(t, arts, "r.jpg", starbucksReceipt)
	_, err := ing.Ingest(context.Background(), ReceiptRequest{
		OwnerID: "u", Path: path, Filename: "r.jpg",
		Overrides: Overrides{Amount: &zero},
	})
	assert.True(t, domain.IsIncompleteReceiptError(err))
	assert.False(t, exists(arts, path))
}

func TestReceiptIngester_AutoAsksModelForGaps(t *testing.T) {
	arts := newArtifacts(t)
	amount := decimal.RequireFromString("18.40")
	date := civil.Date{Year: 2024, Month: 6, Day: 1}
	ai := &MockReceiptAI{ParseImageFunc: func(_ context.Context, _ []byte, filename string) (receipt.Fields, error) {
		assert.Equal(t, "r.webp", filename)
		return receipt.Fields{Amount: &amount, Date: &date, Description: "Blue Bottle", Category: categorize.OtherExpenses}, nil
	}}
	ext := &MockExtractor{ExtractFunc: func(context.Context, []byte, string) (string, error) {
		return "Corner Kiosk\nsmudged", nil
	}}
	ing := NewReceiptIngester(arts, ext, newMockStore(), ai, ModeAuto)

	path := save(t, arts, "r.webp", webpHeader)
	rep, err := ing.Ingest(context.Background(), ReceiptRequest{OwnerID: "u", Path: path, Filename: "r.webp"})

	require.NoError(t, err)
	assert.Equal(t, 1, ai.Calls)
	c := rep.Candidates[0]
	assert.True(t, c.Amount.Equal(amount))
	assert.Equal(t, date, c.Date)
	assert.Equal(t, "Corner Kiosk", c.Description, "heuristic description is kept")
	assert.True(t, exists(arts, path))
}

func TestReceiptIngester_AIMode(t *testing.T) {
	arts := newArtifacts(t)
	ext := &MockExtractor{}
	amount := decimal.RequireFromString("7.25")
	date := civil.Date{Year: 2024, Month: 6, Day: 3}
	ai := &MockReceiptAI{ParseImageFunc: func(context.Context, []byte, string) (receipt.Fields, error) {
		return receipt.Fields{Amount: &amount, Date: &date, Description: "Tesco Express", Category: categorize.FoodAndDining}, nil
	}}
	ing := NewReceiptIngester(arts, ext, newMockStore(), ai, ModeHeuristic)

	path := save(t, arts, "r.jpg", jpegHeader)
	rep, err := ing.Ingest(context.Background(), ReceiptRequest{OwnerID: "u", Path: path, Filename: "r.jpg", Mode: ModeAI})

	require.NoError(t, err)
	assert.Equal(t, 0, ext.Calls, "ai mode reads the image directly")
	assert.Equal(t, "Tesco Express", rep.Candidates[0].Description)
	assert.Equal(t, 1, rep.Inserted)
}

func TestReceiptIngester_AIFailureDeletesArtifact(t *testing.T) {
	arts := newArtifacts(t)
	ai := &MockReceiptAI{ParseImageFunc: func(context.Context, []byte, string) (receipt.Fields, error) {
		return receipt.Fields{}, &domain.AIParseError{Msg: "receipt request failed"}
	}}
	ing := NewReceiptIngester(arts, &MockExtractor{}, newMockStore(), ai, ModeAI)

	path := save(t, arts, "r.jpg", jpegHeader)
	_, err := ing.Ingest(context.Background(), ReceiptRequest{OwnerID: "u", Path: path, Filename: "r.jpg"})
	assert.True(t, domain.IsAIParseError(err))
	assert.False(t, exists(arts, path))
}

func TestReceiptIngester_AIModeChecksContentType(t *testing.T) {
	for _, mode := range []Mode{ModeAI, ModeAuto} {
		t.Run(string(mode), func(t *testing.T) {
			arts := newArtifacts(t)
			ai := &MockReceiptAI{ParseImageFunc: func(context.Context, []byte, string) (receipt.Fields, error) {
				t.Fatal("model must not see a mislabelled upload")
				return receipt.Fields{}, nil
			}}
			ext := &MockExtractor{ExtractFunc: func(context.Context, []byte, string) (string, error) {
				return "", domain.NewExtractionError("r.jpg", "unreadable", nil)
			}}
			ing := NewReceiptIngester(arts, ext, newMockStore(), ai, mode)

			path := save(t, arts, "r.jpg", "%PDF-1.4 not really a photo")
			_, err := ing.Ingest(context.Background(), ReceiptRequest{OwnerID: "u", Path: path, Filename: "r.jpg"})

			assert.True(t, domain.IsExtractionError(err), "got %v", err)
			assert.Equal(t, 0, ai.Calls)
			assert.False(t, exists(arts, path))
		})
	}
}
