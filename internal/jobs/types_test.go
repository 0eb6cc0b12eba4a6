package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-ingest/internal/ingest"
)

type fakeStatements struct{ got *ingest.StatementRequest }

func (f *fakeStatements) Ingest(_ context.Context, req ingest.StatementRequest) (*ingest.Report, error) {
	f.got = &req
	return &ingest.Report{Mode: req.Mode}, nil
}

type fakeReceipts struct{ got *ingest.ReceiptRequest }

func (f *fakeReceipts) Ingest(_ context.Context, req ingest.ReceiptRequest) (*ingest.Report, error) {
	f.got = &req
	return &ingest.Report{Mode: req.Mode}, nil
}

func TestIngestHandler_Dispatch(t *testing.T) {
	st, rc := &fakeStatements{}, &fakeReceipts{}
	h := IngestHandler(st, rc)
	ctx := context.Background()

	rep, err := h(ctx, &Job{Kind: KindStatement, Statement: &ingest.StatementRequest{Path: "s.pdf", Mode: ingest.ModeAI}})
	require.NoError(t, err)
	assert.Equal(t, ingest.ModeAI, rep.Mode)
	assert.Equal(t, "s.pdf", st.got.Path)
	assert.Nil(t, rc.got)

	_, err = h(ctx, &Job{Kind: KindReceipt, Receipt: &ingest.ReceiptRequest{Path: "r.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, "r.jpg", rc.got.Path)

	_, err = h(ctx, &Job{Kind: KindReceipt, Statement: &ingest.StatementRequest{}})
	assert.Error(t, err)
}
