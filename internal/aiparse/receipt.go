package aiparse

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-ingest/internal/categorize"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/extract"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/receipt"
)

// ReceiptParser turns a model's single-object reply into receipt fields.
type ReceiptParser struct {
	gen Generator
}

// NewReceiptParser returns a parser that sends requests through gen.
func NewReceiptParser(gen Generator) *ReceiptParser {
	return &ReceiptParser{gen: gen}
}

// ParseImage sends the receipt image inline; its MIME type comes from filename.
func (p *ReceiptParser) ParseImage(ctx context.Context, data []byte, filename string) (receipt.Fields, error) {
	raw, err := p.gen.Generate(ctx, Request{
		Prompt: ReceiptPrompt,
		Inline: &InlineData{Data: data, MIMEType: extract.MIMEType(filename)},
	})
	if err != nil {
		return receipt.Fields{}, &domain.AIParseError{Msg: "receipt request failed", Err: err}
	}
	return TransformReceipt(ctx, raw)
}

// ParseText sends already extracted receipt text.
func (p *ReceiptParser) ParseText(ctx context.Context, text string) (receipt.Fields, error) {
	raw, err := p.gen.Generate(ctx, Request{Prompt: receiptTextPrompt(text)})
	if err != nil {
		return receipt.Fields{}, &domain.AIParseError{Msg: "receipt request failed", Err: err}
	}
	return TransformReceipt(ctx, raw)
}

// TransformReceipt validates a raw receipt reply. Null or unusable values
// leave the field unset; wrong JSON types are an *AIParseError.
func TransformReceipt(ctx context.Context, raw string) (receipt.Fields, error) {
	log := logger.FromContext(ctx)

	parsed, err := decodeModelJSON(raw)
	if err != nil {
		return receipt.Fields{}, err
	}
	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return receipt.Fields{}, &domain.AIParseError{Msg: fmt.Sprintf("top-level value is %T, want object", parsed), Raw: raw}
	}

	amount, err := getOptionalDecimalField(obj, "totalAmount")
	if err != nil {
		return receipt.Fields{}, &domain.AIParseError{Msg: "receipt", Raw: raw, Err: err}
	}
	dateStr, err := getOptionalStringField(obj, "transactionDate")
	if err != nil {
		return receipt.Fields{}, &domain.AIParseError{Msg: "receipt", Raw: raw, Err: err}
	}
	desc, err := getOptionalStringField(obj, "description")
	if err != nil {
		return receipt.Fields{}, &domain.AIParseError{Msg: "receipt", Raw: raw, Err: err}
	}

	f := receipt.Fields{Confidence: domain.ConfidenceHigh, Description: receipt.DefaultDescription}
	if amount != nil {
		if a := amount.Abs(); a.IsPositive() {
			f.Amount = &a
		} else {
			log.Warn().Str("amount", amount.String()).Msg("aiparse: ignoring non-positive receipt total")
		}
	}
	if dateStr != nil {
		if d, ok := parseModelDate(*dateStr); ok {
			f.Date = &d
		} else {
			log.Warn().Str("date", *dateStr).Msg("aiparse: ignoring unreadable receipt date")
		}
	}
	if desc != nil {
		f.Description = domain.CollapseSpaces(*desc)
	}
	f.Category = categorize.Categorize(f.Description, true)
	return f, nil
}
