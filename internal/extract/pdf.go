package extract

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

// PDFExtractor rebuilds text lines from positioned PDF text fragments.
type PDFExtractor struct{}

// NewPDFExtractor returns a PDFExtractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract reads every page and returns the lines joined with "\n". Pages are
// separated by a blank line.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte, filename string) (text string, err error) {
	log := logger.FromContext(ctx)

	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = domain.NewExtractionError(filename, "corrupt pdf", fmt.Errorf("%v", r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.NewExtractionError(filename, "corrupt pdf", err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("PDFExtractor.Extract: %w", err)
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		lines := LayoutLines(p.Content().Text)
		if len(lines) > 0 {
			pages = append(pages, strings.Join(lines, "\n"))
		}
	}

	text = strings.Join(pages, "\n\n")
	if strings.TrimSpace(text) == "" {
		return "", domain.NewExtractionError(filename, "no text in pdf", nil)
	}

	log.Debug().Str("filename", filename).Int("pages", r.NumPage()).Msg("pdf: extracted")
	return text, nil
}

// yTolerance is how far apart two baselines may be and still count as one line.
const yTolerance = 0.5

// LayoutLines groups fragments sharing a baseline into lines, top of page
// first, each ordered left to right. A space is inserted where a horizontal
// gap separates two fragments.
func LayoutLines(texts []pdf.Text) []string {
	if len(texts) == 0 {
		return nil
	}

	frags := make([]pdf.Text, 0, len(texts))
	for _, t := range texts {
		if t.S != "" {
			frags = append(frags, t)
		}
	}
	sort.SliceStable(frags, func(i, j int) bool { return frags[i].Y > frags[j].Y })

	var lines []string
	for start := 0; start < len(frags); {
		end := start + 1
		for end < len(frags) && frags[start].Y-frags[end].Y <= yTolerance {
			end++
		}
		row := frags[start:end]
		sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })
		lines = appendLine(lines, joinRow(row))
		start = end
	}
	return lines
}

func joinRow(row []pdf.Text) string {
	var b strings.Builder
	for i := range row {
		if i > 0 && needsSpace(&row[i-1], &row[i]) {
			b.WriteByte(' ')
		}
		b.WriteString(row[i].S)
	}
	return b.String()
}

func appendLine(lines []string, line string) []string {
	line = strings.TrimRight(line, " \t")
	if strings.TrimSpace(line) == "" {
		return lines
	}
	return append(lines, line)
}

func needsSpace(prev, cur *pdf.Text) bool {
	if strings.HasSuffix(prev.S, " ") || strings.HasPrefix(cur.S, " ") {
		return false
	}
	gap := cur.X - (prev.X + prev.W)
	threshold := prev.FontSize * 0.2
	if threshold <= 0 {
		threshold = 1
	}
	return gap > threshold
}
