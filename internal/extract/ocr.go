package extract

import (
	"context"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

// Annotator is the subset of the Vision client used for OCR.
type Annotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

// OCRExtractor reads text from images with Cloud Vision document text detection.
type OCRExtractor struct {
	client Annotator
}

// NewOCRExtractor creates a Vision client. Credentials come from the
// environment (Application Default Credentials).
func NewOCRExtractor(ctx context.Context) (*OCRExtractor, error) {
	client, err := vision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, &domain.ConfigurationError{Component: "ocr", Msg: "create vision client", Err: err}
	}
	return &OCRExtractor{client: client}, nil
}

// NewOCRExtractorWithClient wraps an existing annotator.
func NewOCRExtractorWithClient(client Annotator) *OCRExtractor {
	return &OCRExtractor{client: client}
}

// Extract returns the full text annotation of the image.
func (e *OCRExtractor) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	log := logger.FromContext(ctx)

	resp, err := e.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: data},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		return "", domain.NewExtractionError(filename, "ocr request failed", err)
	}
	if len(resp.GetResponses()) == 0 {
		return "", domain.NewExtractionError(filename, "ocr returned no response", nil)
	}

	r := resp.GetResponses()[0]
	if st := r.GetError(); st != nil && st.GetCode() != 0 {
		return "", domain.NewExtractionError(filename, "ocr failed", fmt.Errorf("code %d: %s", st.GetCode(), st.GetMessage()))
	}

	text := r.GetFullTextAnnotation().GetText()
	if strings.TrimSpace(text) == "" {
		return "", domain.NewExtractionError(filename, "no text found in image", nil)
	}

	log.Debug().Str("filename", filename).Int("chars", len(text)).Msg("ocr: extracted")
	return text, nil
}

// Close releases the Vision client.
func (e *OCRExtractor) Close() error {
	return e.client.Close()
}

// DisabledOCR rejects every image. It stands in when OCR is switched off.
type DisabledOCR struct{}

func (DisabledOCR) Extract(_ context.Context, _ []byte, filename string) (string, error) {
	return "", domain.NewExtractionError(filename, "ocr disabled", nil)
}
