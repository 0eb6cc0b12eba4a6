// Package aiparse delegates statement and receipt parsing to a generative
// model and validates the JSON it sends back.
package aiparse

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// DefaultModelName is the default Gemini model used for parsing.
const DefaultModelName = "gemini-2.5-flash"

// DefaultLocation is the Vertex AI region used when none is configured.
const DefaultLocation = "us-central1"

// InlineData is binary content sent alongside the prompt.
type InlineData struct {
	Data     []byte
	MIMEType string
}

// Request is one prompt, optionally with an attached document or image.
type Request struct {
	Prompt string
	Inline *InlineData
}

// Generator sends a request to a model and returns its raw text reply.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config selects the Gemini backend and model.
type Config struct {
	APIKey    string
	Model     string
	UseVertex bool
	Project   string
	Location  string
}

// GeminiGenerator is the Generator backed by the Gemini API or Vertex AI.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator validates cfg and builds the client. Missing credentials
// are reported here as a *domain.ConfigurationError, never on first use.
func NewGeminiGenerator(ctx context.Context, cfg Config) (*GeminiGenerator, error) {
	cc := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}

	if cfg.UseVertex {
		if strings.TrimSpace(cfg.Project) == "" {
			return nil, &domain.ConfigurationError{Component: "gemini", Msg: "GOOGLE_CLOUD_PROJECT is required for Vertex AI"}
		}
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		if cc.Location == "" {
			cc.Location = DefaultLocation
		}
	} else {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, &domain.ConfigurationError{Component: "gemini", Msg: "GEMINI_API_KEY is not set"}
		}
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, &domain.ConfigurationError{Component: "gemini", Msg: "create genai client", Err: err}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Model returns the model name requests are sent to.
func (g *GeminiGenerator) Model() string { return g.model }

// Generate sends the prompt and inline blob as a single user turn.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	parts := []*genai.Part{{Text: req.Prompt}}
	if req.Inline != nil {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: req.Inline.MIMEType,
				Data:     req.Inline.Data,
			},
		})
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GeminiGenerator.Generate: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return "", fmt.Errorf("GeminiGenerator.Generate: empty response from model")
	}
	return rawText, nil
}
