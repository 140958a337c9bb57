package extraction

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model name is configured
const DefaultGeminiModel = "gemini-2.0-flash"

// Gemini implements Model using the Google Gemini SDK
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini model client
func NewGemini(apiKey string, modelName string, opts ...option.ClientOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Generate sends the image and prompt and returns the concatenated text parts of the first candidate
func (g *Gemini) Generate(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	// genai.ImageData takes the format suffix ("jpeg"), not the full MIME type
	parts := []genai.Part{
		genai.Text(prompt),
		genai.ImageData(strings.TrimPrefix(mimeType, "image/"), image),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("calling gemini: %w", classifyGeminiError(err))
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrNoResponse
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String(), nil
}

// classifyGeminiError marks blocked prompts and client errors as final
func classifyGeminiError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &modelError{err: err}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &modelError{err: err, retryable: retryableStatus(gerr.Code)}
	}

	// apierror.APIError from the generated client
	var herr interface{ HTTPCode() int }
	if errors.As(err, &herr) {
		return &modelError{err: err, retryable: retryableStatus(herr.HTTPCode())}
	}
	return err
}

// ModelInfo describes a hosted model that can be used for extraction
type ModelInfo struct {
	Name        string
	DisplayName string
	Description string
}

// ListModels returns the models that support generateContent
func (g *Gemini) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var models []ModelInfo
	it := g.client.ListModels(ctx)
	for {
		m, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing models: %w", err)
		}
		if !slices.Contains(m.SupportedGenerationMethods, "generateContent") {
			continue
		}
		models = append(models, ModelInfo{
			Name:        m.Name,
			DisplayName: m.DisplayName,
			Description: m.Description,
		})
	}
	return models, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
