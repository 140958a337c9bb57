package extraction

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/zombor/card-scanner/internal/contact"
)

// GenAI implements Model using the google.golang.org/genai SDK. The reply is
// constrained to a JSON object with the seven nullable contact fields.
type GenAI struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGenAI creates a new GenAI model client
func NewGenAI(apiKey, modelName string) (*GenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GenAI{
		client: client,
		model:  modelName,
		config: &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   recordSchema(),
		},
	}, nil
}

// recordSchema describes the contact record for structured output
func recordSchema() *genai.Schema {
	keys := make([]string, 0, len(contact.Fields))
	props := make(map[string]*genai.Schema, len(contact.Fields))
	for _, f := range contact.Fields {
		keys = append(keys, f.Key)
		props[f.Key] = &genai.Schema{
			Type:        genai.TypeString,
			Description: f.Label,
			Nullable:    genai.Ptr(true),
		}
	}
	return &genai.Schema{
		Type:             genai.TypeObject,
		Properties:       props,
		Required:         keys,
		PropertyOrdering: keys,
	}
}

// Generate sends the image and prompt and returns the reply text
func (g *GenAI) Generate(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(image, mimeType),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.config)
	if err != nil {
		return "", fmt.Errorf("calling genai: %w", classifyGenAIError(err))
	}

	text := resp.Text()
	if text == "" {
		return "", ErrNoResponse
	}
	return text, nil
}

// classifyGenAIError marks client errors from the API as final
func classifyGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &modelError{err: err, retryable: retryableStatus(apiErr.Code)}
	}
	return err
}

// Close is a no-op; the genai client holds no resources that need releasing
func (g *GenAI) Close() error {
	return nil
}
