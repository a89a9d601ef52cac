package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
)

// Extractor turns record content into HealthData. Every failure still yields empty
// data so that callers can continue with a degraded result.
type Extractor struct {
	client *Client
}

func NewExtractor(client *Client) *Extractor {
	return &Extractor{client: client}
}

func (e *Extractor) ExtractFromText(ctx context.Context, text string) (domain.HealthData, error) {
	messages := []message{
		{Role: "system", Content: e.client.prompts.Extraction},
		{Role: "user", Content: e.client.prompts.ExtractionUserPrefix + text},
	}
	return e.extract(ctx, "extract_text", e.client.textModel, messages)
}

func (e *Extractor) ExtractFromImage(ctx context.Context, image []byte, mimeType string) (domain.HealthData, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	messages := []message{
		{Role: "user", Content: []contentPart{
			{Type: "text", Text: e.client.prompts.Extraction},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		}},
	}
	return e.extract(ctx, "extract_image", e.client.visionModel, messages)
}

func (e *Extractor) extract(ctx context.Context, operation, model string, messages []message) (domain.HealthData, error) {
	raw, err := e.client.completeJSON(ctx, operation, model, messages)
	if err != nil {
		return domain.EmptyHealthData(), err
	}

	var data domain.HealthData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return domain.EmptyHealthData(), fmt.Errorf("parse health data json: %w", err)
	}
	return data.Normalize(), nil
}
