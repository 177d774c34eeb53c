package classify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClassifier implements Classifier using the Google Generative AI SDK
// with inline image parts.
type GeminiClassifier struct {
	apiKey string
	model  string
}

// GeminiOption configures the Gemini classifier.
type GeminiOption func(*GeminiClassifier)

// WithGeminiModel sets the model name.
func WithGeminiModel(model string) GeminiOption {
	return func(c *GeminiClassifier) { c.model = model }
}

// NewGeminiClassifier creates a new Gemini-backed classifier.
func NewGeminiClassifier(apiKey string, opts ...GeminiOption) *GeminiClassifier {
	c := &GeminiClassifier{apiKey: apiKey, model: "gemini-2.0-flash"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify sends the item's images to Gemini and parses the structured result.
func (c *GeminiClassifier) Classify(ctx context.Context, imagePaths []string, boxID string) (*Result, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, failf("create gemini client: %v", err)
	}
	defer client.Close()

	model := client.GenerativeModel(c.model)
	model.SetTemperature(0.2)

	parts := []genai.Part{genai.Text(buildClassifyPrompt(boxID, len(imagePaths)))}
	for _, path := range imagePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, failf("read image %s: %v", filepath.Base(path), err)
		}
		parts = append(parts, genai.ImageData(imageFormat(path), data))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, failf("gemini: %v", err)
	}

	text, err := firstText(resp)
	if err != nil {
		return nil, err
	}
	return parseResult(text)
}

func firstText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", failf("no candidates returned from gemini")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", failf("empty content returned from gemini")
	}
	if txt, ok := candidate.Content.Parts[0].(genai.Text); ok {
		return string(txt), nil
	}
	return "", failf("unexpected response format from gemini: %v", fmt.Sprintf("%T", candidate.Content.Parts[0]))
}

// imageFormat maps a file extension to the format label genai expects.
func imageFormat(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "jpg", "jpeg":
		return "jpeg"
	case "png", "gif", "webp", "heic":
		return ext
	default:
		return "jpeg"
	}
}
