package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pixelvault/vault/common/apperr"
	"github.com/pixelvault/vault/common/config"
	"github.com/pixelvault/vault/common/logger"
)

// VisionCaller submits an image to a vision-capable model and returns the
// raw model text. Parsing and recovery live in the analysis service.
type VisionCaller interface {
	Describe(ctx context.Context, imageData []byte, mimeType string) (string, error)
}

// visionPrompt demands a single JSON object so the response parses without
// heuristics on the happy path.
const visionPrompt = `Analyze this image and return ONLY a valid JSON object with this exact structure:
{
  "description": "A detailed 2-3 sentence description of what you see in the image, including objects, colors, setting, and style",
  "tags": ["tag1", "tag2", "tag3", "tag4", "tag5"]
}

Rules:
- Return ONLY the JSON object, no other text
- Description should be 2-3 sentences describing key visual elements
- Tags should be 5-8 relevant, lowercase, searchable keywords
- Focus on objects, colors, emotions, style, setting, actions
- No markdown formatting, no code blocks, just pure JSON`

// GatewayVisionClient calls an OpenAI-compatible chat-completions gateway
type GatewayVisionClient struct {
	gatewayURL string
	apiKey     string
	model      string
	httpClient *http.Client
	log        *logger.Logger
}

// NewGatewayVisionClient creates a vision client from configuration.
// Returns nil when no API key is configured; the analysis service treats
// a nil client as "primary path unavailable" and goes straight to the
// fallback heuristic.
func NewGatewayVisionClient(cfg *config.Config, log *logger.Logger) *GatewayVisionClient {
	if cfg.Analysis.APIKey == "" {
		log.Warn("vision API key not configured, analysis will use the local heuristic only")
		return nil
	}

	return &GatewayVisionClient{
		gatewayURL: cfg.Analysis.GatewayURL,
		apiKey:     cfg.Analysis.APIKey,
		model:      cfg.Analysis.Model,
		httpClient: &http.Client{Timeout: cfg.Analysis.Timeout},
		log:        log,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Describe submits the image inline as a base64 data URL and returns the
// model's raw text response.
func (c *GatewayVisionClient) Describe(ctx context.Context, imageData []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(imageData))

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContent{
				{Type: "text", Text: visionPrompt},
				{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL}},
			},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal vision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build vision request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("vision gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read vision response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", apperr.Upstream(
			fmt.Sprintf("vision gateway returned %d", resp.StatusCode),
			fmt.Errorf("%s", respBody),
		)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode vision response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("vision response contained no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}
