// Package summarize wraps the chat-completions API used to turn a content
// section into a structured summary (name, description, bullets, sample
// questions). The model is a black box; this package only owns the prompt
// and the response envelope.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/indrasol/ai-receptionist-backend/internal/chunker"
)

// Config holds summarizer client configuration.
type Config struct {
	BaseURL string // e.g. "https://api.openai.com/v1"
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// New creates a summarizer client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		model:      config.Model,
	}, nil
}

// chatRequest is the request payload for the chat completions API.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the response from the chat completions API.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// sectionSummary is the JSON shape the model is asked to produce.
type sectionSummary struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Bullets         []string `json:"bullets"`
	SampleQuestions []string `json:"sample_questions"`
}

// MaxContentForSummary limits content sent to the model per section.
const MaxContentForSummary = 8000

const maxBullets = 15

// Summarize implements chunker.Summarizer.
func (c *Client) Summarize(ctx context.Context, pageTitle, sectionName, content string) (*chunker.Summary, error) {
	if len(content) > MaxContentForSummary {
		content = content[:MaxContentForSummary]
	}

	prompt := buildPrompt(pageTitle, sectionName, content)

	slog.Debug("summarizing section", "page", pageTitle, "section", sectionName)
	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("summarization failed: %w", err)
	}

	parsed, err := parseSummary(raw)
	if err != nil {
		return nil, fmt.Errorf("summarization returned unusable output: %w", err)
	}

	if len(parsed.Bullets) > maxBullets {
		parsed.Bullets = parsed.Bullets[:maxBullets]
	}
	if len(parsed.SampleQuestions) > maxBullets {
		parsed.SampleQuestions = parsed.SampleQuestions[:maxBullets]
	}

	return &chunker.Summary{
		Name:            strings.TrimSpace(parsed.Name),
		Description:     strings.TrimSpace(parsed.Description),
		Bullets:         parsed.Bullets,
		SampleQuestions: parsed.SampleQuestions,
	}, nil
}

// complete sends a prompt and returns the raw model output.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response returned")
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

func buildPrompt(pageTitle, sectionName, content string) string {
	return fmt.Sprintf(`You are an expert content analyst building the knowledge base of an AI phone receptionist.

Analyze the following website section and produce a structured summary a receptionist can answer caller questions from.

Page title: %s
Section: %s

Content:
%s

Provide:
- name: a descriptive title for this section (max 200 characters)
- description: what this section covers (max 500 characters)
- bullets: up to 15 key bullet points covering all important facts (services, hours, locations, pricing, contact details)
- sample_questions: up to 15 questions callers are likely to ask that this content answers

Format your response as a JSON object with this exact structure:
{
  "name": "...",
  "description": "...",
  "bullets": ["...", "..."],
  "sample_questions": ["...", "..."]
}

Return ONLY the JSON object, no explanations, no markdown fences.`, pageTitle, sectionName, content)
}

// parseSummary tolerates models that wrap JSON in markdown fences or
// leading prose.
func parseSummary(raw string) (*sectionSummary, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if start := strings.Index(cleaned, "{"); start > 0 {
		cleaned = cleaned[start:]
	}
	if end := strings.LastIndex(cleaned, "}"); end >= 0 && end < len(cleaned)-1 {
		cleaned = cleaned[:end+1]
	}

	var summary sectionSummary
	if err := json.Unmarshal([]byte(cleaned), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
