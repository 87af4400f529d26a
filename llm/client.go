// Package llm drives the two-phase summarization workflow against an
// OpenAI-compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultBaseURL targets the hosted OpenAI API; point it elsewhere for
// compatible gateways.
const DefaultBaseURL = "https://api.openai.com/v1"

// Summarizer is the external summarization service seen by the pipeline:
// two independent call shapes with distinguishable failures.
type Summarizer interface {
	// ExtractUpdates runs phase one over the corpus text and returns the
	// structured-extraction JSON text.
	ExtractUpdates(ctx context.Context, corpusText, fileLabel string) (string, error)
	// GenerateReport runs phase two over the extraction JSON and returns
	// Markdown report text.
	GenerateReport(ctx context.Context, extractionJSON, period string) (string, error)
}

// Options configures the HTTP client. Zero values take defaults; the API
// key is required.
type Options struct {
	BaseURL       string
	APIKey        string
	ExtractModel  string
	GenerateModel string
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Client calls the chat completions endpoint. One attempt per call; the
// pipeline owns no retries and the http.Client owns transport timeouts.
type Client struct {
	baseURL       string
	apiKey        string
	extractModel  string
	generateModel string
	httpClient    *http.Client
	logger        *slog.Logger
}

func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		apiKey:        opts.APIKey,
		extractModel:  opts.ExtractModel,
		generateModel: opts.GenerateModel,
		httpClient:    opts.HTTPClient,
		logger:        opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, model, system, user string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat completion: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat completion: response carried no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// ExtractUpdates runs the extractor prompt over the corpus. The file label
// is embedded so source citations can reference the corpus artifact.
func (c *Client) ExtractUpdates(ctx context.Context, corpusText, fileLabel string) (string, error) {
	user := fmt.Sprintf(extractorUserTemplate, "[[FILE:"+fileLabel+"]]\n"+corpusText)
	if c.logger != nil {
		c.logger.Info("calling extractor", "model", c.extractModel, "chars", len(user))
	}

	content, err := c.complete(ctx, c.extractModel, extractorSystemPrompt, user)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(content)
	if !json.Valid([]byte(text)) {
		text = FirstJSONBlock(text)
		if !json.Valid([]byte(text)) && c.logger != nil {
			c.logger.Warn("extraction response is not valid JSON; persisting raw", "chars", len(text))
		}
	}
	return text, nil
}

// GenerateReport runs the report prompt over the extraction JSON.
func (c *Client) GenerateReport(ctx context.Context, extractionJSON, period string) (string, error) {
	if c.logger != nil {
		c.logger.Info("calling report generator", "model", c.generateModel)
	}
	return c.complete(ctx, c.generateModel, reportSystemPrompt,
		fmt.Sprintf(reportUserTemplate, extractionJSON, period))
}

// FirstJSONBlock salvages the first top-level JSON object from text that
// wraps it in prose or code fences. Returns the input unchanged when no
// braces are found.
func FirstJSONBlock(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}
