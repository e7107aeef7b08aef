package translator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/mordechaipotash/talmudic-study-app/config"
	"github.com/mordechaipotash/talmudic-study-app/internal/telemetry"
	"github.com/mordechaipotash/talmudic-study-app/models"
)

const systemPrompt = `You are an expert translator of Talmudic Hebrew and Aramaic texts.
Your task is to provide accurate, clear English translations while preserving the meaning and nuance of the original text.
Guidelines:
- Maintain the scholarly tone appropriate for Talmudic study
- Preserve technical terms when appropriate, with explanations in parentheses
- Keep the translation concise but complete
- Use modern, readable English while respecting the source material
- If the text contains Biblical quotes, indicate them appropriately`

// Client calls the OpenRouter chat-completions API. All requests stream; the
// non-streaming Translate simply discards the increments.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	referer     string
	title       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	logger      *log.Logger
}

// Result is one finished translation from the provider.
type Result struct {
	Translation string
	Model       string
	Cost        float64
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// streamPayload is the decoded body of one "data:" frame.
type streamPayload struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage struct {
		TotalCost float64 `json:"total_cost"`
	} `json:"usage"`
}

func New(cfg config.OpenRouterConfig) *Client {
	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		referer:     cfg.Referer,
		title:       cfg.Title,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      log.New(log.Writer(), "[OPENROUTER] ", log.LstdFlags),
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Translate produces a complete translation in one call.
func (c *Client) Translate(ctx context.Context, ref, hebrewText string) (Result, error) {
	return c.TranslateStream(ctx, ref, hebrewText, nil)
}

// TranslateStream translates and reports each output increment through onChunk
// as it arrives (onChunk may be nil). The assembled result is returned once the
// provider signals completion. A frame that fails to decode is skipped and
// counted, never fatal.
func (c *Client) TranslateStream(ctx context.Context, ref, hebrewText string, onChunk func(string)) (Result, error) {
	userPrompt := fmt.Sprintf(`Translate the following Hebrew/Aramaic text to English:

Reference: %s
Text: %s

Provide only the English translation, without any additional commentary or explanation.`, ref, hebrewText)

	body, err := json.Marshal(request{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, c.errorFromResponse(resp)
	}

	var translation strings.Builder
	var cost float64

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == models.StreamDone {
			continue
		}

		var payload streamPayload
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			telemetry.MalformedStreamFrames.Inc()
			continue
		}
		if len(payload.Choices) > 0 {
			if content := payload.Choices[0].Delta.Content; content != "" {
				translation.WriteString(content)
				if onChunk != nil {
					onChunk(content)
				}
			}
		}
		if payload.Usage.TotalCost > 0 {
			cost = payload.Usage.TotalCost
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, fmt.Errorf("failed to read stream: %w", err)
	}

	return Result{
		Translation: strings.TrimSpace(translation.String()),
		Model:       c.model,
		Cost:        cost,
	}, nil
}

func (c *Client) errorFromResponse(resp *http.Response) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := "Translation failed"
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}
	c.logger.Printf("provider returned %d: %s", resp.StatusCode, msg)
	return &models.UpstreamError{Service: "openrouter", StatusCode: resp.StatusCode, Message: msg}
}
