package assistant

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

	"github.com/njathi/homework-buddy-ai/internal/config"
)

// Client calls an OpenAI-compatible chat completions endpoint to answer
// homework questions.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	log        *slog.Logger
}

type AnswerRequest struct {
	Question   string
	GradeLevel string
	StepByStep bool
	ImageURL   string
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:     cfg.OpenAIAPIKey,
		baseURL:    strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		model:      cfg.OpenAIModel,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func buildPrompt(req AnswerRequest) string {
	grade := req.GradeLevel
	if grade == "" {
		grade = "secondary school"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful homework assistant for a %s student.\n", grade)
	if req.StepByStep {
		b.WriteString("Explain the answer step-by-step.\n")
	}
	fmt.Fprintf(&b, "Question: %s\n", req.Question)
	return b.String()
}

// Answer sends the question to the model and returns the answer text. When
// an image URL is supplied it is attached as an image content part so the
// model can read the photographed question.
func (c *Client) Answer(ctx context.Context, req AnswerRequest) (string, error) {
	if req.Question == "" && req.ImageURL == "" {
		return "", fmt.Errorf("question cannot be empty")
	}

	var content any = buildPrompt(req)
	if req.ImageURL != "" {
		content = []map[string]any{
			{"type": "text", "text": buildPrompt(req)},
			{"type": "image_url", "image_url": map[string]string{"url": req.ImageURL}},
		}
	}

	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
		"temperature": 0.7,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal completion payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("post completion: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode >= 300 {
		c.log.Error("completion request failed", "status", resp.StatusCode, "body", truncateBody(rawBody))
		return "", fmt.Errorf("completion failed: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty completion in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
