package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/studyos-backend/internal/logger"
	"github.com/yungbote/studyos-backend/internal/utils"
)

// Error classes the orchestrator must tell apart. Everything else coming out
// of Chat is fatal for that one call only.
var (
	ErrRateLimited   = errors.New("model is rate limited, wait a moment and try again")
	ErrNotConfigured = errors.New("model credentials are missing or invalid")
	ErrEmptyContent  = errors.New("model returned an empty response")
)

// AIClient is the single LLM invocation primitive. Both graph generation and
// exercise generation go through it; it carries no business logic.
type AIClient interface {
	Chat(ctx context.Context, messages []AIMessage, opts *AIOptions) (string, error)
}

type AIMessage struct {
	Role string `json:"role"`
	// Content is either a plain string or []AIContentPart for multimodal
	// turns (file payload + instruction text).
	Content any `json:"content"`
}

type AIContentPart struct {
	Type string         `json:"type"` // "text" | "file"
	Text string         `json:"text,omitempty"`
	File *AIFilePayload `json:"file,omitempty"`
}

type AIFilePayload struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"` // data:<mime>;base64,... URL
}

func TextMessage(role, content string) AIMessage {
	return AIMessage{Role: role, Content: content}
}

func FileMessage(role, filename, dataURL, instruction string) AIMessage {
	return AIMessage{Role: role, Content: []AIContentPart{
		{Type: "file", File: &AIFilePayload{Filename: filename, FileData: dataURL}},
		{Type: "text", Text: instruction},
	}}
}

type AIOptions struct {
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

type aiClient struct {
	httpClient *http.Client
	log        *logger.Logger
	apiKey     string
	baseURL    string
	model      string

	minInterval time.Duration
	maxRetries  int
}

// Shared across clients: the only cross-request state in the whole pipeline.
// Concurrent generation requests serialize somewhat through this spacing rule,
// which is what keeps upstream rate limits predictable.
var (
	lastCallMu sync.Mutex
	lastCallAt time.Time
)

func NewAIClient(log *logger.Logger) (AIClient, error) {
	serviceLog := log.With("service", "AIClient")
	apiKey := utils.GetEnv("OPENAI_API_KEY", "", log)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrNotConfigured)
	}
	baseURL := strings.TrimRight(utils.GetEnv("OPENAI_BASE_URL", "https://api.openai.com/v1/chat/completions", log), "/")
	model := utils.GetEnv("OPENAI_MODEL", "gpt-4o-mini", log)

	timeoutSec := utils.GetEnvAsInt("OPENAI_TIMEOUT_SECONDS", 180, log)
	if timeoutSec <= 0 {
		timeoutSec = 180
	}
	minIntervalMs := utils.GetEnvAsInt("OPENAI_MIN_INTERVAL_MS", 1500, log)
	if minIntervalMs < 0 {
		minIntervalMs = 0
	}
	maxRetries := utils.GetEnvAsInt("OPENAI_MAX_RETRIES", 2, log)
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &aiClient{
		httpClient:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		log:         serviceLog,
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       model,
		minInterval: time.Duration(minIntervalMs) * time.Millisecond,
		maxRetries:  maxRetries,
	}, nil
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []AIMessage    `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *aiClient) Chat(ctx context.Context, messages []AIMessage, opts *AIOptions) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages required")
	}
	if opts == nil || opts.MaxTokens <= 0 {
		return "", fmt.Errorf("positive max tokens required")
	}

	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSONMode {
		req.ResponseFormat = map[string]any{"type": "json_object"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	raw, err := c.doRateLimited(ctx, body)
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyContent
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	if resp.Choices[0].FinishReason == "length" {
		c.log.Warn("Model output truncated by token limit", "chars", len(content))
	}
	return content, nil
}

// doRateLimited enforces the minimum inter-call spacing, then performs the
// call with a short bounded backoff on 429 only. All other failures surface
// immediately; callers decide whether they are fatal for the whole job.
func (c *aiClient) doRateLimited(ctx context.Context, body []byte) ([]byte, error) {
	if err := c.waitMinInterval(ctx); err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		raw, status, err := c.doOnce(ctx, body)
		if err != nil {
			return nil, err
		}
		if status >= 200 && status < 300 {
			return raw, nil
		}

		switch {
		case status == http.StatusTooManyRequests:
			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("%w (after %d retries)", ErrRateLimited, c.maxRetries)
			}
			backoff := time.Duration(attempt+1) * 3 * time.Second
			c.log.Warn("Rate limited by model endpoint, backing off", "attempt", attempt+1, "max_retries", c.maxRetries, "backoff", backoff.String())
			if err := sleepCtx(ctx, backoff); err != nil {
				return nil, err
			}
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return nil, fmt.Errorf("%w: endpoint returned %d", ErrNotConfigured, status)
		default:
			return nil, fmt.Errorf("model endpoint returned %d: %s", status, upstreamErrorMessage(raw))
		}
	}
}

func (c *aiClient) doOnce(ctx context.Context, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("model endpoint request failed: %w", err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp.StatusCode, readErr
	}
	return raw, resp.StatusCode, nil
}

func (c *aiClient) waitMinInterval(ctx context.Context) error {
	if c.minInterval <= 0 {
		return nil
	}
	lastCallMu.Lock()
	now := time.Now()
	wait := c.minInterval - now.Sub(lastCallAt)
	if wait < 0 {
		wait = 0
	}
	lastCallAt = now.Add(wait)
	lastCallMu.Unlock()

	if wait > 0 {
		c.log.Debug("Rate limit spacing, waiting", "wait", wait.String())
		return sleepCtx(ctx, wait)
	}
	return nil
}

func upstreamErrorMessage(raw []byte) string {
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
