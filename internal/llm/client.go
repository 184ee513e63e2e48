// Package llm предоставляет клиент для OpenAI-совместимого API чат-завершений.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Роли участников диалога.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message описывает одно сообщение диалога.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall описывает запрос модели на вызов функции.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall содержит имя функции и её аргументы в виде JSON-строки.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool описывает функцию, доступную модели.
type Tool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef содержит описание функции и JSON-схему её параметров.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatRequest struct {
	Model      string    `json:"model,omitempty"`
	Messages   []Message `json:"messages"`
	Tools      []Tool    `json:"tools,omitempty"`
	ToolChoice string    `json:"tool_choice,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Config задаёт параметры подключения к модели.
type Config struct {
	Endpoint   string
	APIKey     string
	Deployment string
	// APIVersion включает формат адресов Azure OpenAI.
	APIVersion string
	RetryMax   int
	Timeout    time.Duration
}

// Client инкапсулирует HTTP-взаимодействие с моделью.
type Client struct {
	cfg        Config
	httpClient *retryablehttp.Client
}

// NewClient создаёт клиент. Повторы выполняются при ответах 429 и 5xx.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	hc := retryablehttp.NewClient()
	hc.RetryMax = cfg.RetryMax
	hc.RetryWaitMin = 500 * time.Millisecond
	hc.RetryWaitMax = 5 * time.Second
	hc.HTTPClient.Timeout = cfg.Timeout
	hc.Logger = leveledLogger{l: logger.Sugar().Named("llm")}
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{cfg: cfg, httpClient: hc}
}

func (c *Client) completionsURL() string {
	base := c.cfg.Endpoint
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	if c.cfg.APIVersion != "" {
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			base, url.PathEscape(c.cfg.Deployment), url.QueryEscape(c.cfg.APIVersion))
	}
	return base + "/chat/completions"
}

// Complete отправляет диалог и список функций и возвращает ответ модели из первого варианта.
func (c *Client) Complete(ctx context.Context, messages []Message, tools []Tool) (*Message, error) {
	if c == nil || c.cfg.Endpoint == "" {
		return nil, fmt.Errorf("model client not configured")
	}

	body := chatRequest{Messages: messages, Tools: tools}
	if c.cfg.APIVersion == "" {
		body.Model = c.cfg.Deployment
	}
	if len(tools) > 0 {
		body.ToolChoice = "auto"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		if c.cfg.APIVersion != "" {
			req.Header.Set("api-key", c.cfg.APIKey)
		} else {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status: %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("empty response: no choices")
	}

	msg := result.Choices[0].Message
	return &msg, nil
}

type leveledLogger struct {
	l *zap.SugaredLogger
}

func (z leveledLogger) Error(msg string, keysAndValues ...any) { z.l.Errorw(msg, keysAndValues...) }
func (z leveledLogger) Info(msg string, keysAndValues ...any)  { z.l.Infow(msg, keysAndValues...) }
func (z leveledLogger) Debug(msg string, keysAndValues ...any) { z.l.Debugw(msg, keysAndValues...) }
func (z leveledLogger) Warn(msg string, keysAndValues ...any)  { z.l.Warnw(msg, keysAndValues...) }
