package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/admi-n/trustguard/src/internal"
)

// 默认值
const (
	DefaultOpenAIBaseURL   = "https://api.openai.com/v1"
	DefaultOpenAIModel     = "gpt-4-turbo"
	DefaultDeepSeekBaseURL = "https://api.deepseek.com/v1"
	DefaultDeepSeekModel   = "deepseek-chat"

	maxResponseSize = 8 << 20
)

// OpenAIClient OpenAI 兼容的 Chat Completions 客户端（OpenAI、DeepSeek 共用）
type OpenAIClient struct {
	provider   string
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// OpenAIConfig 配置结构
type OpenAIConfig struct {
	Provider string // 显示名称，例如 "OpenAI" 或 "DeepSeek"
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
	Proxy    string // HTTP 代理
	Logger   *zap.Logger
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string    `json:"id"`
	Object  string    `json:"object"`
	Created int64     `json:"created"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Usage   Usage     `json:"usage"`
	Error   *APIError `json:"error,omitempty"`
}

// NewOpenAIClient 创建 OpenAI 兼容客户端
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Provider == "" {
		cfg.Provider = "OpenAI"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	// 超时由调用方的 context 控制，这里不再设置 http.Client.Timeout
	httpClient, err := internal.CreateProxyHTTPClient(cfg.Proxy, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	return &OpenAIClient{
		provider:   cfg.Provider,
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}, nil
}

// SendPrompt 发送 prompt 并返回模型回复文本
func (c *OpenAIClient) SendPrompt(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.1, // 较低的温度以获得更确定的结果
		MaxTokens:   4096,
	}
	if jsonMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Provider: c.provider, StatusCode: resp.StatusCode, Body: truncate(string(body), 1024)}
	}

	var apiResp chatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("%s API error: %s (type: %s, code: %s)",
			c.provider, apiResp.Error.Message, apiResp.Error.Type, apiResp.Error.Code)
	}
	if len(apiResp.Choices) == 0 {
		return "", internal.Schemaf("no choices in response")
	}

	c.logger.Debug("token usage",
		zap.String("provider", c.provider),
		zap.Int("prompt", apiResp.Usage.PromptTokens),
		zap.Int("completion", apiResp.Usage.CompletionTokens),
		zap.Int("total", apiResp.Usage.TotalTokens))

	return apiResp.Choices[0].Message.Content, nil
}

// Generate 实现 AIClient 接口
func (c *OpenAIClient) Generate(ctx context.Context, p Prompt) (string, error) {
	return c.SendPrompt(ctx, p.System, p.User, p.Schema != nil)
}

// GetName 返回客户端名称
func (c *OpenAIClient) GetName() string {
	return fmt.Sprintf("%s (%s)", c.provider, c.model)
}

// Close 清理资源
func (c *OpenAIClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
