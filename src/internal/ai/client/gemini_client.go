package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/admi-n/trustguard/src/internal"
)

// DefaultGeminiModel 默认 Gemini 模型
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient 基于 google.golang.org/genai 的 Gemini 客户端
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// GeminiConfig 配置结构
type GeminiConfig struct {
	APIKey  string
	BaseURL string // 可选，测试或网关时使用
	Model   string
	Proxy   string
	Logger  *zap.Logger
}

// NewGeminiClient 创建 Gemini 客户端
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	httpClient, err := internal.CreateProxyHTTPClient(cfg.Proxy, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{client: client, model: cfg.Model, logger: cfg.Logger}, nil
}

// Generate 实现 AIClient 接口；Schema 非空时使用 JSON 输出并附带结构约束
func (c *GeminiClient) Generate(ctx context.Context, p Prompt) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.1),
	}
	if strings.TrimSpace(p.System) != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: p.System}},
		}
	}
	if p.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = toGenaiSchema(p.Schema)
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(p.User), config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code != 0 {
			return "", &StatusError{Provider: "Gemini", StatusCode: apiErr.Code, Body: truncate(apiErr.Message, 1024)}
		}
		return "", fmt.Errorf("Gemini generate failed: %w", err)
	}

	if u := result.UsageMetadata; u != nil {
		c.logger.Debug("token usage",
			zap.String("provider", "Gemini"),
			zap.Int32("prompt", u.PromptTokenCount),
			zap.Int32("completion", u.CandidatesTokenCount),
			zap.Int32("total", u.TotalTokenCount))
	}

	text := result.Text()
	if text == "" {
		return "", internal.Schemaf("empty response from Gemini")
	}
	return text, nil
}

func toGenaiSchema(s *Schema) *genai.Schema {
	out := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(s.Fields)),
		Required:   s.Names(),
		// 保持字段顺序与提示词一致
		PropertyOrdering: s.Names(),
	}
	for _, f := range s.Fields {
		prop := &genai.Schema{Description: f.Description}
		switch f.Type {
		case FieldStringArray:
			prop.Type = genai.TypeArray
			prop.Items = &genai.Schema{Type: genai.TypeString}
		default:
			prop.Type = genai.TypeString
			if len(f.Enum) > 0 {
				prop.Format = "enum"
				prop.Enum = append([]string(nil), f.Enum...)
			}
		}
		out.Properties[f.Name] = prop
	}
	return out
}

// GetName 返回客户端名称
func (c *GeminiClient) GetName() string {
	return fmt.Sprintf("Gemini (%s)", c.model)
}

// Close genai.Client 没有需要释放的资源
func (c *GeminiClient) Close() error {
	return nil
}
