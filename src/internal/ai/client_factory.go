package ai

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/admi-n/trustguard/src/internal/ai/client"
)

// AIClient 定义所有 AI 客户端必须实现的接口
type AIClient interface {
	Generate(ctx context.Context, prompt client.Prompt) (string, error)
	GetName() string
	Close() error
}

// AIClientConfig 客户端配置
type AIClientConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Proxy    string
	Logger   *zap.Logger
}

// NewAIClient 根据 provider 创建对应的 AI 客户端
func NewAIClient(ctx context.Context, cfg AIClientConfig) (AIClient, error) {
	switch NormalizeProvider(cfg.Provider) {
	case ProviderGemini:
		return client.NewGeminiClient(ctx, client.GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Proxy:   cfg.Proxy,
			Logger:  cfg.Logger,
		})

	case ProviderOpenAI:
		return client.NewOpenAIClient(client.OpenAIConfig{
			Provider: "OpenAI",
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Proxy:    cfg.Proxy,
			Logger:   cfg.Logger,
		})

	case ProviderDeepSeek:
		baseURL, model := cfg.BaseURL, cfg.Model
		if baseURL == "" {
			baseURL = client.DefaultDeepSeekBaseURL
		}
		if model == "" {
			model = client.DefaultDeepSeekModel
		}
		return client.NewOpenAIClient(client.OpenAIConfig{
			Provider: "DeepSeek",
			APIKey:   cfg.APIKey,
			BaseURL:  baseURL,
			Model:    model,
			Proxy:    cfg.Proxy,
			Logger:   cfg.Logger,
		})

	case ProviderLocalLLM:
		return client.NewLocalLLMClient(client.LocalLLMConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})

	default:
		return nil, fmt.Errorf("unsupported AI provider: %s (supported: gemini, openai, deepseek, local-llm)", cfg.Provider)
	}
}

// 规范化后的提供商名称
const (
	ProviderGemini   = "gemini"
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderLocalLLM = "local-llm"
)

var providerAliases = map[string]string{
	"gemini":    ProviderGemini,
	"google":    ProviderGemini,
	"chatgpt5":  ProviderOpenAI,
	"openai":    ProviderOpenAI,
	"gpt4":      ProviderOpenAI,
	"deepseek":  ProviderDeepSeek,
	"local-llm": ProviderLocalLLM,
	"ollama":    ProviderLocalLLM,
}

// NormalizeProvider 把别名映射为规范名称，未知名称原样返回
func NormalizeProvider(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[p]; ok {
		return canonical
	}
	return p
}

// ValidateProvider 验证提供商名称是否有效
func ValidateProvider(provider string) error {
	if _, ok := providerAliases[strings.ToLower(strings.TrimSpace(provider))]; !ok {
		return fmt.Errorf("invalid provider '%s', must be one of: gemini, google, openai, chatgpt5, gpt4, deepseek, local-llm, ollama", provider)
	}
	return nil
}

// RequiresAPIKey 本地模型不需要密钥
func RequiresAPIKey(provider string) bool {
	return NormalizeProvider(provider) != ProviderLocalLLM
}
