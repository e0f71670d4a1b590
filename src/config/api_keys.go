package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath 默认配置文件路径
const DefaultConfigPath = "config/settings.yaml"

// ProviderConfig 单个 AI 提供商配置
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // 可选，默认使用官方 API
	Model   string `yaml:"model"`
}

// AIConfig AI 相关配置
type AIConfig struct {
	Provider       string         `yaml:"provider"`
	Timeout        time.Duration  `yaml:"timeout"`
	MaxRetries     int            `yaml:"max_retries"`
	RequestsPerMin int            `yaml:"requests_per_min"`
	Proxy          string         `yaml:"proxy"`
	Gemini         ProviderConfig `yaml:"gemini"`
	OpenAI         ProviderConfig `yaml:"openai"`
	DeepSeek       ProviderConfig `yaml:"deepseek"`

	LocalLLM struct {
		BaseURL string `yaml:"base_url"` // 例如 http://localhost:11434
		Model   string `yaml:"model"`    // 例如 llama2
	} `yaml:"local_llm"`
}

// Settings 全局配置结构
type Settings struct {
	AI AIConfig `yaml:"ai"`

	Catalog struct {
		Path string `yaml:"path"` // 为空时使用内置类别表
	} `yaml:"catalog"`

	Prompts struct {
		Dir string `yaml:"dir"` // 为空时使用内置模板
	} `yaml:"prompts"`

	Server struct {
		Addr          string `yaml:"addr"`
		RequireAPIKey bool   `yaml:"require_api_key"`
	} `yaml:"server"`

	Database DatabaseConfig `yaml:"database"`

	Etherscan struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"etherscan"`

	RPC struct {
		Ethereum string `yaml:"ethereum"`
	} `yaml:"rpc"`

	Reports struct {
		Dir string `yaml:"dir"`
	} `yaml:"reports"`
}

// Default 返回默认配置
func Default() *Settings {
	s := &Settings{}
	s.AI.Provider = "gemini"
	s.AI.Timeout = 60 * time.Second
	s.AI.RequestsPerMin = 20
	s.Server.Addr = ":5000"
	s.Server.RequireAPIKey = true
	s.Etherscan.BaseURL = "https://api.etherscan.io/v2"
	s.Reports.Dir = "reports"
	return s
}

// Load 加载配置文件并应用环境变量覆盖；文件不存在时使用默认配置
func Load(configPath string) (*Settings, error) {
	explicit := configPath != ""
	if !explicit {
		configPath = DefaultConfigPath
	}

	settings := Default()

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// 使用默认配置
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	settings.applyEnv(os.Getenv)
	return settings, nil
}

// applyEnv 环境变量优先于配置文件
func (s *Settings) applyEnv(getenv func(string) string) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}

	set(&s.AI.Gemini.APIKey, "GOOGLE_API_KEY", "GEMINI_API_KEY")
	set(&s.AI.OpenAI.APIKey, "OPENAI_API_KEY")
	set(&s.AI.DeepSeek.APIKey, "DEEPSEEK_API_KEY")
	set(&s.AI.Provider, "TRUSTGUARD_PROVIDER")
	set(&s.Etherscan.APIKey, "ETHERSCAN_API_KEY")
	set(&s.Database.DSN, "TRUSTGUARD_DB_DSN")
	set(&s.Server.Addr, "TRUSTGUARD_ADDR")
}

// ProviderSettings 返回指定提供商的凭据与端点；provider 为规范名称
func (s *Settings) ProviderSettings(provider string) (ProviderConfig, error) {
	switch provider {
	case "gemini":
		return s.AI.Gemini, nil
	case "openai":
		return s.AI.OpenAI, nil
	case "deepseek":
		return s.AI.DeepSeek, nil
	case "local-llm":
		return ProviderConfig{BaseURL: s.AI.LocalLLM.BaseURL, Model: s.AI.LocalLLM.Model}, nil
	default:
		return ProviderConfig{}, fmt.Errorf("no settings for provider %q", provider)
	}
}
