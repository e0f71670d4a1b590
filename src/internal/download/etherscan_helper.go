package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/admi-n/trustguard/src/internal"
)

// DefaultEtherscanBaseURL Etherscan v2 多链 API
const DefaultEtherscanBaseURL = "https://api.etherscan.io/v2"

// EtherscanConfig Etherscan API 配置
type EtherscanConfig struct {
	APIKey  string
	BaseURL string
	ChainID string // 默认 1（以太坊主网）
	Proxy   string // 可选的 HTTP 代理 URL（例如 http://127.0.0.1:7897）
	Logger  *zap.Logger
}

// EtherscanResponse Etherscan API 响应结构
type EtherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// SourceResult getsourcecode 返回的单条记录
type SourceResult struct {
	SourceCode      string `json:"SourceCode"`
	ContractName    string `json:"ContractName"`
	CompilerVersion string `json:"CompilerVersion"`
	Proxy           string `json:"Proxy"`
	Implementation  string `json:"Implementation"`
}

// EtherscanClient 查询已验证源码
type EtherscanClient struct {
	cfg         EtherscanConfig
	client      *http.Client
	logger      *zap.Logger
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewEtherscanClient 创建 Etherscan 客户端
func NewEtherscanClient(cfg EtherscanConfig) (*EtherscanClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("etherscan API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultEtherscanBaseURL
	}
	if cfg.ChainID == "" {
		cfg.ChainID = "1"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	client, err := internal.CreateProxyHTTPClient(cfg.Proxy, 20*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to create etherscan http client: %w", err)
	}

	return &EtherscanClient{
		cfg:         cfg,
		client:      client,
		logger:      cfg.Logger,
		maxAttempts: 3,
		sleep:       sleepCtx,
	}, nil
}

// GetContractSource 获取合约源代码和验证状态；未验证时返回 isVerified=false 且 err 为 nil
func (c *EtherscanClient) GetContractSource(ctx context.Context, address string) (source SourceResult, isVerified bool, err error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return SourceResult{}, false, fmt.Errorf("empty address")
	}

	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/"))
	if err != nil {
		return SourceResult{}, false, fmt.Errorf("invalid etherscan base URL: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api"

	q := url.Values{}
	q.Set("chainid", c.cfg.ChainID)
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", address)
	q.Set("apikey", strings.TrimSpace(c.cfg.APIKey))
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, time.Duration(attempt-1)*500*time.Millisecond); err != nil {
				return SourceResult{}, false, err
			}
		}

		body, err := c.get(ctx, u.String())
		if err != nil {
			lastErr = err
			if isTemporaryNetErr(err) && ctx.Err() == nil {
				c.logger.Warn("etherscan request failed, retrying",
					zap.String("address", address),
					zap.Int("attempt", attempt),
					zap.Error(err))
				continue
			}
			return SourceResult{}, false, err
		}

		var resp EtherscanResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return SourceResult{}, false, fmt.Errorf("failed to parse etherscan response: %w", err)
		}

		// status != "1" 时 result 是错误描述字符串
		if resp.Status != "1" {
			var msg string
			_ = json.Unmarshal(resp.Result, &msg)
			if isRateLimitMessage(msg) {
				lastErr = fmt.Errorf("etherscan rate limited: %s", msg)
				continue
			}
			if msg != "" && !strings.Contains(strings.ToLower(msg), "not verified") {
				return SourceResult{}, false, fmt.Errorf("etherscan error: %s (%s)", resp.Message, msg)
			}
			return SourceResult{}, false, nil
		}

		var results []SourceResult
		if err := json.Unmarshal(resp.Result, &results); err != nil {
			return SourceResult{}, false, fmt.Errorf("failed to parse etherscan result: %w", err)
		}
		if len(results) == 0 || strings.TrimSpace(results[0].SourceCode) == "" {
			return SourceResult{}, false, nil
		}

		res := results[0]
		res.SourceCode, err = flattenSource(res.SourceCode)
		if err != nil {
			return SourceResult{}, false, err
		}
		return res, true, nil
	}

	return SourceResult{}, false, fmt.Errorf("etherscan request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *EtherscanClient) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "trustguard/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("etherscan request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, internal.MaxContractSize+1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read etherscan response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		err := fmt.Errorf("etherscan returned status %d: %s", resp.StatusCode, snippet)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, temporaryError{err}
		}
		return nil, err
	}

	return body, nil
}

// standardJSONInput 多文件合约以 solc standard-json 形式返回，外层可能多包一层花括号
type standardJSONInput struct {
	Sources map[string]struct {
		Content string `json:"content"`
	} `json:"sources"`
}

// flattenSource 把多文件源码按路径排序后拼接为单个文本
func flattenSource(src string) (string, error) {
	trimmed := strings.TrimSpace(src)
	if !strings.HasPrefix(trimmed, "{") {
		return src, nil
	}
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		trimmed = trimmed[1 : len(trimmed)-1]
	}

	var input standardJSONInput
	if err := json.Unmarshal([]byte(trimmed), &input); err != nil || len(input.Sources) == 0 {
		// 不是 standard-json，按普通源码处理
		var plain map[string]struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(trimmed), &plain); err != nil || len(plain) == 0 {
			return src, nil
		}
		input.Sources = plain
	}

	paths := make([]string, 0, len(input.Sources))
	for p := range input.Sources {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var sb strings.Builder
	for i, p := range paths {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "// File: %s\n%s\n", p, strings.TrimRight(input.Sources[p].Content, "\n"))
	}
	return sb.String(), nil
}

func isRateLimitMessage(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "rate limit") || strings.Contains(m, "max calls per sec")
}

type temporaryError struct{ error }

func (e temporaryError) Unwrap() error { return e.error }

// isTemporaryNetErr 判断是否为可重试的网络错误
func isTemporaryNetErr(err error) bool {
	if err == nil {
		return false
	}
	var te temporaryError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
