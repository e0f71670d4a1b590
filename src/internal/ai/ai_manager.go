package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/admi-n/trustguard/src/internal"
	"github.com/admi-n/trustguard/src/internal/ai/client"
)

// 默认参数
const (
	DefaultTimeout        = 60 * time.Second
	DefaultRequestsPerMin = 20
	DefaultBaseRetryDelay = 500 * time.Millisecond
	DefaultMaxRetryDelay  = 8 * time.Second
	// MaxRetriesCap 无论配置如何，重试次数不超过该值
	MaxRetriesCap = 5
)

// sleepFunc 测试时可替换，避免真实等待
var sleepFunc = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Manager 管理 AI 客户端：限流、单次调用超时、UpstreamUnavailable 有限重试。
// 自身无请求级状态，可被并发调用。
type Manager struct {
	client     AIClient
	rateLimit  *rateLimiter
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *zap.Logger
}

type rateLimiter struct {
	requests chan struct{}
	interval time.Duration
	done     chan struct{}
}

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	rl := &rateLimiter{
		requests: make(chan struct{}, requestsPerMinute),
		interval: time.Minute / time.Duration(requestsPerMinute),
		done:     make(chan struct{}),
	}

	for i := 0; i < requestsPerMinute; i++ {
		rl.requests <- struct{}{}
	}

	go func() {
		ticker := time.NewTicker(rl.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case rl.requests <- struct{}{}:
				default:
				}
			case <-rl.done:
				return
			}
		}
	}()

	return rl
}

func (rl *rateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}
	select {
	case <-rl.requests:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rl *rateLimiter) Stop() {
	if rl != nil {
		close(rl.done)
	}
}

// ManagerConfig Manager 配置
type ManagerConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	Proxy          string
	Timeout        time.Duration
	MaxRetries     int
	RequestsPerMin int // 0 使用默认值，负数表示不限流
	Logger         *zap.Logger
}

// NewManager 创建新的 AI 管理器
func NewManager(ctx context.Context, cfg ManagerConfig) (*Manager, error) {
	if err := ValidateProvider(cfg.Provider); err != nil {
		return nil, err
	}
	if RequiresAPIKey(cfg.Provider) && cfg.APIKey == "" {
		return nil, fmt.Errorf("API key for provider %s is not configured", cfg.Provider)
	}

	c, err := NewAIClient(ctx, AIClientConfig{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
		Proxy:    cfg.Proxy,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AI client: %w", err)
	}

	return NewManagerWithClient(c, cfg), nil
}

// NewManagerWithClient 使用已有客户端创建 Manager
func NewManagerWithClient(c AIClient, cfg ManagerConfig) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxRetries > MaxRetriesCap {
		cfg.MaxRetries = MaxRetriesCap
	}
	if cfg.RequestsPerMin == 0 {
		cfg.RequestsPerMin = DefaultRequestsPerMin
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	m := &Manager{
		client:     c,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		baseDelay:  DefaultBaseRetryDelay,
		maxDelay:   DefaultMaxRetryDelay,
		logger:     cfg.Logger.With(zap.String("provider", c.GetName())),
	}
	if cfg.RequestsPerMin > 0 {
		m.rateLimit = newRateLimiter(cfg.RequestsPerMin)
	}
	return m
}

// Generate 调用模型。应答不可用（空应答、无候选）归类为 SchemaViolation 且不重试，
// 其余失败归类为 UpstreamUnavailable；调用方取消或非可重试错误立即返回，
// 其余按指数退避重试至 maxRetries。
func (m *Manager) Generate(ctx context.Context, prompt client.Prompt) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			delay := m.backoff(attempt)
			m.logger.Warn("retrying AI request",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if err := sleepFunc(ctx, delay); err != nil {
				return "", internal.Upstream(err)
			}
		}

		if err := m.rateLimit.Wait(ctx); err != nil {
			return "", internal.Upstream(fmt.Errorf("rate limit wait failed: %w", err))
		}

		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		out, err := m.client.Generate(callCtx, prompt)
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			m.logger.Debug("AI request finished", zap.Duration("elapsed", time.Since(start)))
			return out, nil
		}

		if timedOut && ctx.Err() == nil {
			err = fmt.Errorf("request timed out after %v: %w", m.timeout, err)
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", internal.Upstream(fmt.Errorf("%s: %w", m.client.GetName(), ctx.Err()))
		}
		if !retryable(err) {
			break
		}
	}

	return "", internal.Upstream(fmt.Errorf("%s: %w", m.client.GetName(), lastErr))
}

func (m *Manager) backoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-1))) * m.baseDelay
	if d > m.maxDelay {
		d = m.maxDelay
	}
	return d
}

func retryable(err error) bool {
	if errors.Is(err, internal.ErrSchemaViolation) {
		return false
	}
	var se *client.StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

// GetClientInfo 返回客户端名称
func (m *Manager) GetClientInfo() string {
	return m.client.GetName()
}

// Close 停止限流器并释放客户端
func (m *Manager) Close() error {
	m.rateLimit.Stop()
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// TestConnection 发送一个极简请求检查连通性
func (m *Manager) TestConnection(ctx context.Context) error {
	m.logger.Info("testing AI client connection")

	_, err := m.Generate(ctx, client.Prompt{
		User: "Please respond with 'OK' if you can read this message.",
	})
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}

	m.logger.Info("AI client connection ok")
	return nil
}
