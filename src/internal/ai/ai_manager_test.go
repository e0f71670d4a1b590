package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/admi-n/trustguard/src/internal"
	"github.com/admi-n/trustguard/src/internal/ai/client"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubClient struct {
	mu      sync.Mutex
	calls   int
	results []stubResult
	block   bool
	closed  bool
}

type stubResult struct {
	out string
	err error
}

func (s *stubClient) Generate(ctx context.Context, _ client.Prompt) (string, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i].out, s.results[i].err
}

func (s *stubClient) GetName() string { return "stub" }

func (s *stubClient) Close() error {
	s.closed = true
	return nil
}

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func noSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	orig := sleepFunc
	sleepFunc = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	t.Cleanup(func() { sleepFunc = orig })
	return &delays
}

func newTestManager(t *testing.T, c AIClient, cfg ManagerConfig) *Manager {
	t.Helper()
	cfg.Logger = zaptest.NewLogger(t)
	if cfg.RequestsPerMin == 0 {
		cfg.RequestsPerMin = -1
	}
	m := NewManagerWithClient(c, cfg)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManagerGenerateSuccess(t *testing.T) {
	stub := &stubClient{results: []stubResult{{out: "ok"}}}
	m := newTestManager(t, stub, ManagerConfig{})

	out, err := m.Generate(context.Background(), client.Prompt{User: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, stub.callCount())
	assert.Equal(t, "stub", m.GetClientInfo())
}

func TestManagerNoRetryByDefault(t *testing.T) {
	noSleep(t)
	stub := &stubClient{results: []stubResult{{err: &client.StatusError{Provider: "stub", StatusCode: 503}}}}
	m := newTestManager(t, stub, ManagerConfig{})

	_, err := m.Generate(context.Background(), client.Prompt{User: "x"})
	assert.ErrorIs(t, err, internal.ErrUpstreamUnavailable)
	assert.Equal(t, 1, stub.callCount())
}

func TestManagerRetriesRetryableErrors(t *testing.T) {
	delays := noSleep(t)
	stub := &stubClient{results: []stubResult{
		{err: &client.StatusError{Provider: "stub", StatusCode: 503}},
		{err: errors.New("connection reset by peer")},
		{out: "recovered"},
	}}
	m := newTestManager(t, stub, ManagerConfig{MaxRetries: 3})

	out, err := m.Generate(context.Background(), client.Prompt{User: "x"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, 3, stub.callCount())
	assert.Equal(t, []time.Duration{DefaultBaseRetryDelay, 2 * DefaultBaseRetryDelay}, *delays)
}

func TestManagerDoesNotRetryClientErrors(t *testing.T) {
	noSleep(t)
	stub := &stubClient{results: []stubResult{{err: &client.StatusError{Provider: "stub", StatusCode: 401}}}}
	m := newTestManager(t, stub, ManagerConfig{MaxRetries: 3})

	_, err := m.Generate(context.Background(), client.Prompt{User: "x"})
	assert.ErrorIs(t, err, internal.ErrUpstreamUnavailable)
	assert.Equal(t, 1, stub.callCount())

	var se *client.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 401, se.StatusCode)
}

func TestManagerDoesNotRetryUnusableReplies(t *testing.T) {
	delays := noSleep(t)
	stub := &stubClient{results: []stubResult{{err: internal.Schemaf("no choices in response")}}}
	m := newTestManager(t, stub, ManagerConfig{MaxRetries: 3})

	_, err := m.Generate(context.Background(), client.Prompt{User: "x"})
	assert.ErrorIs(t, err, internal.ErrSchemaViolation)
	assert.NotErrorIs(t, err, internal.ErrUpstreamUnavailable)
	assert.Equal(t, 1, stub.callCount())
	assert.Empty(t, *delays)
}

func TestManagerRetriesAreCapped(t *testing.T) {
	delays := noSleep(t)
	stub := &stubClient{results: []stubResult{{err: errors.New("unavailable")}}}
	m := newTestManager(t, stub, ManagerConfig{MaxRetries: 100})

	_, err := m.Generate(context.Background(), client.Prompt{User: "x"})
	assert.ErrorIs(t, err, internal.ErrUpstreamUnavailable)
	assert.Equal(t, MaxRetriesCap+1, stub.callCount())
	for _, d := range *delays {
		assert.LessOrEqual(t, d, DefaultMaxRetryDelay)
	}
}

func TestManagerTimeout(t *testing.T) {
	stub := &stubClient{block: true}
	m := newTestManager(t, stub, ManagerConfig{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := m.Generate(context.Background(), client.Prompt{User: "x"})
	assert.ErrorIs(t, err, internal.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestManagerCallerCancellation(t *testing.T) {
	noSleep(t)
	stub := &stubClient{block: true}
	m := newTestManager(t, stub, ManagerConfig{MaxRetries: 3})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Generate(ctx, client.Prompt{User: "x"})
	assert.ErrorIs(t, err, internal.ErrUpstreamUnavailable)
	assert.Equal(t, 1, stub.callCount())
}

func TestManagerRateLimit(t *testing.T) {
	stub := &stubClient{results: []stubResult{{out: "ok"}}}
	m := newTestManager(t, stub, ManagerConfig{RequestsPerMin: 1})

	_, err := m.Generate(context.Background(), client.Prompt{User: "x"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Generate(ctx, client.Prompt{User: "x"})
	assert.ErrorIs(t, err, internal.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, stub.callCount())
}

func TestManagerConcurrentUse(t *testing.T) {
	stub := &stubClient{results: []stubResult{{out: "ok"}}}
	m := newTestManager(t, stub, ManagerConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := m.Generate(context.Background(), client.Prompt{User: "x"})
			assert.NoError(t, err)
			assert.Equal(t, "ok", out)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, stub.callCount())
}

func TestManagerCloseClosesClient(t *testing.T) {
	stub := &stubClient{results: []stubResult{{out: "OK"}}}
	m := NewManagerWithClient(stub, ManagerConfig{})
	require.NoError(t, m.TestConnection(context.Background()))
	require.NoError(t, m.Close())
	assert.True(t, stub.closed)
}

func TestNewManagerValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewManager(ctx, ManagerConfig{Provider: "mystery", APIKey: "k"})
	assert.ErrorContains(t, err, "invalid provider")

	_, err = NewManager(ctx, ManagerConfig{Provider: "openai"})
	assert.ErrorContains(t, err, "API key")

	m, err := NewManager(ctx, ManagerConfig{Provider: "ollama", RequestsPerMin: -1})
	require.NoError(t, err)
	assert.Contains(t, m.GetClientInfo(), "Local LLM")
	require.NoError(t, m.Close())
}

func TestNormalizeProvider(t *testing.T) {
	tests := map[string]string{
		"Gemini":     ProviderGemini,
		" google ":   ProviderGemini,
		"chatgpt5":   ProviderOpenAI,
		"GPT4":       ProviderOpenAI,
		"deepseek":   ProviderDeepSeek,
		"ollama":     ProviderLocalLLM,
		"local-llm":  ProviderLocalLLM,
		"unknown-ai": "unknown-ai",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeProvider(in), in)
	}

	assert.False(t, RequiresAPIKey("ollama"))
	assert.True(t, RequiresAPIKey("deepseek"))
	assert.NoError(t, ValidateProvider("Google"))
	assert.Error(t, ValidateProvider(""))
}

func TestNewAIClientDeepSeekDefaults(t *testing.T) {
	c, err := NewAIClient(context.Background(), AIClientConfig{Provider: "deepseek", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "DeepSeek ("+client.DefaultDeepSeekModel+")", c.GetName())
	require.NoError(t, c.Close())

	_, err = NewAIClient(context.Background(), AIClientConfig{Provider: "nope"})
	assert.Error(t, err)
}
