package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/admi-n/trustguard/src/internal"
	"github.com/admi-n/trustguard/src/internal/download"
	"github.com/admi-n/trustguard/src/internal/report"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeAuditor 源码中含 "vulnerable" 时返回 Reentrancy，含 "prose" 时返回 NotAContract
type fakeAuditor struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeAuditor) Audit(_ context.Context, raw []byte) (*internal.AuditReport, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	src := string(raw)
	if strings.Contains(src, "prose") {
		return nil, internal.NewAuditError(internal.StageValidate, internal.ErrNotAContract, nil)
	}
	return &internal.AuditReport{
		Category:      "Reentrancy",
		Fixes:         []string{"Use ReentrancyGuard from OpenZeppelin"},
		FixedContract: src + " // fixed",
	}, nil
}

type fakeFetcher struct {
	sources map[string]string
}

func (f *fakeFetcher) FetchSource(_ context.Context, address string) (*download.Contract, error) {
	src, ok := f.sources[address]
	if !ok {
		return nil, internal.NewAuditError(internal.StageInput, internal.ErrInvalidInput, download.ErrNotVerified)
	}
	return &download.Contract{Address: address, Source: src}, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestRunner(t *testing.T, out *bytes.Buffer, fetcher SourceFetcher, reporter *report.Reporter) (*Runner, *fakeAuditor) {
	t.Helper()
	a := &fakeAuditor{}
	cfg := RunnerConfig{
		Auditor:  a,
		Reporter: reporter,
		Provider: "Gemini (gemini-2.5-flash)",
		Out:      out,
		Logger:   zaptest.NewLogger(t),
	}
	if fetcher != nil {
		cfg.Fetcher = fetcher
	}
	r, err := NewRunner(cfg)
	require.NoError(t, err)
	return r, a
}

func TestRunFilesKeepsTargetOrder(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFile(t, dir, "Bank.sol", "contract Bank {}"),
		writeFile(t, dir, "notes.txt", "just some prose"),
		writeFile(t, dir, "Vault.sol", "contract Vault {}"),
	}

	var out bytes.Buffer
	r, a := newTestRunner(t, &out, nil, nil)

	rep, err := r.Run(context.Background(), internal.AuditConfig{Files: files, Concurrency: 3})
	require.NoError(t, err)

	assert.Equal(t, 3, a.calls)
	assert.Equal(t, 3, rep.TotalContracts)
	assert.Equal(t, 1, rep.FailedContracts)
	require.Len(t, rep.Entries, 3)
	for i, f := range files {
		assert.Equal(t, f, rep.Entries[i].Source)
	}
	assert.Equal(t, report.StatusFailed, rep.Entries[1].Status)
	assert.Equal(t, "The submitted file does not look like a smart contract", rep.Entries[1].Error)

	text := out.String()
	assert.Contains(t, text, "🎯 开始审计 3 个合约")
	assert.Contains(t, text, "[3/3]")
	assert.Contains(t, text, "   - 审计成功: 2\n   - 审计失败: 1")
	assert.Equal(t, 2, strings.Count(text, strings.Repeat("=", 50)))
}

func TestRunMissingAndOversizedFiles(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.sol")
	require.NoError(t, os.WriteFile(big, bytes.Repeat([]byte("a"), internal.MaxContractSize+1), 0o600))

	var out bytes.Buffer
	r, a := newTestRunner(t, &out, nil, nil)

	rep, err := r.Run(context.Background(), internal.AuditConfig{
		Files: []string{filepath.Join(dir, "absent.sol"), big, dir},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, a.calls)
	assert.Equal(t, 3, rep.FailedContracts)
	for _, e := range rep.Entries {
		assert.Contains(t, e.Error, "Invalid input")
	}
}

func TestRunJSONSingleTarget(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Bank.sol", "contract Bank {}")

	var out bytes.Buffer
	r, _ := newTestRunner(t, &out, nil, nil)

	_, err := r.Run(context.Background(), internal.AuditConfig{Files: []string{path}, JSON: true})
	require.NoError(t, err)

	var got internal.AuditReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "Reentrancy", got.Category)
	assert.Equal(t, "contract Bank {} // fixed", got.FixedContract)
	assert.NotContains(t, out.String(), "🎯")
}

func TestRunJSONSingleFailure(t *testing.T) {
	path := writeFile(t, t.TempDir(), "notes.txt", "prose only")

	var out bytes.Buffer
	r, _ := newTestRunner(t, &out, nil, nil)

	_, err := r.Run(context.Background(), internal.AuditConfig{Files: []string{path}, JSON: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"The submitted file does not look like a smart contract"}`, out.String())
}

func TestRunJSONMultipleTargets(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFile(t, dir, "Bank.sol", "contract Bank {}"),
		writeFile(t, dir, "notes.txt", "prose"),
	}

	var out bytes.Buffer
	r, _ := newTestRunner(t, &out, nil, nil)

	_, err := r.Run(context.Background(), internal.AuditConfig{Files: files, JSON: true})
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, files[0], got[0]["source"])
	assert.Equal(t, "Reentrancy", got[0]["category"])
	assert.NotContains(t, got[0], "error")
	assert.Equal(t, files[1], got[1]["source"])
	assert.NotContains(t, got[1], "category")
	assert.Contains(t, got[1], "error")
}

func TestRunAddresses(t *testing.T) {
	dir := t.TempDir()
	list := writeFile(t, dir, "addresses.txt", "# watchlist\n0xbbb, mainnet\n\n// old\n0xccc\n")
	fetcher := &fakeFetcher{sources: map[string]string{
		"0xaaa": "contract A {}",
		"0xbbb": "contract B {}",
	}}

	var out bytes.Buffer
	r, _ := newTestRunner(t, &out, fetcher, nil)

	rep, err := r.Run(context.Background(), internal.AuditConfig{Address: "0xaaa", AddressFile: list})
	require.NoError(t, err)

	require.Len(t, rep.Entries, 3)
	assert.Equal(t, []string{"0xaaa", "0xbbb", "0xccc"},
		[]string{rep.Entries[0].Source, rep.Entries[1].Source, rep.Entries[2].Source})
	assert.Equal(t, 1, rep.FailedContracts)
	assert.Equal(t, "contract B {} // fixed", rep.Entries[1].Result.FixedContract)
}

func TestRunAddressWithoutFetcher(t *testing.T) {
	var out bytes.Buffer
	r, _ := newTestRunner(t, &out, nil, nil)

	_, err := r.Run(context.Background(), internal.AuditConfig{Address: "0xaaa"})
	assert.ErrorContains(t, err, "Etherscan API key")
}

func TestRunNoTargets(t *testing.T) {
	var out bytes.Buffer
	r, _ := newTestRunner(t, &out, nil, nil)

	_, err := r.Run(context.Background(), internal.AuditConfig{Files: []string{"  "}})
	assert.ErrorContains(t, err, "no audit targets")
}

func TestRunCanceled(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Bank.sol", "contract Bank {}")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	r, _ := newTestRunner(t, &out, nil, nil)

	_, err := r.Run(ctx, internal.AuditConfig{Files: []string{path}})
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingStorage struct {
	saved *report.Report
}

func (s *recordingStorage) Save(_ context.Context, r *report.Report, content string) (string, error) {
	s.saved = r
	if !strings.Contains(content, "# TrustGuard 审计报告") {
		return "", errors.New("unexpected content")
	}
	return "memory:" + r.ID, nil
}

func TestRunSavesReport(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Bank.sol", "contract Bank {}")
	storage := &recordingStorage{}
	reporter := report.NewReporter(report.NewMarkdownGenerator(), storage)

	var out bytes.Buffer
	r, _ := newTestRunner(t, &out, nil, reporter)

	rep, err := r.Run(context.Background(), internal.AuditConfig{Files: []string{path}})
	require.NoError(t, err)
	require.NotNil(t, storage.saved)
	assert.Equal(t, rep.ID, storage.saved.ID)
	assert.Contains(t, out.String(), "📄 报告已保存: memory:"+rep.ID)
}

func TestNewRunnerRequiresAuditor(t *testing.T) {
	_, err := NewRunner(RunnerConfig{})
	assert.Error(t, err)
}
