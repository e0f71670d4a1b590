package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/admi-n/trustguard/src/internal"
	"github.com/admi-n/trustguard/src/internal/download"
	"github.com/admi-n/trustguard/src/internal/report"
	"github.com/admi-n/trustguard/src/internal/report/renderers"
)

// DefaultConcurrency 未指定并发数时同时审计的合约数
const DefaultConcurrency = 4

// Auditor 审计流水线
type Auditor interface {
	Audit(ctx context.Context, raw []byte) (*internal.AuditReport, error)
}

// SourceFetcher 按地址获取合约源码
type SourceFetcher interface {
	FetchSource(ctx context.Context, address string) (*download.Contract, error)
}

// Runner 批量审计本地文件和链上地址
type Runner struct {
	auditor  Auditor
	fetcher  SourceFetcher // 可为 nil，此时不支持地址目标
	reporter *report.Reporter
	provider string
	logger   *zap.Logger

	mu   sync.Mutex // 保护 out 和 done
	out  io.Writer
	done int
}

// RunnerConfig Runner 依赖
type RunnerConfig struct {
	Auditor  Auditor
	Fetcher  SourceFetcher
	Reporter *report.Reporter
	Provider string
	Out      io.Writer
	Logger   *zap.Logger
}

// NewRunner 创建 Runner
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Auditor == nil {
		return nil, errors.New("auditor is required")
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Runner{
		auditor:  cfg.Auditor,
		fetcher:  cfg.Fetcher,
		reporter: cfg.Reporter,
		provider: cfg.Provider,
		out:      cfg.Out,
		logger:   cfg.Logger,
	}, nil
}

// target 单个审计目标
type target struct {
	name string
	load func(ctx context.Context) ([]byte, error)
}

// outcome 单个目标的审计结果，按目标顺序汇总
type outcome struct {
	source string
	result *internal.AuditReport
	err    error
}

// jsonOutcome --json 输出的单条记录
type jsonOutcome struct {
	Source string `json:"source"`
	*internal.AuditReport
	Error string `json:"error,omitempty"`
}

// Run 执行批量审计。单个目标失败不会中断其他目标，失败计入报告；
// 只有目标解析失败或上下文取消时返回错误。
func (r *Runner) Run(ctx context.Context, cfg internal.AuditConfig) (*report.Report, error) {
	targets, err := r.collectTargets(cfg)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, errors.New("no audit targets: pass contract files or --address")
	}

	r.mu.Lock()
	r.done = 0
	r.mu.Unlock()

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	if !cfg.JSON {
		fmt.Fprintf(r.out, "🎯 开始审计 %d 个合约（并发 %d）\n", len(targets), concurrency)
	}

	outcomes := make([]outcome, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, t := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.auditOne(gctx, t, cfg)
			outcomes[i] = outcome{source: t.name, result: res, err: err}
			if !cfg.JSON {
				r.printProgress(len(targets), outcomes[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rep := report.NewReport(r.provider)
	for _, o := range outcomes {
		if o.err != nil {
			rep.AddFailure(o.source, o.err)
			continue
		}
		rep.AddResult(o.source, o.result)
	}

	if cfg.JSON {
		if err := writeJSON(r.out, outcomes); err != nil {
			return rep, err
		}
	} else {
		r.printSummary(rep)
	}

	if r.reporter != nil {
		locations, err := r.reporter.GenerateAndSave(ctx, rep)
		for _, loc := range locations {
			r.logger.Info("report saved", zap.String("location", loc))
			if !cfg.JSON {
				fmt.Fprintf(r.out, "📄 报告已保存: %s\n", loc)
			}
		}
		if err != nil {
			return rep, err
		}
	}

	return rep, nil
}

func (r *Runner) auditOne(ctx context.Context, t target, cfg internal.AuditConfig) (*internal.AuditReport, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	raw, err := t.load(ctx)
	if err != nil {
		r.logger.Warn("failed to load target", zap.String("source", t.name), zap.Error(err))
		return nil, err
	}

	res, err := r.auditor.Audit(ctx, raw)
	if err != nil {
		r.logger.Warn("audit failed", zap.String("source", t.name), zap.Error(err))
		return nil, err
	}
	return res, nil
}

func (r *Runner) collectTargets(cfg internal.AuditConfig) ([]target, error) {
	var targets []target
	for _, f := range cfg.Files {
		path := strings.TrimSpace(f)
		if path == "" {
			continue
		}
		targets = append(targets, target{name: path, load: fileLoader(path)})
	}

	var addrs []string
	if strings.TrimSpace(cfg.Address) != "" {
		for _, a := range strings.Split(cfg.Address, ",") {
			if a = strings.TrimSpace(a); a != "" {
				addrs = append(addrs, a)
			}
		}
	}
	if cfg.AddressFile != "" {
		fromFile, err := getAddressesFromFile(cfg.AddressFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read address file: %w", err)
		}
		addrs = append(addrs, fromFile...)
	}

	if len(addrs) > 0 && r.fetcher == nil {
		return nil, errors.New("auditing by address requires an Etherscan API key")
	}
	for _, a := range addrs {
		targets = append(targets, target{name: a, load: r.addressLoader(a)})
	}
	return targets, nil
}

// fileLoader 读取本地文件，超出大小上限时不读入内存
func fileLoader(path string) func(context.Context) ([]byte, error) {
	return func(context.Context) ([]byte, error) {
		info, err := os.Stat(path)
		if err != nil {
			return nil, internal.NewAuditError(internal.StageInput, internal.ErrInvalidInput, err)
		}
		if info.IsDir() {
			return nil, internal.NewAuditError(internal.StageInput, internal.ErrInvalidInput,
				fmt.Errorf("%s is a directory", path))
		}
		if info.Size() > internal.MaxContractSize {
			return nil, internal.NewAuditError(internal.StageInput, internal.ErrInvalidInput,
				fmt.Errorf("%s is %d bytes, limit is %d", path, info.Size(), internal.MaxContractSize))
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, internal.NewAuditError(internal.StageInput, internal.ErrInvalidInput, err)
		}
		return data, nil
	}
}

func (r *Runner) addressLoader(address string) func(context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		c, err := r.fetcher.FetchSource(ctx, address)
		if err != nil {
			return nil, err
		}
		return []byte(c.Source), nil
	}
}

// getAddressesFromFile 从文件获取地址列表
func getAddressesFromFile(path string) ([]string, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(bs), "\n")
	addrs := make([]string, 0, len(lines))
	for _, l := range lines {
		line := strings.TrimSpace(l)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		// 支持以逗号或空格分隔的多字段，取第一个字段
		fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
		if len(fields) == 0 {
			continue
		}
		addrs = append(addrs, fields[0])
	}
	return addrs, nil
}

func (r *Runner) printProgress(total int, o outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done++
	n := r.done
	if o.err != nil {
		fmt.Fprintf(r.out, "[%d/%d] ❌ %s: %s\n", n, total, o.source, internal.UserMessage(o.err))
		return
	}
	fmt.Fprintf(r.out, "[%d/%d] %s %s: %s（%d 条修复建议）\n",
		n, total, renderers.CategoryIcon(o.result.Category), o.source, o.result.Category, len(o.result.Fixes))
}

func (r *Runner) printSummary(rep *report.Report) {
	fmt.Fprintf(r.out, "\n%s\n", strings.Repeat("=", 50))
	fmt.Fprintf(r.out, "✅ 审计完成！\n")
	fmt.Fprintf(r.out, "   - 总合约数: %d\n", rep.TotalContracts)
	fmt.Fprintf(r.out, "   - 审计成功: %d\n", rep.TotalContracts-rep.FailedContracts)
	fmt.Fprintf(r.out, "   - 审计失败: %d\n", rep.FailedContracts)
	fmt.Fprintf(r.out, "%s\n\n", strings.Repeat("=", 50))
}

// writeJSON 单个目标输出对象，多个目标输出数组
func writeJSON(w io.Writer, outcomes []outcome) error {
	items := make([]jsonOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		item := jsonOutcome{Source: o.source, AuditReport: o.result}
		if o.err != nil {
			item.Error = internal.UserMessage(o.err)
		}
		items = append(items, item)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if len(items) == 1 {
		if items[0].Error != "" {
			return enc.Encode(internal.ErrorResponse{Error: items[0].Error})
		}
		return enc.Encode(items[0].AuditReport)
	}
	return enc.Encode(items)
}
