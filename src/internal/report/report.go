package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/admi-n/trustguard/src/internal"
)

// 条目状态
const (
	StatusAudited = "✅ 审计完成"
	StatusFailed  = "❌ 审计失败"
)

// Entry 单个合约的审计结果
type Entry struct {
	Source    string // 文件路径或合约地址
	AuditedAt time.Time
	Status    string
	Result    *internal.AuditReport
	Error     string
}

// Report 一次批量审计的完整报告
type Report struct {
	ID                   string
	AIProvider           string
	CreatedAt            time.Time
	TotalContracts       int
	FailedContracts      int
	CategoryDistribution map[string]int
	Entries              []Entry
}

// NewReport 创建新的报告实例
func NewReport(aiProvider string) *Report {
	return &Report{
		ID:                   uuid.NewString(),
		AIProvider:           aiProvider,
		CreatedAt:            time.Now(),
		CategoryDistribution: make(map[string]int),
		Entries:              make([]Entry, 0),
	}
}

// AddResult 添加成功的审计结果
func (r *Report) AddResult(source string, result *internal.AuditReport) {
	r.Entries = append(r.Entries, Entry{
		Source:    source,
		AuditedAt: time.Now(),
		Status:    StatusAudited,
		Result:    result,
	})
	r.TotalContracts++
	r.CategoryDistribution[result.Category]++
}

// AddFailure 添加失败的审计，只记录面向用户的错误信息
func (r *Report) AddFailure(source string, err error) {
	r.Entries = append(r.Entries, Entry{
		Source:    source,
		AuditedAt: time.Now(),
		Status:    StatusFailed,
		Error:     internal.UserMessage(err),
	})
	r.TotalContracts++
	r.FailedContracts++
}

// Reporter 报告器，整合生成器和存储功能
type Reporter struct {
	generator Generator
	storages  []Storage
}

// NewReporter 创建报告器，报告会依次写入每个存储
func NewReporter(generator Generator, storages ...Storage) *Reporter {
	return &Reporter{
		generator: generator,
		storages:  storages,
	}
}

// GenerateAndSave 生成并保存报告，返回各存储给出的位置
func (r *Reporter) GenerateAndSave(ctx context.Context, report *Report) ([]string, error) {
	content, err := r.generator.Generate(report)
	if err != nil {
		return nil, fmt.Errorf("failed to generate report: %w", err)
	}

	var (
		locations []string
		errs      []error
	)
	for _, s := range r.storages {
		loc, err := s.Save(ctx, report, content)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		locations = append(locations, loc)
	}
	if err := errors.Join(errs...); err != nil {
		return locations, fmt.Errorf("failed to save report: %w", err)
	}

	return locations, nil
}

// Close 关闭所有实现了 io.Closer 的存储
func (r *Reporter) Close() error {
	var errs []error
	for _, s := range r.storages {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
