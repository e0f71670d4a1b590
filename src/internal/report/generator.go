package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/admi-n/trustguard/src/internal/report/renderers"
)

// Generator 报告生成器接口
type Generator interface {
	Generate(report *Report) (string, error)
}

// MarkdownGenerator markdown格式报告生成器
type MarkdownGenerator struct {
	renderer *renderers.MarkdownRenderer
}

// NewMarkdownGenerator 创建markdown报告生成器
func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{renderer: renderers.NewMarkdownRenderer()}
}

// Generate 生成markdown格式报告
func (g *MarkdownGenerator) Generate(report *Report) (string, error) {
	if report == nil {
		return "", fmt.Errorf("report is nil")
	}

	var result strings.Builder

	// 报告头部
	result.WriteString("# TrustGuard 审计报告\n\n")
	result.WriteString(fmt.Sprintf("**报告 ID**: %s\n", report.ID))
	result.WriteString(fmt.Sprintf("**AI 提供商**: %s\n", report.AIProvider))
	result.WriteString(fmt.Sprintf("**审计时间**: %s\n\n", report.CreatedAt.Format("2006-01-02 15:04:05")))

	// 审计统计
	result.WriteString("## 审计统计\n\n")
	result.WriteString(fmt.Sprintf("- **总合约数**: %d\n", report.TotalContracts))
	result.WriteString(fmt.Sprintf("- **审计失败**: %d\n\n", report.FailedContracts))

	// 漏洞类别分布，按数量降序
	if len(report.CategoryDistribution) > 0 {
		result.WriteString("## 漏洞类别分布\n\n")
		categories := make([]string, 0, len(report.CategoryDistribution))
		for c := range report.CategoryDistribution {
			categories = append(categories, c)
		}
		sort.Slice(categories, func(i, j int) bool {
			ci, cj := report.CategoryDistribution[categories[i]], report.CategoryDistribution[categories[j]]
			if ci != cj {
				return ci > cj
			}
			return categories[i] < categories[j]
		})
		for _, c := range categories {
			result.WriteString(fmt.Sprintf("- **%s**: %d\n", c, report.CategoryDistribution[c]))
		}
		result.WriteString("\n")
	}

	result.WriteString("## 详细结果\n\n")

	for i, e := range report.Entries {
		var (
			category, fixed string
			fixes           []string
		)
		if e.Result != nil {
			category, fixes, fixed = e.Result.Category, e.Result.Fixes, e.Result.FixedContract
		}
		result.WriteString(g.renderer.RenderEntry(e.Source, e.Status, category, fixes, fixed, e.Error))

		if i < len(report.Entries)-1 {
			result.WriteString("---\n\n")
		}
	}

	return result.String(), nil
}
