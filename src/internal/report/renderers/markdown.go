package renderers

import (
	"fmt"
	"strings"
)

// MarkdownRenderer markdown渲染器
type MarkdownRenderer struct{}

// NewMarkdownRenderer 创建markdown渲染器
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// RenderFixes 渲染有序修复列表
func (r *MarkdownRenderer) RenderFixes(fixes []string) string {
	var result strings.Builder
	for i, fix := range fixes {
		result.WriteString(fmt.Sprintf("%d. %s\n", i+1, fix))
	}
	return result.String()
}

// RenderCodeBlock 渲染代码块；代码中含有 ``` 时使用更长的围栏
func (r *MarkdownRenderer) RenderCodeBlock(lang, code string) string {
	fence := "```"
	for strings.Contains(code, fence) {
		fence += "`"
	}
	return fmt.Sprintf("%s%s\n%s\n%s\n", fence, lang, strings.TrimRight(code, "\n"), fence)
}

// RenderEntry 渲染单个合约的审计结果
func (r *MarkdownRenderer) RenderEntry(source, status, category string, fixes []string, fixedContract, errMsg string) string {
	var result strings.Builder

	result.WriteString(fmt.Sprintf("# 合约: %s\n\n", source))
	result.WriteString(fmt.Sprintf("**状态**: %s\n\n", status))

	if errMsg != "" {
		result.WriteString(fmt.Sprintf("**错误**: %s\n\n", errMsg))
		return result.String()
	}

	result.WriteString(fmt.Sprintf("**漏洞类别**: %s %s\n\n", CategoryIcon(category), category))

	if len(fixes) > 0 {
		result.WriteString("### 修复建议\n\n")
		result.WriteString(r.RenderFixes(fixes))
		result.WriteString("\n")
	}

	if fixedContract != "" {
		result.WriteString("### 修复后的合约\n\n")
		result.WriteString(r.RenderCodeBlock("solidity", fixedContract))
		result.WriteString("\n")
	}

	return result.String()
}

// CategoryIcon 获取漏洞类别对应的图标
func CategoryIcon(category string) string {
	switch category {
	case "Reentrancy", "Unauthorized Access", "Self-Destruct":
		return "🔴"
	case "Overflow", "Frontrunning":
		return "🟠"
	case "Gas Efficiency":
		return "🟢"
	default:
		return "⚪"
	}
}
