package validator

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// 声明形式：contract Name { 或 contract Name is Base
	structuralKeyword = regexp.MustCompile(`\b(contract|interface|library)\s+[A-Za-z_$][A-Za-z0-9_$]*\s*(\bis\b|\{)`)
	functionKeyword   = regexp.MustCompile(`\bfunction\s*([A-Za-z_$][A-Za-z0-9_$]*)?\s*\(`)
	pragmaMarker      = regexp.MustCompile(`(?m)^\s*pragma\s+\S+`)
	braceBlock        = regexp.MustCompile(`(?s)\{.*\}`)
	tagStart          = regexp.MustCompile(`^<[A-Za-z!?/]`)
)

// maxControlRatio 控制字符占比超过该值视为二进制
const maxControlRatio = 0.05

// IsSmartContract 启发式判断文本是否像智能合约源码，在调用模型之前执行。
// 宁可放行：任一信号命中即接受。
func IsSmartContract(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if !utf8.ValidString(trimmed) || isBinary(trimmed) {
		return false
	}
	if isMarkup(trimmed) {
		return false
	}

	return structuralKeyword.MatchString(trimmed) ||
		functionKeyword.MatchString(trimmed) ||
		pragmaMarker.MatchString(trimmed) ||
		braceBlock.MatchString(trimmed)
}

// isBinary 检查 NUL 字节和控制字符比例
func isBinary(s string) bool {
	if strings.IndexByte(s, 0) >= 0 {
		return true
	}
	total, control := 0, 0
	for _, r := range s {
		total++
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			control++
		}
	}
	return float64(control)/float64(total) > maxControlRatio
}

// isMarkup 以标签开头即视为标记文本，HTML 片段同样拒绝
func isMarkup(s string) bool {
	return tagStart.MatchString(s)
}
