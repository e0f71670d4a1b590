package prompts

import (
	"fmt"
	"strings"
	"text/template"
)

// 系统提示词
const (
	ClassifySystemPrompt  = "You are a professional smart contract reviewer. You classify the single most relevant vulnerability in a contract and answer strictly in JSON."
	RemediateSystemPrompt = "You are a professional smart contract engineer. You rewrite vulnerable contracts to apply the requested fixes and answer strictly in JSON."
)

// ClassifyVars 分类模板变量
type ClassifyVars struct {
	SmartContract         string
	VulnerabilityPatterns string
	FormatInstructions    string
}

// RemediateVars 修复模板变量
type RemediateVars struct {
	SmartContract      string
	Category           string
	Fixes              []string
	FormatInstructions string
}

// BuildPrompt 使用模板和变量构建最终的 prompt；引用未提供的变量会报错
func BuildPrompt(templateContent string, variables map[string]string) (string, error) {
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(templateContent)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var result strings.Builder
	if err := tmpl.Execute(&result, variables); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return result.String(), nil
}

// Builder 基于 Loader 构建分类与修复 prompt
type Builder struct {
	loader *Loader
}

// NewBuilder 创建 prompt 构建器
func NewBuilder(loader *Loader) *Builder {
	if loader == nil {
		loader = NewLoader("")
	}
	return &Builder{loader: loader}
}

// BuildClassifyPrompt 构建分类 prompt
func (b *Builder) BuildClassifyPrompt(v ClassifyVars) (string, error) {
	content, err := b.loader.LoadTemplate(TemplateClassify)
	if err != nil {
		return "", err
	}

	return BuildPrompt(content, map[string]string{
		"SmartContract":         v.SmartContract,
		"VulnerabilityPatterns": v.VulnerabilityPatterns,
		"FormatInstructions":    v.FormatInstructions,
	})
}

// BuildRemediatePrompt 构建修复 prompt，fixes 按顺序编号
func (b *Builder) BuildRemediatePrompt(v RemediateVars) (string, error) {
	content, err := b.loader.LoadTemplate(TemplateRemediate)
	if err != nil {
		return "", err
	}

	var fixes strings.Builder
	for i, f := range v.Fixes {
		fmt.Fprintf(&fixes, "%d. %s\n", i+1, f)
	}

	return BuildPrompt(content, map[string]string{
		"SmartContract":      v.SmartContract,
		"Category":           v.Category,
		"Fixes":              fixes.String(),
		"FormatInstructions": v.FormatInstructions,
	})
}
