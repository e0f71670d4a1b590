package client

import "fmt"

// 共享的 API 类型定义

// Prompt 结构化的模型请求
type Prompt struct {
	System string
	User   string
	// Schema 非空时要求模型返回符合该结构的 JSON 对象
	Schema *Schema
}

// FieldType 输出字段类型
type FieldType string

const (
	FieldString      FieldType = "string"
	FieldStringArray FieldType = "array<string>"
)

// Field 输出字段定义
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Enum        []string // 仅对 string 字段有效
}

// Schema 期望的 JSON 输出结构，所有字段均为必填
type Schema struct {
	Fields []Field
}

// Names 返回字段名列表
func (s *Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Message 消息结构
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Choice 选择结构
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage 使用情况结构
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// APIError API 错误结构
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// StatusError 非 200 响应
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable 429 和 5xx 可以重试，其余 4xx 重试无意义
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// truncate 截断响应体，避免把整段错误页写进日志
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
