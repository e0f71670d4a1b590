package internal

import (
	"errors"
	"fmt"
	"time"
)

// MaxContractSize 单次审计允许的合约源码上限（16 MiB）
const MaxContractSize = 16 << 20

// ClassificationResult 分类阶段的输出
type ClassificationResult struct {
	Category string   `json:"category"`
	Fixes    []string `json:"fixes"`
}

// RemediatedContract 修复阶段的输出，内容不做语法校验
type RemediatedContract struct {
	SourceText string `json:"fixed_contract"`
}

// AuditReport 最终返回给调用方的审计结果
type AuditReport struct {
	Category      string   `json:"category"`
	Fixes         []string `json:"fixes"`
	FixedContract string   `json:"fixed_contract"`
}

// ErrorResponse 错误输出结构
type ErrorResponse struct {
	Error string `json:"error"`
}

// AuditConfig 批量审计（CLI）使用的配置
type AuditConfig struct {
	Files       []string
	Address     string
	AddressFile string // 每行一个地址，# 或 // 开头为注释
	OutputDir   string
	JSON        bool
	Concurrency int
	Timeout     time.Duration
}

// 审计错误分类
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotAContract        = errors.New("not a smart contract")
	ErrSchemaViolation     = errors.New("schema violation")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Stage 流水线阶段
type Stage string

const (
	StageInput     Stage = "input"
	StageValidate  Stage = "validate"
	StageClassify  Stage = "classify"
	StageRemediate Stage = "remediate"
)

// AuditError 携带失败阶段与错误类别，errors.Is 对类别和底层原因都成立
type AuditError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *AuditError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	if errors.Is(e.Err, e.Kind) {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *AuditError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewAuditError 创建带阶段信息的审计错误
func NewAuditError(stage Stage, kind, err error) *AuditError {
	return &AuditError{Stage: stage, Kind: kind, Err: err}
}

// Schemaf 构造 SchemaViolation
func Schemaf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaViolation, fmt.Sprintf(format, args...))
}

// Upstream 把底层调用错误包装为 UpstreamUnavailable；
// 已是 SchemaViolation 的错误原样返回，服务有应答只是内容不可用
func Upstream(err error) error {
	if err == nil || errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrSchemaViolation) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
}

// UserMessage 返回面向调用方的错误描述；未知错误返回通用提示，避免泄露内部细节
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "Invalid input: contract source must be non-empty UTF-8 text no larger than 16 MiB"
	case errors.Is(err, ErrNotAContract):
		return "The submitted file does not look like a smart contract"
	case errors.Is(err, ErrSchemaViolation):
		var ae *AuditError
		if errors.As(err, &ae) && ae.Err != nil {
			return fmt.Sprintf("The analysis engine returned a malformed %s result (%v)", ae.Stage, ae.Err)
		}
		return "The analysis engine returned a malformed result"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "The analysis engine is currently unavailable. Please try again later."
	default:
		return "An unexpected error occurred. Please try again."
	}
}
