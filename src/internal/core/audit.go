// Package core 审计流水线：校验输入、分类、修复，最后组装报告。
package core

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/admi-n/trustguard/src/internal"
	"github.com/admi-n/trustguard/src/internal/validator"
)

// Classifier 分类阶段
type Classifier interface {
	Classify(ctx context.Context, source string) (internal.ClassificationResult, error)
}

// Remediator 修复阶段
type Remediator interface {
	Remediate(ctx context.Context, source string, classification internal.ClassificationResult) (internal.RemediatedContract, error)
}

// Auditor 串行执行 校验 → 分类 → 修复。无请求级状态，可并发调用。
type Auditor struct {
	classifier Classifier
	remediator Remediator
	isContract func(string) bool
	logger     *zap.Logger
}

// NewAuditor 创建审计器
func NewAuditor(c Classifier, r Remediator, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{
		classifier: c,
		remediator: r,
		isContract: validator.IsSmartContract,
		logger:     logger,
	}
}

// Audit 审计一份合约源码。已归类的失败返回 *internal.AuditError，任何失败都不返回部分报告。
func (a *Auditor) Audit(ctx context.Context, raw []byte) (*internal.AuditReport, error) {
	log := a.logger.With(zap.String("audit_id", uuid.NewString()))
	start := time.Now()

	if err := checkInput(raw); err != nil {
		log.Info("rejected input", zap.Error(err))
		return nil, internal.NewAuditError(internal.StageInput, internal.ErrInvalidInput, err)
	}
	source := string(raw)

	if !a.isContract(source) {
		log.Info("input is not a smart contract", zap.Int("bytes", len(raw)))
		return nil, internal.NewAuditError(internal.StageValidate, internal.ErrNotAContract, nil)
	}

	classification, err := a.classifier.Classify(ctx, source)
	if err != nil {
		return nil, a.stageError(log, internal.StageClassify, err)
	}
	log.Debug("classification done",
		zap.String("category", classification.Category),
		zap.Duration("elapsed", time.Since(start)))

	fixed, err := a.remediator.Remediate(ctx, source, classification)
	if err != nil {
		return nil, a.stageError(log, internal.StageRemediate, err)
	}

	log.Info("audit finished",
		zap.String("category", classification.Category),
		zap.Duration("elapsed", time.Since(start)))

	return &internal.AuditReport{
		Category:      classification.Category,
		Fixes:         classification.Fixes,
		FixedContract: fixed.SourceText,
	}, nil
}

func checkInput(raw []byte) error {
	switch {
	case len(raw) == 0:
		return errors.New("contract source is empty")
	case len(raw) > internal.MaxContractSize:
		return fmt.Errorf("contract source is %d bytes, limit is %d", len(raw), internal.MaxContractSize)
	case !utf8.Valid(raw):
		return errors.New("contract source is not valid UTF-8")
	}
	return nil
}

// stageError 为错误标注阶段；未归类的错误完整记录日志，对外只给出通用信息
func (a *Auditor) stageError(log *zap.Logger, stage internal.Stage, err error) error {
	var kind error
	switch {
	case errors.Is(err, internal.ErrSchemaViolation):
		kind = internal.ErrSchemaViolation
	case errors.Is(err, internal.ErrUpstreamUnavailable):
		kind = internal.ErrUpstreamUnavailable
	default:
		log.Error("unexpected audit failure", zap.String("stage", string(stage)), zap.Error(err))
		return fmt.Errorf("%s: %w", stage, err)
	}

	log.Warn("audit stage failed", zap.String("stage", string(stage)), zap.Error(err))
	return internal.NewAuditError(stage, kind, err)
}
