// Package remediator 根据分类结果让模型生成修复后的合约源码。
package remediator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/admi-n/trustguard/src/internal"
	"github.com/admi-n/trustguard/src/internal/ai/client"
	"github.com/admi-n/trustguard/src/internal/ai/parser"
	"github.com/admi-n/trustguard/src/strategy/prompts"
)

// Generator 生成式推理能力
type Generator interface {
	Generate(ctx context.Context, prompt client.Prompt) (string, error)
}

// Remediator 根据分类结果生成修复后的合约
type Remediator struct {
	gen     Generator
	builder *prompts.Builder
	parser  *parser.Parser
	schema  *client.Schema
	logger  *zap.Logger
}

// New 创建修复器，builder 和 logger 可为 nil
func New(gen Generator, builder *prompts.Builder, logger *zap.Logger) (*Remediator, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if builder == nil {
		builder = prompts.NewBuilder(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Remediator{
		gen:     gen,
		builder: builder,
		parser:  parser.NewParser(),
		schema:  parser.RemediationSchema(),
		logger:  logger,
	}, nil
}

// Remediate 返回修复后的合约源码；内容不做编译或语义校验
func (r *Remediator) Remediate(ctx context.Context, source string, classification internal.ClassificationResult) (internal.RemediatedContract, error) {
	user, err := r.builder.BuildRemediatePrompt(prompts.RemediateVars{
		SmartContract:      source,
		Category:           classification.Category,
		Fixes:              classification.Fixes,
		FormatInstructions: parser.GetSchemaInstructions(r.schema),
	})
	if err != nil {
		return internal.RemediatedContract{}, fmt.Errorf("failed to build remediate prompt: %w", err)
	}

	start := time.Now()
	resp, err := r.gen.Generate(ctx, client.Prompt{
		System: prompts.RemediateSystemPrompt,
		User:   user,
		Schema: r.schema,
	})
	if err != nil {
		return internal.RemediatedContract{}, internal.Upstream(err)
	}

	fixed, err := r.parser.ParseRemediation(resp)
	if err != nil {
		return internal.RemediatedContract{}, err
	}

	r.logger.Info("contract remediated",
		zap.String("category", classification.Category),
		zap.Int("bytes", len(fixed.SourceText)),
		zap.Duration("elapsed", time.Since(start)))
	return fixed, nil
}
