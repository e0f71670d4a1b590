// Package classifier 通过一次生成式调用把合约归入类别表中的某个漏洞类别。
package classifier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/admi-n/trustguard/src/internal"
	"github.com/admi-n/trustguard/src/internal/ai/client"
	"github.com/admi-n/trustguard/src/internal/ai/parser"
	"github.com/admi-n/trustguard/src/internal/catalog"
	"github.com/admi-n/trustguard/src/strategy/prompts"
)

// Generator 生成式推理能力
type Generator interface {
	Generate(ctx context.Context, prompt client.Prompt) (string, error)
}

// Classifier 漏洞分类器，无请求级状态
type Classifier struct {
	gen      Generator
	catalog  *catalog.Catalog
	builder  *prompts.Builder
	parser   *parser.Parser
	schema   *client.Schema
	patterns string
	logger   *zap.Logger
}

// Option 分类器选项
type Option func(*Classifier)

// WithPromptBuilder 使用自定义模板
func WithPromptBuilder(b *prompts.Builder) Option {
	return func(c *Classifier) { c.builder = b }
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// New 创建分类器；类别表在此序列化一次
func New(gen Generator, cat *catalog.Catalog, opts ...Option) (*Classifier, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cat == nil {
		return nil, fmt.Errorf("catalog is required")
	}

	patterns, err := cat.JSON()
	if err != nil {
		return nil, err
	}

	c := &Classifier{
		gen:      gen,
		catalog:  cat,
		parser:   parser.NewParser(),
		schema:   parser.ClassificationSchema(cat.Names()),
		patterns: patterns,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.builder == nil {
		c.builder = prompts.NewBuilder(nil)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c, nil
}

// Classify 分类合约源码。类别名按去除首尾空白后大小写不敏感的精确匹配解析为类别表中的规范名称，
// 不做模糊匹配，也不替换为默认类别。
func (c *Classifier) Classify(ctx context.Context, source string) (internal.ClassificationResult, error) {
	user, err := c.builder.BuildClassifyPrompt(prompts.ClassifyVars{
		SmartContract:         source,
		VulnerabilityPatterns: c.patterns,
		FormatInstructions:    parser.GetSchemaInstructions(c.schema),
	})
	if err != nil {
		return internal.ClassificationResult{}, fmt.Errorf("failed to build classify prompt: %w", err)
	}

	start := time.Now()
	resp, err := c.gen.Generate(ctx, client.Prompt{
		System: prompts.ClassifySystemPrompt,
		User:   user,
		Schema: c.schema,
	})
	if err != nil {
		return internal.ClassificationResult{}, internal.Upstream(err)
	}
	c.logger.Debug("classification response received",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("bytes", len(resp)))

	result, err := c.parser.ParseClassification(resp)
	if err != nil {
		return internal.ClassificationResult{}, err
	}

	entry, ok := c.catalog.Resolve(result.Category)
	if !ok {
		return internal.ClassificationResult{}, internal.Schemaf("category %q is not one of the known vulnerability patterns", result.Category)
	}
	result.Category = entry.Name

	c.logger.Info("contract classified",
		zap.String("category", result.Category),
		zap.Int("fixes", len(result.Fixes)))
	return result, nil
}
