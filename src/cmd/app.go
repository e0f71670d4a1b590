package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/admi-n/trustguard/src/config"
	"github.com/admi-n/trustguard/src/internal/ai"
	"github.com/admi-n/trustguard/src/internal/catalog"
	"github.com/admi-n/trustguard/src/internal/classifier"
	"github.com/admi-n/trustguard/src/internal/core"
	"github.com/admi-n/trustguard/src/internal/logging"
	"github.com/admi-n/trustguard/src/internal/remediator"
	"github.com/admi-n/trustguard/src/strategy/prompts"
)

// app 各子命令共享的依赖
type app struct {
	settings *config.Settings
	logger   *zap.Logger
	catalog  *catalog.Catalog
	loader   *prompts.Loader
}

// newApp 加载配置、日志和类别表，不创建 AI 客户端
func newApp(opts *rootOptions) (*app, error) {
	settings, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.provider != "" {
		settings.AI.Provider = opts.provider
	}

	logger, err := logging.New(opts.verbose)
	if err != nil {
		return nil, err
	}

	cat := catalog.Default()
	if settings.Catalog.Path != "" {
		cat, err = catalog.LoadFile(settings.Catalog.Path)
		if err != nil {
			_ = logger.Sync()
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		logger.Info("loaded catalog", zap.String("path", settings.Catalog.Path), zap.Int("categories", cat.Len()))
	}

	return &app{
		settings: settings,
		logger:   logger,
		catalog:  cat,
		loader:   prompts.NewLoader(settings.Prompts.Dir),
	}, nil
}

// newManager 按当前提供商创建 AI 管理器
func (a *app) newManager(ctx context.Context) (*ai.Manager, error) {
	if err := ai.ValidateProvider(a.settings.AI.Provider); err != nil {
		return nil, err
	}
	provider := ai.NormalizeProvider(a.settings.AI.Provider)

	ps, err := a.settings.ProviderSettings(provider)
	if err != nil {
		return nil, err
	}

	return ai.NewManager(ctx, ai.ManagerConfig{
		Provider:       provider,
		APIKey:         ps.APIKey,
		BaseURL:        ps.BaseURL,
		Model:          ps.Model,
		Proxy:          a.settings.AI.Proxy,
		Timeout:        a.settings.AI.Timeout,
		MaxRetries:     a.settings.AI.MaxRetries,
		RequestsPerMin: a.settings.AI.RequestsPerMin,
		Logger:         a.logger,
	})
}

// newAuditor 组装 分类 → 修复 流水线
func (a *app) newAuditor(gen *ai.Manager) (*core.Auditor, error) {
	builder := prompts.NewBuilder(a.loader)

	cls, err := classifier.New(gen, a.catalog,
		classifier.WithPromptBuilder(builder),
		classifier.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}

	rem, err := remediator.New(gen, builder, a.logger)
	if err != nil {
		return nil, err
	}

	return core.NewAuditor(cls, rem, a.logger), nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}
