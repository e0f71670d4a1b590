package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/admi-n/trustguard/src/internal"
	"github.com/admi-n/trustguard/src/internal/download"
	"github.com/admi-n/trustguard/src/internal/handler"
	"github.com/admi-n/trustguard/src/internal/report"
)

type auditOptions struct {
	address     string
	addressFile string
	outDir      string
	jsonOut     bool
	noReport    bool
	concurrency int
	timeout     time.Duration
}

func newAuditCommand(root *rootOptions) *cobra.Command {
	opts := &auditOptions{}

	c := &cobra.Command{
		Use:   "audit [files...]",
		Short: "审计本地合约文件或链上已验证合约",
		Example: `  trustguard audit contracts/Bank.sol
  trustguard audit --address 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed --json
  trustguard audit --address-file targets.txt --concurrency 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && opts.address == "" && opts.addressFile == "" {
				return fmt.Errorf("nothing to audit: pass contract files, --address or --address-file")
			}
			return runAudit(cmd, root, opts, args)
		},
	}

	f := c.Flags()
	f.StringVar(&opts.address, "address", "", "合约地址，多个以逗号分隔（需要 Etherscan API key）")
	f.StringVar(&opts.addressFile, "address-file", "", "地址列表文件，每行一个地址")
	f.StringVar(&opts.outDir, "out", "", "报告输出目录（默认使用配置中的 reports.dir）")
	f.BoolVar(&opts.jsonOut, "json", false, "以 JSON 输出审计结果")
	f.BoolVar(&opts.noReport, "no-report", false, "不生成 Markdown 报告")
	f.IntVarP(&opts.concurrency, "concurrency", "c", handler.DefaultConcurrency, "并发审计数")
	f.DurationVar(&opts.timeout, "timeout", 0, "单个合约的审计超时（0 表示不限制）")
	return c
}

func runAudit(cmd *cobra.Command, root *rootOptions, opts *auditOptions, files []string) error {
	ctx := cmd.Context()

	a, err := newApp(root)
	if err != nil {
		return err
	}
	defer a.close()

	manager, err := a.newManager(ctx)
	if err != nil {
		return fmt.Errorf("failed to create AI manager: %w", err)
	}
	defer manager.Close()

	auditor, err := a.newAuditor(manager)
	if err != nil {
		return err
	}

	var fetcher handler.SourceFetcher
	if opts.address != "" || opts.addressFile != "" {
		f, err := a.newFetcher(ctx)
		if err != nil {
			return err
		}
		defer f.Close()
		fetcher = f
	}

	var reporter *report.Reporter
	if !opts.noReport {
		reporter, err = a.newReporter(ctx, opts.outDir)
		if err != nil {
			return err
		}
		defer reporter.Close()
	}

	runner, err := handler.NewRunner(handler.RunnerConfig{
		Auditor:  auditor,
		Fetcher:  fetcher,
		Reporter: reporter,
		Provider: manager.GetClientInfo(),
		Out:      cmd.OutOrStdout(),
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}

	rep, err := runner.Run(ctx, internal.AuditConfig{
		Files:       files,
		Address:     opts.address,
		AddressFile: opts.addressFile,
		OutputDir:   opts.outDir,
		JSON:        opts.jsonOut,
		Concurrency: opts.concurrency,
		Timeout:     opts.timeout,
	})
	if err != nil {
		return err
	}
	if rep.FailedContracts > 0 {
		return fmt.Errorf("%d of %d audits failed", rep.FailedContracts, rep.TotalContracts)
	}
	return nil
}

// newFetcher 创建按地址下载源码的 Fetcher
func (a *app) newFetcher(ctx context.Context) (*download.Fetcher, error) {
	if a.settings.Etherscan.APIKey == "" {
		return nil, fmt.Errorf("auditing by address requires an Etherscan API key (etherscan.api_key or ETHERSCAN_API_KEY)")
	}
	return download.NewFetcher(ctx, download.FetcherConfig{
		Etherscan: download.EtherscanConfig{
			APIKey:  a.settings.Etherscan.APIKey,
			BaseURL: a.settings.Etherscan.BaseURL,
			Proxy:   a.settings.AI.Proxy,
		},
		RPCURL: a.settings.RPC.Ethereum,
		Logger: a.logger,
	})
}

// newReporter 文件存储总是启用，数据库存储按配置启用
func (a *app) newReporter(ctx context.Context, outDir string) (*report.Reporter, error) {
	if outDir == "" {
		outDir = a.settings.Reports.Dir
	}
	storages := []report.Storage{report.NewFileStorage(outDir)}

	if a.settings.Database.Enabled() {
		db, err := report.OpenDatabaseStorage(ctx, a.settings.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open report database: %w", err)
		}
		a.logger.Info("archiving reports to database", zap.String("driver", a.settings.Database.Driver))
		storages = append(storages, db)
	}

	return report.NewReporter(report.NewMarkdownGenerator(), storages...), nil
}
