package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/admi-n/trustguard/src/config"
)

// rootOptions 全局参数
type rootOptions struct {
	configPath string
	provider   string
	verbose    bool
}

// NewRootCommand 构建命令树
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "trustguard",
		Short:         "TrustGuard - 智能合约漏洞分类与修复",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "配置文件路径（默认 "+config.DefaultConfigPath+"）")
	root.PersistentFlags().StringVar(&opts.provider, "provider", "", "AI 提供商: gemini | openai | deepseek | local-llm")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "输出调试日志")

	root.AddCommand(
		newAuditCommand(opts),
		newServeCommand(opts),
		newCatalogCommand(opts),
		newPromptsCommand(opts),
	)
	return root
}

// Run 解析命令行并执行，收到 SIGINT/SIGTERM 时取消上下文
func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

// PrintFatal 将错误打印到 stderr 并以非零代码退出。
func PrintFatal(err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "错误:", err)
	os.Exit(1)
}
