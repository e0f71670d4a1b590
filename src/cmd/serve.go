package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/admi-n/trustguard/src/internal/server"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var (
		addr        string
		testConnect bool
	)

	c := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 审计服务",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if testConnect {
				if err := manager.TestConnection(ctx); err != nil {
					return err
				}
			}

			auditor, err := a.newAuditor(manager)
			if err != nil {
				return err
			}

			if addr == "" {
				addr = a.settings.Server.Addr
			}
			srv, err := server.New(auditor, a.catalog, server.Config{
				Addr:          addr,
				RequireAPIKey: a.settings.Server.RequireAPIKey,
				Logger:        a.logger,
			})
			if err != nil {
				return err
			}

			a.logger.Info("starting TrustGuard server",
				zap.String("addr", addr),
				zap.String("provider", manager.GetClientInfo()),
				zap.Bool("require_api_key", a.settings.Server.RequireAPIKey))
			return srv.ListenAndServe(ctx)
		},
	}

	c.Flags().StringVar(&addr, "addr", "", "监听地址（默认使用配置中的 server.addr）")
	c.Flags().BoolVar(&testConnect, "test-connection", false, "启动前测试 AI 提供商连通性")
	return c
}
