package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCatalogCommand(root *rootOptions) *cobra.Command {
	var namesOnly bool

	c := &cobra.Command{
		Use:   "catalog",
		Short: "输出漏洞类别表",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			if namesOnly {
				for _, name := range a.catalog.Names() {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			body, err := a.catalog.JSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, body)
			return nil
		},
	}

	c.Flags().BoolVar(&namesOnly, "names", false, "只输出类别名称")
	return c
}

func newPromptsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prompts [name]",
		Short: "列出可用的 prompt 模板，或输出指定模板内容",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				content, err := a.loader.LoadTemplate(args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(out, content)
				return nil
			}

			names, err := a.loader.ListTemplates()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(out, n)
			}
			return nil
		},
	}
}
