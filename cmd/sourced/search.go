package main

import (
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/papyr-io/papyr/internal/source"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run a search against one source descriptor",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("source")
		keyword, _ := cmd.Flags().GetString("keyword")
		if path == "" || keyword == "" {
			return fmt.Errorf("both --source and --keyword are required")
		}

		src, err := source.LoadYAML(path)
		if err != nil {
			return err
		}

		eng, _, logger, err := buildEngine(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()

		res := eng.Search(cmd.Context(), src, keyword)
		out, err := sonic.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(out))
		if !res.OK() {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringP("source", "s", "", "Path to YAML source descriptor")
	searchCmd.Flags().StringP("keyword", "k", "", "Search keyword")
	rootCmd.AddCommand(searchCmd)
}
