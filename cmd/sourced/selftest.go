package main

import (
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/papyr-io/papyr/internal/source"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Probe a source: search, then chase the first hit to chapter text",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("source")
		if path == "" {
			return fmt.Errorf("--source is required")
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

		report := eng.SelfTest(cmd.Context(), src)
		out, err := sonic.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(out))

		for _, stage := range report {
			if !stage.Success {
				os.Exit(1)
			}
		}
		return nil
	},
}

func init() {
	selftestCmd.Flags().StringP("source", "s", "", "Path to YAML source descriptor")
	rootCmd.AddCommand(selftestCmd)
}
