package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papyr-io/papyr/internal/security"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect or change the active security level",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, policies, logger, err := buildEngine(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()

		p := policies.Active()
		fmt.Fprintf(os.Stdout, "level=%s file=%t socket=%t reflection=%t internal-network=%t timeout=%dms\n",
			p.Level, p.AllowFile, p.AllowSocket, p.AllowReflection, p.AllowInternalNetwork, p.TimeoutMs)
		return nil
	},
}

var policySetCmd = &cobra.Command{
	Use:   "set <level>",
	Short: "Set the active security level (trusted requires --confirm)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := security.ParseLevel(args[0])
		if err != nil {
			return err
		}

		_, policies, logger, err := buildEngine(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()

		confirm, _ := cmd.Flags().GetString("confirm")
		if err := policies.SetLevel(level, confirm); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "active level: %s\n", policies.Active().Level)
		return nil
	},
}

func init() {
	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policySetCmd)
	rootCmd.AddCommand(policyCmd)
}
