package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/aretw0/enginegate/internal/cli"
	"github.com/spf13/cobra"
)

var demosCmd = &cobra.Command{
	Use:   "demos",
	Short: "List recorded demos",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		backends, err := cli.NewBackends(cfg)
		if err != nil {
			return err
		}
		defer backends.Close()

		ids, err := backends.Demos.List(cmd.Context())
		if err != nil {
			return err
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var demosExportCmd = &cobra.Command{
	Use:   "export <id> [file]",
	Short: "Write a recorded demo to a file (or stdout)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		backends, err := cli.NewBackends(cfg)
		if err != nil {
			return err
		}
		defer backends.Close()

		demo, err := backends.Demos.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("demo %s: %w", args[0], err)
		}
		if len(args) == 1 {
			_, err = cmd.OutOrStdout().Write(demo)
			return err
		}
		return os.WriteFile(args[1], demo, 0644)
	},
}

var demosDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete recorded demos",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		backends, err := cli.NewBackends(cfg)
		if err != nil {
			return err
		}
		defer backends.Close()

		for _, id := range args {
			if err := backends.Demos.Delete(cmd.Context(), id); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(demosCmd)
	demosCmd.AddCommand(demosExportCmd)
	demosCmd.AddCommand(demosDeleteCmd)
}
