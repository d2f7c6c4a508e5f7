package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/enginegate"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of enginegate",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "enginegate version %s\n", strings.TrimSpace(enginegate.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
