package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the tool version, overridden at build time with -ldflags
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("build-llm %s\n", Version)
	},
}
