package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of Elahe Messenger",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("elahe-messenger version %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
