package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehsanking/elahe-messenger/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "elahe-messenger",
	Short: "Elahe Messenger: an agent that opens TCP connections on behalf of a remote operator.",
	Long: `Elahe Messenger connects out to a remote endpoint over HTTP polling or a
WebSocket, receives connect requests and stream data as framed messages, and
relays bytes between those streams and local TCP connections.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.ConfigFileName, "Path to the configuration file (.json, .yaml or .yml)")
}
