package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ehsanking/elahe-messenger/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or change the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if showKey, _ := cmd.Flags().GetBool("show-key"); !showKey && cfg.Key != "" {
			cfg.Key = "********"
		}
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var configSetURLCmd = &cobra.Command{
	Use:   "set-url [url]",
	Short: "Set the remote endpoint URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cfg.URL = args[0]
		cfg.Transport = transportForURL(cfg.URL)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.SaveConfig(configPath, cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Printf("✅ Remote endpoint updated to %s (%s)\n", cfg.URL, cfg.Transport)
		fmt.Println("Please restart the messenger for changes to take effect.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetURLCmd)

	configShowCmd.Flags().Bool("show-key", false, "Print the key instead of masking it")
}
