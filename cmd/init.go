package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehsanking/elahe-messenger/internal/config"
	"github.com/ehsanking/elahe-messenger/internal/crypto"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a new configuration file with a fresh key.",
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)
		force, _ := cmd.Flags().GetBool("force")

		// Check if config already exists
		if _, err := os.Stat(configPath); err == nil && !force {
			fmt.Printf("\n⚠️  WARNING: A configuration file (%s) already exists!\n", configPath)
			fmt.Println("Running init again will OVERWRITE the existing configuration and GENERATE A NEW KEY.")
			fmt.Print("\nAre you sure you want to continue? (y/N): ")
			input, _ := reader.ReadString('\n')
			input = strings.TrimSpace(strings.ToLower(input))
			if input != "y" && input != "yes" {
				fmt.Println("Init aborted.")
				return nil
			}
		}

		cfg := config.Defaults()
		cfg.URL, _ = cmd.Flags().GetString("url")
		if cfg.URL == "" {
			fmt.Print("Enter the remote endpoint URL (http(s):// or ws(s)://): ")
			input, _ := reader.ReadString('\n')
			cfg.URL = strings.TrimSpace(input)
		}
		cfg.Transport, _ = cmd.Flags().GetString("transport")
		if cfg.Transport == "" {
			cfg.Transport = transportForURL(cfg.URL)
		}
		cfg.Cipher, _ = cmd.Flags().GetString("cipher")

		if cfg.Cipher != crypto.None {
			key, err := crypto.GenerateKey()
			if err != nil {
				return fmt.Errorf("generating key: %w", err)
			}
			cfg.Key = crypto.EncodeKeyToBase64(key)
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.SaveConfig(configPath, cfg); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}

		fmt.Printf("✅ Configuration written to %s.\n", configPath)
		if cfg.Key != "" {
			fmt.Println("\n🔑 Your key is:")
			fmt.Printf("\n    %s\n\n", cfg.Key)
			fmt.Println("Configure the remote endpoint with this key.")
		}
		return nil
	},
}

// transportForURL picks websocket for ws:// and wss:// URLs, http otherwise.
func transportForURL(u string) string {
	if strings.HasPrefix(u, "ws://") || strings.HasPrefix(u, "wss://") {
		return "websocket"
	}
	return "http"
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("url", "", "Remote endpoint URL")
	initCmd.Flags().String("transport", "", "Transport (http or websocket); inferred from the URL when empty")
	initCmd.Flags().String("cipher", crypto.AESGCM, "Cipher (aes-gcm, chacha20-poly1305 or none)")
	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration without asking")
}
