package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehsanking/elahe-messenger/internal/config"
	"github.com/ehsanking/elahe-messenger/internal/forwarder"
	"github.com/ehsanking/elahe-messenger/internal/stats"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of the running messenger.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cfg.StatusListen == "" {
			return fmt.Errorf("status server is disabled (status_listen is empty)")
		}

		client := &http.Client{Timeout: 3 * time.Second}
		base := "http://" + cfg.StatusListen

		var st stats.Status
		if err := getJSON(client, base+"/status", &st); err != nil {
			fmt.Println("Status: Inactive")
			return err
		}
		var streams []forwarder.StreamInfo
		if err := getJSON(client, base+"/streams", &streams); err != nil {
			return err
		}

		fmt.Printf("Status:           %s\n", st.ConnectionHealth)
		if st.LastCheckIn != 0 {
			fmt.Printf("Last check-in:    %s\n", time.Unix(st.LastCheckIn, 0).Format(time.RFC3339))
		}
		fmt.Printf("Active streams:   %d (opened %d, failed %d)\n", st.ActiveStreams, st.OpenedStreams, st.ConnectFailures)
		fmt.Printf("Bytes in/out:     %d / %d\n", st.BytesIn, st.BytesOut)
		fmt.Printf("Messages in/out:  %d / %d\n", st.MessagesReceived, st.MessagesSent)
		if st.MalformedPayloads+st.DecryptFailures > 0 {
			fmt.Printf("Dropped payloads: %d malformed, %d undecryptable\n", st.MalformedPayloads, st.DecryptFailures)
		}
		for _, s := range streams {
			fmt.Printf("  %-12s %-30s %-10s up %s\n", s.ID, s.Target, s.State, time.Since(s.StartTime).Round(time.Second))
		}
		return nil
	},
}

func getJSON(client *http.Client, url string, v interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
