package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/ehsanking/elahe-messenger/internal/config"
)

func TestTransportForURL(t *testing.T) {
	tests := map[string]string{
		"wss://relay.example.com/ws": "websocket",
		"ws://127.0.0.1:8080":        "websocket",
		"https://relay.example.com":  "http",
		"http://127.0.0.1":           "http",
	}
	for url, want := range tests {
		if got := transportForURL(url); got != want {
			t.Errorf("transportForURL(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestApplyRunFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().AddFlagSet(runCmd.Flags())
	if err := cmd.Flags().Parse([]string{"--url", "wss://x/ws", "--transport", "websocket", "--log-level", "debug"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cfg := config.Defaults()
	cfg.URL = "https://old"
	cfg.StatusListen = "127.0.0.1:1"
	applyRunFlags(cmd, cfg)

	if cfg.URL != "wss://x/ws" || cfg.Transport != "websocket" || cfg.Log.Level != "debug" {
		t.Errorf("flags not applied: %#v", cfg)
	}
	if cfg.StatusListen != "127.0.0.1:1" {
		t.Errorf("unchanged flag overrode status_listen: %q", cfg.StatusListen)
	}
}

func TestPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.pid")
	if _, ok := runningPID(path); ok {
		t.Error("runningPID reported a process for a missing file")
	}

	if err := writePID(path, os.Getpid()); err != nil {
		t.Fatalf("writePID failed: %v", err)
	}
	pid, ok := runningPID(path)
	if !ok || pid != os.Getpid() {
		t.Errorf("runningPID = %d, %v; want %d, true", pid, ok, os.Getpid())
	}

	if err := os.WriteFile(path, []byte("garbage\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := readPID(path); err == nil {
		t.Error("readPID accepted a malformed file")
	}
}
