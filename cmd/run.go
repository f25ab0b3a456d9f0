package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehsanking/elahe-messenger/internal/config"
	"github.com/ehsanking/elahe-messenger/internal/crypto"
	"github.com/ehsanking/elahe-messenger/internal/forwarder"
	"github.com/ehsanking/elahe-messenger/internal/logger"
	"github.com/ehsanking/elahe-messenger/internal/resolver"
	"github.com/ehsanking/elahe-messenger/internal/transport"
	"github.com/ehsanking/elahe-messenger/internal/tunnel"
	"github.com/ehsanking/elahe-messenger/internal/web"
)

const daemonEnv = "ELAHE_MESSENGER_DAEMON"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the messenger agent.",
	RunE: func(cmd *cobra.Command, args []string) error {
		foreground, _ := cmd.Flags().GetBool("foreground")
		if !foreground && os.Getenv(daemonEnv) != "1" {
			return daemonize()
		}

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		applyRunFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		config.SetConfig(cfg)

		log, closer, err := logger.New(logger.Options{
			Level:      cfg.Log.Level,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		})
		if err != nil {
			return fmt.Errorf("opening log: %w", err)
		}
		defer closer.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runAgent(ctx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Add flags for overriding config values
	runCmd.Flags().String("url", "", "Override the remote endpoint URL")
	runCmd.Flags().String("transport", "", "Override the transport (http or websocket)")
	runCmd.Flags().String("status-listen", "", "Override the status server address (empty string disables it)")
	runCmd.Flags().String("log-level", "", "Override the log level")
	runCmd.Flags().Bool("foreground", false, "Run in foreground (do not daemonize)")
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("url") {
		cfg.URL, _ = cmd.Flags().GetString("url")
	}
	if cmd.Flags().Changed("transport") {
		cfg.Transport, _ = cmd.Flags().GetString("transport")
	}
	if cmd.Flags().Changed("status-listen") {
		cfg.StatusListen, _ = cmd.Flags().GetString("status-listen")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
}

// runAgent serves one session and returns when it ends.
func runAgent(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	key, err := cfg.KeyBytes()
	if err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}
	cipher, err := crypto.NewCipher(cfg.Cipher, key)
	if err != nil {
		return err
	}

	tr, err := transport.New(cfg.Transport, transport.Options{
		URL:                cfg.URL,
		Cipher:             cipher,
		ConnectTimeout:     cfg.ConnectTimeout.Std(),
		ProxyURL:           cfg.ProxyURL,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Headers:            cfg.Headers,
		Masquerade:         cfg.Masquerade,
	})
	if err != nil {
		return err
	}

	var res resolver.Resolver = resolver.System{}
	if cfg.DNSServer != "" {
		res = resolver.NewDNS(cfg.DNSServer, cfg.ConnectTimeout.Std())
	}

	client := tunnel.NewClient(tr, tunnel.Options{
		Interval: cfg.Interval(),
		Forwarder: forwarder.Options{
			ConnectTimeout: cfg.ConnectTimeout.Std(),
			BufferSize:     cfg.BufferSize,
			Resolver:       res,
		},
	}, log)

	if cfg.StatusListen != "" {
		// Three missed intervals, but never less than the heartbeat.
		staleAfter := 3 * cfg.Interval()
		if hb := cfg.HeartbeatInterval.Std(); staleAfter < hb {
			staleAfter = hb
		}
		srv := web.NewServer(cfg.StatusListen, client.Registry(), staleAfter, log)
		go func() {
			if err := srv.Serve(); err != nil {
				log.Error().Err(err).Msg("Status server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info().Str("url", cfg.URL).Str("transport", cfg.Transport).Str("cipher", cipher.Name()).Msg("Starting messenger")
	return client.Run(ctx)
}

func daemonize() error {
	if pid, ok := runningPID(pidFile); ok {
		fmt.Printf("Elahe Messenger is already running (PID %d). Use 'elahe-messenger stop' to stop it.\n", pid)
		return nil
	}

	executable, err := os.Executable()
	if err != nil {
		return err
	}
	daemonCmd := exec.Command(executable, append(os.Args[1:], "--foreground")...)
	daemonCmd.Env = append(os.Environ(), daemonEnv+"=1")

	if logFile, err := os.OpenFile(daemonLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
		daemonCmd.Stdout = logFile
		daemonCmd.Stderr = logFile
	}

	if err := daemonCmd.Start(); err != nil {
		return fmt.Errorf("failed to start in background: %w", err)
	}
	pid := daemonCmd.Process.Pid
	if err := writePID(pidFile, pid); err != nil {
		return fmt.Errorf("recording PID %d: %w", pid, err)
	}
	fmt.Printf("Elahe Messenger started in background (PID %d).\n", pid)
	fmt.Printf("Logs are available at %s\n", daemonLog)
	return nil
}
