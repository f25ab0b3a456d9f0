package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running messenger background process.",
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := readPID(pidFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			fmt.Println("Elahe Messenger is not running.")
			return nil
		case err != nil:
			os.Remove(pidFile)
			return err
		}
		defer os.Remove(pidFile)

		if err := signalProcess(pid, syscall.SIGTERM); err != nil {
			if errors.Is(err, os.ErrProcessDone) {
				fmt.Printf("Process %d already exited.\n", pid)
				return nil
			}
			return fmt.Errorf("stopping process %d: %w", pid, err)
		}
		fmt.Printf("Sent SIGTERM to Elahe Messenger (PID %d).\n", pid)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
