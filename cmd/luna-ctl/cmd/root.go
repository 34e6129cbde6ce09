package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"luna/internal/ipc"
)

var (
	socketPath string
	timeout    time.Duration
	asJSON     bool
)

var rootCmd = &cobra.Command{
	Use:           "luna-ctl",
	Short:         "Control the luna voice assistant",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func defaultSocket() string {
	if s := os.Getenv("LUNA_SOCKET"); s != "" {
		return s
	}
	return ipc.DefaultSocketPath()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", defaultSocket(), "Daemon control socket")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 60*time.Second, "How long to wait for the daemon")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print the raw reply as JSON")

	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(sensitivityCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(assertCmd)
	rootCmd.AddCommand(retractCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(notesCmd)
}

func send(cmd *cobra.Command, req ipc.Request) (ipc.Reply, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	return ipc.SendCommand(ctx, socketPath, req)
}
