// Command hovelctl is a command-line client for hoveld's Control API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hovel-dev/hovel/cmd/hovelctl/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hovelctl",
		Short: "Manage hovel branches from the command line",
		Long:  `hovelctl talks to a running hoveld server to create, inspect, and tear down isolated branch workspaces.`,
	}

	rootCmd.PersistentFlags().String("server", defaultServerURL(), "hoveld server URL")

	rootCmd.AddCommand(cmd.CreateCmd())
	rootCmd.AddCommand(cmd.ListCmd())
	rootCmd.AddCommand(cmd.RemoveCmd())
	rootCmd.AddCommand(cmd.StartCmd())
	rootCmd.AddCommand(cmd.StopCmd())
	rootCmd.AddCommand(cmd.RestartCmd())
	rootCmd.AddCommand(cmd.LogsCmd())
	rootCmd.AddCommand(cmd.StatusCmd())
	rootCmd.AddCommand(cmd.SessionCmd())
	rootCmd.AddCommand(cmd.WatchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultServerURL() string {
	if v := os.Getenv("HOVELCTL_SERVER"); v != "" {
		return v
	}
	return "http://localhost:8000"
}
