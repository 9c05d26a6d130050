package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// RemoveCmd returns the `hovelctl rm` command.
func RemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"delete"},
		Short:   "Delete a branch and release its resources",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client(cmd).Delete(context.Background(), args[0]); err != nil {
				return err
			}
			color.Green("deleted %s", args[0])
			return nil
		},
	}
}

// StartCmd returns the `hovelctl start` command.
func StartCmd() *cobra.Command {
	var services []string
	cmd := &cobra.Command{
		Use:   "start <name>",
		Short: "Start a branch's container group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client(cmd).Start(context.Background(), args[0], services); err != nil {
				return err
			}
			color.Green("started %s", args[0])
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&services, "service", nil, "services to start (default: all)")
	return cmd
}

// StopCmd returns the `hovelctl stop` command.
func StopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a branch's container group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client(cmd).Stop(context.Background(), args[0]); err != nil {
				return err
			}
			color.Yellow("stopped %s", args[0])
			return nil
		},
	}
}

// RestartCmd returns the `hovelctl restart` command.
func RestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <name>",
		Short: "Restart a branch's container group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client(cmd).Restart(context.Background(), args[0]); err != nil {
				return err
			}
			color.Green("restarted %s", args[0])
			return nil
		},
	}
}

// LogsCmd returns the `hovelctl logs` command.
func LogsCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs <name>",
		Short: "Show a branch's container logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client(cmd).Logs(context.Background(), args[0], lines)
			if err != nil {
				return err
			}
			fmt.Print(resp.Logs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 100, "number of trailing lines")
	return cmd
}

// StatusCmd returns the `hovelctl status` command.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <name>",
		Short: "Show a branch's live container status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client(cmd).Status(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("container_status: %s\n", resp.ContainerStatus)
			for _, s := range resp.PerService {
				fmt.Printf("  %-20s %s\n", s.Name, s.State)
			}
			return nil
		},
	}
}

// SessionCmd returns the `hovelctl session` command.
func SessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session <name>",
		Short: "Start an interactive terminal session on a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client(cmd).Session(context.Background(), args[0])
			if err != nil {
				return err
			}
			color.Green("session ready: %s", resp.TTYDURL)
			fmt.Printf("  command: %s\n", resp.Command)
			return nil
		},
	}
}
