package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hovel-dev/hovel/internal/hovelclient"
)

// CreateCmd returns the `hovelctl create` command.
func CreateCmd() *cobra.Command {
	var services []string
	var apiKey string
	var autoStart bool

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Provision a new branch workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client(cmd).Create(context.Background(), hovelclient.CreateRequest{
				BranchName:   args[0],
				Services:     services,
				GeminiAPIKey: apiKey,
				AutoStart:    autoStart,
			})
			if err != nil {
				return err
			}

			color.Green("created branch %s", resp.BranchName)
			fmt.Printf("  port:     %d\n", resp.Port)
			fmt.Printf("  status:   %s\n", resp.Status)
			fmt.Printf("  services: %v\n", resp.Services)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&services, "service", nil, "services to include (repeatable)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "gemini API key (required)")
	cmd.Flags().BoolVar(&autoStart, "auto-start", false, "build and start the branch immediately")
	cmd.MarkFlagRequired("api-key")

	return cmd
}
