package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ListCmd returns the `hovelctl ls` command.
func ListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List every known branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client(cmd).List(context.Background())
			if err != nil {
				return err
			}

			if resp.Count == 0 {
				fmt.Println("no branches")
				return nil
			}

			for _, b := range resp.Branches {
				statusColor := color.New(color.FgYellow)
				switch b.Status {
				case "running":
					statusColor = color.New(color.FgGreen)
				case "failed":
					statusColor = color.New(color.FgRed)
				}
				fmt.Printf("%-20s port=%-5d %s\n", b.Name, b.Port, statusColor.Sprint(b.Status))
			}
			return nil
		},
	}
}
