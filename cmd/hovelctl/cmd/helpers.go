package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hovel-dev/hovel/internal/hovelclient"
)

func client(cmd *cobra.Command) *hovelclient.Client {
	server, _ := cmd.Flags().GetString("server")
	return hovelclient.New(server)
}
