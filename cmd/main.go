package main

import (
	"context"
	"os"

	"github.com/falmar/swarmman/cmd/cmdutil"
	"github.com/falmar/swarmman/cmd/manager"
	"github.com/falmar/swarmman/cmd/mockd"
	"github.com/falmar/swarmman/cmd/node"
	"github.com/falmar/swarmman/cmd/service"
	"github.com/falmar/swarmman/cmd/swarm"
	"github.com/falmar/swarmman/cmd/worker"
	"github.com/spf13/cobra"
)

var rootCmd = cobra.Command{
	Use:           "swarmman",
	Short:         "Manage Docker Swarm clusters and their EC2 nodes",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rootCmd.PersistentFlags().String(cmdutil.ConfigFlag, "", "config file (default ./config.yaml or /etc/swarmman/config.yaml)")

	rootCmd.AddCommand(
		swarm.Cmd(),
		node.Cmd(),
		service.Cmd(),
		manager.Cmd(),
		worker.Cmd(),
		mockd.Cmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cmdutil.PrintError(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}
