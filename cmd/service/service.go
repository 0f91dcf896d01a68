package service

import (
	"fmt"
	"strconv"

	"github.com/falmar/swarmman/cmd/cmdutil"
	"github.com/falmar/swarmman/internal/app"
	"github.com/falmar/swarmman/internal/cluster"
	"github.com/spf13/cobra"
)

func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Inspect and scale swarm services",
	}

	cmd.AddCommand(showCmd(), scaleCmd())

	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show SWARM SERVICE",
		Short: "Show one service with its replica health",
		Args:  cobra.ExactArgs(2),
		RunE: cmdutil.WithApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			s, err := cmdutil.ResolveSwarm(cmd.Context(), a.Service, args[0])
			if err != nil {
				return err
			}

			svc, err := a.Service.ServiceDetail(cmd.Context(), s.ID, args[1])
			if err != nil {
				return err
			}

			return cmdutil.Print(cmd, svc)
		}),
	}
}

func scaleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scale SWARM SERVICE REPLICAS",
		Short: "Set the replica count of a replicated service",
		Args:  cobra.ExactArgs(3),
		RunE: cmdutil.WithApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			replicas, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: invalid replicas %q", cluster.ErrValidation, args[2])
			}

			s, err := cmdutil.ResolveSwarm(cmd.Context(), a.Service, args[0])
			if err != nil {
				return err
			}

			svc, err := a.Service.ScaleService(cmd.Context(), s.ID, args[1], replicas)
			if err != nil {
				return err
			}

			return cmdutil.Print(cmd, svc)
		}),
	}
}
