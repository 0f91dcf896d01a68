package node

import (
	"github.com/falmar/swarmman/cmd/cmdutil"
	"github.com/falmar/swarmman/internal/app"
	"github.com/falmar/swarmman/internal/cluster"
	"github.com/spf13/cobra"
)

func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Manage swarm nodes",
	}

	cmd.AddCommand(
		listCmd(),
		showCmd(),
		assignCmd(),
		roleCmd("promote", "Promote a node to manager", func(cmd *cobra.Command, a *app.App, id int64) (cluster.Node, cluster.Outcome, error) {
			return a.Service.Promote(cmd.Context(), id)
		}),
		roleCmd("demote", "Demote a node to worker", func(cmd *cobra.Command, a *app.App, id int64) (cluster.Node, cluster.Outcome, error) {
			return a.Service.Demote(cmd.Context(), id)
		}),
		leaveCmd(),
		availabilityCmd(),
		syncCmd(),
		usageCmd(),
	)

	return cmd
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List nodes, optionally of one swarm",
		Args:  cobra.NoArgs,
		RunE: cmdutil.WithApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			ref, _ := cmd.Flags().GetString("swarm")
			if ref == "" {
				nodes, err := a.Service.ListAllNodes(cmd.Context())
				if err != nil {
					return err
				}

				return cmdutil.Print(cmd, nodes)
			}

			s, err := cmdutil.ResolveSwarm(cmd.Context(), a.Service, ref)
			if err != nil {
				return err
			}

			nodes, err := a.Service.ListNodes(cmd.Context(), s.ID)
			if err != nil {
				return err
			}

			return cmdutil.Print(cmd, nodes)
		}),
	}

	cmd.Flags().String("swarm", "", "swarm id or name")

	return cmd
}

// nodeCmd builds a command taking a single node id.
func nodeCmd(use, short string, fn func(cmd *cobra.Command, a *app.App, id int64) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NODE_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: cmdutil.WithApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			id, err := cmdutil.ParseID(args[0])
			if err != nil {
				return err
			}

			out, err := fn(cmd, a, id)
			if err != nil {
				return err
			}

			return cmdutil.Print(cmd, out)
		}),
	}
}

func showCmd() *cobra.Command {
	return nodeCmd("show", "Show a stored node", func(cmd *cobra.Command, a *app.App, id int64) (any, error) {
		return a.Service.GetNode(cmd.Context(), id)
	})
}

type transition struct {
	Node    cluster.Node    `json:"node"`
	Outcome cluster.Outcome `json:"outcome"`
}

func roleCmd(use, short string, fn func(cmd *cobra.Command, a *app.App, id int64) (cluster.Node, cluster.Outcome, error)) *cobra.Command {
	return nodeCmd(use, short, func(cmd *cobra.Command, a *app.App, id int64) (any, error) {
		n, outcome, err := fn(cmd, a, id)
		if err != nil {
			return nil, err
		}

		return transition{Node: n, Outcome: outcome}, nil
	})
}

func leaveCmd() *cobra.Command {
	return nodeCmd("leave", "Make a node leave its swarm", func(cmd *cobra.Command, a *app.App, id int64) (any, error) {
		return a.Service.Leave(cmd.Context(), id)
	})
}

func syncCmd() *cobra.Command {
	return nodeCmd("sync", "Refresh a stored node from its swarm's managers", func(cmd *cobra.Command, a *app.App, id int64) (any, error) {
		return a.Service.SyncNode(cmd.Context(), id)
	})
}

func usageCmd() *cobra.Command {
	return nodeCmd("usage", "Show CPU and memory utilization of a node and its containers", func(cmd *cobra.Command, a *app.App, id int64) (any, error) {
		return a.Service.NodeUtilization(cmd.Context(), id)
	})
}

func assignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign NODE_ID SWARM",
		Short: "Attach a node without a swarm to a swarm",
		Args:  cobra.ExactArgs(2),
		RunE: cmdutil.WithApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			id, err := cmdutil.ParseID(args[0])
			if err != nil {
				return err
			}

			s, err := cmdutil.ResolveSwarm(cmd.Context(), a.Service, args[1])
			if err != nil {
				return err
			}

			n, err := a.Service.AssignNode(cmd.Context(), id, s.ID)
			if err != nil {
				return err
			}

			return cmdutil.Print(cmd, n)
		}),
	}
}

func availabilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "availability NODE_ID active|pause|drain",
		Short:     "Set a node's scheduling availability",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"active", "pause", "drain"},
		RunE: cmdutil.WithApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			id, err := cmdutil.ParseID(args[0])
			if err != nil {
				return err
			}

			n, err := a.Service.UpdateAvailability(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}

			return cmdutil.Print(cmd, n)
		}),
	}
}
