package swarm

import (
	"github.com/falmar/swarmman/cmd/cmdutil"
	"github.com/falmar/swarmman/internal/app"
	"github.com/falmar/swarmman/internal/cluster"
	"github.com/falmar/swarmman/internal/view"
	"github.com/spf13/cobra"
)

func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swarm",
		Short: "Manage swarms",
	}

	cmd.AddCommand(
		createCmd(),
		listCmd(),
		showCmd(),
		deleteCmd(),
		importCmd(),
		discoverCmd(),
	)

	return cmd
}

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create NAME",
		Short: "Register a new swarm",
		Args:  cobra.ExactArgs(1),
		RunE: cmdutil.WithApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			s, err := a.Service.CreateSwarm(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return cmdutil.Print(cmd, s)
		}),
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List swarms",
		Args:  cobra.NoArgs,
		RunE: cmdutil.WithApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			swarms, err := a.Service.ListSwarms(cmd.Context())
			if err != nil {
				return err
			}

			return cmdutil.Print(cmd, swarms)
		}),
	}
}

type details struct {
	cluster.Swarm
	ManagerJoinCommand string         `json:"manager_join_command,omitempty"`
	WorkerJoinCommand  string         `json:"worker_join_command,omitempty"`
	View               *view.Snapshot `json:"view,omitempty"`
	ViewError          string         `json:"view_error,omitempty"`
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID|NAME",
		Short: "Show a swarm with its join commands, node counts and services",
		Args:  cobra.ExactArgs(1),
		RunE: cmdutil.WithApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			s, err := cmdutil.ResolveSwarm(cmd.Context(), a.Service, args[0])
			if err != nil {
				return err
			}

			out := details{Swarm: s}
			if s.ManagerToken != "" {
				out.ManagerJoinCommand = s.ManagerJoinCommand()
			}
			if s.WorkerToken != "" {
				out.WorkerJoinCommand = s.WorkerJoinCommand()
			}

			// counts are still reported when the services cannot be read
			snap, err := a.Service.SwarmView(cmd.Context(), s.ID)
			out.View = &snap
			if err != nil {
				out.ViewError = err.Error()
			}

			return cmdutil.Print(cmd, out)
		}),
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID|NAME",
		Short: "Delete a swarm; its nodes are kept without a swarm",
		Args:  cobra.ExactArgs(1),
		RunE: cmdutil.WithApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			s, err := cmdutil.ResolveSwarm(cmd.Context(), a.Service, args[0])
			if err != nil {
				return err
			}

			if err := a.Service.DeleteSwarm(cmd.Context(), s.ID); err != nil {
				return err
			}

			return cmdutil.Print(cmd, s)
		}),
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import ID|NAME MANAGER_ADDRESS",
		Short: "Store every member of a running swarm under a registered swarm",
		Args:  cobra.ExactArgs(2),
		RunE: cmdutil.WithApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			s, err := cmdutil.ResolveSwarm(cmd.Context(), a.Service, args[0])
			if err != nil {
				return err
			}

			nodes, err := a.Service.AddExistingNodes(cmd.Context(), s.ID, args[1])
			if err != nil {
				return err
			}

			return cmdutil.Print(cmd, nodes)
		}),
	}
}

func discoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover MANAGER_ADDRESS",
		Short: "List the members of a running swarm without storing them",
		Args:  cobra.ExactArgs(1),
		RunE: cmdutil.WithApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			nodes, err := a.Service.DiscoverNodes(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return cmdutil.Print(cmd, nodes)
		}),
	}
}
