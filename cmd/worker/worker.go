package worker

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/falmar/swarmman/cmd/cmdutil"
	"github.com/falmar/swarmman/internal/app"
	"github.com/falmar/swarmman/internal/ec2metadata"
	"github.com/falmar/swarmman/internal/worker"
	"github.com/spf13/cobra"
)

func Cmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Watch this instance for spot interruptions and rebalance recommendations",
		Args:  cobra.NoArgs,
		RunE: cmdutil.WithApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ec2 := a.Config.EC2
			if ec2.NodeAddress == "" {
				return fmt.Errorf("ec2.node_address is required")
			}

			q, err := a.Queue(ctx)
			if err != nil {
				return err
			}

			w := worker.NewWorker(&worker.Config{
				Metadata: ec2metadata.NewService(&ec2metadata.Config{
					TokenTTL: ec2.TokenTTL,
					Host:     ec2.Host,
				}),
				Queue:          q,
				Notifier:       a.Notifier(),
				Address:        ec2.NodeAddress,
				ListenInterval: ec2.Interval,
				Logger:         a.Logger,
			})

			a.Logger.Info("watching instance metadata", "address", ec2.NodeAddress, "interval", ec2.Interval.String())

			if err := w.Listen(ctx); err != nil {
				return err
			}

			a.Logger.Info("shutting down")

			return nil
		}),
	}
}
