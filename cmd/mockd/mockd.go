package mockd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/falmar/swarmman/cmd/cmdutil"
	"github.com/falmar/swarmman/internal/app"
	"github.com/falmar/swarmman/internal/engine"
	"github.com/falmar/swarmman/internal/mockec2"
	"github.com/falmar/swarmman/internal/mockengine"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func getHostname() (string, error) {
	b, err := os.ReadFile("/etc/hostname")
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(b)), nil
}

func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mockd",
		Short: "Serve a seeded in-memory swarm and EC2 instance metadata for local runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdutil.LoadConfig(cmd)
			if err != nil {
				return err
			}

			logger, err := app.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level)
			if err != nil {
				return err
			}

			ec2Port, _ := cmd.Flags().GetString("ec2-port")
			instanceID, _ := cmd.Flags().GetString("instance-id")
			if instanceID == "" {
				if instanceID, err = getHostname(); err != nil {
					return fmt.Errorf("failed to read hostname: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mc := engine.NewMemoryCluster()
			Seed(mc, cfg.Mockd.Port)

			servers := []*http.Server{
				mockengine.NewServer(&mockengine.Config{
					Dialer: mc,
					Port:   cfg.Mockd.Port,
					Logger: logger.With("server", "engine"),
				}),
				mockec2.NewServer(&mockec2.Config{
					InstanceID: instanceID,
					Port:       ec2Port,
					Logger:     logger.With("server", "ec2"),
				}),
			}

			g, ctx := errgroup.WithContext(ctx)

			for _, server := range servers {
				server := server
				server.ReadHeaderTimeout = 5 * time.Second

				g.Go(func() error {
					logger.Info("listening", "address", server.Addr)
					if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
			}

			g.Go(func() error {
				<-ctx.Done()
				logger.Info("shutting down")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				return errors.Join(servers[0].Shutdown(shutdownCtx), servers[1].Shutdown(shutdownCtx))
			})

			return g.Wait()
		},
	}

	cmd.Flags().String("ec2-port", "8080", "port for the instance metadata server")
	cmd.Flags().String("instance-id", "", "instance id reported by the metadata server; defaults to the hostname")

	return cmd
}
