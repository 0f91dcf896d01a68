package manager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/falmar/swarmman/cmd/cmdutil"
	"github.com/falmar/swarmman/internal/app"
	"github.com/falmar/swarmman/internal/cluster"
	"github.com/falmar/swarmman/internal/manager"
	"github.com/falmar/swarmman/internal/queue"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manager",
		Short: "Apply node lifecycle events sent by workers",
	}

	cmd.AddCommand(listenCmd(), enqueueCmd())

	return cmd
}

func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Consume drain and leave events until interrupted",
		Args:  cobra.NoArgs,
		RunE: cmdutil.WithApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			q, err := a.Queue(ctx)
			if err != nil {
				return err
			}

			listener := manager.NewListener(&manager.ListenerConfig{
				Service:  a.Service,
				Queue:    q,
				Notifier: a.Notifier(),
				Logger:   a.Logger,
			})

			server := &http.Server{
				Addr:              a.Config.Metrics.Address,
				Handler:           router(a),
				ReadHeaderTimeout: 5 * time.Second,
			}

			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				a.Logger.Info("listening for events")
				return listener.Listen(ctx)
			})

			g.Go(func() error {
				a.Logger.Info("serving metrics", "address", server.Addr)
				if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server failed: %w", err)
				}
				return nil
			})

			g.Go(func() error {
				<-ctx.Done()
				a.Logger.Info("shutting down")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				return server.Shutdown(shutdownCtx)
			})

			return g.Wait()
		}),
	}
}

func router(a *app.App) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))

	return r
}

func enqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "enqueue drain|leave ADDRESS",
		Short:     "Queue a lifecycle event for a node on behalf of an operator",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"drain", "leave"},
		RunE: cmdutil.WithApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			if a.Config.Queue.SQSURL == "" {
				return fmt.Errorf("%w: queue.sqs_url is required to enqueue events", cluster.ErrValidation)
			}

			reason, _ := cmd.Flags().GetString("reason")

			var (
				event *queue.Event
				err   error
			)
			switch args[0] {
			case "drain":
				event, err = queue.NewEvent(queue.NodeDrainEvent, queue.NodeDrainPayload{
					Address: args[1],
					Reason:  reason,
					Type:    queue.Operator,
					Time:    time.Now().UTC(),
				})
			case "leave":
				event, err = queue.NewEvent(queue.NodeLeaveEvent, queue.NodeLeavePayload{
					Address: args[1],
					Reason:  reason,
				})
			default:
				return fmt.Errorf("%w: unknown event %q", cluster.ErrValidation, args[0])
			}
			if err != nil {
				return err
			}

			q, err := a.Queue(cmd.Context())
			if err != nil {
				return err
			}

			if err := q.Push(cmd.Context(), event, 0); err != nil {
				return err
			}

			return cmdutil.Print(cmd, map[string]string{
				"id":    event.ID,
				"event": string(event.Name),
				"node":  event.Node,
			})
		}),
	}

	cmd.Flags().String("reason", "requested by operator", "reason recorded with the event")

	return cmd
}
