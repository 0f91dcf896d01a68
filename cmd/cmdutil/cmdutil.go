package cmdutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/falmar/swarmman/internal/app"
	"github.com/falmar/swarmman/internal/cluster"
	"github.com/falmar/swarmman/internal/config"
	"github.com/falmar/swarmman/internal/manager"
	"github.com/fatih/color"
	"github.com/hokaccha/go-prettyjson"
	"github.com/spf13/cobra"
)

// ConfigFlag is the persistent flag holding the config file path.
const ConfigFlag = "config"

func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString(ConfigFlag)

	return config.Load(path)
}

// OpenApp loads the config and wires the application with the docker
// engine dialer. The caller must Close it.
func OpenApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := app.NewLogger(os.Stderr, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	return app.New(cfg, logger, nil)
}

// WithApp runs fn with a wired application and closes it afterwards.
func WithApp(fn func(cmd *cobra.Command, a *app.App, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := OpenApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return fn(cmd, a, args)
	}
}

// Print writes v to the command's output as indented, colored JSON.
func Print(cmd *cobra.Command, v any) error {
	f := prettyjson.NewFormatter()
	f.DisabledColor = color.NoColor

	out, err := f.Marshal(v)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))

	return err
}

func PrintError(w io.Writer, err error) {
	red := color.New(color.FgRed, color.Bold)
	red.Fprint(w, "error: ")
	fmt.Fprintln(w, err)
}

func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", cluster.ErrValidation, s)
	}

	return id, nil
}

// ResolveSwarm accepts a swarm id or name.
func ResolveSwarm(ctx context.Context, svc manager.Service, ref string) (cluster.Swarm, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return svc.GetSwarm(ctx, id)
	}

	return svc.GetSwarmByName(ctx, ref)
}
