package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/avstrong/checkin/internal/app"
	"github.com/avstrong/checkin/internal/config"
	"github.com/avstrong/checkin/internal/logger"
)

// env carries what PersistentPreRunE loaded to the subcommands.
type env struct {
	configPath string
	envFile    string

	conf *config.Config
	l    *logger.Logger
}

func NewRootCmd(version string) *cobra.Command {
	e := &env{} //nolint:exhaustruct

	rootCmd := &cobra.Command{
		Use:           "checkin",
		Short:         "Hostel self check-in backend",
		Long:          "Serves the guest pre-check-in flow and runs the PMS sync and deposit release jobs.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.Load(e.configPath, e.envFile)
			if err != nil {
				return err
			}

			e.conf = conf
			e.l = logger.New(logger.Conf{Level: conf.Log.Level, Format: conf.Log.Format, Output: cmd.ErrOrStderr()})

			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&e.configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&e.envFile, "env-file", ".env", "Dotenv file loaded before the config")

	rootCmd.AddCommand(serveCmd(e))
	rootCmd.AddCommand(syncCmd(e))
	rootCmd.AddCommand(resolveCmd(e))
	rootCmd.AddCommand(releaseCmd(e))
	rootCmd.AddCommand(releaseDueCmd(e))
	rootCmd.AddCommand(pmsCheckCmd(e))
	rootCmd.AddCommand(configCmd())

	return rootCmd
}

// Execute runs the root command with ctx, which the caller cancels on signals.
func Execute(ctx context.Context, version string) error {
	if err := NewRootCmd(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)

		return err
	}

	return nil
}

// withServices wires the app for a one-shot command and releases it afterwards.
func (e *env) withServices(ctx context.Context, fn func(s *app.Services) error) error {
	services, err := app.Build(ctx, e.conf, e.l)
	if err != nil {
		return err
	}
	defer services.Close(e.l)

	return fn(services)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	return nil
}
