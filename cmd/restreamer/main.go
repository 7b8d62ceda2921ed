package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	_ "time/tzdata"

	"restreamer/internal/platform/config"
	"restreamer/internal/restreamer"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	envFile    string
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and maps the outcome to an exit status.
// A forced restart has already been logged as critical, so it is not
// printed again.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		var restart *restreamer.RestartError
		if !errors.As(err, &restart) {
			fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "restreamer",
		Short:         "Restream a live source on a weekly schedule",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing default .env is fine; an explicitly requested one is not.
			if err := config.Load(opts.envFile); err != nil && cmd.Flags().Changed("env-file") {
				return fmt.Errorf("load env file: %w", err)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", os.Getenv(config.EnvConfigFile), "YAML config file (environment variables override it)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded into the environment")

	root.AddCommand(newRunCmd(opts), newScheduleCmd(opts))
	return root
}
