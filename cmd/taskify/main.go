package main

import (
	"fmt"
	"os"

	"taskify/backend/internal/config"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "taskify",
		Short:         "Task manager API server and command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (defaults to $CONFIG_FILE)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newAccountCmd(opts))
	cmd.AddCommand(newTasksCmd())
	return cmd
}

// loadConfig prefers --config over $CONFIG_FILE. Environment variables
// override the file either way.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configFile != "" {
		return config.Load(o.configFile)
	}
	return config.LoadConfig()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
