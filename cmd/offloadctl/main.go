package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jzx17/pipeoffload/internal/logger"
	"github.com/jzx17/pipeoffload/pkg/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand
type globalFlags struct {
	configFile string
	envFile    string
}

func (g *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(config.WithConfigFile(g.configFile), config.WithEnvFile(g.envFile))
	if err != nil {
		return nil, err
	}
	logger.SetGlobal(logger.New(cfg.Log))
	return cfg, nil
}

func rootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:   "offloadctl",
		Short: "Run stream pipelines against the host accelerator",
		Long: `offloadctl runs a set of sample stream pipelines with offload enabled and reports
which ones ran as kernels, which reverted to baseline evaluation and why.

Settings come from an optional YAML file, an optional .env file and PIPEOFFLOAD_*
environment variables, in increasing order of precedence.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "path to an optional .env file")

	root.AddCommand(runCmd(&flags))
	root.AddCommand(configCmd(&flags))
	return root
}
