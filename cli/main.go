package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/Octogonapus/diskbench/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "diskbench",
	Short: "Run DiskSPD benchmarks across Kubernetes nodes and aggregate the results",
	Long: `
diskbench deploys DiskSPD jobs to a Kubernetes cluster, captures each node's output into
<output-dir>/node-<i>.txt (or single-node.txt), and parses those files into CSV summaries.

Usage:

	diskbench multi --nodes 3 --storage-class managed-premium --duration 120
	diskbench single --storage-class managed-premium --duration 120
	diskbench parse --output-dir results

Every setting can also come from a config file (--config), a .env file, or DISKBENCH_* variables.
`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file.")
	rootCmd.PersistentFlags().String("log-level", "debug", "One of debug, info, warn, error.")
	rootCmd.PersistentFlags().String("output-dir", "results", "Directory the node artifacts are written to and read from.")

	rootCmd.AddCommand(singleCmd)
	rootCmd.AddCommand(multiCmd)
	rootCmd.AddCommand(parseCmd)
}

// Loads the config with the flags of cmd layered on top, then installs the logger.
// flagKeys maps config keys to flag names.
func loadConfig(cmd *cobra.Command, flagKeys map[string]string) (*config.Config, error) {
	v := viper.New()
	flagKeys["log_level"] = "log-level"
	flagKeys["output.dir"] = "output-dir"
	for key, name := range flagKeys {
		err := v.BindPFlag(key, cmd.Flags().Lookup(name))
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(v, configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		slog.Error("diskbench failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}
