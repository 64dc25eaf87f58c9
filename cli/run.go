package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"

	benchmarkorchestrator "github.com/Octogonapus/diskbench/benchmark_orchestrator"
	"github.com/Octogonapus/diskbench/config"
	controlplane "github.com/Octogonapus/diskbench/control_plane"
	logretrieval "github.com/Octogonapus/diskbench/log_retrieval"
	"github.com/Octogonapus/diskbench/target"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var singleCmd = &cobra.Command{
	Use:   "single",
	Short: "Run one DiskSPD job and capture its output into single-node.txt",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBenchmarks(cmd, benchmarkorchestrator.SingleNodeMode)
	},
}

var multiCmd = &cobra.Command{
	Use:   "multi",
	Short: "Run one DiskSPD job per node and capture each output into node-<i>.txt",
	Long: `
Deploys --nodes jobs, waits for each to complete or time out, and captures logs for every
node. A node whose logs cannot be captured gets a diagnostic file instead. Timeouts do not
fail the command; a rejected job submission does, after the other nodes have finished.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBenchmarks(cmd, benchmarkorchestrator.MultiNodeMode)
	},
}

var runFlagKeys = map[string]string{
	"job.storage_class":    "storage-class",
	"job.duration_seconds": "duration",
	"job.timeout":          "timeout",
	"job.template_path":    "template",
}

func init() {
	for _, cmd := range []*cobra.Command{singleCmd, multiCmd} {
		cmd.Flags().String("storage-class", "default", "Storage class of the benchmark volume.")
		cmd.Flags().Int("duration", 60, "DiskSPD test duration in seconds.")
		cmd.Flags().Duration("timeout", benchmarkorchestrator.DefaultTimeout, "How long to wait for each job to complete.")
		cmd.Flags().String("template", "", "Path to a job manifest template. The built-in template is used by default.")
	}
	multiCmd.Flags().Int("nodes", 3, "The number of nodes to benchmark.")
	multiCmd.Flags().Int("concurrency", 0, "How many nodes are waited on and captured concurrently. Unlimited by default.")
}

func newTarget(cfg *config.Config) (target.Target, error) {
	if cfg.SSH.Host == "" {
		return target.NewLocalTarget(), nil
	}
	slog.Info("running kubectl over SSH", slog.String("host", cfg.SSH.Host))
	return target.NewSSHTarget(cfg.SSH.User, cfg.SSH.Host, cfg.SSH.Port, cfg.SSH.KeyPath)
}

func runBenchmarks(cmd *cobra.Command, mode benchmarkorchestrator.Mode) error {
	flagKeys := map[string]string{}
	for k, name := range runFlagKeys {
		flagKeys[k] = name
	}
	if mode == benchmarkorchestrator.MultiNodeMode {
		flagKeys["job.nodes"] = "nodes"
		flagKeys["job.concurrency"] = "concurrency"
	}
	cfg, err := loadConfig(cmd, flagKeys)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	t, err := newTarget(cfg)
	if err != nil {
		return err
	}
	err = controlplane.CheckKubectlVersion(ctx, t, cfg.Kubectl.Binary, cfg.Kubectl.MinVersion)
	if err != nil {
		return err
	}

	cp := controlplane.NewKubectl(&controlplane.KubectlInput{
		Target:    t,
		Binary:    cfg.Kubectl.Binary,
		Context:   cfg.Kubectl.Context,
		Namespace: cfg.Kubectl.Namespace,
	})
	return executeRun(ctx, cfg, mode, cp, afero.NewOsFs(), true)
}

// Runs the benchmark and writes report.json. Only submission failures are returned as errors; per-node
// timeouts are recorded in the report.
func executeRun(ctx context.Context, cfg *config.Config, mode benchmarkorchestrator.Mode, cp controlplane.ControlPlane, fs afero.Fs, showProgress bool) error {
	orch := benchmarkorchestrator.NewKubernetesBenchmarkOrchestrator(&benchmarkorchestrator.KubernetesBenchmarkOrchestratorInput{
		ControlPlane: cp,
		Fs:           fs,
		TemplatePath: cfg.Job.TemplatePath,
		ManifestDir:  cfg.Job.ManifestDir,
		Strategies: logretrieval.StrategiesInput{
			LabelKey:      cfg.Job.LabelKey,
			TailLines:     cfg.Job.TailLines,
			JobPrefix:     cfg.Job.JobPrefix,
			SingleJobName: cfg.Job.SingleJobName,
		},
		Concurrency:  cfg.Job.Concurrency,
		ShowProgress: showProgress,
	})

	err := orch.SetUp(&benchmarkorchestrator.BenchmarkConfig{
		Mode:            mode,
		Nodes:           cfg.Job.Nodes,
		StorageClass:    cfg.Job.StorageClass,
		DurationSeconds: cfg.Job.DurationSeconds,
		Timeout:         cfg.Job.Timeout,
		ResultDir:       cfg.Output.Dir,
	})
	if err != nil {
		return err
	}

	rep, runErr := orch.RunBenchmarks(ctx)
	if rep != nil {
		err = writeReport(fs, cfg.Output.Dir, rep)
		if err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("benchmark run had submission failures: %w", runErr)
	}
	slog.Info("benchmark run finished", slog.String("results", cfg.Output.Dir))
	return nil
}

func writeReport(fs afero.Fs, dir string, rep *benchmarkorchestrator.Report) error {
	bytes, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	p := path.Join(dir, "report.json")
	err = afero.WriteFile(fs, p, bytes, os.ModePerm)
	if err != nil {
		return fmt.Errorf("failed to write run report: %w", err)
	}
	slog.Debug("wrote run report", slog.String("path", p))
	return nil
}
