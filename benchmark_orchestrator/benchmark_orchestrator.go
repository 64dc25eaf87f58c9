package benchmarkorchestrator

import (
	"context"
	"time"

	"github.com/Octogonapus/diskbench/artifact"
	"github.com/Octogonapus/diskbench/report"
)

type Mode string

const (
	SingleNodeMode Mode = "single"
	MultiNodeMode  Mode = "multi"
)

// Default bound on how long to wait for one job to complete.
const DefaultTimeout = 7200 * time.Second

type BenchmarkConfig struct {
	Mode            Mode
	Nodes           int // ignored in single-node mode
	StorageClass    string
	DurationSeconds int
	Timeout         time.Duration // DefaultTimeout when zero
	ResultDir       string
}

type Report struct {
	RunID   string
	Input   map[string]any
	Workers []*report.WorkerReport
}

// Runs benchmark jobs on a cluster and collects one raw artifact per worker.
type BenchmarkOrchestrator interface {
	// Set up the environment for a run.
	SetUp(*BenchmarkConfig) error

	// Render and submit the job for one worker. A rejected submission returns a *DeploymentError.
	Deploy(ctx context.Context, w artifact.Worker) (*WorkerJob, error)

	// Wait for the job to complete or the timeout to elapse. Timing out is reported through the returned
	// state, never as an error.
	AwaitCompletion(ctx context.Context, job *WorkerJob, timeout time.Duration) JobState

	// Deploy every job, then wait for and retrieve each worker (concurrently in multi-node mode).
	RunBenchmarks(ctx context.Context) (*Report, error)
}
