package benchmarkorchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/Octogonapus/diskbench/artifact"
	controlplane "github.com/Octogonapus/diskbench/control_plane"
	logretrieval "github.com/Octogonapus/diskbench/log_retrieval"
	"github.com/Octogonapus/diskbench/manifest"
	"github.com/Octogonapus/diskbench/report"
	"github.com/Octogonapus/diskbench/util"
	"github.com/alitto/pond"
	"github.com/schollz/progressbar/v3"
	"github.com/segmentio/ksuid"
	"github.com/spf13/afero"
)

type kubernetesBenchmarkOrchestrator struct {
	input     *KubernetesBenchmarkOrchestratorInput
	cfg       *BenchmarkConfig
	template  string
	store     *artifact.Store
	retrieval logretrieval.Protocol
}

type KubernetesBenchmarkOrchestratorInput struct {
	ControlPlane controlplane.ControlPlane
	Fs           afero.Fs
	TemplatePath string // builtin template for the mode when empty
	ManifestDir  string // transient manifests are written here, os.TempDir() when empty
	Strategies   logretrieval.StrategiesInput
	Concurrency  int  // runs all workers in parallel by default
	ShowProgress bool // render progress bars on stdout
}

type workerResult struct {
	job    *WorkerJob
	report *report.WorkerReport
}

func NewKubernetesBenchmarkOrchestrator(input *KubernetesBenchmarkOrchestratorInput) BenchmarkOrchestrator {
	if input.ManifestDir == "" {
		input.ManifestDir = os.TempDir()
	}
	return &kubernetesBenchmarkOrchestrator{input: input}
}

func (o *kubernetesBenchmarkOrchestrator) SetUp(cfg *BenchmarkConfig) error {
	o.cfg = cfg
	if o.cfg.Timeout == 0 {
		o.cfg.Timeout = DefaultTimeout
	}
	if o.cfg.Mode == MultiNodeMode && o.cfg.Nodes < 1 {
		return fmt.Errorf("multi-node mode needs at least one node, got %d", o.cfg.Nodes)
	}

	kind := manifest.MultiNode
	strategies := logretrieval.DefaultStrategies(&o.input.Strategies)
	switch o.cfg.Mode {
	case SingleNodeMode:
		kind = manifest.SingleNode
		strategies = logretrieval.SingleNodeStrategies(&o.input.Strategies)
	case MultiNodeMode:
	default:
		return fmt.Errorf("unknown mode: %s", o.cfg.Mode)
	}

	var err error
	o.template, err = manifest.LoadTemplate(o.input.Fs, kind, o.input.TemplatePath)
	if err != nil {
		return err
	}

	o.store = artifact.NewStore(o.input.Fs, o.cfg.ResultDir)
	err = o.store.EnsureDir()
	if err != nil {
		return err
	}

	o.retrieval = logretrieval.NewProtocol(&logretrieval.ProtocolInput{
		ControlPlane: o.input.ControlPlane,
		Store:        o.store,
		Strategies:   strategies,
	})
	return nil
}

func (o *kubernetesBenchmarkOrchestrator) Deploy(ctx context.Context, w artifact.Worker) (*WorkerJob, error) {
	job := newWorkerJob(w)
	fail := func(err error) (*WorkerJob, error) {
		job.transition(Failed)
		return job, &DeploymentError{Worker: w, Err: err}
	}

	rendered := manifest.Render(o.template, manifest.Values{
		StorageClass:    o.cfg.StorageClass,
		DurationSeconds: o.cfg.DurationSeconds,
		NodeNum:         w.Index,
	})
	name, err := manifest.JobName(rendered)
	if err != nil {
		return fail(err)
	}
	job.Name = name

	p, cleanup, err := manifest.WriteTemp(o.input.Fs, o.input.ManifestDir, w.String(), rendered)
	if err != nil {
		return fail(err)
	}
	defer cleanup()

	err = o.input.ControlPlane.Apply(ctx, p)
	if err != nil {
		return fail(err)
	}
	job.transition(Deployed)
	slog.Debug("deployed job", slog.String("worker", w.String()), slog.String("job", job.Name))
	return job, nil
}

func (o *kubernetesBenchmarkOrchestrator) AwaitCompletion(ctx context.Context, job *WorkerJob, timeout time.Duration) JobState {
	if job.State != Deployed {
		return job.State
	}

	start := time.Now()
	err := o.input.ControlPlane.WaitForCondition(ctx, "job/"+job.Name, "complete", timeout)
	job.WaitTime = time.Since(start)

	switch {
	case err == nil:
		job.transition(Completed)
		slog.Info("job completed", slog.String("job", job.Name), slog.Duration("waited", job.WaitTime))
	case errors.Is(err, controlplane.ErrWaitTimeout):
		job.transition(TimedOut)
		slog.Warn("job timed out", slog.String("job", job.Name), slog.Duration("timeout", timeout))
	default:
		job.transition(Failed)
		slog.Error("job failed or could not be waited on", slog.String("job", job.Name), slog.String("error", err.Error()))
	}
	return job.State
}

// Waits for the job, then retrieves its logs whatever the wait outcome was.
func (o *kubernetesBenchmarkOrchestrator) processWorker(ctx context.Context, job *WorkerJob) *workerResult {
	o.AwaitCompletion(ctx, job, o.cfg.Timeout)

	rep := &report.WorkerReport{
		Worker:      job.Worker.String(),
		JobName:     job.Name,
		State:       string(job.State),
		WaitTimeSec: job.WaitTime.Seconds(),
	}
	result, err := o.retrieval.Retrieve(ctx, job.Worker)
	if err != nil {
		slog.Error("failed to write artifact", slog.String("worker", job.Worker.String()), slog.String("error", err.Error()))
		rep.Error = err.Error()
		return &workerResult{job: job, report: rep}
	}
	rep.ArtifactPath = result.ArtifactPath
	rep.RetrievalStrategy = result.Strategy
	if result.Err != nil {
		rep.Error = result.Err.Error()
	}
	return &workerResult{job: job, report: rep}
}

func (o *kubernetesBenchmarkOrchestrator) RunBenchmarks(ctx context.Context) (*Report, error) {
	rep := &Report{
		RunID:   ksuid.New().String(),
		Input:   util.StructMap(o.cfg),
		Workers: []*report.WorkerReport{},
	}

	if o.cfg.Mode == SingleNodeMode {
		slog.Info("running benchmark on a single node")
		job, err := o.Deploy(ctx, artifact.SingleNode)
		if err != nil {
			rep.Workers = append(rep.Workers, deploymentFailure(job, err))
			return rep, err
		}
		rep.Workers = append(rep.Workers, o.processWorker(ctx, job).report)
		return rep, nil
	}

	slog.Info("running benchmark across nodes", slog.Int("nodes", o.cfg.Nodes))
	jobs, failed, deployErrs := o.deployAll(ctx)
	slog.Info("jobs deployed, waiting for completion and capturing logs", slog.Int("deployed", len(jobs)))

	results := append(failed, o.processAll(ctx, jobs)...)
	slices.SortFunc(results, func(a, b *workerResult) int {
		return a.job.Worker.Index - b.job.Worker.Index
	})
	for _, r := range results {
		rep.Workers = append(rep.Workers, r.report)
	}

	slog.Info("all jobs finished", slog.Int("workers", len(rep.Workers)))
	return rep, errors.Join(deployErrs...)
}

func (o *kubernetesBenchmarkOrchestrator) deployAll(ctx context.Context) ([]*WorkerJob, []*workerResult, []error) {
	jobs := []*WorkerJob{}
	failed := []*workerResult{}
	errs := []error{}
	p := o.progressBar(o.cfg.Nodes, "Deploying benchmark jobs:")
	for i := 1; i <= o.cfg.Nodes; i++ {
		job, err := o.Deploy(ctx, artifact.Node(i))
		p.Add(1)
		if err != nil {
			slog.Error("deployment failed", slog.Int("node", i), slog.String("error", err.Error()))
			failed = append(failed, &workerResult{job: job, report: deploymentFailure(job, err)})
			errs = append(errs, err)
			continue
		}
		jobs = append(jobs, job)
	}
	p.Finish()
	return jobs, failed, errs
}

// Each worker owns its job and artifact path so the sequences share no state.
func (o *kubernetesBenchmarkOrchestrator) processAll(ctx context.Context, jobs []*WorkerJob) []*workerResult {
	resultCh := make(chan *workerResult, len(jobs))
	p := o.progressBar(len(jobs), "Processing nodes:")

	if o.input.Concurrency == 0 {
		// unlimited
		wg := &sync.WaitGroup{}
		for _, job := range jobs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer p.Add(1)
				resultCh <- o.processWorker(ctx, job)
			}()
		}
		wg.Wait()
	} else {
		pool := pond.New(o.input.Concurrency, 0, pond.MinWorkers(o.input.Concurrency))
		for _, job := range jobs {
			pool.Submit(func() {
				defer p.Add(1)
				resultCh <- o.processWorker(ctx, job)
			})
		}
		pool.StopAndWait()
	}
	p.Finish()
	close(resultCh)

	results := []*workerResult{}
	for r := range resultCh {
		results = append(results, r)
	}
	return results
}

func (o *kubernetesBenchmarkOrchestrator) progressBar(n int, desc string) *progressbar.ProgressBar {
	if o.input.ShowProgress {
		return progressbar.Default(int64(n), desc)
	}
	return progressbar.DefaultSilent(int64(n), desc)
}

func deploymentFailure(job *WorkerJob, err error) *report.WorkerReport {
	return &report.WorkerReport{
		Worker:  job.Worker.String(),
		JobName: job.Name,
		State:   string(job.State),
		Error:   err.Error(),
	}
}
