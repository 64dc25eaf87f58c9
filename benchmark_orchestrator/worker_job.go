package benchmarkorchestrator

import (
	"fmt"
	"time"

	"github.com/Octogonapus/diskbench/artifact"
)

type JobState string

const (
	Pending   JobState = "Pending"
	Deployed  JobState = "Deployed"
	Completed JobState = "Completed"
	TimedOut  JobState = "TimedOut"
	Failed    JobState = "Failed"
)

func (s JobState) IsTerminal() bool {
	return s == Completed || s == TimedOut || s == Failed
}

// The job deployed for one worker. Owned by the orchestrator for the whole run.
type WorkerJob struct {
	Worker   artifact.Worker
	Name     string
	State    JobState
	WaitTime time.Duration
}

func newWorkerJob(w artifact.Worker) *WorkerJob {
	return &WorkerJob{Worker: w, State: Pending}
}

// Terminal states are never left.
func (j *WorkerJob) transition(to JobState) {
	if j.State.IsTerminal() {
		return
	}
	j.State = to
}

// The control plane rejected a job submission. Fatal for that worker only.
type DeploymentError struct {
	Worker artifact.Worker
	Err    error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("failed to deploy job for %s: %v", e.Worker, e.Err)
}

func (e *DeploymentError) Unwrap() error {
	return e.Err
}
