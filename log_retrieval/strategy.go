package logretrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/Octogonapus/diskbench/artifact"
	controlplane "github.com/Octogonapus/diskbench/control_plane"
)

var (
	ErrEmptyOutput = errors.New("no log output")
	ErrNoPods      = errors.New("no matching pods")
)

// One technique for obtaining a worker's logs.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, cp controlplane.ControlPlane, w artifact.Worker) (string, error)
}

func workerSelector(labelKey string, w artifact.Worker) string {
	return fmt.Sprintf("%s=%s", labelKey, w.String())
}

// Fetches logs filtered by the label carrying the worker identity.
type LabelQuery struct {
	LabelKey  string
	TailLines int
}

func (s *LabelQuery) Name() string {
	return "label-query"
}

func (s *LabelQuery) Fetch(ctx context.Context, cp controlplane.ControlPlane, w artifact.Worker) (string, error) {
	return cp.GetLogs(ctx, controlplane.LogRef{Selector: workerSelector(s.LabelKey, w)}, s.TailLines)
}

// Resolves the pod through the worker label, then fetches logs from that pod by name.
type LabelToPod struct {
	LabelKey  string
	TailLines int
}

func (s *LabelToPod) Name() string {
	return "label-to-pod"
}

func (s *LabelToPod) Fetch(ctx context.Context, cp controlplane.ControlPlane, w artifact.Worker) (string, error) {
	return firstPodLogs(ctx, cp, workerSelector(s.LabelKey, w), s.TailLines)
}

// Resolves the pod through the job-name label Kubernetes puts on every pod of a job.
type JobNameSelector struct {
	JobPrefix     string
	SingleJobName string
}

func (s *JobNameSelector) Name() string {
	return "job-name-selector"
}

func (s *JobNameSelector) JobName(w artifact.Worker) string {
	if w.IsSingleNode() {
		return s.SingleJobName
	}
	return fmt.Sprintf("%s-%d", s.JobPrefix, w.Index)
}

func (s *JobNameSelector) Fetch(ctx context.Context, cp controlplane.ControlPlane, w artifact.Worker) (string, error) {
	return firstPodLogs(ctx, cp, "job-name="+s.JobName(w), 0)
}

func firstPodLogs(ctx context.Context, cp controlplane.ControlPlane, selector string, tailLines int) (string, error) {
	pods, err := cp.GetPods(ctx, selector)
	if err != nil {
		return "", err
	}
	if len(pods) == 0 {
		return "", fmt.Errorf("%w for %s", ErrNoPods, selector)
	}
	return cp.GetLogs(ctx, controlplane.LogRef{Pod: pods[0]}, tailLines)
}

type StrategiesInput struct {
	LabelKey      string
	TailLines     int
	JobPrefix     string
	SingleJobName string
}

// The full fallback sequence used for multi-node runs.
func DefaultStrategies(input *StrategiesInput) []Strategy {
	return []Strategy{
		&LabelQuery{LabelKey: input.LabelKey, TailLines: input.TailLines},
		&LabelToPod{LabelKey: input.LabelKey, TailLines: input.TailLines},
		&JobNameSelector{JobPrefix: input.JobPrefix, SingleJobName: input.SingleJobName},
	}
}

// Single-node runs only query by label.
func SingleNodeStrategies(input *StrategiesInput) []Strategy {
	return []Strategy{
		&LabelQuery{LabelKey: input.LabelKey, TailLines: input.TailLines},
	}
}
