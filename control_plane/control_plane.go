package controlplane

import (
	"context"
	"errors"
	"time"
)

// Returned by WaitForCondition when the timeout elapses before the condition is met.
var ErrWaitTimeout = errors.New("timed out waiting for the condition")

// Selects which logs to fetch. Exactly one of Selector and Pod should be set.
type LogRef struct {
	Selector string
	Pod      string
}

func (r LogRef) String() string {
	if r.Pod != "" {
		return r.Pod
	}
	return r.Selector
}

// The cluster control plane. Every call is a discrete synchronous request.
type ControlPlane interface {
	// Submit the manifest at the given path.
	Apply(ctx context.Context, manifestPath string) error

	// Block until the resource reaches the condition. Returns ErrWaitTimeout when the timeout elapses first.
	WaitForCondition(ctx context.Context, resource string, condition string, timeout time.Duration) error

	// Fetch logs. A tailLines of zero or less fetches all lines.
	GetLogs(ctx context.Context, ref LogRef, tailLines int) (string, error)

	// List the names of the pods matching the selector.
	GetPods(ctx context.Context, selector string) ([]string, error)
}
