// Package controlplanetest provides a scriptable in-memory control plane for tests.
package controlplanetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	controlplane "github.com/Octogonapus/diskbench/control_plane"
	"github.com/spf13/afero"
)

type Fake struct {
	// Used to read applied manifests. Manifest contents are not captured when nil.
	Fs afero.Fs

	ApplyFunc func(manifest string) error
	WaitFunc  func(resource string, condition string, timeout time.Duration) error
	LogsFunc  func(ref controlplane.LogRef, tailLines int) (string, error)
	PodsFunc  func(selector string) ([]string, error)

	mu        sync.Mutex
	manifests []string
	calls     []string
}

var _ controlplane.ControlPlane = (*Fake)(nil)

func (f *Fake) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *Fake) Apply(ctx context.Context, manifestPath string) error {
	f.record("apply %s", manifestPath)
	manifest := ""
	if f.Fs != nil {
		buf, err := afero.ReadFile(f.Fs, manifestPath)
		if err != nil {
			return err
		}
		manifest = string(buf)
		f.mu.Lock()
		f.manifests = append(f.manifests, manifest)
		f.mu.Unlock()
	}
	if f.ApplyFunc != nil {
		return f.ApplyFunc(manifest)
	}
	return nil
}

func (f *Fake) WaitForCondition(ctx context.Context, resource string, condition string, timeout time.Duration) error {
	f.record("wait %s %s", resource, condition)
	if f.WaitFunc != nil {
		return f.WaitFunc(resource, condition, timeout)
	}
	return nil
}

func (f *Fake) GetLogs(ctx context.Context, ref controlplane.LogRef, tailLines int) (string, error) {
	f.record("logs %s %d", ref, tailLines)
	if f.LogsFunc != nil {
		return f.LogsFunc(ref, tailLines)
	}
	return "", nil
}

func (f *Fake) GetPods(ctx context.Context, selector string) ([]string, error) {
	f.record("pods %s", selector)
	if f.PodsFunc != nil {
		return f.PodsFunc(selector)
	}
	return nil, nil
}

// Contents of every applied manifest, in submission order.
func (f *Fake) Manifests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.manifests...)
}

func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
