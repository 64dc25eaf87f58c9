package logretrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Octogonapus/diskbench/artifact"
	controlplane "github.com/Octogonapus/diskbench/control_plane"
	"github.com/Octogonapus/diskbench/control_plane/controlplanetest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome int

const (
	ok outcome = iota
	empty
	fail
)

func (o outcome) logs(text string) (string, error) {
	switch o {
	case ok:
		return text, nil
	case empty:
		return "", nil
	default:
		return "", errors.New("error: " + text + " unavailable")
	}
}

func (o outcome) pods(name string) ([]string, error) {
	switch o {
	case ok:
		return []string{name, name + "-other"}, nil
	case empty:
		return nil, nil
	default:
		return nil, errors.New("error: listing pods failed")
	}
}

// Failure injection for every control plane call made by the default strategies.
type scenario struct {
	labelLogs, labelPods, labelPodLogs, jobPods, jobPodLogs outcome
}

func (s scenario) controlPlane() *controlplanetest.Fake {
	return &controlplanetest.Fake{
		LogsFunc: func(ref controlplane.LogRef, tailLines int) (string, error) {
			switch {
			case ref.Selector != "":
				return s.labelLogs.logs("label logs")
			case strings.HasPrefix(ref.Pod, "pod/label"):
				return s.labelPodLogs.logs("label pod logs")
			default:
				return s.jobPodLogs.logs("job pod logs")
			}
		},
		PodsFunc: func(selector string) ([]string, error) {
			if strings.HasPrefix(selector, "job-name=") {
				return s.jobPods.pods("pod/job")
			}
			return s.labelPods.pods("pod/label")
		},
	}
}

func strategies() []Strategy {
	return DefaultStrategies(&StrategiesInput{
		LabelKey:      "node-test",
		TailLines:     500,
		JobPrefix:     "diskspd-node",
		SingleJobName: "diskspd-single-node",
	})
}

func allScenarios() []scenario {
	outcomes := []outcome{ok, empty, fail}
	out := []scenario{}
	for _, a := range outcomes {
		for _, b := range outcomes {
			for _, c := range outcomes {
				for _, d := range outcomes {
					for _, e := range outcomes {
						out = append(out, scenario{a, b, c, d, e})
					}
				}
			}
		}
	}
	return out
}

func TestExactlyOneArtifactPerWorker(t *testing.T) {
	for i, s := range allScenarios() {
		t.Run(fmt.Sprintf("%+v", s), func(t *testing.T) {
			fs := afero.NewMemMapFs()
			store := artifact.NewStore(fs, "/results")
			p := NewProtocol(&ProtocolInput{ControlPlane: s.controlPlane(), Store: store, Strategies: strategies()})

			workers := []artifact.Worker{artifact.Node(1), artifact.Node(2), artifact.Node(3)}
			for _, w := range workers {
				result, err := p.Retrieve(context.Background(), w)
				require.NoError(t, err)
				assert.Equal(t, store.Path(w), result.ArtifactPath)
				assert.Contains(t, []State{Succeeded, Exhausted}, result.State)
			}

			listed, err := store.List()
			require.NoError(t, err)
			assert.Equal(t, workers, listed, "scenario %d", i)

			for _, w := range workers {
				content, err := store.Read(w)
				require.NoError(t, err)
				assert.NotEmpty(t, content)
			}
		})
	}
}

func TestLabelQuerySucceedsFirst(t *testing.T) {
	s := scenario{labelLogs: ok}
	cp := s.controlPlane()
	store := artifact.NewStore(afero.NewMemMapFs(), "/results")
	p := NewProtocol(&ProtocolInput{ControlPlane: cp, Store: store, Strategies: strategies()})

	result, err := p.Retrieve(context.Background(), artifact.Node(2))
	require.NoError(t, err)
	assert.Equal(t, Succeeded, result.State)
	assert.Equal(t, "label-query", result.Strategy)
	assert.Nil(t, result.Err)
	assert.Equal(t, []string{"logs node-test=node-2 500"}, cp.Calls())

	content, err := store.Read(artifact.Node(2))
	require.NoError(t, err)
	assert.Equal(t, "label logs", content)
}

func TestEmptyLabelQueryFallsBackToPod(t *testing.T) {
	s := scenario{labelLogs: empty, labelPods: ok, labelPodLogs: ok}
	cp := s.controlPlane()
	store := artifact.NewStore(afero.NewMemMapFs(), "/results")
	p := NewProtocol(&ProtocolInput{ControlPlane: cp, Store: store, Strategies: strategies()})

	result, err := p.Retrieve(context.Background(), artifact.Node(1))
	require.NoError(t, err)
	assert.Equal(t, "label-to-pod", result.Strategy)
	assert.Equal(t, []string{
		"logs node-test=node-1 500",
		"pods node-test=node-1",
		"logs pod/label 500",
	}, cp.Calls())
}

func TestErrorsFallBackToJobName(t *testing.T) {
	s := scenario{labelLogs: fail, labelPods: fail, jobPods: ok, jobPodLogs: ok}
	cp := s.controlPlane()
	store := artifact.NewStore(afero.NewMemMapFs(), "/results")
	p := NewProtocol(&ProtocolInput{ControlPlane: cp, Store: store, Strategies: strategies()})

	result, err := p.Retrieve(context.Background(), artifact.Node(4))
	require.NoError(t, err)
	assert.Equal(t, "job-name-selector", result.Strategy)
	assert.Contains(t, cp.Calls(), "pods job-name=diskspd-node-4")
	assert.Contains(t, cp.Calls(), "logs pod/job 0")

	content, err := store.Read(artifact.Node(4))
	require.NoError(t, err)
	assert.Equal(t, "job pod logs", content)
}

func TestExhaustedWritesDiagnostic(t *testing.T) {
	s := scenario{labelLogs: fail, labelPods: fail, jobPods: fail}
	store := artifact.NewStore(afero.NewMemMapFs(), "/results")
	p := NewProtocol(&ProtocolInput{ControlPlane: s.controlPlane(), Store: store, Strategies: strategies()})

	result, err := p.Retrieve(context.Background(), artifact.Node(5))
	require.NoError(t, err)
	assert.Equal(t, Exhausted, result.State)
	require.NotNil(t, result.Err)
	assert.Len(t, result.Err.Attempts, 3)

	var retrievalErr *RetrievalError
	assert.True(t, errors.As(error(result.Err), &retrievalErr))

	content, err := store.Read(artifact.Node(5))
	require.NoError(t, err)
	assert.True(t, artifact.IsDiagnostic(content))
	assert.Contains(t, content, "node 5")
	assert.Contains(t, content, "Error: error: listing pods failed")
	assert.Contains(t, content, "Second error: error: listing pods failed")
	assert.NotContains(t, content, "label logs unavailable")
}

func TestSingleNodeStrategiesOnlyQueryByLabel(t *testing.T) {
	s := scenario{labelLogs: fail, labelPods: ok, labelPodLogs: ok, jobPods: ok, jobPodLogs: ok}
	cp := s.controlPlane()
	store := artifact.NewStore(afero.NewMemMapFs(), "/results")
	p := NewProtocol(&ProtocolInput{
		ControlPlane: cp,
		Store:        store,
		Strategies:   SingleNodeStrategies(&StrategiesInput{LabelKey: "node-test", TailLines: 500}),
	})

	result, err := p.Retrieve(context.Background(), artifact.SingleNode)
	require.NoError(t, err)
	assert.Equal(t, Exhausted, result.State)
	assert.Equal(t, []string{"logs node-test=single-node 500"}, cp.Calls())

	content, err := store.Read(artifact.SingleNode)
	require.NoError(t, err)
	assert.True(t, artifact.IsDiagnostic(content))
}

func TestJobNameForSingleNode(t *testing.T) {
	s := &JobNameSelector{JobPrefix: "diskspd-node", SingleJobName: "diskspd-single-node"}
	assert.Equal(t, "diskspd-single-node", s.JobName(artifact.SingleNode))
	assert.Equal(t, "diskspd-node-9", s.JobName(artifact.Node(9)))
}
