package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Octogonapus/diskbench/artifact"
	benchmarkorchestrator "github.com/Octogonapus/diskbench/benchmark_orchestrator"
	"github.com/Octogonapus/diskbench/config"
	controlplane "github.com/Octogonapus/diskbench/control_plane"
	"github.com/Octogonapus/diskbench/control_plane/controlplanetest"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nodeOutput = "Command Line: diskspd -b4K -d60 -o32 -t4 -r /data/testfile.dat\n\t\tblock size: 4096\n"

func testConfig(t *testing.T) *config.Config {
	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.Decode(v.AllSettings())
	require.NoError(t, err)
	cfg.Output.Dir = "/results"
	cfg.Job.ManifestDir = "/tmp"
	cfg.Job.Timeout = time.Minute
	return cfg
}

func newFake(fs afero.Fs) *controlplanetest.Fake {
	return &controlplanetest.Fake{
		Fs: fs,
		LogsFunc: func(ref controlplane.LogRef, tailLines int) (string, error) {
			return nodeOutput, nil
		},
	}
}

func readReport(t *testing.T, fs afero.Fs) *benchmarkorchestrator.Report {
	buf, err := afero.ReadFile(fs, "/results/report.json")
	require.NoError(t, err)
	rep := &benchmarkorchestrator.Report{}
	require.NoError(t, json.Unmarshal(buf, rep))
	return rep
}

func TestRunSucceedsWhenNodesTimeOut(t *testing.T) {
	fs := afero.NewMemMapFs()
	cp := newFake(fs)
	cp.WaitFunc = func(resource string, condition string, timeout time.Duration) error {
		if resource == "job/diskspd-node-2" {
			return controlplane.ErrWaitTimeout
		}
		return nil
	}

	err := executeRun(context.Background(), testConfig(t), benchmarkorchestrator.MultiNodeMode, cp, fs, false)
	require.NoError(t, err)

	rep := readReport(t, fs)
	require.Len(t, rep.Workers, 3)
	assert.Equal(t, "Completed", rep.Workers[0].State)
	assert.Equal(t, "TimedOut", rep.Workers[1].State)
	assert.Equal(t, "/results/node-2.txt", rep.Workers[1].ArtifactPath)
}

func TestRunFailsOnSubmissionFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	cp := newFake(fs)
	cp.ApplyFunc = func(manifest string) error {
		if strings.Contains(manifest, "name: diskspd-node-2\n") {
			return errors.New("jobs.batch is forbidden")
		}
		return nil
	}

	err := executeRun(context.Background(), testConfig(t), benchmarkorchestrator.MultiNodeMode, cp, fs, false)
	require.Error(t, err)
	var deployErr *benchmarkorchestrator.DeploymentError
	require.True(t, errors.As(err, &deployErr))
	assert.Equal(t, artifact.Node(2), deployErr.Worker)

	rep := readReport(t, fs)
	require.Len(t, rep.Workers, 3)
	assert.Equal(t, "Failed", rep.Workers[1].State)
	workers, err := artifact.NewStore(fs, "/results").List()
	require.NoError(t, err)
	assert.Equal(t, []artifact.Worker{artifact.Node(1), artifact.Node(3)}, workers)
}

func TestSingleRunFailsOnSubmissionFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	cp := newFake(fs)
	cp.ApplyFunc = func(manifest string) error {
		return errors.New("connection refused")
	}

	err := executeRun(context.Background(), testConfig(t), benchmarkorchestrator.SingleNodeMode, cp, fs, false)
	require.Error(t, err)
	assert.Equal(t, "Failed", readReport(t, fs).Workers[0].State)
}

// Fails reads of one path, everything else goes to the wrapped filesystem.
type brokenReadFs struct {
	afero.Fs
	path string
}

func (f *brokenReadFs) Open(name string) (afero.File, error) {
	if name == f.path {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return f.Fs.Open(name)
}

func TestParsePrintsSummary(t *testing.T) {
	mem := afero.NewMemMapFs()
	store := artifact.NewStore(mem, "/results")
	_, err := store.Write(artifact.Node(1), nodeOutput)
	require.NoError(t, err)
	_, err = store.Write(artifact.Node(2), artifact.FormatDiagnostic(artifact.Node(2), []string{"no pods"}))
	require.NoError(t, err)
	_, err = store.Write(artifact.Node(3), nodeOutput)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	fs := &brokenReadFs{Fs: mem, path: "/results/node-3.txt"}
	err = parseResults(context.Background(), out, fs, testConfig(t), false)
	require.NoError(t, err)
	assert.Equal(t, "Successfully processed 2 of 3 artifact files\n", out.String())

	exists, err := afero.Exists(mem, "/results/Standard_D4s_v3/4K/benchmark_summary_4K.csv")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestParsePublishNeedsBucket(t *testing.T) {
	out := &bytes.Buffer{}
	err := parseResults(context.Background(), out, afero.NewMemMapFs(), testConfig(t), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a bucket")
	assert.Equal(t, "Successfully processed 0 of 0 artifact files\n", out.String())
}

func TestParseCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node-1.txt"), []byte(nodeOutput), 0o644))

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetArgs([]string{"parse", "--output-dir", dir, "--log-level", "error"})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Equal(t, "Successfully processed 1 of 1 artifact files\n", out.String())

	_, err := os.Stat(filepath.Join(dir, "Standard_D4s_v3", "4K", "benchmark_benchmark-01_4K.csv"))
	assert.NoError(t, err)
}
