package controlplane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Octogonapus/diskbench/target"
	"github.com/Octogonapus/diskbench/util"
)

type kubectl struct {
	input *KubectlInput
}

type KubectlInput struct {
	Target    target.Target
	Binary    string // "kubectl" by default
	Context   string // kubeconfig context, current context if empty
	Namespace string // current namespace if empty
}

// Extra time given to the kubectl process beyond its own --timeout before it is killed.
var waitGrace = 30 * time.Second

func NewKubectl(input *KubectlInput) ControlPlane {
	if input.Binary == "" {
		input.Binary = "kubectl"
	}
	return &kubectl{input: input}
}

func (k *kubectl) command(args ...string) []string {
	cmd := []string{k.input.Binary}
	if k.input.Context != "" {
		cmd = append(cmd, "--context", k.input.Context)
	}
	if k.input.Namespace != "" {
		cmd = append(cmd, "--namespace", k.input.Namespace)
	}
	return append(cmd, args...)
}

func (k *kubectl) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := k.command(args...)
	slog.Debug("running kubectl", slog.String("command", strings.Join(cmd, " ")))
	return k.input.Target.RunCommand(ctx, cmd...)
}

func (k *kubectl) Apply(ctx context.Context, manifestPath string) error {
	stagedPath, cleanup, err := k.input.Target.Stage(manifestPath)
	if err != nil {
		return err
	}
	defer func() {
		err := cleanup()
		if err != nil {
			slog.Warn("failed to remove staged manifest", slog.String("path", stagedPath), slog.String("error", err.Error()))
		}
	}()

	_, err = k.run(ctx, "apply", "-f", stagedPath)
	return err
}

func (k *kubectl) WaitForCondition(ctx context.Context, resource string, condition string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout+waitGrace)
	defer cancel()

	_, err := k.run(ctx,
		"wait",
		"--for=condition="+condition,
		resource,
		fmt.Sprintf("--timeout=%ds", timeoutSeconds(timeout)),
	)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrWaitTimeout, err.Error())
	}
	var cmdErr *target.CommandError
	if errors.As(err, &cmdErr) && strings.Contains(cmdErr.Stderr, "timed out") {
		return fmt.Errorf("%w: %s", ErrWaitTimeout, strings.TrimSpace(cmdErr.Stderr))
	}
	return err
}

// kubectl only takes whole seconds. Rounds up so a sub-second timeout still waits.
func timeoutSeconds(timeout time.Duration) int {
	return int(math.Ceil(timeout.Seconds()))
}

func (k *kubectl) GetLogs(ctx context.Context, ref LogRef, tailLines int) (string, error) {
	args := []string{"logs"}
	if ref.Pod != "" {
		args = append(args, ref.Pod)
	} else {
		args = append(args, "-l", ref.Selector)
	}
	if tailLines > 0 {
		args = append(args, fmt.Sprintf("--tail=%d", tailLines))
	}
	out, err := k.run(ctx, args...)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (k *kubectl) GetPods(ctx context.Context, selector string) ([]string, error) {
	out, err := k.run(ctx, "get", "pods", "--selector="+selector, "-o", "name")
	if err != nil {
		return nil, err
	}
	return util.NonEmptyLines(out), nil
}
