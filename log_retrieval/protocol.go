package logretrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Octogonapus/diskbench/artifact"
	controlplane "github.com/Octogonapus/diskbench/control_plane"
)

type State string

const (
	Trying    State = "trying"
	Succeeded State = "succeeded"
	Exhausted State = "exhausted"
)

type Attempt struct {
	Strategy string
	Err      error
}

// Every strategy failed for the worker. Recovered by writing a diagnostic artifact.
type RetrievalError struct {
	Worker   artifact.Worker
	Attempts []Attempt
}

func (e *RetrievalError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Strategy, a.Err)
	}
	return fmt.Sprintf("all log retrieval strategies failed for %s: %s", e.Worker, strings.Join(parts, "; "))
}

type Result struct {
	Worker       artifact.Worker
	State        State
	Strategy     string // the strategy that produced the output, empty when exhausted
	ArtifactPath string
	Err          *RetrievalError // set iff State is Exhausted
}

type Protocol interface {
	// Writes exactly one artifact for the worker. Only a failure to write the artifact is returned as an error.
	Retrieve(ctx context.Context, w artifact.Worker) (*Result, error)
}

type protocol struct {
	input *ProtocolInput
}

type ProtocolInput struct {
	ControlPlane controlplane.ControlPlane
	Store        *artifact.Store
	Strategies   []Strategy // tried in order until one returns non-empty output
}

func NewProtocol(input *ProtocolInput) Protocol {
	return &protocol{input: input}
}

func (p *protocol) Retrieve(ctx context.Context, w artifact.Worker) (*Result, error) {
	result := &Result{Worker: w, State: Trying}
	attempts := []Attempt{}
	output := ""

	for _, s := range p.input.Strategies {
		out, err := s.Fetch(ctx, p.input.ControlPlane, w)
		if err == nil && strings.TrimSpace(out) == "" {
			err = ErrEmptyOutput
		}
		if err != nil {
			slog.Warn("log retrieval strategy failed",
				slog.String("worker", w.String()),
				slog.String("strategy", s.Name()),
				slog.String("error", err.Error()),
			)
			attempts = append(attempts, Attempt{Strategy: s.Name(), Err: err})
			continue
		}
		result.State = Succeeded
		result.Strategy = s.Name()
		output = out
		break
	}

	if result.State != Succeeded {
		result.State = Exhausted
		result.Err = &RetrievalError{Worker: w, Attempts: attempts}
		output = artifact.FormatDiagnostic(w, lastErrors(attempts, 2))
		slog.Error("all attempts to get logs failed", slog.String("worker", w.String()), slog.String("error", result.Err.Error()))
	}

	path, err := p.input.Store.Write(w, output)
	if err != nil {
		return result, err
	}
	result.ArtifactPath = path
	if result.State == Succeeded {
		slog.Info("saved logs", slog.String("worker", w.String()), slog.String("strategy", result.Strategy), slog.String("path", path))
	}
	return result, nil
}

func lastErrors(attempts []Attempt, n int) []string {
	if len(attempts) > n {
		attempts = attempts[len(attempts)-n:]
	}
	out := make([]string, len(attempts))
	for i, a := range attempts {
		out[i] = a.Err.Error()
	}
	return out
}
