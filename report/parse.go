package report

import (
	"fmt"
	"log/slog"

	"github.com/Octogonapus/diskbench/artifact"
)

// An artifact could not be read at extraction time. The worker's record is skipped.
type ArtifactReadError struct {
	Worker artifact.Worker
	Path   string
	Err    error
}

func (e *ArtifactReadError) Error() string {
	return fmt.Sprintf("failed to read artifact for %s at %s: %v", e.Worker, e.Path, e.Err)
}

func (e *ArtifactReadError) Unwrap() error {
	return e.Err
}

type ParseResult struct {
	Found       int
	Records     []*Record
	ReadErrors  []*ArtifactReadError
	Diagnostics []artifact.Worker // workers whose artifact is a retrieval failure placeholder, still present in Records
}

// Extracts one record per readable artifact in the store. Unreadable artifacts are logged and skipped.
func ParseArtifacts(store *artifact.Store, benchmarkID string) (*ParseResult, error) {
	workers, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts in %s: %w", store.Dir(), err)
	}

	result := &ParseResult{Found: len(workers), Records: []*Record{}}
	for _, w := range workers {
		content, err := store.Read(w)
		if err != nil {
			readErr := &ArtifactReadError{Worker: w, Path: store.Path(w), Err: err}
			slog.Error("error processing artifact", slog.String("worker", w.String()), slog.String("error", readErr.Error()))
			result.ReadErrors = append(result.ReadErrors, readErr)
			continue
		}
		// A placeholder still yields an identity-only row so every worker appears in the output.
		if artifact.IsDiagnostic(content) {
			slog.Warn("logs were not captured for worker, its record has no metrics", slog.String("worker", w.String()), slog.String("path", store.Path(w)))
			result.Diagnostics = append(result.Diagnostics, w)
		}

		result.Records = append(result.Records, ExtractRecord(content, benchmarkID, w.ID()))
		slog.Info("processed artifact", slog.String("worker", w.String()))
	}
	return result, nil
}
