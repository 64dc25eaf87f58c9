package artifact

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// Identifies one participant of a benchmark run. Index zero is the single-node sentinel.
type Worker struct {
	Index int
}

var SingleNode = Worker{}

func Node(index int) Worker {
	return Worker{Index: index}
}

func (w Worker) IsSingleNode() bool {
	return w.Index == 0
}

func (w Worker) String() string {
	if w.IsSingleNode() {
		return "single-node"
	}
	return fmt.Sprintf("node-%d", w.Index)
}

// The value written to a record's node_id field.
func (w Worker) ID() string {
	if w.IsSingleNode() {
		return "single"
	}
	return strconv.Itoa(w.Index)
}

func (w Worker) FileName() string {
	return w.String() + ".txt"
}

func parseFileName(name string) (Worker, bool) {
	if name == SingleNode.FileName() {
		return SingleNode, true
	}
	if !strings.HasPrefix(name, "node-") || !strings.HasSuffix(name, ".txt") {
		return Worker{}, false
	}
	index, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "node-"), ".txt"))
	if err != nil || index < 1 {
		return Worker{}, false
	}
	return Node(index), true
}

const diagnosticPrefix = "Failed to capture logs for "

// The placeholder written when no retrieval strategy produced output. errs holds the error text of the last
// attempted strategies, oldest first.
func FormatDiagnostic(w Worker, errs []string) string {
	var sb strings.Builder
	sb.WriteString(diagnosticPrefix)
	sb.WriteString(strings.ReplaceAll(w.String(), "-", " "))
	sb.WriteString(".")
	for i, e := range errs {
		if i == 0 {
			sb.WriteString("\nError: ")
		} else {
			sb.WriteString("\nSecond error: ")
		}
		sb.WriteString(strings.TrimSpace(e))
		if i == 1 {
			break
		}
	}
	return sb.String()
}

func IsDiagnostic(content string) bool {
	return strings.HasPrefix(content, diagnosticPrefix)
}

// Raw per-worker artifacts stored flat under one directory.
type Store struct {
	fs  afero.Fs
	dir string
}

func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) EnsureDir() error {
	err := s.fs.MkdirAll(s.dir, fs.ModePerm)
	if err != nil {
		return fmt.Errorf("failed to create artifact directory %s: %w", s.dir, err)
	}
	return nil
}

func (s *Store) Path(w Worker) string {
	return path.Join(s.dir, w.FileName())
}

func (s *Store) Write(w Worker, content string) (string, error) {
	p := s.Path(w)
	err := afero.WriteFile(s.fs, p, []byte(content), 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to write artifact for %s: %w", w, err)
	}
	return p, nil
}

func (s *Store) Read(w Worker) (string, error) {
	buf, err := afero.ReadFile(s.fs, s.Path(w))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// Lists the workers that have an artifact, numbered nodes in index order followed by the single node.
func (s *Store) List() ([]Worker, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Worker{}, nil
		}
		return nil, err
	}
	workers := []Worker{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w, ok := parseFileName(entry.Name())
		if ok {
			workers = append(workers, w)
		}
	}
	slices.SortFunc(workers, func(a, b Worker) int {
		if a.IsSingleNode() != b.IsSingleNode() {
			if a.IsSingleNode() {
				return 1
			}
			return -1
		}
		return a.Index - b.Index
	})
	return workers, nil
}
