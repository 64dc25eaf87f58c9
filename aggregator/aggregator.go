package aggregator

import (
	"encoding/csv"
	"fmt"
	"io/fs"
	"log/slog"
	"path"

	"github.com/Octogonapus/diskbench/report"
	"github.com/spf13/afero"
)

const UnknownBlockSize = "unknown_block_size"

type aggregator struct {
	input *AggregatorInput
}

type AggregatorInput struct {
	Fs          afero.Fs
	OutputDir   string
	InstanceTag string // VM or instance size the run was made on, e.g. Standard_D4s_v3
}

// The files written for one set of records.
type Output struct {
	Dir            string
	SummaryPath    string
	BenchmarkPaths []string // one per benchmark id, in first-seen order
}

// Writes extracted records into <OutputDir>/<InstanceTag>/<blockSizeTag>/.
type Aggregator interface {
	// Writes the summary file and one file per benchmark id. Returns nil output when records is empty.
	Write(records []*report.Record) (*Output, error)
}

func NewAggregator(input *AggregatorInput) Aggregator {
	return &aggregator{input: input}
}

// Names the block size directory after the first record's block size.
func BlockSizeTag(records []*report.Record) string {
	if len(records) == 0 {
		return UnknownBlockSize
	}
	bs, ok := records[0].Get(report.BlockSizeField)
	if !ok {
		return UnknownBlockSize
	}
	return bs + "K"
}

type group struct {
	benchmarkID string
	records     []*report.Record
}

// Groups records by benchmark id, keeping first-seen group order and insertion order within each group.
func groupByBenchmark(records []*report.Record) []*group {
	groups := []*group{}
	byID := map[string]*group{}
	for _, r := range records {
		g, ok := byID[r.BenchmarkID()]
		if !ok {
			g = &group{benchmarkID: r.BenchmarkID()}
			byID[r.BenchmarkID()] = g
			groups = append(groups, g)
		}
		g.records = append(g.records, r)
	}
	return groups
}

func (a *aggregator) Write(records []*report.Record) (*Output, error) {
	if len(records) == 0 {
		slog.Info("no results to write")
		return nil, nil
	}

	blockSizeTag := BlockSizeTag(records)
	dir := path.Join(a.input.OutputDir, a.input.InstanceTag, blockSizeTag)
	err := a.input.Fs.MkdirAll(dir, fs.ModePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	out := &Output{Dir: dir, SummaryPath: path.Join(dir, fmt.Sprintf("benchmark_summary_%s.csv", blockSizeTag))}
	err = a.writeCSV(out.SummaryPath, records)
	if err != nil {
		return nil, err
	}
	slog.Info("summary CSV written", slog.String("path", out.SummaryPath), slog.Int("rows", len(records)))

	for _, g := range groupByBenchmark(records) {
		p := path.Join(dir, fmt.Sprintf("benchmark_%s_%s.csv", g.benchmarkID, blockSizeTag))
		err = a.writeCSV(p, g.records)
		if err != nil {
			return nil, err
		}
		out.BenchmarkPaths = append(out.BenchmarkPaths, p)
		slog.Info("benchmark CSV written", slog.String("benchmark", g.benchmarkID), slog.String("path", p), slog.Int("rows", len(g.records)))
	}
	return out, nil
}

// The header is fixed by the first record. Fields missing from a later record are written empty and fields
// only present in a later record are dropped.
func (a *aggregator) writeCSV(p string, records []*report.Record) (err error) {
	f, err := a.input.Fs.Create(p)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", p, err)
	}
	defer func() {
		closeErr := f.Close()
		if err == nil && closeErr != nil {
			err = fmt.Errorf("failed to close %s: %w", p, closeErr)
		}
	}()

	header := records[0].Keys()
	w := csv.NewWriter(f)
	err = w.Write(header)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	for _, r := range records {
		row := make([]string, len(header))
		for i, name := range header {
			row[i], _ = r.Get(name)
		}
		if dropped := len(r.Keys()) - countPresent(r, header); dropped > 0 {
			slog.Debug("dropping fields not in header", slog.String("node", r.NodeID()), slog.Int("dropped", dropped))
		}
		err = w.Write(row)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", p, err)
		}
	}
	w.Flush()
	err = w.Error()
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

func countPresent(r *report.Record, header []string) int {
	n := 0
	for _, name := range header {
		if _, ok := r.Get(name); ok {
			n++
		}
	}
	return n
}
