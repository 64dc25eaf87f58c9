package report

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Scans a whole report for one semantic group. Returns all of the group's fields or none.
type Extractor func(content string) []Field

var (
	commandLineRe     = regexp.MustCompile(`Command Line: (.*)`)
	processorCountRe  = regexp.MustCompile(`processor count: (\d+)`)
	cachingOptionsRe  = regexp.MustCompile(`caching options: (.*)`)
	durationRe        = regexp.MustCompile(`duration: (\d+)s`)
	blockSizeRe       = regexp.MustCompile(`block size: (\d+)`)
	outstandingIORe   = regexp.MustCompile(`number of outstanding I/O operations: (\d+)`)
	threadsRe         = regexp.MustCompile(`total threads: (\d+)`)
	fileSizeRe        = regexp.MustCompile(`size: (\d+)B`)
	ioTypeRe          = regexp.MustCompile(`using (random|sequential) I/O`)
	cpuUsageRe        = regexp.MustCompile(`(?s)CPU\s+\|\s+Usage.*?avg:\s+([\d.]+)%\s+\|\s+([\d.]+)%\s+\|\s+([\d.]+)%\s+\|\s+([\d.]+)%\s+\|\s+([\d.]+)%`)
	percentileTableRe = regexp.MustCompile(`(?s)%-ile.*?max \|[^\n]*`)
)

var cpuUsageFields = []string{"cpu_total_usage", "cpu_user", "cpu_kernel", "cpu_io_wait", "cpu_idle"}

var Percentiles = []string{"min", "50th", "95th", "99th", "max"}

// All extractors in output column order.
var Extractors = []Extractor{
	extractCommandLine,
	capture(processorCountRe, "processor_count"),
	capture(cachingOptionsRe, "caching_options"),
	capture(durationRe, "duration"),
	extractBlockSize,
	capture(outstandingIORe, "outstanding_io"),
	capture(threadsRe, "threads"),
	extractFileSize,
	capture(ioTypeRe, "io_type"),
	extractCPUUsage,
	ioStats("Total"),
	ioStats("Read"),
	ioStats("Write"),
	extractLatencyPercentiles,
}

// Runs every extractor over content and unions the results.
func Extract(content string) []Field {
	out := []Field{}
	for _, e := range Extractors {
		out = append(out, e(content)...)
	}
	return out
}

func ExtractRecord(content string, benchmarkID string, nodeID string) *Record {
	return NewRecord(benchmarkID, nodeID, Extract(content))
}

// Captured text is kept as written apart from a trailing carriage return left by CRLF logs.
func capture(re *regexp.Regexp, name string) Extractor {
	return func(content string) []Field {
		m := re.FindStringSubmatch(content)
		if m == nil {
			return nil
		}
		return []Field{{Name: name, Value: strings.TrimRight(m[1], "\r")}}
	}
}

func extractCommandLine(content string) []Field {
	return capture(commandLineRe, "command_line")(content)
}

// Block size is declared in bytes and reported in KiB.
func extractBlockSize(content string) []Field {
	m := blockSizeRe.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	b, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil
	}
	return []Field{{Name: BlockSizeField, Value: strconv.FormatInt(b/1024, 10)}}
}

// File size is declared in bytes and reported in GiB with two decimals.
func extractFileSize(content string) []Field {
	m := fileSizeRe.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	b, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return []Field{{Name: "file_size_gb", Value: fmt.Sprintf("%.2f", b/(1024*1024*1024))}}
}

func extractCPUUsage(content string) []Field {
	m := cpuUsageRe.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	out := make([]Field, len(cpuUsageFields))
	for i, name := range cpuUsageFields {
		out[i] = Field{Name: name, Value: m[i+1]}
	}
	return out
}

func ioStats(category string) Extractor {
	re := regexp.MustCompile(`(?s)` + regexp.QuoteMeta(category) + ` IO.*?total:\s+(\d+)\s+\|\s+(\d+)\s+\|\s+([\d.]+)\s+\|\s+([\d.]+)\s+\|\s+([\d.]+)\s+\|`)
	prefix := strings.ToLower(category)
	names := []string{prefix + "_bytes", prefix + "_ios", prefix + "_mbps", prefix + "_iops", prefix + "_avg_latency"}
	return func(content string) []Field {
		m := re.FindStringSubmatch(content)
		if m == nil {
			return nil
		}
		out := make([]Field, len(names))
		for i, name := range names {
			out[i] = Field{Name: name, Value: m[i+1]}
		}
		return out
	}
}

var percentileRowRes = func() map[string]*regexp.Regexp {
	out := map[string]*regexp.Regexp{}
	for _, p := range Percentiles {
		out[p] = regexp.MustCompile(regexp.QuoteMeta(p) + `\s+\|\s+([\d.]+)\s+\|`)
	}
	return out
}()

// Each percentile row is matched on its own so a missing row does not hide the others.
func extractLatencyPercentiles(content string) []Field {
	table := percentileTableRe.FindString(content)
	if table == "" {
		return nil
	}
	out := []Field{}
	for _, p := range Percentiles {
		m := percentileRowRes[p].FindStringSubmatch(table)
		if m != nil {
			out = append(out, Field{Name: "latency_" + p, Value: m[1]})
		}
	}
	return out
}
