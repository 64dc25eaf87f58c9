package report

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) string {
	buf, err := os.ReadFile("testdata/node-1.txt")
	require.NoError(t, err)
	return string(buf)
}

func TestExtractRecord(t *testing.T) {
	r := ExtractRecord(loadFixture(t), "benchmark-01", "1")

	assert.Equal(t, []Field{
		{"benchmark_id", "benchmark-01"},
		{"node_id", "1"},
		{"command_line", "diskspd -b4K -d60 -o32 -t4 -r -w30 -Sh -L -c10G /data/testfile.dat"},
		{"processor_count", "4"},
		{"caching_options", "fua=1 sync=0"},
		{"duration", "60"},
		{"block_size", "4"},
		{"outstanding_io", "32"},
		{"threads", "4"},
		{"file_size_gb", "10.00"},
		{"io_type", "random"},
		{"cpu_total_usage", "21.73"},
		{"cpu_user", "4.01"},
		{"cpu_kernel", "17.72"},
		{"cpu_io_wait", "61.71"},
		{"cpu_idle", "16.57"},
		{"total_bytes", "1234698240"},
		{"total_ios", "301440"},
		{"total_mbps", "19.62"},
		{"total_iops", "5023.47"},
		{"total_avg_latency", "6.369"},
		{"read_bytes", "864288768"},
		{"read_ios", "211008"},
		{"read_mbps", "13.73"},
		{"read_iops", "3516.43"},
		{"read_avg_latency", "6.271"},
		{"write_bytes", "370409472"},
		{"write_ios", "90432"},
		{"write_mbps", "5.89"},
		{"write_iops", "1507.04"},
		{"write_avg_latency", "6.598"},
		{"latency_min", "0.081"},
		{"latency_50th", "5.004"},
		{"latency_95th", "16.020"},
		{"latency_99th", "28.413"},
		{"latency_max", "101.337"},
	}, r.Fields())
}

func TestExtractIsIdempotent(t *testing.T) {
	content := loadFixture(t)
	first := ExtractRecord(content, "benchmark-01", "1")
	second := ExtractRecord(content, "benchmark-01", "1")
	assert.Equal(t, first.Fields(), second.Fields())
}

func TestNormalization(t *testing.T) {
	assert.Equal(t, []Field{{"block_size", "4"}}, extractBlockSize("block size: 4096\n"))
	assert.Equal(t, []Field{{"block_size", "64"}}, extractBlockSize("block size: 65536\n"))
	assert.Equal(t, []Field{{"block_size", "0"}}, extractBlockSize("block size: 512\n"))
	assert.Equal(t, []Field{{"file_size_gb", "10.00"}}, extractFileSize("size: 10737418240B\n"))
	assert.Equal(t, []Field{{"file_size_gb", "1.50"}}, extractFileSize("size: 1610612736B\n"))
}

func TestCPUUsageIsAllOrNothing(t *testing.T) {
	content := "CPU |  Usage |  User  |  Kernel |  IO Wait |  Idle\n" +
		"avg:\t  21.73% |   4.01% |  17.72% |  61.71%\n"
	assert.Empty(t, extractCPUUsage(content))

	for _, f := range Extract(content) {
		assert.False(t, strings.HasPrefix(f.Name, "cpu_"), f.Name)
	}
}

func TestIOStatsCategoriesAreIndependent(t *testing.T) {
	content := "Read IO\n" +
		"total:         864288768 |       211008 |      13.73 |    3516.43 |    6.271 |    11.982\n" +
		"Write IO\n" +
		"total:         370409472 |        90432 |       5.89\n"

	assert.Empty(t, ioStats("Total")(content))
	assert.Len(t, ioStats("Read")(content), 5)
	assert.Empty(t, ioStats("Write")(content))
}

func TestPercentileRowsAreIndependent(t *testing.T) {
	content := "  %-ile |  Read (ms) | Write (ms) | Total (ms)\n" +
		"    min |      0.081 |      0.122 |      0.081\n" +
		"   99th |     28.413 |     30.120 |     29.002\n" +
		"    max |    101.337 |    120.920 |    120.920\n"
	assert.Equal(t, []Field{
		{"latency_min", "0.081"},
		{"latency_99th", "28.413"},
		{"latency_max", "101.337"},
	}, extractLatencyPercentiles(content))
}

func TestPercentilesRequireTable(t *testing.T) {
	assert.Empty(t, extractLatencyPercentiles("    min |      0.081 |\n    max |  1.0 |\n"))
}

func TestGapsAreOmitted(t *testing.T) {
	r := ExtractRecord("nothing useful here", "benchmark-01", "7")
	assert.Equal(t, []string{"benchmark_id", "node_id"}, r.Keys())

	_, ok := r.Get("block_size")
	assert.False(t, ok)
}

func TestSequentialIOType(t *testing.T) {
	assert.Equal(t, []Field{{"io_type", "sequential"}}, capture(ioTypeRe, "io_type")("using sequential I/O (stride: 4096)"))
}

func TestCaptureStripsOnlyCarriageReturn(t *testing.T) {
	content := "Command Line: diskspd -b4K -d60 \r\n\tcaching options: fua=1 sync=0  \n"
	assert.Equal(t, []Field{
		{"command_line", "diskspd -b4K -d60 "},
		{"caching_options", "fua=1 sync=0  "},
	}, Extract(content))
}
