package report

// One named value extracted from a report.
type Field struct {
	Name  string
	Value string
}

const (
	BenchmarkIDField = "benchmark_id"
	NodeIDField      = "node_id"
	BlockSizeField   = "block_size"
)

// A flat, ordered set of fields extracted from one artifact. Field order is insertion order, identity fields
// first. Records are not modified after construction.
type Record struct {
	keys   []string
	values map[string]string
}

func NewRecord(benchmarkID string, nodeID string, groups ...[]Field) *Record {
	r := &Record{values: map[string]string{}}
	r.set(BenchmarkIDField, benchmarkID)
	r.set(NodeIDField, nodeID)
	for _, g := range groups {
		for _, f := range g {
			r.set(f.Name, f.Value)
		}
	}
	return r
}

func (r *Record) set(name string, value string) {
	if _, ok := r.values[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.values[name] = value
}

func (r *Record) Get(name string) (string, bool) {
	v, ok := r.values[name]
	return v, ok
}

func (r *Record) BenchmarkID() string {
	return r.values[BenchmarkIDField]
}

func (r *Record) NodeID() string {
	return r.values[NodeIDField]
}

// Field names in insertion order.
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

func (r *Record) Fields() []Field {
	out := make([]Field, len(r.keys))
	for i, k := range r.keys {
		out[i] = Field{Name: k, Value: r.values[k]}
	}
	return out
}
