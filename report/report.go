package report

// Outcome of one worker's deploy, wait and retrieve sequence.
type WorkerReport struct {
	Worker            string
	JobName           string
	State             string
	RetrievalStrategy string // empty when no strategy produced output
	ArtifactPath      string // empty iff no artifact was written
	WaitTimeSec       float64
	Error             string // non-empty iff the worker failed to deploy or retrieval was exhausted
}
