package types

// CrawlResult is the common return shape of every source adapter call.
type CrawlResult struct {
	Success        bool       `json:"success"`
	Items          []*Article `json:"items"`
	Err            error      `json:"-"`
	TotalAvailable int        `json:"total_available,omitempty"`
}

// SourceStats counts per-source outcomes for one collection run.
type SourceStats struct {
	Attempted    int `json:"attempted"`
	Normalized   int `json:"normalized"`
	Deduplicated int `json:"deduplicated"`
	Persisted    int `json:"persisted"`
	Failed       int `json:"failed"`
}

// Add merges another stats block into the receiver.
func (s *SourceStats) Add(other SourceStats) {
	s.Attempted += other.Attempted
	s.Normalized += other.Normalized
	s.Deduplicated += other.Deduplicated
	s.Persisted += other.Persisted
	s.Failed += other.Failed
}

// SourceState describes the terminal state of one source task.
type SourceState string

const (
	SourceCompleted       SourceState = "completed"
	SourcePartiallyFailed SourceState = "partially-failed"
	SourceFailed          SourceState = "failed"
)

// SourceReport is the per-source slice of a run report.
type SourceReport struct {
	Stats SourceStats `json:"stats"`
	State SourceState `json:"state"`
	Error string      `json:"error,omitempty"`
}

// RunReport aggregates one orchestrator invocation. Sources are keyed by
// name; completion order carries no meaning.
type RunReport struct {
	Sources map[string]SourceReport `json:"sources"`
}

// Totals sums the per-source stats.
func (r *RunReport) Totals() SourceStats {
	var total SourceStats
	for _, sr := range r.Sources {
		total.Add(sr.Stats)
	}
	return total
}

// OK reports whether the run as a whole succeeded: at least one item was
// fetched from any source, even if other sources or individual writes failed.
func (r *RunReport) OK() bool {
	for _, sr := range r.Sources {
		if sr.Stats.Attempted > 0 {
			return true
		}
	}
	return false
}
