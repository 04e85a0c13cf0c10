package domain

import "time"

// RunState represents where a mining run is in its lifecycle
type RunState string

const (
	RunStateNotStarted      RunState = "NOT_STARTED"
	RunStateMining          RunState = "MINING"
	RunStateTargetReached   RunState = "TARGET_REACHED"
	RunStateSourceExhausted RunState = "SOURCE_EXHAUSTED"
	RunStateConsolidating   RunState = "CONSOLIDATING"
	RunStateDone            RunState = "DONE"
)

// Progress is the committed bookkeeping of a mining run.
// Only state backed by batch files on disk is recorded here.
type Progress struct {
	RunID           string      `json:"run_id"`
	ConfigHash      string      `json:"config_hash"`
	State           RunState    `json:"state"`
	Candidates      []Candidate `json:"search_results"`
	NextIndex       int         `json:"last_index"`
	Accepted        []string    `json:"accepted"`
	Rejected        []Rejection `json:"rejected"`
	BatchesWritten  int         `json:"batches_written"`
	SourceExhausted bool        `json:"source_exhausted"`
	StartedAt       time.Time   `json:"started_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// NewProgress creates an empty progress for a run
func NewProgress(runID, configHash string, now time.Time) *Progress {
	return &Progress{
		RunID:      runID,
		ConfigHash: configHash,
		State:      RunStateNotStarted,
		StartedAt:  now,
		UpdatedAt:  now,
	}
}

// AcceptedSet returns the accepted names as a set
func (p *Progress) AcceptedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.Accepted))
	for _, name := range p.Accepted {
		set[name] = struct{}{}
	}
	return set
}

// CommitBatch records a durably written batch
func (p *Progress) CommitBatch(b *Batch, now time.Time) {
	p.Accepted = append(p.Accepted, b.Names()...)
	p.Rejected = append(p.Rejected, b.Rejected...)
	p.NextIndex = b.EndIndex
	p.BatchesWritten = b.Number
	p.UpdatedAt = now
}

// Statistics is a snapshot of progress counters
type Statistics struct {
	RunID           string   `json:"run_id"`
	State           RunState `json:"state"`
	TotalAccepted   int      `json:"total_accepted"`
	TotalRejected   int      `json:"total_rejected"`
	LastIndex       int      `json:"last_index"`
	SearchResults   int      `json:"search_results_count"`
	BatchesWritten  int      `json:"batches_written"`
	SourceExhausted bool     `json:"source_exhausted"`
	UpdatedAt       string   `json:"updated_at"`
}

// Statistics returns counters describing the progress
func (p *Progress) Statistics() Statistics {
	updated := ""
	if !p.UpdatedAt.IsZero() {
		updated = p.UpdatedAt.Format(time.RFC3339)
	}
	return Statistics{
		RunID:           p.RunID,
		State:           p.State,
		TotalAccepted:   len(p.Accepted),
		TotalRejected:   len(p.Rejected),
		LastIndex:       p.NextIndex,
		SearchResults:   len(p.Candidates),
		BatchesWritten:  p.BatchesWritten,
		SourceExhausted: p.SourceExhausted,
		UpdatedAt:       updated,
	}
}
