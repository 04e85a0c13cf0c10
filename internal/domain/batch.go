package domain

import "time"

// Batch is an immutable, numbered group of accepted repositories.
// StartIndex and EndIndex delimit the candidate range [StartIndex, EndIndex)
// that produced it.
type Batch struct {
	Number       int          `json:"batch_number"`
	RunID        string       `json:"run_id"`
	ConfigHash   string       `json:"config_hash"`
	StartIndex   int          `json:"start_index"`
	EndIndex     int          `json:"end_index"`
	CreatedAt    time.Time    `json:"created_at"`
	Repositories []Repository `json:"repositories"`
	Rejected     []Rejection  `json:"rejected"`
}

// Names returns the repository names of the batch in order
func (b *Batch) Names() []string {
	names := make([]string, 0, len(b.Repositories))
	for _, r := range b.Repositories {
		names = append(names, r.Name)
	}
	return names
}

// BatchInfo summarizes a batch file on disk
type BatchInfo struct {
	Number       int       `json:"batch_number"`
	Path         string    `json:"path"`
	Repositories int       `json:"repositories"`
	StartIndex   int       `json:"start_index"`
	EndIndex     int       `json:"end_index"`
	CreatedAt    time.Time `json:"created_at"`
}
