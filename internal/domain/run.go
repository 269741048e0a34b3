package domain

import "time"

// OutcomeKind classifies a single (source, variant) collection attempt.
type OutcomeKind int

const (
	OutcomeFound OutcomeKind = iota
	OutcomeNotFound
	OutcomeTransient
	OutcomeEmpty // published, but nothing survived filtering
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeTransient:
		return "transient"
	case OutcomeEmpty:
		return "empty"
	}
	return "unknown"
}

// CollectionOutcome is the result of one matrix pair. It is never persisted.
type CollectionOutcome struct {
	Source   string
	Variant  Variant
	Artifact string
	Kind     OutcomeKind
	Batch    *Batch
	Err      error
}

// RunRequest is the input of one orchestrated run.
type RunRequest struct {
	Period          time.Time
	Filter          FilterSpec
	Exclude         []string
	Variant         *Variant
	DistributionTag string
}

// RunReport summarises a run for the caller and distribution channels.
type RunReport struct {
	RunID               string    `json:"run_id"`
	Period              time.Time `json:"period"`
	Filter              string    `json:"filter"`
	Added               int       `json:"added"`
	Duplicates          int       `json:"duplicates"`
	Invalid             int       `json:"invalid"`
	Records             int       `json:"records"`
	SourcesMissing      []string  `json:"sources_missing"`
	SourcesFailed       []string  `json:"sources_failed"`
	Sources             []string  `json:"sources"` // sources that contributed at least one batch
	PersistenceDegraded bool      `json:"persistence_degraded"`
	Succeeded           bool      `json:"succeeded"`
	Error               string    `json:"error,omitempty"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
}

// Duration returns the wall time of the run.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
