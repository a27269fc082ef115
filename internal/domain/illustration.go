package domain

import "time"

// PromptEntry is a single catalog item: an identifier and the text that
// describes the image to generate for it.
type PromptEntry struct {
	ID       string
	Text     string
	Fragment string
}

// Status is the lifecycle state of a single illustration within a run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusUploading  Status = "uploading"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is possible in the run.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ManifestRecord is the persisted state of one illustration across runs.
type ManifestRecord struct {
	ID        string    `yaml:"id"`
	Status    Status    `yaml:"status"`
	URL       string    `yaml:"url,omitempty"`
	Error     string    `yaml:"error,omitempty"`
	RunID     string    `yaml:"run_id,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// Result is the outcome of one attempted illustration.
type Result struct {
	ID       string
	URL      string
	Err      error
	Attempts int
	Duration time.Duration
}

// Succeeded reports whether the illustration was generated and uploaded.
func (r Result) Succeeded() bool {
	return r.Err == nil
}

// Outcome classifies a whole run so callers can react without parsing
// console output.
type Outcome string

const (
	OutcomeNoop      Outcome = "noop"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomePartial   Outcome = "partial"
	OutcomeFailed    Outcome = "failed"
)

// Report aggregates the results of one run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Defined    int
	Excluded   int
	WorkingSet []string
	Results    []Result
	DryRun     bool
}

// Succeeded returns the successful results in attempt order.
func (r *Report) Succeeded() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Succeeded() {
			out = append(out, res)
		}
	}
	return out
}

// Failed returns the failed results in attempt order.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Succeeded() {
			out = append(out, res)
		}
	}
	return out
}

// Outcome derives the run classification from the recorded results.
func (r *Report) Outcome() Outcome {
	if len(r.WorkingSet) == 0 || r.DryRun {
		return OutcomeNoop
	}
	ok := len(r.Succeeded())
	switch {
	case ok == len(r.WorkingSet):
		return OutcomeSucceeded
	case ok > 0:
		return OutcomePartial
	default:
		return OutcomeFailed
	}
}
