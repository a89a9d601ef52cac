package domain

type RunOutcome string

const (
	OutcomeProcessed RunOutcome = "processed"
	// OutcomeDegraded is a processed run where extraction or recommendation fell back to empty data.
	OutcomeDegraded RunOutcome = "degraded"
	OutcomeFailed   RunOutcome = "failed"
	OutcomeAborted  RunOutcome = "aborted"
	OutcomeSkipped  RunOutcome = "skipped"
)

// RunReport summarizes one pipeline run for logging and metrics.
type RunReport struct {
	RecordID         string
	Outcome          RunOutcome
	DocumentKind     DocumentKind
	RecommendationID string
	Candidates       int
	Degraded         []string
	WriteBackErr     error
}
