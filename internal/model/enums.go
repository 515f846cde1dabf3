package model

// Job status
type JobStatus string

const (
	JobStatusUploaded     JobStatus = "uploaded"
	JobStatusProcessing   JobStatus = "processing"
	JobStatusDownloading  JobStatus = "downloading"
	JobStatusTranscribing JobStatus = "transcribing"
	JobStatusGenerating   JobStatus = "generating"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusError        JobStatus = "error"
)

// statusRank orders the forward path of the state machine.
var statusRank = map[JobStatus]int{
	JobStatusUploaded:     0,
	JobStatusProcessing:   1,
	JobStatusDownloading:  2,
	JobStatusTranscribing: 3,
	JobStatusGenerating:   4,
	JobStatusCompleted:    5,
}

// CanStart reports whether a (re)start into processing is allowed.
func (s JobStatus) CanStart() bool {
	return s == JobStatusUploaded || s == JobStatusError
}

// IsTerminal reports whether the pipeline is no longer running for this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// CanTransitionTo enforces monotonic progress. error is reachable from any
// non-terminal state, and error -> processing is the only way back.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s == JobStatusCompleted {
		return false
	}
	if next == JobStatusError {
		return s != JobStatusError
	}
	if next == JobStatusProcessing {
		return s.CanStart()
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	return ok && to > from
}

// Source types
type SourceType string

const (
	SourceTypeFile    SourceType = "file"
	SourceTypeYouTube SourceType = "youtube"
)

var ValidSourceTypes = []SourceType{SourceTypeFile, SourceTypeYouTube}

// Output language preference
type OutputLanguage string

const (
	// OutputSame answers in the transcript's own language.
	OutputSame OutputLanguage = "same"
	// OutputPrimary always answers in the configured primary language.
	OutputPrimary OutputLanguage = "translate-to-primary"
)

// Transcript language hints
const (
	LanguageAuto              = "auto"
	DefaultTranscriptLanguage = "ja"
)
