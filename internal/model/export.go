package model

import "time"

// ExportResponse points at the archived outputs of a completed job.
type ExportResponse struct {
	JobID         string    `json:"job_id"`
	ResultsURL    string    `json:"results_url"`
	TranscriptURL string    `json:"transcript_url"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// ExportDocument is the archived form of a completed job.
type ExportDocument struct {
	JobID              string         `json:"job_id"`
	SourceType         SourceType     `json:"source_type"`
	SourceURL          string         `json:"source_url,omitempty"`
	TranscriptLanguage string         `json:"transcript_language"`
	OutputLanguage     OutputLanguage `json:"output_language"`
	Transcript         string         `json:"transcript"`
	Results            *ContentResult `json:"results"`
	CompletedAt        time.Time      `json:"completed_at"`
}
