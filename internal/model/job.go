package model

import "time"

// Job is one end-to-end request to turn a media source into generated content.
// Nullable fields use pointers: nil means "not produced yet".
type Job struct {
	ID                 string         `json:"id"`
	SourceType         SourceType     `json:"source_type"`
	SourceURL          string         `json:"source_url,omitempty"`
	FilePath           string         `json:"file_path,omitempty"`
	TranscriptLanguage string         `json:"transcript_language"`
	OutputLanguage     OutputLanguage `json:"output_language"`
	Status             JobStatus      `json:"status"`
	Transcript         *string        `json:"transcript"`
	Results            *ContentResult `json:"results"`
	Error              *string        `json:"error"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Clone returns a deep copy so callers never share mutable state with the store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Transcript != nil {
		t := *j.Transcript
		cp.Transcript = &t
	}
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	if j.Results != nil {
		cp.Results = j.Results.Clone()
	}
	return &cp
}

// CreateJobParams holds the inputs fixed at job creation.
type CreateJobParams struct {
	ID                 string
	SourceType         SourceType
	SourceURL          string
	FilePath           string
	TranscriptLanguage string
	OutputLanguage     OutputLanguage
}

// NewJob builds a job record in the uploaded state.
func NewJob(p CreateJobParams, now time.Time) *Job {
	job := &Job{
		ID:                 p.ID,
		SourceType:         p.SourceType,
		TranscriptLanguage: p.TranscriptLanguage,
		OutputLanguage:     p.OutputLanguage,
		Status:             JobStatusUploaded,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if job.TranscriptLanguage == "" {
		job.TranscriptLanguage = DefaultTranscriptLanguage
	}
	if job.OutputLanguage == "" {
		job.OutputLanguage = OutputSame
	}
	// exactly one location is populated, chosen by source type
	if p.SourceType == SourceTypeYouTube {
		job.SourceURL = p.SourceURL
	} else {
		job.FilePath = p.FilePath
	}
	return job
}

// JobStatusResponse is the payload of the status interface.
type JobStatusResponse struct {
	JobID      string         `json:"job_id"`
	Status     JobStatus      `json:"status"`
	SourceType SourceType     `json:"source_type"`
	Transcript *string        `json:"transcript"`
	Results    *ContentResult `json:"results"`
	Error      *string        `json:"error"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// JobSummary is one entry of the job listing.
type JobSummary struct {
	JobID      string     `json:"job_id"`
	Status     JobStatus  `json:"status"`
	SourceType SourceType `json:"source_type"`
	CreatedAt  time.Time  `json:"created_at"`
}

// StartResponse is returned when a pipeline run is scheduled.
type StartResponse struct {
	JobID   string    `json:"job_id"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}
