package model

import "time"

// UploadResponse is returned after a file upload creates a job.
type UploadResponse struct {
	JobID     string    `json:"job_id"`
	Filename  string    `json:"filename"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// YouTubeRequest creates a job from a remote video URL.
type YouTubeRequest struct {
	URL                string `json:"url" validate:"required,url"`
	TranscriptLanguage string `json:"transcript_language" validate:"omitempty,min=2,max=8"`
	OutputLanguage     string `json:"output_language" validate:"omitempty,min=2,max=32"`
}

// YouTubeResponse is returned after a URL job is created.
type YouTubeResponse struct {
	JobID     string    `json:"job_id"`
	URL       string    `json:"url"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
