package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/multiviral/api/internal/client"
	"github.com/multiviral/api/internal/model"
)

const (
	exportLinkExpiry = 24 * time.Hour
	exportTimeout    = 60 * time.Second
)

// ExportService archives completed job outputs to object storage.
type ExportService struct {
	r2Client client.StorageClient
	jobs     *JobService
	now      func() time.Time
}

// NewExportService creates an export service. A nil storage client keeps
// the service in mock mode.
func NewExportService(r2Client client.StorageClient, jobs *JobService) *ExportService {
	return &ExportService{
		r2Client: r2Client,
		jobs:     jobs,
		now:      time.Now,
	}
}

func resultsKey(jobID string) string    { return fmt.Sprintf("results/%s.json", jobID) }
func transcriptKey(jobID string) string { return fmt.Sprintf("results/%s.txt", jobID) }

// Export uploads the results document and transcript of a completed job and
// returns links valid for a day.
func (s *ExportService) Export(ctx context.Context, jobID string) (*model.ExportResponse, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, fmt.Errorf("%w: Job is %s, not completed", ErrConflict, job.Status)
	}

	if s.r2Client == nil {
		return s.exportMock(jobID)
	}

	if err := s.upload(ctx, job); err != nil {
		return nil, err
	}

	resultsURL, err := s.r2Client.GetSignedURL(ctx, resultsKey(jobID), exportLinkExpiry)
	if err != nil {
		return nil, err
	}
	transcriptURL, err := s.r2Client.GetSignedURL(ctx, transcriptKey(jobID), exportLinkExpiry)
	if err != nil {
		return nil, err
	}

	return &model.ExportResponse{
		JobID:         jobID,
		ResultsURL:    resultsURL,
		TranscriptURL: transcriptURL,
		ExpiresAt:     s.now().Add(exportLinkExpiry),
	}, nil
}

func (s *ExportService) upload(ctx context.Context, job *model.Job) error {
	doc := model.ExportDocument{
		JobID:              job.ID,
		SourceType:         job.SourceType,
		SourceURL:          job.SourceURL,
		TranscriptLanguage: job.TranscriptLanguage,
		OutputLanguage:     job.OutputLanguage,
		Results:            job.Results,
		CompletedAt:        job.UpdatedAt,
	}
	if job.Transcript != nil {
		doc.Transcript = *job.Transcript
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	if _, err := s.r2Client.Upload(ctx, resultsKey(job.ID), bytes.NewReader(body), "application/json"); err != nil {
		return fmt.Errorf("failed to upload results: %w", err)
	}
	if _, err := s.r2Client.Upload(ctx, transcriptKey(job.ID), strings.NewReader(doc.Transcript), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("failed to upload transcript: %w", err)
	}
	return nil
}

// JobUpdated archives a job as soon as it completes.
func (s *ExportService) JobUpdated(job *model.Job) {
	if s.r2Client == nil || job.Status != model.JobStatusCompleted {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		if err := s.upload(ctx, job); err != nil {
			log.Printf("[%s] Archive failed: %v", job.ID, err)
			return
		}
		log.Printf("[%s] Archived to %s", job.ID, resultsKey(job.ID))
	}()
}

// Mock implementation for development/testing
func (s *ExportService) exportMock(jobID string) (*model.ExportResponse, error) {
	return &model.ExportResponse{
		JobID:         jobID,
		ResultsURL:    fmt.Sprintf("https://cdn.multiviral.local/%s", resultsKey(jobID)),
		TranscriptURL: fmt.Sprintf("https://cdn.multiviral.local/%s", transcriptKey(jobID)),
		ExpiresAt:     s.now().Add(exportLinkExpiry),
	}, nil
}
