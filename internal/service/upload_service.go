package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/multiviral/api/internal/model"
)

// MaxUploadSize caps a single uploaded media file.
const MaxUploadSize = 500 * 1024 * 1024

// UploadService stores uploaded media in the scratch directory and
// registers the job that will process it.
type UploadService struct {
	jobs       *JobService
	scratchDir string
}

func NewUploadService(jobs *JobService, scratchDir string) *UploadService {
	return &UploadService{
		jobs:       jobs,
		scratchDir: scratchDir,
	}
}

// UploadFile saves body as <scratch>/<jobID><ext> and creates a file job.
func (s *UploadService) UploadFile(ctx context.Context, filename string, body io.Reader, transcriptLang string, output model.OutputLanguage) (*model.UploadResponse, error) {
	if !IsSupportedUpload(filename) {
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}

	jobID := s.jobs.NewJobID()
	ext := filepath.Ext(filename)
	path := filepath.Join(s.scratchDir, jobID+ext)

	if err := s.save(path, body); err != nil {
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}

	job, err := s.jobs.Create(ctx, model.CreateJobParams{
		ID:                 jobID,
		SourceType:         model.SourceTypeFile,
		FilePath:           path,
		TranscriptLanguage: transcriptLang,
		OutputLanguage:     output,
	})
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	log.Printf("[%s] Upload saved: %s -> %s", jobID, filename, path)
	return &model.UploadResponse{
		JobID:     job.ID,
		Filename:  filename,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}, nil
}

// RegisterURL creates a youtube job. The URL is checked when the pipeline runs.
func (s *UploadService) RegisterURL(ctx context.Context, req *model.YouTubeRequest) (*model.YouTubeResponse, error) {
	job, err := s.jobs.Create(ctx, model.CreateJobParams{
		SourceType:         model.SourceTypeYouTube,
		SourceURL:          strings.TrimSpace(req.URL),
		TranscriptLanguage: req.TranscriptLanguage,
		OutputLanguage:     model.OutputLanguage(req.OutputLanguage),
	})
	if err != nil {
		return nil, err
	}
	return &model.YouTubeResponse{
		JobID:     job.ID,
		URL:       job.SourceURL,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}, nil
}

func (s *UploadService) save(path string, body io.Reader) error {
	if err := os.MkdirAll(s.scratchDir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, io.LimitReader(body, MaxUploadSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxUploadSize {
		err = fmt.Errorf("file exceeds %d MB limit", MaxUploadSize/(1024*1024))
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
