package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/multiviral/api/internal/model"
	"github.com/multiviral/api/internal/store"
)

// TaskTypePipeline is the queued task that runs one job end to end.
const TaskTypePipeline = "pipeline:process"

// Dispatcher schedules JobService.Run for a job and returns without waiting.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// JobObserver is told about every persisted job change.
type JobObserver interface {
	JobUpdated(job *model.Job)
}

// MediaPreparer acquires and normalises job media.
type MediaPreparer interface {
	NeedsDownload(job *model.Job) bool
	Acquire(ctx context.Context, job *model.Job) (string, error)
	Normalize(ctx context.Context, inputPath string) (string, error)
}

// Transcriber turns an audio file into a timed transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (*model.Transcript, error)
}

// Generator turns a transcript into the content bundle.
type Generator interface {
	Generate(ctx context.Context, transcript string, segments []model.Segment, pref GenerationPreference) (*model.ContentResult, error)
}

// JobService owns the job state machine and runs the pipeline.
type JobService struct {
	store       store.Store
	media       MediaPreparer
	transcriber Transcriber
	generator   Generator
	dispatcher  Dispatcher
	observers   []JobObserver
}

func NewJobService(st store.Store, media MediaPreparer, transcriber Transcriber, generator Generator) *JobService {
	return &JobService{
		store:       st,
		media:       media,
		transcriber: transcriber,
		generator:   generator,
	}
}

// SetDispatcher wires the scheduler. Dispatchers call back into Run, so
// they are attached after construction.
func (s *JobService) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// AddObserver registers a listener for job changes.
func (s *JobService) AddObserver(o JobObserver) {
	s.observers = append(s.observers, o)
}

// NewJobID returns a fresh job identifier.
func (s *JobService) NewJobID() string {
	return uuid.New().String()
}

// Create registers a job in the uploaded state.
func (s *JobService) Create(ctx context.Context, params model.CreateJobParams) (*model.Job, error) {
	if params.ID == "" {
		params.ID = s.NewJobID()
	}
	job, err := s.store.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	log.Printf("[%s] Job created (source_type=%s)", job.ID, job.SourceType)
	s.notify(job)
	return job, nil
}

// Start moves an uploaded or failed job to processing and schedules a run.
// A second Start while the first run is in flight fails with ErrConflict.
func (s *JobService) Start(ctx context.Context, jobID string) (*model.StartResponse, error) {
	job, err := s.store.Update(ctx, jobID, func(j *model.Job) error {
		if !j.Status.CanStart() {
			return fmt.Errorf("%w: Job is already %s", ErrConflict, j.Status)
		}
		j.Status = model.JobStatusProcessing
		j.Error = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(job)

	if s.dispatcher == nil {
		s.fail(ctx, jobID, errors.New("pipeline dispatcher is not configured"))
		return nil, fmt.Errorf("no dispatcher configured")
	}
	if err := s.dispatcher.Dispatch(ctx, jobID); err != nil {
		s.fail(ctx, jobID, fmt.Errorf("could not schedule pipeline: %w", err))
		return nil, fmt.Errorf("failed to dispatch job: %w", err)
	}

	return &model.StartResponse{
		JobID:   jobID,
		Status:  model.JobStatusProcessing,
		Message: "Content generation started",
	}, nil
}

// Run executes every stage for a job. Failures, including panics, are
// persisted on the job and never returned.
func (s *JobService) Run(ctx context.Context, jobID string) {
	// a started pipeline outlives the request or task that scheduled it
	ctx = context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] Pipeline panicked: %v", jobID, r)
			s.fail(ctx, jobID, fmt.Errorf("internal error: %v", r))
		}
	}()

	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		log.Printf("[%s] Job not found: %v", jobID, err)
		return
	}

	log.Printf("[%s] source_type=%s, source_url=%s, file_path=%s",
		jobID, job.SourceType, truncate(job.SourceURL, 50), job.FilePath)

	if err := s.runStages(ctx, job); err != nil {
		log.Printf("[%s] Pipeline failed: %v", jobID, err)
		s.fail(ctx, jobID, err)
		return
	}
	log.Printf("[%s] Pipeline completed", jobID)
}

func (s *JobService) runStages(ctx context.Context, job *model.Job) error {
	jobID := job.ID
	filePath := job.FilePath

	// Step 0: download remote sources
	if s.media.NeedsDownload(job) {
		if err := s.advance(ctx, jobID, model.JobStatusDownloading, nil); err != nil {
			return err
		}
		path, err := s.media.Acquire(ctx, job)
		if err != nil {
			return err
		}
		filePath = path
		if _, err := s.update(ctx, jobID, func(j *model.Job) error {
			j.FilePath = path
			return nil
		}); err != nil {
			return err
		}
	}

	// Step 1: audio extraction
	if err := s.advance(ctx, jobID, model.JobStatusTranscribing, nil); err != nil {
		return err
	}

	audioPath := filePath
	if fileUsable(filePath) {
		normalized, err := s.media.Normalize(ctx, filePath)
		if err != nil {
			return err
		}
		audioPath = normalized
	} else {
		log.Printf("[%s] File not found, transcribing nominal path %q", jobID, filePath)
	}

	// Step 2: transcription
	log.Printf("[%s] Transcribing audio (lang=%s)", jobID, job.TranscriptLanguage)
	transcript, err := s.transcriber.Transcribe(ctx, audioPath, job.TranscriptLanguage)
	// extracted audio is only needed by the transcriber
	if audioPath != filePath {
		if rmErr := os.Remove(audioPath); rmErr == nil {
			log.Printf("[%s] Cleaned up extracted audio: %s", jobID, audioPath)
		}
	}
	if err != nil {
		return err
	}
	text := transcript.Text
	if _, err := s.update(ctx, jobID, func(j *model.Job) error {
		j.Transcript = &text
		return nil
	}); err != nil {
		return err
	}
	log.Printf("[%s] Transcription done (%d chars, %d segments)", jobID, len(text), len(transcript.Segments))

	// Step 3: content generation
	if err := s.advance(ctx, jobID, model.JobStatusGenerating, nil); err != nil {
		return err
	}
	log.Printf("[%s] Generating content (output=%s)", jobID, job.OutputLanguage)
	results, err := s.generator.Generate(ctx, text, transcript.Segments, GenerationPreference{
		Output:             job.OutputLanguage,
		TranscriptLanguage: job.TranscriptLanguage,
	})
	if err != nil {
		return err
	}

	// Step 4: persist results
	return s.advance(ctx, jobID, model.JobStatusCompleted, func(j *model.Job) {
		j.Results = results
	})
}

// advance moves the job forward, rejecting transitions the state machine forbids.
func (s *JobService) advance(ctx context.Context, jobID string, next model.JobStatus, mutate func(*model.Job)) error {
	_, err := s.update(ctx, jobID, func(j *model.Job) error {
		if !j.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: cannot move from %s to %s", ErrConflict, j.Status, next)
		}
		j.Status = next
		if mutate != nil {
			mutate(j)
		}
		return nil
	})
	return err
}

func (s *JobService) update(ctx context.Context, jobID string, fn store.UpdateFunc) (*model.Job, error) {
	job, err := s.store.Update(ctx, jobID, fn)
	if err != nil {
		return nil, err
	}
	s.notify(job)
	return job, nil
}

// fail records a one-line error on the job.
func (s *JobService) fail(ctx context.Context, jobID string, cause error) {
	msg := userMessage(cause)
	_, err := s.update(ctx, jobID, func(j *model.Job) error {
		if !j.Status.CanTransitionTo(model.JobStatusError) {
			return fmt.Errorf("%w: job is %s", ErrConflict, j.Status)
		}
		j.Status = model.JobStatusError
		j.Error = &msg
		return nil
	})
	if err != nil {
		log.Printf("[%s] Failed to mark job as failed: %v", jobID, err)
	}
}

func (s *JobService) notify(job *model.Job) {
	for _, o := range s.observers {
		o.JobUpdated(job.Clone())
	}
}

// GetStatus returns the externally visible view of a job. Reads have no
// side effects.
func (s *JobService) GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &model.JobStatusResponse{
		JobID:      job.ID,
		Status:     job.Status,
		SourceType: job.SourceType,
		Transcript: job.Transcript,
		Results:    job.Results,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}, nil
}

// Get returns a copy of the full job record.
func (s *JobService) Get(ctx context.Context, jobID string) (*model.Job, error) {
	return s.store.Get(ctx, jobID)
}

// List returns job summaries, newest first.
func (s *JobService) List(ctx context.Context) ([]model.JobSummary, error) {
	jobs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.JobSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, model.JobSummary{
			JobID:      j.ID,
			Status:     j.Status,
			SourceType: j.SourceType,
			CreatedAt:  j.CreatedAt,
		})
	}
	return out, nil
}
