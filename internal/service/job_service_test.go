package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/multiviral/api/internal/model"
	"github.com/multiviral/api/internal/store"
)

// inlineDispatcher runs the pipeline synchronously inside Start.
type inlineDispatcher struct {
	svc *JobService
}

func (d *inlineDispatcher) Dispatch(ctx context.Context, jobID string) error {
	d.svc.Run(ctx, jobID)
	return nil
}

// heldDispatcher records dispatches without running anything.
type heldDispatcher struct {
	mu   sync.Mutex
	jobs []string
	err  error
}

func (d *heldDispatcher) Dispatch(ctx context.Context, jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, jobID)
	return nil
}

type mockDownloader struct {
	mock.Mock
}

func (m *mockDownloader) Download(ctx context.Context, sourceURL, outputDir, jobID string) (string, error) {
	args := m.Called(ctx, sourceURL, outputDir, jobID)
	return args.String(0), args.Error(1)
}

type fakeExtractor struct {
	calls []string
	err   error
}

func (f *fakeExtractor) ExtractAudio(ctx context.Context, inputPath, outPath string) error {
	f.calls = append(f.calls, inputPath)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outPath, []byte("RIFF"), 0o644)
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []model.JobStatus
}

func (r *statusRecorder) JobUpdated(job *model.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.statuses); n == 0 || r.statuses[n-1] != job.Status {
		r.statuses = append(r.statuses, job.Status)
	}
}

type pipelineFixture struct {
	svc        *JobService
	store      *store.MemoryStore
	downloader *mockDownloader
	extractor  *fakeExtractor
	recorder   *statusRecorder
	scratch    string
}

func newPipelineFixture(t *testing.T, transcriber Transcriber, generator Generator) *pipelineFixture {
	t.Helper()
	scratch := t.TempDir()
	st := store.NewMemoryStore()
	dl := &mockDownloader{}
	ex := &fakeExtractor{}
	if transcriber == nil {
		transcriber = NewTranscriptionService(PlaceholderTranscriptionTier{})
	}
	if generator == nil {
		generator = NewContentService(NewPromptBuilder("ja"), PlaceholderContentTier{})
	}
	svc := NewJobService(st, NewMediaService(dl, ex, scratch), transcriber, generator)
	svc.SetDispatcher(&inlineDispatcher{svc: svc})
	rec := &statusRecorder{}
	svc.AddObserver(rec)
	return &pipelineFixture{svc: svc, store: st, downloader: dl, extractor: ex, recorder: rec, scratch: scratch}
}

func TestJobService_FileJobCompletesWithPlaceholders(t *testing.T) {
	f := newPipelineFixture(t, nil, nil)
	ctx := context.Background()

	audio := filepath.Join(f.scratch, "talk.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("ID3"), 0o644))

	job, err := f.svc.Create(ctx, model.CreateJobParams{SourceType: model.SourceTypeFile, FilePath: audio})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusUploaded, job.Status)

	resp, err := f.svc.Start(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, resp.Status)

	status, err := f.svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, status.Status)
	require.NotNil(t, status.Transcript)
	assert.Equal(t, PlaceholderTranscript().Text, *status.Transcript)
	require.NotNil(t, status.Results)
	assert.Len(t, status.Results.ViralClips, 3)
	assert.Len(t, status.Results.XThread, 7)
	assert.Nil(t, status.Error)

	assert.Empty(t, f.extractor.calls, "audio input is not re-encoded")
	f.downloader.AssertNotCalled(t, "Download", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []model.JobStatus{
		model.JobStatusUploaded,
		model.JobStatusProcessing,
		model.JobStatusTranscribing,
		model.JobStatusGenerating,
		model.JobStatusCompleted,
	}, f.recorder.statuses)
}

func TestJobService_InvalidYouTubeURLFailsWithoutDownload(t *testing.T) {
	f := newPipelineFixture(t, nil, nil)
	ctx := context.Background()

	job, err := f.svc.Create(ctx, model.CreateJobParams{
		SourceType: model.SourceTypeYouTube,
		SourceURL:  "https://example.com/not-a-video",
	})
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, job.ID)
	require.NoError(t, err)

	status, err := f.svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, status.Status)
	require.NotNil(t, status.Error)
	assert.Equal(t, "invalid YouTube URL: https://example.com/not-a-video", *status.Error)
	assert.Nil(t, status.Transcript)
	assert.Nil(t, status.Results)
	f.downloader.AssertNotCalled(t, "Download", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestJobService_YouTubeJobDownloadsAndExtracts(t *testing.T) {
	f := newPipelineFixture(t, nil, nil)
	ctx := context.Background()
	url := "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

	job, err := f.svc.Create(ctx, model.CreateJobParams{SourceType: model.SourceTypeYouTube, SourceURL: url})
	require.NoError(t, err)

	video := filepath.Join(f.scratch, job.ID+"_youtube.mp4")
	require.NoError(t, os.WriteFile(video, []byte("video"), 0o644))
	f.downloader.On("Download", mock.Anything, url, f.scratch, job.ID).Return(video, nil).Once()

	_, err = f.svc.Start(ctx, job.ID)
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, stored.Status)
	assert.Equal(t, video, stored.FilePath)
	assert.Equal(t, []string{video}, f.extractor.calls)
	assert.Contains(t, f.recorder.statuses, model.JobStatusDownloading)

	// the intermediate audio is removed once transcription finishes
	_, statErr := os.Stat(filepath.Join(f.scratch, job.ID+"_youtube_audio.wav"))
	assert.True(t, os.IsNotExist(statErr))
	f.downloader.AssertExpectations(t)
}

// audioCheckingGenerator records whether the extracted audio still exists
// when generation starts.
type audioCheckingGenerator struct {
	path        string
	audioExists bool
}

func (g *audioCheckingGenerator) Generate(ctx context.Context, transcript string, segments []model.Segment, pref GenerationPreference) (*model.ContentResult, error) {
	_, err := os.Stat(g.path)
	g.audioExists = err == nil
	return PlaceholderContent(), nil
}

func TestJobService_ExtractedAudioRemovedBeforeGeneration(t *testing.T) {
	gen := &audioCheckingGenerator{}
	f := newPipelineFixture(t, nil, gen)
	ctx := context.Background()

	video := filepath.Join(f.scratch, "talk.mp4")
	require.NoError(t, os.WriteFile(video, []byte("video"), 0o644))
	gen.path = filepath.Join(f.scratch, "talk_audio.wav")

	job, err := f.svc.Create(ctx, model.CreateJobParams{SourceType: model.SourceTypeFile, FilePath: video})
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, job.ID)
	require.NoError(t, err)

	status, err := f.svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, status.Status)
	assert.Equal(t, []string{video}, f.extractor.calls)
	assert.False(t, gen.audioExists, "extracted audio should be gone once transcription is done")

	_, statErr := os.Stat(video)
	assert.NoError(t, statErr, "source upload is kept")
}

func TestJobService_MissingFileSkipsNormalization(t *testing.T) {
	f := newPipelineFixture(t, nil, nil)
	ctx := context.Background()

	job, err := f.svc.Create(ctx, model.CreateJobParams{
		SourceType: model.SourceTypeFile,
		FilePath:   filepath.Join(f.scratch, "gone.mp4"),
	})
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, job.ID)
	require.NoError(t, err)

	status, err := f.svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, status.Status)
	assert.Empty(t, f.extractor.calls)
}

func TestJobService_ExtractionFailureIsRecorded(t *testing.T) {
	f := newPipelineFixture(t, nil, nil)
	f.extractor.err = errors.New("ffmpeg exited with status 1")
	ctx := context.Background()

	video := filepath.Join(f.scratch, "clip.mov")
	require.NoError(t, os.WriteFile(video, []byte("moov"), 0o644))
	job, err := f.svc.Create(ctx, model.CreateJobParams{SourceType: model.SourceTypeFile, FilePath: video})
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, job.ID)
	require.NoError(t, err)

	status, err := f.svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, status.Status)
	require.NotNil(t, status.Error)
	assert.Equal(t, "could not extract audio from clip.mov", *status.Error)
}

type failingGenerator struct{ err error }

func (g failingGenerator) Generate(context.Context, string, []model.Segment, GenerationPreference) (*model.ContentResult, error) {
	return nil, g.err
}

func TestJobService_GenerationFailureKeepsTranscript(t *testing.T) {
	genErr := stageError("generating", ErrGeneration, "anthropic generation failed: 401 invalid x-api-key\nrequest id abc", nil)
	f := newPipelineFixture(t, nil, failingGenerator{err: genErr})
	ctx := context.Background()

	audio := filepath.Join(f.scratch, "a.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))
	job, err := f.svc.Create(ctx, model.CreateJobParams{SourceType: model.SourceTypeFile, FilePath: audio})
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, job.ID)
	require.NoError(t, err)

	status, err := f.svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, status.Status)
	assert.NotNil(t, status.Transcript)
	assert.Nil(t, status.Results)
	require.NotNil(t, status.Error)
	assert.Equal(t, "anthropic generation failed: 401 invalid x-api-key", *status.Error)
}

type panickingTranscriber struct{}

func (panickingTranscriber) Transcribe(context.Context, string, string) (*model.Transcript, error) {
	panic("decoder exploded")
}

func TestJobService_PanicBecomesJobError(t *testing.T) {
	f := newPipelineFixture(t, panickingTranscriber{}, nil)
	ctx := context.Background()

	job, err := f.svc.Create(ctx, model.CreateJobParams{SourceType: model.SourceTypeFile, FilePath: "missing.wav"})
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, job.ID)
	require.NoError(t, err)

	status, err := f.svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, status.Status)
	require.NotNil(t, status.Error)
	assert.Contains(t, *status.Error, "decoder exploded")
}

func TestJobService_StartConflict(t *testing.T) {
	f := newPipelineFixture(t, nil, nil)
	held := &heldDispatcher{}
	f.svc.SetDispatcher(held)
	ctx := context.Background()

	job, err := f.svc.Create(ctx, model.CreateJobParams{SourceType: model.SourceTypeFile, FilePath: "x.mp3"})
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, job.ID)
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, job.ID)
	require.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "Job is already processing")
	assert.Len(t, held.jobs, 1)
}

func TestJobService_StartNotFound(t *testing.T) {
	f := newPipelineFixture(t, nil, nil)

	_, err := f.svc.Start(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.GetStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobService_ConcurrentStartsHaveOneWinner(t *testing.T) {
	f := newPipelineFixture(t, nil, nil)
	held := &heldDispatcher{}
	f.svc.SetDispatcher(held)
	ctx := context.Background()

	job, err := f.svc.Create(ctx, model.CreateJobParams{SourceType: model.SourceTypeFile, FilePath: "x.mp3"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Start(ctx, job.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, ErrConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 19, conflicts)
	assert.Len(t, held.jobs, 1)
}

func TestJobService_RestartAfterError(t *testing.T) {
	f := newPipelineFixture(t, nil, nil)
	ctx := context.Background()

	job, err := f.svc.Create(ctx, model.CreateJobParams{SourceType: model.SourceTypeYouTube, SourceURL: "bad"})
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, job.ID)
	require.NoError(t, err)

	status, _ := f.svc.GetStatus(ctx, job.ID)
	require.Equal(t, model.JobStatusError, status.Status)

	held := &heldDispatcher{}
	f.svc.SetDispatcher(held)
	_, err = f.svc.Start(ctx, job.ID)
	require.NoError(t, err)

	status, _ = f.svc.GetStatus(ctx, job.ID)
	assert.Equal(t, model.JobStatusProcessing, status.Status)
	assert.Nil(t, status.Error, "restart clears the previous error")
}

func TestJobService_DispatchFailureMarksError(t *testing.T) {
	f := newPipelineFixture(t, nil, nil)
	f.svc.SetDispatcher(&heldDispatcher{err: errors.New("queue unavailable")})
	ctx := context.Background()

	job, err := f.svc.Create(ctx, model.CreateJobParams{SourceType: model.SourceTypeFile, FilePath: "x.mp3"})
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, job.ID)
	require.Error(t, err)

	status, err := f.svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusError, status.Status)
	require.NotNil(t, status.Error)
	assert.Contains(t, *status.Error, "queue unavailable")
}

func TestJobService_GetStatusIsIdempotent(t *testing.T) {
	f := newPipelineFixture(t, nil, nil)
	ctx := context.Background()

	job, err := f.svc.Create(ctx, model.CreateJobParams{SourceType: model.SourceTypeFile, FilePath: "x.mp3"})
	require.NoError(t, err)

	first, err := f.svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	second, err := f.svc.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestJobService_ListNewestFirst(t *testing.T) {
	f := newPipelineFixture(t, nil, nil)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, model.CreateJobParams{SourceType: model.SourceTypeFile, FilePath: "a.mp3"})
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, model.CreateJobParams{SourceType: model.SourceTypeYouTube, SourceURL: "https://youtu.be/abc"})
	require.NoError(t, err)

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := []string{list[0].JobID, list[1].JobID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
	assert.False(t, list[0].CreatedAt.Before(list[1].CreatedAt))
}
