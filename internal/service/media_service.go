package service

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/multiviral/api/internal/media"
	"github.com/multiviral/api/internal/model"
)

// audioExtensions are passed to the transcriber without conversion.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".ogg":  true,
	".flac": true,
	".webm": true,
	".aac":  true,
}

// VideoExtensions are accepted by the upload endpoint alongside audio.
var VideoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".avi": true,
	".mkv": true,
	".wmv": true,
}

// IsSupportedUpload reports whether a filename has an accepted media extension.
func IsSupportedUpload(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return audioExtensions[ext] || VideoExtensions[ext]
}

// Downloader fetches a remote source into the scratch directory.
type Downloader interface {
	Download(ctx context.Context, sourceURL, outputDir, jobID string) (string, error)
}

// AudioExtractor renders any media file to mono 16 kHz WAV.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, inputPath, outPath string) error
}

// MediaService acquires sources and normalises them to audio.
type MediaService struct {
	downloader Downloader
	extractor  AudioExtractor
	scratchDir string
}

func NewMediaService(downloader Downloader, extractor AudioExtractor, scratchDir string) *MediaService {
	return &MediaService{
		downloader: downloader,
		extractor:  extractor,
		scratchDir: scratchDir,
	}
}

// NeedsDownload reports whether Acquire will fetch a remote source.
func (s *MediaService) NeedsDownload(job *model.Job) bool {
	if fileUsable(job.FilePath) {
		return false
	}
	return job.SourceType == model.SourceTypeYouTube || job.SourceURL != ""
}

// Acquire returns a local path for the job's media. A usable local file is
// returned as-is; a recognised video URL is downloaded. A file job whose
// file is gone yields its nominal path so later stages can degrade.
func (s *MediaService) Acquire(ctx context.Context, job *model.Job) (string, error) {
	if !s.NeedsDownload(job) {
		return job.FilePath, nil
	}

	sourceURL := strings.TrimSpace(job.SourceURL)
	if sourceURL == "" {
		return "", stageError("downloading", ErrAcquisition, "YouTube URL is not set", nil)
	}
	if !media.IsYouTubeURL(sourceURL) {
		return "", stageError("downloading", ErrAcquisition, "invalid YouTube URL: "+sourceURL, nil)
	}

	log.Printf("[%s] Downloading from YouTube: %s", job.ID, truncate(sourceURL, 60))
	path, err := s.downloader.Download(ctx, sourceURL, s.scratchDir, job.ID)
	if err != nil {
		msg := "YouTube download failed"
		var dlErr *media.DownloadError
		if errors.As(err, &dlErr) {
			msg += ": " + dlErr.Message
		}
		return "", stageError("downloading", ErrAcquisition, msg, err)
	}
	return path, nil
}

// Normalize returns an audio path for inputPath. Audio files pass through;
// anything else is rendered to <scratch>/<base>_audio.wav.
func (s *MediaService) Normalize(ctx context.Context, inputPath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(inputPath))
	if audioExtensions[ext] {
		return inputPath, nil
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outPath := filepath.Join(s.scratchDir, base+"_audio.wav")
	if err := os.MkdirAll(s.scratchDir, 0o755); err != nil {
		return "", stageError("transcribing", ErrExtraction, "cannot create scratch directory", err)
	}
	if err := s.extractor.ExtractAudio(ctx, inputPath, outPath); err != nil {
		return "", stageError("transcribing", ErrExtraction, "could not extract audio from "+filepath.Base(inputPath), err)
	}
	return outPath, nil
}

func fileUsable(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
