package media

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var youtubePattern = regexp.MustCompile(`(?:https?://)?(?:www\.)?(?:youtube\.com/(?:watch\?v=|shorts/)|youtu\.be/)[\w-]+`)

const (
	convertedFormat = "bestaudio/best"
	rawAudioFormat  = "bestaudio[ext=m4a]/bestaudio[ext=webm]/bestaudio"
)

// IsYouTubeURL reports whether the string contains a recognised video link.
func IsYouTubeURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	return raw != "" && youtubePattern.MatchString(raw)
}

// YtDlp downloads audio tracks with the yt-dlp CLI.
type YtDlp struct {
	path     string
	runner   commandRunner
	mkdirAll func(path string, perm os.FileMode) error
	readDir  func(name string) ([]os.DirEntry, error)
}

func NewYtDlp(path string) *YtDlp {
	if path == "" {
		path = "yt-dlp"
	}
	return &YtDlp{
		path:     path,
		runner:   &execRunner{},
		mkdirAll: os.MkdirAll,
		readDir:  os.ReadDir,
	}
}

// Download fetches the audio track of a video into outputDir as
// <jobID>_youtube.<ext> and returns its path. Audio is converted to m4a;
// when ffmpeg is unavailable the best native audio stream is kept as-is.
func (y *YtDlp) Download(ctx context.Context, sourceURL, outputDir, jobID string) (string, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if !IsYouTubeURL(sourceURL) {
		return "", &DownloadError{URL: sourceURL, Message: "invalid YouTube URL", Err: ErrURLNotSupported}
	}

	if err := y.mkdirAll(outputDir, 0o755); err != nil {
		return "", &DownloadError{URL: sourceURL, Message: "cannot create scratch directory", Err: err}
	}

	prefix := jobID + "_youtube."
	template := filepath.Join(outputDir, jobID+"_youtube.%(ext)s")

	err := y.run(ctx, sourceURL, buildConvertArgs(template, sourceURL))
	if errors.Is(err, ErrFFmpegMissing) {
		log.Printf("[%s] ffmpeg not found, downloading raw audio", jobID)
		err = y.run(ctx, sourceURL, buildRawArgs(template, sourceURL))
	}
	if err != nil {
		return "", err
	}

	path, err := y.findDownloaded(outputDir, prefix)
	if err != nil {
		return "", &DownloadError{URL: sourceURL, Message: "downloaded file not found", Err: err}
	}
	return path, nil
}

func (y *YtDlp) run(ctx context.Context, sourceURL string, args []string) error {
	res, err := y.runner.Run(ctx, y.path, args...)
	if err != nil {
		return categorizeError(sourceURL, err, res.Stderr)
	}
	return nil
}

func (y *YtDlp) findDownloaded(dir, prefix string) (string, error) {
	entries, err := y.readDir(dir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		// skip partial downloads
		if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") {
			continue
		}
		return filepath.Join(dir, name), nil
	}
	return "", fmt.Errorf("%w: no file with prefix %s", ErrDownloadFailed, prefix)
}

func buildConvertArgs(template, sourceURL string) []string {
	return []string{
		"-f", convertedFormat,
		"-o", template,
		"--no-playlist",
		"--quiet",
		"--no-warnings",
		"-x",
		"--audio-format", "m4a",
		"--audio-quality", "128K",
		sourceURL,
	}
}

func buildRawArgs(template, sourceURL string) []string {
	return []string{
		"-f", rawAudioFormat,
		"-o", template,
		"--no-playlist",
		"--quiet",
		"--no-warnings",
		sourceURL,
	}
}
