package media

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FFmpeg wraps the ffmpeg and ffprobe CLIs.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	runner      commandRunner
	stat        func(name string) (os.FileInfo, error)
}

func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      &execRunner{},
		stat:        os.Stat,
	}
}

// ExtractAudio writes a mono 16 kHz PCM WAV rendition of inputPath to outPath.
func (f *FFmpeg) ExtractAudio(ctx context.Context, inputPath, outPath string) error {
	args := buildFFmpegArgs(inputPath, outPath)
	if res, err := f.runner.Run(ctx, f.ffmpegPath, args...); err != nil {
		return &ToolError{Tool: "ffmpeg", ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}
	if _, err := f.stat(outPath); err != nil {
		return fmt.Errorf("ffmpeg completed but output file is missing: %w", err)
	}
	return nil
}

// ExportChunk writes the [start, start+duration) window of inputPath to outPath.
func (f *FFmpeg) ExportChunk(ctx context.Context, inputPath, outPath string, start, duration float64) error {
	args := buildChunkArgs(inputPath, outPath, start, duration)
	if res, err := f.runner.Run(ctx, f.ffmpegPath, args...); err != nil {
		return &ToolError{Tool: "ffmpeg", ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}
	return nil
}

// Duration returns the media duration in seconds.
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	res, err := f.runner.Run(ctx, f.ffprobePath, args...)
	if err != nil {
		return 0, &ToolError{Tool: "ffprobe", ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}
	value := strings.TrimSpace(res.Stdout)
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe duration %q: %w", value, err)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("media has no duration: %s", path)
	}
	return seconds, nil
}

// buildFFmpegArgs builds CLI args for mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

func buildChunkArgs(inputPath, outPath string, start, duration float64) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
