package media

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrURLNotSupported indicates the URL is not a recognised video link
	ErrURLNotSupported = errors.New("url not supported")

	// ErrVideoUnavailable indicates the video is not available
	ErrVideoUnavailable = errors.New("video unavailable")

	// ErrVideoPrivate indicates the video is private
	ErrVideoPrivate = errors.New("video is private")

	// ErrAgeRestricted indicates the content is age-restricted
	ErrAgeRestricted = errors.New("content is age-restricted")

	// ErrNetworkError indicates a network-related error
	ErrNetworkError = errors.New("network error")

	// ErrFFmpegMissing indicates yt-dlp could not post-process for lack of ffmpeg
	ErrFFmpegMissing = errors.New("ffmpeg not available")

	// ErrDownloadFailed indicates the download failed
	ErrDownloadFailed = errors.New("download failed")
)

// DownloadError wraps a download failure with the source URL.
type DownloadError struct {
	URL     string
	Message string
	Err     error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// categorizeError maps yt-dlp stderr onto a typed download error.
func categorizeError(sourceURL string, err error, stderr string) error {
	stderrLower := strings.ToLower(stderr)

	switch {
	case strings.Contains(stderrLower, "ffmpeg"):
		return &DownloadError{URL: sourceURL, Message: "ffmpeg not available for post-processing", Err: ErrFFmpegMissing}

	case strings.Contains(stderrLower, "video unavailable") ||
		strings.Contains(stderrLower, "this video is unavailable"):
		return &DownloadError{URL: sourceURL, Message: "video unavailable", Err: ErrVideoUnavailable}

	case strings.Contains(stderrLower, "private video") ||
		strings.Contains(stderrLower, "is private"):
		return &DownloadError{URL: sourceURL, Message: "video is private", Err: ErrVideoPrivate}

	case strings.Contains(stderrLower, "age-restricted") ||
		strings.Contains(stderrLower, "sign in to confirm your age"):
		return &DownloadError{URL: sourceURL, Message: "content is age-restricted", Err: ErrAgeRestricted}

	case strings.Contains(stderrLower, "unable to download") ||
		strings.Contains(stderrLower, "connection") ||
		strings.Contains(stderrLower, "network"):
		return &DownloadError{URL: sourceURL, Message: "network error", Err: ErrNetworkError}

	case strings.Contains(stderrLower, "unsupported url") ||
		strings.Contains(stderrLower, "no suitable extractor"):
		return &DownloadError{URL: sourceURL, Message: "url not supported", Err: ErrURLNotSupported}

	default:
		detail := lastLine(stderr)
		if detail == "" && err != nil {
			detail = err.Error()
		}
		return &DownloadError{URL: sourceURL, Message: "download failed", Err: fmt.Errorf("%w: %s", ErrDownloadFailed, detail)}
	}
}
