package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"github.com/multiviral/api/internal/model"
)

const (
	// DefaultMaxUploadBytes is the hosted Whisper request ceiling.
	DefaultMaxUploadBytes int64 = 25 * 1024 * 1024
	// DefaultChunkSeconds is the window used to split oversized audio.
	DefaultChunkSeconds = 600

	transcriptionCallTimeout = 10 * time.Minute
	probeTimeout             = 10 * time.Second
	// minChunkSeconds is the shortest tail window worth its own request;
	// anything shorter is folded into the previous window.
	minChunkSeconds = 1.0
)

// SpeechToText is a transcription backend.
type SpeechToText interface {
	IsConfigured() bool
	Transcribe(ctx context.Context, audioPath, language string) (*model.Transcript, error)
}

// AudioChunker measures audio and cuts time windows out of it.
type AudioChunker interface {
	Duration(ctx context.Context, path string) (float64, error)
	ExportChunk(ctx context.Context, inputPath, outPath string, start, duration float64) error
}

// TranscriptionTier is one step of the transcription cascade.
type TranscriptionTier interface {
	Name() string
	Available(audioPath string) bool
	// Authoritative tiers end the cascade: their failure is fatal.
	Authoritative() bool
	Transcribe(ctx context.Context, audioPath, language string) (*model.Transcript, error)
}

// TranscriptionService runs the transcription cascade in order.
type TranscriptionService struct {
	tiers []TranscriptionTier
}

func NewTranscriptionService(tiers ...TranscriptionTier) *TranscriptionService {
	return &TranscriptionService{tiers: tiers}
}

// Transcribe returns the first successful tier result. An empty or "auto"
// language leaves detection to the provider.
func (s *TranscriptionService) Transcribe(ctx context.Context, audioPath, language string) (*model.Transcript, error) {
	for _, tier := range s.tiers {
		if !tier.Available(audioPath) {
			continue
		}

		transcript, err := tier.Transcribe(ctx, audioPath, language)
		if err == nil {
			return transcript, nil
		}
		if tier.Authoritative() {
			return nil, stageError("transcribing", ErrTranscription, tier.Name()+" transcription failed: "+err.Error(), err)
		}
		log.Printf("%s transcription failed for %s, trying next tier: %v", tier.Name(), audioPath, err)
	}
	return nil, stageError("transcribing", ErrTranscription, "no transcription provider available", nil)
}

// Tiers lists tier names with their availability, for health reporting.
func (s *TranscriptionService) Tiers() map[string]bool {
	out := make(map[string]bool, len(s.tiers))
	for _, t := range s.tiers {
		out[t.Name()] = t.Available("")
	}
	return out
}

// WhisperAPITier transcribes with the hosted API, splitting files above the
// request ceiling into fixed windows.
type WhisperAPITier struct {
	client       SpeechToText
	chunker      AudioChunker
	maxBytes     int64
	chunkSeconds float64
}

func NewWhisperAPITier(client SpeechToText, chunker AudioChunker, maxBytes int64, chunkSeconds int) *WhisperAPITier {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if chunkSeconds <= 0 {
		chunkSeconds = DefaultChunkSeconds
	}
	return &WhisperAPITier{
		client:       client,
		chunker:      chunker,
		maxBytes:     maxBytes,
		chunkSeconds: float64(chunkSeconds),
	}
}

func (t *WhisperAPITier) Name() string          { return "whisper-api" }
func (t *WhisperAPITier) Authoritative() bool   { return true }
func (t *WhisperAPITier) Available(string) bool { return t.client.IsConfigured() }

func (t *WhisperAPITier) Transcribe(ctx context.Context, audioPath, language string) (*model.Transcript, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("cannot access audio: %w", err)
	}

	if info.Size() <= t.maxBytes {
		log.Printf("Whisper API: transcribing %s (%.1f MB)", audioPath, float64(info.Size())/1e6)
		return t.call(ctx, audioPath, language)
	}

	log.Printf("File too large (%.1f MB), splitting into chunks", float64(info.Size())/1e6)
	return t.transcribeChunked(ctx, audioPath, language)
}

func (t *WhisperAPITier) call(ctx context.Context, audioPath, language string) (*model.Transcript, error) {
	callCtx, cancel := context.WithTimeout(ctx, transcriptionCallTimeout)
	defer cancel()
	return t.client.Transcribe(callCtx, audioPath, language)
}

// transcribeChunked submits windows sequentially. Segment offsets are
// shifted by the cumulative duration of earlier windows and each chunk
// file is removed whatever the outcome.
func (t *WhisperAPITier) transcribeChunked(ctx context.Context, audioPath, language string) (*model.Transcript, error) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	total, err := t.chunker.Duration(probeCtx, audioPath)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("cannot measure audio duration: %w", err)
	}

	windows := chunkWindows(total, t.chunkSeconds)
	numChunks := len(windows)
	var text strings.Builder
	segments := make([]model.Segment, 0)
	offset := 0.0

	for i, w := range windows {
		start, length := w[0], w[1]
		chunkPath := fmt.Sprintf("%s_chunk%d.wav", audioPath, i)

		log.Printf("Transcribing chunk %d/%d (%.0fs - %.0fs)", i+1, numChunks, start, start+length)
		part, err := t.transcribeChunk(ctx, audioPath, chunkPath, start, length, language)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, numChunks, err)
		}

		text.WriteString(part.Text)
		for _, seg := range part.Segments {
			segments = append(segments, model.Segment{
				Start: seg.Start + offset,
				End:   seg.End + offset,
				Text:  seg.Text,
			})
		}
		offset += length
	}

	return &model.Transcript{Text: text.String(), Segments: segments}, nil
}

// chunkWindows splits total seconds into [start, length] windows of at most
// size seconds. A tail shorter than minChunkSeconds extends the last window.
func chunkWindows(total, size float64) [][2]float64 {
	windows := make([][2]float64, 0, int(math.Ceil(total/size)))
	for start := 0.0; start < total; start += size {
		length := math.Min(size, total-start)
		if length < minChunkSeconds && len(windows) > 0 {
			windows[len(windows)-1][1] += length
			break
		}
		windows = append(windows, [2]float64{start, length})
	}
	return windows
}

func (t *WhisperAPITier) transcribeChunk(ctx context.Context, audioPath, chunkPath string, start, length float64, language string) (*model.Transcript, error) {
	defer os.Remove(chunkPath)

	if err := t.chunker.ExportChunk(ctx, audioPath, chunkPath, start, length); err != nil {
		return nil, fmt.Errorf("export failed: %w", err)
	}
	return t.call(ctx, chunkPath, language)
}

// LocalWhisperTier runs an offline model. It needs the input on disk, and
// its runtime failure degrades to the next tier.
type LocalWhisperTier struct {
	engine SpeechToText
}

func NewLocalWhisperTier(engine SpeechToText) *LocalWhisperTier {
	return &LocalWhisperTier{engine: engine}
}

func (t *LocalWhisperTier) Name() string        { return "local-whisper" }
func (t *LocalWhisperTier) Authoritative() bool { return false }

func (t *LocalWhisperTier) Available(audioPath string) bool {
	if !t.engine.IsConfigured() {
		return false
	}
	// health reporting asks without a path
	return audioPath == "" || fileUsable(audioPath)
}

func (t *LocalWhisperTier) Transcribe(ctx context.Context, audioPath, language string) (*model.Transcript, error) {
	log.Printf("Local Whisper: transcribing %s", audioPath)
	callCtx, cancel := context.WithTimeout(ctx, transcriptionCallTimeout)
	defer cancel()
	return t.engine.Transcribe(callCtx, audioPath, language)
}

// PlaceholderTranscriptionTier returns a fixed transcript and never fails.
type PlaceholderTranscriptionTier struct{}

func (PlaceholderTranscriptionTier) Name() string          { return "placeholder" }
func (PlaceholderTranscriptionTier) Authoritative() bool   { return false }
func (PlaceholderTranscriptionTier) Available(string) bool { return true }

func (PlaceholderTranscriptionTier) Transcribe(ctx context.Context, audioPath, language string) (*model.Transcript, error) {
	log.Printf("Placeholder transcription for %s (no provider configured)", audioPath)
	return PlaceholderTranscript(), nil
}

var placeholderSegments = []model.Segment{
	{Start: 0, End: 15, Text: "Hi everyone, today I want to talk about making content with AI."},
	{Start: 15, End: 35, Text: "First, let me explain why AI matters so much for creators."},
	{Start: 35, End: 55, Text: "With AI you can turn a single video into many social posts automatically. That makes producing content at scale possible."},
	{Start: 55, End: 75, Text: "Next, let's walk through the actual workflow."},
	{Start: 75, End: 95, Text: "You just upload a video and the transcript is generated for you."},
	{Start: 95, End: 115, Text: "Then the AI analyses it and finds the moments most likely to go viral."},
	{Start: 115, End: 135, Text: "Finally, I'll show you a live demo."},
	{Start: 135, End: 150, Text: "With this tool, a creator's productivity can grow tenfold."},
}

// PlaceholderTranscript is the deterministic developer-mode transcript.
func PlaceholderTranscript() *model.Transcript {
	segments := make([]model.Segment, len(placeholderSegments))
	copy(segments, placeholderSegments)
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	return &model.Transcript{
		Text:     strings.Join(texts, " "),
		Segments: segments,
	}
}
