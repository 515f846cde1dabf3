package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/multiviral/api/internal/model"
)

// WhisperConfig describes a local whisper.cpp installation.
type WhisperConfig struct {
	BinaryPath    string
	ModelPath     string
	VADModelPath  string
	InitialPrompt string
	Threads       int
}

// WhisperCPP transcribes audio offline with the whisper.cpp CLI.
type WhisperCPP struct {
	cfg       WhisperConfig
	ffmpeg    *FFmpeg
	runner    commandRunner
	lookPath  func(file string) (string, error)
	stat      func(name string) (os.FileInfo, error)
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	readFile  func(name string) ([]byte, error)
}

func NewWhisperCPP(cfg WhisperConfig, ffmpeg *FFmpeg) *WhisperCPP {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "whisper-cli"
	}
	return &WhisperCPP{
		cfg:       cfg,
		ffmpeg:    ffmpeg,
		runner:    &execRunner{},
		lookPath:  exec.LookPath,
		stat:      os.Stat,
		mkdirTemp: os.MkdirTemp,
		removeAll: os.RemoveAll,
		readFile:  os.ReadFile,
	}
}

// IsConfigured reports whether the binary, the model and the VAD model are
// all present. Transcription never runs without voice-activity filtering.
func (w *WhisperCPP) IsConfigured() bool {
	if strings.TrimSpace(w.cfg.ModelPath) == "" || strings.TrimSpace(w.cfg.VADModelPath) == "" {
		return false
	}
	if _, err := w.lookPath(w.cfg.BinaryPath); err != nil {
		return false
	}
	if _, err := w.stat(w.cfg.ModelPath); err != nil {
		return false
	}
	_, err := w.stat(w.cfg.VADModelPath)
	return err == nil
}

// whisperJSON is the subset of whisper.cpp -oj output we read.
type whisperJSON struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// Transcribe converts audioPath to 16 kHz WAV in a temp workspace, runs
// whisper.cpp with VAD and the vocabulary prompt, and reads back segments.
// Empty segments are dropped and text is joined with spaces.
func (w *WhisperCPP) Transcribe(ctx context.Context, audioPath, language string) (*model.Transcript, error) {
	tempDir, err := w.mkdirTemp("", "whisper-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary workspace: %w", err)
	}
	defer w.removeAll(tempDir)

	wavPath := filepath.Join(tempDir, "input-16k-mono.wav")
	if err := w.ffmpeg.ExtractAudio(ctx, audioPath, wavPath); err != nil {
		return nil, fmt.Errorf("whisper preprocessing: %w", err)
	}

	outBase := filepath.Join(tempDir, "transcript")
	args := w.buildArgs(wavPath, outBase, language)
	res, err := w.runner.Run(ctx, w.cfg.BinaryPath, args...)
	if err != nil {
		return nil, &ToolError{Tool: "whisper.cpp", ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}

	data, err := w.readFile(outBase + ".json")
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp completed but transcript json is missing: %w", err)
	}
	return parseWhisperJSON(data)
}

func (w *WhisperCPP) buildArgs(audioPath, outBase, language string) []string {
	args := []string{
		"-m", w.cfg.ModelPath,
		"-f", audioPath,
		"-of", outBase,
		"-oj",
		"-np",
	}
	if w.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(w.cfg.Threads))
	}
	// whisper.cpp defaults to English, so auto detection must be explicit
	lang := normalizeLanguage(language)
	if lang == "" {
		lang = "auto"
	}
	args = append(args, "-l", lang)
	if prompt := strings.TrimSpace(w.cfg.InitialPrompt); prompt != "" {
		args = append(args, "--prompt", prompt)
	}
	return append(args, "--vad", "-vm", w.cfg.VADModelPath)
}

func parseWhisperJSON(data []byte) (*model.Transcript, error) {
	var out whisperJSON
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse whisper.cpp output: %w", err)
	}

	segments := make([]model.Segment, 0, len(out.Transcription))
	texts := make([]string, 0, len(out.Transcription))
	for _, seg := range out.Transcription {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, model.Segment{
			Start: float64(seg.Offsets.From) / 1000,
			End:   float64(seg.Offsets.To) / 1000,
			Text:  text,
		})
		texts = append(texts, text)
	}

	return &model.Transcript{
		Text:     strings.Join(texts, " "),
		Segments: segments,
	}, nil
}
