package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner delegates command execution to a test callback.
type fakeRunner struct {
	calls []string
	run   func(ctx context.Context, name string, args ...string) (commandResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func hasArg(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIsYouTubeURL(t *testing.T) {
	cases := map[string]bool{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ": true,
		"https://youtube.com/shorts/abc_DEF-123":       true,
		"youtu.be/dQw4w9WgXcQ":                         true,
		"  https://youtu.be/xyz  ":                     true,
		"https://vimeo.com/12345":                      false,
		"https://www.youtube.com/channel/UC123":        false,
		"":                                             false,
	}
	for in, want := range cases {
		assert.Equal(t, want, IsYouTubeURL(in), in)
	}
}

func TestYtDlp_RejectsUnrecognisedURLWithoutSpawning(t *testing.T) {
	runner := &fakeRunner{}
	y := NewYtDlp("yt-dlp")
	y.runner = runner

	_, err := y.Download(context.Background(), "https://example.com/video", t.TempDir(), "job1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrURLNotSupported)
	assert.Empty(t, runner.calls)
}

func TestYtDlp_DownloadConvertsToM4A(t *testing.T) {
	dir := t.TempDir()
	var gotArgs []string
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			gotArgs = args
			tmpl := argValue(args, "-o")
			mustWriteFile(t, strings.Replace(tmpl, "%(ext)s", "m4a", 1), "audio")
			return commandResult{}, nil
		},
	}
	y := NewYtDlp("yt-dlp")
	y.runner = runner

	path, err := y.Download(context.Background(), "https://youtu.be/abc", dir, "job1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "job1_youtube.m4a"), path)
	assert.Equal(t, filepath.Join(dir, "job1_youtube.%(ext)s"), argValue(gotArgs, "-o"))
	assert.Equal(t, "m4a", argValue(gotArgs, "--audio-format"))
	assert.True(t, hasArg(gotArgs, "-x"))
}

func TestYtDlp_FallsBackWhenFFmpegMissing(t *testing.T) {
	dir := t.TempDir()
	call := 0
	var secondArgs []string
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			call++
			if call == 1 {
				return commandResult{ExitCode: 1, Stderr: "ERROR: Postprocessing: ffprobe and ffmpeg not found"}, errors.New("exit status 1")
			}
			secondArgs = args
			tmpl := argValue(args, "-o")
			mustWriteFile(t, strings.Replace(tmpl, "%(ext)s", "webm", 1), "audio")
			return commandResult{}, nil
		},
	}
	y := NewYtDlp("yt-dlp")
	y.runner = runner

	path, err := y.Download(context.Background(), "https://www.youtube.com/watch?v=abc", dir, "job2")
	require.NoError(t, err)
	assert.Equal(t, 2, call)
	assert.Equal(t, filepath.Join(dir, "job2_youtube.webm"), path)
	assert.Equal(t, rawAudioFormat, argValue(secondArgs, "-f"))
	assert.False(t, hasArg(secondArgs, "-x"))
}

func TestYtDlp_CategorisesFailure(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			return commandResult{ExitCode: 1, Stderr: "ERROR: [youtube] abc: Private video"}, errors.New("exit status 1")
		},
	}
	y := NewYtDlp("yt-dlp")
	y.runner = runner

	_, err := y.Download(context.Background(), "https://youtu.be/abc", t.TempDir(), "job3")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVideoPrivate)

	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, "https://youtu.be/abc", dlErr.URL)
}

func TestYtDlp_MissingOutputFile(t *testing.T) {
	y := NewYtDlp("yt-dlp")
	y.runner = &fakeRunner{}

	_, err := y.Download(context.Background(), "https://youtu.be/abc", t.TempDir(), "job4")
	assert.ErrorIs(t, err, ErrDownloadFailed)
}

func TestFFmpeg_ExtractAudioArgs(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "clip_audio.wav")
	var gotArgs []string
	f := NewFFmpeg("ffmpeg", "ffprobe")
	f.runner = &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			gotArgs = args
			mustWriteFile(t, args[len(args)-1], "wav")
			return commandResult{}, nil
		},
	}

	require.NoError(t, f.ExtractAudio(context.Background(), "in.mp4", out))
	assert.Equal(t, buildFFmpegArgs("in.mp4", out), gotArgs)
	assert.Equal(t, "16000", argValue(gotArgs, "-ar"))
	assert.Equal(t, "1", argValue(gotArgs, "-ac"))
	assert.Equal(t, "pcm_s16le", argValue(gotArgs, "-c:a"))
}

func TestFFmpeg_ExtractAudioFailure(t *testing.T) {
	f := NewFFmpeg("ffmpeg", "ffprobe")
	f.runner = &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			return commandResult{ExitCode: 1, Stderr: "line one\nInvalid data found when processing input"}, errors.New("exit status 1")
		},
	}

	err := f.ExtractAudio(context.Background(), "bad.mp4", filepath.Join(t.TempDir(), "x.wav"))
	require.Error(t, err)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestFFmpeg_Duration(t *testing.T) {
	f := NewFFmpeg("ffmpeg", "ffprobe")
	f.runner = &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			assert.Equal(t, "ffprobe", name)
			return commandResult{Stdout: "1234.560000\n"}, nil
		},
	}

	d, err := f.Duration(context.Background(), "a.wav")
	require.NoError(t, err)
	assert.InDelta(t, 1234.56, d, 0.0001)
}

func TestFFmpeg_ExportChunkArgs(t *testing.T) {
	var gotArgs []string
	f := NewFFmpeg("ffmpeg", "ffprobe")
	f.runner = &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			gotArgs = args
			return commandResult{}, nil
		},
	}

	require.NoError(t, f.ExportChunk(context.Background(), "a.wav", "a.wav_chunk1.wav", 600, 600))
	assert.Equal(t, "600.000", argValue(gotArgs, "-ss"))
	assert.Equal(t, "600.000", argValue(gotArgs, "-t"))
	assert.Equal(t, "a.wav_chunk1.wav", gotArgs[len(gotArgs)-1])
}

func TestWhisperCPP_IsConfigured(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "ggml-small.bin")
	vadPath := filepath.Join(dir, "ggml-silero.bin")

	w := NewWhisperCPP(WhisperConfig{BinaryPath: "whisper-cli"}, NewFFmpeg("", ""))
	w.lookPath = func(string) (string, error) { return "/usr/bin/whisper-cli", nil }
	assert.False(t, w.IsConfigured(), "no model path")

	w.cfg.ModelPath = modelPath
	assert.False(t, w.IsConfigured(), "model missing on disk")

	mustWriteFile(t, modelPath, "model")
	assert.False(t, w.IsConfigured(), "no vad model path")

	w.cfg.VADModelPath = vadPath
	assert.False(t, w.IsConfigured(), "vad model missing on disk")

	mustWriteFile(t, vadPath, "vad")
	assert.True(t, w.IsConfigured())

	w.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	assert.False(t, w.IsConfigured(), "binary missing")
}

func TestWhisperCPP_Transcribe(t *testing.T) {
	var whisperArgs []string
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			switch name {
			case "ffmpeg":
				mustWriteFile(t, args[len(args)-1], "wav")
			case "whisper-cli":
				whisperArgs = args
				mustWriteFile(t, argValue(args, "-of")+".json", `{"transcription":[
					{"offsets":{"from":0,"to":1500},"text":" Hello there."},
					{"offsets":{"from":1500,"to":2000},"text":"   "},
					{"offsets":{"from":2000,"to":4250},"text":" General Kenobi."}
				]}`)
			}
			return commandResult{}, nil
		},
	}
	ff := NewFFmpeg("ffmpeg", "ffprobe")
	ff.runner = runner
	w := NewWhisperCPP(WhisperConfig{
		BinaryPath:    "whisper-cli",
		ModelPath:     "model.bin",
		VADModelPath:  "vad.bin",
		InitialPrompt: "AI, YouTube",
		Threads:       2,
	}, ff)
	w.runner = runner

	tr, err := w.Transcribe(context.Background(), "input.m4a", "auto")
	require.NoError(t, err)

	assert.Equal(t, "Hello there. General Kenobi.", tr.Text)
	require.Len(t, tr.Segments, 2)
	assert.InDelta(t, 2.0, tr.Segments[1].Start, 0.0001)
	assert.InDelta(t, 4.25, tr.Segments[1].End, 0.0001)

	assert.Equal(t, "auto", argValue(whisperArgs, "-l"))
	assert.Equal(t, "AI, YouTube", argValue(whisperArgs, "--prompt"))
	assert.Equal(t, "vad.bin", argValue(whisperArgs, "-vm"))
	assert.True(t, hasArg(whisperArgs, "--vad"))
	assert.Equal(t, "2", argValue(whisperArgs, "-t"))
}

func TestWhisperCPP_LanguageConstraint(t *testing.T) {
	w := NewWhisperCPP(WhisperConfig{ModelPath: "m.bin", VADModelPath: "vad.bin"}, NewFFmpeg("", ""))
	args := w.buildArgs("a.wav", "out", "ja")
	assert.Equal(t, "ja", argValue(args, "-l"))
	assert.True(t, hasArg(args, "--vad"))
	assert.Equal(t, "vad.bin", argValue(args, "-vm"))
}
