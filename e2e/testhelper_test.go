package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/multiviral/api/internal/handler"
	"github.com/multiviral/api/internal/media"
	"github.com/multiviral/api/internal/middleware"
	"github.com/multiviral/api/internal/service"
	"github.com/multiviral/api/internal/store"
	"github.com/multiviral/api/internal/worker"
)

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	pool    *worker.LocalPool
	scratch string
}

// setupApp creates a Fiber app wired like main.go with no providers
// configured, so every job runs through the placeholder tiers.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	scratch := t.TempDir()
	jobStore := store.NewMemoryStore()

	// binaries that do not exist: nothing is ever spawned for audio input
	ffmpeg := media.NewFFmpeg("ffmpeg-missing-for-tests", "ffprobe-missing-for-tests")
	ytdlp := media.NewYtDlp("yt-dlp-missing-for-tests")

	transcription := service.NewTranscriptionService(service.PlaceholderTranscriptionTier{})
	generation := service.NewContentService(service.NewPromptBuilder("ja"), service.PlaceholderContentTier{})

	jobService := service.NewJobService(jobStore, service.NewMediaService(ytdlp, ffmpeg, scratch), transcription, generation)
	pool := worker.NewLocalPool(jobService, 2)
	jobService.SetDispatcher(pool)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pool.Shutdown(ctx)
	})

	validate := validator.New()
	uploadHandler := handler.NewUploadHandler(service.NewUploadService(jobService, scratch), validate)
	jobHandler := handler.NewJobHandler(jobService, service.NewExportService(nil, jobService))
	healthHandler := handler.NewHealthHandler(transcription, generation, map[string]bool{"redis": false, "r2": false})

	// nil redis disables rate limiting
	rateLimiter := middleware.NewRateLimiter(nil)

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.Health)

	api := app.Group("/api")
	uploadLimit := rateLimiter.UploadLimit(10000)
	api.Post("/upload", uploadLimit, uploadHandler.File)
	api.Post("/upload/youtube", uploadLimit, uploadHandler.YouTube)
	api.Post("/generate/:jobId", rateLimiter.GenerateLimit(10000), jobHandler.Generate)
	api.Get("/jobs", jobHandler.List)
	api.Get("/jobs/:jobId", jobHandler.Status)
	api.Post("/jobs/:jobId/export", jobHandler.Export)

	return &testApp{app: app, pool: pool, scratch: scratch}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doUpload posts a multipart media file.
func doUpload(t *testing.T, app *fiber.App, path, filename string, content []byte) (*http.Response, error) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return app.Test(req, -1)
}

// waitForStatus polls the status endpoint until the job is terminal.
func waitForStatus(t *testing.T, app *fiber.App, jobID string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := doRequest(app, http.MethodGet, "/api/jobs/"+jobID, "", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		body := parseJSON(t, resp)
		if s := body["status"]; s == "completed" || s == "error" {
			return body
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish in time", jobID)
	return nil
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
