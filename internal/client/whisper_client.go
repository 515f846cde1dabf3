package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/multiviral/api/internal/config"
	"github.com/multiviral/api/internal/model"
)

// WhisperClient handles communication with the hosted Whisper transcription API
type WhisperClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// TranscriptionResponse is the verbose_json response body
type TranscriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// NewWhisperClient creates a new Whisper API client
func NewWhisperClient(cfg *config.WhisperAPIConfig) *WhisperClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &WhisperClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// Transcribe uploads one audio file and returns its segment-level transcript.
// An empty or "auto" language leaves detection to the provider.
func (c *WhisperClient) Transcribe(ctx context.Context, audioPath, language string) (*model.Transcript, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy audio: %w", err)
	}

	fields := map[string]string{
		"model":                     c.model,
		"response_format":           "verbose_json",
		"timestamp_granularities[]": "segment",
	}
	if lang := strings.TrimSpace(language); lang != "" && !strings.EqualFold(lang, model.LanguageAuto) {
		fields["language"] = lang
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result TranscriptionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	transcript := &model.Transcript{
		Text:     result.Text,
		Segments: make([]model.Segment, 0, len(result.Segments)),
	}
	for _, seg := range result.Segments {
		transcript.Segments = append(transcript.Segments, model.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}
	return transcript, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *WhisperClient) IsConfigured() bool {
	return c.apiKey != ""
}
