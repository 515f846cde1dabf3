package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/multiviral/api/internal/config"
)

// ContentSchema constrains Gemini output to the content bundle shape.
func ContentSchema() *genai.Schema {
	str := &genai.Schema{Type: genai.TypeString}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"viral_clips": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"start_time": {Type: genai.TypeString, Description: "MM:SS"},
						"end_time":   {Type: genai.TypeString, Description: "MM:SS"},
						"title":      str,
						"reason":     str,
					},
					Required: []string{"start_time", "end_time", "title", "reason"},
				},
			},
			"x_thread": {
				Type:        genai.TypeArray,
				Items:       str,
				Description: "thread posts for X",
			},
			"blog_article": {
				Type:        genai.TypeString,
				Description: "markdown blog article",
			},
		},
		Required: []string{"viral_clips", "x_thread", "blog_article"},
	}
}

// GeminiClient generates JSON content through the official Go SDK
type GeminiClient struct {
	apiKey          string
	model           string
	maxOutputTokens int32
	timeout         time.Duration
}

// NewGeminiClient creates a Gemini SDK client. The SDK client itself is
// built per call so an unconfigured key never fails startup.
func NewGeminiClient(cfg *config.GeminiConfig) *GeminiClient {
	return &GeminiClient{
		apiKey:          cfg.APIKey,
		model:           cfg.Model,
		maxOutputTokens: int32(cfg.MaxOutputTokens),
		timeout:         geminiTimeout(cfg.Timeout),
	}
}

// GenerateJSON asks for schema-constrained JSON and returns the raw text
func (c *GeminiClient) GenerateJSON(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sdk, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", err)
	}

	genCfg := &genai.GenerateContentConfig{
		MaxOutputTokens:  c.maxOutputTokens,
		ResponseMIMEType: "application/json",
		ResponseSchema:   ContentSchema(),
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr[int32](0),
		},
	}
	if system != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := sdk.Models.GenerateContent(ctx, c.model, genai.Text(user), genCfg)
	if err != nil {
		return "", fmt.Errorf("gemini SDK error: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini SDK returned empty text")
	}
	return text, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}

// GeminiRESTClient calls generateContent over plain HTTPS
type GeminiRESTClient struct {
	httpClient      *http.Client
	baseURL         string
	apiKey          string
	model           string
	maxOutputTokens int
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens  int           `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string        `json:"responseMimeType"`
	ResponseSchema   *genai.Schema `json:"responseSchema,omitempty"`
	ThinkingConfig   struct {
		ThinkingBudget int `json:"thinkingBudget"`
	} `json:"thinkingConfig"`
}

// GenerateContentRequest is the REST request body
type GenerateContentRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

// GenerateContentResponse is the subset of the REST response we read
type GenerateContentResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGeminiRESTClient creates a REST client sharing the SDK tier's settings
func NewGeminiRESTClient(cfg *config.GeminiConfig) *GeminiRESTClient {
	return &GeminiRESTClient{
		httpClient: &http.Client{
			Timeout: geminiTimeout(cfg.Timeout),
		},
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:          cfg.APIKey,
		model:           cfg.Model,
		maxOutputTokens: cfg.MaxOutputTokens,
	}
}

// GenerateJSON posts a schema-constrained generateContent call
func (c *GeminiRESTClient) GenerateJSON(ctx context.Context, system, user string) (string, error) {
	reqBody := GenerateContentRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: user}}},
		},
	}
	if system != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	reqBody.GenerationConfig.MaxOutputTokens = c.maxOutputTokens
	reqBody.GenerationConfig.ResponseMIMEType = "application/json"
	reqBody.GenerationConfig.ResponseSchema = ContentSchema()

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the URL carries the key, keep it out of logs
		return "", fmt.Errorf("failed to send request to gemini REST API")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var genResp GenerateContentResponse
	decodeErr := json.Unmarshal(respBody, &genResp)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && genResp.Error != nil && genResp.Error.Message != "" {
			return "", fmt.Errorf("gemini REST error (status %d): %s", resp.StatusCode, genResp.Error.Message)
		}
		return "", fmt.Errorf("gemini REST error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if decodeErr != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", decodeErr)
	}

	if len(genResp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	var sb strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty candidate content")
	}
	return sb.String(), nil
}

// IsConfigured returns true if the client has valid configuration
func (c *GeminiRESTClient) IsConfigured() bool {
	return c.apiKey != ""
}

func geminiTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(seconds) * time.Second
}
