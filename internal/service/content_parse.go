package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/multiviral/api/internal/model"
)

var (
	fenceOpen  = regexp.MustCompile("^```(?:json)?\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")
)

var requiredContentFields = []string{"viral_clips", "x_thread", "blog_article"}

// ParseContent recovers a content bundle from raw provider text. It strips
// Markdown fences, tries a direct decode, then scans from the first '{' to
// each '}' right to left and accepts the first substring that decodes with
// all three fields present.
func ParseContent(raw string) (*model.ContentResult, error) {
	cleaned := fenceOpen.ReplaceAllString(strings.TrimSpace(raw), "")
	cleaned = fenceClose.ReplaceAllString(cleaned, "")

	if result, ok := decodeContent(cleaned); ok {
		return result, nil
	}

	start := strings.Index(cleaned, "{")
	if start >= 0 {
		for end := len(cleaned) - 1; end > start; end-- {
			if cleaned[end] != '}' {
				continue
			}
			if result, ok := decodeContent(cleaned[start : end+1]); ok {
				return result, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: no valid content object in %d chars", ErrParse, len(raw))
}

func decodeContent(s string) (*model.ContentResult, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return nil, false
	}
	for _, f := range requiredContentFields {
		if _, ok := fields[f]; !ok {
			return nil, false
		}
	}

	var result model.ContentResult
	if err := json.Unmarshal([]byte(s), &result); err != nil {
		return nil, false
	}
	if result.ViralClips == nil {
		result.ViralClips = []model.Clip{}
	}
	if result.XThread == nil {
		result.XThread = []string{}
	}
	return &result, true
}
