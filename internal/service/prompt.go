package service

import (
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/multiviral/api/internal/model"
)

const systemPrompt = `You are an expert in social media content strategy.
You receive a video transcript with timestamps and produce three artifacts.

1. viral_clips: 3 to 5 moments in the video most likely to go viral as short clips
   - Use the transcript timestamps to give start_time / end_time in MM:SS format
   - Give each clip a catchy title and the reason it would spread

2. x_thread: a thread for X (formerly Twitter), 5 to 10 posts
   - Open the first post with a strong hook
   - Put a call to action in the last post
   - Keep every post within 280 characters

3. blog_article: an SEO-friendly blog article of about 800 words in Markdown
   - Use h1 and h2 headings
   - Keep it concise

Follow the output language instruction given at the end.

Reply with valid JSON only, compact, with no extra whitespace.
Do not wrap the JSON in a Markdown code block.`

const generationTemplate = `Analyse the following video transcript and reply in JSON.

## Output format
{
  "viral_clips": [
    {
      "start_time": "MM:SS",
      "end_time": "MM:SS",
      "title": "clip title",
      "reason": "why this moment will spread"
    }
  ],
  "x_thread": [
    "1/N post text...",
    "2/N post text..."
  ],
  "blog_article": "# Title\n\nMarkdown article body"
}

## Transcript with timestamps
%s

## Full text
%s

## Output language
%s`

// Prompt is a rendered generation request shared by every tier.
type Prompt struct {
	System string
	User   string
}

// Combined folds the system instruction into the user turn for providers
// without a separate system slot.
func (p *Prompt) Combined() string {
	return p.System + "\n\n" + p.User
}

// PromptBuilder renders prompts and resolves the output language directive.
type PromptBuilder struct {
	primaryLanguage string
}

func NewPromptBuilder(primaryLanguage string) *PromptBuilder {
	if primaryLanguage == "" {
		primaryLanguage = model.DefaultTranscriptLanguage
	}
	return &PromptBuilder{primaryLanguage: primaryLanguage}
}

// Build renders the prompt for one transcript.
func (b *PromptBuilder) Build(transcript string, segments []model.Segment, pref GenerationPreference) *Prompt {
	return &Prompt{
		System: systemPrompt,
		User: fmt.Sprintf(generationTemplate,
			TimestampedTranscript(segments),
			transcript,
			b.Directive(transcript, pref),
		),
	}
}

// GenerationPreference carries the job's language settings into generation.
type GenerationPreference struct {
	Output             model.OutputLanguage
	TranscriptLanguage string
}

// IsPrimary reports whether output must be forced into the primary language.
// The primary language code itself is accepted as an alias.
func (b *PromptBuilder) IsPrimary(out model.OutputLanguage) bool {
	v := strings.TrimSpace(string(out))
	return out == model.OutputPrimary || strings.EqualFold(v, b.primaryLanguage)
}

// Directive returns the output-language instruction.
func (b *PromptBuilder) Directive(transcript string, pref GenerationPreference) string {
	if b.IsPrimary(pref.Output) {
		name := languageName(b.primaryLanguage)
		return fmt.Sprintf("Always write the output in %s. If the transcript is in another language, summarise and translate it into %s.", name, name)
	}

	code := strings.TrimSpace(pref.TranscriptLanguage)
	if code == "" || strings.EqualFold(code, model.LanguageAuto) {
		code = DetectLanguage(transcript)
	}
	if code == "" {
		return "Write the output in the same language as the transcript."
	}
	return fmt.Sprintf("Write the output in the same language as the transcript (%s).", languageName(code))
}

// DetectLanguage guesses the ISO 639-1 code of text, or "" when unsure.
func DetectLanguage(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

// ValidLanguageHint reports whether s is "auto" or a parseable BCP 47 tag.
func ValidLanguageHint(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, model.LanguageAuto) {
		return true
	}
	_, err := language.Parse(s)
	return err == nil
}

func languageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return code
	}
	return name
}

// FormatTimestamp renders seconds as MM:SS.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// TimestampedTranscript renders one "[MM:SS - MM:SS] text" line per segment.
func TimestampedTranscript(segments []model.Segment) string {
	if len(segments) == 0 {
		return "(no timestamp information)"
	}
	lines := make([]string, len(segments))
	for i, seg := range segments {
		lines[i] = fmt.Sprintf("[%s - %s] %s", FormatTimestamp(seg.Start), FormatTimestamp(seg.End), seg.Text)
	}
	return strings.Join(lines, "\n")
}
