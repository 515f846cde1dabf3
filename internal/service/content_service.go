package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/multiviral/api/internal/model"
)

const generationTimeout = 120 * time.Second

// ContentTier is one step of the generation cascade.
type ContentTier interface {
	Name() string
	Available() bool
	// Authoritative tiers are tried alone and their failure is fatal.
	Authoritative() bool
	Attempt(ctx context.Context, prompt *Prompt) (*model.ContentResult, error)
}

// ContentService walks the generation tiers in order.
type ContentService struct {
	tiers   []ContentTier
	prompts *PromptBuilder
}

func NewContentService(prompts *PromptBuilder, tiers ...ContentTier) *ContentService {
	return &ContentService{tiers: tiers, prompts: prompts}
}

// Generate returns the first tier result that parses. When the first
// available tier is authoritative it is the only one tried.
func (s *ContentService) Generate(ctx context.Context, transcript string, segments []model.Segment, pref GenerationPreference) (*model.ContentResult, error) {
	prompt := s.prompts.Build(transcript, segments, pref)

	for _, tier := range s.tiers {
		if !tier.Available() {
			continue
		}

		log.Printf("%s: generating content (%d chars transcript)", tier.Name(), len(transcript))
		result, err := s.attempt(ctx, tier, prompt)
		if err == nil {
			return result, nil
		}
		if tier.Authoritative() {
			return nil, stageError("generating", ErrGeneration, tier.Name()+" generation failed: "+err.Error(), err)
		}
		log.Printf("%s failed, trying next tier: %v", tier.Name(), err)
	}

	return nil, stageError("generating", ErrGeneration, "no content provider available", nil)
}

func (s *ContentService) attempt(ctx context.Context, tier ContentTier, prompt *Prompt) (*model.ContentResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()
	return tier.Attempt(callCtx, prompt)
}

// Tiers lists tier names with their availability, for health reporting.
func (s *ContentService) Tiers() map[string]bool {
	out := make(map[string]bool, len(s.tiers))
	for _, t := range s.tiers {
		out[t.Name()] = t.Available()
	}
	return out
}

// TextGenerator is any provider call that returns raw model text.
type TextGenerator func(ctx context.Context, system, user string) (string, error)

// ProviderTier adapts a provider client into a ContentTier.
type ProviderTier struct {
	name          string
	authoritative bool
	available     func() bool
	generate      TextGenerator
	// combine sends system and user text as one message
	combine bool
}

func (t *ProviderTier) Name() string        { return t.name }
func (t *ProviderTier) Available() bool     { return t.available() }
func (t *ProviderTier) Authoritative() bool { return t.authoritative }

func (t *ProviderTier) Attempt(ctx context.Context, prompt *Prompt) (*model.ContentResult, error) {
	system, user := prompt.System, prompt.User
	if t.combine {
		system, user = "", prompt.Combined()
	}
	raw, err := t.generate(ctx, system, user)
	if err != nil {
		return nil, err
	}
	log.Printf("%s response received (%d chars)", t.name, len(raw))
	return ParseContent(raw)
}

type messageClient interface {
	IsConfigured() bool
	CreateMessage(ctx context.Context, system, user string) (string, error)
}

type jsonClient interface {
	IsConfigured() bool
	GenerateJSON(ctx context.Context, system, user string) (string, error)
}

type chatClient interface {
	IsConfigured() bool
	ChatCompletion(ctx context.Context, system, user string) (string, error)
}

// NewAnthropicTier is the premium, authoritative tier.
func NewAnthropicTier(c messageClient) *ProviderTier {
	return &ProviderTier{
		name:          "anthropic",
		authoritative: true,
		available:     c.IsConfigured,
		generate:      c.CreateMessage,
	}
}

// NewGeminiSDKTier uses the official SDK with a response schema.
func NewGeminiSDKTier(c jsonClient) *ProviderTier {
	return &ProviderTier{
		name:      "gemini-sdk",
		available: c.IsConfigured,
		generate:  c.GenerateJSON,
	}
}

// NewGeminiRESTTier calls generateContent directly with the same schema.
func NewGeminiRESTTier(c jsonClient) *ProviderTier {
	return &ProviderTier{
		name:      "gemini-rest",
		available: c.IsConfigured,
		generate:  c.GenerateJSON,
		combine:   true,
	}
}

// NewLocalChatTier targets a local OpenAI-compatible server such as Ollama.
func NewLocalChatTier(c chatClient) *ProviderTier {
	return &ProviderTier{
		name:      "ollama",
		available: c.IsConfigured,
		generate:  c.ChatCompletion,
	}
}

// PlaceholderContentTier returns a fixed bundle and never fails.
type PlaceholderContentTier struct{}

func (PlaceholderContentTier) Name() string        { return "placeholder" }
func (PlaceholderContentTier) Available() bool     { return true }
func (PlaceholderContentTier) Authoritative() bool { return false }

func (PlaceholderContentTier) Attempt(ctx context.Context, prompt *Prompt) (*model.ContentResult, error) {
	log.Printf("Placeholder generation (%d chars prompt, no provider reachable)", len(prompt.User))
	return PlaceholderContent(), nil
}

// PlaceholderContent is the deterministic developer-mode bundle.
func PlaceholderContent() *model.ContentResult {
	return &model.ContentResult{
		ViralClips: []model.Clip{
			{
				StartTime: "00:35",
				EndTime:   "00:55",
				Title:     "How to turn one video into a stack of social posts with AI",
				Reason:    "States a concrete benefit in a few words. The hook lands empathy and surprise at once.",
			},
			{
				StartTime: "01:35",
				EndTime:   "01:55",
				Title:     "The moment creator productivity goes 10x",
				Reason:    "A concrete number makes it punchy, and as the conclusion it doubles as a call to action.",
			},
			{
				StartTime: "01:55",
				EndTime:   "02:30",
				Title:     "Live demo: from upload to finished content",
				Reason:    "Demos drive engagement and how-to clips get saved and shared.",
			},
		},
		XThread: []string{
			"1/7 I found a way to turn a single video into a week of social content automatically. Creator productivity goes up 10x. Thread below",
			"2/7 The old workflow:\n- film the video\n- transcribe by hand\n- write a blog post\n- draft social posts\n\nThat is 5 to 6 hours, right?",
			"3/7 The AI workflow:\n- upload the video (1 min)\n- automatic transcript (2 min)\n- automatic content (3 min)\n\nAbout 6 minutes in total.",
			"4/7 And you get three things:\n- clip suggestions with timestamps\n- a thread for X\n- an SEO-ready blog article",
			"5/7 The clip finder is the standout. It spots the peaks in your video and tells you why each one could go viral.",
			"6/7 The article comes out in Markdown, ready to paste into WordPress or Notion.",
			"7/7 Quantity and quality are the eternal creator trade-off. Let AI carry the first draft and get more out of every video you make.",
		},
		BlogArticle: "# Turning One Video Into a Stack of Social Content With AI\n\n" +
			"## Introduction\n\n" +
			"The hardest part of being a creator is balancing quantity with quality. " +
			"Filming and editing a single video is already a lot of work, and then come the blog post, " +
			"the social posts and the short clips.\n\n" +
			"AI is changing that.\n\n" +
			"## What automatic content repurposing means\n\n" +
			"Upload one video or audio file and get content for several platforms in minutes:\n\n" +
			"1. **Viral clip points** detected from the peaks of the video\n" +
			"2. **An X thread** of up to ten posts\n" +
			"3. **An SEO-friendly article** in Markdown\n\n" +
			"## Compared with the manual workflow\n\n" +
			"Transcribing alone used to take 30 to 60 minutes, the article another hour or two, " +
			"and the social posts another half hour. With AI the whole thing takes 5 to 10 minutes.\n\n" +
			"## Making the most of it\n\n" +
			"Treat the generated content as a first draft and polish it in your own voice.\n\n" +
			"## Summary\n\n" +
			"Generating several pieces of content from one video multiplies a creator's output. " +
			"Put AI to work and build a repeatable content pipeline.",
	}
}

// String renders the tier for logs.
func (t *ProviderTier) String() string {
	return fmt.Sprintf("%s(authoritative=%t)", t.name, t.authoritative)
}
