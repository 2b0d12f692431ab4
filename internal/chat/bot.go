// Package chat answers help questions about the platform. Canned answers are
// picked by keyword score; anything else can be handed to a language model.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultThreshold = 0.3

	fallbackAnswer = "I'm not sure I understand. Could you rephrase your question? You can ask about uploading a lost or found person, cropping the photo, matching, or data security."
	helpAnswer     = "You can ask me about reporting a lost person, uploading a found person, cropping photos, how matching works, or data security. Try 'How will I know if there's a match?'"
	featuresAnswer = "Core features:\n1. Face cropping before upload\n2. Lost and found reports with contact details\n3. Matching faces between lost, found and live feed records\n4. Email alerts on new matches"
)

// Source tells where a reply came from.
type Source string

const (
	SourceFAQ       Source = "faq"
	SourceCommand   Source = "command"
	SourceKnowledge Source = "knowledge"
	SourceModel     Source = "model"
	SourceFallback  Source = "fallback"
)

// Completer produces free-form answers.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Reply struct {
	Text   string `json:"reply"`
	Source Source `json:"source"`
}

type Bot struct {
	Entries   []Entry
	Threshold float64
	// Completer is optional.
	Completer Completer
	// Limiter throttles calls to Completer. Messages over the limit get the
	// fallback answer.
	Limiter *rate.Limiter
}

func NewBot(c Completer) *Bot {
	return &Bot{
		Entries:   DefaultEntries,
		Threshold: DefaultThreshold,
		Completer: c,
	}
}

// Reply answers message. Model errors are logged and answered with the
// fallback text.
func (b *Bot) Reply(ctx context.Context, message string) Reply {
	msg := strings.ToLower(strings.TrimSpace(message))
	if msg == "" {
		return Reply{Text: helpAnswer, Source: SourceCommand}
	}

	for _, f := range faqs {
		if strings.ToLower(f.Question) == msg {
			return Reply{Text: f.Answer, Source: SourceFAQ}
		}
	}

	switch msg {
	case "help":
		return Reply{Text: helpAnswer, Source: SourceCommand}
	case "features":
		return Reply{Text: featuresAnswer, Source: SourceCommand}
	}

	if e, score := b.best(msg); e != nil && score >= b.Threshold {
		return Reply{Text: e.Answer, Source: SourceKnowledge}
	}

	if b.Completer != nil && b.allow(ctx) {
		text, err := b.Completer.Complete(ctx, message)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("chat completion failed")
		} else if text = strings.TrimSpace(text); text != "" {
			return Reply{Text: text, Source: SourceModel}
		}
	}
	return Reply{Text: fallbackAnswer, Source: SourceFallback}
}

func (b *Bot) allow(ctx context.Context) bool {
	if b.Limiter == nil || b.Limiter.Allow() {
		return true
	}
	log.Ctx(ctx).Warn().Msg("chat completion rate limited")
	return false
}

// best returns the entry with the highest score. Ties keep the earlier entry.
func (b *Bot) best(msg string) (*Entry, float64) {
	var best *Entry
	var highest float64
	for i := range b.Entries {
		if s := score(msg, b.Entries[i].Keywords); s > highest {
			highest = s
			best = &b.Entries[i]
		}
	}
	return best, highest
}

// score is the fraction of keywords found in msg.
func score(msg string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	n := 0
	for _, k := range keywords {
		if strings.Contains(msg, strings.ToLower(k)) {
			n++
		}
	}
	return float64(n) / float64(len(keywords))
}

// Greeting returns the opening line for the time of day.
func Greeting(now time.Time) string {
	switch h := now.Hour(); {
	case h < 12:
		return "Good morning! How can I help you today?"
	case h < 18:
		return "Good afternoon! How can I help you today?"
	default:
		return "Good evening! How can I help you today?"
	}
}
