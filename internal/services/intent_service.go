package services

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Alserial/VoiceRAG/internal/providers/llm"
)

// Intent labels for short confirmation utterances.
const (
	IntentConfirm = "confirm"
	IntentCancel  = "cancel"
	IntentNone    = "none"
)

var (
	confirmKeywords = []string{"confirm", "yes", "send", "ok", "okay", "proceed", "go ahead"}
	cancelKeywords  = []string{"cancel", "no", "stop", "never mind", "nevermind", "don't send", "do not send"}
)

const intentSystem = `You classify a short user utterance spoken at the end of a quote review.
The user was just asked whether to send the quote. Decide whether the
utterance confirms sending, cancels it, or does neither.`

type IntentService interface {
	Classify(ctx context.Context, utterance string) string
}

type intentService struct {
	llm llm.Provider
	log *logrus.Entry
}

func NewIntentService(provider llm.Provider, log *logrus.Entry) IntentService {
	return &intentService{llm: provider, log: log}
}

// Classify resolves an utterance to confirm, cancel, or none. Keyword
// matching handles the common single-word replies; the model covers the
// rest. Any failure resolves to none so the caller asks again instead of
// acting on a guess.
func (s *intentService) Classify(ctx context.Context, utterance string) string {
	text := strings.ToLower(strings.TrimSpace(utterance))
	if text == "" {
		return IntentNone
	}

	if matchesKeyword(text, cancelKeywords) {
		return IntentCancel
	}
	if matchesKeyword(text, confirmKeywords) {
		return IntentConfirm
	}

	if !s.llm.Configured() {
		return IntentNone
	}
	label, err := s.llm.Classify(ctx, intentSystem, utterance, []string{IntentConfirm, IntentCancel, IntentNone})
	if err != nil {
		s.log.WithError(err).Warn("intent classification failed")
		return IntentNone
	}
	switch label {
	case IntentConfirm, IntentCancel:
		return label
	default:
		return IntentNone
	}
}

// matchesKeyword matches single-word keywords against whole words only, so
// "no" does not trigger on "notes". Phrases match as substrings.
func matchesKeyword(text string, keywords []string) bool {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '\''
	})
	for _, kw := range keywords {
		if strings.ContainsRune(kw, ' ') {
			if strings.Contains(text, kw) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == kw {
				return true
			}
		}
	}
	return false
}
