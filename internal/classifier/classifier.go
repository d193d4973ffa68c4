// Package classifier talks to the external text classification service used for conversation health.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	apperrors "github.com/spec-kit/ticket-sla/pkg/util/errorutil"
)

// TextClassifier answers a free-text prompt.
type TextClassifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

// Classification kinds, also used as the parse error kind.
const (
	KindSentiment  = "sentiment"
	KindQuestion   = "question"
	KindResolution = "resolution"
)

// SentimentPrompt asks for a 0..1 sentiment score.
func SentimentPrompt(text string) string {
	return "Rate the sentiment of the following support message on a scale from 0 (very negative) to 1 (very positive). " +
		"Reply with the number only.\n\n" + text
}

// QuestionPrompt asks whether a customer message is a question.
func QuestionPrompt(text string) string {
	return "Does the following customer message ask a question or request help? Reply with true or false only.\n\n" + text
}

// ResolutionPrompt asks whether a customer message reports the issue resolved.
func ResolutionPrompt(text string) string {
	return "Does the following customer message say that their issue is resolved? Reply with true or false only.\n\n" + text
}

// SummaryPrompt asks for a one-sentence summary of the opening message.
func SummaryPrompt(text string) string {
	return "Summarize the following support request in one sentence.\n\n" + text
}

var errOutOfRange = errors.New("not a finite number")

// ParseScore reads a sentiment reply as a number and clamps it to [0,1].
func ParseScore(raw string) (float64, error) {
	cleaned := strings.TrimRight(strings.TrimSpace(raw), ".")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, apperrors.NewClassificationParseError(KindSentiment, raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, apperrors.NewClassificationParseError(KindSentiment, raw, errOutOfRange)
	}
	return math.Max(0, math.Min(1, v)), nil
}

// ParseBool reads a yes/no style reply.
func ParseBool(kind, raw string) (bool, error) {
	cleaned := strings.ToLower(strings.Trim(strings.TrimSpace(raw), ".!\"'"))
	switch cleaned {
	case "true", "yes":
		return true, nil
	case "false", "no":
		return false, nil
	}
	return false, apperrors.NewClassificationParseError(kind, raw, fmt.Errorf("unexpected reply %q", cleaned))
}
