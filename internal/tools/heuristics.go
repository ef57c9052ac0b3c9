package tools

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	nameRe  = regexp.MustCompile(`(?i)(?:my name is|i am|i'm|this is)\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)?)`)
	qtyRe   = regexp.MustCompile(`\b(\d{1,6})\b`)
	dateRe  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
)

func findEmail(text string) string {
	return emailRe.FindString(text)
}

// findStartDate only recognizes ISO dates. Spoken forms like "next monday"
// need the model; the degraded path leaves them for a follow-up question.
func findStartDate(text string) string {
	return dateRe.FindString(text)
}

func findSpokenName(text string) string {
	m := nameRe.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// findQuantityNear picks the first number in the sentence that mentions the
// product. Voice transcripts rarely carry more than one number per line, so
// a per-line scan is good enough for the degraded path.
func findQuantityNear(text, product string) int {
	productLower := strings.ToLower(product)
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(strings.ToLower(line), productLower) {
			continue
		}
		if m := qtyRe.FindString(line); m != "" {
			if n, err := strconv.Atoi(m); err == nil {
				return n
			}
		}
	}
	return 0
}
