package email

import (
	"strings"
	"testing"

	"github.com/Alserial/VoiceRAG/internal/utils"
)

func TestQuoteTextBody(t *testing.T) {
	body := quoteTextBody(QuoteEmail{
		To:                "alice@example.com",
		CustomerName:      "Alice Chen",
		QuoteURL:          "https://example.com/quotes/abc",
		ProductSummary:    "Product A (x2)",
		TotalQuantity:     2,
		ExpectedStartDate: "2026-09-01",
		Notes:             "rush order",
	})

	for _, want := range []string{
		"Dear Alice Chen,",
		"Product/Package: Product A (x2)",
		"Quantity: 2",
		"Expected Start Date: 2026-09-01",
		"Notes: rush order",
		"https://example.com/quotes/abc",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestQuoteTextBody_OptionalFieldsOmitted(t *testing.T) {
	body := quoteTextBody(QuoteEmail{CustomerName: "Bob", ProductSummary: "Product B (x1)", TotalQuantity: 1})

	if strings.Contains(body, "Expected Start Date") {
		t.Error("body mentions start date when none given")
	}
	if strings.Contains(body, "Notes:") {
		t.Error("body mentions notes when none given")
	}
}

func TestNoopMailer(t *testing.T) {
	var m Noop
	if m.Configured() {
		t.Error("Configured() = true for noop mailer")
	}
	if err := m.SendQuote(QuoteEmail{}); !utils.IsCode(err, utils.CodeUnavailable) {
		t.Errorf("SendQuote() error = %v, want unavailable", err)
	}
	if err := m.SendTranscript("a@b.com", "s1", "log"); !utils.IsCode(err, utils.CodeUnavailable) {
		t.Errorf("SendTranscript() error = %v, want unavailable", err)
	}
}

func TestSMTPConfigComplete(t *testing.T) {
	if (SMTPConfig{}).complete() {
		t.Error("complete() = true for empty config")
	}
	cfg := SMTPConfig{Host: "smtp.example.com", User: "bot", Password: "secret"}
	if !cfg.complete() {
		t.Error("complete() = false for host+user+password")
	}
}
