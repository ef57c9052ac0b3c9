package email

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	gomail "gopkg.in/gomail.v2"

	"github.com/Alserial/VoiceRAG/internal/utils"
)

// QuoteEmail is the notification sent after a quote is created.
type QuoteEmail struct {
	To                string
	CustomerName      string
	QuoteURL          string
	ProductSummary    string
	TotalQuantity     int
	ExpectedStartDate string
	Notes             string
}

// Mailer sends outbound notification mail. Implementations must be safe for
// concurrent use.
type Mailer interface {
	SendQuote(m QuoteEmail) error
	SendTranscript(to, sessionID, transcript string) error
	Configured() bool
}

// SMTPConfig carries the SMTP relay settings.
type SMTPConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	From          string
	FromName      string
	SubjectPrefix string
}

func (c SMTPConfig) complete() bool {
	return c.Host != "" && c.User != "" && c.Password != ""
}

// SMTPMailer sends mail through a plain SMTP relay with STARTTLS.
type SMTPMailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
	log    *logrus.Entry
}

func NewSMTPMailer(cfg SMTPConfig, log *logrus.Entry) (*SMTPMailer, error) {
	const op = "email.NewSMTPMailer"
	if !cfg.complete() {
		return nil, utils.E(utils.CodeUnavailable, op, "smtp not configured", nil)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	if cfg.FromName == "" {
		cfg.FromName = "VoiceRAG System"
	}
	return &SMTPMailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		log:    log,
	}, nil
}

func (m *SMTPMailer) Configured() bool { return true }

func (m *SMTPMailer) SendQuote(q QuoteEmail) error {
	const op = "SMTPMailer.SendQuote"

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.cfg.From, m.cfg.FromName)
	msg.SetHeader("To", q.To)
	msg.SetHeader("Subject", strings.TrimSpace(m.cfg.SubjectPrefix+"Quote Request - "+q.ProductSummary))
	msg.SetBody("text/plain", quoteTextBody(q))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return utils.E(utils.CodeUpstream, op, "send quote email", err)
	}
	m.log.WithField("to", q.To).Info("quote email sent")
	return nil
}

func (m *SMTPMailer) SendTranscript(to, sessionID, transcript string) error {
	const op = "SMTPMailer.SendTranscript"

	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.cfg.From, m.cfg.FromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "VoiceRAG Conversation Log - Session "+short)
	msg.SetBody("text/plain",
		"This email contains the conversation log from VoiceRAG session "+short+".\n\n"+
			"This is an automated message from VoiceRAG System.")
	msg.Attach("conversation_"+short+".txt",
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := io.WriteString(w, transcript)
			return err
		}))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return utils.E(utils.CodeUpstream, op, "send transcript email", err)
	}
	m.log.WithField("to", to).Info("transcript email sent")
	return nil
}

func quoteTextBody(q QuoteEmail) string {
	var b strings.Builder
	b.WriteString("Quote Request\n\n")
	fmt.Fprintf(&b, "Dear %s,\n\n", q.CustomerName)
	b.WriteString("Thank you for your interest in our products. We have prepared a quote for you.\n\n")
	b.WriteString("Quote Details:\n")
	fmt.Fprintf(&b, "- Product/Package: %s\n", q.ProductSummary)
	fmt.Fprintf(&b, "- Quantity: %d\n", q.TotalQuantity)
	if q.ExpectedStartDate != "" {
		fmt.Fprintf(&b, "- Expected Start Date: %s\n", q.ExpectedStartDate)
	}
	if q.Notes != "" {
		fmt.Fprintf(&b, "- Notes: %s\n", q.Notes)
	}
	fmt.Fprintf(&b, "\nView your quote at: %s\n\n", q.QuoteURL)
	b.WriteString("This is an automated message from VoiceRAG System.")
	return b.String()
}

// Noop is the degraded mailer used when SMTP is not configured.
type Noop struct{}

func (Noop) Configured() bool { return false }

func (Noop) SendQuote(q QuoteEmail) error {
	return utils.E(utils.CodeUnavailable, "email.SendQuote", "smtp not configured", nil)
}

func (Noop) SendTranscript(to, sessionID, transcript string) error {
	return utils.E(utils.CodeUnavailable, "email.SendTranscript", "smtp not configured", nil)
}
