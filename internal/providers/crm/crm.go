package crm

import (
	"context"

	"github.com/Alserial/VoiceRAG/internal/models"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

// QuoteInput is everything the CRM needs to mint a quote.
type QuoteInput struct {
	CustomerName      string
	ContactInfo       string
	Items             []models.QuoteItem
	ExpectedStartDate string
	Notes             string
}

// QuoteResult identifies the quote created in the CRM.
type QuoteResult struct {
	QuoteID     string `json:"quote_id"`
	QuoteNumber string `json:"quote_number"`
	QuoteURL    string `json:"quote_url"`
}

// Registration identifies the account/contact pair for a registered customer.
type Registration struct {
	AccountID string `json:"account_id"`
	ContactID string `json:"contact_id"`
}

// Provider is the CRM integration. Callers must treat every method as
// fallible and degrade to local mock behavior where the contract allows it.
type Provider interface {
	// Available reports whether the CRM is configured and reachable.
	Available() bool

	CreateQuote(ctx context.Context, in QuoteInput) (*QuoteResult, error)
	RegisterCustomer(ctx context.Context, customerName, contactInfo string) (*Registration, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
}

// Unavailable is the degraded provider used when CRM credentials are not set.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }

func (Unavailable) CreateQuote(ctx context.Context, in QuoteInput) (*QuoteResult, error) {
	return nil, utils.E(utils.CodeUnavailable, "crm.CreateQuote", "crm not configured", nil)
}

func (Unavailable) RegisterCustomer(ctx context.Context, customerName, contactInfo string) (*Registration, error) {
	return nil, utils.E(utils.CodeUnavailable, "crm.RegisterCustomer", "crm not configured", nil)
}

func (Unavailable) ListProducts(ctx context.Context) ([]models.Product, error) {
	return nil, utils.E(utils.CodeUnavailable, "crm.ListProducts", "crm not configured", nil)
}
