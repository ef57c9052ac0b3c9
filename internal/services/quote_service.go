package services

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/Alserial/VoiceRAG/internal/cache"
	"github.com/Alserial/VoiceRAG/internal/models"
	"github.com/Alserial/VoiceRAG/internal/providers/crm"
	"github.com/Alserial/VoiceRAG/internal/providers/email"
	"github.com/Alserial/VoiceRAG/internal/quote"
	"github.com/Alserial/VoiceRAG/internal/realtime"
	pgrepo "github.com/Alserial/VoiceRAG/internal/repositories/postgres"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

// QuoteRequest is the payload for creating a quote, from either the HTTP
// API or a confirmed voice session.
type QuoteRequest struct {
	CustomerName      string             `json:"customer_name"`
	ContactInfo       string             `json:"contact_info"`
	Items             []models.QuoteItem `json:"quote_items"`
	ExpectedStartDate string             `json:"expected_start_date"`
	Notes             string             `json:"notes"`

	// Legacy single-product shape, folded into Items when Items is empty.
	ProductPackage string `json:"product_package"`
	Quantity       int    `json:"quantity"`
}

// QuoteResponse reports the created quote. Degraded is true when the CRM
// was unavailable and the quote was minted locally.
type QuoteResponse struct {
	QuoteID     string `json:"quote_id"`
	QuoteNumber string `json:"quote_number"`
	QuoteURL    string `json:"quote_url"`
	EmailSent   bool   `json:"email_sent"`
	EmailError  string `json:"email_error,omitempty"`
	Degraded    bool   `json:"degraded"`
}

type QuoteService interface {
	Create(ctx context.Context, req QuoteRequest) (*QuoteResponse, error)
	ConfirmSession(ctx context.Context, sessionID string) (*QuoteResponse, error)
	CancelSession(ctx context.Context, sessionID string) error
	Get(ctx context.Context, id string) (*models.Quote, error)
	List(ctx context.Context, limit int) ([]models.Quote, error)
}

type quoteService struct {
	crm      crm.Provider
	mailer   email.Mailer
	quotes   pgrepo.QuoteRepository // nil when postgres is not configured
	sessions *realtime.SessionStore
	pending  *PendingQuoteStore
	log      *logrus.Entry
}

func NewQuoteService(provider crm.Provider, mailer email.Mailer, quotes pgrepo.QuoteRepository, sessions *realtime.SessionStore, pending *PendingQuoteStore, log *logrus.Entry) QuoteService {
	return &quoteService{
		crm:      provider,
		mailer:   mailer,
		quotes:   quotes,
		sessions: sessions,
		pending:  pending,
		log:      log,
	}
}

func (s *quoteService) Create(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	const op = "QuoteService.Create"

	if len(req.Items) == 0 && req.ProductPackage != "" && req.Quantity > 0 {
		req.Items = []models.QuoteItem{{ProductPackage: req.ProductPackage, Quantity: req.Quantity}}
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "customer_name is required", nil)
	}
	if strings.TrimSpace(req.ContactInfo) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "contact_info is required", nil)
	}
	if len(req.Items) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "quote_items is required", nil)
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductPackage) == "" || item.Quantity <= 0 {
			return nil, utils.E(utils.CodeInvalidArgument, op, "each quote item needs a product_package and a positive quantity", nil)
		}
	}

	result, degraded := s.createInCRM(ctx, req)

	emailSent := false
	emailError := ""
	if strings.Contains(req.ContactInfo, "@") {
		err := s.mailer.SendQuote(email.QuoteEmail{
			To:                req.ContactInfo,
			CustomerName:      req.CustomerName,
			QuoteURL:          result.QuoteURL,
			ProductSummary:    productSummary(req.Items),
			TotalQuantity:     totalQuantity(req.Items),
			ExpectedStartDate: req.ExpectedStartDate,
			Notes:             req.Notes,
		})
		if err != nil {
			if !utils.IsCode(err, utils.CodeUnavailable) {
				s.log.WithError(err).Warn("quote email failed")
			}
			emailError = err.Error()
		} else {
			emailSent = true
		}
	}

	s.persist(ctx, req, result, degraded, emailSent)

	return &QuoteResponse{
		QuoteID:     result.QuoteID,
		QuoteNumber: result.QuoteNumber,
		QuoteURL:    result.QuoteURL,
		EmailSent:   emailSent,
		EmailError:  emailError,
		Degraded:    degraded,
	}, nil
}

// createInCRM tries the real CRM and degrades to a locally minted quote when
// it is unavailable or fails. The flow never fails the caller over CRM
// trouble.
func (s *quoteService) createInCRM(ctx context.Context, req QuoteRequest) (crm.QuoteResult, bool) {
	if s.crm.Available() {
		result, err := s.crm.CreateQuote(ctx, crm.QuoteInput{
			CustomerName:      req.CustomerName,
			ContactInfo:       req.ContactInfo,
			Items:             req.Items,
			ExpectedStartDate: req.ExpectedStartDate,
			Notes:             req.Notes,
		})
		if err == nil {
			return *result, false
		}
		s.log.WithError(err).Warn("crm quote creation failed, minting mock quote")
	}

	id := uuid.NewString()
	return crm.QuoteResult{
		QuoteID:     id,
		QuoteNumber: id[:8],
		QuoteURL:    "https://example.com/quotes/" + id,
	}, true
}

func (s *quoteService) persist(ctx context.Context, req QuoteRequest, result crm.QuoteResult, degraded, emailSent bool) {
	if s.quotes == nil {
		return
	}

	items, err := json.Marshal(req.Items)
	if err != nil {
		s.log.WithError(err).Warn("could not encode quote items")
		return
	}
	record := &models.Quote{
		ID:                result.QuoteID,
		QuoteNumber:       result.QuoteNumber,
		QuoteURL:          result.QuoteURL,
		CustomerName:      req.CustomerName,
		ContactInfo:       req.ContactInfo,
		Items:             datatypes.JSON(items),
		ExpectedStartDate: req.ExpectedStartDate,
		Notes:             req.Notes,
		Degraded:          degraded,
		EmailSent:         emailSent,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.quotes.Create(ctx, record); err != nil {
		s.log.WithError(err).Warn("could not persist quote record")
	}
}

// ConfirmSession commits the completed draft of a voice session. The live
// session state is authoritative; the pending store covers sessions whose
// socket already closed.
func (s *quoteService) ConfirmSession(ctx context.Context, sessionID string) (*QuoteResponse, error) {
	const op = "QuoteService.ConfirmSession"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	var draft quote.Draft
	if state, ok := s.sessions.Get(sessionID); ok {
		confirmed, ok := state.ConfirmQuote()
		if !ok {
			return nil, utils.E(utils.CodeConflict, op, "no completed quote to confirm for this session", nil)
		}
		draft = confirmed
	} else {
		pending, err := s.pending.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if pending == nil {
			return nil, utils.E(utils.CodeNotFound, op, "no pending quote for this session", nil)
		}
		draft = *pending
	}

	resp, err := s.Create(ctx, draftToRequest(draft))
	if err != nil {
		return nil, err
	}
	if err := s.pending.Del(ctx, sessionID); err != nil {
		s.log.WithError(err).Warn("could not clear pending quote")
	}
	return resp, nil
}

func (s *quoteService) CancelSession(ctx context.Context, sessionID string) error {
	const op = "QuoteService.CancelSession"

	if sessionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	if state, ok := s.sessions.Get(sessionID); ok {
		state.CancelQuote()
	}
	if err := s.pending.Del(ctx, sessionID); err != nil {
		s.log.WithError(err).Warn("could not clear pending quote")
	}
	return nil
}

func (s *quoteService) Get(ctx context.Context, id string) (*models.Quote, error) {
	const op = "QuoteService.Get"

	if s.quotes == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "quote storage not configured", nil)
	}
	q, err := s.quotes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "quote not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get quote", err)
	}
	return q, nil
}

func (s *quoteService) List(ctx context.Context, limit int) ([]models.Quote, error) {
	const op = "QuoteService.List"

	if s.quotes == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "quote storage not configured", nil)
	}
	quotes, err := s.quotes.List(ctx, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list quotes", err)
	}
	return quotes, nil
}

func draftToRequest(d quote.Draft) QuoteRequest {
	items := make([]models.QuoteItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, models.QuoteItem{ProductPackage: it.ProductPackage, Quantity: it.Quantity})
	}
	return QuoteRequest{
		CustomerName:      d.CustomerName,
		ContactInfo:       d.ContactInfo,
		Items:             items,
		ExpectedStartDate: d.ExpectedStartDate,
		Notes:             d.Notes,
	}
}

func productSummary(items []models.QuoteItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, it.ProductPackage+" (x"+strconv.Itoa(it.Quantity)+")")
	}
	return strings.Join(parts, ", ")
}

func totalQuantity(items []models.QuoteItem) int {
	total := 0
	for _, it := range items {
		total += it.Quantity
	}
	return total
}

// PendingQuoteStore keeps completed drafts in Redis so confirmation can
// outlive the websocket session. Implements realtime.PendingQuotes.
type PendingQuoteStore struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewPendingQuoteStore(c cache.Cache) *PendingQuoteStore {
	return &PendingQuoteStore{cache: c, ttl: 30 * time.Minute}
}

func pendingQuoteKey(sessionID string) string { return "pending_quote:" + sessionID }

func (p *PendingQuoteStore) Put(ctx context.Context, sessionID string, d quote.Draft) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.SetJSON(ctx, pendingQuoteKey(sessionID), d, p.ttl)
}

func (p *PendingQuoteStore) Get(ctx context.Context, sessionID string) (*quote.Draft, error) {
	const op = "PendingQuoteStore.Get"

	if p.cache == nil {
		return nil, nil
	}
	var d quote.Draft
	hit, err := p.cache.GetJSON(ctx, pendingQuoteKey(sessionID), &d)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "read pending quote", err)
	}
	if !hit {
		return nil, nil
	}
	return &d, nil
}

func (p *PendingQuoteStore) Del(ctx context.Context, sessionID string) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Del(ctx, pendingQuoteKey(sessionID))
}
