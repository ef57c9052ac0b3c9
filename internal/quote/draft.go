package quote

import (
	"strings"
	"sync"
)

type Status string

const (
	StatusCollecting Status = "collecting"
	StatusComplete   Status = "complete"
	StatusConfirmed  Status = "confirmed"
	StatusCancelled  Status = "cancelled"
)

// Item is one product line in a draft.
type Item struct {
	ProductPackage string `json:"product_package"`
	Quantity       int    `json:"quantity"`
}

// Draft is the partially collected quote record for one session.
type Draft struct {
	CustomerName      string `json:"customer_name,omitempty"`
	ContactInfo       string `json:"contact_info,omitempty"`
	Items             []Item `json:"quote_items,omitempty"`
	ExpectedStartDate string `json:"expected_start_date,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

// Extraction is what one conversational turn yielded. Nil pointers mean the
// turn did not mention the field; merging ignores them so earlier answers
// survive turns that repeat nothing.
type Extraction struct {
	CustomerName      *string `json:"customer_name"`
	ContactInfo       *string `json:"contact_info"`
	Items             []Item  `json:"quote_items"`
	ExpectedStartDate *string `json:"expected_start_date"`
	Notes             *string `json:"notes"`
}

// Empty reports whether the extraction carries no fields at all.
func (e Extraction) Empty() bool {
	return e.CustomerName == nil && e.ContactInfo == nil && len(e.Items) == 0 &&
		e.ExpectedStartDate == nil && e.Notes == nil
}

// Merge folds a turn's extraction into the draft. A field already set is only
// overwritten when the extraction explicitly restates it; items merge by
// product name so a restated product updates its quantity instead of
// duplicating the line.
func (d *Draft) Merge(e Extraction) {
	if v := cleanPtr(e.CustomerName); v != "" {
		d.CustomerName = v
	}
	if v := cleanPtr(e.ContactInfo); v != "" {
		d.ContactInfo = v
	}
	if v := cleanPtr(e.ExpectedStartDate); v != "" {
		d.ExpectedStartDate = v
	}
	if v := cleanPtr(e.Notes); v != "" {
		d.Notes = v
	}

	for _, it := range e.Items {
		name := strings.TrimSpace(it.ProductPackage)
		if name == "" && it.Quantity <= 0 {
			continue
		}
		if name == "" {
			// Quantity without a product applies to the last open line.
			if n := len(d.Items); n > 0 && it.Quantity > 0 {
				d.Items[n-1].Quantity = it.Quantity
			}
			continue
		}
		idx := -1
		for i := range d.Items {
			if strings.EqualFold(d.Items[i].ProductPackage, name) {
				idx = i
				break
			}
		}
		if idx == -1 {
			d.Items = append(d.Items, Item{ProductPackage: name, Quantity: it.Quantity})
			continue
		}
		d.Items[idx].ProductPackage = name
		if it.Quantity > 0 {
			d.Items[idx].Quantity = it.Quantity
		}
	}
}

// MissingFields lists the required fields still unset. quote_items is missing
// until at least one line has both a product and a positive quantity.
func (d *Draft) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(d.CustomerName) == "" {
		missing = append(missing, "customer_name")
	}
	if strings.TrimSpace(d.ContactInfo) == "" {
		missing = append(missing, "contact_info")
	}
	ok := false
	for _, it := range d.Items {
		if strings.TrimSpace(it.ProductPackage) != "" && it.Quantity > 0 {
			ok = true
			break
		}
	}
	if !ok {
		missing = append(missing, "quote_items")
	}
	if strings.TrimSpace(d.ExpectedStartDate) == "" {
		missing = append(missing, "expected_start_date")
	}
	return missing
}

func (d *Draft) Complete() bool { return len(d.MissingFields()) == 0 }

// RegistrationDraft collects the user-registration slots.
type RegistrationDraft struct {
	CustomerName string `json:"customer_name,omitempty"`
	ContactInfo  string `json:"contact_info,omitempty"`
}

type RegistrationExtraction struct {
	CustomerName *string `json:"customer_name"`
	ContactInfo  *string `json:"contact_info"`
}

func (d *RegistrationDraft) Merge(e RegistrationExtraction) {
	if v := cleanPtr(e.CustomerName); v != "" {
		d.CustomerName = v
	}
	if v := cleanPtr(e.ContactInfo); v != "" {
		d.ContactInfo = v
	}
}

func (d *RegistrationDraft) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(d.CustomerName) == "" {
		missing = append(missing, "customer_name")
	}
	if strings.TrimSpace(d.ContactInfo) == "" {
		missing = append(missing, "contact_info")
	}
	return missing
}

func (d *RegistrationDraft) Complete() bool { return len(d.MissingFields()) == 0 }

// SessionState owns the slot-filling state for one realtime session. The
// relay creates it on connect; tools mutate it under the lock. Nothing
// outside the session touches it, the lock only covers tool handlers racing
// HTTP confirmation.
type SessionState struct {
	mu sync.Mutex

	quote       Draft
	quoteStatus Status

	reg RegistrationDraft
}

func NewSessionState() *SessionState {
	return &SessionState{quoteStatus: StatusCollecting}
}

// UpdateQuote merges an extraction and returns a snapshot of the draft plus
// its status after the merge.
func (s *SessionState) UpdateQuote(e Extraction) (Draft, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quoteStatus == StatusConfirmed || s.quoteStatus == StatusCancelled {
		// A finished flow starts over on the next extraction.
		s.quote = Draft{}
		s.quoteStatus = StatusCollecting
	}
	s.quote.Merge(e)
	if s.quote.Complete() {
		s.quoteStatus = StatusComplete
	}
	return s.quote, s.quoteStatus
}

// QuoteSnapshot returns the current draft and status without mutating.
func (s *SessionState) QuoteSnapshot() (Draft, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quote, s.quoteStatus
}

// ConfirmQuote transitions complete → confirmed and clears the draft.
// Returns the confirmed draft, or false when there was nothing to confirm.
func (s *SessionState) ConfirmQuote() (Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quoteStatus != StatusComplete {
		return Draft{}, false
	}
	d := s.quote
	s.quote = Draft{}
	s.quoteStatus = StatusConfirmed
	return d, true
}

// CancelQuote clears the draft with no side effects.
func (s *SessionState) CancelQuote() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quote = Draft{}
	s.quoteStatus = StatusCancelled
}

// UpdateRegistration merges a registration extraction and reports whether
// the record is now complete.
func (s *SessionState) UpdateRegistration(e RegistrationExtraction) (RegistrationDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg.Merge(e)
	return s.reg, s.reg.Complete()
}

func (s *SessionState) Registration() RegistrationDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg
}

func cleanPtr(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}
