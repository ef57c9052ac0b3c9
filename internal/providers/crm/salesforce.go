package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Alserial/VoiceRAG/internal/models"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

const apiVersion = "v59.0"

// SalesforceConfig carries the username-password OAuth credentials.
type SalesforceConfig struct {
	InstanceURL    string
	Username       string
	Password       string
	SecurityToken  string
	ConsumerKey    string
	ConsumerSecret string

	// PricebookID enables quote line items. Without it products are listed
	// in the quote description instead.
	PricebookID string

	CreateOpportunity bool
	OpportunityStage  string
}

func (c SalesforceConfig) complete() bool {
	return c.InstanceURL != "" && c.Username != "" && c.Password != "" &&
		c.SecurityToken != "" && c.ConsumerKey != "" && c.ConsumerSecret != ""
}

// loginURL picks the OAuth host. Sandboxes authenticate against
// test.salesforce.com, everything else against login.salesforce.com.
func (c SalesforceConfig) loginURL() string {
	lower := strings.ToLower(c.InstanceURL)
	if strings.Contains(lower, "test.salesforce.com") || strings.Contains(lower, "sandbox") {
		return "https://test.salesforce.com"
	}
	return "https://login.salesforce.com"
}

// Salesforce implements Provider against the Salesforce REST API using the
// username-password OAuth flow.
type Salesforce struct {
	cfg  SalesforceConfig
	http *http.Client
	log  *logrus.Entry

	mu          sync.Mutex
	accessToken string
	instanceURL string
	tokenUntil  time.Time
}

func NewSalesforce(cfg SalesforceConfig, log *logrus.Entry) (*Salesforce, error) {
	const op = "crm.NewSalesforce"
	if !cfg.complete() {
		return nil, utils.E(utils.CodeUnavailable, op, "salesforce credentials not configured", nil)
	}
	if cfg.OpportunityStage == "" {
		cfg.OpportunityStage = "Prospecting"
	}
	return &Salesforce{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log,
	}, nil
}

func (s *Salesforce) Available() bool { return true }

type queryResult struct {
	TotalSize int                      `json:"totalSize"`
	Records   []map[string]interface{} `json:"records"`
}

type createResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

func soqlEscape(s string) string { return strings.ReplaceAll(s, "'", "''") }

func looksLikeEmail(s string) bool { return strings.Contains(s, "@") }

func looksLikePhone(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

func (s *Salesforce) login(ctx context.Context) error {
	const op = "Salesforce.login"

	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {s.cfg.ConsumerKey},
		"client_secret": {s.cfg.ConsumerSecret},
		"username":      {s.cfg.Username},
		"password":      {s.cfg.Password + s.cfg.SecurityToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.loginURL()+"/services/oauth2/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return utils.E(utils.CodeInternal, op, "build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return utils.E(utils.CodeUpstream, op, "token request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return utils.E(utils.CodeUpstream, op,
			fmt.Sprintf("oauth failed with status %d", resp.StatusCode), nil)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		InstanceURL string `json:"instance_url"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return utils.E(utils.CodeUpstream, op, "decode token response", err)
	}

	s.mu.Lock()
	s.accessToken = tok.AccessToken
	s.instanceURL = tok.InstanceURL
	// Tokens last much longer; refresh hourly to stay clear of revocations.
	s.tokenUntil = time.Now().Add(1 * time.Hour)
	s.mu.Unlock()
	return nil
}

func (s *Salesforce) token(ctx context.Context) (string, string, error) {
	s.mu.Lock()
	tok, inst, until := s.accessToken, s.instanceURL, s.tokenUntil
	s.mu.Unlock()
	if tok != "" && time.Now().Before(until) {
		return tok, inst, nil
	}
	if err := s.login(ctx); err != nil {
		return "", "", err
	}
	s.mu.Lock()
	tok, inst = s.accessToken, s.instanceURL
	s.mu.Unlock()
	return tok, inst, nil
}

// rest performs one REST call, retrying once after a fresh login on 401.
func (s *Salesforce) rest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	const op = "Salesforce.rest"

	for attempt := 0; attempt < 2; attempt++ {
		tok, inst, err := s.token(ctx)
		if err != nil {
			return err
		}

		var rdr io.Reader
		if body != nil {
			buf, err := json.Marshal(body)
			if err != nil {
				return utils.E(utils.CodeInternal, op, "encode request body", err)
			}
			rdr = bytes.NewReader(buf)
		}

		req, err := http.NewRequestWithContext(ctx, method, inst+path, rdr)
		if err != nil {
			return utils.E(utils.CodeInternal, op, "build request", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.http.Do(req)
		if err != nil {
			return utils.E(utils.CodeUpstream, op, "request failed", err)
		}
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			s.mu.Lock()
			s.accessToken = ""
			s.mu.Unlock()
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return utils.E(utils.CodeUpstream, op,
				fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode), nil)
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return utils.E(utils.CodeUpstream, op, "decode response", err)
			}
		}
		return nil
	}
	return utils.E(utils.CodeUpstream, op, "unauthorized after relogin", nil)
}

func (s *Salesforce) query(ctx context.Context, soql string) (*queryResult, error) {
	var res queryResult
	path := "/services/data/" + apiVersion + "/query?q=" + url.QueryEscape(soql)
	if err := s.rest(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Salesforce) create(ctx context.Context, sobject string, fields map[string]interface{}) (string, error) {
	var res createResult
	path := "/services/data/" + apiVersion + "/sobjects/" + sobject
	if err := s.rest(ctx, http.MethodPost, path, fields, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

func (s *Salesforce) update(ctx context.Context, sobject, id string, fields map[string]interface{}) error {
	path := "/services/data/" + apiVersion + "/sobjects/" + sobject + "/" + id
	return s.rest(ctx, http.MethodPatch, path, fields, nil)
}

func (s *Salesforce) get(ctx context.Context, sobject, id string) (map[string]interface{}, error) {
	var out map[string]interface{}
	path := "/services/data/" + apiVersion + "/sobjects/" + sobject + "/" + id
	if err := s.rest(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func str(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// ensureAccount finds the account for this customer, keyed by contact info
// first to avoid duplicate-name collisions, creating one when nothing matches.
func (s *Salesforce) ensureAccount(ctx context.Context, customerName, contactInfo string) (string, error) {
	esc := soqlEscape(contactInfo)

	var contactQ string
	switch {
	case looksLikeEmail(contactInfo):
		contactQ = "SELECT Id, AccountId FROM Contact WHERE Email = '" + esc + "' LIMIT 1"
	case looksLikePhone(contactInfo):
		contactQ = "SELECT Id, AccountId FROM Contact WHERE Phone = '" + esc + "' LIMIT 1"
	}
	if contactQ != "" {
		res, err := s.query(ctx, contactQ)
		if err != nil {
			return "", err
		}
		if res.TotalSize > 0 {
			if accountID := str(res.Records[0], "AccountId"); accountID != "" {
				return accountID, nil
			}
		}
	}

	if !looksLikeEmail(contactInfo) {
		res, err := s.query(ctx,
			"SELECT Id FROM Account WHERE Name = '"+soqlEscape(customerName)+"' LIMIT 1")
		if err != nil {
			return "", err
		}
		if res.TotalSize > 0 {
			return str(res.Records[0], "Id"), nil
		}
	}

	fields := map[string]interface{}{
		"Name": customerName,
		"Type": "Customer",
	}
	switch {
	case looksLikeEmail(contactInfo):
		fields["Website"] = contactInfo
	case looksLikePhone(contactInfo):
		fields["Phone"] = contactInfo
	}
	return s.create(ctx, "Account", fields)
}

func (s *Salesforce) ensureContact(ctx context.Context, accountID, customerName, contactInfo string) (string, error) {
	esc := soqlEscape(contactInfo)

	var q string
	switch {
	case looksLikeEmail(contactInfo):
		q = "SELECT Id, AccountId FROM Contact WHERE Email = '" + esc + "' LIMIT 1"
	case looksLikePhone(contactInfo):
		q = "SELECT Id, AccountId FROM Contact WHERE Phone = '" + esc + "' LIMIT 1"
	}
	if q != "" {
		res, err := s.query(ctx, q)
		if err != nil {
			return "", err
		}
		if res.TotalSize > 0 {
			contactID := str(res.Records[0], "Id")
			if existing := str(res.Records[0], "AccountId"); existing != "" && existing != accountID {
				if err := s.update(ctx, "Contact", contactID, map[string]interface{}{"AccountId": accountID}); err != nil {
					s.log.WithError(err).Warn("could not relink contact to account")
				}
			}
			return contactID, nil
		}
	}

	fields := map[string]interface{}{
		"AccountId": accountID,
		"LastName":  customerName,
	}
	switch {
	case looksLikeEmail(contactInfo):
		fields["Email"] = contactInfo
	case looksLikePhone(contactInfo):
		fields["Phone"] = contactInfo
	}
	return s.create(ctx, "Contact", fields)
}

func (s *Salesforce) RegisterCustomer(ctx context.Context, customerName, contactInfo string) (*Registration, error) {
	const op = "Salesforce.RegisterCustomer"

	accountID, err := s.ensureAccount(ctx, customerName, contactInfo)
	if err != nil {
		return nil, utils.E(utils.CodeUpstream, op, "create or get account", err)
	}
	contactID, err := s.ensureContact(ctx, accountID, customerName, contactInfo)
	if err != nil {
		return nil, utils.E(utils.CodeUpstream, op, "create or get contact", err)
	}
	return &Registration{AccountID: accountID, ContactID: contactID}, nil
}

func (s *Salesforce) ListProducts(ctx context.Context) ([]models.Product, error) {
	const op = "Salesforce.ListProducts"

	res, err := s.query(ctx, "SELECT Id, Name FROM Product2 WHERE IsActive = true ORDER BY Name LIMIT 100")
	if err != nil {
		return nil, utils.E(utils.CodeUpstream, op, "query products", err)
	}
	out := make([]models.Product, 0, res.TotalSize)
	for _, rec := range res.Records {
		out = append(out, models.Product{ID: str(rec, "Id"), Name: str(rec, "Name")})
	}
	return out, nil
}

func (s *Salesforce) CreateQuote(ctx context.Context, in QuoteInput) (*QuoteResult, error) {
	const op = "Salesforce.CreateQuote"

	accountID, err := s.ensureAccount(ctx, in.CustomerName, in.ContactInfo)
	if err != nil {
		s.log.WithError(err).Warn("account lookup failed, creating quote without account")
		accountID = ""
	} else {
		if _, err := s.ensureContact(ctx, accountID, in.CustomerName, in.ContactInfo); err != nil {
			s.log.WithError(err).Warn("contact lookup failed")
		}
	}

	var opportunityID string
	if s.cfg.CreateOpportunity && accountID != "" {
		opportunityID, err = s.create(ctx, "Opportunity", map[string]interface{}{
			"AccountId": accountID,
			"Name":      "Opportunity for " + in.CustomerName,
			"StageName": s.cfg.OpportunityStage,
			"CloseDate": time.Now().AddDate(0, 3, 0).Format("2006-01-02"),
		})
		if err != nil {
			s.log.WithError(err).Warn("opportunity creation failed")
			opportunityID = ""
		}
	}

	fields := map[string]interface{}{
		"Name":   "Quote for " + in.CustomerName,
		"Status": "Draft",
	}
	if s.cfg.PricebookID != "" {
		fields["Pricebook2Id"] = s.cfg.PricebookID
	}
	if accountID != "" {
		fields["AccountId"] = accountID
	}
	if opportunityID != "" {
		fields["OpportunityId"] = opportunityID
	}
	if in.ExpectedStartDate != "" {
		fields["ExpirationDate"] = in.ExpectedStartDate
	}
	if in.Notes != "" {
		fields["Description"] = in.Notes
	}

	quoteID, err := s.create(ctx, "Quote", fields)
	if err != nil {
		// Some orgs forbid setting AccountId on insert; retry without it.
		if accountID != "" {
			delete(fields, "AccountId")
			quoteID, err = s.create(ctx, "Quote", fields)
		}
		if err != nil {
			return nil, utils.E(utils.CodeUpstream, op, "create quote", err)
		}
	}

	unbooked := s.attachLineItems(ctx, quoteID, in.Items)
	if len(unbooked) > 0 {
		s.appendUnbookedItems(ctx, quoteID, in, unbooked)
	}

	quoteNumber := quoteID
	if q, err := s.get(ctx, "Quote", quoteID); err == nil {
		if n := str(q, "QuoteNumber"); n != "" {
			quoteNumber = n
		}
	}

	s.mu.Lock()
	inst := s.instanceURL
	s.mu.Unlock()

	return &QuoteResult{
		QuoteID:     quoteID,
		QuoteNumber: quoteNumber,
		QuoteURL:    inst + "/lightning/r/Quote/" + quoteID + "/view",
	}, nil
}

// attachLineItems creates one QuoteLineItem per quote item and returns the
// items that could not be booked against a pricebook entry.
func (s *Salesforce) attachLineItems(ctx context.Context, quoteID string, items []models.QuoteItem) []models.QuoteItem {
	if s.cfg.PricebookID == "" {
		return items
	}

	var unbooked []models.QuoteItem
	for _, item := range items {
		if item.ProductPackage == "" {
			continue
		}
		if err := s.attachLineItem(ctx, quoteID, item); err != nil {
			s.log.WithError(err).WithField("product", item.ProductPackage).
				Warn("could not book quote line item")
			unbooked = append(unbooked, item)
		}
	}
	return unbooked
}

func (s *Salesforce) attachLineItem(ctx context.Context, quoteID string, item models.QuoteItem) error {
	esc := soqlEscape(item.ProductPackage)

	res, err := s.query(ctx,
		"SELECT Id FROM Product2 WHERE Name = '"+esc+"' AND IsActive = true LIMIT 1")
	if err != nil {
		return err
	}
	if res.TotalSize == 0 {
		res, err = s.query(ctx,
			"SELECT Id FROM Product2 WHERE Name LIKE '%"+esc+"%' AND IsActive = true LIMIT 1")
		if err != nil {
			return err
		}
	}
	if res.TotalSize == 0 {
		return fmt.Errorf("product %q not found", item.ProductPackage)
	}
	productID := str(res.Records[0], "Id")

	entries, err := s.query(ctx,
		"SELECT Id, UnitPrice FROM PricebookEntry WHERE Product2Id = '"+productID+
			"' AND Pricebook2Id = '"+s.cfg.PricebookID+"' AND IsActive = true LIMIT 1")
	if err != nil {
		return err
	}
	if entries.TotalSize == 0 {
		return fmt.Errorf("no pricebook entry for product %q", item.ProductPackage)
	}

	_, err = s.create(ctx, "QuoteLineItem", map[string]interface{}{
		"QuoteId":          quoteID,
		"PricebookEntryId": str(entries.Records[0], "Id"),
		"Quantity":         item.Quantity,
		"UnitPrice":        entries.Records[0]["UnitPrice"],
	})
	return err
}

// appendUnbookedItems records products that never became line items in the
// quote description so they survive in the CRM either way.
func (s *Salesforce) appendUnbookedItems(ctx context.Context, quoteID string, in QuoteInput, unbooked []models.QuoteItem) {
	var b strings.Builder
	if in.Notes != "" {
		b.WriteString(in.Notes)
		b.WriteString("\n\n")
	}
	b.WriteString("Requested Products:\n")
	for _, item := range unbooked {
		fmt.Fprintf(&b, "  - %s (Quantity: %d)\n", item.ProductPackage, item.Quantity)
	}
	if in.ExpectedStartDate != "" {
		fmt.Fprintf(&b, "\nExpected Start Date: %s", in.ExpectedStartDate)
	}

	if err := s.update(ctx, "Quote", quoteID, map[string]interface{}{"Description": b.String()}); err != nil {
		s.log.WithError(err).Warn("could not update quote description")
	}
}
