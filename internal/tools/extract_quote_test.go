package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/Alserial/VoiceRAG/internal/models"
	"github.com/Alserial/VoiceRAG/internal/providers/llm"
	"github.com/Alserial/VoiceRAG/internal/quote"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

type fakeLLM struct {
	extraction string
	err        error
}

func (f fakeLLM) ExtractJSON(ctx context.Context, system, input string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.extraction), nil
}

func (f fakeLLM) Classify(ctx context.Context, system, input string, labels []string) (string, error) {
	return "", f.err
}

func (f fakeLLM) Embed(ctx context.Context, text string) ([]float32, error) { return nil, f.err }
func (f fakeLLM) Configured() bool                                          { return true }
func (f fakeLLM) Close() error                                              { return nil }

type fakeCatalog struct {
	products []models.Product
	err      error
}

func (f fakeCatalog) Products(ctx context.Context) ([]models.Product, error) {
	return f.products, f.err
}

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

var testProducts = []models.Product{{ID: "1", Name: "Product A"}, {ID: "2", Name: "Product B"}}

func TestExtractQuote_EmptyTranscript(t *testing.T) {
	tool := NewExtractQuoteTool(fakeLLM{extraction: "{}"}, fakeCatalog{products: testProducts}, testLog())

	_, err := tool.Handler(context.Background(), Invocation{
		SessionID:  "s1",
		State:      quote.NewSessionState(),
		Transcript: "   ",
	})
	if !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Errorf("handler error = %v, want invalid argument", err)
	}
}

func TestExtractQuote_NoSessionState(t *testing.T) {
	tool := NewExtractQuoteTool(fakeLLM{extraction: "{}"}, fakeCatalog{}, testLog())

	_, err := tool.Handler(context.Background(), Invocation{Transcript: "USER: hi"})
	if !utils.IsCode(err, utils.CodeInternal) {
		t.Errorf("handler error = %v, want internal", err)
	}
}

func TestExtractQuote_IncompleteGoesToServer(t *testing.T) {
	tool := NewExtractQuoteTool(
		fakeLLM{extraction: `{"customer_name":"Alice Chen"}`},
		fakeCatalog{products: testProducts},
		testLog())

	res, err := tool.Handler(context.Background(), Invocation{
		SessionID:  "s1",
		State:      quote.NewSessionState(),
		Transcript: "USER: I'd like a quote, my name is Alice Chen",
	})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if res.Direction != ToServer {
		t.Errorf("Direction = %v, want ToServer while incomplete", res.Direction)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(res.Text), &payload); err != nil {
		t.Fatalf("result not json: %v", err)
	}
	if payload["status"] != "incomplete" {
		t.Errorf("status = %v, want incomplete", payload["status"])
	}
	if payload["is_complete"] != false {
		t.Errorf("is_complete = %v, want false", payload["is_complete"])
	}
	missing, _ := payload["missing_fields"].([]interface{})
	if len(missing) != 3 {
		t.Errorf("missing_fields = %v, want contact_info, quote_items and expected_start_date", missing)
	}
	if _, ok := payload["questions"]; !ok {
		t.Error("questions missing from incomplete result")
	}
}

func TestExtractQuote_CompleteGoesToClient(t *testing.T) {
	state := quote.NewSessionState()
	tool := NewExtractQuoteTool(
		fakeLLM{extraction: `{
			"customer_name": "Alice Chen",
			"contact_info": "alice@example.com",
			"quote_items": [{"product_package": "produc a", "quantity": 2}],
			"expected_start_date": "2026-09-01"
		}`},
		fakeCatalog{products: testProducts},
		testLog())

	res, err := tool.Handler(context.Background(), Invocation{
		SessionID:  "s1",
		State:      state,
		Transcript: "USER: I'm Alice Chen, alice@example.com, two of produc a starting September 1st",
	})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if res.Direction != ToClient {
		t.Errorf("Direction = %v, want ToClient when complete", res.Direction)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(res.Text), &payload); err != nil {
		t.Fatalf("result not json: %v", err)
	}
	if payload["status"] != "complete" {
		t.Errorf("status = %v, want complete", payload["status"])
	}
	if _, ok := payload["quote_data"]; !ok {
		t.Error("quote_data missing from complete result")
	}

	// fuzzy match resolved the canonical product name into session state
	draft, status := state.QuoteSnapshot()
	if status != quote.StatusComplete {
		t.Errorf("session status = %v, want complete", status)
	}
	if len(draft.Items) != 1 || draft.Items[0].ProductPackage != "Product A" {
		t.Errorf("draft items = %v, want canonical Product A", draft.Items)
	}
}

func TestExtractQuote_MergesAcrossTurns(t *testing.T) {
	state := quote.NewSessionState()
	catalog := fakeCatalog{products: testProducts}

	turns := []string{
		`{"customer_name":"Alice Chen"}`,
		`{"quote_items":[{"product_package":"Product A","quantity":2}]}`,
		`{"contact_info":"alice@example.com","expected_start_date":"2026-09-01"}`,
	}
	var last Result
	for _, extraction := range turns {
		tool := NewExtractQuoteTool(fakeLLM{extraction: extraction}, catalog, testLog())
		res, err := tool.Handler(context.Background(), Invocation{
			SessionID:  "s1",
			State:      state,
			Transcript: "USER: ...",
		})
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}
		last = res
	}

	if last.Direction != ToClient {
		t.Errorf("final Direction = %v, want ToClient", last.Direction)
	}
	draft, status := state.QuoteSnapshot()
	if status != quote.StatusComplete {
		t.Errorf("status = %v, want complete after three turns", status)
	}
	if draft.CustomerName != "Alice Chen" || draft.ContactInfo != "alice@example.com" || draft.ExpectedStartDate != "2026-09-01" {
		t.Errorf("draft = %+v, want fields from all turns", draft)
	}
}

func TestExtractQuote_HeuristicFallback(t *testing.T) {
	tool := NewExtractQuoteTool(
		llm.Unconfigured{},
		fakeCatalog{products: testProducts},
		testLog())

	state := quote.NewSessionState()
	res, err := tool.Handler(context.Background(), Invocation{
		SessionID:  "s1",
		State:      state,
		Transcript: "USER: my name is Alice Chen, reach me at alice@example.com, I need 3 Product A starting 2026-09-01",
	})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if res.Direction != ToClient {
		t.Errorf("Direction = %v, want ToClient (heuristics found everything)", res.Direction)
	}
	draft, _ := state.QuoteSnapshot()
	if draft.CustomerName != "Alice Chen" {
		t.Errorf("CustomerName = %q", draft.CustomerName)
	}
	if draft.ExpectedStartDate != "2026-09-01" {
		t.Errorf("ExpectedStartDate = %q", draft.ExpectedStartDate)
	}
	if draft.ContactInfo != "alice@example.com" {
		t.Errorf("ContactInfo = %q", draft.ContactInfo)
	}
	if len(draft.Items) != 1 || draft.Items[0].Quantity != 3 {
		t.Errorf("Items = %v, want Product A x3", draft.Items)
	}
}

func TestExtractQuote_UnmatchedProductReported(t *testing.T) {
	tool := NewExtractQuoteTool(
		fakeLLM{extraction: `{"quote_items":[{"product_package":"xqzwvkjh","quantity":1}]}`},
		fakeCatalog{products: testProducts},
		testLog())

	res, err := tool.Handler(context.Background(), Invocation{
		SessionID:  "s1",
		State:      quote.NewSessionState(),
		Transcript: "USER: one xqzwvkjh please",
	})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	var payload map[string]interface{}
	json.Unmarshal([]byte(res.Text), &payload)
	unmatched, _ := payload["unmatched_products"].([]interface{})
	if len(unmatched) != 1 {
		t.Errorf("unmatched_products = %v, want one entry", unmatched)
	}
}

func TestExtractUser(t *testing.T) {
	state := quote.NewSessionState()
	tool := NewExtractUserTool(
		fakeLLM{extraction: `{"customer_name":"Bob Lee","contact_info":"bob@example.com"}`},
		testLog())

	res, err := tool.Handler(context.Background(), Invocation{
		SessionID:  "s1",
		State:      state,
		Transcript: "USER: Bob Lee, bob@example.com",
	})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if res.Direction != ToClient {
		t.Errorf("Direction = %v, want ToClient when registration complete", res.Direction)
	}
	reg := state.Registration()
	if reg.CustomerName != "Bob Lee" || reg.ContactInfo != "bob@example.com" {
		t.Errorf("registration = %+v", reg)
	}
}

func TestExtractUser_PartialStaysServerSide(t *testing.T) {
	tool := NewExtractUserTool(fakeLLM{extraction: `{"customer_name":"Bob Lee"}`}, testLog())

	res, err := tool.Handler(context.Background(), Invocation{
		SessionID:  "s1",
		State:      quote.NewSessionState(),
		Transcript: "USER: I'm Bob Lee",
	})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if res.Direction != ToServer {
		t.Errorf("Direction = %v, want ToServer while incomplete", res.Direction)
	}
}
