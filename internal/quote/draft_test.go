package quote

import (
	"reflect"
	"testing"
)

func str(s string) *string { return &s }

func TestMerge_KeepsEarlierAnswers(t *testing.T) {
	var d Draft
	d.Merge(Extraction{CustomerName: str("Alice Chen"), Items: []Item{{ProductPackage: "Product A", Quantity: 2}}})
	d.Merge(Extraction{ContactInfo: str("alice@example.com")})

	if d.CustomerName != "Alice Chen" {
		t.Errorf("CustomerName = %q, want %q", d.CustomerName, "Alice Chen")
	}
	if d.ContactInfo != "alice@example.com" {
		t.Errorf("ContactInfo = %q, want %q", d.ContactInfo, "alice@example.com")
	}
	if len(d.Items) != 1 || d.Items[0].Quantity != 2 {
		t.Errorf("Items = %v, want one line of Product A x2", d.Items)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	e := Extraction{
		CustomerName: str("Alice Chen"),
		ContactInfo:  str("alice@example.com"),
		Items:        []Item{{ProductPackage: "Product A", Quantity: 2}},
	}

	var d Draft
	d.Merge(e)
	once := d
	d.Merge(e)

	if !reflect.DeepEqual(d, once) {
		t.Errorf("second merge changed draft: %+v vs %+v", d, once)
	}
}

func TestMerge_RestateOverwrites(t *testing.T) {
	var d Draft
	d.Merge(Extraction{CustomerName: str("Alice")})
	d.Merge(Extraction{CustomerName: str("Alice Chen")})

	if d.CustomerName != "Alice Chen" {
		t.Errorf("CustomerName = %q, want restated value", d.CustomerName)
	}
}

func TestMerge_RestatedProductUpdatesQuantity(t *testing.T) {
	var d Draft
	d.Merge(Extraction{Items: []Item{{ProductPackage: "Product A", Quantity: 2}}})
	d.Merge(Extraction{Items: []Item{{ProductPackage: "product a", Quantity: 5}}})

	if len(d.Items) != 1 {
		t.Fatalf("Items len = %d, want 1 (no duplicate line)", len(d.Items))
	}
	if d.Items[0].Quantity != 5 {
		t.Errorf("Quantity = %d, want 5", d.Items[0].Quantity)
	}
}

func TestMerge_QuantityOnlyAppliesToLastLine(t *testing.T) {
	var d Draft
	d.Merge(Extraction{Items: []Item{{ProductPackage: "Product A"}}})
	d.Merge(Extraction{Items: []Item{{Quantity: 3}}})

	if len(d.Items) != 1 || d.Items[0].Quantity != 3 {
		t.Errorf("Items = %v, want Product A x3", d.Items)
	}
}

func TestMissingFields(t *testing.T) {
	var d Draft
	got := d.MissingFields()
	want := []string{"customer_name", "contact_info", "quote_items", "expected_start_date"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MissingFields() = %v, want %v", got, want)
	}

	d.Merge(Extraction{
		CustomerName: str("Alice"),
		ContactInfo:  str("alice@example.com"),
		Items:        []Item{{ProductPackage: "Product A", Quantity: 1}},
	})
	if d.Complete() {
		t.Error("Complete() = true with no start date")
	}
	if got := d.MissingFields(); !reflect.DeepEqual(got, []string{"expected_start_date"}) {
		t.Errorf("MissingFields() = %v, want [expected_start_date]", got)
	}

	d.Merge(Extraction{ExpectedStartDate: str("2026-09-01")})
	if !d.Complete() {
		t.Errorf("Complete() = false after all fields set, missing %v", d.MissingFields())
	}
}

func TestMissingFields_ItemWithoutQuantity(t *testing.T) {
	d := Draft{
		CustomerName:      "Alice",
		ContactInfo:       "alice@example.com",
		Items:             []Item{{ProductPackage: "Product A"}},
		ExpectedStartDate: "2026-09-01",
	}
	got := d.MissingFields()
	if !reflect.DeepEqual(got, []string{"quote_items"}) {
		t.Errorf("MissingFields() = %v, want [quote_items]", got)
	}
}

func TestSessionState_StatusTransitions(t *testing.T) {
	s := NewSessionState()

	_, status := s.UpdateQuote(Extraction{CustomerName: str("Alice")})
	if status != StatusCollecting {
		t.Errorf("status = %v, want collecting", status)
	}

	_, status = s.UpdateQuote(Extraction{
		ContactInfo:       str("alice@example.com"),
		Items:             []Item{{ProductPackage: "Product A", Quantity: 2}},
		ExpectedStartDate: str("2026-09-01"),
	})
	if status != StatusComplete {
		t.Errorf("status = %v, want complete", status)
	}

	d, ok := s.ConfirmQuote()
	if !ok {
		t.Fatal("ConfirmQuote() = false, want true for complete draft")
	}
	if d.CustomerName != "Alice" || len(d.Items) != 1 {
		t.Errorf("confirmed draft = %+v", d)
	}

	if _, ok := s.ConfirmQuote(); ok {
		t.Error("second ConfirmQuote() = true, want false")
	}
}

func TestSessionState_ConfirmRequiresComplete(t *testing.T) {
	s := NewSessionState()
	s.UpdateQuote(Extraction{CustomerName: str("Alice")})

	if _, ok := s.ConfirmQuote(); ok {
		t.Error("ConfirmQuote() = true for incomplete draft, want false")
	}
	if _, status := s.QuoteSnapshot(); status != StatusCollecting {
		t.Errorf("status after failed confirm = %v, want collecting", status)
	}
}

func TestSessionState_RestartsAfterFinished(t *testing.T) {
	s := NewSessionState()
	s.UpdateQuote(Extraction{
		CustomerName:      str("Alice"),
		ContactInfo:       str("alice@example.com"),
		Items:             []Item{{ProductPackage: "Product A", Quantity: 1}},
		ExpectedStartDate: str("2026-09-01"),
	})
	s.ConfirmQuote()

	d, status := s.UpdateQuote(Extraction{CustomerName: str("Bob")})
	if status != StatusCollecting {
		t.Errorf("status = %v, want collecting after restart", status)
	}
	if d.CustomerName != "Bob" || d.ContactInfo != "" || len(d.Items) != 0 {
		t.Errorf("draft after restart = %+v, want fresh draft with Bob only", d)
	}
}

func TestSessionState_CancelClears(t *testing.T) {
	s := NewSessionState()
	s.UpdateQuote(Extraction{CustomerName: str("Alice")})
	s.CancelQuote()

	d, status := s.QuoteSnapshot()
	if status != StatusCancelled || d.CustomerName != "" {
		t.Errorf("after cancel: draft=%+v status=%v", d, status)
	}
}

func TestUpdateRegistration(t *testing.T) {
	s := NewSessionState()

	_, complete := s.UpdateRegistration(RegistrationExtraction{CustomerName: str("Alice")})
	if complete {
		t.Error("complete = true with contact missing")
	}
	reg, complete := s.UpdateRegistration(RegistrationExtraction{ContactInfo: str("alice@example.com")})
	if !complete {
		t.Error("complete = false after both fields set")
	}
	if reg.CustomerName != "Alice" {
		t.Errorf("CustomerName = %q, want Alice", reg.CustomerName)
	}
}

func TestExtractionEmpty(t *testing.T) {
	if !(Extraction{}).Empty() {
		t.Error("Empty() = false for zero extraction")
	}
	if (Extraction{Notes: str("rush order")}).Empty() {
		t.Error("Empty() = true for extraction with notes")
	}
}
