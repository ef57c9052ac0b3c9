package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Alserial/VoiceRAG/internal/quote"
	"github.com/Alserial/VoiceRAG/internal/tools"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

type nopConvLog struct{}

func (nopConvLog) Begin(ctx context.Context, sessionID string)           {}
func (nopConvLog) Append(ctx context.Context, sessionID, role, c string) {}
func (nopConvLog) End(ctx context.Context, sessionID string)             {}

type capturePending struct {
	mu     sync.Mutex
	drafts map[string]quote.Draft
}

func (p *capturePending) Put(ctx context.Context, sessionID string, d quote.Draft) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drafts == nil {
		p.drafts = make(map[string]quote.Draft)
	}
	p.drafts[sessionID] = d
	return nil
}

func newTestRelay(registry *tools.Registry, cfg Config, dialer Dialer, pending PendingQuotes) *Relay {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return NewRelay(dialer, registry, cfg, NewSessionStore(), nopConvLog{}, pending, testLog())
}

func decode(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, data)
	}
	return msg
}

func TestProcessToUpstream_RewritesSessionUpdate(t *testing.T) {
	registry := tools.NewRegistry()
	registry.Register(tools.Tool{
		Name:        "search",
		Description: "kb search",
		Handler: func(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
			return tools.Result{Text: "{}", Direction: tools.ToServer}, nil
		},
	})
	temp := 0.8
	maxTokens := 1024
	r := newTestRelay(registry, Config{
		SystemMessage:   "server instructions",
		Voice:           "alloy",
		Temperature:     &temp,
		MaxOutputTokens: &maxTokens,
	}, nil, nil)

	in := []byte(`{"type":"session.update","session":{"instructions":"client prompt","temperature":0.1,"tools":[{"name":"evil"}]}}`)
	out := decode(t, r.processToUpstream(in))

	session := out["session"].(map[string]interface{})
	if session["instructions"] != "server instructions" {
		t.Errorf("instructions = %v, want server override", session["instructions"])
	}
	if session["temperature"] != 0.8 {
		t.Errorf("temperature = %v, want 0.8", session["temperature"])
	}
	if session["max_response_output_tokens"] != float64(1024) {
		t.Errorf("max_response_output_tokens = %v, want 1024", session["max_response_output_tokens"])
	}
	if session["voice"] != "alloy" {
		t.Errorf("voice = %v, want alloy", session["voice"])
	}
	if session["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v, want auto", session["tool_choice"])
	}
	toolList, _ := session["tools"].([]interface{})
	if len(toolList) != 1 {
		t.Fatalf("tools = %v, want the registry's schema only", session["tools"])
	}
	schema := toolList[0].(map[string]interface{})
	if schema["name"] != "search" {
		t.Errorf("tool name = %v, want search", schema["name"])
	}
}

func TestProcessToUpstream_EmptyRegistryDisablesTools(t *testing.T) {
	r := newTestRelay(nil, Config{SystemMessage: "x"}, nil, nil)

	out := decode(t, r.processToUpstream([]byte(`{"type":"session.update","session":{}}`)))
	session := out["session"].(map[string]interface{})
	if session["tool_choice"] != "none" {
		t.Errorf("tool_choice = %v, want none", session["tool_choice"])
	}
}

func TestProcessToUpstream_PassesOtherMessages(t *testing.T) {
	r := newTestRelay(nil, Config{SystemMessage: "x"}, nil, nil)

	in := []byte(`{"type":"input_audio_buffer.append","audio":"AAAA"}`)
	out := r.processToUpstream(in)
	if string(out) != string(in) {
		t.Errorf("audio append was modified: %s", out)
	}
}

func newTestSession(r *Relay) *relaySession {
	return &relaySession{
		id:           "test-session",
		state:        r.sessions.Create("test-session"),
		pendingCalls: make(map[string]string),
	}
}

func TestProcessToClient_SanitizesSessionCreated(t *testing.T) {
	r := newTestRelay(nil, Config{Voice: "alloy"}, nil, nil)
	s := newTestSession(r)

	in := []byte(`{"type":"session.created","session":{"instructions":"secret prompt","tools":[{"name":"search"}],"tool_choice":"auto","max_response_output_tokens":200}}`)
	out := decode(t, r.processToClient(context.Background(), s, testLog(), in))

	session := out["session"].(map[string]interface{})
	if session["instructions"] != "" {
		t.Errorf("instructions = %v, want hidden", session["instructions"])
	}
	if toolList, _ := session["tools"].([]interface{}); len(toolList) != 0 {
		t.Errorf("tools = %v, want empty", session["tools"])
	}
	if session["tool_choice"] != "none" {
		t.Errorf("tool_choice = %v, want none", session["tool_choice"])
	}
	if session["max_response_output_tokens"] != nil {
		t.Errorf("max_response_output_tokens = %v, want null", session["max_response_output_tokens"])
	}
	if session["voice"] != "alloy" {
		t.Errorf("voice = %v, want override", session["voice"])
	}
}

func TestProcessToClient_HidesFunctionCallTraffic(t *testing.T) {
	r := newTestRelay(nil, Config{}, nil, nil)
	s := newTestSession(r)
	ctx := context.Background()

	hidden := []string{
		`{"type":"response.output_item.added","item":{"type":"function_call","name":"search"}}`,
		`{"type":"conversation.item.created","previous_item_id":"item_5","item":{"type":"function_call","call_id":"call_1"}}`,
		`{"type":"conversation.item.created","item":{"type":"function_call_output","call_id":"call_1"}}`,
		`{"type":"response.function_call_arguments.delta","delta":"{\"qu"}`,
		`{"type":"response.function_call_arguments.done","arguments":"{\"query\":\"x\"}"}`,
	}
	for _, in := range hidden {
		if out := r.processToClient(ctx, s, testLog(), []byte(in)); out != nil {
			t.Errorf("message leaked to client: %s", in)
		}
	}

	// the function_call item registered its previous_item_id
	if prev, ok := s.takeCall("call_1"); !ok || prev != "item_5" {
		t.Errorf("pending call = %q, %v; want item_5 recorded", prev, ok)
	}

	// ordinary messages pass through untouched
	in := `{"type":"response.audio.delta","delta":"AAAA"}`
	if out := r.processToClient(ctx, s, testLog(), []byte(in)); string(out) != in {
		t.Errorf("audio delta modified: %s", out)
	}
}

func TestProcessToClient_TranscriptCapture(t *testing.T) {
	r := newTestRelay(nil, Config{}, nil, nil)
	s := newTestSession(r)
	ctx := context.Background()

	r.processToClient(ctx, s, testLog(), []byte(`{"type":"conversation.item.input_audio_transcription.completed","transcript":"hello there"}`))
	r.processToClient(ctx, s, testLog(), []byte(`{"type":"response.audio_transcript.delta","delta":"hi, "}`))
	r.processToClient(ctx, s, testLog(), []byte(`{"type":"response.audio_transcript.delta","delta":"how can I help?"}`))

	got := s.recentTranscript(10)
	want := "USER: hello there\nASSISTANT: hi, how can I help?\n"
	if got != want {
		t.Errorf("transcript = %q, want %q", got, want)
	}
}

func TestStripFunctionCalls(t *testing.T) {
	msg := decode(t, []byte(`{"type":"response.done","response":{"output":[
		{"type":"function_call","name":"search"},
		{"type":"message","content":[{"type":"audio","transcript":"done"}]}
	]}}`))

	if !stripFunctionCalls(msg) {
		t.Fatal("stripFunctionCalls() = false, want true")
	}
	output := msg["response"].(map[string]interface{})["output"].([]interface{})
	if len(output) != 1 {
		t.Fatalf("output len = %d, want 1", len(output))
	}
	if output[0].(map[string]interface{})["type"] != "message" {
		t.Errorf("remaining item = %v", output[0])
	}
}

func TestAssistantResponseText(t *testing.T) {
	msg := decode(t, []byte(`{"response":{"output":[
		{"type":"audio","transcript":"part one. "},
		{"type":"message","content":[{"type":"audio","transcript":"part two."}]}
	]}}`))

	if got := assistantResponseText(msg); got != "part one. part two." {
		t.Errorf("assistantResponseText() = %q", got)
	}
}

// fakeUpstream is a websocket server standing in for the realtime API.
type fakeUpstream struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn

	received chan map[string]interface{}
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	f := &fakeUpstream{received: make(chan map[string]interface{}, 16)}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		for {
			var msg map[string]interface{}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			f.received <- msg
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeUpstream) send(t *testing.T, v interface{}) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		conn := f.conn
		f.mu.Unlock()
		if conn != nil {
			if err := conn.WriteJSON(v); err != nil {
				t.Fatalf("upstream write: %v", err)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("upstream connection never arrived")
}

func (f *fakeUpstream) next(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case msg := <-f.received:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for upstream message")
		return nil
	}
}

type fakeDialer struct{ url string }

func (f fakeDialer) Dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	return conn, err
}

// startRelay serves the relay behind a websocket endpoint and connects a
// browser-side client to it.
func startRelay(t *testing.T, r *Relay) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		r.Handle(req.Context(), conn)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("client dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func readClient(t *testing.T, client *websocket.Conn) map[string]interface{} {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]interface{}
	if err := client.ReadJSON(&msg); err != nil {
		t.Fatalf("client read: %v", err)
	}
	return msg
}

func TestRelay_EndToEndToolDispatch(t *testing.T) {
	upstream := newFakeUpstream(t)

	registry := tools.NewRegistry()
	registry.Register(tools.Tool{
		Name: "search",
		Handler: func(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
			var args struct {
				Query string `json:"query"`
			}
			json.Unmarshal(inv.Args, &args)
			return tools.Result{Text: `[{"id":"doc1","title":"Docs","text":"snippet for ` + args.Query + `","score":0.9}]`, Direction: tools.ToServer}, nil
		},
	})
	registry.Register(tools.Tool{
		Name: "report_grounding",
		Handler: func(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
			return tools.Result{Text: `{"sources":[{"chunk_id":"doc1"}]}`, Direction: tools.ToClient}, nil
		},
	})

	dialer := fakeDialer{url: "ws" + strings.TrimPrefix(upstream.srv.URL, "http")}
	r := newTestRelay(registry, Config{SystemMessage: "serve"}, dialer, &capturePending{})
	client := startRelay(t, r)

	// browser negotiates, relay rewrites
	if err := client.WriteJSON(map[string]interface{}{
		"type":    "session.update",
		"session": map[string]interface{}{"instructions": "client prompt"},
	}); err != nil {
		t.Fatalf("client write: %v", err)
	}
	update := upstream.next(t)
	session := update["session"].(map[string]interface{})
	if session["instructions"] != "serve" {
		t.Errorf("upstream instructions = %v, want server's", session["instructions"])
	}
	if toolList, _ := session["tools"].([]interface{}); len(toolList) != 2 {
		t.Errorf("upstream tools = %v, want both registered", session["tools"])
	}

	// upstream requests a server-directed tool
	upstream.send(t, map[string]interface{}{
		"type": "response.output_item.done",
		"item": map[string]interface{}{
			"type":      "function_call",
			"name":      "search",
			"call_id":   "call_1",
			"arguments": `{"query":"vacation"}`,
		},
	})
	out := upstream.next(t)
	if out["type"] != "conversation.item.create" {
		t.Fatalf("upstream got %v, want conversation.item.create", out["type"])
	}
	item := out["item"].(map[string]interface{})
	if item["type"] != "function_call_output" || item["call_id"] != "call_1" {
		t.Errorf("item = %v", item)
	}
	if output, _ := item["output"].(string); !strings.Contains(output, "snippet for vacation") {
		t.Errorf("output = %q, want search result", output)
	}

	// upstream requests a client-directed tool
	upstream.send(t, map[string]interface{}{
		"type":             "conversation.item.created",
		"previous_item_id": "item_9",
		"item":             map[string]interface{}{"type": "function_call", "call_id": "call_2"},
	})
	upstream.send(t, map[string]interface{}{
		"type": "response.output_item.done",
		"item": map[string]interface{}{
			"type":      "function_call",
			"name":      "report_grounding",
			"call_id":   "call_2",
			"arguments": `{"sources":["doc1"]}`,
		},
	})

	// the model sees an empty output for client-directed results
	out = upstream.next(t)
	item = out["item"].(map[string]interface{})
	if output, _ := item["output"].(string); output != "" {
		t.Errorf("output = %q, want empty for client-directed tool", output)
	}

	// the browser sees the extension event, never the function call
	msg := readClient(t, client)
	if msg["type"] != "extension.middle_tier_tool_response" {
		t.Fatalf("client got %v, want extension.middle_tier_tool_response", msg["type"])
	}
	if msg["tool_name"] != "report_grounding" || msg["previous_item_id"] != "item_9" {
		t.Errorf("client payload = %v", msg)
	}
	if result, _ := msg["tool_result"].(string); !strings.Contains(result, "doc1") {
		t.Errorf("tool_result = %q", result)
	}

	// response.done with pending calls triggers a follow-up response.create
	upstream.send(t, map[string]interface{}{
		"type": "response.done",
		"response": map[string]interface{}{
			"output": []interface{}{map[string]interface{}{"type": "function_call", "name": "search"}},
		},
	})
	out = upstream.next(t)
	if out["type"] != "response.create" {
		t.Errorf("upstream got %v, want response.create after tool turn", out["type"])
	}
	done := readClient(t, client)
	if done["type"] != "response.done" {
		t.Fatalf("client got %v, want response.done", done["type"])
	}
	output := done["response"].(map[string]interface{})["output"].([]interface{})
	if len(output) != 0 {
		t.Errorf("client response.done output = %v, want function calls stripped", output)
	}
}

func TestRelay_StoresPendingQuoteOnComplete(t *testing.T) {
	upstream := newFakeUpstream(t)
	pending := &capturePending{}

	registry := tools.NewRegistry()
	registry.Register(tools.Tool{
		Name: "extract_quote_info",
		Handler: func(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
			inv.State.UpdateQuote(quote.Extraction{
				CustomerName:      ptr("Alice"),
				ContactInfo:       ptr("alice@example.com"),
				Items:             []quote.Item{{ProductPackage: "Product A", Quantity: 2}},
				ExpectedStartDate: ptr("2026-09-01"),
			})
			return tools.Result{Text: `{"status":"complete"}`, Direction: tools.ToClient}, nil
		},
	})

	dialer := fakeDialer{url: "ws" + strings.TrimPrefix(upstream.srv.URL, "http")}
	r := newTestRelay(registry, Config{}, dialer, pending)
	client := startRelay(t, r)

	client.WriteJSON(map[string]interface{}{"type": "session.update", "session": map[string]interface{}{}})
	upstream.next(t)

	upstream.send(t, map[string]interface{}{
		"type": "response.output_item.done",
		"item": map[string]interface{}{
			"type":      "function_call",
			"name":      "extract_quote_info",
			"call_id":   "call_1",
			"arguments": `{}`,
		},
	})
	upstream.next(t)   // function_call_output
	readClient(t, client) // extension event

	pending.mu.Lock()
	defer pending.mu.Unlock()
	if len(pending.drafts) != 1 {
		t.Fatalf("pending drafts = %d, want 1", len(pending.drafts))
	}
	for _, d := range pending.drafts {
		if d.CustomerName != "Alice" || len(d.Items) != 1 {
			t.Errorf("stored draft = %+v", d)
		}
	}
}

func ptr(s string) *string { return &s }
