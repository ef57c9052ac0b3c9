package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Alserial/VoiceRAG/internal/quote"
	"github.com/Alserial/VoiceRAG/internal/tools"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

// Config is the server-enforced session configuration. Whatever the browser
// asks for in session.update, these win.
type Config struct {
	SystemMessage   string
	Voice           string
	Temperature     *float64
	MaxOutputTokens *int
	DisableAudio    *bool
}

// ConversationLog receives transcript events as the session progresses.
type ConversationLog interface {
	Begin(ctx context.Context, sessionID string)
	Append(ctx context.Context, sessionID, role, content string)
	End(ctx context.Context, sessionID string)
}

// PendingQuotes keeps completed drafts addressable by session id after the
// websocket closes, so a late HTTP confirm still finds them.
type PendingQuotes interface {
	Put(ctx context.Context, sessionID string, d quote.Draft) error
}

// Relay sits between the browser and the upstream realtime model. It
// rewrites session negotiation, hides tool traffic from the browser and
// dispatches tool calls locally.
type Relay struct {
	dialer   Dialer
	registry *tools.Registry
	cfg      Config
	sessions *SessionStore
	convlog  ConversationLog
	pending  PendingQuotes
	log      *logrus.Entry
}

func NewRelay(dialer Dialer, registry *tools.Registry, cfg Config, sessions *SessionStore, convlog ConversationLog, pending PendingQuotes, log *logrus.Entry) *Relay {
	return &Relay{
		dialer:   dialer,
		registry: registry,
		cfg:      cfg,
		sessions: sessions,
		convlog:  convlog,
		pending:  pending,
		log:      log,
	}
}

type transcriptLine struct {
	role    string
	content string
}

type relaySession struct {
	id    string
	state *quote.SessionState

	client   *websocket.Conn
	upstream *websocket.Conn

	clientMu   sync.Mutex
	upstreamMu sync.Mutex

	mu           sync.Mutex
	transcript   []transcriptLine
	pendingCalls map[string]string // call_id -> previous_item_id
}

func (s *relaySession) writeClient(data []byte) error {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	return s.client.WriteMessage(websocket.TextMessage, data)
}

func (s *relaySession) writeClientJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.writeClient(data)
}

func (s *relaySession) writeUpstream(data []byte) error {
	s.upstreamMu.Lock()
	defer s.upstreamMu.Unlock()
	return s.upstream.WriteMessage(websocket.TextMessage, data)
}

func (s *relaySession) writeUpstreamJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.writeUpstream(data)
}

// appendUser records one user turn.
func (s *relaySession) appendUser(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, transcriptLine{role: "user", content: content})
}

// appendAssistantDelta grows the current assistant turn, starting a new one
// after a user turn.
func (s *relaySession) appendAssistantDelta(delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.transcript); n > 0 && s.transcript[n-1].role == "assistant" {
		s.transcript[n-1].content += delta
		return
	}
	s.transcript = append(s.transcript, transcriptLine{role: "assistant", content: delta})
}

// recentTranscript formats the last n turns for tool prompts.
func (s *relaySession) recentTranscript(n int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.transcript
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(strings.ToUpper(l.role) + ": " + l.content + "\n")
	}
	return b.String()
}

func (s *relaySession) hasTranscript() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transcript) > 0
}

func (s *relaySession) rememberCall(callID, previousItemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pendingCalls[callID]; !ok {
		s.pendingCalls[callID] = previousItemID
	}
}

func (s *relaySession) takeCall(callID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.pendingCalls[callID]
	return prev, ok
}

func (s *relaySession) clearCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pendingCalls)
	s.pendingCalls = make(map[string]string)
	return n
}

// Handle relays one browser connection until either side closes. The caller
// owns the client connection's upgrade; Handle owns everything after.
func (r *Relay) Handle(ctx context.Context, client *websocket.Conn) error {
	sessionID := uuid.NewString()
	log := r.log.WithField("session_id", sessionID)

	if r.dialer == nil {
		err := utils.E(utils.CodeUnavailable, "Relay.Handle", "realtime upstream not configured", nil)
		log.Warn(err.Error())
		client.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "upstream unavailable"))
		return err
	}

	upstream, err := r.dialer.Dial(ctx)
	if err != nil {
		log.WithError(err).Error("could not reach realtime upstream")
		client.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "upstream unavailable"))
		return err
	}

	s := &relaySession{
		id:           sessionID,
		state:        r.sessions.Create(sessionID),
		client:       client,
		upstream:     upstream,
		pendingCalls: make(map[string]string),
	}
	defer r.sessions.Delete(sessionID)

	r.convlog.Begin(ctx, sessionID)
	log.Info("realtime session started")

	errc := make(chan error, 2)
	go r.pumpToUpstream(s, errc)
	go r.pumpToClient(ctx, s, log, errc)

	err = <-errc
	upstream.Close()
	client.Close()
	<-errc

	if s.hasTranscript() {
		r.convlog.End(context.Background(), sessionID)
	}
	log.Info("realtime session ended")

	if err != nil && websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return nil
	}
	return err
}

// pumpToUpstream forwards browser messages to the model, rewriting session
// negotiation on the way through.
func (r *Relay) pumpToUpstream(s *relaySession, errc chan<- error) {
	for {
		msgType, data, err := s.client.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		out := r.processToUpstream(data)
		if out == nil {
			continue
		}
		if err := s.writeUpstream(out); err != nil {
			errc <- err
			return
		}
	}
}

func (r *Relay) processToUpstream(data []byte) []byte {
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		return data
	}

	if t, _ := msg["type"].(string); t == "session.update" {
		session, ok := msg["session"].(map[string]interface{})
		if !ok {
			session = map[string]interface{}{}
			msg["session"] = session
		}
		if r.cfg.SystemMessage != "" {
			session["instructions"] = r.cfg.SystemMessage
		}
		if r.cfg.Temperature != nil {
			session["temperature"] = *r.cfg.Temperature
		}
		if r.cfg.MaxOutputTokens != nil {
			session["max_response_output_tokens"] = *r.cfg.MaxOutputTokens
		}
		if r.cfg.DisableAudio != nil {
			session["disable_audio"] = *r.cfg.DisableAudio
		}
		if r.cfg.Voice != "" {
			session["voice"] = r.cfg.Voice
		}
		if r.registry.Len() > 0 {
			session["tool_choice"] = "auto"
		} else {
			session["tool_choice"] = "none"
		}
		session["tools"] = r.registry.Schemas()

		out, err := json.Marshal(msg)
		if err != nil {
			return data
		}
		return out
	}

	return data
}

// pumpToClient forwards model messages to the browser, hiding tool traffic
// and dispatching tool calls.
func (r *Relay) pumpToClient(ctx context.Context, s *relaySession, log *logrus.Entry, errc chan<- error) {
	for {
		msgType, data, err := s.upstream.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		out := r.processToClient(ctx, s, log, data)
		if out == nil {
			continue
		}
		if err := s.writeClient(out); err != nil {
			errc <- err
			return
		}
	}
}

func (r *Relay) processToClient(ctx context.Context, s *relaySession, log *logrus.Entry, data []byte) []byte {
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		return data
	}

	switch t, _ := msg["type"].(string); t {
	case "session.created":
		// The browser never sees instructions or tools.
		if session, ok := msg["session"].(map[string]interface{}); ok {
			session["instructions"] = ""
			session["tools"] = []interface{}{}
			session["tool_choice"] = "none"
			session["max_response_output_tokens"] = nil
			if r.cfg.Voice != "" {
				session["voice"] = r.cfg.Voice
			}
		}
		return remarshal(msg, data)

	case "response.output_item.added":
		if itemType(msg) == "function_call" {
			return nil
		}

	case "conversation.item.created":
		switch itemType(msg) {
		case "function_call":
			if item, ok := msg["item"].(map[string]interface{}); ok {
				callID, _ := item["call_id"].(string)
				prev, _ := msg["previous_item_id"].(string)
				s.rememberCall(callID, prev)
			}
			return nil
		case "function_call_output":
			return nil
		}

	case "conversation.item.input_audio_transcription.completed":
		if transcript := extractTranscript(msg); transcript != "" {
			s.appendUser(transcript)
			r.convlog.Append(ctx, s.id, "user", transcript)
		}

	case "response.function_call_arguments.delta",
		"response.function_call_arguments.done":
		return nil

	case "response.output_item.done":
		if itemType(msg) == "function_call" {
			item := msg["item"].(map[string]interface{})
			r.dispatchTool(ctx, s, log, item)
			return nil
		}

	case "response.audio_transcript.delta":
		if delta, _ := msg["delta"].(string); delta != "" {
			s.appendAssistantDelta(delta)
		}

	case "response.done":
		if s.clearCalls() > 0 {
			if err := s.writeUpstreamJSON(map[string]interface{}{"type": "response.create"}); err != nil {
				log.WithError(err).Warn("could not request follow-up response")
			}
		}
		if text := assistantResponseText(msg); text != "" {
			r.convlog.Append(ctx, s.id, "assistant", text)
		}
		if stripFunctionCalls(msg) {
			return remarshal(msg, data)
		}

	case "error":
		log.WithField("error", msg["error"]).Warn("upstream error event")
	}

	return data
}

// dispatchTool runs one function call and routes its single result. The
// model always gets a function_call_output; the browser additionally gets
// the result when the tool addresses it.
func (r *Relay) dispatchTool(ctx context.Context, s *relaySession, log *logrus.Entry, item map[string]interface{}) {
	name, _ := item["name"].(string)
	callID, _ := item["call_id"].(string)
	args, _ := item["arguments"].(string)

	prev, _ := s.takeCall(callID)
	log.WithFields(logrus.Fields{"tool": name, "call_id": callID}).Info("tool called")

	inv := tools.Invocation{
		SessionID:  s.id,
		Args:       json.RawMessage(args),
		Transcript: s.recentTranscript(10),
		State:      s.state,
	}
	result, err := r.registry.Dispatch(ctx, name, inv)
	if err != nil {
		log.WithError(err).WithField("tool", name).Warn("tool dispatch failed")
	}

	output := result.Text
	if result.Direction == tools.ToClient {
		output = ""
	}
	if err := s.writeUpstreamJSON(map[string]interface{}{
		"type": "conversation.item.create",
		"item": map[string]interface{}{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	}); err != nil {
		log.WithError(err).Warn("could not deliver tool output upstream")
		return
	}

	if result.Direction == tools.ToClient {
		if err := s.writeClientJSON(map[string]interface{}{
			"type":             "extension.middle_tier_tool_response",
			"previous_item_id": prev,
			"tool_name":        name,
			"tool_result":      result.Text,
		}); err != nil {
			log.WithError(err).Warn("could not deliver tool result to client")
			return
		}
		r.maybeStorePending(ctx, s, log, name, result.Text)
	}
}

// maybeStorePending snapshots a completed quote draft so the HTTP confirm
// endpoint can still find it after the socket closes.
func (r *Relay) maybeStorePending(ctx context.Context, s *relaySession, log *logrus.Entry, toolName, resultText string) {
	if toolName != "extract_quote_info" || r.pending == nil {
		return
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(resultText), &payload); err != nil || payload.Status != "complete" {
		return
	}
	draft, status := s.state.QuoteSnapshot()
	if status != quote.StatusComplete {
		return
	}
	if err := r.pending.Put(ctx, s.id, draft); err != nil {
		log.WithError(err).Warn("could not store pending quote")
	}
}

func itemType(msg map[string]interface{}) string {
	item, ok := msg["item"].(map[string]interface{})
	if !ok {
		return ""
	}
	t, _ := item["type"].(string)
	return t
}

// extractTranscript digs the transcript out of the few shapes the upstream
// emits it in.
func extractTranscript(msg map[string]interface{}) string {
	if t, _ := msg["transcript"].(string); t != "" {
		return t
	}
	if item, ok := msg["item"].(map[string]interface{}); ok {
		if t, _ := item["transcript"].(string); t != "" {
			return t
		}
		if t, _ := item["text"].(string); t != "" {
			return t
		}
	}
	return ""
}

// stripFunctionCalls removes function_call entries from a response.done
// output list. Reports whether anything was removed.
func stripFunctionCalls(msg map[string]interface{}) bool {
	response, ok := msg["response"].(map[string]interface{})
	if !ok {
		return false
	}
	output, ok := response["output"].([]interface{})
	if !ok {
		return false
	}

	kept := output[:0]
	removed := false
	for _, entry := range output {
		if item, ok := entry.(map[string]interface{}); ok {
			if t, _ := item["type"].(string); t == "function_call" {
				removed = true
				continue
			}
		}
		kept = append(kept, entry)
	}
	if removed {
		response["output"] = kept
	}
	return removed
}

// assistantResponseText collects the assistant's text from a response.done.
func assistantResponseText(msg map[string]interface{}) string {
	response, ok := msg["response"].(map[string]interface{})
	if !ok {
		return ""
	}
	output, ok := response["output"].([]interface{})
	if !ok {
		return ""
	}

	var b strings.Builder
	for _, entry := range output {
		item, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		switch t, _ := item["type"].(string); t {
		case "text":
			if text, _ := item["text"].(string); text != "" {
				b.WriteString(text)
			}
		case "audio":
			if transcript, _ := item["transcript"].(string); transcript != "" {
				b.WriteString(transcript)
			}
		case "message":
			if content, ok := item["content"].([]interface{}); ok {
				for _, part := range content {
					p, ok := part.(map[string]interface{})
					if !ok {
						continue
					}
					if text, _ := p["text"].(string); text != "" {
						b.WriteString(text)
					} else if transcript, _ := p["transcript"].(string); transcript != "" {
						b.WriteString(transcript)
					}
				}
			}
		}
	}
	return b.String()
}

func remarshal(msg map[string]interface{}, fallback []byte) []byte {
	out, err := json.Marshal(msg)
	if err != nil {
		return fallback
	}
	return out
}
