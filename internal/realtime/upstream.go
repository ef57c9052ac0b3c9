package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Alserial/VoiceRAG/internal/utils"
)

// Dialer opens the websocket to the upstream realtime speech model. Tests
// swap in a local server.
type Dialer interface {
	Dial(ctx context.Context) (*websocket.Conn, error)
}

// UpstreamConfig points at the realtime endpoint.
type UpstreamConfig struct {
	// URL is the websocket endpoint, e.g. wss://api.openai.com/v1/realtime.
	URL    string
	APIKey string
	Model  string
}

func (c UpstreamConfig) Complete() bool {
	return c.URL != "" && c.APIKey != "" && c.Model != ""
}

// APIDialer dials the hosted realtime API with bearer auth.
type APIDialer struct {
	cfg UpstreamConfig
}

func NewAPIDialer(cfg UpstreamConfig) (*APIDialer, error) {
	if !cfg.Complete() {
		return nil, utils.E(utils.CodeUnavailable, "realtime.NewAPIDialer", "realtime upstream not configured", nil)
	}
	return &APIDialer{cfg: cfg}, nil
}

func (d *APIDialer) Dial(ctx context.Context) (*websocket.Conn, error) {
	const op = "APIDialer.Dial"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, d.cfg.URL+"?model="+d.cfg.Model, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, utils.E(utils.CodeUpstream, op, "connect to realtime upstream", err)
	}
	return conn, nil
}
