package calls

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Alserial/VoiceRAG/internal/utils"
)

const acsAPIVersion = "2023-03-06"

// Answerer handles the inbound leg: PSTN calls arriving through Azure
// Communication Services are answered, tracked and hung up here.
type Answerer interface {
	Available() bool
	Answer(ctx context.Context, incomingCallContext string) (string, error)
	Status(ctx context.Context, callID string) (*CallStatus, error)
	End(ctx context.Context, callID string) error
}

func (Unavailable) Answer(ctx context.Context, incomingCallContext string) (string, error) {
	return "", utils.E(utils.CodeUnavailable, "calls.Answer", "calling not configured", nil)
}

// ACSConfig carries the Communication Services resource credentials.
type ACSConfig struct {
	// ConnectionString is the "endpoint=...;accesskey=..." pair from the
	// ACS resource.
	ConnectionString string
	CallbackURL      string
}

// ACSCaller talks to the ACS Call Automation REST API, signing each request
// with the resource access key.
type ACSCaller struct {
	endpoint    *url.URL
	key         []byte
	callbackURL string
	http        *http.Client
	log         *logrus.Entry
}

func NewACSCaller(cfg ACSConfig, log *logrus.Entry) (*ACSCaller, error) {
	const op = "calls.NewACSCaller"
	if cfg.ConnectionString == "" || cfg.CallbackURL == "" {
		return nil, utils.E(utils.CodeUnavailable, op, "acs calling not configured", nil)
	}
	if !strings.HasPrefix(strings.ToLower(cfg.CallbackURL), "https://") {
		return nil, utils.E(utils.CodeInvalidArgument, op, "callback url must be https", nil)
	}
	endpoint, key, err := parseACSConnectionString(cfg.ConnectionString)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "parse connection string", err)
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid acs endpoint", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "access key is not base64", err)
	}
	return &ACSCaller{
		endpoint:    u,
		key:         decoded,
		callbackURL: cfg.CallbackURL,
		http:        &http.Client{Timeout: 30 * time.Second},
		log:         log,
	}, nil
}

func parseACSConnectionString(s string) (endpoint, accessKey string, err error) {
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return "", "", fmt.Errorf("malformed segment %q", part)
		}
		switch strings.ToLower(k) {
		case "endpoint":
			endpoint = strings.TrimSuffix(v, "/")
		case "accesskey":
			accessKey = v
		}
	}
	if endpoint == "" || accessKey == "" {
		return "", "", fmt.Errorf("connection string needs endpoint and accesskey")
	}
	return endpoint, accessKey, nil
}

func (a *ACSCaller) Available() bool { return true }

// sign adds the HMAC-SHA256 request signature ACS expects: the date, host
// and body hash are covered by the signed string.
func (a *ACSCaller) sign(req *http.Request, body []byte) {
	date := time.Now().UTC().Format(http.TimeFormat)
	contentHash := contentSHA256(body)
	stringToSign := req.Method + "\n" + req.URL.RequestURI() + "\n" + date + ";" + req.URL.Host + ";" + contentHash

	mac := hmac.New(sha256.New, a.key)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("x-ms-date", date)
	req.Header.Set("x-ms-content-sha256", contentHash)
	req.Header.Set("Authorization",
		"HMAC-SHA256 SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature="+signature)
}

func contentSHA256(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func (a *ACSCaller) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	const op = "ACSCaller.do"

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return utils.E(utils.CodeInternal, op, "encode request", err)
		}
	}

	u := *a.endpoint
	u.Path = path
	q := u.Query()
	q.Set("api-version", acsAPIVersion)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(payload))
	if err != nil {
		return utils.E(utils.CodeInternal, op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	a.sign(req, payload)

	resp, err := a.http.Do(req)
	if err != nil {
		return utils.E(utils.CodeUpstream, op, "acs request failed", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return utils.E(utils.CodeUpstream, op,
			fmt.Sprintf("acs %s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data))), nil)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return utils.E(utils.CodeUpstream, op, "decode acs response", err)
		}
	}
	return nil
}

// Answer accepts an incoming call using the context from the IncomingCall
// event and returns the call connection id.
func (a *ACSCaller) Answer(ctx context.Context, incomingCallContext string) (string, error) {
	const op = "ACSCaller.Answer"
	if incomingCallContext == "" {
		return "", utils.E(utils.CodeInvalidArgument, op, "incoming call context is required", nil)
	}

	var resp struct {
		CallConnectionID string `json:"callConnectionId"`
	}
	body := map[string]string{
		"incomingCallContext": incomingCallContext,
		"callbackUri":         a.callbackURL,
	}
	if err := a.do(ctx, http.MethodPost, "/calling/callConnections:answer", body, &resp); err != nil {
		return "", err
	}
	if resp.CallConnectionID == "" {
		return "", utils.E(utils.CodeUpstream, op, "acs answered without a call connection id", nil)
	}
	a.log.WithField("call_id", resp.CallConnectionID).Info("answered incoming call")
	return resp.CallConnectionID, nil
}

func (a *ACSCaller) Status(ctx context.Context, callID string) (*CallStatus, error) {
	var resp struct {
		CallConnectionID    string `json:"callConnectionId"`
		CallConnectionState string `json:"callConnectionState"`
	}
	if err := a.do(ctx, http.MethodGet, "/calling/callConnections/"+callID, nil, &resp); err != nil {
		return nil, err
	}
	return &CallStatus{CallID: callID, State: resp.CallConnectionState}, nil
}

// End terminates the call for every participant.
func (a *ACSCaller) End(ctx context.Context, callID string) error {
	return a.do(ctx, http.MethodPost, "/calling/callConnections/"+callID+":terminate", nil, nil)
}
