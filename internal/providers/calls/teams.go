package calls

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/Alserial/VoiceRAG/internal/utils"
)

const graphEndpoint = "https://graph.microsoft.com/v1.0"

var uuidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// TeamsConfig carries the Azure AD app-only credentials for the calling bot.
type TeamsConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	CallbackURL  string

	// BotAppID defaults to ClientID.
	BotAppID       string
	BotDisplayName string
}

func (c TeamsConfig) complete() bool {
	return c.TenantID != "" && c.ClientID != "" && c.ClientSecret != "" && c.CallbackURL != ""
}

// TeamsCaller places calls through the Microsoft Graph communications API
// using the client-credentials flow.
type TeamsCaller struct {
	cfg  TeamsConfig
	http *http.Client
	log  *logrus.Entry
}

func NewTeamsCaller(cfg TeamsConfig, log *logrus.Entry) (*TeamsCaller, error) {
	const op = "calls.NewTeamsCaller"
	if !cfg.complete() {
		return nil, utils.E(utils.CodeUnavailable, op, "teams calling not configured", nil)
	}
	if !strings.HasPrefix(strings.ToLower(cfg.CallbackURL), "https://") {
		return nil, utils.E(utils.CodeInvalidArgument, op, "callback url must be https", nil)
	}
	if cfg.BotAppID == "" {
		cfg.BotAppID = cfg.ClientID
	}
	if cfg.BotDisplayName == "" {
		cfg.BotDisplayName = "VoiceRAG Bot"
	}

	oauth := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     "https://login.microsoftonline.com/" + cfg.TenantID + "/oauth2/v2.0/token",
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	client := oauth.Client(context.Background())
	client.Timeout = 30 * time.Second

	return &TeamsCaller{cfg: cfg, http: client, log: log}, nil
}

func (t *TeamsCaller) Available() bool { return true }

func (t *TeamsCaller) graph(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	const op = "TeamsCaller.graph"

	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return utils.E(utils.CodeInternal, op, "encode request body", err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, graphEndpoint+path, rdr)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return utils.E(utils.CodeUpstream, op, "graph request failed", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return utils.E(utils.CodeUpstream, op,
			fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode), nil)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return utils.E(utils.CodeUpstream, op, "decode graph response", err)
		}
	}
	return nil
}

func (t *TeamsCaller) sourceApplication() map[string]interface{} {
	return map[string]interface{}{
		"@odata.type": "#microsoft.graph.participantInfo",
		"identity": map[string]interface{}{
			"@odata.type": "#microsoft.graph.identitySet",
			"application": map[string]interface{}{
				"@odata.type": "#microsoft.graph.identity",
				"id":          t.cfg.BotAppID,
				"displayName": t.cfg.BotDisplayName,
			},
		},
	}
}

func (t *TeamsCaller) placeCall(ctx context.Context, targetIdentity map[string]interface{}) (string, error) {
	payload := map[string]interface{}{
		"@odata.type": "#microsoft.graph.call",
		"direction":   "outgoing",
		"callbackUri": t.cfg.CallbackURL,
		"tenantId":    t.cfg.TenantID,
		"source":      t.sourceApplication(),
		"targets": []map[string]interface{}{
			{
				"@odata.type": "#microsoft.graph.invitationParticipantInfo",
				"identity": map[string]interface{}{
					"@odata.type": "#microsoft.graph.identitySet",
				},
			},
		},
		"requestedModalities": []string{"audio"},
		"mediaConfig": map[string]interface{}{
			"@odata.type": "#microsoft.graph.serviceHostedMediaConfig",
		},
	}
	target := payload["targets"].([]map[string]interface{})[0]
	identity := target["identity"].(map[string]interface{})
	for k, v := range targetIdentity {
		identity[k] = v
	}

	var call struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	if err := t.graph(ctx, http.MethodPost, "/communications/calls", payload, &call); err != nil {
		return "", err
	}
	t.log.WithFields(logrus.Fields{"call_id": call.ID, "state": call.State}).Info("call placed")
	return call.ID, nil
}

func (t *TeamsCaller) CallPhone(ctx context.Context, phoneNumber string) (string, error) {
	return t.placeCall(ctx, map[string]interface{}{
		"phone": map[string]interface{}{
			"@odata.type": "#microsoft.graph.identity",
			"id":          phoneNumber,
		},
	})
}

func (t *TeamsCaller) CallTeamsUser(ctx context.Context, userInput string) (string, error) {
	objectID, err := t.resolveUser(ctx, userInput)
	if err != nil {
		return "", err
	}
	return t.placeCall(ctx, map[string]interface{}{
		"user": map[string]interface{}{
			"@odata.type": "#microsoft.graph.identity",
			"id":          objectID,
		},
	})
}

// resolveUser accepts either an object id or a UPN and returns the object id.
func (t *TeamsCaller) resolveUser(ctx context.Context, userInput string) (string, error) {
	const op = "TeamsCaller.resolveUser"

	userInput = strings.TrimSpace(userInput)
	if uuidRe.MatchString(userInput) {
		return userInput, nil
	}

	var user struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	}
	path := "/users/" + userInput + "?$select=id,displayName,userPrincipalName"
	if err := t.graph(ctx, http.MethodGet, path, nil, &user); err != nil {
		return "", utils.E(utils.CodeUpstream, op, "resolve user", err)
	}
	return user.ID, nil
}

func (t *TeamsCaller) Status(ctx context.Context, callID string) (*CallStatus, error) {
	var call struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	if err := t.graph(ctx, http.MethodGet, "/communications/calls/"+callID, nil, &call); err != nil {
		return nil, err
	}
	return &CallStatus{CallID: call.ID, State: call.State}, nil
}

func (t *TeamsCaller) End(ctx context.Context, callID string) error {
	return t.graph(ctx, http.MethodDelete, "/communications/calls/"+callID, nil, nil)
}
