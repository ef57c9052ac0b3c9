package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Alserial/VoiceRAG/internal/models"
	"github.com/Alserial/VoiceRAG/internal/providers/calls"
	"github.com/Alserial/VoiceRAG/internal/utils"
)

// CallService drives outbound phone and Teams calls through Graph, answers
// inbound PSTN calls through ACS, and keeps an in-memory record of the calls
// this process has seen.
type CallService interface {
	StartPhoneCall(ctx context.Context, phoneNumber string) (*models.Call, error)
	StartTeamsCall(ctx context.Context, userInput string) (*models.Call, error)
	Status(ctx context.Context, callID string) (*models.Call, error)
	End(ctx context.Context, callID string) error
	List() []models.Call
	HandleCallback(payload map[string]any)
	HandleACSEvents(ctx context.Context, events []map[string]any) (validationResponse string)
}

type callService struct {
	caller   calls.Caller
	answerer calls.Answerer

	mu    sync.RWMutex
	calls map[string]models.Call

	log *logrus.Entry
}

func NewCallService(caller calls.Caller, answerer calls.Answerer, log *logrus.Entry) CallService {
	return &callService{
		caller:   caller,
		answerer: answerer,
		calls:    make(map[string]models.Call),
		log:      log,
	}
}

func (s *callService) StartPhoneCall(ctx context.Context, phoneNumber string) (*models.Call, error) {
	const op = "CallService.StartPhoneCall"

	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "phone_number is required", nil)
	}
	if !s.caller.Available() {
		return nil, utils.E(utils.CodeUnavailable, op, "calling is not configured", nil)
	}
	callID, err := s.caller.CallPhone(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}
	return s.track(callID, "phone", phoneNumber), nil
}

func (s *callService) StartTeamsCall(ctx context.Context, userInput string) (*models.Call, error) {
	const op = "CallService.StartTeamsCall"

	userInput = strings.TrimSpace(userInput)
	if userInput == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user is required", nil)
	}
	if !s.caller.Available() {
		return nil, utils.E(utils.CodeUnavailable, op, "calling is not configured", nil)
	}
	callID, err := s.caller.CallTeamsUser(ctx, userInput)
	if err != nil {
		return nil, err
	}
	return s.track(callID, "teams_user", userInput), nil
}

func (s *callService) track(callID, callType, target string) *models.Call {
	call := models.Call{
		CallID:    callID,
		CallType:  callType,
		Target:    target,
		State:     "establishing",
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.calls[callID] = call
	s.mu.Unlock()
	return &call
}

// callControl is the status/hangup surface both providers share.
type callControl interface {
	Available() bool
	Status(ctx context.Context, callID string) (*calls.CallStatus, error)
	End(ctx context.Context, callID string) error
}

// controlFor picks the provider that owns a call. Inbound ACS calls are
// controlled through ACS; everything else goes through Graph.
func (s *callService) controlFor(call models.Call) callControl {
	if call.CallType == "acs_inbound" {
		return s.answerer
	}
	return s.caller
}

func (s *callService) Status(ctx context.Context, callID string) (*models.Call, error) {
	const op = "CallService.Status"

	s.mu.RLock()
	call, known := s.calls[callID]
	s.mu.RUnlock()

	control := s.controlFor(call)
	if control.Available() {
		status, err := control.Status(ctx, callID)
		if err == nil {
			if !known {
				call = models.Call{CallID: callID, CreatedAt: time.Now().UTC()}
			}
			call.State = status.State
			s.mu.Lock()
			s.calls[callID] = call
			s.mu.Unlock()
			return &call, nil
		}
		if !known {
			return nil, err
		}
		s.log.WithError(err).WithField("call_id", callID).Warn("call status lookup failed, returning last known state")
	}
	if !known {
		return nil, utils.E(utils.CodeNotFound, op, "unknown call", nil)
	}
	return &call, nil
}

func (s *callService) End(ctx context.Context, callID string) error {
	s.mu.RLock()
	call := s.calls[callID]
	s.mu.RUnlock()

	control := s.controlFor(call)
	if control.Available() {
		if err := control.End(ctx, callID); err != nil {
			return err
		}
	}
	s.mu.Lock()
	if call, ok := s.calls[callID]; ok {
		call.State = "terminated"
		s.calls[callID] = call
	}
	s.mu.Unlock()
	return nil
}

func (s *callService) List() []models.Call {
	s.mu.RLock()
	out := make([]models.Call, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// HandleCallback ingests Graph notification payloads. State transitions are
// recorded when recognizable; anything else is logged and accepted.
func (s *callService) HandleCallback(payload map[string]any) {
	values, _ := payload["value"].([]any)
	for _, v := range values {
		entry, _ := v.(map[string]any)
		if entry == nil {
			continue
		}
		resource, _ := entry["resourceData"].(map[string]any)
		if resource == nil {
			continue
		}
		callID, _ := resource["id"].(string)
		state, _ := resource["state"].(string)
		if callID == "" || state == "" {
			continue
		}
		s.mu.Lock()
		if call, ok := s.calls[callID]; ok {
			call.State = state
			s.calls[callID] = call
		}
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{"call_id": callID, "state": state}).Info("call state update")
	}
}

// HandleACSEvents ingests Event Grid and Call Automation notifications for
// the inbound PSTN leg. Subscription validation handshakes return the code to
// echo; IncomingCall events get answered; connection events update state.
func (s *callService) HandleACSEvents(ctx context.Context, events []map[string]any) string {
	var validation string
	for _, event := range events {
		eventType, _ := event["eventType"].(string)
		if eventType == "" {
			eventType, _ = event["type"].(string)
		}
		data, _ := event["data"].(map[string]any)

		switch eventType {
		case "Microsoft.EventGrid.SubscriptionValidationEvent":
			if data != nil {
				validation, _ = data["validationCode"].(string)
			}
		case "Microsoft.Communication.IncomingCall":
			s.answerIncoming(ctx, data)
		case "Microsoft.Communication.CallConnected":
			s.setACSState(data, "connected")
		case "Microsoft.Communication.CallDisconnected":
			s.setACSState(data, "disconnected")
		default:
			s.log.WithField("event_type", eventType).Debug("ignoring acs event")
		}
	}
	return validation
}

func (s *callService) answerIncoming(ctx context.Context, data map[string]any) {
	if data == nil {
		return
	}
	incomingContext, _ := data["incomingCallContext"].(string)
	if incomingContext == "" {
		s.log.Warn("incoming call event without context")
		return
	}
	if !s.answerer.Available() {
		s.log.Warn("incoming call but acs answering is not configured")
		return
	}

	callID, err := s.answerer.Answer(ctx, incomingContext)
	if err != nil {
		s.log.WithError(err).Error("could not answer incoming call")
		return
	}

	call := models.Call{
		CallID:    callID,
		CallType:  "acs_inbound",
		Target:    incomingCallerID(data),
		State:     "answering",
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.calls[callID] = call
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"call_id": callID, "from": call.Target}).Info("incoming call answered")
}

func (s *callService) setACSState(data map[string]any, state string) {
	if data == nil {
		return
	}
	callID, _ := data["callConnectionId"].(string)
	if callID == "" {
		return
	}
	s.mu.Lock()
	if call, ok := s.calls[callID]; ok {
		call.State = state
		s.calls[callID] = call
	}
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"call_id": callID, "state": state}).Info("call state update")
}

func incomingCallerID(data map[string]any) string {
	from, _ := data["from"].(map[string]any)
	if from == nil {
		return ""
	}
	if phone, ok := from["phoneNumber"].(map[string]any); ok {
		if v, ok := phone["value"].(string); ok {
			return v
		}
	}
	raw, _ := from["rawId"].(string)
	return raw
}
