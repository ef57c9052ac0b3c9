package calls

import (
	"context"

	"github.com/Alserial/VoiceRAG/internal/utils"
)

// CallStatus is the subset of the upstream call resource the API exposes.
type CallStatus struct {
	CallID string `json:"call_id"`
	State  string `json:"state"`
}

// Caller places and controls outbound audio calls.
type Caller interface {
	Available() bool
	CallPhone(ctx context.Context, phoneNumber string) (string, error)
	CallTeamsUser(ctx context.Context, userInput string) (string, error)
	Status(ctx context.Context, callID string) (*CallStatus, error)
	End(ctx context.Context, callID string) error
}

// Unavailable is the degraded caller used when Teams credentials are not set.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }

func (Unavailable) CallPhone(ctx context.Context, phoneNumber string) (string, error) {
	return "", utils.E(utils.CodeUnavailable, "calls.CallPhone", "calling not configured", nil)
}

func (Unavailable) CallTeamsUser(ctx context.Context, userInput string) (string, error) {
	return "", utils.E(utils.CodeUnavailable, "calls.CallTeamsUser", "calling not configured", nil)
}

func (Unavailable) Status(ctx context.Context, callID string) (*CallStatus, error) {
	return nil, utils.E(utils.CodeUnavailable, "calls.Status", "calling not configured", nil)
}

func (Unavailable) End(ctx context.Context, callID string) error {
	return utils.E(utils.CodeUnavailable, "calls.End", "calling not configured", nil)
}
