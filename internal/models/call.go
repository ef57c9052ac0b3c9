package models

import "time"

// Call is a phone/Teams call tracked by the call service, outbound or
// answered inbound.
type Call struct {
	CallID    string    `json:"call_id"`
	CallType  string    `json:"call_type"` // "phone" | "teams_user" | "acs_inbound"
	Target    string    `json:"target"`    // phone number, user UPN/objectId, or inbound caller id
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}
