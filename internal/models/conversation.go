package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ConversationMessage struct {
	Role    string    `bson:"role" json:"role"` // "user" | "assistant"
	Content string    `bson:"content" json:"content"`
	At      time.Time `bson:"at" json:"at"`
}

// Conversation is the transcript of one realtime session, appended to by the
// relay and mailed out when the session ends.
type Conversation struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"` // uuid v4

	Messages []ConversationMessage `bson:"messages" json:"messages"`

	StartedAt time.Time  `bson:"started_at" json:"started_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
}
