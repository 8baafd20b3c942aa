package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	// LastMessage is the chat-level summary overwritten on every send.
	LastMessage struct {
		Content string    `bson:"content" json:"content"`
		Sender  string    `bson:"sender" json:"sender"`
		Nonce   string    `bson:"nonce,omitempty" json:"nonce,omitempty"`
		SentAt  time.Time `bson:"sentAt" json:"sentAt"`
	}

	// Chat holds metadata for one unordered user pair. Participants are
	// stored as a canonical sorted pair so there is at most one chat per
	// pair. Chats are never hard-deleted; only their messages expire.
	Chat struct {
		ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
		Participants []string           `bson:"participants" json:"participants"`
		LastMessage  *LastMessage       `bson:"lastMessage,omitempty" json:"lastMessage,omitempty"`
		Unread       map[string]int     `bson:"unread,omitempty" json:"unread,omitempty"`
		UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
	}
)

// Counterpart returns the other participant of a 1:1 chat.
func (c *Chat) Counterpart(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// ChatEntry is one row of a user's conversation list: the chat plus the
// resolved counterpart id and that user's own unread count.
type ChatEntry struct {
	Chat        Chat   `json:"chat"`
	Counterpart string `json:"counterpart"`
	Unread      int    `json:"unread"`
}
