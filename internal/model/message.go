package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

const (
	TypeText  = "text"
	TypeImage = "image"
	TypeAudio = "audio"
)

type (
	Reaction struct {
		UserID string `bson:"userId" json:"userId"`
		Emoji  string `bson:"emoji" json:"emoji"`
	}

	// Message is one direct message. Content is ciphertext whenever Nonce
	// is set; a message without a nonce is plaintext (legacy clients).
	// Messages expire 24h after CreatedAt via the store's TTL index.
	Message struct {
		ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
		ChatID   string             `bson:"chatId" json:"chatId"`
		SenderID string             `bson:"senderId" json:"senderId"`
		// ClientTag is the sender-generated idempotency token, echoed back
		// verbatim so the sending client can reconcile its optimistic entry.
		ClientTag string     `bson:"clientTag,omitempty" json:"clientTag,omitempty"`
		Content   string     `bson:"content" json:"content"`
		Nonce     string     `bson:"nonce,omitempty" json:"nonce,omitempty"`
		Type      string     `bson:"type" json:"type"`
		MediaURL  string     `bson:"mediaUrl,omitempty" json:"mediaUrl,omitempty"`
		Status    string     `bson:"status" json:"status"`
		Reactions []Reaction `bson:"reactions,omitempty" json:"reactions,omitempty"`
		Read      bool       `bson:"read" json:"read"`
		CreatedAt time.Time  `bson:"createdAt" json:"createdAt"`
	}
)

// ValidType reports whether t is a known message type.
func ValidType(t string) bool {
	return t == TypeText || t == TypeImage || t == TypeAudio
}
