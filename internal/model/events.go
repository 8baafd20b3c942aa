package model

// Wire contract of the real-time channel. Inbound events arrive as an
// Envelope and are decoded into one of the payload structs below by the
// gateway dispatcher; outbound events reuse the same envelope shape.

const (
	// inbound
	EventLogin            = "login"
	EventJoinRoom         = "join_room"
	EventTyping           = "typing"
	EventStopTyping       = "stop_typing"
	EventSendMessage      = "send_message"
	EventMessageDelivered = "message_delivered"
	EventMessageRead      = "message_read"
	EventAddReaction      = "add_reaction"

	// outbound
	EventOnlineUsers      = "online_users"
	EventUserOnline       = "user_online"
	EventUserOffline      = "user_offline"
	EventReceiveMessage   = "receive_message"
	EventMessageStatus    = "message_status_update"
	EventMessagesReadBulk = "messages_read_bulk"
	EventReactionUpdated  = "reaction_updated"
)

type (
	LoginPayload struct {
		UserID string `json:"userId"`
	}

	JoinRoomPayload struct {
		ChatID string `json:"chatId"`
	}

	TypingPayload struct {
		ChatID string `json:"chatId"`
		UserID string `json:"userId"`
	}

	SendMessagePayload struct {
		ChatID      string `json:"chatId,omitempty"`
		SenderID    string `json:"senderId"`
		RecipientID string `json:"recipientId,omitempty"`
		ClientTag   string `json:"clientTag,omitempty"`
		Content     string `json:"content"`
		Nonce       string `json:"nonce,omitempty"`
		Type        string `json:"type,omitempty"`
		MediaURL    string `json:"mediaUrl,omitempty"`
	}

	DeliveredPayload struct {
		MessageID string `json:"messageId"`
		UserID    string `json:"userId"`
	}

	// ReadPayload marks a single message (MessageID set) or a whole chat
	// (ChatID set) as read.
	ReadPayload struct {
		MessageID string `json:"messageId,omitempty"`
		ChatID    string `json:"chatId,omitempty"`
		UserID    string `json:"userId"`
	}

	ReactionPayload struct {
		MessageID string `json:"messageId"`
		UserID    string `json:"userId"`
		Emoji     string `json:"emoji"`
	}

	StatusUpdate struct {
		MessageID string `json:"messageId"`
		ChatID    string `json:"chatId"`
		Status    string `json:"status"`
	}

	BulkRead struct {
		ChatID   string `json:"chatId"`
		ReaderID string `json:"readerId"`
	}

	ReactionUpdate struct {
		MessageID string     `json:"messageId"`
		Reactions []Reaction `json:"reactions"`
	}
)
