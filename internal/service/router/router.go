package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ephemsg/internal/metrics"
	"ephemsg/internal/model"
	"ephemsg/internal/ratelimit"
	"ephemsg/internal/service/presence"
	"ephemsg/internal/utils/log"

	"go.uber.org/zap"
)

var (
	// ErrValidation: malformed id or missing required field, rejected
	// before any mutation.
	ErrValidation = errors.New("router: validation failed")
	ErrNotFound   = errors.New("router: not found")
	// ErrPersistence: store unavailable; the operation was aborted and no
	// partial state committed after the failing write.
	ErrPersistence = errors.New("router: persistence failure")
)

type (
	ChatStore interface {
		Ensure(ctx context.Context, a, b string) (*model.Chat, error)
		GetByID(ctx context.Context, id string) (*model.Chat, error)
		RecordMessage(ctx context.Context, chatID string, last model.LastMessage, recipientID string) error
		ResetUnread(ctx context.Context, chatID, userID string) error
	}

	MessageStore interface {
		Insert(ctx context.Context, msg *model.Message) error
		GetByID(ctx context.Context, id string) (*model.Message, error)
		UpdateStatus(ctx context.Context, id, status string) (*model.Message, error)
		MarkChatRead(ctx context.Context, chatID, readerID string) (int64, error)
		SetReaction(ctx context.Context, messageID, userID, emoji string) (*model.Message, error)
	}

	// ReceiptSink buffers status events addressed to a user with zero
	// active connections, replayed on their next login.
	ReceiptSink interface {
		Buffer(ctx context.Context, userID, event string, data any)
	}

	Router struct {
		chats    ChatStore
		messages MessageStore
		registry *presence.Registry
		receipts ReceiptSink
		typing   *ratelimit.PerKey
	}
)

func NewRouter(chats ChatStore, messages MessageStore, registry *presence.Registry, receipts ReceiptSink, typing *ratelimit.PerKey) *Router {
	return &Router{
		chats:    chats,
		messages: messages,
		registry: registry,
		receipts: receipts,
		typing:   typing,
	}
}

// Send validates, persists and fans out one message. The message lands in
// the store with status=sent and the recipient's unread counter is bumped
// whether or not they are online; real-time delivery only happens to
// currently registered connections.
func (r *Router) Send(ctx context.Context, in model.SendMessagePayload) (*model.Message, error) {
	if in.SenderID == "" {
		return nil, fmt.Errorf("%w: senderId is required", ErrValidation)
	}
	if in.Content == "" && in.MediaURL == "" {
		return nil, fmt.Errorf("%w: empty message", ErrValidation)
	}
	if in.Type == "" {
		in.Type = model.TypeText
	}
	if !model.ValidType(in.Type) {
		return nil, fmt.Errorf("%w: unknown message type %q", ErrValidation, in.Type)
	}

	chat, err := r.resolveChat(ctx, in)
	if err != nil {
		return nil, err
	}
	recipient := chat.Counterpart(in.SenderID)
	if recipient == "" {
		return nil, fmt.Errorf("%w: sender is not a participant of chat %s", ErrValidation, chat.ID.Hex())
	}

	msg := &model.Message{
		ChatID:    chat.ID.Hex(),
		SenderID:  in.SenderID,
		ClientTag: in.ClientTag,
		Content:   in.Content,
		Nonce:     in.Nonce,
		Type:      in.Type,
		MediaURL:  in.MediaURL,
	}
	if err := r.messages.Insert(ctx, msg); err != nil {
		metrics.RouteFailuresTotal.Inc()
		log.Error("message insert failed", zap.String("chatId", msg.ChatID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	last := model.LastMessage{
		Content: msg.Content,
		Sender:  msg.SenderID,
		Nonce:   msg.Nonce,
		SentAt:  msg.CreatedAt,
	}
	if err := r.chats.RecordMessage(ctx, msg.ChatID, last, recipient); err != nil {
		metrics.RouteFailuresTotal.Inc()
		log.Error("chat summary update failed after insert",
			zap.String("chatId", msg.ChatID), zap.String("messageId", msg.ID.Hex()), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// multi-device fan-out: every sender connection (sync) and every
	// recipient connection (delivery); offline recipients get nothing in
	// real time and pick the message up from history
	r.fanOut(in.SenderID, model.EventReceiveMessage, msg)
	r.fanOut(recipient, model.EventReceiveMessage, msg)

	metrics.MessagesRoutedTotal.Inc()
	return msg, nil
}

func (r *Router) resolveChat(ctx context.Context, in model.SendMessagePayload) (*model.Chat, error) {
	if in.ChatID != "" {
		chat, err := r.chats.GetByID(ctx, in.ChatID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if chat == nil {
			return nil, fmt.Errorf("%w: chat %s", ErrNotFound, in.ChatID)
		}
		return chat, nil
	}

	if in.RecipientID == "" {
		return nil, fmt.Errorf("%w: chatId or recipientId is required", ErrValidation)
	}
	if in.RecipientID == in.SenderID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrValidation)
	}
	chat, err := r.chats.Ensure(ctx, in.SenderID, in.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return chat, nil
}

// MarkDelivered records the recipient's delivery acknowledgment and
// notifies the sender's connections.
func (r *Router) MarkDelivered(ctx context.Context, messageID, userID string) error {
	return r.advance(ctx, messageID, userID, model.StatusDelivered)
}

// MarkRead records a single-message read acknowledgment.
func (r *Router) MarkRead(ctx context.Context, messageID, userID string) error {
	return r.advance(ctx, messageID, userID, model.StatusRead)
}

func (r *Router) advance(ctx context.Context, messageID, userID, status string) error {
	if messageID == "" || userID == "" {
		return fmt.Errorf("%w: messageId and userId are required", ErrValidation)
	}

	msg, err := r.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if msg == nil {
		return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	if msg.SenderID == userID {
		// own echo, not a recipient acknowledgment
		return nil
	}

	updated, err := r.messages.UpdateStatus(ctx, messageID, status)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if updated == nil {
		// already at or past this status; transitions never regress
		return nil
	}

	r.notify(ctx, updated.SenderID, model.EventMessageStatus, model.StatusUpdate{
		MessageID: updated.ID.Hex(),
		ChatID:    updated.ChatID,
		Status:    updated.Status,
	})
	return nil
}

// MarkChatRead bulk-reads a chat for readerID, resets their unread counter
// and tells the counterpart's connections.
func (r *Router) MarkChatRead(ctx context.Context, chatID, readerID string) error {
	if chatID == "" || readerID == "" {
		return fmt.Errorf("%w: chatId and userId are required", ErrValidation)
	}

	chat, err := r.chats.GetByID(ctx, chatID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if chat == nil {
		return fmt.Errorf("%w: chat %s", ErrNotFound, chatID)
	}

	if _, err := r.messages.MarkChatRead(ctx, chatID, readerID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := r.chats.ResetUnread(ctx, chatID, readerID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	counterpart := chat.Counterpart(readerID)
	if counterpart != "" {
		r.notify(ctx, counterpart, model.EventMessagesReadBulk, model.BulkRead{
			ChatID:   chatID,
			ReaderID: readerID,
		})
	}
	return nil
}

// React sets userID's reaction on a message, replacing any prior one, and
// broadcasts the new reaction set to both participants.
func (r *Router) React(ctx context.Context, messageID, userID, emoji string) error {
	if messageID == "" || userID == "" || emoji == "" {
		return fmt.Errorf("%w: messageId, userId and emoji are required", ErrValidation)
	}

	msg, err := r.messages.SetReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if msg == nil {
		return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}

	chat, err := r.chats.GetByID(ctx, msg.ChatID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if chat == nil {
		return fmt.Errorf("%w: chat %s", ErrNotFound, msg.ChatID)
	}

	update := model.ReactionUpdate{
		MessageID: msg.ID.Hex(),
		Reactions: msg.Reactions,
	}
	for _, p := range chat.Participants {
		r.fanOut(p, model.EventReactionUpdated, update)
	}
	return nil
}

// Typing broadcasts a transient typing/stop_typing indicator to the chat's
// counterpart. Nothing is persisted; floods are rate limited per user.
func (r *Router) Typing(ctx context.Context, chatID, userID string, active bool) error {
	if chatID == "" || userID == "" {
		return fmt.Errorf("%w: chatId and userId are required", ErrValidation)
	}
	if !r.typing.Allow(userID, time.Now()) {
		return nil
	}

	chat, err := r.chats.GetByID(ctx, chatID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if chat == nil {
		return fmt.Errorf("%w: chat %s", ErrNotFound, chatID)
	}

	event := model.EventTyping
	if !active {
		event = model.EventStopTyping
	}
	counterpart := chat.Counterpart(userID)
	if counterpart != "" {
		r.fanOut(counterpart, event, model.TypingPayload{ChatID: chatID, UserID: userID})
	}
	return nil
}

// fanOut delivers an event to every active connection of userID; offline
// users are skipped.
func (r *Router) fanOut(userID, event string, data any) {
	for _, h := range r.registry.Connections(userID) {
		h.Send(event, data)
	}
}

// notify is fanOut plus offline buffering for status receipts.
func (r *Router) notify(ctx context.Context, userID, event string, data any) {
	handles := r.registry.Connections(userID)
	if len(handles) == 0 {
		if r.receipts != nil {
			r.receipts.Buffer(ctx, userID, event, data)
		}
		return
	}
	for _, h := range handles {
		h.Send(event, data)
	}
}
