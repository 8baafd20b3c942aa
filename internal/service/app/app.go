package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"ephemsg/internal/crypto"
	"ephemsg/internal/keyring"
	"ephemsg/internal/model"
	"ephemsg/internal/utils/log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DecryptPlaceholder is shown instead of content whenever authentication
// fails during decrypt; a bad ciphertext must never crash the client.
const DecryptPlaceholder = "🔒 Encrypted message"

// echoTimeout bounds how long an optimistic message may wait for its
// server echo before being marked failed.
const echoTimeout = 15 * time.Second

type (
	pendingMessage struct {
		Content string
		SentAt  time.Time
	}

	App struct {
		api   *apiClient
		store keyring.LocalStore

		phone string
		me    model.Profile
		keys  crypto.KeyPair

		conn *websocket.Conn

		mu      sync.Mutex
		peers   map[string]model.Profile // keyed by user id
		secrets map[string][]byte        // derived per session, never persisted
		pending map[string]pendingMessage

		// display hooks, wired by the caller
		OnMessage    func(senderID, text string, msg model.Message)
		OnStatus     func(update model.StatusUpdate)
		OnPresence   func(userID string, online bool)
		OnSendFailed func(clientTag string, content string)
	}
)

func NewApp(host, keyDir, phone string) *App {
	return &App{
		api:     newAPIClient(host),
		store:   keyring.NewFileStore(keyDir, phone),
		phone:   phone,
		peers:   make(map[string]model.Profile),
		secrets: make(map[string][]byte),
		pending: make(map[string]pendingMessage),
	}
}

// Run registers the account if needed, drives the key lifecycle, connects
// the real-time channel and starts the receive loop.
func (a *App) Run(ctx context.Context, password string) error {
	profile, err := a.api.Lookup(ctx, a.phone)
	if err != nil && !errors.Is(err, errNotFound) {
		return fmt.Errorf("directory lookup: %w", err)
	}
	if profile == nil {
		profile, err = a.api.Register(ctx, a.phone, password)
		if err != nil {
			return fmt.Errorf("register: %w", err)
		}
	}
	a.me = *profile

	a.keys, err = keyring.Load(ctx, a.store, a.api, a.phone, password)
	if err != nil {
		return fmt.Errorf("key lifecycle: %w", err)
	}

	a.conn, err = a.api.Dial(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := a.write(model.EventLogin, model.LoginPayload{UserID: a.me.ID}); err != nil {
		return err
	}

	go a.listen()
	return nil
}

func (a *App) Stop() {
	if a.conn != nil {
		a.conn.Close()
	}
}

func (a *App) UserID() string {
	return a.me.ID
}

// SendText encrypts text for the peer behind peerPhone and sends it with a
// fresh idempotency tag. The optimistic entry is reconciled by that tag
// when the echo arrives, so two identical texts never cross-wire.
func (a *App) SendText(ctx context.Context, peerPhone, text string) (string, error) {
	peer, err := a.resolvePeer(ctx, peerPhone)
	if err != nil {
		return "", err
	}

	secret, err := a.secretFor(peer)
	if err != nil {
		return "", err
	}
	ciphertext, nonce, err := crypto.Encrypt([]byte(text), secret)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}

	tag := uuid.NewString()
	a.trackPending(tag, text)

	err = a.write(model.EventSendMessage, model.SendMessagePayload{
		SenderID:    a.me.ID,
		RecipientID: peer.ID,
		ClientTag:   tag,
		Content:     base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:       base64.StdEncoding.EncodeToString(nonce),
		Type:        model.TypeText,
	})
	if err != nil {
		a.reconcile(tag)
		return "", err
	}
	return tag, nil
}

// MarkChatRead bulk-acks a chat after it has been opened.
func (a *App) MarkChatRead(chatID string) error {
	return a.write(model.EventMessageRead, model.ReadPayload{
		ChatID: chatID,
		UserID: a.me.ID,
	})
}

func (a *App) Typing(chatID string, active bool) error {
	event := model.EventTyping
	if !active {
		event = model.EventStopTyping
	}
	return a.write(event, model.TypingPayload{ChatID: chatID, UserID: a.me.ID})
}

func (a *App) listen() {
	for {
		_, data, err := a.conn.ReadMessage()
		if err != nil {
			log.Debug("channel closed", zap.Error(err))
			a.conn.Close()
			return
		}

		var env struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			log.Error("bad frame from server", zap.Error(err))
			continue
		}

		if err := a.handle(env.Event, env.Data); err != nil {
			log.Error("handle server event failed", zap.String("event", env.Event), zap.Error(err))
		}
	}
}

func (a *App) handle(event string, data json.RawMessage) error {
	switch event {
	case model.EventReceiveMessage:
		var msg model.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		a.receiveMessage(msg)

	case model.EventMessageStatus:
		var update model.StatusUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			return err
		}
		if a.OnStatus != nil {
			a.OnStatus(update)
		}

	case model.EventMessagesReadBulk:
		var bulk model.BulkRead
		if err := json.Unmarshal(data, &bulk); err != nil {
			return err
		}
		if a.OnStatus != nil {
			a.OnStatus(model.StatusUpdate{ChatID: bulk.ChatID, Status: model.StatusRead})
		}

	case model.EventUserOnline, model.EventUserOffline:
		var userID string
		if err := json.Unmarshal(data, &userID); err != nil {
			return err
		}
		if a.OnPresence != nil {
			a.OnPresence(userID, event == model.EventUserOnline)
		}

	case model.EventOnlineUsers:
		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}
		if a.OnPresence != nil {
			for _, id := range ids {
				a.OnPresence(id, true)
			}
		}
	}
	return nil
}

func (a *App) receiveMessage(msg model.Message) {
	if msg.SenderID == a.me.ID {
		// our own echo: reconcile the optimistic entry by its tag
		if _, ok := a.reconcile(msg.ClientTag); !ok {
			log.Debug("echo without optimistic entry", zap.String("clientTag", msg.ClientTag))
		}
		return
	}

	text := a.decryptContent(msg)
	if a.OnMessage != nil {
		a.OnMessage(msg.SenderID, text, msg)
	}

	// acknowledge delivery while connected
	if err := a.write(model.EventMessageDelivered, model.DeliveredPayload{
		MessageID: msg.ID.Hex(),
		UserID:    a.me.ID,
	}); err != nil {
		log.Error("delivery ack failed", zap.Error(err))
	}
}

// decryptContent returns the plaintext for msg, the raw content for
// legacy unencrypted messages, or the placeholder when decryption fails.
func (a *App) decryptContent(msg model.Message) string {
	if msg.Nonce == "" {
		return msg.Content
	}

	a.mu.Lock()
	peer, known := a.peers[msg.SenderID]
	a.mu.Unlock()
	if !known {
		return DecryptPlaceholder
	}

	secret, err := a.secretFor(peer)
	if err != nil {
		return DecryptPlaceholder
	}
	ciphertext, err := base64.StdEncoding.DecodeString(msg.Content)
	if err != nil {
		return DecryptPlaceholder
	}
	nonce, err := base64.StdEncoding.DecodeString(msg.Nonce)
	if err != nil {
		return DecryptPlaceholder
	}

	plain, err := crypto.Decrypt(ciphertext, nonce, secret)
	if err != nil {
		// tampered or wrong-key content is displayable, never fatal
		return DecryptPlaceholder
	}
	return string(plain)
}

func (a *App) resolvePeer(ctx context.Context, phone string) (model.Profile, error) {
	a.mu.Lock()
	for _, p := range a.peers {
		if p.Phone == phone {
			a.mu.Unlock()
			return p, nil
		}
	}
	a.mu.Unlock()

	profile, err := a.api.Lookup(ctx, phone)
	if err != nil {
		return model.Profile{}, fmt.Errorf("resolve peer: %w", err)
	}
	if profile == nil || profile.PublicKey == "" {
		return model.Profile{}, fmt.Errorf("peer %s has no published key", phone)
	}

	a.mu.Lock()
	a.peers[profile.ID] = *profile
	a.mu.Unlock()
	return *profile, nil
}

func (a *App) secretFor(peer model.Profile) ([]byte, error) {
	a.mu.Lock()
	if s, ok := a.secrets[peer.ID]; ok {
		a.mu.Unlock()
		return s, nil
	}
	a.mu.Unlock()

	secret, err := crypto.DeriveSharedSecret(a.keys.PrivateKey, peer.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("derive shared secret: %w", err)
	}

	a.mu.Lock()
	a.secrets[peer.ID] = secret
	a.mu.Unlock()
	return secret, nil
}

func (a *App) trackPending(tag, content string) {
	a.mu.Lock()
	a.pending[tag] = pendingMessage{Content: content, SentAt: time.Now()}
	a.mu.Unlock()

	time.AfterFunc(echoTimeout, func() {
		if p, ok := a.reconcile(tag); ok {
			log.Warn("no echo for sent message", zap.String("clientTag", tag))
			if a.OnSendFailed != nil {
				a.OnSendFailed(tag, p.Content)
			}
		}
	})
}

// reconcile removes and returns the optimistic entry for tag.
func (a *App) reconcile(tag string) (pendingMessage, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[tag]
	if ok {
		delete(a.pending, tag)
	}
	return p, ok
}

func (a *App) write(event string, data any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn.WriteJSON(map[string]any{"event": event, "data": data})
}
