package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ephemsg/internal/crypto"
	"ephemsg/internal/metrics"
	"ephemsg/internal/model"
	chatRepo "ephemsg/internal/repository/chat"
	messageRepo "ephemsg/internal/repository/message"
	userRepo "ephemsg/internal/repository/user"
	"ephemsg/internal/service/presence"
	"ephemsg/internal/service/router"
	"ephemsg/internal/utils/log"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

type (
	HttpServer struct {
		addr string

		users    *userRepo.UserRepo
		chats    *chatRepo.ChatRepo
		messages *messageRepo.MessageRepo

		registry *presence.Registry
		router   *router.Router
		receipts *ReceiptBuffer
		blobs    BlobStore

		upgrader websocket.Upgrader
	}
)

func NewHttpServer(
	addr string,
	users *userRepo.UserRepo,
	chats *chatRepo.ChatRepo,
	messages *messageRepo.MessageRepo,
	registry *presence.Registry,
	rt *router.Router,
	receipts *ReceiptBuffer,
	blobs BlobStore,
) *HttpServer {
	return &HttpServer{
		addr:     addr,
		users:    users,
		chats:    chats,
		messages: messages,
		registry: registry,
		router:   rt,
		receipts: receipts,
		blobs:    blobs,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *HttpServer) Run() error {
	r := mux.NewRouter()

	r.HandleFunc("/ws", s.HandleWS()).Methods(http.MethodGet)
	r.HandleFunc("/users", s.HandleRegister()).Methods(http.MethodPost)
	r.HandleFunc("/users/{phone}", s.HandleDirectoryLookup()).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/block", s.HandleBlock()).Methods(http.MethodPost)
	r.HandleFunc("/keys", s.HandleKeyBackup()).Methods(http.MethodPost)
	r.HandleFunc("/chats", s.HandleChatList()).Methods(http.MethodGet)
	r.HandleFunc("/chats/{id}/messages", s.HandleHistory()).Methods(http.MethodGet)
	r.HandleFunc("/upload", s.HandleUpload()).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if d, ok := s.blobs.(*DiskBlobStore); ok {
		r.PathPrefix("/media/").Handler(
			http.StripPrefix("/media/", http.FileServer(http.Dir(d.Dir))))
	}

	log.Info("gateway listening", zap.String("addr", s.addr))
	return http.ListenAndServe(s.addr, r)
}

// HandleWS upgrades the connection and runs its event loop. The socket is
// anonymous until it sends a login event.
func (s *HttpServer) HandleWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "failed to upgrade", http.StatusInternalServerError)
			return
		}

		c := newClient(conn)
		go c.writePump()
		go s.readLoop(c)
	}
}

func (s *HttpServer) readLoop(c *client) {
	defer s.disconnect(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug("websocket closed", zap.Error(err))
			return
		}

		in, err := decodeInbound(data)
		if err != nil {
			log.Warn("rejected inbound event", zap.Error(err))
			c.Send("error", map[string]string{"error": err.Error()})
			continue
		}
		metrics.EventsTotal.WithLabelValues(in.event).Inc()

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		if err := s.handleEvent(ctx, c, in); err != nil {
			log.Error("event handling failed",
				zap.String("event", in.event), zap.String("userId", c.UserID()), zap.Error(err))
			if errors.Is(err, router.ErrValidation) || errors.Is(err, router.ErrNotFound) {
				c.Send("error", map[string]string{"event": in.event, "error": err.Error()})
			}
			// persistence errors: no success acknowledgment reaches the
			// client; the optimistic entry times out on their side
		}
		cancel()
	}
}

// handleEvent is the single dispatcher for a connection's inbound events.
func (s *HttpServer) handleEvent(ctx context.Context, c *client, in inbound) error {
	switch {
	case in.login != nil:
		return s.handleLogin(ctx, c, in.login.UserID)

	case in.joinRoom != nil:
		c.joinRoom(in.joinRoom.ChatID)
		return nil

	case in.typing != nil:
		return s.router.Typing(ctx, in.typing.ChatID, in.typing.UserID, true)

	case in.stopTyping != nil:
		return s.router.Typing(ctx, in.stopTyping.ChatID, in.stopTyping.UserID, false)

	case in.send != nil:
		_, err := s.router.Send(ctx, *in.send)
		return err

	case in.delivered != nil:
		return s.router.MarkDelivered(ctx, in.delivered.MessageID, in.delivered.UserID)

	case in.read != nil:
		if in.read.ChatID != "" {
			return s.router.MarkChatRead(ctx, in.read.ChatID, in.read.UserID)
		}
		return s.router.MarkRead(ctx, in.read.MessageID, in.read.UserID)

	case in.reaction != nil:
		return s.router.React(ctx, in.reaction.MessageID, in.reaction.UserID, in.reaction.Emoji)
	}
	return nil
}

func (s *HttpServer) handleLogin(ctx context.Context, c *client, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return router.ErrNotFound
	}

	// a connection re-logging in as someone else first goes offline as its
	// previous identity
	if prev := c.UserID(); prev != "" && prev != userID {
		if _, last := s.registry.Unregister(c); last {
			metrics.OnlineUsers.Dec()
			s.registry.Broadcast(model.EventUserOffline, prev)
		}
	}

	c.setUserID(userID)
	first := s.registry.Register(userID, c)
	if first {
		metrics.OnlineUsers.Inc()
		s.registry.Broadcast(model.EventUserOnline, userID)
	}

	// the connecting user gets a presence snapshot, then any receipts
	// that accrued while they were away
	c.Send(model.EventOnlineUsers, s.registry.OnlineUserIDs())
	if err := s.receipts.Flush(ctx, userID, c); err != nil {
		log.Error("receipt flush failed", zap.String("userId", userID), zap.Error(err))
	}
	return nil
}

func (s *HttpServer) disconnect(c *client) {
	c.close()

	userID, last := s.registry.Unregister(c)
	if userID == "" || !last {
		return
	}
	metrics.OnlineUsers.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := s.users.UpdateLastSeen(ctx, userID, time.Now().UTC()); err != nil {
		log.Error("persist last-seen failed", zap.String("userId", userID), zap.Error(err))
	}
	s.registry.Broadcast(model.EventUserOffline, userID)
}

func (s *HttpServer) HandleRegister() http.HandlerFunc {
	type request struct {
		Phone     string `json:"phone"`
		Password  string `json:"password"`
		Name      string `json:"name"`
		PublicKey string `json:"publicKey,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" || req.Password == "" {
			http.Error(w, "phone and password are required", http.StatusBadRequest)
			return
		}

		existing, err := s.users.GetByPhone(ctx, req.Phone)
		if err != nil {
			http.Error(w, "registration failed", http.StatusInternalServerError)
			return
		}
		if existing != nil {
			http.Error(w, "phone already registered", http.StatusConflict)
			return
		}

		hash, err := crypto.HashPassword(req.Password)
		if err != nil {
			http.Error(w, "registration failed", http.StatusInternalServerError)
			return
		}

		user := &model.User{
			Phone:     req.Phone,
			Password:  hash,
			Name:      req.Name,
			PublicKey: req.PublicKey,
		}
		if _, err := s.users.Create(ctx, user); err != nil {
			log.Error("create user failed", zap.Error(err))
			http.Error(w, "registration failed", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, user.Profile())
	}
}

// HandleDirectoryLookup resolves a counterpart by raw phone string; this
// is the trusted public-key directory.
func (s *HttpServer) HandleDirectoryLookup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		phone := mux.Vars(r)["phone"]

		user, err := s.users.GetByPhone(ctx, phone)
		if err != nil {
			log.Error("directory lookup failed", zap.Error(err))
			http.Error(w, "lookup failed", http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, "user does not exist", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, user.Profile())
	}
}

// HandleKeyBackup stores {publicKey, encryptedPrivateKey, iv}. Racing
// uploads are last-write-wins by design.
func (s *HttpServer) HandleKeyBackup() http.HandlerFunc {
	type request struct {
		Phone               string `json:"phone"`
		PublicKey           string `json:"publicKey"`
		EncryptedPrivateKey string `json:"encryptedPrivateKey"`
		IV                  string `json:"iv"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
			req.Phone == "" || req.PublicKey == "" || req.EncryptedPrivateKey == "" || req.IV == "" {
			http.Error(w, "phone, publicKey, encryptedPrivateKey and iv are required", http.StatusBadRequest)
			return
		}

		err := s.users.UpdateKeyBackup(ctx, req.Phone, req.PublicKey, req.EncryptedPrivateKey, req.IV)
		if err != nil {
			log.Error("key backup update failed", zap.String("phone", req.Phone), zap.Error(err))
			http.Error(w, "backup failed", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *HttpServer) HandleBlock() http.HandlerFunc {
	type request struct {
		UserID string `json:"userId"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := mux.Vars(r)["id"]

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			http.Error(w, "userId is required", http.StatusBadRequest)
			return
		}

		if err := s.users.Block(ctx, id, req.UserID); err != nil {
			log.Error("block failed", zap.String("userId", id), zap.Error(err))
			http.Error(w, "block failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleChatList returns the caller's conversation list: one entry per
// counterpart, blocked counterparts excluded, most recent first.
func (s *HttpServer) HandleChatList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID := r.URL.Query().Get("userId")
		if userID == "" {
			http.Error(w, "userId is required", http.StatusBadRequest)
			return
		}
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			http.Error(w, "chat list failed", http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, "user does not exist", http.StatusNotFound)
			return
		}

		entries, err := s.chats.ListForUser(ctx, userID, user.Blocked)
		if err != nil {
			log.Error("chat list failed", zap.String("userId", userID), zap.Error(err))
			http.Error(w, "chat list failed", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, entries)
	}
}

// HandleHistory returns a chat's unexpired messages in creation order.
func (s *HttpServer) HandleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		chatID := mux.Vars(r)["id"]

		var limit int64
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, _ = strconv.ParseInt(v, 10, 64)
		}

		chat, err := s.chats.GetByID(ctx, chatID)
		if err != nil {
			http.Error(w, "history failed", http.StatusInternalServerError)
			return
		}
		if chat == nil {
			http.Error(w, "chat does not exist", http.StatusNotFound)
			return
		}

		msgs, err := s.messages.History(ctx, chatID, limit)
		if err != nil {
			log.Error("history failed", zap.String("chatId", chatID), zap.Error(err))
			http.Error(w, "history failed", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, msgs)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("encode response failed", zap.Error(err))
	}
}
