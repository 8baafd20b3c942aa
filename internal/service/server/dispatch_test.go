package server

import (
	"errors"
	"testing"

	"ephemsg/internal/service/router"
)

func TestDecodeInbound(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		check func(t *testing.T, in inbound)
	}{
		{
			name: "login",
			raw:  `{"event":"login","data":{"userId":"u1"}}`,
			check: func(t *testing.T, in inbound) {
				if in.login == nil || in.login.UserID != "u1" {
					t.Fatalf("login variant not set: %+v", in)
				}
			},
		},
		{
			name: "send_message",
			raw:  `{"event":"send_message","data":{"chatId":"c1","senderId":"u1","content":"zzz","nonce":"n","clientTag":"tag-1"}}`,
			check: func(t *testing.T, in inbound) {
				if in.send == nil {
					t.Fatal("send variant not set")
				}
				if in.send.Nonce != "n" || in.send.ClientTag != "tag-1" {
					t.Fatalf("payload fields lost: %+v", in.send)
				}
			},
		},
		{
			name: "bulk read",
			raw:  `{"event":"message_read","data":{"chatId":"c1","userId":"u2"}}`,
			check: func(t *testing.T, in inbound) {
				if in.read == nil || in.read.ChatID != "c1" {
					t.Fatalf("read variant not set: %+v", in)
				}
			},
		},
		{
			name: "reaction",
			raw:  `{"event":"add_reaction","data":{"messageId":"m1","userId":"u1","emoji":"👍"}}`,
			check: func(t *testing.T, in inbound) {
				if in.reaction == nil || in.reaction.Emoji != "👍" {
					t.Fatalf("reaction variant not set: %+v", in)
				}
			},
		},
		{
			name: "stop_typing",
			raw:  `{"event":"stop_typing","data":{"chatId":"c1","userId":"u1"}}`,
			check: func(t *testing.T, in inbound) {
				if in.stopTyping == nil || in.typing != nil {
					t.Fatalf("wrong variant set: %+v", in)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, err := decodeInbound([]byte(tc.raw))
			if err != nil {
				t.Fatalf("decodeInbound: %v", err)
			}
			tc.check(t, in)
		})
	}
}

func TestDecodeInboundRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{{`},
		{"unknown event", `{"event":"shrug","data":{}}`},
		{"login without userId", `{"event":"login","data":{}}`},
		{"login without payload", `{"event":"login"}`},
		{"delivered without messageId", `{"event":"message_delivered","data":{"userId":"u1"}}`},
		{"read without target", `{"event":"message_read","data":{"userId":"u1"}}`},
		{"reaction without emoji", `{"event":"add_reaction","data":{"messageId":"m1","userId":"u1"}}`},
		{"typing without chatId", `{"event":"typing","data":{"userId":"u1"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decodeInbound([]byte(tc.raw)); !errors.Is(err, router.ErrValidation) {
				t.Fatalf("want ErrValidation, got %v", err)
			}
		})
	}
}
