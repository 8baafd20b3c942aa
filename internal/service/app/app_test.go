package app

import (
	"encoding/base64"
	"testing"

	"ephemsg/internal/crypto"
	"ephemsg/internal/model"

	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	return &App{
		me:      model.Profile{ID: "me", Phone: "111"},
		keys:    kp,
		peers:   make(map[string]model.Profile),
		secrets: make(map[string][]byte),
		pending: make(map[string]pendingMessage),
	}
}

func TestReconcileByTagWithIdenticalContent(t *testing.T) {
	a := newTestApp(t)

	// two optimistic entries with the same text must stay distinct
	a.trackPending("tag-1", "hello")
	a.trackPending("tag-2", "hello")

	a.receiveMessage(model.Message{SenderID: "me", ClientTag: "tag-2"})

	_, ok := a.reconcile("tag-2")
	require.False(t, ok, "tag-2 should already be reconciled by its echo")
	_, ok = a.reconcile("tag-1")
	require.True(t, ok, "tag-1 must still be pending")
}

func TestReconcileUnknownTagIsNoop(t *testing.T) {
	a := newTestApp(t)
	a.trackPending("tag-1", "hi")

	a.receiveMessage(model.Message{SenderID: "me", ClientTag: "never-sent"})

	_, ok := a.reconcile("tag-1")
	require.True(t, ok)
}

func TestDecryptContent(t *testing.T) {
	a := newTestApp(t)

	peerKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	a.peers["peer"] = model.Profile{ID: "peer", Phone: "222", PublicKey: peerKP.PublicKey}

	secret, err := crypto.DeriveSharedSecret(peerKP.PrivateKey, a.keys.PublicKey)
	require.NoError(t, err)
	ciphertext, nonce, err := crypto.Encrypt([]byte("secret hello"), secret)
	require.NoError(t, err)

	msg := model.Message{
		SenderID: "peer",
		Content:  base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:    base64.StdEncoding.EncodeToString(nonce),
	}
	require.Equal(t, "secret hello", a.decryptContent(msg))
}

func TestDecryptContentFailuresShowPlaceholder(t *testing.T) {
	a := newTestApp(t)

	peerKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	a.peers["peer"] = model.Profile{ID: "peer", Phone: "222", PublicKey: peerKP.PublicKey}

	secret, err := crypto.DeriveSharedSecret(peerKP.PrivateKey, a.keys.PublicKey)
	require.NoError(t, err)
	ciphertext, nonce, err := crypto.Encrypt([]byte("payload"), secret)
	require.NoError(t, err)

	tampered := append([]byte(nil), ciphertext...)
	tampered[0] ^= 0x01

	cases := []struct {
		name string
		msg  model.Message
	}{
		{
			name: "tampered ciphertext",
			msg: model.Message{
				SenderID: "peer",
				Content:  base64.StdEncoding.EncodeToString(tampered),
				Nonce:    base64.StdEncoding.EncodeToString(nonce),
			},
		},
		{
			name: "unknown sender",
			msg: model.Message{
				SenderID: "stranger",
				Content:  base64.StdEncoding.EncodeToString(ciphertext),
				Nonce:    base64.StdEncoding.EncodeToString(nonce),
			},
		},
		{
			name: "content not base64",
			msg:  model.Message{SenderID: "peer", Content: "%%%", Nonce: "AAAA"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, DecryptPlaceholder, a.decryptContent(tc.msg))
		})
	}
}

func TestDecryptContentLegacyPlaintext(t *testing.T) {
	a := newTestApp(t)
	msg := model.Message{SenderID: "peer", Content: "plain text", Nonce: ""}
	require.Equal(t, "plain text", a.decryptContent(msg))
}
