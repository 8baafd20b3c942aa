package server

import (
	"testing"

	"ephemsg/internal/model"
)

func TestSendAfterDropIsNoop(t *testing.T) {
	c := newClient(nil)

	// fill the buffer; nothing is reading it
	for i := 0; i < sendBufferSize; i++ {
		c.Send("online_users", i)
	}

	// overflow drops the connection
	c.Send("online_users", "overflow")

	// further fan-out to the dropped handle must be silently ignored
	c.Send("receive_message", "late")
	c.Send("user_offline", "later")

	drained := 0
	for range c.send {
		drained++
	}
	if drained != sendBufferSize {
		t.Fatalf("drained %d events, want %d", drained, sendBufferSize)
	}
}

func TestSendAfterCloseIsNoop(t *testing.T) {
	c := newClient(nil)
	c.close()
	c.close()

	c.Send("receive_message", "late")

	if _, open := <-c.send; open {
		t.Fatal("send channel must be closed and empty")
	}
}

func TestTypingScopedToJoinedRooms(t *testing.T) {
	c := newClient(nil)
	payload := model.TypingPayload{ChatID: "c1", UserID: "u1"}

	c.Send(model.EventTyping, payload)
	if len(c.send) != 0 {
		t.Fatal("typing delivered to a connection that never joined the room")
	}

	// non-typing events are not scoped
	c.Send(model.EventReceiveMessage, model.Message{ChatID: "c1"})
	if len(c.send) != 1 {
		t.Fatal("receive_message must not be room-scoped")
	}

	c.joinRoom("c1")
	c.Send(model.EventTyping, payload)
	c.Send(model.EventStopTyping, payload)
	if len(c.send) != 3 {
		t.Fatalf("queued %d events, want 3 after joining the room", len(c.send))
	}

	c.Send(model.EventTyping, model.TypingPayload{ChatID: "c2", UserID: "u1"})
	if len(c.send) != 3 {
		t.Fatal("typing for an unjoined room leaked through")
	}
}
