package presence

import (
	"sort"
	"testing"
)

type fakeHandle struct {
	events []string
}

func (f *fakeHandle) Send(event string, data any) {
	f.events = append(f.events, event)
}

func TestOnlineIffRegistered(t *testing.T) {
	r := NewRegistry()

	if r.IsOnline("u1") {
		t.Fatal("user online with zero handles")
	}

	h := &fakeHandle{}
	if first := r.Register("u1", h); !first {
		t.Fatal("first handle must report newly online")
	}
	if !r.IsOnline("u1") {
		t.Fatal("user offline with one handle")
	}

	userID, last := r.Unregister(h)
	if userID != "u1" || !last {
		t.Fatalf("Unregister = (%q, %v), want (u1, true)", userID, last)
	}
	if r.IsOnline("u1") {
		t.Fatal("user online after last handle removed")
	}
}

func TestSecondHandleDoesNotReportOnline(t *testing.T) {
	r := NewRegistry()
	h1, h2 := &fakeHandle{}, &fakeHandle{}

	r.Register("u1", h1)
	if first := r.Register("u1", h2); first {
		t.Fatal("second device must not re-report newly online")
	}

	if _, last := r.Unregister(h1); last {
		t.Fatal("user still has a handle, must not report offline")
	}
	if !r.IsOnline("u1") {
		t.Fatal("user went offline while a handle remains")
	}
	if _, last := r.Unregister(h2); !last {
		t.Fatal("removing the final handle must report offline")
	}
}

func TestRebindingHandleEvictsOldUser(t *testing.T) {
	r := NewRegistry()
	h := &fakeHandle{}

	r.Register("u1", h)
	if first := r.Register("u2", h); !first {
		t.Fatal("rebound handle must report u2 newly online")
	}

	if r.IsOnline("u1") {
		t.Fatal("u1 still online after its only handle was rebound")
	}
	if got := len(r.Connections("u1")); got != 0 {
		t.Fatalf("Connections(u1) = %d handles, want 0", got)
	}

	userID, last := r.Unregister(h)
	if userID != "u2" || !last {
		t.Fatalf("Unregister = (%q, %v), want (u2, true)", userID, last)
	}
	if len(r.OnlineUserIDs()) != 0 {
		t.Fatalf("registry not empty: %v", r.OnlineUserIDs())
	}
}

func TestUnregisterUnknownHandle(t *testing.T) {
	r := NewRegistry()
	userID, last := r.Unregister(&fakeHandle{})
	if userID != "" || last {
		t.Fatalf("Unregister(unknown) = (%q, %v), want (\"\", false)", userID, last)
	}
}

func TestConnectionsSnapshot(t *testing.T) {
	r := NewRegistry()
	h1, h2 := &fakeHandle{}, &fakeHandle{}
	r.Register("u1", h1)
	r.Register("u1", h2)
	r.Register("u2", &fakeHandle{})

	if got := len(r.Connections("u1")); got != 2 {
		t.Fatalf("Connections(u1) = %d handles, want 2", got)
	}

	ids := r.OnlineUserIDs()
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "u1" || ids[1] != "u2" {
		t.Fatalf("OnlineUserIDs = %v, want [u1 u2]", ids)
	}
}

func TestBroadcastReachesAllHandles(t *testing.T) {
	r := NewRegistry()
	h1, h2, h3 := &fakeHandle{}, &fakeHandle{}, &fakeHandle{}
	r.Register("u1", h1)
	r.Register("u1", h2)
	r.Register("u2", h3)

	r.Broadcast("user_online", "u3")

	for i, h := range []*fakeHandle{h1, h2, h3} {
		if len(h.events) != 1 || h.events[0] != "user_online" {
			t.Fatalf("handle %d events = %v, want [user_online]", i, h.events)
		}
	}
}
