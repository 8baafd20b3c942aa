package chat

import (
	"testing"
	"time"

	"ephemsg/internal/model"
)

func TestCanonicalPair(t *testing.T) {
	ab := CanonicalPair("a", "b")
	ba := CanonicalPair("b", "a")
	if ab[0] != ba[0] || ab[1] != ba[1] {
		t.Fatalf("pair not canonical: %v vs %v", ab, ba)
	}
	if ab[0] != "a" || ab[1] != "b" {
		t.Fatalf("pair not sorted: %v", ab)
	}
}

func chatWith(userID, other string, updatedAt time.Time, unread int) model.Chat {
	return model.Chat{
		Participants: CanonicalPair(userID, other),
		Unread:       map[string]int{userID: unread},
		UpdatedAt:    updatedAt,
	}
}

func TestBuildEntries(t *testing.T) {
	now := time.Now()
	chats := []model.Chat{
		chatWith("me", "alice", now, 3),
		chatWith("me", "blocked-guy", now.Add(-time.Minute), 1),
		chatWith("me", "bob", now.Add(-2*time.Minute), 0),
	}

	entries := BuildEntries(chats, "me", []string{"blocked-guy"})
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Counterpart != "alice" || entries[1].Counterpart != "bob" {
		t.Fatalf("wrong counterparts/order: %v, %v", entries[0].Counterpart, entries[1].Counterpart)
	}
	if entries[0].Unread != 3 {
		t.Fatalf("unread = %d, want 3", entries[0].Unread)
	}
}

func TestBuildEntriesDedupesCounterpart(t *testing.T) {
	now := time.Now()
	chats := []model.Chat{
		chatWith("me", "alice", now, 1),
		chatWith("me", "alice", now.Add(-time.Hour), 5),
	}

	entries := BuildEntries(chats, "me", nil)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 per counterpart", len(entries))
	}
	if !entries[0].Chat.UpdatedAt.Equal(now) {
		t.Fatal("kept the older duplicate instead of the first (most recent) one")
	}
}
