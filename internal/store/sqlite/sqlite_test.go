package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/relaychat/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewWithSetup(":memory:", Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSearchUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, u := range []string{"alice", "alex", "alan", "bob", "charlie"} {
		if _, err := s.CreateUser(ctx, u); err != nil {
			t.Fatalf("failed to create user %s: %v", u, err)
		}
	}

	tests := []struct {
		name     string
		query    string
		expected []string
	}{
		{name: "search 'al'", query: "al", expected: []string{"alan", "alex", "alice"}},
		{name: "search 'li'", query: "li", expected: []string{"alice", "charlie"}},
		{name: "search non-existent", query: "z", expected: []string{}},
		{name: "search ascii case-insensitive", query: "Bob", expected: []string{"bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.SearchUsers(ctx, tt.query, 10)
			if err != nil {
				t.Fatalf("SearchUsers failed: %v", err)
			}
			if len(results) != len(tt.expected) {
				t.Fatalf("expected %d results, got %d", len(tt.expected), len(results))
			}
			for i, u := range results {
				if u.Username != tt.expected[i] {
					t.Errorf("expected %s at index %d, got %s", tt.expected[i], i, u.Username)
				}
			}
		})
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "alice"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateUser(ctx, "alice"); !errors.Is(err, store.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestUpsertUserPresence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	seen := time.Now().UTC().Truncate(time.Second)
	if err := s.UpsertUserPresence(ctx, u.ID, store.UserStatusOnline, seen); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	online, err := s.ListOnlineUsers(ctx)
	if err != nil {
		t.Fatalf("list online: %v", err)
	}
	if len(online) != 1 || online[0].ID != u.ID {
		t.Fatalf("expected alice online, got %+v", online)
	}

	// Unknown ids are created on first presence update.
	if err := s.UpsertUserPresence(ctx, "ghost", store.UserStatusOffline, seen); err != nil {
		t.Fatalf("upsert unknown: %v", err)
	}
	ghost, err := s.FindUser(ctx, "ghost")
	if err != nil {
		t.Fatalf("find ghost: %v", err)
	}
	if ghost.Status != store.UserStatusOffline || !ghost.LastSeen.Equal(seen) {
		t.Fatalf("unexpected ghost: %+v", ghost)
	}

	if _, err := s.FindUser(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateMessageStatusNeverRegresses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateMessage(ctx, &store.Message{
		SenderID: "a", ReceiverID: "b", RoomID: "a-b", Body: "hello", Status: store.MessageStatusSent,
	})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}

	steps := []struct {
		to       store.MessageStatus
		want     store.MessageStatus
		advanced bool
	}{
		{store.MessageStatusDelivered, store.MessageStatusDelivered, true},
		{store.MessageStatusSent, store.MessageStatusDelivered, false},
		{store.MessageStatusDelivered, store.MessageStatusDelivered, false},
		{store.MessageStatusRead, store.MessageStatusRead, true},
		{store.MessageStatusDelivered, store.MessageStatusRead, false},
		{store.MessageStatusPending, store.MessageStatusRead, false},
	}
	for _, step := range steps {
		err := s.UpdateMessageStatus(ctx, id, step.to)
		switch {
		case step.advanced && err != nil:
			t.Fatalf("update to %s: %v", step.to, err)
		case !step.advanced && !errors.Is(err, store.ErrStatusNotAdvanced):
			t.Fatalf("update to %s: expected ErrStatusNotAdvanced, got %v", step.to, err)
		}
		page, err := s.ListRoomMessages(ctx, "a-b", 1, 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if got := page.Messages[0].Status; got != step.want {
			t.Fatalf("after update to %s: status %s, want %s", step.to, got, step.want)
		}
	}

	if err := s.UpdateMessageStatus(ctx, "missing", store.MessageStatusRead); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkRoomReadAndPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		sender, receiver := "a", "b"
		if i%2 == 1 {
			sender, receiver = "b", "a"
		}
		_, err := s.CreateMessage(ctx, &store.Message{
			SenderID:   sender,
			ReceiverID: receiver,
			RoomID:     "a-b",
			Body:       "m",
			Status:     store.MessageStatusSent,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	ids, err := s.MarkRoomRead(ctx, "a-b", "b")
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 messages marked read, got %d", len(ids))
	}
	again, err := s.MarkRoomRead(ctx, "a-b", "b")
	if err != nil {
		t.Fatalf("mark read again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no further updates, got %d", len(again))
	}

	page, err := s.ListConversation(ctx, "b", "a", 2, 2)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	if page.Total != 5 || page.TotalPages != 3 || page.CurrentPage != 2 || len(page.Messages) != 2 {
		t.Fatalf("unexpected page: total=%d pages=%d current=%d len=%d",
			page.Total, page.TotalPages, page.CurrentPage, len(page.Messages))
	}
	if !page.Messages[0].CreatedAt.After(page.Messages[1].CreatedAt) {
		t.Fatalf("expected newest first")
	}
}
