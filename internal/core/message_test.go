package core

import (
	"errors"
	"testing"

	"github.com/vovakirdan/relaychat/internal/store"
)

func TestDeriveRoomIDIsCommutative(t *testing.T) {
	if a, b := DeriveRoomID("alice", "bob"), DeriveRoomID("bob", "alice"); a != b || a != "alice-bob" {
		t.Fatalf("got %q and %q", a, b)
	}
	if id := DeriveRoomID("x", "x"); id != "x-x" {
		t.Fatalf("self room = %q", id)
	}
}

func TestDeriveRoomIDKeepsPairsDistinct(t *testing.T) {
	pairs := [][2]string{
		{"a-b", "c"},
		{"a", "b-c"},
		{`a\`, "b"},
		{"a", `\-b`},
		{"a-", "b"},
		{"a", "-b"},
	}
	seen := map[string][2]string{}
	for _, p := range pairs {
		id := DeriveRoomID(p[0], p[1])
		if prev, ok := seen[id]; ok {
			t.Fatalf("%v and %v both map to %q", prev, p, id)
		}
		seen[id] = p
	}
	if id := DeriveRoomID("a-b", "c"); id != `a\-b-c` {
		t.Fatalf("escaped room = %q", id)
	}
}

func TestMessageAdvanceNeverRegresses(t *testing.T) {
	m := Message{Status: store.MessageStatusSent}
	if err := m.Advance(store.MessageStatusRead); err != nil {
		t.Fatal(err)
	}
	for _, s := range []store.MessageStatus{store.MessageStatusDelivered, store.MessageStatusRead, "bogus"} {
		if err := m.Advance(s); !errors.Is(err, ErrStatusRegression) {
			t.Fatalf("advance to %s: expected regression error, got %v", s, err)
		}
	}
	if m.Status != store.MessageStatusRead {
		t.Fatalf("status changed to %s", m.Status)
	}
}
