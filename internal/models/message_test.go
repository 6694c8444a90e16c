package models

import "testing"

func TestMessageStatusTransitions(t *testing.T) {
	cases := []struct {
		from MessageStatus
		to   MessageStatus
		ok   bool
	}{
		{StatusQueued, StatusDelivered, true},
		{StatusQueued, StatusRead, true},
		{StatusDelivered, StatusRead, true},
		{StatusDelivered, StatusQueued, false},
		{StatusRead, StatusDelivered, false},
		{StatusRead, StatusQueued, false},
		{StatusQueued, StatusQueued, false},
		{StatusRead, StatusRead, false},
		{MessageStatus("bogus"), StatusRead, false},
		{StatusQueued, MessageStatus("bogus"), false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestMessageReactions(t *testing.T) {
	var m Message

	// Unset column decodes to empty.
	got, err := m.Reactions()
	if err != nil || len(got) != 0 {
		t.Fatalf("Reactions() on fresh message = %v, %v", got, err)
	}

	set := []Reaction{{UserID: 1, Emoji: "👍"}, {UserID: 2, Emoji: "❤️"}}
	if err := m.SetReactions(set); err != nil {
		t.Fatal(err)
	}
	got, err = m.Reactions()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != set[0] || got[1] != set[1] {
		t.Errorf("Reactions() = %v, want %v", got, set)
	}

	// Nil normalizes to an empty JSON array, not a null column.
	if err := m.SetReactions(nil); err != nil {
		t.Fatal(err)
	}
	if string(m.ReactionsRaw) != "[]" {
		t.Errorf("ReactionsRaw = %s, want []", m.ReactionsRaw)
	}
}

func TestMessageReactionsBadPayload(t *testing.T) {
	m := Message{ReactionsRaw: []byte(`{"not":"a list"}`)}
	if _, err := m.Reactions(); err == nil {
		t.Fatal("decoding a non-array payload should fail")
	}
}
