package store

import (
	"testing"
	"time"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), "tester")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestContacts(t *testing.T) {
	s := createTestStore(t)

	if err := s.AddContact("bob"); err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}
	if err := s.AddContact("bob"); err != nil {
		t.Fatalf("AddContact() repeat error = %v", err)
	}
	if err := s.AddContact("carol"); err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}

	contacts, err := s.Contacts()
	if err != nil {
		t.Fatalf("Contacts() error = %v", err)
	}
	if len(contacts) != 2 || contacts[0] != "bob" || contacts[1] != "carol" {
		t.Errorf("Contacts() = %v, want [bob carol]", contacts)
	}

	if ok, _ := s.HasContact("bob"); !ok {
		t.Error("HasContact(bob) = false")
	}
	if ok, _ := s.HasContact("dave"); ok {
		t.Error("HasContact(dave) = true")
	}

	if err := s.DeleteContact("bob"); err != nil {
		t.Fatalf("DeleteContact() error = %v", err)
	}
	if err := s.DeleteContact("bob"); err != nil {
		t.Fatalf("DeleteContact() repeat error = %v", err)
	}
	contacts, _ = s.Contacts()
	if len(contacts) != 1 || contacts[0] != "carol" {
		t.Errorf("Contacts() after delete = %v, want [carol]", contacts)
	}

	if err := s.ClearContacts(); err != nil {
		t.Fatalf("ClearContacts() error = %v", err)
	}
	contacts, _ = s.Contacts()
	if len(contacts) != 0 {
		t.Errorf("Contacts() after clear = %v, want empty", contacts)
	}
}

func TestReplaceKnownUsers(t *testing.T) {
	s := createTestStore(t)

	if err := s.ReplaceKnownUsers([]string{"alice", "bob"}); err != nil {
		t.Fatalf("ReplaceKnownUsers() error = %v", err)
	}
	users, err := s.KnownUsers()
	if err != nil {
		t.Fatalf("KnownUsers() error = %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("KnownUsers() = %v", users)
	}

	// A refresh replaces, never merges.
	if err := s.ReplaceKnownUsers([]string{"carol"}); err != nil {
		t.Fatalf("ReplaceKnownUsers() error = %v", err)
	}
	users, _ = s.KnownUsers()
	if len(users) != 1 || users[0] != "carol" {
		t.Errorf("KnownUsers() after replace = %v, want [carol]", users)
	}

	if ok, _ := s.HasUser("carol"); !ok {
		t.Error("HasUser(carol) = false")
	}
	if ok, _ := s.HasUser("alice"); ok {
		t.Error("HasUser(alice) = true after replace")
	}
}

func TestHistory(t *testing.T) {
	s := createTestStore(t)

	if err := s.AppendHistory("bob", DirectionOut, "hi"); err != nil {
		t.Fatalf("AppendHistory() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := s.AppendHistory("bob", DirectionIn, "hello"); err != nil {
		t.Fatalf("AppendHistory() error = %v", err)
	}
	if err := s.AppendHistory("carol", DirectionOut, "other thread"); err != nil {
		t.Fatalf("AppendHistory() error = %v", err)
	}

	entries, err := s.HistoryWith("bob")
	if err != nil {
		t.Fatalf("HistoryWith() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("HistoryWith(bob) returned %d entries, want 2", len(entries))
	}
	if entries[0].Direction != DirectionOut || entries[0].Body != "hi" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Direction != DirectionIn || entries[1].Body != "hello" {
		t.Errorf("second entry = %+v", entries[1])
	}

	entries, _ = s.HistoryWith("dave")
	if len(entries) != 0 {
		t.Errorf("HistoryWith(dave) = %v, want empty", entries)
	}
}

func TestContactsClearedOnOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, "tester")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.AddContact("bob"); err != nil {
		t.Fatalf("AddContact() error = %v", err)
	}
	if err := s.AppendHistory("bob", DirectionOut, "kept"); err != nil {
		t.Fatalf("AppendHistory() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2, err := Open(dir, "tester")
	if err != nil {
		t.Fatalf("Open() reopen error = %v", err)
	}
	defer func() { _ = s2.Close() }()

	contacts, _ := s2.Contacts()
	if len(contacts) != 0 {
		t.Errorf("contacts survived a restart: %v", contacts)
	}
	entries, _ := s2.HistoryWith("bob")
	if len(entries) != 1 {
		t.Errorf("history did not survive a restart: %v", entries)
	}
}
