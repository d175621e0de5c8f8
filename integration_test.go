//go:build integration

package gramsetu_test

import (
	"context"
	"os"
	"testing"
	"time"

	gramsetu "github.com/gramsetu-cloud/gramsetu-go"
)

// helpers ---------------------------------------------------------------

func testToken(t *testing.T) string {
	t.Helper()
	tok := os.Getenv("GRAMSETU_TOKEN_TEST")
	if tok == "" {
		t.Fatal("GRAMSETU_TOKEN_TEST environment variable is required")
	}
	return tok
}

func testUserID(t *testing.T) string {
	t.Helper()
	id := os.Getenv("GRAMSETU_USER_ID_TEST")
	if id == "" {
		t.Fatal("GRAMSETU_USER_ID_TEST environment variable is required")
	}
	return id
}

func testBaseURL() string {
	return os.Getenv("GRAMSETU_BASE_URL_TEST") // empty means production
}

func newClient(t *testing.T) *gramsetu.Client {
	t.Helper()
	if base := testBaseURL(); base != "" {
		return gramsetu.NewClient(testToken(t), gramsetu.WithBaseURL(base))
	}
	return gramsetu.NewClient(testToken(t))
}

// =======================================================================
// Group 1: REST surface
// =======================================================================

func TestIntegration_Users_List(t *testing.T) {
	client := newClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users, err := client.Chat().Users.List(ctx)
	if err != nil {
		t.Fatalf("Users.List: %v", err)
	}
	t.Logf("Users.List — count=%d", len(users))
}

func TestIntegration_Notifications_List(t *testing.T) {
	client := newClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	items, err := client.Chat().Notifications.List(ctx, true)
	if err != nil {
		t.Fatalf("Notifications.List: %v", err)
	}
	t.Logf("Notifications.List — count=%d", len(items))
	for _, n := range items {
		if n.ID == "" {
			t.Error("expected non-empty notification id")
		}
	}
}

// =======================================================================
// Group 2: Realtime lifecycle
// =======================================================================

func TestIntegration_Realtime_Lifecycle(t *testing.T) {
	client := newClient(t)
	userID := testUserID(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sock := client.Chat().Realtime.Connect(&gramsetu.RealtimeConfig{
		AutoReconnect: false,
	})

	connected := make(chan struct{}, 1)
	sock.OnConnected(func() { connected <- struct{}{} })

	if err := sock.Connect(ctx, userID); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if sock.State() != gramsetu.StateConnected {
		t.Fatalf("expected connected, got %s", sock.State())
	}

	select {
	case <-connected:
		t.Log("connected event received")
	case <-time.After(10 * time.Second):
		t.Fatal("connected event timeout")
	}

	// Session + tracker round trip against the live transcript.
	tracker := gramsetu.NewUnreadTracker(gramsetu.NewMemoryUnreadStore(), nil)
	session := gramsetu.NewChatSession(userID, sock, tracker, nil)

	users, err := client.Chat().Users.List(ctx)
	if err != nil {
		t.Fatalf("Users.List: %v", err)
	}
	if len(users) > 0 {
		peer := users[0].ID
		if err := session.OpenConversation(ctx, client, peer); err != nil {
			t.Logf("OpenConversation (non-fatal, peer may have no history): %v", err)
		} else {
			t.Logf("OpenConversation — peer=%s transcript=%d", peer, len(session.Transcript()))
		}
	}

	if err := sock.Disconnect(); err != nil {
		t.Logf("Disconnect: %v", err)
	}
	if sock.State() != gramsetu.StateDisconnected {
		t.Errorf("expected disconnected, got %s", sock.State())
	}
}
