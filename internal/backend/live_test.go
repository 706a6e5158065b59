package backend

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// TestLiveBackendConnection connects to a locally running backend and waits for
// the session id. Skipped if nothing is listening.
func TestLiveBackendConnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := Dial(ctx, DefaultEndpoint)
	if err != nil {
		t.Skip("backend not running (", err, ")")
	}
	defer conn.Close()
	fmt.Println("Connected to backend")

	data, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ev, err := ParseEvent(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c, ok := ev.(Connected)
	if !ok {
		t.Fatalf("first event = %s, want connected", ev.Type())
	}
	fmt.Printf("Session: %s\n", c.ClientID)

	if err := conn.Send(Frame{Type: FramePing}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	data, err = conn.ReadFrame()
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	fmt.Printf("Reply to ping: %s\n", data)

	api := NewAPIClient(DefaultAPIBaseURL, nil)
	health, err := api.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	fmt.Printf("Health: %v\n", health)
}
