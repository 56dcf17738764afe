package http

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/relaychat/internal/core"
	"github.com/vovakirdan/relaychat/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t)

	resp, err := env.server.Client().Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := startTestServer(t)

	resp, err := env.server.Client().Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketRelayAndDelivery(t *testing.T) {
	env := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(ctx, t, env)
	connB := dialWS(ctx, t, env)
	authenticate(ctx, t, connA, "a")
	authenticate(ctx, t, connB, "b")

	room := core.DeriveRoomID("a", "b")
	send(ctx, t, connA, proto.InboundTypeJoinRoom, proto.RoomData{RoomID: room})
	send(ctx, t, connB, proto.InboundTypeJoinRoom, proto.RoomData{RoomID: room})

	// Joins land asynchronously; wait for both memberships before sending.
	waitJoined(t, env, room, 2)

	send(ctx, t, connA, proto.InboundTypeSendMessage, proto.SendMessageData{
		ReceiverID:       "b",
		Message:          "hi there",
		CorrelationToken: "t1",
	})

	frame := readUntil(ctx, t, connB, proto.OutboundTypeEvent, proto.EventNewMessage)
	var msg proto.EventMessage
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.Message != "hi there" || msg.SenderID != "a" || msg.RoomID != room || msg.Status != "sent" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	echo := readUntil(ctx, t, connA, proto.OutboundTypeEvent, proto.EventNewMessage)
	var mine proto.EventMessage
	if err := json.Unmarshal(echo.Data, &mine); err != nil {
		t.Fatalf("decode echo: %v", err)
	}
	if mine.CorrelationToken != "t1" || mine.ID != msg.ID {
		t.Fatalf("unexpected echo: %+v", mine)
	}

	update := readUntil(ctx, t, connA, proto.OutboundTypeEvent, proto.EventStatusUpdate)
	var st proto.EventStatus
	if err := json.Unmarshal(update.Data, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.MessageID != msg.ID || st.Status != "delivered" {
		t.Fatalf("unexpected status update: %+v", st)
	}
}

func TestWebSocketRejectsBeforeAuthenticate(t *testing.T) {
	env := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, env)
	send(ctx, t, conn, proto.InboundTypeSendMessage, proto.SendMessageData{ReceiverID: "b", Message: "hi"})

	frame := readUntil(ctx, t, conn, proto.OutboundTypeError, "")
	if frame.Error == nil || frame.Error.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", frame.Error)
	}
}

func TestWebSocketBadInputKeepsConnection(t *testing.T) {
	env := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, env)

	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readUntil(ctx, t, conn, proto.OutboundTypeError, "")
	if frame.Error.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request, got %+v", frame.Error)
	}

	send(ctx, t, conn, "shout", map[string]string{})
	frame = readUntil(ctx, t, conn, proto.OutboundTypeError, "")
	if frame.Error.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request for unknown type, got %+v", frame.Error)
	}

	send(ctx, t, conn, proto.InboundTypeAuthenticate, proto.AuthenticateData{})
	frame = readUntil(ctx, t, conn, proto.OutboundTypeError, "")
	if frame.Error.Msg != "userId is required" {
		t.Fatalf("unexpected validation message: %+v", frame.Error)
	}

	// Still usable.
	authenticate(ctx, t, conn, "a")
}

func TestWebSocketCloseMarksOffline(t *testing.T) {
	env := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, env)
	authenticate(ctx, t, conn, "a")

	user, err := env.store.FindUser(ctx, "a")
	if err != nil || user.Status != "online" {
		t.Fatalf("expected online user, got %+v %v", user, err)
	}

	conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if u, err := env.store.FindUser(ctx, "a"); err == nil && u.Status == "offline" && env.hub.ConnectionCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("user was not marked offline after close")
}

func waitJoined(t *testing.T, env *testEnv, room string, members int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(env.hub.Rooms().Members(room)) == members {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("room %s never reached %d members", room, members)
}
