package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/relaychat/internal/core"
	"github.com/vovakirdan/relaychat/internal/proto"
)

// ws_smoke connects two users, relays one message and waits for the
// delivered status update.
func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	sender := flag.String("from", "smoke-a", "sender user id")
	receiver := flag.String("to", "smoke-b", "receiver user id")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, *addr, *sender, *receiver, *text); err != nil {
		log.Printf("smoke failed: %v", err)
		os.Exit(1)
	}
	fmt.Println("smoke ok")
}

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func run(ctx context.Context, addr, sender, receiver, text string) error {
	a, err := dialAs(ctx, addr, sender)
	if err != nil {
		return err
	}
	defer a.Close(websocket.StatusNormalClosure, "bye")

	b, err := dialAs(ctx, addr, receiver)
	if err != nil {
		return err
	}
	defer b.Close(websocket.StatusNormalClosure, "bye")

	room := core.DeriveRoomID(sender, receiver)
	for _, conn := range []*websocket.Conn{a, b} {
		if err := send(ctx, conn, proto.InboundTypeJoinRoom, proto.RoomData{RoomID: room}); err != nil {
			return err
		}
	}
	// Joins are not acknowledged; give the server a moment to register both.
	time.Sleep(100 * time.Millisecond)

	if err := send(ctx, a, proto.InboundTypeSendMessage, proto.SendMessageData{
		ReceiverID:       receiver,
		Message:          text,
		CorrelationToken: fmt.Sprintf("smoke-%d", time.Now().UnixNano()),
	}); err != nil {
		return err
	}

	got, err := await(ctx, b, proto.EventNewMessage)
	if err != nil {
		return fmt.Errorf("receiver: %w", err)
	}
	var msg proto.EventMessage
	if err := json.Unmarshal(got.Data, &msg); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	fmt.Printf("received: id=%s room=%s from=%s text=%q status=%s\n", msg.ID, msg.RoomID, msg.SenderID, msg.Message, msg.Status)

	upd, err := await(ctx, a, proto.EventStatusUpdate)
	if err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	var st proto.EventStatus
	if err := json.Unmarshal(upd.Data, &st); err != nil {
		return fmt.Errorf("unmarshal status: %w", err)
	}
	fmt.Printf("status: id=%s status=%s\n", st.MessageID, st.Status)
	return nil
}

func dialAs(ctx context.Context, addr, userID string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if err := send(ctx, conn, proto.InboundTypeAuthenticate, proto.AuthenticateData{UserID: userID}); err != nil {
		conn.CloseNow()
		return nil, err
	}
	if _, err := await(ctx, conn, proto.EventAuthenticated); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("authenticate %s: %w", userID, err)
	}
	return conn, nil
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func await(ctx context.Context, conn *websocket.Conn, event string) (frame, error) {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return f, fmt.Errorf("read: %w", err)
		}
		if f.Type == proto.OutboundTypeError && f.Error != nil {
			return f, fmt.Errorf("server error %s: %s", f.Error.Code, f.Error.Msg)
		}
		if f.Event == event {
			return f, nil
		}
	}
}
