// Command callsim plays the part of the calling platform against a
// running bridge: it dials the per-call WebSocket route, feeds a short
// scripted conversation, and prints everything the agent streams back.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func main() {
	server := flag.String("server", "ws://localhost:8080", "Bridge base URL")
	callID := flag.String("call", "", "Call id (random UUID if empty)")
	interrupt := flag.Bool("interrupt", true, "Barge in mid-response")
	flag.Parse()

	id := *callID
	if id == "" {
		id = uuid.NewString()
	}
	url := fmt.Sprintf("%s/call/%s", *server, id)

	fmt.Printf("📞 Dialing %s\n", url)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	done := make(chan struct{})
	go readLoop(conn, done)

	send(conn, map[string]any{"type": "ping_pong", "timestamp": time.Now().UnixMilli()})

	// Incremental transcript the way a streaming recognizer delivers it.
	send(conn, map[string]any{"type": "caller_utterance", "text": "What are", "is_final": false})
	time.Sleep(200 * time.Millisecond)
	send(conn, map[string]any{"type": "caller_utterance", "text": "What are your opening hours?", "is_final": true})

	if *interrupt {
		time.Sleep(700 * time.Millisecond)
		fmt.Println("✋ Interrupting...")
		send(conn, map[string]any{"type": "interruption"})
		time.Sleep(300 * time.Millisecond)
		send(conn, map[string]any{"type": "caller_utterance", "text": "Sorry, I meant on weekends.", "is_final": true})
	}

	time.Sleep(3 * time.Second)
	send(conn, map[string]any{"type": "call_end"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	fmt.Println("👋 Call ended")
}

func send(conn *websocket.Conn, event map[string]any) {
	if err := conn.WriteJSON(event); err != nil {
		fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
		os.Exit(1)
	}
}

func readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		var event map[string]any
		if err := conn.ReadJSON(&event); err != nil {
			return
		}
		switch event["type"] {
		case "response_chunk":
			fmt.Printf("🗣  %v\n", event["text"])
		case "response_end":
			fmt.Printf("⏹  turn done (%v)\n", event["turn_id"])
		case "error":
			fmt.Printf("⚠️  upstream error: %v\n", event["reason_code"])
		case "ping_pong":
			fmt.Printf("🏓 pong %v\n", event["timestamp"])
		default:
			fmt.Printf("❓ %v\n", event)
		}
	}
}
