// Command demo wires a facade.Session against a local WebSocket stub
// server end to end: it mints a fake credential, starts the session in
// direct mode, sends one message, and prints whatever the stub echoes back.
//
// Grounded on examples/client/websocket/main.go's connect-then-call shape.
package main

import (
	"fmt"
	"log"
	"time"

	"github.com/streamhub/streamhub/envelope"
	"github.com/streamhub/streamhub/facade"
	"github.com/streamhub/streamhub/internal/testsupport"
)

func main() {
	stub := testsupport.StartStreamServer()
	defer stub.Stop()

	credential := testsupport.MintCredential("demo-user")

	session := facade.New()
	session.SetConfig(facade.Config{
		URL:                   stub.URL(),
		ConnectionMode:        facade.ModeDirect,
		EnableNetworkListener: false,
	})
	session.SetHooks(facade.Hooks{
		OnConnected:    func() { fmt.Println("connected") },
		OnDisconnected: func() { fmt.Println("disconnected") },
		OnError:        func(err error) { fmt.Println("error:", err) },
	})
	if _, err := session.RegisterCallback(envelope.Entry{
		Type: "ECHO",
		Callback: func(data any, env envelope.MessageEnvelope) {
			fmt.Printf("received ECHO: %v\n", data)
		},
	}); err != nil {
		log.Fatalf("register callback: %v", err)
	}

	if err := session.Start(envelope.Identity{UserID: "demo-user", Credential: credential}); err != nil {
		log.Fatalf("start: %v", err)
	}
	defer session.Stop()

	time.Sleep(200 * time.Millisecond)
	if err := session.Send(map[string]any{"type": "ECHO", "data": "hello from the demo"}); err != nil {
		log.Fatalf("send: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
}
