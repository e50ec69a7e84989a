// Package testsupport provides test-only helpers shared across this
// module's package tests: a fake upstream stream server and a JWT
// credential minter, in place of a real auth server and a real message
// broker.
//
// Adapted from internal/testing/fake_auth_server.go's
// server-lifecycle and JWT-minting shape; the OAuth2/PKCE authorization
// flow itself is dropped (Non-goal: auth beyond the supplied credential).
package testsupport

import (
	"log"
	"net"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

var signingKey = []byte("testsupport-signing-key")

// MintCredential signs a short-lived HS256 token for userID, standing in
// for a real OAuth/OIDC credential in tests that only need something to
// thread through Identity.Credential.
func MintCredential(userID string) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(signingKey)
	if err != nil {
		log.Fatalf("testsupport: sign credential: %v", err)
	}
	return signed
}

// StreamServer is a fake upstream WebSocket stream: every inbound frame is
// reflected back verbatim, so a test can assert on round-tripped envelopes
// without standing up a real message broker.
type StreamServer struct {
	Addr string

	ln     net.Listener
	server *http.Server
}

var upgrader = websocket.Upgrader{}

// StartStreamServer starts a fake upstream on an ephemeral loopback port.
func StartStreamServer() *StreamServer {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream/", handleEcho)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("testsupport: listen: %v", err)
	}
	s := &StreamServer{
		Addr:   ln.Addr().String(),
		ln:     ln,
		server: &http.Server{Handler: mux},
	}
	go s.server.Serve(ln)
	return s
}

// URL returns the ws:// base URL tests can dial against.
func (s *StreamServer) URL() string {
	return "ws://" + s.Addr + "/stream"
}

// Stop shuts the fake upstream down.
func (s *StreamServer) Stop() {
	s.server.Close()
}

func handleEcho(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}
