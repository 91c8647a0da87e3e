package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"kashimo.ai/internal/protocol"
)

// Source feeds one connected client.
type Source interface {
	// Welcome answers a HELLO. The catalogs are sent right after the WELCOME.
	Welcome(hello protocol.HelloMsg) (protocol.WelcomeMsg, []protocol.CatalogMsg)
	// Stream writes encoded messages to out until ctx ends. Returning closes the
	// connection once out is drained.
	Stream(ctx context.Context, hello protocol.HelloMsg, out chan<- []byte) error
}

type Server struct {
	src Source
	log *log.Logger

	PingInterval time.Duration

	upgrader websocket.Upgrader
}

func NewServer(src Source, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		src:          src,
		log:          logger,
		PingInterval: 20 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, out := s.handshake(conn)
		if out == nil {
			return
		}
		s.log.Printf("client %q connected from %s", hello.AgentName, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Producer.
		go func() {
			defer close(out)
			if err := s.src.Stream(ctx, hello, out); err != nil && ctx.Err() == nil {
				s.log.Printf("stream for %q: %v", hello.AgentName, err)
			}
		}()

		// Writer goroutine.
		go func() {
			defer cancel()
			ping := time.NewTicker(s.PingInterval)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
						return
					}
				case b, ok := <-out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end of feed"), time.Now().Add(time.Second))
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						return
					}
				}
			}
		}()

		// Reader loop. Clients only talk during the handshake, so this just notices
		// the connection going away.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
			if ctx.Err() != nil {
				break
			}
		}
		cancel()
		s.log.Printf("client %q disconnected", hello.AgentName)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (protocol.HelloMsg, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.HelloMsg{}, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return protocol.HelloMsg{}, nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return protocol.HelloMsg{}, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoVersion, "want "+protocol.Version))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return protocol.HelloMsg{}, nil
	}
	if hello.AgentName == "" {
		hello.AgentName = "farmer"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 64
	}
	if maxQ > 1024 {
		maxQ = 1024
	}

	welcome, cats := s.src.Welcome(hello)
	if err := writeJSON(conn, welcome); err != nil {
		return protocol.HelloMsg{}, nil
	}
	for _, c := range cats {
		if err := writeJSON(conn, c); err != nil {
			return protocol.HelloMsg{}, nil
		}
	}
	return hello, make(chan []byte, maxQ)
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
