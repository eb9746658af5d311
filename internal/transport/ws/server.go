package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"wealthgrid.dev/internal/protocol"
	"wealthgrid.dev/internal/sim/live"
)

type Server struct {
	loop *live.Loop
	log  *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(l *live.Loop, logger *log.Logger) *Server {
	s := &Server{
		loop: l,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		out, ok := s.handshake(conn)
		if !ok {
			return
		}
		defer s.loop.Unsubscribe(out)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine streams frames until the viewer drops.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop. Viewers send nothing after HELLO; we read only to
		// notice the close and to keep control frames flowing.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (out chan []byte, ok bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		s.sendError(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return nil, false
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		s.sendError(conn, protocol.ErrProtoBadRequest, "malformed HELLO")
		return nil, false
	}
	if hello.ProtocolVersion != protocol.Version {
		s.sendError(conn, protocol.ErrVersionMismatch, "expected "+protocol.Version)
		return nil, false
	}

	out, welcome := s.loop.Subscribe()
	if err := writeJSON(conn, welcome); err != nil {
		s.loop.Unsubscribe(out)
		return nil, false
	}
	if hello.ClientName != "" {
		s.log.Printf("viewer %q joined %s", hello.ClientName, welcome.RunID)
	}
	return out, true
}

func (s *Server) sendError(conn *websocket.Conn, code, message string) {
	_ = writeJSON(conn, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code),
		time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
