package server

import (
	"net/http"
	"time"

	"proofdeps/internal/protocol"
	"proofdeps/internal/session"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsMaxMessage = 64 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// handleWebSocket runs one session per connection. The first message sent
// is the session description; afterwards every client message gets at most
// one reply, in order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	wsConnections.Inc()
	defer wsConnections.Dec()

	sess := s.newSession()
	logger := s.logger.With("session", sess.ID)
	logger.Info("websocket session opened", "remote", r.RemoteAddr)

	if err := s.send(conn, protocol.Session(protocol.NewSession(sess))); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", "error", err)
			}
			logger.Info("websocket session closed")
			return
		}

		// A rebuild replaces the graph; the client is moved to a fresh session.
		if sess.Graph() != s.Graph() {
			sess = s.rebind(sess)
			if err := s.send(conn, protocol.Session(protocol.NewSession(sess))); err != nil {
				return
			}
		}

		in, err := protocol.Decode(data)
		if err != nil {
			logger.Debug("bad client message", "error", err)
			if err := s.send(conn, protocol.Error(err)); err != nil {
				return
			}
			continue
		}

		out, ok := dispatch(sess, in)
		if !ok {
			continue
		}
		if err := s.send(conn, out); err != nil {
			return
		}
	}
}

// rebind creates a session over the current graph carrying the modes of old.
func (s *Server) rebind(old *session.Session) *session.Session {
	dir, depth, filter := old.Modes()
	opts := append(append([]session.Option{}, s.sessionOpts...), session.WithModes(dir, depth, filter))
	return session.New(s.Graph(), opts...)
}

func (s *Server) send(conn *websocket.Conn, msg protocol.Outbound) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	err := conn.WriteJSON(msg)
	if err != nil {
		s.logger.Warn("failed to write websocket message", "error", err)
	}
	return err
}
