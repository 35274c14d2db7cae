package handlers

import (
	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"go.uber.org/zap"
)

var server *socketio.Server

// InitializeSocketIO starts the Socket.IO server used by the dispatch
// dashboards. Clients join a room per role and receive lifecycle events for
// that role.
func InitializeSocketIO() *socketio.Server {
	server = socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			polling.Default,
			websocket.Default,
		},
	})

	server.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext("")
		zap.S().Debugf("Socket.IO client connected: %s", s.ID())
		return nil
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		zap.S().Errorf("Socket.IO error: %v", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		zap.S().Debugf("Socket.IO client disconnected: %s reason: %s", s.ID(), reason)
	})

	server.OnEvent("/", "join_role", func(s socketio.Conn, msg map[string]interface{}) {
		role, ok := msg["role"].(string)
		if ok {
			s.Join(role)
			zap.S().Debugf("client joined role room: %s", role)
		}
	})

	server.OnEvent("/", "leave_role", func(s socketio.Conn, msg map[string]interface{}) {
		role, ok := msg["role"].(string)
		if ok {
			s.Leave(role)
			zap.S().Debugf("client left role room: %s", role)
		}
	})

	go func() {
		if err := server.Serve(); err != nil {
			zap.S().Fatalf("Socket.IO server error: %v", err)
		}
	}()

	return server
}

// GetSocketIOServer returns the Socket.IO server instance
func GetSocketIOServer() *socketio.Server {
	return server
}

// emitToRole broadcasts an event to every dashboard subscribed to a role room
func emitToRole(role string, eventType string, data map[string]interface{}) {
	if server != nil {
		server.BroadcastToRoom("/", role, eventType, data)
	}
}
