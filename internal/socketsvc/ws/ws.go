package ws

import (
	"encoding/json"
	"sync"

	"github.com/avvvet/expiry-services/internal/comm"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// client serializes writes; gorilla connections allow one concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type Ws struct {
	connMap sync.Map // socketId -> *client
	userMap sync.Map // socketId -> userId given in init
}

func NewWs() *Ws {
	return &Ws{}
}

// handle socket message from web clients
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	switch message.Type {
	case "init":
		s.handleInit(socketId, message)
	case "ping":
		s.Send(socketId, &comm.WSMessage{Type: "pong", SocketId: socketId})
	default:
		log.Warnf("unknown event received: %s", message.Type)
	}
}

// handleInit binds the socket to a card owner. An empty user id subscribes
// the socket to every event.
func (s *Ws) handleInit(socketId string, msg *comm.WSMessage) {
	var payload comm.Subscription
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			log.Errorf("Error: invalid_init_data Malformed init payload %s", err)
			return
		}
	}

	s.userMap.Store(socketId, payload.UserID)

	data, _ := json.Marshal(payload)
	s.Send(socketId, &comm.WSMessage{Type: "init-response", Data: data, SocketId: socketId})
	log.Infof("socket %s subscribed to card events of user %q", socketId, payload.UserID)
}

func (s *Ws) StoreConnection(socketId string, conn *websocket.Conn) {
	s.connMap.Store(socketId, &client{conn: conn})
}

func (s *Ws) HandleDisconnect(socketId string) {
	s.connMap.Delete(socketId)
	s.userMap.Delete(socketId)
}

// Send writes m to one socket. It reports false if the socket is gone or the write failed.
func (s *Ws) Send(socketId string, m *comm.WSMessage) bool {
	v, ok := s.connMap.Load(socketId)
	if !ok {
		return false
	}
	c := v.(*client)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(m); err != nil {
		log.Errorf("write to socket %s failed: %v", socketId, err)
		return false
	}
	return true
}

// GetUserSockets returns the initialized sockets that should see an event
// for userId. Sockets without a user see everything, and an event without a
// user goes to every initialized socket.
func (s *Ws) GetUserSockets(userId string) []string {
	var sockets []string
	s.userMap.Range(func(key, value interface{}) bool {
		subscribed := value.(string)
		if userId == "" || subscribed == "" || subscribed == userId {
			sockets = append(sockets, key.(string))
		}
		return true // continue iterating
	})
	return sockets
}
