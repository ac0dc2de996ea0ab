package broker

import (
	"encoding/json"

	"github.com/avvvet/expiry-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

type Broker struct {
	Conn           *nats.Conn
	Send           func(string, *comm.WSMessage) bool
	GetUserSockets func(string) []string
}

func NewBroker(conn *nats.Conn, fncSend func(string, *comm.WSMessage) bool, fncGetUserSockets func(string) []string) *Broker {
	return &Broker{
		Conn:           conn,
		Send:           fncSend,
		GetUserSockets: fncGetUserSockets,
	}
}

// consume card events published by the card and sweep services
func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (b *Broker) handleMessages(msgNats *nats.Msg) {
	b.Dispatch(msgNats.Data)
}

// Dispatch forwards one published event to the sockets of its owner and
// returns how many sockets received it.
func (b *Broker) Dispatch(raw []byte) int {
	message := &comm.WSMessage{}
	if err := json.Unmarshal(raw, message); err != nil {
		log.Errorf("Error %s", err)
		return 0
	}

	switch message.Type {
	case comm.EventCreated, comm.EventUpdated, comm.EventDeleted,
		comm.EventUsed, comm.EventExpired, comm.EventExpiringSoon:
	default:
		log.Warnf("Unknown message type %q", message.Type)
		return 0
	}

	var owner struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(message.Data, &owner); err != nil {
		log.Errorf("Error reading %s payload: %s", message.Type, err)
		return 0
	}

	sent := 0
	for _, socketId := range b.GetUserSockets(owner.UserID) {
		if b.Send(socketId, message) {
			sent++
		}
	}
	return sent
}
