package broker

import (
	"encoding/json"
	"fmt"

	"github.com/avvvet/expiry-services/internal/comm"
	log "github.com/sirupsen/logrus"
)

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type Broker struct {
	Conn Publisher
}

func NewBroker(conn Publisher) *Broker {
	return &Broker{Conn: conn}
}

// PublishCardEvent announces a card lifecycle change on card.events.
func (b *Broker) PublishCardEvent(event comm.CardEvent) error {
	return b.publish(comm.SubjectCardEvents, event.Type, event)
}

// PublishReminder sends one user's expiring-soon digest on cards.expiring-soon.
func (b *Broker) PublishReminder(event comm.ReminderEvent) error {
	return b.publish(comm.SubjectExpiringSoon, comm.EventExpiringSoon, event)
}

func (b *Broker) publish(subject, msgType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", msgType, err)
	}

	msg := comm.WSMessage{
		Type: msgType,
		Data: raw,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msgType, err)
	}

	if err := b.Conn.Publish(subject, payload); err != nil {
		log.Errorf("Error publishing to topic %s: %s", subject, err)
		return err
	}
	return nil
}
