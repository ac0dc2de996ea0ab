package sweeper

import (
	"context"
	"sort"
	"time"

	"github.com/avvvet/expiry-services/internal/cardsvc/models"
	"github.com/avvvet/expiry-services/internal/comm"
	log "github.com/sirupsen/logrus"
)

// ExpiringLister is implemented by service.CardService.
type ExpiringLister interface {
	Today() models.Date
	ExpiringByUser(ctx context.Context, days int) (map[string][]*models.Card, error)
}

// ReminderPublisher is implemented by broker.Broker.
type ReminderPublisher interface {
	PublishReminder(event comm.ReminderEvent) error
}

// Reminder publishes one expiring-soon digest per card owner.
type Reminder struct {
	cards     ExpiringLister
	publisher ReminderPublisher
	days      int
	now       func() time.Time
}

func NewReminder(cards ExpiringLister, publisher ReminderPublisher, days int) *Reminder {
	return &Reminder{
		cards:     cards,
		publisher: publisher,
		days:      days,
		now:       time.Now,
	}
}

// RunOnce returns the number of reminders published.
func (r *Reminder) RunOnce(ctx context.Context) (int, error) {
	byUser, err := r.cards.ExpiringByUser(ctx, r.days)
	if err != nil {
		log.Errorf("expiring-soon lookup failed: %v", err)
		return 0, err
	}

	users := make([]string, 0, len(byUser))
	for user := range byUser {
		users = append(users, user)
	}
	sort.Strings(users)

	today := r.cards.Today()
	sent := 0
	for _, user := range users {
		event := comm.ReminderEvent{
			UserID:    user,
			Days:      r.days,
			Timestamp: r.now().UTC(),
		}
		for _, c := range byUser[user] {
			event.Cards = append(event.Cards, comm.ReminderCard{
				CardID:         c.ID,
				Name:           c.Name,
				ExpirationDate: c.ExpirationDate.String(),
				DaysLeft:       c.DaysUntilExpiration(today),
			})
		}

		if err := r.publisher.PublishReminder(event); err != nil {
			log.Warnf("reminder for user %q not published: %v", user, err)
			continue
		}
		sent++
	}

	remindersSentTotal.Add(float64(sent))
	log.Infof("expiring-soon reminder: %d owner(s) notified about cards expiring within %d days", sent, r.days)
	return sent, nil
}

// Run adapts RunOnce to Daily.
func (r *Reminder) Run(ctx context.Context) {
	_, _ = r.RunOnce(ctx)
}
