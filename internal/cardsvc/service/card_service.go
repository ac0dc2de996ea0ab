package service

import (
	"context"
	"fmt"
	"time"

	"github.com/avvvet/expiry-services/internal/cardsvc/models"
	"github.com/avvvet/expiry-services/internal/comm"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// CardRepository is implemented by store.CardStore.
type CardRepository interface {
	GetAll(ctx context.Context) ([]*models.Card, error)
	GetByID(ctx context.Context, id int64) (*models.Card, error)
	GetByStatus(ctx context.Context, status models.Status) ([]*models.Card, error)
	GetByCategory(ctx context.Context, category models.Category) ([]*models.Card, error)
	GetByUserID(ctx context.Context, userID string) ([]*models.Card, error)
	GetExpiringBetween(ctx context.Context, from, to models.Date) ([]*models.Card, error)
	GetExpiredBefore(ctx context.Context, day models.Date) ([]*models.Card, error)
	Insert(ctx context.Context, card *models.Card) (*models.Card, error)
	Update(ctx context.Context, card *models.Card) (*models.Card, error)
	Delete(ctx context.Context, id int64) error
	UpdateStatusBulk(ctx context.Context, ids []int64, from, to models.Status) ([]int64, error)
	CountByStatus(ctx context.Context, status models.Status) (int64, error)
	CountExpiringBetween(ctx context.Context, from, to models.Date) (int64, error)
	SumAmountByStatus(ctx context.Context, status models.Status) (decimal.Decimal, error)
}

// EventPublisher is implemented by broker.Broker.
type EventPublisher interface {
	PublishCardEvent(event comm.CardEvent) error
}

type CardService struct {
	store     CardRepository
	loc       *time.Location
	publisher EventPublisher
	now       func() time.Time
}

// NewCardService builds the service. A nil loc means UTC and a nil publisher
// disables events.
func NewCardService(store CardRepository, loc *time.Location, publisher EventPublisher) *CardService {
	if loc == nil {
		loc = time.UTC
	}
	return &CardService{
		store:     store,
		loc:       loc,
		publisher: publisher,
		now:       time.Now,
	}
}

// Today is the current calendar date in the service time zone.
func (s *CardService) Today() models.Date {
	return models.DateOf(s.now().In(s.loc))
}

func (s *CardService) List(ctx context.Context) ([]*models.Card, error) {
	return s.store.GetAll(ctx)
}

func (s *CardService) Get(ctx context.Context, id int64) (*models.Card, error) {
	return s.store.GetByID(ctx, id)
}

func (s *CardService) ListByStatus(ctx context.Context, status models.Status) ([]*models.Card, error) {
	return s.store.GetByStatus(ctx, status)
}

func (s *CardService) ListByCategory(ctx context.Context, category models.Category) ([]*models.Card, error) {
	return s.store.GetByCategory(ctx, category)
}

func (s *CardService) ListByUser(ctx context.Context, userID string) ([]*models.Card, error) {
	return s.store.GetByUserID(ctx, userID)
}

// Create stores a new ACTIVE card. Any status in the input is ignored.
func (s *CardService) Create(ctx context.Context, in models.CardInput) (*models.Card, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	card := &models.Card{
		Name:           in.Name,
		Category:       in.Category,
		ExpirationDate: *in.ExpirationDate,
		Status:         models.StatusActive,
		ImageBase64:    in.ImageBase64,
		Barcode:        in.Barcode,
		Memo:           in.Memo,
		UserID:         in.UserID,
		Amount:         in.Amount,
	}

	created, err := s.store.Insert(ctx, card)
	if err != nil {
		return nil, err
	}
	s.publish(comm.EventCreated, created)
	return created, nil
}

// Update replaces the editable fields. Status, usedAt and owner stay as they are.
func (s *CardService) Update(ctx context.Context, id int64, in models.CardInput) (*models.Card, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	card, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	card.Name = in.Name
	card.Category = in.Category
	card.ExpirationDate = *in.ExpirationDate
	card.ImageBase64 = in.ImageBase64
	card.Barcode = in.Barcode
	card.Memo = in.Memo
	card.Amount = in.Amount

	updated, err := s.store.Update(ctx, card)
	if err != nil {
		return nil, err
	}
	s.publish(comm.EventUpdated, updated)
	return updated, nil
}

func (s *CardService) Delete(ctx context.Context, id int64) error {
	card, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(comm.EventDeleted, card)
	return nil
}

// MarkUsed moves an ACTIVE card to USED. A card that is already USED is
// returned unchanged; an EXPIRED card cannot be used.
func (s *CardService) MarkUsed(ctx context.Context, id int64) (*models.Card, error) {
	card, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch card.Status {
	case models.StatusUsed:
		return card, nil
	case models.StatusExpired:
		return nil, fmt.Errorf("%w: card %d is expired", models.ErrInvalidTransition, id)
	}

	usedAt := s.now()
	card.Status = models.StatusUsed
	card.UsedAt = &usedAt

	updated, err := s.store.Update(ctx, card)
	if err != nil {
		return nil, err
	}
	s.publish(comm.EventUsed, updated)
	return updated, nil
}

// MaxExpiringDays bounds the look-ahead window of ExpiringSoon.
const MaxExpiringDays = 3650

// ExpiringSoon returns ACTIVE cards expiring between today and today+days inclusive.
func (s *CardService) ExpiringSoon(ctx context.Context, days int) ([]*models.Card, error) {
	if days < 0 || days > MaxExpiringDays {
		return nil, fmt.Errorf("%w: days must be within 0-%d, got %d", models.ErrValidation, MaxExpiringDays, days)
	}
	today := s.Today()
	return s.store.GetExpiringBetween(ctx, today, today.AddDays(days))
}

// Expired returns ACTIVE cards whose expiration date is already in the past.
func (s *CardService) Expired(ctx context.Context) ([]*models.Card, error) {
	return s.store.GetExpiredBefore(ctx, s.Today())
}

func (s *CardService) Stats(ctx context.Context) (*models.Stats, error) {
	var (
		stats models.Stats
		err   error
	)

	if stats.Active, err = s.store.CountByStatus(ctx, models.StatusActive); err != nil {
		return nil, err
	}
	if stats.Expired, err = s.store.CountByStatus(ctx, models.StatusExpired); err != nil {
		return nil, err
	}
	if stats.Used, err = s.store.CountByStatus(ctx, models.StatusUsed); err != nil {
		return nil, err
	}

	today := s.Today()
	if stats.ExpiringSoon7, err = s.store.CountExpiringBetween(ctx, today, today.AddDays(7)); err != nil {
		return nil, err
	}
	if stats.ExpiringSoon30, err = s.store.CountExpiringBetween(ctx, today, today.AddDays(30)); err != nil {
		return nil, err
	}
	if stats.ActiveAmount, err = s.store.SumAmountByStatus(ctx, models.StatusActive); err != nil {
		return nil, err
	}

	stats.Total = stats.Active + stats.Expired + stats.Used
	return &stats, nil
}

// SweepExpired flips every ACTIVE card past its expiration date to EXPIRED in
// one write and returns how many rows changed. Only changed cards get an event.
func (s *CardService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.Expired(ctx)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(expired))
	for _, c := range expired {
		ids = append(ids, c.ID)
	}

	changed, err := s.store.UpdateStatusBulk(ctx, ids, models.StatusActive, models.StatusExpired)
	if err != nil {
		return 0, err
	}

	swept := make(map[int64]bool, len(changed))
	for _, id := range changed {
		swept[id] = true
	}
	for _, c := range expired {
		if !swept[c.ID] {
			continue
		}
		c.Status = models.StatusExpired
		s.publish(comm.EventExpired, c)
	}
	return len(changed), nil
}

// ExpiringByUser groups the cards expiring within days by owner. Cards with
// no owner are grouped under the empty string.
func (s *CardService) ExpiringByUser(ctx context.Context, days int) (map[string][]*models.Card, error) {
	cards, err := s.ExpiringSoon(ctx, days)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string][]*models.Card)
	for _, c := range cards {
		var user string
		if c.UserID != nil {
			user = *c.UserID
		}
		byUser[user] = append(byUser[user], c)
	}
	return byUser, nil
}

// publish is best effort. A missing or failing broker never fails the operation.
func (s *CardService) publish(eventType string, card *models.Card) {
	if s.publisher == nil {
		return
	}

	event := comm.CardEvent{
		Type:           eventType,
		CardID:         card.ID,
		Name:           card.Name,
		Status:         string(card.Status),
		ExpirationDate: card.ExpirationDate.String(),
		Timestamp:      s.now().UTC(),
	}
	if card.UserID != nil {
		event.UserID = *card.UserID
	}

	if err := s.publisher.PublishCardEvent(event); err != nil {
		log.Warnf("card %d: could not publish %s event: %v", card.ID, eventType, err)
	}
}
