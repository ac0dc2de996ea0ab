package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/avvvet/expiry-services/internal/cardsvc/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is the subset of *pgxpool.Pool the store needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const cardColumns = `id, name, category, expiration_date, status, image_base64, barcode, memo,
		user_id, amount::text, created_at, updated_at, used_at`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type CardStore struct {
	db DBTX
}

func NewCardStore(db DBTX) *CardStore {
	return &CardStore{db: db}
}

func (s *CardStore) selectCards() sq.SelectBuilder {
	return psql.Select(cardColumns).From("gift_cards")
}

func (s *CardStore) GetAll(ctx context.Context) ([]*models.Card, error) {
	return s.queryCards(ctx, s.selectCards().OrderBy("id"))
}

func (s *CardStore) GetByID(ctx context.Context, id int64) (*models.Card, error) {
	query, args, err := s.selectCards().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build card query: %w", err)
	}

	card, err := scanCard(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("card %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get card by id: %w", err)
	}
	return card, nil
}

func (s *CardStore) GetByStatus(ctx context.Context, status models.Status) ([]*models.Card, error) {
	return s.queryCards(ctx, s.selectCards().Where(sq.Eq{"status": status}).OrderBy("id"))
}

func (s *CardStore) GetByCategory(ctx context.Context, category models.Category) ([]*models.Card, error) {
	return s.queryCards(ctx, s.selectCards().Where(sq.Eq{"category": category}).OrderBy("id"))
}

func (s *CardStore) GetByUserID(ctx context.Context, userID string) ([]*models.Card, error) {
	return s.queryCards(ctx, s.selectCards().Where(sq.Eq{"user_id": userID}).OrderBy("id"))
}

// GetExpiringBetween returns ACTIVE cards expiring within [from, to], soonest first.
func (s *CardStore) GetExpiringBetween(ctx context.Context, from, to models.Date) ([]*models.Card, error) {
	b := s.selectCards().
		Where(sq.Eq{"status": models.StatusActive}).
		Where(sq.GtOrEq{"expiration_date": from.Time}).
		Where(sq.LtOrEq{"expiration_date": to.Time}).
		OrderBy("expiration_date ASC", "id ASC")
	return s.queryCards(ctx, b)
}

// GetExpiredBefore returns ACTIVE cards whose expiration date is strictly before day.
func (s *CardStore) GetExpiredBefore(ctx context.Context, day models.Date) ([]*models.Card, error) {
	b := s.selectCards().
		Where(sq.Eq{"status": models.StatusActive}).
		Where(sq.Lt{"expiration_date": day.Time}).
		OrderBy("id")
	return s.queryCards(ctx, b)
}

func (s *CardStore) Insert(ctx context.Context, card *models.Card) (*models.Card, error) {
	query := `
		INSERT INTO gift_cards (name, category, expiration_date, status, image_base64, barcode, memo, user_id, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + cardColumns

	created, err := scanCard(s.db.QueryRow(ctx, query,
		card.Name,
		card.Category,
		card.ExpirationDate.Time,
		card.Status,
		card.ImageBase64,
		card.Barcode,
		card.Memo,
		card.UserID,
		amountArg(card.Amount),
	))
	if err != nil {
		return nil, fmt.Errorf("could not create card: %w", err)
	}
	return created, nil
}

// Update overwrites every mutable column of the card with the given id.
func (s *CardStore) Update(ctx context.Context, card *models.Card) (*models.Card, error) {
	query := `
		UPDATE gift_cards
		SET name = $2, category = $3, expiration_date = $4, status = $5, image_base64 = $6,
			barcode = $7, memo = $8, user_id = $9, amount = $10, used_at = $11, updated_at = now()
		WHERE id = $1
		RETURNING ` + cardColumns

	updated, err := scanCard(s.db.QueryRow(ctx, query,
		card.ID,
		card.Name,
		card.Category,
		card.ExpirationDate.Time,
		card.Status,
		card.ImageBase64,
		card.Barcode,
		card.Memo,
		card.UserID,
		amountArg(card.Amount),
		card.UsedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("card %d: %w", card.ID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("could not update card: %w", err)
	}
	return updated, nil
}

func (s *CardStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM gift_cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("could not delete card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("card %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// UpdateStatusBulk moves every listed card that is still in status from to
// status to in a single statement and returns the ids it changed. Cards that
// changed status in the meantime are left alone.
func (s *CardStore) UpdateStatusBulk(ctx context.Context, ids []int64, from, to models.Status) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		UPDATE gift_cards
		SET status = $1, updated_at = now()
		WHERE id = ANY($2) AND status = $3
		RETURNING id
	`
	rows, err := s.db.Query(ctx, query, to, ids, from)
	if err != nil {
		return nil, fmt.Errorf("could not update card statuses: %w", err)
	}
	changed, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("could not read updated card ids: %w", err)
	}
	return changed, nil
}

func (s *CardStore) CountByStatus(ctx context.Context, status models.Status) (int64, error) {
	return s.count(ctx, psql.Select("count(*)").From("gift_cards").Where(sq.Eq{"status": status}))
}

// CountExpiringBetween counts ACTIVE cards expiring within [from, to].
func (s *CardStore) CountExpiringBetween(ctx context.Context, from, to models.Date) (int64, error) {
	b := psql.Select("count(*)").From("gift_cards").
		Where(sq.Eq{"status": models.StatusActive}).
		Where(sq.GtOrEq{"expiration_date": from.Time}).
		Where(sq.LtOrEq{"expiration_date": to.Time})
	return s.count(ctx, b)
}

func (s *CardStore) SumAmountByStatus(ctx context.Context, status models.Status) (decimal.Decimal, error) {
	query, args, err := psql.Select("COALESCE(SUM(amount), 0)::text").
		From("gift_cards").
		Where(sq.Eq{"status": status}).
		ToSql()
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build sum query: %w", err)
	}

	var raw string
	if err := s.db.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum card amounts: %w", err)
	}
	sum, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount sum %q: %w", raw, err)
	}
	return sum, nil
}

func (s *CardStore) count(ctx context.Context, b sq.SelectBuilder) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var n int64
	if err := s.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return n, nil
}

func (s *CardStore) queryCards(ctx context.Context, b sq.SelectBuilder) ([]*models.Card, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build card query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	cards := make([]*models.Card, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cards: %w", err)
	}
	return cards, nil
}

func scanCard(row pgx.Row) (*models.Card, error) {
	var (
		card       models.Card
		expiration time.Time
		amount     *string
	)
	err := row.Scan(
		&card.ID,
		&card.Name,
		&card.Category,
		&expiration,
		&card.Status,
		&card.ImageBase64,
		&card.Barcode,
		&card.Memo,
		&card.UserID,
		&amount,
		&card.CreatedAt,
		&card.UpdatedAt,
		&card.UsedAt,
	)
	if err != nil {
		return nil, err
	}

	card.ExpirationDate = models.DateOf(expiration)
	if amount != nil {
		d, err := decimal.NewFromString(*amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", *amount, err)
		}
		card.Amount = &d
	}
	return &card, nil
}

// amountArg sends the amount in text form so pgx does not need a numeric codec for decimal.
func amountArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
