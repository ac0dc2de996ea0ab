package scanlog

import (
	"context"
	"fmt"
	"time"

	"github.com/avvvet/expiry-services/internal/cardsvc/ocr"
	"github.com/avvvet/expiry-services/internal/db"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	Collection   = "ocr_scans"
	DefaultLimit = 20
	MaxLimit     = 100
)

// Scan is one OCR attempt. Documents are removed by MongoDB once ExpiresAt passes.
type Scan struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RequestID      string             `bson:"request_id" json:"requestId"`
	UserID         string             `bson:"user_id,omitempty" json:"userId,omitempty"`
	Success        bool               `bson:"success" json:"success"`
	Message        string             `bson:"message" json:"message"`
	Name           *string            `bson:"name,omitempty" json:"name,omitempty"`
	Barcode        *string            `bson:"barcode,omitempty" json:"barcode,omitempty"`
	ExpirationDate *string            `bson:"expiration_date,omitempty" json:"expirationDate,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"createdAt"`
	ExpiresAt      time.Time          `bson:"expires_at" json:"expiresAt"`
}

type ScanLog struct {
	coll *mongo.Collection
	ttl  time.Duration
	now  func() time.Time
}

func New(database *mongo.Database, ttl time.Duration) *ScanLog {
	return NewWithCollection(database.Collection(Collection), ttl)
}

func NewWithCollection(coll *mongo.Collection, ttl time.Duration) *ScanLog {
	return &ScanLog{coll: coll, ttl: ttl, now: time.Now}
}

// EnsureIndexes creates the TTL index on expires_at.
func (l *ScanLog) EnsureIndexes(ctx context.Context) error {
	return db.CreateTTLIndex(ctx, l.coll, "expires_at")
}

// Record stores the outcome of a scan and returns the stored document.
func (l *ScanLog) Record(ctx context.Context, userID string, res ocr.Result) (*Scan, error) {
	now := l.now().UTC()
	scan := &Scan{
		RequestID: uuid.NewString(),
		UserID:    userID,
		Success:   res.Success,
		Message:   res.Message,
		Name:      res.Name,
		Barcode:   res.Barcode,
		CreatedAt: now,
		ExpiresAt: now.Add(l.ttl),
	}
	if res.ExpirationDate != nil {
		d := res.ExpirationDate.String()
		scan.ExpirationDate = &d
	}

	out, err := l.coll.InsertOne(ctx, scan)
	if err != nil {
		return nil, fmt.Errorf("insert ocr scan: %w", err)
	}
	if id, ok := out.InsertedID.(primitive.ObjectID); ok {
		scan.ID = id
	}
	return scan, nil
}

// Recent returns the newest scans first. limit is clamped to [1, MaxLimit].
func (l *ScanLog) Recent(ctx context.Context, limit int64) ([]Scan, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := l.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find ocr scans: %w", err)
	}
	defer cursor.Close(ctx)

	scans := make([]Scan, 0)
	if err := cursor.All(ctx, &scans); err != nil {
		return nil, fmt.Errorf("decode ocr scans: %w", err)
	}
	return scans, nil
}
