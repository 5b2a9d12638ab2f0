package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const collectionName = "invoice_activity"

type eventModel struct {
	ID             string         `bson:"_id"`
	OrganizationID string         `bson:"organization_id"`
	InvoiceID      string         `bson:"invoice_id"`
	Kind           string         `bson:"kind"`
	Message        string         `bson:"message"`
	Meta           map[string]any `bson:"meta,omitempty"`
	OccurredAt     time.Time      `bson:"occurred_at"`
}

func toModel(e Event) eventModel {
	return eventModel{
		ID:             e.ID.String(),
		OrganizationID: e.OrganizationID.String(),
		InvoiceID:      e.InvoiceID.String(),
		Kind:           string(e.Kind),
		Message:        e.Message,
		Meta:           e.Meta,
		OccurredAt:     e.OccurredAt,
	}
}

func fromModel(m eventModel) (Event, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return Event{}, fmt.Errorf("activity/mongo: parse id: %w", err)
	}
	orgID, err := uuid.Parse(m.OrganizationID)
	if err != nil {
		return Event{}, fmt.Errorf("activity/mongo: parse organization id: %w", err)
	}
	invoiceID, err := uuid.Parse(m.InvoiceID)
	if err != nil {
		return Event{}, fmt.Errorf("activity/mongo: parse invoice id: %w", err)
	}
	return Event{
		ID:             id,
		OrganizationID: orgID,
		InvoiceID:      invoiceID,
		Kind:           Kind(m.Kind),
		Message:        m.Message,
		Meta:           m.Meta,
		OccurredAt:     m.OccurredAt.UTC(),
	}, nil
}

// MongoStore keeps the feed in a MongoDB collection.
type MongoStore struct {
	col *mongo.Collection
}

// NewMongoStore builds a store on db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection(collectionName)}
}

// Migrate creates the feed indexes.
func (s *MongoStore) Migrate(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "invoice_id", Value: 1}, {Key: "occurred_at", Value: -1}}},
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "occurred_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("activity/mongo: migrate indexes: %w", err)
	}
	return nil
}

// Record inserts the event.
func (s *MongoStore) Record(ctx context.Context, event Event) error {
	event, err := prepare(event, time.Now())
	if err != nil {
		return err
	}
	if _, err := s.col.InsertOne(ctx, toModel(event)); err != nil {
		return fmt.Errorf("activity/mongo: insert: %w", err)
	}
	return nil
}

// ListForInvoice returns the newest events first.
func (s *MongoStore) ListForInvoice(ctx context.Context, orgID, invoiceID uuid.UUID, limit int) ([]Event, error) {
	filter := bson.M{"organization_id": orgID.String(), "invoice_id": invoiceID.String()}
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}}).
		SetLimit(int64(clampLimit(limit)))
	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("activity/mongo: find: %w", err)
	}
	var models []eventModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("activity/mongo: decode: %w", err)
	}
	out := make([]Event, 0, len(models))
	for _, m := range models {
		e, err := fromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
