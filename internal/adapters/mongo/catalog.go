package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/evertix/ticket-inventory/internal/observability"
)

// VenueCatalog holds display metadata for venues. The authoritative
// inventory counters live in the relational store; this collection only
// answers "does this venue exist" and dresses up availability responses.
type VenueCatalog struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewVenueCatalog(db *mongo.Database, logger observability.Logger) *VenueCatalog {
	return &VenueCatalog{
		coll:   db.Collection("venues"),
		logger: logger,
	}
}

type VenueDoc struct {
	ID        uuid.UUID `bson:"_id"`
	EventName string    `bson:"event_name"`
	Venue     string    `bson:"venue"`
	Address   string    `bson:"address"`
	Date      time.Time `bson:"date"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (c *VenueCatalog) GetVenue(ctx context.Context, id uuid.UUID) (*VenueDoc, error) {
	var venue VenueDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&venue)
	if err != nil {
		c.logger.WithError(err).Error("failed to get venue")
		return nil, err
	}
	return &venue, nil
}

func (c *VenueCatalog) CreateVenue(ctx context.Context, venue VenueDoc) error {
	venue.CreatedAt = time.Now()
	venue.UpdatedAt = time.Now()
	_, err := c.coll.InsertOne(ctx, venue)
	if err != nil {
		c.logger.WithError(err).Error("failed to create venue")
		return err
	}
	return nil
}
