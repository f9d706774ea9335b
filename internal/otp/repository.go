package otp

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository handles DB operations for OTP records.
type Repository struct {
	collection *mongo.Collection
}

func NewRepository(db *mongo.Database) *Repository {
	return &Repository{collection: db.Collection("otps")}
}

func (r *Repository) Insert(ctx context.Context, o *OTP) error {
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	if _, err := r.collection.InsertOne(ctx, o); err != nil {
		return fmt.Errorf("insert otp: %w", err)
	}
	return nil
}

// FindUnused returns the unused codes for an owner and purpose, newest first.
// In steady state at most one exists, but the caller scans all of them.
func (r *Repository) FindUnused(ctx context.Context, ownerID primitive.ObjectID, purpose Purpose) ([]*OTP, error) {
	filter := bson.M{"owner_id": ownerID, "purpose": purpose, "used": false}
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find unused otps: %w", err)
	}
	var otps []*OTP
	if err := cursor.All(ctx, &otps); err != nil {
		return nil, fmt.Errorf("decode unused otps: %w", err)
	}
	return otps, nil
}

func (r *Repository) MarkUsed(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"used": true}})
	if err != nil {
		return fmt.Errorf("mark otp used: %w", err)
	}
	return nil
}

// InvalidateUnused retires every unused code for the owner and purpose, so a
// freshly issued code is the only live one.
func (r *Repository) InvalidateUnused(ctx context.Context, ownerID primitive.ObjectID, purpose Purpose) error {
	filter := bson.M{"owner_id": ownerID, "purpose": purpose, "used": false}
	if _, err := r.collection.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"used": true}}); err != nil {
		return fmt.Errorf("invalidate unused otps: %w", err)
	}
	return nil
}

// Delete removes a code outright. Used to compensate when the delivery email
// fails after the record was written.
func (r *Repository) Delete(ctx context.Context, id primitive.ObjectID) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}
