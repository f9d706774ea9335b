package election

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CampusVote/internal/auth"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository handles DB operations for election-related collections: users
// (voters/candidates), votes, and the settings singleton.
type Repository struct {
	usersCollection    *mongo.Collection
	votesCollection    *mongo.Collection
	settingsCollection *mongo.Collection
}

func NewRepository(db *mongo.Database) *Repository {
	return &Repository{
		usersCollection:    db.Collection("users"),
		votesCollection:    db.Collection("votes"),
		settingsCollection: db.Collection("election_settings"),
	}
}

// Settings returns the singleton, creating it lazily with defaults the first
// time it is asked for.
func (r *Repository) Settings(ctx context.Context) (*Settings, error) {
	update := bson.M{"$setOnInsert": bson.M{
		"title":      "Student Council Election",
		"start_date": time.Time{},
		"end_date":   time.Time{},
		"is_active":  false,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var settings Settings
	if err := r.settingsCollection.FindOneAndUpdate(ctx, bson.M{}, update, opts).Decode(&settings); err != nil {
		return nil, fmt.Errorf("load election settings: %w", err)
	}
	return &settings, nil
}

func (r *Repository) UpdateSettings(ctx context.Context, settings *Settings) error {
	update := bson.M{"$set": bson.M{
		"title":      settings.Title,
		"start_date": settings.StartDate,
		"end_date":   settings.EndDate,
		"is_active":  settings.IsActive,
	}}
	opts := options.Update().SetUpsert(true)
	if _, err := r.settingsCollection.UpdateOne(ctx, bson.M{}, update, opts); err != nil {
		return fmt.Errorf("update election settings: %w", err)
	}
	return nil
}

func (r *Repository) FindUser(ctx context.Context, id primitive.ObjectID) (*auth.User, error) {
	var user auth.User
	err := r.usersCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// EligibleCandidates lists approved (or legacy unset) candidates sorted by
// _id ascending. ObjectIDs embed the creation time, so this is registration
// order and gives the ranking a deterministic tie-break.
func (r *Repository) EligibleCandidates(ctx context.Context) ([]*auth.User, error) {
	filter := bson.M{
		"role": auth.RoleCandidate,
		"$or": []bson.M{
			{"approval_status": auth.ApprovalApproved},
			{"approval_status": bson.M{"$exists": false}},
			{"approval_status": ""},
		},
	}
	opts := options.Find().SetSort(bson.M{"_id": 1})
	cursor, err := r.usersCollection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	var candidates []*auth.User
	if err := cursor.All(ctx, &candidates); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	return candidates, nil
}

// InsertVote writes the ballot. The unique index on voter_id decides the race
// between concurrent casts; a duplicate-key rejection surfaces as
// ErrAlreadyVoted and nothing else is mutated.
func (r *Repository) InsertVote(ctx context.Context, vote *Vote) error {
	if vote.ID.IsZero() {
		vote.ID = primitive.NewObjectID()
	}
	if _, err := r.votesCollection.InsertOne(ctx, vote); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyVoted
		}
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

func (r *Repository) ListVotes(ctx context.Context) ([]*Vote, error) {
	opts := options.Find().SetSort(bson.M{"created_at": 1})
	cursor, err := r.votesCollection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	var votes []*Vote
	if err := cursor.All(ctx, &votes); err != nil {
		return nil, fmt.Errorf("decode votes: %w", err)
	}
	return votes, nil
}

// IncrementVoteCount bumps the candidate tally with an atomic $inc, never a
// read-modify-write.
func (r *Repository) IncrementVoteCount(ctx context.Context, candidateID primitive.ObjectID) error {
	_, err := r.usersCollection.UpdateOne(ctx,
		bson.M{"_id": candidateID},
		bson.M{"$inc": bson.M{"vote_count": 1}})
	if err != nil {
		return fmt.Errorf("increment vote count: %w", err)
	}
	return nil
}

// MarkVoted sets has_voted and the receipt. The has_voted guard keeps the
// receipt write-once even if the reconciliation retry runs twice.
func (r *Repository) MarkVoted(ctx context.Context, voterID primitive.ObjectID, receipt string) error {
	_, err := r.usersCollection.UpdateOne(ctx,
		bson.M{"_id": voterID, "has_voted": false},
		bson.M{"$set": bson.M{"has_voted": true, "vote_receipt": receipt}})
	if err != nil {
		return fmt.Errorf("mark voted: %w", err)
	}
	return nil
}

// SetAssignedPosition writes (or clears, with empty position) a candidate's
// assigned position.
func (r *Repository) SetAssignedPosition(ctx context.Context, candidateID primitive.ObjectID, position string) error {
	var update bson.M
	if position == "" {
		update = bson.M{"$unset": bson.M{"assigned_position": ""}}
	} else {
		update = bson.M{"$set": bson.M{"assigned_position": position}}
	}
	if _, err := r.usersCollection.UpdateOne(ctx, bson.M{"_id": candidateID}, update); err != nil {
		return fmt.Errorf("set assigned position: %w", err)
	}
	return nil
}

func (r *Repository) SetApproval(ctx context.Context, candidateID primitive.ObjectID, status auth.ApprovalStatus) error {
	res, err := r.usersCollection.UpdateOne(ctx,
		bson.M{"_id": candidateID, "role": auth.RoleCandidate},
		bson.M{"$set": bson.M{"approval_status": status}})
	if err != nil {
		return fmt.Errorf("set approval: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// VotersWithEmail lists voter addresses for election announcements.
func (r *Repository) VotersWithEmail(ctx context.Context) ([]string, error) {
	filter := bson.M{"email": bson.M{"$ne": ""}}
	cursor, err := r.usersCollection.Find(ctx, filter,
		options.Find().SetProjection(bson.M{"email": 1}))
	if err != nil {
		return nil, fmt.Errorf("list voter emails: %w", err)
	}
	var users []*auth.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode voter emails: %w", err)
	}
	emails := make([]string, 0, len(users))
	for _, u := range users {
		emails = append(emails, u.Email)
	}
	return emails, nil
}
