package message

import (
	"context"
	"time"

	"ephemsg/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TTL is the hard message lifetime. Expiry is enforced by the store's TTL
// index, not by application polling; reads additionally filter on the same
// cutoff so an about-to-be-swept message is never served inconsistently.
const TTL = 24 * time.Hour

type (
	MessageRepo struct {
		collection *mongo.Collection
	}
)

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{
		collection: db.Collection("messages"),
	}
}

func (r *MessageRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "createdAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(TTL / time.Second)),
		},
		{
			Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "createdAt", Value: 1}},
		},
	})
	return err
}

// Expired reports whether a message created at createdAt is past its TTL
// at now.
func Expired(createdAt, now time.Time) bool {
	return !createdAt.Add(TTL).After(now)
}

// Insert persists a new message with status=sent. The store assigns the
// creation timestamp; it is the history-ordering tiebreak within a chat.
func (r *MessageRepo) Insert(ctx context.Context, msg *model.Message) error {
	msg.ID = primitive.NewObjectID()
	msg.Status = model.StatusSent
	msg.Read = false
	msg.CreatedAt = time.Now().UTC()

	_, err := r.collection.InsertOne(ctx, msg)
	return err
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*model.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var msg model.Message
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&msg)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &msg, nil
}

// UpdateStatus advances a message to status and returns the updated
// document. Transitions are one-way: a message already at or past the
// requested status is left untouched and (nil, nil) is returned.
func (r *MessageRepo) UpdateStatus(ctx context.Context, id, status string) (*model.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var allowedFrom []string
	set := bson.M{"status": status}
	switch status {
	case model.StatusDelivered:
		allowedFrom = []string{model.StatusSent}
	case model.StatusRead:
		allowedFrom = []string{model.StatusSent, model.StatusDelivered}
		set["read"] = true
	default:
		return nil, mongo.ErrNoDocuments
	}

	filter := bson.M{
		"_id":    oid,
		"status": bson.M{"$in": allowedFrom},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var msg model.Message
	err = r.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&msg)
	if err == mongo.ErrNoDocuments {
		// already at or past the requested status
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &msg, nil
}

// MarkChatRead bulk-reads every message in chatID that readerID received,
// returning the number of messages updated.
func (r *MessageRepo) MarkChatRead(ctx context.Context, chatID, readerID string) (int64, error) {
	filter := bson.M{
		"chatId":   chatID,
		"senderId": bson.M{"$ne": readerID},
		"status":   bson.M{"$ne": model.StatusRead},
	}
	update := bson.M{
		"$set": bson.M{"status": model.StatusRead, "read": true},
	}
	res, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// SetReaction replaces userID's reaction on a message (at most one per
// user) and returns the updated document.
func (r *MessageRepo) SetReaction(ctx context.Context, messageID, userID, emoji string) (*model.Message, error) {
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return nil, err
	}

	// drop any prior reaction from this user, then append the new one
	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$pull": bson.M{"reactions": bson.M{"userId": userID}},
	})
	if err != nil {
		return nil, err
	}

	update := bson.M{
		"$push": bson.M{"reactions": model.Reaction{UserID: userID, Emoji: emoji}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var msg model.Message
	err = r.collection.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&msg)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &msg, nil
}

// History returns a chat's unexpired messages in creation order.
func (r *MessageRepo) History(ctx context.Context, chatID string, limit int64) ([]model.Message, error) {
	filter := bson.M{
		"chatId":    chatID,
		"createdAt": bson.M{"$gt": time.Now().UTC().Add(-TTL)},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var msgs []model.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
