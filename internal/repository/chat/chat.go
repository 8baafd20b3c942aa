package chat

import (
	"context"
	"fmt"
	"time"

	"ephemsg/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type (
	ChatRepo struct {
		collection *mongo.Collection
	}
)

func NewChatRepo(db *mongo.Database) *ChatRepo {
	return &ChatRepo{
		collection: db.Collection("chats"),
	}
}

// CanonicalPair returns the two user ids as a sorted pair, the storage
// form that guarantees at most one chat per unordered pair.
func CanonicalPair(a, b string) []string {
	if b < a {
		a, b = b, a
	}
	return []string{a, b}
}

func (r *ChatRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "participants", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "updatedAt", Value: -1}},
		},
	})
	return err
}

// Ensure returns the chat for the unordered pair (a, b), creating it on
// first contact.
func (r *ChatRepo) Ensure(ctx context.Context, a, b string) (*model.Chat, error) {
	pair := CanonicalPair(a, b)

	update := bson.M{
		"$setOnInsert": bson.M{
			"participants": pair,
			"unread":       map[string]int{a: 0, b: 0},
			"updatedAt":    time.Now().UTC(),
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var chat model.Chat
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"participants": pair}, update, opts).Decode(&chat)
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *ChatRepo) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var chat model.Chat
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&chat)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &chat, nil
}

// RecordMessage overwrites the chat summary and bumps the recipient's
// unread counter in one update, regardless of the recipient being online.
func (r *ChatRepo) RecordMessage(ctx context.Context, chatID string, last model.LastMessage, recipientID string) error {
	oid, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		return err
	}

	update := bson.M{
		"$set": bson.M{
			"lastMessage": last,
			"updatedAt":   last.SentAt,
		},
		"$inc": bson.M{
			fmt.Sprintf("unread.%s", recipientID): 1,
		},
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// ResetUnread zeroes userID's counter; called when the user opens the chat.
func (r *ChatRepo) ResetUnread(ctx context.Context, chatID, userID string) error {
	oid, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		return err
	}
	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{fmt.Sprintf("unread.%s", userID): 0},
	})
	return err
}

// ListForUser returns the user's conversation list, most recently updated
// first, with chats against blocked counterparts removed.
func (r *ChatRepo) ListForUser(ctx context.Context, userID string, blocked []string) ([]model.ChatEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cur, err := r.collection.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var chats []model.Chat
	if err := cur.All(ctx, &chats); err != nil {
		return nil, err
	}

	return BuildEntries(chats, userID, blocked), nil
}

// BuildEntries shapes raw chats into the UI-facing list: one entry per
// counterpart, blocked counterparts excluded, input order preserved.
func BuildEntries(chats []model.Chat, userID string, blocked []string) []model.ChatEntry {
	blockSet := make(map[string]struct{}, len(blocked))
	for _, b := range blocked {
		blockSet[b] = struct{}{}
	}

	seen := make(map[string]struct{}, len(chats))
	entries := make([]model.ChatEntry, 0, len(chats))
	for _, c := range chats {
		other := c.Counterpart(userID)
		if other == "" {
			continue
		}
		if _, dup := seen[other]; dup {
			continue
		}
		if _, isBlocked := blockSet[other]; isBlocked {
			continue
		}
		seen[other] = struct{}{}
		entries = append(entries, model.ChatEntry{
			Chat:        c,
			Counterpart: other,
			Unread:      c.Unread[userID],
		})
	}
	return entries
}
