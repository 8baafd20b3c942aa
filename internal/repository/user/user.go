package user

import (
	"context"
	"time"

	"ephemsg/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type (
	UserRepo struct {
		collection *mongo.Collection
	}
)

func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{
		collection: db.Collection("users"),
	}
}

func (r *UserRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "phone", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	filter := bson.M{
		"phone": phone,
	}

	var user model.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var user model.User
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *UserRepo) Create(ctx context.Context, user *model.User) (primitive.ObjectID, error) {
	res, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		return primitive.NilObjectID, err
	}

	id := res.InsertedID.(primitive.ObjectID)
	user.ID = id
	return id, nil
}

// UpdateKeyBackup replaces the advertised public key and wrapped private
// key. Near-simultaneous uploads are last-write-wins on purpose.
func (r *UserRepo) UpdateKeyBackup(ctx context.Context, phone, pub, blob, iv string) error {
	update := bson.M{
		"$set": bson.M{
			"publicKey":           pub,
			"encryptedPrivateKey": blob,
			"keyIV":               iv,
		},
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"phone": phone}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *UserRepo) UpdateLastSeen(ctx context.Context, userID string, at time.Time) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return err
	}
	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{"lastSeen": at},
	})
	return err
}

func (r *UserRepo) Block(ctx context.Context, userID, blockedID string) error {
	return r.updateBlocked(ctx, userID, bson.M{"$addToSet": bson.M{"blocked": blockedID}})
}

func (r *UserRepo) Unblock(ctx context.Context, userID, blockedID string) error {
	return r.updateBlocked(ctx, userID, bson.M{"$pull": bson.M{"blocked": blockedID}})
}

func (r *UserRepo) updateBlocked(ctx context.Context, userID string, update bson.M) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return err
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
