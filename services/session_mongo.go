package services

import (
	"context"
	"time"

	"book-chatbot-backend/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSessionStore persists sessions in a Mongo collection. A whole
// conversation lives in one document; $push with $each appends a user and
// assistant turn in a single atomic update, which is what keeps concurrent
// conversations from interleaving.
type MongoSessionStore struct {
	collection *mongo.Collection
}

func NewMongoSessionStore(db *mongo.Database) *MongoSessionStore {
	return &MongoSessionStore{collection: db.Collection("sessions")}
}

func (s *MongoSessionStore) Create(ctx context.Context) (string, error) {
	now := time.Now().UTC()
	session := models.ChatSession{
		SessionID: uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		History:   []models.ConversationTurn{},
	}
	if _, err := s.collection.InsertOne(ctx, session); err != nil {
		return "", err
	}
	return session.SessionID, nil
}

func (s *MongoSessionStore) Append(ctx context.Context, sessionID string, turns ...models.ConversationTurn) (int, error) {
	var session models.ChatSession
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": sessionID},
		bson.M{
			"$push": bson.M{"history": bson.M{"$each": turns}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, ErrSessionNotFound
		}
		return 0, err
	}
	return session.UserTurns(), nil
}

func (s *MongoSessionStore) Read(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.collection.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *MongoSessionStore) Clear(ctx context.Context, sessionID string) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{
			"$set": bson.M{
				"history":    []models.ConversationTurn{},
				"updated_at": time.Now().UTC(),
			},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}
