package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	if err := createIndexes(client, cfg.DBName); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	// Sessions collection indexes
	sessionsCollection := db.Collection("sessions")
	sessionIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "updated_at", Value: -1}},
		},
	}
	_, err := sessionsCollection.Indexes().CreateMany(context.Background(), sessionIndexes)
	if err != nil {
		return err
	}

	// Ingestion jobs collection indexes
	jobsCollection := db.Collection("ingestion_jobs")
	jobIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "source", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}
	_, err = jobsCollection.Indexes().CreateMany(context.Background(), jobIndexes)
	if err != nil {
		return err
	}

	return nil
}
