package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AlfonsoCifuentes/riskmap-vision/models"
)

const mongoTimeout = 10 * time.Second

// assessmentsCollection is the MongoDB collection assessments land in.
const assessmentsCollection = "assessments"

type MongoClient struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoClient(uri, database string) (*MongoClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %s", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("error pinging MongoDB: %s", err)
	}

	collection := client.Database(database).Collection(assessmentsCollection)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "latitude", Value: 1}, {Key: "longitude", Value: 1}}},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("error creating indexes: %s", err)
	}

	return &MongoClient{client: client, collection: collection}, nil
}

func (m *MongoClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoClient) StoreAssessment(assessment *models.RiskAssessment) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	if _, err := m.collection.InsertOne(ctx, assessment); err != nil {
		return fmt.Errorf("error storing assessment: %s", err)
	}
	return nil
}

func (m *MongoClient) GetAssessmentByID(id string) (*models.RiskAssessment, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	var assessment models.RiskAssessment
	err := m.collection.FindOne(ctx, bson.M{"id": id}).Decode(&assessment)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to retrieve assessment: %s", err)
	}
	return &assessment, true, nil
}

func (m *MongoClient) GetRecentAssessments(limit int) ([]models.RiskAssessment, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := m.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying assessments: %s", err)
	}
	defer cursor.Close(ctx)

	var assessments []models.RiskAssessment
	if err := cursor.All(ctx, &assessments); err != nil {
		return nil, fmt.Errorf("error decoding assessments: %s", err)
	}
	return assessments, nil
}

func (m *MongoClient) GetAssessmentsByLocation(lat, lon, radiusKm float64) ([]models.RiskAssessment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	latDelta := radiusKm / 111.0
	lonDelta := radiusKm / 111.0

	filter := bson.M{
		"latitude":  bson.M{"$gte": lat - latDelta, "$lte": lat + latDelta},
		"longitude": bson.M{"$gte": lon - lonDelta, "$lte": lon + lonDelta},
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying assessments by location: %s", err)
	}
	defer cursor.Close(ctx)

	var assessments []models.RiskAssessment
	if err := cursor.All(ctx, &assessments); err != nil {
		return nil, fmt.Errorf("error decoding assessments: %s", err)
	}
	return assessments, nil
}

func (m *MongoClient) TotalAssessments() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	count, err := m.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("error counting assessments: %s", err)
	}
	return int(count), nil
}
