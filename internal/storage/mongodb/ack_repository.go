package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/storage"
)

// AckRepository implements storage.AckRepository using MongoDB
type AckRepository struct {
	client     *mongo.Client
	database   string
	collection string
}

// NewAckRepository creates a new MongoDB-backed ack repository and
// ensures its indexes exist
func NewAckRepository(mongoURI, database, collection string) (*AckRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(mongoURI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	r := &AckRepository{
		client:     client,
		database:   database,
		collection: collection,
	}

	if err := r.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return r, nil
}

func (r *AckRepository) coll() *mongo.Collection {
	return r.client.Database(r.database).Collection(r.collection)
}

func (r *AckRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.coll().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "guid", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "queue_uri", Value: 1}, {Key: "acked_at", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create ack indexes: %w", err)
	}
	return nil
}

// Store stores or replaces an ack record
func (r *AckRepository) Store(record *domain.AckRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.coll().UpdateOne(
		context.Background(),
		bson.M{"guid": record.GUID},
		bson.M{"$set": record},
		opts,
	)
	if err != nil {
		return fmt.Errorf("failed to store ack record: %w", err)
	}

	return nil
}

// BulkStore stores multiple ack records using MongoDB bulk write
func (r *AckRepository) BulkStore(records []*domain.AckRecord) error {
	models := make([]mongo.WriteModel, 0, len(records))
	for _, record := range records {
		if record.Validate() != nil {
			continue
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"guid": record.GUID}).
			SetUpdate(bson.M{"$set": record}).
			SetUpsert(true))
	}
	if len(models) == 0 {
		return nil
	}

	// Use ordered=false for better performance
	opts := options.BulkWrite().SetOrdered(false)
	if _, err := r.coll().BulkWrite(context.Background(), models, opts); err != nil {
		return fmt.Errorf("failed to bulk write ack records: %w", err)
	}

	return nil
}

// GetByGUID retrieves the record of one message
func (r *AckRepository) GetByGUID(guid string) (*domain.AckRecord, error) {
	if guid == "" {
		return nil, domain.ErrInvalidAckRecord
	}

	var record domain.AckRecord
	err := r.coll().FindOne(context.Background(), bson.M{"guid": guid}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ack record: %w", err)
	}

	return &record, nil
}

// ListByQueue retrieves the records of a queue, ordered by ack time
func (r *AckRepository) ListByQueue(queueURI string, filter storage.AckFilter) ([]*domain.AckRecord, error) {
	if queueURI == "" {
		return nil, domain.ErrInvalidAckRecord
	}

	cursor, err := r.coll().Find(context.Background(), buildQueueFilter(queueURI, filter), buildFindOptions(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to query ack records: %w", err)
	}
	defer cursor.Close(context.Background())

	var results []domain.AckRecord
	if err := cursor.All(context.Background(), &results); err != nil {
		return nil, fmt.Errorf("failed to decode ack records: %w", err)
	}

	// Convert to pointers
	pointers := make([]*domain.AckRecord, len(results))
	for i := range results {
		pointers[i] = &results[i]
	}

	return pointers, nil
}

// Count returns the total number of ack records
func (r *AckRepository) Count() int64 {
	count, err := r.coll().CountDocuments(context.Background(), bson.M{})
	if err != nil {
		return 0
	}
	return count
}

// Close closes the MongoDB connection
func (r *AckRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func buildQueueFilter(queueURI string, filter storage.AckFilter) bson.M {
	query := bson.M{"queue_uri": queueURI}

	if filter.FailedOnly {
		query["status"] = bson.M{"$ne": domain.AckSuccess}
	}

	if filter.StartTime != nil || filter.EndTime != nil {
		timeFilter := bson.M{}
		if filter.StartTime != nil {
			timeFilter["$gte"] = *filter.StartTime
		}
		if filter.EndTime != nil {
			timeFilter["$lte"] = *filter.EndTime
		}
		query["acked_at"] = timeFilter
	}

	return query
}

func buildFindOptions(filter storage.AckFilter) *options.FindOptions {
	// Sort by ack time ascending
	opts := options.Find().SetSort(bson.D{{Key: "acked_at", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return opts
}

var _ storage.AckRepository = (*AckRepository)(nil)
