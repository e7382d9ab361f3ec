package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoTimeout      = 5 * time.Second
	mongoCounterTable = "counters"
)

// mongoRecord is one document of an entity collection. The collection
// itself is the index: a document exists exactly while its key is live.
type mongoRecord struct {
	Key     string `bson:"_id"`
	Seq     int64  `bson:"seq"`
	Version int64  `bson:"version"`
	Data    []byte `bson:"data"`
}

type mongoCounter struct {
	Name string `bson:"_id"`
	Seq  int64  `bson:"seq"`
}

// MongoBackend keeps each entity in its own MongoDB collection and hands
// out insertion sequence numbers and versions from a shared counters
// collection.
type MongoBackend struct {
	db *mongo.Database
}

var _ Backend = (*MongoBackend)(nil)

func NewMongoBackend(db *mongo.Database) *MongoBackend {
	return &MongoBackend{db: db}
}

func (b *MongoBackend) col(c Collection) *mongo.Collection {
	return b.db.Collection(c.Entity)
}

func (b *MongoBackend) Exists(ctx context.Context, c Collection, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	n, err := b.col(c).CountDocuments(ctx, bson.M{"_id": key}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *MongoBackend) Get(ctx context.Context, c Collection, key string) (Versioned, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	var rec mongoRecord
	if err := b.col(c).FindOne(ctx, bson.M{"_id": key}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Versioned{}, ErrNotFound
		}
		return Versioned{}, err
	}
	return Versioned{Data: rec.Data, Version: rec.Version}, nil
}

func (b *MongoBackend) nextSeq(ctx context.Context, c Collection) (int64, error) {
	var counter mongoCounter
	err := b.db.Collection(mongoCounterTable).FindOneAndUpdate(ctx,
		bson.M{"_id": c.Index},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

func (b *MongoBackend) Insert(ctx context.Context, c Collection, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	seq, err := b.nextSeq(ctx, c)
	if err != nil {
		return err
	}

	_, err = b.col(c).InsertOne(ctx, mongoRecord{Key: key, Seq: seq, Version: seq, Data: data})
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	return err
}

func (b *MongoBackend) CompareAndSwap(ctx context.Context, c Collection, key string, version int64, data []byte) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	next, err := b.nextSeq(ctx, c)
	if err != nil {
		return false, err
	}

	res, err := b.col(c).UpdateOne(ctx,
		bson.M{"_id": key, "version": version},
		bson.M{"$set": bson.M{"data": data, "version": next}},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	// No match: either someone else bumped the version or the record is gone.
	ok, err := b.Exists(ctx, c, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNotFound
	}
	return false, nil
}

func (b *MongoBackend) Delete(ctx context.Context, c Collection, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	res, err := b.col(c).DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (b *MongoBackend) List(ctx context.Context, c Collection) ([][]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	cur, err := b.col(c).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out [][]byte
	for cur.Next(ctx) {
		var rec mongoRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		out = append(out, rec.Data)
	}
	return out, cur.Err()
}

func (b *MongoBackend) Count(ctx context.Context, c Collection) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	return b.col(c).CountDocuments(ctx, bson.M{})
}
