package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoStore implements Store on MongoDB. Batches run in a multi-document transaction and
// subscriptions use change streams, so the deployment must be a replica set.
type MongoStore struct {
	db     *mongo.Database
	now    func() time.Time
	logger *zap.Logger
}

// NewMongoStore creates a MongoStore over db.
func NewMongoStore(db *mongo.Database, logger *zap.Logger) *MongoStore {
	return &MongoStore{db: db, now: time.Now, logger: logger}
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		return Document{}, mongoError("get "+collection+"/"+id, err)
	}
	return fromBSON(raw), nil
}

func (s *MongoStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	findOptions := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		findOptions.SetSort(bson.D{{Key: q.OrderBy, Value: dir}})
	}
	cursor, err := s.db.Collection(collection).Find(ctx, mongoFilter(q), findOptions)
	if err != nil {
		return nil, mongoError("query "+collection, err)
	}
	defer cursor.Close(ctx)

	var raws []bson.M
	if err = cursor.All(ctx, &raws); err != nil {
		return nil, mongoError("query "+collection, err)
	}
	docs := make([]Document, 0, len(raws))
	for _, raw := range raws {
		docs = append(docs, fromBSON(raw))
	}
	return docs, nil
}

func (s *MongoStore) Create(ctx context.Context, collection, id string, fields Fields) (string, error) {
	if id == "" {
		id = primitive.NewObjectID().Hex()
	}
	if err := s.apply(ctx, Op{Kind: OpCreate, Collection: collection, ID: id, Fields: fields}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	return s.apply(ctx, Op{Kind: OpUpdate, Collection: collection, ID: id, Fields: fields})
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	return s.apply(ctx, Op{Kind: OpDelete, Collection: collection, ID: id})
}

func (s *MongoStore) apply(ctx context.Context, op Op) error {
	coll := s.db.Collection(op.Collection)
	name := op.Collection + "/" + op.ID
	switch op.Kind {
	case OpCreate:
		doc := s.resolve(op.Fields)
		doc["_id"] = op.ID
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			return mongoError("create "+name, err)
		}
	case OpUpdate:
		res, err := coll.UpdateOne(ctx, bson.M{"_id": op.ID}, bson.M{"$set": s.resolve(op.Fields)})
		if err != nil {
			return mongoError("update "+name, err)
		}
		if res.MatchedCount == 0 {
			return apperrors.Wrap(apperrors.ErrNotFound, "%s", name)
		}
	case OpDelete:
		res, err := coll.DeleteOne(ctx, bson.M{"_id": op.ID})
		if err != nil {
			return mongoError("delete "+name, err)
		}
		if res.DeletedCount == 0 {
			return apperrors.Wrap(apperrors.ErrNotFound, "%s", name)
		}
	}
	return nil
}

func (s *MongoStore) Batch(ctx context.Context, ops []Op) error {
	session, err := s.db.Client().StartSession()
	if err != nil {
		return mongoError("start session", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, op := range ops {
			if err := s.apply(sc, op); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return mongoError("batch", err)
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	FullDocument  bson.M `bson:"fullDocument"`
	DocumentKey   bson.M `bson:"documentKey"`
}

// Subscribe opens a change stream before reading the initial result set so no write falls
// between the two. Deletes carry no document body, so the last seen body of every matching
// document is kept to report removals.
func (s *MongoStore) Subscribe(ctx context.Context, collection string, q Query, fn func(Snapshot)) (Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	coll := s.db.Collection(collection)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"operationType": bson.M{"$in": bson.A{"insert", "update", "replace", "delete"}}}}},
	}
	stream, err := coll.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, mongoError("watch "+collection, err)
	}

	initial, err := s.Query(ctx, collection, q)
	if err != nil {
		cancel()
		stream.Close(context.Background())
		return nil, err
	}

	go func() {
		defer stream.Close(context.Background())

		known := make(map[string]Document, len(initial))
		changes := make([]Change, 0, len(initial))
		for _, doc := range initial {
			known[doc.ID] = doc
			changes = append(changes, Change{Kind: Added, Document: doc})
		}
		fn(Snapshot{Initial: true, Changes: changes})

		for stream.Next(ctx) {
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				s.logger.Warn("undecodable change event", zap.String("collection", collection), zap.Error(err))
				continue
			}
			id := fmt.Sprint(ev.DocumentKey["_id"])
			prev, wasIn := known[id]

			var change *Change
			if ev.OperationType == "delete" || ev.FullDocument == nil {
				if wasIn {
					delete(known, id)
					change = &Change{Kind: Removed, Document: prev}
				}
			} else {
				doc := fromBSON(ev.FullDocument)
				isIn := Matches(doc.Fields, q)
				switch {
				case isIn && wasIn:
					known[id] = doc
					change = &Change{Kind: Modified, Document: doc}
				case isIn:
					known[id] = doc
					change = &Change{Kind: Added, Document: doc}
				case wasIn:
					delete(known, id)
					change = &Change{Kind: Removed, Document: prev}
				}
			}
			if change != nil {
				fn(Snapshot{Changes: []Change{*change}})
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			s.logger.Error("mongo change stream stopped", zap.String("collection", collection), zap.Error(err))
		}
	}()

	var once sync.Once
	return SubscriptionFunc(func() { once.Do(cancel) }), nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.db.Client().Disconnect(ctx)
}

func (s *MongoStore) resolve(fields Fields) bson.M {
	out := make(bson.M, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = s.now().UTC()
			continue
		}
		out[k] = v
	}
	return out
}

func mongoFilter(q Query) bson.M {
	if len(q.Filters) == 0 {
		return bson.M{}
	}
	clauses := make(bson.A, 0, len(q.Filters))
	for _, f := range q.Filters {
		// Equality against an array field already matches any element.
		clauses = append(clauses, bson.M{f.Field: f.Value})
	}
	return bson.M{"$and": clauses}
}

func fromBSON(raw bson.M) Document {
	doc := Document{ID: fmt.Sprint(raw["_id"]), Fields: make(Fields, len(raw))}
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		doc.Fields[k] = normalizeBSON(v)
	}
	return doc
}

func normalizeBSON(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeBSON(item)
		}
		return out
	case int32:
		return int64(t)
	default:
		return v
	}
}

func mongoError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isKind(err) {
		return err
	}
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return apperrors.Wrap(apperrors.ErrNotFound, "%s", op)
	case mongo.IsDuplicateKeyError(err):
		return apperrors.Wrap(apperrors.ErrAlreadyExists, "%s", op)
	default:
		return apperrors.Unavailable(op, err)
	}
}
