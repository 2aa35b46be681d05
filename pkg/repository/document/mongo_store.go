package document

import (
	"context"
	"errors"
	"net"

	mongostore "github.com/nimburion/storefront/pkg/store/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoExecutor is the subset of the MongoDB adapter used by MongoStore.
type MongoExecutor interface {
	InsertOne(ctx context.Context, collection string, doc interface{}) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, collection string, filter interface{}, result interface{}) error
	Find(ctx context.Context, collection string, filter interface{}, opts ...*options.FindOptions) ([]bson.M, error)
	UpdateOne(ctx context.Context, collection string, filter, update interface{}) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, collection string, filter interface{}) (*mongo.DeleteResult, error)
	WithTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error
	EnsureIndexes(ctx context.Context, collection string, models []mongo.IndexModel) error
}

var _ MongoExecutor = (*mongostore.Adapter)(nil)

// MongoStore implements Store on MongoDB. Ids are hex object ids stored as
// string _id values; batches commit inside a transaction.
type MongoStore struct {
	exec MongoExecutor
}

// NewMongoStore creates a new MongoStore instance.
func NewMongoStore(exec MongoExecutor) (*MongoStore, error) {
	if exec == nil {
		return nil, errors.New("mongodb executor is required")
	}
	return &MongoStore{exec: exec}, nil
}

// EnsureIndexes creates the keyword and order indexes used by search and
// listing. Safe to call on every start.
func (s *MongoStore) EnsureIndexes(ctx context.Context, orderFields map[Collection][]string) error {
	for _, c := range Collections() {
		var models []mongo.IndexModel
		if c.Searchable() {
			models = append(models, mongo.IndexModel{Keys: bson.D{{Key: "keywords", Value: 1}}})
		}
		for _, field := range orderFields[c] {
			models = append(models, mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}, {Key: "_id", Value: 1}}})
		}
		if err := s.exec.EnsureIndexes(ctx, string(c), models); err != nil {
			return mongoError("mongodb ensure indexes", err)
		}
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, c Collection, fields Fields) (string, error) {
	id := primitive.NewObjectID().Hex()
	doc := bson.M{}
	for k, v := range fields {
		doc[k] = v
	}
	doc["_id"] = id
	if _, err := s.exec.InsertOne(ctx, string(c), doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", Wrap(Conflict, "mongodb create", err)
		}
		return "", mongoError("mongodb create", err)
	}
	return id, nil
}

func (s *MongoStore) Get(ctx context.Context, c Collection, id string) (Record, error) {
	out := bson.M{}
	if err := s.exec.FindOne(ctx, string(c), bson.M{"_id": id}, &out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Record{}, Errorf(NotFound, "mongodb get", "%s/%s not found", c, id)
		}
		return Record{}, mongoError("mongodb get", err)
	}
	return fromBSON(out), nil
}

func (s *MongoStore) Merge(ctx context.Context, c Collection, id string, fields Fields) error {
	if len(fields) == 0 {
		_, err := s.Get(ctx, c, id)
		return err
	}
	res, err := s.exec.UpdateOne(ctx, string(c), bson.M{"_id": id}, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return mongoError("mongodb merge", err)
	}
	if res.MatchedCount == 0 {
		return Errorf(NotFound, "mongodb merge", "%s/%s not found", c, id)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, c Collection, id string) error {
	res, err := s.exec.DeleteOne(ctx, string(c), bson.M{"_id": id})
	if err != nil {
		return mongoError("mongodb delete", err)
	}
	if res.DeletedCount == 0 {
		return Errorf(NotFound, "mongodb delete", "%s/%s not found", c, id)
	}
	return nil
}

func (s *MongoStore) Find(ctx context.Context, c Collection, q Query) ([]Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	filter, opts := mongoQuery(q)
	docs, err := s.exec.Find(ctx, string(c), filter, opts)
	if err != nil {
		return nil, mongoError("mongodb find", err)
	}
	out := make([]Record, len(docs))
	for i, doc := range docs {
		out[i] = fromBSON(doc)
	}
	if q.LimitToLast {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// mongoQuery translates q into a filter and find options. Limit-to-last
// queries are issued in descending order; the caller reverses the result.
func mongoQuery(q Query) (bson.M, *options.FindOptions) {
	var clauses []bson.M
	for _, cond := range q.Where {
		// array-contains and equality share a filter shape: MongoDB matches
		// array fields element-wise.
		clauses = append(clauses, bson.M{cond.Field: cond.Value})
	}

	opts := options.Find()
	if q.OrderBy == "" {
		opts.SetSort(bson.D{{Key: "_id", Value: 1}})
	} else {
		clauses = append(clauses, bson.M{q.OrderBy: bson.M{"$exists": true}})
		if q.StartAt != nil {
			clauses = append(clauses, bson.M{"$or": bson.A{
				bson.M{q.OrderBy: bson.M{"$gt": q.StartAt.Value}},
				bson.M{q.OrderBy: q.StartAt.Value, "_id": bson.M{"$gte": q.StartAt.ID}},
			}})
		}
		if q.EndAt != nil {
			clauses = append(clauses, bson.M{"$or": bson.A{
				bson.M{q.OrderBy: bson.M{"$lt": q.EndAt.Value}},
				bson.M{q.OrderBy: q.EndAt.Value, "_id": bson.M{"$lte": q.EndAt.ID}},
			}})
		}
		dir := 1
		if q.LimitToLast {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	filter := bson.M{}
	switch len(clauses) {
	case 0:
	case 1:
		filter = clauses[0]
	default:
		and := make(bson.A, len(clauses))
		for i, c := range clauses {
			and[i] = c
		}
		filter = bson.M{"$and": and}
	}
	return filter, opts
}

func (s *MongoStore) Commit(ctx context.Context, b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	err := s.exec.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		for _, u := range b.Updates() {
			res, err := s.exec.UpdateOne(sessCtx, string(u.Collection), bson.M{"_id": u.ID}, bson.M{"$set": bson.M(u.Fields)})
			if err != nil {
				return err
			}
			if res.MatchedCount == 0 {
				return Errorf(NotFound, "mongodb commit", "%s/%s not found", u.Collection, u.ID)
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}
	var docErr *Error
	if errors.As(err, &docErr) {
		return docErr
	}
	return mongoError("mongodb commit", err)
}

func fromBSON(doc bson.M) Record {
	id, _ := doc["_id"].(string)
	fields := make(Fields, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		fields[k] = normalizeBSON(v)
	}
	return Record{ID: id, Fields: fields}
}

// normalizeBSON converts driver types into the plain Go values used by Fields.
func normalizeBSON(v any) any {
	switch t := v.(type) {
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeBSON(e)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeBSON(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalizeBSON(e.Value)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	case int32:
		return int64(t)
	default:
		return v
	}
}

func mongoError(op string, err error) error {
	if isUnavailable(err) || mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return Wrap(BackendUnavailable, op, err)
	}
	return Wrap(Internal, op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
