package treestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// MongoStore backs the tree with a single MongoDB collection: one
// document per root key (_id = root segment), the subtree stored under
// the document's "value" field. Deeper paths map onto dot-notation
// field updates, and Observe rides the collection's change stream.
//
// Like the remote store it emulates, MongoStore offers no cross-path
// atomicity and no compare-and-swap: every multi-step mutation built on
// it is last-write-wins.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to MongoDB and returns a store rooted in the
// "nodes" collection of the named database.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second) // fail fast if MongoDB is unreachable

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify the connection actually works.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection("nodes"),
	}, nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// GetOnce fetches the root document and walks the remaining segments
// locally, so list-index segments behave identically across backends.
func (s *MongoStore) GetOnce(ctx context.Context, path string) (any, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil, fmt.Errorf("treestore: empty path")
	}

	var doc struct {
		Value any `bson:"value"`
	}
	err := s.coll.FindOne(ctx, bson.M{"_id": segs[0]}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("treestore: fetch %q: %w", path, err)
	}

	v, ok := childValue(fromBSON(doc.Value), segs[1:])
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// SetValue overwrites the node at path. Root-level writes replace the
// whole document; deeper writes become an upserted dot-notation $set.
// As with the in-process store, a deep write cannot grow a list: the
// indexed element must already exist.
func (s *MongoStore) SetValue(ctx context.Context, path string, value any) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("treestore: empty path")
	}

	var err error
	if len(segs) == 1 {
		_, err = s.coll.ReplaceOne(ctx,
			bson.M{"_id": segs[0]},
			bson.M{"_id": segs[0], "value": value},
			options.Replace().SetUpsert(true))
	} else {
		field := "value." + strings.Join(segs[1:], ".")
		_, err = s.coll.UpdateOne(ctx,
			bson.M{"_id": segs[0]},
			bson.M{"$set": bson.M{field: value}},
			options.UpdateOne().SetUpsert(true))
	}
	if err != nil {
		return fmt.Errorf("treestore: write %q: %w", path, err)
	}
	return nil
}

// UpdateChildren applies the path→value writes as one ordered bulk
// write. Documents under different root keys are still separate writes;
// there is no multi-document atomicity.
func (s *MongoStore) UpdateChildren(ctx context.Context, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(updates))
	for path, value := range updates {
		segs := splitPath(path)
		if len(segs) == 0 {
			return fmt.Errorf("treestore: empty path")
		}
		if len(segs) == 1 {
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(bson.M{"_id": segs[0]}).
				SetReplacement(bson.M{"_id": segs[0], "value": value}).
				SetUpsert(true))
			continue
		}
		field := "value." + strings.Join(segs[1:], ".")
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": segs[0]}).
			SetUpdate(bson.M{"$set": bson.M{field: value}}).
			SetUpsert(true))
	}

	if _, err := s.coll.BulkWrite(ctx, models); err != nil {
		return fmt.Errorf("treestore: update children: %w", err)
	}
	return nil
}

// Observe watches the root document's change stream, delivering the
// current value at path first and the post-change value after every
// subsequent write to that document.
func (s *MongoStore) Observe(ctx context.Context, path string) (<-chan Snapshot, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil, fmt.Errorf("treestore: empty path")
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: segs[0]}}}},
	}
	cs, err := s.coll.Watch(ctx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("treestore: observe %q: %w", path, err)
	}

	out := make(chan Snapshot)
	go func() {
		defer close(out)
		defer func() { _ = cs.Close(context.Background()) }()

		deliver := func(snap Snapshot) bool {
			select {
			case out <- snap:
				return true
			case <-ctx.Done():
				return false
			}
		}

		// Initial snapshot so observers see current state before the
		// first change arrives.
		v, err := s.GetOnce(ctx, path)
		if !deliver(Snapshot{Value: v, Err: err}) {
			return
		}

		for cs.Next(ctx) {
			var ev struct {
				FullDocument struct {
					Value any `bson:"value"`
				} `bson:"fullDocument"`
			}
			if err := cs.Decode(&ev); err != nil {
				continue
			}
			if ev.FullDocument.Value == nil {
				// Document deleted (or lookup raced a delete).
				if !deliver(Snapshot{Err: ErrNotFound}) {
					return
				}
				continue
			}
			val, ok := childValue(fromBSON(ev.FullDocument.Value), segs[1:])
			if !ok {
				if !deliver(Snapshot{Err: ErrNotFound}) {
					return
				}
				continue
			}
			if !deliver(Snapshot{Value: val}) {
				return
			}
		}
	}()
	return out, nil
}

// fromBSON rewrites the driver's decoded document types into the plain
// map/list trees the rest of the layer navigates.
func fromBSON(v any) any {
	switch node := v.(type) {
	case bson.D:
		out := make(map[string]any, len(node))
		for _, e := range node {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(node))
		for k, child := range node {
			out[k] = fromBSON(child)
		}
		return out
	case bson.A:
		out := make([]any, len(node))
		for i, child := range node {
			out[i] = fromBSON(child)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			out[i] = fromBSON(child)
		}
		return out
	default:
		return v
	}
}
