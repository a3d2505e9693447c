// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Initial reference and motivation taken from the teacher's db/mongo.go
// mongoCollection type, migrated onto the v2 driver and extended with
// Tail (tailable + await-data cursor) and GridFSOpen.

package source

import (
	"context"
	"io"
	"log"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/gridfs"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/go-core-stack/mongoriver/errors"
)

type mongoCollection struct {
	parent  *mongoDatabase
	colName string
	col     *mongo.Collection
	keyType reflect.Type
}

func (c *mongoCollection) SetKeyType(keyType reflect.Type) error {
	if keyType.Kind() != reflect.Ptr {
		return errors.Wrap(errors.InvalidArgument, "key type is not a pointer")
	}
	c.keyType = keyType
	return nil
}

func (c *mongoCollection) InsertOne(ctx context.Context, key interface{}, data interface{}) error {
	if data == nil {
		return errors.Wrap(errors.InvalidArgument, "insert error: no data to store")
	}
	if key == nil {
		return errors.Wrap(errors.InvalidArgument, "insert error: no key specified to store")
	}

	marshaledData, err := bson.Marshal(data)
	if err != nil {
		return err
	}

	bd := bson.D{}
	if err := bson.Unmarshal(marshaledData, &bd); err != nil {
		return err
	}

	bd = append(bd, bson.E{Key: "_id", Value: key})

	if _, err := c.col.InsertOne(ctx, bd); err != nil {
		return err
	}
	return nil
}

func (c *mongoCollection) UpdateOne(ctx context.Context, key interface{}, data interface{}, upsert bool) error {
	if data == nil {
		return errors.Wrap(errors.InvalidArgument, "update error: no data to store")
	}
	if key == nil {
		return errors.Wrap(errors.InvalidArgument, "update error: no key specified to store")
	}

	opts := options.UpdateOne().SetUpsert(upsert)
	resp, err := c.col.UpdateOne(
		ctx,
		bson.M{"_id": key},
		bson.D{{Key: "$set", Value: data}},
		opts)
	if err != nil {
		return err
	}

	if resp.MatchedCount == 0 && resp.UpsertedCount == 0 {
		return errors.Wrap(errors.NotFound, "no document found")
	}

	return nil
}

func (c *mongoCollection) FindOne(ctx context.Context, key interface{}, data interface{}) error {
	resp := c.col.FindOne(ctx, bson.M{"_id": key})
	if err := resp.Decode(data); err != nil {
		if err == mongo.ErrNoDocuments {
			return errors.Wrap(errors.NotFound, "no document found")
		}
		return err
	}
	return nil
}

func (c *mongoCollection) FindMany(ctx context.Context, filter interface{}, data interface{}) error {
	cursor, err := c.col.Find(ctx, filter)
	if err != nil {
		return err
	}
	return cursor.All(ctx, data)
}

func (c *mongoCollection) FindManyPage(ctx context.Context, filter interface{}, data interface{}, skip, limit int64) error {
	opts := options.Find().SetSkip(skip).SetLimit(limit)
	cursor, err := c.col.Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	return cursor.All(ctx, data)
}

func (c *mongoCollection) Count(ctx context.Context, filter interface{}) (int64, error) {
	return c.col.CountDocuments(ctx, filter)
}

func (c *mongoCollection) DeleteOne(ctx context.Context, key interface{}) error {
	resp, err := c.col.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return err
	}
	if resp.DeletedCount == 0 {
		return errors.Wrap(errors.NotFound, "no document found")
	}
	return nil
}

func (c *mongoCollection) DeleteMany(ctx context.Context, filter interface{}) (int64, error) {
	resp, err := c.col.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	if resp.DeletedCount == 0 {
		return 0, errors.Wrap(errors.NotFound, "no matching entries found to delete")
	}
	return resp.DeletedCount, nil
}

// Watch observes changes to this collection via a mongo change stream,
// used by the topology cache to invalidate its shard list
func (c *mongoCollection) Watch(ctx context.Context, filter interface{}, cb WatchCallbackfn) error {
	pipeline := mongo.Pipeline{}
	if filter != nil {
		pipeline = mongo.Pipeline{{{Key: "$match", Value: filter}}}
	}
	stream, err := c.col.Watch(ctx, pipeline)
	if err != nil {
		return err
	}

	go func() {
		keyType := c.keyType
		defer stream.Close(context.Background())
		defer func() {
			if ctx.Err() != context.Canceled {
				log.Printf("watch on %s ended: %s", c.colName, stream.Err())
			}
		}()
		for stream.Next(ctx) {
			var data bson.M
			if err := stream.Decode(&data); err != nil {
				log.Printf("closing watch on %s due to decode error: %s", c.colName, err)
				return
			}

			op, ok := data["operationType"].(string)
			if !ok {
				log.Printf("closing watch on %s, unable to decode operation type", c.colName)
				return
			}

			dk, ok := data["documentKey"].(bson.M)
			if !ok {
				log.Printf("closing watch on %s, unable to decode document key", c.colName)
				return
			}

			var key interface{}
			if keyType != nil {
				key = reflect.New(keyType.Elem()).Interface()
			} else {
				key = bson.D{}
			}

			marshaled, err := bson.Marshal(dk)
			if err != nil {
				log.Printf("closing watch on %s, bson marshal error: %s", c.colName, err)
				return
			}
			if err := bson.Unmarshal(marshaled, key); err != nil {
				log.Printf("closing watch on %s, bson unmarshal error: %s", c.colName, err)
				return
			}
			cb(op, key)
		}
	}()

	return nil
}

// mongoCursor adapts *mongo.Cursor to the Cursor interface
type mongoCursor struct {
	cursor *mongo.Cursor
}

func (c *mongoCursor) Next(ctx context.Context) bool    { return c.cursor.Next(ctx) }
func (c *mongoCursor) Decode(v interface{}) error       { return c.cursor.Decode(v) }
func (c *mongoCursor) Err() error                       { return c.cursor.Err() }
func (c *mongoCursor) Close(ctx context.Context) error  { return c.cursor.Close(ctx) }

// Tail opens a tailable + await-data cursor over this collection, used
// exclusively against local.oplog.rs. No explicit sort is applied: a
// tailable cursor is implicitly natural-order.
func (c *mongoCollection) Tail(ctx context.Context, filter interface{}) (Cursor, error) {
	opts := options.Find().
		SetCursorType(options.TailableAwait).
		SetNoCursorTimeout(true)
	cursor, err := c.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return &mongoCursor{cursor: cursor}, nil
}

// LastTimestamp returns the ts field of the most recent entry in natural
// order, used by full-collection bootstrap to stamp synthetic insert
// events. Meaningful only when called against local.oplog.rs.
func (c *mongoCollection) LastTimestamp(ctx context.Context) (bson.Timestamp, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "$natural", Value: -1}})
	var entry struct {
		Ts bson.Timestamp `bson:"ts"`
	}
	err := c.col.FindOne(ctx, bson.D{}, opts).Decode(&entry)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return bson.Timestamp{}, nil
		}
		return bson.Timestamp{}, err
	}
	return entry.Ts, nil
}

// GridFSOpen opens a download stream for the GridFS file identified by id,
// backed by the bucket named after this collection's logical files
// namespace (e.g. a collection named "items.files" resolves to the
// "items" bucket, so its chunks live in "items.chunks"). The collection
// the caller holds must be the logical files namespace itself.
func (c *mongoCollection) GridFSOpen(ctx context.Context, id interface{}) (*GridFSFile, io.ReadCloser, error) {
	bucket, err := gridfs.NewBucket(c.parent.db, options.GridFSBucket().SetName(bucketName(c.colName)))
	if err != nil {
		return nil, nil, err
	}

	stream, err := bucket.OpenDownloadStream(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	gf := stream.GetFile()
	meta := &GridFSFile{
		ID:        gf.ID,
		Filename:  gf.Name,
		Length:    gf.Length,
		ChunkSize: gf.ChunkSize,
	}
	if gf.Metadata != nil {
		var m bson.M
		if err := bson.Unmarshal(gf.Metadata, &m); err == nil {
			if ct, ok := m["contentType"].(string); ok {
				meta.ContentType = ct
			}
			if md5, ok := m["md5"].(string); ok {
				meta.MD5 = md5
			}
		}
	}

	return meta, stream, nil
}

// bucketName derives the GridFS bucket name from a logical files
// collection name, stripping the ".files" suffix the convention adds
// (e.g. "items.files" -> "items"); a collection not following the
// convention is used as-is.
func bucketName(colName string) string {
	const suffix = ".files"
	if strings.HasSuffix(colName, suffix) {
		return strings.TrimSuffix(colName, suffix)
	}
	return colName
}
