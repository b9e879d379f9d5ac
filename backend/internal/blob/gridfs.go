package blob

import (
	"bytes"
	"context"
	"errors"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"student_achievements/backend/internal/shared"
)

// GridFSStore keeps blobs in a GridFS bucket of the record database. The
// object key is used as the file id.
type GridFSStore struct {
	db   *mongo.Database
	name string
}

// NewGridFSStore uses the bucket called name in db
func NewGridFSStore(db *mongo.Database, name string) *GridFSStore {
	return &GridFSStore{db: db, name: name}
}

// bucket returns a bucket bounded by the deadline of ctx. Deadlines are per
// bucket, so each call gets its own.
func (g *GridFSStore) bucket(ctx context.Context) (*gridfs.Bucket, error) {
	b, err := gridfs.NewBucket(g.db, options.GridFSBucket().SetName(g.name))
	if err != nil {
		return nil, shared.NewInternalError(err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = b.SetWriteDeadline(deadline)
		_ = b.SetReadDeadline(deadline)
	}
	return b, nil
}

func (g *GridFSStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	b, err := g.bucket(ctx)
	if err != nil {
		return err
	}

	opts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	if err := b.UploadFromStreamWithID(key, key, bytes.NewReader(data), opts); err != nil {
		return shared.NewInternalError(err)
	}
	return nil
}

func (g *GridFSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	b, err := g.bucket(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := b.OpenDownloadStream(key)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, shared.NewNotFoundError("file not found")
		}
		return nil, shared.NewInternalError(err)
	}
	return stream, nil
}

// Delete removes the file and its chunks. A missing file is not an error.
func (g *GridFSStore) Delete(ctx context.Context, key string) error {
	b, err := g.bucket(ctx)
	if err != nil {
		return err
	}

	if err := b.DeleteContext(ctx, key); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
		return shared.NewInternalError(err)
	}
	return nil
}
