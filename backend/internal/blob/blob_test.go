package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"student_achievements/backend/internal/shared"
	"student_achievements/backend/internal/store"
)

// fakeBucket stands in for the S3 client
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	ctypes  map[string]string
	failPut bool
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}, ctypes: map[string]string{}}
}

func (f *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut {
		return nil, errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.ctypes[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeBucket) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	s := &S3Store{client: bucket, bucket: "certificates"}

	t.Run("Round Trip", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "achievements/s1/k1", "application/pdf", []byte("%PDF")))
		assert.Equal(t, "application/pdf", bucket.ctypes["achievements/s1/k1"])

		rc, err := s.Open(ctx, "achievements/s1/k1")
		require.NoError(t, err)
		assert.Equal(t, []byte("%PDF"), readAll(t, rc))

		require.NoError(t, s.Delete(ctx, "achievements/s1/k1"))
		_, err = s.Open(ctx, "achievements/s1/k1")
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("Client Errors Are Internal", func(t *testing.T) {
		failing := &S3Store{client: &fakeBucket{failPut: true}, bucket: "certificates"}
		err := failing.Put(ctx, "k", "image/png", []byte("x"))
		assert.True(t, errors.Is(err, shared.ErrInternal))
		assert.Equal(t, "operation failed", shared.Message(err))
	})

	t.Run("Config Load Failure", func(t *testing.T) {
		orig := loadDefaultAWSConfig
		t.Cleanup(func() { loadDefaultAWSConfig = orig })
		loadDefaultAWSConfig = func(context.Context, ...func(*config.LoadOptions) error) (aws.Config, error) {
			return aws.Config{}, errors.New("no profile")
		}

		_, err := NewS3Store(ctx, shared.BlobConfig{Bucket: "b", Region: "us-east-1"})
		assert.ErrorContains(t, err, "failed to load S3 config")
	})
}

func TestAttachments(t *testing.T) {
	ctx := context.Background()

	t.Run("Inline Bytes Load On Demand", func(t *testing.T) {
		db := store.NewMemoryStore()
		files := NewAttachments(nil, db.Achievements, zerolog.Nop())
		assert.True(t, files.Inline())

		file, err := files.Prepare(ctx, "s1", "cert.png", "image/png", []byte("png-bytes"))
		require.NoError(t, err)
		assert.Equal(t, int64(9), file.Size)
		assert.Empty(t, file.StorageKey)

		require.NoError(t, db.Achievements.Insert(ctx, &shared.Achievement{ID: "a1", StudentID: "s1", File: file}))

		// Listing reads drop the bytes; Open fetches them by id
		listed, err := db.Achievements.FindByID(ctx, "a1", false)
		require.NoError(t, err)
		require.Nil(t, listed.File.Data)

		rc, err := files.Open(ctx, listed)
		require.NoError(t, err)
		assert.Equal(t, []byte("png-bytes"), readAll(t, rc))
	})

	t.Run("Object Store", func(t *testing.T) {
		db := store.NewMemoryStore()
		bucket := newFakeBucket()
		files := NewAttachments(&S3Store{client: bucket, bucket: "certificates"}, db.Achievements, zerolog.Nop())
		assert.False(t, files.Inline())

		file, err := files.Prepare(ctx, "s1", "offer.pdf", "application/pdf", []byte("%PDF"))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(file.StorageKey, "achievements/s1/"))
		assert.Nil(t, file.Data)

		rc, err := files.Open(ctx, &shared.Achievement{ID: "a1", File: file})
		require.NoError(t, err)
		assert.Equal(t, []byte("%PDF"), readAll(t, rc))

		files.Discard(ctx, file)
		assert.Empty(t, bucket.objects)
	})

	t.Run("Missing File", func(t *testing.T) {
		files := NewAttachments(nil, store.NewMemoryStore().Achievements, zerolog.Nop())
		_, err := files.Open(ctx, &shared.Achievement{ID: "a1"})
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("Object Key Without Object Store", func(t *testing.T) {
		files := NewAttachments(nil, store.NewMemoryStore().Achievements, zerolog.Nop())
		_, err := files.Open(ctx, &shared.Achievement{ID: "a1", File: &shared.Attachment{Filename: "x.pdf", StorageKey: "k"}})
		assert.True(t, errors.Is(err, shared.ErrInternal))
	})
}

func runObjectStoreSuite(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("Round Trip", func(t *testing.T) {
		key := StorageKey("s1")
		require.NoError(t, s.Put(ctx, key, "image/png", []byte("png-bytes")))

		rc, err := s.Open(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("png-bytes"), readAll(t, rc))

		require.NoError(t, s.Delete(ctx, key))
		_, err = s.Open(ctx, key)
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("Deleting A Missing Key", func(t *testing.T) {
		assert.NoError(t, s.Delete(ctx, "profile-photos/nobody/none.png"))
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	runObjectStoreSuite(t, s)

	// Stored bytes are a copy
	data := []byte("abc")
	require.NoError(t, s.Put(context.Background(), "k", "text/plain", data))
	data[0] = 'x'
	rc, err := s.Open(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), readAll(t, rc))
	assert.Equal(t, 1, s.Len())
}

// TestGridFSStore needs MONGO_URI and is skipped otherwise
func TestGridFSStore(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	cfg := &shared.MongoConfig{
		URI:            uri,
		Database:       "achievements_blob_test_" + uuid.NewString()[:8],
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    5,
		MinPoolSize:    1,
		MaxIdleTime:    30 * time.Second,
	}
	client, db, err := shared.ConnectMongoDB(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = shared.DisconnectMongoDB(client)
	})

	runObjectStoreSuite(t, NewGridFSStore(db, "photos"))
}
